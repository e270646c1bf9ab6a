// Package statestore persists a state.State as a canonical, deterministic
// JSON snapshot on disk, matching the reference implementation's
// State.save/State.load (state.py), generalized to an atomic
// write-tmp-then-rename with a file lock so a crash mid-write never leaves
// a corrupt snapshot behind, and a schema version stamp so future engine
// versions can refuse to load an incompatible file outright.
package statestore

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/flock"
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/internal/smt"
	"github.com/loopnode/dex-rollup-state/internal/version"
	"github.com/loopnode/dex-rollup-state/internal/xerrors"
	"github.com/loopnode/dex-rollup-state/state"
)

// storageLeafJSON / balanceLeafJSON / accountLeafJSON mirror state.py's
// fromJSON/__dict__ shape: a flat map of materialized leaves keyed by
// decimal string ID, plus each subtree's node table and root so Load
// rehydrates the tree directly from its content-addressed node table
// instead of replaying every historical update.
type storageLeafJSON struct {
	Data      string `json:"data"`
	StorageID string `json:"storageID"`
}

type balanceLeafJSON struct {
	Balance      string                     `json:"balance"`
	WeightAMM    string                     `json:"weightAMM"`
	StorageRoot  string                     `json:"storageRoot"`
	StorageNodes []smt.NodeEntry            `json:"storageNodes"`
	Storage      map[string]storageLeafJSON `json:"storageLeafs"`
}

type accountLeafJSON struct {
	Owner         string                     `json:"owner"`
	PubKeyX       string                     `json:"publicKeyX"`
	PubKeyY       string                     `json:"publicKeyY"`
	Nonce         uint32                     `json:"nonce"`
	FeeBipsAMM    uint8                      `json:"feeBipsAMM"`
	BalancesRoot  string                     `json:"balancesRoot"`
	BalancesNodes []smt.NodeEntry            `json:"balancesNodes"`
	Balances      map[string]balanceLeafJSON `json:"balances"`
}

// snapshot is the whole-file schema: a version stamp, the accounts tree's
// node table and root, and the exchange's materialized account leaves.
type snapshot struct {
	SchemaVersion string                     `json:"schemaVersion"`
	ExchangeID    uint32                     `json:"exchangeID"`
	BlockIndex    uint64                     `json:"blockIndex"`
	AccountsRoot  string                     `json:"accountsRoot"`
	AccountsNodes []smt.NodeEntry            `json:"accountsNodes"`
	Accounts      map[string]accountLeafJSON `json:"accounts"`
}

// Path returns the canonical snapshot filename for (exchangeID, blockIdx)
// under dir.
func Path(dir string, exchangeID uint32, blockIdx uint64) string {
	return filepath.Join(dir, fmt.Sprintf("state_%d_%d.json", exchangeID, blockIdx))
}

// Save writes st to Path(dir, st.ExchangeID, blockIdx) atomically: it writes
// to a temp file in the same directory (so rename is same-filesystem), then
// renames over the destination, holding an exclusive lock on the
// destination's ".lock" file for the duration so concurrent savers
// serialize instead of interleaving.
func Save(dir string, st *state.State, blockIdx uint64) (err error) {
	dest := Path(dir, st.ExchangeID, blockIdx)

	lock := flock.New(dest + ".lock")
	if err := lock.Lock(); err != nil {
		return xerrors.IO(fmt.Errorf("acquire snapshot lock: %w", err))
	}
	defer lock.Unlock()

	snap := toSnapshot(st, blockIdx)
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return xerrors.IO(fmt.Errorf("marshal snapshot: %w", err))
	}

	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return xerrors.IO(fmt.Errorf("write temp snapshot: %w", err))
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return xerrors.IO(fmt.Errorf("rename snapshot into place: %w", err))
	}
	return nil
}

// Load reads the snapshot at dir/state_<exchangeID>_<blockIdx>.json back
// into a fresh state.State. It refuses to load a snapshot whose schema
// version is incompatible with the running engine.
func Load(dir string, exchangeID uint32, blockIdx uint64) (*state.State, error) {
	path := Path(dir, exchangeID, blockIdx)

	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return nil, xerrors.IO(fmt.Errorf("acquire snapshot read lock: %w", err))
	}
	defer lock.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.IO(fmt.Errorf("read snapshot: %w", err))
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, xerrors.IO(fmt.Errorf("unmarshal snapshot: %w", err))
	}
	if err := version.CheckCompatible(snap.SchemaVersion); err != nil {
		return nil, xerrors.Oracle(-1, err)
	}

	st, err := fromSnapshot(snap)
	if err != nil {
		return nil, xerrors.IO(fmt.Errorf("rehydrate snapshot: %w", err))
	}
	return st, nil
}

func toSnapshot(st *state.State, blockIdx uint64) snapshot {
	accounts := map[string]accountLeafJSON{}
	for _, id := range st.AccountIDs() {
		a := st.GetAccount(id)
		accounts[fmt.Sprintf("%d", id)] = accountToJSON(a)
	}
	return snapshot{
		SchemaVersion: version.Schema.String(),
		ExchangeID:    st.ExchangeID,
		BlockIndex:    blockIdx,
		AccountsRoot:  st.Root().String(),
		AccountsNodes: st.AccountsTreeNodes(),
		Accounts:      accounts,
	}
}

func accountToJSON(a *state.AccountLeaf) accountLeafJSON {
	snap := a.Snapshot()
	out := accountLeafJSON{
		Owner:         snap.Owner.Hex(),
		PubKeyX:       snap.PubKeyX.String(),
		PubKeyY:       snap.PubKeyY.String(),
		Nonce:         snap.Nonce,
		FeeBipsAMM:    snap.FeeBipsAMM,
		BalancesRoot:  snap.BalancesRoot.String(),
		BalancesNodes: a.BalancesTreeNodes(),
		Balances:      map[string]balanceLeafJSON{},
	}
	for _, tokenID := range a.TokenIDs() {
		leaf := a.GetBalanceLeaf(tokenID)
		bal := balanceLeafJSON{
			Balance:      leaf.Balance.ToBig().String(),
			WeightAMM:    leaf.WeightAMM.ToBig().String(),
			StorageRoot:  leaf.StorageRoot().String(),
			StorageNodes: leaf.StorageTreeNodes(),
			Storage:      map[string]storageLeafJSON{},
		}
		for _, slot := range leaf.StorageIDs() {
			s := leaf.StorageAtSlot(slot)
			bal.Storage[fmt.Sprintf("%d", slot)] = storageLeafJSON{
				Data:      s.Data.ToBig().String(),
				StorageID: s.StorageID.ToBig().String(),
			}
		}
		out.Balances[fmt.Sprintf("%d", tokenID)] = bal
	}
	return out
}

func parseAddress(hex string) (common.Address, error) {
	if !common.IsHexAddress(hex) {
		return common.Address{}, fmt.Errorf("invalid address %q", hex)
	}
	return common.HexToAddress(hex), nil
}

func parseUint256(s string) (*uint256.Int, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	v, overflow := uint256.FromBig(i)
	if overflow {
		return nil, fmt.Errorf("integer %q overflows uint256", s)
	}
	return v, nil
}

// balanceFromJSON rebuilds one materialized balance leaf directly from its
// recorded scalar fields and storage-subtree node table: no UpdateBalance/
// UpdateStorage replay, since the subtree's hashes are already captured in
// StorageNodes/StorageRoot.
func balanceFromJSON(bal balanceLeafJSON) (*state.BalanceLeaf, error) {
	balance, err := parseUint256(bal.Balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	weight, err := parseUint256(bal.WeightAMM)
	if err != nil {
		return nil, fmt.Errorf("parse weightAMM: %w", err)
	}
	storageRoot, err := field.FromDecimalString(bal.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("parse storageRoot: %w", err)
	}

	leaf := state.NewBalanceLeaf()
	leaf.Balance = balance
	leaf.WeightAMM = weight
	leaf.LoadStorageTreeNodes(bal.StorageNodes, storageRoot)

	for slotStr, s := range bal.Storage {
		var slot uint64
		if _, err := fmt.Sscanf(slotStr, "%d", &slot); err != nil {
			return nil, fmt.Errorf("parse storage slot %q: %w", slotStr, err)
		}
		data, err := parseUint256(s.Data)
		if err != nil {
			return nil, fmt.Errorf("parse storage data: %w", err)
		}
		storageID, err := parseUint256(s.StorageID)
		if err != nil {
			return nil, fmt.Errorf("parse storage storageID: %w", err)
		}
		leaf.SetStorageLeaf(slot, state.StorageLeaf{Data: data, StorageID: storageID})
	}
	return leaf, nil
}

// accountFromJSON rebuilds one materialized account leaf directly from its
// recorded fields and balances-subtree node table: no UpdateBalance* replay.
func accountFromJSON(acct accountLeafJSON) (*state.AccountLeaf, error) {
	owner, err := parseAddress(acct.Owner)
	if err != nil {
		return nil, err
	}
	pkX, err := field.FromDecimalString(acct.PubKeyX)
	if err != nil {
		return nil, fmt.Errorf("parse publicKeyX: %w", err)
	}
	pkY, err := field.FromDecimalString(acct.PubKeyY)
	if err != nil {
		return nil, fmt.Errorf("parse publicKeyY: %w", err)
	}
	balancesRoot, err := field.FromDecimalString(acct.BalancesRoot)
	if err != nil {
		return nil, fmt.Errorf("parse balancesRoot: %w", err)
	}

	a := state.NewAccountLeaf()
	a.Owner = owner
	a.PubKeyX, a.PubKeyY = pkX, pkY
	a.Nonce = acct.Nonce
	a.FeeBipsAMM = acct.FeeBipsAMM
	a.LoadBalancesTreeNodes(acct.BalancesNodes, balancesRoot)

	for tokenIDStr, bal := range acct.Balances {
		var tokenID uint32
		if _, err := fmt.Sscanf(tokenIDStr, "%d", &tokenID); err != nil {
			return nil, fmt.Errorf("parse token id %q: %w", tokenIDStr, err)
		}
		leaf, err := balanceFromJSON(bal)
		if err != nil {
			return nil, err
		}
		a.SetBalanceLeaf(tokenID, leaf)
	}
	return a, nil
}

func fromSnapshot(snap snapshot) (*state.State, error) {
	st := state.New(snap.ExchangeID)

	accountsRoot, err := field.FromDecimalString(snap.AccountsRoot)
	if err != nil {
		return nil, fmt.Errorf("parse accountsRoot: %w", err)
	}
	st.LoadAccountsTreeNodes(snap.AccountsNodes, accountsRoot)

	for idStr, acct := range snap.Accounts {
		var id uint64
		if _, err := fmt.Sscanf(idStr, "%d", &id); err != nil {
			return nil, fmt.Errorf("parse account id %q: %w", idStr, err)
		}
		a, err := accountFromJSON(acct)
		if err != nil {
			return nil, err
		}
		st.SetAccount(id, a)
	}
	return st, nil
}
