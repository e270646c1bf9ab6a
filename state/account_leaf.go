package state

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/internal/poseidon"
	"github.com/loopnode/dex-rollup-state/internal/smt"
)

// AccountLeaf is (owner, pubKeyX, pubKeyY, nonce, feeBipsAMM,
// balancesSubtree), hashed as H_account(owner, pkX, pkY, nonce, feeBipsAMM,
// balancesRoot). Owner is a u160, represented as common.Address (go-ethereum)
// since both are exactly 20 bytes.
type AccountLeaf struct {
	Owner      common.Address
	PubKeyX    field.F
	PubKeyY    field.F
	Nonce      uint32
	FeeBipsAMM uint8

	balancesTree *smt.Tree
	balances     map[uint64]*BalanceLeaf
}

var defaultBalanceLeafHash = NewBalanceLeaf().Hash()

// NewAccountLeaf allocates an unowned account (owner = zero address) with a
// fresh all-default balances subtree.
func NewAccountLeaf() *AccountLeaf {
	return &AccountLeaf{
		balancesTree: smt.New(TokenTreeDepth, treeFanout, defaultBalanceLeafHash, poseidon.HashNode),
		balances:     map[uint64]*BalanceLeaf{},
	}
}

// Hash returns H_account(owner, pkX, pkY, nonce, feeBipsAMM, balancesRoot).
func (a *AccountLeaf) Hash() field.F {
	owner := new(big.Int).SetBytes(a.Owner.Bytes())
	return poseidon.HashAccount(
		field.FromBigInt(owner),
		a.PubKeyX,
		a.PubKeyY,
		field.FromUint64(uint64(a.Nonce)),
		field.FromUint64(uint64(a.FeeBipsAMM)),
		a.balancesTree.Root(),
	)
}

// AccountSnapshot captures the fields needed to reproduce Hash from a point
// in time after the balances subtree has since mutated (copyAccountInfo in
// the reference implementation).
type AccountSnapshot struct {
	Owner        common.Address
	PubKeyX      field.F
	PubKeyY      field.F
	Nonce        uint32
	FeeBipsAMM   uint8
	BalancesRoot field.F
}

func (a *AccountLeaf) Snapshot() AccountSnapshot {
	return AccountSnapshot{
		Owner:        a.Owner,
		PubKeyX:      a.PubKeyX,
		PubKeyY:      a.PubKeyY,
		Nonce:        a.Nonce,
		FeeBipsAMM:   a.FeeBipsAMM,
		BalancesRoot: a.balancesTree.Root(),
	}
}

// BalancesRoot returns the current root of this account's balances subtree.
func (a *AccountLeaf) BalancesRoot() field.F {
	return a.balancesTree.Root()
}

// BalancesTreeNodes exports the balances subtree's node table for
// snapshotting (StateStore, §6.3), paired with BalancesRoot.
func (a *AccountLeaf) BalancesTreeNodes() []smt.NodeEntry {
	return a.balancesTree.ExportNodes()
}

// LoadBalancesTreeNodes restores the balances subtree's node table and root
// from a previous BalancesTreeNodes/BalancesRoot pair, without recomputing
// any hash. Callers must also install every balance leaf the tree now refers
// to via SetBalanceLeaf before the root and the materialized balances agree.
func (a *AccountLeaf) LoadBalancesTreeNodes(entries []smt.NodeEntry, root field.F) {
	a.balancesTree.ImportNodes(entries, root)
}

// SetBalanceLeaf installs leaf as the materialized balance leaf for tokenID
// without touching the balances subtree — used by StateStore.Load to
// restore a leaf whose hash is already captured in a separately-loaded node
// table.
func (a *AccountLeaf) SetBalanceLeaf(tokenID uint32, leaf *BalanceLeaf) {
	a.balances[uint64(tokenID)] = leaf
}

// GetBalanceLeaf returns the materialized balance leaf for tokenID, or a
// fresh default (not yet inserted into the map) if it has never been
// touched.
func (a *AccountLeaf) GetBalanceLeaf(tokenID uint32) *BalanceLeaf {
	if l, ok := a.balances[uint64(tokenID)]; ok {
		return l
	}
	return NewBalanceLeaf()
}

// TokenIDs returns every tokenID this account has a materialized balance
// leaf for, unsorted. Used by snapshot serialization.
func (a *AccountLeaf) TokenIDs() []uint32 {
	ids := make([]uint32, 0, len(a.balances))
	for key := range a.balances {
		ids = append(ids, uint32(key))
	}
	return ids
}

func (a *AccountLeaf) materialize(tokenID uint32) *BalanceLeaf {
	key := uint64(tokenID)
	if l, ok := a.balances[key]; ok {
		return l
	}
	l := NewBalanceLeaf()
	a.balances[key] = l
	return l
}

// BalanceUpdateData is the witness record for one balance-leaf update:
// the token address, the full sibling path in the balances subtree, and
// the pre/post roots and leaf snapshots.
type BalanceUpdateData struct {
	TokenID     uint32           `json:"tokenID"`
	SiblingPath []field.F        `json:"siblingPath"`
	RootBefore  field.F          `json:"rootBefore"`
	RootAfter   field.F          `json:"rootAfter"`
	LeafBefore  BalanceSnapshot  `json:"leafBefore"`
	LeafAfter   BalanceSnapshot  `json:"leafAfter"`
}

// UpdateBalance applies a saturating delta (may be negative) to tokenID's
// balance, optionally replacing weightAMM, and returns the balances-subtree
// witness for the update.
func (a *AccountLeaf) UpdateBalance(tokenID uint32, delta *big.Int, weight *uint256.Int) BalanceUpdateData {
	leaf := a.materialize(tokenID)

	before := leaf.snapshot()
	rootBefore := a.balancesTree.Root()

	leaf.Balance = addSaturating(leaf.Balance, delta)
	if weight != nil {
		leaf.WeightAMM = new(uint256.Int).Set(weight)
	}

	after := leaf.snapshot()
	proof := a.balancesTree.CreateProof(uint64(tokenID))
	a.balancesTree.Update(uint64(tokenID), leaf.Hash())
	rootAfter := a.balancesTree.Root()

	return BalanceUpdateData{
		TokenID:     tokenID,
		SiblingPath: proof,
		RootBefore:  rootBefore,
		RootAfter:   rootAfter,
		LeafBefore:  before,
		LeafAfter:   after,
	}
}

// UpdateBalanceAndStorage performs a storage-slot write followed by a
// balance delta on the same token, in that order: the storage subtree root
// changes first, then the balance leaf (which embeds that root) is
// re-hashed, so the returned BalanceUpdateData's sibling path is over the
// already-updated storage root.
func (a *AccountLeaf) UpdateBalanceAndStorage(
	tokenID uint32,
	storageID, newData *uint256.Int,
	deltaBalance *big.Int,
	weight *uint256.Int,
) (BalanceUpdateData, StorageUpdateData) {
	leaf := a.materialize(tokenID)

	before := leaf.snapshot()
	rootBefore := a.balancesTree.Root()

	storageUpdate := leaf.UpdateStorage(storageID, newData)
	leaf.Balance = addSaturating(leaf.Balance, deltaBalance)
	if weight != nil {
		leaf.WeightAMM = new(uint256.Int).Set(weight)
	}

	after := leaf.snapshot()
	proof := a.balancesTree.CreateProof(uint64(tokenID))
	a.balancesTree.Update(uint64(tokenID), leaf.Hash())
	rootAfter := a.balancesTree.Root()

	return BalanceUpdateData{
		TokenID:     tokenID,
		SiblingPath: proof,
		RootBefore:  rootBefore,
		RootAfter:   rootAfter,
		LeafBefore:  before,
		LeafAfter:   after,
	}, storageUpdate
}
