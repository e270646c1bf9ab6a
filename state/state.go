package state

import (
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/internal/poseidon"
	"github.com/loopnode/dex-rollup-state/internal/smt"
)

// AccountUpdateData is the witness record for one accounts-tree update: the
// account address, the full sibling path, and the pre/post roots and
// account snapshots.
type AccountUpdateData struct {
	AccountID   uint64           `json:"accountID"`
	SiblingPath []field.F        `json:"siblingPath"`
	RootBefore  field.F          `json:"rootBefore"`
	RootAfter   field.F          `json:"rootAfter"`
	LeafBefore  AccountSnapshot  `json:"leafBefore"`
	LeafAfter   AccountSnapshot  `json:"leafAfter"`
}

var defaultAccountLeafHash = NewAccountLeaf().Hash()

// State is (exchangeID, accountsSubtree); root(State) = accountsSubtree.root.
// Account 0 is the protocol-fee account, account 1 the reserved
// default/unused account; both exist from construction.
type State struct {
	ExchangeID uint32

	accountsTree *smt.Tree
	accounts     map[uint64]*AccountLeaf
}

// New allocates an empty state: an all-default accounts tree with accounts
// 0 (protocol fee) and 1 (reserved default) pre-materialized.
func New(exchangeID uint32) *State {
	s := &State{
		ExchangeID:   exchangeID,
		accountsTree: smt.New(AccountTreeDepth, treeFanout, defaultAccountLeafHash, poseidon.HashNode),
		accounts:     map[uint64]*AccountLeaf{},
	}
	s.accounts[ProtocolFeeAccountID] = NewAccountLeaf()
	s.accounts[DefaultAccountID] = NewAccountLeaf()
	return s
}

// Root returns the current accounts-tree root, i.e. root(State).
func (s *State) Root() field.F {
	return s.accountsTree.Root()
}

// GetAccount returns the materialized account at accountID, creating and
// storing a fresh default account the first time it is referenced (mirrors
// the reference implementation's auto-vivifying getAccount).
func (s *State) GetAccount(accountID uint64) *AccountLeaf {
	if a, ok := s.accounts[accountID]; ok {
		return a
	}
	a := NewAccountLeaf()
	s.accounts[accountID] = a
	return a
}

// UpdateAccountTree re-hashes accountID's current leaf value into the
// accounts tree. Callers must call this after mutating the AccountLeaf
// returned by GetAccount for the change to be reflected in Root().
func (s *State) UpdateAccountTree(accountID uint64) {
	s.accountsTree.Update(accountID, s.GetAccount(accountID).Hash())
}

// CreateAccountProof returns the current sibling path for accountID in the
// accounts tree, to be paired with the root before and after an update.
func (s *State) CreateAccountProof(accountID uint64) []field.F {
	return s.accountsTree.CreateProof(accountID)
}

// AccountsTreeRoot exposes the raw tree for StateStore snapshotting.
func (s *State) AccountsTreeRoot() field.F { return s.accountsTree.Root() }

// AccountsTreeNodes exports the accounts tree's node table for snapshotting
// (StateStore, §6.3), paired with AccountsTreeRoot.
func (s *State) AccountsTreeNodes() []smt.NodeEntry {
	return s.accountsTree.ExportNodes()
}

// LoadAccountsTreeNodes restores the accounts tree's node table and root
// from a previous AccountsTreeNodes/AccountsTreeRoot pair, without recomputing
// any hash. Callers must also install every account leaf the tree now refers
// to via SetAccount before the root and the materialized accounts agree.
func (s *State) LoadAccountsTreeNodes(entries []smt.NodeEntry, root field.F) {
	s.accountsTree.ImportNodes(entries, root)
}

// SetAccount installs leaf as the materialized account at accountID without
// touching the accounts tree — used by StateStore.Load to restore a leaf
// whose hash is already captured in a separately-loaded node table.
func (s *State) SetAccount(accountID uint64, leaf *AccountLeaf) {
	s.accounts[accountID] = leaf
}

// AccountIDs returns every materialized account ID, unsorted.
func (s *State) AccountIDs() []uint64 {
	ids := make([]uint64, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids
}

// GetFilled returns the cumulative filled amount recorded for
// (accountID, tokenID, storageID): the storage leaf's data if that leaf's
// stored storageID still matches this storageID (i.e. the slot hasn't been
// reused by a later order since), else 0 per the slot-reuse rule in
// SPEC_FULL.md §4.5.2/§3.
func (s *State) GetFilled(accountID uint64, tokenID uint32, storageID *uint256.Int) *uint256.Int {
	account := s.GetAccount(accountID)
	balance := account.GetBalanceLeaf(tokenID)
	leaf := balance.GetStorage(storageID)

	// A slot is only a hit for storageID if the leaf's recorded storageID
	// matches exactly; a reused slot (overwritten by a later order sharing
	// the same slot index) or a never-written slot both report 0 here.
	if storageID.Cmp(leaf.StorageID) == 0 {
		return leaf.Data
	}
	return new(uint256.Int)
}
