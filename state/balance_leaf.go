package state

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/internal/poseidon"
	"github.com/loopnode/dex-rollup-state/internal/smt"
)

// BalanceLeaf is (balance, weightAMM, storageSubtree), hashed as
// H_balance(balance, weightAMM, storageRoot). Balances saturate at
// 2^96 - 1.
type BalanceLeaf struct {
	Balance   *uint256.Int
	WeightAMM *uint256.Int

	storageTree *smt.Tree
	storageLeaf map[uint64]StorageLeaf
}

var defaultStorageLeafHash = DefaultStorageLeaf().Hash()

// NewBalanceLeaf allocates a materialized zero balance leaf with a fresh
// all-default storage subtree.
func NewBalanceLeaf() *BalanceLeaf {
	return &BalanceLeaf{
		Balance:     new(uint256.Int),
		WeightAMM:   new(uint256.Int),
		storageTree: smt.New(StorageTreeDepth, treeFanout, defaultStorageLeafHash, poseidon.HashNode),
		storageLeaf: map[uint64]StorageLeaf{},
	}
}

// Hash returns H_balance(balance, weightAMM, storageRoot).
func (b *BalanceLeaf) Hash() field.F {
	return poseidon.HashBalance(
		field.FromBigInt(b.Balance.ToBig()),
		field.FromBigInt(b.WeightAMM.ToBig()),
		b.storageTree.Root(),
	)
}

// StorageRoot returns the current root of this balance leaf's storage
// subtree.
func (b *BalanceLeaf) StorageRoot() field.F {
	return b.storageTree.Root()
}

// StorageTreeNodes exports the storage subtree's node table for
// snapshotting (StateStore, §6.3), paired with StorageRoot.
func (b *BalanceLeaf) StorageTreeNodes() []smt.NodeEntry {
	return b.storageTree.ExportNodes()
}

// LoadStorageTreeNodes restores the storage subtree's node table and root
// from a previous StorageTreeNodes/StorageRoot pair, without recomputing any
// hash. Callers must also install every storage leaf the tree now refers to
// via SetStorageLeaf before the root and the materialized slots agree.
func (b *BalanceLeaf) LoadStorageTreeNodes(entries []smt.NodeEntry, root field.F) {
	b.storageTree.ImportNodes(entries, root)
}

// SetStorageLeaf installs leaf at slot without touching the storage
// subtree — used by StateStore.Load to restore a leaf whose hash is already
// captured in a separately-loaded node table.
func (b *BalanceLeaf) SetStorageLeaf(slot uint64, leaf StorageLeaf) {
	b.storageLeaf[slot] = leaf
}

// GetStorage returns the materialized leaf at storageID's slot, or the
// (0,0) default if that slot has never been written.
func (b *BalanceLeaf) GetStorage(storageID *uint256.Int) StorageLeaf {
	slot := SlotIndex(storageID)
	if l, ok := b.storageLeaf[slot]; ok {
		return l
	}
	return DefaultStorageLeaf()
}

// StorageAtSlot returns the materialized leaf stored at a raw slot index
// (as returned by StorageIDs), or the (0,0) default if unmaterialized.
func (b *BalanceLeaf) StorageAtSlot(slot uint64) StorageLeaf {
	if l, ok := b.storageLeaf[slot]; ok {
		return l
	}
	return DefaultStorageLeaf()
}

// StorageIDs returns every slot index this balance leaf has a materialized
// storage leaf for, unsorted. Used by snapshot serialization.
func (b *BalanceLeaf) StorageIDs() []uint64 {
	ids := make([]uint64, 0, len(b.storageLeaf))
	for slot := range b.storageLeaf {
		ids = append(ids, slot)
	}
	return ids
}

// Snapshot captures the immutable fields needed to reproduce Hash after the
// underlying subtree has since mutated — used for before/after witness
// records (copyBalanceInfo in the reference implementation).
type BalanceSnapshot struct {
	Balance     *uint256.Int
	WeightAMM   *uint256.Int
	StorageRoot field.F
}

func (b *BalanceLeaf) snapshot() BalanceSnapshot {
	return BalanceSnapshot{
		Balance:     new(uint256.Int).Set(b.Balance),
		WeightAMM:   new(uint256.Int).Set(b.WeightAMM),
		StorageRoot: b.storageTree.Root(),
	}
}

// UpdateStorage materializes slot storageID mod 2^D_store, writes
// (data, storageID), and returns the full witness for that update.
func (b *BalanceLeaf) UpdateStorage(storageID, data *uint256.Int) StorageUpdateData {
	slot := SlotIndex(storageID)
	before, ok := b.storageLeaf[slot]
	if !ok {
		before = DefaultStorageLeaf()
	}
	leafBefore := before.Clone()
	rootBefore := b.storageTree.Root()

	after := StorageLeaf{Data: new(uint256.Int).Set(data), StorageID: new(uint256.Int).Set(storageID)}
	b.storageLeaf[slot] = after
	leafAfter := after.Clone()

	proof := b.storageTree.CreateProof(slot)
	b.storageTree.Update(slot, after.Hash())
	rootAfter := b.storageTree.Root()

	return StorageUpdateData{
		StorageID:   new(uint256.Int).Set(storageID),
		SiblingPath: proof,
		RootBefore:  rootBefore,
		RootAfter:   rootAfter,
		LeafBefore:  leafBefore,
		LeafAfter:   leafAfter,
	}
}

// addSaturating adds delta (which may be negative) to balance, saturating
// at 2^96 - 1 on overflow and floored at 0 (SPEC_FULL.md §3's "overflow
// saturates to the cap on deposits"; a negative result never legitimately
// occurs once the executor has checked preconditions, but flooring at 0
// rather than wrapping keeps the invariant balance <= 2^96-1 true
// unconditionally).
func addSaturating(balance *uint256.Int, delta *big.Int) *uint256.Int {
	sum := new(big.Int).Add(balance.ToBig(), delta)
	if sum.Sign() < 0 {
		sum.SetUint64(0)
	}
	if sum.Cmp(MaxAmount()) > 0 {
		sum = MaxAmount()
	}
	out, _ := uint256.FromBig(sum)
	return out
}
