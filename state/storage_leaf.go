package state

import (
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/internal/poseidon"
)

// StorageLeaf is (data, storageID), hashed as H_storage(data, storageID).
// The default leaf is (0, 0).
type StorageLeaf struct {
	Data      *uint256.Int
	StorageID *uint256.Int
}

// DefaultStorageLeaf returns the (0,0) default leaf.
func DefaultStorageLeaf() StorageLeaf {
	return StorageLeaf{Data: new(uint256.Int), StorageID: new(uint256.Int)}
}

// Hash returns H_storage(data, storageID).
func (l StorageLeaf) Hash() field.F {
	return poseidon.HashStorage(field.FromBigInt(l.Data.ToBig()), field.FromBigInt(l.StorageID.ToBig()))
}

// Clone returns a deep copy, used to snapshot pre/post values in a witness.
func (l StorageLeaf) Clone() StorageLeaf {
	return StorageLeaf{
		Data:      new(uint256.Int).Set(l.Data),
		StorageID: new(uint256.Int).Set(l.StorageID),
	}
}

// SlotIndex returns storageID mod 2^D_store, the low StorageTreeBits bits of
// storageID: every non-null StorageLeaf.StorageID must satisfy
// storageID = slotIndex (mod 2^D_store) by construction.
func SlotIndex(storageID *uint256.Int) uint64 {
	return storageID.Uint64() & (StorageSlotCount - 1)
}

// StorageUpdateData is the witness record for one storage-slot update:
// the slot address, the full sibling path, and the pre/post roots and
// leaf values.
type StorageUpdateData struct {
	StorageID   *uint256.Int `json:"storageID"`
	SiblingPath []field.F    `json:"siblingPath"`
	RootBefore  field.F      `json:"rootBefore"`
	RootAfter   field.F      `json:"rootAfter"`
	LeafBefore  StorageLeaf  `json:"leafBefore"`
	LeafAfter   StorageLeaf  `json:"leafAfter"`
}
