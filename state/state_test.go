package state

import (
	"math/big"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/loopnode/dex-rollup-state/internal/poseidon"
	"github.com/loopnode/dex-rollup-state/internal/smt"
)

func TestNewStatePreMaterializesReservedAccounts(t *testing.T) {
	s := New(1)
	require.Contains(t, s.AccountIDs(), ProtocolFeeAccountID)
	require.Contains(t, s.AccountIDs(), DefaultAccountID)
}

func TestGetAccountAutoVivifies(t *testing.T) {
	s := New(1)
	a := s.GetAccount(77)
	require.NotNil(t, a)
	require.Contains(t, s.AccountIDs(), uint64(77))
}

func TestUpdateAccountTreeChangesRoot(t *testing.T) {
	s := New(1)
	before := s.Root()

	a := s.GetAccount(5)
	a.Owner[0] = 0xAB
	s.UpdateAccountTree(5)

	require.False(t, s.Root().Equal(before))
}

func TestCreateAccountProofVerifiesAgainstRoot(t *testing.T) {
	s := New(1)
	a := s.GetAccount(5)
	a.Nonce = 3
	proof := s.CreateAccountProof(5)
	s.UpdateAccountTree(5)

	ok := smt.VerifyProof(AccountTreeDepth, treeFanout, poseidon.HashNode, proof, 5, a.Hash(), s.Root())
	require.True(t, ok)
}

func TestGetFilledMissesOnSlotReuse(t *testing.T) {
	s := New(1)
	a := s.GetAccount(10)

	storageIDFirst := uint256.NewInt(1)
	a.UpdateBalanceAndStorage(3, storageIDFirst, uint256.NewInt(500), big.NewInt(0), nil)

	// A later order reuses the same slot index with a different storageID.
	storageIDSecond := new(uint256.Int).Add(storageIDFirst, uint256.NewInt(StorageSlotCount))
	a.UpdateBalanceAndStorage(3, storageIDSecond, uint256.NewInt(900), big.NewInt(0), nil)

	require.Equal(t, uint64(0), s.GetFilled(10, 3, storageIDFirst).Uint64(), "the first storageID's slot was overwritten and must no longer report a hit")
	require.Equal(t, uint64(900), s.GetFilled(10, 3, storageIDSecond).Uint64())
}

func TestUpdateBalanceAndStorageOrdersStorageBeforeBalance(t *testing.T) {
	s := New(1)
	a := s.GetAccount(1)

	storageID := uint256.NewInt(42)
	balUpdate, storageUpdate := a.UpdateBalanceAndStorage(2, storageID, uint256.NewInt(10), big.NewInt(100), nil)

	require.Equal(t, uint64(100), balUpdate.LeafAfter.Balance.Uint64())
	require.Equal(t, uint64(10), storageUpdate.LeafAfter.Data.Uint64())
	require.False(t, balUpdate.RootBefore.Equal(balUpdate.RootAfter))
}

func TestAddSaturatingFloorsAtZero(t *testing.T) {
	balance := new(uint256.Int)
	got := addSaturating(balance, big.NewInt(-5))
	require.Equal(t, uint64(0), got.Uint64())
}

func TestAddSaturatingCapsAtMaxAmount(t *testing.T) {
	balance, _ := uint256.FromBig(MaxAmount())
	got := addSaturating(balance, big.NewInt(1))
	max, _ := uint256.FromBig(MaxAmount())
	require.Equal(t, 0, got.Cmp(max), "adding past the cap must saturate rather than wrap")
}
