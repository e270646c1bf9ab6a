package block

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/loopnode/dex-rollup-state/executor"
	"github.com/loopnode/dex-rollup-state/state"
)

func newHeader() Header {
	return Header{ExchangeID: 1, Timestamp: 1000, OperatorAccountID: 2}
}

func TestSealPadsToRequestedSize(t *testing.T) {
	st := state.New(1)
	b := NewBuilder(st, newHeader())

	require.NoError(t, b.Add(executor.Noop{}))
	sealed, err := b.Seal(4)
	require.NoError(t, err)
	require.Len(t, sealed.Transactions, 4)
}

func TestSealRecordsRootsAcrossTransactions(t *testing.T) {
	st := state.New(1)
	rootBefore := st.Root()
	b := NewBuilder(st, newHeader())

	deposit := &executor.Deposit{AccountID: 10, TokenID: 0, Amount: uint256.NewInt(1000)}
	require.NoError(t, b.Add(deposit))

	sealed, err := b.Seal(1)
	require.NoError(t, err)
	require.True(t, sealed.MerkleRootBefore.Equal(rootBefore))
	require.False(t, sealed.MerkleRootAfter.Equal(rootBefore))
}

func TestAddAbsorbsSpotTradePrecondition(t *testing.T) {
	st := state.New(1)
	b := NewBuilder(st, newHeader())

	expired := &executor.Order{AccountID: 10, TokenS: 1, TokenB: 2, AmountS: uint256.NewInt(1000), AmountB: uint256.NewInt(1000), ValidUntil: 1, StorageID: uint256.NewInt(1)}
	other := &executor.Order{AccountID: 11, TokenS: 2, TokenB: 1, AmountS: uint256.NewInt(1000), AmountB: uint256.NewInt(1000), ValidUntil: 5000, StorageID: uint256.NewInt(1)}

	err := b.Add(&executor.SpotTrade{OrderA: expired, OrderB: other})
	require.NoError(t, err, "an unmatchable spot trade must be absorbed, not rejected")
	require.Equal(t, 0, b.Size(), "the absorbed trade must not be added to the block")
}

func TestAddRejectsMalformedNonSpotTradeTx(t *testing.T) {
	st := state.New(1)
	b := NewBuilder(st, newHeader())

	err := b.Add(nil)
	require.Error(t, err)
}

func TestTouchedAccountsIncludesOperatorAndProtocolFee(t *testing.T) {
	st := state.New(1)
	header := newHeader()
	b := NewBuilder(st, header)

	require.NoError(t, b.Add(&executor.Deposit{AccountID: 10, TokenID: 0, Amount: uint256.NewInt(1)}))

	require.True(t, b.touched.Test(uint(header.OperatorAccountID)))
	require.True(t, b.touched.Test(uint(state.ProtocolFeeAccountID)))
	require.True(t, b.touched.Test(10))
}
