package executor

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/loopnode/dex-rollup-state/internal/xerrors"
	"github.com/loopnode/dex-rollup-state/state"
)

func newCtx() *Context {
	return &Context{
		OperatorAccountID:    2,
		Timestamp:            1000,
		ProtocolTakerFeeBips: 5,
		ProtocolMakerFeeBips: 3,
	}
}

func TestExecuteNoopLeavesRootUnchanged(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	before := st.Root()

	w, err := ex.Execute(newCtx(), Noop{})
	require.NoError(t, err)
	require.True(t, st.Root().Equal(before))
	require.Equal(t, Noop{}, w.Input)
}

func TestExecuteDepositCreditsNewAccount(t *testing.T) {
	st := state.New(1)
	ex := New(st)

	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := &Deposit{AccountID: 10, Owner: owner, TokenID: 0, Amount: uint256.NewInt(5000)}

	w, err := ex.Execute(newCtx(), tx)
	require.NoError(t, err)

	account := st.GetAccount(10)
	require.Equal(t, owner, account.Owner)
	require.Equal(t, uint64(5000), account.GetBalanceLeaf(0).Balance.Uint64())
	require.Equal(t, uint64(10), w.Witness.AccountUpdateA.AccountID)
}

func TestExecuteTransferMovesBalanceAndPaysFee(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	sender := st.GetAccount(10)
	sender.UpdateBalance(0, big.NewInt(10_000), nil)
	st.UpdateAccountTree(10)

	tx := &Transfer{
		FromAccountID: 10,
		ToAccountID:   11,
		To:            common.HexToAddress("0x2222222222222222222222222222222222222222"),
		TokenID:       0,
		Amount:        uint256.NewInt(1000),
		FeeTokenID:    0,
		Fee:           uint256.NewInt(10),
		StorageID:     uint256.NewInt(1),
	}

	w, err := ex.Execute(ctx, tx)
	require.NoError(t, err)

	require.Equal(t, uint64(10_000-1000-10), st.GetAccount(10).GetBalanceLeaf(0).Balance.Uint64())
	require.Equal(t, uint64(1000), st.GetAccount(11).GetBalanceLeaf(0).Balance.Uint64())
	require.Equal(t, uint64(10), st.GetAccount(ctx.OperatorAccountID).GetBalanceLeaf(0).Balance.Uint64())
	require.True(t, tx.ToNewAccount)
	require.Equal(t, tx, w.Input)
}

func TestExecuteTransferToExistingAccountNotFlaggedNew(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	owner := common.HexToAddress("0x3333333333333333333333333333333333333333")
	existing := st.GetAccount(11)
	existing.Owner = owner
	st.UpdateAccountTree(11)

	sender := st.GetAccount(10)
	sender.UpdateBalance(0, big.NewInt(500), nil)
	st.UpdateAccountTree(10)

	tx := &Transfer{
		FromAccountID: 10, ToAccountID: 11, To: owner, TokenID: 0,
		Amount: uint256.NewInt(100), FeeTokenID: 0, Fee: new(uint256.Int), StorageID: uint256.NewInt(2),
	}
	_, err := ex.Execute(ctx, tx)
	require.NoError(t, err)
	require.False(t, tx.ToNewAccount)
}

func TestExecuteWithdrawTypeTwoTakesFullBalance(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	acc := st.GetAccount(10)
	acc.UpdateBalance(0, big.NewInt(777), nil)
	st.UpdateAccountTree(10)

	tx := &Withdraw{AccountID: 10, TokenID: 0, FeeTokenID: 0, Fee: new(uint256.Int), StorageID: uint256.NewInt(1), Type: 2}
	_, err := ex.Execute(ctx, tx)
	require.NoError(t, err)

	require.Equal(t, uint64(777), tx.Amount.Uint64())
	require.Equal(t, uint64(0), st.GetAccount(10).GetBalanceLeaf(0).Balance.Uint64())
}

func TestExecuteWithdrawTypeThreeForcesZeroAmount(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	acc := st.GetAccount(10)
	acc.UpdateBalance(0, big.NewInt(123), nil)
	st.UpdateAccountTree(10)

	tx := &Withdraw{AccountID: 10, TokenID: 0, FeeTokenID: 0, Fee: new(uint256.Int), StorageID: uint256.NewInt(1), Type: 3}
	_, err := ex.Execute(ctx, tx)
	require.NoError(t, err)

	require.Equal(t, uint64(0), tx.Amount.Uint64())
	require.Equal(t, uint64(123), st.GetAccount(10).GetBalanceLeaf(0).Balance.Uint64())
}

func TestExecuteAccountUpdateBumpsNonce(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	owner := common.HexToAddress("0x4444444444444444444444444444444444444444")
	tx := &AccountUpdate{
		AccountID: 10, Owner: owner,
		FeeTokenID: 0, Fee: new(uint256.Int), Type: 0,
	}
	_, err := ex.Execute(ctx, tx)
	require.NoError(t, err)

	acc := st.GetAccount(10)
	require.Equal(t, uint32(1), acc.Nonce)
	require.Equal(t, owner, acc.Owner)
}

func TestExecuteAmmUpdateReportsPriorBalance(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	acc := st.GetAccount(10)
	acc.UpdateBalance(0, big.NewInt(4242), nil)
	st.UpdateAccountTree(10)

	tx := &AmmUpdate{AccountID: 10, TokenID: 0, FeeBips: 30, TokenWeight: uint256.NewInt(1_000_000)}
	_, err := ex.Execute(ctx, tx)
	require.NoError(t, err)

	require.Equal(t, uint64(4242), tx.Balance.Uint64())
	require.Equal(t, uint8(30), st.GetAccount(10).FeeBipsAMM)
}

func TestExecuteSpotTradeSettlesBothSides(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	accA := st.GetAccount(10)
	accA.UpdateBalance(1, big.NewInt(100_000), nil) // sells token 1
	st.UpdateAccountTree(10)

	accB := st.GetAccount(11)
	accB.UpdateBalance(2, big.NewInt(100_000), nil) // sells token 2
	st.UpdateAccountTree(11)

	orderA := &Order{
		AccountID: 10, TokenS: 1, TokenB: 2,
		AmountS: uint256.NewInt(1000), AmountB: uint256.NewInt(1000),
		ValidUntil: 5000, StorageID: uint256.NewInt(1), FeeBips: 20,
	}
	orderB := &Order{
		AccountID: 11, TokenS: 2, TokenB: 1,
		AmountS: uint256.NewInt(1000), AmountB: uint256.NewInt(1000),
		ValidUntil: 5000, StorageID: uint256.NewInt(1), FeeBips: 20,
	}

	_, err := ex.Execute(ctx, &SpotTrade{OrderA: orderA, OrderB: orderB})
	require.NoError(t, err)

	require.Less(t, st.GetAccount(10).GetBalanceLeaf(1).Balance.Uint64(), uint64(100_000))
	require.Less(t, st.GetAccount(11).GetBalanceLeaf(2).Balance.Uint64(), uint64(100_000))
	require.Greater(t, st.GetAccount(10).GetBalanceLeaf(2).Balance.Uint64(), uint64(0))
	require.Greater(t, st.GetAccount(11).GetBalanceLeaf(1).Balance.Uint64(), uint64(0))
}

func TestExecuteWitnessTracksConditionalTransactionCount(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	unconditional := &Transfer{
		FromAccountID: 10, ToAccountID: 11, To: common.HexToAddress("0x6666666666666666666666666666666666666666"),
		TokenID: 0, Amount: new(uint256.Int), FeeTokenID: 0, Fee: new(uint256.Int), StorageID: uint256.NewInt(1), Type: 0,
	}
	w1, err := ex.Execute(ctx, unconditional)
	require.NoError(t, err)
	require.Equal(t, 0, w1.Witness.NumConditionalTransactionsAfter)

	conditional := &Transfer{
		FromAccountID: 10, ToAccountID: 11, To: common.HexToAddress("0x6666666666666666666666666666666666666666"),
		TokenID: 0, Amount: new(uint256.Int), FeeTokenID: 0, Fee: new(uint256.Int), StorageID: uint256.NewInt(2), Type: 1,
	}
	w2, err := ex.Execute(ctx, conditional)
	require.NoError(t, err)
	require.Equal(t, 1, w2.Witness.NumConditionalTransactionsAfter)

	conditional.StorageID = uint256.NewInt(3)
	w3, err := ex.Execute(ctx, conditional)
	require.NoError(t, err)
	require.Equal(t, 2, w3.Witness.NumConditionalTransactionsAfter)
}

func TestExecuteSpotTradeExpiredOrderIsPrecondition(t *testing.T) {
	st := state.New(1)
	ex := New(st)
	ctx := newCtx()

	orderA := &Order{
		AccountID: 10, TokenS: 1, TokenB: 2,
		AmountS: uint256.NewInt(1000), AmountB: uint256.NewInt(1000),
		ValidUntil: 1, StorageID: uint256.NewInt(1),
	}
	orderB := &Order{
		AccountID: 11, TokenS: 2, TokenB: 1,
		AmountS: uint256.NewInt(1000), AmountB: uint256.NewInt(1000),
		ValidUntil: 5000, StorageID: uint256.NewInt(1),
	}

	_, err := ex.Execute(ctx, &SpotTrade{OrderA: orderA, OrderB: orderB})
	require.Error(t, err)
	require.True(t, errors.Is(err, xerrors.ErrPrecondition))
}
