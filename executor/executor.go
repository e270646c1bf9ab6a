package executor

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/internal/floatcodec"
	"github.com/loopnode/dex-rollup-state/internal/xerrors"
	"github.com/loopnode/dex-rollup-state/orderbook"
	"github.com/loopnode/dex-rollup-state/state"
)

// TransactionExecutor applies one TxInput at a time against a state.State,
// producing the witness the block builder accumulates.
type TransactionExecutor struct {
	State *state.State
}

// New returns an executor bound to st. st is mutated in place by Execute.
func New(st *state.State) *TransactionExecutor {
	return &TransactionExecutor{State: st}
}

// txSlots is the explicit, always-fully-populated scratch record the
// reference implementation builds dynamically per transaction (newState in
// executeTransaction): every unset field is default-filled before the
// uniform Merkle update pass runs.
type txSlots struct {
	signatureA *Signature
	signatureB *Signature

	accountAAddress    *uint64
	accountAOwner      *common.Address
	accountAPubKeyX    *field.F
	accountAPubKeyY    *field.F
	accountANonceDelta uint32
	accountAFeeBipsAMM *uint8

	balanceASAddress      *uint32
	balanceASBalanceDelta *big.Int
	balanceASWeight       *uint256.Int
	balanceABBalanceDelta *big.Int

	storageAData      *uint256.Int
	storageAStorageID *uint256.Int

	accountBAddress    *uint64
	accountBOwner      *common.Address
	accountBPubKeyX    *field.F
	accountBPubKeyY    *field.F
	accountBNonceDelta uint32

	balanceBSAddress      *uint32
	balanceBSBalanceDelta *big.Int
	balanceBBBalanceDelta *big.Int

	storageBData      *uint256.Int
	storageBStorageID *uint256.Int

	balanceDeltaAO *big.Int
	balanceDeltaBO *big.Int
	balanceDeltaAP *big.Int
	balanceDeltaBP *big.Int
}

func newTxSlots() *txSlots { return &txSlots{} }

// Execute normalizes tx into slots, runs the per-type handler, then performs
// the uniform five-step finalization pass: A's storage+balanceS then
// balanceB then account; B's storage+balanceS then balanceB then account;
// operator balances; protocol-fee balances.
func (e *TransactionExecutor) Execute(ctx *Context, tx TxInput) (TxWitness, error) {
	s := newTxSlots()
	s.accountAFeeBipsAMM = nil

	var err error
	switch t := tx.(type) {
	case Noop:
		// nothing to do
	case *SpotTrade:
		err = e.applySpotTrade(ctx, s, t)
	case *Transfer:
		err = e.applyTransfer(ctx, s, t)
	case *Withdraw:
		err = e.applyWithdraw(ctx, s, t)
	case *Deposit:
		err = e.applyDeposit(ctx, s, t)
	case *AccountUpdate:
		err = e.applyAccountUpdate(ctx, s, t)
	case *AmmUpdate:
		err = e.applyAmmUpdate(ctx, s, t)
	case *SignatureVerification:
		s.accountAAddress = u64ptr(t.AccountID)
		s.signatureA = t.Signature
	default:
		return TxWitness{}, xerrors.Malformed(-1, nil)
	}
	if err != nil {
		return TxWitness{}, err
	}

	witness := e.finalize(ctx, s)
	return TxWitness{Witness: witness, Input: tx}, nil
}

var errRingNotMatchable = errors.New("ring not matchable: orders expired, slippage exceeded, or amounts don't cross")

func u64ptr(v uint64) *uint64     { return &v }
func u32ptr(v uint32) *uint32     { return &v }
func u8ptr(v uint8) *uint8        { return &v }
func fptr(v field.F) *field.F     { return &v }
func addrptr(a common.Address) *common.Address { return &a }

func calculateFees(amountB *uint256.Int, feeBips uint16, protocolFeeBips uint32) (fee, protocolFee *uint256.Int) {
	fee = mulDivU256(amountB, uint256.NewInt(uint64(feeBips)), uint256.NewInt(10000))
	protocolFee = mulDivU256(amountB, uint256.NewInt(uint64(protocolFeeBips)), uint256.NewInt(100000))
	return fee, protocolFee
}

func mulDivU256(a, b, c *uint256.Int) *uint256.Int {
	ab := a.ToBig()
	ab.Mul(ab, b.ToBig())
	ab.Div(ab, c.ToBig())
	out, _ := uint256.FromBig(ab)
	return out
}

func neg(v *uint256.Int) *big.Int {
	return new(big.Int).Neg(v.ToBig())
}

func pos(v *uint256.Int) *big.Int {
	return new(big.Int).Set(v.ToBig())
}

// applySpotTrade mirrors the reference implementation's SpotTrade branch:
// scale both orders to their max fill given prior storage-slot fill, round
// both orders' sell amounts down to Float24, derive fees from the maker/taker protocol fee rates, and fill the A/B
// settlement slots.
func (e *TransactionExecutor) applySpotTrade(ctx *Context, s *txSlots, tx *SpotTrade) error {
	orderA, orderB := tx.OrderA, tx.OrderB

	filledA := e.State.GetFilled(orderA.AccountID, orderA.TokenS, orderA.StorageID)
	filledB := e.State.GetFilled(orderB.AccountID, orderB.TokenS, orderB.StorageID)

	accountA := e.State.GetAccount(orderA.AccountID)
	accountB := e.State.GetAccount(orderB.AccountID)
	balanceA := accountA.GetBalanceLeaf(orderA.TokenS).Balance
	balanceB := accountB.GetBalanceLeaf(orderB.TokenS).Balance

	ordA := toOrderbookOrder(orderA)
	ordB := toOrderbookOrder(orderB)

	fillA := orderbook.GetMaxFill(ordA, filledA, balanceA)
	fillB := orderbook.GetMaxFill(ordB, filledB, balanceB)

	var matchable bool
	if orderA.FillAmountBorS {
		fillA, fillB, _, matchable = orderbook.Match(ordA, fillA, ordB, fillB)
		fillA.S = fillB.B
	} else {
		fillB, fillA, _, matchable = orderbook.Match(ordB, fillB, ordA, fillA)
		fillA.B = fillB.S
	}

	ordA.CheckValid(ctx.Timestamp, fillA.S, fillA.B)
	ordB.CheckValid(ctx.Timestamp, fillB.S, fillB.B)
	ring := matchable && ordA.Valid && ordB.Valid
	if !ring {
		return xerrors.Precondition(-1, errRingNotMatchable)
	}

	roundedFillAS, err := floatcodec.RoundUint256(fillA.S, floatcodec.Float24)
	if err != nil {
		return xerrors.Precondition(-1, err)
	}
	roundedFillBS, err := floatcodec.RoundUint256(fillB.S, floatcodec.Float24)
	if err != nil {
		return xerrors.Precondition(-1, err)
	}
	fillA.S = roundedFillAS
	fillB.S = roundedFillBS
	fillA.B = fillB.S
	fillB.B = fillA.S

	feeA, protocolFeeA := calculateFees(fillA.B, orderA.FeeBips, ctx.ProtocolTakerFeeBips)
	feeB, protocolFeeB := calculateFees(fillB.B, orderB.FeeBips, ctx.ProtocolMakerFeeBips)

	orderA.FillS, orderA.FillB, orderA.Valid = fillA.S, fillA.B, ordA.Valid
	orderB.FillS, orderB.FillB, orderB.Valid = fillB.S, fillB.B, ordB.Valid

	s.signatureA = orderA.Signature
	s.signatureB = orderB.Signature

	s.accountAAddress = u64ptr(orderA.AccountID)
	s.balanceASAddress = u32ptr(orderA.TokenS)
	s.balanceASBalanceDelta = neg(fillA.S)

	s.balanceBSAddress = u32ptr(orderA.TokenB)
	s.balanceABBalanceDelta = new(big.Int).Sub(pos(fillA.B), pos(feeA))

	storageDataA := new(uint256.Int).Set(filledA)
	if orderA.FillAmountBorS {
		storageDataA.Add(storageDataA, fillA.B)
	} else {
		storageDataA.Add(storageDataA, fillA.S)
	}
	s.storageAData = storageDataA
	s.storageAStorageID = orderA.StorageID

	s.accountBAddress = u64ptr(orderB.AccountID)
	s.balanceBSAddress = u32ptr(orderB.TokenS)
	s.balanceBSBalanceDelta = neg(fillB.S)

	s.balanceASAddress = u32ptr(orderB.TokenB)
	s.balanceBBBalanceDelta = new(big.Int).Sub(pos(fillB.B), pos(feeB))

	storageDataB := new(uint256.Int).Set(filledB)
	if orderB.FillAmountBorS {
		storageDataB.Add(storageDataB, fillB.B)
	} else {
		storageDataB.Add(storageDataB, fillB.S)
	}
	s.storageBData = storageDataB
	s.storageBStorageID = orderB.StorageID

	s.balanceDeltaAO = new(big.Int).Sub(pos(feeA), pos(protocolFeeA))
	s.balanceDeltaBO = new(big.Int).Sub(pos(feeB), pos(protocolFeeB))
	s.balanceDeltaAP = pos(protocolFeeA)
	s.balanceDeltaBP = pos(protocolFeeB)
	return nil
}

func toOrderbookOrder(o *Order) *orderbook.Order {
	return &orderbook.Order{
		PublicKeyX: o.PublicKeyX, PublicKeyY: o.PublicKeyY,
		StorageID: o.StorageID, AccountID: o.AccountID,
		TokenS: o.TokenS, TokenB: o.TokenB,
		AmountS: o.AmountS, AmountB: o.AmountB,
		ValidUntil: o.ValidUntil, FillAmountBorS: o.FillAmountBorS,
		Taker: o.Taker, MaxFeeBips: o.MaxFeeBips, FeeBips: o.FeeBips, AMM: o.AMM,
	}
}

func (e *TransactionExecutor) applyTransfer(ctx *Context, s *txSlots, tx *Transfer) error {
	transferAmount, err := floatcodec.RoundUint256(tx.Amount, floatcodec.Float24)
	if err != nil {
		return xerrors.Malformed(-1, err)
	}
	feeValue, err := floatcodec.RoundUint256(tx.Fee, floatcodec.Float16)
	if err != nil {
		return xerrors.Malformed(-1, err)
	}

	s.signatureA = tx.Signature
	s.signatureB = tx.DualSignature

	s.accountAAddress = u64ptr(tx.FromAccountID)
	s.balanceASAddress = u32ptr(tx.TokenID)
	s.balanceASBalanceDelta = neg(transferAmount)

	s.balanceBSAddress = u32ptr(tx.FeeTokenID)
	s.balanceABBalanceDelta = neg(feeValue)

	accountB := e.State.GetAccount(tx.ToAccountID)
	s.accountBAddress = u64ptr(tx.ToAccountID)
	s.accountBOwner = addrptr(tx.To)

	s.balanceASAddress = u32ptr(tx.TokenID)
	s.balanceBBBalanceDelta = pos(transferAmount)

	s.storageAStorageID = tx.StorageID
	s.storageAData = uint256.NewInt(1)

	if tx.Type != 0 {
		ctx.NumConditionalTransactions++
	}
	s.balanceDeltaAO = pos(feeValue)

	tx.ToNewAccount = accountB.Owner == (common.Address{})
	return nil
}

func (e *TransactionExecutor) applyWithdraw(ctx *Context, s *txSlots, tx *Withdraw) error {
	account := e.State.GetAccount(tx.AccountID)

	switch tx.Type {
	case 2:
		tx.Amount = new(uint256.Int).Set(account.GetBalanceLeaf(tx.TokenID).Balance)
	case 3:
		tx.Amount = new(uint256.Int)
	}

	isProtocolFeeWithdrawal := tx.AccountID == 0

	feeValue, err := floatcodec.RoundUint256(tx.Fee, floatcodec.Float16)
	if err != nil {
		return xerrors.Malformed(-1, err)
	}

	s.signatureA = tx.Signature

	accountAID := tx.AccountID
	if isProtocolFeeWithdrawal {
		accountAID = 1
	}
	s.accountAAddress = u64ptr(accountAID)

	s.balanceASAddress = u32ptr(tx.TokenID)
	if isProtocolFeeWithdrawal {
		s.balanceASBalanceDelta = big.NewInt(0)
	} else {
		s.balanceASBalanceDelta = neg(tx.Amount)
	}

	s.balanceBSAddress = u32ptr(tx.FeeTokenID)
	s.balanceABBalanceDelta = neg(feeValue)

	if tx.Type == 0 || tx.Type == 1 {
		s.storageAData = uint256.NewInt(1)
		s.storageAStorageID = tx.StorageID
	}
	if !isProtocolFeeWithdrawal && tx.Type == 2 {
		s.balanceASWeight = new(uint256.Int)
	}

	s.balanceDeltaAO = pos(feeValue)
	if isProtocolFeeWithdrawal {
		s.balanceDeltaBP = neg(tx.Amount)
	} else {
		s.balanceDeltaBP = big.NewInt(0)
	}

	ctx.NumConditionalTransactions++
	return nil
}

func (e *TransactionExecutor) applyDeposit(ctx *Context, s *txSlots, tx *Deposit) error {
	s.accountAAddress = u64ptr(tx.AccountID)
	s.accountAOwner = addrptr(tx.Owner)

	s.balanceASAddress = u32ptr(tx.TokenID)
	s.balanceASBalanceDelta = pos(tx.Amount)

	ctx.NumConditionalTransactions++
	return nil
}

func (e *TransactionExecutor) applyAccountUpdate(ctx *Context, s *txSlots, tx *AccountUpdate) error {
	feeValue, err := floatcodec.RoundUint256(tx.Fee, floatcodec.Float16)
	if err != nil {
		return xerrors.Malformed(-1, err)
	}

	s.accountAAddress = u64ptr(tx.AccountID)
	s.accountAOwner = addrptr(tx.Owner)
	s.accountAPubKeyX = fptr(tx.PublicKeyX)
	s.accountAPubKeyY = fptr(tx.PublicKeyY)
	s.accountANonceDelta = 1

	s.balanceASAddress = u32ptr(tx.FeeTokenID)
	s.balanceASBalanceDelta = neg(feeValue)

	s.balanceDeltaBO = pos(feeValue)
	s.signatureA = tx.Signature

	if tx.Type != 0 {
		ctx.NumConditionalTransactions++
	}
	return nil
}

func (e *TransactionExecutor) applyAmmUpdate(ctx *Context, s *txSlots, tx *AmmUpdate) error {
	account := e.State.GetAccount(tx.AccountID)
	balanceLeaf := account.GetBalanceLeaf(tx.TokenID)
	tx.Balance = new(uint256.Int).Set(balanceLeaf.Balance)

	s.accountAAddress = u64ptr(tx.AccountID)
	s.balanceASAddress = u32ptr(tx.TokenID)

	s.accountANonceDelta = 1
	s.accountAFeeBipsAMM = u8ptr(tx.FeeBips)
	s.balanceASWeight = new(uint256.Int).Set(tx.TokenWeight)

	ctx.NumConditionalTransactions++
	return nil
}

// finalize default-fills every unset slot then performs the uniform Merkle
// update sequence: A's storage+balanceS, A's balanceB, A's account; B's
// storage+balanceS, B's balanceB, B's account; operator balances;
// protocol-fee balances.
func (e *TransactionExecutor) finalize(ctx *Context, s *txSlots) Witness {
	accountsMerkleRoot := e.State.Root()

	accountAAddress := valueOrU64(s.accountAAddress, state.DefaultAccountID)
	accountA := e.State.GetAccount(accountAAddress)

	balanceASAddress := valueOrU32(s.balanceASAddress, 0)
	balanceBSAddress := valueOrU32(s.balanceBSAddress, 0)

	storageAStorageID := s.storageAStorageID
	if storageAStorageID == nil {
		storageAStorageID = new(uint256.Int)
	}
	storageALeaf := accountA.GetBalanceLeaf(balanceASAddress).GetStorage(storageAStorageID)
	storageAData := s.storageAData
	if storageAData == nil {
		storageAData = new(uint256.Int).Set(storageALeaf.Data)
	}

	deltaAS := valueOrBig(s.balanceASBalanceDelta)
	deltaAB := valueOrBig(s.balanceABBalanceDelta)

	rootBefore := e.State.Root()
	accountBeforeA := accountA.Snapshot()
	proofA := e.State.CreateAccountProof(accountAAddress)

	balanceUpdateSA, storageUpdateA := accountA.UpdateBalanceAndStorage(
		balanceASAddress, storageAStorageID, storageAData, deltaAS, s.balanceASWeight,
	)
	balanceUpdateBA := accountA.UpdateBalance(balanceBSAddress, deltaAB, nil)

	if s.accountAOwner != nil {
		accountA.Owner = *s.accountAOwner
	}
	if s.accountAPubKeyX != nil {
		accountA.PubKeyX = *s.accountAPubKeyX
	}
	if s.accountAPubKeyY != nil {
		accountA.PubKeyY = *s.accountAPubKeyY
	}
	accountA.Nonce += s.accountANonceDelta
	if s.accountAFeeBipsAMM != nil {
		accountA.FeeBipsAMM = *s.accountAFeeBipsAMM
	}

	e.State.UpdateAccountTree(accountAAddress)
	rootAfter := e.State.Root()

	accountUpdateA := state.AccountUpdateData{
		AccountID:   accountAAddress,
		SiblingPath: proofA,
		RootBefore:  rootBefore,
		RootAfter:   rootAfter,
		LeafBefore:  accountBeforeA,
		LeafAfter:   accountA.Snapshot(),
	}

	accountBAddress := valueOrU64(s.accountBAddress, state.DefaultAccountID)
	accountB := e.State.GetAccount(accountBAddress)

	storageBStorageID := s.storageBStorageID
	if storageBStorageID == nil {
		storageBStorageID = new(uint256.Int)
	}
	storageBLeaf := accountB.GetBalanceLeaf(balanceBSAddress).GetStorage(storageBStorageID)
	storageBData := s.storageBData
	if storageBData == nil {
		storageBData = new(uint256.Int).Set(storageBLeaf.Data)
	}

	deltaBS := valueOrBig(s.balanceBSBalanceDelta)
	deltaBB := valueOrBig(s.balanceBBBalanceDelta)

	rootBeforeB := e.State.Root()
	accountBeforeB := accountB.Snapshot()
	proofB := e.State.CreateAccountProof(accountBAddress)

	balanceUpdateSB, storageUpdateB := accountB.UpdateBalanceAndStorage(
		balanceBSAddress, storageBStorageID, storageBData, deltaBS, nil,
	)
	balanceUpdateBB := accountB.UpdateBalance(balanceASAddress, deltaBB, nil)

	if s.accountBOwner != nil {
		accountB.Owner = *s.accountBOwner
	}
	if s.accountBPubKeyX != nil {
		accountB.PubKeyX = *s.accountBPubKeyX
	}
	if s.accountBPubKeyY != nil {
		accountB.PubKeyY = *s.accountBPubKeyY
	}
	accountB.Nonce += s.accountBNonceDelta

	e.State.UpdateAccountTree(accountBAddress)
	rootAfterB := e.State.Root()

	accountUpdateB := state.AccountUpdateData{
		AccountID:   accountBAddress,
		SiblingPath: proofB,
		RootBefore:  rootBeforeB,
		RootAfter:   rootAfterB,
		LeafBefore:  accountBeforeB,
		LeafAfter:   accountB.Snapshot(),
	}

	operatorID := ctx.OperatorAccountID
	accountO := e.State.GetAccount(operatorID)
	rootBeforeO := e.State.Root()
	accountBeforeO := accountO.Snapshot()
	proofO := e.State.CreateAccountProof(operatorID)

	balanceUpdateBO := accountO.UpdateBalance(balanceASAddress, valueOrBig(s.balanceDeltaBO), nil)
	balanceUpdateAO := accountO.UpdateBalance(balanceBSAddress, valueOrBig(s.balanceDeltaAO), nil)

	e.State.UpdateAccountTree(operatorID)
	rootAfterO := e.State.Root()

	accountUpdateO := state.AccountUpdateData{
		AccountID:   operatorID,
		SiblingPath: proofO,
		RootBefore:  rootBeforeO,
		RootAfter:   rootAfterO,
		LeafBefore:  accountBeforeO,
		LeafAfter:   accountO.Snapshot(),
	}

	protocolAccount := e.State.GetAccount(state.ProtocolFeeAccountID)
	balanceUpdateBP := protocolAccount.UpdateBalance(balanceASAddress, valueOrBig(s.balanceDeltaBP), nil)
	balanceUpdateAP := protocolAccount.UpdateBalance(balanceBSAddress, valueOrBig(s.balanceDeltaAP), nil)
	e.State.UpdateAccountTree(state.ProtocolFeeAccountID)

	return Witness{
		SignatureA: s.signatureA,
		SignatureB: s.signatureB,

		AccountsMerkleRoot: accountsMerkleRoot,

		StorageUpdateA: storageUpdateA,
		StorageUpdateB: storageUpdateB,

		BalanceUpdateSA: balanceUpdateSA,
		BalanceUpdateBA: balanceUpdateBA,
		AccountUpdateA:  accountUpdateA,

		BalanceUpdateSB: balanceUpdateSB,
		BalanceUpdateBB: balanceUpdateBB,
		AccountUpdateB:  accountUpdateB,

		BalanceUpdateAO: balanceUpdateAO,
		BalanceUpdateBO: balanceUpdateBO,
		AccountUpdateO:  accountUpdateO,

		BalanceUpdateAP: balanceUpdateAP,
		BalanceUpdateBP: balanceUpdateBP,

		NumConditionalTransactionsAfter: ctx.NumConditionalTransactions,
	}
}

func valueOrU64(v *uint64, def uint64) uint64 {
	if v == nil {
		return def
	}
	return *v
}

func valueOrU32(v *uint32, def uint32) uint32 {
	if v == nil {
		return def
	}
	return *v
}

func valueOrBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
