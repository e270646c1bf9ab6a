// Package executor normalizes every transaction type into a fixed set of
// slots (A, B, operator, protocol-fee) and performs a single fixed-order
// pass of Merkle updates against a state.State, producing a TxWitness per
// the reference executeTransaction. See SPEC_FULL.md §4.5.
package executor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/state"
)

// Context carries the per-block parameters every transaction handler reads:
// the operator account receiving trading/transfer/withdrawal fees, the
// block timestamp orders are checked against, and the protocol fee rates.
type Context struct {
	OperatorAccountID          uint64
	Timestamp                  uint32
	ProtocolTakerFeeBips       uint32
	ProtocolMakerFeeBips       uint32
	NumConditionalTransactions int
}

// Signature is an EdDSA signature's three field elements, or the zero
// signature for an unsigned (conditional) transaction.
type Signature struct {
	Rx field.F
	Ry field.F
	S  field.F
}

// TxInput is implemented by every concrete transaction type accepted by
// TransactionExecutor.Execute.
type TxInput interface {
	txType() string
}

// Noop performs no state change; used to pad a block to its target size.
type Noop struct{}

func (Noop) txType() string { return "Noop" }

// SpotTrade matches two orders against each other and settles the crossed
// amounts, minus trading fees, between the two order owners and the
// operator/protocol-fee accounts.
type SpotTrade struct {
	OrderA *Order
	OrderB *Order
}

func (SpotTrade) txType() string { return "SpotTrade" }

// Transfer moves Amount of TokenID from FromAccountID to ToAccountID,
// paying Fee of FeeTokenID to the operator. To is written as ToAccountID's
// owner on every transfer, which is how a first transfer to an unowned
// account gives it an owner.
type Transfer struct {
	FromAccountID uint64
	ToAccountID   uint64
	To            common.Address
	TokenID       uint32
	Amount        *uint256.Int
	FeeTokenID    uint32
	Fee           *uint256.Int
	StorageID     *uint256.Int
	Type          uint8
	Signature     *Signature
	DualSignature *Signature

	// ToNewAccount is filled in by Execute for DA/test reporting: it records
	// whether ToAccountID's owner was the zero address before this transfer.
	ToNewAccount bool
}

func (Transfer) txType() string { return "Transfer" }

// Withdraw types per SPEC_FULL.md §4.5: 0/1 ordinary (amount fixed by the
// caller), 2 full-balance, 3 forced-zero (used to close a dusted account).
type Withdraw struct {
	AccountID  uint64
	TokenID    uint32
	Amount     *uint256.Int
	FeeTokenID uint32
	Fee        *uint256.Int
	StorageID  *uint256.Int
	Type       uint8
	Signature  *Signature
}

func (Withdraw) txType() string { return "Withdraw" }

// Deposit credits Amount of TokenID to AccountID and writes Owner as the
// account's owner (on every deposit, not only for a new account). Deposits
// are always conditional (on an L1 event).
type Deposit struct {
	AccountID uint64
	Owner     common.Address
	TokenID   uint32
	Amount    *uint256.Int
}

func (Deposit) txType() string { return "Deposit" }

// AccountUpdate rotates an account's signing key and writes Owner as its
// owner, bumping its nonce by one and paying Fee to the operator.
type AccountUpdate struct {
	AccountID  uint64
	Owner      common.Address
	PublicKeyX field.F
	PublicKeyY field.F
	FeeTokenID uint32
	Fee        *uint256.Int
	Type       uint8
	Signature  *Signature
}

func (AccountUpdate) txType() string { return "AccountUpdate" }

// AmmUpdate exposes an AMM pool account's current TokenID balance and
// updates its weight/fee parameters without moving funds.
type AmmUpdate struct {
	AccountID   uint64
	TokenID     uint32
	FeeBips     uint8
	TokenWeight *uint256.Int

	// Balance is filled in by Execute for DA/test reporting: the account's
	// TokenID balance as observed before this update.
	Balance *uint256.Int
}

func (AmmUpdate) txType() string { return "AmmUpdate" }

// SignatureVerification is a no-balance-effect transaction that only proves
// possession of AccountID's signing key, consuming one of its nonces'
// worth of circuit budget without an on-chain nonce bump.
type SignatureVerification struct {
	AccountID uint64
	Signature *Signature
}

func (SignatureVerification) txType() string { return "SignatureVerification" }

// Order is a single side of a SpotTrade. See orderbook.Order for the
// matching logic that operates on it; the executor only reads the fields it
// needs to produce settlement deltas.
type Order struct {
	PublicKeyX field.F
	PublicKeyY field.F

	StorageID *uint256.Int
	AccountID uint64

	TokenS uint32
	TokenB uint32

	AmountS *uint256.Int
	AmountB *uint256.Int

	ValidUntil     uint32
	FillAmountBorS bool
	Taker          uint64
	MaxFeeBips     uint16
	FeeBips        uint16
	AMM            bool

	Signature *Signature

	// Valid, FillS, FillB are filled in by Execute for DA/test reporting.
	Valid bool
	FillS *uint256.Int
	FillB *uint256.Int
}

// Witness is the full set of Merkle witnesses produced for one transaction,
// mirroring the reference implementation's Witness class field-for-field.
type Witness struct {
	SignatureA *Signature
	SignatureB *Signature

	AccountsMerkleRoot field.F

	StorageUpdateA state.StorageUpdateData
	StorageUpdateB state.StorageUpdateData

	BalanceUpdateSA state.BalanceUpdateData
	BalanceUpdateBA state.BalanceUpdateData
	AccountUpdateA  state.AccountUpdateData

	BalanceUpdateSB state.BalanceUpdateData
	BalanceUpdateBB state.BalanceUpdateData
	AccountUpdateB  state.AccountUpdateData

	BalanceUpdateAO state.BalanceUpdateData
	BalanceUpdateBO state.BalanceUpdateData
	AccountUpdateO  state.AccountUpdateData

	BalanceUpdateAP state.BalanceUpdateData
	BalanceUpdateBP state.BalanceUpdateData

	// NumConditionalTransactionsAfter is ctx.NumConditionalTransactions as
	// observed immediately after this transaction's handler ran: the running
	// count of conditional (L1-event-gated) transactions seen so far in the
	// block, attached to every witness so a caller can check it against the
	// block's declared total without re-deriving it from the tx stream.
	NumConditionalTransactionsAfter int
}

// TxWitness pairs the produced Witness with the TxInput that generated it.
type TxWitness struct {
	Witness Witness
	Input   TxInput
}
