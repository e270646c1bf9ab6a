// Package block implements BlockBuilder: it drives a fixed-order sequence
// of transactions through a TransactionExecutor and seals them into the
// Block the chain ultimately commits. The protocol-fee and operator
// accounts change only through each transaction's own witness pass; Seal
// applies no separate end-of-block update (no delta update, no nonce bump)
// to either account and the Block carries no account-update witness for
// them. Grounded on the reference implementation's top-level driver scripts
// (create_block.py), generalized here to run against the uniform TxWitness
// produced by executor.TransactionExecutor instead of hand-building each
// field.
package block

import (
	"github.com/bits-and-blooms/bitset"

	"github.com/loopnode/dex-rollup-state/executor"
	"github.com/loopnode/dex-rollup-state/internal/field"
	"github.com/loopnode/dex-rollup-state/internal/xerrors"
	"github.com/loopnode/dex-rollup-state/state"
)

// Header carries the block-level parameters every transaction in the block
// shares.
type Header struct {
	ExchangeID           uint32
	Timestamp            uint32
	ProtocolTakerFeeBips uint32
	ProtocolMakerFeeBips uint32
	OperatorAccountID    uint64
}

// Block is the sealed output of a BlockBuilder run: the Merkle root before
// and after the whole transaction sequence, and the per-transaction
// witnesses the prover circuit consumes.
type Block struct {
	Header Header

	MerkleRootBefore field.F
	MerkleRootAfter  field.F

	Transactions []executor.TxWitness

	// TouchedAccounts records every accountID written to by this block, for
	// callers that only need a compact change set (e.g. a DA diff) rather
	// than the full witness list.
	TouchedAccounts *bitset.BitSet
}

// Builder accumulates transactions into a Block against a live state.State.
// A Builder is single-use: call Seal once no more transactions will be
// added.
type Builder struct {
	header  Header
	exec    *executor.TransactionExecutor
	ctx     *executor.Context
	rootBefore field.F
	txs     []executor.TxWitness
	touched *bitset.BitSet
}

// NewBuilder starts a block against st, which is mutated in place as
// transactions are added.
func NewBuilder(st *state.State, header Header) *Builder {
	return &Builder{
		header:     header,
		exec:       executor.New(st),
		rootBefore: st.Root(),
		touched:    bitset.New(0),
		ctx: &executor.Context{
			OperatorAccountID:    header.OperatorAccountID,
			Timestamp:            header.Timestamp,
			ProtocolTakerFeeBips: header.ProtocolTakerFeeBips,
			ProtocolMakerFeeBips: header.ProtocolMakerFeeBips,
		},
	}
}

// Add executes one transaction and appends its witness to the block.
// A SpotTrade whose precondition fails (ErrPrecondition) is absorbed
// silently — per SPEC_FULL.md §7, only this transaction type tolerates
// rejection by dropping it rather than failing the whole block. Every other
// error kind, and every other transaction type's error, is returned to the
// caller and the block is not committed further.
func (b *Builder) Add(tx executor.TxInput) error {
	idx := len(b.txs)
	w, err := b.exec.Execute(b.ctx, tx)
	if err != nil {
		_, isSpotTrade := tx.(*executor.SpotTrade)
		if be, ok := err.(*xerrors.BlockError); ok {
			if isSpotTrade && be.Is(xerrors.ErrPrecondition) {
				return nil
			}
			be.TxIndex = idx
			return be
		}
		return xerrors.Malformed(idx, err)
	}

	b.touch(w.Witness.AccountUpdateA.AccountID)
	b.touch(w.Witness.AccountUpdateB.AccountID)
	b.touched.Set(uint(b.header.OperatorAccountID))
	b.touched.Set(uint(state.ProtocolFeeAccountID))

	b.txs = append(b.txs, w)
	return nil
}

func (b *Builder) touch(accountID uint64) {
	b.touched.Set(uint(accountID))
}

// Size returns the number of transactions added so far.
func (b *Builder) Size() int { return len(b.txs) }

// Seal pads the block to size with Noop transactions (if it has fewer than
// size) and returns the completed Block; no account is updated after the
// padding. size must be >= the number of transactions already added.
func (b *Builder) Seal(size int) (*Block, error) {
	for len(b.txs) < size {
		if err := b.Add(executor.Noop{}); err != nil {
			return nil, err
		}
	}

	return &Block{
		Header:           b.header,
		MerkleRootBefore: b.rootBefore,
		MerkleRootAfter:  b.exec.State.Root(),
		Transactions:     b.txs,
		TouchedAccounts:  b.touched,
	}, nil
}
