// Package dacodec implements the canonical data-availability byte encoding
// for a sealed block: a fixed-width, big-endian concatenation of each
// transaction's externally-visible fields, the format an on-chain verifier
// would hash and compare against the block's DA commitment. Grounded on
// go-ethereum's rlp package's canonical big-endian uint encoding
// conventions (rlp.AppendUint64 et al.), used here directly rather than via
// full RLP framing since the DA layout is fixed-width, not length-prefixed.
package dacodec

import (
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/loopnode/dex-rollup-state/executor"
)

// txTypeTag is the one-byte discriminator written before every
// transaction's payload, in the same relative order as the reference
// implementation's txType strings.
type txTypeTag byte

const (
	tagNoop txTypeTag = iota
	tagSpotTrade
	tagTransfer
	tagWithdraw
	tagDeposit
	tagAccountUpdate
	tagAmmUpdate
	tagSignatureVerification
)

// EncodeBlock renders every transaction's witness input as canonical DA
// bytes, in the order they appear in the block.
func EncodeBlock(txs []executor.TxWitness) ([]byte, error) {
	var out []byte
	for i, tx := range txs {
		b, err := EncodeTx(tx.Input)
		if err != nil {
			return nil, fmt.Errorf("dacodec: tx %d: %w", i, err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// EncodeTx renders one transaction's DA payload: a type tag followed by its
// externally-visible fields, in the reference implementation's source
// order, each integer field written big-endian-padded to the field's byte
// width (accountIDs as uint40, tokenIDs as uint16, amounts as Float24/
// Float16-rounded uint32, per SPEC_FULL.md §12).
func EncodeTx(tx executor.TxInput) ([]byte, error) {
	switch t := tx.(type) {
	case executor.Noop:
		return []byte{byte(tagNoop)}, nil
	case *executor.Transfer:
		buf := make([]byte, 0, 1+5+5+20+2+2+4+4+8+1)
		buf = append(buf, byte(tagTransfer))
		buf = appendUint40(buf, t.FromAccountID)
		buf = appendUint40(buf, t.ToAccountID)
		buf = append(buf, t.To.Bytes()...)
		buf = appendUint16(buf, uint16(t.TokenID))
		buf = appendUint16(buf, uint16(t.FeeTokenID))
		buf = appendUint256AsUint32(buf, t.Amount)
		buf = appendUint256AsUint32(buf, t.Fee)
		buf = appendUint64(buf, t.StorageID.Uint64())
		buf = append(buf, t.Type)
		return buf, nil
	case *executor.Withdraw:
		buf := make([]byte, 0, 1+5+2+2+4+4+8+1)
		buf = append(buf, byte(tagWithdraw))
		buf = appendUint40(buf, t.AccountID)
		buf = appendUint16(buf, uint16(t.TokenID))
		buf = appendUint16(buf, uint16(t.FeeTokenID))
		buf = appendUint256AsUint32(buf, t.Amount)
		buf = appendUint256AsUint32(buf, t.Fee)
		buf = appendUint64(buf, t.StorageID.Uint64())
		buf = append(buf, t.Type)
		return buf, nil
	case *executor.Deposit:
		buf := make([]byte, 0, 1+5+20+2+12)
		buf = append(buf, byte(tagDeposit))
		buf = appendUint40(buf, t.AccountID)
		buf = append(buf, t.Owner.Bytes()...)
		buf = appendUint16(buf, uint16(t.TokenID))
		buf = appendUint96(buf, t.Amount)
		return buf, nil
	case *executor.AccountUpdate:
		buf := make([]byte, 0, 1+5+20+64+2+4+1)
		buf = append(buf, byte(tagAccountUpdate))
		buf = appendUint40(buf, t.AccountID)
		buf = append(buf, t.Owner.Bytes()...)
		pkX := t.PublicKeyX.Bytes()
		pkY := t.PublicKeyY.Bytes()
		buf = append(buf, pkX[:]...)
		buf = append(buf, pkY[:]...)
		buf = appendUint16(buf, uint16(t.FeeTokenID))
		buf = appendUint256AsUint32(buf, t.Fee)
		buf = append(buf, t.Type)
		return buf, nil
	case *executor.AmmUpdate:
		buf := make([]byte, 0, 1+5+2+1+12)
		buf = append(buf, byte(tagAmmUpdate))
		buf = appendUint40(buf, t.AccountID)
		buf = appendUint16(buf, uint16(t.TokenID))
		buf = append(buf, t.FeeBips)
		buf = appendUint96(buf, t.TokenWeight)
		return buf, nil
	case *executor.SpotTrade:
		buf := make([]byte, 0, 1+2*(5+2+2+4+4+8+2))
		buf = append(buf, byte(tagSpotTrade))
		buf = encodeOrderFill(buf, t.OrderA)
		buf = encodeOrderFill(buf, t.OrderB)
		return buf, nil
	case *executor.SignatureVerification:
		buf := make([]byte, 0, 1+5)
		buf = append(buf, byte(tagSignatureVerification))
		buf = appendUint40(buf, t.AccountID)
		return buf, nil
	default:
		return nil, fmt.Errorf("dacodec: unknown tx input type %T", t)
	}
}

func encodeOrderFill(buf []byte, o *executor.Order) []byte {
	buf = appendUint40(buf, o.AccountID)
	buf = appendUint16(buf, uint16(o.TokenS))
	buf = appendUint16(buf, uint16(o.TokenB))
	buf = appendUint256AsUint32(buf, o.FillS)
	buf = appendUint256AsUint32(buf, o.FillB)
	buf = appendUint64(buf, o.StorageID.Uint64())
	buf = appendUint16(buf, o.FeeBips)
	return buf
}

func appendUint16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint40(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[3:]...)
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendUint256AsUint32(buf []byte, v *uint256.Int) []byte {
	var tmp [4]byte
	var u64 uint64
	if v != nil {
		u64 = v.Uint64()
	}
	binary.BigEndian.PutUint32(tmp[:], uint32(u64))
	return append(buf, tmp[:]...)
}

func appendUint96(buf []byte, v *uint256.Int) []byte {
	if v == nil {
		v = new(uint256.Int)
	}
	b := v.Bytes32()
	return append(buf, b[20:]...)
}
