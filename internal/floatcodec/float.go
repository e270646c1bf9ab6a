// Package floatcodec implements the lossy, round-down mantissa/exponent
// encoding used for amounts that enter the on-chain DA bytes (SPEC_FULL.md
// §4.2). Encoding is base-10: the smallest exponent whose mantissa range
// covers the value, with the mantissa rounded down so that
// mantissa * base^exponent <= value.
package floatcodec

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
)

// Encoding describes one fixed-width float format.
type Encoding struct {
	Name             string
	NumBitsExponent  uint
	NumBitsMantissa  uint
	Base             uint64
}

var (
	// Float24 is used for trade and transfer amounts (5,19).
	Float24 = Encoding{Name: "Float24", NumBitsExponent: 5, NumBitsMantissa: 19, Base: 10}
	// Float16 is used for fees (5,11).
	Float16 = Encoding{Name: "Float16", NumBitsExponent: 5, NumBitsMantissa: 11, Base: 10}
	// Float12 is used where an even smaller encoding is sufficient (5,7).
	Float12 = Encoding{Name: "Float12", NumBitsExponent: 5, NumBitsMantissa: 7, Base: 10}
)

func pow(base uint64, exp uint64) *big.Int {
	return new(big.Int).Exp(big.NewInt(int64(base)), big.NewInt(int64(exp)), nil)
}

// maxMantissa returns 2^NumBitsMantissa - 1.
func (e Encoding) maxMantissa() *big.Int {
	return new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), e.NumBitsMantissa), big.NewInt(1))
}

// maxExponentPower returns 2^NumBitsExponent - 1, the largest representable
// exponent value.
func (e Encoding) maxExponentPower() uint64 {
	return (uint64(1) << e.NumBitsExponent) - 1
}

// MaxValue is the largest value this encoding can represent without loss of
// the round-down guarantee (mantissa capped and base^maxExponent applied).
func (e Encoding) MaxValue() *big.Int {
	maxExp := pow(e.Base, e.maxExponentPower())
	return new(big.Int).Mul(e.maxMantissa(), maxExp)
}

// Encoded is the packed (exponent<<mantissaBits | mantissa) representation.
type Encoded uint32

// ToFloat picks the smallest exponent e with maxMantissa * base^e >= value
// and sets mantissa = floor(value / base^e). The result rounds DOWN
// (fromFloat(e,m) <= value) and keeps as many significant digits as the
// mantissa width allows.
func ToFloat(value *big.Int, enc Encoding) (Encoded, error) {
	if value.Sign() < 0 {
		return 0, fmt.Errorf("floatcodec: %s: negative value %s", enc.Name, value)
	}
	maxMantissa := enc.maxMantissa()
	maxValue := enc.MaxValue()
	if value.Cmp(maxValue) > 0 {
		return 0, fmt.Errorf("floatcodec: %s: value %s exceeds max representable %s", enc.Name, value, maxValue)
	}

	if value.Sign() == 0 {
		return 0, nil
	}

	base := new(big.Int).SetUint64(enc.Base)
	exponent := uint64(0)
	divisor := new(big.Int).Set(maxMantissa)
	if divisor.Sign() == 0 {
		divisor.SetInt64(1)
	}
	r := new(big.Int).Div(value, divisor)
	d := big.NewInt(1)
	for r.Cmp(base) >= 0 || new(big.Int).Mul(d, maxMantissa).Cmp(value) < 0 {
		r.Div(r, base)
		exponent++
		d.Mul(d, base)
	}
	mantissa := new(big.Int).Div(value, d)

	if exponent > enc.maxExponentPower() {
		return 0, fmt.Errorf("floatcodec: %s: exponent %d too large", enc.Name, exponent)
	}
	if mantissa.Cmp(maxMantissa) > 0 {
		return 0, fmt.Errorf("floatcodec: %s: mantissa %s too large", enc.Name, mantissa)
	}

	encoded := (exponent << enc.NumBitsMantissa) | mantissa.Uint64()
	return Encoded(encoded), nil
}

// FromFloat decodes an encoded float back into its exact integer value
// mantissa * base^exponent.
func FromFloat(f Encoded, enc Encoding) *big.Int {
	exponent := uint64(f) >> enc.NumBitsMantissa
	mantissaMask := (uint64(1) << enc.NumBitsMantissa) - 1
	mantissa := uint64(f) & mantissaMask
	value := new(big.Int).Mul(big.NewInt(int64(mantissa)), pow(enc.Base, exponent))
	return value
}

// Round implements round(x) = fromFloat(toFloat(x)): round(x) <= x always,
// and round is idempotent.
func Round(value *big.Int, enc Encoding) (*big.Int, error) {
	f, err := ToFloat(value, enc)
	if err != nil {
		return nil, err
	}
	return FromFloat(f, enc), nil
}

// RoundUint256 is the holiman/uint256 convenience wrapper used throughout
// the executor, where amounts are carried as uint256.Int.
func RoundUint256(value *uint256.Int, enc Encoding) (*uint256.Int, error) {
	rounded, err := Round(value.ToBig(), enc)
	if err != nil {
		return nil, err
	}
	out, overflow := uint256.FromBig(rounded)
	if overflow {
		return nil, fmt.Errorf("floatcodec: %s: rounded value %s overflows uint256", enc.Name, rounded)
	}
	return out, nil
}
