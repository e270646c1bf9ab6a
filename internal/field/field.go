// Package field implements arithmetic in the SNARK scalar field F = Z/P,
// the field every hash, leaf value, and Merkle root in this engine lives in.
package field

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// F is an element of the BN254 scalar field, stored in fr.Element's native
// Montgomery representation so Add/Mul/Sub never leave the field's internal
// reduced form.
type F struct {
	v fr.Element
}

// Modulus returns the field's prime modulus P.
func Modulus() *big.Int {
	return fr.Modulus()
}

// Zero returns the additive identity.
func Zero() F { return F{} }

// One returns the multiplicative identity.
func One() F {
	var f F
	f.v.SetOne()
	return f
}

// FromUint64 embeds a native integer into F.
func FromUint64(x uint64) F {
	var f F
	f.v.SetUint64(x)
	return f
}

// FromBigInt reduces an arbitrary non-negative big.Int modulo P.
func FromBigInt(x *big.Int) F {
	var f F
	f.v.SetBigInt(x)
	return f
}

// MustFromDecimalString parses a base-10 string, panicking on malformed
// input. Used for literal constants only; external input must go through
// FromDecimalString.
func MustFromDecimalString(s string) F {
	f, err := FromDecimalString(s)
	if err != nil {
		panic(err)
	}
	return f
}

// FromDecimalString parses a base-10 integer string into F.
func FromDecimalString(s string) (F, error) {
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return F{}, fmt.Errorf("field: invalid decimal string %q", s)
	}
	return FromBigInt(i), nil
}

// BigInt returns the canonical (non-Montgomery) representative in [0, P).
func (f F) BigInt() *big.Int {
	var out big.Int
	f.v.BigInt(&out)
	return &out
}

// String renders the canonical decimal representation, matching the
// reference implementation's convention of stringifying field elements for
// JSON witness output.
func (f F) String() string {
	return f.BigInt().String()
}

// Add returns f + g.
func (f F) Add(g F) F {
	var out F
	out.v.Add(&f.v, &g.v)
	return out
}

// Sub returns f - g.
func (f F) Sub(g F) F {
	var out F
	out.v.Sub(&f.v, &g.v)
	return out
}

// Mul returns f * g.
func (f F) Mul(g F) F {
	var out F
	out.v.Mul(&f.v, &g.v)
	return out
}

// Equal reports whether f and g are the same field element.
func (f F) Equal(g F) bool {
	return f.v.Equal(&g.v)
}

// IsZero reports whether f is the additive identity.
func (f F) IsZero() bool {
	return f.v.IsZero()
}

// Bytes returns the 32-byte big-endian canonical encoding.
func (f F) Bytes() [32]byte {
	return f.v.Bytes()
}

// FromBytes decodes a 32-byte big-endian encoding produced by Bytes.
func FromBytes(b [32]byte) F {
	var f F
	f.v.SetBytes(b[:])
	return f
}

// MarshalJSON encodes F as a decimal string, matching the witness JSON
// contract's "numeric fields are decimal strings" rule (§6.1).
func (f F) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.String())
}

// UnmarshalJSON decodes a decimal string produced by MarshalJSON.
func (f *F) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := FromDecimalString(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
