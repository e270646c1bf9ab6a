package field

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestZeroOneIdentities(t *testing.T) {
	a := FromUint64(42)
	require.True(t, a.Add(Zero()).Equal(a))
	require.True(t, a.Mul(One()).Equal(a))
	require.True(t, Zero().IsZero())
	require.False(t, One().IsZero())
}

func TestAddSubRoundTrip(t *testing.T) {
	a := FromUint64(123456789)
	b := FromUint64(987654321)
	require.True(t, a.Add(b).Sub(b).Equal(a))
}

func TestModulusWraps(t *testing.T) {
	p := Modulus()
	wrapped := FromBigInt(p)
	require.True(t, wrapped.IsZero(), "a value equal to the modulus must reduce to zero")
}

func TestDecimalStringRoundTrip(t *testing.T) {
	s := "123456789012345678901234567890"
	f, err := FromDecimalString(s)
	require.NoError(t, err)
	require.Equal(t, s, f.String())
}

func TestFromDecimalStringRejectsGarbage(t *testing.T) {
	_, err := FromDecimalString("not-a-number")
	require.Error(t, err)
}

func TestBytesRoundTrip(t *testing.T) {
	f := MustFromDecimalString("918273645918273645")
	b := f.Bytes()
	require.True(t, FromBytes(b).Equal(f))
}

func TestJSONRoundTrip(t *testing.T) {
	f := FromUint64(7)
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.Equal(t, `"7"`, string(data))

	var out F
	require.NoError(t, json.Unmarshal(data, &out))
	require.True(t, out.Equal(f))
}

func TestBigIntRoundTrip(t *testing.T) {
	x := big.NewInt(918273)
	f := FromBigInt(x)
	require.Equal(t, x, f.BigInt())
}
