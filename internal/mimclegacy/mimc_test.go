package mimclegacy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopnode/dex-rollup-state/internal/field"
)

func TestHashBinaryDeterministic(t *testing.T) {
	a := field.FromUint64(1)
	b := field.FromUint64(2)
	require.True(t, HashBinary(a, b).Equal(HashBinary(a, b)))
}

func TestHashBinarySensitiveToOrder(t *testing.T) {
	a := field.FromUint64(1)
	b := field.FromUint64(2)
	require.False(t, HashBinary(a, b).Equal(HashBinary(b, a)))
}

func TestHashBinarySensitiveToInput(t *testing.T) {
	a := field.FromUint64(1)
	b := field.FromUint64(2)
	c := field.FromUint64(3)
	require.False(t, HashBinary(a, b).Equal(HashBinary(a, c)))
}
