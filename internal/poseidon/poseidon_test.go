package poseidon

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loopnode/dex-rollup-state/internal/field"
)

func TestHashStorageDeterministic(t *testing.T) {
	a := field.FromUint64(10)
	b := field.FromUint64(20)
	require.True(t, HashStorage(a, b).Equal(HashStorage(a, b)))
}

func TestHashStorageSensitiveToOrder(t *testing.T) {
	a := field.FromUint64(10)
	b := field.FromUint64(20)
	require.False(t, HashStorage(a, b).Equal(HashStorage(b, a)))
}

func TestHashBalanceDistinctArityFromStorage(t *testing.T) {
	a := field.FromUint64(1)
	b := field.FromUint64(2)
	c := field.FromUint64(3)
	require.False(t, HashStorage(a, b).Equal(HashBalance(a, b, c)))
}

func TestHashAccountTakesSixInputs(t *testing.T) {
	inputs := make([]field.F, 6)
	for i := range inputs {
		inputs[i] = field.FromUint64(uint64(i + 1))
	}
	h1 := HashAccount(inputs[0], inputs[1], inputs[2], inputs[3], inputs[4], inputs[5])
	inputs[5] = field.FromUint64(999)
	h2 := HashAccount(inputs[0], inputs[1], inputs[2], inputs[3], inputs[4], inputs[5])
	require.False(t, h1.Equal(h2), "changing the balancesRoot input must change the account hash")
}

func TestHashNodeArityMatchesChildCount(t *testing.T) {
	children := []field.F{field.FromUint64(1), field.FromUint64(2), field.FromUint64(3), field.FromUint64(4)}
	h := HashNode(children)
	require.False(t, h.IsZero())
}

func TestPermutationCachedPerWidth(t *testing.T) {
	p1 := forWidth(3)
	p2 := forWidth(3)
	require.Same(t, p1, p2, "repeated requests for the same width must reuse the cached permutation")
}
