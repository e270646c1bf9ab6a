// Package poseidon implements the Poseidon permutation over the BN254
// scalar field and exposes the three fixed-arity hash oracles the engine
// needs: H_storage (arity 2), H_balance (arity 3), H_account (arity 6), and
// the 4-ary Merkle node hash used by every SparseMerkleTree. Per SPEC_FULL.md
// §14 this is a self-consistent oracle, not a bit-compatible reimplementation
// of any production verifier's parameter set — the zk circuit itself is out
// of scope for this engine.
package poseidon

import (
	"crypto/sha256"
	"encoding/binary"
	"math/big"

	"github.com/loopnode/dex-rollup-state/internal/field"
)

const (
	fullRounds    = 8 // 4 at the start, 4 at the end
	partialRounds = 57
	sboxAlpha     = 5
)

// permutation holds the round constants and MDS matrix for one fixed state
// width t. Construction is deterministic given t, so two permutation values
// for the same t always agree.
type permutation struct {
	t        int
	rounds   int
	constants [][]field.F // [round][t]
	mds      [][]field.F // [t][t]
}

var cache = map[int]*permutation{}

func forWidth(t int) *permutation {
	if p, ok := cache[t]; ok {
		return p
	}
	p := &permutation{
		t:      t,
		rounds: fullRounds + partialRounds,
	}
	p.constants = generateConstants(t, p.rounds)
	p.mds = generateMDS(t)
	cache[t] = p
	return p
}

// generateConstants derives round constants deterministically from a fixed
// domain-separated seed, so the oracle is reproducible across processes
// without shipping a parameter table.
func generateConstants(t, rounds int) [][]field.F {
	out := make([][]field.F, rounds)
	counter := uint64(0)
	next := func() field.F {
		var buf [16]byte
		copy(buf[:8], []byte("poseidon"))
		binary.BigEndian.PutUint64(buf[8:], counter)
		counter++
		h := sha256.Sum256(buf[:])
		i := new(big.Int).SetBytes(h[:])
		i.Mod(i, field.Modulus())
		return field.FromBigInt(i)
	}
	for r := 0; r < rounds; r++ {
		row := make([]field.F, t)
		for i := 0; i < t; i++ {
			row[i] = next()
		}
		out[r] = row
	}
	return out
}

// generateMDS builds a Cauchy matrix M[i][j] = 1/(x_i - y_j) over two
// disjoint deterministic sequences, the standard construction guaranteeing
// the maximum-distance-separable property required for Poseidon's linear
// layer.
func generateMDS(t int) [][]field.F {
	xs := make([]field.F, t)
	ys := make([]field.F, t)
	for i := 0; i < t; i++ {
		xs[i] = field.FromUint64(uint64(i))
		ys[i] = field.FromUint64(uint64(t + i))
	}
	m := make([][]field.F, t)
	for i := 0; i < t; i++ {
		m[i] = make([]field.F, t)
		for j := 0; j < t; j++ {
			diff := xs[i].Sub(ys[j])
			m[i][j] = inverse(diff)
		}
	}
	return m
}

func inverse(f field.F) field.F {
	b := f.BigInt()
	inv := new(big.Int).ModInverse(b, field.Modulus())
	if inv == nil {
		panic("poseidon: non-invertible MDS entry, adjust generateMDS sequences")
	}
	return field.FromBigInt(inv)
}

func sbox(f field.F) field.F {
	sq := f.Mul(f)
	qd := sq.Mul(sq)
	return qd.Mul(f)
}

// permute runs the full Poseidon permutation in place over state.
func (p *permutation) permute(state []field.F) {
	half := fullRounds / 2
	for r := 0; r < p.rounds; r++ {
		for i := range state {
			state[i] = state[i].Add(p.constants[r][i])
		}
		if r < half || r >= p.rounds-half {
			for i := range state {
				state[i] = sbox(state[i])
			}
		} else {
			state[0] = sbox(state[0])
		}
		copy(state, mdsMul(p.mds, state))
	}
}

func mdsMul(m [][]field.F, state []field.F) []field.F {
	t := len(state)
	out := make([]field.F, t)
	for i := 0; i < t; i++ {
		acc := field.Zero()
		for j := 0; j < t; j++ {
			acc = acc.Add(m[i][j].Mul(state[j]))
		}
		out[i] = acc
	}
	return out
}

// HashN hashes an arbitrary fixed-arity input vector with capacity 1: the
// sponge state width is len(inputs)+1, element 0 is a zero capacity element
// followed by the inputs, and element 0 of the final state is the digest.
func HashN(inputs []field.F) field.F {
	t := len(inputs) + 1
	p := forWidth(t)
	state := make([]field.F, t)
	state[0] = field.Zero() // capacity
	copy(state[1:], inputs)
	p.permute(state)
	return state[0]
}

// HashStorage implements H_storage : F^2 -> F.
func HashStorage(data, storageID field.F) field.F {
	return HashN([]field.F{data, storageID})
}

// HashBalance implements H_balance : F^3 -> F.
func HashBalance(balance, weightAMM, storageRoot field.F) field.F {
	return HashN([]field.F{balance, weightAMM, storageRoot})
}

// HashAccount implements H_account : F^6 -> F.
func HashAccount(owner, pubKeyX, pubKeyY, nonce, feeBipsAMM, balancesRoot field.F) field.F {
	return HashN([]field.F{owner, pubKeyX, pubKeyY, nonce, feeBipsAMM, balancesRoot})
}

// HashNode hashes the k children of one SparseMerkleTree internal node.
func HashNode(children []field.F) field.F {
	return HashN(children)
}
