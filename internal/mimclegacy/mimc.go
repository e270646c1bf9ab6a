// Package mimclegacy implements the deprecated MiMC-based binary hash
// oracle referenced in SPEC_FULL.md §6.4 ("MiMC (legacy): used for the
// deprecated 2-ary SMT"). It is not wired into the live engine — the
// current recommended configuration is Poseidon with fan-out 4 throughout
// (internal/poseidon) — but it is kept available so a caller reconstructing
// a historical 2-ary tree snapshot can still verify it.
package mimclegacy

import (
	bn254mimc "github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"github.com/loopnode/dex-rollup-state/internal/field"
)

// HashBinary computes a two-child node hash by writing both children's
// canonical 32-byte encodings, left then right, into a fresh gnark-crypto
// BN254 MiMC hasher and reading its sum. The hasher is used with its default
// initial state; no iv=1 seeding is applied.
func HashBinary(left, right field.F) field.F {
	h := bn254mimc.NewMiMC()
	lb := left.Bytes()
	rb := right.Bytes()
	h.Write(lb[:])
	h.Write(rb[:])
	sum := h.Sum(nil)
	var out [32]byte
	copy(out[:], sum)
	return field.FromBytes(out)
}
