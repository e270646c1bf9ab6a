// Package smt implements the depth-D, fan-out-k sparse Merkle tree
// (SPEC_FULL.md §4.3): an authenticated map keyed by an integer in
// [0, k^D), content-addressed by hash so branch sharing across updates is
// automatic and the node table never prunes.
package smt

import (
	"fmt"

	"github.com/loopnode/dex-rollup-state/internal/field"
)

// Hasher combines k child hashes into one parent hash.
type Hasher func(children []field.F) field.F

// Tree is a sparse Merkle tree of fixed depth and fan-out, represented as a
// content-addressed table mapping a node's hash to its k children.
type Tree struct {
	Depth  int
	Fanout int
	hasher Hasher
	nodes  map[string][]field.F
	root   field.F

	numBits int
}

// New allocates an all-default tree: every leaf hashes to defaultLeafHash,
// and the default path at every level is recorded so inclusion proofs for
// never-touched leaves are available in O(depth).
func New(depth, fanout int, defaultLeafHash field.F, hasher Hasher) *Tree {
	if depth <= 0 {
		panic("smt: depth must be positive")
	}
	if fanout != 2 && fanout != 4 {
		panic("smt: fanout must be 2 or 4")
	}
	numBits := 1
	if fanout == 4 {
		numBits = 2
	}
	t := &Tree{
		Depth:   depth,
		Fanout:  fanout,
		hasher:  hasher,
		nodes:   map[string][]field.F{},
		numBits: numBits,
	}

	h := defaultLeafHash
	for i := 0; i < depth; i++ {
		children := make([]field.F, fanout)
		for c := range children {
			children[c] = h
		}
		newH := hasher(children)
		t.nodes[key(newH)] = children
		h = newH
	}
	t.root = h
	return t
}

func key(f field.F) string {
	b := f.Bytes()
	return string(b[:])
}

// Root returns the current root hash.
func (t *Tree) Root() field.F { return t.root }

func (t *Tree) childIndex(path uint64, level int) int {
	shift := uint(t.Depth-1-level) * uint(t.numBits)
	mask := uint64(t.Fanout - 1)
	return int((path >> shift) & mask)
}

// Get walks the path for key and returns the current leaf hash.
func (t *Tree) Get(leafKey uint64) field.F {
	v := t.root
	for level := 0; level < t.Depth; level++ {
		children, ok := t.nodes[key(v)]
		if !ok {
			panic(fmt.Sprintf("smt: missing node for hash %s", v.String()))
		}
		idx := t.childIndex(leafKey, level)
		v = children[idx]
	}
	return v
}

// Update records a new leaf hash at leafKey and recomputes every ancestor up
// to a new root.
func (t *Tree) Update(leafKey uint64, leafHash field.F) {
	path := make([][]field.F, t.Depth)
	v := t.root
	for level := 0; level < t.Depth; level++ {
		children, ok := t.nodes[key(v)]
		if !ok {
			panic(fmt.Sprintf("smt: missing node for hash %s", v.String()))
		}
		path[level] = children
		idx := t.childIndex(leafKey, level)
		v = children[idx]
	}

	v = leafHash
	for level := t.Depth - 1; level >= 0; level-- {
		idx := t.childIndex(leafKey, level)
		newChildren := make([]field.F, t.Fanout)
		copy(newChildren, path[level])
		newChildren[idx] = v
		newHash := t.hasher(newChildren)
		t.nodes[key(newHash)] = newChildren
		v = newHash
	}
	t.root = v
}

// CreateProof returns, for each level bottom-to-top, the sibling hashes
// excluding the node on the walked path — length depth*(fanout-1), in the
// order the circuit consumes (bottom to top, within a level in child-index
// order skipping the walked child).
func (t *Tree) CreateProof(leafKey uint64) []field.F {
	levels := make([][]field.F, t.Depth)
	v := t.root
	for level := 0; level < t.Depth; level++ {
		children, ok := t.nodes[key(v)]
		if !ok {
			panic(fmt.Sprintf("smt: missing node for hash %s", v.String()))
		}
		idx := t.childIndex(leafKey, level)
		siblings := make([]field.F, 0, t.Fanout-1)
		for c, child := range children {
			if c != idx {
				siblings = append(siblings, child)
			}
		}
		levels[level] = siblings
		v = children[idx]
	}

	out := make([]field.F, 0, t.Depth*(t.Fanout-1))
	for level := t.Depth - 1; level >= 0; level-- {
		out = append(out, levels[level]...)
	}
	return out
}

// VerifyProof re-hashes leafHash up to a root using proof (as produced by
// CreateProof) and reports whether it reproduces root. Used by tests only
// (SPEC_FULL.md §4.3).
func VerifyProof(depth, fanout int, hasher Hasher, proof []field.F, leafKey uint64, leafHash, root field.F) bool {
	numBits := 1
	if fanout == 2 {
		numBits = 1
	} else {
		numBits = 2
	}
	if len(proof) != depth*(fanout-1) {
		return false
	}
	v := leafHash
	// proof is ordered bottom-to-top; consume depth-1 downto 0.
	for level := depth - 1; level >= 0; level-- {
		chunkStart := (depth - 1 - level) * (fanout - 1)
		siblings := proof[chunkStart : chunkStart+(fanout-1)]
		shift := uint(depth-1-level) * uint(numBits)
		idx := int((leafKey >> shift) & uint64(fanout-1))

		children := make([]field.F, fanout)
		s := 0
		for c := 0; c < fanout; c++ {
			if c == idx {
				children[c] = v
			} else {
				children[c] = siblings[s]
				s++
			}
		}
		v = hasher(children)
	}
	return v.Equal(root)
}

// Nodes exposes the content-addressed node table for snapshotting
// (StateStore, §6.3). The returned map must not be mutated.
func (t *Tree) Nodes() map[string][]field.F {
	return t.nodes
}

// LoadNodes replaces the node table and root with previously-snapshotted
// values (StateStore.Load's inverse of Nodes/Root).
func (t *Tree) LoadNodes(nodes map[string][]field.F, root field.F) {
	t.nodes = nodes
	t.root = root
}

// NodeEntry is one (hash, children) pair from a node table, in a form that
// survives a JSON round-trip: the in-memory table is keyed by a node's raw
// 32-byte hash packed into a Go string, which is not valid UTF-8 in general
// and cannot be a JSON object key.
type NodeEntry struct {
	Hash     field.F   `json:"hash"`
	Children []field.F `json:"children"`
}

// ExportNodes flattens the node table into a JSON-serializable slice, for
// O(1) reload without replaying every historical Update (StateStore, §6.3).
func (t *Tree) ExportNodes() []NodeEntry {
	out := make([]NodeEntry, 0, len(t.nodes))
	for k, children := range t.nodes {
		var b [32]byte
		copy(b[:], k)
		out = append(out, NodeEntry{Hash: field.FromBytes(b), Children: children})
	}
	return out
}

// ImportNodes rebuilds the node table from ExportNodes's output and installs
// root, the inverse of ExportNodes paired with Root.
func (t *Tree) ImportNodes(entries []NodeEntry, root field.F) {
	nodes := make(map[string][]field.F, len(entries))
	for _, e := range entries {
		nodes[key(e.Hash)] = e.Children
	}
	t.LoadNodes(nodes, root)
}
