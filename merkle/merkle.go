// Package merkle commits to a set of leaves with a sorted-pair binary tree.
// Each pair is ordered before hashing, so proofs carry no left/right flags and
// the root does not depend on the order leaves were observed in.
package merkle

import (
	"bytes"
	"errors"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrLeafNotFound = errors.New("leaf not found in tree")

// ZeroRoot is the root of an empty leaf set.
var ZeroRoot = common.Hash{}

// Proof is an inclusion proof: folding Leaf with each sibling in order must
// yield Root.
type Proof struct {
	Leaf     common.Hash   `json:"leaf"`
	Siblings []common.Hash `json:"siblings"`
	Root     common.Hash   `json:"root"`
}

// Tree is an immutable commitment over a de-duplicated, sorted leaf set.
type Tree struct {
	levels [][]common.Hash // levels[0] are the leaves, the last level is the root
	index  map[common.Hash]int
}

// HashPair hashes a and b in ascending byte order.
func HashPair(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return crypto.Keccak256Hash(a[:], b[:])
}

// Build constructs the tree. The input slice is not modified.
func Build(leaves []common.Hash) *Tree {
	sorted := make([]common.Hash, 0, len(leaves))
	seen := make(map[common.Hash]struct{}, len(leaves))
	for _, l := range leaves {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		sorted = append(sorted, l)
	}
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i][:], sorted[j][:]) < 0
	})

	t := &Tree{index: make(map[common.Hash]int, len(sorted))}
	for i, l := range sorted {
		t.index[l] = i
	}
	if len(sorted) == 0 {
		return t
	}

	level := sorted
	t.levels = append(t.levels, level)
	for len(level) > 1 {
		next := make([]common.Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				// odd node is promoted unchanged
				next = append(next, level[i])
				continue
			}
			next = append(next, HashPair(level[i], level[i+1]))
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the commitment, or ZeroRoot for an empty tree.
func (t *Tree) Root() common.Hash {
	if len(t.levels) == 0 {
		return ZeroRoot
	}
	return t.levels[len(t.levels)-1][0]
}

// Len is the number of distinct leaves.
func (t *Tree) Len() int { return len(t.index) }

// Leaves returns the sorted leaf set.
func (t *Tree) Leaves() []common.Hash {
	if len(t.levels) == 0 {
		return nil
	}
	return append([]common.Hash(nil), t.levels[0]...)
}

// Proof returns the inclusion proof for leaf.
func (t *Tree) Proof(leaf common.Hash) (Proof, error) {
	pos, ok := t.index[leaf]
	if !ok {
		return Proof{}, ErrLeafNotFound
	}
	var siblings []common.Hash
	for _, level := range t.levels[:len(t.levels)-1] {
		sib := pos ^ 1
		if sib < len(level) {
			siblings = append(siblings, level[sib])
		}
		pos /= 2
	}
	return Proof{Leaf: leaf, Siblings: siblings, Root: t.Root()}, nil
}

// Verify recomputes the root from the proof alone. A proof against ZeroRoot
// never verifies because the empty tree commits to nothing.
func Verify(p Proof) bool {
	if p.Root == ZeroRoot {
		return false
	}
	h := p.Leaf
	for _, s := range p.Siblings {
		h = HashPair(h, s)
	}
	return h == p.Root
}
