// Package tree defines the globally agreed reduction tree that the
// qlt package's Analyzer consumes. Building a concrete tree (for
// example, laying out a 1-D mesh across ranks) is left to callers;
// this package only fixes the shape every caller must agree on so
// that the same tree, decomposed differently across ranks, produces
// bit-identical reductions.
package tree

// A Node is one vertex of the globally agreed reduction tree.
//
// Leaves have both Kids entries nil and a CellIdx in [0, ncells) that
// is globally unique. Interior nodes have both Kids entries non-nil
// and their Rank and CellIdx left at the sentinel values NewInterior
// gives them (-1, -1): the Analyzer computes an interior node's
// effective rank and global id itself, in a side table, and never
// writes them back onto the node, since the same Node objects may be
// analyzed once per rank.
type Node struct {
	Rank    int
	Kids    [2]*Node
	Parent  *Node
	CellIdx int
}

// NewLeaf creates a leaf node owned by rank and identified globally
// by cellIdx.
func NewLeaf(rank, cellIdx int) *Node {
	return &Node{Rank: rank, CellIdx: cellIdx}
}

// NewInterior creates an interior node over exactly two children,
// linking their Parent pointers. Rank and CellIdx are left unset
// (-1) for the Analyzer to assign.
func NewInterior(k0, k1 *Node) *Node {
	n := &Node{Rank: -1, CellIdx: -1, Kids: [2]*Node{k0, k1}}
	k0.Parent = n
	k1.Parent = n
	return n
}

// NKids returns 0 for a leaf, 2 for an interior node.
func (n *Node) NKids() int {
	if n.Kids[0] == nil {
		return 0
	}
	return 2
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return n.NKids() == 0
}
