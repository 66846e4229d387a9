package qlt

import "github.com/qlt-tree/qlt/tree"

// buildContiguousTree builds a balanced binary tree over ncells
// leaves, decomposing them contiguously across nranks ranks. This is
// the "1-D test mesh" spec.md treats as an external collaborator; it
// exists here only to give the Analyzer/Runner tests something to
// analyze, not as part of the package's public surface.
func buildContiguousTree(ncells, nranks int) *tree.Node {
	leaves := make([]*tree.Node, ncells)
	for i := 0; i < ncells; i++ {
		leaves[i] = tree.NewLeaf(i*nranks/ncells, i)
	}
	return buildBalanced(leaves)
}

// buildPseudorandomTree builds the same balanced shape but assigns
// each leaf's rank from a fixed-seed linear congruential sequence
// (taken mod nranks) instead of a contiguous range, to exercise
// decomposition-invariance.
func buildPseudorandomTree(ncells, nranks int) *tree.Node {
	leaves := make([]*tree.Node, ncells)
	state := uint32(12345)
	for i := 0; i < ncells; i++ {
		state = state*1664525 + 1013904223
		leaves[i] = tree.NewLeaf(int(state%uint32(nranks)), i)
	}
	return buildBalanced(leaves)
}

func buildBalanced(nodes []*tree.Node) *tree.Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	mid := len(nodes) / 2
	return tree.NewInterior(buildBalanced(nodes[:mid]), buildBalanced(nodes[mid:]))
}
