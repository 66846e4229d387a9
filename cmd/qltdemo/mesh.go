package main

import "github.com/qlt-tree/qlt/tree"

// buildContiguousMesh builds a balanced binary reduction tree over
// ncells leaves, decomposed contiguously across nranks: leaf i is
// owned by rank i*nranks/ncells. This mirrors the 1-D test-mesh
// utility spec.md treats as an external collaborator — it exists only
// to give this demo something to reduce over, not as part of the
// engine's public surface.
func buildContiguousMesh(ncells, nranks int) *tree.Node {
	leaves := make([]*tree.Node, ncells)
	for i := 0; i < ncells; i++ {
		rank := i * nranks / ncells
		leaves[i] = tree.NewLeaf(rank, i)
	}
	return buildBalanced(leaves)
}

func buildBalanced(nodes []*tree.Node) *tree.Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	mid := len(nodes) / 2
	left := buildBalanced(nodes[:mid])
	right := buildBalanced(nodes[mid:])
	return tree.NewInterior(left, right)
}
