// Package solver implements the local optimization QLT invokes at
// each interior node during its root-to-leaves sweep: given a
// parent's reconciled mass and two children's candidate L2R blocks,
// split the mass between the children.
package solver

// NodeProblemSolver is the solve_node_problem contract (spec.md
// §4.3/§6). Implementations must be deterministic, respect
// [Qm_min, Qm_max] bounds carried in l2r0/l2r1 when they are strictly
// feasible, and preserve mass: *r2lQm0 + *r2lQm1 must equal r2lQmP.
//
// l2rP, l2r0, l2r1 are the parent's and children's L2R tracer blocks,
// laid out as [bound0, Qm, bound2, (Qm_prev)] — bound0/bound2 hold
// [Qm_min, Qm_max] when shapepreserve is false, and are meaningless
// (combined by sum, not min/max) when shapepreserve is true.
type NodeProblemSolver interface {
	SolveNodeProblem(
		shapepreserve, conserve bool,
		rhoP float64, l2rP []float64, r2lQmP float64,
		rho0 float64, l2r0 []float64, r2lQm0 *float64,
		rho1 float64, l2r1 []float64, r2lQm1 *float64,
	)
}

// clip returns v bounded to [lo, hi].
func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
