package solver

// ClipAndConserve is a reference NodeProblemSolver. When shapepreserve
// is false it clips each child's candidate mass to its bounds, then
// redistributes the resulting deficit or surplus in proportion to each
// child's remaining headroom. When shapepreserve is true it does not
// read the bound fields: it splits the parent's mass in proportion to
// the two candidates (evenly if both are zero), so bounds are not
// enforced in that branch. Either way the second child receives the
// parent's mass minus the first child's share. Adapted from
// cedr_caas.cpp's whole-communicator clip-and-redistribute strategy,
// specialized to a single two-child split.
type ClipAndConserve struct{}

func (ClipAndConserve) SolveNodeProblem(
	shapepreserve, conserve bool,
	rhoP float64, l2rP []float64, r2lQmP float64,
	rho0 float64, l2r0 []float64, r2lQm0 *float64,
	rho1 float64, l2r1 []float64, r2lQm1 *float64,
) {
	if !shapepreserve {
		qMin0, qMax0 := l2r0[0], l2r0[2]
		qMin1, qMax1 := l2r1[0], l2r1[2]
		clip0 := clip(l2r0[1], qMin0, qMax0)
		clip1 := clip(l2r1[1], qMin1, qMax1)

		m := r2lQmP - (clip0 + clip1)
		switch {
		case m > 0:
			room0, room1 := qMax0-clip0, qMax1-clip1
			clip0, _ = distribute(m, clip0, clip1, room0, room1)
		case m < 0:
			room0, room1 := clip0-qMin0, clip1-qMin1
			clip0, _ = distribute(m, clip0, clip1, room0, room1)
		}
		*r2lQm0 = clip0
		*r2lQm1 = r2lQmP - clip0
		return
	}

	// No propagated bounds to respect; split proportional to each
	// child's own candidate share, falling back to an even split.
	total := l2r0[1] + l2r1[1]
	var share0 float64
	if total != 0 {
		share0 = r2lQmP * (l2r0[1] / total)
	} else {
		share0 = r2lQmP / 2
	}
	*r2lQm0 = share0
	*r2lQm1 = r2lQmP - share0
}

// distribute spreads a surplus/deficit m across two clipped values in
// proportion to their remaining room, falling back to an even split
// when neither has room.
func distribute(m, clip0, clip1, room0, room1 float64) (float64, float64) {
	total := room0 + room1
	if total <= 0 {
		return clip0 + m/2, clip1 + m/2
	}
	return clip0 + m*room0/total, clip1 + m*room1/total
}
