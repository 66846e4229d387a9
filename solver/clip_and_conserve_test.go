package solver

import "testing"

// solve is a small helper that runs ClipAndConserve.SolveNodeProblem
// with two children and returns their reconciled masses.
func solve(shapepreserve, conserve bool, l2r0, l2r1 []float64, r2lQmP float64) (r2lQm0, r2lQm1 float64) {
	ClipAndConserve{}.SolveNodeProblem(
		shapepreserve, conserve,
		0, nil, r2lQmP,
		0, l2r0, &r2lQm0,
		0, l2r1, &r2lQm1,
	)
	return
}

// TestClipAndConserveFeasibleSplit checks that when the parent's
// reconciled mass already equals the sum of both children's
// candidates, ClipAndConserve leaves each child's mass unchanged (no
// clipping or redistribution needed).
func TestClipAndConserveFeasibleSplit(t *testing.T) {
	l2r0 := []float64{0, 3, 10} // qMin, Qm, qMax
	l2r1 := []float64{0, 4, 10}
	r2lQm0, r2lQm1 := solve(false, true, l2r0, l2r1, 7)
	if r2lQm0 != 3 || r2lQm1 != 4 {
		t.Errorf("got (%v, %v), want (3, 4)", r2lQm0, r2lQm1)
	}
}

// TestClipAndConserveClipsOutOfBoundsCandidates checks that a
// candidate outside its own [qMin, qMax] is clipped before
// redistribution, and that the two reconciled masses still sum to the
// parent's mass exactly.
func TestClipAndConserveClipsOutOfBoundsCandidates(t *testing.T) {
	l2r0 := []float64{0, 15, 10} // candidate 15 > qMax 10
	l2r1 := []float64{0, 2, 10}
	r2lQmP := 12.0
	r2lQm0, r2lQm1 := solve(false, true, l2r0, l2r1, r2lQmP)

	if r2lQm0 > 10+1e-9 {
		t.Errorf("r2lQm0=%v exceeds qMax=10", r2lQm0)
	}
	if got := r2lQm0 + r2lQm1; got != r2lQmP {
		t.Errorf("r2lQm0+r2lQm1=%v, want exactly %v", got, r2lQmP)
	}
}

// TestClipAndConserveRedistributesSurplus checks that when both
// children clip below the parent's reconciled mass, the surplus is
// spread in proportion to remaining headroom (child 1 has twice the
// headroom of child 0 here, so it should receive roughly twice the
// surplus), while conservation still holds exactly.
func TestClipAndConserveRedistributesSurplus(t *testing.T) {
	l2r0 := []float64{0, 9, 10} // clipped to 9, headroom 1
	l2r1 := []float64{0, 8, 10} // clipped to 8, headroom 2
	r2lQmP := 20.0              // surplus of 3 over 9+8=17
	r2lQm0, r2lQm1 := solve(false, true, l2r0, l2r1, r2lQmP)

	if got := r2lQm0 + r2lQm1; got != r2lQmP {
		t.Errorf("r2lQm0+r2lQm1=%v, want exactly %v", got, r2lQmP)
	}
	if r2lQm0 <= 9 || r2lQm1 <= 8 {
		t.Errorf("expected both children to receive positive surplus, got (%v, %v)", r2lQm0, r2lQm1)
	}
	extra0, extra1 := r2lQm0-9, r2lQm1-8
	if extra1 < extra0 {
		t.Errorf("child with more headroom should receive at least as much surplus: extra0=%v extra1=%v", extra0, extra1)
	}
}

// TestClipAndConserveRedistributesDeficit mirrors the surplus case for
// a deficit: both children clip above the parent's reconciled mass, so
// mass must be taken away in proportion to headroom toward qMin.
func TestClipAndConserveRedistributesDeficit(t *testing.T) {
	l2r0 := []float64{0, 5, 10} // headroom toward qMin: 5
	l2r1 := []float64{2, 6, 10} // headroom toward qMin: 4
	r2lQmP := 8.0               // deficit of 3 under 5+6=11
	r2lQm0, r2lQm1 := solve(false, true, l2r0, l2r1, r2lQmP)

	if got := r2lQm0 + r2lQm1; got != r2lQmP {
		t.Errorf("r2lQm0+r2lQm1=%v, want exactly %v", got, r2lQmP)
	}
	if r2lQm0 < 0-1e-9 || r2lQm1 < 2-1e-9 {
		t.Errorf("child mass fell below its own qMin: (%v, %v)", r2lQm0, r2lQm1)
	}
}

// TestClipAndConserveNoHeadroomFallsBackToEvenSplit checks the
// zero-headroom fallback: when both children are already clipped to
// their own qMax and a surplus remains, distribute must not divide by
// zero and must still conserve mass exactly.
func TestClipAndConserveNoHeadroomFallsBackToEvenSplit(t *testing.T) {
	l2r0 := []float64{0, 10, 10} // no headroom left
	l2r1 := []float64{0, 10, 10}
	r2lQmP := 24.0
	r2lQm0, r2lQm1 := solve(false, true, l2r0, l2r1, r2lQmP)

	if got := r2lQm0 + r2lQm1; got != r2lQmP {
		t.Errorf("r2lQm0+r2lQm1=%v, want exactly %v", got, r2lQmP)
	}
	if r2lQm0 != r2lQm1 {
		t.Errorf("expected an even split with no headroom, got (%v, %v)", r2lQm0, r2lQm1)
	}
}

// TestClipAndConserveShapepreserveSplitsProportionally checks the
// shapepreserving branch, which has no propagated bounds to respect
// and instead splits proportional to each child's own candidate share.
func TestClipAndConserveShapepreserveSplitsProportionally(t *testing.T) {
	l2r0 := []float64{0, 1, 0} // bound fields unused when shapepreserving
	l2r1 := []float64{0, 3, 0}
	r2lQm0, r2lQm1 := solve(true, true, l2r0, l2r1, 8)

	if got := r2lQm0 + r2lQm1; got != 8 {
		t.Errorf("r2lQm0+r2lQm1=%v, want exactly 8", got)
	}
	if r2lQm0 != 2 || r2lQm1 != 6 {
		t.Errorf("got (%v, %v), want (2, 6) for a 1:3 candidate split of 8", r2lQm0, r2lQm1)
	}
}

// TestClipAndConserveShapepreserveZeroTotalFallsBackToEvenSplit checks
// that a zero total candidate mass (both children want 0) doesn't
// divide by zero and instead splits evenly.
func TestClipAndConserveShapepreserveZeroTotalFallsBackToEvenSplit(t *testing.T) {
	l2r0 := []float64{0, 0, 0}
	l2r1 := []float64{0, 0, 0}
	r2lQm0, r2lQm1 := solve(true, true, l2r0, l2r1, 5)

	if got := r2lQm0 + r2lQm1; got != 5 {
		t.Errorf("r2lQm0+r2lQm1=%v, want exactly 5", got)
	}
	if r2lQm0 != 2.5 || r2lQm1 != 2.5 {
		t.Errorf("got (%v, %v), want (2.5, 2.5)", r2lQm0, r2lQm1)
	}
}
