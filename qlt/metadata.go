package qlt

// MetaData holds the tracer-to-problem-type map and the prefix
// tables (spec.md §3) that determine each tracer's slot width and
// displacement inside the L2R/R2L bulk records. It is built by a
// sequence of DeclareTracer calls followed by one
// EndTracerDeclarations call; its shape is immutable thereafter.
type MetaData struct {
	trcr2prob []problemType

	prob2trcrptr [nprobtypes + 1]int
	prob2bl2r    [nprobtypes + 1]int
	prob2br2l    [nprobtypes + 1]int
	trcr2bl2r    []int
	trcr2br2l    []int
	bidx2trcr    []int
	trcr2bidx    []int

	closed bool
}

// NewMetaData creates an empty MetaData ready for DeclareTracer calls.
func NewMetaData() *MetaData {
	return &MetaData{}
}

// DeclareTracer canonicalizes mask and appends a new tracer, whose
// index is the call order (spec.md §6). It is an error to call this
// after EndTracerDeclarations.
func (md *MetaData) DeclareTracer(mask ProblemType) (int, error) {
	if md.closed {
		return -1, ErrDeclarationsClosed
	}
	pt, err := canonicalize(mask)
	if err != nil {
		return -1, err
	}
	idx := len(md.trcr2prob)
	md.trcr2prob = append(md.trcr2prob, pt)
	return idx, nil
}

// EndTracerDeclarations closes tracer declarations and populates the
// prefix tables described in spec.md §3, in the same two passes as
// the reference implementation: first count tracers per canonical
// type and assign each tracer's block displacement, then fix the
// cumulative per-type widths.
func (md *MetaData) EndTracerDeclarations() error {
	if md.closed {
		return ErrDeclarationsClosed
	}
	md.closed = true

	ntracers := len(md.trcr2prob)
	md.bidx2trcr = make([]int, ntracers)
	md.trcr2bidx = make([]int, ntracers)
	md.trcr2bl2r = make([]int, ntracers)
	md.trcr2br2l = make([]int, ntracers)

	md.prob2bl2r[0] = 1 // slot 0 is reserved for total density.
	md.prob2br2l[0] = 0

	for pi := 0; pi < nprobtypes; pi++ {
		md.prob2trcrptr[pi+1] = md.prob2trcrptr[pi]
		pt := problemType(pi)
		l2rsz := pt.l2rBulkSize()
		r2lsz := pt.r2lBulkSize()
		for ti := 0; ti < ntracers; ti++ {
			if md.trcr2prob[ti] != pt {
				continue
			}
			tcnt := md.prob2trcrptr[pi+1] - md.prob2trcrptr[pi]
			md.trcr2bl2r[ti] = md.prob2bl2r[pi] + tcnt*l2rsz
			md.trcr2br2l[ti] = md.prob2br2l[pi] + tcnt*r2lsz
			md.bidx2trcr[md.prob2trcrptr[pi+1]] = ti
			md.prob2trcrptr[pi+1]++
		}
		ni := md.prob2trcrptr[pi+1] - md.prob2trcrptr[pi]
		md.prob2bl2r[pi+1] = md.prob2bl2r[pi] + ni*l2rsz
		md.prob2br2l[pi+1] = md.prob2br2l[pi] + ni*r2lsz
	}
	for bidx := 0; bidx < ntracers; bidx++ {
		md.trcr2bidx[md.bidx2trcr[bidx]] = bidx
	}
	return nil
}

// NumTracers returns the number of declared tracers.
func (md *MetaData) NumTracers() int { return len(md.trcr2prob) }

// L2RWidth returns the number of float64s per BulkData slot in the
// L2R buffer.
func (md *MetaData) L2RWidth() int { return md.prob2bl2r[nprobtypes] }

// R2LWidth returns the number of float64s per BulkData slot in the
// R2L buffer.
func (md *MetaData) R2LWidth() int { return md.prob2br2l[nprobtypes] }

// ProblemType returns the canonical ProblemType mask a tracer was
// recorded under.
func (md *MetaData) ProblemType(tracerIdx int) (ProblemType, error) {
	if tracerIdx < 0 || tracerIdx >= len(md.trcr2prob) {
		return 0, ErrTracerIndex
	}
	return md.trcr2prob[tracerIdx].Mask(), nil
}

// l2rBlockDisplacement returns the L2R block displacement (bdi) for a
// declared tracer.
func (md *MetaData) l2rBlockDisplacement(tracerIdx int) (int, error) {
	if !md.closed || tracerIdx < 0 || tracerIdx >= len(md.trcr2bl2r) {
		return 0, ErrTracerIndex
	}
	return md.trcr2bl2r[tracerIdx], nil
}

// r2lBlockDisplacement returns the R2L block displacement (bdi) for a
// declared tracer.
func (md *MetaData) r2lBlockDisplacement(tracerIdx int) (int, error) {
	if !md.closed || tracerIdx < 0 || tracerIdx >= len(md.trcr2br2l) {
		return 0, ErrTracerIndex
	}
	return md.trcr2br2l[tracerIdx], nil
}

func (md *MetaData) problemTypeOf(tracerIdx int) problemType {
	return md.trcr2prob[tracerIdx]
}
