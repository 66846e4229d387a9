package qlt

import (
	"context"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qlt-tree/qlt/metrics"
	"github.com/qlt-tree/qlt/solver"
	"github.com/qlt-tree/qlt/transport"
)

// Runner drives the two-sweep L2R/R2L protocol over a fixed NodeSets,
// MetaData and BulkData (spec.md §4.3). A Runner is reusable across
// many Run calls; callers rewrite owned-leaf slots between calls.
type Runner struct {
	pctx   transport.Context
	ns     *NodeSets
	md     *MetaData
	bd     *BulkData
	solver solver.NodeProblemSolver

	// runID tags every log line this Runner emits across its lifetime,
	// so a multi-rank run's interleaved logs can be grepped back
	// together (spacemeshos-go-spacemesh's raft client stamps every
	// request the same way, with uuid.NewString()).
	runID string

	sink metrics.Sink
	now  metrics.NowFunc
	log  *zap.SugaredLogger
}

// NewRunner builds a Runner. sv is invoked at every interior node
// during the R2L sweep; it must not be nil.
func NewRunner(pctx transport.Context, ns *NodeSets, md *MetaData, bd *BulkData, sv solver.NodeProblemSolver) *Runner {
	return &Runner{
		pctx:   pctx,
		ns:     ns,
		md:     md,
		bd:     bd,
		solver: sv,
		runID:  uuid.NewString(),
		sink:   metrics.NopSink{},
		now:    pctx.Time,
	}
}

// SetMetrics attaches a Sink that receives per-sweep timing spans.
func (r *Runner) SetMetrics(sink metrics.Sink) { r.sink = sink }

// SetLogger attaches a structured logger used for level-scheduling
// diagnostics. A nil logger (the default) disables logging entirely.
func (r *Runner) SetLogger(log *zap.SugaredLogger) { r.log = log }

// Run executes one L2R/R2L pass. Cancelling ctx aborts between
// levels; it is checked at the top of each level's work, not mid-wait,
// since spec.md §5 states the protocol has no cancellation contract
// once messages for a level are in flight.
func (r *Runner) Run(ctx context.Context) error {
	span := metrics.StartSpan(r.sink, r.now, "qltrun")
	defer span.Stop()

	if r.log != nil {
		r.log.Debugw("qlt run starting", "run_id", r.runID, "levels", len(r.ns.levels))
	}
	if err := r.runL2R(ctx); err != nil {
		return err
	}
	r.rootFixup()
	if err := r.runR2L(ctx); err != nil {
		return err
	}
	return r.cleanup()
}

func (r *Runner) runL2R(ctx context.Context) error {
	span := metrics.StartSpan(r.sink, r.now, "qltrunl2r")
	defer span.Stop()

	l2rw := r.md.L2RWidth()
	levels := r.ns.levels
	for il, lvl := range levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, mmd := range lvl.kids {
			buf := r.bd.l2r[mmd.Offset*l2rw : (mmd.Offset+mmd.Size)*l2rw]
			lvl.kidsRecvReq[i] = r.pctx.Irecv(mmd.Rank, MPITag, buf)
		}
		wspan := metrics.StartSpan(r.sink, r.now, "waitall")
		if err := r.pctx.Waitall(lvl.kidsRecvReq); err != nil {
			wspan.Stop()
			return err
		}
		wspan.Stop()

		for _, n := range lvl.nodes {
			if n.nkids == 0 {
				continue // leaf: caller already wrote its L2R record.
			}
			r.combineNode(n)
		}

		for i, mmd := range lvl.me {
			buf := r.bd.l2r[mmd.Offset*l2rw : (mmd.Offset+mmd.Size)*l2rw]
			lvl.meSendReq[i] = r.pctx.Isend(mmd.Rank, MPITag, buf)
		}
		if il == len(levels)-1 {
			if err := r.pctx.Waitall(lvl.meSendReq); err != nil {
				return err
			}
		}
	}
	if r.log != nil {
		r.log.Debugw("l2r sweep complete", "run_id", r.runID, "levels", len(levels))
	}
	return nil
}

// combineNode aggregates n's two children into n's L2R record, one
// tracer block at a time, with the fixed k0-then-k1 operand order
// spec.md §4.3 requires for bit-reproducibility.
func (r *Runner) combineNode(n *nsNode) {
	l2rw := r.md.L2RWidth()
	base, k0base, k1base := n.offset*l2rw, n.kids[0].offset*l2rw, n.kids[1].offset*l2rw
	me, k0, k1 := r.bd.l2r[base:base+l2rw], r.bd.l2r[k0base:k0base+l2rw], r.bd.l2r[k1base:k1base+l2rw]

	me[0] = k0[0] + k1[0]
	for ti := 0; ti < r.md.NumTracers(); ti++ {
		pt := r.md.problemTypeOf(ti)
		bdi := r.md.trcr2bl2r[ti]
		sumOnly := pt.shapepreserve()

		if sumOnly {
			me[bdi+0] = k0[bdi+0] + k1[bdi+0]
		} else {
			me[bdi+0] = math.Min(k0[bdi+0], k1[bdi+0])
		}
		me[bdi+1] = k0[bdi+1] + k1[bdi+1]
		if sumOnly {
			me[bdi+2] = k0[bdi+2] + k1[bdi+2]
		} else {
			me[bdi+2] = math.Max(k0[bdi+2], k1[bdi+2])
		}
		if pt.l2rBulkSize() == 4 {
			me[bdi+3] = k0[bdi+3] + k1[bdi+3]
		}
	}
}

// rootFixup seeds the R2L record of the global root, if this rank
// owns it, from the fully-aggregated L2R record (spec.md §4.3, "Root
// fix-up").
func (r *Runner) rootFixup() {
	if len(r.ns.levels) == 0 {
		return
	}
	lvl := r.ns.levels[len(r.ns.levels)-1]
	if len(lvl.nodes) != 1 || lvl.nodes[0].parent != nil {
		return
	}
	n := lvl.nodes[0]
	l2rw, r2lw := r.md.L2RWidth(), r.md.R2LWidth()
	l2rBase, r2lBase := n.offset*l2rw, n.offset*r2lw

	for ti := 0; ti < r.md.NumTracers(); ti++ {
		pt := r.md.problemTypeOf(ti)
		l2rbdi, r2lbdi := r.md.trcr2bl2r[ti], r.md.trcr2br2l[ti]

		os := 1
		if pt.conserve() {
			os = 3
		}
		r.bd.r2l[r2lBase+r2lbdi] = r.bd.l2r[l2rBase+l2rbdi+os]
		if !pt.shapepreserve() {
			r.bd.r2l[r2lBase+r2lbdi+1] = r.bd.l2r[l2rBase+l2rbdi+0]
			r.bd.r2l[r2lBase+r2lbdi+2] = r.bd.l2r[l2rBase+l2rbdi+2]
		}
	}
}

func (r *Runner) runR2L(ctx context.Context) error {
	span := metrics.StartSpan(r.sink, r.now, "qltrunr2l")
	defer span.Stop()

	r2lw := r.md.R2LWidth()
	levels := r.ns.levels
	for il := len(levels) - 1; il >= 0; il-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		lvl := levels[il]
		for i, mmd := range lvl.me {
			buf := r.bd.r2l[mmd.Offset*r2lw : (mmd.Offset+mmd.Size)*r2lw]
			lvl.meRecvReq[i] = r.pctx.Irecv(mmd.Rank, MPITag, buf)
		}
		wspan := metrics.StartSpan(r.sink, r.now, "waitall")
		if err := r.pctx.Waitall(lvl.meRecvReq); err != nil {
			wspan.Stop()
			return err
		}
		wspan.Stop()

		snpSpan := metrics.StartSpan(r.sink, r.now, "snp")
		for _, n := range lvl.nodes {
			if n.nkids == 0 {
				continue
			}
			r.solveNode(n)
		}
		snpSpan.Stop()

		for i, mmd := range lvl.kids {
			buf := r.bd.r2l[mmd.Offset*r2lw : (mmd.Offset+mmd.Size)*r2lw]
			lvl.kidsSendReq[i] = r.pctx.Isend(mmd.Rank, MPITag, buf)
		}
	}
	if r.log != nil {
		r.log.Debugw("r2l sweep complete", "run_id", r.runID, "levels", len(levels))
	}
	return nil
}

// solveNode propagates global bounds to n's children (when the
// canonical type tracks them) and invokes the node-problem solver for
// each tracer block, per spec.md §4.3 step 3.
func (r *Runner) solveNode(n *nsNode) {
	l2rw, r2lw := r.md.L2RWidth(), r.md.R2LWidth()
	pL2R, pR2L := n.offset*l2rw, n.offset*r2lw
	k0, k1 := n.kids[0], n.kids[1]
	k0L2R, k1L2R := k0.offset*l2rw, k1.offset*l2rw
	k0R2L, k1R2L := k0.offset*r2lw, k1.offset*r2lw

	rhoP, rho0, rho1 := r.bd.l2r[pL2R], r.bd.l2r[k0L2R], r.bd.l2r[k1L2R]

	for ti := 0; ti < r.md.NumTracers(); ti++ {
		pt := r.md.problemTypeOf(ti)
		l2rbdi, r2lbdi := r.md.trcr2bl2r[ti], r.md.trcr2br2l[ti]
		bsz := pt.l2rBulkSize()

		if !pt.shapepreserve() {
			qMin := r.bd.r2l[pR2L+r2lbdi+1]
			qMax := r.bd.r2l[pR2L+r2lbdi+2]
			r.bd.l2r[pL2R+l2rbdi+0] = qMin
			r.bd.l2r[pL2R+l2rbdi+2] = qMax
			for _, kbase := range [2]int{k0L2R, k1L2R} {
				r.bd.l2r[kbase+l2rbdi+0] = qMin
				r.bd.l2r[kbase+l2rbdi+2] = qMax
			}
			for _, kbase := range [2]int{k0R2L, k1R2L} {
				r.bd.r2l[kbase+r2lbdi+1] = qMin
				r.bd.r2l[kbase+r2lbdi+2] = qMax
			}
		}

		l2rP := r.bd.l2r[pL2R+l2rbdi : pL2R+l2rbdi+bsz]
		l2r0 := r.bd.l2r[k0L2R+l2rbdi : k0L2R+l2rbdi+bsz]
		l2r1 := r.bd.l2r[k1L2R+l2rbdi : k1L2R+l2rbdi+bsz]

		r.solver.SolveNodeProblem(pt.shapepreserve(), pt.conserve(),
			rhoP, l2rP, r.bd.r2l[pR2L+r2lbdi],
			rho0, l2r0, &r.bd.r2l[k0R2L+r2lbdi],
			rho1, l2r1, &r.bd.r2l[k1R2L+r2lbdi])
	}
}

// cleanup waits on every deferred send request: L2R's me sends (all
// levels but the last, already waited during the L2R sweep) and R2L's
// kids sends (never waited during the R2L sweep). Spec.md §4.3,
// "Cleanup".
func (r *Runner) cleanup() error {
	levels := r.ns.levels
	for il, lvl := range levels {
		if il != len(levels)-1 {
			if err := r.pctx.Waitall(lvl.meSendReq); err != nil {
				return err
			}
		}
		if err := r.pctx.Waitall(lvl.kidsSendReq); err != nil {
			return err
		}
	}
	return nil
}
