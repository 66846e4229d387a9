package qlt

import (
	"context"

	"go.uber.org/zap"

	"github.com/qlt-tree/qlt/metrics"
	"github.com/qlt-tree/qlt/solver"
	"github.com/qlt-tree/qlt/transport"
	"github.com/qlt-tree/qlt/tree"
)

// QLT is the external handle described in spec.md §6: a single
// engine instance bound to one rank's view of one globally agreed
// tree. It wraps Analyze/MetaData/BulkData/Runner behind the flat
// call sequence callers expect: declare tracers, close declarations,
// write leaf slots, run, read leaf slots.
type QLT struct {
	pctx   transport.Context
	ns     *NodeSets
	md     *MetaData
	bd     *BulkData
	solver solver.NodeProblemSolver
	runner *Runner

	glbl2lci map[int]int
}

// New builds a QLT bound to pctx's rank, analyzing root into a pruned
// NodeSets. sv is the node-problem solver the R2L sweep will invoke;
// it is not exercised until the first Run call.
func New(pctx transport.Context, ncells int, root *tree.Node, sv solver.NodeProblemSolver) (*QLT, error) {
	ns, err := Analyze(pctx, ncells, root)
	if err != nil {
		return nil, err
	}
	q := &QLT{
		pctx:     pctx,
		ns:       ns,
		md:       NewMetaData(),
		solver:   sv,
		glbl2lci: map[int]int{},
	}
	if ns.NumLevels() > 0 {
		for _, n := range ns.levels[0].nodes {
			q.glbl2lci[n.id] = n.offset
		}
	}
	return q, nil
}

// DeclareTracer records tracer_idx's canonical problem type. Tracer
// indices are assigned by call order (spec.md §6).
func (q *QLT) DeclareTracer(mask ProblemType) (int, error) {
	return q.md.DeclareTracer(mask)
}

// EndTracerDeclarations closes declarations and allocates BulkData.
// It must be called exactly once, after all DeclareTracer calls and
// before any SetRhom/SetQm/Run/GetQm call.
func (q *QLT) EndTracerDeclarations() error {
	if err := q.md.EndTracerDeclarations(); err != nil {
		return err
	}
	q.bd = NewBulkData(q.md, q.ns.NumSlots())
	q.runner = NewRunner(q.pctx, q.ns, q.md, q.bd, q.solver)
	return nil
}

// SetMetrics attaches a Sink that receives per-run timing spans.
func (q *QLT) SetMetrics(sink metrics.Sink) {
	if q.runner != nil {
		q.runner.SetMetrics(sink)
	}
}

// SetLogger attaches a structured logger for level-scheduling
// diagnostics.
func (q *QLT) SetLogger(log *zap.SugaredLogger) {
	if q.runner != nil {
		q.runner.SetLogger(log)
	}
}

// NLclCells returns the number of leaves this rank owns.
func (q *QLT) NLclCells() int { return q.ns.NumOwnedLeaves() }

// GetOwnedGlblCells returns this rank's owned global cell ids,
// ordered by local index.
func (q *QLT) GetOwnedGlblCells() []int { return q.ns.OwnedLeafGlobalIDs() }

// GCI2LCI maps a global cell id to its local index, using a map built
// once by New (spec.md §6).
func (q *QLT) GCI2LCI(gci int) (int, error) {
	lci, ok := q.glbl2lci[gci]
	if !ok {
		return -1, ErrUnknownCell
	}
	return lci, nil
}

// SetRhom writes the total density for owned leaf lci.
func (q *QLT) SetRhom(lci int, rhom float64) {
	q.bd.L2RSlot(lci)[0] = rhom
}

// SetQm writes tracer_idx's L2R block for owned leaf lci. Only the
// first l2r_bulk_size arguments for the tracer's canonical type are
// meaningful; qmPrev is ignored for non-conserving types.
func (q *QLT) SetQm(lci, tracerIdx int, qm, qmMin, qmMax, qmPrev float64) error {
	block, err := q.bd.L2RTracer(q.md, lci, tracerIdx)
	if err != nil {
		return err
	}
	block[0] = qmMin
	block[1] = qm
	block[2] = qmMax
	if len(block) == 4 {
		block[3] = qmPrev
	}
	return nil
}

// GetQm reads tracer_idx's reconciled mass at owned leaf lci. Valid
// only after Run has returned.
func (q *QLT) GetQm(lci, tracerIdx int) (float64, error) {
	block, err := q.bd.R2LTracer(q.md, lci, tracerIdx)
	if err != nil {
		return 0, err
	}
	return block[0], nil
}

// Run executes one full L2R/R2L pass over the currently written leaf
// data.
func (q *QLT) Run(ctx context.Context) error {
	if q.runner == nil {
		return ErrDeclarationsOpen
	}
	return q.runner.Run(ctx)
}
