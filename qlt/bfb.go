package qlt

import (
	"context"

	"github.com/qlt-tree/qlt/transport"
	"github.com/qlt-tree/qlt/tree"
)

// BFBAllReducer performs a plain associative sum over nfield scalars
// per leaf, using the same Analyzer machinery as the full QLT engine
// but without a MetaData/BulkData layout or a node-problem solve
// (spec.md §4.4). Its defining property is that the result is
// bit-identical regardless of how the tree's leaves are partitioned
// across ranks, because it uses the same fixed k0-then-k1 combine
// order as the L2R sweep.
type BFBAllReducer struct {
	pctx   transport.Context
	ns     *NodeSets
	nfield int
	up     []float64 // written by leaves, combined upward
	down   []float64 // broadcast back down from the root
}

// NewBFBAllReducer analyzes root and allocates storage for nfield
// scalars per NodeSets slot.
func NewBFBAllReducer(pctx transport.Context, ncells, nfield int, root *tree.Node) (*BFBAllReducer, error) {
	ns, err := Analyze(pctx, ncells, root)
	if err != nil {
		return nil, err
	}
	return &BFBAllReducer{
		pctx:   pctx,
		ns:     ns,
		nfield: nfield,
		up:     make([]float64, ns.NumSlots()*nfield),
		down:   make([]float64, ns.NumSlots()*nfield),
	}, nil
}

// NLclCells returns the number of leaves this rank owns.
func (b *BFBAllReducer) NLclCells() int { return b.ns.NumOwnedLeaves() }

// OwnedLeafGlobalIDs returns this rank's owned global cell ids,
// ordered by local index.
func (b *BFBAllReducer) OwnedLeafGlobalIDs() []int { return b.ns.OwnedLeafGlobalIDs() }

// Input returns the writable nfield-wide input vector for owned leaf
// lci. Callers write into it before calling Reduce.
func (b *BFBAllReducer) Input(lci int) []float64 {
	base := lci * b.nfield
	return b.up[base : base+b.nfield]
}

// Result returns owned leaf lci's globally reduced vector. Valid only
// after Reduce has returned.
func (b *BFBAllReducer) Result(lci int) []float64 {
	base := lci * b.nfield
	return b.down[base : base+b.nfield]
}

// Reduce sums every leaf's Input vector up the tree and broadcasts
// the total back down to every leaf's Result vector.
func (b *BFBAllReducer) Reduce(ctx context.Context) error {
	if err := b.sweepUp(ctx); err != nil {
		return err
	}
	b.rootFixup()
	return b.sweepDown(ctx)
}

func (b *BFBAllReducer) sweepUp(ctx context.Context) error {
	levels := b.ns.levels
	for il, lvl := range levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, mmd := range lvl.kids {
			buf := b.up[mmd.Offset*b.nfield : (mmd.Offset+mmd.Size)*b.nfield]
			lvl.kidsRecvReq[i] = b.pctx.Irecv(mmd.Rank, MPITag, buf)
		}
		if err := b.pctx.Waitall(lvl.kidsRecvReq); err != nil {
			return err
		}
		for _, n := range lvl.nodes {
			if n.nkids == 0 {
				continue
			}
			base, k0base, k1base := n.offset*b.nfield, n.kids[0].offset*b.nfield, n.kids[1].offset*b.nfield
			for f := 0; f < b.nfield; f++ {
				b.up[base+f] = b.up[k0base+f] + b.up[k1base+f]
			}
		}
		for i, mmd := range lvl.me {
			buf := b.up[mmd.Offset*b.nfield : (mmd.Offset+mmd.Size)*b.nfield]
			lvl.meSendReq[i] = b.pctx.Isend(mmd.Rank, MPITag, buf)
		}
		if il == len(levels)-1 {
			if err := b.pctx.Waitall(lvl.meSendReq); err != nil {
				return err
			}
		}
	}
	return nil
}

// rootFixup seeds the global root's down vector from its fully
// combined up vector, if this rank owns the root.
func (b *BFBAllReducer) rootFixup() {
	if len(b.ns.levels) == 0 {
		return
	}
	lvl := b.ns.levels[len(b.ns.levels)-1]
	if len(lvl.nodes) != 1 || lvl.nodes[0].parent != nil {
		return
	}
	n := lvl.nodes[0]
	base := n.offset * b.nfield
	copy(b.down[base:base+b.nfield], b.up[base:base+b.nfield])
}

func (b *BFBAllReducer) sweepDown(ctx context.Context) error {
	levels := b.ns.levels
	for il := len(levels) - 1; il >= 0; il-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		lvl := levels[il]
		for i, mmd := range lvl.me {
			buf := b.down[mmd.Offset*b.nfield : (mmd.Offset+mmd.Size)*b.nfield]
			lvl.meRecvReq[i] = b.pctx.Irecv(mmd.Rank, MPITag, buf)
		}
		if err := b.pctx.Waitall(lvl.meRecvReq); err != nil {
			return err
		}
		for _, n := range lvl.nodes {
			if n.nkids == 0 {
				continue
			}
			base := n.offset * b.nfield
			for k := 0; k < n.nkids; k++ {
				kbase := n.kids[k].offset * b.nfield
				copy(b.down[kbase:kbase+b.nfield], b.down[base:base+b.nfield])
			}
		}
		for i, mmd := range lvl.kids {
			buf := b.down[mmd.Offset*b.nfield : (mmd.Offset+mmd.Size)*b.nfield]
			lvl.kidsSendReq[i] = b.pctx.Isend(mmd.Rank, MPITag, buf)
		}
	}
	for _, lvl := range levels {
		if err := b.pctx.Waitall(lvl.kidsSendReq); err != nil {
			return err
		}
	}
	return nil
}
