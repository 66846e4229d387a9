package qlt

import "github.com/qlt-tree/qlt/transport"

// MPITag is the single message tag used for every QLT point-to-point
// exchange (spec.md §6, "Message wire format"). Because each level
// coalesces at most one message per peer per direction, one constant
// tag is enough to avoid ordering hazards.
const MPITag = 42

// nsNode is one vertex of the per-rank pruned tree produced by
// Analyze. It corresponds to spec.md §3's "NodeSets node".
type nsNode struct {
	rank   int
	id     int
	parent *nsNode
	kids   [2]*nsNode
	nkids  int
	offset int
}

func newNsNode() *nsNode {
	return &nsNode{rank: -1, id: -1, offset: -1}
}

// MPIMetaData describes one coalesced contiguous message window: a
// single isend/irecv of size offsets starting at base to or from
// peer rank.
type MPIMetaData struct {
	Rank   int
	Offset int
	Size   int
}

// Level is one dependency stratum of nodes owned by this rank, plus
// the coalesced communication metadata needed to drive that
// stratum's non-blocking messages (spec.md §3, "Level").
//
// Send and receive requests get distinct slices, even though a
// faithful port of cedr_qlt.cpp would reuse one array per list for
// both directions: the source defers some sends across the L2R/R2L
// boundary without waiting on them first, and reusing the same
// backing array for the R2L receive posted into that same list would
// silently drop the still-outstanding send request. Keeping them
// apart costs nothing and removes the hazard.
type Level struct {
	nodes []*nsNode

	me   []MPIMetaData
	kids []MPIMetaData

	meSendReq   []*transport.Request // L2R sends from me windows
	meRecvReq   []*transport.Request // R2L receives into me windows
	kidsRecvReq []*transport.Request // L2R receives into kids windows
	kidsSendReq []*transport.Request // R2L sends from kids windows
}

// NumNodes returns the number of nodes owned by this rank in the
// level.
func (l *Level) NumNodes() int { return len(l.nodes) }

// NodeSets is the per-rank pruned, level-scheduled view of the
// globally agreed tree produced by Analyze (spec.md §3). It is
// immutable once built.
type NodeSets struct {
	levels []*Level
	nslots int
	myRank int
}

// NumLevels returns the number of non-empty dependency levels.
func (ns *NodeSets) NumLevels() int { return len(ns.levels) }

// NumSlots returns the number of distinct BulkData offsets this rank
// uses.
func (ns *NodeSets) NumSlots() int { return ns.nslots }

// Level returns the i'th level, 0-indexed from the leaves.
func (ns *NodeSets) Level(i int) *Level { return ns.levels[i] }

// NumOwnedLeaves returns the number of leaves this rank owns.
func (ns *NodeSets) NumOwnedLeaves() int {
	if len(ns.levels) == 0 {
		return 0
	}
	return len(ns.levels[0].nodes)
}

// OwnedLeafGlobalIDs returns the global cell ids owned by this rank,
// ordered by local offset (spec.md §6 get_owned_glblcells).
func (ns *NodeSets) OwnedLeafGlobalIDs() []int {
	if len(ns.levels) == 0 {
		return nil
	}
	out := make([]int, len(ns.levels[0].nodes))
	for _, n := range ns.levels[0].nodes {
		out[n.offset] = n.id
	}
	return out
}

// offsetMultiset walks every owned node and every non-owned kid of an
// owned node, returning the multiset of offsets used. Exposed for the
// "offset uniqueness" testable property (spec.md §8).
func (ns *NodeSets) offsetMultiset() []int {
	var out []int
	for _, lvl := range ns.levels {
		for _, n := range lvl.nodes {
			out = append(out, n.offset)
			for i := 0; i < n.nkids; i++ {
				if n.kids[i].rank != ns.myRank {
					out = append(out, n.kids[i].offset)
				}
			}
		}
	}
	return out
}
