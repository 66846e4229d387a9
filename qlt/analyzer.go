package qlt

import (
	"fmt"
	"sort"

	"github.com/qlt-tree/qlt/transport"
	"github.com/qlt-tree/qlt/tree"
)

// Analyze turns a globally agreed tree into this rank's pruned,
// level-scheduled NodeSets (spec.md §4.1). It never writes to root:
// every rank may be handed the same tree.Node objects (as every test
// in this package does, and as a single-process simulation of an
// MPI job naturally does), so the interior rank/id values it computes
// live only in its own side table, never back on the shared nodes.
// Every precondition violation is returned as an error rather than
// silently tolerated, and internal inconsistencies (which should be
// unreachable given a well-formed tree) panic.
func Analyze(ctx transport.Context, ncells int, root *tree.Node) (*NodeSets, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil tree", ErrMalformedTree)
	}
	if root.Parent != nil {
		return nil, fmt.Errorf("%w: root must not have a parent", ErrMalformedTree)
	}

	myRank := ctx.Rank()
	a := &analyzer{myRank: myRank, resolved: map[*tree.Node]*nsNode{}}

	depth, err := a.assignRanksAndIDs(root, ncells)
	if err != nil {
		return nil, err
	}
	if a.nleaves != ncells {
		return nil, fmt.Errorf("%w: tree has %d leaves, expected ncells=%d",
			ErrMalformedTree, a.nleaves, ncells)
	}

	ns := &NodeSets{myRank: myRank}
	ns.levels = make([]*Level, depth)
	for i := range ns.levels {
		ns.levels[i] = &Level{}
	}
	if _, _, err := a.collect(ns, root); err != nil {
		return nil, err
	}
	consolidate(ns)
	initComm(myRank, ns)
	return ns, nil
}

// nodeInfo is the rank/global-id pair the analyzer computes for one
// tree.Node. Interior nodes never had these values before analysis
// (tree.NewInterior leaves them at -1), and the analyzer must not
// write them back onto the node: a shared tree can be handed to every
// rank's Analyze call (each rank's own tree.Node objects in real MPI,
// one shared Go object in this in-process simulation), so any rank
// that mutated the node would corrupt every other rank's view of it.
type nodeInfo struct {
	rank int
	id   int
}

type analyzer struct {
	myRank   int
	nextID   int
	nleaves  int
	seenLeaf map[int]bool
	info     map[*tree.Node]nodeInfo
	resolved map[*tree.Node]*nsNode
}

// assignRanksAndIDs is Analyzer step 1: walk the tree once, assign
// interior cellidx values from a counter seeded at ncells, propagate
// rank upward as kids[0].rank, and validate leaf preconditions. It
// records every node's resolved (rank, id) into a.info rather than
// writing through n.Rank/n.CellIdx, since n is a caller-owned tree
// that must come back out of analysis unchanged.
func (a *analyzer) assignRanksAndIDs(n *tree.Node, ncells int) (depth int, err error) {
	if a.seenLeaf == nil {
		a.seenLeaf = make(map[int]bool, ncells)
		a.info = make(map[*tree.Node]nodeInfo, 2*ncells)
		a.nextID = ncells
	}
	if n.IsLeaf() {
		if n.CellIdx < 0 || n.CellIdx >= ncells {
			return 0, fmt.Errorf("%w: leaf cellidx %d not in [0, %d)",
				ErrCellIdxOutOfRange, n.CellIdx, ncells)
		}
		if a.seenLeaf[n.CellIdx] {
			return 0, fmt.Errorf("%w: cellidx %d", ErrDuplicateCellIdx, n.CellIdx)
		}
		a.seenLeaf[n.CellIdx] = true
		a.nleaves++
		if n.Rank < 0 {
			return 0, fmt.Errorf("%w: leaf cellidx %d has negative rank", ErrMalformedTree, n.CellIdx)
		}
		a.info[n] = nodeInfo{rank: n.Rank, id: n.CellIdx}
		return 1, nil
	}
	if n.Kids[0] == nil || n.Kids[1] == nil {
		return 0, fmt.Errorf("%w: interior node must have exactly two children", ErrMalformedTree)
	}
	if n.CellIdx != -1 {
		return 0, fmt.Errorf("%w: interior node cellidx must be unset before analysis (open question, see DESIGN.md)",
			ErrMalformedTree)
	}
	maxDepth := 0
	for _, k := range n.Kids {
		if k.Parent != n {
			return 0, fmt.Errorf("%w: child->parent link is inconsistent", ErrMalformedTree)
		}
		d, err := a.assignRanksAndIDs(k, ncells)
		if err != nil {
			return 0, err
		}
		if d > maxDepth {
			maxDepth = d
		}
	}
	id := a.nextID
	a.nextID++
	a.info[n] = nodeInfo{rank: a.info[n.Kids[0]].rank, id: id}
	return maxDepth + 1, nil
}

// collect is Analyzer step 2: recursively compute each node's level
// and materialize a NodeSets node wherever this rank owns the tree
// node, or a descendant required its parent to exist (spec.md §4.1
// step 2). It returns the node's level and whether the node's parent
// is needed, which is true exactly when the node itself is owned.
func (a *analyzer) collect(ns *NodeSets, n *tree.Node) (level int, needParent bool, err error) {
	level = -1
	makeNsNode := false
	for _, k := range n.Kids {
		if k == nil {
			continue
		}
		kidLevel, kidNeedsParent, err := a.collect(ns, k)
		if err != nil {
			return 0, false, err
		}
		if kidLevel > level {
			level = kidLevel
		}
		if kidNeedsParent {
			makeNsNode = true
		}
	}
	level++

	info := a.info[n]
	nodeOwned := info.rank == a.myRank
	needParent = nodeOwned

	if nodeOwned || makeNsNode {
		if _, already := a.resolved[n]; already {
			panic("qlt: analyzer visited the same tree node twice")
		}
		nsn := newNsNode()
		a.resolved[n] = nsn
		nsn.rank = info.rank
		nsn.id = info.id

		if nodeOwned {
			ns.levels[level].nodes = append(ns.levels[level].nodes, nsn)
			nsn.nkids = n.NKids()
			for i := 0; i < nsn.nkids; i++ {
				kid := n.Kids[i]
				kidInfo := a.info[kid]
				if kidNs, ok := a.resolved[kid]; !ok {
					kidNs = newNsNode()
					a.resolved[kid] = kidNs
					if kidInfo.rank == a.myRank {
						panic("qlt: owned kid was not materialized by its own recursion")
					}
					kidNs.rank = kidInfo.rank
					kidNs.id = kidInfo.id
					nsn.kids[i] = kidNs
				} else {
					kidNs.parent = nsn
					nsn.kids[i] = kidNs
				}
			}
		} else {
			nsn.nkids = 0
			for i := 0; i < n.NKids(); i++ {
				kid := n.Kids[i]
				if kidNs, ok := a.resolved[kid]; ok && a.info[kid].rank == a.myRank {
					kidNs.parent = nsn
					nsn.kids[nsn.nkids] = kidNs
					nsn.nkids++
				}
			}
		}
	}

	return level, needParent, nil
}

// consolidate removes empty levels, keeping relative order (spec.md
// §4.1 step 3).
func consolidate(ns *NodeSets) {
	out := ns.levels[:0]
	for _, lvl := range ns.levels {
		if len(lvl.nodes) > 0 {
			out = append(out, lvl)
		}
	}
	ns.levels = out
}

// rankNode pairs a materialized node with the rank it will
// communicate with in one direction (its own rank sentineled to -1,
// or the true peer rank), mirroring cedr_qlt.cpp's RankNode.
type rankNode struct {
	rank int
	node *nsNode
}

// initOffsets assigns each rankNode's offset field and emits coalesced
// MPIMetaData windows, one per distinct non-local peer rank, in
// stable rank order (spec.md §4.1 step 4).
func initOffsets(myRank int, rns []rankNode, nslots *int) []MPIMetaData {
	for i := range rns {
		if rns[i].rank == myRank {
			rns[i].rank = -1
		}
	}
	sort.SliceStable(rns, func(i, j int) bool { return rns[i].rank < rns[j].rank })

	var mmds []MPIMetaData
	prevRank := -2
	for i := range rns {
		rn := &rns[i]
		if rn.rank == -1 {
			if rn.node.offset == -1 {
				rn.node.offset = *nslots
				*nslots++
			}
			continue
		}
		if rn.rank != prevRank {
			if rn.rank <= prevRank {
				panic("qlt: rank groups are not increasing after stable sort")
			}
			prevRank = rn.rank
			mmds = append(mmds, MPIMetaData{Rank: rn.rank, Offset: *nslots, Size: 0})
		}
		mmds[len(mmds)-1].Size++
		rn.node.offset = *nslots
		*nslots++
	}
	return mmds
}

// initComm builds each level's me/kids communication metadata and
// assigns every node its BulkData offset (spec.md §4.1 step 4).
func initComm(myRank int, ns *NodeSets) {
	ns.nslots = 0
	for _, lvl := range ns.levels {
		nkids := 0
		for _, n := range lvl.nodes {
			nkids += n.nkids
		}

		me := make([]rankNode, len(lvl.nodes))
		kids := make([]rankNode, 0, nkids)
		for i, n := range lvl.nodes {
			if n.parent != nil {
				me[i] = rankNode{rank: n.parent.rank, node: n}
			} else {
				me[i] = rankNode{rank: myRank, node: n}
			}
			for k := 0; k < n.nkids; k++ {
				kids = append(kids, rankNode{rank: n.kids[k].rank, node: n.kids[k]})
			}
		}

		lvl.me = initOffsets(myRank, me, &ns.nslots)
		lvl.meSendReq = make([]*transport.Request, len(lvl.me))
		lvl.meRecvReq = make([]*transport.Request, len(lvl.me))
		lvl.kids = initOffsets(myRank, kids, &ns.nslots)
		lvl.kidsRecvReq = make([]*transport.Request, len(lvl.kids))
		lvl.kidsSendReq = make([]*transport.Request, len(lvl.kids))
	}
}
