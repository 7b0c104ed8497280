package topology

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
)

// ViewOptions selects which edges survive in a constrained view.
type ViewOptions struct {
	// ExcludeUsed drops edges currently marked in use.
	ExcludeUsed bool
	// ExcludeRisks drops edges carrying any of these labels, and every edge
	// touching a node that carries one, unless that node is a terminal.
	ExcludeRisks RiskSet
	// Terminals are exempt from node-level exclusion. Pass the endpoints of
	// the call being routed.
	Terminals []string
	// ExcludeEdges drops these specific edges.
	ExcludeEdges Path
}

// View is a pruned, read-only copy of the model used as the auxiliary graph
// for shortest-path search. Building or querying a View never mutates the
// model.
//
// View implements gonum's graph.Weighted. Parallel wavelengths collapse into
// one node-level edge whose weight is the smallest weight among the surviving
// wavelengths. From iterates neighbours in ascending node id (model insertion
// order), which keeps Dijkstra deterministic on equal-cost paths.
type View struct {
	names   []string
	ids     map[string]int64
	out     map[int64][]int64
	edges   map[hop][]Edge // ascending wavelength
	weights map[hop]float64
}

var _ graph.Weighted = (*View)(nil)

// BuildConstrainedView returns a pruned copy of the graph. The view owns its
// node tables; nodes added to the model afterwards do not appear in it.
func (m *Model) BuildConstrainedView(opts ViewOptions) *View {
	v := &View{
		names:   append([]string(nil), m.nodes...),
		ids:     make(map[string]int64, len(m.nodeIDs)),
		out:     make(map[int64][]int64),
		edges:   make(map[hop][]Edge),
		weights: make(map[hop]float64),
	}
	for name, id := range m.nodeIDs {
		v.ids[name] = id
	}
	skip := make(map[EdgeKey]struct{}, len(opts.ExcludeEdges))
	for _, k := range opts.ExcludeEdges {
		skip[k] = struct{}{}
	}
	terminal := make(map[string]bool, len(opts.Terminals))
	for _, n := range opts.Terminals {
		terminal[n] = true
	}
	banned := make(map[string]bool)
	for _, n := range m.nodes {
		if !terminal[n] && m.nodeRisks[n].Intersects(opts.ExcludeRisks) {
			banned[n] = true
		}
	}

	for _, k := range m.order {
		e := m.edges[k]
		if opts.ExcludeUsed && e.InUse {
			continue
		}
		if _, ok := skip[k]; ok {
			continue
		}
		if e.Risks.Intersects(opts.ExcludeRisks) || banned[k.From] || banned[k.To] {
			continue
		}
		h := hop{m.nodeIDs[k.From], m.nodeIDs[k.To]}
		if _, seen := v.edges[h]; !seen {
			v.out[h.from] = append(v.out[h.from], h.to)
			v.weights[h] = e.Weight
		} else if e.Weight < v.weights[h] {
			v.weights[h] = e.Weight
		}
		c := *e
		c.Risks = e.Risks.Clone()
		v.edges[h] = append(v.edges[h], c)
	}
	for from := range v.out {
		ids := v.out[from]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return v
}

// NodeID maps a node name to its graph id.
func (v *View) NodeID(name string) (int64, bool) {
	id, ok := v.ids[name]
	return id, ok
}

// NodeName maps a graph id back to its node name.
func (v *View) NodeName(id int64) string {
	if id < 0 || id >= int64(len(v.names)) {
		return ""
	}
	return v.names[id]
}

// Candidates returns the surviving wavelengths from one node to another in
// ascending wavelength order.
func (v *View) Candidates(from, to string) []Edge {
	u, ok := v.ids[from]
	if !ok {
		return nil
	}
	w, ok := v.ids[to]
	if !ok {
		return nil
	}
	return v.edges[hop{u, w}]
}

// NumEdges returns the number of surviving wavelength edges.
func (v *View) NumEdges() int {
	n := 0
	for _, es := range v.edges {
		n += len(es)
	}
	return n
}

// Node implements graph.Graph.
func (v *View) Node(id int64) graph.Node {
	if id < 0 || id >= int64(len(v.names)) {
		return nil
	}
	return simple.Node(id)
}

// Nodes implements graph.Graph.
func (v *View) Nodes() graph.Nodes {
	nodes := make([]graph.Node, len(v.names))
	for i := range v.names {
		nodes[i] = simple.Node(int64(i))
	}
	return iterator.NewOrderedNodes(nodes)
}

// From implements graph.Graph.
func (v *View) From(id int64) graph.Nodes {
	ids := v.out[id]
	if len(ids) == 0 {
		return graph.Empty
	}
	nodes := make([]graph.Node, len(ids))
	for i, to := range ids {
		nodes[i] = simple.Node(to)
	}
	return iterator.NewOrderedNodes(nodes)
}

// HasEdgeBetween implements graph.Graph.
func (v *View) HasEdgeBetween(xid, yid int64) bool {
	_, xy := v.weights[hop{xid, yid}]
	_, yx := v.weights[hop{yid, xid}]
	return xy || yx
}

// Edge implements graph.Graph.
func (v *View) Edge(uid, vid int64) graph.Edge {
	if _, ok := v.weights[hop{uid, vid}]; !ok {
		return nil
	}
	return v.WeightedEdge(uid, vid)
}

// WeightedEdge implements graph.Weighted.
func (v *View) WeightedEdge(uid, vid int64) graph.WeightedEdge {
	w, ok := v.weights[hop{uid, vid}]
	if !ok {
		return nil
	}
	return simple.WeightedEdge{F: simple.Node(uid), T: simple.Node(vid), W: w}
}

// Weight implements graph.Weighted.
func (v *View) Weight(xid, yid int64) (float64, bool) {
	if xid == yid {
		return 0, true
	}
	if w, ok := v.weights[hop{xid, yid}]; ok {
		return w, true
	}
	return math.Inf(1), false
}
