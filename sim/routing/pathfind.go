package routing

import (
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/survnet/survsim/sim/topology"
)

// shortestNodePath runs Dijkstra on the view and returns the node names of
// the lowest-weight path from src to dst, or nil when dst is unreachable.
func shortestNodePath(v *topology.View, src, dst string) []string {
	s, ok := v.NodeID(src)
	if !ok {
		return nil
	}
	d, ok := v.NodeID(dst)
	if !ok {
		return nil
	}
	tree := path.DijkstraFrom(simple.Node(s), v)
	nodes, _ := tree.To(d)
	if len(nodes) < 2 {
		return nil
	}
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = v.NodeName(n.ID())
	}
	return names
}

// firstFit assigns a wavelength to every hop of a node path: the first
// candidate, in ascending wavelength order, that is free and has at least
// bandwidth available. Any hop without such a wavelength fails the whole
// path; nothing is reserved either way.
func firstFit(v *topology.View, nodes []string, bandwidth float64) topology.Path {
	p := make(topology.Path, 0, len(nodes)-1)
	for i := 0; i+1 < len(nodes); i++ {
		picked := false
		for _, e := range v.Candidates(nodes[i], nodes[i+1]) {
			if !e.InUse && e.Available >= bandwidth {
				p = append(p, e.Key)
				picked = true
				break
			}
		}
		if !picked {
			return nil
		}
	}
	return p
}

// findPath is shortest path + first-fit on one constrained view.
func findPath(v *topology.View, src, dst string, bandwidth float64) topology.Path {
	nodes := shortestNodePath(v, src, dst)
	if nodes == nil {
		return nil
	}
	return firstFit(v, nodes, bandwidth)
}
