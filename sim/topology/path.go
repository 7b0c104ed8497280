package topology

import (
	"fmt"
	"strings"
)

// EdgeKey identifies one wavelength of one directed fiber: the
// (start-node, end-node, wavelength-index) triple.
type EdgeKey struct {
	From       string
	To         string
	Wavelength int
}

func (k EdgeKey) String() string {
	return fmt.Sprintf("%s->%s#%d", k.From, k.To, k.Wavelength)
}

// Path is an ordered sequence of edges. A nil Path means "no path".
type Path []EdgeKey

// Hops returns the number of edges.
func (p Path) Hops() int {
	return len(p)
}

// Nodes returns the visited node names, source first.
func (p Path) Nodes() []string {
	if len(p) == 0 {
		return nil
	}
	nodes := make([]string, 0, len(p)+1)
	nodes = append(nodes, p[0].From)
	for _, k := range p {
		nodes = append(nodes, k.To)
	}
	return nodes
}

// Source returns the first node, or "" for an empty path.
func (p Path) Source() string {
	if len(p) == 0 {
		return ""
	}
	return p[0].From
}

// Destination returns the last node, or "" for an empty path.
func (p Path) Destination() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1].To
}

// Contains reports whether k is on the path.
func (p Path) Contains(k EdgeKey) bool {
	for _, e := range p {
		if e == k {
			return true
		}
	}
	return false
}

// SharesEdge reports whether p and other have an edge in common.
func (p Path) SharesEdge(other Path) bool {
	seen := make(map[EdgeKey]struct{}, len(p))
	for _, k := range p {
		seen[k] = struct{}{}
	}
	for _, k := range other {
		if _, ok := seen[k]; ok {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return append(Path(nil), p...)
}

func (p Path) String() string {
	if len(p) == 0 {
		return "<none>"
	}
	parts := make([]string, len(p))
	for i, k := range p {
		parts[i] = k.String()
	}
	return strings.Join(parts, " ")
}
