package topology

import (
	"fmt"
	"sort"
)

// RiskGroup labels a shared physical resource (conduit, fiber, site). Edges
// carrying the same label fail together.
type RiskGroup string

// FiberRisk returns the implicit label shared by every wavelength and both
// directions of the fiber between a and b.
func FiberRisk(a, b string) RiskGroup {
	if b < a {
		a, b = b, a
	}
	return RiskGroup(fmt.Sprintf("fiber:%s-%s", a, b))
}

// NodeRisk returns the implicit label of node n. A path carries it when it
// transits n.
func NodeRisk(n string) RiskGroup {
	return RiskGroup("node:" + n)
}

// RiskSet is a set of risk groups.
type RiskSet map[RiskGroup]struct{}

// NewRiskSet builds a set from the given labels.
func NewRiskSet(groups ...RiskGroup) RiskSet {
	s := make(RiskSet, len(groups))
	for _, g := range groups {
		s.Add(g)
	}
	return s
}

// Add inserts g.
func (s RiskSet) Add(g RiskGroup) {
	s[g] = struct{}{}
}

// Has reports membership. Safe on a nil set.
func (s RiskSet) Has(g RiskGroup) bool {
	_, ok := s[g]
	return ok
}

// Union adds every member of other to s.
func (s RiskSet) Union(other RiskSet) {
	for g := range other {
		s[g] = struct{}{}
	}
}

// Intersects reports whether s and other share any label.
func (s RiskSet) Intersects(other RiskSet) bool {
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for g := range small {
		if large.Has(g) {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (s RiskSet) Clone() RiskSet {
	c := make(RiskSet, len(s))
	c.Union(s)
	return c
}

// Sorted returns the labels in lexical order.
func (s RiskSet) Sorted() []RiskGroup {
	out := make([]RiskGroup, 0, len(s))
	for g := range s {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
