package topology

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Epsilon keeps the routing weight finite on fully reserved edges.
const Epsilon = 1e-5

// slack absorbs floating point drift from interleaved reserve/release.
const slack = 1e-9

// Edge is one wavelength (unit of shareable capacity) of a directed fiber.
//
// Invariants, checked on every mutation:
//   - 0 <= Available <= Capacity
//   - InUse implies Available < Capacity
//   - Weight == 1 / (Available + Epsilon)
type Edge struct {
	Key       EdgeKey
	Capacity  float64
	Available float64
	InUse     bool
	Risks     RiskSet
	Weight    float64
}

func (e *Edge) reweigh() {
	e.Weight = 1 / (e.Available + Epsilon)
}

// EdgeState is the mutable part of an Edge, comparable with ==.
type EdgeState struct {
	Available float64
	InUse     bool
	Weight    float64
}

// LinkSpec describes a fiber between two nodes.
type LinkSpec struct {
	From        string
	To          string
	Capacity    float64     // per wavelength
	Wavelengths int         // parallel edges; 0 means 1
	Risks       []RiskGroup // in addition to the implicit fiber label
	Duplex      bool        // also add To->From with the same labels
}

type hop struct{ from, to int64 }

// Model is the topology resource model: a directed multigraph whose edges are
// per-wavelength channels. It does not know which call holds an edge; callers
// that release resources report whether anyone still holds the edge.
//
// Not safe for concurrent use.
type Model struct {
	nodes     []string
	nodeIDs   map[string]int64
	nodeRisks map[string]RiskSet
	edges     map[EdgeKey]*Edge
	order     []EdgeKey
	parallel  map[hop][]*Edge // ascending wavelength
}

// NewModel creates an empty model.
func NewModel() *Model {
	return &Model{
		nodeIDs:   make(map[string]int64),
		nodeRisks: make(map[string]RiskSet),
		edges:     make(map[EdgeKey]*Edge),
		parallel:  make(map[hop][]*Edge),
	}
}

// AddNode registers a node carrying its implicit NodeRisk label. Adding an
// existing node is a no-op.
func (m *Model) AddNode(name string) error {
	if name == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if _, ok := m.nodeIDs[name]; ok {
		return nil
	}
	m.nodeIDs[name] = int64(len(m.nodes))
	m.nodes = append(m.nodes, name)
	m.nodeRisks[name] = NewRiskSet(NodeRisk(name))
	return nil
}

// AddNodeRisks attaches extra labels (a site, a building) to an existing node.
func (m *Model) AddNodeRisks(name string, groups ...RiskGroup) error {
	risks, ok := m.nodeRisks[name]
	if !ok {
		return fmt.Errorf("node risks: unknown node %q", name)
	}
	for _, g := range groups {
		if g == "" {
			return fmt.Errorf("node risks: empty label on node %q", name)
		}
		risks.Add(g)
	}
	return nil
}

// NodeRisks returns a copy of the labels of node name.
func (m *Model) NodeRisks(name string) RiskSet {
	return m.nodeRisks[name].Clone()
}

// AddLink adds the wavelengths of a fiber. Both endpoints must exist.
func (m *Model) AddLink(spec LinkSpec) error {
	if spec.Wavelengths == 0 {
		spec.Wavelengths = 1
	}
	if spec.Wavelengths < 0 {
		return fmt.Errorf("link %s->%s: wavelengths must be positive, got %d", spec.From, spec.To, spec.Wavelengths)
	}
	if spec.Capacity <= 0 {
		return fmt.Errorf("link %s->%s: capacity must be positive, got %g", spec.From, spec.To, spec.Capacity)
	}
	if spec.From == spec.To {
		return fmt.Errorf("link %s->%s: self loops are not allowed", spec.From, spec.To)
	}
	if err := m.addDirected(spec.From, spec.To, spec); err != nil {
		return err
	}
	if spec.Duplex {
		return m.addDirected(spec.To, spec.From, spec)
	}
	return nil
}

func (m *Model) addDirected(from, to string, spec LinkSpec) error {
	u, ok := m.nodeIDs[from]
	if !ok {
		return fmt.Errorf("link %s->%s: unknown node %q", from, to, from)
	}
	v, ok := m.nodeIDs[to]
	if !ok {
		return fmt.Errorf("link %s->%s: unknown node %q", from, to, to)
	}
	h := hop{u, v}
	if _, exists := m.parallel[h]; exists {
		return fmt.Errorf("link %s->%s already exists", from, to)
	}
	risks := NewRiskSet(spec.Risks...)
	risks.Add(FiberRisk(from, to))
	for w := 0; w < spec.Wavelengths; w++ {
		e := &Edge{
			Key:       EdgeKey{From: from, To: to, Wavelength: w},
			Capacity:  spec.Capacity,
			Available: spec.Capacity,
			Risks:     risks.Clone(),
		}
		e.reweigh()
		m.edges[e.Key] = e
		m.order = append(m.order, e.Key)
		m.parallel[h] = append(m.parallel[h], e)
	}
	return nil
}

// Nodes returns node names in insertion order.
func (m *Model) Nodes() []string {
	return append([]string(nil), m.nodes...)
}

// HasNode reports whether name is a node.
func (m *Model) HasNode(name string) bool {
	_, ok := m.nodeIDs[name]
	return ok
}

// Edge returns a copy of the edge for k.
func (m *Model) Edge(k EdgeKey) (Edge, bool) {
	e, ok := m.edges[k]
	if !ok {
		return Edge{}, false
	}
	c := *e
	c.Risks = e.Risks.Clone()
	return c, true
}

// EdgeKeys returns every edge key in insertion order.
func (m *Model) EdgeKeys() []EdgeKey {
	return append([]EdgeKey(nil), m.order...)
}

// NumEdges returns the number of wavelength edges.
func (m *Model) NumEdges() int {
	return len(m.order)
}

// Reserve takes bandwidth on every edge of p: decrements Available, marks
// the edge in use and recomputes its weight.
//
// Admission control must have checked feasibility already. A missing edge or
// insufficient bandwidth is a bookkeeping defect and panics before anything
// is mutated.
func (m *Model) Reserve(p Path, bandwidth float64) {
	if bandwidth <= 0 {
		panic(fmt.Sprintf("reserve: non-positive bandwidth %g", bandwidth))
	}
	demand := make(map[EdgeKey]float64, len(p))
	for _, k := range p {
		demand[k] += bandwidth
	}
	for _, k := range p {
		e, ok := m.edges[k]
		if !ok {
			panic(fmt.Sprintf("reserve: unknown edge %s", k))
		}
		if e.Available < demand[k] {
			panic(fmt.Sprintf("reserve: edge %s has %g available, need %g", k, e.Available, demand[k]))
		}
	}
	for _, k := range p {
		e := m.edges[k]
		e.Available -= bandwidth
		e.InUse = true
		e.reweigh()
	}
	logrus.Debugf("reserved %g on %s", bandwidth, p)
}

// Release returns bandwidth on every edge of p. held reports whether some
// other holder still occupies an edge after this release; InUse is cleared
// only when it returns false. A nil held means nobody else holds anything.
//
// Releasing more than was reserved, an edge reported as held while fully
// free, or an unheld edge that still carries a reservation panics.
func (m *Model) Release(p Path, bandwidth float64, held func(EdgeKey) bool) {
	if bandwidth <= 0 {
		panic(fmt.Sprintf("release: non-positive bandwidth %g", bandwidth))
	}
	returned := make(map[EdgeKey]float64, len(p))
	for _, k := range p {
		returned[k] += bandwidth
	}
	for _, k := range p {
		e, ok := m.edges[k]
		if !ok {
			panic(fmt.Sprintf("release: unknown edge %s", k))
		}
		if e.Available+returned[k] > e.Capacity+slack {
			panic(fmt.Sprintf("release: edge %s would exceed capacity (%g + %g > %g)",
				k, e.Available, returned[k], e.Capacity))
		}
	}
	for _, k := range p {
		e := m.edges[k]
		e.Available += bandwidth
		e.InUse = held != nil && held(k)
		switch {
		case e.InUse && e.Available >= e.Capacity:
			panic(fmt.Sprintf("release: edge %s reported held but has no bandwidth reserved", k))
		case !e.InUse && e.Capacity-e.Available > slack:
			panic(fmt.Sprintf("release: edge %s has no holder but %g still reserved", k, e.Capacity-e.Available))
		case !e.InUse:
			e.Available = e.Capacity
		}
		e.reweigh()
	}
	logrus.Debugf("released %g on %s", bandwidth, p)
}

// Feasible reports whether every edge of p exists and has at least bandwidth
// available.
func (m *Model) Feasible(p Path, bandwidth float64) bool {
	for _, k := range p {
		e, ok := m.edges[k]
		if !ok || e.Available < bandwidth {
			return false
		}
	}
	return true
}

// RisksOf returns the union of risk labels touched by p: the labels of its
// edges and of the nodes it transits. Its endpoints are not counted.
func (m *Model) RisksOf(p Path) RiskSet {
	s := make(RiskSet)
	for _, k := range p {
		if e, ok := m.edges[k]; ok {
			s.Union(e.Risks)
		}
	}
	nodes := p.Nodes()
	for i := 1; i < len(nodes)-1; i++ {
		s.Union(m.nodeRisks[nodes[i]])
	}
	return s
}

// Disjoint reports whether a and b share neither an edge nor a risk label.
// Two paths through the same transit node are never disjoint.
func (m *Model) Disjoint(a, b Path) bool {
	if a.SharesEdge(b) {
		return false
	}
	return !m.RisksOf(a).Intersects(m.RisksOf(b))
}

// Snapshot captures the mutable state of every edge.
func (m *Model) Snapshot() map[EdgeKey]EdgeState {
	snap := make(map[EdgeKey]EdgeState, len(m.edges))
	for k, e := range m.edges {
		snap[k] = EdgeState{Available: e.Available, InUse: e.InUse, Weight: e.Weight}
	}
	return snap
}

// Utilization returns reserved bandwidth over total capacity, in [0, 1].
func (m *Model) Utilization() float64 {
	var reserved, total float64
	for _, e := range m.edges {
		reserved += e.Capacity - e.Available
		total += e.Capacity
	}
	if total == 0 {
		return 0
	}
	return reserved / total
}

// Check verifies the per-edge invariants and returns the first violation.
func (m *Model) Check() error {
	for _, k := range m.order {
		e := m.edges[k]
		switch {
		case e.Available < 0:
			return fmt.Errorf("edge %s: negative available bandwidth %g", k, e.Available)
		case e.Available > e.Capacity:
			return fmt.Errorf("edge %s: available %g exceeds capacity %g", k, e.Available, e.Capacity)
		case e.InUse && e.Available >= e.Capacity:
			return fmt.Errorf("edge %s: in use with nothing reserved", k)
		case e.Weight != 1/(e.Available+Epsilon):
			return fmt.Errorf("edge %s: stale weight %g", k, e.Weight)
		}
	}
	return nil
}
