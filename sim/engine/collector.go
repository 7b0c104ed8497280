package engine

import (
	"github.com/survnet/survsim/sim"
	"github.com/survnet/survsim/sim/registry"
	"github.com/survnet/survsim/sim/routing"
	"github.com/survnet/survsim/sim/topology"
)

// View gives collectors read access to engine state after an event.
// Collectors must not mutate what it returns.
type View interface {
	Clock() int64
	Model() *topology.Model
	Registry() *registry.Registry
}

// Result is what the engine reports for one processed event.
type Result struct {
	Event *sim.Event
	// OK is the admission outcome for arrivals and the removed flag for
	// departures.
	OK bool
	// Outcome is set for arrivals only.
	Outcome *routing.Outcome
	// Orphaned names the borrower that lost its leased backup when this
	// departure removed the lender.
	Orphaned string
}

// Collector receives every processed event. Statistics, tracing and
// metrics live behind this interface; the engine makes no assumption about
// what they do.
type Collector interface {
	Observe(res Result, view View)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(res Result, view View)

// Observe implements Collector.
func (f CollectorFunc) Observe(res Result, view View) {
	f(res, view)
}
