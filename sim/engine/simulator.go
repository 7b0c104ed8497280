// Package engine runs the control loop: it pops events from the scheduler,
// hands arrivals to the allocator and departures to the registry, and
// forwards every outcome to the collectors.
package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/survnet/survsim/sim"
	"github.com/survnet/survsim/sim/registry"
	"github.com/survnet/survsim/sim/routing"
	"github.com/survnet/survsim/sim/topology"
)

// Simulator owns the resource model and registry for the duration of a run
// and processes exactly one event at a time to completion.
type Simulator struct {
	clock   int64
	Horizon int64

	scheduler  *sim.Scheduler
	model      *topology.Model
	reg        *registry.Registry
	alloc      routing.Allocator
	collectors []Collector
	verify     bool

	nextEventID int64
	summary     Summary
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithHorizon stops the run before the first event later than horizon.
func WithHorizon(horizon int64) Option {
	return func(s *Simulator) { s.Horizon = horizon }
}

// WithCollector adds a collector. Collectors are called in the order added.
func WithCollector(c Collector) Option {
	return func(s *Simulator) { s.collectors = append(s.collectors, c) }
}

// WithVerify cross-checks registry and model accounting after every event.
func WithVerify(on bool) Option {
	return func(s *Simulator) { s.verify = on }
}

// New creates a simulator. alloc and reg must have been built over model.
func New(model *topology.Model, alloc routing.Allocator, reg *registry.Registry, opts ...Option) *Simulator {
	s := &Simulator{
		Horizon:   math.MaxInt64,
		scheduler: sim.NewScheduler(),
		model:     model,
		reg:       reg,
		alloc:     alloc,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock implements View.
func (s *Simulator) Clock() int64 { return s.clock }

// Model implements View.
func (s *Simulator) Model() *topology.Model { return s.model }

// Registry implements View.
func (s *Simulator) Registry() *registry.Registry { return s.reg }

// Schedule adds an event to the queue.
func (s *Simulator) Schedule(ev *sim.Event) {
	s.scheduler.Schedule(ev)
}

// ScheduleCall schedules the arrival and the departure of c.
func (s *Simulator) ScheduleCall(c *sim.Call) {
	if c.HoldingTime < 0 {
		panic(fmt.Sprintf("call %s: negative holding time %d", c.ID, c.HoldingTime))
	}
	s.Schedule(sim.NewArrivalEvent(s.newEventID(), c))
	s.Schedule(sim.NewDepartureEvent(s.newEventID(), c))
}

// ScheduleCalls schedules every call in order.
func (s *Simulator) ScheduleCalls(calls []*sim.Call) {
	for _, c := range calls {
		s.ScheduleCall(c)
	}
}

func (s *Simulator) newEventID() int64 {
	s.nextEventID++
	return s.nextEventID
}

// Pending reports the number of queued events.
func (s *Simulator) Pending() int {
	return s.scheduler.PendingCount()
}

// Run processes events until the queue drains, the horizon is passed or ctx
// is cancelled. Cancellation is only observed between events.
func (s *Simulator) Run(ctx context.Context) (*Summary, error) {
	logrus.Infof("[tick %012d] simulation started with %d events, allocator=%s",
		s.clock, s.scheduler.PendingCount(), s.alloc.Name())
	for s.scheduler.PendingCount() > 0 {
		if err := ctx.Err(); err != nil {
			return s.Summary(), err
		}
		if s.scheduler.Peek().Timestamp > s.Horizon {
			logrus.Infof("[tick %012d] horizon %d reached with %d events pending",
				s.clock, s.Horizon, s.scheduler.PendingCount())
			break
		}
		res := s.Step()
		if s.verify {
			if err := s.reg.Verify(); err != nil {
				return s.Summary(), fmt.Errorf("after event %d (%s %s): %w",
					res.Event.ID, res.Event.Type, res.Event.Call.ID, err)
			}
		}
	}
	logrus.Infof("[tick %012d] simulation ended", s.clock)
	return s.Summary(), nil
}

// Step processes the next event. It panics when the queue is empty.
func (s *Simulator) Step() Result {
	ev := s.scheduler.Next()
	if ev == nil {
		panic("step: no pending events")
	}
	if ev.Timestamp < s.clock {
		panic(fmt.Sprintf("clock went backwards: %d < %d", ev.Timestamp, s.clock))
	}
	s.clock = ev.Timestamp

	var res Result
	switch ev.Type {
	case sim.EventTypeArrival:
		res = s.handleArrival(ev)
	case sim.EventTypeDeparture:
		res = s.handleDeparture(ev)
	default:
		panic(fmt.Sprintf("unknown event type %q", ev.Type))
	}
	for _, c := range s.collectors {
		c.Observe(res, s)
	}
	return res
}

func (s *Simulator) handleArrival(ev *sim.Event) Result {
	c := ev.Call
	out := s.alloc.Route(c)
	s.summary.Arrivals++
	if out.Admitted {
		s.summary.Admitted++
		if len(out.Backup) > 0 {
			s.summary.Protected++
		}
		if out.Shared() {
			s.summary.Shared++
		}
		s.summary.WorkingHops += int64(out.Working.Hops())
		logrus.Debugf("[tick %012d] << arrival %s admitted (%s)", s.clock, c.ID, out.Reason)
	} else {
		s.summary.Blocked++
		s.summary.BlockedBandwidth += c.Bandwidth
		logrus.Debugf("[tick %012d] << arrival %s blocked (%s)", s.clock, c.ID, out.Reason)
	}
	s.summary.OfferedBandwidth += c.Bandwidth
	return Result{Event: ev, OK: out.Admitted, Outcome: &out}
}

func (s *Simulator) handleDeparture(ev *sim.Event) Result {
	var orphaned string
	if e, ok := s.reg.Lookup(ev.Call.ID); ok {
		orphaned = e.LentTo
	}
	removed := s.reg.Remove(ev.Call.ID)
	s.summary.Departures++
	if removed {
		s.summary.Removed++
	}
	if orphaned != "" {
		s.summary.BackupsLost++
		logrus.Debugf("[tick %012d] %s lost its leased backup", s.clock, orphaned)
	}
	logrus.Debugf("[tick %012d] >> departure %s removed=%v", s.clock, ev.Call.ID, removed)
	return Result{Event: ev, OK: removed, Orphaned: orphaned}
}

// Summary returns the counters accumulated so far.
func (s *Simulator) Summary() *Summary {
	sum := s.summary
	sum.SimEndedTime = s.clock
	sum.ActiveCalls = s.reg.Len()
	sum.Utilization = s.model.Utilization()
	return &sum
}
