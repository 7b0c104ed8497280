// Package observability exposes simulation outcomes as Prometheus metrics.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/survnet/survsim/sim"
	"github.com/survnet/survsim/sim/engine"
)

// Outcome label values for survsim_calls_total.
const (
	OutcomeBlocked     = "blocked"
	OutcomeUnprotected = "unprotected"
	OutcomeProtected   = "protected"
	OutcomeLeased      = "leased"
)

// SimCollector bundles the run metrics and implements engine.Collector.
type SimCollector struct {
	gatherer prometheus.Gatherer

	Calls        *prometheus.CounterVec
	Departures   *prometheus.CounterVec
	BackupsLost  prometheus.Counter
	WorkingHops  prometheus.Histogram
	ActiveCalls  prometheus.Gauge
	ActiveLeases prometheus.Gauge
	Utilization  prometheus.Gauge
	SimClock     prometheus.Gauge
}

var _ engine.Collector = (*SimCollector)(nil)

// NewSimCollector registers the simulation metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewSimCollector(reg prometheus.Registerer) (*SimCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	calls, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "survsim_calls_total",
		Help: "Arriving calls by admission outcome.",
	}, []string{"outcome"}), "survsim_calls_total")
	if err != nil {
		return nil, err
	}
	departures, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "survsim_departures_total",
		Help: "Departure events, labeled removed or noop.",
	}, []string{"result"}), "survsim_departures_total")
	if err != nil {
		return nil, err
	}
	lost, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "survsim_backups_lost_total",
		Help: "Leased backups withdrawn because the lending call departed.",
	}), "survsim_backups_lost_total")
	if err != nil {
		return nil, err
	}
	hops, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "survsim_working_path_hops",
		Help:    "Hop count of admitted working paths.",
		Buckets: prometheus.LinearBuckets(1, 1, 10),
	}), "survsim_working_path_hops")
	if err != nil {
		return nil, err
	}
	active, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "survsim_active_calls",
		Help: "Calls currently holding resources.",
	}), "survsim_active_calls")
	if err != nil {
		return nil, err
	}
	leases, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "survsim_active_leases",
		Help: "Backup leases currently in force.",
	}), "survsim_active_leases")
	if err != nil {
		return nil, err
	}
	util, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "survsim_link_utilization",
		Help: "Reserved over total capacity across all wavelength edges.",
	}), "survsim_link_utilization")
	if err != nil {
		return nil, err
	}
	clock, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "survsim_clock_ticks",
		Help: "Simulation clock after the last processed event.",
	}), "survsim_clock_ticks")
	if err != nil {
		return nil, err
	}

	return &SimCollector{
		gatherer:     gatherer,
		Calls:        calls,
		Departures:   departures,
		BackupsLost:  lost,
		WorkingHops:  hops,
		ActiveCalls:  active,
		ActiveLeases: leases,
		Utilization:  util,
		SimClock:     clock,
	}, nil
}

// Observe implements engine.Collector.
func (c *SimCollector) Observe(res engine.Result, view engine.View) {
	if c == nil {
		return
	}
	switch res.Event.Type {
	case sim.EventTypeArrival:
		out := res.Outcome
		switch {
		case !res.OK:
			c.Calls.WithLabelValues(OutcomeBlocked).Inc()
		case out.Shared():
			c.Calls.WithLabelValues(OutcomeLeased).Inc()
		case len(out.Backup) > 0:
			c.Calls.WithLabelValues(OutcomeProtected).Inc()
		default:
			c.Calls.WithLabelValues(OutcomeUnprotected).Inc()
		}
		if res.OK {
			c.WorkingHops.Observe(float64(out.Working.Hops()))
		}
	case sim.EventTypeDeparture:
		result := "noop"
		if res.OK {
			result = "removed"
		}
		c.Departures.WithLabelValues(result).Inc()
		if res.Orphaned != "" {
			c.BackupsLost.Inc()
		}
	}
	c.ActiveCalls.Set(float64(view.Registry().Len()))
	c.ActiveLeases.Set(float64(len(view.Registry().Leases())))
	c.Utilization.Set(view.Model().Utilization())
	c.SimClock.Set(float64(view.Clock()))
}

// WriteTextfile writes the gathered metrics in the text exposition format,
// for pickup by a node-exporter textfile collector.
func (c *SimCollector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.gatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerHistogram(reg prometheus.Registerer, h prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(h); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return h, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
