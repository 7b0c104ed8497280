package workload

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/survnet/survsim/sim"
)

const ticksPerSecond = 1e6

// Generate builds the call list described by spec over the given node names.
// Deterministic given the same spec, seed and node order. Calls are sorted by
// ArrivalTime, ties broken by position in the list.
func Generate(spec *Spec, nodes []string) ([]*sim.Call, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid workload spec: %w", err)
	}
	known := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		known[n] = true
	}
	if len(spec.Calls) > 0 {
		return explicitCalls(spec.Calls, known)
	}

	pairs, err := endpointPairs(spec.Pairs, nodes, known)
	if err != nil {
		return nil, err
	}

	streams := sim.NewStreams(spec.Seed)
	arrivalRNG := streams.Stream(sim.StreamArrivals)
	endpointRNG := streams.Stream(sim.StreamEndpoints)
	demandRNG := streams.Stream(sim.StreamDemand)

	gaps := NewGapSource(spec.Arrival, spec.ArrivalRate)
	meanHolding := spec.MeanHolding * ticksPerSecond

	calls := make([]*sim.Call, 0, spec.NumCalls)
	now := int64(0)
	for i := 0; i < spec.NumCalls; i++ {
		now += gaps.Next(arrivalRNG)
		holding := ticks(arrivalRNG.ExpFloat64() * meanHolding)

		p := pairs[endpointRNG.Intn(len(pairs))]
		bw := spec.Bandwidth.Min
		if spread := spec.Bandwidth.Max - spec.Bandwidth.Min; spread > 0 {
			bw += demandRNG.Float64() * spread
		}
		sec := spec.SecurityMix.sample(demandRNG)

		c := sim.NewCall(fmt.Sprintf("call_%d", i), p.Source, p.Destination, bw, sec)
		c.ArrivalTime = now
		c.HoldingTime = holding
		calls = append(calls, c)
	}
	logrus.Infof("generated %d calls over %d endpoint pairs (seed %d)", len(calls), len(pairs), spec.Seed)
	return calls, nil
}

func explicitCalls(specs []CallSpec, known map[string]bool) ([]*sim.Call, error) {
	calls := make([]*sim.Call, 0, len(specs))
	for i, cs := range specs {
		if !known[cs.Source] || !known[cs.Destination] {
			return nil, fmt.Errorf("calls[%d]: unknown endpoint in %q -> %q", i, cs.Source, cs.Destination)
		}
		c := sim.NewCall(cs.ID, cs.Source, cs.Destination, cs.Bandwidth, sim.Security(cs.Security))
		c.ArrivalTime = cs.Arrival
		c.HoldingTime = cs.Holding
		calls = append(calls, c)
	}
	sort.SliceStable(calls, func(i, j int) bool {
		return calls[i].ArrivalTime < calls[j].ArrivalTime
	})
	return calls, nil
}

func endpointPairs(configured []PairSpec, nodes []string, known map[string]bool) ([]PairSpec, error) {
	if len(configured) > 0 {
		for i, p := range configured {
			if !known[p.Source] || !known[p.Destination] {
				return nil, fmt.Errorf("pairs[%d]: unknown endpoint in %q -> %q", i, p.Source, p.Destination)
			}
		}
		return configured, nil
	}
	if len(nodes) < 2 {
		return nil, fmt.Errorf("need at least 2 nodes to generate calls, got %d", len(nodes))
	}
	pairs := make([]PairSpec, 0, len(nodes)*(len(nodes)-1))
	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				pairs = append(pairs, PairSpec{Source: a, Destination: b})
			}
		}
	}
	return pairs, nil
}

// sample draws a security level proportionally to the weights.
func (m SecurityMix) sample(rng *rand.Rand) sim.Security {
	total := m.None + m.BestEffort + m.Mandatory
	if total <= 0 {
		return sim.SecurityNone
	}
	u := rng.Float64() * total
	switch {
	case u < m.None:
		return sim.SecurityNone
	case u < m.None+m.BestEffort:
		return sim.SecurityBestEffort
	default:
		return sim.SecurityMandatory
	}
}
