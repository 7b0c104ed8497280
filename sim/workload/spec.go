// Package workload turns a YAML traffic description into a deterministic,
// arrival-ordered list of calls for the engine.
package workload

import (
	"bytes"
	"fmt"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/survnet/survsim/sim"
)

// SpecVersion is the current workload file version.
const SpecVersion = "1"

// Spec describes the offered traffic of one run.
//
// Either NumCalls synthetic calls are drawn from the arrival, holding,
// bandwidth and security distributions, or Calls lists them explicitly.
type Spec struct {
	Version string `yaml:"version"`
	Seed    int64  `yaml:"seed"`

	NumCalls int `yaml:"num_calls,omitempty"`
	// ArrivalRate is in calls per second.
	ArrivalRate float64     `yaml:"arrival_rate,omitempty"`
	Arrival     ArrivalSpec `yaml:"arrival,omitempty"`
	// MeanHolding is in seconds.
	MeanHolding float64       `yaml:"mean_holding,omitempty"`
	Bandwidth   BandwidthSpec `yaml:"bandwidth,omitempty"`
	SecurityMix SecurityMix   `yaml:"security_mix,omitempty"`
	// Pairs restricts endpoints; empty means any ordered pair of distinct nodes.
	Pairs []PairSpec `yaml:"pairs,omitempty"`

	Calls []CallSpec `yaml:"calls,omitempty"`
}

// ArrivalSpec selects the inter-arrival process.
type ArrivalSpec struct {
	Process string   `yaml:"process"`
	CV      *float64 `yaml:"cv,omitempty"`
}

// BandwidthSpec is a uniform bandwidth range. Min == Max gives a constant.
type BandwidthSpec struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// SecurityMix holds relative weights of the security levels. They need not
// sum to one; all zero means every call is SecurityNone.
type SecurityMix struct {
	None       float64 `yaml:"none"`
	BestEffort float64 `yaml:"best_effort"`
	Mandatory  float64 `yaml:"mandatory"`
}

// PairSpec is one allowed source/destination pair.
type PairSpec struct {
	Source      string `yaml:"source"`
	Destination string `yaml:"destination"`
}

// CallSpec is an explicit call. Times are in ticks.
type CallSpec struct {
	ID          string  `yaml:"id"`
	Source      string  `yaml:"source"`
	Destination string  `yaml:"destination"`
	Bandwidth   float64 `yaml:"bandwidth"`
	Security    string  `yaml:"security,omitempty"`
	Arrival     int64   `yaml:"arrival"`
	Holding     int64   `yaml:"holding"`
}

var validArrivalProcesses = map[string]bool{
	"": true, "poisson": true, "gamma": true, "constant": true,
}

// LoadSpec reads and parses a YAML workload file.
// Unrecognized keys are rejected.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workload spec: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec parses a YAML workload document.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing workload spec: %w", err)
	}
	if spec.Version != "" && spec.Version != SpecVersion {
		logrus.Warnf("workload spec version %q is not %q; parsing anyway", spec.Version, SpecVersion)
	}
	return &spec, nil
}

// Validate checks the spec on its own. Node names are checked by Generate,
// which knows the topology.
func (s *Spec) Validate() error {
	if s.NumCalls < 0 {
		return fmt.Errorf("num_calls must be non-negative, got %d", s.NumCalls)
	}
	if s.NumCalls == 0 && len(s.Calls) == 0 {
		return fmt.Errorf("either num_calls or calls is required")
	}
	if s.NumCalls > 0 && len(s.Calls) > 0 {
		return fmt.Errorf("num_calls and calls are mutually exclusive")
	}
	if len(s.Calls) > 0 {
		return s.validateCalls()
	}
	if err := validateFinitePositive("arrival_rate", s.ArrivalRate); err != nil {
		return err
	}
	if err := validateFinitePositive("mean_holding", s.MeanHolding); err != nil {
		return err
	}
	if !validArrivalProcesses[s.Arrival.Process] {
		return fmt.Errorf("unknown arrival process %q; valid: poisson, gamma, constant", s.Arrival.Process)
	}
	if s.Arrival.CV != nil {
		if err := validateFinitePositive("arrival.cv", *s.Arrival.CV); err != nil {
			return err
		}
	}
	if err := validateFinitePositive("bandwidth.min", s.Bandwidth.Min); err != nil {
		return err
	}
	if s.Bandwidth.Max < s.Bandwidth.Min || math.IsInf(s.Bandwidth.Max, 0) {
		return fmt.Errorf("bandwidth.max must be finite and >= min, got [%g, %g]", s.Bandwidth.Min, s.Bandwidth.Max)
	}
	m := s.SecurityMix
	for name, w := range map[string]float64{"none": m.None, "best_effort": m.BestEffort, "mandatory": m.Mandatory} {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("security_mix.%s must be a finite non-negative weight, got %g", name, w)
		}
	}
	for i, p := range s.Pairs {
		if p.Source == "" || p.Destination == "" || p.Source == p.Destination {
			return fmt.Errorf("pairs[%d]: need two distinct endpoints, got %q -> %q", i, p.Source, p.Destination)
		}
	}
	return nil
}

func (s *Spec) validateCalls() error {
	seen := make(map[string]bool, len(s.Calls))
	for i, c := range s.Calls {
		prefix := fmt.Sprintf("calls[%d]", i)
		if c.ID == "" {
			return fmt.Errorf("%s: id is required", prefix)
		}
		if seen[c.ID] {
			return fmt.Errorf("%s: duplicate id %q", prefix, c.ID)
		}
		seen[c.ID] = true
		if !sim.IsValidSecurity(c.Security) {
			return fmt.Errorf("%s: unknown security %q; valid: none, best-effort, mandatory", prefix, c.Security)
		}
		if c.Arrival < 0 || c.Holding < 0 {
			return fmt.Errorf("%s: arrival and holding must be non-negative", prefix)
		}
	}
	return nil
}

func validateFinitePositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return fmt.Errorf("%s must be a finite positive number, got %g", name, v)
	}
	return nil
}
