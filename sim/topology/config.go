package topology

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Spec is the on-disk topology description.
//
//	version: "1"
//	nodes: [A, B, C, D]
//	defaults:
//	  capacity: 10
//	  wavelengths: 1
//	  duplex: true
//	links:
//	  - {from: A, to: B, risks: [conduit-north]}
//	node_risks:
//	  B: [site-east]
//
// Every node also carries its implicit node:<name> label.
type Spec struct {
	Version   string              `yaml:"version"`
	Nodes     []string            `yaml:"nodes"`
	Defaults  LinkDefaults        `yaml:"defaults"`
	Links     []LinkConfig        `yaml:"links"`
	NodeRisks map[string][]string `yaml:"node_risks,omitempty"`
}

// LinkDefaults fill in fields a link leaves unset.
type LinkDefaults struct {
	Capacity    float64 `yaml:"capacity"`
	Wavelengths int     `yaml:"wavelengths"`
	Duplex      *bool   `yaml:"duplex"`
}

// LinkConfig describes one fiber. Nil or zero fields fall back to Defaults.
type LinkConfig struct {
	From        string   `yaml:"from"`
	To          string   `yaml:"to"`
	Capacity    float64  `yaml:"capacity,omitempty"`
	Wavelengths int      `yaml:"wavelengths,omitempty"`
	Duplex      *bool    `yaml:"duplex,omitempty"`
	Risks       []string `yaml:"risks,omitempty"`
}

// LoadSpec reads and strictly parses a topology YAML file.
func LoadSpec(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading topology: %w", err)
	}
	return ParseSpec(data)
}

// ParseSpec strictly parses topology YAML; unknown fields are errors.
func ParseSpec(data []byte) (*Spec, error) {
	var spec Spec
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&spec); err != nil {
		return nil, fmt.Errorf("parsing topology: %w", err)
	}
	if spec.Version != "" && spec.Version != "1" {
		logrus.Warnf("topology version %q is not recognized; parsing as version 1", spec.Version)
	}
	return &spec, nil
}

// Validate checks the spec without building a model.
func (s *Spec) Validate() error {
	if len(s.Nodes) < 2 {
		return fmt.Errorf("topology needs at least 2 nodes, got %d", len(s.Nodes))
	}
	if s.Defaults.Capacity < 0 {
		return fmt.Errorf("defaults.capacity must be non-negative, got %g", s.Defaults.Capacity)
	}
	if s.Defaults.Wavelengths < 0 {
		return fmt.Errorf("defaults.wavelengths must be non-negative, got %d", s.Defaults.Wavelengths)
	}
	_, err := s.Build()
	return err
}

// Build constructs a fresh Model from the spec.
func (s *Spec) Build() (*Model, error) {
	m := NewModel()
	for _, n := range s.Nodes {
		if m.HasNode(n) {
			return nil, fmt.Errorf("duplicate node %q", n)
		}
		if err := m.AddNode(n); err != nil {
			return nil, err
		}
	}
	for i, l := range s.Links {
		if err := m.AddLink(s.linkSpec(l)); err != nil {
			return nil, fmt.Errorf("links[%d]: %w", i, err)
		}
	}
	names := make([]string, 0, len(s.NodeRisks))
	for n := range s.NodeRisks {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		groups := make([]RiskGroup, len(s.NodeRisks[n]))
		for i, r := range s.NodeRisks[n] {
			groups[i] = RiskGroup(r)
		}
		if err := m.AddNodeRisks(n, groups...); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (s *Spec) linkSpec(l LinkConfig) LinkSpec {
	spec := LinkSpec{
		From:        l.From,
		To:          l.To,
		Capacity:    l.Capacity,
		Wavelengths: l.Wavelengths,
		Duplex:      true,
	}
	if spec.Capacity == 0 {
		spec.Capacity = s.Defaults.Capacity
	}
	if spec.Wavelengths == 0 {
		spec.Wavelengths = s.Defaults.Wavelengths
	}
	switch {
	case l.Duplex != nil:
		spec.Duplex = *l.Duplex
	case s.Defaults.Duplex != nil:
		spec.Duplex = *s.Defaults.Duplex
	}
	for _, r := range l.Risks {
		spec.Risks = append(spec.Risks, RiskGroup(r))
	}
	return spec
}

// Load reads, validates and builds a model from a topology YAML file.
func Load(path string) (*Model, error) {
	spec, err := LoadSpec(path)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid topology %s: %w", path, err)
	}
	m, err := spec.Build()
	if err != nil {
		return nil, err
	}
	logrus.Infof("topology %s: %d nodes, %d wavelength edges", path, len(m.nodes), m.NumEdges())
	return m, nil
}
