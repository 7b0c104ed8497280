// Package routing computes working and backup paths for calls and commits
// them to the topology model and registry.
package routing

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/survnet/survsim/sim"
	"github.com/survnet/survsim/sim/registry"
	"github.com/survnet/survsim/sim/topology"
)

// Outcome is the result of routing one call.
type Outcome struct {
	Admitted bool
	Working  topology.Path
	Backup   topology.Path
	// Lender is the call whose working path was leased as Backup; empty
	// when the backup (if any) was reserved by the call itself.
	Lender string
	Reason string
}

// Shared reports whether the backup is leased.
func (o Outcome) Shared() bool {
	return o.Lender != ""
}

// Block reasons.
const (
	ReasonInvalidCall   = "invalid call"
	ReasonNoWorkingPath = "no working path"
	ReasonNoBackupPath  = "no risk-disjoint backup"
)

// Admit reasons.
const (
	ReasonUnprotected = "admitted without backup"
	ReasonProtected   = "admitted with backup"
	ReasonLeased      = "admitted with leased backup"
	ReasonWorkingOnly = "admitted"
)

// Allocator decides and commits the resources of arriving calls.
//
// Route either admits the call, reserving its paths on the model and
// registering it, or blocks it, leaving the model untouched. Blocking is a
// normal outcome, never an error.
type Allocator interface {
	Name() string
	Route(c *sim.Call) Outcome
}

// Allocator names.
const (
	AllocatorShortestPath = "shortest-path"
	AllocatorSRLGDisjoint = "srlg-disjoint"
	AllocatorSymbiotic    = "symbiotic"
)

// ValidAllocators is the set of recognized allocator names.
// The empty string selects srlg-disjoint.
var ValidAllocators = map[string]bool{
	"":                    true,
	AllocatorShortestPath: true,
	AllocatorSRLGDisjoint: true,
	AllocatorSymbiotic:    true,
}

// IsValidAllocator returns true if name is a recognized allocator.
func IsValidAllocator(name string) bool {
	return ValidAllocators[name]
}

// AllocatorNames returns the non-empty allocator names, sorted.
func AllocatorNames() []string {
	names := make([]string, 0, len(ValidAllocators))
	for n := range ValidAllocators {
		if n != "" {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// NewAllocator creates an allocator by name over model and reg.
// Panics on unrecognized names.
func NewAllocator(name string, model *topology.Model, reg *registry.Registry) Allocator {
	if !IsValidAllocator(name) {
		panic(fmt.Sprintf("unknown allocator %q", name))
	}
	switch name {
	case AllocatorShortestPath:
		return &pathAllocator{name: name, model: model, reg: reg}
	case "", AllocatorSRLGDisjoint:
		return &pathAllocator{name: AllocatorSRLGDisjoint, model: model, reg: reg, protect: true}
	case AllocatorSymbiotic:
		return &pathAllocator{name: name, model: model, reg: reg, protect: true, share: true}
	default:
		panic(fmt.Sprintf("unhandled allocator %q", name))
	}
}

// pathAllocator implements every strategy; the variants differ only in
// whether security calls get a backup and whether backups may be leased.
type pathAllocator struct {
	name    string
	model   *topology.Model
	reg     *registry.Registry
	protect bool
	share   bool
}

func (a *pathAllocator) Name() string { return a.name }

func (a *pathAllocator) Route(c *sim.Call) Outcome {
	if reason := a.invalid(c); reason != "" {
		return a.block(c, fmt.Sprintf("%s: %s", ReasonInvalidCall, reason))
	}

	working := findPath(a.model.BuildConstrainedView(topology.ViewOptions{ExcludeUsed: true}),
		c.Source, c.Destination, c.Bandwidth)
	if working == nil {
		return a.block(c, ReasonNoWorkingPath)
	}

	if !a.protect || !c.Security.Protected() {
		return a.commit(c, working, nil, ReasonWorkingOnly)
	}

	if a.share {
		if lender, ok := a.findLender(c, working); ok {
			a.model.Reserve(working, c.Bandwidth)
			a.reg.RegisterShared(c, working, lender)
			logrus.Debugf("%s: admitted %s working=%s leased from %s", a.name, c.ID, working, lender)
			return Outcome{Admitted: true, Working: working, Backup: c.Backup, Lender: lender, Reason: ReasonLeased}
		}
	}

	// The backup view drops the working edges, everything sharing a risk
	// label with them and the transit nodes of the working path, so the two
	// paths are disjoint by construction.
	backupView := a.model.BuildConstrainedView(topology.ViewOptions{
		ExcludeUsed:  true,
		ExcludeRisks: a.model.RisksOf(working),
		ExcludeEdges: working,
		Terminals:    []string{c.Source, c.Destination},
	})
	backup := findPath(backupView, c.Source, c.Destination, c.Bandwidth)
	if backup == nil {
		if c.Security == sim.SecurityMandatory {
			return a.block(c, ReasonNoBackupPath)
		}
		return a.commit(c, working, nil, ReasonUnprotected)
	}
	return a.commit(c, working, backup, ReasonProtected)
}

func (a *pathAllocator) invalid(c *sim.Call) string {
	switch {
	case !a.model.HasNode(c.Source):
		return fmt.Sprintf("unknown source %q", c.Source)
	case !a.model.HasNode(c.Destination):
		return fmt.Sprintf("unknown destination %q", c.Destination)
	case c.Source == c.Destination:
		return "source equals destination"
	case c.Bandwidth <= 0:
		return fmt.Sprintf("non-positive bandwidth %g", c.Bandwidth)
	}
	return ""
}

func (a *pathAllocator) block(c *sim.Call, reason string) Outcome {
	c.Block()
	logrus.Debugf("%s: blocked %s: %s", a.name, c.ID, reason)
	return Outcome{Reason: reason}
}

func (a *pathAllocator) commit(c *sim.Call, working, backup topology.Path, reason string) Outcome {
	a.model.Reserve(working, c.Bandwidth)
	if backup != nil {
		a.model.Reserve(backup, c.Bandwidth)
	}
	a.reg.Register(c, working, backup)
	logrus.Debugf("%s: admitted %s working=%s backup=%s", a.name, c.ID, working, backup)
	return Outcome{Admitted: true, Working: working, Backup: backup, Reason: reason}
}

// findLender scans admitted calls in admission order for a normal call with
// the same endpoints, enough bandwidth and no current pairing whose working
// path is disjoint from working.
func (a *pathAllocator) findLender(c *sim.Call, working topology.Path) (string, bool) {
	for _, e := range a.reg.Entries() {
		o := e.Call
		switch {
		case e.LentTo != "" || e.BorrowedFrom != "":
		case o.Security.Protected():
		case o.Source != c.Source || o.Destination != c.Destination:
		case o.Bandwidth < c.Bandwidth:
		case !a.model.Disjoint(working, e.Working):
		default:
			return o.ID, true
		}
	}
	return "", false
}
