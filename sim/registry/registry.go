// Package registry tracks admitted calls, the resources they hold and the
// backup leases between them, and tears calls down on departure.
package registry

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/survnet/survsim/sim"
	"github.com/survnet/survsim/sim/topology"
)

// Entry is the registry record of one admitted call.
type Entry struct {
	Call    *sim.Call
	Working topology.Path
	Backup  topology.Path

	// OwnsBackup is false when Backup is leased from another call's working
	// path and was never reserved by this call.
	OwnsBackup bool

	// Lease links. A call is either a lender (LentTo set) or a borrower
	// (BorrowedFrom set), never both.
	LentTo       string
	BorrowedFrom string
}

// Lease pairs a normal call (Owner) whose working path doubles as the backup
// of a security call (Borrower).
type Lease struct {
	Owner    string
	Borrower string
}

// Registry maps call ids to their reserved resources. It owns the per-edge
// holder accounting the topology model does not keep.
//
// Not safe for concurrent use; the engine mutates it one event at a time.
type Registry struct {
	model   *topology.Model
	entries map[string]*Entry
	order   []string
	holders map[topology.EdgeKey]map[string]struct{}
}

// New creates an empty registry over model.
func New(model *topology.Model) *Registry {
	return &Registry{
		model:   model,
		entries: make(map[string]*Entry),
		holders: make(map[topology.EdgeKey]map[string]struct{}),
	}
}

// Register records an admitted call whose working and (optional) backup paths
// have already been reserved on the model by this call.
func (r *Registry) Register(c *sim.Call, working, backup topology.Path) {
	c.Admit(working, backup)
	r.insert(&Entry{Call: c, Working: working, Backup: backup, OwnsBackup: len(backup) > 0})
}

// RegisterShared records a security call whose working path has been
// reserved and whose backup is leased from owner's working path. Both sides
// of the pairing are updated together.
func (r *Registry) RegisterShared(c *sim.Call, working topology.Path, owner string) {
	o, ok := r.entries[owner]
	if !ok {
		panic(fmt.Sprintf("lease: owner %s is not registered", owner))
	}
	if o.LentTo != "" || o.BorrowedFrom != "" {
		panic(fmt.Sprintf("lease: owner %s already paired", owner))
	}
	if o.Call.Security.Protected() {
		panic(fmt.Sprintf("lease: owner %s is a security call", owner))
	}
	if !c.Security.Protected() {
		panic(fmt.Sprintf("lease: borrower %s is not a security call", c.ID))
	}
	backup := o.Working.Clone()
	c.Admit(working, backup)
	r.insert(&Entry{Call: c, Working: working, Backup: backup, BorrowedFrom: owner})
	o.LentTo = c.ID
	logrus.Debugf("lease: %s borrows backup %s from %s", c.ID, backup, owner)
}

func (r *Registry) insert(e *Entry) {
	id := e.Call.ID
	if _, exists := r.entries[id]; exists {
		panic(fmt.Sprintf("registry: call %s already registered", id))
	}
	r.entries[id] = e
	r.order = append(r.order, id)
	r.hold(id, e.Working)
	if e.OwnsBackup {
		r.hold(id, e.Backup)
	}
}

// Remove tears a call down. It returns false, touching nothing, when the call
// has no entry (it was blocked on arrival or already removed).
//
//   - Borrower: releases only its own working path; the borrowed path stays
//     with its owner.
//   - Owner: the lease is dissolved first (the borrower loses its backup),
//     then the owner's resources are released.
//   - Otherwise: working and backup paths are released.
func (r *Registry) Remove(id string) bool {
	e, ok := r.entries[id]
	if !ok {
		return false
	}

	if e.BorrowedFrom != "" {
		owner := r.entries[e.BorrowedFrom]
		if owner == nil || owner.LentTo != id {
			panic(fmt.Sprintf("registry: borrower %s has a dangling lease to %s", id, e.BorrowedFrom))
		}
		owner.LentTo = ""
		e.BorrowedFrom = ""
		logrus.Debugf("lease: borrower %s departed, %s keeps its path", id, owner.Call.ID)
	}
	if e.LentTo != "" {
		borrower := r.entries[e.LentTo]
		if borrower == nil || borrower.BorrowedFrom != id {
			panic(fmt.Sprintf("registry: owner %s has a dangling lease to %s", id, e.LentTo))
		}
		borrower.BorrowedFrom = ""
		borrower.Backup = nil
		borrower.Call.Backup = nil
		e.LentTo = ""
		logrus.Infof("lease: owner %s departed, %s is now unprotected", id, borrower.Call.ID)
	}

	bw := e.Call.Bandwidth
	r.unhold(id, e.Working)
	r.model.Release(e.Working, bw, r.Holds)
	if e.OwnsBackup {
		r.unhold(id, e.Backup)
		r.model.Release(e.Backup, bw, r.Holds)
	}

	delete(r.entries, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	e.Call.Release()
	return true
}

func (r *Registry) hold(id string, p topology.Path) {
	for _, k := range p {
		hs, ok := r.holders[k]
		if !ok {
			hs = make(map[string]struct{})
			r.holders[k] = hs
		}
		hs[id] = struct{}{}
	}
}

func (r *Registry) unhold(id string, p topology.Path) {
	for _, k := range p {
		hs := r.holders[k]
		if _, ok := hs[id]; !ok {
			panic(fmt.Sprintf("registry: call %s releasing edge %s it does not hold", id, k))
		}
		delete(hs, id)
		if len(hs) == 0 {
			delete(r.holders, k)
		}
	}
}

// Holds reports whether any registered call holds a reservation on k.
func (r *Registry) Holds(k topology.EdgeKey) bool {
	return len(r.holders[k]) > 0
}

// Lookup returns a copy of the entry for id.
func (r *Registry) Lookup(id string) (Entry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of admitted, not yet departed calls.
func (r *Registry) Len() int {
	return len(r.entries)
}

// Entries returns copies of all entries in admission order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// Leases returns the active pairings in owner admission order.
func (r *Registry) Leases() []Lease {
	var out []Lease
	for _, id := range r.order {
		if e := r.entries[id]; e.LentTo != "" {
			out = append(out, Lease{Owner: id, Borrower: e.LentTo})
		}
	}
	return out
}

// Verify cross-checks the registry against the model: every edge's reserved
// bandwidth must equal the sum of its holders' demands, in-use flags must
// match holder presence, and leases must be symmetric.
func (r *Registry) Verify() error {
	if err := r.model.Check(); err != nil {
		return err
	}
	want := make(map[topology.EdgeKey]float64)
	for _, id := range r.order {
		e := r.entries[id]
		for _, k := range e.Working {
			want[k] += e.Call.Bandwidth
		}
		if e.OwnsBackup {
			for _, k := range e.Backup {
				want[k] += e.Call.Bandwidth
			}
		}
		if e.LentTo != "" && e.BorrowedFrom != "" {
			return fmt.Errorf("call %s is both lender and borrower", id)
		}
		if e.LentTo != "" {
			if b, ok := r.entries[e.LentTo]; !ok || b.BorrowedFrom != id {
				return fmt.Errorf("lease %s -> %s is not symmetric", id, e.LentTo)
			}
		}
		if e.BorrowedFrom != "" {
			if o, ok := r.entries[e.BorrowedFrom]; !ok || o.LentTo != id {
				return fmt.Errorf("lease %s <- %s is not symmetric", id, e.BorrowedFrom)
			}
		}
	}
	for _, k := range r.model.EdgeKeys() {
		edge, _ := r.model.Edge(k)
		reserved := edge.Capacity - edge.Available
		if math.Abs(reserved-want[k]) > 1e-9 {
			return fmt.Errorf("edge %s: %g reserved on the model, registry accounts for %g", k, reserved, want[k])
		}
		if edge.InUse != r.Holds(k) {
			return fmt.Errorf("edge %s: in-use flag %v, registry holders %d", k, edge.InUse, len(r.holders[k]))
		}
	}
	return nil
}
