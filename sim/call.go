package sim

import (
	"fmt"

	"github.com/survnet/survsim/sim/topology"
)

// Security is the protection level a call requests.
type Security string

const (
	// SecurityNone never attempts a backup path.
	SecurityNone Security = "none"
	// SecurityBestEffort attempts a risk-disjoint backup and admits unprotected when none exists.
	SecurityBestEffort Security = "best-effort"
	// SecurityMandatory blocks the call unless a risk-disjoint backup exists.
	SecurityMandatory Security = "mandatory"
)

// validSecurity maps accepted security strings.
var validSecurity = map[Security]bool{
	SecurityNone:       true,
	SecurityBestEffort: true,
	SecurityMandatory:  true,
	"":                 true, // empty defaults to none
}

// IsValidSecurity returns true if the given string names a security level.
func IsValidSecurity(s string) bool {
	return validSecurity[Security(s)]
}

// Protected reports whether the level asks for a backup path.
func (s Security) Protected() bool {
	return s == SecurityBestEffort || s == SecurityMandatory
}

// CallState represents the lifecycle state of a call.
type CallState string

const (
	CallStatePending  CallState = "PENDING"
	CallStateAdmitted CallState = "ADMITTED"
	CallStateBlocked  CallState = "BLOCKED"
	CallStateReleased CallState = "RELEASED"
)

// Call is a request to carry Bandwidth from Source to Destination for
// HoldingTime ticks starting at ArrivalTime.
//
// State machine:
//
//	PENDING --Admit--> ADMITTED --Release--> RELEASED
//	PENDING --Block--> BLOCKED
//
// Transitions are one-way; anything else panics.
type Call struct {
	ID          string
	Source      string
	Destination string
	Bandwidth   float64
	Security    Security

	ArrivalTime int64 // ticks
	HoldingTime int64 // ticks

	State CallState

	// Set on admission. Backup is nil for unprotected calls and is cleared
	// when a leased backup is withdrawn by its owner.
	Working topology.Path
	Backup  topology.Path
}

// NewCall builds a pending call.
func NewCall(id, src, dst string, bandwidth float64, security Security) *Call {
	if security == "" {
		security = SecurityNone
	}
	return &Call{
		ID:          id,
		Source:      src,
		Destination: dst,
		Bandwidth:   bandwidth,
		Security:    security,
		State:       CallStatePending,
	}
}

// DepartureTime is the tick at which the call leaves the network.
func (c *Call) DepartureTime() int64 {
	return c.ArrivalTime + c.HoldingTime
}

// Admit moves the call to ADMITTED and records its paths.
func (c *Call) Admit(working, backup topology.Path) {
	c.transition(CallStatePending, CallStateAdmitted)
	c.Working = working
	c.Backup = backup
}

// Block moves the call to BLOCKED.
func (c *Call) Block() {
	c.transition(CallStatePending, CallStateBlocked)
}

// Release moves an admitted call to RELEASED.
func (c *Call) Release() {
	c.transition(CallStateAdmitted, CallStateReleased)
}

// Protected reports whether the call currently holds a backup path.
func (c *Call) Protected() bool {
	return len(c.Backup) > 0
}

func (c *Call) transition(from, to CallState) {
	if c.State != from {
		panic(fmt.Sprintf("call %s: illegal transition %s -> %s", c.ID, c.State, to))
	}
	c.State = to
}

func (c *Call) String() string {
	return fmt.Sprintf("call %s %s->%s bw=%g sec=%s", c.ID, c.Source, c.Destination, c.Bandwidth, c.Security)
}
