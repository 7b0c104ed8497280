package routing

import (
	"fmt"
	"math/rand"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survnet/survsim/sim"
	"github.com/survnet/survsim/sim/registry"
	"github.com/survnet/survsim/sim/topology"
)

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

// ring builds A-B-C-D-A with the given wavelengths and capacity per fiber.
func ring(t *testing.T, capacity float64, wavelengths int) *topology.Model {
	t.Helper()
	m := topology.NewModel()
	for _, n := range []string{"A", "B", "C", "D"} {
		require.NoError(t, m.AddNode(n))
	}
	for _, l := range [][2]string{{"A", "B"}, {"B", "C"}, {"C", "D"}, {"D", "A"}} {
		require.NoError(t, m.AddLink(topology.LinkSpec{
			From: l[0], To: l[1], Capacity: capacity, Wavelengths: wavelengths, Duplex: true,
		}))
	}
	return m
}

func setup(t *testing.T, name string, capacity float64, wavelengths int) (*topology.Model, *registry.Registry, Allocator) {
	t.Helper()
	m := ring(t, capacity, wavelengths)
	r := registry.New(m)
	return m, r, NewAllocator(name, m, r)
}

func TestRingScenario_SecondMandatoryCallBlocked(t *testing.T) {
	// GIVEN a 4-node ring, capacity 10, one wavelength
	m, r, a := setup(t, AllocatorSRLGDisjoint, 10, 1)
	fresh := m.Snapshot()

	// WHEN A->C bw 6 without security arrives
	c1 := sim.NewCall("c1", "A", "C", 6, sim.SecurityNone)
	out1 := a.Route(c1)

	// THEN it is admitted on one side of the ring without a backup
	require.True(t, out1.Admitted, out1.Reason)
	assert.Nil(t, out1.Backup)
	nodes := out1.Working.Nodes()
	assert.Contains(t, [][]string{{"A", "B", "C"}, {"A", "D", "C"}}, nodes)
	for _, k := range out1.Working {
		e, _ := m.Edge(k)
		assert.Equal(t, 4.0, e.Available)
		assert.True(t, e.InUse)
	}

	// WHEN A->C bw 6 with mandatory security arrives right after
	before := m.Snapshot()
	c2 := sim.NewCall("c2", "A", "C", 6, sim.SecurityMandatory)
	out2 := a.Route(c2)

	// THEN it is blocked and nothing changed
	assert.False(t, out2.Admitted)
	assert.Equal(t, ReasonNoBackupPath, out2.Reason)
	assert.Equal(t, sim.CallStateBlocked, c2.State)
	assert.Equal(t, before, m.Snapshot())

	// WHEN the first call departs
	require.True(t, r.Remove("c1"))

	// THEN both chosen edges are back to 10
	for _, k := range out1.Working {
		e, _ := m.Edge(k)
		assert.Equal(t, 10.0, e.Available)
		assert.False(t, e.InUse)
	}
	assert.Equal(t, fresh, m.Snapshot())
	assert.False(t, r.Remove("c2"), "blocked call has no entry")
}

func TestRingScenario_TieBreakIsDeterministic(t *testing.T) {
	var first topology.Path
	for i := 0; i < 5; i++ {
		_, _, a := setup(t, AllocatorSRLGDisjoint, 10, 1)
		out := a.Route(sim.NewCall("c1", "A", "C", 6, sim.SecurityNone))
		require.True(t, out.Admitted)
		if first == nil {
			first = out.Working
			continue
		}
		assert.Equal(t, first, out.Working)
	}
}

func TestRoute_Mandatory_OnEmptyRing_GetsDisjointBackup(t *testing.T) {
	m, r, a := setup(t, AllocatorSRLGDisjoint, 10, 1)
	c := sim.NewCall("c1", "A", "C", 6, sim.SecurityMandatory)

	out := a.Route(c)

	require.True(t, out.Admitted, out.Reason)
	assert.Equal(t, ReasonProtected, out.Reason)
	require.NotNil(t, out.Backup)
	assert.True(t, m.Disjoint(out.Working, out.Backup))
	assert.Equal(t, "A", out.Backup.Source())
	assert.Equal(t, "C", out.Backup.Destination())
	assert.Equal(t, out.Backup, c.Backup)
	require.NoError(t, r.Verify())
}

func TestRoute_BestEffort_NoBackup_AdmittedUnprotected(t *testing.T) {
	// GIVEN the south side is occupied
	_, r, a := setup(t, AllocatorSRLGDisjoint, 10, 1)
	require.True(t, a.Route(sim.NewCall("south", "A", "D", 1, sim.SecurityNone)).Admitted)

	// WHEN a best-effort call asks for A->C
	c := sim.NewCall("be", "A", "C", 2, sim.SecurityBestEffort)
	out := a.Route(c)

	// THEN it is admitted on the north side without protection
	require.True(t, out.Admitted)
	assert.Equal(t, ReasonUnprotected, out.Reason)
	assert.Nil(t, out.Backup)
	assert.Equal(t, []string{"A", "B", "C"}, out.Working.Nodes())
	require.NoError(t, r.Verify())
}

func TestRoute_ShortestPath_IgnoresSecurity(t *testing.T) {
	_, _, a := setup(t, AllocatorShortestPath, 10, 1)
	out := a.Route(sim.NewCall("c", "A", "C", 1, sim.SecurityMandatory))
	require.True(t, out.Admitted)
	assert.Nil(t, out.Backup)
	assert.Equal(t, ReasonWorkingOnly, out.Reason)
	assert.Equal(t, AllocatorShortestPath, a.Name())
}

func TestRoute_InvalidCalls_Blocked(t *testing.T) {
	tests := []struct {
		name string
		call *sim.Call
	}{
		{"unknown source", sim.NewCall("c", "Z", "C", 1, sim.SecurityNone)},
		{"unknown destination", sim.NewCall("c", "A", "Z", 1, sim.SecurityNone)},
		{"same endpoints", sim.NewCall("c", "A", "A", 1, sim.SecurityNone)},
		{"zero bandwidth", sim.NewCall("c", "A", "C", 0, sim.SecurityNone)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, r, a := setup(t, AllocatorSRLGDisjoint, 10, 1)
			before := m.Snapshot()
			out := a.Route(tt.call)
			assert.False(t, out.Admitted)
			assert.Contains(t, out.Reason, ReasonInvalidCall)
			assert.Equal(t, before, m.Snapshot())
			assert.Equal(t, 0, r.Len())
		})
	}
}

func TestRoute_BandwidthAboveEveryPath_Blocked(t *testing.T) {
	// GIVEN 3 wavelengths of capacity 10 on every fiber
	m, _, a := setup(t, AllocatorSRLGDisjoint, 10, 3)
	before := m.Snapshot()

	// WHEN a call asks for more than any single wavelength carries
	out := a.Route(sim.NewCall("big", "A", "C", 10.5, sim.SecurityNone))

	// THEN it is blocked with nothing reserved
	assert.False(t, out.Admitted)
	assert.Equal(t, ReasonNoWorkingPath, out.Reason)
	assert.Equal(t, before, m.Snapshot())
}

func TestRoute_FirstFit_PicksLowestFreeWavelength(t *testing.T) {
	_, _, a := setup(t, AllocatorShortestPath, 10, 3)
	var waves []int
	for i := 0; i < 3; i++ {
		out := a.Route(sim.NewCall(fmt.Sprintf("c%d", i), "A", "B", 1, sim.SecurityNone))
		require.True(t, out.Admitted)
		require.Len(t, out.Working, 1)
		waves = append(waves, out.Working[0].Wavelength)
	}
	assert.Equal(t, []int{0, 1, 2}, waves)
}

func TestRoute_AllWavelengthsBusy_Blocked(t *testing.T) {
	// GIVEN every wavelength around the ring in use
	m, _, a := setup(t, AllocatorShortestPath, 10, 1)
	for _, dst := range []string{"B", "D"} {
		require.True(t, a.Route(sim.NewCall("to"+dst, "A", dst, 1, sim.SecurityNone)).Admitted)
	}
	before := m.Snapshot()

	// WHEN another call leaves A
	out := a.Route(sim.NewCall("late", "A", "C", 1, sim.SecurityNone))

	// THEN no path survives the in-use pruning
	assert.False(t, out.Admitted)
	assert.Equal(t, before, m.Snapshot())
}

// theta builds three edge-disjoint two-hop routes from A to C through B, D
// and E, one wavelength of capacity 10 each.
func theta(t *testing.T) *topology.Model {
	t.Helper()
	m := topology.NewModel()
	for _, n := range []string{"A", "B", "C", "D", "E"} {
		require.NoError(t, m.AddNode(n))
	}
	for _, via := range []string{"B", "D", "E"} {
		require.NoError(t, m.AddLink(topology.LinkSpec{From: "A", To: via, Capacity: 10, Duplex: true}))
		require.NoError(t, m.AddLink(topology.LinkSpec{From: via, To: "C", Capacity: 10, Duplex: true}))
	}
	return m
}

func TestSymbiotic_LeasesOwnerWorkingPath(t *testing.T) {
	// GIVEN a normal call already on one of three routes
	m := theta(t)
	r := registry.New(m)
	a := NewAllocator(AllocatorSymbiotic, m, r)
	owner := sim.NewCall("owner", "A", "C", 5, sim.SecurityNone)
	outOwner := a.Route(owner)
	require.True(t, outOwner.Admitted)
	snapAfterOwner := m.Snapshot()

	// WHEN a mandatory call with the same endpoints arrives
	sec := sim.NewCall("sec", "A", "C", 4, sim.SecurityMandatory)
	out := a.Route(sec)

	// THEN its backup is the owner's working path and no backup bandwidth is reserved
	require.True(t, out.Admitted, out.Reason)
	assert.Equal(t, ReasonLeased, out.Reason)
	assert.Equal(t, "owner", out.Lender)
	assert.True(t, out.Shared())
	assert.Equal(t, outOwner.Working, out.Backup)
	assert.True(t, m.Disjoint(out.Working, out.Backup))
	snap := m.Snapshot()
	for _, k := range outOwner.Working {
		assert.Equal(t, snapAfterOwner[k], snap[k], "leased edges are not reserved again")
	}
	assert.Equal(t, []registry.Lease{{Owner: "owner", Borrower: "sec"}}, r.Leases())
	require.NoError(t, r.Verify())

	// WHEN a second mandatory call arrives on the last free route
	before := m.Snapshot()
	out2 := a.Route(sim.NewCall("sec2", "A", "C", 1, sim.SecurityMandatory))

	// THEN the already paired owner is not leased twice and the call is blocked
	assert.False(t, out2.Admitted)
	assert.Equal(t, ReasonNoBackupPath, out2.Reason)
	assert.Equal(t, before, m.Snapshot())
	assert.Len(t, r.Leases(), 1)
	require.NoError(t, r.Verify())
}

func TestSymbiotic_NoMatchingOwner_FallsBackToOwnBackup(t *testing.T) {
	// GIVEN a normal call too small to lend and one with other endpoints
	_, r, a := setup(t, AllocatorSymbiotic, 10, 2)
	require.True(t, a.Route(sim.NewCall("small", "A", "C", 1, sim.SecurityNone)).Admitted)
	require.True(t, a.Route(sim.NewCall("reverse", "C", "A", 5, sim.SecurityNone)).Admitted)

	// WHEN a mandatory call arrives
	out := a.Route(sim.NewCall("sec", "A", "C", 4, sim.SecurityMandatory))

	// THEN it reserves its own backup
	require.True(t, out.Admitted, out.Reason)
	assert.Equal(t, ReasonProtected, out.Reason)
	assert.Empty(t, out.Lender)
	assert.Empty(t, r.Leases())
	require.NoError(t, r.Verify())
}

// transitModel builds A-X-C with detours A-P-X and X-Q-C: every A->C route
// passes through X.
func transitModel(t *testing.T) *topology.Model {
	t.Helper()
	m := topology.NewModel()
	for _, n := range []string{"A", "X", "C", "P", "Q"} {
		require.NoError(t, m.AddNode(n))
	}
	for _, l := range [][2]string{{"A", "X"}, {"X", "C"}, {"A", "P"}, {"P", "X"}, {"X", "Q"}, {"Q", "C"}} {
		require.NoError(t, m.AddLink(topology.LinkSpec{From: l[0], To: l[1], Capacity: 10, Duplex: true}))
	}
	return m
}

func TestRoute_Backup_AvoidsWorkingTransitNode(t *testing.T) {
	for _, name := range []string{AllocatorSRLGDisjoint, AllocatorSymbiotic} {
		t.Run(name, func(t *testing.T) {
			// GIVEN a topology where every A->C route transits X
			m := transitModel(t)
			r := registry.New(m)
			a := NewAllocator(name, m, r)
			fresh := m.Snapshot()

			// WHEN a mandatory call arrives
			out := a.Route(sim.NewCall("sec", "A", "C", 1, sim.SecurityMandatory))

			// THEN no backup avoids X and the call is blocked untouched
			assert.False(t, out.Admitted)
			assert.Equal(t, ReasonNoBackupPath, out.Reason)
			assert.Equal(t, fresh, m.Snapshot())

			// WHEN a best-effort call arrives
			out = a.Route(sim.NewCall("be", "A", "C", 1, sim.SecurityBestEffort))

			// THEN it is admitted without a backup
			require.True(t, out.Admitted)
			assert.Equal(t, ReasonUnprotected, out.Reason)
			assert.Empty(t, out.Backup)
			require.NoError(t, r.Verify())
		})
	}
}

func TestRoute_SharedSite_BlocksBackupButNotAtEndpoints(t *testing.T) {
	// GIVEN a ring whose transit nodes B and D share a site
	m := ring(t, 10, 1)
	require.NoError(t, m.AddNodeRisks("B", "site-1"))
	require.NoError(t, m.AddNodeRisks("D", "site-1"))
	r := registry.New(m)
	a := NewAllocator(AllocatorSRLGDisjoint, m, r)

	// THEN a mandatory A->C call finds no site-disjoint backup
	out := a.Route(sim.NewCall("ac", "A", "C", 1, sim.SecurityMandatory))
	assert.False(t, out.Admitted)
	assert.Equal(t, ReasonNoBackupPath, out.Reason)

	// GIVEN instead the source A shares the site with transit node B
	m = ring(t, 10, 1)
	require.NoError(t, m.AddNodeRisks("A", "site-1"))
	require.NoError(t, m.AddNodeRisks("B", "site-1"))
	r = registry.New(m)
	a = NewAllocator(AllocatorSRLGDisjoint, m, r)

	// THEN the endpoint's label does not block its own backup
	out = a.Route(sim.NewCall("ac", "A", "C", 1, sim.SecurityMandatory))
	require.True(t, out.Admitted, out.Reason)
	assert.Equal(t, ReasonProtected, out.Reason)
	assert.True(t, m.Disjoint(out.Working, out.Backup))
}

func TestNewAllocator_Names(t *testing.T) {
	m := ring(t, 10, 1)
	r := registry.New(m)
	assert.Equal(t, AllocatorSRLGDisjoint, NewAllocator("", m, r).Name())
	assert.Equal(t, []string{AllocatorShortestPath, AllocatorSRLGDisjoint, AllocatorSymbiotic}, AllocatorNames())
	assert.False(t, IsValidAllocator("ospf"))
	assert.Panics(t, func() { NewAllocator("ospf", m, r) })
}

// TestRandomWorkload_InvariantsHold admits and tears down random calls and
// checks capacity, disjointness and accounting after every step.
func TestRandomWorkload_InvariantsHold(t *testing.T) {
	for _, name := range AllocatorNames() {
		t.Run(name, func(t *testing.T) {
			m, r, a := setup(t, name, 10, 2)
			fresh := m.Snapshot()
			rng := rand.New(rand.NewSource(7))
			nodes := m.Nodes()
			secs := []sim.Security{sim.SecurityNone, sim.SecurityBestEffort, sim.SecurityMandatory}
			var live []string

			for i := 0; i < 300; i++ {
				if len(live) > 0 && rng.Intn(3) == 0 {
					j := rng.Intn(len(live))
					require.True(t, r.Remove(live[j]))
					live = append(live[:j], live[j+1:]...)
				} else {
					src := nodes[rng.Intn(len(nodes))]
					dst := nodes[rng.Intn(len(nodes))]
					c := sim.NewCall(fmt.Sprintf("c%d", i), src, dst, 1+rng.Float64()*6, secs[rng.Intn(len(secs))])
					before := m.Snapshot()
					out := a.Route(c)
					if out.Admitted {
						live = append(live, c.ID)
						if len(out.Backup) > 0 {
							assert.True(t, m.Disjoint(out.Working, out.Backup), "call %s", c.ID)
						}
					} else {
						assert.Equal(t, before, m.Snapshot(), "blocked call %s mutated the model", c.ID)
					}
				}
				require.NoError(t, r.Verify())
			}
			for _, id := range live {
				require.True(t, r.Remove(id))
			}
			for k, st := range m.Snapshot() {
				assert.InDelta(t, fresh[k].Available, st.Available, 1e-9)
				assert.False(t, st.InUse)
			}
		})
	}
}
