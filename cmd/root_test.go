package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survnet/survsim/sim/routing"
	"github.com/survnet/survsim/sim/trace"
)

const ringTopology = `
version: "1"
nodes: [A, B, C, D]
defaults: {capacity: 10}
links:
  - {from: A, to: B}
  - {from: B, to: C}
  - {from: C, to: D}
  - {from: D, to: A}
`

const ringCalls = `
version: "1"
calls:
  - {id: c1, source: A, destination: C, bandwidth: 6, arrival: 0, holding: 100}
  - {id: c2, source: A, destination: C, bandwidth: 6, security: mandatory, arrival: 10, holding: 50}
`

const syntheticWorkload = `
version: "1"
seed: 5
num_calls: 100
arrival_rate: 40
mean_holding: 0.1
bandwidth: {min: 1, max: 3}
security_mix: {none: 1, best_effort: 1, mandatory: 1}
`

func TestMain(m *testing.M) {
	if os.Getenv("DEBUG_TESTS") == "" {
		logrus.SetLevel(logrus.WarnLevel)
	}
	os.Exit(m.Run())
}

func writeInputs(t *testing.T, workload string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	topo := filepath.Join(dir, "topology.yaml")
	wl := filepath.Join(dir, "workload.yaml")
	require.NoError(t, os.WriteFile(topo, []byte(ringTopology), 0644))
	require.NoError(t, os.WriteFile(wl, []byte(workload), 0644))
	return topo, wl
}

func TestRunSimulation_RingCalls(t *testing.T) {
	// GIVEN the ring topology and the two-call scenario
	topo, wl := writeInputs(t, ringCalls)

	// WHEN run with paths tracing and accounting checks
	res, err := runSimulation(context.Background(), runConfig{
		TopologyPath: topo,
		WorkloadPath: wl,
		Allocator:    routing.AllocatorSRLGDisjoint,
		Horizon:      math.MaxInt64,
		TraceLevel:   trace.TraceLevelPaths,
		Verify:       true,
		Registerer:   prometheus.NewRegistry(),
	})

	// THEN one call is admitted and the mandatory one is blocked
	require.NoError(t, err)
	assert.Equal(t, 1, res.Summary.Admitted)
	assert.Equal(t, 1, res.Summary.Blocked)
	require.NotNil(t, res.Trace)
	assert.Equal(t, 1, res.TraceSummary.SecurityBlocked["mandatory"])

	var buf bytes.Buffer
	require.NoError(t, writeTrace(&buf, res))
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "summary")
	assert.Contains(t, decoded, "trace")
}

func TestWriteTraceFile(t *testing.T) {
	// GIVEN a traced run
	topo, wl := writeInputs(t, ringCalls)
	res, err := runSimulation(context.Background(), runConfig{
		TopologyPath: topo,
		WorkloadPath: wl,
		Allocator:    routing.AllocatorSRLGDisjoint,
		Horizon:      math.MaxInt64,
		TraceLevel:   trace.TraceLevelDecisions,
		Registerer:   prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	// WHEN written to a file
	out := filepath.Join(t.TempDir(), "trace.json")
	require.NoError(t, writeTraceFile(out, res))

	// THEN the file is complete JSON
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var decoded struct {
		Trace trace.SimulationTrace `json:"trace"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Len(t, decoded.Trace.Admissions, 2)

	// WHEN the directory does not exist
	err = writeTraceFile(filepath.Join(t.TempDir(), "missing", "trace.json"), res)

	// THEN the error is returned
	assert.ErrorContains(t, err, "creating trace output")
}

func TestRunSimulation_SeedOverride_ChangesWorkload(t *testing.T) {
	topo, wl := writeInputs(t, syntheticWorkload)
	run := func(seed *int64) int {
		res, err := runSimulation(context.Background(), runConfig{
			TopologyPath: topo,
			WorkloadPath: wl,
			Allocator:    routing.AllocatorSymbiotic,
			Seed:         seed,
			Horizon:      math.MaxInt64,
			Verify:       true,
			Registerer:   prometheus.NewRegistry(),
		})
		require.NoError(t, err)
		assert.Nil(t, res.Trace, "tracing is off by default")
		return int(res.Summary.OfferedBandwidth * 1000)
	}

	other := int64(99)
	assert.Equal(t, run(nil), run(nil))
	assert.NotEqual(t, run(nil), run(&other))
}

func TestRunSimulation_InvalidInputs(t *testing.T) {
	topo, wl := writeInputs(t, ringCalls)
	base := runConfig{TopologyPath: topo, WorkloadPath: wl, Horizon: math.MaxInt64, Registerer: prometheus.NewRegistry()}

	bad := base
	bad.Allocator = "ospf"
	_, err := runSimulation(context.Background(), bad)
	assert.ErrorContains(t, err, "unknown allocator")

	bad = base
	bad.TraceLevel = "verbose"
	_, err = runSimulation(context.Background(), bad)
	assert.ErrorContains(t, err, "unknown trace level")

	bad = base
	bad.TopologyPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = runSimulation(context.Background(), bad)
	assert.Error(t, err)
}

func TestValidateInputs(t *testing.T) {
	topo, wl := writeInputs(t, syntheticWorkload)
	n, err := validateInputs(topo, wl)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	dir := t.TempDir()
	badWl := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badWl, []byte("num_calls: 1\nrate: 3\n"), 0644))
	_, err = validateInputs(topo, badWl)
	assert.Error(t, err)
}

func TestValidateCmd_PrintsOK(t *testing.T) {
	topo, wl := writeInputs(t, ringCalls)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"validate", "--topology", topo, "--workload", wl})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "OK: topology and workload valid (2 calls)")
}

func TestRunCmd_FlagDefaults(t *testing.T) {
	f := runCmd.Flags()
	for flag, want := range map[string]string{
		"allocator":   routing.AllocatorSRLGDisjoint,
		"log":         "error",
		"trace":       "none",
		"verify":      "false",
		"metrics-out": "",
	} {
		got := f.Lookup(flag)
		require.NotNil(t, got, "flag --%s missing", flag)
		assert.Equal(t, want, got.DefValue, "flag --%s", flag)
	}
}
