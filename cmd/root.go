package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/survnet/survsim/internal/observability"
	"github.com/survnet/survsim/sim/engine"
	"github.com/survnet/survsim/sim/registry"
	"github.com/survnet/survsim/sim/routing"
	"github.com/survnet/survsim/sim/topology"
	"github.com/survnet/survsim/sim/trace"
	"github.com/survnet/survsim/sim/workload"
)

var (
	topologyPath      string // YAML topology file
	workloadPath      string // YAML workload file
	allocatorName     string // Allocation strategy
	seed              int64  // Overrides the workload seed when set
	simulationHorizon int64  // Total simulation time (in ticks)
	logLevel          string // Log verbosity level
	traceLevel        string // Decision trace verbosity
	traceOut          string // Decision trace output file
	metricsOut        string // Prometheus textfile output
	verifyAccounting  bool   // Cross-check accounting after every event
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "survsim",
	Short: "Discrete-event simulator for survivable call provisioning on optical networks",
}

// runConfig is everything a run needs, decoupled from the flag variables.
type runConfig struct {
	TopologyPath string
	WorkloadPath string
	Allocator    string
	Seed         *int64
	Horizon      int64
	TraceLevel   trace.TraceLevel
	Verify       bool
	Registerer   prometheus.Registerer
}

// runResult carries what a run produced.
type runResult struct {
	Summary      *engine.Summary
	Trace        *trace.SimulationTrace
	TraceSummary *trace.TraceSummary
	Metrics      *observability.SimCollector
}

// runSimulation loads the inputs, wires the engine and runs it to completion.
func runSimulation(ctx context.Context, cfg runConfig) (*runResult, error) {
	if !routing.IsValidAllocator(cfg.Allocator) {
		return nil, fmt.Errorf("unknown allocator %q; valid: %s",
			cfg.Allocator, strings.Join(routing.AllocatorNames(), ", "))
	}
	if !trace.IsValidTraceLevel(string(cfg.TraceLevel)) {
		return nil, fmt.Errorf("unknown trace level %q; valid: none, decisions, paths", cfg.TraceLevel)
	}

	model, err := topology.Load(cfg.TopologyPath)
	if err != nil {
		return nil, err
	}
	spec, err := workload.LoadSpec(cfg.WorkloadPath)
	if err != nil {
		return nil, err
	}
	if cfg.Seed != nil {
		spec.Seed = *cfg.Seed
	}
	calls, err := workload.Generate(spec, model.Nodes())
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewSimCollector(cfg.Registerer)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	reg := registry.New(model)
	alloc := routing.NewAllocator(cfg.Allocator, model, reg)
	opts := []engine.Option{
		engine.WithHorizon(cfg.Horizon),
		engine.WithVerify(cfg.Verify),
		engine.WithCollector(metrics),
	}
	var st *trace.SimulationTrace
	if cfg.TraceLevel.Enabled() {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: cfg.TraceLevel})
		opts = append(opts, engine.WithCollector(engine.TraceCollector(st)))
	}

	s := engine.New(model, alloc, reg, opts...)
	s.ScheduleCalls(calls)
	summary, err := s.Run(ctx)
	if err != nil {
		return nil, fmt.Errorf("simulation: %w", err)
	}
	return &runResult{Summary: summary, Trace: st, TraceSummary: trace.Summarize(st), Metrics: metrics}, nil
}

// writeTrace writes the trace and its summary as indented JSON.
func writeTrace(w io.Writer, res *runResult) error {
	out := struct {
		Summary *trace.TraceSummary    `json:"summary"`
		Trace   *trace.SimulationTrace `json:"trace"`
	}{res.TraceSummary, res.Trace}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding trace: %w", err)
	}
	return nil
}

// writeTraceFile writes the trace to path. A failed close is reported, since
// it can lose buffered output.
func writeTraceFile(path string, res *runResult) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating trace output: %w", err)
	}
	if err := writeTrace(f, res); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing trace output %s: %w", path, err)
	}
	return nil
}

// runCmd executes the simulation using parameters from CLI flags
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the call provisioning simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if topologyPath == "" || workloadPath == "" {
			logrus.Fatalf("--topology and --workload are required")
		}

		cfg := runConfig{
			TopologyPath: topologyPath,
			WorkloadPath: workloadPath,
			Allocator:    allocatorName,
			Horizon:      simulationHorizon,
			TraceLevel:   trace.TraceLevel(traceLevel),
			Verify:       verifyAccounting,
			Registerer:   prometheus.NewRegistry(),
		}
		if cmd.Flags().Changed("seed") {
			cfg.Seed = &seed
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		startTime := time.Now()
		res, err := runSimulation(ctx, cfg)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := res.Summary.Print(os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}

		if res.Trace != nil {
			var err error
			if traceOut != "" {
				err = writeTraceFile(traceOut, res)
			} else {
				err = writeTrace(os.Stdout, res)
			}
			if err != nil {
				logrus.Fatalf("%v", err)
			}
		}
		if metricsOut != "" {
			if err := res.Metrics.WriteTextfile(metricsOut); err != nil {
				logrus.Fatalf("%v", err)
			}
		}

		logrus.Infof("Simulation complete in %s.", time.Since(startTime).Round(time.Millisecond))
	},
}

// validateCmd checks topology and workload files without running.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate topology and workload files",
	RunE: func(cmd *cobra.Command, args []string) error {
		if topologyPath == "" || workloadPath == "" {
			return fmt.Errorf("--topology and --workload are required")
		}
		n, err := validateInputs(topologyPath, workloadPath)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "OK: topology and workload valid (%d calls)\n", n)
		return err
	},
}

// validateInputs parses both files and returns the number of calls the
// workload would produce.
func validateInputs(topoPath, wlPath string) (int, error) {
	tspec, err := topology.LoadSpec(topoPath)
	if err != nil {
		return 0, err
	}
	if err := tspec.Validate(); err != nil {
		return 0, fmt.Errorf("topology: %w", err)
	}
	model, err := tspec.Build()
	if err != nil {
		return 0, fmt.Errorf("topology: %w", err)
	}
	wspec, err := workload.LoadSpec(wlPath)
	if err != nil {
		return 0, err
	}
	calls, err := workload.Generate(wspec, model.Nodes())
	if err != nil {
		return 0, fmt.Errorf("workload: %w", err)
	}
	return len(calls), nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init sets up CLI flags and subcommands
func init() {
	for _, c := range []*cobra.Command{runCmd, validateCmd} {
		c.Flags().StringVar(&topologyPath, "topology", "", "Path to the YAML topology file")
		c.Flags().StringVar(&workloadPath, "workload", "", "Path to the YAML workload file")
	}

	runCmd.Flags().StringVar(&allocatorName, "allocator", routing.AllocatorSRLGDisjoint,
		"Allocation strategy ("+strings.Join(routing.AllocatorNames(), ", ")+")")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Seed for call generation (overrides the workload seed)")
	runCmd.Flags().Int64Var(&simulationHorizon, "horizon", math.MaxInt64, "Total simulation horizon (in ticks)")
	runCmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	runCmd.Flags().StringVar(&traceLevel, "trace", string(trace.TraceLevelNone), "Decision trace level (none, decisions, paths)")
	runCmd.Flags().StringVar(&traceOut, "trace-out", "", "Write the decision trace to this file instead of stdout")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")
	runCmd.Flags().BoolVar(&verifyAccounting, "verify", false, "Cross-check resource accounting after every event")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
