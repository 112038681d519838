package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ingertb/rawsim/sim"
	"github.com/ingertb/rawsim/sim/bss"
	"github.com/ingertb/rawsim/sim/cac"
	"github.com/ingertb/rawsim/sim/metrics"
	"github.com/ingertb/rawsim/sim/trace"
)

var (
	// CLI flags for the scenario
	configPath        string  // Scenario YAML; defaults apply when empty
	seed              int64   // Master seed
	simulationHorizon int64   // Total simulation time (in ticks)
	logLevel          string  // Log verbosity level
	stationCount      int     // Replaces the waves with a single wave of this size
	arrivalSpread     int64   // Spread of the single wave (in ticks)
	algorithmName     string  // Admission algorithm name or selector
	initialThreshold  int     // Starting authentication threshold
	rawGroups         int     // Number of RAW station groups
	frameLoss         float64 // Per-delivery loss probability

	// CLI flags for outputs
	traceLevel string // Trace verbosity: none, decisions, full
	traceOut   string // Trace YAML destination
	metricsOut string // Prometheus text exposition destination
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "rawsim",
	Short: "Discrete-event simulator for 802.11ah RAW access and centralized authentication control",
}

// runCmd executes the simulation using the scenario file and CLI overrides
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulation",
	Run: func(cmd *cobra.Command, args []string) {
		// Set up logging
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			logrus.Fatalf("Invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)

		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level %q; valid: none, decisions, full", traceLevel)
		}
		if traceOut != "" && (traceLevel == "" || traceLevel == string(trace.TraceLevelNone)) {
			logrus.Warnf("--trace-out is set but --trace-level is %q; the trace will be empty", traceLevel)
		}

		cfg, err := loadScenario(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := applyOverrides(cmd, cfg); err != nil {
			logrus.Fatalf("%v", err)
		}

		logrus.Infof("Starting simulation: %d stations, horizon=%dticks, algorithm=%s, seed=%d",
			cfg.TotalStations(), cfg.Horizon, cfg.AP.Admission.Algorithm, cfg.Seed)

		out := outputs{TraceLevel: trace.TraceLevel(traceLevel), TracePath: traceOut, MetricsPath: metricsOut}
		if _, err := runScenario(*cfg, out, os.Stdout); err != nil {
			logrus.Fatalf("%v", err)
		}
		logrus.Info("Simulation complete.")
	},
}

// validateCmd checks a scenario file without running it
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a scenario file",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadScenario(configPath)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if err := cfg.Validate(); err != nil {
			logrus.Fatalf("invalid scenario: %v", err)
		}
		fmt.Fprintf(os.Stdout, "scenario OK: %d stations, algorithm %s\n", cfg.TotalStations(), cfg.AP.Admission.Algorithm)
	},
}

// loadScenario reads path over the defaults, or returns the defaults when
// path is empty.
func loadScenario(path string) (*bss.ScenarioConfig, error) {
	if path == "" {
		cfg := bss.DefaultScenario()
		return &cfg, nil
	}
	return bss.LoadScenario(path)
}

// applyOverrides copies explicitly set flags onto cfg. Flags left at their
// defaults never override the file.
func applyOverrides(cmd *cobra.Command, cfg *bss.ScenarioConfig) error {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("horizon") {
		cfg.Horizon = simulationHorizon
	}
	if flags.Changed("stations") || flags.Changed("spread") {
		wave := bss.WaveConfig{Count: cfg.TotalStations()}
		if len(cfg.Waves) > 0 {
			wave.Start, wave.Spread = cfg.Waves[0].Start, cfg.Waves[0].Spread
		}
		if flags.Changed("stations") {
			wave.Count = stationCount
		}
		if flags.Changed("spread") {
			wave.Spread = arrivalSpread
		}
		cfg.Waves = []bss.WaveConfig{wave}
	}
	if flags.Changed("algorithm") {
		alg, err := cac.ParseAlgorithm(algorithmName)
		if err != nil {
			return err
		}
		cfg.AP.Admission.Algorithm = alg
	}
	if flags.Changed("threshold") {
		cfg.AP.Admission.InitialThreshold = initialThreshold
	}
	if flags.Changed("groups") {
		cfg.AP.Groups = rawGroups
	}
	if flags.Changed("loss") {
		cfg.Medium.Loss = frameLoss
	}
	return nil
}

// outputs names the optional artifacts of a run.
type outputs struct {
	TraceLevel  trace.TraceLevel
	TracePath   string
	MetricsPath string
}

// runScenario runs cfg, prints the summary to w and writes the requested
// artifacts.
func runScenario(cfg bss.ScenarioConfig, out outputs, w io.Writer) (*bss.Summary, error) {
	st := trace.NewSimulationTrace(trace.TraceConfig{Level: out.TraceLevel})
	collector := metrics.NewCollector()
	observer := sim.Observers{sim.LogObserver{}, st, collector}

	s, err := bss.NewSimulation(cfg, observer)
	if err != nil {
		return nil, err
	}
	summary := s.Run()
	summary.Print(w)

	if out.TraceLevel != "" && out.TraceLevel != trace.TraceLevelNone {
		ts := trace.Summarize(st)
		fmt.Fprintln(w, "=== Trace Summary ===")
		fmt.Fprintf(w, "Threshold Changes    : %d (range %d-%d, final %d)\n",
			ts.ThresholdChanges, ts.MinThreshold, ts.MaxThreshold, ts.FinalThreshold)
		fmt.Fprintf(w, "Associations         : %d by %d stations, %d lost (%d stations flapped)\n",
			ts.Associations, ts.Reached, ts.Deassociations, ts.Flapping)
	}
	if out.TracePath != "" {
		if err := writeFile(out.TracePath, st.WriteYAML); err != nil {
			return summary, fmt.Errorf("writing trace: %w", err)
		}
		logrus.Infof("Trace written to %s", out.TracePath)
	}
	if out.MetricsPath != "" {
		if err := writeFile(out.MetricsPath, collector.WriteText); err != nil {
			return summary, fmt.Errorf("writing metrics: %w", err)
		}
		logrus.Infof("Metrics written to %s", out.MetricsPath)
	}
	return summary, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
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
		c.Flags().StringVar(&configPath, "config", "", "Scenario YAML file (defaults apply when omitted)")
	}

	addRunFlags(runCmd)

	// Attach subcommands to `root`
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(defaultsCmd)
}

// addRunFlags registers the run flags on c.
func addRunFlags(c *cobra.Command) {
	c.Flags().Int64Var(&seed, "seed", 42, "Master seed for every random stream")
	c.Flags().Int64Var(&simulationHorizon, "horizon", 60_000_000, "Total simulation horizon (in ticks)")
	c.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	// Scenario overrides
	c.Flags().IntVar(&stationCount, "stations", 100, "Number of stations, arriving in a single wave")
	c.Flags().Int64Var(&arrivalSpread, "spread", 1_000_000, "Arrival spread of the single wave (in ticks)")
	c.Flags().StringVar(&algorithmName, "algorithm", "queue-step", "Admission algorithm name or selector")
	c.Flags().IntVar(&initialThreshold, "threshold", cac.MaxThreshold, "Initial authentication threshold (0-1023)")
	c.Flags().IntVar(&rawGroups, "groups", 1, "Number of RAW station groups")
	c.Flags().Float64Var(&frameLoss, "loss", 0, "Per-delivery frame loss probability")

	// Outputs
	c.Flags().StringVar(&traceLevel, "trace-level", "none", "Event trace level (none, decisions, full)")
	c.Flags().StringVar(&traceOut, "trace-out", "", "Write the event trace as YAML to this file")
	c.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus text metrics to this file")
}
