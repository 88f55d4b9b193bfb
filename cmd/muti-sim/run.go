package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/postalsys/muti-sim/internal/config"
	"github.com/postalsys/muti-sim/internal/loadtest"
	"github.com/postalsys/muti-sim/internal/logging"
	"github.com/postalsys/muti-sim/internal/metrics"
	"github.com/postalsys/muti-sim/internal/recovery"
	"github.com/postalsys/muti-sim/internal/sim"
	"github.com/postalsys/muti-sim/internal/sysinfo"
	"github.com/postalsys/muti-sim/internal/tracestore"
)

type runFlags struct {
	configPath  string
	level       string
	seed        int64
	ticks       uint64
	logLevel    string
	traceDB     string
	metricsFile string
	eventsFile  string
	jsonOutput  bool
}

func runCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		Long: `Run a simulation with the specified configuration and print a summary.

The configured workload is generated from the seed, so the same
configuration always produces the same run. Interrupting the run stops
it at the current tick and still writes every output.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(f.configPath, f.level)
			if err != nil {
				return err
			}
			applyOverrides(cmd, cfg, f)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runSimulation(ctx, cfg, f.jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&f.configPath, "config", "c", "./simulation.yaml", "Path to configuration file")
	cmd.Flags().StringVar(&f.level, "level", "", "Use a preset instead of a config file (quick, medium, full, manual)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "Override simulation.seed")
	cmd.Flags().Uint64Var(&f.ticks, "ticks", 0, "Override simulation.max_ticks")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Override logging.level")
	cmd.Flags().StringVar(&f.traceDB, "trace-db", "", "Record the run in this SQLite trace database")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-out", "", "Write Prometheus metrics to this file")
	cmd.Flags().StringVar(&f.eventsFile, "events-out", "", "Write the event log as JSON to this file")
	cmd.Flags().BoolVar(&f.jsonOutput, "json", false, "Print the summary as JSON")

	return cmd
}

// applyOverrides copies explicitly set flags into cfg.
func applyOverrides(cmd *cobra.Command, cfg *config.Config, f runFlags) {
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Simulation.Seed = f.seed
	}
	if flags.Changed("ticks") {
		cfg.Simulation.MaxTicks = f.ticks
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = f.logLevel
	}
	if flags.Changed("trace-db") {
		cfg.Output.TraceDB = f.traceDB
	}
	if flags.Changed("metrics-out") {
		cfg.Output.MetricsFile = f.metricsFile
	}
	if flags.Changed("events-out") {
		cfg.Output.EventsFile = f.eventsFile
	}
}

func runSimulation(ctx context.Context, cfg *config.Config, jsonOutput bool) error {
	logger := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)

	mesh, err := config.BuildTopology(cfg)
	if err != nil {
		return fmt.Errorf("failed to build topology: %w", err)
	}

	reg := prometheus.NewRegistry()
	opts := []sim.Option{
		sim.WithLogger(logger),
		sim.WithMetrics(metrics.NewMetricsWithRegistry(reg)),
	}

	var (
		store  *tracestore.Store
		writer *tracestore.Writer
	)
	if cfg.Output.TraceDB != "" {
		store, err = tracestore.Open(cfg.Output.TraceDB)
		if err != nil {
			return fmt.Errorf("failed to open trace database: %w", err)
		}
		defer store.Close()

		runID, err := store.BeginRun(ctx, tracestore.Run{
			Seed:   cfg.Simulation.Seed,
			Peers:  mesh.PeerCount(),
			Edges:  mesh.EdgeCount(),
			Config: cfg.String(),
			Host:   sysinfo.Collect(),
		})
		if err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		writer = store.NewWriter(runID, 0)
		opts = append(opts, sim.WithEventHook(recovery.GuardHook(logger, "trace writer", writer.Write)))
		logger.Info("recording trace", logging.KeyRunID, runID, "path", cfg.Output.TraceDB)
	}

	s, err := sim.New(mesh, cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create simulation: %w", err)
	}

	plan := loadtest.NewPlan(cfg.Workload, mesh.Peers(), cfg.Simulation.Seed)
	logger.Info("starting simulation",
		logging.KeySeed, cfg.Simulation.Seed,
		"peers", mesh.PeerCount(),
		"edges", mesh.EdgeCount(),
		"max_ticks", cfg.Simulation.MaxTicks,
		"messages", len(plan.Sends),
		"invites", len(plan.Invites))

	m, runErr := loadtest.NewDriver(s, plan, logger).Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		logger.Warn("simulation interrupted", logging.KeyTick, s.Tick())
	}

	// Outputs are written even after an interrupt, so use a fresh context.
	if err := writeOutputs(context.Background(), cfg.Output, s, reg, writer, logger); err != nil {
		return err
	}

	if jsonOutput {
		data, err := json.MarshalIndent(s.Summary(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Print(s.Summary())
	fmt.Printf("\nSimulated %s ticks in %s (%s ticks/s)\n",
		humanize.Comma(int64(m.Ticks)), m.Duration.Round(time.Millisecond),
		humanize.FormatFloat("#,###.", m.TicksPerSecond))
	if writer != nil {
		fmt.Printf("Trace: %s (run %s)\n", cfg.Output.TraceDB, writer.RunID())
	}
	return nil
}

func writeOutputs(ctx context.Context, out config.OutputConfig, s *sim.Simulation, reg *prometheus.Registry, writer *tracestore.Writer, logger *slog.Logger) error {
	if writer != nil {
		if err := writer.Close(ctx, s.Tick(), s.Stats()); err != nil {
			return fmt.Errorf("failed to write trace: %w", err)
		}
		logger.Debug("trace written", logging.KeyRunID, writer.RunID(), logging.KeyCount, writer.Written())
	}

	if out.MetricsFile != "" {
		if err := ensureDir(out.MetricsFile); err != nil {
			return err
		}
		if err := prometheus.WriteToTextfile(out.MetricsFile, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		logger.Debug("metrics written", "path", out.MetricsFile)
	}

	if out.EventsFile != "" {
		data, err := json.MarshalIndent(s.EventLog(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode events: %w", err)
		}
		if err := ensureDir(out.EventsFile); err != nil {
			return err
		}
		if err := os.WriteFile(out.EventsFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write events: %w", err)
		}
		logger.Debug("events written", "path", out.EventsFile, logging.KeyCount, s.EventLog().Len())
	}
	return nil
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	return nil
}
