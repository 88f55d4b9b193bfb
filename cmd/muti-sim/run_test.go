package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/postalsys/muti-sim/internal/config"
	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/tracestore"
)

func TestApplyOverrides(t *testing.T) {
	cmd := runCmd()
	if err := cmd.ParseFlags([]string{"--seed", "9", "--events-out", "ev.json"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	f := runFlags{seed: 9, eventsFile: "ev.json", ticks: 77}

	cfg := config.Default()
	applyOverrides(cmd, cfg, f)

	if cfg.Simulation.Seed != 9 {
		t.Errorf("Seed = %d, want 9", cfg.Simulation.Seed)
	}
	if cfg.Output.EventsFile != "ev.json" {
		t.Errorf("EventsFile = %q, want ev.json", cfg.Output.EventsFile)
	}
	// --ticks was not passed, so the config value stays.
	if cfg.Simulation.MaxTicks != config.Default().Simulation.MaxTicks {
		t.Errorf("MaxTicks = %d, want default", cfg.Simulation.MaxTicks)
	}
}

func TestLoadConfig(t *testing.T) {
	cfg, err := loadConfig("does-not-matter.yaml", config.LevelQuick)
	if err != nil {
		t.Fatalf("loadConfig(preset) error = %v", err)
	}
	if cfg.Workload.Messages == 0 {
		t.Error("quick preset should generate messages")
	}

	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("loadConfig() of a missing file should fail")
	}
	if _, err := loadConfig("", "extreme"); err == nil {
		t.Error("loadConfig() of an unknown level should fail")
	}
}

func TestRunSimulation_WritesOutputs(t *testing.T) {
	dir := t.TempDir()
	cfg, err := config.Preset(config.LevelQuick)
	if err != nil {
		t.Fatalf("Preset() error = %v", err)
	}
	cfg.Simulation.MaxTicks = 40
	cfg.Logging.Level = "error"
	cfg.Output = config.OutputConfig{
		TraceDB:     filepath.Join(dir, "traces.db"),
		MetricsFile: filepath.Join(dir, "out", "metrics.prom"),
		EventsFile:  filepath.Join(dir, "out", "events.json"),
	}

	if err := runSimulation(context.Background(), cfg, true); err != nil {
		t.Fatalf("runSimulation() error = %v", err)
	}

	prom, err := os.ReadFile(cfg.Output.MetricsFile)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), "muti_sim_tick 40") {
		t.Errorf("metrics file missing tick gauge:\n%s", prom)
	}

	data, err := os.ReadFile(cfg.Output.EventsFile)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	log := eventlog.New()
	if err := json.Unmarshal(data, log); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if log.Count(eventlog.Send) == 0 {
		t.Error("event log has no send events")
	}

	store, err := tracestore.Open(cfg.Output.TraceDB)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()
	runs, err := store.ListRuns(context.Background())
	if err != nil || len(runs) != 1 {
		t.Fatalf("ListRuns() = %d runs, err %v", len(runs), err)
	}
	if runs[0].Ticks != 40 || runs[0].Seed != cfg.Simulation.Seed {
		t.Errorf("stored run = %+v", runs[0])
	}
	events, err := store.Events(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != log.Len() {
		t.Errorf("stored %d events, events file has %d", len(events), log.Len())
	}
}

func TestRunSimulation_Cancelled(t *testing.T) {
	cfg, err := config.Preset(config.LevelQuick)
	if err != nil {
		t.Fatalf("Preset() error = %v", err)
	}
	cfg.Logging.Level = "error"
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := runSimulation(ctx, cfg, true); err != nil {
		t.Errorf("interrupted run should still succeed, got %v", err)
	}
}
