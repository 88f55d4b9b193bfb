package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Simulation.MaxTicks != 100 {
		t.Errorf("Simulation.MaxTicks = %d, want 100", cfg.Simulation.MaxTicks)
	}
	if cfg.Simulation.MaxSenderRetries != 10 {
		t.Errorf("Simulation.MaxSenderRetries = %d, want 10", cfg.Simulation.MaxSenderRetries)
	}
	if cfg.Simulation.MessageTimeout != 50 {
		t.Errorf("Simulation.MessageTimeout = %d, want 50", cfg.Simulation.MessageTimeout)
	}
	if cfg.Topology.Kind != KindRandom {
		t.Errorf("Topology.Kind = %s, want random", cfg.Topology.Kind)
	}
	if cfg.PQ.Latencies.Sign.BaseUs == 0 {
		t.Error("PQ latencies should default to non-zero values")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

func TestParse_ValidConfig(t *testing.T) {
	yamlConfig := `
simulation:
  seed: 42
  max_ticks: 300
  wake_probability: 0.1
  sleep_probability: 0.05
  message_timeout: 20
  trace_routing: true

topology:
  kind: edges
  edges:
    - A-B
    - B-C

constraints:
  max_message_size: 1024
  max_pending_messages: 8

duty_cycle:
  enabled: true
  active_ticks: 5
  presleep_ticks: 1
  sleeping_ticks: 10
  waking_ticks: 1

pq:
  kem_failure_rate: 0.05
  latencies:
    sign:
      base_us: 500
      jitter_us: 50

logging:
  level: debug
  format: json

output:
  trace_db: ./runs.db
`

	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Simulation.Seed != 42 || cfg.Simulation.MaxTicks != 300 {
		t.Errorf("seed/max_ticks = %d/%d", cfg.Simulation.Seed, cfg.Simulation.MaxTicks)
	}
	if !cfg.Simulation.TraceRouting {
		t.Error("TraceRouting should be true")
	}
	if cfg.Topology.Kind != KindEdges || len(cfg.Topology.Edges) != 2 {
		t.Errorf("topology = %+v", cfg.Topology)
	}
	if cfg.Constraints.MaxPendingMessages != 8 {
		t.Errorf("MaxPendingMessages = %d, want 8", cfg.Constraints.MaxPendingMessages)
	}
	if cfg.PQ.Latencies.Sign.BaseUs != 500 {
		t.Errorf("Sign.BaseUs = %d, want 500", cfg.PQ.Latencies.Sign.BaseUs)
	}
	// Unset fields keep their defaults.
	if cfg.PQ.Latencies.Verify.BaseUs != 120 {
		t.Errorf("Verify.BaseUs = %d, want default 120", cfg.PQ.Latencies.Verify.BaseUs)
	}
	if cfg.Simulation.MaxSenderRetries != 10 {
		t.Errorf("MaxSenderRetries = %d, want default 10", cfg.Simulation.MaxSenderRetries)
	}
	if cfg.Output.TraceDB != "./runs.db" {
		t.Errorf("Output.TraceDB = %s", cfg.Output.TraceDB)
	}

	sc := cfg.Schedule()
	if sc.DutyCycle == nil || sc.DutyCycle.CycleLength() != 17 {
		t.Errorf("Schedule().DutyCycle = %+v", sc.DutyCycle)
	}
}

func TestParse_EnvVarExpansion(t *testing.T) {
	t.Setenv("SIM_SEED", "99")

	yamlConfig := `
simulation:
  seed: ${SIM_SEED}
logging:
  level: ${MUTI_SIM_UNSET_LEVEL:-warn}
`

	cfg, err := Parse([]byte(yamlConfig))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Simulation.Seed != 99 {
		t.Errorf("Seed = %d, want 99", cfg.Simulation.Seed)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %s, want warn", cfg.Logging.Level)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "zero max ticks",
			modify:  func(c *Config) { c.Simulation.MaxTicks = 0 },
			wantErr: "simulation.max_ticks",
		},
		{
			name:    "wake probability out of range",
			modify:  func(c *Config) { c.Simulation.WakeProbability = 1.5 },
			wantErr: "simulation.wake_probability",
		},
		{
			name:    "sleep probability NaN",
			modify:  func(c *Config) { c.Simulation.SleepProbability = math.NaN() },
			wantErr: "simulation.sleep_probability",
		},
		{
			name:    "max hops",
			modify:  func(c *Config) { c.Simulation.MaxHops = 0 },
			wantErr: "simulation.max_hops",
		},
		{
			name:    "unknown topology",
			modify:  func(c *Config) { c.Topology.Kind = "torus" },
			wantErr: "invalid kind",
		},
		{
			name:    "density",
			modify:  func(c *Config) { c.Topology.Density = -0.1 },
			wantErr: "density",
		},
		{
			name:    "density NaN",
			modify:  func(c *Config) { c.Topology.Density = math.NaN() },
			wantErr: "density",
		},
		{
			name:    "edges missing",
			modify:  func(c *Config) { c.Topology.Kind = KindEdges },
			wantErr: "edges are required",
		},
		{
			name: "bad edge",
			modify: func(c *Config) {
				c.Topology.Kind = KindEdges
				c.Topology.Edges = []string{"AB"}
			},
			wantErr: "expected A-B",
		},
		{
			name:    "negative constraint",
			modify:  func(c *Config) { c.Constraints.MaxPendingBytes = -1 },
			wantErr: "constraints",
		},
		{
			name: "duty cycle without active window",
			modify: func(c *Config) {
				c.DutyCycle.Enabled = true
				c.DutyCycle.ActiveTicks = 0
			},
			wantErr: "duty_cycle",
		},
		{
			name:    "kem rate",
			modify:  func(c *Config) { c.PQ.KEMFailureRate = 2 },
			wantErr: "pq.kem_failure_rate",
		},
		{
			name:    "log level",
			modify:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_AggregatesErrors(t *testing.T) {
	cfg := Default()
	cfg.Simulation.MaxTicks = 0
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if !strings.HasPrefix(err.Error(), "validation errors:\n  - ") {
		t.Errorf("unexpected error layout: %q", err)
	}
	if strings.Count(err.Error(), "\n  - ") != 2 {
		t.Errorf("expected two errors: %q", err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sim.yaml")
	if err := os.WriteFile(path, []byte("topology:\n  kind: ring\n  peers: 5\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Topology.Kind != KindRing || cfg.Topology.Peers != 5 {
		t.Errorf("topology = %+v", cfg.Topology)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Load() of a missing file should fail")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("simulation: [")); err == nil {
		t.Error("Parse() should fail on malformed YAML")
	}
}

func TestPreset(t *testing.T) {
	for _, level := range Levels {
		t.Run(level, func(t *testing.T) {
			cfg, err := Preset(level)
			if err != nil {
				t.Fatalf("Preset(%s) error = %v", level, err)
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Preset(%s) is invalid: %v", level, err)
			}
		})
	}

	quick, _ := Preset(LevelQuick)
	full, _ := Preset(LevelFull)
	if quick.Workload.Messages >= full.Workload.Messages {
		t.Error("full should generate more traffic than quick")
	}
	manual, _ := Preset(LevelManual)
	if manual.Workload.Messages != 0 || manual.Workload.Invites != 0 {
		t.Error("manual preset should not generate traffic")
	}

	if _, err := Preset("extreme"); !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("Preset(extreme) error = %v, want ErrUnknownLevel", err)
	}
}

func TestBuildTopology(t *testing.T) {
	tests := []struct {
		kind      string
		peers     int
		wantEdges int
	}{
		{KindFull, 4, 6},
		{KindLine, 4, 3},
		{KindRing, 4, 4},
		{KindStar, 4, 3},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			cfg := Default()
			cfg.Topology.Kind = tt.kind
			cfg.Topology.Peers = tt.peers
			mesh, err := BuildTopology(cfg)
			if err != nil {
				t.Fatalf("BuildTopology() error = %v", err)
			}
			if mesh.PeerCount() != tt.peers || mesh.EdgeCount() != tt.wantEdges {
				t.Errorf("peers/edges = %d/%d, want %d/%d", mesh.PeerCount(), mesh.EdgeCount(), tt.peers, tt.wantEdges)
			}
		})
	}

	t.Run("random is seeded", func(t *testing.T) {
		cfg := Default()
		a, err := BuildTopology(cfg)
		if err != nil {
			t.Fatalf("BuildTopology() error = %v", err)
		}
		b, _ := BuildTopology(cfg)
		if a.Visualize() != b.Visualize() {
			t.Error("same seed should build the same random mesh")
		}
	})

	t.Run("edges", func(t *testing.T) {
		cfg := Default()
		cfg.Topology.Kind = KindEdges
		cfg.Topology.Edges = []string{"A-B", "B-C"}
		mesh, err := BuildTopology(cfg)
		if err != nil {
			t.Fatalf("BuildTopology() error = %v", err)
		}
		if !mesh.AreConnected("A", "B") || mesh.AreConnected("A", "C") {
			t.Error("edge list not honoured")
		}
	})
}

func TestString_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Simulation.Seed = 7

	parsed, err := Parse([]byte(cfg.String()))
	if err != nil {
		t.Fatalf("Parse(String()) error = %v", err)
	}
	if parsed.Simulation.Seed != 7 {
		t.Errorf("Seed = %d, want 7", parsed.Simulation.Seed)
	}
}
