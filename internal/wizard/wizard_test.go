package wizard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/postalsys/muti-sim/internal/config"
)

func TestNew(t *testing.T) {
	w := New()
	if w == nil {
		t.Fatal("New() returned nil")
	}
	if w.theme == nil {
		t.Error("New() returned wizard without a theme")
	}
}

func TestDefaultAnswers(t *testing.T) {
	a := DefaultAnswers()
	if a.Level != config.LevelQuick {
		t.Errorf("Level = %q, want %q", a.Level, config.LevelQuick)
	}
	if err := validateConfigPath(a.ConfigPath); err != nil {
		t.Errorf("default config path invalid: %v", err)
	}
	for name, v := range map[string]string{
		"wake":    a.Wake,
		"sleep":   a.Sleep,
		"initial": a.Initial,
		"density": a.Density,
		"kem":     a.KEMFailureRate,
	} {
		if err := validateProbability(v); err != nil {
			t.Errorf("default %s %q invalid: %v", name, v, err)
		}
	}
	for name, v := range map[string]string{
		"max message size": a.MaxMessageSize,
		"bandwidth":        a.BandwidthLimit,
		"pending bytes":    a.MaxPendingBytes,
	} {
		if err := validateSize(v); err != nil {
			t.Errorf("default %s %q invalid: %v", name, v, err)
		}
	}
}

func TestBuildConfig_Presets(t *testing.T) {
	for _, level := range []string{config.LevelQuick, config.LevelMedium, config.LevelFull} {
		t.Run(level, func(t *testing.T) {
			a := DefaultAnswers()
			a.Level = level
			a.LogLevel = "debug"
			a.TraceDB = " ./traces.db "

			cfg, err := buildConfig(a)
			if err != nil {
				t.Fatalf("buildConfig() error = %v", err)
			}
			want, _ := config.Preset(level)
			if cfg.Topology.Peers != want.Topology.Peers || cfg.Workload.Messages != want.Workload.Messages {
				t.Errorf("preset values not kept: peers %d messages %d", cfg.Topology.Peers, cfg.Workload.Messages)
			}
			if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
				t.Errorf("logging = %+v", cfg.Logging)
			}
			if cfg.Output.TraceDB != "./traces.db" {
				t.Errorf("TraceDB = %q, want trimmed path", cfg.Output.TraceDB)
			}
		})
	}
}

func TestBuildConfig_Manual(t *testing.T) {
	a := DefaultAnswers()
	a.Level = config.LevelManual
	a.Kind = config.KindRing
	a.Peers = "6"
	a.Seed = "99"
	a.MaxTicks = "300"
	a.Timeout = "0"
	a.Wake = "0.4"
	a.Sleep = "0.1"
	a.Initial = "1"
	a.Constrained = true
	a.MaxMessageSize = "2KB"
	a.BandwidthLimit = "8KiB"
	a.MaxPendingCount = "32"
	a.MaxPendingBytes = "64KB"
	a.Messages = "500"
	a.Invites = "10"
	a.KEMFailureRate = "0.05"

	cfg, err := buildConfig(a)
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}

	if cfg.Topology.Kind != config.KindRing || cfg.Topology.Peers != 6 {
		t.Errorf("topology = %+v", cfg.Topology)
	}
	if cfg.Simulation.Seed != 99 || cfg.Simulation.MaxTicks != 300 || cfg.Simulation.MessageTimeout != 0 {
		t.Errorf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Simulation.WakeProbability != 0.4 || cfg.Simulation.InitialOnlineProbability != 1 {
		t.Errorf("probabilities = %+v", cfg.Simulation)
	}
	if cfg.Constraints.MaxMessageSize != 2000 || cfg.Constraints.BandwidthLimitPerTick != 8192 {
		t.Errorf("constraints = %+v", cfg.Constraints)
	}
	if cfg.Constraints.MaxPendingMessages != 32 || cfg.Constraints.MaxPendingBytes != 64000 {
		t.Errorf("pending caps = %+v", cfg.Constraints)
	}
	if cfg.Workload.Messages != 500 || cfg.Workload.SendWindow != 150 || cfg.Workload.Interfaces == 0 {
		t.Errorf("workload = %+v", cfg.Workload)
	}
	if cfg.PQ.KEMFailureRate != 0.05 {
		t.Errorf("KEMFailureRate = %v, want 0.05", cfg.PQ.KEMFailureRate)
	}
}

func TestBuildConfig_ManualEdgesAndDutyCycle(t *testing.T) {
	a := DefaultAnswers()
	a.Level = config.LevelManual
	a.Kind = config.KindEdges
	a.Edges = "a-b, B-C ,,C-D"
	a.DutyCycle = true
	a.Wake = "not a number" // ignored under duty cycling

	cfg, err := buildConfig(a)
	if err != nil {
		t.Fatalf("buildConfig() error = %v", err)
	}
	if got := strings.Join(cfg.Topology.Edges, ","); got != "A-B,B-C,C-D" {
		t.Errorf("Edges = %q, want A-B,B-C,C-D", got)
	}
	if !cfg.DutyCycle.Enabled {
		t.Error("duty cycle should be enabled")
	}
	mesh, err := config.BuildTopology(cfg)
	if err != nil {
		t.Fatalf("BuildTopology() error = %v", err)
	}
	if mesh.PeerCount() != 4 {
		t.Errorf("PeerCount = %d, want 4", mesh.PeerCount())
	}
}

func TestBuildConfig_Errors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Answers)
	}{
		{"unknown level", func(a *Answers) { a.Level = "extreme" }},
		{"bad peers", func(a *Answers) {
			a.Level = config.LevelManual
			a.Peers = "many"
		}},
		{"bad size", func(a *Answers) {
			a.Level = config.LevelManual
			a.Constrained = true
			a.MaxMessageSize = "lots"
		}},
		{"probability out of range", func(a *Answers) {
			a.Level = config.LevelManual
			a.Sleep = "1.5"
		}},
		{"bad log level", func(a *Answers) { a.LogLevel = "chatty" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := DefaultAnswers()
			tt.modify(&a)
			if _, err := buildConfig(a); err == nil {
				t.Error("buildConfig() should fail")
			}
		})
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		{"path yaml", validateConfigPath, "sim.yaml", false},
		{"path yml", validateConfigPath, "dir/sim.yml", false},
		{"path empty", validateConfigPath, "", true},
		{"path json", validateConfigPath, "sim.json", true},
		{"int negative", validateInt, "-5", false},
		{"int text", validateInt, "five", true},
		{"non-negative zero", validateNonNegativeInt, "0", false},
		{"non-negative negative", validateNonNegativeInt, "-1", true},
		{"positive zero", validatePositiveInt, "0", true},
		{"positive one", validatePositiveInt, " 1 ", false},
		{"probability half", validateProbability, "0.5", false},
		{"probability above", validateProbability, "1.01", true},
		{"probability below", validateProbability, "-0.1", true},
		{"size decimal", validateSize, "10KB", false},
		{"size binary", validateSize, "1MiB", false},
		{"size plain", validateSize, "512", false},
		{"size bad", validateSize, "big", true},
		{"edges ok", validateEdges, "A-B,B-C", false},
		{"edges empty", validateEdges, " , ", true},
		{"edges malformed", validateEdges, "AB", true},
		{"edges self loop", validateEdges, "A-A", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWriteConfig(t *testing.T) {
	cfg, err := config.Preset(config.LevelQuick)
	if err != nil {
		t.Fatalf("Preset() error = %v", err)
	}
	cfg.Simulation.Seed = 1234
	cfg.Output.TraceDB = "./traces.db"

	path := filepath.Join(t.TempDir(), "subdir", "nested", "simulation.yaml")
	if err := writeConfig(cfg, path); err != nil {
		t.Fatalf("writeConfig failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read config file: %v", err)
	}
	content := string(data)

	if !strings.HasPrefix(content, "# Muti Sim Configuration") {
		t.Error("Config file missing header comment")
	}
	for _, want := range []string{"seed: 1234", "trace_db: ./traces.db", "kind: random"} {
		if !strings.Contains(content, want) {
			t.Errorf("Config file missing %q", want)
		}
	}

	loaded, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load() of written config failed: %v", err)
	}
	if loaded.Simulation.Seed != 1234 || loaded.Workload.Messages != cfg.Workload.Messages {
		t.Errorf("loaded config = %+v", loaded.Simulation)
	}
}
