// Package config provides configuration parsing and validation for the mesh
// simulator.
package config

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/postalsys/muti-sim/internal/invite"
	"github.com/postalsys/muti-sim/internal/logging"
	"github.com/postalsys/muti-sim/internal/sleep"
	"github.com/postalsys/muti-sim/internal/topology"
)

// ErrUnknownLevel is returned by Preset for an unrecognised level name.
var ErrUnknownLevel = errors.New("unknown preset level")

// Config represents a complete simulation configuration.
type Config struct {
	Simulation  SimulationConfig  `yaml:"simulation"`
	Topology    TopologyConfig    `yaml:"topology"`
	Constraints ConstraintsConfig `yaml:"constraints"`
	DutyCycle   DutyCycleConfig   `yaml:"duty_cycle"`
	PQ          PQConfig          `yaml:"pq"`
	Workload    WorkloadConfig    `yaml:"workload"`
	Logging     LoggingConfig     `yaml:"logging"`
	Output      OutputConfig      `yaml:"output"`
}

// SimulationConfig controls the clock, peer churn and message lifetimes.
type SimulationConfig struct {
	Seed                     int64   `yaml:"seed"`
	MaxTicks                 uint64  `yaml:"max_ticks"`
	WakeProbability          float64 `yaml:"wake_probability"`
	SleepProbability         float64 `yaml:"sleep_probability"`
	InitialOnlineProbability float64 `yaml:"initial_online_probability"`
	MessageTimeout           uint64  `yaml:"message_timeout"`  // 0 disables
	BackpropTimeout          uint64  `yaml:"backprop_timeout"` // 0 disables
	MaxSenderRetries         int     `yaml:"max_sender_retries"`
	MaxHops                  int     `yaml:"max_hops"`
	TraceRouting             bool    `yaml:"trace_routing"`
}

// TopologyConfig selects how the mesh is built.
type TopologyConfig struct {
	Kind    string   `yaml:"kind"` // full, random, line, ring, star, edges
	Peers   int      `yaml:"peers"`
	Density float64  `yaml:"density"`
	Edges   []string `yaml:"edges"` // "A-B" pairs for kind edges
}

// ConstraintsConfig caps per-peer resources. Zero disables a cap.
type ConstraintsConfig struct {
	MaxMessageSize        ByteSize `yaml:"max_message_size"`
	BandwidthLimitPerTick ByteSize `yaml:"bandwidth_limit_per_tick"`
	MaxPendingMessages    int      `yaml:"max_pending_messages"`
	MaxPendingBytes       ByteSize `yaml:"max_pending_bytes"`
}

// DutyCycleConfig enables the four-state power cycle.
type DutyCycleConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ActiveTicks   uint64 `yaml:"active_ticks"`
	PreSleepTicks uint64 `yaml:"presleep_ticks"`
	SleepingTicks uint64 `yaml:"sleeping_ticks"`
	WakingTicks   uint64 `yaml:"waking_ticks"`
}

// PQConfig tunes the invite handshake.
type PQConfig struct {
	KEMFailureRate       float64          `yaml:"kem_failure_rate"`
	SignatureFailureRate float64          `yaml:"signature_failure_rate"`
	LatencySpikeRate     float64          `yaml:"latency_spike_rate"`
	Latencies            invite.Latencies `yaml:"latencies"`
}

// WorkloadConfig describes the traffic the CLI generates.
type WorkloadConfig struct {
	Messages    int      `yaml:"messages"`
	MessageSize ByteSize `yaml:"message_size"`
	SendWindow  uint64   `yaml:"send_window"` // messages are spread over ticks [0, send_window)
	Invites     int      `yaml:"invites"`
	Interfaces  int      `yaml:"interfaces"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// OutputConfig names the run artifacts. Empty paths are skipped.
type OutputConfig struct {
	TraceDB     string `yaml:"trace_db"`
	MetricsFile string `yaml:"metrics_file"`
	EventsFile  string `yaml:"events_file"`
}

// Topology kinds.
const (
	KindFull   = "full"
	KindRandom = "random"
	KindLine   = "line"
	KindRing   = "ring"
	KindStar   = "star"
	KindEdges  = "edges"
)

// Kinds lists the accepted topology kinds.
var Kinds = []string{KindFull, KindRandom, KindLine, KindRing, KindStar, KindEdges}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Seed:                     1,
			MaxTicks:                 100,
			WakeProbability:          0.3,
			SleepProbability:         0.2,
			InitialOnlineProbability: 0.5,
			MessageTimeout:           50,
			BackpropTimeout:          100,
			MaxSenderRetries:         10,
			MaxHops:                  10,
			TraceRouting:             false,
		},
		Topology: TopologyConfig{
			Kind:    KindRandom,
			Peers:   10,
			Density: 0.4,
			Edges:   []string{},
		},
		DutyCycle: DutyCycleConfig{
			Enabled:       false,
			ActiveTicks:   3,
			PreSleepTicks: 1,
			SleepingTicks: 24,
			WakingTicks:   2,
		},
		PQ: PQConfig{
			KEMFailureRate:       0.01,
			SignatureFailureRate: 0.01,
			Latencies:            invite.DefaultLatencies(),
		},
		Workload: WorkloadConfig{
			Messages:    100,
			MessageSize: 256,
			SendWindow:  50,
			Invites:     20,
			Interfaces:  2,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and parses a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// envVarRegex matches ${VAR} or $VAR patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars replaces environment variable references with their values.
func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}

		// ${VAR:-default}
		if idx := strings.Index(name, ":-"); idx != -1 {
			varName := name[:idx]
			defaultVal := name[idx+2:]
			if val, ok := os.LookupEnv(varName); ok {
				return val
			}
			return defaultVal
		}

		if val, ok := os.LookupEnv(name); ok {
			return val
		}
		return match
	})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	probability := func(name string, v float64) {
		if !(v >= 0 && v <= 1) {
			errs = append(errs, fmt.Sprintf("%s must be between 0 and 1, got %v", name, v))
		}
	}

	// Simulation
	if c.Simulation.MaxTicks == 0 {
		errs = append(errs, "simulation.max_ticks must be positive")
	}
	probability("simulation.wake_probability", c.Simulation.WakeProbability)
	probability("simulation.sleep_probability", c.Simulation.SleepProbability)
	probability("simulation.initial_online_probability", c.Simulation.InitialOnlineProbability)
	if c.Simulation.MaxSenderRetries < 0 {
		errs = append(errs, "simulation.max_sender_retries must not be negative")
	}
	if c.Simulation.MaxHops < 1 || c.Simulation.MaxHops > 255 {
		errs = append(errs, "simulation.max_hops must be between 1 and 255")
	}

	// Topology
	if err := validateTopology(c.Topology); err != nil {
		errs = append(errs, fmt.Sprintf("topology: %v", err))
	}

	// Constraints
	if c.Constraints.MaxMessageSize < 0 || c.Constraints.BandwidthLimitPerTick < 0 ||
		c.Constraints.MaxPendingMessages < 0 || c.Constraints.MaxPendingBytes < 0 {
		errs = append(errs, "constraints must not be negative")
	}

	// Duty cycle
	if c.DutyCycle.Enabled {
		if err := c.Window().Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("duty_cycle: %v", err))
		}
	}

	// PQ
	probability("pq.kem_failure_rate", c.PQ.KEMFailureRate)
	probability("pq.signature_failure_rate", c.PQ.SignatureFailureRate)
	probability("pq.latency_spike_rate", c.PQ.LatencySpikeRate)

	// Workload
	if c.Workload.Messages < 0 || c.Workload.Invites < 0 {
		errs = append(errs, "workload.messages and workload.invites must not be negative")
	}
	if c.Workload.Messages > 0 && c.Workload.MessageSize < 0 {
		errs = append(errs, "workload.message_size must not be negative")
	}
	if c.Workload.Invites > 0 && c.Workload.Interfaces < 1 {
		errs = append(errs, "workload.interfaces must be positive when invites are generated")
	}

	// Logging
	if !logging.IsValidLevel(c.Logging.Level) {
		errs = append(errs, fmt.Sprintf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level))
	}
	if !logging.IsValidFormat(c.Logging.Format) {
		errs = append(errs, fmt.Sprintf("invalid logging.format: %s (must be text or json)", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

func validateTopology(t TopologyConfig) error {
	if !slices.Contains(Kinds, t.Kind) {
		return fmt.Errorf("invalid kind: %s (must be one of %s)", t.Kind, strings.Join(Kinds, ", "))
	}
	if t.Kind == KindEdges {
		if len(t.Edges) == 0 {
			return fmt.Errorf("edges are required for kind %s", KindEdges)
		}
		if _, err := topology.ParseEdges(t.Edges); err != nil {
			return err
		}
		return nil
	}
	if t.Peers < 1 {
		return fmt.Errorf("peers must be positive")
	}
	if t.Kind == KindRandom && !(t.Density >= 0 && t.Density <= 1) {
		return fmt.Errorf("density must be between 0 and 1, got %v", t.Density)
	}
	return nil
}

// Window returns the duty-cycle window lengths.
func (c *Config) Window() sleep.WindowConfig {
	return sleep.WindowConfig{
		ActiveTicks:   c.DutyCycle.ActiveTicks,
		PreSleepTicks: c.DutyCycle.PreSleepTicks,
		SleepingTicks: c.DutyCycle.SleepingTicks,
		WakingTicks:   c.DutyCycle.WakingTicks,
	}
}

// Schedule returns the peer schedule configuration.
func (c *Config) Schedule() sleep.Config {
	sc := sleep.Config{
		Probabilities: sleep.Probabilities{
			Wake:          c.Simulation.WakeProbability,
			Sleep:         c.Simulation.SleepProbability,
			InitialOnline: c.Simulation.InitialOnlineProbability,
		},
	}
	if c.DutyCycle.Enabled {
		w := c.Window()
		sc.DutyCycle = &w
	}
	return sc
}

// Invite returns the handshake configuration.
func (c *Config) Invite() invite.Config {
	return invite.Config{
		Seed:                 c.Simulation.Seed,
		KEMFailureRate:       c.PQ.KEMFailureRate,
		SignatureFailureRate: c.PQ.SignatureFailureRate,
		LatencySpikeRate:     c.PQ.LatencySpikeRate,
		Latencies:            c.PQ.Latencies,
	}
}

// BuildTopology builds the configured mesh. Random meshes draw from a
// generator seeded with the simulation seed, separate from the engine's.
func BuildTopology(c *Config) (*topology.Mesh, error) {
	t := c.Topology
	switch t.Kind {
	case KindFull:
		return topology.FullMesh(t.Peers)
	case KindRandom:
		return topology.Random(t.Peers, t.Density, rand.New(rand.NewSource(c.Simulation.Seed)))
	case KindLine:
		return topology.Line(t.Peers)
	case KindRing:
		return topology.Ring(t.Peers)
	case KindStar:
		return topology.Star(t.Peers)
	case KindEdges:
		edges, err := topology.ParseEdges(t.Edges)
		if err != nil {
			return nil, err
		}
		return topology.FromEdges(edges)
	default:
		return nil, fmt.Errorf("unknown topology kind: %s", t.Kind)
	}
}

// String returns the config as YAML.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Clone returns a deep copy of the config.
func (c *Config) Clone() *Config {
	cp := *c
	cp.Topology.Edges = slices.Clone(c.Topology.Edges)
	return &cp
}
