package config

import "fmt"

// Preset levels.
const (
	LevelQuick  = "quick"
	LevelMedium = "medium"
	LevelFull   = "full"
	LevelManual = "manual"
)

// Levels lists the accepted preset levels.
var Levels = []string{LevelQuick, LevelMedium, LevelFull, LevelManual}

// Preset returns the configuration for a stress level:
//
//	quick   smoke test, about 10 peers and 100 messages
//	medium  balanced run, about 20 peers and 1k messages
//	full    maximum stress, 26 peers and 10k messages
//	manual  defaults with no generated workload
func Preset(level string) (*Config, error) {
	cfg := Default()
	switch level {
	case LevelQuick:
		cfg.Topology.Peers = 10
		cfg.Simulation.MaxTicks = 100
		cfg.Workload.Messages = 100
		cfg.Workload.SendWindow = 50
		cfg.Workload.Invites = 20
	case LevelMedium:
		cfg.Topology.Peers = 20
		cfg.Topology.Density = 0.3
		cfg.Simulation.MaxTicks = 500
		cfg.Simulation.MessageTimeout = 100
		cfg.Simulation.BackpropTimeout = 200
		cfg.Workload.Messages = 1000
		cfg.Workload.SendWindow = 300
		cfg.Workload.Invites = 200
		cfg.Workload.Interfaces = 4
	case LevelFull:
		cfg.Topology.Peers = 26
		cfg.Topology.Density = 0.25
		cfg.Simulation.MaxTicks = 2000
		cfg.Simulation.MessageTimeout = 200
		cfg.Simulation.BackpropTimeout = 400
		cfg.Constraints = ConstraintsConfig{
			MaxMessageSize:        4096,
			BandwidthLimitPerTick: 16384,
			MaxPendingMessages:    256,
			MaxPendingBytes:       262144,
		}
		cfg.Workload.Messages = 10000
		cfg.Workload.SendWindow = 1500
		cfg.Workload.Invites = 1000
		cfg.Workload.Interfaces = 8
	case LevelManual:
		cfg.Workload = WorkloadConfig{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	return cfg, nil
}
