// Package chaos provides seeded fault injection for simulated handshakes.
package chaos

import (
	"math/rand"
	"sync"
)

// FaultType represents the type of fault to inject.
type FaultType int

const (
	// FaultKEMDecapsulation corrupts a KEM ciphertext in transit.
	FaultKEMDecapsulation FaultType = iota
	// FaultSignature corrupts a signature before verification.
	FaultSignature
	// FaultLatencySpike multiplies an operation's simulated latency.
	FaultLatencySpike
)

// String returns the fault name used in logs and metrics.
func (t FaultType) String() string {
	switch t {
	case FaultKEMDecapsulation:
		return "kem_decapsulation"
	case FaultSignature:
		return "signature"
	case FaultLatencySpike:
		return "latency_spike"
	default:
		return "unknown"
	}
}

// FaultConfig configures fault injection behavior.
type FaultConfig struct {
	// Type is the type of fault to inject.
	Type FaultType

	// Probability is the chance of fault injection (0.0 to 1.0).
	Probability float64
}

// FaultInjector decides when to inject faults. All draws come from the rng
// it was built with, so a seeded rng gives a reproducible fault sequence.
type FaultInjector struct {
	configs   map[FaultType]float64
	enabled   bool
	mu        sync.Mutex
	rng       *rand.Rand
	faultHits map[FaultType]int64
	trials    map[FaultType]int64
}

// NewFaultInjector creates a fault injector drawing from rng.
func NewFaultInjector(rng *rand.Rand, configs ...FaultConfig) *FaultInjector {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	f := &FaultInjector{
		configs:   make(map[FaultType]float64, len(configs)),
		enabled:   true,
		rng:       rng,
		faultHits: make(map[FaultType]int64),
		trials:    make(map[FaultType]int64),
	}
	for _, c := range configs {
		f.configs[c.Type] = c.Probability
	}
	return f
}

// Enable enables fault injection.
func (f *FaultInjector) Enable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = true
}

// Disable disables fault injection. A disabled injector takes no draws.
func (f *FaultInjector) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled = false
}

// IsEnabled returns whether fault injection is enabled.
func (f *FaultInjector) IsEnabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

// Probability returns the configured probability for a fault type.
func (f *FaultInjector) Probability(t FaultType) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.configs[t]
}

// Maybe reports whether a fault of type t should be injected. When enabled
// it takes exactly one draw per call, even for unconfigured types.
func (f *FaultInjector) Maybe(t FaultType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.enabled {
		return false
	}
	f.trials[t]++
	if f.rng.Float64() < f.configs[t] {
		f.faultHits[t]++
		return true
	}
	return false
}

// MaybeCorrupt flips one bit of data in place if a fault of type t is
// injected. It reports whether data was modified.
func (f *FaultInjector) MaybeCorrupt(t FaultType, data []byte) bool {
	if len(data) == 0 || !f.Maybe(t) {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.rng.Intn(len(data))
	data[i] ^= 1 << uint(f.rng.Intn(8))
	return true
}

// GetStats returns the number of injected faults per type.
func (f *FaultInjector) GetStats() map[FaultType]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := make(map[FaultType]int64, len(f.faultHits))
	for k, v := range f.faultHits {
		stats[k] = v
	}
	return stats
}

// Rate returns the observed injection rate for a fault type.
func (f *FaultInjector) Rate(t FaultType) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trials[t] == 0 {
		return 0
	}
	return float64(f.faultHits[t]) / float64(f.trials[t])
}

// Reset resets the fault injection statistics.
func (f *FaultInjector) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faultHits = make(map[FaultType]int64)
	f.trials = make(map[FaultType]int64)
}
