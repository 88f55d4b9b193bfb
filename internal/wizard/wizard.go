// Package wizard provides an interactive setup wizard for simulation configs.
package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/postalsys/muti-sim/internal/config"
)

// Result contains the wizard output.
type Result struct {
	Config     *config.Config
	ConfigPath string
	Level      string
}

// Answers holds the raw form values. Numeric fields stay strings until
// buildConfig so the forms can bind to them directly.
type Answers struct {
	ConfigPath string
	Level      string

	// Manual level only.
	Kind     string
	Peers    string
	Density  string
	Edges    string
	Seed     string
	MaxTicks string
	Wake     string
	Sleep    string
	Initial  string
	Timeout  string

	DutyCycle bool

	Constrained     bool
	MaxMessageSize  string
	BandwidthLimit  string
	MaxPendingCount string
	MaxPendingBytes string

	KEMFailureRate       string
	SignatureFailureRate string

	Messages string
	Invites  string

	LogLevel    string
	TraceDB     string
	MetricsFile string
	EventsFile  string
}

// DefaultAnswers returns the values the forms start from.
func DefaultAnswers() Answers {
	d := config.Default()
	return Answers{
		ConfigPath:           "./simulation.yaml",
		Level:                config.LevelQuick,
		Kind:                 d.Topology.Kind,
		Peers:                strconv.Itoa(d.Topology.Peers),
		Density:              formatFloat(d.Topology.Density),
		Seed:                 strconv.FormatInt(d.Simulation.Seed, 10),
		MaxTicks:             strconv.FormatUint(d.Simulation.MaxTicks, 10),
		Wake:                 formatFloat(d.Simulation.WakeProbability),
		Sleep:                formatFloat(d.Simulation.SleepProbability),
		Initial:              formatFloat(d.Simulation.InitialOnlineProbability),
		Timeout:              strconv.FormatUint(d.Simulation.MessageTimeout, 10),
		MaxMessageSize:       "4KB",
		BandwidthLimit:       "16KB",
		MaxPendingCount:      "256",
		MaxPendingBytes:      "256KB",
		KEMFailureRate:       formatFloat(d.PQ.KEMFailureRate),
		SignatureFailureRate: formatFloat(d.PQ.SignatureFailureRate),
		Messages:             strconv.Itoa(d.Workload.Messages),
		Invites:              strconv.Itoa(d.Workload.Invites),
		LogLevel:             d.Logging.Level,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Wizard manages the interactive setup process.
type Wizard struct {
	theme *huh.Theme
}

// New creates a new setup wizard.
func New() *Wizard {
	return &Wizard{
		theme: huh.ThemeDracula(),
	}
}

// Run executes the interactive setup wizard.
func (w *Wizard) Run() (*Result, error) {
	w.printBanner()
	a := DefaultAnswers()

	// Step 1: Basic setup
	if err := w.askBasicSetup(&a); err != nil {
		return nil, err
	}

	// Step 2-5: Manual tuning
	if a.Level == config.LevelManual {
		if err := w.askTopology(&a); err != nil {
			return nil, err
		}
		if err := w.askSimulation(&a); err != nil {
			return nil, err
		}
		if err := w.askConstraints(&a); err != nil {
			return nil, err
		}
		if err := w.askWorkload(&a); err != nil {
			return nil, err
		}
	}

	// Step 6: Outputs
	if err := w.askOutputs(&a); err != nil {
		return nil, err
	}

	cfg, err := buildConfig(a)
	if err != nil {
		return nil, err
	}
	if err := writeConfig(cfg, a.ConfigPath); err != nil {
		return nil, err
	}
	w.printSummary(a, cfg)

	return &Result{Config: cfg, ConfigPath: a.ConfigPath, Level: a.Level}, nil
}

func (w *Wizard) printBanner() {
	banner := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("212")).
		Render(`
  __  __       _   _   ____  _
 |  \/  |_   _| |_(_) / ___|(_)_ __ ___
 | |\/| | | | | __| | \___ \| | '_ ` + "`" + ` _ \
 | |  | | |_| | |_| |  ___) | | | | | | |
 |_|  |_|\__,_|\__|_| |____/|_|_| |_| |_|
`)

	subtitle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("  Delay-Tolerant Mesh Simulator - Setup Wizard\n")

	fmt.Println(banner)
	fmt.Println(subtitle)
}

func (w *Wizard) askBasicSetup(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Basic Setup").
				Description("Choose where to write the configuration and how hard to push the mesh."),

			huh.NewInput().
				Title("Config File Path").
				Description("Where to write the configuration file").
				Placeholder("./simulation.yaml").
				Value(&a.ConfigPath).
				Validate(validateConfigPath),

			huh.NewSelect[string]().
				Title("Stress Level").
				Options(
					huh.NewOption("Quick (10 peers, 100 messages)", config.LevelQuick),
					huh.NewOption("Medium (20 peers, 1k messages)", config.LevelMedium),
					huh.NewOption("Full (26 peers, 10k messages, resource caps)", config.LevelFull),
					huh.NewOption("Manual (tune every setting)", config.LevelManual),
				).
				Value(&a.Level),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askTopology(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Topology").
				Description("Shape of the mesh. Peers are named A, B, C and so on."),

			huh.NewSelect[string]().
				Title("Kind").
				Options(
					huh.NewOption("Random (each pair linked with a probability)", config.KindRandom),
					huh.NewOption("Full mesh", config.KindFull),
					huh.NewOption("Line", config.KindLine),
					huh.NewOption("Ring", config.KindRing),
					huh.NewOption("Star", config.KindStar),
					huh.NewOption("Explicit edge list", config.KindEdges),
				).
				Value(&a.Kind),
		),
	).WithTheme(w.theme)
	if err := form.Run(); err != nil {
		return err
	}

	var fields []huh.Field
	if a.Kind == config.KindEdges {
		fields = append(fields, huh.NewInput().
			Title("Edges").
			Description("Comma-separated pairs, e.g. A-B,B-C,C-D").
			Value(&a.Edges).
			Validate(validateEdges))
	} else {
		fields = append(fields, huh.NewInput().
			Title("Peers").
			Value(&a.Peers).
			Validate(validatePositiveInt))
	}
	if a.Kind == config.KindRandom {
		fields = append(fields, huh.NewInput().
			Title("Density").
			Description("Probability that any two peers are linked").
			Value(&a.Density).
			Validate(validateProbability))
	}

	return huh.NewForm(huh.NewGroup(fields...)).WithTheme(w.theme).Run()
}

func (w *Wizard) askSimulation(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Simulation").
				Description("Clock, seed and peer churn."),

			huh.NewInput().
				Title("Seed").
				Description("Same seed, same run").
				Value(&a.Seed).
				Validate(validateInt),

			huh.NewInput().
				Title("Max Ticks").
				Value(&a.MaxTicks).
				Validate(validatePositiveInt),

			huh.NewInput().
				Title("Message Timeout").
				Description("Ticks before an undelivered message is dropped (0 = never)").
				Value(&a.Timeout).
				Validate(validateNonNegativeInt),

			huh.NewConfirm().
				Title("Use duty cycling?").
				Description("Peers cycle Active, PreSleep, Sleeping, Waking instead of random churn").
				Value(&a.DutyCycle),
		),
	).WithTheme(w.theme)
	if err := form.Run(); err != nil {
		return err
	}
	if a.DutyCycle {
		return nil
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Wake Probability").
				Description("Per-tick chance an offline peer comes online").
				Value(&a.Wake).
				Validate(validateProbability),

			huh.NewInput().
				Title("Sleep Probability").
				Description("Per-tick chance an online peer goes offline").
				Value(&a.Sleep).
				Validate(validateProbability),

			huh.NewInput().
				Title("Initial Online Probability").
				Value(&a.Initial).
				Validate(validateProbability),
		),
	).WithTheme(w.theme).Run()
}

func (w *Wizard) askConstraints(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable resource caps?").
				Description("Message size, per-tick bandwidth and pending buffers").
				Value(&a.Constrained),
		),
	).WithTheme(w.theme)
	if err := form.Run(); err != nil {
		return err
	}
	if !a.Constrained {
		return nil
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Max Message Size").
				Description("e.g. 4KB, 64KiB").
				Value(&a.MaxMessageSize).
				Validate(validateSize),

			huh.NewInput().
				Title("Bandwidth Per Tick").
				Value(&a.BandwidthLimit).
				Validate(validateSize),

			huh.NewInput().
				Title("Max Pending Messages").
				Value(&a.MaxPendingCount).
				Validate(validateNonNegativeInt),

			huh.NewInput().
				Title("Max Pending Bytes").
				Value(&a.MaxPendingBytes).
				Validate(validateSize),
		),
	).WithTheme(w.theme).Run()
}

func (w *Wizard) askWorkload(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Workload").
				Description("Traffic generated by `muti-sim run`."),

			huh.NewInput().
				Title("Messages").
				Value(&a.Messages).
				Validate(validateNonNegativeInt),

			huh.NewInput().
				Title("Invites").
				Value(&a.Invites).
				Validate(validateNonNegativeInt),

			huh.NewInput().
				Title("KEM Failure Rate").
				Value(&a.KEMFailureRate).
				Validate(validateProbability),

			huh.NewInput().
				Title("Signature Failure Rate").
				Value(&a.SignatureFailureRate).
				Validate(validateProbability),
		),
	).WithTheme(w.theme)

	return form.Run()
}

func (w *Wizard) askOutputs(a *Answers) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Outputs").
				Description("Leave a path empty to skip that artifact."),

			huh.NewSelect[string]().
				Title("Log Level").
				Options(
					huh.NewOption("Debug (verbose)", "debug"),
					huh.NewOption("Info (recommended)", "info"),
					huh.NewOption("Warning", "warn"),
					huh.NewOption("Error (quiet)", "error"),
				).
				Value(&a.LogLevel),

			huh.NewInput().
				Title("Trace Database").
				Description("SQLite file receiving every run and event").
				Placeholder("./traces.db").
				Value(&a.TraceDB),

			huh.NewInput().
				Title("Metrics File").
				Description("Prometheus text file written at the end of a run").
				Placeholder("./metrics.prom").
				Value(&a.MetricsFile),

			huh.NewInput().
				Title("Events File").
				Description("JSON event log written at the end of a run").
				Placeholder("./events.json").
				Value(&a.EventsFile),
		),
	).WithTheme(w.theme)

	return form.Run()
}

// buildConfig turns answers into a validated configuration.
func buildConfig(a Answers) (*config.Config, error) {
	cfg, err := config.Preset(a.Level)
	if err != nil {
		return nil, err
	}

	if a.Level == config.LevelManual {
		if err := applyManual(cfg, a); err != nil {
			return nil, err
		}
	}

	cfg.Logging.Level = a.LogLevel
	cfg.Logging.Format = "text"
	cfg.Output = config.OutputConfig{
		TraceDB:     strings.TrimSpace(a.TraceDB),
		MetricsFile: strings.TrimSpace(a.MetricsFile),
		EventsFile:  strings.TrimSpace(a.EventsFile),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyManual(cfg *config.Config, a Answers) error {
	var p parser

	cfg.Topology.Kind = a.Kind
	if a.Kind == config.KindEdges {
		cfg.Topology.Edges = splitEdges(a.Edges)
	} else {
		cfg.Topology.Peers = p.asInt("peers", a.Peers)
	}
	if a.Kind == config.KindRandom {
		cfg.Topology.Density = p.asFloat("density", a.Density)
	}

	cfg.Simulation.Seed = p.asInt64("seed", a.Seed)
	cfg.Simulation.MaxTicks = p.asUint64("max ticks", a.MaxTicks)
	cfg.Simulation.MessageTimeout = p.asUint64("message timeout", a.Timeout)
	cfg.DutyCycle.Enabled = a.DutyCycle
	if !a.DutyCycle {
		cfg.Simulation.WakeProbability = p.asFloat("wake probability", a.Wake)
		cfg.Simulation.SleepProbability = p.asFloat("sleep probability", a.Sleep)
		cfg.Simulation.InitialOnlineProbability = p.asFloat("initial online probability", a.Initial)
	}

	if a.Constrained {
		cfg.Constraints = config.ConstraintsConfig{
			MaxMessageSize:        p.asSize("max message size", a.MaxMessageSize),
			BandwidthLimitPerTick: p.asSize("bandwidth limit", a.BandwidthLimit),
			MaxPendingMessages:    p.asInt("max pending messages", a.MaxPendingCount),
			MaxPendingBytes:       p.asSize("max pending bytes", a.MaxPendingBytes),
		}
	}

	cfg.Workload.Messages = p.asInt("messages", a.Messages)
	cfg.Workload.Invites = p.asInt("invites", a.Invites)
	if cfg.Workload.Messages > 0 {
		cfg.Workload.MessageSize = 256
		cfg.Workload.SendWindow = cfg.Simulation.MaxTicks / 2
	}
	if cfg.Workload.Invites > 0 {
		cfg.Workload.Interfaces = 2
	}
	cfg.PQ.KEMFailureRate = p.asFloat("kem failure rate", a.KEMFailureRate)
	cfg.PQ.SignatureFailureRate = p.asFloat("signature failure rate", a.SignatureFailureRate)

	return p.err
}

// parser converts form strings and keeps the first error.
type parser struct {
	err error
}

func (p *parser) fail(field string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid %s: %w", field, err)
	}
}

func (p *parser) asInt(field, s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *parser) asInt64(field, s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *parser) asUint64(field, s string) uint64 {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *parser) asFloat(field, s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func (p *parser) asSize(field, s string) config.ByteSize {
	v, err := config.ParseSize(s)
	if err != nil {
		p.fail(field, err)
	}
	return v
}

func splitEdges(s string) []string {
	var edges []string
	for _, e := range strings.Split(s, ",") {
		if e = strings.TrimSpace(e); e != "" {
			edges = append(edges, strings.ToUpper(e))
		}
	}
	return edges
}

func validateConfigPath(s string) error {
	if s == "" {
		return fmt.Errorf("config path is required")
	}
	if !strings.HasSuffix(s, ".yaml") && !strings.HasSuffix(s, ".yml") {
		return fmt.Errorf("config file should have .yaml or .yml extension")
	}
	return nil
}

func validateInt(s string) error {
	if _, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err != nil {
		return fmt.Errorf("must be a whole number")
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	if _, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64); err != nil {
		return fmt.Errorf("must be zero or a positive whole number")
	}
	return nil
}

func validatePositiveInt(s string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
	if err != nil || v == 0 {
		return fmt.Errorf("must be a positive whole number")
	}
	return nil
}

func validateProbability(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || v > 1 {
		return fmt.Errorf("must be a number between 0 and 1")
	}
	return nil
}

func validateSize(s string) error {
	_, err := config.ParseSize(s)
	return err
}

func validateEdges(s string) error {
	edges := splitEdges(s)
	if len(edges) == 0 {
		return fmt.Errorf("at least one edge is required")
	}
	cfg := config.Default()
	cfg.Topology = config.TopologyConfig{Kind: config.KindEdges, Edges: edges}
	if _, err := config.BuildTopology(cfg); err != nil {
		return err
	}
	return nil
}

func writeConfig(cfg *config.Config, path string) error {
	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# Muti Sim Configuration
# Generated by setup wizard
# Run with: muti-sim run -c <this file>

`
	if err := os.WriteFile(path, []byte(header+string(data)), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

func (w *Wizard) printSummary(a Answers, cfg *config.Config) {
	style := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("42"))

	divider := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("─────────────────────────────────────────────────")

	fmt.Println()
	fmt.Println(divider)
	fmt.Println(style.Render("✓ Setup Complete!"))
	fmt.Println(divider)
	fmt.Println()

	fmt.Printf("  Config file:  %s\n", a.ConfigPath)
	fmt.Printf("  Level:        %s\n", a.Level)
	if cfg.Topology.Kind == config.KindEdges {
		fmt.Printf("  Topology:     %s (%d edges)\n", cfg.Topology.Kind, len(cfg.Topology.Edges))
	} else {
		fmt.Printf("  Topology:     %s, %d peers\n", cfg.Topology.Kind, cfg.Topology.Peers)
	}
	fmt.Printf("  Ticks:        %d (seed %d)\n", cfg.Simulation.MaxTicks, cfg.Simulation.Seed)
	fmt.Printf("  Workload:     %d messages, %d invites\n", cfg.Workload.Messages, cfg.Workload.Invites)
	if cfg.DutyCycle.Enabled {
		fmt.Printf("  Duty cycle:   %.1f%%\n", cfg.Window().DutyPercentage())
	}
	if cfg.Output.TraceDB != "" {
		fmt.Printf("  Trace DB:     %s\n", cfg.Output.TraceDB)
	}

	fmt.Println()
	fmt.Println("  To start the simulation:")
	fmt.Printf("    muti-sim run -c %s\n", a.ConfigPath)
	fmt.Println()
}
