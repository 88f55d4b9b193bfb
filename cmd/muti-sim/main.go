// Package main provides the CLI entry point for the Muti mesh simulator.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/postalsys/muti-sim/internal/config"
	"github.com/postalsys/muti-sim/internal/eventlog"
	"github.com/postalsys/muti-sim/internal/routing"
	"github.com/postalsys/muti-sim/internal/sysinfo"
	"github.com/postalsys/muti-sim/internal/tracestore"
	"github.com/postalsys/muti-sim/internal/wizard"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "muti-sim",
		Short: "Muti Sim - Discrete-time P2P mesh simulator",
		Long: `Muti Sim simulates a peer-to-peer mesh in discrete ticks.

Peers go online and offline on a random or duty-cycled schedule while
messages are carried hop by hop with store-and-forward relaying.
Delivery confirmations travel back along the path, and interface
invites run a post-quantum KEM and signature handshake.`,
		Version: sysinfo.ResolvedVersion(),
	}

	// Add subcommands
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(topologyCmd())
	rootCmd.AddCommand(runsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a simulation configuration",
		Long:  "Run the interactive wizard to pick a stress level or tune a simulation, then write it as YAML.",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := wizard.New().Run()
			if err != nil {
				return err
			}
			fmt.Printf("\nRun it with: muti-sim run -c %s\n", result.ConfigPath)
			return nil
		},
	}
}

// loadConfig reads configPath, or the preset named by level when set.
func loadConfig(configPath, level string) (*config.Config, error) {
	if level != "" {
		cfg, err := config.Preset(level)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func topologyCmd() *cobra.Command {
	var (
		configPath string
		level      string
		showRoutes bool
	)

	cmd := &cobra.Command{
		Use:   "topology",
		Short: "Show the simulated mesh",
		Long:  "Build the configured mesh and print its adjacency and, optionally, every shortest route.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, level)
			if err != nil {
				return err
			}
			mesh, err := config.BuildTopology(cfg)
			if err != nil {
				return fmt.Errorf("failed to build topology: %w", err)
			}

			fmt.Printf("Peers: %d, edges: %d\n\n", mesh.PeerCount(), mesh.EdgeCount())
			fmt.Print(mesh.Visualize())

			if !showRoutes {
				return nil
			}
			table := routing.NewTable(mesh)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\nFROM\tTO\tHOPS\tPATH")
			peers := mesh.Peers()
			for _, src := range peers {
				for _, dst := range peers {
					if src == dst {
						continue
					}
					route, err := table.Lookup(src, dst)
					if err != nil {
						fmt.Fprintf(w, "%s\t%s\t-\tunreachable\n", src, dst)
						continue
					}
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", src, dst, route.Hops(), route)
				}
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "./simulation.yaml", "Path to configuration file")
	cmd.Flags().StringVar(&level, "level", "", "Use a preset instead of a config file (quick, medium, full, manual)")
	cmd.Flags().BoolVar(&showRoutes, "routes", false, "Print the shortest route between every pair of peers")

	return cmd
}

func runsCmd() *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List stored runs",
		Long:  "List the runs recorded in a trace database, or show the event counts of one run.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := tracestore.Open(dbPath)
			if err != nil {
				return fmt.Errorf("failed to open trace database: %w", err)
			}
			defer store.Close()

			ctx := context.Background()
			if len(args) == 1 {
				return showRun(ctx, store, args[0])
			}

			runs, err := store.ListRuns(ctx)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tSEED\tPEERS\tTICKS\tSENT\tDELIVERED")
			for i, run := range runs {
				if limit > 0 && i >= limit {
					break
				}
				var sent, delivered uint64
				if run.Stats != nil {
					sent, delivered = run.Stats.MessagesSent, run.Stats.MessagesDelivered
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
					run.ID, humanize.Time(run.CreatedAt), run.Seed, run.Peers,
					humanize.Comma(int64(run.Ticks)), humanize.Comma(int64(sent)), humanize.Comma(int64(delivered)))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "./traces.db", "Path to the trace database")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show at most this many runs (0 for all)")

	return cmd
}

func showRun(ctx context.Context, store *tracestore.Store, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	counts, err := store.CountByType(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (seed %d, %d peers, %d edges, %s ticks)\n",
		run.ID, run.Seed, run.Peers, run.Edges, humanize.Comma(int64(run.Ticks)))
	fmt.Printf("Created %s by %s\n\n", humanize.Time(run.CreatedAt), run.Host)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tCOUNT")
	for _, t := range eventlog.Types() {
		if n := counts[t]; n > 0 {
			fmt.Fprintf(w, "%s\t%s\n", t, humanize.Comma(int64(n)))
		}
	}
	return w.Flush()
}
