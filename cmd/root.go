package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/influence-seeding/pkg/config"
)

var (
	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "seedsel",
	Short: "Influence seed selection on interaction graphs",
	Long: "seedsel partitions an interaction graph into strongly connected components, " +
		"propagates influence level by level across a worker cluster and selects the k seed users " +
		"with the widest, closest reach.",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
}

// initConfig layers defaults, the config file, SEEDSEL_* environment
// variables and explicitly set flags, then builds the logger.
func initConfig(cmd *cobra.Command, args []string) error {
	cfg = config.NewConfig()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFromFile(path); err != nil {
			return fmt.Errorf("failed to load config %s: %w", path, err)
		}
	}
	if err := cfg.BindFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	logger = cfg.CreateLogger()
	log.Logger = logger
	return nil
}

// addAlgorithmFlags registers the propagation and selection flags with the
// configuration defaults.
func addAlgorithmFlags(cmd *cobra.Command) {
	d := config.NewConfig()
	f := cmd.Flags()
	f.Float64("damping", d.Damping(), "damping factor in (0, 1)")
	f.Float64("tolerance", d.Tolerance(), "L1 convergence tolerance")
	f.Int("max-iterations", d.MaxIterations(), "iteration cap per level")
	f.Float64("epsilon", d.Epsilon(), "floor for zero-degree denominators")
	f.String("mode", d.Mode(), "propagation mode (leveled or flat)")
	f.Int("k", d.K(), "number of seeds")
	f.Int("workers", d.Workers(), "number of cluster workers")
	f.Int("threads", d.Threads(), "threads per worker")
	f.Bool("strict", d.Strict(), "verify partition invariants before propagation")
}
