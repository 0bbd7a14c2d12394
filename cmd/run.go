package cmd

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/influence-seeding/pkg/output"
	"github.com/gilchrisn/influence-seeding/pkg/pipeline"
	"github.com/gilchrisn/influence-seeding/pkg/store"
)

var runCmd = &cobra.Command{
	Use:   "run <edgelist> <interests>",
	Short: "Run partitioning, propagation and seed selection",
	Args:  cobra.ExactArgs(2),
	RunE:  runRun,
}

func init() {
	addAlgorithmFlags(runCmd)
	runCmd.Flags().String("output", "", "directory for .levels, .influence and .seeds files")
	runCmd.Flags().String("prefix", "", "file name prefix for --output (default: edge list base name)")
	runCmd.Flags().String("format", "text", "report format (text, json, yaml)")
	runCmd.Flags().Int("top", 10, "rows in the top influence table")
	runCmd.Flags().String("store", "", "badger directory to archive the run in")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	graphPath, interestPath := args[0], args[1]

	formatName, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return err
	}
	opts, err := pipeline.FromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := setupSignalContext()
	defer cancel()

	res, err := pipeline.RunFiles(ctx, graphPath, interestPath, opts, logger)
	if err != nil {
		return err
	}

	if dir, _ := cmd.Flags().GetString("output"); dir != "" {
		prefix, _ := cmd.Flags().GetString("prefix")
		if prefix == "" {
			prefix = strings.TrimSuffix(filepath.Base(graphPath), filepath.Ext(graphPath))
		}
		if err := output.WriteFiles(res, dir, prefix); err != nil {
			return err
		}
		logger.Info().Str("dir", dir).Str("prefix", prefix).Msg("Result files written")
	}

	if path := cfg.StorePath(); path != "" {
		if err := archive(path, res.Record(graphPath, interestPath)); err != nil {
			return err
		}
	}

	top, _ := cmd.Flags().GetInt("top")
	return output.Write(os.Stdout, output.NewReport(res, top), format)
}

func archive(path string, rec *store.Record) error {
	s, err := store.Open(path, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Save(rec); err != nil {
		return err
	}
	logger.Info().Str("run_id", rec.RunID).Str("store", path).Msg("Run archived")
	return nil
}

// setupSignalContext returns a context cancelled on SIGINT or SIGTERM.
func setupSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
