package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
	"github.com/gilchrisn/influence-seeding/pkg/output"
	"github.com/gilchrisn/influence-seeding/pkg/partition"
	"github.com/gilchrisn/influence-seeding/pkg/pipeline"
)

var partitionCmd = &cobra.Command{
	Use:   "partition <edgelist>",
	Short: "Compute SCCs, condensation levels and component ids only",
	Args:  cobra.ExactArgs(1),
	RunE:  runPartition,
}

func init() {
	partitionCmd.Flags().Int("threads", runtime.NumCPU(), "threads for the parallel stages")
	partitionCmd.Flags().Bool("strict", true, "verify partition invariants")
	partitionCmd.Flags().String("output", "", "directory for the .levels file")
	partitionCmd.Flags().String("format", "text", "report format (text, json, yaml)")

	rootCmd.AddCommand(partitionCmd)
}

func runPartition(cmd *cobra.Command, args []string) error {
	graphPath := args[0]

	formatName, _ := cmd.Flags().GetString("format")
	format, err := output.ParseFormat(formatName)
	if err != nil {
		return err
	}

	ctx, cancel := setupSignalContext()
	defer cancel()

	g, err := graph.LoadEdgeListFile(ctx, graphPath, cfg.Threads())
	if err != nil {
		return err
	}
	part, err := partition.Compute(ctx, g, partition.Options{Threads: cfg.Threads()}, logger)
	if err != nil {
		return err
	}
	if cfg.Strict() {
		if err := part.Verify(g); err != nil {
			return err
		}
	}

	if dir, _ := cmd.Flags().GetString("output"); dir != "" {
		prefix := strings.TrimSuffix(filepath.Base(graphPath), filepath.Ext(graphPath))
		if err := output.WriteFiles(&pipeline.Result{Partition: part}, dir, prefix); err != nil {
			return err
		}
	}
	return output.Write(os.Stdout, output.NewPartitionReport(part), format)
}
