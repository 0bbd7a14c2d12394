// Package output renders pipeline results as reports (text, JSON or YAML)
// and as per-node result files.
package output

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/influence-seeding/pkg/influence"
	"github.com/gilchrisn/influence-seeding/pkg/partition"
	"github.com/gilchrisn/influence-seeding/pkg/pipeline"
	"github.com/gilchrisn/influence-seeding/pkg/seeds"
)

// Format is a report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatJSON, FormatYAML:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Report is the presentation form of a run.
type Report struct {
	RunID       string           `json:"run_id" yaml:"run_id"`
	CreatedAt   time.Time        `json:"created_at" yaml:"created_at"`
	Params      map[string]any   `json:"params" yaml:"params"`
	Graph       GraphSummary     `json:"graph" yaml:"graph"`
	Partition   PartitionSummary `json:"partition" yaml:"partition"`
	Propagation influence.Stats  `json:"propagation" yaml:"propagation"`
	Seeds       []seeds.Seed     `json:"seeds" yaml:"seeds"`
	Top         []NodeScore      `json:"top_influence" yaml:"top_influence"`
	RuntimeMS   int64            `json:"runtime_ms" yaml:"runtime_ms"`
}

type GraphSummary struct {
	Nodes int `json:"nodes" yaml:"nodes"`
	Edges int `json:"edges" yaml:"edges"`
}

type PartitionSummary struct {
	Components int `json:"components" yaml:"components"`
	SCCs       int `json:"sccs" yaml:"sccs"`
	Singletons int `json:"singletons" yaml:"singletons"`
	LargestSCC int `json:"largest_scc" yaml:"largest_scc"`
	Levels     int `json:"levels" yaml:"levels"`
	DAGEdges   int `json:"dag_edges" yaml:"dag_edges"`
}

// NodeScore pairs a node with its influence.
type NodeScore struct {
	Node      int     `json:"node" yaml:"node"`
	Influence float64 `json:"influence" yaml:"influence"`
}

// NewReport summarizes res, listing the topN most influential nodes.
func NewReport(res *pipeline.Result, topN int) *Report {
	r := &Report{
		RunID:       res.RunID,
		CreatedAt:   res.CreatedAt,
		Params:      res.Options.Params(),
		Graph:       GraphSummary{Nodes: res.Nodes, Edges: res.Edges},
		Propagation: res.Stats.Propagation,
		Seeds:       res.Seeds,
		Top:         TopInfluence(res.Influence, topN),
		RuntimeMS:   res.Stats.RuntimeMS,
	}
	if res.Partition != nil {
		r.Partition = summarize(res.Partition)
	}
	return r
}

// NewPartitionReport summarizes a partition computed on its own.
func NewPartitionReport(part *partition.Result) *Report {
	return &Report{
		Graph:     GraphSummary{Nodes: part.Statistics.Nodes, Edges: part.Statistics.Edges},
		Partition: summarize(part),
		RuntimeMS: part.Statistics.RuntimeMS,
	}
}

func summarize(p *partition.Result) PartitionSummary {
	return PartitionSummary{
		Components: p.NumComponents,
		SCCs:       p.Statistics.NumSCC,
		Singletons: p.Statistics.NumSingletons,
		LargestSCC: p.Statistics.LargestSCC,
		Levels:     p.NumLevels(),
		DAGEdges:   p.Statistics.DAGEdges,
	}
}

// TopInfluence returns the n highest scores, ties broken by node id.
func TopInfluence(ip []float64, n int) []NodeScore {
	all := make([]NodeScore, len(ip))
	for u, v := range ip {
		all[u] = NodeScore{Node: u, Influence: v}
	}
	slices.SortStableFunc(all, func(a, b NodeScore) int {
		return cmp.Compare(b.Influence, a.Influence)
	})
	if n < len(all) {
		all = all[:max(n, 0)]
	}
	return all
}

// Write encodes r to w.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText:
		return writeText(w, r)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

func writeText(w io.Writer, r *Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if r.RunID != "" {
		fmt.Fprintf(tw, "Run\t%s\n", r.RunID)
	}
	fmt.Fprintf(tw, "Graph\t%d nodes, %d edges\n", r.Graph.Nodes, r.Graph.Edges)
	fmt.Fprintf(tw, "Partition\t%d components (%d SCC, %d singleton), %d levels, %d DAG edges\n",
		r.Partition.Components, r.Partition.SCCs, r.Partition.Singletons, r.Partition.Levels, r.Partition.DAGEdges)
	if r.Propagation.Mode == "" {
		fmt.Fprintf(tw, "Runtime\t%d ms\n", r.RuntimeMS)
		return tw.Flush()
	}
	fmt.Fprintf(tw, "Propagation\t%s, %d iterations, converged=%v\n",
		r.Propagation.Mode, r.Propagation.Iterations, r.Propagation.Converged)
	fmt.Fprintf(tw, "Runtime\t%d ms\n", r.RuntimeMS)

	fmt.Fprintf(tw, "\nSeeds\n")
	fmt.Fprintf(tw, "rank\tnode\tavg_distance\treach\tinfluence\tcandidate\n")
	for i, s := range r.Seeds {
		// Node ids are printed 1-indexed, as in the input files.
		fmt.Fprintf(tw, "%d\t%d\t%.4f\t%d\t%.6g\t%v\n", i+1, s.Node+1, s.AvgDistance, s.Reach, s.Influence, s.Candidate)
	}

	if len(r.Top) > 0 {
		fmt.Fprintf(tw, "\nTop influence\n")
		fmt.Fprintf(tw, "node\tinfluence\n")
		for _, ns := range r.Top {
			fmt.Fprintf(tw, "%d\t%.6g\n", ns.Node+1, ns.Influence)
		}
	}
	return tw.Flush()
}

// WriteFiles writes the per-node results of res into dir:
// <prefix>.levels ("node scc cac_id level"), <prefix>.influence
// ("node score") and <prefix>.seeds ("node avg_distance"). Node ids are
// 1-indexed; unset labels are written as -1. Files for stages that did not
// run are skipped.
func WriteFiles(res *pipeline.Result, dir, prefix string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if p := res.Partition; p != nil {
		err := writeLines(filepath.Join(dir, prefix+".levels"), len(p.Level), func(w *bufio.Writer, u int) {
			fmt.Fprintf(w, "%d %d %d %d\n", u+1, p.SCC[u], p.CACID[u], p.Level[u])
		})
		if err != nil {
			return fmt.Errorf("failed to write levels: %w", err)
		}
	}

	if res.Influence == nil {
		return nil
	}
	err := writeLines(filepath.Join(dir, prefix+".influence"), len(res.Influence), func(w *bufio.Writer, u int) {
		fmt.Fprintf(w, "%d %.12g\n", u+1, res.Influence[u])
	})
	if err != nil {
		return fmt.Errorf("failed to write influence: %w", err)
	}

	err = writeLines(filepath.Join(dir, prefix+".seeds"), len(res.Seeds), func(w *bufio.Writer, i int) {
		fmt.Fprintf(w, "%d %.6f\n", res.Seeds[i].Node+1, res.Seeds[i].AvgDistance)
	})
	if err != nil {
		return fmt.Errorf("failed to write seeds: %w", err)
	}
	return nil
}

func writeLines(path string, n int, line func(w *bufio.Writer, i int)) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	for i := 0; i < n; i++ {
		line(w, i)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return file.Close()
}
