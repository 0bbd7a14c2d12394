package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/gilchrisn/influence-seeding/pkg/graph"
	"github.com/gilchrisn/influence-seeding/pkg/pipeline"
)

func chainResult(t *testing.T) *pipeline.Result {
	t.Helper()
	g, err := graph.LoadEdgeList(context.Background(), strings.NewReader("1 2 1 1 1\n2 3 1 1 1\n3 4 1 1 1\n"), 1)
	if err != nil {
		t.Fatalf("LoadEdgeList: %v", err)
	}
	interests, err := graph.LoadInterests(strings.NewReader("uid,a,b\n1,1,0\n2,1,0\n3,1,0\n4,1,0\n"), g.N)
	if err != nil {
		t.Fatalf("LoadInterests: %v", err)
	}
	opts := pipeline.DefaultOptions()
	opts.Workers = 2
	opts.K = 2
	res, err := pipeline.Run(context.Background(), g, interests, opts, zerolog.Nop())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestTopInfluence(t *testing.T) {
	ip := []float64{0.1, 0.4, 0.4, 0.05}
	tests := []struct {
		name string
		n    int
		want []int
	}{
		{"TopTwo", 2, []int{1, 2}},
		{"All", 10, []int{1, 2, 0, 3}},
		{"Zero", 0, []int{}},
		{"Negative", -1, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TopInfluence(ip, tt.n)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want nodes %v", got, tt.want)
			}
			for i, ns := range got {
				if ns.Node != tt.want[i] {
					t.Errorf("position %d: node %d, want %d", i, ns.Node, tt.want[i])
				}
			}
		})
	}
}

func TestNewReport(t *testing.T) {
	res := chainResult(t)
	r := NewReport(res, 3)
	if r.RunID != res.RunID || r.Graph.Nodes != 4 || r.Graph.Edges != 3 {
		t.Errorf("report header = %+v", r)
	}
	if r.Partition.Components != 4 || r.Partition.Levels != 4 || r.Partition.Singletons != 4 {
		t.Errorf("partition summary = %+v", r.Partition)
	}
	if len(r.Top) != 3 || r.Top[0].Node != 3 {
		t.Errorf("top = %+v", r.Top)
	}
	if len(r.Seeds) != 2 {
		t.Errorf("seeds = %+v", r.Seeds)
	}
}

func TestWriteFormats(t *testing.T) {
	r := NewReport(chainResult(t), 2)

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, r, FormatJSON); err != nil {
			t.Fatalf("Write: %v", err)
		}
		var decoded Report
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if decoded.RunID != r.RunID || len(decoded.Seeds) != len(r.Seeds) {
			t.Errorf("decoded = %+v", decoded)
		}
	})

	t.Run("YAML", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, r, FormatYAML); err != nil {
			t.Fatalf("Write: %v", err)
		}
		var decoded map[string]any
		if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid YAML: %v", err)
		}
		if decoded["run_id"] != r.RunID {
			t.Errorf("run_id = %v", decoded["run_id"])
		}
		if _, ok := decoded["top_influence"]; !ok {
			t.Error("missing top_influence")
		}
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		if err := Write(&buf, r, FormatText); err != nil {
			t.Fatalf("Write: %v", err)
		}
		out := buf.String()
		for _, want := range []string{"Run", r.RunID, "Seeds", "avg_distance", "Top influence"} {
			if !strings.Contains(out, want) {
				t.Errorf("text output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("Unknown", func(t *testing.T) {
		if err := Write(&bytes.Buffer{}, r, Format("xml")); !errors.Is(err, ErrUnknownFormat) {
			t.Fatalf("expected ErrUnknownFormat, got %v", err)
		}
	})
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"text", "json", "yaml"} {
		if f, err := ParseFormat(s); err != nil || string(f) != s {
			t.Errorf("ParseFormat(%q) = %q, %v", s, f, err)
		}
	}
	if _, err := ParseFormat("csv"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestWriteFiles(t *testing.T) {
	res := chainResult(t)
	dir := filepath.Join(t.TempDir(), "out")
	if err := WriteFiles(res, dir, "chain"); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}

	levels, err := os.ReadFile(filepath.Join(dir, "chain.levels"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(levels)), "\n")
	if len(lines) != 4 {
		t.Fatalf("levels has %d lines", len(lines))
	}
	if fields := strings.Fields(lines[3]); fields[0] != "4" || fields[1] != "-1" || fields[3] != "3" {
		t.Errorf("last levels line = %q", lines[3])
	}

	influence, err := os.ReadFile(filepath.Join(dir, "chain.influence"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(influence), "\n"); got != 4 {
		t.Errorf("influence has %d lines", got)
	}

	seedFile, err := os.ReadFile(filepath.Join(dir, "chain.seeds"))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(seedFile), "\n"); got != len(res.Seeds) {
		t.Errorf("seeds has %d lines, want %d", got, len(res.Seeds))
	}
}

func TestPartitionOnlyReport(t *testing.T) {
	res := chainResult(t)
	r := NewPartitionReport(res.Partition)
	if r.Graph.Nodes != 4 || r.Partition.Levels != 4 {
		t.Errorf("report = %+v", r)
	}

	var buf bytes.Buffer
	if err := Write(&buf, r, FormatText); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if strings.Contains(buf.String(), "Seeds") {
		t.Errorf("partition report printed a seed table:\n%s", buf.String())
	}

	dir := t.TempDir()
	if err := WriteFiles(&pipeline.Result{Partition: res.Partition}, dir, "p"); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "p.levels")); err != nil {
		t.Errorf("levels file: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "p.influence")); !os.IsNotExist(err) {
		t.Errorf("influence file written for partition-only result: %v", err)
	}
}
