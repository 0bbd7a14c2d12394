package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestDefaults(t *testing.T) {
	c := NewConfig()
	if c.Damping() != 0.85 || c.Tolerance() != 1e-6 || c.MaxIterations() != 100 || c.Epsilon() != 1e-12 {
		t.Errorf("algorithm defaults = %v %v %v %v", c.Damping(), c.Tolerance(), c.MaxIterations(), c.Epsilon())
	}
	if c.Mode() != "leveled" || c.K() != 5 || c.Workers() != 4 || !c.Strict() {
		t.Errorf("mode=%q k=%d workers=%d strict=%v", c.Mode(), c.K(), c.Workers(), c.Strict())
	}
	if c.Threads() <= 0 {
		t.Errorf("threads = %d", c.Threads())
	}
	if c.StorePath() != "" || c.ServerAddress() != ":8080" || c.DataDir() != "." {
		t.Errorf("store=%q addr=%q data_dir=%q", c.StorePath(), c.ServerAddress(), c.DataDir())
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seedsel.yaml")
	content := `
algorithm:
  damping: 0.5
  mode: flat
selection:
  k: 12
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	c := NewConfig()
	if err := c.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if c.Damping() != 0.5 || c.Mode() != "flat" || c.K() != 12 {
		t.Errorf("damping=%v mode=%q k=%d", c.Damping(), c.Mode(), c.K())
	}
	if c.Tolerance() != 1e-6 {
		t.Errorf("unset key lost its default: %v", c.Tolerance())
	}
}

func TestEnvironmentOverride(t *testing.T) {
	t.Setenv("SEEDSEL_SELECTION_K", "9")
	t.Setenv("SEEDSEL_CLUSTER_WORKERS", "2")
	c := NewConfig()
	if c.K() != 9 || c.Workers() != 2 {
		t.Errorf("k=%d workers=%d", c.K(), c.Workers())
	}
}

func TestBindFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("k", 5, "")
	fs.String("mode", "leveled", "")
	fs.Float64("damping", 0.85, "")
	fs.String("data-dir", ".", "")
	if err := fs.Parse([]string{"--k=3", "--mode=flat", "--data-dir=/srv/graphs"}); err != nil {
		t.Fatal(err)
	}

	c := NewConfig()
	c.Set("algorithm.damping", 0.7)
	if err := c.BindFlags(fs); err != nil {
		t.Fatalf("BindFlags: %v", err)
	}
	if c.K() != 3 || c.Mode() != "flat" || c.DataDir() != "/srv/graphs" {
		t.Errorf("k=%d mode=%q data_dir=%q", c.K(), c.Mode(), c.DataDir())
	}
	// Set has priority over flags in viper.
	if c.Damping() != 0.7 {
		t.Errorf("damping = %v", c.Damping())
	}
}

func TestCreateLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	c := NewConfig()
	c.Set("logging.level", "warn")
	logger := c.CreateLoggerTo(&buf)

	logger.Info().Msg("hidden")
	logger.Warn().Int("level", 3).Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line written at warn level: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "service=seedsel") {
		t.Errorf("unexpected log output: %q", out)
	}
}
