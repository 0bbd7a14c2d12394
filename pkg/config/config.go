package config

import (
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides: SEEDSEL_ALGORITHM_DAMPING sets
// algorithm.damping.
const EnvPrefix = "SEEDSEL"

// Config manages service configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Algorithm parameters
	v.SetDefault("algorithm.damping", 0.85)
	v.SetDefault("algorithm.tolerance", 1e-6)
	v.SetDefault("algorithm.max_iterations", 100)
	v.SetDefault("algorithm.epsilon", 1e-12)
	v.SetDefault("algorithm.mode", "leveled")

	v.SetDefault("selection.k", 5)

	// Parallelism
	v.SetDefault("cluster.workers", 4)
	v.SetDefault("performance.threads", runtime.NumCPU())

	v.SetDefault("validation.strict", true)

	// Logging parameters
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("store.path", "")
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.data_dir", ".")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// flagKeys maps command-line flag names onto configuration keys.
var flagKeys = map[string]string{
	"damping":        "algorithm.damping",
	"tolerance":      "algorithm.tolerance",
	"max-iterations": "algorithm.max_iterations",
	"epsilon":        "algorithm.epsilon",
	"mode":           "algorithm.mode",
	"k":              "selection.k",
	"workers":        "cluster.workers",
	"threads":        "performance.threads",
	"strict":         "validation.strict",
	"log-level":      "logging.level",
	"store":          "store.path",
	"addr":           "server.address",
	"data-dir":       "server.data_dir",
}

// BindFlags binds every known flag present in fs, so an explicitly set flag
// overrides file and environment values.
func (c *Config) BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := c.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

// Getters for algorithm parameters
func (c *Config) Damping() float64   { return c.v.GetFloat64("algorithm.damping") }
func (c *Config) Tolerance() float64 { return c.v.GetFloat64("algorithm.tolerance") }
func (c *Config) MaxIterations() int { return c.v.GetInt("algorithm.max_iterations") }
func (c *Config) Epsilon() float64   { return c.v.GetFloat64("algorithm.epsilon") }
func (c *Config) Mode() string       { return c.v.GetString("algorithm.mode") }

func (c *Config) K() int { return c.v.GetInt("selection.k") }

func (c *Config) Workers() int { return c.v.GetInt("cluster.workers") }
func (c *Config) Threads() int { return c.v.GetInt("performance.threads") }

func (c *Config) Strict() bool { return c.v.GetBool("validation.strict") }

func (c *Config) LogLevel() string  { return c.v.GetString("logging.level") }
func (c *Config) LogOutput() string { return c.v.GetString("logging.output") }

func (c *Config) StorePath() string     { return c.v.GetString("store.path") }
func (c *Config) ServerAddress() string { return c.v.GetString("server.address") }

// DataDir is the root that API run requests may read input files from.
func (c *Config) DataDir() string { return c.v.GetString("server.data_dir") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value any) {
	c.v.Set(key, value)
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	var out io.Writer = os.Stderr
	if c.LogOutput() == "stdout" {
		out = os.Stdout
	}
	return c.CreateLoggerTo(out)
}

// CreateLoggerTo is CreateLogger writing to w.
func (c *Config) CreateLoggerTo(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
		NoColor:    w != os.Stdout && w != os.Stderr,
	}).Level(level).With().Timestamp().Str("service", "seedsel").Logger()
}
