// Package config provides unified configuration loading for whiteworms.
// It supports loading from YAML files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aaleta/C72h-whiteworms/internal/gillespie"
	"github.com/aaleta/C72h-whiteworms/internal/model"
	"github.com/aaleta/C72h-whiteworms/internal/montecarlo"
	"github.com/aaleta/C72h-whiteworms/internal/observability"
	"github.com/aaleta/C72h-whiteworms/internal/seeding"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WHITEWORMS_"

var validate = validator.New()

// WhitewormsConfig contains all whiteworms configuration settings.
type WhitewormsConfig struct {
	Network    NetworkConfig    `json:"network" yaml:"network"`
	Parameters model.Params     `json:"parameters" yaml:"parameters"`
	Seeding    SeedingConfig    `json:"seeding" yaml:"seeding"`
	MonteCarlo MonteCarloConfig `json:"montecarlo" yaml:"montecarlo"`
	Engine     gillespie.Config `json:"engine" yaml:"engine"`
	Output     OutputConfig     `json:"output" yaml:"output"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	Metrics    MetricsConfig    `json:"metrics" yaml:"metrics"`

	Tracing observability.TracingConfig `json:"tracing" yaml:"tracing"`
}

// NetworkConfig locates the edge list to simulate on.
type NetworkConfig struct {
	// Path is an edge-list file. Supports ${VAR} syntax.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Name overrides the name derived from the file stem.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Directed treats each edge "u v" as u influencing v only.
	Directed bool `json:"directed" yaml:"directed"`

	// Nodes pre-registers labels 0..Nodes-1 so isolated nodes count.
	Nodes int `json:"nodes,omitempty" yaml:"nodes,omitempty" validate:"gte=0"`
}

// SeedingConfig configures the initial condition of every trial.
type SeedingConfig struct {
	Black int `json:"black" yaml:"black" validate:"gte=0"`
	White int `json:"white" yaml:"white" validate:"gte=0"`

	// Fixed assigns compartments to node labels from the edge list and
	// replaces random seeding when non-empty, e.g. {0: B, 5: W}.
	Fixed map[int]string `json:"fixed,omitempty" yaml:"fixed,omitempty"`
}

// Policy returns the seeding policy described by c.
func (c SeedingConfig) Policy() (seeding.Policy, error) {
	if len(c.Fixed) > 0 {
		return seeding.ParseFixed(c.Fixed)
	}
	return seeding.RandomPolicy{Black: c.Black, White: c.White}, nil
}

// MonteCarloConfig configures repeated trials.
type MonteCarloConfig struct {
	Trials  int    `json:"trials" yaml:"trials" validate:"gte=1"`
	Workers int    `json:"workers" yaml:"workers" validate:"gte=0"`
	Seed    uint64 `json:"seed" yaml:"seed"`

	PersistenceThreshold float64 `json:"persistence_threshold" yaml:"persistence_threshold" validate:"gte=0,lte=1"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	// Dir receives result files. Supports ${VAR} syntax.
	Dir string `json:"dir" yaml:"dir"`

	// Database is the SQLite result store path. Empty uses
	// ~/.whiteworms/results.db. "none" disables persistence.
	Database string `json:"database,omitempty" yaml:"database,omitempty"`

	// KeepTrajectory writes the first trial's trajectory next to the results.
	KeepTrajectory bool `json:"keep_trajectory" yaml:"keep_trajectory"`

	// TrajectoryFormat is "csv", "arrow" or "both".
	TrajectoryFormat string `json:"trajectory_format" yaml:"trajectory_format" validate:"oneof=csv arrow both"`
}

// DatabaseDisabled is the Output.Database value that turns persistence off.
const DatabaseDisabled = "none"

// LoggingConfig configures operational logging.
type LoggingConfig struct {
	// Level sets the log verbosity: "info" (default), "debug", "trace",
	// "warn" or "error". "debug" and "trace" also write <output>/trials.jsonl.
	Level string `json:"level" yaml:"level"`

	// Format is "text" or "json".
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr serves /metrics when non-empty, e.g. ":9090".
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty"`
}

// Default returns a WhitewormsConfig with sensible defaults.
func Default() *WhitewormsConfig {
	return &WhitewormsConfig{
		Parameters: model.Params{
			BetaB:   1.1,
			BetaW:   1.1,
			Epsilon: 0.5,
			Gamma:   0.5,
			Mu:      1,
		},
		Seeding: SeedingConfig{
			Black: 1,
			White: 1,
		},
		MonteCarlo: MonteCarloConfig{
			Trials:               100,
			PersistenceThreshold: montecarlo.DefaultPersistenceThreshold,
		},
		Engine: gillespie.DefaultConfig(),
		Output: OutputConfig{
			Dir:              "results",
			TrajectoryFormat: "csv",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: observability.TracingConfig{
			ServiceName: "whiteworms",
			Exporter:    "stdout",
			SampleRatio: 1,
		},
	}
}

// DefaultPath returns ~/.whiteworms/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".whiteworms", "config.yaml"), nil
}

// Load loads configuration from the default locations and environment variables.
// Order: defaults -> ~/.whiteworms/config.yaml -> environment variables
func Load() (*WhitewormsConfig, error) {
	config := Default()

	if configPath, err := DefaultPath(); err == nil {
		if _, statErr := os.Stat(configPath); statErr == nil {
			fileConfig, loadErr := LoadFromFile(configPath)
			if loadErr != nil {
				return nil, fmt.Errorf("loading config file: %w", loadErr)
			}
			config = fileConfig
		}
	}

	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadPath loads path when non-empty, the default locations otherwise, and
// then applies environment overrides.
func LoadPath(path string) (*WhitewormsConfig, error) {
	if path == "" {
		return Load()
	}
	config, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadFromFile loads configuration from a specific YAML file. Keys missing
// from the file keep their defaults.
func LoadFromFile(path string) (*WhitewormsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	config.Network.Path = expandEnvVars(config.Network.Path)
	config.Output.Dir = expandEnvVars(config.Output.Dir)
	config.Output.Database = expandEnvVars(config.Output.Database)

	return config, nil
}

// Validate checks that the configuration is valid.
func (c *WhitewormsConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if err := c.Parameters.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if _, err := c.Seeding.Policy(); err != nil {
		return fmt.Errorf("%w: seeding: %v", model.ErrInvalidParameter, err)
	}

	validLevels := map[string]bool{"": true, "info": true, "debug": true, "trace": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (valid: info, debug, trace, warn, error)", model.ErrInvalidParameter, c.Logging.Level)
	}

	if c.Tracing.Enabled {
		switch strings.ToLower(c.Tracing.Exporter) {
		case "stdout", "otlp", "otlpgrpc":
		default:
			return fmt.Errorf("%w: invalid tracing exporter: %s (valid: stdout, otlp)", model.ErrInvalidParameter, c.Tracing.Exporter)
		}
		if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
			return fmt.Errorf("%w: tracing sample_ratio must be between 0 and 1, got %v", model.ErrInvalidParameter, c.Tracing.SampleRatio)
		}
	}
	return nil
}

// RunnerConfig assembles the Monte Carlo runner settings.
func (c *WhitewormsConfig) RunnerConfig() montecarlo.Config {
	return montecarlo.Config{
		Trials:               c.MonteCarlo.Trials,
		Workers:              c.MonteCarlo.Workers,
		Seed:                 c.MonteCarlo.Seed,
		Engine:               c.Engine,
		PersistenceThreshold: c.MonteCarlo.PersistenceThreshold,
		KeepFirst:            c.Output.KeepTrajectory,
	}
}

// Marshal renders c as YAML.
func (c *WhitewormsConfig) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// envOverride maps one environment variable onto a config field.
type envOverride struct {
	key   string
	apply func(*WhitewormsConfig, string) error
}

var envOverrides = []envOverride{
	{"NETWORK", func(c *WhitewormsConfig, v string) error { c.Network.Path = v; return nil }},
	{"NETWORK_NAME", func(c *WhitewormsConfig, v string) error { c.Network.Name = v; return nil }},
	{"DIRECTED", func(c *WhitewormsConfig, v string) error { c.Network.Directed = parseBool(v); return nil }},
	{"BETA_B", floatOverride(func(c *WhitewormsConfig) *float64 { return &c.Parameters.BetaB })},
	{"BETA_W", floatOverride(func(c *WhitewormsConfig) *float64 { return &c.Parameters.BetaW })},
	{"EPSILON", floatOverride(func(c *WhitewormsConfig) *float64 { return &c.Parameters.Epsilon })},
	{"GAMMA", floatOverride(func(c *WhitewormsConfig) *float64 { return &c.Parameters.Gamma })},
	{"MU", floatOverride(func(c *WhitewormsConfig) *float64 { return &c.Parameters.Mu })},
	{"BLACK", intOverride(func(c *WhitewormsConfig) *int { return &c.Seeding.Black })},
	{"WHITE", intOverride(func(c *WhitewormsConfig) *int { return &c.Seeding.White })},
	{"TRIALS", intOverride(func(c *WhitewormsConfig) *int { return &c.MonteCarlo.Trials })},
	{"WORKERS", intOverride(func(c *WhitewormsConfig) *int { return &c.MonteCarlo.Workers })},
	{"SEED", func(c *WhitewormsConfig, v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return err
		}
		c.MonteCarlo.Seed = n
		return nil
	}},
	{"MAX_TIME", floatOverride(func(c *WhitewormsConfig) *float64 { return &c.Engine.MaxTime })},
	{"MAX_EVENTS", intOverride(func(c *WhitewormsConfig) *int { return &c.Engine.MaxEvents })},
	{"OUTPUT_DIR", func(c *WhitewormsConfig, v string) error { c.Output.Dir = v; return nil }},
	{"DATABASE", func(c *WhitewormsConfig, v string) error { c.Output.Database = v; return nil }},
	{"LOG_LEVEL", func(c *WhitewormsConfig, v string) error { c.Logging.Level = v; return nil }},
	{"LOG_FORMAT", func(c *WhitewormsConfig, v string) error { c.Logging.Format = v; return nil }},
	{"METRICS_ADDR", func(c *WhitewormsConfig, v string) error { c.Metrics.Addr = v; return nil }},
	{"TRACING", func(c *WhitewormsConfig, v string) error { c.Tracing.Enabled = parseBool(v); return nil }},
	{"TRACING_EXPORTER", func(c *WhitewormsConfig, v string) error { c.Tracing.Exporter = v; return nil }},
	{"TRACING_ENDPOINT", func(c *WhitewormsConfig, v string) error { c.Tracing.Endpoint = v; return nil }},
}

// applyEnvOverrides applies WHITEWORMS_* environment variables. A value
// that does not parse is an error rather than silently ignored.
func applyEnvOverrides(config *WhitewormsConfig) error {
	for _, o := range envOverrides {
		v := os.Getenv(EnvPrefix + o.key)
		if v == "" {
			continue
		}
		if err := o.apply(config, v); err != nil {
			return fmt.Errorf("%s%s=%q: %w", EnvPrefix, o.key, v, err)
		}
	}
	return nil
}

func floatOverride(field func(*WhitewormsConfig) *float64) func(*WhitewormsConfig, string) error {
	return func(c *WhitewormsConfig, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func intOverride(field func(*WhitewormsConfig) *int) func(*WhitewormsConfig, string) error {
	return func(c *WhitewormsConfig, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func parseBool(v string) bool {
	return v == "true" || v == "1"
}

// expandEnvVars expands ${VAR} patterns in a string with environment variable values.
func expandEnvVars(s string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	return os.Expand(s, os.Getenv)
}

// formatValidationError converts validator errors to a readable error
// wrapping model.ErrInvalidParameter.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return fmt.Errorf("%w: %v", model.ErrInvalidParameter, err)
	}

	e := validationErrs[0]
	field := strings.ToLower(e.Namespace())
	switch e.Tag() {
	case "gte":
		return fmt.Errorf("%w: %s must be at least %s, got %v", model.ErrInvalidParameter, field, e.Param(), e.Value())
	case "lte":
		return fmt.Errorf("%w: %s must be at most %s, got %v", model.ErrInvalidParameter, field, e.Param(), e.Value())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of [%s], got %q", model.ErrInvalidParameter, field, e.Param(), e.Value())
	default:
		return fmt.Errorf("%w: %s failed %s", model.ErrInvalidParameter, field, e.Tag())
	}
}
