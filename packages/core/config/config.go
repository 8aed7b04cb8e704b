package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/hitrun/packages/core/model"
	"github.com/abdul-hamid-achik/hitrun/packages/core/runner"
)

// Config represents the hitrun configuration
type Config struct {
	ParallelizeTestCollections *bool    `json:"parallelizeTestCollections,omitempty" yaml:"parallelizeTestCollections,omitempty"`
	MaxParallelThreads         int      `json:"maxParallelThreads,omitempty" yaml:"maxParallelThreads,omitempty"` // 0 = one per CPU, -1 = unlimited
	ParallelAlgorithm          string   `json:"parallelAlgorithm,omitempty" yaml:"parallelAlgorithm,omitempty"`
	StopOnFail                 *bool    `json:"stopOnFail,omitempty" yaml:"stopOnFail,omitempty"`
	Explicit                   string   `json:"explicit,omitempty" yaml:"explicit,omitempty"` // off, on or only
	FailSkips                  *bool    `json:"failSkips,omitempty" yaml:"failSkips,omitempty"`
	DiagnosticMessages         *bool    `json:"diagnosticMessages,omitempty" yaml:"diagnosticMessages,omitempty"`
	InternalDiagnosticMessages *bool    `json:"internalDiagnosticMessages,omitempty" yaml:"internalDiagnosticMessages,omitempty"`
	LongRunningTestSeconds     int      `json:"longRunningTestSeconds,omitempty" yaml:"longRunningTestSeconds,omitempty"`
	DefaultTimeout             int      `json:"defaultTimeout,omitempty" yaml:"defaultTimeout,omitempty"` // milliseconds
	Order                      string   `json:"order,omitempty" yaml:"order,omitempty"`                   // default, displayName, declaration or random
	Seed                       *int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	Reporters                  []string `json:"reporters,omitempty" yaml:"reporters,omitempty"`
	OutputDir                  string   `json:"outputDir,omitempty" yaml:"outputDir,omitempty"`
	HistoryDB                  string   `json:"historyDB,omitempty" yaml:"historyDB,omitempty"`
	MetricsFile                string   `json:"metricsFile,omitempty" yaml:"metricsFile,omitempty"`
	Verbose                    *bool    `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	NoColor                    *bool    `json:"noColor,omitempty" yaml:"noColor,omitempty"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetParallelizeTestCollections defaults to true
func (c *Config) GetParallelizeTestCollections() bool {
	return getBool(c.ParallelizeTestCollections, true)
}

// GetStopOnFail defaults to false
func (c *Config) GetStopOnFail() bool {
	return getBool(c.StopOnFail, false)
}

// GetFailSkips defaults to false
func (c *Config) GetFailSkips() bool {
	return getBool(c.FailSkips, false)
}

// GetDiagnosticMessages defaults to false
func (c *Config) GetDiagnosticMessages() bool {
	return getBool(c.DiagnosticMessages, false)
}

// GetInternalDiagnosticMessages defaults to false
func (c *Config) GetInternalDiagnosticMessages() bool {
	return getBool(c.InternalDiagnosticMessages, false)
}

// GetVerbose defaults to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Verbose, false)
}

// GetNoColor defaults to false
func (c *Config) GetNoColor() bool {
	return getBool(c.NoColor, false)
}

// ConfigFilenames contains the possible config file names, in search order
var ConfigFilenames = []string{
	"hitrun.json",
	".hitrun.json",
	"hitrun.yaml",
	".hitrun.yaml",
	"hitrun.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, string, error) {
	if path != "" {
		cfg, err := loadConfigFromFile(path)
		return cfg, path, err
	}
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches dir for a config file. It returns the defaults
// and an empty path when none exists.
func FindAndLoadConfig(dir string) (*Config, string, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			cfg, err := loadConfigFromFile(configPath)
			return cfg, configPath, err
		}
	}
	return DefaultConfig(), "", nil
}

func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the enumerated settings.
func (c *Config) Validate() error {
	if _, err := runner.ParseExplicitOption(c.Explicit); err != nil {
		return err
	}
	if _, err := runner.ParseParallelAlgorithm(c.ParallelAlgorithm); err != nil {
		return err
	}
	if _, err := c.orderer(); err != nil {
		return err
	}
	if c.MaxParallelThreads < runner.Unlimited {
		return fmt.Errorf("maxParallelThreads must be -1, 0 or positive, got %d", c.MaxParallelThreads)
	}
	if c.LongRunningTestSeconds < 0 {
		return fmt.Errorf("longRunningTestSeconds must not be negative")
	}
	return nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy

	if other.MaxParallelThreads != 0 {
		result.MaxParallelThreads = other.MaxParallelThreads
	}
	if other.ParallelAlgorithm != "" {
		result.ParallelAlgorithm = other.ParallelAlgorithm
	}
	if other.Explicit != "" {
		result.Explicit = other.Explicit
	}
	if other.LongRunningTestSeconds > 0 {
		result.LongRunningTestSeconds = other.LongRunningTestSeconds
	}
	if other.DefaultTimeout > 0 {
		result.DefaultTimeout = other.DefaultTimeout
	}
	if other.Order != "" {
		result.Order = other.Order
	}
	if other.Seed != nil {
		result.Seed = other.Seed
	}
	if other.OutputDir != "" {
		result.OutputDir = other.OutputDir
	}
	if other.HistoryDB != "" {
		result.HistoryDB = other.HistoryDB
	}
	if other.MetricsFile != "" {
		result.MetricsFile = other.MetricsFile
	}

	// Boolean flags - only override if explicitly set in other config
	if other.ParallelizeTestCollections != nil {
		result.ParallelizeTestCollections = other.ParallelizeTestCollections
	}
	if other.StopOnFail != nil {
		result.StopOnFail = other.StopOnFail
	}
	if other.FailSkips != nil {
		result.FailSkips = other.FailSkips
	}
	if other.DiagnosticMessages != nil {
		result.DiagnosticMessages = other.DiagnosticMessages
	}
	if other.InternalDiagnosticMessages != nil {
		result.InternalDiagnosticMessages = other.InternalDiagnosticMessages
	}
	if other.Verbose != nil {
		result.Verbose = other.Verbose
	}
	if other.NoColor != nil {
		result.NoColor = other.NoColor
	}

	if len(other.Reporters) > 0 {
		result.Reporters = other.Reporters
	}

	return &result
}

func (c *Config) orderer() (model.TestCaseOrderer, error) {
	return model.ParseTestCaseOrderer(c.Order, c.Seed)
}

// Options converts the configuration into runner options.
func (c *Config) Options(logger *slog.Logger) (*runner.Options, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	explicit, _ := runner.ParseExplicitOption(c.Explicit)
	algorithm, _ := runner.ParseParallelAlgorithm(c.ParallelAlgorithm)
	orderer, _ := c.orderer()

	opts := &runner.Options{
		Logger:                 logger,
		DisableParallelization: !c.GetParallelizeTestCollections(),
		MaxParallelThreads:     c.MaxParallelThreads,
		ParallelAlgorithm:      algorithm,
		StopOnFail:             c.GetStopOnFail(),
		Explicit:               explicit,
		FailSkips:              c.GetFailSkips(),
		LongRunningTestTime:    time.Duration(c.LongRunningTestSeconds) * time.Second,
		InternalDiagnostics:    c.GetInternalDiagnosticMessages(),
		TestCaseOrderer:        orderer,
	}
	if r, ok := orderer.(model.RandomOrderer); ok {
		seed := r.Seed
		opts.Seed = &seed
	}
	return opts, nil
}

// SaveConfig saves the configuration to a file, as YAML when the extension
// says so and JSON otherwise
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
