// Package config loads reviewlog configuration from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/reviewlog/internal/ir"
	"github.com/roach88/reviewlog/internal/reconcile"
	"github.com/roach88/reviewlog/internal/scheduler"
	"github.com/roach88/reviewlog/internal/store"
)

// EnvDatabase overrides the database path from the file.
const EnvDatabase = "REVIEWLOG_DB"

// Config is the full reviewlog configuration.
type Config struct {
	// Database is the SQLite database path.
	Database string `yaml:"database"`

	// Policy is the scheduling policy for tasks without prior state.
	Policy string `yaml:"policy"`

	// PoliciesFile is an optional CUE file of policy overrides. Relative
	// paths are resolved against the config file's directory.
	PoliciesFile string `yaml:"policies_file"`

	Attachments Attachments `yaml:"attachments"`
	Reconcile   Reconcile   `yaml:"reconcile"`
}

// Attachments configures attachment URLs.
type Attachments struct {
	BaseURL string `yaml:"base_url"`
}

// Reconcile tunes the reconciliation engine.
type Reconcile struct {
	MaxRetries         int           `yaml:"max_retries"`
	FetchTimeout       time.Duration `yaml:"fetch_timeout"`
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Database: "reviewlog.db",
		Policy:   scheduler.DefaultPolicyName,
		Attachments: Attachments{
			BaseURL: store.DefaultAttachmentBaseURL,
		},
		Reconcile: Reconcile{
			MaxRetries:         reconcile.DefaultMaxRetries,
			FetchTimeout:       reconcile.DefaultFetchTimeout,
			MaxConcurrentTasks: reconcile.DefaultMaxConcurrentTasks,
		},
	}
}

// Load reads the file at path over the defaults. An empty path yields the
// defaults. The REVIEWLOG_DB environment variable takes precedence over the
// file's database path.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.PoliciesFile != "" && !filepath.IsAbs(cfg.PoliciesFile) {
			cfg.PoliciesFile = filepath.Join(filepath.Dir(path), cfg.PoliciesFile)
		}
	}

	if db := os.Getenv(EnvDatabase); db != "" {
		cfg.Database = db
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errs[0])
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults without touching the environment.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errs[0])
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid field.
func (c *Config) Validate() []ir.ValidationError {
	var errs []ir.ValidationError
	if c.Database == "" {
		errs = append(errs, ir.ValidationError{Field: "database", Message: "required"})
	}
	if c.Policy == "" {
		errs = append(errs, ir.ValidationError{Field: "policy", Message: "required"})
	}
	if c.Attachments.BaseURL == "" {
		errs = append(errs, ir.ValidationError{Field: "attachments.base_url", Message: "required"})
	}
	if c.Reconcile.MaxRetries < 0 {
		errs = append(errs, ir.ValidationError{Field: "reconcile.max_retries", Message: "must not be negative"})
	}
	if c.Reconcile.FetchTimeout <= 0 {
		errs = append(errs, ir.ValidationError{Field: "reconcile.fetch_timeout", Message: "must be positive"})
	}
	if c.Reconcile.MaxConcurrentTasks <= 0 {
		errs = append(errs, ir.ValidationError{Field: "reconcile.max_concurrent_tasks", Message: "must be positive"})
	}
	return errs
}

// EngineOptions translates the reconcile section into engine options.
func (c *Config) EngineOptions() []reconcile.Option {
	return []reconcile.Option{
		reconcile.WithMaxRetries(c.Reconcile.MaxRetries),
		reconcile.WithFetchTimeout(c.Reconcile.FetchTimeout),
		reconcile.WithMaxConcurrentTasks(c.Reconcile.MaxConcurrentTasks),
	}
}

// Scheduler builds the policy dispatcher, loading PoliciesFile when set.
func (c *Config) Scheduler() (*scheduler.Dispatcher, error) {
	var policies []*scheduler.IntervalLadder
	if c.PoliciesFile != "" {
		loaded, err := scheduler.LoadPolicies(c.PoliciesFile)
		if err != nil {
			return nil, err
		}
		policies = loaded
	}
	registry, err := scheduler.NewRegistry(policies...)
	if err != nil {
		return nil, err
	}
	return scheduler.NewDispatcher(registry, c.Policy)
}
