package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/credit"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/internal/ledgersync"
	"github.com/unmistakablecreative/orchestrate-no-bullshit/pkg/ledger"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "orchledger.yml"

// Environment variables that override file settings. Secrets are only ever
// taken from the environment.
const (
	EnvStateDir  = "ORCH_STATE_DIR"
	EnvBackend   = "ORCH_LEDGER_BACKEND"
	EnvURL       = "ORCH_LEDGER_URL"
	EnvToken     = "ORCH_LEDGER_TOKEN"
	EnvNamespace = "ORCH_LEDGER_NAMESPACE"
)

// Backend names accepted in store.backend.
const (
	BackendRedis  = "redis"
	BackendHTTP   = "http"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
	BackendMemory = "memory"
)

// Config represents the top-level orchledger.yml configuration
type Config struct {
	Version      string       `yaml:"version"`
	StateDir     string       `yaml:"state_dir,omitempty"`
	IdentityFile string       `yaml:"identity_file,omitempty"`
	ReferrerFile string       `yaml:"referrer_file,omitempty"`
	RecordFile   string       `yaml:"record_file,omitempty"`
	Store        Store        `yaml:"store"`
	Sync         SyncConfig   `yaml:"sync"`
	Credits      CreditConfig `yaml:"credits"`
	Catalog      string       `yaml:"catalog,omitempty"` // tool catalog YAML
	Wizard       WizardConfig `yaml:"wizard"`
}

// Store selects and addresses the shared ledger backend.
type Store struct {
	Backend   string `yaml:"backend,omitempty"`   // redis, http, bolt, sqlite, file, memory
	URL       string `yaml:"url,omitempty"`       // redis:// or http(s):// endpoint
	Path      string `yaml:"path,omitempty"`      // bolt, sqlite and file backends
	Namespace string `yaml:"namespace,omitempty"` // redis key namespace
	Token     string `yaml:"-"`                   // env only
}

// SyncConfig bounds the optimistic-concurrency retry loop.
type SyncConfig struct {
	MaxAttempts      int           `yaml:"max_attempts,omitempty"`
	OperationTimeout time.Duration `yaml:"operation_timeout,omitempty"`
	InitialBackoff   time.Duration `yaml:"initial_backoff,omitempty"`
	MaxBackoff       time.Duration `yaml:"max_backoff,omitempty"`
}

// CreditConfig overrides the stock credit grant.
type CreditConfig struct {
	Initial     *int   `yaml:"initial,omitempty"`      // default 3
	PerReferral *int   `yaml:"per_referral,omitempty"` // default 3
	DefaultTool string `yaml:"default_tool,omitempty"` // default json_manager
}

// WizardConfig names the text files the setup wizard copies to the clipboard.
type WizardConfig struct {
	InstructionsFile string `yaml:"instructions_file,omitempty"`
	StarterFile      string `yaml:"starter_file,omitempty"`
	SchemaFile       string `yaml:"schema_file,omitempty"`
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	c := &Config{Version: "1.0"}
	if err := c.Validate(); err != nil {
		panic(fmt.Sprintf("default configuration is invalid: %v", err))
	}
	return c
}

// Validate performs strict validation on the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.StateDir == "" {
		c.StateDir = "/container_state"
	}
	if c.IdentityFile == "" {
		c.IdentityFile = "system_identity.json"
	}
	if c.ReferrerFile == "" {
		c.ReferrerFile = "referrer.txt"
	}
	if c.RecordFile == "" {
		c.RecordFile = "referrals.json"
	}

	if err := c.Store.validate(c.StateDir); err != nil {
		return err
	}
	if err := c.Sync.validate(); err != nil {
		return err
	}
	return c.Credits.validate()
}

func (s *Store) validate(stateDir string) error {
	if s.Backend == "" {
		s.Backend = inferBackend(s.URL)
	}

	switch s.Backend {
	case BackendRedis:
		if s.URL == "" {
			s.URL = "redis://localhost:6379"
		}
		if _, err := url.Parse(s.URL); err != nil {
			return fmt.Errorf("store.url: %w", err)
		}
		if s.Namespace == "" {
			s.Namespace = ledger.DefaultNamespace
		}
		if err := ledger.ValidateNamespace(s.Namespace); err != nil {
			return fmt.Errorf("store.namespace: %w", err)
		}
	case BackendHTTP:
		if s.URL == "" {
			return fmt.Errorf("store.url is required for the http backend")
		}
	case BackendBolt:
		if s.Path == "" {
			s.Path = filepath.Join(stateDir, "ledger.db")
		}
	case BackendSQLite:
		if s.Path == "" {
			s.Path = filepath.Join(stateDir, "ledger.sqlite")
		}
	case BackendFile:
		if s.Path == "" {
			s.Path = filepath.Join(stateDir, "shared_ledger.json")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("invalid store.backend: %s (must be one of redis, http, bolt, sqlite, file, memory)", s.Backend)
	}
	return nil
}

func inferBackend(rawURL string) string {
	if rawURL == "" {
		return BackendFile
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return BackendHTTP
	}
	switch u.Scheme {
	case "redis", "rediss", "unix":
		return BackendRedis
	default:
		return BackendHTTP
	}
}

func (s *SyncConfig) validate() error {
	if s.MaxAttempts == 0 {
		s.MaxAttempts = 5
	}
	if s.OperationTimeout == 0 {
		s.OperationTimeout = 5 * time.Second
	}
	if s.InitialBackoff == 0 {
		s.InitialBackoff = 100 * time.Millisecond
	}
	if s.MaxBackoff == 0 {
		s.MaxBackoff = time.Second
	}

	if s.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be >= 1, got %d", s.MaxAttempts)
	}
	if s.OperationTimeout < 0 || s.InitialBackoff < 0 || s.MaxBackoff < 0 {
		return fmt.Errorf("sync durations must be positive")
	}
	if s.MaxBackoff < s.InitialBackoff {
		return fmt.Errorf("sync.max_backoff (%s) must be >= sync.initial_backoff (%s)", s.MaxBackoff, s.InitialBackoff)
	}
	return nil
}

func (cc *CreditConfig) validate() error {
	if cc.Initial == nil {
		v := ledger.InitialCredits
		cc.Initial = &v
	}
	if cc.PerReferral == nil {
		v := ledger.CreditsPerReferral
		cc.PerReferral = &v
	}
	if cc.DefaultTool == "" {
		cc.DefaultTool = ledger.DefaultTool
	}

	if *cc.Initial < 0 {
		return fmt.Errorf("credits.initial must be >= 0, got %d", *cc.Initial)
	}
	if *cc.PerReferral < 0 {
		return fmt.Errorf("credits.per_referral must be >= 0, got %d", *cc.PerReferral)
	}
	return nil
}

// ApplyEnv overrides settings from the environment. It must run before
// Validate so inferred defaults follow the overridden values.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvStateDir); v != "" {
		c.StateDir = v
	}
	if v := getenv(EnvURL); v != "" {
		c.Store.URL = v
		if getenv(EnvBackend) == "" && c.Store.Backend != BackendRedis && c.Store.Backend != BackendHTTP {
			c.Store.Backend = ""
		}
	}
	if v := getenv(EnvBackend); v != "" {
		c.Store.Backend = v
	}
	if v := getenv(EnvToken); v != "" {
		c.Store.Token = v
	}
	if v := getenv(EnvNamespace); v != "" {
		c.Store.Namespace = v
	}
}

// Policy returns the credit policy described by the credits section.
// Call only on a validated config.
func (c *Config) Policy() credit.Policy {
	return credit.Policy{
		InitialCredits:     *c.Credits.Initial,
		CreditsPerReferral: *c.Credits.PerReferral,
		DefaultTool:        c.Credits.DefaultTool,
	}
}

// Retry returns the sync retry bounds.
func (c *Config) Retry() ledgersync.RetryConfig {
	return ledgersync.RetryConfig{
		MaxAttempts:      c.Sync.MaxAttempts,
		OperationTimeout: c.Sync.OperationTimeout,
		InitialBackoff:   c.Sync.InitialBackoff,
		MaxBackoff:       c.Sync.MaxBackoff,
	}
}

// Path resolves name against the state directory unless it is absolute.
func (c *Config) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.StateDir, name)
}

// IdentityPath returns the location of the instance identity file.
func (c *Config) IdentityPath() string { return c.Path(c.IdentityFile) }

// ReferrerPath returns the location of the referral input file.
func (c *Config) ReferrerPath() string { return c.Path(c.ReferrerFile) }

// RecordPath returns the location of the local credit record.
func (c *Config) RecordPath() string { return c.Path(c.RecordFile) }

// WizardFiles returns the wizard section with every set path resolved
// against the state directory.
func (c *Config) WizardFiles() WizardConfig {
	resolve := func(name string) string {
		if name == "" {
			return ""
		}
		return c.Path(name)
	}
	return WizardConfig{
		InstructionsFile: resolve(c.Wizard.InstructionsFile),
		StarterFile:      resolve(c.Wizard.StarterFile),
		SchemaFile:       resolve(c.Wizard.SchemaFile),
	}
}

// Load reads and validates orchledger.yml from the specified path, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return parse(data, os.Getenv)
}

// LoadOptional behaves like Load but returns the defaults (plus environment
// overrides) when path does not exist. The installer runs before any config
// has been written.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return parse([]byte(`version: "1.0"`), os.Getenv)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return parse(data, os.Getenv)
}

func parse(data []byte, getenv func(string) string) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	config.ApplyEnv(getenv)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// String renders the effective configuration for `orchledger config`.
// The token is never printed.
func (c *Config) String() string {
	shown := *c
	if u, err := url.Parse(shown.Store.URL); err == nil && u.User != nil {
		shown.Store.URL = u.Redacted()
	}
	out, err := yaml.Marshal(&shown)
	if err != nil {
		return fmt.Sprintf("<unprintable config: %v>", err)
	}
	if c.Store.Token != "" {
		out = append(out, []byte("# store token: set via "+EnvToken+"\n")...)
	}
	return string(out)
}
