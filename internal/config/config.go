package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/liamcoop/storecheck/internal/logger"
	"github.com/liamcoop/storecheck/rules"
	"gopkg.in/yaml.v3"
)

// Unlock flag backends
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config represents the storecheck configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Checker  CheckerConfig  `yaml:"checker"`
	Unlock   UnlockConfig   `yaml:"unlock"`
	Rules    RulesConfig    `yaml:"rules"`
	Purchase PurchaseConfig `yaml:"purchase"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            int    `yaml:"port"`
	LogLevel        string `yaml:"log_level"`
	ShutdownTimeout int    `yaml:"shutdown_timeout"` // seconds
	// TrustProxy reads the client IP from X-Forwarded-For; only safe behind
	// a proxy that sets that header itself
	TrustProxy bool `yaml:"trust_proxy"`
}

// CheckerConfig holds evaluation settings
type CheckerConfig struct {
	// ReferencePolicy is "refuse" or "placeholder"
	ReferencePolicy string `yaml:"reference_policy"`
}

// UnlockConfig selects where the unlock flag is persisted
type UnlockConfig struct {
	Backend    string `yaml:"backend"`
	Key        string `yaml:"key"`
	SQLitePath string `yaml:"sqlite_path"`
	RedisAddr  string `yaml:"redis_addr"`
	RedisDB    int    `yaml:"redis_db"`
}

// RulesConfig holds expression rule settings
type RulesConfig struct {
	// Store is "memory" or "postgres"
	Store string `yaml:"store"`
	// File is an optional YAML file of definitions seeded at startup
	File     string `yaml:"file"`
	CacheTTL int    `yaml:"cache_ttl"` // seconds, 0 = until invalidated
}

// PurchaseConfig holds payment provider settings
type PurchaseConfig struct {
	BaseURL    string  `yaml:"base_url"`
	Timeout    int     `yaml:"timeout"` // seconds
	MaxRetries int     `yaml:"max_retries"`
	RateLimit  float64 `yaml:"rate_limit"` // verify and checkout requests per second per client
	RateBurst  int     `yaml:"rate_burst"`
	// VerifyCheckout re-checks the buyer's email with the provider before
	// honouring a checkout completion event
	VerifyCheckout bool `yaml:"verify_checkout"`
}

// DefaultStateDir returns ~/.storecheck, or the working directory when the
// home directory is unknown.
func DefaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".storecheck")
}

// expandHome replaces a leading ~/ with the user's home directory
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}

// DefaultConfigPath returns the default config file path (~/.storecheck/config.yaml).
func DefaultConfigPath() string {
	return filepath.Join(DefaultStateDir(), "config.yaml")
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			LogLevel:        "info",
			ShutdownTimeout: 30,
		},
		Checker: CheckerConfig{
			ReferencePolicy: string(rules.ReferenceRefuse),
		},
		Unlock: UnlockConfig{
			Backend:    BackendSQLite,
			Key:        "steamcheck_unlocked",
			SQLitePath: filepath.Join(DefaultStateDir(), "state.db"),
			RedisAddr:  "localhost:6379",
		},
		Rules: RulesConfig{
			Store: BackendMemory,
		},
		Purchase: PurchaseConfig{
			BaseURL:        "https://api.paddle.com",
			Timeout:        10,
			MaxRetries:     3,
			RateLimit:      1,
			RateBurst:      5,
			VerifyCheckout: true,
		},
	}
}

// ReferencePolicy returns the parsed reference policy
func (c *Config) ReferencePolicy() rules.ReferencePolicy {
	p, err := rules.ParseReferencePolicy(c.Checker.ReferencePolicy)
	if err != nil {
		return rules.ReferenceRefuse
	}
	return p
}

// ShutdownTimeout returns the server shutdown timeout as a duration
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeout) * time.Second
}

// NeedsDatabase reports whether any component is configured for PostgreSQL
func (c *Config) NeedsDatabase() bool {
	return c.Unlock.Backend == BackendPostgres || c.Rules.Store == BackendPostgres
}

// Validate checks all Config fields and returns a multi-error report
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port: must be 1-65535 (got %d)", c.Server.Port))
	}
	if _, err := logger.ParseLevel(c.Server.LogLevel); err != nil {
		errs = append(errs, fmt.Sprintf("server.log_level: unknown log level %q", c.Server.LogLevel))
	}
	if c.Server.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout: must be >= 0 (got %d)", c.Server.ShutdownTimeout))
	}

	if _, err := rules.ParseReferencePolicy(c.Checker.ReferencePolicy); err != nil {
		errs = append(errs, "checker.reference_policy: "+err.Error())
	}

	switch c.Unlock.Backend {
	case BackendMemory, BackendPostgres:
	case BackendSQLite:
		if c.Unlock.SQLitePath == "" {
			errs = append(errs, "unlock.sqlite_path: required for the sqlite backend")
		}
	case BackendRedis:
		if c.Unlock.RedisAddr == "" {
			errs = append(errs, "unlock.redis_addr: required for the redis backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("unlock.backend: must be memory, sqlite, postgres or redis (got %q)", c.Unlock.Backend))
	}
	if c.Unlock.Key == "" {
		errs = append(errs, "unlock.key: must not be empty")
	}

	switch c.Rules.Store {
	case BackendMemory, BackendPostgres:
	default:
		errs = append(errs, fmt.Sprintf("rules.store: must be memory or postgres (got %q)", c.Rules.Store))
	}
	if c.Rules.CacheTTL < 0 {
		errs = append(errs, fmt.Sprintf("rules.cache_ttl: must be >= 0 (got %d)", c.Rules.CacheTTL))
	}

	if u, err := url.Parse(c.Purchase.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errs = append(errs, fmt.Sprintf("purchase.base_url: must be a valid http/https URL (got %q)", c.Purchase.BaseURL))
	}
	if c.Purchase.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("purchase.timeout: must be positive (got %d)", c.Purchase.Timeout))
	}
	if c.Purchase.MaxRetries < 0 {
		errs = append(errs, fmt.Sprintf("purchase.max_retries: must be >= 0 (got %d)", c.Purchase.MaxRetries))
	}
	if c.Purchase.RateLimit <= 0 || c.Purchase.RateBurst < 1 {
		errs = append(errs, "purchase.rate_limit and purchase.rate_burst: must be positive")
	}

	if len(errs) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("config validation failed:\n")
	for i, e := range errs {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e)
	}
	return errors.New(sb.String())
}

// isUnknownFieldError returns true if the error is from yaml.Decoder.KnownFields(true)
func isUnknownFieldError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found in type")
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
// Load does NOT call Validate; apply flag overrides first.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		if !isUnknownFieldError(err) {
			return nil, fmt.Errorf("config parse error: %w", err)
		}
		logger.Warn("config has unknown fields (ignored)", "path", path, "error", err)
		cfg = DefaultConfig()
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config parse error: %w", err)
		}
	}

	cfg.Unlock.SQLitePath = expandHome(cfg.Unlock.SQLitePath)
	cfg.Rules.File = expandHome(cfg.Rules.File)
	return cfg, nil
}
