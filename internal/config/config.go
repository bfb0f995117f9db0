// Package config provides configuration loading and management for the trace
// sync server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "CTS"

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		// Validate the path to prevent path traversal attacks
		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	// ServerName is the name/identifier for this server instance
	// Defaults to "default" if not specified
	ServerName string `yaml:"serverName,omitempty"`

	Server   ServerConfig    `yaml:"server"`
	Database *DatabaseConfig `yaml:"database,omitempty"`
	Ledger   LedgerConfig    `yaml:"ledger"`
	Sync     SyncConfig      `yaml:"sync"`
}

// ServerConfig defines HTTP listener settings
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080"
	Address string `yaml:"address"`

	// ReadTimeout and WriteTimeout bound request handling (e.g. "30s")
	ReadTimeout  string `yaml:"readTimeout,omitempty"`
	WriteTimeout string `yaml:"writeTimeout,omitempty"`
}

// LedgerConfig defines external regulatory ledger client settings
type LedgerConfig struct {
	// Timeout is the per-call timeout for external ledger requests
	// (e.g. "30s"). Credentials are per-site and live in the database,
	// not here.
	Timeout string `yaml:"timeout,omitempty"`

	// MaxTries bounds retry attempts for rate-limited and transient
	// failures
	MaxTries int `yaml:"maxTries,omitempty"`
}

// SyncConfig defines synchronization policy settings
type SyncConfig struct {
	// Interval is the period between scheduled full sync passes
	// (e.g. "30m"). Empty disables scheduled syncs; triggered syncs
	// always work.
	Interval string `yaml:"interval,omitempty"`

	// MaxReconcileAttempts bounds waste reconciliation retries per row
	// before escalation to manual review
	MaxReconcileAttempts int `yaml:"maxReconcileAttempts,omitempty"`

	// OrganizationID scopes scheduled sync passes to one organization's
	// sync-enabled sites. Required when Interval is set.
	OrganizationID string `yaml:"organizationId,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	// Host is the database server hostname or IP address
	Host string `yaml:"host"`

	// Port is the database server port
	Port int `yaml:"port"`

	// User is the database username
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	// This is the recommended approach for production deployments
	// The file should contain only the password with optional trailing whitespace
	PasswordFile string `yaml:"passwordFile,omitempty"`

	// Database is the database name
	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from CTS_DATABASE_PASSWORD environment variable
//
// The password from file will have leading/trailing whitespace trimmed.
func (d *DatabaseConfig) GetPassword() (string, error) {
	// Priority 1: Read from file if specified
	if d.PasswordFile != "" {
		// Use filepath.Clean to prevent path traversal attacks
		cleanPath := filepath.Clean(d.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}

		// Trim whitespace (including newlines) from file content
		password := strings.TrimSpace(string(data))
		return password, nil
	}

	// Priority 2: Check environment variable
	if envPassword := os.Getenv("CTS_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or CTS_DATABASE_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string with proper password handling.
// The password is URL-escaped to handle special characters safely.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	// URL-escape the password to handle special characters
	escapedPassword := url.QueryEscape(password)

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User,
		escapedPassword,
		d.Host,
		d.Port,
		d.Database,
		sslMode,
	)

	return connString, nil
}

// LoadConfig loads and parses configuration from a YAML file
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	// As of now, this is required because there's no other options to load
	// configuration. Once we add more options, we can remove this check.
	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	// Read the entire file into memory
	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse YAML content
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Validate the config
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetServerName returns the server name, using "default" if not specified
func (c *Config) GetServerName() string {
	if c.ServerName == "" {
		return "default"
	}
	return c.ServerName
}

// GetLedgerTimeout returns the parsed per-call ledger timeout, defaulting to
// 30 seconds.
func (c *Config) GetLedgerTimeout() time.Duration {
	return parseDurationOr(c.Ledger.Timeout, 30*time.Second)
}

// GetReadTimeout returns the parsed server read timeout, defaulting to 10
// seconds.
func (c *Config) GetReadTimeout() time.Duration {
	return parseDurationOr(c.Server.ReadTimeout, 10*time.Second)
}

// GetWriteTimeout returns the parsed server write timeout, defaulting to 15
// seconds.
func (c *Config) GetWriteTimeout() time.Duration {
	return parseDurationOr(c.Server.WriteTimeout, 15*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// GetSyncInterval returns the parsed scheduled sync interval and whether
// scheduled syncs are enabled.
func (c *Config) GetSyncInterval() (time.Duration, bool) {
	if c.Sync.Interval == "" {
		return 0, false
	}
	d, err := time.ParseDuration(c.Sync.Interval)
	if err != nil {
		return 0, false
	}
	return d, true
}

// GetSyncOrganizationID returns the organization scheduled syncs run for.
// Validation guarantees it parses whenever an interval is configured.
func (c *Config) GetSyncOrganizationID() uuid.UUID {
	id, err := uuid.Parse(c.Sync.OrganizationID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	for _, tc := range []struct {
		name  string
		value string
	}{
		{"server.readTimeout", c.Server.ReadTimeout},
		{"server.writeTimeout", c.Server.WriteTimeout},
		{"ledger.timeout", c.Ledger.Timeout},
		{"sync.interval", c.Sync.Interval},
	} {
		if tc.value == "" {
			continue
		}
		if _, err := time.ParseDuration(tc.value); err != nil {
			return fmt.Errorf("%s must be a valid duration (e.g., '30s', '1h'): %w", tc.name, err)
		}
	}

	if c.Ledger.MaxTries < 0 {
		return fmt.Errorf("ledger.maxTries must not be negative")
	}
	if c.Sync.MaxReconcileAttempts < 0 {
		return fmt.Errorf("sync.maxReconcileAttempts must not be negative")
	}
	if c.Sync.Interval != "" {
		if c.Sync.OrganizationID == "" {
			return fmt.Errorf("sync.organizationId is required when sync.interval is set")
		}
		if _, err := uuid.Parse(c.Sync.OrganizationID); err != nil {
			return fmt.Errorf("sync.organizationId must be a valid UUID: %w", err)
		}
	}

	if c.Database != nil {
		if err := c.validateDatabaseConfig(); err != nil {
			return err
		}
	}

	return nil
}

// validateDatabaseConfig validates the database connection settings
func (c *Config) validateDatabaseConfig() error {
	if c.Database.Host == "" {
		return fmt.Errorf("database.host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("database.port must be between 1 and 65535")
	}
	if c.Database.User == "" {
		return fmt.Errorf("database.user is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database.database is required")
	}
	if c.Database.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Database.ConnMaxLifetime); err != nil {
			return fmt.Errorf("database.connMaxLifetime must be a valid duration (e.g., '1h', '30m'): %w", err)
		}
	}
	return nil
}
