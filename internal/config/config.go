// Package config loads the sqlbridge CLI configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/gandaldf/sqlbridge"
)

// Keys shared between flags, environment variables and the config file.
const (
	KeyDialect       = "dialect"
	KeyDatabaseURL   = "database_url"
	KeyMaxParams     = "max_params"
	KeyPlanCacheSize = "plan_cache_size"
	KeyIsolation     = "isolation"
	KeyVerbose       = "verbose"
)

// Config holds the CLI configuration
type Config struct {
	Dialect       string
	DatabaseURL   string
	MaxParams     int
	PlanCacheSize int
	Isolation     string
	Verbose       bool
}

// Load resolves the configuration, lowest priority first: defaults,
// sqlbridge.yaml in dir, SQLBRIDGE_* environment variables (after loading
// .env and .env.local from dir), then any flags already bound to v.
func Load(v *viper.Viper, dir string) (*Config, error) {
	if err := loadDotEnv(dir); err != nil {
		return nil, err
	}

	v.SetConfigName("sqlbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)

	v.SetEnvPrefix("SQLBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDialect, "postgresql")
	v.SetDefault(KeyMaxParams, 0)
	v.SetDefault(KeyPlanCacheSize, 0)
	v.SetDefault(KeyVerbose, false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := &Config{
		Dialect:       v.GetString(KeyDialect),
		DatabaseURL:   v.GetString(KeyDatabaseURL),
		MaxParams:     v.GetInt(KeyMaxParams),
		PlanCacheSize: v.GetInt(KeyPlanCacheSize),
		Isolation:     v.GetString(KeyIsolation),
		Verbose:       v.GetBool(KeyVerbose),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values the library would reject later.
func (c *Config) Validate() error {
	if _, err := sqlbridge.ParseDialect(c.Dialect); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Isolation != "" {
		if _, err := sqlbridge.ParseIsolationLevel(c.Isolation); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	if c.PlanCacheSize < 0 {
		return fmt.Errorf("config: plan_cache_size must not be negative, got %d", c.PlanCacheSize)
	}
	return nil
}

// Bridge returns a Bridge configured from c.
func (c *Config) Bridge(cfg sqlbridge.Config) (*sqlbridge.Bridge, error) {
	d, err := sqlbridge.ParseDialect(c.Dialect)
	if err != nil {
		return nil, err
	}
	cfg.MaxParams = c.MaxParams
	cfg.PlanCacheSize = c.PlanCacheSize
	return sqlbridge.New(d, cfg), nil
}

// loadDotEnv loads .env without overriding the environment, then
// .env.local with priority over it.
func loadDotEnv(dir string) error {
	env := filepath.Join(dir, ".env")
	if _, err := os.Stat(env); err == nil {
		if err := godotenv.Load(env); err != nil {
			return fmt.Errorf("config: load %s: %w", env, err)
		}
	}
	local := filepath.Join(dir, ".env.local")
	if _, err := os.Stat(local); err == nil {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("config: load %s: %w", local, err)
		}
	}
	return nil
}
