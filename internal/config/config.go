package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/Rana718/seedgraph/internal/keys"
	"github.com/Rana718/seedgraph/internal/schema"
)

const FileName = "seedgraph.config.json"

type Config struct {
	SchemaDir    string         `json:"schema_dir" mapstructure:"schema_dir"`
	SchemaSource string         `json:"schema_source" mapstructure:"schema_source"` // ddl or database
	Database     Database       `json:"database" mapstructure:"database"`
	Generation   Generation     `json:"generation" mapstructure:"generation"`
	Counts       map[string]int `json:"counts,omitempty" mapstructure:"counts"`
	Log          Log            `json:"log" mapstructure:"log"`
}

type Database struct {
	Provider string `json:"provider" mapstructure:"provider"`
	URLEnv   string `json:"url_env" mapstructure:"url_env"`
	Driver   string `json:"driver,omitempty" mapstructure:"driver"` // e.g. "postgres" selects lib/pq over pgx
	Schema   string `json:"schema,omitempty" mapstructure:"schema"` // information_schema scope
}

type Generation struct {
	ExistingReferenceChance  float64 `json:"existing_reference_chance" mapstructure:"existing_reference_chance"`
	RecursionLimit           int     `json:"recursion_limit" mapstructure:"recursion_limit"`
	AllowExistingForeignKeys bool    `json:"allow_existing_foreign_keys" mapstructure:"allow_existing_foreign_keys"`
	RequireRegistration      bool    `json:"require_registration,omitempty" mapstructure:"require_registration"`
	MaxUniqueDraws           int     `json:"max_unique_draws" mapstructure:"max_unique_draws"`
	NullChance               float64 `json:"null_chance" mapstructure:"null_chance"`
	Seed                     int64   `json:"seed,omitempty" mapstructure:"seed"`
}

type Log struct {
	Level string `json:"level" mapstructure:"level"`
	File  string `json:"file,omitempty" mapstructure:"file"`
}

func Load() (*Config, error) {
	var cfg Config

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Set defaults
	if cfg.SchemaDir == "" {
		cfg.SchemaDir = "db/schema"
	}
	if cfg.SchemaSource == "" {
		cfg.SchemaSource = "ddl"
	}
	if cfg.Database.Provider == "" {
		cfg.Database.Provider = "sqlite"
	}
	if cfg.Database.URLEnv == "" {
		cfg.Database.URLEnv = "DATABASE_URL"
	}
	// zero is a meaningful value for these, so only unset keys get the default
	if !viper.IsSet("generation.existing_reference_chance") {
		cfg.Generation.ExistingReferenceChance = keys.DefaultExistingReferenceChance
	}
	if !viper.IsSet("generation.recursion_limit") {
		cfg.Generation.RecursionLimit = keys.DefaultRecursionLimit
	}
	if !viper.IsSet("generation.allow_existing_foreign_keys") {
		cfg.Generation.AllowExistingForeignKeys = true
	}
	if !viper.IsSet("generation.null_chance") {
		cfg.Generation.NullChance = 0.2
	}
	if cfg.Generation.MaxUniqueDraws == 0 {
		cfg.Generation.MaxUniqueDraws = keys.DefaultMaxUniqueDraws
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	return &cfg, nil
}

func (c *Config) GetDatabaseURL() (string, error) {
	dbURL := os.Getenv(c.Database.URLEnv)
	if dbURL == "" {
		return "", fmt.Errorf("database URL not found in environment variable %s", c.Database.URLEnv)
	}
	return dbURL, nil
}

func (c *Config) Validate() error {
	supportedProviders := []string{"postgresql", "postgres", "mysql", "sqlite", "sqlite3"}
	supported := false
	for _, provider := range supportedProviders {
		if c.Database.Provider == provider {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported database provider: %s. Supported providers: %v", c.Database.Provider, supportedProviders)
	}

	if c.SchemaSource != "ddl" && c.SchemaSource != "database" {
		return fmt.Errorf("schema_source must be \"ddl\" or \"database\", got %q", c.SchemaSource)
	}
	if c.SchemaSource == "ddl" && c.SchemaDir == "" {
		return fmt.Errorf("schema_dir cannot be empty")
	}
	if c.Generation.NullChance < 0 || c.Generation.NullChance > 1 {
		return fmt.Errorf("generation.null_chance must be within [0, 1], got %v", c.Generation.NullChance)
	}
	for entity, n := range c.Counts {
		if n < 0 {
			return fmt.Errorf("count for %s must not be negative, got %d", entity, n)
		}
	}
	if err := c.Settings().Validate(); err != nil {
		return fmt.Errorf("invalid generation settings: %w", err)
	}
	return nil
}

// Settings returns the key seeding settings described by the generation section.
func (c *Config) Settings() keys.Settings {
	return keys.Settings{
		ExistingReferenceChance:  c.Generation.ExistingReferenceChance,
		RecursionLimit:           c.Generation.RecursionLimit,
		AllowExistingForeignKeys: c.Generation.AllowExistingForeignKeys,
		MaxUniqueDraws:           c.Generation.MaxUniqueDraws,
	}
}

// GetSchemaFiles returns all .sql files in the schema directory
func (c *Config) GetSchemaFiles() ([]string, error) {
	return schema.SchemaFiles(c.SchemaDir)
}

// CountsFor maps the configured counts onto entity names. Viper lowercases map keys,
// so names are matched case-insensitively.
func (c *Config) CountsFor(entities []string) (map[string]int, error) {
	byLower := make(map[string]string, len(entities))
	for _, name := range entities {
		byLower[strings.ToLower(name)] = name
	}
	counts := make(map[string]int, len(c.Counts))
	for key, n := range c.Counts {
		name, ok := byLower[strings.ToLower(key)]
		if !ok {
			return nil, fmt.Errorf("counts references unknown entity %q", key)
		}
		counts[name] = n
	}
	return counts, nil
}
