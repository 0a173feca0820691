package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func loadFile(t *testing.T, content string) *Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	viper.SetConfigFile(path)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("Failed to read config: %v", err)
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadFile(t, `{}`)

	if cfg.SchemaDir != "db/schema" {
		t.Errorf("Expected schema_dir to be 'db/schema', got '%s'", cfg.SchemaDir)
	}
	if cfg.SchemaSource != "ddl" {
		t.Errorf("Expected schema_source to be 'ddl', got '%s'", cfg.SchemaSource)
	}
	if cfg.Database.Provider != "sqlite" {
		t.Errorf("Expected database provider to be 'sqlite', got '%s'", cfg.Database.Provider)
	}
	if cfg.Database.URLEnv != "DATABASE_URL" {
		t.Errorf("Expected database url_env to be 'DATABASE_URL', got '%s'", cfg.Database.URLEnv)
	}
	if cfg.Generation.ExistingReferenceChance != 0.7 {
		t.Errorf("Expected existing_reference_chance 0.7, got %v", cfg.Generation.ExistingReferenceChance)
	}
	if cfg.Generation.RecursionLimit != 5 {
		t.Errorf("Expected recursion_limit 5, got %d", cfg.Generation.RecursionLimit)
	}
	if !cfg.Generation.AllowExistingForeignKeys {
		t.Error("Expected allow_existing_foreign_keys to default to true")
	}
	if cfg.Generation.MaxUniqueDraws != 1000 {
		t.Errorf("Expected max_unique_draws 1000, got %d", cfg.Generation.MaxUniqueDraws)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Expected log level 'info', got '%s'", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected defaults to validate, got %v", err)
	}
}

func TestLoadKeepsExplicitZeroValues(t *testing.T) {
	cfg := loadFile(t, `{
		"database": {"provider": "postgresql", "driver": "postgres"},
		"generation": {
			"existing_reference_chance": 0,
			"recursion_limit": 0,
			"allow_existing_foreign_keys": false,
			"null_chance": 0
		},
		"counts": {"Region": 3, "Store": 10}
	}`)

	if cfg.Generation.ExistingReferenceChance != 0 {
		t.Errorf("Expected existing_reference_chance 0, got %v", cfg.Generation.ExistingReferenceChance)
	}
	if cfg.Generation.RecursionLimit != 0 {
		t.Errorf("Expected recursion_limit 0, got %d", cfg.Generation.RecursionLimit)
	}
	if cfg.Generation.AllowExistingForeignKeys {
		t.Error("Expected allow_existing_foreign_keys to stay false")
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Expected driver 'postgres', got '%s'", cfg.Database.Driver)
	}

	counts, err := cfg.CountsFor([]string{"Region", "Store", "Sale"})
	if err != nil {
		t.Fatalf("CountsFor failed: %v", err)
	}
	if counts["Region"] != 3 || counts["Store"] != 10 {
		t.Errorf("Unexpected counts: %v", counts)
	}
	if _, err := cfg.CountsFor([]string{"Region"}); err == nil {
		t.Error("Expected unknown entity in counts to fail")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.Database.Provider = "oracle" }},
		{"schema source", func(c *Config) { c.SchemaSource = "yaml" }},
		{"chance", func(c *Config) { c.Generation.ExistingReferenceChance = 1.5 }},
		{"null chance", func(c *Config) { c.Generation.NullChance = -1 }},
		{"recursion limit", func(c *Config) { c.Generation.RecursionLimit = -1 }},
		{"count", func(c *Config) { c.Counts = map[string]int{"region": -2} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadFile(t, `{}`)
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Expected validation to fail for invalid %s", tt.name)
			}
		})
	}
}

func TestGetDatabaseURL(t *testing.T) {
	cfg := loadFile(t, `{"database": {"url_env": "SEEDGRAPH_TEST_URL"}}`)

	if _, err := cfg.GetDatabaseURL(); err == nil {
		t.Error("Expected missing environment variable to fail")
	}
	t.Setenv("SEEDGRAPH_TEST_URL", "sqlite://test.db")
	url, err := cfg.GetDatabaseURL()
	if err != nil {
		t.Fatalf("GetDatabaseURL failed: %v", err)
	}
	if url != "sqlite://test.db" {
		t.Errorf("Expected 'sqlite://test.db', got '%s'", url)
	}
}

func TestGetSchemaFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"002_stores.sql", "001_regions.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("-- empty"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	cfg := loadFile(t, `{}`)
	cfg.SchemaDir = dir

	files, err := cfg.GetSchemaFiles()
	if err != nil {
		t.Fatalf("GetSchemaFiles failed: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "001_regions.sql" {
		t.Errorf("Unexpected schema files: %v", files)
	}
}
