package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"github.com/Rana718/seedgraph/internal/config"
	"github.com/Rana718/seedgraph/internal/faker"
	"github.com/Rana718/seedgraph/internal/fixture"
	"github.com/Rana718/seedgraph/internal/introspect"
	"github.com/Rana718/seedgraph/internal/logger"
	"github.com/Rana718/seedgraph/internal/schema"
	"github.com/Rana718/seedgraph/internal/store"
)

// session is the state shared by the commands of one invocation.
type session struct {
	cfg     *config.Config
	log     *logrus.Logger
	dialect store.Dialect
	db      *sql.DB
	schema  *schema.Schema
}

// openSession loads config and schema. The database is opened when needDB is set or the
// schema has to be introspected; applySchema executes the DDL files against it first.
func openSession(ctx context.Context, needDB, applySchema bool) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	d, err := store.DialectFor(cfg.Database.Provider, cfg.Database.Driver)
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: log, dialect: d}
	if needDB || applySchema || cfg.SchemaSource == "database" {
		dbURL, err := cfg.GetDatabaseURL()
		if err != nil {
			return nil, err
		}
		if s.db, err = store.Open(ctx, d, dbURL); err != nil {
			return nil, err
		}
	}
	if applySchema {
		if err := s.applySchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}
	if s.schema, err = s.loadSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *session) Close() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *session) applySchema(ctx context.Context) error {
	files, err := s.cfg.GetSchemaFiles()
	if err != nil {
		return err
	}
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", file, err)
		}
		if err := store.ApplyDDL(ctx, s.db, string(content)); err != nil {
			return fmt.Errorf("failed to apply %s: %w", file, err)
		}
	}
	color.Green("✅ Applied %d schema file(s)", len(files))
	return nil
}

func (s *session) loadSchema(ctx context.Context) (*schema.Schema, error) {
	if s.cfg.SchemaSource == "ddl" {
		files, err := s.cfg.GetSchemaFiles()
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no .sql files found in %s", s.cfg.SchemaDir)
		}
		return schema.LoadDDLFiles(files)
	}
	if s.dialect.Provider == "sqlite" {
		return introspect.SQLite(ctx, s.db)
	}
	return introspect.InformationSchema(ctx, s.db, s.dialect, s.cfg.Database.Schema)
}

func (s *session) generator() (*fixture.Generator, error) {
	gen := s.cfg.Generation
	values := faker.New(gen.Seed)
	values.SetNullChance(gen.NullChance)

	opts := []fixture.Option{
		fixture.WithValues(values),
		fixture.WithLogger(s.log),
		fixture.WithSeed(gen.Seed),
		fixture.WithSettings(s.cfg.Settings()),
	}
	if gen.RequireRegistration {
		opts = append(opts, fixture.RequireRegistration())
	}
	return fixture.New(s.schema, store.NewSQL(s.db, s.schema, s.dialect), opts...)
}
