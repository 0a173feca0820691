package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Rana718/seedgraph/internal/record"
	"github.com/Rana718/seedgraph/internal/schema"
)

// Dialect holds what differs between database providers.
type Dialect struct {
	Provider    string
	Driver      string
	Placeholder squirrel.PlaceholderFormat
	quote       string
}

// Quote quotes an identifier.
func (d Dialect) Quote(name string) string {
	return d.quote + strings.ReplaceAll(name, d.quote, d.quote+d.quote) + d.quote
}

// DialectFor maps a provider name onto its driver and placeholder style. A non-empty
// driver overrides the default driver, e.g. "postgres" selects lib/pq.
func DialectFor(provider, driver string) (Dialect, error) {
	var d Dialect
	switch provider {
	case "postgresql", "postgres":
		d = Dialect{Provider: "postgresql", Driver: "pgx", Placeholder: squirrel.Dollar, quote: `"`}
	case "mysql":
		d = Dialect{Provider: "mysql", Driver: "mysql", Placeholder: squirrel.Question, quote: "`"}
	case "sqlite", "sqlite3":
		d = Dialect{Provider: "sqlite", Driver: "sqlite3", Placeholder: squirrel.Question, quote: `"`}
	default:
		return Dialect{}, fmt.Errorf("unsupported database provider: %s", provider)
	}
	if driver != "" {
		d.Driver = driver
	}
	return d, nil
}

// Open connects to url with the driver of d and verifies the connection.
func Open(ctx context.Context, d Dialect, url string) (*sql.DB, error) {
	dsn := url
	switch d.Provider {
	case "sqlite":
		dsn = strings.TrimPrefix(strings.TrimPrefix(url, "sqlite://"), "file:")
	case "mysql":
		cfg, err := mysql.ParseDSN(strings.TrimPrefix(url, "mysql://"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse MySQL DSN: %w", err)
		}
		cfg.ParseTime = true
		dsn = cfg.FormatDSN()
	}

	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.Provider, err)
	}
	if d.Provider == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// SQL is a Store backed by a database/sql connection. Each Save inserts its records in
// a transaction of its own.
type SQL struct {
	db      *sql.DB
	schema  *schema.Schema
	dialect Dialect
	qb      squirrel.StatementBuilderType
}

func NewSQL(db *sql.DB, s *schema.Schema, d Dialect) *SQL {
	return &SQL{
		db:      db,
		schema:  s,
		dialect: d,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder),
	}
}

func (s *SQL) Save(ctx context.Context, recs ...*record.Record) (err error) {
	if len(recs) == 0 {
		return nil
	}
	for _, rec := range recs {
		if _, ok := s.schema.Entity(rec.EntityName()); !ok {
			return fmt.Errorf("failed to save %s: entity not in schema", rec.EntityName())
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
			}
		}
	}()

	for _, rec := range recs {
		if err = s.insert(ctx, tx, rec); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQL) insert(ctx context.Context, tx *sql.Tx, rec *record.Record) error {
	e := rec.Entity()
	cols := make([]string, len(e.Columns))
	vals := make([]any, len(e.Columns))
	for i, c := range e.Columns {
		cols[i] = s.dialect.Quote(c.Name)
		vals[i] = rec.Get(c.Name)
	}
	_, err := s.qb.Insert(s.dialect.Quote(e.Name)).
		Columns(cols...).
		Values(vals...).
		RunWith(tx).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert into %s: %w", e.Name, err)
	}
	return nil
}

func (s *SQL) Find(ctx context.Context, entity string, key []any) (*record.Record, error) {
	e, ok := s.schema.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("failed to find %s: entity not in schema", entity)
	}
	if len(key) != len(e.PrimaryKey) {
		return nil, fmt.Errorf("failed to find %s: want %d key values, got %d", entity, len(e.PrimaryKey), len(key))
	}
	where := squirrel.Eq{}
	for i, pk := range e.PrimaryKey {
		where[s.dialect.Quote(pk)] = key[i]
	}
	rows, err := s.selectFrom(e).Where(where).Limit(1).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entity, err)
	}
	records, err := scanRecords(e, rows)
	if err != nil || len(records) == 0 {
		return nil, err
	}
	return records[0], nil
}

func (s *SQL) Query(ctx context.Context, entity string) ([]*record.Record, error) {
	e, ok := s.schema.Entity(entity)
	if !ok {
		return nil, fmt.Errorf("failed to query %s: entity not in schema", entity)
	}
	q := s.selectFrom(e)
	for _, pk := range e.PrimaryKey {
		q = q.OrderBy(s.dialect.Quote(pk))
	}
	rows, err := q.RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", entity, err)
	}
	return scanRecords(e, rows)
}

func (s *SQL) selectFrom(e *schema.Entity) squirrel.SelectBuilder {
	cols := make([]string, len(e.Columns))
	for i, c := range e.Columns {
		cols[i] = s.dialect.Quote(c.Name)
	}
	return s.qb.Select(cols...).From(s.dialect.Quote(e.Name))
}

func scanRecords(e *schema.Entity, rows *sql.Rows) ([]*record.Record, error) {
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		values := make([]any, len(e.Columns))
		ptrs := make([]any, len(e.Columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", e.Name, err)
		}
		row := make(map[string]any, len(e.Columns))
		for i, c := range e.Columns {
			row[c.Name] = values[i]
		}
		rec, err := record.FromRow(e, row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s rows: %w", e.Name, err)
	}
	return out, nil
}

// ApplyDDL executes every statement of ddl in order. Comments are dropped.
func ApplyDDL(ctx context.Context, db *sql.DB, ddl string) error {
	for _, stmt := range schema.Statements(ddl) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}
