// Package introspect reads entity key metadata from a live database.
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"

	"github.com/Rana718/seedgraph/internal/schema"
)

// SQLite builds a schema from the tables of a SQLite database using PRAGMA table_info and
// PRAGMA foreign_key_list.
func SQLite(ctx context.Context, db *sql.DB) (*schema.Schema, error) {
	names, err := sqliteTables(ctx, db)
	if err != nil {
		return nil, err
	}

	b := schema.NewBuilder()
	for _, name := range names {
		e, err := sqliteEntity(ctx, db, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read table %s: %w", name, err)
		}
		b.Add(e)
	}
	return b.Build()
}

func sqliteTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := squirrel.Select("name").
		From("sqlite_master").
		Where(squirrel.Eq{"type": "table"}).
		Where(squirrel.NotLike{"name": "sqlite_%"}).
		OrderBy("name").
		RunWith(db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// pragma builds a PRAGMA call for table. PRAGMA does not accept bound parameters.
func pragma(fn, table string) string {
	return fmt.Sprintf(`PRAGMA %s("%s")`, fn, strings.ReplaceAll(table, `"`, `""`))
}

func sqliteEntity(ctx context.Context, db *sql.DB, table string) (*schema.Entity, error) {
	rows, err := db.QueryContext(ctx, pragma("table_info", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	e := &schema.Entity{Name: table}
	pkPos := make(map[int]string)
	for rows.Next() {
		var (
			cid      int
			name     string
			dataType string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		e.Columns = append(e.Columns, schema.Column{
			Name:     name,
			Type:     schema.ParseSQLType(dataType),
			Nullable: notNull == 0 && pk == 0,
		})
		if pk > 0 {
			pkPos[pk] = name
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := 1; i <= len(pkPos); i++ {
		e.PrimaryKey = append(e.PrimaryKey, pkPos[i])
	}

	fks, err := sqliteForeignKeys(ctx, db, table)
	if err != nil {
		return nil, err
	}
	e.ForeignKeys = fks
	schema.NameNavigations(e)
	return e, nil
}

func sqliteForeignKeys(ctx context.Context, db *sql.DB, table string) ([]schema.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, pragma("foreign_key_list", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		fks  []schema.ForeignKey
		byID = make(map[int]int)
	)
	for rows.Next() {
		var (
			id, seq                         int
			principal, from                 string
			to                              sql.NullString
			onUpdate, onDelete, matchClause string
		)
		if err := rows.Scan(&id, &seq, &principal, &from, &to, &onUpdate, &onDelete, &matchClause); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key: %w", err)
		}
		i, ok := byID[id]
		if !ok {
			i = len(fks)
			byID[id] = i
			fks = append(fks, schema.ForeignKey{Principal: principal})
		}
		// a NULL target column means the principal's primary key
		fks[i].Columns = append(fks[i].Columns, schema.ColumnMapping{Dependent: from, Principal: to.String})
	}
	return fks, rows.Err()
}
