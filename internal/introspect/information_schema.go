package introspect

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/squirrel"

	"github.com/Rana718/seedgraph/internal/schema"
	"github.com/Rana718/seedgraph/internal/store"
)

// InformationSchema builds a schema from the base tables of schemaName on a PostgreSQL or
// MySQL server. An empty schemaName means "public" on PostgreSQL and the connection's
// current database on MySQL.
func InformationSchema(ctx context.Context, db *sql.DB, d store.Dialect, schemaName string) (*schema.Schema, error) {
	in := &infoSchema{
		d:  d,
		qb: squirrel.StatementBuilder.PlaceholderFormat(d.Placeholder).RunWith(db),
	}
	switch {
	case schemaName != "":
		in.scope = func(col string) squirrel.Sqlizer { return squirrel.Eq{col: schemaName} }
	case d.Provider == "mysql":
		in.scope = func(col string) squirrel.Sqlizer { return squirrel.Expr(col + " = DATABASE()") }
	default:
		in.scope = func(col string) squirrel.Sqlizer { return squirrel.Eq{col: "public"} }
	}

	tables, err := in.tables(ctx)
	if err != nil {
		return nil, err
	}
	if err := in.columns(ctx, tables); err != nil {
		return nil, err
	}
	if err := in.primaryKeys(ctx, tables); err != nil {
		return nil, err
	}
	if err := in.foreignKeys(ctx, tables); err != nil {
		return nil, err
	}

	b := schema.NewBuilder()
	for _, name := range in.order {
		e := tables[name]
		schema.NameNavigations(e)
		b.Add(e)
	}
	return b.Build()
}

type infoSchema struct {
	d     store.Dialect
	qb    squirrel.StatementBuilderType
	scope func(col string) squirrel.Sqlizer
	order []string
}

func (in *infoSchema) tables(ctx context.Context) (map[string]*schema.Entity, error) {
	rows, err := in.qb.Select("table_name").
		From("information_schema.tables").
		Where(in.scope("table_schema")).
		Where(squirrel.Eq{"table_type": "BASE TABLE"}).
		OrderBy("table_name").
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]*schema.Entity)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables[name] = &schema.Entity{Name: name}
		in.order = append(in.order, name)
	}
	return tables, rows.Err()
}

func (in *infoSchema) columns(ctx context.Context, tables map[string]*schema.Entity) error {
	rows, err := in.qb.Select("table_name", "column_name", "data_type", "is_nullable").
		From("information_schema.columns").
		Where(in.scope("table_schema")).
		OrderBy("table_name", "ordinal_position").
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list columns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, name, dataType, nullable string
		if err := rows.Scan(&table, &name, &dataType, &nullable); err != nil {
			return fmt.Errorf("failed to scan column: %w", err)
		}
		e, ok := tables[table]
		if !ok {
			continue // views
		}
		e.Columns = append(e.Columns, schema.Column{
			Name:     name,
			Type:     schema.ParseSQLType(dataType),
			Nullable: nullable == "YES",
		})
	}
	return rows.Err()
}

func (in *infoSchema) primaryKeys(ctx context.Context, tables map[string]*schema.Entity) error {
	rows, err := in.qb.Select("kcu.table_name", "kcu.column_name").
		From("information_schema.table_constraints tc").
		Join("information_schema.key_column_usage kcu ON tc.constraint_name = kcu.constraint_name" +
			" AND tc.table_schema = kcu.table_schema AND tc.table_name = kcu.table_name").
		Where(squirrel.Eq{"tc.constraint_type": "PRIMARY KEY"}).
		Where(in.scope("tc.table_schema")).
		OrderBy("kcu.table_name", "kcu.ordinal_position").
		QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list primary keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("failed to scan primary key: %w", err)
		}
		if e, ok := tables[table]; ok {
			e.PrimaryKey = append(e.PrimaryKey, column)
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for _, e := range tables {
		for i := range e.Columns {
			if e.IsPrimaryKey(e.Columns[i].Name) {
				e.Columns[i].Nullable = false
			}
		}
	}
	return nil
}

func (in *infoSchema) foreignKeys(ctx context.Context, tables map[string]*schema.Entity) error {
	var q squirrel.SelectBuilder
	if in.d.Provider == "mysql" {
		q = in.qb.Select("kcu.table_name", "kcu.constraint_name", "kcu.column_name",
			"kcu.referenced_table_name", "kcu.referenced_column_name").
			From("information_schema.key_column_usage kcu").
			Where("kcu.referenced_table_name IS NOT NULL").
			Where(in.scope("kcu.table_schema"))
	} else {
		q = in.qb.Select("kcu.table_name", "kcu.constraint_name", "kcu.column_name",
			"pk.table_name", "pk.column_name").
			From("information_schema.referential_constraints rc").
			Join("information_schema.key_column_usage kcu ON rc.constraint_name = kcu.constraint_name" +
				" AND rc.constraint_schema = kcu.constraint_schema").
			Join("information_schema.key_column_usage pk ON rc.unique_constraint_name = pk.constraint_name" +
				" AND rc.unique_constraint_schema = pk.constraint_schema" +
				" AND kcu.position_in_unique_constraint = pk.ordinal_position").
			Where(in.scope("kcu.table_schema"))
	}
	rows, err := q.OrderBy("kcu.table_name", "kcu.constraint_name", "kcu.ordinal_position").QueryContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to list foreign keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var table, constraint, column, principal, principalColumn string
		if err := rows.Scan(&table, &constraint, &column, &principal, &principalColumn); err != nil {
			return fmt.Errorf("failed to scan foreign key: %w", err)
		}
		e, ok := tables[table]
		if !ok {
			continue
		}
		mapping := schema.ColumnMapping{Dependent: column, Principal: principalColumn}
		if n := len(e.ForeignKeys); n > 0 && e.ForeignKeys[n-1].Name == constraint {
			e.ForeignKeys[n-1].Columns = append(e.ForeignKeys[n-1].Columns, mapping)
			continue
		}
		e.ForeignKeys = append(e.ForeignKeys, schema.ForeignKey{
			Name:      constraint,
			Principal: principal,
			Columns:   []schema.ColumnMapping{mapping},
		})
	}
	return rows.Err()
}
