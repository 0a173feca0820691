// Package schema is the normalized view of entity primary and foreign key metadata.
//
// A Schema is built once through a Builder and is read-only afterwards, so it can be
// shared by concurrent generators.
package schema

import (
	"fmt"
	"sort"

	"github.com/Rana718/seedgraph/internal/fixerr"
)

type Column struct {
	Name     string
	Type     Type
	Nullable bool
}

// ColumnMapping pairs a dependent column with the principal column it references.
type ColumnMapping struct {
	Dependent string
	Principal string
}

type ForeignKey struct {
	Name       string
	Principal  string
	Columns    []ColumnMapping
	Navigation string // relationship-shaped property holding the principal record, if any
}

// DependentColumns returns the FK columns of the dependent entity in mapping order.
func (fk ForeignKey) DependentColumns() []string {
	cols := make([]string, len(fk.Columns))
	for i, m := range fk.Columns {
		cols[i] = m.Dependent
	}
	return cols
}

// PrincipalColumns returns the referenced columns of the principal entity in mapping order.
func (fk ForeignKey) PrincipalColumns() []string {
	cols := make([]string, len(fk.Columns))
	for i, m := range fk.Columns {
		cols[i] = m.Principal
	}
	return cols
}

// Entity describes one entity type (table).
type Entity struct {
	Name        string
	Columns     []Column
	PrimaryKey  []string
	ForeignKeys []ForeignKey

	index map[string]int
}

func (e *Entity) reindex() {
	e.index = make(map[string]int, len(e.Columns))
	for i, c := range e.Columns {
		e.index[c.Name] = i
	}
}

// Column looks a column up by name.
func (e *Entity) Column(name string) (Column, bool) {
	i, ok := e.ColumnIndex(name)
	if !ok {
		return Column{}, false
	}
	return e.Columns[i], true
}

// ColumnIndex returns the position of column name in Columns.
func (e *Entity) ColumnIndex(name string) (int, bool) {
	if e.index == nil {
		for i, c := range e.Columns {
			if c.Name == name {
				return i, true
			}
		}
		return 0, false
	}
	i, ok := e.index[name]
	return i, ok
}

// IsKeyless reports whether the entity has no primary key.
func (e *Entity) IsKeyless() bool { return len(e.PrimaryKey) == 0 }

func (e *Entity) IsPrimaryKey(column string) bool {
	for _, pk := range e.PrimaryKey {
		if pk == column {
			return true
		}
	}
	return false
}

func (e *Entity) IsForeignKey(column string) bool {
	for _, fk := range e.ForeignKeys {
		for _, m := range fk.Columns {
			if m.Dependent == column {
				return true
			}
		}
	}
	return false
}

// IsKey reports whether the column is part of the primary key or of any foreign key.
func (e *Entity) IsKey(column string) bool {
	return e.IsPrimaryKey(column) || e.IsForeignKey(column)
}

// KeyColumns returns primary key columns followed by foreign key columns, without duplicates.
func (e *Entity) KeyColumns() []string {
	seen := make(map[string]bool)
	var cols []string
	add := func(c string) {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	for _, pk := range e.PrimaryKey {
		add(pk)
	}
	for _, fk := range e.ForeignKeys {
		for _, m := range fk.Columns {
			add(m.Dependent)
		}
	}
	return cols
}

// Navigations returns the names of relationship-shaped properties.
func (e *Entity) Navigations() []string {
	var navs []string
	for _, fk := range e.ForeignKeys {
		if fk.Navigation != "" {
			navs = append(navs, fk.Navigation)
		}
	}
	return navs
}

// Deferrable reports whether every dependent column of fk is nullable.
func (e *Entity) Deferrable(fk ForeignKey) bool {
	for _, m := range fk.Columns {
		col, ok := e.Column(m.Dependent)
		if !ok || !col.Nullable {
			return false
		}
	}
	return len(fk.Columns) > 0
}

// Schema is a set of entities keyed by name.
type Schema struct {
	entities map[string]*Entity
	names    []string
	keyless  map[string]bool
}

func (s *Schema) Entity(name string) (*Entity, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// Names returns every entity name in sorted order.
func (s *Schema) Names() []string {
	return append([]string(nil), s.names...)
}

// Entities returns every entity, sorted by name.
func (s *Schema) Entities() []*Entity {
	out := make([]*Entity, 0, len(s.names))
	for _, name := range s.names {
		out = append(out, s.entities[name])
	}
	return out
}

// Keyless returns the sorted names of entities without a primary key.
func (s *Schema) Keyless() []string {
	var out []string
	for _, name := range s.names {
		if s.keyless[name] {
			out = append(out, name)
		}
	}
	return out
}

func (s *Schema) IsKeyless(name string) bool { return s.keyless[name] }

// Builder assembles a Schema. Entity builders may be declared in any order;
// references are checked by Build.
type Builder struct {
	entities []*Entity
	byName   map[string]*Entity
	errs     []error
}

func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]*Entity)}
}

// EntityBuilder declares the columns and keys of one entity.
type EntityBuilder struct {
	b *Builder
	e *Entity
}

// Entity starts (or continues) the declaration of entity name.
func (b *Builder) Entity(name string) *EntityBuilder {
	if e, ok := b.byName[name]; ok {
		return &EntityBuilder{b: b, e: e}
	}
	e := &Entity{Name: name}
	b.entities = append(b.entities, e)
	b.byName[name] = e
	return &EntityBuilder{b: b, e: e}
}

// Add registers a fully described entity, e.g. one produced by a DDL parser or introspection.
func (b *Builder) Add(e *Entity) *Builder {
	if _, ok := b.byName[e.Name]; ok {
		b.errs = append(b.errs, fixerr.NewSchemaError(e.Name, "entity declared twice"))
		return b
	}
	cp := *e
	cp.Columns = append([]Column(nil), e.Columns...)
	cp.PrimaryKey = append([]string(nil), e.PrimaryKey...)
	cp.ForeignKeys = nil
	for _, fk := range e.ForeignKeys {
		fk.Columns = append([]ColumnMapping(nil), fk.Columns...)
		cp.ForeignKeys = append(cp.ForeignKeys, fk)
	}
	b.entities = append(b.entities, &cp)
	b.byName[cp.Name] = &cp
	return b
}

func (eb *EntityBuilder) Column(name string, t Type) *EntityBuilder {
	eb.e.Columns = append(eb.e.Columns, Column{Name: name, Type: t})
	return eb
}

func (eb *EntityBuilder) NullableColumn(name string, t Type) *EntityBuilder {
	eb.e.Columns = append(eb.e.Columns, Column{Name: name, Type: t, Nullable: true})
	return eb
}

// PrimaryKey sets the ordered primary key columns.
func (eb *EntityBuilder) PrimaryKey(columns ...string) *EntityBuilder {
	eb.e.PrimaryKey = append([]string(nil), columns...)
	return eb
}

// References adds a foreign key from columns to the primary key of principal.
// The navigation property is named after the principal.
func (eb *EntityBuilder) References(principal string, columns ...string) *EntityBuilder {
	fk := ForeignKey{Principal: principal, Navigation: principal}
	for _, c := range columns {
		fk.Columns = append(fk.Columns, ColumnMapping{Dependent: c})
	}
	eb.e.ForeignKeys = append(eb.e.ForeignKeys, fk)
	return eb
}

// ForeignKey adds an explicit foreign key. Empty principal columns resolve to the principal's
// primary key in order.
func (eb *EntityBuilder) ForeignKey(fk ForeignKey) *EntityBuilder {
	fk.Columns = append([]ColumnMapping(nil), fk.Columns...)
	eb.e.ForeignKeys = append(eb.e.ForeignKeys, fk)
	return eb
}

// Build validates every entity and reference and freezes the schema.
func (b *Builder) Build() (*Schema, error) {
	if len(b.errs) > 0 {
		return nil, b.errs[0]
	}

	s := &Schema{
		entities: make(map[string]*Entity, len(b.entities)),
		keyless:  make(map[string]bool),
	}
	for _, e := range b.entities {
		e.reindex()
		if len(e.index) != len(e.Columns) {
			return nil, fixerr.NewSchemaError(e.Name, "duplicate column")
		}
		for _, pk := range e.PrimaryKey {
			if _, ok := e.index[pk]; !ok {
				return nil, fixerr.NewSchemaError(e.Name, "primary key column %q does not exist", pk)
			}
		}
		s.entities[e.Name] = e
		s.names = append(s.names, e.Name)
		if e.IsKeyless() {
			s.keyless[e.Name] = true
		}
	}
	sort.Strings(s.names)

	for _, e := range b.entities {
		for i := range e.ForeignKeys {
			if err := s.resolveForeignKey(e, i); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

func (s *Schema) resolveForeignKey(e *Entity, i int) error {
	fk := &e.ForeignKeys[i]
	if fk.Name == "" {
		fk.Name = fmt.Sprintf("fk_%s_%s_%d", e.Name, fk.Principal, i)
	}
	if len(fk.Columns) == 0 {
		return fixerr.NewSchemaError(e.Name, "foreign key %s has no columns", fk.Name)
	}
	principal, ok := s.entities[fk.Principal]
	if !ok {
		return fixerr.NewSchemaError(e.Name, "foreign key %s references unknown entity %q", fk.Name, fk.Principal)
	}
	if principal.IsKeyless() {
		return fixerr.NewSchemaError(e.Name, "foreign key %s references keyless entity %q", fk.Name, fk.Principal)
	}

	unmapped := false
	for _, m := range fk.Columns {
		if m.Principal == "" {
			unmapped = true
		}
	}
	if unmapped {
		if len(principal.PrimaryKey) != len(fk.Columns) {
			return fixerr.NewSchemaError(e.Name, "foreign key %s has %d columns but %s has a %d column primary key",
				fk.Name, len(fk.Columns), principal.Name, len(principal.PrimaryKey))
		}
		for j := range fk.Columns {
			if fk.Columns[j].Principal == "" {
				fk.Columns[j].Principal = principal.PrimaryKey[j]
			}
		}
	}

	for _, m := range fk.Columns {
		dep, ok := e.Column(m.Dependent)
		if !ok {
			return fixerr.NewSchemaError(e.Name, "foreign key %s uses unknown column %q", fk.Name, m.Dependent)
		}
		pc, ok := principal.Column(m.Principal)
		if !ok {
			return fixerr.NewSchemaError(e.Name, "foreign key %s references unknown column %s.%s", fk.Name, principal.Name, m.Principal)
		}
		if dep.Type != pc.Type {
			return fixerr.NewSchemaError(e.Name, "foreign key %s column %s is %s but %s.%s is %s",
				fk.Name, dep.Name, dep.Type, principal.Name, pc.Name, pc.Type)
		}
	}
	return nil
}
