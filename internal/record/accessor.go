package record

import (
	"fmt"
	"sync"

	"github.com/Rana718/seedgraph/internal/schema"
)

type slot struct {
	index int
	name  string
	typ   schema.Type
}

// Accessor is the typed key capability of one entity: column positions of the primary
// key and of every foreign key are resolved once, so key reads and writes never look
// members up by name.
type Accessor struct {
	entity *schema.Entity
	pk     []slot
	fks    [][]slot
	keys   []slot
}

// NewAccessor resolves the key slots of e.
func NewAccessor(e *schema.Entity) *Accessor {
	a := &Accessor{entity: e}
	seen := make(map[int]bool)
	resolve := func(name string) slot {
		i, _ := e.ColumnIndex(name)
		s := slot{index: i, name: name, typ: e.Columns[i].Type}
		if !seen[i] {
			seen[i] = true
			a.keys = append(a.keys, s)
		}
		return s
	}
	for _, name := range e.PrimaryKey {
		a.pk = append(a.pk, resolve(name))
	}
	for _, fk := range e.ForeignKeys {
		slots := make([]slot, len(fk.Columns))
		for j, m := range fk.Columns {
			slots[j] = resolve(m.Dependent)
		}
		a.fks = append(a.fks, slots)
	}
	return a
}

func (a *Accessor) Entity() *schema.Entity { return a.entity }

// PrimaryKey returns the primary key values of r.
func (a *Accessor) PrimaryKey(r *Record) []any {
	return a.read(r, a.pk)
}

// SetPrimaryKey writes the primary key of r column by column. A nil value is skipped.
func (a *Accessor) SetPrimaryKey(r *Record, values []any) error {
	return a.write(r, a.pk, values)
}

// PrimaryKeyUnset returns the positions in the primary key still NULL or at sentinel.
func (a *Accessor) PrimaryKeyUnset(r *Record) []int {
	return a.unset(r, a.pk)
}

// ForeignKey returns the dependent column values of foreign key i.
func (a *Accessor) ForeignKey(r *Record, i int) []any {
	return a.read(r, a.fks[i])
}

// SetForeignKey writes the dependent columns of foreign key i. A nil value is skipped.
func (a *Accessor) SetForeignKey(r *Record, i int, values []any) error {
	return a.write(r, a.fks[i], values)
}

// ForeignKeyUnset returns the positions in foreign key i still NULL or at sentinel.
func (a *Accessor) ForeignKeyUnset(r *Record, i int) []int {
	return a.unset(r, a.fks[i])
}

// NullForeignKey sets every dependent column of foreign key i to NULL.
func (a *Accessor) NullForeignKey(r *Record, i int) {
	for _, s := range a.fks[i] {
		r.values[s.index] = nil
	}
}

// ClearKeys resets every primary and foreign key column to its type sentinel.
func (a *Accessor) ClearKeys(r *Record) {
	for _, s := range a.keys {
		r.values[s.index] = s.typ.Sentinel()
	}
}

// UnsetKeys returns the names of key columns still NULL or at sentinel.
func (a *Accessor) UnsetKeys(r *Record) []string {
	var names []string
	for _, s := range a.keys {
		if s.typ.IsSentinel(r.values[s.index]) {
			names = append(names, s.name)
		}
	}
	return names
}

func (a *Accessor) read(r *Record, slots []slot) []any {
	a.check(r)
	out := make([]any, len(slots))
	for i, s := range slots {
		out[i] = r.values[s.index]
	}
	return out
}

func (a *Accessor) write(r *Record, slots []slot, values []any) error {
	a.check(r)
	if len(values) != len(slots) {
		return fmt.Errorf("failed to set key of %s: want %d values, got %d", a.entity.Name, len(slots), len(values))
	}
	for i, s := range slots {
		if values[i] == nil {
			continue
		}
		if err := r.setAt(s.index, values[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *Accessor) unset(r *Record, slots []slot) []int {
	a.check(r)
	var out []int
	for i, s := range slots {
		if s.typ.IsSentinel(r.values[s.index]) {
			out = append(out, i)
		}
	}
	return out
}

func (a *Accessor) check(r *Record) {
	if r.entity != a.entity {
		panic(fmt.Sprintf("record: accessor for %s used on %s", a.entity.Name, r.entity.Name))
	}
}

// Accessors caches one Accessor per entity. It is safe for concurrent use and may be
// shared across generators.
type Accessors struct {
	m sync.Map
}

// For returns the cached Accessor of e, building it on first use.
func (c *Accessors) For(e *schema.Entity) *Accessor {
	if a, ok := c.m.Load(e); ok {
		return a.(*Accessor)
	}
	a, _ := c.m.LoadOrStore(e, NewAccessor(e))
	return a.(*Accessor)
}
