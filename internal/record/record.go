// Package record holds generated entity instances and their lifecycle.
package record

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/Rana718/seedgraph/internal/fixerr"
	"github.com/Rana718/seedgraph/internal/schema"
)

// State is the lifecycle position of a generated instance.
type State int

const (
	Blank State = iota
	ScalarsFilled
	NavigationsCleared
	KeysCleared
	KeysAssigned
	Committed
	Failed
)

var stateNames = [...]string{"blank", "scalars-filled", "navigations-cleared", "keys-cleared", "keys-assigned", "committed", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Record is one instance of an entity. Column values are stored in the canonical Go
// representation of their schema type; navigations hold principal records by name.
type Record struct {
	entity *schema.Entity
	values []any
	navs   map[string]*Record
	state  State
}

// New returns a Blank record with every column NULL.
func New(e *schema.Entity) *Record {
	return &Record{
		entity: e,
		values: make([]any, len(e.Columns)),
		navs:   make(map[string]*Record),
	}
}

// FromRow builds a Committed record from persisted column values.
func FromRow(e *schema.Entity, row map[string]any) (*Record, error) {
	r := New(e)
	for name, v := range row {
		if err := r.Set(name, v); err != nil {
			return nil, err
		}
	}
	r.state = Committed
	return r, nil
}

func (r *Record) Entity() *schema.Entity { return r.entity }

func (r *Record) EntityName() string { return r.entity.Name }

func (r *Record) State() State { return r.state }

// Advance moves the record forward to state to. Backward moves and moves out of a
// terminal state fail.
func (r *Record) Advance(to State) error {
	if r.state == Committed || r.state == Failed {
		return fmt.Errorf("record %s is already %s", r.entity.Name, r.state)
	}
	if to <= r.state {
		return fmt.Errorf("record %s cannot move from %s to %s", r.entity.Name, r.state, to)
	}
	r.state = to
	return nil
}

// Fail marks the record as terminally failed. A committed record stays committed.
func (r *Record) Fail() {
	if r.state != Committed {
		r.state = Failed
	}
}

// Get returns the value of column name, or nil when it is NULL or unknown.
func (r *Record) Get(name string) any {
	if i, ok := r.index(name); ok {
		return r.values[i]
	}
	return nil
}

// Set coerces v to the column type and stores it.
func (r *Record) Set(name string, v any) error {
	i, ok := r.index(name)
	if !ok {
		return fixerr.NewSchemaError(r.entity.Name, "unknown column %q", name)
	}
	return r.setAt(i, v)
}

// IsSet reports whether column name holds a value other than NULL or its sentinel.
func (r *Record) IsSet(name string) bool {
	i, ok := r.index(name)
	return ok && !r.entity.Columns[i].Type.IsSentinel(r.values[i])
}

// Values returns the values of the named columns in order.
func (r *Record) Values(names []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = r.Get(name)
	}
	return out
}

// Row returns a copy of every column value keyed by column name.
func (r *Record) Row() map[string]any {
	row := make(map[string]any, len(r.values))
	for i, c := range r.entity.Columns {
		row[c.Name] = r.values[i]
	}
	return row
}

// Key returns the primary key values.
func (r *Record) Key() []any {
	return r.Values(r.entity.PrimaryKey)
}

// Navigation returns the principal record held by navigation name.
func (r *Record) Navigation(name string) *Record {
	return r.navs[name]
}

// SetNavigation points navigation name at principal. A nil principal clears it.
func (r *Record) SetNavigation(name string, principal *Record) error {
	fk, ok := r.foreignKeyByNavigation(name)
	if !ok {
		return fixerr.NewSchemaError(r.entity.Name, "unknown navigation %q", name)
	}
	if principal == nil {
		delete(r.navs, name)
		return nil
	}
	if principal.entity.Name != fk.Principal {
		return fixerr.NewSchemaError(r.entity.Name, "navigation %q expects %s, got %s", name, fk.Principal, principal.entity.Name)
	}
	r.navs[name] = principal
	return nil
}

// ClearNavigations drops every navigation reference.
func (r *Record) ClearNavigations() {
	for name := range r.navs {
		delete(r.navs, name)
	}
}

// ClearPendingNavigations drops navigation references to records that are not committed.
func (r *Record) ClearPendingNavigations() {
	for name, nav := range r.navs {
		if nav.state != Committed {
			delete(r.navs, name)
		}
	}
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteString(r.entity.Name)
	sb.WriteString("{")
	for i, c := range r.entity.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s: %v", c.Name, r.values[i])
	}
	sb.WriteString("}")
	return sb.String()
}

func (r *Record) index(name string) (int, bool) {
	return r.entity.ColumnIndex(name)
}

func (r *Record) setAt(i int, v any) error {
	col := r.entity.Columns[i]
	cv, err := col.Type.Coerce(v)
	if err != nil {
		return fmt.Errorf("failed to set %s.%s: %w", r.entity.Name, col.Name, err)
	}
	r.values[i] = cv
	return nil
}

func (r *Record) foreignKeyByNavigation(name string) (schema.ForeignKey, bool) {
	for _, fk := range r.entity.ForeignKeys {
		if fk.Navigation == name {
			return fk, true
		}
	}
	return schema.ForeignKey{}, false
}

// TupleKey renders key values into a comparable map key. Values of different
// types never collide.
func TupleKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%T:%v", v, v)
	}
	return strings.Join(parts, "\x1f")
}

// Equal compares two canonical column values.
func Equal(a, b any) bool {
	switch av := a.(type) {
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	}
	if _, ok := b.([]byte); ok {
		return false
	}
	return a == b
}
