// Package faker produces random scalar values for the non-key columns of generated records.
package faker

import (
	"strings"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/Rana718/seedgraph/internal/schema"
)

// DefaultNullChance is the probability of NULL for nullable columns.
const DefaultNullChance = 0.2

// Generator is a zero-argument factory for one random value.
type Generator func() any

// Provider generates column values from column names and types. Overrides registered
// per column win over overrides per type, which win over the built-in heuristics.
type Provider struct {
	faker      *gofakeit.Faker
	mu         sync.RWMutex
	byType     map[schema.Type]Generator
	byColumn   map[string]Generator
	nullChance float64
}

// New returns a Provider seeded with seed; 0 seeds from the clock.
func New(seed int64) *Provider {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Provider{
		faker:      gofakeit.New(seed),
		byType:     make(map[schema.Type]Generator),
		byColumn:   make(map[string]Generator),
		nullChance: DefaultNullChance,
	}
}

// SetNullChance sets the probability of NULL for nullable columns.
func (p *Provider) SetNullChance(chance float64) {
	p.mu.Lock()
	p.nullChance = chance
	p.mu.Unlock()
}

// Register overrides generation for every column of type t.
func (p *Provider) Register(t schema.Type, fn Generator) {
	p.mu.Lock()
	p.byType[t] = fn
	p.mu.Unlock()
}

// RegisterColumn overrides generation for one column.
func (p *Provider) RegisterColumn(entity, column string, fn Generator) {
	p.mu.Lock()
	p.byColumn[entity+"."+column] = fn
	p.mu.Unlock()
}

// Value returns a random value for col of entity.
func (p *Provider) Value(entity string, col schema.Column) any {
	p.mu.RLock()
	colFn := p.byColumn[entity+"."+col.Name]
	typeFn := p.byType[col.Type]
	nullChance := p.nullChance
	p.mu.RUnlock()

	if colFn != nil {
		return colFn()
	}
	if col.Nullable && p.faker.Float64Range(0, 1) < nullChance {
		return nil
	}
	if typeFn != nil {
		return typeFn()
	}
	if col.Type == schema.TypeString {
		if v, ok := p.forName(col.Name); ok {
			return v
		}
	}
	return p.forType(col.Type)
}

// forName picks a value from the column name for context-aware text.
func (p *Provider) forName(colName string) (string, bool) {
	colLower := strings.ToLower(colName)
	f := p.faker

	switch {
	case strings.Contains(colLower, "email"):
		return f.Email(), true
	case strings.Contains(colLower, "username"):
		return f.Username(), true
	case strings.Contains(colLower, "name") && !strings.Contains(colLower, "file"):
		return f.Name(), true
	case strings.Contains(colLower, "title"):
		return f.HackerPhrase(), true
	case strings.Contains(colLower, "description") || strings.Contains(colLower, "content"):
		return f.Sentence(10), true
	case strings.Contains(colLower, "url") || strings.Contains(colLower, "link"):
		return f.URL(), true
	case strings.Contains(colLower, "phone"):
		return f.Phone(), true
	case strings.Contains(colLower, "address"):
		return f.Address().Address, true
	case strings.Contains(colLower, "city"):
		return f.City(), true
	case strings.Contains(colLower, "company"):
		return f.Company(), true
	}
	return "", false
}

func (p *Provider) forType(t schema.Type) any {
	f := p.faker
	switch t {
	case schema.TypeInt:
		return int64(f.Number(1, 1000000))
	case schema.TypeFloat:
		return f.Float64Range(0, 10000)
	case schema.TypeBool:
		return f.Bool()
	case schema.TypeTime:
		now := time.Now().UTC()
		return f.DateRange(now.AddDate(-1, 0, 0), now)
	case schema.TypeUUID:
		return f.UUID()
	case schema.TypeBytes:
		return []byte(f.LetterN(16))
	default:
		return f.Word()
	}
}
