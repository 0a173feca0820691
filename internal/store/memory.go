package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Rana718/seedgraph/internal/record"
)

// Memory is an in-process Store. Committed records are kept by reference and must not
// be mutated afterwards.
type Memory struct {
	mu     sync.RWMutex
	rows  map[string][]*record.Record
	index map[string]map[string]*record.Record
}

func NewMemory() *Memory {
	return &Memory{
		rows:  make(map[string][]*record.Record),
		index: make(map[string]map[string]*record.Record),
	}
}

func (m *Memory) Save(_ context.Context, recs ...*record.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending := make(map[string]bool)
	for _, rec := range recs {
		if rec.Entity().IsKeyless() {
			continue
		}
		key := record.TupleKey(rec.Key())
		id := rec.EntityName() + "\x00" + key
		if _, exists := m.index[rec.EntityName()][key]; exists || pending[id] {
			return fmt.Errorf("%w: %s %v", ErrDuplicateKey, rec.EntityName(), rec.Key())
		}
		pending[id] = true
	}

	for _, rec := range recs {
		name := rec.EntityName()
		m.rows[name] = append(m.rows[name], rec)
		if rec.Entity().IsKeyless() {
			continue
		}
		if m.index[name] == nil {
			m.index[name] = make(map[string]*record.Record)
		}
		m.index[name][record.TupleKey(rec.Key())] = rec
	}
	return nil
}

func (m *Memory) Find(_ context.Context, entity string, key []any) (*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.index[entity][record.TupleKey(key)], nil
}

func (m *Memory) Query(_ context.Context, entity string) ([]*record.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*record.Record(nil), m.rows[entity]...), nil
}

// Count returns the number of persisted records of entity.
func (m *Memory) Count(entity string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows[entity])
}
