// Package fixture generates referentially consistent records and commits them to a store.
//
// A Generator fills scalar columns from a value provider, lets the caller override any
// column, assigns the remaining keys through the key seeding engine and commits each
// record on its own. Principals needed by a foreign key are generated the same way,
// one level deeper.
package fixture

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Rana718/seedgraph/internal/faker"
	"github.com/Rana718/seedgraph/internal/fixerr"
	"github.com/Rana718/seedgraph/internal/keys"
	"github.com/Rana718/seedgraph/internal/record"
	"github.com/Rana718/seedgraph/internal/resolver"
	"github.com/Rana718/seedgraph/internal/schema"
	"github.com/Rana718/seedgraph/internal/store"
)

// Initializer customizes a record after its scalars are filled and its keys cleared.
// Any key it sets to a non-sentinel value is kept.
type Initializer func(rec *record.Record) error

// KeyAssigner is an entity specific key strategy. It runs before the engine, which then
// fills whatever key columns the strategy left unset.
type KeyAssigner interface {
	AssignKeys(ctx context.Context, rec *record.Record, depth int) error
}

// KeyAssignerFunc adapts a function to KeyAssigner.
type KeyAssignerFunc func(ctx context.Context, rec *record.Record, depth int) error

func (f KeyAssignerFunc) AssignKeys(ctx context.Context, rec *record.Record, depth int) error {
	return f(ctx, rec, depth)
}

// Generator is the fixture coordinator of one session.
type Generator struct {
	schema     *schema.Schema
	resolution *resolver.Resolution
	store      store.Store
	values     ValueProvider
	engine     *keys.Seeder
	log        logrus.FieldLogger

	mu          sync.RWMutex
	assigners   map[string]KeyAssigner
	requireRegs bool
}

// New resolves the dependency order of s and prepares a generator writing to st.
func New(s *schema.Schema, st store.Store, opts ...Option) (*Generator, error) {
	if s == nil || st == nil {
		return nil, fmt.Errorf("generator requires a schema and a store")
	}
	o := options{settings: keys.DefaultSettings()}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	if o.values == nil {
		o.values = faker.New(o.seed)
	}

	res, err := resolver.Resolve(s)
	if err != nil {
		return nil, err
	}

	g := &Generator{
		schema:      s,
		resolution:  res,
		store:       st,
		values:      o.values,
		log:         o.logger,
		assigners:   make(map[string]KeyAssigner),
		requireRegs: o.requireRegs,
	}
	g.engine, err = keys.NewSeeder(keys.Config{
		Schema:       s,
		Resolution:   res,
		Source:       st,
		Materializer: g,
		Settings:     o.settings,
		State:        o.state,
		Supplier:     o.supplier,
		Seed:         o.seed,
		Logger:       o.logger,
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Configure changes how foreign keys are resolved for subsequent generation.
func (g *Generator) Configure(existingReferenceChance float64, recursionLimit int, allowExistingForeignKeys bool) error {
	settings := g.engine.Settings()
	settings.ExistingReferenceChance = existingReferenceChance
	settings.RecursionLimit = recursionLimit
	settings.AllowExistingForeignKeys = allowExistingForeignKeys
	return g.engine.Configure(settings)
}

// RegisterKeyAssignment installs the key strategy for entity.
func (g *Generator) RegisterKeyAssignment(entity string, a KeyAssigner) error {
	if _, ok := g.schema.Entity(entity); !ok {
		return fixerr.NewSchemaError(entity, "unknown entity")
	}
	if a == nil {
		return fmt.Errorf("key assigner for %s cannot be nil", entity)
	}
	g.mu.Lock()
	g.assigners[entity] = a
	g.mu.Unlock()
	return nil
}

func (g *Generator) assigner(entity string) (KeyAssigner, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	a, ok := g.assigners[entity]
	if !ok && g.requireRegs {
		return nil, &fixerr.AssignmentNotRegisteredError{Entity: entity}
	}
	return a, nil
}

// DependencyOrder returns the keyed entities, principals before dependents.
func (g *Generator) DependencyOrder() []string { return g.resolution.Order() }

// Keyless returns the entities without a primary key.
func (g *Generator) Keyless() []string { return g.resolution.Keyless() }

func (g *Generator) Resolution() *resolver.Resolution { return g.resolution }

// Keys exposes the key seeding engine, e.g. to set counter floors.
func (g *Generator) Keys() *keys.Seeder { return g.engine }

// GenerateOne creates, keys and commits one record of entity.
func (g *Generator) GenerateOne(ctx context.Context, entity string, init Initializer) (*record.Record, error) {
	return g.generate(ctx, entity, init, 0)
}

// GenerateMany calls GenerateOne count times. The first failure stops the batch; the
// records committed before it are returned along with the error.
func (g *Generator) GenerateMany(ctx context.Context, entity string, count int, init Initializer) ([]*record.Record, error) {
	out := make([]*record.Record, 0, count)
	for i := 0; i < count; i++ {
		rec, err := g.GenerateOne(ctx, entity, init)
		if err != nil {
			return out, fmt.Errorf("failed to generate %s %d of %d: %w", entity, i+1, count, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Materialize generates a principal on behalf of the key seeding engine. Presets are
// applied the way an initializer would set them.
func (g *Generator) Materialize(ctx context.Context, entity string, presets map[string]any, depth int) (*record.Record, error) {
	return g.generate(ctx, entity, func(rec *record.Record) error {
		for col, v := range presets {
			if err := rec.Set(col, v); err != nil {
				return err
			}
		}
		return nil
	}, depth)
}

func (g *Generator) generate(ctx context.Context, entity string, init Initializer, depth int) (*record.Record, error) {
	e, ok := g.schema.Entity(entity)
	if !ok {
		return nil, fixerr.NewSchemaError(entity, "unknown entity")
	}
	a, err := g.assigner(entity)
	if err != nil {
		return nil, err
	}

	rec := record.New(e)
	if err := g.build(ctx, rec, init, a, depth); err != nil {
		rec.Fail()
		g.log.WithFields(logrus.Fields{"entity": entity, "depth": depth}).WithError(err).Debug("fixture failed")
		return nil, err
	}
	g.log.WithFields(logrus.Fields{"entity": entity, "depth": depth}).Debug("fixture committed")
	return rec, nil
}

func (g *Generator) build(ctx context.Context, rec *record.Record, init Initializer, a KeyAssigner, depth int) error {
	e := rec.Entity()
	for _, col := range e.Columns {
		if e.IsKey(col.Name) {
			continue
		}
		if err := rec.Set(col.Name, g.values.Value(e.Name, col)); err != nil {
			return err
		}
	}
	if err := rec.Advance(record.ScalarsFilled); err != nil {
		return err
	}

	rec.ClearNavigations()
	if err := rec.Advance(record.NavigationsCleared); err != nil {
		return err
	}

	g.engine.ClearKeys(rec)
	if err := rec.Advance(record.KeysCleared); err != nil {
		return err
	}

	if init != nil {
		if err := init(rec); err != nil {
			return err
		}
	}
	if a != nil {
		if err := a.AssignKeys(ctx, rec, depth); err != nil {
			return err
		}
	}
	if err := g.engine.AssignKeys(ctx, rec, depth); err != nil {
		return err
	}
	if err := rec.Advance(record.KeysAssigned); err != nil {
		return err
	}

	rec.ClearPendingNavigations()
	unit := store.NewUnit(g.store)
	if err := unit.Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to stage %s: %w", e.Name, err)
	}
	if err := unit.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit %s: %w", e.Name, err)
	}
	return rec.Advance(record.Committed)
}

// Result is the outcome of seeding one entity.
type Result struct {
	Entity  string
	Records []*record.Record
}

// Seed generates counts[entity] records per entity, walking the dependency order and then
// the keyless entities. Entities missing from counts are skipped.
func (g *Generator) Seed(ctx context.Context, counts map[string]int) ([]Result, error) {
	for name, n := range counts {
		if _, ok := g.schema.Entity(name); !ok {
			return nil, fixerr.NewSchemaError(name, "unknown entity")
		}
		if n < 0 {
			return nil, fmt.Errorf("count for %s must not be negative, got %d", name, n)
		}
	}

	keyless := g.resolution.Keyless()
	sort.Strings(keyless)
	order := append(g.resolution.Order(), keyless...)

	var results []Result
	for _, name := range order {
		n := counts[name]
		if n == 0 {
			continue
		}
		g.log.WithFields(logrus.Fields{"entity": name, "count": n}).Info("seeding")
		recs, err := g.GenerateMany(ctx, name, n, nil)
		results = append(results, Result{Entity: name, Records: recs})
		if err != nil {
			return results, err
		}
	}
	return results, nil
}
