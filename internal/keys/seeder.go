// Package keys clears and assigns primary and foreign keys of generated records.
package keys

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Rana718/seedgraph/internal/fixerr"
	"github.com/Rana718/seedgraph/internal/record"
	"github.com/Rana718/seedgraph/internal/resolver"
	"github.com/Rana718/seedgraph/internal/schema"
)

const (
	DefaultExistingReferenceChance = 0.7
	DefaultRecursionLimit          = 5
	DefaultMaxUniqueDraws          = 1000
)

// Settings tune how foreign keys are resolved.
type Settings struct {
	// ExistingReferenceChance is the probability of reusing a persisted principal
	// instead of materializing a new one.
	ExistingReferenceChance  float64
	RecursionLimit           int
	AllowExistingForeignKeys bool
	// MaxUniqueDraws bounds composite key enumeration and counter reissues.
	MaxUniqueDraws int
}

func DefaultSettings() Settings {
	return Settings{
		ExistingReferenceChance:  DefaultExistingReferenceChance,
		RecursionLimit:           DefaultRecursionLimit,
		AllowExistingForeignKeys: true,
		MaxUniqueDraws:           DefaultMaxUniqueDraws,
	}
}

func (s Settings) Validate() error {
	if s.ExistingReferenceChance < 0 || s.ExistingReferenceChance > 1 {
		return fmt.Errorf("existing reference chance must be within [0, 1], got %v", s.ExistingReferenceChance)
	}
	if s.RecursionLimit < 0 {
		return fmt.Errorf("recursion limit must not be negative, got %d", s.RecursionLimit)
	}
	if s.MaxUniqueDraws < 1 {
		return fmt.Errorf("max unique draws must be positive, got %d", s.MaxUniqueDraws)
	}
	return nil
}

// Source is the read side of the store that persisted principals are sampled from.
type Source interface {
	Find(ctx context.Context, entity string, key []any) (*record.Record, error)
	Query(ctx context.Context, entity string) ([]*record.Record, error)
}

// Materializer creates and commits a new record of entity at the given depth, with
// presets applied as caller overrides.
type Materializer interface {
	Materialize(ctx context.Context, entity string, presets map[string]any, depth int) (*record.Record, error)
}

// KeySupplier returns a caller chosen value for a primary key column. Returning false
// falls back to the built-in generators.
type KeySupplier func(entity, column string) (any, bool)

type Config struct {
	Schema       *schema.Schema
	Resolution   *resolver.Resolution
	Source       Source
	Materializer Materializer
	Settings     Settings
	Accessors    *record.Accessors
	State        *State
	Supplier     KeySupplier
	// Seed of the random source; 0 seeds from the clock.
	Seed   int64
	Logger logrus.FieldLogger
}

// Seeder is the key seeding engine of one session.
type Seeder struct {
	schema       *schema.Schema
	resolution   *resolver.Resolution
	source       Source
	materializer Materializer
	accessors    *record.Accessors
	state        *State
	supplier     KeySupplier
	log          logrus.FieldLogger

	mu       sync.RWMutex
	settings Settings

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewSeeder(cfg Config) (*Seeder, error) {
	if cfg.Schema == nil || cfg.Resolution == nil || cfg.Source == nil || cfg.Materializer == nil {
		return nil, fmt.Errorf("seeder requires a schema, resolution, source and materializer")
	}
	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	s := &Seeder{
		schema:       cfg.Schema,
		resolution:   cfg.Resolution,
		source:       cfg.Source,
		materializer: cfg.Materializer,
		accessors:    cfg.Accessors,
		state:        cfg.State,
		supplier:     cfg.Supplier,
		log:          cfg.Logger,
		settings:     cfg.Settings,
	}
	if s.accessors == nil {
		s.accessors = &record.Accessors{}
	}
	if s.state == nil {
		s.state = NewState()
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.rng = rand.New(rand.NewSource(seed))
	return s, nil
}

// State exposes the key counters for floors and resets.
func (s *Seeder) State() *State { return s.state }

func (s *Seeder) Settings() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Configure replaces the settings after validating them.
func (s *Seeder) Configure(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
	return nil
}

// ClearKeys resets every primary and foreign key column of rec to its sentinel.
func (s *Seeder) ClearKeys(rec *record.Record) {
	s.accessors.For(rec.Entity()).ClearKeys(rec)
}

// AssignKeys fills every key column of rec still at its sentinel. Columns already set
// are kept; numeric primary keys set by the caller raise the counter past themselves.
func (s *Seeder) AssignKeys(ctx context.Context, rec *record.Record, depth int) error {
	settings := s.Settings()
	e := rec.Entity()
	if depth > settings.RecursionLimit {
		return &fixerr.RecursionLimitError{Entity: e.Name, Depth: depth, Limit: settings.RecursionLimit}
	}

	a := s.accessors.For(e)
	log := s.log.WithFields(logrus.Fields{"entity": e.Name, "depth": depth})

	issued, err := s.assignPrimaryKey(ctx, rec)
	if err != nil {
		return err
	}

	composite := coveredByForeignKeys(e)
	var keyFKs, selfFKs []int
	for i, fk := range e.ForeignKeys {
		if composite && touchesPrimaryKey(e, fk) {
			keyFKs = append(keyFKs, i)
			continue
		}
		own, err := s.assignForeignKey(ctx, rec, a, i, depth, settings, log)
		if err != nil {
			return err
		}
		if own {
			selfFKs = append(selfFKs, i)
		}
	}
	if len(keyFKs) > 0 {
		if err := s.assignCompositeKey(ctx, rec, a, keyFKs, depth, settings, log); err != nil {
			return err
		}
	}

	if len(issued) > 0 {
		if err := s.avoidCollisions(ctx, rec, a, issued, settings); err != nil {
			return err
		}
	}
	for _, i := range selfFKs {
		if err := s.pointAtOwnKey(rec, a, i, log); err != nil {
			return err
		}
	}
	return nil
}

// assignPrimaryKey issues values for primary key columns not covered by a foreign key and
// returns the columns that were drawn from counters.
func (s *Seeder) assignPrimaryKey(ctx context.Context, rec *record.Record) ([]string, error) {
	e := rec.Entity()
	var issued []string
	for _, name := range e.PrimaryKey {
		if e.IsForeignKey(name) {
			continue
		}
		col, _ := e.Column(name)
		if col.Type == schema.TypeInt || col.Type == schema.TypeFloat {
			if err := s.prime(ctx, e, name); err != nil {
				return nil, err
			}
		}
		if rec.IsSet(name) {
			s.observe(e.Name, name, rec.Get(name))
			continue
		}

		if s.supplier != nil {
			if v, ok := s.supplier(e.Name, name); ok {
				if err := rec.Set(name, v); err != nil {
					return nil, err
				}
				s.observe(e.Name, name, rec.Get(name))
				continue
			}
		}

		v, counter, err := s.generate(e, col)
		if err != nil {
			return nil, err
		}
		if err := rec.Set(name, v); err != nil {
			return nil, err
		}
		if counter {
			issued = append(issued, name)
		}
	}
	return issued, nil
}

func (s *Seeder) generate(e *schema.Entity, col schema.Column) (any, bool, error) {
	switch col.Type {
	case schema.TypeInt:
		return s.state.Next(e.Name, col.Name), true, nil
	case schema.TypeFloat:
		return float64(s.state.Next(e.Name, col.Name)), true, nil
	case schema.TypeUUID:
		return uuid.New(), false, nil
	case schema.TypeString:
		return uuid.New().String(), false, nil
	case schema.TypeBytes:
		id := uuid.New()
		return id[:], false, nil
	case schema.TypeTime:
		return time.Now().UTC(), false, nil
	}
	return nil, false, fixerr.NewSchemaError(e.Name, "cannot generate %s primary key column %q", col.Type, col.Name)
}

// observe raises the counter of a numeric key column past v.
func (s *Seeder) observe(entity, column string, v any) {
	switch n := v.(type) {
	case int64:
		s.state.Observe(entity, column, n)
	case float64:
		if !math.IsNaN(n) && !math.IsInf(n, 0) {
			s.state.Observe(entity, column, int64(math.Ceil(n)))
		}
	}
}

// prime raises the counter of a numeric key column to the largest persisted value,
// once per session.
func (s *Seeder) prime(ctx context.Context, e *schema.Entity, column string) error {
	if s.state.isPrimed(e.Name, column) {
		return nil
	}
	rows, err := s.source.Query(ctx, e.Name)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", e.Name, err)
	}
	for _, row := range rows {
		s.observe(e.Name, column, row.Get(column))
	}
	s.state.markPrimed(e.Name, column)
	return nil
}

// assignForeignKey fills foreign key i of rec. It reports true for a self reference that
// must point at rec's own key, which is set once the primary key is final.
func (s *Seeder) assignForeignKey(ctx context.Context, rec *record.Record, a *record.Accessor, i, depth int,
	settings Settings, log logrus.FieldLogger) (bool, error) {
	e := rec.Entity()
	fk := e.ForeignKeys[i]

	if nav := rec.Navigation(fk.Navigation); fk.Navigation != "" && nav != nil && nav.State() == record.Committed {
		return false, a.SetForeignKey(rec, i, nav.Values(fk.PrincipalColumns()))
	}
	unset := a.ForeignKeyUnset(rec, i)
	if len(unset) == 0 {
		return false, nil
	}
	presets := s.presets(rec, a, i, unset)

	candidates, err := s.candidates(ctx, fk, presets)
	if err != nil {
		return false, err
	}
	log = log.WithField("principal", fk.Principal)
	reuse := func() error {
		p := candidates[s.intn(len(candidates))]
		log.Debug("reusing persisted principal")
		return a.SetForeignKey(rec, i, p.Values(fk.PrincipalColumns()))
	}

	if fk.Principal == e.Name {
		switch {
		case len(candidates) > 0 && s.trial(settings.ExistingReferenceChance):
			return false, reuse()
		case e.Deferrable(fk):
			a.NullForeignKey(rec, i)
			return false, nil
		}
		return true, nil
	}

	switch s.resolution.EdgeKind(e.Name, fk.Name) {
	case resolver.Deferred:
		if settings.AllowExistingForeignKeys && len(candidates) > 0 && s.trial(settings.ExistingReferenceChance) {
			return false, reuse()
		}
		log.Debug("leaving deferred foreign key empty")
		a.NullForeignKey(rec, i)
		return false, nil
	case resolver.Unsatisfiable:
		if settings.AllowExistingForeignKeys && len(candidates) > 0 {
			return false, reuse()
		}
		return false, cycleError(e, fk)
	}

	canReuse := settings.AllowExistingForeignKeys && len(candidates) > 0
	if canReuse && (depth >= settings.RecursionLimit || s.trial(settings.ExistingReferenceChance)) {
		return false, reuse()
	}
	p, err := s.materialize(ctx, e, fk.Principal, presets, depth, settings)
	if err != nil {
		return false, err
	}
	return false, a.SetForeignKey(rec, i, p.Values(fk.PrincipalColumns()))
}

// pointAtOwnKey sets self reference i to rec's own primary key values.
func (s *Seeder) pointAtOwnKey(rec *record.Record, a *record.Accessor, i int, log logrus.FieldLogger) error {
	e := rec.Entity()
	fk := e.ForeignKeys[i]
	own := rec.Values(fk.PrincipalColumns())
	for j, m := range fk.Columns {
		col, _ := e.Column(m.Principal)
		if col.Type.IsSentinel(own[j]) {
			return fixerr.NewSchemaError(e.Name, "self reference %s needs %s assigned first", fk.Name, m.Principal)
		}
	}
	log.WithField("principal", e.Name).Debug("pointing self reference at own key")
	return a.SetForeignKey(rec, i, own)
}

func (s *Seeder) materialize(ctx context.Context, e *schema.Entity, principal string, presets map[string]any,
	depth int, settings Settings) (*record.Record, error) {
	if depth >= settings.RecursionLimit {
		return nil, &fixerr.RecursionLimitError{Entity: principal, Depth: depth + 1, Limit: settings.RecursionLimit}
	}
	s.log.WithFields(logrus.Fields{"entity": e.Name, "depth": depth, "principal": principal}).Debug("materializing principal")
	return s.materializer.Materialize(ctx, principal, presets, depth+1)
}

// presets maps principal columns to the dependent values the caller already set on a
// partially assigned foreign key.
func (s *Seeder) presets(rec *record.Record, a *record.Accessor, i int, unset []int) map[string]any {
	fk := rec.Entity().ForeignKeys[i]
	if len(unset) == len(fk.Columns) {
		return nil
	}
	isUnset := make(map[int]bool, len(unset))
	for _, j := range unset {
		isUnset[j] = true
	}
	values := a.ForeignKey(rec, i)
	presets := make(map[string]any)
	for j, m := range fk.Columns {
		if !isUnset[j] {
			presets[m.Principal] = values[j]
		}
	}
	return presets
}

// candidates returns the persisted principals of fk matching presets.
func (s *Seeder) candidates(ctx context.Context, fk schema.ForeignKey, presets map[string]any) ([]*record.Record, error) {
	rows, err := s.source.Query(ctx, fk.Principal)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s candidates: %w", fk.Principal, err)
	}
	if len(presets) == 0 {
		return rows, nil
	}
	var out []*record.Record
	for _, row := range rows {
		match := true
		for col, v := range presets {
			if !record.Equal(row.Get(col), v) {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
	}
	return out, nil
}

// avoidCollisions reissues counter columns while the primary key matches a persisted row.
func (s *Seeder) avoidCollisions(ctx context.Context, rec *record.Record, a *record.Accessor, issued []string, settings Settings) error {
	e := rec.Entity()
	for draw := 0; draw < settings.MaxUniqueDraws; draw++ {
		existing, err := s.source.Find(ctx, e.Name, a.PrimaryKey(rec))
		if err != nil {
			return fmt.Errorf("failed to look up %s key: %w", e.Name, err)
		}
		if existing == nil {
			return nil
		}
		for _, name := range issued {
			col, _ := e.Column(name)
			v, _, err := s.generate(e, col)
			if err != nil {
				return err
			}
			if err := rec.Set(name, v); err != nil {
				return err
			}
		}
	}
	return &fixerr.UniquenessExhaustedError{Entity: e.Name, Draws: settings.MaxUniqueDraws}
}

func (s *Seeder) trial(p float64) bool {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < p
}

func (s *Seeder) intn(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Intn(n)
}

// coveredByForeignKeys reports whether every primary key column is a foreign key column.
func coveredByForeignKeys(e *schema.Entity) bool {
	if e.IsKeyless() {
		return false
	}
	for _, pk := range e.PrimaryKey {
		if !e.IsForeignKey(pk) {
			return false
		}
	}
	return true
}

func touchesPrimaryKey(e *schema.Entity, fk schema.ForeignKey) bool {
	for _, m := range fk.Columns {
		if e.IsPrimaryKey(m.Dependent) {
			return true
		}
	}
	return false
}

func cycleError(e *schema.Entity, fk schema.ForeignKey) error {
	return fixerr.NewSchemaError(e.Name, "foreign key %s closes a cycle with no nullable column and no %s row exists; seed %s first",
		fk.Name, fk.Principal, fk.Principal)
}
