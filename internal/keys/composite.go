package keys

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Rana718/seedgraph/internal/fixerr"
	"github.com/Rana718/seedgraph/internal/record"
	"github.com/Rana718/seedgraph/internal/resolver"
)

// pending is a key-bearing foreign key still waiting for a principal.
type pending struct {
	fk      int
	rows    []*record.Record
	presets map[string]any
}

// assignCompositeKey resolves the foreign keys that make up the primary key so that the
// resulting tuple is not used by any persisted row.
func (s *Seeder) assignCompositeKey(ctx context.Context, rec *record.Record, a *record.Accessor, fks []int,
	depth int, settings Settings, log logrus.FieldLogger) error {
	e := rec.Entity()

	var open []pending
	haveRows := true
	for _, i := range fks {
		fk := e.ForeignKeys[i]
		if nav := rec.Navigation(fk.Navigation); fk.Navigation != "" && nav != nil && nav.State() == record.Committed {
			if err := a.SetForeignKey(rec, i, nav.Values(fk.PrincipalColumns())); err != nil {
				return err
			}
			continue
		}
		unset := a.ForeignKeyUnset(rec, i)
		if len(unset) == 0 {
			continue
		}
		presets := s.presets(rec, a, i, unset)
		rows, err := s.candidates(ctx, fk, presets)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			if s.resolution.EdgeKind(e.Name, fk.Name) == resolver.Unsatisfiable {
				return cycleError(e, fk)
			}
			haveRows = false
		}
		open = append(open, pending{fk: i, rows: rows, presets: presets})
	}
	if len(open) == 0 {
		return nil
	}

	canReuse := settings.AllowExistingForeignKeys && haveRows
	if canReuse && (depth >= settings.RecursionLimit || s.trial(settings.ExistingReferenceChance)) {
		used, err := s.usedKeys(ctx, rec)
		if err != nil {
			return err
		}
		ok, draws, err := s.drawUnused(rec, a, open, used, settings)
		if err != nil {
			return err
		}
		if ok {
			log.WithField("draws", draws).Debug("reusing persisted principals for composite key")
			return nil
		}
		if settings.ExistingReferenceChance >= 1 || depth >= settings.RecursionLimit {
			return &fixerr.UniquenessExhaustedError{Entity: e.Name, Draws: draws}
		}
		log.WithField("draws", draws).Debug("composite key space exhausted, materializing principals")
	}

	for _, p := range open {
		fk := e.ForeignKeys[p.fk]
		principal, err := s.materialize(ctx, e, fk.Principal, p.presets, depth, settings)
		if err != nil {
			return err
		}
		if err := a.SetForeignKey(rec, p.fk, principal.Values(fk.PrincipalColumns())); err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) usedKeys(ctx context.Context, rec *record.Record) (map[string]bool, error) {
	e := rec.Entity()
	rows, err := s.source.Query(ctx, e.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s keys: %w", e.Name, err)
	}
	used := make(map[string]bool, len(rows))
	for _, row := range rows {
		used[record.TupleKey(row.Key())] = true
	}
	return used, nil
}

// drawUnused picks one principal row per pending foreign key such that the primary key
// tuple is unused. Candidate spaces within the draw cap are enumerated exactly; larger
// spaces are sampled at random up to the cap. It reports success and the draws made.
func (s *Seeder) drawUnused(rec *record.Record, a *record.Accessor, open []pending, used map[string]bool,
	settings Settings) (bool, int, error) {
	e := rec.Entity()
	apply := func(pick []int) (string, error) {
		for k, p := range open {
			fk := e.ForeignKeys[p.fk]
			if err := a.SetForeignKey(rec, p.fk, p.rows[pick[k]].Values(fk.PrincipalColumns())); err != nil {
				return "", err
			}
		}
		return record.TupleKey(a.PrimaryKey(rec)), nil
	}

	space := 1
	for _, p := range open {
		space *= len(p.rows)
		if space > settings.MaxUniqueDraws {
			break
		}
	}
	pick := make([]int, len(open))

	if space <= settings.MaxUniqueDraws {
		var free [][]int
		for n := 0; n < space; n++ {
			m := n
			for k, p := range open {
				pick[k] = m % len(p.rows)
				m /= len(p.rows)
			}
			key, err := apply(pick)
			if err != nil {
				return false, n + 1, err
			}
			if !used[key] {
				free = append(free, append([]int(nil), pick...))
			}
		}
		if len(free) == 0 {
			return false, space, nil
		}
		_, err := apply(free[s.intn(len(free))])
		return err == nil, space, err
	}

	for draw := 1; draw <= settings.MaxUniqueDraws; draw++ {
		for k, p := range open {
			pick[k] = s.intn(len(p.rows))
		}
		key, err := apply(pick)
		if err != nil {
			return false, draw, err
		}
		if !used[key] {
			return true, draw, nil
		}
	}
	return false, settings.MaxUniqueDraws, nil
}
