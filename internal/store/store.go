// Package store persists generated records. Each caller stages writes in its own Unit,
// and Commit applies them atomically through Store.Save.
package store

import (
	"context"
	"errors"

	"github.com/Rana718/seedgraph/internal/record"
)

// ErrDuplicateKey is returned when a saved record reuses a persisted primary key.
var ErrDuplicateKey = errors.New("store: duplicate primary key")

// Store is the storage the fixture generator writes to and samples principals from.
type Store interface {
	// Save persists every record in recs, or none of them.
	Save(ctx context.Context, recs ...*record.Record) error
	// Find returns the persisted record of entity with the given primary key, or nil.
	Find(ctx context.Context, entity string, key []any) (*record.Record, error)
	// Query returns every persisted record of entity.
	Query(ctx context.Context, entity string) ([]*record.Record, error)
}

// Unit stages records for one caller. It is not safe for concurrent use; concurrent
// callers each take their own Unit over the same Store.
type Unit struct {
	store  Store
	staged []*record.Record
}

// NewUnit returns an empty Unit writing to st.
func NewUnit(st Store) *Unit {
	return &Unit{store: st}
}

// Add stages rec for the next Commit.
func (u *Unit) Add(_ context.Context, rec *record.Record) error {
	if rec == nil {
		return errors.New("store: nil record")
	}
	u.staged = append(u.staged, rec)
	return nil
}

// Commit saves the staged records and empties the Unit, whether or not the save succeeds.
func (u *Unit) Commit(ctx context.Context) error {
	staged := u.staged
	u.staged = nil
	if len(staged) == 0 {
		return nil
	}
	return u.store.Save(ctx, staged...)
}

// Len returns the number of staged records.
func (u *Unit) Len() int { return len(u.staged) }
