package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/folio-dev/folio/internal/metrics"
	"github.com/folio-dev/folio/pkg/schema"
)

// CollectionStore owns the working and backup catalogue files.
// The working file on disk is the only state; every call re-reads it.
type CollectionStore struct {
	// mu serializes mutations so concurrent writers cannot lose updates.
	// List takes the read side.
	mu        sync.RWMutex
	paths     Paths
	origin    Fetcher
	persister *Persistence
	logger    *zap.Logger
	metrics   *metrics.Collector
	now       func() time.Time
	reinit    singleflight.Group
}

// Option configures a CollectionStore.
type Option func(*CollectionStore)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *CollectionStore) { s.logger = l }
}

// WithMetrics records operation outcomes on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *CollectionStore) { s.metrics = c }
}

// WithClock overrides the clock used to stamp placeholder records.
func WithClock(now func() time.Time) Option {
	return func(s *CollectionStore) { s.now = now }
}

// WithPersistence shares a persistence handler between stores.
func WithPersistence(p *Persistence) Option {
	return func(s *CollectionStore) { s.persister = p }
}

// NewCollectionStore creates a store over paths. origin may be nil, in which case
// a missing working file always falls through to the placeholder record.
func NewCollectionStore(paths Paths, origin Fetcher, opts ...Option) *CollectionStore {
	s := &CollectionStore{
		paths:     paths,
		origin:    origin,
		persister: NewPersistence(),
		logger:    zap.NewNop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Paths returns the working and backup locations.
func (s *CollectionStore) Paths() Paths {
	return s.paths
}

// List returns the current catalogue.
func (s *CollectionStore) List(ctx context.Context) ([]schema.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	collections, err := s.persister.Load(s.paths.Working)
	s.metrics.ObserveStore("list", err, len(collections))
	return collections, err
}

// Upsert replaces the record whose id matches record.ID, or appends record.
// An appended record gets the next free id, whatever the caller sent.
func (s *CollectionStore) Upsert(ctx context.Context, record schema.Collection) ([]schema.Collection, error) {
	return s.mutate(ctx, "upsert", func(collections []schema.Collection) ([]schema.Collection, error) {
		if i := indexOf(collections, record.ID); i >= 0 {
			record.ID = i
			collections[i] = record
			return collections, nil
		}
		record.ID = len(collections)
		return append(collections, record), nil
	})
}

// Update replaces the record whose id matches record.ID.
// It fails with an *IndexError if there is none.
func (s *CollectionStore) Update(ctx context.Context, record schema.Collection) ([]schema.Collection, error) {
	return s.mutate(ctx, "update", func(collections []schema.Collection) ([]schema.Collection, error) {
		i := indexOf(collections, record.ID)
		if i < 0 {
			return nil, &IndexError{ID: record.ID, Len: len(collections)}
		}
		record.ID = i
		collections[i] = record
		return collections, nil
	})
}

// Delete removes the record at position id and renumbers the rest.
func (s *CollectionStore) Delete(ctx context.Context, id int) ([]schema.Collection, error) {
	return s.mutate(ctx, "delete", func(collections []schema.Collection) ([]schema.Collection, error) {
		if id < 0 || id >= len(collections) {
			return nil, &IndexError{ID: id, Len: len(collections)}
		}
		collections = append(collections[:id], collections[id+1:]...)
		schema.Reindex(collections)
		return collections, nil
	})
}

// mutate runs one read-modify-write cycle on the working file under the write lock.
// Ids are renumbered to positions before saving. Nothing is written when fn fails.
// The backup file is never touched here.
func (s *CollectionStore) mutate(ctx context.Context, op string, fn func([]schema.Collection) ([]schema.Collection, error)) ([]schema.Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	collections, err := s.persister.Load(s.paths.Working)
	if err != nil {
		s.metrics.ObserveStore(op, err, 0)
		return nil, err
	}

	collections, err = fn(collections)
	if err == nil {
		// Files edited by hand or seeded from the origin may not be dense yet.
		schema.Reindex(collections)
		err = s.persister.Save(s.paths.Working, collections)
	}
	s.metrics.ObserveStore(op, err, len(collections))
	if err != nil {
		var idxErr *IndexError
		if !errors.As(err, &idxErr) {
			s.logger.Error("collection write failed", zap.String("op", op), zap.Error(err))
		}
		return nil, err
	}
	return collections, nil
}

// indexOf returns the position of the record with the given id, or -1.
func indexOf(collections []schema.Collection, id int) int {
	for i, c := range collections {
		if c.ID == id {
			return i
		}
	}
	return -1
}
