package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/folio-dev/folio/pkg/schema"
)

// LoadWithFallback reads the working file, falling back to the remote origin.
// When both fail it returns an empty slice and an error matching ErrNoSource,
// so the caller can tell "nothing to load" from "loaded an empty catalogue".
func (s *CollectionStore) LoadWithFallback(ctx context.Context) ([]schema.Collection, Source, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadWithFallback(ctx)
}

func (s *CollectionStore) loadWithFallback(ctx context.Context) ([]schema.Collection, Source, error) {
	s.logger.Info("loading local projects data", zap.String("path", s.paths.Working))
	collections, localErr := s.persister.Load(s.paths.Working)
	if localErr == nil {
		return collections, SourceLocal, nil
	}
	s.logger.Warn("failed to load local projects file", zap.Error(localErr))

	if s.origin == nil {
		return []schema.Collection{}, SourceNone, fmt.Errorf("%w: %w", ErrNoSource, localErr)
	}

	s.logger.Info("loading remote projects data")
	collections, remoteErr := s.origin.Fetch(ctx)
	if remoteErr == nil {
		return collections, SourceRemote, nil
	}
	s.logger.Warn("could not load remote projects file", zap.Error(remoteErr))

	return []schema.Collection{}, SourceNone, fmt.Errorf("%w: %w", ErrNoSource, errors.Join(localErr, remoteErr))
}

// Initialize brings the working and backup files in line with the best available source.
// If neither the working file nor the origin can be read, a single placeholder record is
// written so the working file always exists afterwards.
//
// Ids from either source are renumbered to positions before writing. If ctx ends
// before a source could be read, nothing is written and the context error is returned.
//
// Only a failed working-file write is returned; a failed backup write is logged.
func (s *CollectionStore) Initialize(ctx context.Context) (Source, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	collections, source, err := s.loadWithFallback(ctx)
	if err != nil && ctx.Err() != nil {
		// A cancelled caller says nothing about the sources; keep what is on disk.
		s.logger.Warn("initialization interrupted, files left unchanged", zap.Error(err))
		return SourceNone, fmt.Errorf("initialize interrupted: %w", ctx.Err())
	}
	if err != nil {
		s.logger.Warn("could not initialize projects data, creating placeholder", zap.Error(err))
		collections = []schema.Collection{schema.Placeholder(0, s.now())}
		source = SourcePlaceholder
	}
	if !schema.Dense(collections) {
		s.logger.Warn("renumbering non-contiguous collection ids", zap.String("source", source.String()))
		schema.Reindex(collections)
	}

	if err := s.persister.Save(s.paths.Working, collections); err != nil {
		s.logger.Error("failed to create working file", zap.String("path", s.paths.Working), zap.Error(err))
		s.metrics.ObserveStore("initialize", err, 0)
		return source, err
	}
	if err := s.persister.Save(s.paths.Backup, collections); err != nil {
		s.logger.Warn("failed to create backup file", zap.String("path", s.paths.Backup), zap.Error(err))
	}

	s.logger.Info("local files synced",
		zap.String("source", source.String()),
		zap.Int("collections", len(collections)),
	)
	s.metrics.ObserveSync(source.String())
	s.metrics.ObserveStore("initialize", nil, len(collections))
	return source, nil
}

// Reinitialize runs Initialize, collapsing concurrent callers into a single run.
// The run is detached from ctx cancellation since its result is shared by every
// waiting caller; the origin timeout still bounds it.
func (s *CollectionStore) Reinitialize(ctx context.Context) error {
	detached := context.WithoutCancel(ctx)
	_, err, shared := s.reinit.Do("initialize", func() (any, error) {
		return s.Initialize(detached)
	})
	if shared {
		s.logger.Debug("joined in-flight re-initialization")
	}
	return err
}
