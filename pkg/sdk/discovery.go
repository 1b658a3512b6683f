package sdk

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/folio-dev/folio/internal/auth"
	"github.com/folio-dev/folio/internal/config"
	"github.com/folio-dev/folio/internal/engine"
)

const (
	// AddrEnv selects the remote daemon. When unset, New runs the engine in-process.
	AddrEnv = "FOLIO_ADDR"
	// TokenFileEnv overrides the passkey file used as the bearer token.
	TokenFileEnv = "FOLIO_TOKEN_FILE"
)

// New initializes the store based on the environment.
// It returns the interface, so the caller doesn't care if it's local or remote.
//
// In embedded mode the working and backup files are brought up to date with
// Initialize before the store is returned.
func New(ctx context.Context, s *config.Settings, logger *zap.Logger) (CollectionStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if addr := os.Getenv(AddrEnv); addr != "" {
		tokenPath := os.Getenv(TokenFileEnv)
		if tokenPath == "" {
			tokenPath = s.Auth.PasskeyPath
		}
		var opts []ClientOption
		token, err := auth.FilePasskey{Path: tokenPath}.Read()
		if err != nil {
			// Reads still work without a token; mutations will come back unauthorized.
			logger.Warn("no token for remote store", zap.String("path", tokenPath), zap.Error(err))
		} else {
			opts = append(opts, WithToken(token))
		}
		return Connect(addr, opts...), nil
	}

	origin := engine.NewOrigin(s.RemoteFile(),
		engine.WithOriginTimeout(s.Storage.RemoteTimeout),
		engine.WithOriginLogger(logger),
	)
	store := engine.NewCollectionStore(
		engine.Paths{Working: s.WorkingFile(), Backup: s.BackupFile()},
		origin,
		engine.WithLogger(logger),
	)
	if _, err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing embedded store: %w", err)
	}
	return store, nil
}
