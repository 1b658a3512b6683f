package sdk

import (
	"context"
	"errors"

	"github.com/folio-dev/folio/pkg/schema"
)

var (
	// ErrUnauthorized is returned when the server rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrLoadFailed is returned by List when the server could not read its working file.
	// The server re-initializes its storage before answering, so a retry usually succeeds.
	ErrLoadFailed = errors.New("server failed to load local data")
)

// --- Functional Interfaces (Interface Segregation) ---

// CollectionReader lists the catalogue.
type CollectionReader interface {
	List(ctx context.Context) ([]schema.Collection, error)
}

// CollectionWriter mutates the catalogue. Every method returns the catalogue as
// persisted after the change.
type CollectionWriter interface {
	Upsert(ctx context.Context, record schema.Collection) ([]schema.Collection, error)
	Update(ctx context.Context, record schema.Collection) ([]schema.Collection, error)
	Delete(ctx context.Context, id int) ([]schema.Collection, error)
}

// --- Composite Interfaces ---

// CollectionStore is implemented by the embedded engine and by the remote Client,
// so callers do not need to know which one they were given.
type CollectionStore interface {
	CollectionReader
	CollectionWriter
}
