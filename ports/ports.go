// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"

	"github.com/artpar/amodule/core/ndarray"
	"github.com/artpar/amodule/domain/run"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher handles API key hashing.
type Hasher interface {
	// Hash creates a hash from plaintext.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// RunStore persists invocation records.
type RunStore interface {
	// Save stores a completed run.
	Save(ctx context.Context, r run.Run) error

	// Get retrieves a run by ID.
	Get(ctx context.Context, id string) (run.Run, error)

	// Recent returns up to limit runs, newest first.
	Recent(ctx context.Context, limit int) ([]run.Run, error)

	// Since returns all runs started at or after t, oldest first.
	Since(ctx context.Context, t time.Time) ([]run.Run, error)
}

// -----------------------------------------------------------------------------
// Observation Ports
// -----------------------------------------------------------------------------

// Observer receives contract checks and invocation outcomes.
type Observer interface {
	// Validated is called after every contract check.
	Validated(method, direction string, ok bool)

	// Invoked is called when an invocation completes.
	Invoked(method string, status run.Status, d time.Duration)
}

// -----------------------------------------------------------------------------
// Codec Ports
// -----------------------------------------------------------------------------

// ImageCodec converts between image files and arrays.
type ImageCodec interface {
	// Decode reads an image. Color images become (h, w, 3), gray images (h, w).
	Decode(data []byte) (*ndarray.Dense[uint8], error)

	// Encode writes an (h, w) or (h, w, 3) array as an image.
	Encode(a *ndarray.Dense[uint8]) ([]byte, error)

	// ReadFile decodes the image at path.
	ReadFile(path string) (*ndarray.Dense[uint8], error)

	// WriteFile encodes a to path.
	WriteFile(path string, a *ndarray.Dense[uint8]) error
}
