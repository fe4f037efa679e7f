package cache

import (
	"context"
	"errors"
)

var (
	ErrNotFound          = errors.New("cache: not found")
	ErrInvalidGeneration = errors.New("cache: invalid generation name")
)

// Store is the persistent request -> response storage, partitioned into named
// generations. Writing the same fingerprint twice replaces the prior entry and
// deleting a generation that does not exist is a no-op.
// Implementations must be safe for concurrent use by multiple goroutines.
type Store interface {
	// Open ensures the generation exists.
	Open(ctx context.Context, generation string) error
	// Get returns the entry stored under fingerprint, or ErrNotFound.
	Get(ctx context.Context, generation, fingerprint string) (Entry, error)
	// Put stores entry under fingerprint, creating the generation if needed.
	Put(ctx context.Context, generation, fingerprint string, entry Entry) error
	DeleteGeneration(ctx context.Context, generation string) error
	ListGenerations(ctx context.Context) ([]string, error)
	Close() error
}

func checkGeneration(name string) error {
	if name == "" {
		return ErrInvalidGeneration
	}
	return nil
}
