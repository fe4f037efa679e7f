// Package generation tracks which cache generations are current and prunes
// the rest on cutover.
package generation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/leonardcser/swcache/internal/cache"
)

// Kind partitions generations by the traffic they hold.
type Kind string

const (
	Static  Kind = "static"
	Dynamic Kind = "dynamic"
)

// Registry holds the canonical static and dynamic generation names for one
// deployable version. It is immutable after construction.
type Registry struct {
	static  string
	dynamic string
}

var ErrSameName = errors.New("generation: static and dynamic names must differ")

func NewRegistry(static, dynamic string) (*Registry, error) {
	if static == "" || dynamic == "" {
		return nil, cache.ErrInvalidGeneration
	}
	if static == dynamic {
		return nil, ErrSameName
	}
	return &Registry{static: static, dynamic: dynamic}, nil
}

// Name returns the current generation name for kind.
func (r *Registry) Name(kind Kind) string {
	if kind == Static {
		return r.static
	}
	return r.dynamic
}

func (r *Registry) Current() []string { return []string{r.static, r.dynamic} }

func (r *Registry) IsCurrent(name string) bool { return name == r.static || name == r.dynamic }

// Cutover deletes every generation in store that is not current and returns
// the deleted names. It stops at the first deletion error.
func (r *Registry) Cutover(ctx context.Context, store cache.Store, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = zap.NewNop()
	}
	names, err := store.ListGenerations(ctx)
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	var deleted []string
	for _, name := range names {
		if r.IsCurrent(name) {
			continue
		}
		log.Info("deleting stale generation", zap.String("generation", name))
		if err := store.DeleteGeneration(ctx, name); err != nil {
			return deleted, fmt.Errorf("delete generation %q: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}
