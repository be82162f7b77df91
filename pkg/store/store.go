package store

import (
	"context"

	"github.com/japaniel/lexigraph/pkg/graph"
)

// Store applies graph mutations. Each Apply call is one independently
// committed unit: it either takes effect entirely or not at all, and a failed
// call never undoes earlier ones.
type Store interface {
	Apply(ctx context.Context, m graph.Mutation) error
	Close(ctx context.Context) error
}
