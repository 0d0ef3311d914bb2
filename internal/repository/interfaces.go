package repository

import (
	"context"

	"github.com/caselane/matterproxy/internal/domain"
)

// DiffRepository defines the storage operations of the diff store service.
type DiffRepository interface {
	// Upsert writes diff records, last write winning per activity id.
	Upsert(ctx context.Context, records []domain.DiffRecord) error
	// Lookup returns the stored field lists for the given activity ids within
	// one matter's keyspace. Ids without a stored diff are absent from the
	// result.
	Lookup(ctx context.Context, matterID string, activityIDs []string) (map[string][]string, error)
}
