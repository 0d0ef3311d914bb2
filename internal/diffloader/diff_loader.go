package diffloader

import (
	"context"
	"time"

	"github.com/graph-gophers/dataloader"
)

// Store is the lookup slice of the diff store the loader batches over.
type Store interface {
	Lookup(ctx context.Context, matterID string, activityIDs []string) (map[string][]string, error)
}

// DiffLoader batches per-activity diff lookups within one matter's keyspace
// so a request issues a single store round trip regardless of fan-out.
type DiffLoader struct {
	Loader *dataloader.Loader
}

// NewDiffLoader creates a loader scoped to one matter.
func NewDiffLoader(store Store, matterID string) *DiffLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := make([]string, len(keys))
		for i, key := range keys {
			ids[i] = key.String()
		}

		diffs, err := store.Lookup(ctx, matterID, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		// Build results in the same order as keys; ids with no stored diff
		// resolve to nil data, mirroring the store's pure-projection contract.
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if fields, ok := diffs[id]; ok {
				results[i] = &dataloader.Result{Data: fields}
			} else {
				results[i] = &dataloader.Result{Data: nil}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &DiffLoader{Loader: loader}
}

// LoadAll resolves the field lists for the given activity ids in one batch.
// The result only contains ids that have a stored diff.
func (l *DiffLoader) LoadAll(ctx context.Context, activityIDs []string) (map[string][]string, error) {
	keys := make(dataloader.Keys, len(activityIDs))
	for i, id := range activityIDs {
		keys[i] = dataloader.StringKey(id)
	}

	thunk := l.Loader.LoadMany(ctx, keys)
	values, errs := thunk()
	if len(errs) > 0 {
		return nil, errs[0]
	}

	result := make(map[string][]string, len(values))
	for i, value := range values {
		fields, ok := value.([]string)
		if !ok || fields == nil {
			continue
		}
		result[activityIDs[i]] = fields
	}
	return result, nil
}
