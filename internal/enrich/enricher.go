// Package enrich merges stored field diffs into activity-list responses at
// read time. The enriched payload is a drop-in replacement for the upstream
// one: the envelope shape is preserved and only entries with a stored diff
// gain a metadata.changed_fields key.
package enrich

import (
	"context"
	"encoding/json"
	"log"

	"github.com/caselane/matterproxy/internal/backend"
	"github.com/caselane/matterproxy/internal/diffloader"
	"github.com/caselane/matterproxy/internal/middleware"
)

// changedFieldsKey is the metadata key merged into matched entries.
const changedFieldsKey = "changed_fields"

// Enricher annotates activity payloads with stored diffs.
type Enricher struct {
	store diffloader.Store
}

// NewEnricher creates an enricher over the given diff store.
func NewEnricher(store diffloader.Store) *Enricher {
	return &Enricher{store: store}
}

// Enrich returns the payload with changed_fields merged into the metadata of
// every entry that has a stored diff. Every failure degrades to returning the
// payload untouched; enrichment never fails the read path.
func (e *Enricher) Enrich(ctx context.Context, matterID string, payload []byte) []byte {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		log.Printf("[ENRICH] matter %s: activity payload not JSON, passing through: %v", matterID, err)
		return payload
	}

	list, ok := backend.UnwrapActivityList(decoded)
	if !ok {
		log.Printf("[ENRICH] matter %s: unrecognized activity envelope, passing through", matterID)
		return payload
	}

	ids := make([]string, 0, len(list))
	for _, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if id := backend.StringifyID(raw["id"]); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return payload
	}

	diffs, err := e.lookup(ctx, matterID, ids)
	if err != nil {
		log.Printf("[ENRICH] matter %s: diff lookup failed, passing through: %v", matterID, err)
		return payload
	}
	if len(diffs) == 0 {
		return payload
	}

	for _, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		fields, ok := diffs[backend.StringifyID(raw["id"])]
		if !ok {
			continue
		}
		metadata, ok := raw["metadata"].(map[string]any)
		if !ok {
			metadata = map[string]any{}
		}
		metadata[changedFieldsKey] = fields
		raw["metadata"] = metadata
	}

	enriched, err := json.Marshal(decoded)
	if err != nil {
		log.Printf("[ENRICH] matter %s: failed to re-serialize payload, passing through: %v", matterID, err)
		return payload
	}
	return enriched
}

// lookup goes through the request's batched loader when one is installed,
// falling back to a direct store call.
func (e *Enricher) lookup(ctx context.Context, matterID string, ids []string) (map[string][]string, error) {
	if loader := middleware.DiffLoaderFromContext(ctx); loader != nil {
		return loader.LoadAll(ctx, ids)
	}
	return e.store.Lookup(ctx, matterID, ids)
}
