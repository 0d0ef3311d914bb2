package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caselane/matterproxy/internal/domain"
)

// diffRepository implements DiffRepository on Postgres.
type diffRepository struct {
	pool *pgxpool.Pool
}

// NewDiffRepository creates a Postgres-backed diff repository.
func NewDiffRepository(pool *pgxpool.Pool) DiffRepository {
	return &diffRepository{pool: pool}
}

const upsertDiffSQL = `
INSERT INTO matter_diffs (activity_id, matter_id, fields, user_id, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (activity_id) DO UPDATE SET
    matter_id = EXCLUDED.matter_id,
    fields = EXCLUDED.fields,
    user_id = EXCLUDED.user_id,
    created_at = EXCLUDED.created_at`

// Upsert writes the records in one batch; duplicates within the batch and
// across retries resolve last-write-wins on activity_id, so no locking is
// needed for concurrent writers.
func (r *diffRepository) Upsert(ctx context.Context, records []domain.DiffRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		if record.ActivityID == "" {
			return fmt.Errorf("diff record missing activity id")
		}
		if record.MatterID == "" {
			return fmt.Errorf("diff record %s missing matter id", record.ActivityID)
		}
		if len(record.Fields) == 0 {
			return fmt.Errorf("diff record %s has no fields", record.ActivityID)
		}

		fieldsJSON, err := json.Marshal(record.Fields)
		if err != nil {
			return fmt.Errorf("failed to marshal fields for %s: %w", record.ActivityID, err)
		}

		createdAt := record.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}

		batch.Queue(upsertDiffSQL, record.ActivityID, record.MatterID, fieldsJSON, nullableText(record.UserID), createdAt)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert diff record: %w", err)
		}
	}
	return nil
}

const lookupDiffSQL = `
SELECT activity_id, fields
FROM matter_diffs
WHERE matter_id = $1 AND activity_id = ANY($2)`

// Lookup is a pure projection over the stored records.
func (r *diffRepository) Lookup(ctx context.Context, matterID string, activityIDs []string) (map[string][]string, error) {
	result := make(map[string][]string, len(activityIDs))
	if len(activityIDs) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, lookupDiffSQL, matterID, activityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up diffs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var activityID string
		var fieldsJSON []byte
		if err := rows.Scan(&activityID, &fieldsJSON); err != nil {
			return nil, fmt.Errorf("failed to scan diff row: %w", err)
		}

		var fields []string
		if err := json.Unmarshal(fieldsJSON, &fields); err != nil {
			return nil, fmt.Errorf("failed to decode fields for %s: %w", activityID, err)
		}
		result[activityID] = fields
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read diff rows: %w", err)
	}

	return result, nil
}

func nullableText(value string) any {
	if value == "" {
		return nil
	}
	return value
}
