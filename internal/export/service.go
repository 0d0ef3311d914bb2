// Package export builds downloadable audit reports: one row per activity
// entry for a matter, with the stored changed-field list alongside.
package export

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/caselane/matterproxy/internal/domain"
)

const sheetName = "Activity"

// ActivitySource reads the activity feed for a matter.
type ActivitySource interface {
	FetchActivity(ctx context.Context, matterID string) ([]domain.ActivityEntry, error)
}

// DiffReader batch-reads stored diffs.
type DiffReader interface {
	Lookup(ctx context.Context, matterID string, activityIDs []string) (map[string][]string, error)
}

// Service assembles activity workbooks.
type Service struct {
	activity ActivitySource
	diffs    DiffReader
}

// NewService creates an export service.
func NewService(activity ActivitySource, diffs DiffReader) *Service {
	return &Service{activity: activity, diffs: diffs}
}

// BuildWorkbook renders the activity feed of a matter as an XLSX workbook.
// Diff lookup failures degrade to an empty changed-fields column; only a
// failed feed fetch aborts the export.
func (s *Service) BuildWorkbook(ctx context.Context, matterID string) (*excelize.File, error) {
	entries, err := s.activity.FetchActivity(ctx, matterID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch activity for matter %s: %w", matterID, err)
	}

	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.ID)
	}

	diffs, err := s.diffs.Lookup(ctx, matterID, ids)
	if err != nil {
		log.Printf("[EXPORT] matter %s: diff lookup failed, exporting without changed fields: %v", matterID, err)
		diffs = map[string][]string{}
	}

	file := excelize.NewFile()
	file.SetSheetName(file.GetSheetName(0), sheetName)

	headers := []string{"Activity ID", "Action", "User", "Created At", "Changed Fields"}
	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to address header cell: %w", err)
		}
		if err := file.SetCellValue(sheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	for rowIdx, entry := range entries {
		values := []any{
			entry.ID,
			entry.Action,
			entry.UserID,
			formatTimestamp(entry.CreatedAt),
			strings.Join(diffs[entry.ID], ", "),
		}
		for col, value := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return nil, fmt.Errorf("failed to address cell: %w", err)
			}
			if err := file.SetCellValue(sheetName, cell, value); err != nil {
				return nil, fmt.Errorf("failed to write row %d: %w", rowIdx+2, err)
			}
		}
	}

	return file, nil
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}
