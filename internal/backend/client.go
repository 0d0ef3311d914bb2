package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/caselane/matterproxy/internal/domain"
)

// Client reads matter snapshots and activity feeds from the authoritative
// upstream backend. It never writes; the proxy forwards writes itself.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// FetchMatter returns the current snapshot of a matter record.
func (c *Client) FetchMatter(ctx context.Context, matterID string) (domain.Snapshot, error) {
	payload, err := c.getJSON(ctx, fmt.Sprintf("%s/matters/%s", c.baseURL, matterID))
	if err != nil {
		return nil, err
	}

	record, ok := UnwrapRecord(payload)
	if !ok {
		return nil, fmt.Errorf("matter %s: unrecognized response envelope", matterID)
	}
	return domain.NewSnapshot(record), nil
}

// FetchActivity returns the current activity feed for a matter, newest state
// as the upstream reports it. Entries that lack an id are skipped.
func (c *Client) FetchActivity(ctx context.Context, matterID string) ([]domain.ActivityEntry, error) {
	payload, err := c.getJSON(ctx, fmt.Sprintf("%s/matters/%s/activities", c.baseURL, matterID))
	if err != nil {
		return nil, err
	}

	list, ok := UnwrapActivityList(payload)
	if !ok {
		return nil, fmt.Errorf("matter %s: unrecognized activity envelope", matterID)
	}

	entries := make([]domain.ActivityEntry, 0, len(list))
	for _, item := range list {
		raw, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry, ok := ParseActivityEntry(matterID, raw)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (c *Client) getJSON(ctx context.Context, url string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var payload any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode upstream response: %w", err)
	}
	return payload, nil
}

// ParseActivityEntry converts a raw feed object into an ActivityEntry.
// Numeric ids are common upstream, so ids normalize to their decimal string
// form. Returns false when the entry has no usable id.
func ParseActivityEntry(matterID string, raw map[string]any) (domain.ActivityEntry, bool) {
	id := StringifyID(raw["id"])
	if id == "" {
		return domain.ActivityEntry{}, false
	}

	entry := domain.ActivityEntry{
		ID:       id,
		MatterID: matterID,
		UserID:   StringifyID(raw["user_id"]),
	}
	if action, ok := raw["action"].(string); ok {
		entry.Action = action
	}
	if metadata, ok := raw["metadata"].(map[string]any); ok {
		entry.Metadata = metadata
	}
	if createdAt, ok := raw["created_at"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, createdAt); err == nil {
			entry.CreatedAt = parsed
		}
	}
	return entry, true
}

// StringifyID renders an upstream identifier (string or JSON number) as a
// string. Fractional numbers and other types yield "".
func StringifyID(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case float64:
		if typed != float64(int64(typed)) {
			return ""
		}
		return strconv.FormatInt(int64(typed), 10)
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}
