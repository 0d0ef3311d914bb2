// Package diffstore is the client side of the per-matter diff store: an
// idempotent keyed store of {activity id -> changed fields} associations.
// The store is an enrichment layer, never a dependency the update or read
// path may fail on; callers log and swallow every error from it.
package diffstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/caselane/matterproxy/internal/domain"
)

// Client talks to the diff store service over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a diff store client for the given base URL.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

type putRequest struct {
	Entries []domain.DiffRecord `json:"entries"`
}

type lookupRequest struct {
	MatterID    string   `json:"matterId"`
	ActivityIDs []string `json:"activityIds"`
}

type lookupResponse struct {
	Diffs map[string]struct {
		Fields []string `json:"fields"`
	} `json:"diffs"`
}

// Put upserts diff records, last write wins per activity id. Records with an
// empty field list are rejected client-side; the store must never hold one.
func (c *Client) Put(ctx context.Context, records []domain.DiffRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if len(record.Fields) == 0 {
			return fmt.Errorf("diff record %s has no fields", record.ActivityID)
		}
	}

	return c.postJSON(ctx, "/internal/diffs", putRequest{Entries: records}, nil)
}

// Lookup batch-reads the stored field lists for the given activity ids within
// one matter's keyspace. Ids with no stored diff are absent from the result.
func (c *Client) Lookup(ctx context.Context, matterID string, activityIDs []string) (map[string][]string, error) {
	if len(activityIDs) == 0 {
		return map[string][]string{}, nil
	}

	var decoded lookupResponse
	err := c.postJSON(ctx, "/internal/lookup", lookupRequest{MatterID: matterID, ActivityIDs: activityIDs}, &decoded)
	if err != nil {
		return nil, err
	}

	result := make(map[string][]string, len(decoded.Diffs))
	for id, diff := range decoded.Diffs {
		result[id] = diff.Fields
	}
	return result, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("diff store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("diff store returned status %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode diff store response: %w", err)
	}
	return nil
}
