// Package proxy serves the matter update and activity-list routes, running
// the diff-reconciliation pipeline around the forwarded upstream calls. The
// pipeline is strictly additive: whatever it does, the caller receives the
// upstream response.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/caselane/matterproxy/internal/auth"
	"github.com/caselane/matterproxy/internal/backend"
	"github.com/caselane/matterproxy/internal/domain"
)

// SnapshotSource reads the current state of a matter.
type SnapshotSource interface {
	FetchMatter(ctx context.Context, matterID string) (domain.Snapshot, error)
}

// Correlator matches a field diff to its activity entry. A nil result is a
// normal miss.
type Correlator interface {
	Correlate(ctx context.Context, matterID, userID string, fields []string) *domain.ActivityEntry
}

// DiffWriter persists correlation results.
type DiffWriter interface {
	Put(ctx context.Context, records []domain.DiffRecord) error
}

// Enricher merges stored diffs into an activity payload.
type Enricher interface {
	Enrich(ctx context.Context, matterID string, payload []byte) []byte
}

// Handler proxies matter routes to the upstream backend.
type Handler struct {
	upstreamURL string
	httpClient  *http.Client
	snapshots   SnapshotSource
	correlator  Correlator
	diffs       DiffWriter
	enricher    Enricher
	now         func() time.Time
}

// NewHandler wires the pipeline around an upstream base URL.
func NewHandler(upstreamURL string, httpClient *http.Client, snapshots SnapshotSource, correlator Correlator, diffs DiffWriter, enricher Enricher) *Handler {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Handler{
		upstreamURL: strings.TrimRight(upstreamURL, "/"),
		httpClient:  httpClient,
		snapshots:   snapshots,
		correlator:  correlator,
		diffs:       diffs,
		enricher:    enricher,
		now:         time.Now,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	matterID, rest := splitMatterPath(r.URL.Path)
	if matterID == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch {
	case rest == "" && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		h.handleUpdate(w, r, matterID)
	case rest == "activities" && r.Method == http.MethodGet:
		h.handleActivityList(w, r, matterID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleUpdate forwards the write and, when tracked fields changed, runs the
// correlation pipeline before the upstream response is relayed. Worst case
// the correlator adds its bounded retry budget to the request latency; the
// diff is then visible on the very next activity read.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request, matterID string) {
	ctx := r.Context()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	before, beforeErr := h.snapshots.FetchMatter(ctx, matterID)
	if beforeErr != nil {
		log.Printf("[PROXY] matter %s: before-snapshot fetch failed, diffing skipped: %v", matterID, beforeErr)
	}

	resp, err := h.forward(ctx, r, matterID, "", body)
	if err != nil {
		log.Printf("[PROXY] matter %s: upstream update failed: %v", matterID, err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	if beforeErr == nil && resp.status >= 200 && resp.status < 300 {
		h.reconcile(ctx, matterID, before, resp.body)
	}

	resp.relay(w)
}

// reconcile computes the field diff, correlates it with the activity feed and
// stores the result. Every failure here is logged and swallowed; the update
// already succeeded upstream.
func (h *Handler) reconcile(ctx context.Context, matterID string, before domain.Snapshot, updateResponse []byte) {
	after, ok := snapshotFromResponse(updateResponse)
	if !ok {
		var err error
		after, err = h.snapshots.FetchMatter(ctx, matterID)
		if err != nil {
			log.Printf("[PROXY] matter %s: after-snapshot fetch failed, diffing skipped: %v", matterID, err)
			return
		}
	}

	fields := domain.ChangedFields(before, after)
	if len(fields) == 0 {
		return
	}

	userID, _ := auth.UserIDFromContext(ctx)
	entry := h.correlator.Correlate(ctx, matterID, userID, fields)
	if entry == nil {
		return
	}

	record := domain.DiffRecord{
		ActivityID: entry.ID,
		MatterID:   matterID,
		Fields:     fields,
		UserID:     userID,
		CreatedAt:  h.now().UTC(),
	}
	if err := h.diffs.Put(ctx, []domain.DiffRecord{record}); err != nil {
		log.Printf("[PROXY] matter %s: diff store put failed for activity %s: %v", matterID, entry.ID, err)
	}
}

// handleActivityList forwards the read and enriches successful responses with
// stored diffs before relaying.
func (h *Handler) handleActivityList(w http.ResponseWriter, r *http.Request, matterID string) {
	resp, err := h.forward(r.Context(), r, matterID, "activities", nil)
	if err != nil {
		log.Printf("[PROXY] matter %s: upstream activity fetch failed: %v", matterID, err)
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
		return
	}

	if resp.status >= 200 && resp.status < 300 && len(resp.body) > 0 {
		resp.body = h.enricher.Enrich(r.Context(), matterID, resp.body)
	}

	resp.relay(w)
}

type upstreamResponse struct {
	status      int
	contentType string
	body        []byte
}

func (u upstreamResponse) relay(w http.ResponseWriter) {
	if u.contentType != "" {
		w.Header().Set("Content-Type", u.contentType)
	}
	w.WriteHeader(u.status)
	w.Write(u.body)
}

func (h *Handler) forward(ctx context.Context, r *http.Request, matterID, subresource string, body []byte) (upstreamResponse, error) {
	url := fmt.Sprintf("%s/matters/%s", h.upstreamURL, matterID)
	if subresource != "" {
		url += "/" + subresource
	}
	if r.URL.RawQuery != "" {
		url += "?" + r.URL.RawQuery
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, url, reader)
	if err != nil {
		return upstreamResponse{}, fmt.Errorf("failed to build upstream request: %w", err)
	}
	if contentType := r.Header.Get("Content-Type"); contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return upstreamResponse{}, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return upstreamResponse{}, fmt.Errorf("failed to read upstream response: %w", err)
	}

	return upstreamResponse{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		body:        respBody,
	}, nil
}

// snapshotFromResponse tries to extract the updated record from the write
// response body, saving a re-fetch when the upstream echoes the record back.
func snapshotFromResponse(body []byte) (domain.Snapshot, bool) {
	if len(body) == 0 {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, false
	}
	record, ok := backend.UnwrapRecord(decoded)
	if !ok || len(record) == 0 {
		return nil, false
	}
	if _, hasID := record["id"]; !hasID {
		return nil, false
	}
	return domain.NewSnapshot(record), true
}

// splitMatterPath parses /matters/{id}[/subresource] into its parts.
func splitMatterPath(path string) (matterID, rest string) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) < 2 || segments[0] != "matters" || segments[1] == "" {
		return "", ""
	}
	return segments[1], strings.Join(segments[2:], "/")
}
