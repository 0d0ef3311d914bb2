package proxy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/caselane/matterproxy/internal/auth"
	"github.com/caselane/matterproxy/internal/domain"
)

type stubSnapshots struct {
	before domain.Snapshot
	after  domain.Snapshot
	calls  int
	err    error
}

func (s *stubSnapshots) FetchMatter(ctx context.Context, matterID string) (domain.Snapshot, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.calls == 1 {
		return s.before, nil
	}
	return s.after, nil
}

type stubCorrelator struct {
	calls  int
	fields []string
	userID string
	entry  *domain.ActivityEntry
}

func (s *stubCorrelator) Correlate(ctx context.Context, matterID, userID string, fields []string) *domain.ActivityEntry {
	s.calls++
	s.fields = fields
	s.userID = userID
	return s.entry
}

type stubDiffWriter struct {
	puts [][]domain.DiffRecord
	err  error
}

func (s *stubDiffWriter) Put(ctx context.Context, records []domain.DiffRecord) error {
	s.puts = append(s.puts, records)
	return s.err
}

type passthroughEnricher struct{}

func (passthroughEnricher) Enrich(ctx context.Context, matterID string, payload []byte) []byte {
	return payload
}

func newUpstream(t *testing.T, updateResponse string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPut:
			w.Write([]byte(updateResponse))
		default:
			w.Write([]byte(`{"activity": []}`))
		}
	}))
}

func TestUpdateStoresDiffOnCorrelationHit(t *testing.T) {
	upstream := newUpstream(t, `{"matter": {"id": 1, "title": "New title", "status": "open"}}`)
	defer upstream.Close()

	snapshots := &stubSnapshots{before: domain.Snapshot{"id": float64(1), "title": "Old title", "status": "open"}}
	correlator := &stubCorrelator{entry: &domain.ActivityEntry{ID: "101", MatterID: "1"}}
	diffs := &stubDiffWriter{}

	handler := NewHandler(upstream.URL, upstream.Client(), snapshots, correlator, diffs, passthroughEnricher{})

	req := httptest.NewRequest(http.MethodPut, "/matters/1", strings.NewReader(`{"title": "New title"}`))
	req = req.WithContext(auth.ContextWithUserID(req.Context(), "5"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected update to succeed, got %d", rec.Code)
	}
	if correlator.calls != 1 {
		t.Fatalf("expected one correlation attempt, got %d", correlator.calls)
	}
	if !reflect.DeepEqual(correlator.fields, []string{"title"}) {
		t.Fatalf("expected diff [title], got %v", correlator.fields)
	}
	if correlator.userID != "5" {
		t.Fatalf("expected actor to reach the correlator, got %q", correlator.userID)
	}
	if len(diffs.puts) != 1 || len(diffs.puts[0]) != 1 {
		t.Fatalf("expected exactly one stored record, got %+v", diffs.puts)
	}
	record := diffs.puts[0][0]
	if record.ActivityID != "101" || record.MatterID != "1" || !reflect.DeepEqual(record.Fields, []string{"title"}) {
		t.Fatalf("unexpected record: %+v", record)
	}
}

func TestUpdateEmptyDiffSkipsCorrelation(t *testing.T) {
	// description flips between empty string and null: not a change.
	upstream := newUpstream(t, `{"matter": {"id": 1, "title": "Same", "description": null}}`)
	defer upstream.Close()

	snapshots := &stubSnapshots{before: domain.Snapshot{"id": float64(1), "title": "Same", "description": ""}}
	correlator := &stubCorrelator{entry: &domain.ActivityEntry{ID: "101"}}
	diffs := &stubDiffWriter{}

	handler := NewHandler(upstream.URL, upstream.Client(), snapshots, correlator, diffs, passthroughEnricher{})

	req := httptest.NewRequest(http.MethodPut, "/matters/1", strings.NewReader(`{"description": null}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected update to succeed, got %d", rec.Code)
	}
	if correlator.calls != 0 {
		t.Fatal("empty diff must never reach the correlator")
	}
	if len(diffs.puts) != 0 {
		t.Fatal("empty diff must never be stored")
	}
}

func TestUpdateCorrelationMissStillSucceeds(t *testing.T) {
	upstream := newUpstream(t, `{"matter": {"id": 1, "title": "Changed"}}`)
	defer upstream.Close()

	snapshots := &stubSnapshots{before: domain.Snapshot{"id": float64(1), "title": "Original"}}
	correlator := &stubCorrelator{entry: nil}
	diffs := &stubDiffWriter{}

	handler := NewHandler(upstream.URL, upstream.Client(), snapshots, correlator, diffs, passthroughEnricher{})

	req := httptest.NewRequest(http.MethodPut, "/matters/1", strings.NewReader(`{"title": "Changed"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("correlation miss must not fail the update, got %d", rec.Code)
	}
	if correlator.calls != 1 {
		t.Fatalf("expected correlation attempt, got %d", correlator.calls)
	}
	if len(diffs.puts) != 0 {
		t.Fatal("no record may be stored without a correlation match")
	}
}

func TestUpdateRefetchesWhenResponseHasNoRecord(t *testing.T) {
	upstream := newUpstream(t, `{"ok": true}`)
	defer upstream.Close()

	snapshots := &stubSnapshots{
		before: domain.Snapshot{"id": float64(1), "status": "open"},
		after:  domain.Snapshot{"id": float64(1), "status": "closed"},
	}
	correlator := &stubCorrelator{entry: &domain.ActivityEntry{ID: "300"}}
	diffs := &stubDiffWriter{}

	handler := NewHandler(upstream.URL, upstream.Client(), snapshots, correlator, diffs, passthroughEnricher{})

	req := httptest.NewRequest(http.MethodPut, "/matters/1", strings.NewReader(`{"status": "closed"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if snapshots.calls != 2 {
		t.Fatalf("expected before and after fetches, got %d", snapshots.calls)
	}
	if !reflect.DeepEqual(correlator.fields, []string{"status"}) {
		t.Fatalf("expected diff [status], got %v", correlator.fields)
	}
}

func TestUpdateStoreFailureIsSwallowed(t *testing.T) {
	upstream := newUpstream(t, `{"matter": {"id": 1, "title": "Changed"}}`)
	defer upstream.Close()

	snapshots := &stubSnapshots{before: domain.Snapshot{"id": float64(1), "title": "Original"}}
	correlator := &stubCorrelator{entry: &domain.ActivityEntry{ID: "101"}}
	diffs := &stubDiffWriter{err: storeUnreachableErr{}}

	handler := NewHandler(upstream.URL, upstream.Client(), snapshots, correlator, diffs, passthroughEnricher{})

	req := httptest.NewRequest(http.MethodPut, "/matters/1", strings.NewReader(`{"title": "Changed"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("store failure must not fail the update, got %d", rec.Code)
	}
}

type storeUnreachableErr struct{}

func (storeUnreachableErr) Error() string { return "store unreachable" }

func TestUpdateUpstreamErrorSkipsPipeline(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": "conflict"}`, http.StatusConflict)
	}))
	defer upstream.Close()

	snapshots := &stubSnapshots{before: domain.Snapshot{"id": float64(1), "title": "A"}}
	correlator := &stubCorrelator{}
	diffs := &stubDiffWriter{}

	handler := NewHandler(upstream.URL, upstream.Client(), snapshots, correlator, diffs, passthroughEnricher{})

	req := httptest.NewRequest(http.MethodPut, "/matters/1", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("upstream status must relay as-is, got %d", rec.Code)
	}
	if correlator.calls != 0 {
		t.Fatal("failed updates must not run the pipeline")
	}
}

func TestActivityListRelaysEnrichedBody(t *testing.T) {
	upstreamBody := `{"activity": [{"id": 101, "action": "matter_updated"}]}`
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matters/7/activities" {
			t.Errorf("unexpected upstream path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(upstreamBody))
	}))
	defer upstream.Close()

	handler := NewHandler(upstream.URL, upstream.Client(), &stubSnapshots{}, &stubCorrelator{}, &stubDiffWriter{}, markerEnricher{})

	req := httptest.NewRequest(http.MethodGet, "/matters/7/activities", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if decoded["enriched"] != true {
		t.Fatal("expected the enricher to run on the relayed body")
	}
}

type markerEnricher struct{}

func (markerEnricher) Enrich(ctx context.Context, matterID string, payload []byte) []byte {
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return payload
	}
	decoded["enriched"] = true
	out, err := json.Marshal(decoded)
	if err != nil {
		return payload
	}
	return out
}

func TestUnknownRouteIs404(t *testing.T) {
	handler := NewHandler("http://unused", nil, &stubSnapshots{}, &stubCorrelator{}, &stubDiffWriter{}, passthroughEnricher{})

	req := httptest.NewRequest(http.MethodGet, "/conversations/1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
