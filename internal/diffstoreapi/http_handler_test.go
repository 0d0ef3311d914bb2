package diffstoreapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/caselane/matterproxy/internal/domain"
)

type stubRepo struct {
	upserts [][]domain.DiffRecord
	diffs   map[string][]string
}

func (s *stubRepo) Upsert(ctx context.Context, records []domain.DiffRecord) error {
	s.upserts = append(s.upserts, records)
	return nil
}

func (s *stubRepo) Lookup(ctx context.Context, matterID string, activityIDs []string) (map[string][]string, error) {
	result := make(map[string][]string)
	for _, id := range activityIDs {
		if fields, ok := s.diffs[id]; ok {
			result[id] = fields
		}
	}
	return result, nil
}

func TestPutEndpointStoresEntries(t *testing.T) {
	repo := &stubRepo{}
	handler := NewHTTPHandler(repo)

	body := `{"entries": [{"activityId": "101", "matterId": "m1", "fields": ["title"], "userId": "5"}]}`
	req := httptest.NewRequest(http.MethodPost, "/internal/diffs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(repo.upserts) != 1 || repo.upserts[0][0].ActivityID != "101" {
		t.Fatalf("unexpected upserts: %+v", repo.upserts)
	}
}

func TestPutEndpointRejectsEmptyFieldList(t *testing.T) {
	handler := NewHTTPHandler(&stubRepo{})

	body := `{"entries": [{"activityId": "101", "matterId": "m1", "fields": []}]}`
	req := httptest.NewRequest(http.MethodPost, "/internal/diffs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty fields, got %d", rec.Code)
	}
}

func TestLookupEndpointProjectsStoredDiffs(t *testing.T) {
	repo := &stubRepo{diffs: map[string][]string{"101": {"title", "status"}}}
	handler := NewHTTPHandler(repo)

	body := `{"matterId": "m1", "activityIds": ["101", "102"]}`
	req := httptest.NewRequest(http.MethodPost, "/internal/lookup", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var decoded lookupResult
	if err := json.NewDecoder(rec.Body).Decode(&decoded); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if !reflect.DeepEqual(decoded.Diffs["101"].Fields, []string{"title", "status"}) {
		t.Fatalf("unexpected diffs: %+v", decoded.Diffs)
	}
	if _, present := decoded.Diffs["102"]; present {
		t.Fatal("ids without stored diffs must be absent from the response")
	}
}

func TestLookupEndpointRequiresMatterID(t *testing.T) {
	handler := NewHTTPHandler(&stubRepo{})

	req := httptest.NewRequest(http.MethodPost, "/internal/lookup", strings.NewReader(`{"activityIds": ["1"]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without matter scope, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := NewHTTPHandler(&stubRepo{})

	req := httptest.NewRequest(http.MethodGet, "/internal/diffs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}
