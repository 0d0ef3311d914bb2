package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchMatterUnwrapsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matters/42" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"matter": {"id": 42, "title": "Smith v. Jones", "status": "open"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	snapshot, err := client.FetchMatter(context.Background(), "42")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if snapshot["title"] != "Smith v. Jones" {
		t.Fatalf("expected title in snapshot, got %#v", snapshot["title"])
	}
}

func TestFetchMatterUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	if _, err := client.FetchMatter(context.Background(), "42"); err == nil {
		t.Fatal("expected error for upstream 502")
	}
}

func TestFetchActivityParsesEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/matters/7/activities" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"activity": [
			{"id": 101, "action": "matter_updated", "user_id": 5, "created_at": "2026-08-29T10:00:00Z"},
			{"id": "102", "action": "note_created", "user_id": "5", "created_at": "2026-08-29T10:01:00Z"},
			{"action": "orphan_without_id"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client())
	entries, err := client.FetchActivity(context.Background(), "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 usable entries, got %d", len(entries))
	}
	if entries[0].ID != "101" || entries[0].Action != "matter_updated" || entries[0].UserID != "5" {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be parsed")
	}
	if entries[0].MatterID != "7" {
		t.Fatalf("expected matter scope on entry, got %q", entries[0].MatterID)
	}
}

func TestStringifyID(t *testing.T) {
	if got := StringifyID(float64(42)); got != "42" {
		t.Fatalf("expected 42, got %q", got)
	}
	if got := StringifyID("abc"); got != "abc" {
		t.Fatalf("expected abc, got %q", got)
	}
	if got := StringifyID(42.5); got != "" {
		t.Fatalf("expected fractional id to be rejected, got %q", got)
	}
	if got := StringifyID(nil); got != "" {
		t.Fatalf("expected nil id to be rejected, got %q", got)
	}
}
