// Package diffstoreapi exposes the diff store over HTTP: an idempotent batch
// upsert and a batch lookup, both scoped to a single matter's keyspace.
package diffstoreapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/caselane/matterproxy/internal/domain"
	"github.com/caselane/matterproxy/internal/repository"
)

// Handler serves /internal/diffs and /internal/lookup.
type Handler struct {
	repo repository.DiffRepository
}

// NewHTTPHandler wraps the repository with the store endpoints.
func NewHTTPHandler(repo repository.DiffRepository) http.Handler {
	return &Handler{repo: repo}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	switch r.URL.Path {
	case "/internal/diffs":
		h.handlePut(w, r)
	case "/internal/lookup":
		h.handleLookup(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type putPayload struct {
	Entries []domain.DiffRecord `json:"entries"`
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	var payload putPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if len(payload.Entries) == 0 {
		http.Error(w, "entries is required", http.StatusBadRequest)
		return
	}
	for _, entry := range payload.Entries {
		if entry.ActivityID == "" || entry.MatterID == "" {
			http.Error(w, "entries require activityId and matterId", http.StatusBadRequest)
			return
		}
		if len(entry.Fields) == 0 {
			http.Error(w, fmt.Sprintf("entry %s has no fields", entry.ActivityID), http.StatusBadRequest)
			return
		}
	}

	if err := h.repo.Upsert(r.Context(), payload.Entries); err != nil {
		log.Printf("[DIFFSTORE] upsert of %d entries failed: %v", len(payload.Entries), err)
		http.Error(w, "failed to store diffs", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type lookupPayload struct {
	MatterID    string   `json:"matterId"`
	ActivityIDs []string `json:"activityIds"`
}

type lookupResult struct {
	Diffs map[string]diffFields `json:"diffs"`
}

type diffFields struct {
	Fields []string `json:"fields"`
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request) {
	var payload lookupPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if payload.MatterID == "" {
		http.Error(w, "matterId is required", http.StatusBadRequest)
		return
	}

	diffs, err := h.repo.Lookup(r.Context(), payload.MatterID, payload.ActivityIDs)
	if err != nil {
		log.Printf("[DIFFSTORE] lookup for matter %s failed: %v", payload.MatterID, err)
		http.Error(w, "failed to look up diffs", http.StatusInternalServerError)
		return
	}

	result := lookupResult{Diffs: make(map[string]diffFields, len(diffs))}
	for id, fields := range diffs {
		result.Diffs[id] = diffFields{Fields: fields}
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[DIFFSTORE] failed to encode response: %v", err)
	}
}
