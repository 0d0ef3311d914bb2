package export

import (
	"fmt"
	"log"
	"net/http"
	"strings"
)

// Handler serves GET /matters/{id}/activity/export.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with the download endpoint.
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	matterID := matterIDFromExportPath(r.URL.Path)
	if matterID == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	workbook, err := h.service.BuildWorkbook(r.Context(), matterID)
	if err != nil {
		log.Printf("[EXPORT] matter %s: export failed: %v", matterID, err)
		http.Error(w, "failed to build export", http.StatusBadGateway)
		return
	}
	defer workbook.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="matter-%s-activity.xlsx"`, matterID))
	if err := workbook.Write(w); err != nil {
		log.Printf("[EXPORT] matter %s: failed to stream workbook: %v", matterID, err)
	}
}

// matterIDFromExportPath parses /matters/{id}/activity/export.
func matterIDFromExportPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) != 4 || segments[0] != "matters" || segments[2] != "activity" || segments[3] != "export" {
		return ""
	}
	return segments[1]
}
