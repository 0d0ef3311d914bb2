package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/caselane/matterproxy/internal/diffloader"
)

type ctxKey string

const diffLoaderKey ctxKey = "diffLoader"

// DiffLoaderMiddleware attaches a matter-scoped diff loader to the request
// context for routes of the form /matters/{id}/...
func DiffLoaderMiddleware(store diffloader.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			matterID := matterIDFromPath(r.URL.Path)
			if matterID == "" {
				next.ServeHTTP(w, r)
				return
			}

			loader := diffloader.NewDiffLoader(store, matterID)
			ctx := context.WithValue(r.Context(), diffLoaderKey, loader)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DiffLoaderFromContext retrieves the diff loader from context, if present.
func DiffLoaderFromContext(ctx context.Context) *diffloader.DiffLoader {
	if l, ok := ctx.Value(diffLoaderKey).(*diffloader.DiffLoader); ok {
		return l
	}
	return nil
}

func matterIDFromPath(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for idx := 0; idx < len(segments)-1; idx++ {
		if segments[idx] == "matters" {
			return segments[idx+1]
		}
	}
	return ""
}
