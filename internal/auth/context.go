package auth

import (
	"context"
	"net/http"
)

type contextKey string

const actingUserKey contextKey = "actingUser"

// UserIDHeader is the session-derived header the surrounding proxy sets to
// identify the acting user. System-initiated updates arrive without it.
const UserIDHeader = "X-User-Id"

// ContextWithUserID returns a new context carrying the acting user id.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, actingUserKey, userID)
}

// UserIDFromContext retrieves the acting user id, if any. An empty result
// means the update is system-initiated and correlation skips the actor filter.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	userID, ok := ctx.Value(actingUserKey).(string)
	if !ok || userID == "" {
		return "", false
	}
	return userID, true
}

// UserScopeMiddleware copies the session user header into the request context.
func UserScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ContextWithUserID(r.Context(), r.Header.Get(UserIDHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
