package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// SessionMiddleware resolves the guest session from the X-Session-ID header
// and issues a fresh one when the client has none yet. The session id is the
// cart key; there is no account login in the guest flow.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.Header.Get("X-Session-ID")
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), "session_id", sessionID)
		w.Header().Set("X-Session-ID", sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getSessionIDFromContext(ctx context.Context) string {
	if sessionID, ok := ctx.Value("session_id").(string); ok {
		return sessionID
	}
	return ""
}
