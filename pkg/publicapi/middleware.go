package publicapi

import (
	"context"
	"net/http"

	"github.com/ch1nq/agentarena/internal/httpserver"
	"github.com/ch1nq/agentarena/pkg/imageurl"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext returns the authenticated caller's user id, set by
// BasicAuth on every request that reaches a handler.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}

// TokenValidator checks a plaintext API token against a user's active
// tokens. Satisfied by pkg/token.Store bound to the "api_tokens" table.
type TokenValidator interface {
	Validate(ctx context.Context, userID int64, plaintext string) error
}

// BasicAuth authenticates every request with HTTP Basic auth: username
// "user-{id}", password the caller's API token plaintext (spec §4.7, §6).
// On success the resolved user id is stashed in the request context.
func BasicAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				challenge(w)
				return
			}

			userID, found := imageurl.UserIDFromNamespace(username)
			if !found {
				challenge(w)
				return
			}

			if err := validator.Validate(r.Context(), userID, password); err != nil {
				challenge(w)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func challenge(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="agentarena"`)
	httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing credentials")
}
