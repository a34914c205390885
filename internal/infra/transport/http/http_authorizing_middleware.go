package http

import (
	"net/http"
	"strings"

	context_ "github.com/jortega/taskdesk/internal/infra/context"
	"github.com/jortega/taskdesk/internal/infra/logging"
)

// SessionVerifier checks a bearer token and returns the acting user's name
// and role. Implemented by the manager service's session layer.
type SessionVerifier func(token string) (name, role string, err error)

// AuthorizingMiddleware creates middleware that requires a valid session token
// in the Authorization header (Bearer scheme). Requests without one are
// rejected; on success the acting user is added to the request context.
func AuthorizingMiddleware(
	next http.Handler,
	verify SessionVerifier,
	log logging.Logger,
) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			log.WarnContext(r.Context(), "no session token provided")
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

			return
		}

		token, _ := strings.CutPrefix(authHeader, "Bearer")
		token = strings.TrimSpace(token)

		name, role, err := verify(token)
		if err != nil {
			log.WarnContext(r.Context(), "session verification failed", "error", err)
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)

			return
		}

		actor := context_.Actor{Name: name, Role: role}

		next.ServeHTTP(w, r.WithContext(context_.WithActor(r.Context(), actor)))
	})
}
