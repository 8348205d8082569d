package middleware

import (
	"net/http"

	"github.com/ayush/referral-rewards/backend/internal/auth"
	"github.com/ayush/referral-rewards/backend/internal/backend"
)

// RequireAuth is middleware that validates the session cookie and injects
// the session and its backend access token into the request context.
func RequireAuth(sessions *auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(auth.SessionCookie)
			if err != nil {
				http.Error(w, `{"error":"not authenticated"}`, http.StatusUnauthorized)
				return
			}

			sess, err := sessions.Get(r.Context(), cookie.Value)
			if err != nil || sess == nil {
				http.Error(w, `{"error":"session expired"}`, http.StatusUnauthorized)
				return
			}

			ctx := auth.WithSession(r.Context(), sess)
			ctx = backend.WithAccessToken(ctx, sess.AccessToken)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
