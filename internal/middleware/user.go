package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/julienbonastre/fullstock/pkg/apierror"
)

// UserHeader carries the application user id set by the hosted auth layer.
const UserHeader = "X-User-ID"

// RequireUser rejects requests without a user id and stores it in the
// request context.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := strings.TrimSpace(r.Header.Get(UserHeader))
		if userID == "" {
			apierror.Unauthorized("").Write(w)
			return
		}

		ctx := context.WithValue(r.Context(), UserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetUserID retrieves the user id stored by RequireUser.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
