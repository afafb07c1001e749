package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/kbforge/kbforge/pkg/contextkeys"
	"github.com/kbforge/kbforge/pkg/directory"
	"github.com/kbforge/kbforge/pkg/session"
)

// SessionCookieName is the cookie carrying the session token
const SessionCookieName = "kbforge_session"

// AuthContext carries the authenticated caller through the request context
type AuthContext struct {
	User      *directory.User
	Session   *session.Session
	IPAddress string
}

// IsAdmin reports whether the caller holds the admin role
func (a *AuthContext) IsAdmin() bool {
	return a.User != nil && a.User.IsAdmin()
}

// UserLoader is the directory lookup the auth middleware needs
type UserLoader interface {
	UserByID(ctx context.Context, userID int64) (*directory.User, error)
}

// SessionAuth resolves the session token (cookie or bearer) to a user and
// attaches an AuthContext. Requests without a valid session pass through
// unauthenticated; RequireAuth and RequireAdmin do the gating.
func SessionAuth(sessions *session.Store, users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := sessions.Get(r.Context(), token)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			user, err := users.UserByID(r.Context(), sess.UserID)
			if err != nil || !user.IsActive {
				next.ServeHTTP(w, r)
				return
			}

			authCtx := &AuthContext{
				User:      user,
				Session:   sess,
				IPAddress: clientIP(r),
			}
			ctx := contextkeys.WithAuth(r.Context(), authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthContext retrieves the authenticated caller from the context
func GetAuthContext(ctx context.Context) (*AuthContext, bool) {
	authCtx, ok := ctx.Value(contextkeys.AuthKey).(*AuthContext)
	return authCtx, ok && authCtx != nil && authCtx.User != nil
}

// RequireAuth rejects unauthenticated requests with 401
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetAuthContext(r.Context()); !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects unauthenticated requests with 401 and non-admin
// callers with 403
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authCtx, ok := GetAuthContext(r.Context())
		if !ok {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		if !authCtx.IsAdmin() {
			http.Error(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// extractToken pulls the session token from the cookie or the Authorization
// header. The cookie wins when both are present.
func extractToken(r *http.Request) string {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return ""
}

// clientIP extracts the originating client address, preferring the first
// X-Forwarded-For hop set by the ingress proxy.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
