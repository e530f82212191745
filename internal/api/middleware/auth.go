package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/dealstream/api/internal/api/response"
	"github.com/dealstream/api/internal/domain"
	"github.com/dealstream/api/internal/security"
)

type contextKey string

const principalKey contextKey = "principal"

// PrincipalResolver looks up the account behind a verified token subject.
type PrincipalResolver interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// Auth is the per-request session guard. It never attempts a refresh itself;
// refresh is a distinct, explicit endpoint.
type Auth struct {
	issuer    *security.TokenIssuer
	principal PrincipalResolver
}

// NewAuth creates the auth middleware
func NewAuth(issuer *security.TokenIssuer, principal PrincipalResolver) *Auth {
	return &Auth{issuer: issuer, principal: principal}
}

// extractToken prefers the Authorization bearer header, then falls back to
// the access-token cookie.
func extractToken(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	if cookie, err := r.Cookie("accessToken"); err == nil {
		return cookie.Value
	}
	return ""
}

// Authenticate resolves a principal from the request token and attaches it to
// the context. Signature verification is CPU-only and fails fast; only a
// verified token pays for one identity read.
func (m *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			response.Unauthorized(w, "authentication required")
			return
		}

		claims, err := m.issuer.VerifyAccess(token)
		if err != nil {
			response.Unauthorized(w, "invalid or expired token")
			return
		}

		user, err := m.principal.GetUserByID(r.Context(), claims.UserID)
		if err != nil {
			response.InternalError(w, "failed to resolve principal")
			return
		}
		if user == nil {
			// Token verifies but the account is gone.
			response.Unauthorized(w, "stale token")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), user)))
	})
}

// WithPrincipal returns a context carrying the authenticated user.
func WithPrincipal(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, principalKey, user)
}

// GetPrincipal gets the authenticated user from context
func GetPrincipal(ctx context.Context) (*domain.User, bool) {
	user, ok := ctx.Value(principalKey).(*domain.User)
	return user, ok
}
