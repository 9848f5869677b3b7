package middleware

import (
	"context"
	"net/http"
	"strings"

	"roomchat/internal/service"
)

type contextKey string

const (
	AdminKey      contextKey = "admin"
	ClientAddrKey contextKey = "clientAddr"
)

// AuthMiddleware provides admin JWT authentication middleware
type AuthMiddleware struct {
	adminSvc *service.AdminService
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(adminSvc *service.AdminService) *AuthMiddleware {
	return &AuthMiddleware{adminSvc: adminSvc}
}

// RequireAdmin validates the admin JWT from the Authorization header
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		claims, err := m.adminSvc.ValidateToken(token)
		if err != nil {
			writeError(w, http.StatusForbidden, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), AdminKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AdminSubject returns the admin token subject recorded by RequireAdmin, or
// "" when the request did not pass it.
func AdminSubject(ctx context.Context) string {
	v, _ := ctx.Value(AdminKey).(string)
	return v
}

// BearerToken returns the token of an "Authorization: Bearer" header
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
