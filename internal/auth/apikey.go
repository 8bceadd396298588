// Package auth provides API key and JWT-based tenant authentication for
// the HTTP API.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/mhara/deskrag/internal/repository"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// APIKeyHeader is the request header for API key authentication.
	APIKeyHeader = "X-API-Key"

	// tenantContextKey is the context key for storing tenant info.
	tenantContextKey contextKey = "tenant"
)

// TenantInfo holds tenant information extracted from authentication.
type TenantInfo struct {
	ID     uuid.UUID
	Name   string
	Config repository.RetrievalConfig
}

// Middleware authenticates requests against tenant API keys or issued
// JWT bearer tokens, and gates admin routes behind the admin key.
type Middleware struct {
	tenantRepo  repository.TenantRepository
	jwtManager  *JWTManager
	adminAPIKey string
}

// NewMiddleware creates authentication middleware.
func NewMiddleware(tenantRepo repository.TenantRepository, jwtManager *JWTManager, adminAPIKey string) *Middleware {
	return &Middleware{
		tenantRepo:  tenantRepo,
		jwtManager:  jwtManager,
		adminAPIKey: adminAPIKey,
	}
}

// RequireTenant authenticates a tenant via X-API-Key or a Bearer token
// and stores its info in the request context.
func (m *Middleware) RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, err := m.authenticate(r)
		if err != nil {
			writeAuthError(w, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), tenantContextKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin gates tenant management routes behind the admin API key.
func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.adminAPIKey == "" {
			writeAuthError(w, "admin API key not configured")
			return
		}
		key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if subtle.ConstantTimeCompare([]byte(key), []byte(m.adminAPIKey)) != 1 {
			writeAuthError(w, "invalid admin API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the tenant from either credential type.
func (m *Middleware) authenticate(r *http.Request) (*TenantInfo, error) {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); key != "" {
		tenant, err := m.tenantRepo.GetByAPIKey(r.Context(), key)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, errors.New("invalid API key")
			}
			return nil, errors.New("failed to validate API key")
		}
		return &TenantInfo{ID: tenant.ID, Name: tenant.Name, Config: tenant.Config}, nil
	}

	if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
		if m.jwtManager == nil {
			return nil, errors.New("token authentication not enabled")
		}
		claims, err := m.jwtManager.ValidateToken(strings.TrimPrefix(bearer, "Bearer "))
		if err != nil {
			return nil, errors.New("invalid token")
		}
		tenantID, err := claims.GetTenantID()
		if err != nil {
			return nil, errors.New("invalid tenant in token")
		}
		tenant, err := m.tenantRepo.GetByID(r.Context(), tenantID)
		if err != nil {
			return nil, errors.New("unknown tenant")
		}
		return &TenantInfo{ID: tenant.ID, Name: tenant.Name, Config: tenant.Config}, nil
	}

	return nil, errors.New("missing credentials")
}

// TenantFromContext extracts tenant info from the request context.
func TenantFromContext(ctx context.Context) (*TenantInfo, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(*TenantInfo)
	return tenant, ok
}

func writeAuthError(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
