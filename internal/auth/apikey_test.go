package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/mhara/deskrag/internal/repository"
)

// stubTenantRepo serves a single tenant from memory.
type stubTenantRepo struct {
	tenant *repository.Tenant
}

func (s *stubTenantRepo) Create(ctx context.Context, tenant *repository.Tenant) error { return nil }

func (s *stubTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	if s.tenant != nil && s.tenant.ID == id {
		return s.tenant, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubTenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*repository.Tenant, error) {
	if s.tenant != nil && s.tenant.APIKey == apiKey {
		return s.tenant, nil
	}
	return nil, repository.ErrNotFound
}

func (s *stubTenantRepo) List(ctx context.Context, limit, offset int) ([]*repository.Tenant, int, error) {
	return nil, 0, nil
}

func (s *stubTenantRepo) Update(ctx context.Context, tenant *repository.Tenant) error { return nil }
func (s *stubTenantRepo) Delete(ctx context.Context, id uuid.UUID) error              { return nil }
func (s *stubTenantRepo) UpdateAPIKey(ctx context.Context, id uuid.UUID, key string) error {
	return nil
}

var _ repository.TenantRepository = (*stubTenantRepo)(nil)

func testTenant() *repository.Tenant {
	return &repository.Tenant{
		ID:     uuid.New(),
		Name:   "acme",
		APIKey: "dk_test_key",
		Config: repository.RetrievalConfig{TopK: 7},
	}
}

func echoTenantHandler(t *testing.T, want *repository.Tenant) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, ok := TenantFromContext(r.Context())
		if !ok {
			t.Error("tenant missing from context")
			return
		}
		if info.ID != want.ID || info.Name != want.Name {
			t.Errorf("context tenant = %s/%s, want %s/%s", info.ID, info.Name, want.ID, want.Name)
		}
		if info.Config.TopK != want.Config.TopK {
			t.Errorf("context config TopK = %d, want %d", info.Config.TopK, want.Config.TopK)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireTenantWithAPIKey(t *testing.T) {
	tenant := testTenant()
	mw := NewMiddleware(&stubTenantRepo{tenant: tenant}, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil)
	req.Header.Set(APIKeyHeader, tenant.APIKey)
	rec := httptest.NewRecorder()

	mw.RequireTenant(echoTenantHandler(t, tenant)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireTenantWithBearerToken(t *testing.T) {
	tenant := testTenant()
	jwtManager := NewJWTManager(DefaultJWTConfig("test-secret"))
	mw := NewMiddleware(&stubTenantRepo{tenant: tenant}, jwtManager, "")

	token, err := jwtManager.GenerateToken(tenant.ID, tenant.Name)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	mw.RequireTenant(echoTenantHandler(t, tenant)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRequireTenantRejections(t *testing.T) {
	tenant := testTenant()
	jwtManager := NewJWTManager(DefaultJWTConfig("test-secret"))
	mw := NewMiddleware(&stubTenantRepo{tenant: tenant}, jwtManager, "")

	tests := []struct {
		name  string
		setup func(*http.Request)
	}{
		{"no credentials", func(r *http.Request) {}},
		{"unknown api key", func(r *http.Request) { r.Header.Set(APIKeyHeader, "dk_wrong") }},
		{"garbage bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer junk") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/retrieve", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()

			called := false
			mw.RequireTenant(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if called {
				t.Error("handler reached without valid credentials")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	mw := NewMiddleware(&stubTenantRepo{}, nil, "admin-secret")

	tests := []struct {
		name       string
		key        string
		wantStatus int
	}{
		{"correct key", "admin-secret", http.StatusOK},
		{"wrong key", "guess", http.StatusUnauthorized},
		{"missing key", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/tenants", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			rec := httptest.NewRecorder()

			mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRequireAdminUnconfigured(t *testing.T) {
	mw := NewMiddleware(&stubTenantRepo{}, nil, "")

	req := httptest.NewRequest(http.MethodGet, "/v1/tenants", nil)
	req.Header.Set(APIKeyHeader, "")
	rec := httptest.NewRecorder()

	mw.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 when no admin key is configured", rec.Code)
	}
}
