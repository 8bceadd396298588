package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mhara/deskrag/internal/repository"
)

// memTenantRepo is an in-memory TenantRepository for service tests.
type memTenantRepo struct {
	tenants map[uuid.UUID]*repository.Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[uuid.UUID]*repository.Tenant)}
}

func (m *memTenantRepo) Create(ctx context.Context, tenant *repository.Tenant) error {
	copied := *tenant
	m.tenants[tenant.ID] = &copied
	return nil
}

func (m *memTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	if t, ok := m.tenants[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *memTenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*repository.Tenant, error) {
	for _, t := range m.tenants {
		if t.APIKey == apiKey {
			copied := *t
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memTenantRepo) List(ctx context.Context, limit, offset int) ([]*repository.Tenant, int, error) {
	var out []*repository.Tenant
	for _, t := range m.tenants {
		copied := *t
		out = append(out, &copied)
	}
	return out, len(m.tenants), nil
}

func (m *memTenantRepo) Update(ctx context.Context, tenant *repository.Tenant) error {
	if _, ok := m.tenants[tenant.ID]; !ok {
		return repository.ErrNotFound
	}
	copied := *tenant
	m.tenants[tenant.ID] = &copied
	return nil
}

func (m *memTenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.tenants[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.tenants, id)
	return nil
}

func (m *memTenantRepo) UpdateAPIKey(ctx context.Context, id uuid.UUID, newAPIKey string) error {
	t, ok := m.tenants[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.APIKey = newAPIKey
	return nil
}

var _ repository.TenantRepository = (*memTenantRepo)(nil)

// stubProvisioner records collection lifecycle calls.
type stubProvisioner struct {
	provisioned  []string
	dropped      []string
	provisionErr error
}

func (s *stubProvisioner) Provision(ctx context.Context, tenantID string, dimension int) error {
	if s.provisionErr != nil {
		return s.provisionErr
	}
	s.provisioned = append(s.provisioned, tenantID)
	return nil
}

func (s *stubProvisioner) Drop(ctx context.Context, tenantID string) error {
	s.dropped = append(s.dropped, tenantID)
	return nil
}

func TestTenantCreateSeedsDefaultsAndProvisions(t *testing.T) {
	repo := newMemTenantRepo()
	prov := &stubProvisioner{}
	svc := NewTenantService(repo, prov, nil, 768, testDefaults(), nil)

	tenant, err := svc.Create(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !strings.HasPrefix(tenant.APIKey, "dk_") {
		t.Errorf("api key = %q, want dk_ prefix", tenant.APIKey)
	}
	if tenant.Config.TopK != 5 || tenant.Config.RRFK != 60 || !tenant.Config.RerankerEnabled {
		t.Errorf("config = %+v, want service defaults seeded", tenant.Config)
	}
	if len(prov.provisioned) != 1 || prov.provisioned[0] != tenant.ID.String() {
		t.Errorf("provisioned = %v, want [%s]", prov.provisioned, tenant.ID)
	}
}

func TestTenantCreateSurfacesProvisioningFailure(t *testing.T) {
	repo := newMemTenantRepo()
	prov := &stubProvisioner{provisionErr: errors.New("qdrant unreachable")}
	svc := NewTenantService(repo, prov, nil, 768, testDefaults(), nil)

	if _, err := svc.Create(context.Background(), "acme"); err == nil {
		t.Fatal("Create() succeeded, want provisioning error")
	}
}

func TestTenantCreateRequiresName(t *testing.T) {
	svc := NewTenantService(newMemTenantRepo(), &stubProvisioner{}, nil, 768, testDefaults(), nil)

	if _, err := svc.Create(context.Background(), ""); err == nil {
		t.Fatal("Create(\"\") succeeded, want error")
	}
}

func TestTenantDeleteDropsCollection(t *testing.T) {
	repo := newMemTenantRepo()
	prov := &stubProvisioner{}
	svc := NewTenantService(repo, prov, nil, 768, testDefaults(), nil)

	tenant, err := svc.Create(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := svc.Delete(context.Background(), tenant.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if len(prov.dropped) != 1 || prov.dropped[0] != tenant.ID.String() {
		t.Errorf("dropped = %v, want [%s]", prov.dropped, tenant.ID)
	}
	if _, err := svc.Get(context.Background(), tenant.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}
}

func TestTenantDeleteUnknown(t *testing.T) {
	svc := NewTenantService(newMemTenantRepo(), &stubProvisioner{}, nil, 768, testDefaults(), nil)

	if err := svc.Delete(context.Background(), uuid.New()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestTenantUpdateConfig(t *testing.T) {
	repo := newMemTenantRepo()
	svc := NewTenantService(repo, &stubProvisioner{}, nil, 768, testDefaults(), nil)

	tenant, err := svc.Create(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	updated, err := svc.UpdateConfig(context.Background(), tenant.ID, repository.RetrievalConfig{
		TopK:            12,
		RerankerEnabled: false,
	})
	if err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	if updated.Config.TopK != 12 || updated.Config.RerankerEnabled {
		t.Errorf("config = %+v, want TopK 12 and reranker disabled", updated.Config)
	}

	stored, err := svc.Get(context.Background(), tenant.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if stored.Config.TopK != 12 {
		t.Errorf("stored TopK = %d, want 12", stored.Config.TopK)
	}
}

func TestTenantRegenerateAPIKey(t *testing.T) {
	repo := newMemTenantRepo()
	svc := NewTenantService(repo, &stubProvisioner{}, nil, 768, testDefaults(), nil)

	tenant, err := svc.Create(context.Background(), "acme")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	newKey, err := svc.RegenerateAPIKey(context.Background(), tenant.ID)
	if err != nil {
		t.Fatalf("RegenerateAPIKey() error = %v", err)
	}
	if newKey == tenant.APIKey {
		t.Error("regenerated key equals the old key")
	}
	if _, err := repo.GetByAPIKey(context.Background(), newKey); err != nil {
		t.Errorf("lookup by new key error = %v", err)
	}
	if _, err := repo.GetByAPIKey(context.Background(), tenant.APIKey); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("old key still resolves, error = %v", err)
	}
}
