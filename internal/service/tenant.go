package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mhara/deskrag/internal/auth"
	"github.com/mhara/deskrag/internal/repository"
)

// CollectionProvisioner manages the per-tenant search collection backing
// both candidate sources.
type CollectionProvisioner interface {
	Provision(ctx context.Context, tenantID string, dimension int) error
	Drop(ctx context.Context, tenantID string) error
}

// TenantService manages tenant lifecycle: persistence, search collection
// provisioning, API keys and session tokens.
type TenantService struct {
	repo        repository.TenantRepository
	provisioner CollectionProvisioner
	jwtManager  *auth.JWTManager
	dimension   int
	defaults    Defaults
	logger      *slog.Logger
}

// NewTenantService creates the tenant service. dimension is the embedding
// dimension used when provisioning collections.
func NewTenantService(repo repository.TenantRepository, provisioner CollectionProvisioner, jwtManager *auth.JWTManager, dimension int, defaults Defaults, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{
		repo:        repo,
		provisioner: provisioner,
		jwtManager:  jwtManager,
		dimension:   dimension,
		defaults:    defaults,
		logger:      logger,
	}
}

// Create persists a new tenant with service defaults seeded into its
// config and provisions its search collection.
func (s *TenantService) Create(ctx context.Context, name string) (*repository.Tenant, error) {
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}

	apiKey, err := generateAPIKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate API key: %w", err)
	}

	now := time.Now().UTC()
	tenant := &repository.Tenant{
		ID:     uuid.New(),
		Name:   name,
		APIKey: apiKey,
		Config: repository.RetrievalConfig{
			DefaultPlatform:      s.defaults.Platform,
			TopK:                 s.defaults.TopK,
			RRFK:                 s.defaults.RRFK,
			DecayHalfLifeDays:    s.defaults.DecayHalfLifeDays,
			DecayFloor:           s.defaults.DecayFloor,
			ErrorBoostMultiplier: s.defaults.ErrorBoostMultiplier,
			RerankTopN:           s.defaults.RerankTopN,
			RerankerEnabled:      s.defaults.RerankerEnabled,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, err
	}

	if err := s.provisioner.Provision(ctx, tenant.ID.String(), s.dimension); err != nil {
		// Keep the tenant row; collection provisioning can be retried
		// by recreating, but an unusable half-tenant must be visible.
		s.logger.Error("failed to provision collection", "tenant_id", tenant.ID, "error", err)
		return nil, fmt.Errorf("failed to provision search collection: %w", err)
	}

	s.logger.Info("tenant created", "tenant_id", tenant.ID, "name", name)
	return tenant, nil
}

// Get retrieves a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves tenants with pagination.
func (s *TenantService) List(ctx context.Context, limit, offset int) ([]*repository.Tenant, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.repo.List(ctx, limit, offset)
}

// UpdateConfig replaces a tenant's retrieval configuration. Zero-valued
// fields fall back to service defaults at request time, so partial
// configs are valid.
func (s *TenantService) UpdateConfig(ctx context.Context, id uuid.UUID, config repository.RetrievalConfig) (*repository.Tenant, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	tenant.Config = config
	if err := s.repo.Update(ctx, tenant); err != nil {
		return nil, err
	}

	s.logger.Info("tenant config updated", "tenant_id", id)
	return tenant, nil
}

// Delete removes a tenant and drops its search collection.
func (s *TenantService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if err := s.provisioner.Drop(ctx, id.String()); err != nil {
		s.logger.Error("failed to drop collection", "tenant_id", id, "error", err)
		return fmt.Errorf("tenant deleted but collection drop failed: %w", err)
	}

	s.logger.Info("tenant deleted", "tenant_id", id)
	return nil
}

// RegenerateAPIKey replaces a tenant's API key and returns the new key.
func (s *TenantService) RegenerateAPIKey(ctx context.Context, id uuid.UUID) (string, error) {
	apiKey, err := generateAPIKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}

	if err := s.repo.UpdateAPIKey(ctx, id, apiKey); err != nil {
		return "", err
	}

	s.logger.Info("tenant API key regenerated", "tenant_id", id)
	return apiKey, nil
}

// IssueToken issues a JWT session token for a tenant.
func (s *TenantService) IssueToken(ctx context.Context, id uuid.UUID) (string, error) {
	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return s.jwtManager.GenerateToken(tenant.ID, tenant.Name)
}

// generateAPIKey returns a new random API key with a stable prefix so
// keys are recognizable in logs and support requests.
func generateAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "dk_" + hex.EncodeToString(buf), nil
}
