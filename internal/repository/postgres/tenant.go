package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mhara/deskrag/internal/repository"
)

// tenantColumns is the shared select list; scanTenantRow depends on this
// column order.
const tenantColumns = "id, name, api_key, config, created_at, updated_at"

// TenantRepo implements repository.TenantRepository.
type TenantRepo struct {
	db *DB
}

// NewTenantRepo creates a new tenant repository.
func NewTenantRepo(db *DB) *TenantRepo {
	return &TenantRepo{db: db}
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenantRow(row rowScanner) (*repository.Tenant, error) {
	var tenant repository.Tenant
	var configJSON []byte

	if err := row.Scan(&tenant.ID, &tenant.Name, &tenant.APIKey, &configJSON,
		&tenant.CreatedAt, &tenant.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(configJSON, &tenant.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tenant config: %w", err)
	}
	return &tenant, nil
}

// Create persists a new tenant. Config is stored as JSONB so tuning
// fields can be added without migrations.
func (r *TenantRepo) Create(ctx context.Context, tenant *repository.Tenant) error {
	configJSON, err := json.Marshal(tenant.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx,
		`INSERT INTO tenants (`+tenantColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		tenant.ID, tenant.Name, tenant.APIKey, configJSON, tenant.CreatedAt, tenant.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// GetByID retrieves a tenant by ID.
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*repository.Tenant, error) {
	return r.getBy(ctx, "id", id)
}

// GetByAPIKey retrieves a tenant by API key. Runs on every authenticated
// request, so tenants(api_key) carries a unique index.
func (r *TenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*repository.Tenant, error) {
	return r.getBy(ctx, "api_key", apiKey)
}

func (r *TenantRepo) getBy(ctx context.Context, column string, value any) (*repository.Tenant, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE `+column+` = $1`, value)

	tenant, err := scanTenantRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// List retrieves tenants newest first, with the total count for paging.
func (r *TenantRepo) List(ctx context.Context, limit, offset int) ([]*repository.Tenant, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM tenants`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count tenants: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*repository.Tenant
	for rows.Next() {
		tenant, err := scanTenantRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list tenants: %w", err)
	}

	return tenants, total, nil
}

// Update replaces a tenant's name and config.
func (r *TenantRepo) Update(ctx context.Context, tenant *repository.Tenant) error {
	configJSON, err := json.Marshal(tenant.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal tenant config: %w", err)
	}

	result, err := r.db.Pool.Exec(ctx,
		`UPDATE tenants SET name = $2, config = $3, updated_at = NOW() WHERE id = $1`,
		tenant.ID, tenant.Name, configJSON)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a tenant.
func (r *TenantRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Pool.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// UpdateAPIKey replaces a tenant's API key.
func (r *TenantRepo) UpdateAPIKey(ctx context.Context, id uuid.UUID, newAPIKey string) error {
	result, err := r.db.Pool.Exec(ctx,
		`UPDATE tenants SET api_key = $2, updated_at = NOW() WHERE id = $1`,
		id, newAPIKey)
	if err != nil {
		return fmt.Errorf("failed to update API key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Ensure TenantRepo implements the interface.
var _ repository.TenantRepository = (*TenantRepo)(nil)
