// Package repository defines the tenant domain model and its data access
// interface. Per-tenant retrieval tuning lives here so operators can
// adjust fusion and boosting behavior without redeploying.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// Tenant represents a customer whose documents must never be visible to
// another tenant's queries.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	APIKey    string
	Config    RetrievalConfig
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RetrievalConfig holds tenant-specific retrieval tuning. Zero values
// mean "use the service default" and are resolved by the service layer.
type RetrievalConfig struct {
	DefaultPlatform      string  `json:"default_platform"`
	TopK                 int     `json:"top_k"`
	RRFK                 int     `json:"rrf_k"`
	DecayHalfLifeDays    float64 `json:"decay_half_life_days"`
	DecayFloor           float64 `json:"decay_floor"`
	ErrorBoostMultiplier float64 `json:"error_boost_multiplier"`
	RerankTopN           int     `json:"rerank_top_n"`
	RerankerEnabled      bool    `json:"reranker_enabled"` // Reranking trades latency and cost for precision
	TimeoutMS            int     `json:"timeout_ms"`
}

// TenantRepository defines operations for tenant persistence.
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	List(ctx context.Context, limit, offset int) ([]*Tenant, int, error)
	Update(ctx context.Context, tenant *Tenant) error
	Delete(ctx context.Context, id uuid.UUID) error
	UpdateAPIKey(ctx context.Context, id uuid.UUID, newAPIKey string) error
}
