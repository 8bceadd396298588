// Package service wires tenant configuration, query preparation and the
// retrieval pipeline behind the HTTP handlers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mhara/deskrag/internal/embedder"
	"github.com/mhara/deskrag/internal/repository"
	"github.com/mhara/deskrag/internal/retrieval"
)

// SparseVectorizer converts query text to a sparse vector for the sparse
// candidate source.
type SparseVectorizer interface {
	Vectorize(text string) *retrieval.SparseVector
}

// Defaults are the service-wide retrieval defaults, resolved from the
// environment. Tenant configuration overrides them, request parameters
// override both.
type Defaults struct {
	Platform             string
	TopK                 int
	RRFK                 int
	DecayHalfLifeDays    float64
	DecayFloor           float64
	ErrorBoostMultiplier float64
	RerankTopN           int
	RerankerEnabled      bool
	Timeout              time.Duration
}

// RetrieveParams are the per-request inputs and overrides.
type RetrieveParams struct {
	Query                string
	Platform             string
	TopK                 int
	MinResults           int
	RRFK                 int
	DecayHalfLifeDays    float64
	DecayFloor           float64
	ErrorBoostMultiplier float64
	RerankTopN           int
	TimeoutMS            int
}

// RetrievalService prepares queries and invokes the pipeline for an
// authenticated tenant.
type RetrievalService struct {
	pipeline   *retrieval.Pipeline
	embedder   embedder.Embedder
	vectorizer SparseVectorizer
	defaults   Defaults
	logger     *slog.Logger
}

// NewRetrievalService creates the retrieval service.
func NewRetrievalService(pipeline *retrieval.Pipeline, embed embedder.Embedder, vectorizer SparseVectorizer, defaults Defaults, logger *slog.Logger) *RetrievalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetrievalService{
		pipeline:   pipeline,
		embedder:   embed,
		vectorizer: vectorizer,
		defaults:   defaults,
		logger:     logger,
	}
}

// Retrieve embeds the query, builds its sparse representation, and runs
// the full pipeline scoped to the tenant's partition.
func (s *RetrievalService) Retrieve(ctx context.Context, tenantID uuid.UUID, cfg repository.RetrievalConfig, params RetrieveParams) (*retrieval.Response, error) {
	if params.Query == "" {
		return nil, fmt.Errorf("query is required")
	}

	platform, options := s.resolveOptions(cfg, params)

	start := time.Now()
	vector, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	resp, err := s.pipeline.Retrieve(ctx, retrieval.Request{
		Partition: retrieval.Partition{
			TenantID: tenantID.String(),
			Platform: platform,
		},
		Query: retrieval.Query{
			Text:   params.Query,
			Vector: vector,
			Sparse: s.vectorizer.Vectorize(params.Query),
		},
		Options: options,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("retrieval completed",
		"tenant_id", tenantID,
		"platform", platform,
		"results", len(resp.Results),
		"degraded", resp.Degraded,
		"duration", time.Since(start),
	)

	return resp, nil
}

// resolveOptions layers request overrides over tenant configuration over
// service defaults. Zero values defer to the layer below.
func (s *RetrievalService) resolveOptions(cfg repository.RetrievalConfig, params RetrieveParams) (string, retrieval.Options) {
	d := s.defaults

	platform := d.Platform
	if cfg.DefaultPlatform != "" {
		platform = cfg.DefaultPlatform
	}
	if params.Platform != "" {
		platform = params.Platform
	}

	opts := retrieval.Options{
		TopK:                 pickInt(params.TopK, cfg.TopK, d.TopK),
		RRFK:                 pickInt(params.RRFK, cfg.RRFK, d.RRFK),
		DecayHalfLife:        daysToDuration(pickFloat(params.DecayHalfLifeDays, cfg.DecayHalfLifeDays, d.DecayHalfLifeDays)),
		DecayFloor:           pickFloat(params.DecayFloor, cfg.DecayFloor, d.DecayFloor),
		ErrorBoostMultiplier: pickFloat(params.ErrorBoostMultiplier, cfg.ErrorBoostMultiplier, d.ErrorBoostMultiplier),
		MinResults:           params.MinResults,
		Timeout:              d.Timeout,
	}

	if cfg.TimeoutMS > 0 {
		opts.Timeout = time.Duration(cfg.TimeoutMS) * time.Millisecond
	}
	if params.TimeoutMS > 0 {
		opts.Timeout = time.Duration(params.TimeoutMS) * time.Millisecond
	}

	// Reranking is a per-tenant opt-in; the top-n knob is meaningless
	// when disabled.
	if cfg.RerankerEnabled {
		opts.RerankTopN = pickInt(params.RerankTopN, cfg.RerankTopN, d.RerankTopN)
	}

	return platform, opts
}

func pickInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func pickFloat(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func daysToDuration(days float64) time.Duration {
	return time.Duration(days * 24 * float64(time.Hour))
}
