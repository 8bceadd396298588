package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Degradation reasons reported to the caller alongside normal results.
const (
	DegradedDenseUnavailable  = "dense_source_unavailable"
	DegradedSparseUnavailable = "sparse_source_unavailable"
	DegradedRerankTimeout     = "rerank_timeout"
	DegradedRerankUnavailable = "rerank_unavailable"
)

// Options are the per-request tunables of the pipeline. The service layer
// resolves them from environment defaults, tenant configuration and
// request overrides before invoking Retrieve.
type Options struct {
	TopK                 int
	RRFK                 int
	DecayHalfLife        time.Duration
	DecayFloor           float64
	ErrorBoostMultiplier float64
	RerankTopN           int
	MinResults           int
	Timeout              time.Duration
}

// Request is one retrieval invocation, already scoped to a partition and
// carrying the query in every representation the sources need.
type Request struct {
	Partition Partition
	Query     Query
	Options   Options
}

// Response carries the final ordered results plus degradation metadata so
// the caller can decide whether to retry or inform the end user.
type Response struct {
	Results        []RankedResult
	Degraded       bool
	DegradedReason string
}

// Pipeline orchestrates one retrieval call. It holds no mutable state
// across requests; concurrent invocations for different tenants never
// interact.
type Pipeline struct {
	dense    CandidateSource
	sparse   CandidateSource
	reranker Reranker
	logger   *slog.Logger
	clock    func() time.Time
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithReranker enables cross-encoder reranking of the boosted head.
func WithReranker(r Reranker) PipelineOption {
	return func(p *Pipeline) {
		p.reranker = r
	}
}

// WithPipelineClock overrides the boosting time source, for tests.
func WithPipelineClock(now func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.clock = now
	}
}

// NewPipeline creates a pipeline over the two candidate sources.
func NewPipeline(dense, sparse CandidateSource, logger *slog.Logger, opts ...PipelineOption) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		dense:  dense,
		sparse: sparse,
		logger: logger,
		clock:  time.Now,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// sourceResult is the join-point message from one source goroutine.
type sourceResult struct {
	source     Source
	candidates []Candidate
	err        error
}

// Retrieve runs the full pipeline: parallel dense+sparse search, RRF
// fusion, boosting, reranking of the boosted head, and final assembly.
//
// One failed source degrades to single-source mode; both failing returns
// ErrAllSourcesUnavailable. A rerank failure or timeout falls back to the
// pre-rerank boosted order. Tenant isolation violations and source data
// inconsistencies are fatal for the request.
func (p *Pipeline) Retrieve(ctx context.Context, req Request) (*Response, error) {
	opts := req.Options
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", opts.TopK)
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	// Fetch extra candidates so fusion and reranking have room to work.
	fetchLimit := opts.TopK * 3
	if opts.RerankTopN > fetchLimit {
		fetchLimit = opts.RerankTopN
	}

	lists, degradedReason, err := p.gatherCandidates(ctx, req, fetchLimit)
	if err != nil {
		return nil, err
	}

	fusion := NewFusionEngine(opts.RRFK)
	fused, err := fusion.Fuse(lists...)
	if err != nil {
		p.logger.Error("fusion failed",
			"tenant_id", req.Partition.TenantID,
			"error", err,
		)
		return nil, err
	}

	boosting := NewBoostingStage(opts.DecayHalfLife, opts.DecayFloor, opts.ErrorBoostMultiplier,
		WithClock(p.clock))
	boosted := boosting.Apply(req.Query.Text, fused)

	scored, rerankReason := p.rerank(ctx, req, boosted)
	if rerankReason != "" && degradedReason == "" {
		degradedReason = rerankReason
	}

	results, err := AssembleResults(scored, opts.TopK, opts.MinResults)
	if err != nil {
		return nil, err
	}

	return &Response{
		Results:        results,
		Degraded:       degradedReason != "",
		DegradedReason: degradedReason,
	}, nil
}

// gatherCandidates fans out to both sources concurrently and joins,
// accepting partial results when the deadline expires or one source
// fails. Every returned candidate is validated against the partition.
func (p *Pipeline) gatherCandidates(ctx context.Context, req Request, limit int) ([][]Candidate, string, error) {
	sources := []CandidateSource{p.dense, p.sparse}

	// Buffered so late goroutines never block after the join gives up.
	ch := make(chan sourceResult, len(sources))
	for _, src := range sources {
		go func(src CandidateSource) {
			candidates, err := src.Search(ctx, req.Partition, req.Query, limit)
			if err != nil {
				err = &SourceUnavailableError{Source: src.Name(), Err: err}
			}
			ch <- sourceResult{source: src.Name(), candidates: candidates, err: err}
		}(src)
	}

	byName := make(map[Source][]Candidate, len(sources))
	failed := make(map[Source]error, len(sources))

	received := 0
join:
	for received < len(sources) {
		select {
		case res := <-ch:
			received++
			if res.err != nil {
				failed[res.source] = res.err
				continue
			}
			byName[res.source] = res.candidates
		case <-ctx.Done():
			// Deadline during the join: proceed with whichever
			// source(s) answered in time.
			break join
		}
	}

	for name, candidates := range byName {
		if err := validatePartition(req.Partition, name, candidates); err != nil {
			p.logger.Error("tenant isolation violation",
				"tenant_id", req.Partition.TenantID,
				"platform", req.Partition.Platform,
				"source", name,
				"error", err,
			)
			return nil, "", err
		}
	}

	if len(byName) == 0 {
		for name, err := range failed {
			p.logger.Error("candidate source failed", "source", name, "error", err)
		}
		if ctx.Err() != nil && len(failed) == 0 {
			return nil, "", fmt.Errorf("%w: %v", ErrAllSourcesUnavailable, ctx.Err())
		}
		return nil, "", ErrAllSourcesUnavailable
	}

	degradedReason := ""
	if _, ok := byName[SourceDense]; !ok {
		degradedReason = DegradedDenseUnavailable
	} else if _, ok := byName[SourceSparse]; !ok {
		degradedReason = DegradedSparseUnavailable
	}
	if degradedReason != "" {
		p.logger.Warn("degrading to single-source retrieval",
			"tenant_id", req.Partition.TenantID,
			"reason", degradedReason,
		)
	}

	lists := make([][]Candidate, 0, len(byName))
	if dense, ok := byName[SourceDense]; ok {
		lists = append(lists, dense)
	}
	if sparse, ok := byName[SourceSparse]; ok {
		lists = append(lists, sparse)
	}

	return lists, degradedReason, nil
}

// rerank sends the boosted head to the reranker and merges the scores
// back. Any reranker failure is a soft degradation: good-enough ranked
// results beat no results.
func (p *Pipeline) rerank(ctx context.Context, req Request, boosted []BoostedCandidate) ([]ScoredCandidate, string) {
	topN := req.Options.RerankTopN
	if p.reranker == nil || topN <= 0 || len(boosted) == 0 {
		return passthroughScores(boosted), ""
	}
	if topN > len(boosted) {
		topN = len(boosted)
	}

	head := make([]BoostedCandidate, topN)
	copy(head, boosted[:topN])

	reranked, err := p.reranker.Rerank(ctx, req.Query.Text, head, topN)
	if err != nil {
		reason := DegradedRerankUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			reason = DegradedRerankTimeout
		}
		p.logger.Warn("rerank failed, keeping boosted order",
			"tenant_id", req.Partition.TenantID,
			"reason", reason,
			"error", err,
		)
		return passthroughScores(boosted), reason
	}

	return mergeReranked(boosted, reranked, topN), ""
}

// validatePartition checks every candidate against the requested
// partition. A mismatch is the one place a tenant-isolation bug would
// leak cross-tenant data, so it is fatal rather than filtered.
func validatePartition(partition Partition, source Source, candidates []Candidate) error {
	for _, c := range candidates {
		if c.Metadata.TenantID != partition.TenantID {
			return &TenantIsolationError{
				DocumentID: c.DocumentID,
				Source:     source,
				Field:      "tenant_id",
				Want:       partition.TenantID,
				Got:        c.Metadata.TenantID,
			}
		}
		if c.Metadata.Platform != partition.Platform {
			return &TenantIsolationError{
				DocumentID: c.DocumentID,
				Source:     source,
				Field:      "platform",
				Want:       partition.Platform,
				Got:        c.Metadata.Platform,
			}
		}
	}
	return nil
}
