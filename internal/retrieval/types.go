// Package retrieval implements the hybrid retrieval and ranking pipeline:
// dense and sparse candidate sources merged with reciprocal rank fusion,
// recency and exact-match boosting, cross-encoder reranking, and final
// assembly into an ordered, tenant-scoped result list.
package retrieval

import (
	"context"
	"time"
)

// Source identifies which search backend produced a candidate.
type Source string

const (
	// SourceDense is the embedding similarity source.
	SourceDense Source = "dense"

	// SourceSparse is the lexical/BM25-style source.
	SourceSparse Source = "sparse"
)

// DocType classifies a candidate document.
type DocType string

const (
	DocTypeTicket DocType = "ticket"
	DocTypeKB     DocType = "kb"
	DocTypeFAQ    DocType = "faq"
)

// Partition scopes every search to a single tenant and platform.
// All candidates returned by a source must belong to this partition.
type Partition struct {
	TenantID string
	Platform string
}

// SparseVector is a sparse query vector (term index -> weight).
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Query carries the query in every representation the sources need.
// The dense source consumes Vector, the sparse source consumes Sparse;
// Text is used for error-code matching and reranking.
type Query struct {
	Text   string
	Vector []float32
	Sparse *SparseVector
}

// Metadata holds the candidate fields attached by its source.
type Metadata struct {
	TenantID  string
	Platform  string
	DocType   DocType
	CreatedAt time.Time
	ErrorCode string
	Extra     map[string]string
}

// Candidate is a single result from one source. Rank is the 1-based
// position within that source's ordered list; RawScore is source-native
// and not comparable across sources.
type Candidate struct {
	DocumentID string
	Source     Source
	RawScore   float64
	Rank       int
	Content    string
	Metadata   Metadata
}

// FusedCandidate is a candidate after reciprocal rank fusion. FusedScore
// is rank-derived and comparable across candidates regardless of which
// source(s) contributed. Ranks records the contributing per-source ranks.
type FusedCandidate struct {
	DocumentID string
	FusedScore float64
	Ranks      map[Source]int
	RawScores  map[Source]float64
	Content    string
	Metadata   Metadata
}

// Sources returns the sources that contributed to this candidate.
func (f *FusedCandidate) Sources() []Source {
	sources := make([]Source, 0, len(f.Ranks))
	if _, ok := f.Ranks[SourceDense]; ok {
		sources = append(sources, SourceDense)
	}
	if _, ok := f.Ranks[SourceSparse]; ok {
		sources = append(sources, SourceSparse)
	}
	return sources
}

// BoostFactor records a single applied boost for auditability.
type BoostFactor struct {
	Name       string  `json:"name"`
	Multiplier float64 `json:"multiplier"`
}

// BoostedCandidate is a fused candidate after the boosting stage.
// BoostFactors lists only the boosts that actually applied.
type BoostedCandidate struct {
	FusedCandidate
	BoostedScore float64
	BoostFactors []BoostFactor
}

// RerankedCandidate is a boosted candidate with a cross-encoder
// relevance score replacing its boosted score for ordering purposes.
type RerankedCandidate struct {
	BoostedCandidate
	RelevanceScore float64
}

// ScoredCandidate carries the score used for final ordering, after the
// rerank merge. Reranked marks candidates whose score came from the
// reranker rather than the boosting stage.
type ScoredCandidate struct {
	BoostedCandidate
	FinalScore float64
	Reranked   bool
}

// RankedResult is one entry of the final ordered output.
type RankedResult struct {
	DocumentID string        `json:"document_id"`
	FinalScore float64       `json:"final_score"`
	Rank       int           `json:"rank"`
	Sources    []Source      `json:"sources"`
	Reranked   bool          `json:"reranked"`
	Content    string        `json:"content,omitempty"`
	Metadata   Metadata      `json:"-"`
	Boosts     []BoostFactor `json:"boosts,omitempty"`
}

// CandidateSource wraps one search backend. Implementations must return
// candidates ordered by descending relevance with 1-based ranks assigned,
// restricted to the given partition. An empty result is valid. A fresh
// call re-queries the backend; results are not restartable iterators.
type CandidateSource interface {
	// Name identifies the source for fusion provenance and logging.
	Name() Source

	// Search returns at most limit candidates for the query within the
	// partition, best first.
	Search(ctx context.Context, partition Partition, query Query, limit int) ([]Candidate, error)
}

// Reranker scores (query, candidate) pairs jointly. Implementations call
// an external cross-encoder; the pipeline owns top-n selection and the
// merge of reranked scores back into the final order.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []BoostedCandidate, topN int) ([]RerankedCandidate, error)
}
