// Package reranker implements the cross-encoder boundary of the retrieval
// pipeline.
//
// Reranking scores each (query, candidate) pair jointly, which is more
// accurate than independent embedding similarity but adds an external
// model call per request. The pipeline sends only the boosted head of the
// candidate list here and owns the merge back; on any failure it falls
// back to the pre-rerank order, so implementations should surface errors
// rather than guess.
//
//   - Latency: one extra model call per query
//   - Quality: best when the fused head has closely bunched scores
//   - Cost: per-tenant opt-in (RetrievalConfig.RerankerEnabled)
package reranker
