package retrieval

import (
	"sort"
)

// DefaultRRFK is the standard reciprocal rank fusion constant (Cormack et
// al. 2009). It damps the influence of low ranks and keeps rank 1 from
// dominating disproportionately.
const DefaultRRFK = 60

// FusionEngine merges per-source ranked lists with reciprocal rank fusion:
//
//	rrf_score(doc) = sum over sources containing doc of 1 / (k + rank)
//
// Rank-based fusion sidesteps the incomparable scales of dense cosine
// similarity and sparse BM25 scores, and gives documents found by both
// sources a natural lift over single-source documents at the same rank.
type FusionEngine struct {
	k int
}

// NewFusionEngine creates a fusion engine with the given k constant.
// Non-positive k falls back to DefaultRRFK.
func NewFusionEngine(k int) *FusionEngine {
	if k <= 0 {
		k = DefaultRRFK
	}
	return &FusionEngine{k: k}
}

// Fuse merges the given source lists into one list ordered by fused score
// descending, ties broken by document id ascending for determinism.
//
// A document id appearing twice within one source's list violates the
// CandidateSource contract and fails with DataInconsistencyError, as does
// conflicting immutable metadata for the same id across sources. Empty
// input lists are valid and fuse to an empty output.
func (e *FusionEngine) Fuse(lists ...[]Candidate) ([]FusedCandidate, error) {
	merged := make(map[string]*FusedCandidate)
	order := make([]string, 0)

	for _, list := range lists {
		seen := make(map[string]bool, len(list))
		for i, c := range list {
			if seen[c.DocumentID] {
				return nil, &DataInconsistencyError{
					DocumentID: c.DocumentID,
					Source:     c.Source,
					Reason:     "document id returned twice by one source",
				}
			}
			seen[c.DocumentID] = true

			rank := c.Rank
			if rank <= 0 {
				rank = i + 1
			}
			contribution := 1.0 / float64(e.k+rank)

			if existing, ok := merged[c.DocumentID]; ok {
				if reason := metadataConflict(existing.Metadata, c.Metadata); reason != "" {
					return nil, &DataInconsistencyError{
						DocumentID: c.DocumentID,
						Source:     c.Source,
						Reason:     reason,
					}
				}
				existing.FusedScore += contribution
				existing.Ranks[c.Source] = rank
				existing.RawScores[c.Source] = c.RawScore
				if existing.Content == "" {
					existing.Content = c.Content
				}
				continue
			}

			merged[c.DocumentID] = &FusedCandidate{
				DocumentID: c.DocumentID,
				FusedScore: contribution,
				Ranks:      map[Source]int{c.Source: rank},
				RawScores:  map[Source]float64{c.Source: c.RawScore},
				Content:    c.Content,
				Metadata:   c.Metadata,
			}
			order = append(order, c.DocumentID)
		}
	}

	fused := make([]FusedCandidate, 0, len(merged))
	for _, id := range order {
		fused = append(fused, *merged[id])
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		return fused[i].DocumentID < fused[j].DocumentID
	})

	return fused, nil
}

// metadataConflict compares the immutable, id-keyed metadata fields of two
// source views of the same document. Content and raw scores are
// source-specific and excluded. Returns a non-empty reason on conflict.
func metadataConflict(a, b Metadata) string {
	switch {
	case a.TenantID != b.TenantID:
		return "sources disagree on tenant_id"
	case a.Platform != b.Platform:
		return "sources disagree on platform"
	case a.DocType != b.DocType:
		return "sources disagree on doc_type"
	case !a.CreatedAt.Equal(b.CreatedAt):
		return "sources disagree on created_at"
	case a.ErrorCode != b.ErrorCode:
		return "sources disagree on error_code"
	}
	return ""
}
