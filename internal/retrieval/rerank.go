package retrieval

import "sort"

// mergeReranked folds cross-encoder scores back into the boosted order.
//
// The reranked subset is ordered by relevance score descending (document
// id ascending on ties) and always precedes the unreranked tail, even when
// a tail candidate's boosted score is numerically higher: the reranker is
// trusted as higher fidelity for the subset it covered. The tail keeps its
// boosted order.
func mergeReranked(boosted []BoostedCandidate, reranked []RerankedCandidate, topN int) []ScoredCandidate {
	if topN > len(boosted) {
		topN = len(boosted)
	}

	sort.Slice(reranked, func(i, j int) bool {
		if reranked[i].RelevanceScore != reranked[j].RelevanceScore {
			return reranked[i].RelevanceScore > reranked[j].RelevanceScore
		}
		return reranked[i].DocumentID < reranked[j].DocumentID
	})

	out := make([]ScoredCandidate, 0, len(boosted))
	for _, r := range reranked {
		out = append(out, ScoredCandidate{
			BoostedCandidate: r.BoostedCandidate,
			FinalScore:       r.RelevanceScore,
			Reranked:         true,
		})
	}

	// Candidates the reranker dropped from the head slice keep their
	// boosted score but stay ahead of the never-sent tail.
	returned := make(map[string]bool, len(reranked))
	for _, r := range reranked {
		returned[r.DocumentID] = true
	}
	for _, b := range boosted[:topN] {
		if !returned[b.DocumentID] {
			out = append(out, ScoredCandidate{
				BoostedCandidate: b,
				FinalScore:       b.BoostedScore,
			})
		}
	}

	for _, b := range boosted[topN:] {
		out = append(out, ScoredCandidate{
			BoostedCandidate: b,
			FinalScore:       b.BoostedScore,
		})
	}

	return out
}

// passthroughScores converts boosted candidates to scored candidates
// without reranking, used when reranking is disabled or degraded.
func passthroughScores(boosted []BoostedCandidate) []ScoredCandidate {
	out := make([]ScoredCandidate, len(boosted))
	for i, b := range boosted {
		out[i] = ScoredCandidate{
			BoostedCandidate: b,
			FinalScore:       b.BoostedScore,
		}
	}
	return out
}
