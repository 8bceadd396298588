package retrieval

// AssembleResults truncates the ordered candidates to topK, assigns final
// 1-based ranks, and attaches provenance (contributing sources, boost
// audit trail, rerank flag).
//
// Returning fewer than topK results is valid; InsufficientResultsError is
// returned only when minResults > 0 and fewer candidates are available.
func AssembleResults(scored []ScoredCandidate, topK, minResults int) ([]RankedResult, error) {
	if minResults > 0 && len(scored) < minResults {
		return nil, &InsufficientResultsError{
			Required:  minResults,
			Available: len(scored),
		}
	}

	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}

	results := make([]RankedResult, len(scored))
	for i, s := range scored {
		results[i] = RankedResult{
			DocumentID: s.DocumentID,
			FinalScore: s.FinalScore,
			Rank:       i + 1,
			Sources:    s.Sources(),
			Reranked:   s.Reranked,
			Content:    s.Content,
			Metadata:   s.Metadata,
			Boosts:     s.BoostFactors,
		}
	}

	return results, nil
}
