package retrieval

import (
	"errors"
	"testing"
)

func mkScored(id string, score float64, reranked bool) ScoredCandidate {
	return ScoredCandidate{
		BoostedCandidate: BoostedCandidate{
			FusedCandidate: FusedCandidate{
				DocumentID: id,
				Ranks:      map[Source]int{SourceDense: 1},
			},
		},
		FinalScore: score,
		Reranked:   reranked,
	}
}

func TestAssembleResults(t *testing.T) {
	scored := []ScoredCandidate{
		mkScored("a", 0.9, true),
		mkScored("b", 0.8, true),
		mkScored("c", 0.7, false),
		mkScored("d", 0.6, false),
	}

	results, err := AssembleResults(scored, 3, 0)
	if err != nil {
		t.Fatalf("AssembleResults() error = %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, r := range results {
		if r.Rank != i+1 {
			t.Errorf("result %d rank = %d, want %d", i, r.Rank, i+1)
		}
	}
	if !results[0].Reranked || results[2].Reranked {
		t.Errorf("rerank flags = [%v %v %v], want [true true false]",
			results[0].Reranked, results[1].Reranked, results[2].Reranked)
	}
}

func TestAssembleFewerThanTopKIsValid(t *testing.T) {
	results, err := AssembleResults([]ScoredCandidate{mkScored("only", 0.5, false)}, 10, 0)
	if err != nil {
		t.Fatalf("AssembleResults() error = %v", err)
	}
	if len(results) != 1 {
		t.Errorf("got %d results, want 1", len(results))
	}
}

func TestAssembleEmptyWithoutMinimum(t *testing.T) {
	results, err := AssembleResults(nil, 5, 0)
	if err != nil {
		t.Fatalf("AssembleResults() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestAssembleInsufficientResults(t *testing.T) {
	_, err := AssembleResults([]ScoredCandidate{mkScored("only", 0.5, false)}, 5, 3)

	var insufficient *InsufficientResultsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("AssembleResults() error = %v, want InsufficientResultsError", err)
	}
	if insufficient.Required != 3 || insufficient.Available != 1 {
		t.Errorf("error = required %d available %d, want 3 and 1",
			insufficient.Required, insufficient.Available)
	}
}
