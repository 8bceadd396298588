package retrieval

import "testing"

func mkBoosted(id string, score float64) BoostedCandidate {
	return BoostedCandidate{
		FusedCandidate: FusedCandidate{
			DocumentID: id,
			FusedScore: score,
			Ranks:      map[Source]int{SourceDense: 1},
		},
		BoostedScore: score,
	}
}

func mkReranked(b BoostedCandidate, relevance float64) RerankedCandidate {
	return RerankedCandidate{BoostedCandidate: b, RelevanceScore: relevance}
}

func TestMergeRerankedReordersHead(t *testing.T) {
	a := mkBoosted("a", 0.9)
	b := mkBoosted("b", 0.8)
	c := mkBoosted("c", 0.7)
	boosted := []BoostedCandidate{a, b, c}

	// The reranker disagrees with the boosted order of the head.
	reranked := []RerankedCandidate{
		mkReranked(a, 0.5),
		mkReranked(b, 0.99),
	}

	out := mergeReranked(boosted, reranked, 2)

	wantOrder := []string{"b", "a", "c"}
	for i, want := range wantOrder {
		if out[i].DocumentID != want {
			t.Errorf("position %d = %s, want %s", i, out[i].DocumentID, want)
		}
	}
	if !out[0].Reranked || !out[1].Reranked || out[2].Reranked {
		t.Errorf("rerank flags = [%v %v %v], want [true true false]",
			out[0].Reranked, out[1].Reranked, out[2].Reranked)
	}
	if out[0].FinalScore != 0.99 {
		t.Errorf("b final score = %v, want relevance 0.99", out[0].FinalScore)
	}
}

func TestMergeRerankedSubsetPrecedesTail(t *testing.T) {
	a := mkBoosted("a", 0.9)
	b := mkBoosted("b", 0.8)
	c := mkBoosted("c", 0.7)
	boosted := []BoostedCandidate{a, b, c}

	// Low relevance scores must still not let the unreranked tail,
	// whose boosted score is numerically higher, jump ahead.
	reranked := []RerankedCandidate{
		mkReranked(a, 0.2),
		mkReranked(b, 0.1),
	}

	out := mergeReranked(boosted, reranked, 2)

	wantOrder := []string{"a", "b", "c"}
	for i, want := range wantOrder {
		if out[i].DocumentID != want {
			t.Errorf("position %d = %s, want %s", i, out[i].DocumentID, want)
		}
	}
}

func TestMergeRerankedDroppedHeadCandidateKeepsBoostedScore(t *testing.T) {
	a := mkBoosted("a", 0.9)
	b := mkBoosted("b", 0.8)
	c := mkBoosted("c", 0.7)
	boosted := []BoostedCandidate{a, b, c}

	// The reranker returned scores for only one of the two head docs.
	reranked := []RerankedCandidate{mkReranked(b, 0.95)}

	out := mergeReranked(boosted, reranked, 2)

	wantOrder := []string{"b", "a", "c"}
	for i, want := range wantOrder {
		if out[i].DocumentID != want {
			t.Errorf("position %d = %s, want %s", i, out[i].DocumentID, want)
		}
	}
	if out[1].Reranked {
		t.Error("dropped head candidate must not be flagged as reranked")
	}
	if out[1].FinalScore != 0.9 {
		t.Errorf("dropped head candidate final score = %v, want boosted 0.9", out[1].FinalScore)
	}
}

func TestMergeRerankedTieBreakByDocumentID(t *testing.T) {
	a := mkBoosted("zzz", 0.9)
	b := mkBoosted("aaa", 0.8)
	boosted := []BoostedCandidate{a, b}

	reranked := []RerankedCandidate{
		mkReranked(a, 0.5),
		mkReranked(b, 0.5),
	}

	out := mergeReranked(boosted, reranked, 2)

	if out[0].DocumentID != "aaa" || out[1].DocumentID != "zzz" {
		t.Errorf("tie order = [%s, %s], want [aaa, zzz]", out[0].DocumentID, out[1].DocumentID)
	}
}

func TestPassthroughScores(t *testing.T) {
	boosted := []BoostedCandidate{mkBoosted("a", 0.9), mkBoosted("b", 0.8)}

	out := passthroughScores(boosted)

	for i, s := range out {
		if s.FinalScore != boosted[i].BoostedScore {
			t.Errorf("candidate %s final score = %v, want %v", s.DocumentID, s.FinalScore, boosted[i].BoostedScore)
		}
		if s.Reranked {
			t.Errorf("candidate %s flagged as reranked", s.DocumentID)
		}
	}
}
