package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mhara/deskrag/internal/llm"
	"github.com/mhara/deskrag/internal/retrieval"
)

const (
	// maxCandidateChars truncates candidate content in the scoring prompt
	// to stay within model context limits.
	maxCandidateChars = 500

	// DefaultModel is the default scoring model.
	DefaultModel = "llama3.2"
)

// LLMReranker scores query-candidate pairs with an LLM, cross-encoder
// style: the model sees both texts together. Scores are parsed from a
// strict JSON response and clamped to [0, 1].
type LLMReranker struct {
	llmClient llm.LLM
	model     string
}

// Option is a functional option for configuring LLMReranker.
type Option func(*LLMReranker)

// WithModel sets the scoring model.
func WithModel(model string) Option {
	return func(r *LLMReranker) {
		r.model = model
	}
}

// NewLLMReranker creates an LLM-based reranker.
func NewLLMReranker(llmClient llm.LLM, opts ...Option) *LLMReranker {
	r := &LLMReranker{
		llmClient: llmClient,
		model:     DefaultModel,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// relevanceScore is one entry of the model's structured output.
type relevanceScore struct {
	DocIndex int     `json:"doc_index"`
	Score    float64 `json:"score"`
}

type rerankResponse struct {
	Scores []relevanceScore `json:"scores"`
}

// Rerank implements retrieval.Reranker. Errors propagate so the pipeline
// can degrade to the pre-rerank order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, candidates []retrieval.BoostedCandidate, topN int) ([]retrieval.RerankedCandidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	if topN > len(candidates) {
		topN = len(candidates)
	}

	prompt := r.buildPrompt(query, candidates)

	response, err := r.llmClient.Generate(ctx, prompt, llm.GenerateOptions{
		Model:       r.model,
		Temperature: 0.0, // Deterministic scoring
		MaxTokens:   1024,
	})
	if err != nil {
		return nil, fmt.Errorf("rerank scoring call failed: %w", err)
	}

	scores, err := parseScores(response, len(candidates))
	if err != nil {
		return nil, fmt.Errorf("rerank response unusable: %w", err)
	}

	reranked := make([]retrieval.RerankedCandidate, len(candidates))
	for i, c := range candidates {
		reranked[i] = retrieval.RerankedCandidate{
			BoostedCandidate: c,
			RelevanceScore:   scores[i],
		}
	}

	if len(reranked) > topN {
		reranked = reranked[:topN]
	}

	return reranked, nil
}

// buildPrompt constructs the pairwise scoring prompt.
func (r *LLMReranker) buildPrompt(query string, candidates []retrieval.BoostedCandidate) string {
	var sb strings.Builder

	sb.WriteString("You are a relevance scoring system for a support desk. Score each document's relevance to the query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("Documents to score:\n")
	for i, c := range candidates {
		content := c.Content
		if len(content) > maxCandidateChars {
			content = content[:maxCandidateChars] + "..."
		}
		sb.WriteString(fmt.Sprintf("[Doc %d] (%s)", i, c.Metadata.DocType))
		if c.Metadata.ErrorCode != "" {
			sb.WriteString(fmt.Sprintf(" (error code: %s)", c.Metadata.ErrorCode))
		}
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteString("\n\n")
	}

	sb.WriteString(`Score each document from 0.0 to 1.0 based on relevance to the query.
Output ONLY valid JSON in this exact format:
{"scores": [{"doc_index": 0, "score": 0.9}, {"doc_index": 1, "score": 0.3}, ...]}

Be strict: irrelevant documents should score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.
Output only JSON, no explanation:`)

	return sb.String()
}

// parseScores extracts per-document scores from the model response,
// tolerating markdown code fences around the JSON.
func parseScores(response string, numCandidates int) ([]float64, error) {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}
	response = strings.TrimSpace(response)

	var parsed rerankResponse
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse scores: %w", err)
	}

	// Missing entries keep a neutral score rather than dropping the
	// candidate from the reranked subset.
	scores := make([]float64, numCandidates)
	for i := range scores {
		scores[i] = 0.5
	}

	for _, s := range parsed.Scores {
		if s.DocIndex < 0 || s.DocIndex >= numCandidates {
			continue
		}
		score := s.Score
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		scores[s.DocIndex] = score
	}

	return scores, nil
}

// Ensure LLMReranker implements the pipeline contract.
var _ retrieval.Reranker = (*LLMReranker)(nil)
