package source

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/mhara/deskrag/internal/retrieval"
)

// TermVectorizer converts query text into a sparse vector over a hashed
// term space. Terms are lowercased, split on non-identifier runes, and
// hashed with FNV-1a into the index space; weights are sublinear term
// frequencies (1 + log tf). Inverse document frequency is applied
// server-side by the sparse index, so the client only supplies tf.
type TermVectorizer struct {
	minTokenLen int
}

// NewTermVectorizer creates a vectorizer. Tokens shorter than minTokenLen
// runes are dropped; non-positive values default to 2.
func NewTermVectorizer(minTokenLen int) *TermVectorizer {
	if minTokenLen <= 0 {
		minTokenLen = 2
	}
	return &TermVectorizer{minTokenLen: minTokenLen}
}

// Vectorize returns the sparse query vector, or nil for text with no
// usable terms. Indices are sorted ascending so identical text always
// yields an identical vector.
func (v *TermVectorizer) Vectorize(text string) *retrieval.SparseVector {
	counts := make(map[uint32]int)

	for _, token := range splitTerms(text) {
		if len([]rune(token)) < v.minTokenLen {
			continue
		}
		counts[hashTerm(token)]++
	}

	if len(counts) == 0 {
		return nil
	}

	indices := make([]uint32, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	values := make([]float32, len(indices))
	for i, idx := range indices {
		values[i] = float32(1.0 + math.Log(float64(counts[idx])))
	}

	return &retrieval.SparseVector{Indices: indices, Values: values}
}

// splitTerms lowercases and splits on anything that is not a letter,
// digit, or identifier joiner, keeping error codes like AUTH-401 intact.
func splitTerms(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_'
	})

	terms := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-_")
		if f != "" {
			terms = append(terms, f)
		}
	}
	return terms
}

func hashTerm(term string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(term))
	return h.Sum32()
}
