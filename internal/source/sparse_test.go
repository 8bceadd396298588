package source

import (
	"math"
	"testing"
)

func TestVectorizeDeterministic(t *testing.T) {
	v := NewTermVectorizer(2)

	first := v.Vectorize("login fails with AUTH-401")
	for i := 0; i < 10; i++ {
		again := v.Vectorize("login fails with AUTH-401")
		if len(again.Indices) != len(first.Indices) {
			t.Fatalf("run %d: %d indices, want %d", i, len(again.Indices), len(first.Indices))
		}
		for j := range first.Indices {
			if again.Indices[j] != first.Indices[j] || again.Values[j] != first.Values[j] {
				t.Fatalf("run %d diverged at position %d", i, j)
			}
		}
	}
}

func TestVectorizeSortedIndices(t *testing.T) {
	v := NewTermVectorizer(2)

	vec := v.Vectorize("payment gateway timeout refund invoice billing")
	if vec == nil {
		t.Fatal("Vectorize() = nil, want vector")
	}
	for i := 1; i < len(vec.Indices); i++ {
		if vec.Indices[i-1] >= vec.Indices[i] {
			t.Fatalf("indices not strictly ascending at %d: %v", i, vec.Indices)
		}
	}
}

func TestVectorizeTermFrequencyWeights(t *testing.T) {
	v := NewTermVectorizer(2)

	vec := v.Vectorize("timeout timeout timeout refund")
	if vec == nil {
		t.Fatal("Vectorize() = nil, want vector")
	}
	if len(vec.Indices) != 2 {
		t.Fatalf("got %d terms, want 2", len(vec.Indices))
	}

	timeoutIdx := hashTerm("timeout")
	var timeoutWeight, refundWeight float32
	for i, idx := range vec.Indices {
		if idx == timeoutIdx {
			timeoutWeight = vec.Values[i]
		} else {
			refundWeight = vec.Values[i]
		}
	}

	if refundWeight != 1.0 {
		t.Errorf("single-occurrence weight = %v, want 1.0", refundWeight)
	}
	want := float32(1.0 + math.Log(3))
	if math.Abs(float64(timeoutWeight-want)) > 1e-6 {
		t.Errorf("tf=3 weight = %v, want %v", timeoutWeight, want)
	}
}

func TestVectorizeKeepsIdentifiers(t *testing.T) {
	v := NewTermVectorizer(2)

	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"hyphenated code survives", "AUTH-401", "auth-401", true},
		{"underscore code survives", "ERR_CONN_RESET", "err_conn_reset", true},
		{"different codes differ", "AUTH-401", "AUTH-403", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			va := v.Vectorize(tt.a)
			vb := v.Vectorize(tt.b)
			if va == nil || vb == nil {
				t.Fatal("Vectorize() = nil, want vector")
			}
			same := va.Indices[0] == vb.Indices[0]
			if same != tt.same {
				t.Errorf("index equality = %v, want %v", same, tt.same)
			}
		})
	}
}

func TestVectorizeDropsShortAndEmpty(t *testing.T) {
	v := NewTermVectorizer(3)

	if vec := v.Vectorize("a an of"); vec != nil {
		t.Errorf("Vectorize(short tokens) = %v, want nil", vec)
	}
	if vec := v.Vectorize("   !!! ..."); vec != nil {
		t.Errorf("Vectorize(punctuation) = %v, want nil", vec)
	}
	if vec := v.Vectorize(""); vec != nil {
		t.Errorf("Vectorize(empty) = %v, want nil", vec)
	}
}
