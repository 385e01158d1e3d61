package spam

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccard(t *testing.T) {
	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"identical", "the score is wrong", "the score is wrong", 1},
		{"disjoint", "alpha beta", "gamma delta", 0},
		{"half overlap", "one two three four", "three four five six", 1.0 / 3.0},
		{"both empty", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, jaccard(tokenize(tt.a), tokenize(tt.b)), 1e-9)
		})
	}
}

func TestTextHistory_MaxSimilarity(t *testing.T) {
	h := newTextHistory(10)

	// First submission has nothing to compare against.
	assert.Equal(t, 0.0, h.MaxSimilarity("sub-1", "this score looks wrong"))

	// Exact duplicate of the previous text.
	assert.Equal(t, 1.0, h.MaxSimilarity("sub-1", "this score looks wrong"))

	// Unrelated text drops back down.
	assert.Less(t, h.MaxSimilarity("sub-1", "completely different observation here"), 0.2)

	// Histories are per submitter.
	assert.Equal(t, 0.0, h.MaxSimilarity("sub-2", "this score looks wrong"))
}

func TestTextHistory_BoundedDepth(t *testing.T) {
	h := newTextHistory(3)

	h.MaxSimilarity("sub-1", "first unique entry")
	for i := 0; i < 3; i++ {
		h.MaxSimilarity("sub-1", fmt.Sprintf("filler number %d pushing window", i))
	}

	// The first entry has been evicted from the fixed-depth window.
	assert.Less(t, h.MaxSimilarity("sub-1", "first unique entry"), 0.5)
}
