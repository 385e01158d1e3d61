package spam

import (
	"strings"
	"sync"
)

// historyDepth entries are retained per submitter for self-similarity
// checks; a bounded ring, not an ever-growing map.
type textHistory struct {
	mu    sync.Mutex
	depth int
	texts map[string][]wordSet
}

type wordSet map[string]struct{}

func newTextHistory(depth int) *textHistory {
	return &textHistory{depth: depth, texts: make(map[string][]wordSet)}
}

// MaxSimilarity returns the highest Jaccard similarity between text and
// the submitter's retained history, then appends text to the ring.
// Empty texts neither match nor are retained.
func (h *textHistory) MaxSimilarity(submitterID, text string) float64 {
	set := tokenize(text)
	if len(set) == 0 {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	best := 0.0
	for _, prev := range h.texts[submitterID] {
		if sim := jaccard(set, prev); sim > best {
			best = sim
		}
	}

	ring := append(h.texts[submitterID], set)
	if len(ring) > h.depth {
		ring = ring[len(ring)-h.depth:]
	}
	h.texts[submitterID] = ring

	return best
}

func tokenize(text string) wordSet {
	set := make(wordSet)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word != "" {
			set[word] = struct{}{}
		}
	}
	return set
}

// jaccard computes |a∩b| / |a∪b| over word sets.
func jaccard(a, b wordSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for word := range a {
		if _, ok := b[word]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
