package spam

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// Phrases that almost never appear in good-faith credibility feedback.
var triggerPhrases = []string{
	"free money",
	"click here",
	"buy now",
	"limited time",
	"act now",
	"earn cash",
	"work from home",
	"congratulations you",
	"guaranteed winner",
	"no risk",
}

var (
	urlPattern        = regexp.MustCompile(`https?://\S+`)
	moneyPattern      = regexp.MustCompile(`[$€£]\s?\d+|\d+\s?(?:dollars|usd|eur)`)
	shoutPattern      = regexp.MustCompile(`\b[A-Z]{3,}\b`)
	bangPattern       = regexp.MustCompile(`[!?]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s\-()]{7,}\d`)
)

// countRepeatRuns counts maximal runs of 5 or more identical characters,
// matching what the backreference pattern `(.)\1{4,}` would find; Go's
// regexp engine does not support backreferences.
func countRepeatRuns(text string) int {
	runs := 0
	var prev rune
	length := 0
	for _, r := range text {
		if length > 0 && r == prev {
			length++
		} else {
			if length >= 5 {
				runs++
			}
			prev = r
			length = 1
		}
	}
	if length >= 5 {
		runs++
	}
	return runs
}

// lexicalFeatures are the cheap surface statistics behind content scorer A.
type lexicalFeatures struct {
	wordCount    int
	capsRatio    float64
	punctRatio   float64
	urlCount     int
	triggerCount int
}

func extractLexical(text string) lexicalFeatures {
	f := lexicalFeatures{
		wordCount: len(strings.Fields(text)),
		urlCount:  len(urlPattern.FindAllString(text, -1)),
	}

	lower := strings.ToLower(text)
	for _, phrase := range triggerPhrases {
		f.triggerCount += strings.Count(lower, phrase)
	}

	var letters, upper, punct, total int
	for _, r := range text {
		total++
		switch {
		case unicode.IsLetter(r):
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			punct++
		}
	}
	if letters > 0 {
		f.capsRatio = float64(upper) / float64(letters)
	}
	if total > 0 {
		f.punctRatio = float64(punct) / float64(total)
	}
	return f
}

// scoreHeuristic maps lexical features to a spam probability through
// additive rule weights. Frequency-based in spirit: each rule reflects how
// much more often the feature shows up in abusive submissions.
func scoreHeuristic(text string) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	f := extractLexical(text)

	score := 0.0
	score += clamp(0.22*float64(f.triggerCount), 0, 0.5)
	score += clamp(0.15*float64(f.urlCount), 0, 0.45)
	if f.capsRatio > 0.3 {
		score += (f.capsRatio - 0.3) * 0.8
	}
	if f.punctRatio > 0.2 {
		score += f.punctRatio - 0.2
	}
	if f.wordCount < 3 && f.urlCount > 0 {
		score += 0.2
	}
	return clamp(score, 0, 1)
}

// Fixed weights for the linear content scorer. Feature order: normalized
// length, inverse reputation, pattern density, repetition, recency.
var (
	linearWeights = [5]float64{1.0, 1.6, 2.2, 1.4, 1.8}
	linearBias    = -2.2
)

// scoreLinear builds a fixed-length feature vector and pushes it through a
// logistic link. Reputation and submission cadence let it catch abuse that
// reads clean lexically.
func scoreLinear(text string, reputation float64, sinceLast time.Duration, hasHistory bool) float64 {
	features := [5]float64{
		clamp(float64(len(text))/500.0, 0, 1),
		clamp(1-reputation, 0, 1),
		patternDensity(text),
		repetitionScore(text),
		recencyScore(sinceLast, hasHistory),
	}

	z := linearBias
	for i, w := range linearWeights {
		z += w * features[i]
	}
	return sigmoid(z)
}

// patternDensity is the count of suspicious pattern matches per word,
// capped at 1.
func patternDensity(text string) float64 {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	matches := countRepeatRuns(text)
	for _, p := range []*regexp.Regexp{urlPattern, moneyPattern, shoutPattern, bangPattern, phonePattern} {
		matches += len(p.FindAllString(text, -1))
	}
	return clamp(float64(matches)/float64(words), 0, 1)
}

// repetitionScore is the fraction of words that repeat an earlier word.
func repetitionScore(text string) float64 {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 2 {
		return 0
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		seen[w] = struct{}{}
	}
	return 1 - float64(len(seen))/float64(len(words))
}

// recencyScore rises toward 1 as the gap since the submitter's previous
// submission shrinks below a minute.
func recencyScore(sinceLast time.Duration, hasHistory bool) float64 {
	if !hasHistory {
		return 0
	}
	if sinceLast < 0 {
		sinceLast = 0
	}
	return clamp(1-sinceLast.Seconds()/60, 0, 1)
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
