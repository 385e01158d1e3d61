package spam

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credlens/credlens/internal/config"
	"github.com/credlens/credlens/internal/logging"
	"github.com/credlens/credlens/internal/models"
)

func testSpamConfig() config.SpamConfig {
	return config.SpamConfig{
		Threshold:     0.68,
		CombinePolicy: config.CombineMax,
		MaxPerMinute:  5,
		MaxPerHour:    50,
		MaxPerDay:     200,
		LowReputation: 0.3,
		HistoryDepth:  10,
	}
}

func testSubmission(t *testing.T, text string, at time.Time) *models.FeedbackSubmission {
	t.Helper()
	sub, err := models.NewSubmission(models.FeedbackDisagree, "https://example.com/article", "sub-1", text, 0.5, at)
	require.NoError(t, err)
	return sub
}

func TestClassify_CleanFirstSubmission(t *testing.T) {
	c := NewClassifier(testSpamConfig(), logging.NewNop())
	sub := testSubmission(t, "The score seems fair given the sourcing of the article.", time.Now())

	verdict := c.Classify(context.Background(), sub, 0.5)

	assert.False(t, verdict.IsSpam)
	assert.Equal(t, models.RiskLevelLow, verdict.RiskLevel)
	assert.Empty(t, verdict.Reasons)
	assert.Contains(t, verdict.MethodsUsed, "rate_check")
	assert.Contains(t, verdict.MethodsUsed, "heuristic_content")
	assert.Contains(t, verdict.MethodsUsed, "linear_content")
}

func TestClassify_RateLimitBurst(t *testing.T) {
	c := NewClassifier(testSpamConfig(), logging.NewNop())
	base := time.Now()

	// Six submissions inside one minute; the ceiling is five.
	var verdict *models.SpamVerdict
	for i := 0; i < 6; i++ {
		sub := testSubmission(t,
			"FREE MONEY CLICK HERE https://a.example https://b.example https://c.example",
			base.Add(time.Duration(i)*time.Second))
		verdict = c.Classify(context.Background(), sub, 0.5)
	}

	require.True(t, verdict.IsSpam)
	assert.Equal(t, models.RiskLevelHigh, verdict.RiskLevel)

	foundRateReason := false
	for _, reason := range verdict.Reasons {
		if strings.HasPrefix(reason, "rate limit exceeded") {
			foundRateReason = true
		}
	}
	assert.True(t, foundRateReason, "expected a rate limit reason, got %v", verdict.Reasons)
}

func TestClassify_SpamContentAloneTrips(t *testing.T) {
	c := NewClassifier(testSpamConfig(), logging.NewNop())
	sub := testSubmission(t,
		"FREE MONEY CLICK HERE https://a.example https://b.example https://c.example",
		time.Now())

	// First submission, so neither rate nor similarity contributes.
	verdict := c.Classify(context.Background(), sub, 0.5)

	assert.True(t, verdict.IsSpam)
	assert.NotEqual(t, models.RiskLevelLow, verdict.RiskLevel)
}

func TestClassify_LowReputationFactor(t *testing.T) {
	c := NewClassifier(testSpamConfig(), logging.NewNop())
	sub := testSubmission(t, "the rating on this page is questionable", time.Now())

	verdict := c.Classify(context.Background(), sub, 0.1)

	// The 0.7 low-reputation factor alone crosses the 0.68 threshold.
	assert.True(t, verdict.IsSpam)
	assert.Equal(t, models.RiskLevelMedium, verdict.RiskLevel)
	require.NotEmpty(t, verdict.Reasons)
	assert.Contains(t, verdict.Reasons[0], "low submitter reputation")
}

func TestClassify_DuplicateTextReason(t *testing.T) {
	c := NewClassifier(testSpamConfig(), logging.NewNop())
	base := time.Now()

	text := "this exact complaint repeated verbatim every time"
	c.Classify(context.Background(), testSubmission(t, text, base), 0.5)
	verdict := c.Classify(context.Background(), testSubmission(t, text, base.Add(2*time.Hour)), 0.5)

	found := false
	for _, reason := range verdict.Reasons {
		if strings.HasPrefix(reason, "near-duplicate") {
			found = true
		}
	}
	assert.True(t, found, "expected a near-duplicate reason, got %v", verdict.Reasons)
}

func TestClassify_NeverBlocksOnEmptyText(t *testing.T) {
	c := NewClassifier(testSpamConfig(), logging.NewNop())
	sub := testSubmission(t, "", time.Now())

	verdict := c.Classify(context.Background(), sub, 0.5)

	assert.False(t, verdict.IsSpam)
	assert.Equal(t, models.RiskLevelLow, verdict.RiskLevel)
}

func TestRateWindow_Observe(t *testing.T) {
	w := newRateWindow()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		w.Observe("sub-1", base.Add(time.Duration(i)*time.Second))
	}
	minute, hour, day := w.Observe("sub-1", base.Add(4*time.Second))
	assert.Equal(t, 4, minute)
	assert.Equal(t, 4, hour)
	assert.Equal(t, 4, day)

	// Two minutes later only the new event is inside the minute window.
	minute, hour, day = w.Observe("sub-1", base.Add(2*time.Minute))
	assert.Equal(t, 1, minute)
	assert.Equal(t, 5, hour)
	assert.Equal(t, 5, day)

	// A day later everything has aged out.
	minute, hour, day = w.Observe("sub-1", base.Add(25*time.Hour))
	assert.Equal(t, 1, minute)
	assert.Equal(t, 1, hour)
	assert.Equal(t, 1, day)
}

func TestRateWindow_LastSeen(t *testing.T) {
	w := newRateWindow()
	assert.True(t, w.LastSeen("sub-1").IsZero())

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.Observe("sub-1", at)
	assert.Equal(t, at, w.LastSeen("sub-1"))
}

func TestSmoothCombine(t *testing.T) {
	// One dominant signal pulls the blend close to the max.
	high := smoothCombine([]float64{0.9, 0.1, 0.1, 0.1, 0.1})
	assert.Greater(t, high, 0.7)
	assert.Less(t, high, 0.9)

	// Uniform signals return themselves.
	assert.InDelta(t, 0.5, smoothCombine([]float64{0.5, 0.5, 0.5}), 1e-9)

	assert.Equal(t, 0.0, smoothCombine(nil))
}

func TestBucketRisk(t *testing.T) {
	tests := []struct {
		risk     float64
		expected models.RiskLevel
	}{
		{0, models.RiskLevelLow},
		{0.5, models.RiskLevelLow},
		{0.51, models.RiskLevelMedium},
		{0.8, models.RiskLevelMedium},
		{0.81, models.RiskLevelHigh},
		{1, models.RiskLevelHigh},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("risk_%.2f", tt.risk), func(t *testing.T) {
			assert.Equal(t, tt.expected, bucketRisk(tt.risk))
		})
	}
}

func TestClassify_FallbackOnNilSubmission(t *testing.T) {
	c := NewClassifier(testSpamConfig(), logging.NewNop())

	// A nil submission breaks the analysis internally; the caller still
	// gets a conservative verdict instead of a panic.
	verdict := c.Classify(context.Background(), nil, 0.5)

	require.NotNil(t, verdict)
	assert.False(t, verdict.IsSpam)
	assert.InDelta(t, 0.3, verdict.Confidence, 1e-9)
	assert.Equal(t, models.RiskLevelLow, verdict.RiskLevel)
	require.Len(t, verdict.Reasons, 1)
	assert.Contains(t, verdict.Reasons[0], "conservative fallback")
}
