package integrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credlens/credlens/internal/config"
	"github.com/credlens/credlens/internal/logging"
	"github.com/credlens/credlens/internal/models"
)

func testIntegratorConfig() config.IntegratorConfig {
	return config.IntegratorConfig{
		BaseWeight:       0.05,
		MaxWeight:        0.15,
		MinVolume:        3,
		MaterialityDelta: 2,
		ExplorationRate:  0.05,
	}
}

// newTestIntegrator pins now and disables the random exploration boost so
// outcomes are deterministic.
func newTestIntegrator(now time.Time) *Integrator {
	return NewIntegrator(testIntegratorConfig(), logging.NewNop(),
		func() time.Time { return now },
		func() float64 { return 1.0 })
}

func submission(t *testing.T, ftype models.FeedbackType, text string, confidence float64, at time.Time) *models.FeedbackSubmission {
	t.Helper()
	sub, err := models.NewSubmission(ftype, "https://example.com/a", "sub-1", text, confidence, at)
	require.NoError(t, err)
	return sub
}

func cleanVerdict() *models.SpamVerdict {
	return &models.SpamVerdict{IsSpam: false, Confidence: 0.5, RiskLevel: models.RiskLevelLow}
}

func consensusWith(counted int) *models.ConsensusSnapshot {
	return &models.ConsensusSnapshot{
		URL:             "https://example.com/a",
		TotalCounted:    counted,
		AgreementRate:   0.5,
		ConfidenceLevel: models.ConfidenceLow,
	}
}

func TestIntegrate_BelowMinVolumeLeavesScoreUntouched(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)
	sub := submission(t, models.FeedbackReportIssue, "broken citations throughout", 0.9, now)

	tests := []struct {
		name      string
		consensus *models.ConsensusSnapshot
	}{
		{"no consensus", nil},
		{"two records", consensusWith(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := i.Integrate(models.CredibilityScore{Score: 62, Confidence: 0.5}, sub, cleanVerdict(), 0.5, tt.consensus)

			assert.Equal(t, 62.0, result.OriginalScore)
			assert.Equal(t, 62.0, result.AdjustedScore)
			assert.Equal(t, 0.0, result.WeightApplied)
			assert.False(t, result.ShouldPersist)
			assert.NotZero(t, result.RewardSignal, "reward is still computed for observability")
		})
	}
}

func TestIntegrate_HighReputationAgreement(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)
	sub := submission(t, models.FeedbackAgree, "matches my read of the sourcing and the author's record", 0.9, now)

	result := i.Integrate(models.CredibilityScore{Score: 70, Confidence: 0.9}, sub, cleanVerdict(), 0.9, consensusWith(10))

	assert.Greater(t, result.RewardSignal, 0.0)
	assert.GreaterOrEqual(t, result.AdjustedScore, result.OriginalScore)
	assert.Greater(t, result.WeightApplied, 0.075, "trusted confident feedback lands in the upper half of the cap")
	assert.LessOrEqual(t, result.WeightApplied, 0.15)
}

func TestIntegrate_ReportIssuePushesDown(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)
	sub := submission(t, models.FeedbackReportIssue, "the quoted statistics do not appear in the linked source", 0.8, now)

	result := i.Integrate(models.CredibilityScore{Score: 70, Confidence: 0.5}, sub, cleanVerdict(), 0.8, consensusWith(10))

	assert.Less(t, result.RewardSignal, 0.0)
	assert.Less(t, result.AdjustedScore, result.OriginalScore)
}

func TestIntegrate_RewardClampedToUnitRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)

	agree := submission(t, models.FeedbackAgree, "", 1.0, now)
	disagree := submission(t, models.FeedbackDisagree, "", 1.0, now)

	up := i.Integrate(models.CredibilityScore{Score: 50, Confidence: 1.0}, agree, cleanVerdict(), 1.0, consensusWith(10))
	down := i.Integrate(models.CredibilityScore{Score: 50, Confidence: 1.0}, disagree, cleanVerdict(), 1.0, consensusWith(10))

	assert.LessOrEqual(t, up.RewardSignal, 1.0)
	assert.GreaterOrEqual(t, down.RewardSignal, -1.0)
}

func TestIntegrate_ExtremeScoresResistMovement(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)
	sub := submission(t, models.FeedbackAgree, "", 0.9, now)

	middle := i.Integrate(models.CredibilityScore{Score: 50, Confidence: 0.8}, sub, cleanVerdict(), 0.8, consensusWith(10))
	nearTop := i.Integrate(models.CredibilityScore{Score: 96, Confidence: 0.8}, sub, cleanVerdict(), 0.8, consensusWith(10))

	assert.Less(t, nearTop.RewardSignal, middle.RewardSignal,
		"a score already near 100 needs stronger evidence to climb")
	assert.LessOrEqual(t, nearTop.AdjustedScore, 100.0)
}

func TestIntegrate_AdjustedScoreStaysInRange(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)

	agree := submission(t, models.FeedbackAgree, "", 1.0, now)
	issue := submission(t, models.FeedbackReportIssue, "fabricated quotes", 1.0, now)

	top := i.Integrate(models.CredibilityScore{Score: 100, Confidence: 1.0}, agree, cleanVerdict(), 1.0, consensusWith(30))
	bottom := i.Integrate(models.CredibilityScore{Score: 0, Confidence: 1.0}, issue, cleanVerdict(), 1.0, consensusWith(30))

	assert.LessOrEqual(t, top.AdjustedScore, 100.0)
	assert.GreaterOrEqual(t, bottom.AdjustedScore, 0.0)
}

func TestIntegrate_MaterialityGate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)

	// Weak signal from a low-reputation submitter with low confidence
	// produces a sub-2-point delta.
	weak := submission(t, models.FeedbackAgree, "", 0.1, now)
	small := i.Integrate(models.CredibilityScore{Score: 50, Confidence: 0.1}, weak, cleanVerdict(), 0.1, consensusWith(10))
	assert.False(t, small.ShouldPersist)

	// A strong contradiction moves the score enough to persist.
	strong := submission(t, models.FeedbackReportIssue, "the article body contradicts its own headline claim entirely", 1.0, now)
	large := i.Integrate(models.CredibilityScore{Score: 50, Confidence: 0.9}, strong, cleanVerdict(), 0.9, consensusWith(10))
	assert.True(t, large.ShouldPersist)
	assert.GreaterOrEqual(t, large.OriginalScore-large.AdjustedScore, 2.0)
}

func TestIntegrate_StrongConsensusPullsTowardCommunityView(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)
	sub := submission(t, models.FeedbackDisagree, "", 0.7, now)

	strong := &models.ConsensusSnapshot{
		URL:               "https://example.com/a",
		TotalCounted:      40,
		AgreementRate:     0.95,
		ConsensusStrength: 0.85,
		ConfidenceLevel:   models.ConfidenceHigh,
	}

	// One dissenting vote pushes down, but the community overwhelmingly
	// endorses the score; blending softens the downward move.
	withConsensus := i.Integrate(models.CredibilityScore{Score: 30, Confidence: 0.7}, sub, cleanVerdict(), 0.7, strong)

	weak := consensusWith(40)
	withoutConsensus := i.Integrate(models.CredibilityScore{Score: 30, Confidence: 0.7}, sub, cleanVerdict(), 0.7, weak)

	assert.Greater(t, withConsensus.AdjustedScore, withoutConsensus.AdjustedScore)
}

func TestIntegrate_ExplorationBoostStaysUnderCap(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// rand always below the exploration rate, so the boost always fires.
	i := NewIntegrator(testIntegratorConfig(), logging.NewNop(),
		func() time.Time { return now },
		func() float64 { return 0.0 })

	sub := submission(t, models.FeedbackAgree, "detailed supporting commentary with plenty of substance", 1.0, now)
	result := i.Integrate(models.CredibilityScore{Score: 50, Confidence: 1.0}, sub, cleanVerdict(), 1.0, consensusWith(10))

	assert.LessOrEqual(t, result.WeightApplied, 0.15)
	assert.Greater(t, result.WeightApplied, 0.0)
}

func TestIntegrate_AdjustedScoreIsRounded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i := newTestIntegrator(now)
	sub := submission(t, models.FeedbackDisagree, "", 0.6, now)

	result := i.Integrate(models.CredibilityScore{Score: 57, Confidence: 0.4}, sub, cleanVerdict(), 0.6, consensusWith(10))

	assert.Equal(t, result.AdjustedScore, float64(int(result.AdjustedScore)), "adjusted score is a whole number")
}
