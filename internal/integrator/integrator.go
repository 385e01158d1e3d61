package integrator

import (
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/credlens/credlens/internal/config"
	"github.com/credlens/credlens/internal/models"
)

// scoreScale converts a full-strength reward signal into score points
// before the feedback weight is applied: a reward of ±1 at the weight cap
// moves the score by at most ±15 points.
const scoreScale = 100.0

// consensusPull is how strongly a strong community consensus drags the
// score toward its implied target.
const consensusPull = 0.3

// Integrator converts a submission's reward signal plus the community
// consensus into a bounded credibility-score adjustment.
type Integrator struct {
	cfg    config.IntegratorConfig
	logger *logrus.Logger
	now    func() time.Time
	rand   func() float64
}

// NewIntegrator creates an integrator. now and rnd are injectable for
// tests; nil picks real time and math/rand.
func NewIntegrator(cfg config.IntegratorConfig, logger *logrus.Logger, now func() time.Time, rnd func() float64) *Integrator {
	if now == nil {
		now = time.Now
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	return &Integrator{cfg: cfg, logger: logger, now: now, rand: rnd}
}

// Integrate blends one submission into the existing credibility score.
// URLs with fewer valid historical records than the minimum volume return
// the original score untouched with zero weight, so a single early
// reporter cannot swing the score.
func (i *Integrator) Integrate(original models.CredibilityScore, sub *models.FeedbackSubmission, verdict *models.SpamVerdict, reputation float64, consensus *models.ConsensusSnapshot) *models.IntegrationResult {
	result := &models.IntegrationResult{
		OriginalScore: original.Score,
		AdjustedScore: clamp(original.Score, 0, 100),
	}

	reward := i.rewardSignal(original, sub, reputation)
	result.RewardSignal = reward

	if consensus == nil || consensus.TotalCounted < i.cfg.MinVolume {
		return result
	}

	weight := i.adaptiveWeight(sub, reputation, reward)
	result.WeightApplied = weight

	delta := reward * scoreScale
	if consensus.HasStrongConsensus() {
		target := consensus.AgreementRate * 100
		consensusDelta := consensusPull * (target - original.Score)
		delta = (delta + consensusDelta) / 2
	}

	adjusted := math.Round(clamp(original.Score+delta*weight, 0, 100))
	result.AdjustedScore = adjusted

	if math.Abs(adjusted-original.Score) >= i.cfg.MaterialityDelta {
		result.ShouldPersist = true
	}
	return result
}

// rewardSignal maps one submission to [-1,1]: how strongly it confirms or
// contradicts the current score.
func (i *Integrator) rewardSignal(original models.CredibilityScore, sub *models.FeedbackSubmission, reputation float64) float64 {
	var base float64
	switch sub.Type {
	case models.FeedbackAgree:
		base = 0.5 + 0.3*original.Confidence
	case models.FeedbackDisagree:
		base = -0.5 - 0.3*original.Confidence
	case models.FeedbackReportIssue:
		base = -0.8
	}

	// Stated confidence amplifies or dampens along the signal's direction.
	adjustment := 0.4 * (sub.StatedConfidence - 0.5)
	if base < 0 {
		adjustment = -adjustment
	}
	reward := base + adjustment

	// Trusted submitters carry more signal.
	reward *= 0.5 + 0.5*reputation

	// A score already near 0 or 100 needs stronger evidence to move
	// further toward the extreme.
	extremity := 1 - math.Min(original.Score, 100-original.Score)/50
	reward *= 1 - 0.5*clamp(extremity, 0, 1)

	return clamp(reward, -1, 1)
}

// adaptiveWeight estimates how much influence this submission deserves:
// base weight scaled by feedback quality, boosted for strong signals,
// occasionally boosted further for exploration, capped hard.
func (i *Integrator) adaptiveWeight(sub *models.FeedbackSubmission, reputation, reward float64) float64 {
	quality := 0.4 * reputation
	quality += 0.3 * sub.StatedConfidence
	if len(sub.FreeText) >= 40 {
		quality += 0.15
	}
	if sub.Type == models.FeedbackReportIssue && sub.FreeText != "" {
		quality += 0.1
	}

	// Fresh feedback counts more; influence decays to nothing over 30 days.
	age := i.now().Sub(sub.SubmittedAt)
	recency := 1 - age.Hours()/(30*24)
	quality += 0.15 * clamp(recency, 0, 1)

	weight := i.cfg.BaseWeight * (0.5 + clamp(quality, 0, 1))

	if math.Abs(reward) > 0.7 {
		weight *= 1.5
	}
	if i.rand() < i.cfg.ExplorationRate {
		weight *= 1.3
	}

	return clamp(weight, 0, i.cfg.MaxWeight)
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
