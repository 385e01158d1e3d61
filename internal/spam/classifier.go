package spam

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/credlens/credlens/internal/config"
	"github.com/credlens/credlens/internal/models"
)

// Risk contributions for the discrete factors. The rate violation is a
// fixed high-risk score; low reputation flags at a fixed medium-high value.
const (
	rateViolationRisk = 0.9
	lowReputationRisk = 0.7
)

// Classifier produces a SpamVerdict for each submission by combining a
// rate check, two independent content scorers, and discrete risk factors.
// Classification never fails: any internal fault degrades to a
// conservative non-spam verdict.
type Classifier struct {
	cfg     config.SpamConfig
	logger  *logrus.Logger
	rates   *rateWindow
	history *textHistory
}

// NewClassifier creates a classifier with its own bounded in-memory state
// (rate counters and per-submitter text history).
func NewClassifier(cfg config.SpamConfig, logger *logrus.Logger) *Classifier {
	depth := cfg.HistoryDepth
	if depth <= 0 {
		depth = 10
	}
	return &Classifier{
		cfg:     cfg,
		logger:  logger,
		rates:   newRateWindow(),
		history: newTextHistory(depth),
	}
}

// rateResult carries the rate check outcome across the errgroup join.
type rateResult struct {
	violated bool
	reason   string
}

// Classify runs the three sub-analyses concurrently (they share no mutable
// state once the submitter's prior timing is captured) and merges their
// outputs under the configured combination policy.
func (c *Classifier) Classify(ctx context.Context, sub *models.FeedbackSubmission, reputation float64) *models.SpamVerdict {
	// Captured up front so the fallback log line cannot re-trip on the
	// same nil submission that broke the analysis.
	submitter := ""
	if sub != nil {
		submitter = sub.SubmitterID
	}
	verdict, err := c.classify(ctx, sub, reputation)
	if err != nil {
		c.logger.WithError(err).WithField("submitter", submitter).
			Warn("spam analysis failed, applying conservative fallback")
		return failSafeVerdict()
	}
	return verdict
}

func (c *Classifier) classify(ctx context.Context, sub *models.FeedbackSubmission, reputation float64) (verdict *models.SpamVerdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			verdict, err = nil, fmt.Errorf("spam analysis panic: %v", r)
		}
	}()

	// Timing relative to the submitter's previous submission has to be
	// read before the rate check records this one.
	lastSeen := c.rates.LastSeen(sub.SubmitterID)
	sinceLast := time.Duration(0)
	hasHistory := !lastSeen.IsZero()
	if hasHistory {
		sinceLast = sub.SubmittedAt.Sub(lastSeen)
	}

	var (
		rate   rateResult
		scoreA float64
		scoreB float64
	)

	group, _ := errgroup.WithContext(ctx)
	group.Go(func() error {
		rate = c.checkRate(sub.SubmitterID, sub.SubmittedAt)
		return nil
	})
	group.Go(func() error {
		scoreA = scoreHeuristic(sub.FreeText)
		return nil
	})
	group.Go(func() error {
		scoreB = scoreLinear(sub.FreeText, reputation, sinceLast, hasHistory)
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	combined := 0.4*scoreA + 0.6*scoreB

	similarity := c.history.MaxSimilarity(sub.SubmitterID, sub.FreeText)
	density := patternDensity(sub.FreeText)

	riskFactors := []float64{0, similarity, 0, density}
	if rate.violated {
		riskFactors[0] = rateViolationRisk
	}
	if reputation < c.cfg.LowReputation {
		riskFactors[2] = lowReputationRisk
	}

	maxRisk := combined
	for _, f := range riskFactors {
		if f > maxRisk {
			maxRisk = f
		}
	}

	decision := maxRisk
	if c.cfg.CombinePolicy == config.CombineSmooth {
		decision = smoothCombine(append([]float64{combined}, riskFactors...))
	}
	isSpam := decision > c.cfg.Threshold

	verdict = &models.SpamVerdict{
		IsSpam:      isSpam,
		Confidence:  classificationConfidence(scoreA, scoreB, riskFactors),
		RiskLevel:   bucketRisk(maxRisk),
		MethodsUsed: []string{"rate_check", "heuristic_content", "linear_content", "risk_factors"},
	}

	if rate.violated {
		verdict.Reasons = append(verdict.Reasons, rate.reason)
	}
	if similarity > 0.5 {
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("near-duplicate of recent submissions (similarity %.2f)", similarity))
	}
	if reputation < c.cfg.LowReputation {
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("low submitter reputation (%.2f)", reputation))
	}
	if combined > c.cfg.Threshold {
		verdict.Reasons = append(verdict.Reasons, fmt.Sprintf("content scored %.2f across both analyzers", combined))
	}

	return verdict, nil
}

// checkRate counts the submitter's actions over the trailing minute, hour,
// and day against fixed ceilings. The submission being classified counts
// toward its own windows.
func (c *Classifier) checkRate(submitterID string, at time.Time) rateResult {
	minute, hour, day := c.rates.Observe(submitterID, at)

	switch {
	case minute > c.cfg.MaxPerMinute:
		return rateResult{true, fmt.Sprintf("rate limit exceeded: %d submissions in the last minute (max %d)", minute, c.cfg.MaxPerMinute)}
	case hour > c.cfg.MaxPerHour:
		return rateResult{true, fmt.Sprintf("rate limit exceeded: %d submissions in the last hour (max %d)", hour, c.cfg.MaxPerHour)}
	case day > c.cfg.MaxPerDay:
		return rateResult{true, fmt.Sprintf("rate limit exceeded: %d submissions in the last day (max %d)", day, c.cfg.MaxPerDay)}
	}
	return rateResult{}
}

// classificationConfidence is method agreement (1 - variance of component
// scores) scaled by evidence strength (fraction of risk factors above 0.3).
func classificationConfidence(scoreA, scoreB float64, riskFactors []float64) float64 {
	maxRisk := 0.0
	strong := 0
	for _, f := range riskFactors {
		if f > maxRisk {
			maxRisk = f
		}
		if f > 0.3 {
			strong++
		}
	}

	components := []float64{scoreA, scoreB, maxRisk}
	mean := 0.0
	for _, s := range components {
		mean += s
	}
	mean /= float64(len(components))

	variance := 0.0
	for _, s := range components {
		variance += (s - mean) * (s - mean)
	}
	variance /= float64(len(components))

	agreement := 1 - variance
	strength := float64(strong) / float64(len(riskFactors))
	return clamp(agreement*strength, 0, 1)
}

// bucketRisk maps the strongest risk value to a level.
func bucketRisk(maxRisk float64) models.RiskLevel {
	switch {
	case maxRisk > 0.8:
		return models.RiskLevelHigh
	case maxRisk > 0.5:
		return models.RiskLevelMedium
	default:
		return models.RiskLevelLow
	}
}

// smoothCombine is a softmax-weighted blend of the signals: close to max
// for one dominant signal, below it when signals disagree. Exposed through
// the combine_policy setting since the exact blend is tunable policy.
func smoothCombine(signals []float64) float64 {
	const sharpness = 6.0
	var num, den float64
	for _, s := range signals {
		w := math.Exp(sharpness * s)
		num += s * w
		den += w
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// failSafeVerdict is the conservative fallback when analysis itself
// breaks: never block a user on an internal fault.
func failSafeVerdict() *models.SpamVerdict {
	return &models.SpamVerdict{
		IsSpam:     false,
		Confidence: 0.3,
		RiskLevel:  models.RiskLevelLow,
		Reasons:    []string{"analysis failed; conservative fallback applied"},
	}
}
