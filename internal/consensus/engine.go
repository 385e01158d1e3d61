package consensus

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/credlens/credlens/internal/config"
	"github.com/credlens/credlens/internal/models"
)

// RecordSource is the read path the engine aggregates over. Satisfied by
// the feedback store.
type RecordSource interface {
	ListValidByURL(ctx context.Context, url string, limit int) ([]*models.StoredFeedbackRecord, error)
}

// Engine computes community agreement statistics for a URL. Snapshots are
// always read-time aggregates over stored records; nothing here is cached
// or persisted, so a snapshot can never go stale.
type Engine struct {
	source RecordSource
	cfg    config.ConsensusConfig
	logger *logrus.Logger
	now    func() time.Time
}

// NewEngine creates a consensus engine. now is injectable for tests.
func NewEngine(source RecordSource, cfg config.ConsensusConfig, logger *logrus.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{source: source, cfg: cfg, logger: logger, now: now}
}

// Snapshot aggregates up to the most recent MaxRecords non-spam records
// for the URL. Repeated calls without intervening writes return identical
// snapshots.
func (e *Engine) Snapshot(ctx context.Context, url string) (*models.ConsensusSnapshot, error) {
	records, err := e.source.ListValidByURL(ctx, url, e.cfg.MaxRecords)
	if err != nil {
		return nil, err
	}

	snapshot := &models.ConsensusSnapshot{
		URL:          url,
		TotalCounted: len(records),
	}

	var confidenceSum float64
	recentCutoff := e.now().Add(-e.cfg.TrendWindow)
	var recentAgree, recentDisagree int

	for _, record := range records {
		confidenceSum += record.Submission.StatedConfidence
		recent := record.Submission.SubmittedAt.After(recentCutoff)
		switch record.Submission.Type {
		case models.FeedbackAgree:
			snapshot.AgreeCount++
			if recent {
				recentAgree++
			}
		case models.FeedbackDisagree:
			snapshot.DisagreeCount++
			if recent {
				recentDisagree++
			}
		case models.FeedbackReportIssue:
			snapshot.IssueCount++
		}
	}

	snapshot.AgreementRate = agreementRate(snapshot.AgreeCount, snapshot.DisagreeCount)

	// Strength needs both a lopsided split and enough volume: a 2-person
	// unanimous vote is not strong consensus.
	meanConfidence := 0.0
	if len(records) > 0 {
		meanConfidence = confidenceSum / float64(len(records))
	}
	lopsidedness := snapshot.AgreementRate
	if 1-snapshot.AgreementRate > lopsidedness {
		lopsidedness = 1 - snapshot.AgreementRate
	}
	volume := float64(snapshot.TotalCounted) / 20.0
	if volume > 1 {
		volume = 1
	}
	snapshot.ConsensusStrength = lopsidedness * meanConfidence * volume

	switch {
	case snapshot.TotalCounted >= 20 && snapshot.ConsensusStrength > 0.8:
		snapshot.ConfidenceLevel = models.ConfidenceHigh
	case snapshot.TotalCounted >= 5 && snapshot.ConsensusStrength > 0.6:
		snapshot.ConfidenceLevel = models.ConfidenceMedium
	default:
		snapshot.ConfidenceLevel = models.ConfidenceLow
	}

	snapshot.Trend = models.TrendStable
	if recentAgree+recentDisagree > 0 {
		recentRate := agreementRate(recentAgree, recentDisagree)
		switch {
		case recentRate-snapshot.AgreementRate > e.cfg.TrendShift:
			snapshot.Trend = models.TrendPositive
		case snapshot.AgreementRate-recentRate > e.cfg.TrendShift:
			snapshot.Trend = models.TrendNegative
		}
	}

	return snapshot, nil
}

// agreementRate is agree/(agree+disagree), neutral 0.5 when neither side
// has voted.
func agreementRate(agree, disagree int) float64 {
	if agree+disagree == 0 {
		return 0.5
	}
	return float64(agree) / float64(agree+disagree)
}
