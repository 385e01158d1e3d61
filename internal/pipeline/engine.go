package pipeline

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/credlens/credlens/internal/cluster"
	"github.com/credlens/credlens/internal/consensus"
	apperrors "github.com/credlens/credlens/internal/errors"
	"github.com/credlens/credlens/internal/integrator"
	"github.com/credlens/credlens/internal/models"
	"github.com/credlens/credlens/internal/reputation"
	"github.com/credlens/credlens/internal/spam"
	"github.com/credlens/credlens/internal/store"
)

// rejectConfidence is the verdict confidence above which a spam submission
// is rejected outright instead of being stored for pattern learning.
const rejectConfidence = 0.8

// Engine runs one submission through the full pipeline:
//
//	Received -> Classified -> {Rejected | Stored} -> Clustered ->
//	ConsensusRefreshed -> Integrated
//
// Each submission's steps run sequentially. Submissions for different
// URLs may be in flight concurrently; two near-simultaneous submissions
// for the same URL may each integrate against a consensus that does not
// yet include the other's record. That eventual consistency is accepted:
// the next submission for the URL reads a complete snapshot.
type Engine struct {
	classifier *spam.Classifier
	reputation *reputation.Tracker
	store      *store.FeedbackStore
	clusters   *cluster.Assigner
	consensus  *consensus.Engine
	integrator *integrator.Integrator
	logger     *logrus.Logger
}

// New wires the pipeline from explicitly constructed components; there are
// no process-wide singletons behind it.
func New(
	classifier *spam.Classifier,
	tracker *reputation.Tracker,
	feedbackStore *store.FeedbackStore,
	clusters *cluster.Assigner,
	consensusEngine *consensus.Engine,
	scoreIntegrator *integrator.Integrator,
	logger *logrus.Logger,
) *Engine {
	return &Engine{
		classifier: classifier,
		reputation: tracker,
		store:      feedbackStore,
		clusters:   clusters,
		consensus:  consensusEngine,
		integrator: scoreIntegrator,
		logger:     logger,
	}
}

// Submit processes one feedback submission against the page's current
// credibility score. The returned result is always usable by the caller;
// the error is non-nil only for faults that must surface (storage down,
// invalid submission).
func (e *Engine) Submit(ctx context.Context, sub *models.FeedbackSubmission, score models.CredibilityScore) (*models.FeedbackSubmissionResult, error) {
	if sub == nil || !sub.Type.Valid() || sub.SubmitterID == "" {
		err := apperrors.ValidationError("submission is missing a type or submitter")
		return &models.FeedbackSubmissionResult{Success: false, Message: err.Message}, err
	}

	repScore, err := e.reputation.Get(sub.SubmitterID)
	if err != nil {
		// Reputation is advisory input to classification; fall back to
		// neutral rather than blocking the submission.
		e.logger.WithError(err).Warn("reputation lookup failed, using neutral score")
		repScore = 0.5
	}

	verdict := e.classifier.Classify(ctx, sub, repScore)

	if err := e.reputation.Record(sub.SubmitterID, verdict); err != nil {
		e.logger.WithError(err).Warn("reputation update failed")
	}

	if verdict.IsSpam && verdict.Confidence > rejectConfidence {
		e.logger.WithFields(logrus.Fields{
			"event":     "spam_rejected",
			"submitter": sub.SubmitterID,
			"url":       sub.URL,
			"risk":      verdict.RiskLevel,
			"reasons":   verdict.Reasons,
		}).Info("submission rejected as spam")
		return &models.FeedbackSubmissionResult{
			Success:     false,
			WasFiltered: true,
			Message:     "submission was filtered; please retry later or contact support",
			SpamVerdict: verdict,
		}, nil
	}

	recordID, err := e.store.Put(ctx, sub, verdict)
	if err != nil {
		return &models.FeedbackSubmissionResult{
			Success:     false,
			Message:     "feedback could not be saved",
			SpamVerdict: verdict,
		}, err
	}

	e.assignCluster(ctx, recordID)

	snapshot, err := e.consensus.Snapshot(ctx, sub.URL)
	if err != nil {
		// Without a snapshot the integrator applies no adjustment, which
		// is the conservative outcome.
		e.logger.WithError(err).WithField("url", sub.URL).Warn("consensus snapshot failed")
		snapshot = nil
	}

	integration := e.integrator.Integrate(score, sub, verdict, repScore, snapshot)
	if integration.ShouldPersist {
		e.logger.WithFields(logrus.Fields{
			"event":    "integration_applied",
			"url":      sub.URL,
			"original": integration.OriginalScore,
			"adjusted": integration.AdjustedScore,
			"weight":   integration.WeightApplied,
		}).Info("credibility score adjustment is material")
	}

	e.recordAccuracy(sub, snapshot)

	return &models.FeedbackSubmissionResult{
		Success:     true,
		FeedbackID:  recordID,
		WasFiltered: false,
		SpamVerdict: verdict,
		Integration: integration,
	}, nil
}

// assignCluster tags the stored record with its pattern cluster. Failures
// are logged, not surfaced: clustering informs abuse detection but never
// gates a submission.
func (e *Engine) assignCluster(ctx context.Context, recordID string) {
	record, err := e.store.Get(ctx, recordID, false)
	if err != nil {
		e.logger.WithError(err).WithField("record", recordID).Warn("cluster assignment skipped, record unreadable")
		return
	}
	clusterID, err := e.clusters.Assign(record)
	if err != nil {
		e.logger.WithError(err).WithField("record", recordID).Warn("cluster assignment failed")
		return
	}
	if err := e.store.SetClusterID(ctx, recordID, clusterID); err != nil {
		e.logger.WithError(err).WithField("record", recordID).Warn("cluster tag write failed")
	}
}

// recordAccuracy nudges the submitter's accuracy once the community has a
// readable position: agreeing with a majority view counts toward accuracy,
// contradicting it counts against.
func (e *Engine) recordAccuracy(sub *models.FeedbackSubmission, snapshot *models.ConsensusSnapshot) {
	if snapshot == nil || snapshot.ConfidenceLevel == models.ConfidenceLow {
		return
	}
	var aligned bool
	switch sub.Type {
	case models.FeedbackAgree:
		aligned = snapshot.AgreementRate > 0.5
	case models.FeedbackDisagree:
		aligned = snapshot.AgreementRate < 0.5
	default:
		return
	}
	if err := e.reputation.RecordAccuracy(sub.SubmitterID, aligned); err != nil {
		e.logger.WithError(err).Warn("accuracy update failed")
	}
}

// Consensus exposes the read-time snapshot for callers that only want the
// aggregate view.
func (e *Engine) Consensus(ctx context.Context, url string) (*models.ConsensusSnapshot, error) {
	return e.consensus.Snapshot(ctx, url)
}

// Cleanup runs retention cleanup on demand (it also runs automatically
// when the store nears its quota).
func (e *Engine) Cleanup(ctx context.Context) (int, error) {
	return e.store.Cleanup(ctx)
}
