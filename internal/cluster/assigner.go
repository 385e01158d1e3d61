package cluster

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/credlens/credlens/internal/kv"
	"github.com/credlens/credlens/internal/models"
)

const keyPrefix = "cluster/"

// joinThreshold is the minimum similarity for a record to join an
// existing cluster instead of seeding a new one.
const joinThreshold = 0.7

// Assigner buckets feedback records by coarse signature so coordinated or
// repetitive submissions surface as growing clusters. This is online,
// unsupervised signature bucketing, not full clustering: the first cluster
// with adequate similarity wins, not the global best.
type Assigner struct {
	store  *kv.Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewAssigner creates an assigner over the local KV tier.
func NewAssigner(store *kv.Store, logger *logrus.Logger, now func() time.Time) *Assigner {
	if now == nil {
		now = time.Now
	}
	return &Assigner{store: store, logger: logger, now: now}
}

// Assign finds or creates the cluster for a stored record and returns its
// id. Joining updates the cluster's running mean spam score and nudges its
// confidence upward.
func (a *Assigner) Assign(record *models.StoredFeedbackRecord) (string, error) {
	sig := signature(record)
	likelihood := spamLikelihood(&record.Verdict)

	var matched *models.FeedbackCluster
	err := a.store.ForEach(kv.TierLocal, keyPrefix+sig+"/", func(key string, value []byte) error {
		if matched != nil {
			return nil
		}
		var candidate models.FeedbackCluster
		if err := json.Unmarshal(value, &candidate); err != nil {
			a.logger.WithError(err).WithField("key", key).Warn("skipping undecodable cluster")
			return nil
		}
		if similarity(&candidate, likelihood) > joinThreshold {
			matched = &candidate
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("scan clusters: %w", err)
	}

	now := a.now()
	if matched != nil {
		matched.MemberCount++
		matched.MeanSpamScore += (likelihood - matched.MeanSpamScore) / float64(matched.MemberCount)
		matched.Confidence = math.Min(1, matched.Confidence+0.05)
		matched.LastUpdatedAt = now
		if err := a.save(matched); err != nil {
			return "", err
		}
		return matched.ID, nil
	}

	fresh := &models.FeedbackCluster{
		ID:            uuid.NewString(),
		Signature:     sig,
		MemberCount:   1,
		MeanSpamScore: likelihood,
		Confidence:    0.3,
		CreatedAt:     now,
		LastUpdatedAt: now,
	}
	if err := a.save(fresh); err != nil {
		return "", err
	}
	return fresh.ID, nil
}

// Get returns a cluster by signature and id, or nil.
func (a *Assigner) Get(sig, id string) (*models.FeedbackCluster, error) {
	data, err := a.store.Get(kv.TierLocal, keyPrefix+sig+"/"+id)
	if err != nil || data == nil {
		return nil, err
	}
	var cluster models.FeedbackCluster
	if err := json.Unmarshal(data, &cluster); err != nil {
		return nil, fmt.Errorf("decode cluster: %w", err)
	}
	return &cluster, nil
}

// List returns all clusters, for diagnostics.
func (a *Assigner) List() ([]*models.FeedbackCluster, error) {
	var clusters []*models.FeedbackCluster
	err := a.store.ForEach(kv.TierLocal, keyPrefix, func(key string, value []byte) error {
		var cluster models.FeedbackCluster
		if err := json.Unmarshal(value, &cluster); err != nil {
			return nil
		}
		clusters = append(clusters, &cluster)
		return nil
	})
	return clusters, err
}

// PruneBefore deletes clusters not updated since cutoff and returns how
// many were removed. Satisfies the store's ClusterPruner.
func (a *Assigner) PruneBefore(cutoff time.Time) (int, error) {
	var stale []string
	err := a.store.ForEach(kv.TierLocal, keyPrefix, func(key string, value []byte) error {
		var cluster models.FeedbackCluster
		if err := json.Unmarshal(value, &cluster); err != nil {
			stale = append(stale, key) // undecodable clusters go too
			return nil
		}
		if cluster.LastUpdatedAt.Before(cutoff) {
			stale = append(stale, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan clusters for pruning: %w", err)
	}

	for _, key := range stale {
		if err := a.store.Remove(kv.TierLocal, key); err != nil {
			return 0, fmt.Errorf("prune cluster %s: %w", key, err)
		}
	}
	return len(stale), nil
}

func (a *Assigner) save(cluster *models.FeedbackCluster) error {
	data, err := json.Marshal(cluster)
	if err != nil {
		return fmt.Errorf("encode cluster: %w", err)
	}
	return a.store.Set(kv.TierLocal, keyPrefix+cluster.Signature+"/"+cluster.ID, data)
}

// signature builds the coarse bucket key: feedback type, URL domain,
// text-length bucket, confidence bucket, and verdict risk level.
func signature(record *models.StoredFeedbackRecord) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s",
		record.Submission.Type,
		record.Submission.Domain(),
		lengthBucket(record.TextLength),
		confidenceBucket(record.Submission.StatedConfidence),
		record.Verdict.RiskLevel,
	)
}

// similarity scores a candidate cluster against a record's spam
// likelihood. Type, domain, and risk level already match exactly inside a
// signature bucket, so those contribute their full weights; the remainder
// is closeness of spam likelihood, weighted heavily enough that a
// confident-spam record cannot join a confident-clean cluster.
func similarity(cluster *models.FeedbackCluster, likelihood float64) float64 {
	const matchedWeight = 0.15 + 0.15 + 0.15 // type + domain + risk
	return matchedWeight + 0.55*(1-math.Abs(cluster.MeanSpamScore-likelihood))
}

// spamLikelihood collapses a verdict into a coarse [0,1] spam probability
// for cluster statistics.
func spamLikelihood(verdict *models.SpamVerdict) float64 {
	base := 0.2
	switch verdict.RiskLevel {
	case models.RiskLevelMedium:
		base = 0.5
	case models.RiskLevelHigh:
		base = 0.8
	}
	if verdict.IsSpam {
		return math.Max(base, 0.5+0.5*verdict.Confidence)
	}
	return base * (1 - 0.5*verdict.Confidence)
}

func lengthBucket(n int) string {
	switch {
	case n == 0:
		return "none"
	case n < 100:
		return "short"
	case n < 400:
		return "medium"
	default:
		return "long"
	}
}

func confidenceBucket(c float64) string {
	switch {
	case c < 0.34:
		return "low"
	case c < 0.67:
		return "mid"
	default:
		return "high"
	}
}
