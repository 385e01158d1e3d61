package reputation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/credlens/credlens/internal/kv"
	"github.com/credlens/credlens/internal/models"
)

const keyPrefix = "rep/"

// maturityWindow is the account age at which the time weight reaches 1.
const maturityWindow = 30 * 24 * time.Hour

// accuracyAlpha is the smoothing factor for the accuracy moving average.
const accuracyAlpha = 0.1

// Tracker maintains per-submitter trust scores derived from submission
// history. Records live in the syncable KV tier; updates are append-only
// counter increments, never rewrites of history.
type Tracker struct {
	store  *kv.Store
	logger *logrus.Logger
	now    func() time.Time
}

// NewTracker creates a tracker. now is injectable for tests.
func NewTracker(store *kv.Store, logger *logrus.Logger, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, logger: logger, now: now}
}

// Get returns the submitter's trust score in [0,1]. Unseen submitters
// score a neutral 0.5.
func (t *Tracker) Get(submitterID string) (float64, error) {
	record, err := t.GetRecord(submitterID)
	if err != nil {
		return 0, err
	}
	if record == nil {
		return 0.5, nil
	}
	return t.Score(record), nil
}

// GetRecord returns the stored reputation record, or nil if the submitter
// has never been seen.
func (t *Tracker) GetRecord(submitterID string) (*models.ReputationRecord, error) {
	data, err := t.store.Get(kv.TierSync, keyPrefix+submitterID)
	if err != nil {
		return nil, fmt.Errorf("load reputation: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	var record models.ReputationRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decode reputation: %w", err)
	}
	return &record, nil
}

// Score blends spam history, accuracy, account age, and verification into
// a single [0,1] trust estimate:
//
//	(1-spamRatio)*0.4 + accuracy*0.3 + timeWeight*0.2 + verification*0.1
//
// where timeWeight ramps linearly from 0 to 1 over the first 30 days.
func (t *Tracker) Score(record *models.ReputationRecord) float64 {
	spamComponent := (1 - record.SpamRatio()) * 0.4
	accuracyComponent := record.AccuracyScore * 0.3

	age := t.now().Sub(record.FirstSeenAt)
	timeWeight := float64(age) / float64(maturityWindow)
	if timeWeight > 1 {
		timeWeight = 1
	}
	if timeWeight < 0 {
		timeWeight = 0
	}

	verificationWeight := 0.3
	switch record.VerificationLevel {
	case models.VerificationBasic:
		verificationWeight = 0.7
	case models.VerificationVerified:
		verificationWeight = 1.0
	}

	return spamComponent + accuracyComponent + timeWeight*0.2 + verificationWeight*0.1
}

// Record appends one verdict to the submitter's history, creating the
// record on first contact.
func (t *Tracker) Record(submitterID string, verdict *models.SpamVerdict) error {
	record, err := t.GetRecord(submitterID)
	if err != nil {
		return err
	}
	now := t.now()
	if record == nil {
		record = &models.ReputationRecord{
			SubmitterID:       submitterID,
			AccuracyScore:     0.5,
			FirstSeenAt:       now,
			VerificationLevel: models.VerificationNone,
		}
	}

	record.TotalSubmissions++
	if verdict.IsSpam {
		record.SpamSubmissions++
	}
	record.LastSeenAt = now

	return t.save(record)
}

// RecordAccuracy nudges the submitter's accuracy score toward 1 when their
// feedback later aligned with community consensus, toward 0 when it
// contradicted it. Exponential moving average so no single submission
// dominates.
func (t *Tracker) RecordAccuracy(submitterID string, aligned bool) error {
	record, err := t.GetRecord(submitterID)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}

	target := 0.0
	if aligned {
		target = 1.0
	}
	record.AccuracyScore += accuracyAlpha * (target - record.AccuracyScore)
	return t.save(record)
}

// SetVerification updates the submitter's identity attestation level,
// creating the record if needed.
func (t *Tracker) SetVerification(submitterID string, level models.VerificationLevel) error {
	record, err := t.GetRecord(submitterID)
	if err != nil {
		return err
	}
	if record == nil {
		now := t.now()
		record = &models.ReputationRecord{
			SubmitterID:   submitterID,
			AccuracyScore: 0.5,
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}
	}
	record.VerificationLevel = level
	return t.save(record)
}

func (t *Tracker) save(record *models.ReputationRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode reputation: %w", err)
	}
	if err := t.store.Set(kv.TierSync, keyPrefix+record.SubmitterID, data); err != nil {
		return fmt.Errorf("save reputation: %w", err)
	}
	return nil
}
