package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FeedbackType identifies what a submitter is saying about a score.
type FeedbackType string

const (
	FeedbackAgree       FeedbackType = "agree"
	FeedbackDisagree    FeedbackType = "disagree"
	FeedbackReportIssue FeedbackType = "report_issue"
)

// Valid reports whether t is a known feedback type.
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackAgree, FeedbackDisagree, FeedbackReportIssue:
		return true
	}
	return false
}

// RiskLevel buckets a spam verdict's strongest risk signal.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// VerificationLevel is how strongly a submitter's identity is attested.
type VerificationLevel string

const (
	VerificationNone     VerificationLevel = "none"
	VerificationBasic    VerificationLevel = "basic"
	VerificationVerified VerificationLevel = "verified"
)

// ConfidenceLevel buckets how much a consensus snapshot can be trusted.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Trend describes the recent direction of community agreement.
type Trend string

const (
	TrendPositive Trend = "positive"
	TrendNegative Trend = "negative"
	TrendStable   Trend = "stable"
)

// FeedbackSubmission is a single piece of user feedback about a page's
// credibility score. Immutable once created; construct with NewSubmission
// so validation happens exactly once.
type FeedbackSubmission struct {
	Type             FeedbackType `json:"type"`
	URL              string       `json:"url"`
	SubmitterID      string       `json:"submitter_id"`
	FreeText         string       `json:"free_text,omitempty"`
	StatedConfidence float64      `json:"stated_confidence"`
	SubmittedAt      time.Time    `json:"submitted_at"`
}

// NewSubmission validates and builds a FeedbackSubmission. The URL must be
// absolute http(s), the confidence in [0,1], and the submitter non-empty.
func NewSubmission(ftype FeedbackType, rawURL, submitterID, freeText string, confidence float64, now time.Time) (*FeedbackSubmission, error) {
	if !ftype.Valid() {
		return nil, fmt.Errorf("unknown feedback type %q", ftype)
	}
	if strings.TrimSpace(submitterID) == "" {
		return nil, fmt.Errorf("submitter id is required")
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("stated confidence %.2f outside [0,1]", confidence)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return nil, fmt.Errorf("invalid target url %q", rawURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", parsed.Scheme)
	}
	return &FeedbackSubmission{
		Type:             ftype,
		URL:              rawURL,
		SubmitterID:      submitterID,
		FreeText:         freeText,
		StatedConfidence: confidence,
		SubmittedAt:      now,
	}, nil
}

// Domain returns the host portion of the submission URL, or "" if the URL
// does not parse (possible only for zero-value structs read from storage,
// since constructed submissions are validated).
func (s *FeedbackSubmission) Domain() string {
	parsed, err := url.Parse(s.URL)
	if err != nil {
		return ""
	}
	return parsed.Host
}

// SpamVerdict is the classifier's judgment of one submission. Produced once,
// never mutated.
type SpamVerdict struct {
	IsSpam      bool      `json:"is_spam"`
	Confidence  float64   `json:"confidence"`
	RiskLevel   RiskLevel `json:"risk_level"`
	Reasons     []string  `json:"reasons,omitempty"`
	MethodsUsed []string  `json:"methods_used,omitempty"`
}

// ReputationRecord is the per-submitter trust history. Counters are
// append-only; records are only removed under erasure workflows handled
// outside this engine.
type ReputationRecord struct {
	SubmitterID       string            `json:"submitter_id"`
	TotalSubmissions  int               `json:"total_submissions"`
	SpamSubmissions   int               `json:"spam_submissions"`
	AccuracyScore     float64           `json:"accuracy_score"`
	FirstSeenAt       time.Time         `json:"first_seen_at"`
	LastSeenAt        time.Time         `json:"last_seen_at"`
	VerificationLevel VerificationLevel `json:"verification_level"`
}

// SpamRatio returns the fraction of this submitter's history flagged as spam.
func (r *ReputationRecord) SpamRatio() float64 {
	if r.TotalSubmissions == 0 {
		return 0
	}
	return float64(r.SpamSubmissions) / float64(r.TotalSubmissions)
}

// StoredFeedbackRecord is a persisted submission plus its verdict. Free text
// is held only as ciphertext (Ciphertext non-empty, Submission.FreeText
// cleared) or not at all.
type StoredFeedbackRecord struct {
	ID                 string             `json:"id"`
	Submission         FeedbackSubmission `json:"submission"`
	Ciphertext         []byte             `json:"ciphertext,omitempty"`
	TextLength         int                `json:"text_length"`
	Verdict            SpamVerdict        `json:"verdict"`
	CreatedAt          time.Time          `json:"created_at"`
	LastAccessedAt     time.Time          `json:"last_accessed_at"`
	RetentionExpiresAt time.Time          `json:"retention_expires_at"`
	Anonymized         bool               `json:"anonymized"`
	ClusterID          string             `json:"cluster_id,omitempty"`
}

// FeedbackCluster groups records sharing a similarity signature, used to
// spot coordinated or repetitive abuse.
type FeedbackCluster struct {
	ID            string    `json:"id"`
	Signature     string    `json:"signature"`
	MemberCount   int       `json:"member_count"`
	MeanSpamScore float64   `json:"mean_spam_score"`
	Confidence    float64   `json:"confidence"`
	CreatedAt     time.Time `json:"created_at"`
	LastUpdatedAt time.Time `json:"last_updated_at"`
}

// ConsensusSnapshot is a read-time aggregate of valid feedback for one URL.
// It is always derived, never stored as ground truth.
type ConsensusSnapshot struct {
	URL               string          `json:"url"`
	TotalCounted      int             `json:"total_counted"`
	AgreeCount        int             `json:"agree_count"`
	DisagreeCount     int             `json:"disagree_count"`
	IssueCount        int             `json:"issue_count"`
	AgreementRate     float64         `json:"agreement_rate"`
	ConsensusStrength float64         `json:"consensus_strength"`
	ConfidenceLevel   ConfidenceLevel `json:"confidence_level"`
	Trend             Trend           `json:"trend"`
}

// HasStrongConsensus reports whether the snapshot is lopsided and
// well-supported enough to pull the score toward the community position.
func (c *ConsensusSnapshot) HasStrongConsensus() bool {
	return c.ConfidenceLevel == ConfidenceHigh && c.ConsensusStrength > 0.7
}

// CredibilityScore is the externally computed 0-100 trust estimate for a
// page. Opaque input to the integrator.
type CredibilityScore struct {
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// IntegrationResult is the bounded score adjustment produced for one
// submission.
type IntegrationResult struct {
	OriginalScore float64 `json:"original_score"`
	AdjustedScore float64 `json:"adjusted_score"`
	WeightApplied float64 `json:"weight_applied"`
	RewardSignal  float64 `json:"reward_signal"`
	// ShouldPersist tells the caller the delta is material (>= 2 points)
	// and the new score should be written back.
	ShouldPersist bool `json:"should_persist"`
}

// FeedbackSubmissionResult is the synchronous answer handed back to the
// caller after the pipeline finishes or rejects a submission.
type FeedbackSubmissionResult struct {
	Success     bool               `json:"success"`
	FeedbackID  string             `json:"feedback_id,omitempty"`
	WasFiltered bool               `json:"was_filtered"`
	Message     string             `json:"message,omitempty"`
	SpamVerdict *SpamVerdict       `json:"spam_verdict,omitempty"`
	Integration *IntegrationResult `json:"integration_result,omitempty"`
}
