package cluster

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credlens/credlens/internal/kv"
	"github.com/credlens/credlens/internal/logging"
	"github.com/credlens/credlens/internal/models"
)

func newTestAssigner(t *testing.T, now func() time.Time) *Assigner {
	t.Helper()
	store, err := kv.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return NewAssigner(store, logging.NewNop(), now)
}

func testRecord(ftype models.FeedbackType, url string, verdict models.SpamVerdict) *models.StoredFeedbackRecord {
	return &models.StoredFeedbackRecord{
		ID: "rec-1",
		Submission: models.FeedbackSubmission{
			Type:             ftype,
			URL:              url,
			SubmitterID:      "sub-1",
			StatedConfidence: 0.5,
		},
		Verdict: verdict,
	}
}

func TestAssigner_SimilarRecordsJoinOneCluster(t *testing.T) {
	a := newTestAssigner(t, nil)
	verdict := models.SpamVerdict{IsSpam: false, Confidence: 0.5, RiskLevel: models.RiskLevelLow}

	first, err := a.Assign(testRecord(models.FeedbackDisagree, "https://example.com/a", verdict))
	require.NoError(t, err)
	second, err := a.Assign(testRecord(models.FeedbackDisagree, "https://example.com/b", verdict))
	require.NoError(t, err)

	assert.Equal(t, first, second, "matching signature and spam likelihood should share a cluster")

	clusters, err := a.List()
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 2, clusters[0].MemberCount)
	assert.InDelta(t, 0.35, clusters[0].Confidence, 1e-9, "joining nudges confidence up from 0.3")
}

func TestAssigner_DifferentSignaturesSplit(t *testing.T) {
	a := newTestAssigner(t, nil)
	verdict := models.SpamVerdict{RiskLevel: models.RiskLevelLow}

	agreeID, err := a.Assign(testRecord(models.FeedbackAgree, "https://example.com/a", verdict))
	require.NoError(t, err)
	disagreeID, err := a.Assign(testRecord(models.FeedbackDisagree, "https://example.com/a", verdict))
	require.NoError(t, err)
	otherDomainID, err := a.Assign(testRecord(models.FeedbackAgree, "https://other.example/a", verdict))
	require.NoError(t, err)

	assert.NotEqual(t, agreeID, disagreeID)
	assert.NotEqual(t, agreeID, otherDomainID)

	clusters, err := a.List()
	require.NoError(t, err)
	assert.Len(t, clusters, 3)
}

func TestAssigner_SpamLikelihoodGapSplits(t *testing.T) {
	a := newTestAssigner(t, nil)

	// Same signature bucket (risk level High), but one confident spam
	// verdict and one confident clean verdict sit far apart.
	spam := models.SpamVerdict{IsSpam: true, Confidence: 1.0, RiskLevel: models.RiskLevelHigh}
	clean := models.SpamVerdict{IsSpam: false, Confidence: 1.0, RiskLevel: models.RiskLevelHigh}

	spamID, err := a.Assign(testRecord(models.FeedbackAgree, "https://example.com/a", spam))
	require.NoError(t, err)
	cleanID, err := a.Assign(testRecord(models.FeedbackAgree, "https://example.com/a", clean))
	require.NoError(t, err)

	assert.NotEqual(t, spamID, cleanID)
}

func TestAssigner_MeanSpamScoreTracksMembers(t *testing.T) {
	a := newTestAssigner(t, nil)

	spam := models.SpamVerdict{IsSpam: true, Confidence: 0.9, RiskLevel: models.RiskLevelHigh}
	id, err := a.Assign(testRecord(models.FeedbackAgree, "https://example.com/a", spam))
	require.NoError(t, err)

	record := testRecord(models.FeedbackAgree, "https://example.com/a", spam)
	cluster, err := a.Get(signature(record), id)
	require.NoError(t, err)
	require.NotNil(t, cluster)
	assert.InDelta(t, 0.95, cluster.MeanSpamScore, 1e-9)
}

func TestAssigner_PruneBefore(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAssigner(t, func() time.Time { return current })
	verdict := models.SpamVerdict{RiskLevel: models.RiskLevelLow}

	_, err := a.Assign(testRecord(models.FeedbackAgree, "https://old.example/a", verdict))
	require.NoError(t, err)

	current = current.Add(200 * 24 * time.Hour)
	_, err = a.Assign(testRecord(models.FeedbackAgree, "https://fresh.example/a", verdict))
	require.NoError(t, err)

	pruned, err := a.PruneBefore(current.Add(-180 * 24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, pruned)

	clusters, err := a.List()
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Contains(t, clusters[0].Signature, "fresh.example")
}

func TestAssigner_TextLengthBucketsSplit(t *testing.T) {
	a := newTestAssigner(t, nil)
	verdict := models.SpamVerdict{IsSpam: false, Confidence: 0.5, RiskLevel: models.RiskLevelLow}

	short := testRecord(models.FeedbackDisagree, "https://example.com/a", verdict)
	short.TextLength = 40
	long := testRecord(models.FeedbackDisagree, "https://example.com/a", verdict)
	long.TextLength = 500

	shortID, err := a.Assign(short)
	require.NoError(t, err)
	longID, err := a.Assign(long)
	require.NoError(t, err)

	assert.NotEqual(t, shortID, longID, "length buckets are part of the signature")

	clusters, err := a.List()
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	joined := clusters[0].Signature + " " + clusters[1].Signature
	assert.Contains(t, joined, "|short|")
	assert.Contains(t, joined, "|long|")
}
