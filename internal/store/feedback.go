package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	apperrors "github.com/credlens/credlens/internal/errors"
	"github.com/credlens/credlens/internal/models"
	"github.com/credlens/credlens/internal/secrets"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = fmt.Errorf("record not found")

// quotaTriggerRatio is the usage fraction of the quota at which cleanup
// runs before a write.
const quotaTriggerRatio = 0.9

// ClusterPruner removes clusters that have been idle past their retention
// window. Satisfied by the cluster assigner so cleanup can cover both
// stores without a package cycle.
type ClusterPruner interface {
	PruneBefore(cutoff time.Time) (int, error)
}

// Options carries the retention and quota policy for the store.
type Options struct {
	StandardRetention time.Duration
	SpamRetention     time.Duration
	ClusterRetention  time.Duration
	QuotaBytes        int64
}

// FeedbackStore persists feedback records in SQLite. Free text is held
// only as AEAD ciphertext; when no cipher is available the text is dropped
// rather than stored in plaintext.
type FeedbackStore struct {
	db     *sqlx.DB
	path   string
	cipher *secrets.Cipher
	opts   Options
	logger *logrus.Logger
	now    func() time.Time
	pruner ClusterPruner
}

// NewFeedbackStore opens (creating if needed) the SQLite database at path.
// cipher may be nil, which degrades writes to text-free records. now is
// injectable for tests.
func NewFeedbackStore(path string, cipher *secrets.Cipher, opts Options, logger *logrus.Logger, now func() time.Time) (*FeedbackStore, error) {
	if now == nil {
		now = time.Now
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, apperrors.StorageError(err, "create database directory")
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, apperrors.StorageError(err, "open feedback store")
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	s := &FeedbackStore{
		db:     db,
		path:   path,
		cipher: cipher,
		opts:   opts,
		logger: logger,
		now:    now,
	}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, apperrors.StorageError(err, "init feedback schema")
	}
	return s, nil
}

func (s *FeedbackStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS feedback_records (
		id TEXT PRIMARY KEY,
		url TEXT NOT NULL,
		feedback_type TEXT NOT NULL,
		submitter_id TEXT NOT NULL,
		stated_confidence REAL NOT NULL,
		submitted_at DATETIME NOT NULL,
		ciphertext BLOB,
		text_length INTEGER NOT NULL DEFAULT 0,
		is_spam INTEGER NOT NULL,
		spam_confidence REAL NOT NULL,
		risk_level TEXT NOT NULL,
		reasons TEXT,
		created_at DATETIME NOT NULL,
		last_accessed_at DATETIME NOT NULL,
		retention_expires_at DATETIME NOT NULL,
		anonymized INTEGER NOT NULL DEFAULT 0,
		cluster_id TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_feedback_url ON feedback_records(url, created_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_submitter ON feedback_records(submitter_id);
	CREATE INDEX IF NOT EXISTS idx_feedback_expiry ON feedback_records(retention_expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SetClusterPruner wires the cluster store into cleanup. Optional.
func (s *FeedbackStore) SetClusterPruner(p ClusterPruner) {
	s.pruner = p
}

// feedbackRow is the sqlx scan target for feedback_records.
type feedbackRow struct {
	ID                 string    `db:"id"`
	URL                string    `db:"url"`
	FeedbackType       string    `db:"feedback_type"`
	SubmitterID        string    `db:"submitter_id"`
	StatedConfidence   float64   `db:"stated_confidence"`
	SubmittedAt        time.Time `db:"submitted_at"`
	Ciphertext         []byte    `db:"ciphertext"`
	TextLength         int       `db:"text_length"`
	IsSpam             bool      `db:"is_spam"`
	SpamConfidence     float64   `db:"spam_confidence"`
	RiskLevel          string    `db:"risk_level"`
	Reasons            []byte    `db:"reasons"`
	CreatedAt          time.Time `db:"created_at"`
	LastAccessedAt     time.Time `db:"last_accessed_at"`
	RetentionExpiresAt time.Time `db:"retention_expires_at"`
	Anonymized         bool      `db:"anonymized"`
	ClusterID          *string   `db:"cluster_id"`
}

func (r *feedbackRow) toRecord() *models.StoredFeedbackRecord {
	record := &models.StoredFeedbackRecord{
		ID: r.ID,
		Submission: models.FeedbackSubmission{
			Type:             models.FeedbackType(r.FeedbackType),
			URL:              r.URL,
			SubmitterID:      r.SubmitterID,
			StatedConfidence: r.StatedConfidence,
			SubmittedAt:      r.SubmittedAt,
		},
		Ciphertext: r.Ciphertext,
		TextLength: r.TextLength,
		Verdict: models.SpamVerdict{
			IsSpam:     r.IsSpam,
			Confidence: r.SpamConfidence,
			RiskLevel:  models.RiskLevel(r.RiskLevel),
		},
		CreatedAt:          r.CreatedAt,
		LastAccessedAt:     r.LastAccessedAt,
		RetentionExpiresAt: r.RetentionExpiresAt,
		Anonymized:         r.Anonymized,
	}
	if r.ClusterID != nil {
		record.ClusterID = *r.ClusterID
	}
	if len(r.Reasons) > 0 {
		json.Unmarshal(r.Reasons, &record.Verdict.Reasons)
	}
	return record
}

// Put persists a submission with its verdict and returns the record id.
// Before each write the store estimates its size and forces cleanup at 90%
// of the quota; an over-quota store after cleanup still accepts the write
// (disk pressure never blocks user feedback) but the event is logged.
func (s *FeedbackStore) Put(ctx context.Context, sub *models.FeedbackSubmission, verdict *models.SpamVerdict) (string, error) {
	if err := s.enforceQuota(ctx); err != nil {
		// Quota problems are recovered locally, never surfaced.
		s.logger.WithError(err).Warn("quota enforcement incomplete, continuing with write")
	}

	now := s.now()
	retention := s.opts.StandardRetention
	if verdict.IsSpam {
		retention = s.opts.SpamRetention
	}

	var ciphertext []byte
	if sub.FreeText != "" {
		if s.cipher == nil {
			// Silent precision loss beats a privacy violation.
			s.logger.WithField("submitter", sub.SubmitterID).
				Warn("no encryption key available, dropping feedback text")
		} else {
			sealed, err := s.cipher.Encrypt([]byte(sub.FreeText))
			if err != nil {
				s.logger.WithError(err).Warn("encryption failed, dropping feedback text")
			} else {
				ciphertext = sealed
			}
		}
	}

	reasons, err := json.Marshal(verdict.Reasons)
	if err != nil {
		return "", apperrors.StorageError(err, "encode verdict reasons")
	}

	id := uuid.NewString()
	query := `
		INSERT INTO feedback_records
		(id, url, feedback_type, submitter_id, stated_confidence, submitted_at,
		 ciphertext, text_length, is_spam, spam_confidence, risk_level, reasons,
		 created_at, last_accessed_at, retention_expires_at, anonymized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
	`
	// The plaintext length is kept even when the text itself is dropped or
	// encrypted; clustering buckets on it.
	_, err = s.db.ExecContext(ctx, query,
		id, sub.URL, string(sub.Type), sub.SubmitterID, sub.StatedConfidence, sub.SubmittedAt,
		ciphertext, len(sub.FreeText), verdict.IsSpam, verdict.Confidence, string(verdict.RiskLevel), reasons,
		now, now, now.Add(retention))
	if err != nil {
		return "", apperrors.StorageError(err, "insert feedback record")
	}
	return id, nil
}

// Get returns one record by id, or ErrNotFound. With includeText the
// ciphertext is decrypted back into the submission; decryption failures
// leave the text empty rather than failing the read. Reads refresh the
// record's last-accessed time.
func (s *FeedbackStore) Get(ctx context.Context, id string, includeText bool) (*models.StoredFeedbackRecord, error) {
	var row feedbackRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM feedback_records WHERE id = ?`, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, apperrors.StorageError(err, "load feedback record")
	}

	record := row.toRecord()
	if includeText && len(record.Ciphertext) > 0 && s.cipher != nil {
		plaintext, err := s.cipher.Decrypt(record.Ciphertext)
		if err != nil {
			s.logger.WithError(err).WithField("record", id).Warn("feedback text decryption failed")
		} else {
			record.Submission.FreeText = string(plaintext)
		}
	}

	now := s.now()
	if _, err := s.db.ExecContext(ctx, `UPDATE feedback_records SET last_accessed_at = ? WHERE id = ?`, now, id); err != nil {
		s.logger.WithError(err).WithField("record", id).Debug("last-accessed refresh failed")
	}
	record.LastAccessedAt = now
	return record, nil
}

// ListByURL returns records for a URL, newest first.
func (s *FeedbackStore) ListByURL(ctx context.Context, url string, limit, offset int) ([]*models.StoredFeedbackRecord, error) {
	var rows []feedbackRow
	query := `SELECT * FROM feedback_records WHERE url = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`
	if err := s.db.SelectContext(ctx, &rows, query, url, limit, offset); err != nil {
		return nil, apperrors.StorageError(err, "list feedback records")
	}
	records := make([]*models.StoredFeedbackRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toRecord()
	}
	return records, nil
}

// ListValidByURL returns up to limit non-spam records for a URL, newest
// first. This is the consensus engine's read path.
func (s *FeedbackStore) ListValidByURL(ctx context.Context, url string, limit int) ([]*models.StoredFeedbackRecord, error) {
	var rows []feedbackRow
	query := `SELECT * FROM feedback_records WHERE url = ? AND is_spam = 0 ORDER BY created_at DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, url, limit); err != nil {
		return nil, apperrors.StorageError(err, "list valid feedback records")
	}
	records := make([]*models.StoredFeedbackRecord, len(rows))
	for i := range rows {
		records[i] = rows[i].toRecord()
	}
	return records, nil
}

// SetClusterID tags a stored record with its cluster.
func (s *FeedbackStore) SetClusterID(ctx context.Context, recordID, clusterID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE feedback_records SET cluster_id = ? WHERE id = ?`, clusterID, recordID)
	if err != nil {
		return apperrors.StorageError(err, "tag record cluster")
	}
	return nil
}

// Anonymize strips the submitter identity and encrypted text from a
// record. Flips once; already-anonymized records are left untouched.
func (s *FeedbackStore) Anonymize(ctx context.Context, recordID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE feedback_records
		SET submitter_id = '', ciphertext = NULL, anonymized = 1
		WHERE id = ? AND anonymized = 0`, recordID)
	if err != nil {
		return apperrors.StorageError(err, "anonymize record")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		s.logger.WithField("record", recordID).Debug("anonymize: record absent or already anonymized")
	}
	return nil
}

// Cleanup deletes every record whose retention has expired, then prunes
// idle clusters. Returns the number of records removed.
func (s *FeedbackStore) Cleanup(ctx context.Context) (int, error) {
	now := s.now()
	result, err := s.db.ExecContext(ctx, `DELETE FROM feedback_records WHERE retention_expires_at < ?`, now)
	if err != nil {
		return 0, apperrors.StorageError(err, "delete expired records")
	}
	deleted, _ := result.RowsAffected()

	clustersPruned := 0
	if s.pruner != nil {
		clustersPruned, err = s.pruner.PruneBefore(now.Add(-s.opts.ClusterRetention))
		if err != nil {
			s.logger.WithError(err).Warn("cluster pruning failed during cleanup")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"event":           "cleanup_performed",
		"records_deleted": deleted,
		"clusters_pruned": clustersPruned,
	}).Info("retention cleanup completed")

	return int(deleted), nil
}

// EstimateSize returns the store's on-disk footprint, including the WAL.
func (s *FeedbackStore) EstimateSize() (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// enforceQuota runs cleanup when usage crosses 90% of the configured
// ceiling. Returns a QuotaError when the store remains over quota after
// cleanup; callers log it and proceed.
func (s *FeedbackStore) enforceQuota(ctx context.Context) error {
	if s.opts.QuotaBytes <= 0 {
		return nil
	}
	size, err := s.EstimateSize()
	if err != nil {
		return err
	}
	if float64(size) < float64(s.opts.QuotaBytes)*quotaTriggerRatio {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"size_bytes":  size,
		"quota_bytes": s.opts.QuotaBytes,
	}).Info("store usage crossed quota trigger, running cleanup")

	if _, err := s.Cleanup(ctx); err != nil {
		return err
	}

	size, err = s.EstimateSize()
	if err != nil {
		return err
	}
	if size > s.opts.QuotaBytes {
		return apperrors.QuotaError(fmt.Sprintf("store still over quota after cleanup: %d > %d bytes", size, s.opts.QuotaBytes))
	}
	return nil
}

// Close closes the database connection.
func (s *FeedbackStore) Close() error {
	return s.db.Close()
}
