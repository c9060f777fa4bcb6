// Package store persists analysis results in SQLite, keyed by content hash.
// Writers are serialized within the process by a mutex and across processes by a lock file next to the database.
// Readers go straight to the database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/farcloser/assay/internal/types"
)

const (
	busyTimeoutMs  = 5000
	lockRetryDelay = 25 * time.Millisecond
	lockTimeout    = 30 * time.Second
	dirPermissions = 0o755
)

var (
	// ErrInvalidResult is returned when a result without a hash is stored.
	ErrInvalidResult = errors.New("result has no file hash")
	// ErrLocked is returned when another process holds the writer lock for too long.
	ErrLocked = errors.New("store is locked by another writer")
)

// Entry is the summary row returned by List.
type Entry struct {
	Hash              string                  `json:"file_hash"`
	FileName          string                  `json:"file_name"`
	FilePath          string                  `json:"file_path"`
	SNRDb             float64                 `json:"snr_value"`
	ClippingCount     int                     `json:"clipping_count"`
	SuspicionScore    float64                 `json:"suspicion_score"`
	Segmented         bool                    `json:"was_segmented"`
	Classification    types.Label             `json:"ml_classification"`
	Confidence        float64                 `json:"ml_confidence"`
	LLMInvolved       bool                    `json:"llm_involved"`
	ArbitrationStatus types.ArbitrationStatus `json:"arbitration_status"`
	Verdict           types.Verdict           `json:"verdict"`
	Timestamp         time.Time               `json:"timestamp"`
}

// Store is safe for concurrent use.
type Store struct {
	db     *sql.DB
	path   string
	lock   *flock.Flock
	mu     sync.Mutex
	logger *slog.Logger
}

// Open creates or opens the database at path and verifies its schema.
func Open(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return nil, fmt.Errorf("ensure store directory: %w", err)
	}

	dsn := "file:" + path + "?" + url.Values{
		"_pragma": {
			fmt.Sprintf("busy_timeout(%d)", busyTimeoutMs),
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if _, err = db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("apply pragma journal_mode: %w", err)
	}

	store := &Store{
		db:     db,
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger.With("component", "store"),
	}

	if err = store.initSchema(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	store.logger.Debug("store opened", "path", path)

	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Get returns the cached result for hash, or nil when there is none.
func (s *Store) Get(ctx context.Context, hash string) (*types.AnalysisResult, error) {
	var encoded string

	err := s.db.QueryRowContext(ctx, "SELECT result_json FROM results WHERE file_hash = ?", hash).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // a miss is not an error
	}

	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	return decode(encoded)
}

// Put stores result, replacing any row with the same hash. The replaced row is copied to the history table in the
// same transaction. Storing a result identical to the current row is a no-op.
func (s *Store) Put(ctx context.Context, result *types.AnalysisResult) error {
	if result == nil || result.FileHash == "" {
		return ErrInvalidResult
	}

	row, err := newRow(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLocked, err)
	}

	if !locked {
		return ErrLocked
	}

	defer func() {
		if unlockErr := s.lock.Unlock(); unlockErr != nil {
			s.logger.Warn("failed to release writer lock", "error", unlockErr)
		}
	}()

	return s.upsert(ctx, row)
}

func (s *Store) upsert(ctx context.Context, r row) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin put tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string

	err = tx.QueryRowContext(ctx, "SELECT result_json FROM results WHERE file_hash = ?", r.hash).Scan(&current)

	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read current row: %w", err)
	case current == r.resultJSON:
		return nil
	default:
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO superseded_results (`+columns+`, superseded_at)
			 SELECT `+columns+`, ? FROM results WHERE file_hash = ?`,
			time.Now().UTC().Format(time.RFC3339Nano), r.hash,
		); err != nil {
			return fmt.Errorf("archive superseded row: %w", err)
		}

		s.logger.Info("superseding cached result", "hash", r.hash)
	}

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO results (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(file_hash) DO UPDATE SET
		     file_name = excluded.file_name,
		     file_path = excluded.file_path,
		     snr_value = excluded.snr_value,
		     clipping_count = excluded.clipping_count,
		     suspicion_score = excluded.suspicion_score,
		     was_segmented = excluded.was_segmented,
		     ml_classification = excluded.ml_classification,
		     ml_confidence = excluded.ml_confidence,
		     llm_verdict = excluded.llm_verdict,
		     llm_justification = excluded.llm_justification,
		     llm_involved = excluded.llm_involved,
		     arbitration_status = excluded.arbitration_status,
		     verdict = excluded.verdict,
		     metadata_json = excluded.metadata_json,
		     result_json = excluded.result_json,
		     timestamp = excluded.timestamp`,
		r.args()...,
	); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit put: %w", err)
	}

	return nil
}

// List returns the most recent entries, newest first. A limit of zero or less returns everything.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT file_hash, file_name, file_path, snr_value, clipping_count, suspicion_score, was_segmented,
	                 ml_classification, ml_confidence, llm_involved, arbitration_status, verdict, timestamp
	          FROM results ORDER BY timestamp DESC, file_hash`

	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"

		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			entry     Entry
			timestamp string
		)

		if err = rows.Scan(
			&entry.Hash, &entry.FileName, &entry.FilePath, &entry.SNRDb, &entry.ClippingCount,
			&entry.SuspicionScore, &entry.Segmented, &entry.Classification, &entry.Confidence,
			&entry.LLMInvolved, &entry.ArbitrationStatus, &entry.Verdict, &timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}

		entry.Timestamp, _ = time.Parse(time.RFC3339Nano, timestamp)
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	return entries, nil
}

// Tally counts current results sharing a verdict and arbitration status.
type Tally struct {
	Verdict           types.Verdict           `json:"verdict"`
	ArbitrationStatus types.ArbitrationStatus `json:"arbitration_status"`
	Count             int                     `json:"count"`
	MeanSuspicion     float64                 `json:"mean_suspicion"`
	Superseded        int                     `json:"superseded"`
}

// Digest groups the current results by verdict and arbitration status.
func (s *Store) Digest(ctx context.Context) ([]Tally, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.verdict, r.arbitration_status, COUNT(*), AVG(r.suspicion_score),
		       COALESCE(SUM((SELECT COUNT(*) FROM superseded_results h WHERE h.file_hash = r.file_hash)), 0)
		FROM results r
		GROUP BY r.verdict, r.arbitration_status
		ORDER BY r.verdict, r.arbitration_status`)
	if err != nil {
		return nil, fmt.Errorf("digest results: %w", err)
	}
	defer rows.Close()

	var tallies []Tally

	for rows.Next() {
		var tally Tally
		if err = rows.Scan(
			&tally.Verdict, &tally.ArbitrationStatus, &tally.Count, &tally.MeanSuspicion, &tally.Superseded,
		); err != nil {
			return nil, fmt.Errorf("scan digest: %w", err)
		}

		tallies = append(tallies, tally)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("digest results: %w", err)
	}

	return tallies, nil
}

// History returns the superseded results for hash, most recently replaced first.
func (s *Store) History(ctx context.Context, hash string) ([]*types.AnalysisResult, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT result_json FROM superseded_results WHERE file_hash = ? ORDER BY id DESC", hash)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	var history []*types.AnalysisResult

	for rows.Next() {
		var encoded string
		if err = rows.Scan(&encoded); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}

		result, decodeErr := decode(encoded)
		if decodeErr != nil {
			return nil, decodeErr
		}

		history = append(history, result)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	return history, nil
}

func decode(encoded string) (*types.AnalysisResult, error) {
	var result types.AnalysisResult
	if err := json.Unmarshal([]byte(encoded), &result); err != nil {
		return nil, fmt.Errorf("decode stored result: %w", err)
	}

	return &result, nil
}
