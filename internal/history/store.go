// store.go - DuckDB-backed audit log of submission attempts
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/informes/backend/internal/models"
	"github.com/marcboeker/go-duckdb"
)

// DefaultLimit is the page size of Recent when none is given.
const DefaultLimit = 50

// Store records submission attempts in a DuckDB database.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (or creates) the history database at path. An empty path keeps
// the history in memory.
func Open(path string) (*Store, error) {
	logger := slog.With("component", "history")

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			"PRAGMA memory_limit='256MB'",
			"PRAGMA threads=2",
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS submissions (
			id          VARCHAR PRIMARY KEY,
			session_id  VARCHAR NOT NULL,
			variant     VARCHAR NOT NULL,
			files       VARCHAR NOT NULL,
			bytes       BIGINT NOT NULL,
			outcome     VARCHAR NOT NULL,
			http_status INTEGER,
			error       VARCHAR,
			started_at  BIGINT NOT NULL,
			duration_ms BIGINT NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	logger.Info("history opened", "path", displayPath(path))
	return &Store{db: db, path: path, logger: logger}, nil
}

func displayPath(path string) string {
	if path == "" {
		return ":memory:"
	}
	return path
}

// Record inserts one submission attempt.
func (s *Store) Record(ctx context.Context, rec models.SubmissionRecord) error {
	files, err := json.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("encoding file list: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions
			(id, session_id, variant, files, bytes, outcome, http_status, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, string(rec.Variant), string(files), rec.Bytes,
		string(rec.Outcome), rec.HTTPStatus, rec.Error,
		rec.StartedAt.UnixMilli(), rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("recording submission: %w", err)
	}
	return nil
}

// Recent returns the newest records first. sessionID filters when not empty.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]models.SubmissionRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := `SELECT id, session_id, variant, files, bytes, outcome, http_status, error, started_at, duration_ms
		FROM submissions`
	args := []any{}
	if sessionID != "" {
		query += " WHERE session_id = ?"
		args = append(args, sessionID)
	}
	query += " ORDER BY started_at DESC, id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	out := []models.SubmissionRecord{}
	for rows.Next() {
		var (
			rec        models.SubmissionRecord
			variant    string
			files      string
			outcome    string
			httpStatus sql.NullInt64
			errText    sql.NullString
			startedAt  int64
		)
		if err := rows.Scan(&rec.ID, &rec.SessionID, &variant, &files, &rec.Bytes,
			&outcome, &httpStatus, &errText, &startedAt, &rec.DurationMs); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		rec.Variant = models.Variant(variant)
		rec.Outcome = models.SubmissionOutcome(outcome)
		rec.HTTPStatus = int(httpStatus.Int64)
		rec.Error = errText.String
		rec.StartedAt = time.UnixMilli(startedAt)
		if err := json.Unmarshal([]byte(files), &rec.Files); err != nil {
			s.logger.Warn("corrupt file list in history", "id", rec.ID, "err", err)
			rec.Files = []string{}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Stats counts records by outcome.
func (s *Store) Stats(ctx context.Context) (models.SubmissionStats, error) {
	var stats models.SubmissionStats
	rows, err := s.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM submissions GROUP BY outcome`)
	if err != nil {
		return stats, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return stats, err
		}
		switch models.SubmissionOutcome(outcome) {
		case models.OutcomeSucceeded:
			stats.Succeeded = int(n)
		case models.OutcomeFailed:
			stats.Failed = int(n)
		case models.OutcomeRejected:
			stats.Rejected = int(n)
		}
		stats.Total += int(n)
	}
	return stats, rows.Err()
}

// Prune deletes records older than maxAge.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE started_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
