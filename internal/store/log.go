package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Bundle-attempt statuses.
const (
	StatusStarted = "started"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// BundleLogEntry is one recorded bundling attempt.
type BundleLogEntry struct {
	ID           string `json:"id"`
	DocumentPath string `json:"djvu_path"`
	Status       string `json:"status"`
	ProblemCount int    `json:"problem_count"`
	Message      string `json:"message"`
	StartedAt    int64  `json:"started_at"`
	FinishedAt   int64  `json:"finished_at"`
}

// StartBundleLog records the start of a bundling attempt and returns its ID.
func (s *Store) StartBundleLog(ctx context.Context, documentPath string) (string, error) {
	id := uuid.NewString()
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO bundle_log (id, djvu_path, status, started_at)
		VALUES (?, ?, ?, ?)`,
		id, documentPath, StatusStarted, time.Now().UnixMilli())
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishBundleLog closes a bundling attempt record.
func (s *Store) FinishBundleLog(ctx context.Context, id, status string, problemCount int, message string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE bundle_log SET status=?, problem_count=?, message=?, finished_at=?
		WHERE id=?`,
		status, problemCount, message, time.Now().UnixMilli(), id)
	return err
}

// BundleLogFor returns the attempts recorded for one document, newest first.
func (s *Store) BundleLogFor(ctx context.Context, documentPath string) ([]BundleLogEntry, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, djvu_path, status, problem_count, message, started_at, finished_at
		FROM bundle_log WHERE djvu_path = ? ORDER BY started_at DESC`, documentPath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []BundleLogEntry
	for rows.Next() {
		var e BundleLogEntry
		if err := rows.Scan(&e.ID, &e.DocumentPath, &e.Status, &e.ProblemCount,
			&e.Message, &e.StartedAt, &e.FinishedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
