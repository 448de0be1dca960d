package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// DefaultHistoryLimit is used by RecentRuns when n is not positive.
const DefaultHistoryLimit = 20

// RecordRun upserts a run snapshot keyed by run ID.
// Recording the same run twice keeps the latest snapshot.
func (db *DB) RecordRun(s models.RunSnapshot) error {
	if s.RunID == "" {
		return fmt.Errorf("record run: empty run id")
	}

	_, err := db.Exec(`
		INSERT INTO runs (
			run_id, agent, task_id, task_text, status, output, error,
			started_at, ended_at, duration_ms, timeout_ms, cancelled, recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			output = excluded.output,
			error = excluded.error,
			ended_at = excluded.ended_at,
			duration_ms = excluded.duration_ms,
			cancelled = excluded.cancelled,
			recorded_at = excluded.recorded_at
	`,
		s.RunID,
		s.AgentName,
		s.TaskID,
		s.TaskText,
		string(s.Status),
		s.Output,
		s.Error,
		formatTime(s.StartedAt),
		nullableTime(s.EndedAt),
		s.DurationMs,
		s.TimeoutMs,
		boolToInt(s.Cancelled),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", s.RunID, err)
	}
	return nil
}

// GetRun returns the recorded snapshot for a run ID.
// Returns nil, nil when the run was never recorded.
func (db *DB) GetRun(runID string) (*models.RunSnapshot, error) {
	row := db.QueryRow(`
		SELECT run_id, agent, task_id, task_text, status, output, error,
			started_at, ended_at, duration_ms, timeout_ms, cancelled
		FROM runs WHERE run_id = ?
	`, runID)

	s, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}
	return s, nil
}

// RecentRuns returns the n most recently started runs, newest first.
func (db *DB) RecentRuns(n int) ([]models.RunSnapshot, error) {
	if n <= 0 {
		n = DefaultHistoryLimit
	}

	rows, err := db.Query(`
		SELECT run_id, agent, task_id, task_text, status, output, error,
			started_at, ended_at, duration_ms, timeout_ms, cancelled
		FROM runs
		ORDER BY started_at DESC, run_id
		LIMIT ?
	`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSnapshot
	for rows.Next() {
		s, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *s)
	}
	return runs, rows.Err()
}

// CountByStatus returns how many recorded runs ended in each status.
func (db *DB) CountByStatus() (map[models.RunStatus]int, error) {
	rows, err := db.Query(`SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*models.RunSnapshot, error) {
	var (
		s                    models.RunSnapshot
		taskID, output, errS sql.NullString
		status, startedAt    string
		endedAt              sql.NullString
		cancelled            int
	)
	err := sc.Scan(
		&s.RunID, &s.AgentName, &taskID, &s.TaskText, &status, &output, &errS,
		&startedAt, &endedAt, &s.DurationMs, &s.TimeoutMs, &cancelled,
	)
	if err != nil {
		return nil, err
	}

	started, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}

	s.TaskID = taskID.String
	s.Output = output.String
	s.Error = errS.String
	s.Status = models.RunStatus(status)
	s.StartedAt = started
	s.EndedAt = parseNullableTime(endedAt)
	s.Cancelled = cancelled != 0
	return &s, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
