package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rhoci/rhoci/internal/models"
	"github.com/rhoci/rhoci/internal/utils"
)

const buildColumns = `b.job, b.number, b.state, b.status, b.started_at, b.duration_ms,
	b.console_url, b.report_url, b.attempts, b.last_error,
	(SELECT COUNT(*) FROM tests t WHERE t.job = b.job AND t.number = b.number)`

type scanner interface {
	Scan(dest ...any) error
}

func scanBuild(row scanner) (models.BuildRecord, error) {
	var (
		rec            models.BuildRecord
		state, status  string
		started, durMs int64
	)
	if err := row.Scan(&rec.Job, &rec.Number, &state, &status, &started, &durMs,
		&rec.ConsoleURL, &rec.ReportURL, &rec.Attempts, &rec.LastError, &rec.TestCount); err != nil {
		return models.BuildRecord{}, err
	}
	rec.State = models.IngestState(state)
	rec.Status = models.BuildStatus(status)
	if started > 0 {
		rec.Timestamp = utils.FromEpochMillis(started)
	}
	rec.Duration = time.Duration(durMs) * time.Millisecond
	return rec, nil
}

// GetBuild returns one stored build, and false when it was never discovered.
func (s *Store) GetBuild(ctx context.Context, key models.BuildKey) (models.BuildRecord, bool, error) {
	rec, err := scanBuild(s.db.QueryRowContext(ctx,
		`SELECT `+buildColumns+` FROM builds b WHERE b.job = ? AND b.number = ?`, key.Job, key.Number))
	if err == sql.ErrNoRows {
		return models.BuildRecord{}, false, nil
	}
	if err != nil {
		return models.BuildRecord{}, false, fmt.Errorf("failed to get build: %w", err)
	}
	return rec, true, nil
}

// ListBuilds returns the builds of job, newest first. An empty job lists every job.
func (s *Store) ListBuilds(ctx context.Context, job string, limit int) ([]models.BuildRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + buildColumns + ` FROM builds b`
	args := []any{}
	if job != "" {
		query += ` WHERE b.job = ?`
		args = append(args, job)
	}
	query += ` ORDER BY b.discovered_at DESC, b.job ASC, b.number DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	defer rows.Close()

	var out []models.BuildRecord
	for rows.Next() {
		rec, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListTests returns the tests of one build ordered by class and name.
func (s *Store) ListTests(ctx context.Context, key models.BuildKey) ([]models.Test, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT class_name, name, status, duration_ms, error_details, stack_trace
		 FROM tests WHERE job = ? AND number = ? ORDER BY class_name ASC, name ASC`,
		key.Job, key.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to list tests: %w", err)
	}
	defer rows.Close()

	var out []models.Test
	for rows.Next() {
		var (
			t      models.Test
			status string
			durMs  int64
		)
		if err := rows.Scan(&t.ClassName, &t.Name, &status, &durMs, &t.ErrorDetails, &t.StackTrace); err != nil {
			return nil, fmt.Errorf("failed to scan test: %w", err)
		}
		t.Status = models.TestStatus(status)
		t.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListMatches returns the failure matches of one build in classifier order.
func (s *Store) ListMatches(ctx context.Context, key models.BuildKey) ([]models.FailureMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT class_name, test_name, signature, category, excerpt, match_start, match_end, evidence_start, evidence_end
		 FROM failure_matches WHERE job = ? AND number = ?
		 ORDER BY class_name ASC, test_name ASC, signature ASC, match_start ASC`,
		key.Job, key.Number)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var out []models.FailureMatch
	for rows.Next() {
		m := models.FailureMatch{Build: key}
		if err := rows.Scan(&m.ClassName, &m.TestName, &m.Signature, &m.Category, &m.Excerpt,
			&m.Match.Start, &m.Match.End, &m.Evidence.Start, &m.Evidence.End); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// TopFailingTests ranks tests by failure count across completed builds of job.
// An empty job aggregates every job.
func (s *Store) TopFailingTests(ctx context.Context, job string, limit int) ([]models.TestFailureStat, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT class_name, name,
		SUM(CASE WHEN status = 'failure' THEN 1 ELSE 0 END) AS failures,
		SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END) AS successes
		FROM tests`
	args := []any{}
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` GROUP BY class_name, name HAVING failures > 0
		ORDER BY failures DESC, class_name ASC, name ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to rank failing tests: %w", err)
	}
	defer rows.Close()

	var out []models.TestFailureStat
	for rows.Next() {
		var st models.TestFailureStat
		if err := rows.Scan(&st.ClassName, &st.Name, &st.Failures, &st.Successes); err != nil {
			return nil, fmt.Errorf("failed to scan failing test: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// UniqueTests lists the distinct test cases seen in completed builds of job, ordered by
// class and name. An empty job covers every job.
func (s *Store) UniqueTests(ctx context.Context, job string, limit int) ([]models.UniqueTest, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT class_name, name, COUNT(DISTINCT job || '#' || number) FROM tests`
	args := []any{}
	if job != "" {
		query += ` WHERE job = ?`
		args = append(args, job)
	}
	query += ` GROUP BY class_name, name ORDER BY class_name ASC, name ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list unique tests: %w", err)
	}
	defer rows.Close()

	var out []models.UniqueTest
	for rows.Next() {
		var ut models.UniqueTest
		if err := rows.Scan(&ut.ClassName, &ut.Name, &ut.Builds); err != nil {
			return nil, fmt.Errorf("failed to scan unique test: %w", err)
		}
		out = append(out, ut)
	}
	return out, rows.Err()
}

// CountByState returns the number of builds per ingestion state.
func (s *Store) CountByState(ctx context.Context) (map[models.IngestState]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM builds GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("failed to count builds: %w", err)
	}
	defer rows.Close()

	counts := map[models.IngestState]int{
		models.StatePending:   0,
		models.StateComplete:  0,
		models.StateAbandoned: 0,
	}
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[models.IngestState(state)] = n
	}
	return counts, rows.Err()
}
