// Package store implements the persistence port on SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rhoci/rhoci/internal/models"
	"github.com/rhoci/rhoci/internal/utils"
)

// MemoryPath opens a private in-memory database, used by tests and dry runs.
const MemoryPath = ":memory:"

const maxErrorText = 1024

// Store is the SQLite-backed persistence port. It is safe for concurrent use.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	dsn := "file:" + path + "?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL&_txlock=immediate"
	if path == MemoryPath {
		dsn = "file::memory:?_foreign_keys=on&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == MemoryPath {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(SchemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// insertIfAbsent runs an INSERT ... ON CONFLICT DO NOTHING and reports whether a row was added.
func insertIfAbsent(ctx context.Context, ex execer, query string, args ...any) (bool, error) {
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertSignatureIfAbsent stores sig unless a signature with the same name exists.
func (s *Store) InsertSignatureIfAbsent(ctx context.Context, sig models.FailureSignature) (bool, error) {
	inserted, err := insertIfAbsent(ctx, s.db,
		`INSERT INTO signatures (name, category, pattern, upper_bound_pattern, lower_bound_pattern, action, cause)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		sig.Name, sig.Category, sig.Pattern, sig.UpperBoundPattern, sig.LowerBoundPattern, sig.Action, sig.Cause,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert signature: %w", err)
	}
	return inserted, nil
}

// FindSignature looks a signature up by name.
func (s *Store) FindSignature(ctx context.Context, name string) (models.FailureSignature, bool, error) {
	var sig models.FailureSignature
	err := s.db.QueryRowContext(ctx,
		`SELECT name, category, pattern, upper_bound_pattern, lower_bound_pattern, action, cause
		 FROM signatures WHERE name = ?`, name,
	).Scan(&sig.Name, &sig.Category, &sig.Pattern, &sig.UpperBoundPattern, &sig.LowerBoundPattern, &sig.Action, &sig.Cause)
	if err == sql.ErrNoRows {
		return models.FailureSignature{}, false, nil
	}
	if err != nil {
		return models.FailureSignature{}, false, fmt.Errorf("failed to get signature: %w", err)
	}
	return sig, true, nil
}

// ListSignatures returns all stored signatures ordered by name.
func (s *Store) ListSignatures(ctx context.Context) ([]models.FailureSignature, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, category, pattern, upper_bound_pattern, lower_bound_pattern, action, cause
		 FROM signatures ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list signatures: %w", err)
	}
	defer rows.Close()

	var out []models.FailureSignature
	for rows.Next() {
		var sig models.FailureSignature
		if err := rows.Scan(&sig.Name, &sig.Category, &sig.Pattern, &sig.UpperBoundPattern, &sig.LowerBoundPattern, &sig.Action, &sig.Cause); err != nil {
			return nil, fmt.Errorf("failed to scan signature: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// InsertSquadIfAbsent stores squad unless a squad with the same name exists.
func (s *Store) InsertSquadIfAbsent(ctx context.Context, squad models.Squad) (bool, error) {
	components, err := json.Marshal(squad.Components)
	if err != nil {
		return false, fmt.Errorf("encode components: %w", err)
	}
	inserted, err := insertIfAbsent(ctx, s.db,
		`INSERT INTO squads (name, dfg, components) VALUES (?, ?, ?) ON CONFLICT DO NOTHING`,
		squad.Name, squad.DFG, string(components),
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert squad: %w", err)
	}
	return inserted, nil
}

// ListSquads returns all squads ordered by name.
func (s *Store) ListSquads(ctx context.Context) ([]models.Squad, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, dfg, components FROM squads ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list squads: %w", err)
	}
	defer rows.Close()

	var out []models.Squad
	for rows.Next() {
		var (
			squad      models.Squad
			components string
		)
		if err := rows.Scan(&squad.Name, &squad.DFG, &components); err != nil {
			return nil, fmt.Errorf("failed to scan squad: %w", err)
		}
		if err := json.Unmarshal([]byte(components), &squad.Components); err != nil {
			return nil, fmt.Errorf("decode components of %s: %w", squad.Name, err)
		}
		out = append(out, squad)
	}
	return out, rows.Err()
}

// InsertJobIfAbsent records a job the first time it is seen.
func (s *Store) InsertJobIfAbsent(ctx context.Context, job models.Job) (bool, error) {
	inserted, err := insertIfAbsent(ctx, s.db,
		`INSERT INTO jobs (name, url) VALUES (?, ?) ON CONFLICT DO NOTHING`, job.Name, job.URL)
	if err != nil {
		return false, fmt.Errorf("failed to insert job: %w", err)
	}
	return inserted, nil
}

// EnqueueBuild records a discovered build as pending unless any row for it exists already,
// whatever its state.
func (s *Store) EnqueueBuild(ctx context.Context, key models.BuildKey, url string, now time.Time) (bool, error) {
	inserted, err := insertIfAbsent(ctx, s.db,
		`INSERT INTO builds (job, number, url, state, discovered_at, next_attempt_at)
		 VALUES (?, ?, ?, 'pending', ?, ?) ON CONFLICT DO NOTHING`,
		key.Job, key.Number, url, utils.ToEpochMillis(now), utils.ToEpochMillis(now),
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue build %s: %w", key, err)
	}
	return inserted, nil
}

// BuildState returns the ingestion state of a build, and false when it was never discovered.
func (s *Store) BuildState(ctx context.Context, key models.BuildKey) (models.IngestState, bool, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM builds WHERE job = ? AND number = ?`, key.Job, key.Number,
	).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get build state: %w", err)
	}
	return models.IngestState(state), true, nil
}

// DueBuilds returns up to limit pending builds whose next attempt is at or before now,
// oldest first.
func (s *Store) DueBuilds(ctx context.Context, now time.Time, limit int) ([]models.PendingBuild, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT job, number, url, attempts, not_found, next_attempt_at, last_error, discovered_at
		 FROM builds WHERE state = 'pending' AND next_attempt_at <= ?
		 ORDER BY next_attempt_at ASC, discovered_at ASC LIMIT ?`,
		utils.ToEpochMillis(now), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list due builds: %w", err)
	}
	defer rows.Close()

	var out []models.PendingBuild
	for rows.Next() {
		var (
			p                  models.PendingBuild
			next, discoveredAt int64
		)
		if err := rows.Scan(&p.Key.Job, &p.Key.Number, &p.URL, &p.Attempts, &p.NotFound, &next, &p.LastError, &discoveredAt); err != nil {
			return nil, fmt.Errorf("failed to scan pending build: %w", err)
		}
		p.NextAttemptAt = utils.FromEpochMillis(next)
		p.DiscoveredAt = utils.FromEpochMillis(discoveredAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeferBuild keeps a pending build pending and schedules its next attempt.
func (s *Store) DeferBuild(ctx context.Context, key models.BuildKey, next time.Time, attempts, notFound int, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET next_attempt_at = ?, attempts = ?, not_found = ?, last_error = ?
		 WHERE job = ? AND number = ? AND state = 'pending'`,
		utils.ToEpochMillis(next), attempts, notFound, utils.Truncate(reason, maxErrorText), key.Job, key.Number,
	)
	if err != nil {
		return fmt.Errorf("failed to defer build %s: %w", key, err)
	}
	return requireRow(res, key)
}

// AbandonBuild marks a pending build as permanently unavailable.
func (s *Store) AbandonBuild(ctx context.Context, key models.BuildKey, reason string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE builds SET state = 'abandoned', last_error = ?, completed_at = ?
		 WHERE job = ? AND number = ? AND state = 'pending'`,
		utils.Truncate(reason, maxErrorText), utils.ToEpochMillis(now), key.Job, key.Number,
	)
	if err != nil {
		return fmt.Errorf("failed to abandon build %s: %w", key, err)
	}
	return requireRow(res, key)
}

// CompleteBuild persists a build with its tests and failure matches in one transaction.
// The build row is written first, then tests, then matches; on any error nothing is
// committed and the build stays pending.
func (s *Store) CompleteBuild(ctx context.Context, build models.Build, tests []models.Test, matches []models.FailureMatch, now time.Time) (err error) {
	key := build.Key()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return utils.NewAppError("store.complete", "begin transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE builds SET state = 'complete', status = ?, started_at = ?, duration_ms = ?,
		 console_url = ?, report_url = ?, last_error = '', completed_at = ?
		 WHERE job = ? AND number = ? AND state = 'pending'`,
		string(build.Status), utils.ToEpochMillis(build.Timestamp), build.Duration.Milliseconds(),
		build.ConsoleURL, build.ReportURL, utils.ToEpochMillis(now), key.Job, key.Number,
	)
	if err != nil {
		return utils.NewAppError("store.complete", "update build "+key.String(), err)
	}
	if err = requireRow(res, key); err != nil {
		return err
	}

	for _, t := range tests {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO tests (job, number, class_name, name, status, duration_ms, error_details, stack_trace)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			key.Job, key.Number, t.ClassName, t.Name, string(t.Status), t.Duration.Milliseconds(), t.ErrorDetails, t.StackTrace,
		); err != nil {
			return utils.NewAppError("store.complete", fmt.Sprintf("insert test %s.%s", t.ClassName, t.Name), err)
		}
	}

	for _, m := range matches {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO failure_matches (job, number, class_name, test_name, signature, category, excerpt,
			 match_start, match_end, evidence_start, evidence_end)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT DO NOTHING`,
			key.Job, key.Number, m.ClassName, m.TestName, m.Signature, m.Category, m.Excerpt,
			m.Match.Start, m.Match.End, m.Evidence.Start, m.Evidence.End,
		); err != nil {
			return utils.NewAppError("store.complete", "insert match "+m.Signature, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return utils.NewAppError("store.complete", "commit", err)
	}
	return nil
}

func requireRow(res sql.Result, key models.BuildKey) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", key, models.ErrNotPending)
	}
	return nil
}
