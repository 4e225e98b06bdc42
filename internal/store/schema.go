package store

// SchemaSQL is the complete schema. Natural keys are PRIMARY KEY constraints so uniqueness is
// enforced by SQLite rather than by callers. Timestamps are stored as epoch milliseconds.
const SchemaSQL = `
CREATE TABLE IF NOT EXISTS signatures (
	name TEXT PRIMARY KEY,
	category TEXT NOT NULL DEFAULT '',
	pattern TEXT NOT NULL CHECK(pattern <> ''),
	upper_bound_pattern TEXT NOT NULL DEFAULT '',
	lower_bound_pattern TEXT NOT NULL DEFAULT '',
	action TEXT NOT NULL DEFAULT '',
	cause TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS squads (
	name TEXT PRIMARY KEY,
	dfg TEXT NOT NULL DEFAULT '',
	components TEXT NOT NULL DEFAULT '[]',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS jobs (
	name TEXT PRIMARY KEY,
	url TEXT NOT NULL DEFAULT '',
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS builds (
	job TEXT NOT NULL,
	number INTEGER NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'pending' CHECK(state IN ('pending', 'complete', 'abandoned')),
	status TEXT NOT NULL DEFAULT 'unknown' CHECK(status IN ('running', 'success', 'failure', 'unstable', 'aborted', 'unknown')),
	started_at INTEGER NOT NULL DEFAULT 0,
	duration_ms INTEGER NOT NULL DEFAULT 0,
	console_url TEXT NOT NULL DEFAULT '',
	report_url TEXT NOT NULL DEFAULT '',
	attempts INTEGER NOT NULL DEFAULT 0,
	not_found INTEGER NOT NULL DEFAULT 0,
	next_attempt_at INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	discovered_at INTEGER NOT NULL DEFAULT 0,
	completed_at INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job, number)
);

CREATE INDEX IF NOT EXISTS idx_builds_due ON builds(state, next_attempt_at);

CREATE TABLE IF NOT EXISTS tests (
	job TEXT NOT NULL,
	number INTEGER NOT NULL,
	class_name TEXT NOT NULL,
	name TEXT NOT NULL,
	status TEXT NOT NULL CHECK(status IN ('success', 'failure', 'skipped', 'unknown')),
	duration_ms INTEGER NOT NULL DEFAULT 0,
	error_details TEXT NOT NULL DEFAULT '',
	stack_trace TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (job, number, class_name, name),
	FOREIGN KEY (job, number) REFERENCES builds(job, number) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS failure_matches (
	job TEXT NOT NULL,
	number INTEGER NOT NULL,
	class_name TEXT NOT NULL DEFAULT '',
	test_name TEXT NOT NULL DEFAULT '',
	signature TEXT NOT NULL,
	category TEXT NOT NULL DEFAULT '',
	excerpt TEXT NOT NULL DEFAULT '',
	match_start INTEGER NOT NULL DEFAULT 0,
	match_end INTEGER NOT NULL DEFAULT 0,
	evidence_start INTEGER NOT NULL DEFAULT 0,
	evidence_end INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (job, number, class_name, test_name, signature),
	FOREIGN KEY (job, number) REFERENCES builds(job, number) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_failure_matches_signature ON failure_matches(signature);
`
