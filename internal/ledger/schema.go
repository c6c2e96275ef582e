package ledger

const schemaVersion = 1

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	input       TEXT NOT NULL,
	policy      TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'running',
	started_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS group_outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	case_name   TEXT NOT NULL,
	case_index  INTEGER NOT NULL,
	group_index INTEGER NOT NULL,
	dir         TEXT NOT NULL,
	matches     INTEGER NOT NULL,
	missing     INTEGER NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT,
	recorded_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS missing_artifacts (
	group_id  INTEGER NOT NULL REFERENCES group_outcomes(id),
	match_seq INTEGER NOT NULL,
	kind      TEXT NOT NULL,
	url       TEXT NOT NULL,
	attempts  INTEGER NOT NULL,
	cause     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_outcomes_run ON group_outcomes(run_id);
`
