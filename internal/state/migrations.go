package state

// migration is one forward-only schema step. Versions are applied in order
// and recorded in schema_version.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{1, "sessions", `
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	goal TEXT NOT NULL,
	created_at TEXT NOT NULL
);`},
	{2, "runs", `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	session_id TEXT REFERENCES sessions(id) ON DELETE SET NULL,
	query TEXT NOT NULL,
	goal TEXT NOT NULL,
	depth INTEGER NOT NULL,
	width INTEGER NOT NULL,
	policy TEXT NOT NULL,
	quantum_runs INTEGER NOT NULL DEFAULT 1,
	total_possible_agents INTEGER NOT NULL,
	executed_agents INTEGER NOT NULL,
	delegated INTEGER NOT NULL DEFAULT 0,
	final_answer TEXT NOT NULL,
	started_at TEXT NOT NULL,
	completed_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_session_id ON runs(session_id);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`},
	{3, "run_entries", `
CREATE TABLE IF NOT EXISTS run_entries (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	run INTEGER NOT NULL,
	seq INTEGER NOT NULL,
	layer INTEGER NOT NULL,
	position INTEGER NOT NULL,
	role TEXT NOT NULL,
	path TEXT NOT NULL,
	task TEXT NOT NULL,
	focus TEXT NOT NULL,
	response TEXT NOT NULL,
	delegated INTEGER NOT NULL DEFAULT 0,
	at TEXT NOT NULL,
	PRIMARY KEY (run_id, run, seq)
);`},
}
