package store

const Schema = `
CREATE TABLE IF NOT EXISTS history (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL,
	quality TEXT,
	format_type TEXT,
	state TEXT NOT NULL,
	error_kind TEXT,
	error TEXT,
	file_path TEXT,
	file_size INTEGER DEFAULT 0,
	owner TEXT,
	created_at DATETIME NOT NULL,
	started_at DATETIME,
	finished_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_history_finished_at ON history(finished_at);
`
