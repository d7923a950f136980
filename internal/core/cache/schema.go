package cache

func (e *Engine) initSchema() error {
	schema := `
	-- Per-day aggregate rows, keyed by (date, project). JSON columns
	-- hold string->int count maps merged by pointwise addition.
	CREATE TABLE IF NOT EXISTS daily_stats (
		date TEXT NOT NULL,
		project TEXT NOT NULL DEFAULT '__all__',
		conversations INTEGER NOT NULL DEFAULT 0,
		messages INTEGER NOT NULL DEFAULT 0,
		subagent_sessions INTEGER NOT NULL DEFAULT 0,
		tool_counts TEXT NOT NULL DEFAULT '{}',
		hourly_activity TEXT NOT NULL DEFAULT '{}',
		token_usage TEXT NOT NULL DEFAULT '{}',
		model_counts TEXT NOT NULL DEFAULT '{}',
		branch_counts TEXT NOT NULL DEFAULT '{}',
		computed_at TEXT,
		PRIMARY KEY (date, project)
	);

	-- One row per transcript file; valid while mtime matches disk.
	CREATE TABLE IF NOT EXISTS file_index (
		file_path TEXT PRIMARY KEY,
		mtime INTEGER NOT NULL,
		message_count INTEGER NOT NULL DEFAULT 0,
		first_date TEXT,
		last_date TEXT,
		project TEXT,
		is_subagent INTEGER NOT NULL DEFAULT 0,
		last_indexed TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_file_index_dates ON file_index(first_date, last_date);
	CREATE INDEX IF NOT EXISTS idx_file_index_project ON file_index(project);

	-- Generic key/value store (last_full_update and friends).
	CREATE TABLE IF NOT EXISTS cache_meta (
		key TEXT PRIMARY KEY,
		value TEXT
	);

	-- Singleton totals row for instant dashboard loads.
	CREATE TABLE IF NOT EXISTS totals_cache (
		id INTEGER PRIMARY KEY CHECK(id = 1),
		total_conversations INTEGER NOT NULL DEFAULT 0,
		total_messages INTEGER NOT NULL DEFAULT 0,
		total_subagents INTEGER NOT NULL DEFAULT 0,
		project_count INTEGER NOT NULL DEFAULT 0,
		last_updated TEXT
	);

	-- Bounded-read session metadata for instant summary search.
	CREATE TABLE IF NOT EXISTS session_metadata (
		file_path TEXT PRIMARY KEY,
		session_id TEXT,
		custom_title TEXT,
		summary TEXT,
		first_prompt TEXT,
		git_branch TEXT,
		project TEXT,
		cwd TEXT,
		mtime INTEGER NOT NULL,
		first_timestamp TEXT,
		is_subagent INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_session_metadata_project ON session_metadata(project);
	CREATE INDEX IF NOT EXISTS idx_session_metadata_mtime ON session_metadata(mtime);
	`

	_, err := e.db.Exec(schema)
	return err
}
