package store

const schemaVersion = 1

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sessions (
    id TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    project_path TEXT,
    project_name TEXT,
    cwd TEXT,
    model TEXT,
    git_branch TEXT,
    first_message_at INTEGER NOT NULL,
    last_message_at INTEGER NOT NULL,
    message_count INTEGER DEFAULT 0,
    user_message_count INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    compaction_count INTEGER DEFAULT 0,
    tools_used TEXT,
    tier TEXT DEFAULT 'L3',
    raw_path TEXT,
    ingested_at INTEGER,
    title TEXT
);

CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL REFERENCES sessions(id),
    ordinal INTEGER NOT NULL,
    role TEXT NOT NULL,
    content_type TEXT,
    content_text TEXT,
    content_json TEXT,
    tool_name TEXT,
    token_count INTEGER DEFAULT 0,
    created_at INTEGER NOT NULL,
    UNIQUE(session_id, ordinal)
);

CREATE TABLE IF NOT EXISTS session_summaries (
    session_id TEXT PRIMARY KEY REFERENCES sessions(id),
    summary_text TEXT NOT NULL,
    key_decisions TEXT,
    files_touched TEXT,
    commands_run TEXT,
    outcome TEXT,
    generated_at INTEGER,
    generator_model TEXT,
    thinking TEXT,
    usage TEXT,
    claude_session_id TEXT
);

CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    canonical_value TEXT NOT NULL,
    first_seen_at INTEGER,
    last_seen_at INTEGER,
    occurrence_count INTEGER DEFAULT 1,
    UNIQUE(entity_type, canonical_value)
);

CREATE TABLE IF NOT EXISTS entity_occurrences (
    entity_id INTEGER REFERENCES entities(id),
    session_id TEXT REFERENCES sessions(id),
    message_id INTEGER REFERENCES messages(id),
    context_snippet TEXT,
    PRIMARY KEY(entity_id, message_id)
);

CREATE TABLE IF NOT EXISTS project_knowledge (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    project_path TEXT NOT NULL,
    knowledge_type TEXT NOT NULL,
    content TEXT NOT NULL,
    confidence REAL DEFAULT 0.5,
    evidence_count INTEGER DEFAULT 1,
    source_sessions TEXT,
    first_seen_at INTEGER,
    last_confirmed_at INTEGER,
    superseded_by INTEGER REFERENCES project_knowledge(id)
);

CREATE TABLE IF NOT EXISTS memory_jobs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    job_type TEXT NOT NULL,
    target_type TEXT,
    target_id TEXT,
    status TEXT DEFAULT 'pending',
    priority INTEGER DEFAULT 0,
    retry_remaining INTEGER DEFAULT 3,
    created_at INTEGER,
    started_at INTEGER,
    finished_at INTEGER,
    last_error TEXT
);

CREATE TABLE IF NOT EXISTS schema_meta (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

const ftsSQL = `
CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
    content_text,
    content=messages,
    content_rowid=id,
    tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
    INSERT INTO messages_fts(rowid, content_text) VALUES (new.id, new.content_text);
END;
CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content_text) VALUES('delete', old.id, old.content_text);
END;
CREATE TRIGGER IF NOT EXISTS messages_au AFTER UPDATE ON messages BEGIN
    INSERT INTO messages_fts(messages_fts, rowid, content_text) VALUES('delete', old.id, old.content_text);
    INSERT INTO messages_fts(rowid, content_text) VALUES (new.id, new.content_text);
END;
`

const indexSQL = `
CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(session_id, role);
CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_path);
CREATE INDEX IF NOT EXISTS idx_sessions_source ON sessions(source);
CREATE INDEX IF NOT EXISTS idx_sessions_time ON sessions(first_message_at);
CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_entity_occ_session ON entity_occurrences(session_id);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON memory_jobs(status, priority DESC);
CREATE INDEX IF NOT EXISTS idx_project_knowledge_path ON project_knowledge(project_path);
`
