package storage

const schema = `
-- The 'entries' table stores the immutable content of each interview item.
-- seq preserves insertion order.
CREATE TABLE IF NOT EXISTS entries (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    category TEXT NOT NULL,
    prompt TEXT NOT NULL,
    answer TEXT NOT NULL,
    difficulty INTEGER NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL
);

-- Tags of an entry, in the order they were given.
CREATE TABLE IF NOT EXISTS entry_tags (
    entry_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    tag TEXT NOT NULL,

    PRIMARY KEY(entry_id, position),
    FOREIGN KEY(entry_id) REFERENCES entries(id) ON DELETE CASCADE
);

-- Exactly one row per entry holding its spaced-repetition state.
CREATE TABLE IF NOT EXISTS review_states (
    entry_id TEXT PRIMARY KEY,
    last_reviewed TEXT NOT NULL DEFAULT '',
    next_due TEXT NOT NULL,
    interval_days REAL NOT NULL DEFAULT 0,
    streak INTEGER NOT NULL DEFAULT 0,
    ease REAL NOT NULL,
    reviews INTEGER NOT NULL DEFAULT 0,

    FOREIGN KEY(entry_id) REFERENCES entries(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_review_states_next_due ON review_states(next_due);
`
