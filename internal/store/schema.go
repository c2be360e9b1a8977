package store

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	slug       TEXT NOT NULL CHECK (length(slug) <= 200),
	entity     TEXT NOT NULL CHECK (length(entity) <= 500),
	body       TEXT NOT NULL DEFAULT '' CHECK (length(body) <= 1000000),
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(user_id, slug)
);

CREATE INDEX IF NOT EXISTS idx_entries_user_updated ON entries(user_id, updated_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS entry_tags (
	entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	tag      TEXT NOT NULL CHECK (length(tag) <= 100),
	PRIMARY KEY (entry_id, tag)
);

CREATE INDEX IF NOT EXISTS idx_entry_tags_tag ON entry_tags(tag);

CREATE TABLE IF NOT EXISTS links (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	source_id     TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	target_id     TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	type          TEXT NOT NULL DEFAULT 'related' CHECK (length(type) <= 64),
	bidirectional INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	UNIQUE(source_id, target_id, type)
);

CREATE INDEX IF NOT EXISTS idx_links_source ON links(source_id);
CREATE INDEX IF NOT EXISTS idx_links_target ON links(target_id);

CREATE TABLE IF NOT EXISTS pins (
	user_id   TEXT NOT NULL,
	chat_id   TEXT NOT NULL,
	entry_id  TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
	pinned_at INTEGER NOT NULL,
	PRIMARY KEY (user_id, chat_id, entry_id)
);

CREATE INDEX IF NOT EXISTS idx_pins_user_chat ON pins(user_id, chat_id, pinned_at);

CREATE TABLE IF NOT EXISTS agents (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT NOT NULL DEFAULT '',
	prompt_config TEXT,
	checksum      TEXT NOT NULL DEFAULT '',
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS rate_buckets (
	key         TEXT PRIMARY KEY,
	tokens      INTEGER NOT NULL,
	last_refill INTEGER NOT NULL
);
`
