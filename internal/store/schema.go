package store

// schemaSQL initializes the local cache tables. The cache mirrors
// server-side pages and messages for offline listing and instant chat
// backfill, plus a key/value table for client settings.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS page (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS message (
	id         TEXT PRIMARY KEY,
	page_id    TEXT NOT NULL REFERENCES page(id) ON DELETE CASCADE,
	content    TEXT NOT NULL,
	reasoning  TEXT NOT NULL DEFAULT '',
	is_user    INTEGER NOT NULL,
	position   INTEGER NOT NULL,
	created_ts INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_message_page ON message(page_id, position);

CREATE TABLE IF NOT EXISTS setting (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Setting keys. These mirror the storage keys the browser extension
// uses, so the CLI and the extension describe the same state.
const (
	SettingJobData        = "jobData"
	SettingExtensionToken = "extensionToken"
	SettingSessionToken   = "sessionToken"
	SettingAppURL         = "appUrl"
)
