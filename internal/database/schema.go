package database

import "fmt"

const schema = `
CREATE TABLE persistent_cache (
	cache_key TEXT PRIMARY KEY,
	method_name TEXT NOT NULL,
	parameters_json TEXT NOT NULL,
	raw_payload TEXT,
	parsed_data_json TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	expires_at DATETIME NOT NULL,
	access_count INTEGER DEFAULT 0,
	last_accessed DATETIME NOT NULL,
	data_size INTEGER NOT NULL
);

CREATE INDEX idx_persistent_cache_expires_at ON persistent_cache(expires_at);
CREATE INDEX idx_persistent_cache_method ON persistent_cache(method_name);
CREATE INDEX idx_persistent_cache_created_at ON persistent_cache(created_at);
CREATE INDEX idx_persistent_cache_access_count ON persistent_cache(access_count);

CREATE TABLE search_transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp DATETIME NOT NULL,
	source TEXT NOT NULL,
	query TEXT NOT NULL,
	result_count INTEGER NOT NULL,
	response_time_ms REAL NOT NULL,
	client_identifier TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX idx_search_transactions_source ON search_transactions(source);
CREATE INDEX idx_search_transactions_timestamp ON search_transactions(timestamp);

CREATE TABLE schema_metadata (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

INSERT INTO schema_metadata (key, value) VALUES ('schema_version', '1');
`

// migrations contains incremental schema changes. Each migration is applied
// in order based on the current user_version; migrations[0] is empty because
// version 0 uses the base schema.
var migrations = []string{
	"",
}

// sourceSchema returns the statements creating one source's titles and
// metadata tables. Table names are validated by the caller; index names are
// derived from the validated source.
func sourceSchema(source, titlesTable, metadataTable string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	external_id INTEGER NOT NULL,
	title_type INTEGER NOT NULL,
	language TEXT NOT NULL,
	title TEXT NOT NULL,
	title_normalized TEXT NOT NULL,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (external_id, title_type, language, title)
)`, titlesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_titles_normalized ON %s(title_normalized)`, source, titlesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_titles_external_id ON %s(external_id)`, source, titlesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_titles_type ON %s(title_type)`, source, titlesTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_search_composite ON %s(title_normalized, title_type, language)`, source, titlesTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
)`, metadataTable),
	}
}
