// Package sqlitestore provides the modernc.org/sqlite-backed
// implementations of port/outbound.MenuItemStore and
// port/outbound.LookupProvider. Canonical record fields are stored as
// a JSON blob per row rather than one column per canonical field: the
// canonical schema is source-specific and rule-extensible (a
// condition_rule can write any key its `then` patch names), so a fixed
// column set would need a migration for every new rule, defeating the
// declarative ruleset documents' whole purpose.
package sqlitestore

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schema creates the tables this adapter needs if they don't already
// exist. Lookup tables are seeded by a separate administrative
// process (out of scope, spec §1); this package only reads them.
const schema = `
CREATE TABLE IF NOT EXISTS menu_items (
	source_id      TEXT NOT NULL,
	external_id    TEXT NOT NULL,
	fields_json    TEXT NOT NULL,
	silent_columns TEXT NOT NULL DEFAULT '[]',
	destroyed_at   TEXT,
	destroy_reason TEXT,
	PRIMARY KEY (source_id, external_id)
);

CREATE TABLE IF NOT EXISTS brands (
	brand_key TEXT PRIMARY KEY,
	brand_id  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS strains (
	strain_name TEXT PRIMARY KEY,
	strain_id   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS tags (
	tag_name TEXT PRIMARY KEY,
	tag_id   INTEGER NOT NULL
);
`

// Open opens (creating if necessary) a sqlite database at dsn and
// ensures the schema exists.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open %s: %w", dsn, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: migrate schema: %w", err)
	}
	return db, nil
}

// maxVariables caps the number of "?" placeholders in one query,
// comfortably under sqlite's default SQLITE_MAX_VARIABLE_NUMBER so a
// batch with an unusually large distinct-key count is chunked instead
// of failing outright (spec §4.4's "one bulk query per kind" becomes
// "one query per chunk" only in that edge case).
const maxVariables = 500

// chunk splits keys into groups of at most maxVariables elements.
func chunk(keys []string) [][]string {
	if len(keys) == 0 {
		return nil
	}
	var out [][]string
	for len(keys) > maxVariables {
		out = append(out, keys[:maxVariables])
		keys = keys[maxVariables:]
	}
	return append(out, keys)
}
