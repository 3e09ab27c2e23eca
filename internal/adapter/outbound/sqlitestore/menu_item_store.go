package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/catalogforge/ingestpipe/internal/port/outbound"
)

// MenuItemStore implements port/outbound.MenuItemStore against the
// menu_items table, storing each record's canonical fields as a JSON
// blob (see db.go's schema comment for why).
type MenuItemStore struct {
	db *sql.DB
}

// NewMenuItemStore wraps an open sqlite handle.
func NewMenuItemStore(db *sql.DB) *MenuItemStore {
	return &MenuItemStore{db: db}
}

func (s *MenuItemStore) Find(ctx context.Context, sourceID, externalID string) (outbound.MenuItemRecord, bool, error) {
	var fieldsJSON, silentJSON string
	var destroyedAt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT fields_json, silent_columns, destroyed_at FROM menu_items WHERE source_id = ? AND external_id = ?`,
		sourceID, externalID,
	).Scan(&fieldsJSON, &silentJSON, &destroyedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return outbound.MenuItemRecord{}, false, nil
	}
	if err != nil {
		return outbound.MenuItemRecord{}, false, fmt.Errorf("sqlitestore: find %s/%s: %w", sourceID, externalID, err)
	}
	if destroyedAt.Valid {
		// A destroyed record is not a live menu item (classify()
		// would otherwise treat an ExternalID reused after a
		// destroy as an update of a tombstone).
		return outbound.MenuItemRecord{}, false, nil
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return outbound.MenuItemRecord{}, false, fmt.Errorf("sqlitestore: decode fields for %s/%s: %w", sourceID, externalID, err)
	}
	var silent []string
	if err := json.Unmarshal([]byte(silentJSON), &silent); err != nil {
		return outbound.MenuItemRecord{}, false, fmt.Errorf("sqlitestore: decode silent_columns for %s/%s: %w", sourceID, externalID, err)
	}

	return outbound.MenuItemRecord{Fields: fields, SilentColumns: silent}, true, nil
}

func (s *MenuItemStore) Create(ctx context.Context, sourceID, externalID string, changes map[string]any) error {
	fieldsJSON, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode fields for %s/%s: %w", sourceID, externalID, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO menu_items (source_id, external_id, fields_json, silent_columns) VALUES (?, ?, ?, '[]')`,
		sourceID, externalID, string(fieldsJSON),
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: create %s/%s: %w", sourceID, externalID, err)
	}
	return nil
}

func (s *MenuItemStore) Update(ctx context.Context, sourceID, externalID string, changes map[string]any, silent bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: update %s/%s: %w", sourceID, externalID, err)
	}
	defer func() { _ = tx.Rollback() }()

	var fieldsJSON string
	err = tx.QueryRowContext(ctx,
		`SELECT fields_json FROM menu_items WHERE source_id = ? AND external_id = ?`,
		sourceID, externalID,
	).Scan(&fieldsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlitestore: update %s/%s: record not found", sourceID, externalID)
	}
	if err != nil {
		return fmt.Errorf("sqlitestore: update %s/%s: %w", sourceID, externalID, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
		return fmt.Errorf("sqlitestore: decode fields for %s/%s: %w", sourceID, externalID, err)
	}
	for k, v := range changes {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("sqlitestore: encode fields for %s/%s: %w", sourceID, externalID, err)
	}

	// silent is informational here: the caller has already decided
	// every changed key is in SilentColumns, so this write bypasses
	// whatever downstream hook a non-silent update would otherwise
	// need to trigger. A real deployment wires that hook in at the
	// call site that owns it; this adapter only persists the bytes.
	_, err = tx.ExecContext(ctx,
		`UPDATE menu_items SET fields_json = ? WHERE source_id = ? AND external_id = ?`,
		string(merged), sourceID, externalID,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: update %s/%s: %w", sourceID, externalID, err)
	}
	return tx.Commit()
}

func (s *MenuItemStore) Destroy(ctx context.Context, sourceID, externalID, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE menu_items SET destroyed_at = ?, destroy_reason = ? WHERE source_id = ? AND external_id = ?`,
		time.Now().UTC().Format(time.RFC3339), reason, sourceID, externalID,
	)
	if err != nil {
		return fmt.Errorf("sqlitestore: destroy %s/%s: %w", sourceID, externalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlitestore: destroy %s/%s: %w", sourceID, externalID, err)
	}
	if n == 0 {
		return fmt.Errorf("sqlitestore: destroy %s/%s: record not found", sourceID, externalID)
	}
	return nil
}
