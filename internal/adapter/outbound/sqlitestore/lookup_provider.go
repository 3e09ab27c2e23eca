package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
)

// LookupProvider implements port/outbound.LookupProvider with bulk
// `SELECT ... WHERE key IN (...)` queries, chunked to respect sqlite's
// bound-variable limit (db.go's maxVariables).
type LookupProvider struct {
	db *sql.DB
}

// NewLookupProvider wraps an open sqlite handle.
func NewLookupProvider(db *sql.DB) *LookupProvider {
	return &LookupProvider{db: db}
}

func (p *LookupProvider) PreloadBrands(ctx context.Context, keys []string) (map[string]int64, error) {
	out := make(map[string]int64, len(keys))
	for _, group := range chunk(keys) {
		if len(group) == 0 {
			continue
		}
		query := fmt.Sprintf("SELECT brand_key, brand_id FROM brands WHERE brand_key IN (%s)", placeholders(len(group)))
		rows, err := p.db.QueryContext(ctx, query, toArgs(group)...)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: preload brands: %w", err)
		}
		if err := scanInto(rows, out); err != nil {
			return nil, fmt.Errorf("sqlitestore: preload brands: %w", err)
		}
	}
	return out, nil
}

func (p *LookupProvider) PreloadStrains(ctx context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	for _, group := range chunk(names) {
		if len(group) == 0 {
			continue
		}
		query := fmt.Sprintf("SELECT strain_name, strain_id FROM strains WHERE strain_name IN (%s)", placeholders(len(group)))
		rows, err := p.db.QueryContext(ctx, query, toArgs(group)...)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: preload strains: %w", err)
		}
		if err := scanInto(rows, out); err != nil {
			return nil, fmt.Errorf("sqlitestore: preload strains: %w", err)
		}
	}
	return out, nil
}

func (p *LookupProvider) PreloadTags(ctx context.Context, names []string) (map[string]batchctx.TagRecord, error) {
	out := make(map[string]batchctx.TagRecord, len(names))
	for _, group := range chunk(names) {
		if len(group) == 0 {
			continue
		}
		query := fmt.Sprintf("SELECT tag_name, tag_id FROM tags WHERE tag_name IN (%s)", placeholders(len(group)))
		rows, err := p.db.QueryContext(ctx, query, toArgs(group)...)
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: preload tags: %w", err)
		}
		err = func() error {
			defer rows.Close()
			for rows.Next() {
				var name string
				var id int64
				if err := rows.Scan(&name, &id); err != nil {
					return err
				}
				out[name] = batchctx.TagRecord{ID: id, Name: name}
			}
			return rows.Err()
		}()
		if err != nil {
			return nil, fmt.Errorf("sqlitestore: preload tags: %w", err)
		}
	}
	return out, nil
}

func scanInto(rows *sql.Rows, out map[string]int64) error {
	defer rows.Close()
	for rows.Next() {
		var key string
		var id int64
		if err := rows.Scan(&key, &id); err != nil {
			return err
		}
		out[key] = id
	}
	return rows.Err()
}

func placeholders(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "?"
	}
	return strings.Join(parts, ", ")
}

func toArgs(keys []string) []any {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	return args
}
