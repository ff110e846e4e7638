//go:build !sqlite_fts5

package state

import (
	"database/sql"
	"fmt"

	"github.com/starford/ansuz/internal/models"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses a LIKE fallback on the records table.
	return nil
}

func ftsUpsert(_ *sql.Tx, _ int64, _, _ string) error {
	// Title and resolutions are already stored in the records table.
	return nil
}

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]models.TrackingRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT source_number, dest_number, fingerprint, title, resolutions, created_at, updated_at
		FROM records
		WHERE title LIKE ? OR resolutions LIKE ?
		ORDER BY source_number
		LIMIT ?
	`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("state: search: %w", err)
	}
	defer rows.Close()

	var out []models.TrackingRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}
