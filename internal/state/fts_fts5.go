//go:build sqlite_fts5

package state

import (
	"database/sql"
	"fmt"

	"github.com/starford/ansuz/internal/models"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS records_fts USING fts5(
			source_number UNINDEXED,
			title,
			resolutions,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsUpsert(tx *sql.Tx, sourceNumber int64, title, resolutions string) error {
	_, _ = tx.Exec(`DELETE FROM records_fts WHERE source_number = ?`, sourceNumber)
	_, err := tx.Exec(`INSERT INTO records_fts (source_number, title, resolutions) VALUES (?, ?, ?)`,
		sourceNumber, title, resolutions)
	if err != nil {
		return fmt.Errorf("state: upsert fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search over record titles and resolutions.
func (db *DB) Search(query string, limit int) ([]models.TrackingRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT r.source_number, r.dest_number, r.fingerprint, r.title, r.resolutions, r.created_at, r.updated_at
		FROM records_fts f
		JOIN records r ON r.source_number = f.source_number
		WHERE records_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
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
