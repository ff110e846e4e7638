package state

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/starford/ansuz/internal/models"
)

// GetRecord returns the tracking record for a source issue, or nil when the
// issue has never been synced.
func (db *DB) GetRecord(sourceNumber int64) (*models.TrackingRecord, error) {
	row := db.conn.QueryRow(`
		SELECT source_number, dest_number, fingerprint, title, resolutions, created_at, updated_at
		FROM records WHERE source_number = ?
	`, sourceNumber)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("state: get record: %w", err)
	}
	return rec, nil
}

// AllRecords returns tracking records ordered by source number.
// limit <= 0 returns everything.
func (db *DB) AllRecords(limit int) ([]models.TrackingRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.Query(`
		SELECT source_number, dest_number, fingerprint, title, resolutions, created_at, updated_at
		FROM records ORDER BY source_number LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("state: all records: %w", err)
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

// RecordCount returns the number of tracking records.
func (db *DB) RecordCount() (int, error) {
	var n int
	if err := db.conn.QueryRow(`SELECT count(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("state: record count: %w", err)
	}
	return n, nil
}

// RecordSync upserts a tracking record and marks the comments that produced
// it as handled, in a single transaction. The engine calls this only after
// the destination API call has succeeded, so a failed item leaves no trace.
func (db *DB) RecordSync(rec models.TrackingRecord, commentURLs []string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO records (source_number, dest_number, fingerprint, title, resolutions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(source_number) DO UPDATE SET
			dest_number = excluded.dest_number,
			fingerprint = excluded.fingerprint,
			title       = excluded.title,
			resolutions = excluded.resolutions,
			updated_at  = excluded.updated_at
	`, rec.SourceNumber, rec.DestNumber, rec.Fingerprint, rec.Title, rec.Resolutions, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("state: upsert record: %w", err)
	}

	if err := ftsUpsert(tx, rec.SourceNumber, rec.Title, rec.Resolutions); err != nil {
		return err
	}

	if len(commentURLs) > 0 {
		stmt, err := tx.Prepare(`INSERT OR IGNORE INTO handled_comments (url) VALUES (?)`)
		if err != nil {
			return fmt.Errorf("state: prepare handled insert: %w", err)
		}
		defer stmt.Close()
		for _, u := range commentURLs {
			if _, err := stmt.Exec(u); err != nil {
				return fmt.Errorf("state: insert handled comment: %w", err)
			}
		}
	}

	return tx.Commit()
}

// CommentHandled reports whether a comment URL has already produced a sync.
func (db *DB) CommentHandled(url string) (bool, error) {
	var one int
	err := db.conn.QueryRow(`SELECT 1 FROM handled_comments WHERE url = ?`, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: comment handled: %w", err)
	}
	return true, nil
}

// Cursor returns the persisted high-water mark, or empty string when no run
// has completed yet.
func (db *DB) Cursor() (string, error) {
	var since string
	err := db.conn.QueryRow(`SELECT since FROM cursor WHERE id = 1`).Scan(&since)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("state: cursor: %w", err)
	}
	return since, nil
}

// SetCursor persists the high-water mark.
func (db *DB) SetCursor(since string) error {
	_, err := db.conn.Exec(`
		INSERT INTO cursor (id, since) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET since = excluded.since
	`, since)
	if err != nil {
		return fmt.Errorf("state: set cursor: %w", err)
	}
	return nil
}

// scanner matches both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*models.TrackingRecord, error) {
	var rec models.TrackingRecord
	var createdAt, updatedAt time.Time
	err := s.Scan(&rec.SourceNumber, &rec.DestNumber, &rec.Fingerprint, &rec.Title, &rec.Resolutions, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = createdAt
	rec.UpdatedAt = updatedAt
	return &rec, nil
}
