package state

import "github.com/starford/ansuz/internal/models"

// Store defines the persistence operations the sync engine depends on.
// Consumers should depend on this interface rather than the concrete *DB
// type to facilitate testing with substitutes.
type Store interface {
	GetRecord(sourceNumber int64) (*models.TrackingRecord, error)
	AllRecords(limit int) ([]models.TrackingRecord, error)
	RecordCount() (int, error)
	RecordSync(rec models.TrackingRecord, commentURLs []string) error
	CommentHandled(url string) (bool, error)
	Cursor() (string, error)
	SetCursor(since string) error
	Search(query string, limit int) ([]models.TrackingRecord, error)
	Close() error
}

// Verify *DB satisfies Store at compile time.
var _ Store = (*DB)(nil)
