// Package syncservice coordinates engine runs and state queries for the
// API and MCP layers.
package syncservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/state"
)

// Runner performs one sync pass.
type Runner interface {
	Run(ctx context.Context) (*engine.Report, error)
}

// Service exposes sync operations and tracking-record queries.
// Runs are serialised: a triggered run waits for any in-flight one.
type Service struct {
	store  state.Store
	runner Runner

	mu         sync.Mutex
	lastReport *engine.Report
}

// NewService creates a service over the given store and runner.
func NewService(store state.Store, runner Runner) *Service {
	return &Service{store: store, runner: runner}
}

// Status is the sync status snapshot.
type Status struct {
	Cursor      string         `json:"cursor"`
	RecordCount int            `json:"record_count"`
	LastRun     *engine.Report `json:"last_run,omitempty"`
}

// Status returns the current cursor, record count, and last run report.
func (s *Service) Status() (*Status, error) {
	cursor, err := s.store.Cursor()
	if err != nil {
		return nil, err
	}
	count, err := s.store.RecordCount()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	last := s.lastReport
	s.mu.Unlock()
	return &Status{Cursor: cursor, RecordCount: count, LastRun: last}, nil
}

// Records returns tracking records, newest source numbers last.
func (s *Service) Records(limit int) ([]models.TrackingRecord, error) {
	return s.store.AllRecords(limit)
}

// Record returns the tracking record for a source issue number, or nil.
func (s *Service) Record(sourceNumber int64) (*models.TrackingRecord, error) {
	return s.store.GetRecord(sourceNumber)
}

// Search queries synced titles and resolutions.
func (s *Service) Search(query string, limit int) ([]models.TrackingRecord, error) {
	return s.store.Search(query, limit)
}

// TriggerSync runs one sync pass and records its report.
func (s *Service) TriggerSync(ctx context.Context) (*engine.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	report, err := s.runner.Run(ctx)
	if report != nil {
		s.lastReport = report
	}
	if err != nil {
		return report, fmt.Errorf("sync run: %w", err)
	}
	return report, nil
}
