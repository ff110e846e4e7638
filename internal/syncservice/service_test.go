package syncservice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/testutil"
)

type stubRunner struct {
	report *engine.Report
	err    error
	runs   int
}

func (s *stubRunner) Run(context.Context) (*engine.Report, error) {
	s.runs++
	return s.report, s.err
}

func TestTriggerSync_RecordsLastReport(t *testing.T) {
	store := testutil.TestDB(t)
	runner := &stubRunner{report: &engine.Report{Created: 2, Cursor: "2026-03-02T12:00:00Z"}}
	svc := NewService(store, runner)

	report, err := svc.TriggerSync(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 2 {
		t.Errorf("report = %+v", report)
	}

	st, err := svc.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.LastRun == nil || st.LastRun.Created != 2 {
		t.Errorf("last run = %+v", st.LastRun)
	}
}

func TestTriggerSync_ErrorKeepsPartialReport(t *testing.T) {
	store := testutil.TestDB(t)
	boom := errors.New("token revoked")
	runner := &stubRunner{report: &engine.Report{Created: 1}, err: boom}
	svc := NewService(store, runner)

	report, err := svc.TriggerSync(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if report == nil || report.Created != 1 {
		t.Errorf("report = %+v", report)
	}

	st, err := svc.Status()
	if err != nil {
		t.Fatal(err)
	}
	// A failed run's partial report is still the last run.
	if st.LastRun == nil || st.LastRun.Created != 1 {
		t.Errorf("last run = %+v", st.LastRun)
	}
}

func TestQueriesDelegateToStore(t *testing.T) {
	store := testutil.TestDB(t)
	svc := NewService(store, &stubRunner{})

	now := time.Now().UTC()
	err := store.RecordSync(models.TrackingRecord{
		SourceNumber: 7,
		DestNumber:   107,
		Fingerprint:  "fp",
		Title:        "grid sizing",
		Resolutions:  "RESOLVED: adopt",
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}

	rec, err := svc.Record(7)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil || rec.DestNumber != 107 {
		t.Errorf("record = %+v", rec)
	}

	records, err := svc.Records(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Errorf("records = %+v", records)
	}

	hits, err := svc.Search("grid", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("search hits = %+v", hits)
	}
}
