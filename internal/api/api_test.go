package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/state"
	"github.com/starford/ansuz/internal/syncservice"
	"github.com/starford/ansuz/internal/testutil"
)

type fakeRunner struct {
	report *engine.Report
	err    error
	runs   int
}

func (f *fakeRunner) Run(context.Context) (*engine.Report, error) {
	f.runs++
	return f.report, f.err
}

func testEnv(t *testing.T, authEnabled bool, token string) (*httptest.Server, *syncservice.Service, *fakeRunner) {
	t.Helper()
	store := testutil.TestDB(t)
	runner := &fakeRunner{report: &engine.Report{Created: 1, Cursor: "2026-03-02T12:00:00Z"}}
	svc := syncservice.NewService(store, runner)
	srv := httptest.NewServer(NewRouter(svc, authEnabled, token, nil))
	t.Cleanup(srv.Close)
	return srv, svc, runner
}

func seedRecord(t *testing.T, store *state.DB, source, dest int64, title string) {
	t.Helper()
	now := time.Now().UTC()
	err := store.RecordSync(models.TrackingRecord{
		SourceNumber: source,
		DestNumber:   dest,
		Fingerprint:  "fp",
		Title:        title,
		Resolutions:  "RESOLVED: yes",
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatal(err)
		}
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	store := testutil.TestDB(t)
	runner := &fakeRunner{report: &engine.Report{Created: 2}}
	svc := syncservice.NewService(store, runner)
	srv := httptest.NewServer(NewRouter(svc, false, "", nil))
	defer srv.Close()

	seedRecord(t, store, 1, 100, "first")
	if err := store.SetCursor("2026-03-01T00:00:00Z"); err != nil {
		t.Fatal(err)
	}

	var st syncservice.Status
	if code := getJSON(t, srv.URL+"/status", &st); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if st.Cursor != "2026-03-01T00:00:00Z" || st.RecordCount != 1 {
		t.Errorf("status = %+v", st)
	}
	if st.LastRun != nil {
		t.Errorf("fresh service has a last run: %+v", st.LastRun)
	}

	// After a triggered sync the report shows up.
	resp, err := http.Post(srv.URL+"/sync", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sync status code = %d", resp.StatusCode)
	}

	if code := getJSON(t, srv.URL+"/status", &st); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if st.LastRun == nil || st.LastRun.Created != 2 {
		t.Errorf("last run = %+v", st.LastRun)
	}
	if runner.runs != 1 {
		t.Errorf("runner runs = %d", runner.runs)
	}
}

func TestRecordsEndpoints(t *testing.T) {
	store := testutil.TestDB(t)
	svc := syncservice.NewService(store, &fakeRunner{})
	srv := httptest.NewServer(NewRouter(svc, false, "", nil))
	defer srv.Close()

	seedRecord(t, store, 1, 100, "grid sizing")
	seedRecord(t, store, 2, 101, "flex gaps")

	var list struct {
		Records []models.TrackingRecord `json:"records"`
		Count   int                     `json:"count"`
	}
	if code := getJSON(t, srv.URL+"/records", &list); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if list.Count != 2 || len(list.Records) != 2 {
		t.Errorf("list = %+v", list)
	}

	var rec models.TrackingRecord
	if code := getJSON(t, srv.URL+"/records/2", &rec); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if rec.Title != "flex gaps" || rec.DestNumber != 101 {
		t.Errorf("record = %+v", rec)
	}

	if code := getJSON(t, srv.URL+"/records/999", nil); code != http.StatusNotFound {
		t.Errorf("missing record status = %d", code)
	}
	if code := getJSON(t, srv.URL+"/records/abc", nil); code != http.StatusBadRequest {
		t.Errorf("bad number status = %d", code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	store := testutil.TestDB(t)
	svc := syncservice.NewService(store, &fakeRunner{})
	srv := httptest.NewServer(NewRouter(svc, false, "", nil))
	defer srv.Close()

	seedRecord(t, store, 1, 100, "grid sizing")
	seedRecord(t, store, 2, 101, "flex gaps")

	var res struct {
		Records []models.TrackingRecord `json:"records"`
		Count   int                     `json:"count"`
	}
	if code := getJSON(t, srv.URL+"/search?q=grid", &res); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if res.Count != 1 || res.Records[0].SourceNumber != 1 {
		t.Errorf("search result = %+v", res)
	}

	if code := getJSON(t, srv.URL+"/search", nil); code != http.StatusBadRequest {
		t.Errorf("missing q status = %d", code)
	}
}

func TestAuth(t *testing.T) {
	srv, _, _ := testEnv(t, true, "secret")

	if code := getJSON(t, srv.URL+"/status", nil); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d", code)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("wrong token status = %d", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, srv.URL+"/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d", resp.StatusCode)
	}
}

func TestTriggerSync_FailurePropagates(t *testing.T) {
	store := testutil.TestDB(t)
	runner := &fakeRunner{err: context.DeadlineExceeded}
	svc := syncservice.NewService(store, runner)
	srv := httptest.NewServer(NewRouter(svc, false, "", nil))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/sync", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}
