package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/repocfg"
	"github.com/starford/ansuz/internal/resolution"
	"github.com/starford/ansuz/internal/testutil"
)

type fakeSource struct {
	items    []models.SourceItem
	comments map[int64][]models.Comment

	itemsErr error
}

func (f *fakeSource) UpdatedItems(_ context.Context, since string) ([]models.SourceItem, error) {
	if f.itemsErr != nil {
		return nil, f.itemsErr
	}
	cutoff, err := time.Parse(time.RFC3339, since)
	if err != nil {
		return nil, fmt.Errorf("bad since %q: %w", since, err)
	}
	var out []models.SourceItem
	for _, it := range f.items {
		if !it.UpdatedAt.Before(cutoff) {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f *fakeSource) Comments(_ context.Context, number int64, _ string) ([]models.Comment, error) {
	return f.comments[number], nil
}

type fakeDest struct {
	nextNumber int64
	issues     map[int64][]string // dest number -> bodies (issue body, then comments)
	labels     map[string]string

	createFail map[string]error // keyed by issue title
	commentErr error

	createCalls  int
	commentCalls int
	existsCalls  int
}

func newFakeDest() *fakeDest {
	return &fakeDest{
		nextNumber: 1000,
		issues:     make(map[int64][]string),
		labels:     make(map[string]string),
		createFail: make(map[string]error),
	}
}

func (f *fakeDest) CreateIssue(_ context.Context, title, body string, labels []string) (models.IssueRef, error) {
	f.createCalls++
	if err := f.createFail[title]; err != nil {
		return models.IssueRef{}, err
	}
	f.nextNumber++
	f.issues[f.nextNumber] = []string{body}
	return models.IssueRef{Number: f.nextNumber, HTMLURL: fmt.Sprintf("https://example.test/dest/%d", f.nextNumber)}, nil
}

func (f *fakeDest) CreateComment(_ context.Context, number int64, body string) error {
	f.commentCalls++
	if f.commentErr != nil {
		return f.commentErr
	}
	f.issues[number] = append(f.issues[number], body)
	return nil
}

func (f *fakeDest) IssueExists(_ context.Context, number int64) (bool, error) {
	f.existsCalls++
	_, ok := f.issues[number]
	return ok, nil
}

func (f *fakeDest) EnsureLabel(_ context.Context, name, color string) error {
	f.labels[name] = color
	return nil
}

func (f *fakeDest) apiCalls() int {
	return f.createCalls + f.commentCalls
}

func day(d int) time.Time {
	return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
}

func resolvedComment(url string, lines ...string) models.Comment {
	var b strings.Builder
	b.WriteString("chatter\n")
	for _, l := range lines {
		b.WriteString("RESOLVED: " + l + "\n")
	}
	return models.Comment{URL: url, CreatedAt: day(1), Body: b.String()}
}

func testEngine(t *testing.T, src *fakeSource, dest *fakeDest) *Engine {
	t.Helper()
	store := testutil.TestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, src, dest, Options{
		StartDate:   "2026-03-01",
		LabelPrefix: "[spec] ",
		Composer:    resolution.Composer{RepoName: "src", RepoURL: "https://example.test/src"},
	}, logger)
}

func TestRun_NewItemFilesTrackingIssue(t *testing.T) {
	src := &fakeSource{
		items: []models.SourceItem{{Number: 1, Title: "first", UpdatedAt: day(2)}},
		comments: map[int64][]models.Comment{
			1: {resolvedComment("https://example.test/c1", "adopt it")},
		},
	}
	dest := newFakeDest()
	eng := testEngine(t, src, dest)

	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || report.Updated != 0 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if dest.createCalls != 1 {
		t.Errorf("create calls = %d, want 1", dest.createCalls)
	}

	rec, err := eng.store.GetRecord(1)
	if err != nil {
		t.Fatal(err)
	}
	if rec == nil {
		t.Fatal("no tracking record persisted")
	}
	if rec.DestNumber != 1001 {
		t.Errorf("dest number = %d", rec.DestNumber)
	}
	if report.Cursor != day(2).Format(time.RFC3339) {
		t.Errorf("cursor = %q", report.Cursor)
	}
}

func TestRun_IdempotentRerunMakesNoCalls(t *testing.T) {
	src := &fakeSource{
		items: []models.SourceItem{{Number: 1, Title: "first", UpdatedAt: day(2)}},
		comments: map[int64][]models.Comment{
			1: {resolvedComment("https://example.test/c1", "adopt it")},
		},
	}
	dest := newFakeDest()
	eng := testEngine(t, src, dest)

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := dest.apiCalls()

	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dest.apiCalls() != callsAfterFirst {
		t.Errorf("second run made %d extra destination calls", dest.apiCalls()-callsAfterFirst)
	}
	if report.Created != 0 || report.Updated != 0 {
		t.Errorf("report = %+v", report)
	}
}

func TestRun_MixedNewChangedUnchanged(t *testing.T) {
	// Seed: items B and C already synced.
	src := &fakeSource{
		items: []models.SourceItem{
			{Number: 2, Title: "item b", UpdatedAt: day(2)},
			{Number: 3, Title: "item c", UpdatedAt: day(2)},
		},
		comments: map[int64][]models.Comment{
			2: {resolvedComment("https://example.test/b1", "keep b")},
			3: {resolvedComment("https://example.test/c1", "keep c")},
		},
	}
	dest := newFakeDest()
	eng := testEngine(t, src, dest)
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// A is new, B unchanged, C gained a resolution.
	src.items = []models.SourceItem{
		{Number: 1, Title: "item a", UpdatedAt: day(3)},
		{Number: 2, Title: "item b", UpdatedAt: day(3)},
		{Number: 3, Title: "item c", UpdatedAt: day(3)},
	}
	src.comments[1] = []models.Comment{resolvedComment("https://example.test/a1", "adopt a")}
	src.comments[3] = append(src.comments[3], resolvedComment("https://example.test/c2", "amend c"))

	createsBefore := dest.createCalls
	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || report.Updated != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if dest.createCalls != createsBefore+1 {
		t.Errorf("create calls = %d, want %d", dest.createCalls, createsBefore+1)
	}
	if dest.commentCalls != 1 {
		t.Errorf("comment calls = %d, want 1", dest.commentCalls)
	}

	// The update comment covers only the new resolution.
	recC, err := eng.store.GetRecord(3)
	if err != nil {
		t.Fatal(err)
	}
	bodies := dest.issues[recC.DestNumber]
	if len(bodies) != 2 {
		t.Fatalf("dest issue for c has %d bodies, want issue + 1 comment", len(bodies))
	}
	if !strings.Contains(bodies[1], "amend c") || strings.Contains(bodies[1], "keep c") {
		t.Errorf("update comment = %q", bodies[1])
	}
}

func TestRun_CreateFailurePinsCursorAndRecovers(t *testing.T) {
	src := &fakeSource{
		items: []models.SourceItem{
			{Number: 1, Title: "good early", UpdatedAt: day(2)},
			{Number: 2, Title: "bad", UpdatedAt: day(3)},
			{Number: 3, Title: "good late", UpdatedAt: day(4)},
		},
		comments: map[int64][]models.Comment{
			1: {resolvedComment("https://example.test/c1", "r1")},
			2: {resolvedComment("https://example.test/c2", "r2")},
			3: {resolvedComment("https://example.test/c3", "r3")},
		},
	}
	dest := newFakeDest()
	dest.createFail["bad"] = errors.New("boom")
	eng := testEngine(t, src, dest)

	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 2 || report.Failed != 1 {
		t.Fatalf("report = %+v", report)
	}

	// The failed item left no record, the others are unaffected.
	if rec, _ := eng.store.GetRecord(2); rec != nil {
		t.Errorf("failed item has a record: %+v", rec)
	}
	for _, n := range []int64{1, 3} {
		if rec, _ := eng.store.GetRecord(n); rec == nil {
			t.Errorf("item %d missing its record", n)
		}
	}

	// Cursor stops at the last fully-processed prefix.
	if report.Cursor != day(2).Format(time.RFC3339) {
		t.Errorf("cursor = %q, want pinned at %s", report.Cursor, day(2).Format(time.RFC3339))
	}

	// Next run re-fetches from the pinned cursor and heals.
	delete(dest.createFail, "bad")
	report, err = eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || report.Failed != 0 {
		t.Fatalf("recovery report = %+v", report)
	}
	if report.Skipped != 2 {
		t.Errorf("recovery skipped = %d, want 2", report.Skipped)
	}
	if rec, _ := eng.store.GetRecord(2); rec == nil {
		t.Error("recovered item still has no record")
	}
	if report.Cursor != day(4).Format(time.RFC3339) {
		t.Errorf("recovered cursor = %q", report.Cursor)
	}
}

func TestRun_AuthErrorAbortsRun(t *testing.T) {
	src := &fakeSource{
		items: []models.SourceItem{
			{Number: 1, Title: "ok", UpdatedAt: day(2)},
			{Number: 2, Title: "denied", UpdatedAt: day(3)},
			{Number: 3, Title: "never reached", UpdatedAt: day(4)},
		},
		comments: map[int64][]models.Comment{
			1: {resolvedComment("https://example.test/c1", "r1")},
			2: {resolvedComment("https://example.test/c2", "r2")},
			3: {resolvedComment("https://example.test/c3", "r3")},
		},
	}
	dest := newFakeDest()
	dest.createFail["denied"] = fmt.Errorf("create: %w", apperr.ErrUnauthorized)
	eng := testEngine(t, src, dest)

	report, err := eng.Run(context.Background())
	if !errors.Is(err, apperr.ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	if report.Created != 1 {
		t.Errorf("report = %+v", report)
	}
	if rec, _ := eng.store.GetRecord(3); rec != nil {
		t.Error("run continued past the auth error")
	}
	// Cursor covers the successfully processed prefix.
	if report.Cursor != day(2).Format(time.RFC3339) {
		t.Errorf("cursor = %q", report.Cursor)
	}
}

func TestRun_RefilesWhenTrackingIssueDeleted(t *testing.T) {
	src := &fakeSource{
		items: []models.SourceItem{{Number: 1, Title: "tracked", UpdatedAt: day(2)}},
		comments: map[int64][]models.Comment{
			1: {resolvedComment("https://example.test/c1", "r1")},
		},
	}
	dest := newFakeDest()
	eng := testEngine(t, src, dest)
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	before, _ := eng.store.GetRecord(1)
	delete(dest.issues, before.DestNumber)

	// New resolution arrives; the old tracking issue is gone.
	src.items[0].UpdatedAt = day(3)
	src.comments[1] = append(src.comments[1], resolvedComment("https://example.test/c2", "r2"))

	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if report.Created != 1 || report.Updated != 0 {
		t.Fatalf("report = %+v", report)
	}

	after, _ := eng.store.GetRecord(1)
	if after.DestNumber == before.DestNumber {
		t.Error("record still points at the deleted issue")
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("refile reset created_at: %v vs %v", after.CreatedAt, before.CreatedAt)
	}
}

func TestRun_ItemsWithoutResolutionsIgnored(t *testing.T) {
	src := &fakeSource{
		items: []models.SourceItem{{Number: 1, Title: "chatter only", UpdatedAt: day(2)}},
		comments: map[int64][]models.Comment{
			1: {{URL: "https://example.test/c1", CreatedAt: day(1), Body: "no decisions here"}},
		},
	}
	dest := newFakeDest()
	eng := testEngine(t, src, dest)

	report, err := eng.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if dest.apiCalls() != 0 {
		t.Errorf("destination calls = %d, want 0", dest.apiCalls())
	}
	if report.Created+report.Updated+report.Skipped+report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	// Resolution-free items still advance the cursor.
	if report.Cursor != day(2).Format(time.RFC3339) {
		t.Errorf("cursor = %q", report.Cursor)
	}
}

func TestRun_MirrorsConfiguredLabels(t *testing.T) {
	src := &fakeSource{
		items: []models.SourceItem{{
			Number:    1,
			Title:     "labelled",
			UpdatedAt: day(2),
			Labels: []models.Label{
				{Name: "css-grid-2", Color: "88ff88"},
				{Name: "tracker", Color: "ededed"},
				{Name: "priority", Color: "ff0000"},
			},
		}},
		comments: map[int64][]models.Comment{
			1: {resolvedComment("https://example.test/c1", "r1")},
		},
	}
	dest := newFakeDest()
	eng := testEngine(t, src, dest)
	eng.opts.RepoConfig = &repocfg.RepoConfig{
		Labels: &repocfg.LabelRules{Color: "88ff88", Prefixes: []string{"priority"}},
	}

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	if _, ok := dest.labels["[spec] css-grid-2"]; !ok {
		t.Errorf("color-matched label not mirrored: %v", dest.labels)
	}
	if _, ok := dest.labels["[spec] priority"]; !ok {
		t.Errorf("prefix-matched label not mirrored: %v", dest.labels)
	}
	if _, ok := dest.labels["[spec] tracker"]; ok {
		t.Errorf("unselected label mirrored: %v", dest.labels)
	}
}
