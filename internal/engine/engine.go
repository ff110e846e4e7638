// Package engine implements the resolution sync: it compares resolution
// comments on source issues against the persisted tracking records and files
// or updates destination issues for the difference.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/checksum"
	"github.com/starford/ansuz/internal/models"
	"github.com/starford/ansuz/internal/repocfg"
	"github.com/starford/ansuz/internal/resolution"
	"github.com/starford/ansuz/internal/state"
)

// Source is the read-only view of the repository resolutions come from.
type Source interface {
	// UpdatedItems returns issues updated at or after since, oldest first.
	UpdatedItems(ctx context.Context, since string) ([]models.SourceItem, error)
	// Comments returns an issue's comments (all of them when since is empty).
	Comments(ctx context.Context, number int64, since string) ([]models.Comment, error)
}

// Destination is the repository tracking issues are filed in.
type Destination interface {
	CreateIssue(ctx context.Context, title, body string, labels []string) (models.IssueRef, error)
	CreateComment(ctx context.Context, number int64, body string) error
	IssueExists(ctx context.Context, number int64) (bool, error)
	EnsureLabel(ctx context.Context, name, color string) error
}

// Options are the tunable sync settings.
type Options struct {
	// StartDate (YYYY-MM-DD) seeds the cursor on the very first run.
	StartDate string
	// ResolutionPrefix marks resolution lines in comments.
	ResolutionPrefix string
	// LabelPrefix is prepended to mirrored label names.
	LabelPrefix string
	// RepoConfig selects which source labels are mirrored (may be nil).
	RepoConfig *repocfg.RepoConfig
	// Composer renders issue bodies and update comments.
	Composer resolution.Composer
}

// Report summarises one engine run.
type Report struct {
	Created    int       `json:"created"`
	Updated    int       `json:"updated"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Cursor     string    `json:"cursor"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Engine runs the sync. It is single-threaded and batch-run-to-completion;
// callers serialise runs (the lockfile guards across processes).
type Engine struct {
	store  state.Store
	source Source
	dest   Destination
	opts   Options
	logger *slog.Logger

	now func() time.Time
}

// New creates an engine with explicit collaborators.
func New(store state.Store, source Source, dest Destination, opts Options, logger *slog.Logger) *Engine {
	if opts.ResolutionPrefix == "" {
		opts.ResolutionPrefix = resolution.DefaultPrefix
	}
	return &Engine{
		store:  store,
		source: source,
		dest:   dest,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeCreated
	outcomeUpdated
	outcomeSkipped
)

// Run performs one sync pass. Each item succeeds or fails independently; a
// failed item pins the cursor so it is re-fetched next run. Authentication
// errors abort the run after persisting the cursor reached so far.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: e.now()}

	since, err := e.store.Cursor()
	if err != nil {
		return nil, err
	}
	if since == "" {
		since = e.opts.StartDate + "T00:00:00Z"
	}

	items, err := e.source.UpdatedItems(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("fetch updated items: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.Before(items[j].UpdatedAt)
	})

	watermark := since
	advance := true
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			break
		}

		oc, err := e.syncItem(ctx, item)
		if err != nil {
			if errors.Is(err, apperr.ErrUnauthorized) {
				e.saveCursor(watermark, report)
				return report, fmt.Errorf("sync issue #%d: %w", item.Number, err)
			}
			report.Failed++
			advance = false
			e.logger.Warn("sync: item failed",
				slog.Int64("number", item.Number),
				slog.String("error", err.Error()))
			continue
		}

		switch oc {
		case outcomeCreated:
			report.Created++
		case outcomeUpdated:
			report.Updated++
		case outcomeSkipped:
			report.Skipped++
		}

		if advance && item.UpdatedAt.After(parseTime(watermark)) {
			watermark = item.UpdatedAt.UTC().Format(time.RFC3339)
		}
	}

	e.saveCursor(watermark, report)
	report.FinishedAt = e.now()
	return report, nil
}

// syncItem brings one source issue in sync with its tracking record.
// No state is written until the destination API call has succeeded.
func (e *Engine) syncItem(ctx context.Context, item models.SourceItem) (outcome, error) {
	comments, err := e.source.Comments(ctx, item.Number, "")
	if err != nil {
		return outcomeNone, fmt.Errorf("fetch comments: %w", err)
	}

	crs := resolution.FromComments(comments, e.opts.ResolutionPrefix)
	if len(crs) == 0 {
		return outcomeNone, nil
	}

	all := resolution.Flatten(crs)
	fp := checksum.Fingerprint(item.Title, all)

	rec, err := e.store.GetRecord(item.Number)
	if err != nil {
		return outcomeNone, err
	}
	if rec != nil && rec.Fingerprint == fp {
		return outcomeSkipped, nil
	}

	if rec != nil {
		exists, err := e.dest.IssueExists(ctx, rec.DestNumber)
		if err != nil {
			return outcomeNone, fmt.Errorf("check tracking issue #%d: %w", rec.DestNumber, err)
		}
		if exists {
			return e.updateTracked(ctx, item, rec, crs, all, fp)
		}
		// The tracking issue was deleted out-of-band. Self-heal by filing a
		// fresh one; a duplicate is safer than a dangling record.
		e.logger.Warn("sync: tracking issue missing, refiling",
			slog.Int64("source", item.Number),
			slog.Int64("dest", rec.DestNumber))
	}

	return e.createTracking(ctx, item, rec, crs, all, fp)
}

// createTracking files a new destination issue and records the mapping.
// prev, when non-nil, is an existing record being replaced (self-heal path).
func (e *Engine) createTracking(ctx context.Context, item models.SourceItem, prev *models.TrackingRecord, crs []resolution.CommentResolutions, all []string, fp string) (outcome, error) {
	labels, err := e.mirrorLabels(ctx, item)
	if err != nil {
		return outcomeNone, err
	}

	body := e.opts.Composer.IssueBody(item.Number, item.Title, crs)
	ref, err := e.dest.CreateIssue(ctx, item.Title, body, labels)
	if err != nil {
		return outcomeNone, fmt.Errorf("create tracking issue: %w", err)
	}

	now := e.now().UTC()
	rec := models.TrackingRecord{
		SourceNumber: item.Number,
		DestNumber:   ref.Number,
		Fingerprint:  fp,
		Title:        item.Title,
		Resolutions:  strings.Join(all, "\n"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if prev != nil {
		rec.CreatedAt = prev.CreatedAt
	}
	if err := e.store.RecordSync(rec, commentURLs(crs)); err != nil {
		return outcomeNone, err
	}

	e.logger.Info("sync: filed tracking issue",
		slog.Int64("source", item.Number),
		slog.Int64("dest", ref.Number),
		slog.Int("resolutions", len(all)))
	return outcomeCreated, nil
}

// updateTracked posts an update comment on the existing tracking issue and
// re-fingerprints the record.
func (e *Engine) updateTracked(ctx context.Context, item models.SourceItem, rec *models.TrackingRecord, crs []resolution.CommentResolutions, all []string, fp string) (outcome, error) {
	// Prefer the comments not seen before; when the change came from an
	// edit (no new comments), restate the full current set.
	fresh, err := e.unhandled(crs)
	if err != nil {
		return outcomeNone, err
	}
	if len(fresh) == 0 {
		fresh = crs
	}

	body := e.opts.Composer.UpdateBody(item.Number, fresh)
	if err := e.dest.CreateComment(ctx, rec.DestNumber, body); err != nil {
		return outcomeNone, fmt.Errorf("update tracking issue #%d: %w", rec.DestNumber, err)
	}

	updated := *rec
	updated.Fingerprint = fp
	updated.Title = item.Title
	updated.Resolutions = strings.Join(all, "\n")
	updated.UpdatedAt = e.now().UTC()
	if err := e.store.RecordSync(updated, commentURLs(crs)); err != nil {
		return outcomeNone, err
	}

	e.logger.Info("sync: updated tracking issue",
		slog.Int64("source", item.Number),
		slog.Int64("dest", rec.DestNumber))
	return outcomeUpdated, nil
}

// mirrorLabels ensures the mirrored labels exist in the destination repo and
// returns their prefixed names.
func (e *Engine) mirrorLabels(ctx context.Context, item models.SourceItem) ([]string, error) {
	mirrored := e.opts.RepoConfig.MirrorLabels(item.Labels)
	var names []string
	for _, l := range mirrored {
		name := e.opts.LabelPrefix + l.Name
		if err := e.dest.EnsureLabel(ctx, name, l.Color); err != nil {
			return nil, fmt.Errorf("ensure label %q: %w", name, err)
		}
		names = append(names, name)
	}
	return names, nil
}

// unhandled filters out comments that already produced a sync.
func (e *Engine) unhandled(crs []resolution.CommentResolutions) ([]resolution.CommentResolutions, error) {
	var out []resolution.CommentResolutions
	for _, cr := range crs {
		handled, err := e.store.CommentHandled(cr.URL)
		if err != nil {
			return nil, err
		}
		if !handled {
			out = append(out, cr)
		}
	}
	return out, nil
}

func (e *Engine) saveCursor(watermark string, report *Report) {
	report.Cursor = watermark
	if err := e.store.SetCursor(watermark); err != nil {
		e.logger.Error("sync: save cursor failed", slog.String("error", err.Error()))
	}
}

func commentURLs(crs []resolution.CommentResolutions) []string {
	out := make([]string, 0, len(crs))
	for _, cr := range crs {
		out = append(out, cr.URL)
	}
	return out
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
