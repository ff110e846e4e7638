package github

import (
	"context"
	"errors"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// Source binds a client to the repository the engine reads resolutions from.
type Source struct {
	client *Client
	repo   Repo
	label  string
}

// NewSource creates a source adapter. label, when non-empty, restricts the
// issues fetched to those carrying it.
func NewSource(client *Client, repo Repo, label string) *Source {
	return &Source{client: client, repo: repo, label: label}
}

// UpdatedItems returns source issues updated at or after since, oldest first.
func (s *Source) UpdatedItems(ctx context.Context, since string) ([]models.SourceItem, error) {
	return s.client.ListUpdatedIssues(ctx, s.repo, since, s.label)
}

// Comments returns the comments on a source issue.
func (s *Source) Comments(ctx context.Context, number int64, since string) ([]models.Comment, error) {
	return s.client.ListComments(ctx, s.repo, number, since)
}

// Destination binds a client to the repository tracking issues are filed in.
// Known labels are cached after the first EnsureLabel call, mirroring the
// engine's single-threaded batch model (no locking).
type Destination struct {
	client *Client
	repo   Repo

	knownLabels map[string]struct{}
}

// NewDestination creates a destination adapter.
func NewDestination(client *Client, repo Repo) *Destination {
	return &Destination{client: client, repo: repo}
}

// CreateIssue files a tracking issue and returns its reference.
func (d *Destination) CreateIssue(ctx context.Context, title, body string, labels []string) (models.IssueRef, error) {
	return d.client.CreateIssue(ctx, d.repo, title, body, labels)
}

// CreateComment posts an update comment on an existing tracking issue.
func (d *Destination) CreateComment(ctx context.Context, number int64, body string) error {
	return d.client.CreateComment(ctx, d.repo, number, body)
}

// IssueExists reports whether the tracking issue is still present.
func (d *Destination) IssueExists(ctx context.Context, number int64) (bool, error) {
	_, err := d.client.GetIssue(ctx, d.repo, number)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// RawFile fetches a file from the destination repository's default branch.
func (d *Destination) RawFile(ctx context.Context, path string) ([]byte, error) {
	return d.client.RawFile(ctx, d.repo, path)
}

// EnsureLabel creates the label in the destination repository unless it
// already exists there.
func (d *Destination) EnsureLabel(ctx context.Context, name, color string) error {
	if d.knownLabels == nil {
		labels, err := d.client.ListLabels(ctx, d.repo)
		if err != nil {
			return err
		}
		d.knownLabels = make(map[string]struct{}, len(labels))
		for _, l := range labels {
			d.knownLabels[l.Name] = struct{}{}
		}
	}
	if _, ok := d.knownLabels[name]; ok {
		return nil
	}
	if err := d.client.CreateLabel(ctx, d.repo, name, color); err != nil {
		return err
	}
	d.knownLabels[name] = struct{}{}
	return nil
}
