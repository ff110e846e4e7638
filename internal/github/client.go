// Package github is a minimal GitHub REST v3 client covering the operations
// the sync engine needs: listing updated issues and comments on the source
// repository, and creating issues, comments, and labels on the destination.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

const (
	defaultBaseURL    = "https://api.github.com"
	defaultRawBaseURL = "https://raw.githubusercontent.com"
	perPage           = 100
)

var repoRe = regexp.MustCompile(`^([^/]+)/([^/]+)$`)

// Repo identifies a GitHub repository.
type Repo struct {
	Owner string
	Name  string
}

// ParseRepo parses an "owner/name" string.
func ParseRepo(s string) (Repo, error) {
	m := repoRe.FindStringSubmatch(s)
	if m == nil {
		return Repo{}, fmt.Errorf("github: repo must have 'owner/name' syntax: %q", s)
	}
	return Repo{Owner: m[1], Name: m[2]}, nil
}

func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// URL returns the repository's web URL.
func (r Repo) URL() string {
	return "https://github.com/" + r.String()
}

// Client is an authenticated GitHub API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	rawBaseURL string
	token      string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL (used in tests).
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithRawBaseURL overrides the raw content base URL (used in tests).
func WithRawBaseURL(u string) ClientOption {
	return func(c *Client) { c.rawBaseURL = u }
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client authenticated with the given token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		rawBaseURL: defaultRawBaseURL,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wire types

type wireLabel struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type wireIssue struct {
	Number      int64       `json:"number"`
	Title       string      `json:"title"`
	HTMLURL     string      `json:"html_url"`
	UpdatedAt   time.Time   `json:"updated_at"`
	Labels      []wireLabel `json:"labels"`
	PullRequest *struct{}   `json:"pull_request,omitempty"`
}

type wireComment struct {
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	Body      string    `json:"body"`
}

// ListUpdatedIssues returns issues in repo updated at or after since, sorted
// by update time ascending. Pull requests are excluded. label, when
// non-empty, restricts results to issues carrying that label.
func (c *Client) ListUpdatedIssues(ctx context.Context, repo Repo, since, label string) ([]models.SourceItem, error) {
	var out []models.SourceItem
	for page := 1; ; page++ {
		q := url.Values{
			"state":     {"all"},
			"sort":      {"updated"},
			"direction": {"asc"},
			"per_page":  {strconv.Itoa(perPage)},
			"page":      {strconv.Itoa(page)},
		}
		if since != "" {
			q.Set("since", since)
		}
		if label != "" {
			q.Set("labels", label)
		}

		var issues []wireIssue
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/issues", repo), q, nil, &issues); err != nil {
			return nil, err
		}

		for _, is := range issues {
			if is.PullRequest != nil {
				continue
			}
			item := models.SourceItem{
				Number:    is.Number,
				Title:     is.Title,
				UpdatedAt: is.UpdatedAt,
			}
			for _, l := range is.Labels {
				item.Labels = append(item.Labels, models.Label{Name: l.Name, Color: l.Color})
			}
			out = append(out, item)
		}

		if len(issues) < perPage {
			return out, nil
		}
	}
}

// ListComments returns the comments on an issue created at or after since
// (all comments when since is empty), oldest first.
func (c *Client) ListComments(ctx context.Context, repo Repo, number int64, since string) ([]models.Comment, error) {
	var out []models.Comment
	for page := 1; ; page++ {
		q := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		if since != "" {
			q.Set("since", since)
		}

		var comments []wireComment
		path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
		if err := c.do(ctx, http.MethodGet, path, q, nil, &comments); err != nil {
			return nil, err
		}

		for _, cm := range comments {
			out = append(out, models.Comment{URL: cm.HTMLURL, CreatedAt: cm.CreatedAt, Body: cm.Body})
		}

		if len(comments) < perPage {
			return out, nil
		}
	}
}

// CreateIssue files an issue and returns its reference.
func (c *Client) CreateIssue(ctx context.Context, repo Repo, title, body string, labels []string) (models.IssueRef, error) {
	req := map[string]any{"title": title, "body": body}
	if len(labels) > 0 {
		req["labels"] = labels
	}
	var is wireIssue
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/issues", repo), nil, req, &is); err != nil {
		return models.IssueRef{}, err
	}
	return models.IssueRef{Number: is.Number, HTMLURL: is.HTMLURL}, nil
}

// CreateComment posts a comment on an existing issue.
func (c *Client) CreateComment(ctx context.Context, repo Repo, number int64, body string) error {
	path := fmt.Sprintf("/repos/%s/issues/%d/comments", repo, number)
	return c.do(ctx, http.MethodPost, path, nil, map[string]any{"body": body}, nil)
}

// GetIssue fetches a single issue. A missing issue yields apperr.ErrNotFound.
func (c *Client) GetIssue(ctx context.Context, repo Repo, number int64) (models.IssueRef, error) {
	var is wireIssue
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/issues/%d", repo, number), nil, nil, &is); err != nil {
		return models.IssueRef{}, err
	}
	return models.IssueRef{Number: is.Number, HTMLURL: is.HTMLURL}, nil
}

// ListLabels returns every label defined in repo.
func (c *Client) ListLabels(ctx context.Context, repo Repo) ([]models.Label, error) {
	var out []models.Label
	for page := 1; ; page++ {
		q := url.Values{
			"per_page": {strconv.Itoa(perPage)},
			"page":     {strconv.Itoa(page)},
		}
		var labels []wireLabel
		if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/labels", repo), q, nil, &labels); err != nil {
			return nil, err
		}
		for _, l := range labels {
			out = append(out, models.Label{Name: l.Name, Color: l.Color})
		}
		if len(labels) < perPage {
			return out, nil
		}
	}
}

// CreateLabel creates a label in repo.
func (c *Client) CreateLabel(ctx context.Context, repo Repo, name, color string) error {
	req := map[string]any{"name": name, "color": color}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/labels", repo), nil, req, nil)
}

// RawFile fetches a file from the repository's default branch via
// raw.githubusercontent.com. A missing file yields apperr.ErrNotFound.
func (c *Client) RawFile(ctx context.Context, repo Repo, path string) ([]byte, error) {
	u := fmt.Sprintf("%s/%s/HEAD/%s", c.rawBaseURL, repo, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("github: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: raw fetch %s: %w", path, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return nil, fmt.Errorf("github: raw fetch %s: %w", path, err)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("github: read raw body: %w", err)
	}
	return data, nil
}

// do performs an API request with auth and JSON encoding/decoding.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("github: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("github: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return fmt.Errorf("github: %s %s: %w", method, path, err)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("github: decode response: %w", err)
	}
	return nil
}

// statusError maps an HTTP response status to a sentinel error. Rate-limit
// exhaustion surfaces as 403 with X-RateLimit-Remaining: 0 (or 429); any
// other 401/403 means missing or insufficient credentials and is fatal to
// the caller.
func statusError(resp *http.Response) error {
	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		if resp.Header.Get("X-RateLimit-Remaining") == "0" {
			return apperr.ErrRateLimited
		}
		return apperr.ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return apperr.ErrRateLimited
	case resp.StatusCode == http.StatusNotFound:
		return apperr.ErrNotFound
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}
