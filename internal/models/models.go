// Package models defines the domain types for Ansuz.
package models

import "time"

// SourceItem is a resolution-bearing issue in the source repository.
// Produced by the source API; read-only to the sync engine.
type SourceItem struct {
	Number    int64     `json:"number"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Labels    []Label   `json:"labels,omitempty"`
}

// Label is an issue label in either repository.
type Label struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Comment is a single comment on a source issue. The URL is its stable
// identity across runs.
type Comment struct {
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
	Body      string    `json:"body"`
}

// IssueRef identifies an issue created in the destination repository.
type IssueRef struct {
	Number  int64  `json:"number"`
	HTMLURL string `json:"html_url"`
}

// TrackingRecord links a source issue to its destination tracking issue.
// Exactly one record exists per synced source number.
type TrackingRecord struct {
	SourceNumber int64     `json:"source_number"`
	DestNumber   int64     `json:"dest_number"`
	Fingerprint  string    `json:"fingerprint"`
	Title        string    `json:"title"`
	Resolutions  string    `json:"resolutions"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
