// Package repocfg loads the per-repository sync configuration that the
// destination repository publishes in its default branch.
package repocfg

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// FileName is the config file looked up in the destination repository.
const FileName = ".ansuz.yaml"

// RepoConfig selects which source labels are mirrored onto tracking issues.
type RepoConfig struct {
	Labels     *LabelRules       `yaml:"labels"`
	Components map[string]string `yaml:"components"`
}

// LabelRules describes which source labels to mirror: those with an exact
// color match, or those whose name starts with one of the prefixes.
type LabelRules struct {
	Color    string   `yaml:"color"`
	Prefixes []string `yaml:"prefixes"`
}

// Parse decodes a RepoConfig from YAML.
func Parse(data []byte) (*RepoConfig, error) {
	var rc RepoConfig
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return nil, fmt.Errorf("repocfg: parse: %w", err)
	}
	return &rc, nil
}

// Fetcher fetches a file from a repository's default branch.
type Fetcher interface {
	RawFile(ctx context.Context, path string) ([]byte, error)
}

// Fetch loads the repository config via f. A missing config file is not an
// error: label mirroring is simply disabled.
func Fetch(ctx context.Context, f Fetcher) (*RepoConfig, error) {
	data, err := f.RawFile(ctx, FileName)
	if errors.Is(err, apperr.ErrNotFound) {
		return &RepoConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// MirrorLabels returns the subset of source labels that the rules select.
func (rc *RepoConfig) MirrorLabels(labels []models.Label) []models.Label {
	if rc == nil || rc.Labels == nil {
		return nil
	}
	var out []models.Label
	for _, l := range labels {
		if rc.Labels.Color != "" && l.Color == rc.Labels.Color {
			out = append(out, l)
			continue
		}
		for _, prefix := range rc.Labels.Prefixes {
			if strings.HasPrefix(l.Name, prefix) {
				out = append(out, l)
				break
			}
		}
	}
	return out
}
