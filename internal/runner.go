package internal

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/starford/ansuz/internal/engine"
	"github.com/starford/ansuz/internal/github"
	"github.com/starford/ansuz/internal/repocfg"
	"github.com/starford/ansuz/internal/resolution"
	"github.com/starford/ansuz/internal/state"
)

// runner builds a fresh engine per run from the current configuration, so a
// hot-reloaded config takes effect on the next pass without restarting.
type runner struct {
	store  state.Store
	cfg    *atomic.Pointer[Config]
	logger *slog.Logger
}

func newRunner(store state.Store, cfg *Config, logger *slog.Logger) *runner {
	r := &runner{store: store, cfg: &atomic.Pointer[Config]{}, logger: logger}
	r.cfg.Store(cfg)
	return r
}

// swapConfig installs a new configuration for subsequent runs.
func (r *runner) swapConfig(cfg *Config) {
	r.cfg.Store(cfg)
}

// Run performs one sync pass.
func (r *runner) Run(ctx context.Context) (*engine.Report, error) {
	cfg := r.cfg.Load()

	srcRepo, err := github.ParseRepo(cfg.Source.Repo)
	if err != nil {
		return nil, err
	}
	destRepo, err := github.ParseRepo(cfg.Dest.Repo)
	if err != nil {
		return nil, err
	}

	client := github.NewClient(cfg.GitHub.Token,
		github.WithBaseURL(cfg.GitHub.APIURL),
		github.WithTimeout(cfg.GitHub.Timeout()),
	)
	source := github.NewSource(client, srcRepo, cfg.Source.Label)
	dest := github.NewDestination(client, destRepo)

	// The destination repo publishes which labels to mirror; a fetch
	// failure only disables mirroring for this run.
	rc, err := repocfg.Fetch(ctx, dest)
	if err != nil {
		r.logger.Warn("repo config fetch failed", slog.String("error", err.Error()))
		rc = &repocfg.RepoConfig{}
	}

	eng := engine.New(r.store, source, dest, engine.Options{
		StartDate:        cfg.Sync.StartDate,
		ResolutionPrefix: cfg.Sync.ResolutionPrefix,
		LabelPrefix:      cfg.Sync.LabelPrefix,
		RepoConfig:       rc,
		Composer: resolution.Composer{
			RepoName: srcRepo.Name,
			RepoURL:  srcRepo.URL(),
		},
	}, r.logger)

	return eng.Run(ctx)
}
