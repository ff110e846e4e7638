package internal

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

var (
	repoRe = regexp.MustCompile(`^[^/]+/[^/]+$`)
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Source SourceConfig      `yaml:"source"`
	Dest   DestConfig        `yaml:"dest"`
	GitHub GitHubConfig      `yaml:"github"`
	State  StateConfig       `yaml:"state"`
	Sync   SyncConfig        `yaml:"sync"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	if err := c.Dest.Validate(); err != nil {
		return err
	}
	if err := c.GitHub.Validate(); err != nil {
		return err
	}
	if err := c.State.Validate(); err != nil {
		return err
	}
	if err := c.Sync.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds the status HTTP server configuration (serve mode).
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SourceConfig identifies the repository resolutions are read from.
type SourceConfig struct {
	Repo string `yaml:"repo"`
	// Label, when set, restricts polling to issues carrying it.
	Label string `yaml:"label"`
}

// Validate validates the source configuration.
func (c *SourceConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Repo, validation.Required, validation.Match(repoRe).Error("must have 'owner/name' syntax")),
	)
}

// DestConfig identifies the repository tracking issues are filed in.
type DestConfig struct {
	Repo string `yaml:"repo"`
}

// Validate validates the destination configuration.
func (c *DestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Repo, validation.Required, validation.Match(repoRe).Error("must have 'owner/name' syntax")),
	)
}

// GitHubConfig holds API credentials and transport settings.
type GitHubConfig struct {
	Token          string `yaml:"token"`
	APIURL         string `yaml:"api_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the per-call HTTP timeout.
func (c *GitHubConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Validate validates the GitHub configuration.
func (c *GitHubConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.TimeoutSeconds, validation.Min(1), validation.Max(600)),
	)
}

// StateConfig holds the persisted state locations.
type StateConfig struct {
	Path     string `yaml:"path"`
	LockPath string `yaml:"lock_path"`
}

// Validate validates the state configuration.
func (c *StateConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.LockPath, validation.Required),
	)
}

// SyncConfig holds the tunable sync settings.
type SyncConfig struct {
	// StartDate (YYYY-MM-DD) seeds the cursor on the very first run.
	StartDate string `yaml:"start_date"`
	// IntervalMinutes is the pause between runs in serve mode.
	IntervalMinutes int `yaml:"interval_minutes"`
	// ResolutionPrefix marks resolution lines in source comments.
	ResolutionPrefix string `yaml:"resolution_prefix"`
	// LabelPrefix is prepended to mirrored label names.
	LabelPrefix string `yaml:"label_prefix"`
}

// Interval returns the pause between serve-mode runs.
func (c *SyncConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// Validate validates the sync configuration.
func (c *SyncConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StartDate, validation.Required, validation.Match(dateRe).Error("must have 'YYYY-MM-DD' syntax")),
		validation.Field(&c.IntervalMinutes, validation.Min(1), validation.Max(24*60)),
	)
}

// AuthConfig holds status-API authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
// Source/dest repos, the GitHub token, and the start date have no defaults
// and must come from the config file.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		GitHub: GitHubConfig{
			APIURL:         "https://api.github.com",
			TimeoutSeconds: 30,
		},
		State: StateConfig{
			Path:     "./ansuz.db",
			LockPath: "./ansuz.lock",
		},
		Sync: SyncConfig{
			IntervalMinutes:  15,
			ResolutionPrefix: "RESOLVED: ",
			LabelPrefix:      "[spec] ",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
