package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/robfig/cron/v3"

	"github.com/starford/sowilo/internal/editor"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Storage StorageConfig     `yaml:"storage"`
	SQLite  SQLiteConfig      `yaml:"sqlite"`
	Editor  EditorConfig      `yaml:"editor"`
	Inbox   InboxConfig       `yaml:"inbox"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Editor.Validate(); err != nil {
		return err
	}
	if err := c.Inbox.Validate(); err != nil {
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

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
	// SSEThrottle is the minimum gap between document.changed events of
	// one design.
	SSEThrottle time.Duration `yaml:"sse_throttle"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.SSEThrottle, validation.Min(time.Duration(0))),
	)
}

// StorageConfig holds the local key-value store for drafts and
// pending-change backups.
type StorageConfig struct {
	DraftsDir  string `yaml:"drafts_dir"`
	QuotaBytes int64  `yaml:"quota_bytes"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DraftsDir, validation.Required),
		validation.Field(&c.QuotaBytes, validation.Min(int64(0))),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EditorConfig holds the timings of the editing layers.
type EditorConfig struct {
	PendingDebounce  time.Duration `yaml:"pending_debounce"`
	QueueDebounce    time.Duration `yaml:"queue_debounce"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBase        time.Duration `yaml:"retry_base"`
	RetryMax         time.Duration `yaml:"retry_max"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	DraftTTL         time.Duration `yaml:"draft_ttl"`
	HistoryDepth     int           `yaml:"history_depth"`
	SanitizeImport   bool          `yaml:"sanitize_import"`
	// SweepSchedule is a cron spec for removing expired drafts.
	SweepSchedule string `yaml:"sweep_schedule"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.PendingDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.QueueDebounce, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxRetries, validation.Min(0)),
		validation.Field(&c.RetryBase, validation.Min(time.Duration(0))),
		validation.Field(&c.RetryMax, validation.Min(c.RetryBase)),
		validation.Field(&c.AutosaveInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.DraftTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.HistoryDepth, validation.Min(0)),
		validation.Field(&c.SweepSchedule, validation.By(validSchedule)),
	)
}

func validSchedule(value interface{}) error {
	spec, _ := value.(string)
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron spec: %w", err)
	}
	return nil
}

// ToEditor converts the section to the editor's layer timings.
func (c *EditorConfig) ToEditor() editor.Config {
	return editor.Config{
		PendingDebounce:  c.PendingDebounce,
		QueueDebounce:    c.QueueDebounce,
		MaxRetries:       c.MaxRetries,
		RetryBase:        c.RetryBase,
		RetryMax:         c.RetryMax,
		AutosaveInterval: c.AutosaveInterval,
		DraftTTL:         c.DraftTTL,
		HistoryDepth:     c.HistoryDepth,
		SanitizeImport:   c.SanitizeImport,
	}
}

// InboxConfig holds the drop folder whose HTML files are imported.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.When(c.Enabled, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
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
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port:        8080,
				SSEThrottle: 250 * time.Millisecond,
			},
		},
		Storage: StorageConfig{
			DraftsDir:  "./data/drafts",
			QuotaBytes: 5 << 20,
		},
		SQLite: SQLiteConfig{
			Path: "./data/sowilo.db",
		},
		Editor: EditorConfig{
			PendingDebounce:  1500 * time.Millisecond,
			QueueDebounce:    1500 * time.Millisecond,
			MaxRetries:       5,
			RetryBase:        time.Second,
			RetryMax:         30 * time.Second,
			AutosaveInterval: 5 * time.Second,
			DraftTTL:         7 * 24 * time.Hour,
			HistoryDepth:     50,
			SweepSchedule:    "@hourly",
		},
		Inbox: InboxConfig{
			Dir: "./data/inbox",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
