package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	StorageDriverFS     = "fs"
	StorageDriverSQLite = "sqlite"
)

// Capture devices.
const (
	DevicePush     = "push"
	DeviceTone     = "tone"
	DeviceDisabled = "disabled"
)

// Assistant providers.
const (
	ProviderSimulator = "simulator"
	ProviderGemini    = "gemini"
)

// Config represents the application configuration.
type Config struct {
	App           ApplicationConfig   `yaml:"app"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Recording     RecordingConfig     `yaml:"recording"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Assistant     AssistantConfig     `yaml:"assistant"`
	Export        ExportConfig        `yaml:"export"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Storage, &c.Auth, &c.Recording, &c.Transcription, &c.Assistant, &c.Export,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
	// EventThrottle coalesces lectures.changed events on the SSE stream.
	EventThrottle time.Duration `yaml:"event_throttle"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.EventThrottle, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("app: %w", err)
	}
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
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

// StorageConfig selects the key/value backend.
//
// The fs driver keeps one file per key under Path and enables the
// external-edit watcher. The sqlite driver keeps everything in one table
// at SQLitePath.
type StorageConfig struct {
	Driver     string `yaml:"driver"`
	Path       string `yaml:"path"`
	SQLitePath string `yaml:"sqlite_path"`
	Watch      bool   `yaml:"watch"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = StorageDriverFS
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(StorageDriverFS, StorageDriverSQLite)),
		validation.Field(&c.Path, validation.When(c.Driver == StorageDriverFS, validation.Required)),
		validation.Field(&c.SQLitePath, validation.When(c.Driver == StorageDriverSQLite, validation.Required)),
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

// RecordingConfig configures the capture device and session clock.
type RecordingConfig struct {
	Device string `yaml:"device"`
	// MIMEType is the container uploaded by push clients.
	MIMEType string        `yaml:"mime_type"`
	Interval time.Duration `yaml:"interval"`
}

// Validate validates the recording configuration.
func (c *RecordingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Device, validation.Required, validation.In(DevicePush, DeviceTone, DeviceDisabled)),
		validation.Field(&c.Interval, validation.Required, validation.Min(10*time.Millisecond)),
	)
}

// TranscriptionConfig configures the staged job simulator.
type TranscriptionConfig struct {
	StepDelay time.Duration `yaml:"step_delay"`
	Retention time.Duration `yaml:"retention"`
}

// Validate validates the transcription configuration.
func (c *TranscriptionConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.StepDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.Retention, validation.Required, validation.Min(time.Second)),
	)
}

// AssistantConfig configures the study assistant.
type AssistantConfig struct {
	Provider    string        `yaml:"provider"`
	Latency     time.Duration `yaml:"latency"`
	HistorySize int           `yaml:"history_size"`
	// APIKey, when set, is stored on startup as if the user had entered it.
	APIKey string       `yaml:"api_key"`
	Gemini GeminiConfig `yaml:"gemini"`
}

// Validate validates the assistant configuration.
func (c *AssistantConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.Required, validation.In(ProviderSimulator, ProviderGemini)),
		validation.Field(&c.Latency, validation.Min(time.Duration(0))),
		validation.Field(&c.HistorySize, validation.Required, validation.Min(2)),
	); err != nil {
		return fmt.Errorf("assistant: %w", err)
	}
	if c.Provider == ProviderGemini {
		return c.Gemini.Validate()
	}
	return nil
}

// GeminiConfig configures the generative-language API responder.
type GeminiConfig struct {
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Validate validates the Gemini configuration.
func (c *GeminiConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Temperature, validation.Min(0.0), validation.Max(2.0)),
		validation.Field(&c.MaxOutputTokens, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Required),
	); err != nil {
		return fmt.Errorf("assistant.gemini: %w", err)
	}
	return nil
}

// ExportConfig holds the PDF layout.
type ExportConfig struct {
	FontSize   float64 `yaml:"font_size"`
	LineHeight float64 `yaml:"line_height"`
	Margin     float64 `yaml:"margin"`
}

// Validate validates the export configuration.
func (c *ExportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.FontSize, validation.Required, validation.Min(6.0), validation.Max(32.0)),
		validation.Field(&c.LineHeight, validation.Required, validation.Min(2.0)),
		validation.Field(&c.Margin, validation.Required, validation.Min(5.0), validation.Max(60.0)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
			EventThrottle: 2 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     StorageDriverFS,
			Path:       "./data",
			SQLitePath: "./lectern.db",
			Watch:      true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Recording: RecordingConfig{
			Device:   DevicePush,
			MIMEType: "audio/webm",
			Interval: time.Second,
		},
		Transcription: TranscriptionConfig{
			StepDelay: 600 * time.Millisecond,
			Retention: 10 * time.Minute,
		},
		Assistant: AssistantConfig{
			Provider:    ProviderSimulator,
			Latency:     time.Second,
			HistorySize: 15,
			Gemini: GeminiConfig{
				BaseURL:     "https://generativelanguage.googleapis.com",
				Model:       "gemini-1.5-flash",
				Temperature: 0.7,
				Timeout:     30 * time.Second,
			},
		},
		Export: ExportConfig{
			FontSize:   11,
			LineHeight: 6,
			Margin:     20,
		},
	}
}
