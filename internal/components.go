package internal

import (
	"fmt"
	"log/slog"

	"github.com/starford/lectern/internal/assistant"
	"github.com/starford/lectern/internal/capture"
	"github.com/starford/lectern/internal/export"
	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/lectureservice"
	"github.com/starford/lectern/internal/metrics"
	"github.com/starford/lectern/internal/notify"
	"github.com/starford/lectern/internal/recording"
	"github.com/starford/lectern/internal/sse"
	"github.com/starford/lectern/internal/transcription"
)

// components is the wired domain stack shared by the HTTP and MCP modes.
type components struct {
	backend   kv.Store
	fsRoot    string // empty unless the fs driver is used
	store     *lecture.Store
	broker    *sse.Broker
	notices   *notify.Center
	metrics   *metrics.Metrics
	runner    *transcription.Runner
	assistant *assistant.Facade
	service   *lectureservice.Service
}

// newComponents opens storage and builds every service. broker may be nil
// when nobody consumes events.
func newComponents(cfg *Config, broker *sse.Broker, logger *slog.Logger) (*components, error) {
	c := &components{broker: broker, metrics: metrics.New()}

	switch cfg.Storage.Driver {
	case StorageDriverSQLite:
		db, err := kv.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		c.backend = db
	default:
		fs, err := kv.NewFS(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		c.backend = fs
		c.fsRoot = fs.Root()
	}

	c.store = lecture.Open(c.backend, logger)

	// Assign through the interface only when non-nil so that a nil broker
	// does not become a non-nil Publisher.
	var pub notify.Publisher
	var events lectureservice.Events
	if broker != nil {
		pub, events = broker, broker
	}
	c.notices = notify.NewCenter(pub, logger)

	c.assistant = assistant.New(c.backend, responder(cfg.Assistant), c.notices,
		assistant.WithHistorySize(cfg.Assistant.HistorySize),
		assistant.WithMetrics(c.metrics),
		assistant.WithLogger(logger))
	if cfg.Assistant.APIKey != "" && !c.assistant.HasKey() {
		if err := c.assistant.SetKey(cfg.Assistant.APIKey); err != nil {
			logger.Warn("assistant: seed key failed", slog.String("error", err.Error()))
		}
	}

	runnerOpts := []transcription.RunnerOption{
		transcription.WithMetrics(c.metrics),
		transcription.WithRetention(cfg.Transcription.Retention),
		transcription.WithRunnerLogger(logger),
	}
	if broker != nil {
		runnerOpts = append(runnerOpts, transcription.WithEvents(broker))
	}
	sim := &transcription.Simulator{StepDelay: cfg.Transcription.StepDelay, Topics: c.assistant}
	c.runner = transcription.NewRunner(sim, c.store, c.notices, runnerOpts...)

	exportOpts := export.Options{
		FontSize:   cfg.Export.FontSize,
		LineHeight: cfg.Export.LineHeight,
		Margin:     cfg.Export.Margin,
	}
	c.service = lectureservice.New(lectureservice.Deps{
		Store:            c.store,
		Runner:           c.runner,
		Exporter:         export.NewService(c.store, c.notices, c.metrics, exportOpts, logger),
		Device:           device(cfg.Recording),
		Notifier:         c.notices,
		Events:           events,
		Metrics:          c.metrics,
		Logger:           logger,
		RecordingOptions: []recording.Option{recording.WithInterval(cfg.Recording.Interval)},
	})
	return c, nil
}

// Close stops work in dependency order and flushes the store last.
func (c *components) Close() error {
	c.service.Close()
	c.runner.Close()
	c.store.Close()
	if c.broker != nil {
		c.broker.Close()
	}
	return c.backend.Close()
}

func responder(cfg AssistantConfig) assistant.Responder {
	if cfg.Provider == ProviderGemini {
		return assistant.NewGemini(assistant.GeminiConfig{
			BaseURL:         cfg.Gemini.BaseURL,
			Model:           cfg.Gemini.Model,
			Temperature:     cfg.Gemini.Temperature,
			MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
			Timeout:         cfg.Gemini.Timeout,
		})
	}
	return assistant.Simulator{Latency: cfg.Latency}
}

func device(cfg RecordingConfig) capture.Device {
	switch cfg.Device {
	case DeviceTone:
		return capture.Tone{Interval: cfg.Interval}
	case DeviceDisabled:
		return capture.Unavailable{Reason: "recording is disabled"}
	}
	return capture.NewPush(cfg.MIMEType)
}
