package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/metrics"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
)

// Format is an export file type.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts "pdf", "docx" and "doc".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pdf", "":
		return FormatPDF, nil
	case "docx", "doc":
		return FormatDOCX, nil
	}
	return "", fmt.Errorf("export: unsupported format %q: %w", s, apperr.ErrValidation)
}

// Extension is the file suffix including the dot.
func (f Format) Extension() string { return "." + string(f) }

// ContentType is the MIME type of the format.
func (f Format) ContentType() string {
	if f == FormatDOCX {
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/pdf"
}

// File is a fully rendered export.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type encoder func(w io.Writer, doc Document, opts Options) error

// Service exports stored lectures.
type Service struct {
	store    *lecture.Store
	notifier notify.Notifier
	metrics  *metrics.Metrics
	opts     Options
	logger   *slog.Logger
	encoders map[Format]encoder
}

// NewService creates an export service. m and logger may be nil.
func NewService(store *lecture.Store, notifier notify.Notifier, m *metrics.Metrics, opts Options, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  m,
		opts:     opts,
		logger:   logger,
		encoders: map[Format]encoder{
			FormatPDF:  PDF,
			FormatDOCX: func(w io.Writer, doc Document, _ Options) error { return DOCX(w, doc) },
		},
	}
}

// Export renders the lecture's transcription. The file is built entirely
// in memory; on any failure nothing is returned and an "Export failed"
// notice is raised. filename defaults to the lecture title and always
// gets the format's extension.
func (s *Service) Export(ctx context.Context, lectureID string, format Format, filename string) (*File, error) {
	l, err := s.store.Get(lectureID)
	if err != nil {
		return nil, s.fail(format, fmt.Errorf("export: lecture %q: %w", lectureID, err), "The lecture could not be found.")
	}
	if !l.HasTranscription() {
		return nil, s.fail(format, fmt.Errorf("export: lecture %q has no transcription: %w", lectureID, apperr.ErrValidation),
			"There is no transcription to export.")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := s.render(format, documentFor(l))
	if err != nil {
		return nil, s.fail(format, fmt.Errorf("export: render %s: %v: %w", format, err, apperr.ErrExport),
			"The document could not be generated.")
	}

	f := &File{
		Name:        Filename(filename, l.Title, format),
		ContentType: format.ContentType(),
		Data:        data,
	}
	s.count(format, "ok")
	s.logger.Info("export: done",
		slog.String("lecture", l.ID), slog.String("file", f.Name), slog.Int("bytes", len(data)))
	s.notifier.Notify(notify.VariantSuccess, "Export complete", fmt.Sprintf("Saved %s.", f.Name))
	return f, nil
}

func (s *Service) render(format Format, doc Document) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	enc, ok := s.encoders[format]
	if !ok {
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	var buf bytes.Buffer
	if err = enc(&buf, doc, s.opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) fail(format Format, err error, description string) error {
	s.count(format, "error")
	s.logger.Warn("export: failed", slog.String("error", err.Error()))
	s.notifier.Notify(notify.VariantDestructive, "Export failed", description)
	return err
}

func (s *Service) count(format Format, status string) {
	if s.metrics != nil {
		s.metrics.Exports.WithLabelValues(string(format), status).Inc()
	}
}

func documentFor(l models.Lecture) Document {
	body := *l.Transcription
	if l.Summary != nil && *l.Summary != "" {
		body += "\n\n## Summary\n" + *l.Summary
	}
	if len(l.Topics) > 0 {
		body += "\n\n## Related Topics\n- " + strings.Join(l.Topics, "\n- ")
	}
	return Document{
		Title:    l.Title,
		Subtitle: fmt.Sprintf("%s · %s", l.Date, l.Duration),
		Body:     body,
		Created:  l.CreatedAt,
	}
}

// Filename cleans name, falling back to title and then "lecture", and
// ensures it ends in the format's extension.
func Filename(name, title string, format Format) string {
	clean := func(s string) string {
		s = strings.Map(func(r rune) rune {
			switch r {
			case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
				return '_'
			}
			if r < 0x20 {
				return -1
			}
			return r
		}, s)
		return strings.Trim(strings.TrimSpace(s), ".")
	}
	base := clean(name)
	if base == "" {
		base = clean(title)
	}
	if base == "" {
		base = "lecture"
	}
	if strings.EqualFold(filepath.Ext(base), format.Extension()) {
		return base
	}
	return base + format.Extension()
}
