package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/metrics"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
)

type notices struct{ titles []string }

func (n *notices) Notify(_ notify.Variant, title, _ string) { n.titles = append(n.titles, title) }

func newService(t *testing.T) (*Service, *lecture.Store, *notices, *metrics.Metrics) {
	t.Helper()
	backend, err := kv.NewFS(t.TempDir())
	require.NoError(t, err)
	store := lecture.Open(backend, nil)
	t.Cleanup(store.Close)
	n := &notices{}
	m := metrics.New()
	return NewService(store, n, m, DefaultOptions, nil), store, n, m
}

func addLecture(t *testing.T, store *lecture.Store, transcript *string) models.Lecture {
	t.Helper()
	l := lecture.New("Intro to AI", 5, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	l.Transcription = transcript
	require.NoError(t, store.Add(l))
	return l
}

func TestExportPDFScenario(t *testing.T) {
	svc, store, n, m := newService(t)
	text := "abc"
	l := addLecture(t, store, &text)

	f, err := svc.Export(context.Background(), l.ID, FormatPDF, "test")
	require.NoError(t, err)
	assert.Equal(t, "test.pdf", f.Name)
	assert.Equal(t, "application/pdf", f.ContentType)
	assert.True(t, bytes.HasPrefix(f.Data, []byte("%PDF-")), "not a pdf")
	assert.Equal(t, []string{"Export complete"}, n.titles)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("pdf", "ok")))
}

func TestExportWithoutTranscriptionFails(t *testing.T) {
	svc, store, n, m := newService(t)
	l := addLecture(t, store, nil)

	f, err := svc.Export(context.Background(), l.ID, FormatPDF, "test")
	assert.Nil(t, f)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Equal(t, []string{"Export failed"}, n.titles)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("pdf", "error")))

	_, err = svc.Export(context.Background(), "missing", FormatDOCX, "")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestExportEncodingFailure(t *testing.T) {
	tests := []struct {
		name string
		enc  encoder
	}{
		{"error", func(io.Writer, Document, Options) error { return errors.New("disk full") }},
		{"panic", func(io.Writer, Document, Options) error { panic("bad glyph") }},
		{"partial write", func(w io.Writer, _ Document, _ Options) error {
			_, _ = w.Write([]byte("%PDF-1.3 truncated"))
			return errors.New("short write")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, n, m := newService(t)
			text := "abc"
			l := addLecture(t, store, &text)
			svc.encoders[FormatPDF] = tt.enc

			f, err := svc.Export(context.Background(), l.ID, FormatPDF, "notes")
			assert.Nil(t, f)
			require.ErrorIs(t, err, apperr.ErrExport)
			assert.Equal(t, []string{"Export failed"}, n.titles)
			assert.Equal(t, 1.0, testutil.ToFloat64(m.Exports.WithLabelValues("pdf", "error")))
			assert.Equal(t, 0.0, testutil.ToFloat64(m.Exports.WithLabelValues("pdf", "ok")))
		})
	}
}

func TestExportDOCXOneParagraphPerLine(t *testing.T) {
	svc, store, _, _ := newService(t)
	text := "# Lecture\n\nfirst & second\n- bullet <b>"
	l := addLecture(t, store, &text)

	f, err := svc.Export(context.Background(), l.ID, FormatDOCX, "")
	require.NoError(t, err)
	assert.Equal(t, "Intro to AI.docx", f.Name)

	zr, err := zip.NewReader(bytes.NewReader(f.Data), int64(len(f.Data)))
	require.NoError(t, err)
	files := map[string]string{}
	for _, zf := range zr.File {
		rc, err := zf.Open()
		require.NoError(t, err)
		b, _ := io.ReadAll(rc)
		rc.Close()
		files[zf.Name] = string(b)
	}
	require.Contains(t, files, "[Content_Types].xml")
	require.Contains(t, files, "_rels/.rels")
	doc := files["word/document.xml"]

	// Title, subtitle and four body lines.
	assert.Equal(t, 6, strings.Count(doc, "<w:p>"))
	assert.Contains(t, doc, "first &amp; second")
	assert.Contains(t, doc, "• bullet &lt;b&gt;")
	assert.Contains(t, files["docProps/core.xml"], "<dc:title>Intro to AI</dc:title>")
}

func TestDOCXWithoutTitle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, DOCX(&buf, Document{Body: "a\nb\nc"}))
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	for _, zf := range zr.File {
		if zf.Name != "word/document.xml" {
			continue
		}
		rc, _ := zf.Open()
		b, _ := io.ReadAll(rc)
		rc.Close()
		assert.Equal(t, 3, strings.Count(string(b), "<w:p>"))
	}
}

func TestPDFLongDocumentPaginates(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "A line of lecture notes that is long enough to be realistic but fits on one row.")
	}
	var buf bytes.Buffer
	require.NoError(t, PDF(&buf, Document{Title: "Long", Body: strings.Join(lines, "\n")}, Options{}))
	assert.GreaterOrEqual(t, bytes.Count(buf.Bytes(), []byte("/Type /Page\n")), 2)
}

func TestPaginate(t *testing.T) {
	row := func(text string, h float64) Row { return Row{Text: text, Height: h} }

	pages := Paginate(nil, 100)
	require.Len(t, pages, 1)
	assert.Empty(t, pages[0])

	rows := []Row{row("a", 40), row("b", 40), row("c", 40), row("d", 40)}
	pages = Paginate(rows, 100)
	require.Len(t, pages, 2)
	assert.Equal(t, []Row{row("a", 40), row("b", 40)}, pages[0])
	assert.Equal(t, []Row{row("c", 40), row("d", 40)}, pages[1])

	// A row exactly filling the page stays on it.
	pages = Paginate([]Row{row("a", 50), row("b", 50), row("c", 1)}, 100)
	require.Len(t, pages, 2)
	assert.Len(t, pages[0], 2)

	// Blank rows are not carried to the top of a new page.
	pages = Paginate([]Row{row("a", 90), row("", 20), row("b", 10)}, 100)
	require.Len(t, pages, 2)
	assert.Equal(t, []Row{row("b", 10)}, pages[1])

	// An oversized row still gets its own page.
	pages = Paginate([]Row{row("a", 10), row("huge", 300)}, 100)
	require.Len(t, pages, 2)
	assert.Equal(t, "huge", pages[1][0].Text)
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name, title string
		format      Format
		want        string
	}{
		{"test", "T", FormatPDF, "test.pdf"},
		{"test.pdf", "T", FormatPDF, "test.pdf"},
		{"Notes.PDF", "T", FormatPDF, "Notes.PDF"},
		{"test.pdf", "T", FormatDOCX, "test.pdf.docx"},
		{"  ", "Intro to AI", FormatDOCX, "Intro to AI.docx"},
		{"a/b:c", "T", FormatPDF, "a_b_c.pdf"},
		{"", "", FormatPDF, "lecture.pdf"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Filename(tt.name, tt.title, tt.format), "Filename(%q, %q, %s)", tt.name, tt.title, tt.format)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"pdf": FormatPDF, "": FormatPDF, "DOCX": FormatDOCX, "doc": FormatDOCX} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("odt")
	require.ErrorIs(t, err, apperr.ErrValidation)
}
