// Package export renders lecture documents as PDF and DOCX files.
package export

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/starford/lectern/internal/parser"
)

// Options controls PDF layout. Lengths are in millimetres.
type Options struct {
	FontSize   float64
	LineHeight float64
	Margin     float64
}

// DefaultOptions is an A4 layout with 11pt body text.
var DefaultOptions = Options{FontSize: 11, LineHeight: 6, Margin: 20}

func (o Options) withDefaults() Options {
	if o.FontSize <= 0 {
		o.FontSize = DefaultOptions.FontSize
	}
	if o.LineHeight <= 0 {
		o.LineHeight = DefaultOptions.LineHeight
	}
	if o.Margin <= 0 {
		o.Margin = DefaultOptions.Margin
	}
	return o
}

// Document is what gets exported.
type Document struct {
	Title    string
	Subtitle string
	Body     string
	Created  time.Time
}

// Style selects the font of a row.
type Style int

const (
	StyleBody Style = iota
	StyleTitle
	StyleHeading
)

// Row is one placed line of a PDF page.
type Row struct {
	Text   string
	Style  Style
	Height float64
}

// Paginate places rows top to bottom and starts a new page whenever the
// next row would pass printable. The result always has at least one page.
func Paginate(rows []Row, printable float64) [][]Row {
	var pages [][]Row
	var cur []Row
	y := 0.0
	for _, r := range rows {
		if len(cur) > 0 && y+r.Height > printable {
			pages = append(pages, cur)
			cur, y = nil, 0
			if strings.TrimSpace(r.Text) == "" {
				continue
			}
		}
		cur = append(cur, r)
		y += r.Height
	}
	if len(cur) > 0 || len(pages) == 0 {
		pages = append(pages, cur)
	}
	return pages
}

func fontFor(o Options, s Style) (style string, size float64) {
	switch s {
	case StyleTitle:
		return "B", o.FontSize + 7
	case StyleHeading:
		return "B", o.FontSize + 2
	default:
		return "", o.FontSize
	}
}

// PDF writes doc to w as an A4 PDF.
func PDF(w io.Writer, doc Document, opts Options) error {
	o := opts.withDefaults()
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(o.Margin, o.Margin, o.Margin)
	pdf.SetAutoPageBreak(false, o.Margin)
	pdf.SetTitle(doc.Title, true)
	pdf.SetCreator("Lectern", true)
	if !doc.Created.IsZero() {
		pdf.SetCreationDate(doc.Created)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	width := pageW - 2*o.Margin

	var rows []Row
	add := func(text string, s Style, height float64) {
		style, size := fontFor(o, s)
		pdf.SetFont("Helvetica", style, size)
		for _, piece := range pdf.SplitText(tr(text), width) {
			rows = append(rows, Row{Text: piece, Style: s, Height: height})
		}
	}
	blank := func() { rows = append(rows, Row{Height: o.LineHeight / 2}) }

	if doc.Title != "" {
		add(doc.Title, StyleTitle, o.LineHeight*1.6)
	}
	if doc.Subtitle != "" {
		add(doc.Subtitle, StyleBody, o.LineHeight)
	}
	if len(rows) > 0 {
		blank()
	}
	for _, l := range parser.Lines(doc.Body) {
		switch l.Kind {
		case parser.KindBlank:
			blank()
		case parser.KindHeading:
			add(l.Text, StyleHeading, o.LineHeight*1.3)
		case parser.KindBullet:
			add("- "+l.Text, StyleBody, o.LineHeight)
		default:
			add(l.Text, StyleBody, o.LineHeight)
		}
	}

	for _, page := range Paginate(rows, pageH-2*o.Margin) {
		pdf.AddPage()
		y := o.Margin
		for _, r := range page {
			if r.Text != "" {
				style, size := fontFor(o, r.Style)
				pdf.SetFont("Helvetica", style, size)
				pdf.SetXY(o.Margin, y)
				pdf.CellFormat(width, r.Height, r.Text, "", 0, "L", false, 0, "")
			}
			y += r.Height
		}
	}
	return pdf.Output(w)
}

const (
	contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>
</Types>`
	relsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>
</Relationships>`
	wordNS = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
)

// DOCX writes doc to w as a Word document with one paragraph per
// newline-delimited line of the body.
func DOCX(w io.Writer, doc Document) error {
	zw := zip.NewWriter(w)
	parts := []struct {
		name string
		body func(io.Writer) error
	}{
		{"[Content_Types].xml", literal(contentTypesXML)},
		{"_rels/.rels", literal(relsXML)},
		{"docProps/core.xml", func(w io.Writer) error { return writeCore(w, doc) }},
		{"word/document.xml", func(w io.Writer) error { return writeDocument(w, doc) }},
	}
	for _, p := range parts {
		f, err := zw.Create(p.name)
		if err != nil {
			return fmt.Errorf("export: docx %s: %w", p.name, err)
		}
		if err := p.body(f); err != nil {
			return fmt.Errorf("export: docx %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

func literal(s string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	}
}

func writeCore(w io.Writer, doc Document) error {
	created := doc.Created
	if created.IsZero() {
		created = time.Now()
	}
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`)
	b.WriteString("<dc:title>")
	if err := xml.EscapeText(&b, []byte(doc.Title)); err != nil {
		return err
	}
	b.WriteString("</dc:title><dc:creator>Lectern</dc:creator>")
	fmt.Fprintf(&b, `<dcterms:created xsi:type="dcterms:W3CDTF">%s</dcterms:created>`, created.UTC().Format(time.RFC3339))
	b.WriteString("</cp:coreProperties>")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDocument(w io.Writer, doc Document) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n")
	b.WriteString(`<w:document xmlns:w="` + wordNS + `"><w:body>`)

	para := func(text string, bold bool, halfPoints int) error {
		b.WriteString("<w:p>")
		if text != "" {
			b.WriteString("<w:r>")
			if bold || halfPoints > 0 {
				b.WriteString("<w:rPr>")
				if bold {
					b.WriteString("<w:b/>")
				}
				if halfPoints > 0 {
					fmt.Fprintf(&b, `<w:sz w:val="%d"/>`, halfPoints)
				}
				b.WriteString("</w:rPr>")
			}
			b.WriteString(`<w:t xml:space="preserve">`)
			if err := xml.EscapeText(&b, []byte(text)); err != nil {
				return err
			}
			b.WriteString("</w:t></w:r>")
		}
		b.WriteString("</w:p>")
		return nil
	}

	if doc.Title != "" {
		if err := para(doc.Title, true, 36); err != nil {
			return err
		}
	}
	if doc.Subtitle != "" {
		if err := para(doc.Subtitle, false, 0); err != nil {
			return err
		}
	}
	for _, l := range parser.Lines(doc.Body) {
		var err error
		switch l.Kind {
		case parser.KindHeading:
			err = para(l.Text, true, 28)
		case parser.KindBullet:
			err = para("• "+l.Text, false, 0)
		default:
			err = para(l.Text, false, 0)
		}
		if err != nil {
			return err
		}
	}
	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1134" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`)
	b.WriteString("</w:body></w:document>")
	_, err := io.WriteString(w, b.String())
	return err
}
