// Package parser reads generated lecture documents: optional YAML
// frontmatter, Markdown-ish line structure, and delimiter-separated topic
// lists returned by the assistant.
package parser

import (
	"bytes"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxTopics caps the number of related topics kept from one response.
const MaxTopics = 8

var (
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
	bulletRe   = regexp.MustCompile(`^\s*(?:[-*•+]|\d+[.)])\s+`)
	emphasisRe = regexp.MustCompile(`^[*_"'` + "`" + `]+|[*_"'` + "`" + `]+$`)
)

// Document is a transcript split into metadata and body.
type Document struct {
	Meta  Meta
	Body  string
	Title string
	// Tags are frontmatter topics followed by inline #tags, deduplicated
	// case-insensitively. They take precedence over suggested topics.
	Tags []string
}

// Meta is the optional frontmatter of an imported transcript.
type Meta struct {
	Title   string   `yaml:"title"`
	Summary string   `yaml:"summary"`
	Topics  []string `yaml:"topics"`
}

// Parse splits frontmatter from the body and derives the title and tags.
// Malformed frontmatter is treated as body text.
func Parse(data []byte) *Document {
	meta, body := splitFrontmatter(data)
	return &Document{
		Meta:  meta,
		Body:  body,
		Title: deriveTitle(meta, body),
		Tags:  extractTags(body, meta),
	}
}

func splitFrontmatter(data []byte) (Meta, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return Meta{}, string(data)
	}
	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return Meta{}, string(data)
	}

	block := rest[:idx]
	body := strings.TrimLeft(string(rest[idx+1+len(delim):]), "\n\r")

	var meta Meta
	if err := yaml.Unmarshal(block, &meta); err != nil {
		return Meta{}, string(data)
	}
	return meta, body
}

func extractTags(body string, meta Meta) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		k := strings.ToLower(s)
		if _, dup := seen[k]; dup {
			return
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	for _, t := range meta.Topics {
		add(t)
	}
	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		add(m[1])
	}
	return out
}

// deriveTitle returns the frontmatter title, else the first H1.
func deriveTitle(meta Meta, body string) string {
	if meta.Title != "" {
		return meta.Title
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Kind classifies one line of a document.
type Kind int

const (
	KindText Kind = iota
	KindBlank
	KindHeading
	KindBullet
)

// Line is one newline-delimited line with its Markdown markers removed.
type Line struct {
	Kind  Kind
	Level int // heading depth, 1 for "#"
	Text  string
}

// Lines classifies every line of body. The result has exactly one entry
// per newline-delimited line.
func Lines(body string) []Line {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	raw := strings.Split(body, "\n")
	out := make([]Line, 0, len(raw))
	for _, l := range raw {
		out = append(out, classify(l))
	}
	return out
}

func classify(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return Line{Kind: KindBlank}
	case strings.HasPrefix(trimmed, "#"):
		level := len(trimmed) - len(strings.TrimLeft(trimmed, "#"))
		text := strings.TrimSpace(trimmed[level:])
		if level <= 6 && text != "" && trimmed[level] == ' ' {
			return Line{Kind: KindHeading, Level: level, Text: text}
		}
	case bulletRe.MatchString(trimmed):
		return Line{Kind: KindBullet, Text: bulletRe.ReplaceAllString(trimmed, "")}
	}
	return Line{Kind: KindText, Text: trimmed}
}

// Topics extracts topic names from a delimiter-separated response. Commas,
// semicolons, pipes and newlines all separate entries; list markers and
// surrounding emphasis are stripped. It returns nil when nothing usable is
// found so callers can fall back to a static list.
func Topics(response string) []string {
	fields := strings.FieldsFunc(response, func(r rune) bool {
		switch r {
		case ',', ';', '|', '\n', '\r':
			return true
		}
		return false
	})

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		t := bulletRe.ReplaceAllString(strings.TrimSpace(f), "")
		t = strings.TrimSpace(emphasisRe.ReplaceAllString(t, ""))
		t = strings.TrimSuffix(t, ".")
		if t == "" || len(t) > 60 || strings.HasSuffix(t, ":") {
			continue
		}
		k := strings.ToLower(t)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, t)
		if len(out) == MaxTopics {
			break
		}
	}
	return out
}
