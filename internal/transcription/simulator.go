// Package transcription produces placeholder transcripts and summaries in
// five timed stages, and runs them as cancellable jobs.
package transcription

import (
	"context"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/parser"
)

// Steps is the number of progress stages; each adds 100/Steps percent.
const Steps = 5

// DefaultStepDelay is the pause before each stage.
const DefaultStepDelay = 600 * time.Millisecond

// DefaultTopics is used when no topic list can be obtained.
var DefaultTopics = []string{
	"Core Concepts",
	"Key Definitions",
	"Worked Examples",
	"Practice Questions",
	"Further Reading",
}

// TopicSuggester returns a delimiter-separated list of topics related to
// a transcript.
type TopicSuggester interface {
	SuggestTopics(ctx context.Context, transcript string) (string, error)
}

// Summary is the result of Summarize.
type Summary struct {
	Text   string   `json:"summary"`
	Topics []string `json:"related_topics"`
}

// Simulator stands in for a speech-to-text and summarization backend.
type Simulator struct {
	StepDelay time.Duration
	Topics    TopicSuggester
}

var transcriptTmpl = template.Must(template.New("transcript").Parse(`# {{.Title}}

Recorded {{.Date}} ({{.Duration}})

## Introduction
The lecturer opened by outlining the goals of today's session on {{.Title}} and how it connects to the previous class.

## Key Points
- The central definitions were introduced and illustrated with examples.
- Common misconceptions were discussed and corrected.
- Several problems were worked through step by step.

## Detailed Notes
The main part of the lecture developed the theory behind {{.Title}}, moving from first principles to practical applications. Students were encouraged to ask questions throughout.

## Questions and Answers
Students asked about edge cases and about how the material will appear on the exam.

## Next Steps
Review the worked examples and complete the practice set before the next class.
`))

// Transcribe reports progress 20, 40, 60, 80 and 100 and returns a templated
// document about l. ctx is checked before every stage.
func (s *Simulator) Transcribe(ctx context.Context, l models.Lecture, progress func(int)) (string, error) {
	if err := s.stages(ctx, progress); err != nil {
		return "", err
	}
	var b strings.Builder
	if err := transcriptTmpl.Execute(&b, l); err != nil {
		return "", fmt.Errorf("transcription: render: %w", err)
	}
	return b.String(), nil
}

// Summarize condenses transcript in the same staged fashion. A blank
// transcript is rejected before any stage runs.
func (s *Simulator) Summarize(ctx context.Context, transcript string, progress func(int)) (Summary, error) {
	if strings.TrimSpace(transcript) == "" {
		return Summary{}, fmt.Errorf("transcription: nothing to summarize: %w", apperr.ErrValidation)
	}
	if err := s.stages(ctx, progress); err != nil {
		return Summary{}, err
	}
	doc := parser.Parse([]byte(transcript))
	return Summary{
		Text:   summaryText(doc),
		Topics: s.topics(ctx, transcript, doc),
	}, nil
}

func (s *Simulator) stages(ctx context.Context, progress func(int)) error {
	delay := s.StepDelay
	for step := 1; step <= Steps; step++ {
		if err := sleep(ctx, delay); err != nil {
			return err
		}
		if progress != nil {
			progress(step * 100 / Steps)
		}
	}
	return nil
}

func (s *Simulator) topics(ctx context.Context, transcript string, doc *parser.Document) []string {
	if tags := doc.Tags; len(tags) > 0 {
		if len(tags) > parser.MaxTopics {
			tags = tags[:parser.MaxTopics]
		}
		return append([]string(nil), tags...)
	}
	if s.Topics != nil {
		resp, err := s.Topics.SuggestTopics(ctx, transcript)
		if err == nil {
			if topics := parser.Topics(resp); len(topics) > 0 {
				return topics
			}
		}
	}
	return append([]string(nil), DefaultTopics...)
}

func summaryText(doc *parser.Document) string {
	if doc.Meta.Summary != "" {
		return doc.Meta.Summary
	}
	var sections []string
	for _, l := range parser.Lines(doc.Body) {
		if l.Kind == parser.KindHeading && l.Level == 2 {
			sections = append(sections, l.Text)
		}
	}
	subject := doc.Title
	if subject == "" {
		subject = "this lecture"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "This lecture on %s introduced the core ideas of the topic and worked through examples that show how they apply in practice.", subject)
	if len(sections) > 0 {
		fmt.Fprintf(&b, " It covered %s.", strings.ToLower(strings.Join(sections, ", ")))
	}
	b.WriteString(" Review the key points and attempt the practice questions to consolidate your understanding.")
	return b.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return ctx.Err()
	}
}
