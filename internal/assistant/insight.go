package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/notify"
)

// Score is one subject result entered by the student.
type Score struct {
	Subject string   `json:"subject"`
	Value   *float64 `json:"score"`
}

// Validate implements validation.Validatable.
func (s Score) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Subject, validation.Required, validation.Length(1, 80)),
		validation.Field(&s.Value, validation.NotNil, validation.Min(0.0), validation.Max(100.0)),
	)
}

// Insight is the analysis of a set of scores.
type Insight struct {
	Average   float64 `json:"average"`
	Strongest string  `json:"strongest"`
	Weakest   string  `json:"weakest"`
	Text      string  `json:"text"`
}

// ScoreInsight validates scores, computes simple statistics and asks the
// assistant for advice. Invalid input raises an "Invalid scores" notice
// and returns apperr.ErrValidation without querying.
func (f *Facade) ScoreInsight(ctx context.Context, scores []Score) (*Insight, error) {
	if err := validation.Validate(scores, validation.Required); err != nil {
		f.notifier.Notify(notify.VariantDestructive, "Invalid scores", "Enter a subject and a score between 0 and 100 for every row.")
		return nil, fmt.Errorf("assistant: scores: %v: %w", err, apperr.ErrValidation)
	}

	in := Insight{}
	var sum float64
	var hi, lo float64
	for i, s := range scores {
		v := *s.Value
		sum += v
		if i == 0 || v > hi {
			hi, in.Strongest = v, s.Subject
		}
		if i == 0 || v < lo {
			lo, in.Weakest = v, s.Subject
		}
	}
	in.Average = sum / float64(len(scores))

	parts := make([]string, len(scores))
	for i, s := range scores {
		parts[i] = fmt.Sprintf("%s %.0f", s.Subject, *s.Value)
	}
	prompt := fmt.Sprintf("Analyze my scores and give me advice: %s. Average %.1f, strongest %s, weakest %s.",
		strings.Join(parts, ", "), in.Average, in.Strongest, in.Weakest)

	resp, err := f.Query(ctx, prompt)
	if err != nil {
		if errors.Is(err, apperr.ErrMissingCredential) {
			return nil, err
		}
		return nil, fmt.Errorf("assistant: insight: %w", err)
	}
	in.Text = resp.Text
	return &in, nil
}
