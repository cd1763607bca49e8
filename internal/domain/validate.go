package domain

import (
	"fmt"
	"math"
	"strings"
)

// Validate checks that the scale is ordered, fits a 32-bit column and has at
// most MaxRatingPoints values.
func (r RatingScale) Validate() error {
	if r.Min < math.MinInt32 || r.Max > math.MaxInt32 {
		return fmt.Errorf("%w: rating scale out of bounds", ErrInvalidQuestion)
	}
	if r.Min >= r.Max {
		return fmt.Errorf("%w: rating scale min must be below max", ErrInvalidQuestion)
	}
	if int64(r.Max)-int64(r.Min)+1 > MaxRatingPoints {
		return fmt.Errorf("%w: rating scale wider than %d values", ErrInvalidQuestion, MaxRatingPoints)
	}
	return nil
}

// Validate checks a draft before it is persisted.
func (d QuestionDraft) Validate() error {
	if strings.TrimSpace(d.Prompt) == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidQuestion)
	}
	switch d.Type {
	case QuestionMultipleChoice:
		if len(d.Options) == 0 {
			return fmt.Errorf("%w: multiple choice needs options", ErrInvalidQuestion)
		}
		seen := make(map[string]struct{}, len(d.Options))
		for _, opt := range d.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("%w: empty option", ErrInvalidQuestion)
			}
			if _, dup := seen[opt]; dup {
				return fmt.Errorf("%w: duplicate option %q", ErrInvalidQuestion, opt)
			}
			seen[opt] = struct{}{}
		}
	case QuestionRating:
		if len(d.Options) > 0 {
			return fmt.Errorf("%w: options are only allowed for multiple choice", ErrInvalidQuestion)
		}
		if d.Scale != nil {
			if err := d.Scale.Validate(); err != nil {
				return err
			}
		}
	case QuestionWordCloud, QuestionOpenEnded:
		if len(d.Options) > 0 {
			return fmt.Errorf("%w: options are only allowed for multiple choice", ErrInvalidQuestion)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidQuestion, d.Type)
	}
	if d.Scale != nil && d.Type != QuestionRating {
		return fmt.Errorf("%w: scale is only allowed for rating", ErrInvalidQuestion)
	}
	return nil
}

// Validate applies the draft rules to a stored question.
func (q Question) Validate() error {
	return QuestionDraft{Type: q.Type, Prompt: q.Prompt, Options: q.Options, Scale: q.Scale}.Validate()
}

// Validate checks the presentation input as a whole.
func (p NewPresentation) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidQuestion)
	}
	if len(p.Questions) == 0 {
		return fmt.Errorf("%w: presentation needs at least one question", ErrInvalidQuestion)
	}
	for i, q := range p.Questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}
