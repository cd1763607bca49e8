package domain

import (
	"errors"
	"math"
	"testing"
)

func TestQuestionDraftValidate(t *testing.T) {
	cases := []struct {
		name  string
		draft QuestionDraft
		ok    bool
	}{
		{"choice", QuestionDraft{Type: QuestionMultipleChoice, Prompt: "Pick", Options: []string{"A", "B"}}, true},
		{"choice without options", QuestionDraft{Type: QuestionMultipleChoice, Prompt: "Pick"}, false},
		{"duplicate options", QuestionDraft{Type: QuestionMultipleChoice, Prompt: "Pick", Options: []string{"A", "A"}}, false},
		{"blank option", QuestionDraft{Type: QuestionMultipleChoice, Prompt: "Pick", Options: []string{"A", " "}}, false},
		{"rating default scale", QuestionDraft{Type: QuestionRating, Prompt: "Rate"}, true},
		{"rating custom scale", QuestionDraft{Type: QuestionRating, Prompt: "Rate", Scale: &RatingScale{Min: 0, Max: 5}}, true},
		{"rating inverted scale", QuestionDraft{Type: QuestionRating, Prompt: "Rate", Scale: &RatingScale{Min: 5, Max: 5}}, false},
		{"rating percent scale", QuestionDraft{Type: QuestionRating, Prompt: "Rate", Scale: &RatingScale{Min: 0, Max: 100}}, true},
		{"rating scale too wide", QuestionDraft{Type: QuestionRating, Prompt: "Rate", Scale: &RatingScale{Min: 1, Max: 1_000_000_000}}, false},
		{"rating scale beyond int32", QuestionDraft{Type: QuestionRating, Prompt: "Rate", Scale: &RatingScale{Min: -1 << 62, Max: 1 << 62}}, false},
		{"rating scale at int32 edge", QuestionDraft{Type: QuestionRating, Prompt: "Rate", Scale: &RatingScale{Min: math.MaxInt32 - 10, Max: math.MaxInt32}}, true},
		{"rating with options", QuestionDraft{Type: QuestionRating, Prompt: "Rate", Options: []string{"A"}}, false},
		{"word cloud with scale", QuestionDraft{Type: QuestionWordCloud, Prompt: "Word", Scale: &RatingScale{Min: 1, Max: 3}}, false},
		{"open ended", QuestionDraft{Type: QuestionOpenEnded, Prompt: "Say"}, true},
		{"missing prompt", QuestionDraft{Type: QuestionOpenEnded, Prompt: "  "}, false},
		{"unknown type", QuestionDraft{Type: "quiz", Prompt: "?"}, false},
	}
	for _, tc := range cases {
		err := tc.draft.Validate()
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !errors.Is(err, ErrInvalidQuestion) {
			t.Fatalf("%s: expected invalid question, got %v", tc.name, err)
		}
	}
}

func TestNewPresentationValidate(t *testing.T) {
	if err := (NewPresentation{Title: "", Questions: []QuestionDraft{{Type: QuestionOpenEnded, Prompt: "x"}}}).Validate(); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected missing title to fail, got %v", err)
	}
	if err := (NewPresentation{Title: "T"}).Validate(); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected empty presentation to fail, got %v", err)
	}
	if err := (NewPresentation{Title: "T", Questions: []QuestionDraft{{Type: QuestionOpenEnded, Prompt: "x"}}}).Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestQuestionValidateUsesDraftRules(t *testing.T) {
	q := Question{ID: "q", Type: QuestionRating, Prompt: "Rate", Scale: &RatingScale{Min: 0, Max: 500}}
	if err := q.Validate(); !errors.Is(err, ErrInvalidQuestion) {
		t.Fatalf("expected invalid question, got %v", err)
	}
	q.Scale = &RatingScale{Min: 0, Max: 5}
	if err := q.Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestIsValidationError(t *testing.T) {
	if !IsValidationError(ErrOutOfRangeRating) || !IsValidationError(ErrStaleQuestion) {
		t.Fatalf("expected validation errors")
	}
	if IsValidationError(ErrStoreUnavailable) || IsValidationError(ErrSessionEnded) {
		t.Fatalf("store and lifecycle errors are not validation errors")
	}
}
