package memory

import (
	"context"
	"errors"
	"testing"

	"livepoll-service/internal/domain"
)

func TestPresentationStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewPresentationStore()

	p, err := store.CreatePresentation(ctx, domain.NewPresentation{
		Title:      "All hands",
		AccessCode: "XYZ789",
		Questions: []domain.QuestionDraft{
			{Type: domain.QuestionMultipleChoice, Prompt: "Pick", Options: []string{"A", "B"}},
			{Type: domain.QuestionRating, Prompt: "Rate", Scale: &domain.RatingScale{Min: 1, Max: 5}},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := store.GetPresentationByCode(ctx, "XYZ789")
	if err != nil || found.ID != p.ID || !found.Active {
		t.Fatalf("expected active presentation %s, got %+v (%v)", p.ID, found, err)
	}
	questions, err := store.GetQuestions(ctx, p.ID)
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != 2 || questions[1].Scale == nil || questions[1].Scale.Max != 5 {
		t.Fatalf("unexpected questions %+v", questions)
	}

	for _, v := range []string{"A", "B", "A"} {
		if _, err := store.AppendResponse(ctx, questions[0].ID, v); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if _, err := store.AppendResponse(ctx, questions[1].ID, "4"); err != nil {
		t.Fatalf("append: %v", err)
	}
	responses, err := store.ListResponses(ctx, []string{questions[0].ID, questions[1].ID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"A", "B", "A", "4"}
	if len(responses) != len(want) {
		t.Fatalf("expected %d responses, got %d", len(want), len(responses))
	}
	for i, r := range responses {
		if r.Value != want[i] {
			t.Fatalf("response %d: expected %q, got %q", i, want[i], r.Value)
		}
	}
}

func TestPresentationStoreActiveCodeIsUnique(t *testing.T) {
	ctx := context.Background()
	store := NewPresentationStore()
	input := domain.NewPresentation{
		Title:      "Demo",
		AccessCode: "XYZ789",
		Questions:  []domain.QuestionDraft{{Type: domain.QuestionOpenEnded, Prompt: "Thoughts?"}},
	}
	first, err := store.CreatePresentation(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreatePresentation(ctx, input); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("expected duplicate session, got %v", err)
	}

	if err := store.EndPresentation(ctx, first.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	second, err := store.CreatePresentation(ctx, input)
	if err != nil {
		t.Fatalf("code should be reusable once inactive: %v", err)
	}
	found, err := store.GetPresentationByCode(ctx, "XYZ789")
	if err != nil || found.ID != second.ID {
		t.Fatalf("expected the active presentation, got %+v (%v)", found, err)
	}
}

func TestPresentationStoreNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewPresentationStore()
	if _, err := store.GetPresentationByCode(ctx, "NOPE22"); !errors.Is(err, domain.ErrPresentationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.EndPresentation(ctx, "missing"); !errors.Is(err, domain.ErrPresentationNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.AppendResponse(canceled, "q", "v"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}
