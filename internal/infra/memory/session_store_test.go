package memory

import (
	"errors"
	"testing"

	"livepoll-service/internal/app"
	"livepoll-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	store := NewSessionStore()
	session := app.NewSession(samplePresentation("ABC234"))

	if err := store.Create("ABC234", session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got, ok := store.Get("ABC234"); !ok || got != session {
		t.Fatalf("expected session present")
	}
	if err := store.Create("ABC234", app.NewSession(samplePresentation("ABC234"))); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("expected duplicate session, got %v", err)
	}
	if got := len(store.List()); got != 1 {
		t.Fatalf("expected 1 session, got %d", got)
	}

	store.Delete("ABC234")
	if _, ok := store.Get("ABC234"); ok {
		t.Fatalf("expected session removed")
	}
	if _, ok := store.LoadPosition("ABC234"); ok {
		t.Fatalf("expected position removed with the session")
	}
}

func TestSessionStorePositions(t *testing.T) {
	store := NewSessionStore()
	if _, ok := store.LoadPosition("ABC234"); ok {
		t.Fatalf("expected no position for unknown code")
	}
	if err := store.Create("ABC234", app.NewSession(samplePresentation("ABC234"))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if pos, ok := store.LoadPosition("ABC234"); !ok || pos != 0 {
		t.Fatalf("expected position 0, got %d (%v)", pos, ok)
	}
	store.SavePosition("ABC234", 2)
	if pos, _ := store.LoadPosition("ABC234"); pos != 2 {
		t.Fatalf("expected position 2, got %d", pos)
	}
}

func samplePresentation(code string) domain.Presentation {
	return domain.Presentation{
		ID:         "p-" + code,
		Title:      "Demo",
		AccessCode: code,
		Active:     true,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionOpenEnded, Prompt: "Anything else?"},
		},
	}
}
