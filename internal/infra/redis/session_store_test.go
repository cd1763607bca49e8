package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"livepoll-service/internal/app"
	"livepoll-service/internal/domain"
	"livepoll-service/internal/infra/memory"
)

func TestSessionStoreSetsAndClearsKeys(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute, nil)

	if err := store.Create("ABC234", app.NewSession(samplePresentation("ABC234"))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("poll:session:ABC234") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("poll:session:ABC234"); ttl != time.Minute {
		t.Fatalf("expected ttl of one minute, got %v", ttl)
	}
	if err := store.Create("ABC234", app.NewSession(samplePresentation("ABC234"))); !errors.Is(err, domain.ErrDuplicateSession) {
		t.Fatalf("expected duplicate session, got %v", err)
	}

	store.Delete("ABC234")
	if mr.Exists("poll:session:ABC234") {
		t.Fatalf("expected redis key to be removed")
	}
	if _, ok := store.Get("ABC234"); ok {
		t.Fatalf("expected session removed")
	}
}

func TestSessionStorePositionSurvivesRestart(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewSessionStore(client, time.Minute, nil)
	if err := store.Create("ABC234", app.NewSession(samplePresentation("ABC234"))); err != nil {
		t.Fatalf("create: %v", err)
	}
	store.SavePosition("ABC234", 1)

	// A new process only sees what Redis kept.
	restarted := NewSessionStore(client, time.Minute, nil)
	if _, ok := restarted.Get("ABC234"); ok {
		t.Fatalf("sessions must not be shared through redis")
	}
	pos, ok := restarted.LoadPosition("ABC234")
	if !ok || pos != 1 {
		t.Fatalf("expected position 1, got %d (%v)", pos, ok)
	}
	if _, ok := restarted.LoadPosition("NOPE22"); ok {
		t.Fatalf("expected no position for unknown code")
	}

	mr.Set("poll:session:BAD222", "garbage")
	if _, ok := restarted.LoadPosition("BAD222"); ok {
		t.Fatalf("expected unparsable position to be ignored")
	}
}

func TestRestoredSessionResumesPosition(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	// The durable store is shared between the two service instances.
	store := memory.NewPresentationStore()
	first := app.NewPollService(NewSessionStore(client, time.Minute, nil), store, NewCodeRegistry(client, time.Minute), nil, nil, app.DefaultOptions())
	p, err := first.CreatePresentation(ctx, "Retro", []domain.QuestionDraft{
		{Type: domain.QuestionWordCloud, Prompt: "One word"},
		{Type: domain.QuestionOpenEnded, Prompt: "Anything else?"},
	})
	if err != nil {
		t.Fatalf("create presentation: %v", err)
	}
	if _, err := first.Advance(ctx, p.AccessCode, domain.Next); err != nil {
		t.Fatalf("advance: %v", err)
	}

	second := app.NewPollService(NewSessionStore(client, time.Minute, nil), store, NewCodeRegistry(client, time.Minute), nil, nil, app.DefaultOptions())
	q, err := second.CurrentQuestion(ctx, p.AccessCode)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	if q.ID != p.Questions[1].ID {
		t.Fatalf("expected to resume on the second question, got %+v", q)
	}
}

func samplePresentation(code string) domain.Presentation {
	return domain.Presentation{
		ID:         "p-" + code,
		Title:      "Demo",
		AccessCode: code,
		Active:     true,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionWordCloud, Prompt: "One word"},
			{ID: "q2", Type: domain.QuestionOpenEnded, Prompt: "Anything else?"},
		},
	}
}
