package app

import (
	"errors"
	"testing"
	"time"

	"livepoll-service/internal/domain"
)

func testPresentation() domain.Presentation {
	return domain.Presentation{
		ID:         "p1",
		Title:      "Friday sync",
		AccessCode: "ABC234",
		Active:     true,
		Questions: []domain.Question{
			{ID: "q1", Type: domain.QuestionMultipleChoice, Prompt: "Pick", Options: []string{"A", "B"}},
			{ID: "q2", Type: domain.QuestionRating, Prompt: "Rate", Position: 1},
		},
	}
}

func TestDeliverDropsOldest(t *testing.T) {
	sub := newSubscription("ABC234", RolePresenter, 2)
	dropped := 0
	for i := 0; i < 5; i++ {
		if sub.deliver(domain.Event{Position: i}) {
			dropped++
		}
	}
	if dropped != 3 {
		t.Fatalf("expected 3 drops, got %d", dropped)
	}
	first := <-sub.Events()
	second := <-sub.Events()
	if first.Position != 3 || second.Position != 4 {
		t.Fatalf("expected the two newest events, got %d and %d", first.Position, second.Position)
	}
}

func TestParticipantsSkipAggregateUpdates(t *testing.T) {
	s := NewSession(testPresentation())
	presenter, _, err := s.subscribe(RolePresenter)
	if err != nil {
		t.Fatalf("subscribe presenter: %v", err)
	}
	participant, _, err := s.subscribe(RoleParticipant)
	if err != nil {
		t.Fatalf("subscribe participant: %v", err)
	}

	canonical, err := s.prepare("q1", domain.TextValue("A"))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if _, err := s.commit("q1", canonical); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, moved, err := s.advance(domain.Next); err != nil || !moved {
		t.Fatalf("advance: moved=%v err=%v", moved, err)
	}

	if ev := <-presenter.Events(); ev.Kind != domain.EventAggregateUpdated {
		t.Fatalf("presenter expected aggregate update first, got %s", ev.Kind)
	}
	if ev := <-presenter.Events(); ev.Kind != domain.EventQuestionChanged {
		t.Fatalf("presenter expected question change, got %s", ev.Kind)
	}
	if ev := <-participant.Events(); ev.Kind != domain.EventQuestionChanged {
		t.Fatalf("participant expected only the question change, got %s", ev.Kind)
	}
}

func TestAdvanceWaitsForInflightSubmission(t *testing.T) {
	s := NewSession(testPresentation())
	sub, _, err := s.subscribe(RolePresenter)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	canonical, err := s.prepare("q1", domain.TextValue("B"))
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, _, err := s.advance(domain.Next); err != nil {
			t.Errorf("advance: %v", err)
		}
	}()

	select {
	case <-done:
		t.Fatalf("advance returned while a submission was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	// Once the advance is pending, new submissions for q1 are stale.
	if _, err := s.prepare("q1", domain.TextValue("A")); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale question while advancing, got %v", err)
	}

	if _, err := s.commit("q1", canonical); err != nil {
		t.Fatalf("commit: %v", err)
	}
	<-done

	if ev := <-sub.Events(); ev.Kind != domain.EventAggregateUpdated || ev.QuestionID != "q1" {
		t.Fatalf("expected q1 aggregate update first, got %s for %s", ev.Kind, ev.QuestionID)
	}
	if ev := <-sub.Events(); ev.Kind != domain.EventQuestionChanged || ev.QuestionID != "q2" {
		t.Fatalf("expected change to q2, got %s for %s", ev.Kind, ev.QuestionID)
	}
}

func TestEndReleasesPendingAdvance(t *testing.T) {
	s := NewSession(testPresentation())
	if _, err := s.prepare("q1", domain.TextValue("A")); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	errc := make(chan error, 1)
	go func() {
		_, _, err := s.advance(domain.Next)
		errc <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if ended, _ := s.end(); !ended {
		t.Fatalf("expected first end to report true")
	}
	select {
	case err := <-errc:
		if !errors.Is(err, domain.ErrSessionEnded) {
			t.Fatalf("expected session ended, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("advance still blocked after end")
	}
	select {
	case <-s.Done():
	default:
		t.Fatalf("expected Done to be closed after end")
	}
	if ended, _ := s.end(); ended {
		t.Fatalf("expected second end to be a no-op")
	}
}

func TestReplayRebuildsAggregates(t *testing.T) {
	s := NewSession(testPresentation())
	applied := s.replay([]domain.Response{
		{QuestionID: "q1", Value: "A"},
		{QuestionID: "q1", Value: "A"},
		{QuestionID: "q2", Value: "9"},
		{QuestionID: "q2", Value: "not-a-number"},
	})
	if applied != 3 {
		t.Fatalf("expected 3 applied, got %d", applied)
	}
	if got := s.Aggregate("q1"); got.Total != 2 || got.Options[0].Count != 2 {
		t.Fatalf("unexpected q1 aggregate %+v", got)
	}
	if got := s.Aggregate("q2"); got.Total != 1 || got.Ratings[8].Count != 1 {
		t.Fatalf("unexpected q2 aggregate %+v", got)
	}
}
