package app

import (
	"context"
	"sync"
	"time"

	"livepoll-service/internal/domain"
)

// Session is the in-memory live state of one presentation. Its lock
// serializes submissions, navigation and subscriber changes; every event is
// produced under the write lock so subscribers observe one total order.
type Session struct {
	code         string
	presentation domain.Presentation
	questions    []domain.Question
	now          func() time.Time
	buffer       int
	onDrop       func()

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	drained     *sync.Cond
	current     int
	inflight    int  // validated submissions not yet committed or aborted
	advancing   bool // an advance is waiting for inflight to drain
	agg         *Aggregator
	subscribers map[*Subscription]struct{}
	presenters  int
	ended       bool
	endedAt     time.Time
	endStored   bool // the store has marked the presentation inactive
	idleSince   time.Time
}

type sessionOptions struct {
	now          func() time.Time
	buffer       int
	openEndedMax int
	onDrop       func()
}

func newSession(p domain.Presentation, opts sessionOptions) *Session {
	if opts.now == nil {
		opts.now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	questions := append([]domain.Question(nil), p.Questions...)
	s := &Session{
		code:         p.AccessCode,
		presentation: p,
		questions:    questions,
		now:          opts.now,
		buffer:       opts.buffer,
		onDrop:       opts.onDrop,
		ctx:          ctx,
		cancel:       cancel,
		agg:          NewAggregator(questions, opts.openEndedMax),
		subscribers:  make(map[*Subscription]struct{}),
		idleSince:    opts.now(),
	}
	s.drained = sync.NewCond(&s.mu)
	return s
}

// NewSession is exported for infrastructure layers that need to seed sessions.
func NewSession(p domain.Presentation) *Session {
	return newSession(p, sessionOptions{})
}

func (s *Session) Code() string           { return s.code }
func (s *Session) PresentationID() string { return s.presentation.ID }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.ctx.Done() }

// Ended reports whether the presenter ended the session.
func (s *Session) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// Subscribers returns the number of connected viewers.
func (s *Session) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Position returns the index of the current question.
func (s *Session) Position() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// setPosition is only used before the session is registered.
func (s *Session) setPosition(i int) {
	if i < 0 || i >= len(s.questions) {
		return
	}
	s.mu.Lock()
	s.current = i
	s.mu.Unlock()
}

// replay folds stored responses into fresh aggregates without publishing.
func (s *Session) replay(responses []domain.Response) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	applied := 0
	for _, r := range responses {
		if _, err := s.agg.Apply(r.QuestionID, r.Value); err == nil {
			applied++
		}
	}
	return applied
}

func (s *Session) currentQuestion() (domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ended {
		return domain.Question{}, domain.ErrSessionEnded
	}
	return s.questions[s.current], nil
}

// snapshot returns the current question with its aggregate, shaped as a
// question change so a fresh viewer can render it directly.
func (s *Session) snapshot() (domain.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ended {
		return domain.Event{}, domain.ErrSessionEnded
	}
	return s.eventLocked(domain.EventQuestionChanged), nil
}

// Aggregate returns the aggregate of any question in the session.
func (s *Session) Aggregate(questionID string) domain.Aggregate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agg.Snapshot(questionID)
}

// prepare validates a submission against the current state and registers
// it as in flight. Every successful prepare must be followed by commit or
// abort.
func (s *Session) prepare(questionID string, v domain.Value) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return "", domain.ErrSessionEnded
	}
	if s.advancing || s.questions[s.current].ID != questionID {
		return "", domain.ErrStaleQuestion
	}
	canonical, err := s.agg.Validate(questionID, v)
	if err != nil {
		return "", err
	}
	s.inflight++
	return canonical, nil
}

// abort releases an in-flight submission whose durable append failed.
func (s *Session) abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	s.drained.Broadcast()
}

// commit folds a durably stored value into the aggregate. The value is
// counted even if the session ended meanwhile so persisted and aggregated
// data never diverge; only live sessions broadcast.
func (s *Session) commit(questionID, canonical string) (domain.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	defer s.drained.Broadcast()
	agg, err := s.agg.Apply(questionID, canonical)
	if err != nil {
		return domain.Aggregate{}, err
	}
	if !s.ended {
		// The answered question may no longer be current.
		q, pos := s.questionLocked(questionID)
		s.publishLocked(domain.Event{
			Kind:       domain.EventAggregateUpdated,
			Code:       s.code,
			QuestionID: questionID,
			Position:   pos,
			Question:   q,
			Aggregate:  agg,
			At:         s.now(),
		})
	}
	return agg, nil
}

// advance moves the pointer; it reports false at either boundary, in which
// case nothing is published. Submissions already validated for the current
// question are committed first so their updates precede QuestionChanged;
// new submissions for that question are stale from here on.
func (s *Session) advance(dir domain.Direction) (domain.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.advancing && !s.ended {
		s.drained.Wait()
	}
	if s.ended {
		return domain.Event{}, false, domain.ErrSessionEnded
	}
	if !s.canMoveLocked(dir) {
		return s.eventLocked(domain.EventQuestionChanged), false, nil
	}

	s.advancing = true
	for s.inflight > 0 && !s.ended {
		s.drained.Wait()
	}
	s.advancing = false
	s.drained.Broadcast()
	if s.ended {
		return domain.Event{}, false, domain.ErrSessionEnded
	}

	s.current += int(dir)
	ev := s.eventLocked(domain.EventQuestionChanged)
	s.publishLocked(ev)
	return ev, true, nil
}

func (s *Session) canMoveLocked(dir domain.Direction) bool {
	next := s.current + int(dir)
	return next != s.current && next >= 0 && next < len(s.questions)
}

// end publishes SessionEnded, closes all subscriptions and cancels pending
// work. It reports true only for the call that actually ended the session,
// together with the subscriptions it closed.
func (s *Session) end() (bool, []*Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false, nil
	}
	s.ended = true
	s.endedAt = s.now()
	s.publishLocked(s.eventLocked(domain.EventSessionEnded))
	closed := make([]*Subscription, 0, len(s.subscribers))
	for sub := range s.subscribers {
		close(sub.ch)
		delete(s.subscribers, sub)
		closed = append(closed, sub)
	}
	s.presenters = 0
	s.cancel()
	s.drained.Broadcast()
	return true, closed
}

func (s *Session) subscribe(role Role) (*Subscription, domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil, domain.Event{}, domain.ErrSessionEnded
	}
	sub := newSubscription(s.code, role, s.buffer)
	s.subscribers[sub] = struct{}{}
	if role == RolePresenter {
		s.presenters++
		s.idleSince = time.Time{}
	}
	return sub, s.eventLocked(domain.EventQuestionChanged), nil
}

// unsubscribe returns the number of presenters left and whether sub was
// still registered.
func (s *Session) unsubscribe(sub *Subscription) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subscribers[sub]; !ok {
		return s.presenters, false
	}
	delete(s.subscribers, sub)
	close(sub.ch)
	if sub.role == RolePresenter {
		s.presenters--
		if s.presenters == 0 {
			s.idleSince = s.now()
		}
	}
	return s.presenters, true
}

// markEndStored records that the durable end was written, so the tombstone
// may be forgotten.
func (s *Session) markEndStored() {
	s.mu.Lock()
	s.endStored = true
	s.mu.Unlock()
}

type sessionStatus struct {
	ended       bool
	endedAt     time.Time
	endStored   bool
	idleSince   time.Time
	subscribers int
}

func (s *Session) status() sessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sessionStatus{
		ended:       s.ended,
		endedAt:     s.endedAt,
		endStored:   s.endStored,
		idleSince:   s.idleSince,
		subscribers: len(s.subscribers),
	}
}

func (s *Session) questionLocked(questionID string) (domain.Question, int) {
	for i, q := range s.questions {
		if q.ID == questionID {
			return q, i
		}
	}
	return domain.Question{}, -1
}

func (s *Session) eventLocked(kind domain.EventKind) domain.Event {
	q := s.questions[s.current]
	return domain.Event{
		Kind:       kind,
		Code:       s.code,
		QuestionID: q.ID,
		Position:   s.current,
		Question:   q,
		Aggregate:  s.agg.Snapshot(q.ID),
		At:         s.now(),
	}
}

func (s *Session) publishLocked(ev domain.Event) {
	for sub := range s.subscribers {
		if !sub.wants(ev.Kind) {
			continue
		}
		if sub.deliver(ev) && s.onDrop != nil {
			s.onDrop()
		}
	}
}
