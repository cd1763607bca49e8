package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"livepoll-service/internal/domain"
	"livepoll-service/internal/metrics"
)

// SessionRepository abstracts where live sessions are registered (in-memory, Redis-aware).
type SessionRepository interface {
	// Create registers a session. It fails with domain.ErrDuplicateSession
	// when a live session already uses the code; ended sessions are replaced.
	Create(code string, session *Session) error
	Get(code string) (*Session, bool)
	Delete(code string)
	List() []*Session
	// SavePosition and LoadPosition keep the current question index so a
	// restored session resumes where the presenter left off.
	SavePosition(code string, position int)
	LoadPosition(code string) (int, bool)
}

// PresentationStore is the durable source of truth for presentations and responses.
type PresentationStore interface {
	CreatePresentation(ctx context.Context, p domain.NewPresentation) (domain.Presentation, error)
	GetPresentationByCode(ctx context.Context, code string) (domain.Presentation, error)
	GetQuestions(ctx context.Context, presentationID string) ([]domain.Question, error)
	AppendResponse(ctx context.Context, questionID, value string) (domain.Response, error)
	ListResponses(ctx context.Context, questionIDs []string) ([]domain.Response, error)
	EndPresentation(ctx context.Context, presentationID string) error
}

// CodeRegistry hands out access codes unique among active presentations.
type CodeRegistry interface {
	Reserve(ctx context.Context) (string, error)
	Release(ctx context.Context, code string) error
}

// Options tunes timeouts, buffering and session lifetime.
type Options struct {
	StoreTimeout     time.Duration
	StoreRetries     int
	RetryInterval    time.Duration
	SubscriberBuffer int
	OpenEndedMax     int
	// PresenterGrace ends sessions without presenters for this long; zero disables.
	PresenterGrace time.Duration
	EndedRetention time.Duration
	ReapInterval   time.Duration
}

// DefaultOptions returns the values used when config leaves them empty.
func DefaultOptions() Options {
	return Options{
		StoreTimeout:     2 * time.Second,
		StoreRetries:     3,
		RetryInterval:    50 * time.Millisecond,
		SubscriberBuffer: DefaultSubscriberBuffer,
		OpenEndedMax:     DefaultOpenEndedMax,
		PresenterGrace:   10 * time.Minute,
		EndedRetention:   5 * time.Minute,
		ReapInterval:     30 * time.Second,
	}
}

// PollService contains the live session use cases: navigation, ingestion
// and fan-out.
type PollService struct {
	sessions SessionRepository
	store    PresentationStore
	codes    CodeRegistry
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
	now      func() time.Time
	restores singleflight.Group
}

func NewPollService(sessions SessionRepository, store PresentationStore, codes CodeRegistry, logger *zap.Logger, m *metrics.Metrics, opts Options) *PollService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollService{
		sessions: sessions,
		store:    store,
		codes:    codes,
		logger:   logger,
		metrics:  m,
		opts:     opts,
		now:      time.Now,
	}
}

// SetClock is test-only for deterministic reaping.
func (s *PollService) SetClock(now func() time.Time) {
	s.now = now
}

// createAttempts bounds how often CreatePresentation draws a new code after
// finding the reserved one already in use.
const createAttempts = 3

// CreatePresentation persists a presentation under a fresh access code and
// starts its live session.
func (s *PollService) CreatePresentation(ctx context.Context, title string, drafts []domain.QuestionDraft) (domain.Presentation, error) {
	input := domain.NewPresentation{Title: title, Questions: drafts}
	if err := input.Validate(); err != nil {
		return domain.Presentation{}, err
	}

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		var p domain.Presentation
		p, err = s.createWithCode(ctx, input)
		if !errors.Is(err, domain.ErrDuplicateSession) {
			return p, err
		}
		s.logger.Warn("access code already in use", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return domain.Presentation{}, fmt.Errorf("%w: %v", ErrCodeSpaceExhausted, err)
}

// createWithCode reserves one code and stores and starts the presentation
// under it. A duplicate means the code is held by another active
// presentation, so its reservation is kept.
func (s *PollService) createWithCode(ctx context.Context, input domain.NewPresentation) (domain.Presentation, error) {
	code, err := s.codes.Reserve(ctx)
	if err != nil {
		return domain.Presentation{}, fmt.Errorf("reserve access code: %w", err)
	}
	input.AccessCode = code

	var p domain.Presentation
	err = s.withStore(ctx, "create_presentation", func(ctx context.Context) error {
		var err error
		p, err = s.store.CreatePresentation(ctx, input)
		return err
	})
	if err != nil {
		if !errors.Is(err, domain.ErrDuplicateSession) {
			s.releaseCode(code)
		}
		return domain.Presentation{}, err
	}

	if _, err := s.StartSession(p); err != nil {
		s.logger.Warn("start session", zap.String("code", code), zap.Error(err))
		// Without a live session the stored row must not stay active.
		endErr := s.withStore(ctx, "end_presentation", func(ctx context.Context) error {
			return s.store.EndPresentation(ctx, p.ID)
		})
		if endErr != nil {
			s.logger.Error("mark presentation inactive", zap.String("code", code), zap.Error(endErr))
		}
		if !errors.Is(err, domain.ErrDuplicateSession) {
			s.releaseCode(code)
		}
		return domain.Presentation{}, err
	}
	return p, nil
}

// StartSession registers a live session for an already stored presentation.
func (s *PollService) StartSession(p domain.Presentation) (*Session, error) {
	if err := validateQuestions(p.Questions); err != nil {
		return nil, err
	}
	session := s.newSession(p)
	if err := s.sessions.Create(p.AccessCode, session); err != nil {
		return nil, err
	}
	s.metrics.SessionStarted()
	s.logger.Info("session started",
		zap.String("code", p.AccessCode),
		zap.String("presentation", p.ID),
		zap.Int("questions", len(p.Questions)))
	return session, nil
}

// Session returns the live session for code, restoring it if needed.
func (s *PollService) Session(ctx context.Context, code string) (*Session, error) {
	return s.lookup(ctx, code)
}

// CurrentQuestion returns the question participants should answer now.
func (s *PollService) CurrentQuestion(ctx context.Context, code string) (domain.Question, error) {
	session, err := s.lookup(ctx, code)
	if err != nil {
		return domain.Question{}, err
	}
	return session.currentQuestion()
}

// Snapshot returns the current question and its aggregate.
func (s *PollService) Snapshot(ctx context.Context, code string) (domain.Event, error) {
	session, err := s.lookup(ctx, code)
	if err != nil {
		return domain.Event{}, err
	}
	return session.snapshot()
}

// Advance moves to the next or previous question. At either end it is a
// no-op that returns the unchanged state.
func (s *PollService) Advance(ctx context.Context, code string, dir domain.Direction) (domain.Event, error) {
	if dir != domain.Next && dir != domain.Previous {
		return domain.Event{}, fmt.Errorf("invalid direction %d", dir)
	}
	session, err := s.lookup(ctx, code)
	if err != nil {
		return domain.Event{}, err
	}
	ev, moved, err := session.advance(dir)
	if err != nil {
		return domain.Event{}, err
	}
	if moved {
		s.sessions.SavePosition(code, ev.Position)
		s.logger.Debug("question changed", zap.String("code", code), zap.Int("position", ev.Position))
	}
	return ev, nil
}

// EndSession stops accepting responses and notifies all subscribers. It is
// idempotent; calling it again retries a durable end that failed.
func (s *PollService) EndSession(ctx context.Context, code string) error {
	session, err := s.lookup(ctx, code)
	if errors.Is(err, domain.ErrSessionEnded) {
		if tombstone, ok := s.sessions.Get(code); ok {
			return s.storeEnd(ctx, tombstone)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if ended, closed := session.end(); ended {
		for _, sub := range closed {
			s.metrics.SubscriberRemoved(string(sub.Role()))
		}
		s.metrics.SessionEnded()
		s.logger.Info("session ended", zap.String("code", code))
	}
	return s.storeEnd(ctx, session)
}

// storeEnd marks the presentation of an ended session inactive and frees its
// code. Until it succeeds the tombstone stays registered so the session
// cannot be restored as active.
func (s *PollService) storeEnd(ctx context.Context, session *Session) error {
	if session.status().endStored {
		return nil
	}
	err := s.withStore(ctx, "end_presentation", func(ctx context.Context) error {
		return s.store.EndPresentation(ctx, session.PresentationID())
	})
	if err != nil && !errors.Is(err, domain.ErrPresentationNotFound) {
		s.logger.Error("mark presentation inactive", zap.String("code", session.Code()), zap.Error(err))
		return err
	}
	session.markEndStored()
	s.releaseCode(session.Code())
	return nil
}

// Submit validates an answer, persists it and folds it into the aggregate.
// Validation errors concern only the caller; the session is unchanged.
func (s *PollService) Submit(ctx context.Context, code, questionID string, value domain.Value) (domain.Response, error) {
	session, err := s.lookup(ctx, code)
	if err != nil {
		s.metrics.Rejected(rejectReason(err))
		return domain.Response{}, err
	}

	canonical, err := session.prepare(questionID, value)
	if err != nil {
		s.metrics.Rejected(rejectReason(err))
		return domain.Response{}, err
	}

	// Ending the session cancels appends that are still waiting on the store.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(session.ctx, cancel)
	defer stop()

	var resp domain.Response
	err = s.withStore(ctx, "append_response", func(ctx context.Context) error {
		var err error
		resp, err = s.store.AppendResponse(ctx, questionID, canonical)
		return err
	})
	if err != nil {
		session.abort()
		if session.ctx.Err() != nil {
			err = domain.ErrSessionEnded
		}
		s.metrics.Rejected(rejectReason(err))
		s.logger.Warn("response not stored",
			zap.String("code", code),
			zap.String("question", questionID),
			zap.Error(err))
		return domain.Response{}, err
	}

	agg, err := session.commit(questionID, canonical)
	if err != nil {
		return domain.Response{}, err
	}
	s.metrics.Accepted(string(agg.Type))
	return resp, nil
}

// Subscribe registers a viewer and returns the current state so it never
// starts blank. Callers must Unsubscribe when done.
func (s *PollService) Subscribe(ctx context.Context, code string, role Role) (*Subscription, domain.Event, error) {
	session, err := s.lookup(ctx, code)
	if err != nil {
		return nil, domain.Event{}, err
	}
	sub, initial, err := session.subscribe(role)
	if err != nil {
		return nil, domain.Event{}, err
	}
	s.metrics.SubscriberAdded(string(role))
	return sub, initial, nil
}

// Unsubscribe removes one subscriber. The last presenter leaving does not
// end the session; the reaper does after the grace period.
func (s *PollService) Unsubscribe(code string, sub *Subscription) {
	if sub == nil {
		return
	}
	session, ok := s.sessions.Get(code)
	if !ok {
		return
	}
	presenters, removed := session.unsubscribe(sub)
	if !removed {
		return
	}
	s.metrics.SubscriberRemoved(string(sub.Role()))
	if sub.Role() == RolePresenter && presenters == 0 {
		s.logger.Info("last presenter left", zap.String("code", code))
	}
}

// Run reaps idle and ended sessions until ctx is canceled.
func (s *PollService) Run(ctx context.Context) error {
	interval := s.opts.ReapInterval
	if interval <= 0 {
		interval = DefaultOptions().ReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Reap(ctx)
		}
	}
}

// Reap ends sessions abandoned by their presenter and forgets ended ones
// after the retention period.
func (s *PollService) Reap(ctx context.Context) {
	now := s.now()
	for _, session := range s.sessions.List() {
		st := session.status()
		switch {
		case st.ended && !st.endStored:
			if err := s.storeEnd(ctx, session); err != nil {
				s.logger.Warn("retry durable end", zap.String("code", session.Code()), zap.Error(err))
			}
		case st.ended && now.Sub(st.endedAt) >= s.opts.EndedRetention:
			s.sessions.Delete(session.Code())
		case !st.ended && s.opts.PresenterGrace > 0 && !st.idleSince.IsZero() && now.Sub(st.idleSince) >= s.opts.PresenterGrace:
			s.logger.Info("ending abandoned session", zap.String("code", session.Code()))
			if err := s.EndSession(ctx, session.Code()); err != nil {
				s.logger.Warn("end abandoned session", zap.String("code", session.Code()), zap.Error(err))
			}
		}
	}
}

// lookup finds a live session, restoring it from the durable store after a
// restart. Concurrent misses for one code share a single restore.
func (s *PollService) lookup(ctx context.Context, code string) (*Session, error) {
	if session, ok := s.sessions.Get(code); ok {
		if session.Ended() {
			return nil, domain.ErrSessionEnded
		}
		return session, nil
	}
	result, err, _ := s.restores.Do(code, func() (interface{}, error) {
		if session, ok := s.sessions.Get(code); ok {
			return session, nil
		}
		return s.restore(ctx, code)
	})
	if err != nil {
		return nil, err
	}
	session := result.(*Session)
	if session.Ended() {
		return nil, domain.ErrSessionEnded
	}
	return session, nil
}

func (s *PollService) restore(ctx context.Context, code string) (*Session, error) {
	var p domain.Presentation
	err := s.withStore(ctx, "get_presentation", func(ctx context.Context) error {
		var err error
		p, err = s.store.GetPresentationByCode(ctx, code)
		return err
	})
	if errors.Is(err, domain.ErrPresentationNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, domain.ErrSessionEnded
	}

	err = s.withStore(ctx, "get_questions", func(ctx context.Context) error {
		var err error
		p.Questions, err = s.store.GetQuestions(ctx, p.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if len(p.Questions) == 0 {
		return nil, domain.ErrSessionNotFound
	}
	if err := validateQuestions(p.Questions); err != nil {
		return nil, err
	}

	ids := make([]string, len(p.Questions))
	for i, q := range p.Questions {
		ids[i] = q.ID
	}
	var responses []domain.Response
	err = s.withStore(ctx, "list_responses", func(ctx context.Context) error {
		var err error
		responses, err = s.store.ListResponses(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}

	session := s.newSession(p)
	applied := session.replay(responses)
	if pos, ok := s.sessions.LoadPosition(code); ok {
		session.setPosition(pos)
	}
	if err := s.sessions.Create(code, session); err != nil {
		if existing, ok := s.sessions.Get(code); ok {
			return existing, nil
		}
		return nil, err
	}
	s.metrics.SessionStarted()
	s.logger.Info("session restored",
		zap.String("code", code),
		zap.String("presentation", p.ID),
		zap.Int("responses", applied),
		zap.Int("position", session.Position()))
	return session, nil
}

func (s *PollService) newSession(p domain.Presentation) *Session {
	return newSession(p, sessionOptions{
		now:          s.now,
		buffer:       s.opts.SubscriberBuffer,
		openEndedMax: s.opts.OpenEndedMax,
		onDrop:       s.metrics.EventDropped,
	})
}

// withStore runs op with a per-attempt timeout and bounded exponential
// backoff. Failures surface as domain.ErrStoreUnavailable unless they are
// domain errors or ctx itself was canceled.
func (s *PollService) withStore(ctx context.Context, name string, op func(ctx context.Context) error) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.opts.RetryInterval
	exp.MaxElapsedTime = 0
	retries := s.opts.StoreRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		attemptCtx := ctx
		if s.opts.StoreTimeout > 0 {
			var cancel context.CancelFunc
			attemptCtx, cancel = context.WithTimeout(ctx, s.opts.StoreTimeout)
			defer cancel()
		}
		start := time.Now()
		err := op(attemptCtx)
		s.metrics.ObserveStore(name, start, err)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil, isDomainError(err):
			return backoff.Permanent(err)
		}
		s.logger.Debug("store call failed", zap.String("op", name), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, policy)
	if err == nil {
		return nil
	}
	if isDomainError(err) || errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, name, ctxErr)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, name, err)
}

func validateQuestions(questions []domain.Question) error {
	if len(questions) == 0 {
		return fmt.Errorf("%w: presentation has no questions", domain.ErrInvalidQuestion)
	}
	for i, q := range questions {
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

func (s *PollService) releaseCode(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.StoreTimeout+time.Second)
	defer cancel()
	if err := s.codes.Release(ctx, code); err != nil {
		s.logger.Warn("release access code", zap.String("code", code), zap.Error(err))
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, domain.ErrPresentationNotFound) ||
		errors.Is(err, domain.ErrDuplicateSession) ||
		errors.Is(err, domain.ErrInvalidQuestion)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrSessionEnded):
		return "session_ended"
	case errors.Is(err, domain.ErrStaleQuestion):
		return "stale_question"
	case errors.Is(err, domain.ErrInvalidAnswerType):
		return "invalid_answer_type"
	case errors.Is(err, domain.ErrEmptyAnswer):
		return "empty_answer"
	case errors.Is(err, domain.ErrOutOfRangeRating):
		return "out_of_range_rating"
	case errors.Is(err, domain.ErrStoreUnavailable):
		return "store_unavailable"
	default:
		return "other"
	}
}
