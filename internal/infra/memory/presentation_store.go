package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"livepoll-service/internal/domain"
)

// PresentationStore keeps presentations and responses in process memory
// (useful for tests/demos). It enforces the same unique active code rule as
// the Postgres schema.
type PresentationStore struct {
	clock func() time.Time

	mu            sync.RWMutex
	presentations map[string]domain.Presentation
	responses     map[string][]domain.Response // by question ID
}

func NewPresentationStore() *PresentationStore {
	return &PresentationStore{
		clock:         time.Now,
		presentations: make(map[string]domain.Presentation),
		responses:     make(map[string][]domain.Response),
	}
}

func (s *PresentationStore) CreatePresentation(ctx context.Context, input domain.NewPresentation) (domain.Presentation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Presentation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.presentations {
		if p.Active && p.AccessCode == input.AccessCode {
			return domain.Presentation{}, domain.ErrDuplicateSession
		}
	}

	p := domain.Presentation{
		ID:         uuid.NewString(),
		Title:      input.Title,
		AccessCode: input.AccessCode,
		Active:     true,
		CreatedAt:  s.clock(),
		Questions:  make([]domain.Question, len(input.Questions)),
	}
	for i, d := range input.Questions {
		p.Questions[i] = domain.Question{
			ID:             uuid.NewString(),
			PresentationID: p.ID,
			Type:           d.Type,
			Prompt:         d.Prompt,
			Options:        append([]string(nil), d.Options...),
			Position:       i,
			Scale:          d.Scale,
		}
	}
	s.presentations[p.ID] = p
	return p, nil
}

func (s *PresentationStore) GetPresentationByCode(ctx context.Context, code string) (domain.Presentation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Presentation{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *domain.Presentation
	for _, p := range s.presentations {
		if p.AccessCode != code {
			continue
		}
		p := p
		// Prefer the active one, then the most recent.
		if found == nil || (p.Active && !found.Active) || (p.Active == found.Active && p.CreatedAt.After(found.CreatedAt)) {
			found = &p
		}
	}
	if found == nil {
		return domain.Presentation{}, domain.ErrPresentationNotFound
	}
	return *found, nil
}

func (s *PresentationStore) GetQuestions(ctx context.Context, presentationID string) ([]domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presentations[presentationID]
	if !ok {
		return nil, domain.ErrPresentationNotFound
	}
	questions := append([]domain.Question(nil), p.Questions...)
	sort.SliceStable(questions, func(i, j int) bool { return questions[i].Position < questions[j].Position })
	return questions, nil
}

func (s *PresentationStore) AppendResponse(ctx context.Context, questionID, value string) (domain.Response, error) {
	if err := ctx.Err(); err != nil {
		return domain.Response{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := domain.Response{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		Value:      value,
		ReceivedAt: s.clock(),
	}
	s.responses[questionID] = append(s.responses[questionID], r)
	return r, nil
}

// ListResponses returns responses grouped by the given question order, each
// group in append order.
func (s *PresentationStore) ListResponses(ctx context.Context, questionIDs []string) ([]domain.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Response
	for _, id := range questionIDs {
		out = append(out, s.responses[id]...)
	}
	return out, nil
}

func (s *PresentationStore) EndPresentation(ctx context.Context, presentationID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presentations[presentationID]
	if !ok {
		return domain.ErrPresentationNotFound
	}
	p.Active = false
	s.presentations[presentationID] = p
	return nil
}
