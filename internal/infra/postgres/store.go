package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"livepoll-service/internal/domain"
)

const uniqueViolation = "23505"

// Store persists presentations, questions and responses in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreatePresentation(ctx context.Context, input domain.NewPresentation) (domain.Presentation, error) {
	p := domain.Presentation{
		ID:         uuid.NewString(),
		Title:      input.Title,
		AccessCode: input.AccessCode,
		Active:     true,
		Questions:  make([]domain.Question, len(input.Questions)),
	}
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO presentations (id, title, access_code, active) VALUES ($1, $2, $3, TRUE) RETURNING created_at`,
			p.ID, p.Title, p.AccessCode,
		).Scan(&p.CreatedAt)
		if err != nil {
			return err
		}
		for i, d := range input.Questions {
			q := domain.Question{
				ID:             uuid.NewString(),
				PresentationID: p.ID,
				Type:           d.Type,
				Prompt:         d.Prompt,
				Options:        d.Options,
				Position:       i,
				Scale:          d.Scale,
			}
			options, err := json.Marshal(nonNil(q.Options))
			if err != nil {
				return fmt.Errorf("marshal options: %w", err)
			}
			var scaleMin, scaleMax *int32
			if q.Scale != nil {
				lo, hi := int32(q.Scale.Min), int32(q.Scale.Max)
				scaleMin, scaleMax = &lo, &hi
			}
			_, err = tx.Exec(ctx,
				`INSERT INTO questions (id, presentation_id, position, type, prompt, options, scale_min, scale_max)
				 VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8)`,
				q.ID, q.PresentationID, q.Position, string(q.Type), q.Prompt, string(options), scaleMin, scaleMax,
			)
			if err != nil {
				return err
			}
			p.Questions[i] = q
		}
		return nil
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.Presentation{}, domain.ErrDuplicateSession
		}
		return domain.Presentation{}, fmt.Errorf("create presentation: %w", err)
	}
	return p, nil
}

// GetPresentationByCode prefers the active presentation for a code, then the newest.
func (s *Store) GetPresentationByCode(ctx context.Context, code string) (domain.Presentation, error) {
	var p domain.Presentation
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, access_code, active, created_at
		   FROM presentations
		  WHERE access_code = $1
		  ORDER BY active DESC, created_at DESC
		  LIMIT 1`,
		code,
	).Scan(&p.ID, &p.Title, &p.AccessCode, &p.Active, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Presentation{}, domain.ErrPresentationNotFound
	}
	if err != nil {
		return domain.Presentation{}, fmt.Errorf("load presentation: %w", err)
	}
	return p, nil
}

func (s *Store) GetQuestions(ctx context.Context, presentationID string) ([]domain.Question, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, presentation_id, position, type, prompt, options, scale_min, scale_max
		   FROM questions
		  WHERE presentation_id = $1
		  ORDER BY position`,
		presentationID,
	)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	defer rows.Close()

	var questions []domain.Question
	for rows.Next() {
		var (
			q                  domain.Question
			qType              string
			rawOptions         []byte
			scaleMin, scaleMax *int32
		)
		if err := rows.Scan(&q.ID, &q.PresentationID, &q.Position, &qType, &q.Prompt, &rawOptions, &scaleMin, &scaleMax); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.Type = domain.QuestionType(qType)
		if err := json.Unmarshal(rawOptions, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		if len(q.Options) == 0 {
			q.Options = nil
		}
		if scaleMin != nil && scaleMax != nil {
			q.Scale = &domain.RatingScale{Min: int(*scaleMin), Max: int(*scaleMax)}
		}
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	return questions, nil
}

func (s *Store) AppendResponse(ctx context.Context, questionID, value string) (domain.Response, error) {
	r := domain.Response{
		ID:         uuid.NewString(),
		QuestionID: questionID,
		Value:      value,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO responses (id, question_id, value) VALUES ($1, $2, $3) RETURNING received_at`,
		r.ID, r.QuestionID, r.Value,
	).Scan(&r.ReceivedAt)
	if err != nil {
		return domain.Response{}, fmt.Errorf("append response: %w", err)
	}
	return r, nil
}

// ListResponses returns responses in insertion order.
func (s *Store) ListResponses(ctx context.Context, questionIDs []string) ([]domain.Response, error) {
	if len(questionIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, question_id, value, received_at
		   FROM responses
		  WHERE question_id = ANY($1)
		  ORDER BY seq`,
		questionIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	defer rows.Close()

	var responses []domain.Response
	for rows.Next() {
		var (
			r  domain.Response
			at time.Time
		)
		if err := rows.Scan(&r.ID, &r.QuestionID, &r.Value, &at); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}
		r.ReceivedAt = at
		responses = append(responses, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return responses, nil
}

func (s *Store) EndPresentation(ctx context.Context, presentationID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE presentations SET active = FALSE WHERE id = $1`, presentationID)
	if err != nil {
		return fmt.Errorf("end presentation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPresentationNotFound
	}
	return nil
}

func nonNil(options []string) []string {
	if options == nil {
		return []string{}
	}
	return options
}
