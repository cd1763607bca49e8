package domain

import (
	"time"
)

// QuestionType selects how answers to a question are validated and aggregated.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionRating         QuestionType = "rating"
	QuestionWordCloud      QuestionType = "word_cloud"
	QuestionOpenEnded      QuestionType = "open_ended"
)

// Default rating scale used when a rating question does not declare one.
const (
	DefaultRatingMin = 1
	DefaultRatingMax = 10
)

// MaxRatingPoints bounds how many distinct values one rating scale offers.
const MaxRatingPoints = 101

// RatingScale is the inclusive integer range accepted by a rating question.
type RatingScale struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// Question is one slide of a presentation. Position is fixed at creation.
type Question struct {
	ID             string       `json:"id"`
	PresentationID string       `json:"presentationId"`
	Type           QuestionType `json:"type"`
	Prompt         string       `json:"prompt"`
	Options        []string     `json:"options,omitempty"`
	Position       int          `json:"position"`
	Scale          *RatingScale `json:"scale,omitempty"`
}

// RatingRange returns the effective scale, falling back to 1-10.
func (q Question) RatingRange() RatingScale {
	if q.Scale == nil {
		return RatingScale{Min: DefaultRatingMin, Max: DefaultRatingMax}
	}
	return *q.Scale
}

// Presentation owns an ordered list of questions and the access code participants join with.
type Presentation struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	AccessCode string     `json:"accessCode"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"createdAt"`
	Questions  []Question `json:"questions"`
}

// QuestionDraft is the presenter input for a question before it is stored.
type QuestionDraft struct {
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options,omitempty"`
	Scale   *RatingScale `json:"scale,omitempty"`
}

// NewPresentation is what the durable store receives when a presenter starts a poll.
type NewPresentation struct {
	Title      string
	AccessCode string
	Questions  []QuestionDraft
}

// Response is an accepted answer. Value holds the canonical accepted form:
// the option text, a decimal rating or the trimmed free text.
type Response struct {
	ID         string    `json:"id"`
	QuestionID string    `json:"questionId"`
	Value      string    `json:"value"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// OptionCount is the tally of one declared multiple choice option.
type OptionCount struct {
	Option string `json:"option"`
	Count  int    `json:"count"`
}

// RatingCount is the tally of one rating value.
type RatingCount struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

// WordCount is one entry of a word cloud.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Aggregate is the display-ready summary of a question. Only the field
// matching Type is populated. Total is the number of accepted responses.
type Aggregate struct {
	QuestionID string        `json:"questionId"`
	Type       QuestionType  `json:"type"`
	Total      int           `json:"total"`
	Options    []OptionCount `json:"options,omitempty"`
	Ratings    []RatingCount `json:"ratings,omitempty"`
	Words      []WordCount   `json:"words,omitempty"`
	Texts      []string      `json:"texts,omitempty"`
}

// EventKind enumerates what subscribers of a session receive.
type EventKind string

const (
	EventAggregateUpdated EventKind = "aggregate_updated"
	EventQuestionChanged  EventKind = "question_changed"
	EventSessionEnded     EventKind = "session_ended"
)

// Event is pushed to subscribers. It always carries the full aggregate of
// the question it refers to, never a delta.
type Event struct {
	Kind       EventKind `json:"kind"`
	Code       string    `json:"code"`
	QuestionID string    `json:"questionId"`
	Position   int       `json:"position"`
	Question   Question  `json:"question"`
	Aggregate  Aggregate `json:"aggregate"`
	At         time.Time `json:"at"`
}

// Direction moves the current question pointer.
type Direction int

const (
	Previous Direction = -1
	Next     Direction = 1
)
