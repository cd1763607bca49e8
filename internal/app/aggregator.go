package app

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"livepoll-service/internal/domain"
)

// wordCloudTop is how many words a word cloud aggregate shows.
const wordCloudTop = 10

// DefaultOpenEndedMax bounds retained open ended texts when none is configured.
const DefaultOpenEndedMax = 200

// reducer folds accepted answers for one question into its aggregate.
// Callers serialize access; reducers are not safe for concurrent use.
type reducer interface {
	// validate checks raw input and returns the canonical value to persist.
	validate(v domain.Value) (string, error)
	// apply folds a canonical value; it must have come from validate.
	apply(canonical string) error
	snapshot() domain.Aggregate
}

// Aggregator owns the reducers of one session's questions.
type Aggregator struct {
	reducers map[string]reducer
}

// NewAggregator builds an empty aggregate for every question.
func NewAggregator(questions []domain.Question, openEndedMax int) *Aggregator {
	if openEndedMax <= 0 {
		openEndedMax = DefaultOpenEndedMax
	}
	a := &Aggregator{reducers: make(map[string]reducer, len(questions))}
	for _, q := range questions {
		a.reducers[q.ID] = newReducer(q, openEndedMax)
	}
	return a
}

// Validate type-checks a raw value against the question and returns the
// canonical form that is persisted and later applied.
func (a *Aggregator) Validate(questionID string, v domain.Value) (string, error) {
	r, ok := a.reducers[questionID]
	if !ok {
		return "", domain.ErrStaleQuestion
	}
	return r.validate(v)
}

// Apply folds one accepted value and returns the updated aggregate.
func (a *Aggregator) Apply(questionID, canonical string) (domain.Aggregate, error) {
	r, ok := a.reducers[questionID]
	if !ok {
		return domain.Aggregate{}, fmt.Errorf("apply to unknown question %s", questionID)
	}
	if err := r.apply(canonical); err != nil {
		return domain.Aggregate{}, err
	}
	return r.snapshot(), nil
}

// Snapshot returns a copy of the question's aggregate.
func (a *Aggregator) Snapshot(questionID string) domain.Aggregate {
	r, ok := a.reducers[questionID]
	if !ok {
		return domain.Aggregate{QuestionID: questionID}
	}
	return r.snapshot()
}

func newReducer(q domain.Question, openEndedMax int) reducer {
	switch q.Type {
	case domain.QuestionMultipleChoice:
		return newChoiceReducer(q)
	case domain.QuestionRating:
		return newRatingReducer(q)
	case domain.QuestionWordCloud:
		return newWordCloudReducer(q)
	default:
		return newOpenEndedReducer(q, openEndedMax)
	}
}

type choiceReducer struct {
	questionID string
	options    []string
	index      map[string]int
	counts     []int
	total      int
}

func newChoiceReducer(q domain.Question) *choiceReducer {
	r := &choiceReducer{
		questionID: q.ID,
		options:    append([]string(nil), q.Options...),
		index:      make(map[string]int, len(q.Options)),
		counts:     make([]int, len(q.Options)),
	}
	for i, opt := range q.Options {
		r.index[opt] = i
	}
	return r
}

func (r *choiceReducer) validate(v domain.Value) (string, error) {
	if v.IsNumber() {
		return "", domain.ErrInvalidAnswerType
	}
	// Exact, case-sensitive match against declared options.
	if _, ok := r.index[v.Text()]; !ok {
		return "", fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswerType, v.Text())
	}
	return v.Text(), nil
}

func (r *choiceReducer) apply(canonical string) error {
	i, ok := r.index[canonical]
	if !ok {
		return fmt.Errorf("%w: unknown option %q", domain.ErrInvalidAnswerType, canonical)
	}
	r.counts[i]++
	r.total++
	return nil
}

func (r *choiceReducer) snapshot() domain.Aggregate {
	options := make([]domain.OptionCount, len(r.options))
	for i, opt := range r.options {
		options[i] = domain.OptionCount{Option: opt, Count: r.counts[i]}
	}
	return domain.Aggregate{
		QuestionID: r.questionID,
		Type:       domain.QuestionMultipleChoice,
		Total:      r.total,
		Options:    options,
	}
}

type ratingReducer struct {
	questionID string
	scale      domain.RatingScale
	counts     []int
	total      int
}

func newRatingReducer(q domain.Question) *ratingReducer {
	scale := q.RatingRange()
	if scale.Validate() != nil {
		// Unvalidated questions never size the bucket slice.
		scale = domain.RatingScale{Min: domain.DefaultRatingMin, Max: domain.DefaultRatingMax}
	}
	return &ratingReducer{
		questionID: q.ID,
		scale:      scale,
		counts:     make([]int, scale.Max-scale.Min+1),
	}
}

func (r *ratingReducer) validate(v domain.Value) (string, error) {
	if !v.IsNumber() {
		return "", domain.ErrInvalidAnswerType
	}
	n := v.Number()
	if n != math.Trunc(n) || math.IsInf(n, 0) || math.IsNaN(n) {
		return "", fmt.Errorf("%w: rating must be an integer", domain.ErrInvalidAnswerType)
	}
	if n < float64(r.scale.Min) || n > float64(r.scale.Max) {
		return "", fmt.Errorf("%w: %v not in [%d, %d]", domain.ErrOutOfRangeRating, n, r.scale.Min, r.scale.Max)
	}
	return strconv.Itoa(int(n)), nil
}

func (r *ratingReducer) apply(canonical string) error {
	n, err := strconv.Atoi(canonical)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAnswerType, err)
	}
	if n < r.scale.Min || n > r.scale.Max {
		return domain.ErrOutOfRangeRating
	}
	r.counts[n-r.scale.Min]++
	r.total++
	return nil
}

func (r *ratingReducer) snapshot() domain.Aggregate {
	ratings := make([]domain.RatingCount, len(r.counts))
	for i, c := range r.counts {
		ratings[i] = domain.RatingCount{Rating: r.scale.Min + i, Count: c}
	}
	return domain.Aggregate{
		QuestionID: r.questionID,
		Type:       domain.QuestionRating,
		Total:      r.total,
		Ratings:    ratings,
	}
}

type wordEntry struct {
	word  string
	count int
	seq   int // first-seen order
	rank  int // index in top, -1 when outside
}

// before orders entries by count desc, then first seen.
func (e *wordEntry) before(o *wordEntry) bool {
	if e.count != o.count {
		return e.count > o.count
	}
	return e.seq < o.seq
}

// wordCloudReducer keeps every token count but only maintains the ordered
// top list incrementally: an increment can only move the changed key up.
type wordCloudReducer struct {
	questionID string
	words      map[string]*wordEntry
	top        []*wordEntry
	total      int
}

func newWordCloudReducer(q domain.Question) *wordCloudReducer {
	return &wordCloudReducer{
		questionID: q.ID,
		words:      make(map[string]*wordEntry),
		top:        make([]*wordEntry, 0, wordCloudTop),
	}
}

// NormalizeWord lower-cases and trims input and collapses inner whitespace,
// so multi-word input stays a single token.
func NormalizeWord(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func (r *wordCloudReducer) validate(v domain.Value) (string, error) {
	if v.IsNumber() {
		return "", domain.ErrInvalidAnswerType
	}
	text := strings.TrimSpace(v.Text())
	if text == "" {
		return "", domain.ErrEmptyAnswer
	}
	return text, nil
}

func (r *wordCloudReducer) apply(canonical string) error {
	word := NormalizeWord(canonical)
	if word == "" {
		return domain.ErrEmptyAnswer
	}
	e, ok := r.words[word]
	if !ok {
		e = &wordEntry{word: word, seq: len(r.words), rank: -1}
		r.words[word] = e
	}
	e.count++
	r.total++

	if e.rank < 0 {
		switch {
		case len(r.top) < wordCloudTop:
			e.rank = len(r.top)
			r.top = append(r.top, e)
		case e.before(r.top[len(r.top)-1]):
			last := r.top[len(r.top)-1]
			last.rank = -1
			e.rank = len(r.top) - 1
			r.top[e.rank] = e
		default:
			return nil
		}
	}
	for i := e.rank; i > 0 && e.before(r.top[i-1]); i-- {
		r.top[i], r.top[i-1] = r.top[i-1], r.top[i]
		r.top[i].rank = i
		r.top[i-1].rank = i - 1
	}
	return nil
}

func (r *wordCloudReducer) snapshot() domain.Aggregate {
	words := make([]domain.WordCount, len(r.top))
	for i, e := range r.top {
		words[i] = domain.WordCount{Word: e.word, Count: e.count}
	}
	return domain.Aggregate{
		QuestionID: r.questionID,
		Type:       domain.QuestionWordCloud,
		Total:      r.total,
		Words:      words,
	}
}

// openEndedReducer keeps the most recent texts in arrival order.
type openEndedReducer struct {
	questionID string
	max        int
	texts      []string
	total      int
}

func newOpenEndedReducer(q domain.Question, limit int) *openEndedReducer {
	return &openEndedReducer{questionID: q.ID, max: limit}
}

func (r *openEndedReducer) validate(v domain.Value) (string, error) {
	if v.IsNumber() {
		return "", domain.ErrInvalidAnswerType
	}
	text := strings.TrimSpace(v.Text())
	if text == "" {
		return "", domain.ErrEmptyAnswer
	}
	return text, nil
}

func (r *openEndedReducer) apply(canonical string) error {
	if strings.TrimSpace(canonical) == "" {
		return domain.ErrEmptyAnswer
	}
	r.texts = append(r.texts, canonical)
	if len(r.texts) > r.max {
		r.texts = r.texts[len(r.texts)-r.max:]
	}
	r.total++
	return nil
}

func (r *openEndedReducer) snapshot() domain.Aggregate {
	return domain.Aggregate{
		QuestionID: r.questionID,
		Type:       domain.QuestionOpenEnded,
		Total:      r.total,
		Texts:      append([]string(nil), r.texts...),
	}
}
