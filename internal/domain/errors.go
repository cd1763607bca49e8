package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session uses the access code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned once the presenter has ended the session.
	ErrSessionEnded = errors.New("session ended")
	// ErrDuplicateSession is returned when an access code is already live.
	ErrDuplicateSession = errors.New("session already active for access code")
	// ErrStaleQuestion indicates an answer for a question that is no longer displayed.
	ErrStaleQuestion = errors.New("question is no longer current")
	// ErrInvalidAnswerType indicates the value does not fit the question type.
	ErrInvalidAnswerType = errors.New("answer does not match question type")
	// ErrEmptyAnswer indicates blank text for a text question.
	ErrEmptyAnswer = errors.New("answer is empty")
	// ErrOutOfRangeRating indicates a rating outside the declared scale.
	ErrOutOfRangeRating = errors.New("rating out of range")
	// ErrStoreUnavailable indicates the durable store failed or timed out.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrPresentationNotFound indicates the durable store has no such presentation.
	ErrPresentationNotFound = errors.New("presentation not found")
	// ErrInvalidQuestion indicates a malformed question at creation time.
	ErrInvalidQuestion = errors.New("invalid question")
)

// IsValidationError reports whether err is a participant input error that
// only concerns the submitting client.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrStaleQuestion) ||
		errors.Is(err, ErrInvalidAnswerType) ||
		errors.Is(err, ErrEmptyAnswer) ||
		errors.Is(err, ErrOutOfRangeRating)
}
