package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"livepoll-service/internal/domain"
)

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID string       `json:"questionId"`
	Value      domain.Value `json:"value"`
}

type acceptedPayload struct {
	ResponseID string `json:"responseId"`
	QuestionID string `json:"questionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newError(err error) errorPayload {
	return errorPayload{Code: errorCode(err), Message: err.Error()}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrPresentationNotFound):
		return "session_not_found"
	case errors.Is(err, domain.ErrSessionEnded):
		return "session_ended"
	case errors.Is(err, domain.ErrDuplicateSession):
		return "duplicate_session"
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
	case errors.Is(err, domain.ErrInvalidQuestion):
		return "invalid_question"
	default:
		return "internal"
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrPresentationNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionEnded):
		return http.StatusGone
	case errors.Is(err, domain.ErrDuplicateSession):
		return http.StatusConflict
	case domain.IsValidationError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidQuestion):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), newError(err))
}
