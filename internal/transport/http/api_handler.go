package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"livepoll-service/internal/app"
	"livepoll-service/internal/domain"
)

// Request body limits. Answers share the websocket frame limit.
const (
	maxPresentationBody = 64 << 10
	maxAnswerBody       = maxMessageSize
)

// APIHandler exposes the poll use cases over plain HTTP.
type APIHandler struct {
	service *app.PollService
	logger  *zap.Logger
}

func NewAPIHandler(service *app.PollService, logger *zap.Logger) *APIHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{service: service, logger: logger}
}

type createPresentationRequest struct {
	Title     string                 `json:"title"`
	Questions []domain.QuestionDraft `json:"questions"`
}

type submitRequest struct {
	QuestionID string       `json:"questionId"`
	Value      domain.Value `json:"value"`
}

type advanceRequest struct {
	Direction string `json:"direction"`
}

// CreatePresentation handles POST /presentations.
func (h *APIHandler) CreatePresentation(w http.ResponseWriter, r *http.Request) {
	var req createPresentationRequest
	if !decodeBody(w, r, maxPresentationBody, &req) {
		return
	}
	p, err := h.service.CreatePresentation(r.Context(), req.Title, req.Questions)
	if err != nil {
		h.logError("create presentation", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetSession handles GET /sessions/{code}: current question and aggregate.
func (h *APIHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.Snapshot(r.Context(), r.PathValue("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// Submit handles POST /sessions/{code}/responses.
func (h *APIHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeBody(w, r, maxAnswerBody, &req) {
		return
	}
	resp, err := h.service.Submit(r.Context(), r.PathValue("code"), req.QuestionID, req.Value)
	if err != nil {
		h.logError("submit", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// Advance handles POST /sessions/{code}/advance.
func (h *APIHandler) Advance(w http.ResponseWriter, r *http.Request) {
	var req advanceRequest
	if !decodeBody(w, r, maxAnswerBody, &req) {
		return
	}
	var dir domain.Direction
	switch req.Direction {
	case "next":
		dir = domain.Next
	case "previous":
		dir = domain.Previous
	default:
		writeJSON(w, http.StatusBadRequest, errorPayload{Code: "invalid_payload", Message: "direction must be next or previous"})
		return
	}
	ev, err := h.service.Advance(r.Context(), r.PathValue("code"), dir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// End handles POST /sessions/{code}/end.
func (h *APIHandler) End(w http.ResponseWriter, r *http.Request) {
	if err := h.service.EndSession(r.Context(), r.PathValue("code")); err != nil {
		h.logError("end session", err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeBody reads at most limit bytes of JSON into v and writes the error
// response itself when that fails.
func decodeBody(w http.ResponseWriter, r *http.Request, limit int64, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit)).Decode(v)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorPayload{Code: "payload_too_large", Message: "request body too large"})
		return false
	}
	writeJSON(w, http.StatusBadRequest, errorPayload{Code: "invalid_payload", Message: "invalid request body"})
	return false
}

// logError keeps participant validation noise out of the error log.
func (h *APIHandler) logError(op string, err error) {
	if domain.IsValidationError(err) || statusFor(err) < http.StatusInternalServerError {
		h.logger.Debug(op+" rejected", zap.Error(err))
		return
	}
	h.logger.Error(op+" failed", zap.Error(err))
}
