package http

import (
	"net/http"

	"go.uber.org/zap"

	"livepoll-service/internal/app"
	"livepoll-service/internal/metrics"
)

// NewRouter wires the REST, websocket, health and metrics endpoints.
func NewRouter(service *app.PollService, logger *zap.Logger, m *metrics.Metrics, limits ParticipantLimits) http.Handler {
	api := NewAPIHandler(service, logger)
	ws := NewWSHandler(service, logger, limits)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", m.Handler())

	mux.HandleFunc("POST /presentations", api.CreatePresentation)
	mux.HandleFunc("GET /sessions/{code}", api.GetSession)
	mux.HandleFunc("POST /sessions/{code}/responses", api.Submit)
	mux.HandleFunc("POST /sessions/{code}/advance", api.Advance)
	mux.HandleFunc("POST /sessions/{code}/end", api.End)

	mux.HandleFunc("GET /ws/present", ws.ServePresenter)
	mux.HandleFunc("GET /ws/join", ws.ServeParticipant)
	return mux
}
