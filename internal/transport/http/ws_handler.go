package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"livepoll-service/internal/app"
	"livepoll-service/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// ParticipantLimits bounds how fast one participant connection may submit.
type ParticipantLimits struct {
	RatePerSecond float64
	Burst         int
}

type WSHandler struct {
	service  *app.PollService
	logger   *zap.Logger
	limits   ParticipantLimits
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PollService, logger *zap.Logger, limits ParticipantLimits) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.RatePerSecond <= 0 {
		limits.RatePerSecond = 2
	}
	if limits.Burst <= 0 {
		limits.Burst = 5
	}
	return &WSHandler{
		service: service,
		logger:  logger,
		limits:  limits,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// replyFunc handles one inbound message and returns the replies for the
// sender only.
type replyFunc func(ctx context.Context, msg inboundMessage) []outboundMessage[any]

// ServePresenter streams every event of a session and accepts navigation commands.
func (h *WSHandler) ServePresenter(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	h.serve(w, r, code, app.RolePresenter, func(ctx context.Context, msg inboundMessage) []outboundMessage[any] {
		var err error
		switch msg.Type {
		case "next":
			_, err = h.service.Advance(ctx, code, domain.Next)
		case "previous":
			_, err = h.service.Advance(ctx, code, domain.Previous)
		case "end":
			err = h.service.EndSession(ctx, code)
		default:
			return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}}}
		}
		if err != nil {
			return []outboundMessage[any]{{Type: "error", Payload: newError(err)}}
		}
		// The resulting event arrives through the subscription.
		return nil
	})
}

// ServeParticipant follows question changes and accepts answers.
func (h *WSHandler) ServeParticipant(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing code", http.StatusBadRequest)
		return
	}
	limiter := rate.NewLimiter(rate.Limit(h.limits.RatePerSecond), h.limits.Burst)
	h.serve(w, r, code, app.RoleParticipant, func(ctx context.Context, msg inboundMessage) []outboundMessage[any] {
		if msg.Type != "answer" {
			return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Code: "unsupported", Message: "unsupported message type"}}}
		}
		if !limiter.Allow() {
			return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Code: "rate_limited", Message: "too many answers"}}}
		}
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return []outboundMessage[any]{{Type: "error", Payload: errorPayload{Code: "invalid_payload", Message: "invalid answer payload"}}}
		}
		resp, err := h.service.Submit(ctx, code, payload.QuestionID, payload.Value)
		if err != nil {
			return []outboundMessage[any]{{Type: "error", Payload: newError(err)}}
		}
		return []outboundMessage[any]{{Type: "accepted", Payload: acceptedPayload{ResponseID: resp.ID, QuestionID: resp.QuestionID}}}
	})
}

// serve upgrades the connection, subscribes and pumps events and replies
// through a single writer goroutine. A closed subscription (session ended)
// closes the socket; a failed read or write unsubscribes.
func (h *WSHandler) serve(w http.ResponseWriter, r *http.Request, code string, role app.Role, handle replyFunc) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	sub, initial, err := h.service.Subscribe(ctx, code, role)
	if err != nil {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: newError(err)})
		return
	}
	defer h.service.Unsubscribe(code, sub)
	h.logger.Debug("ws subscribed", zap.String("code", code), zap.String("role", string(role)), zap.Uint64("subscriber", sub.ID()))

	replies := make(chan outboundMessage[any], 16)
	readerDone := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		// Unblocks the reader once the writer gives up.
		defer conn.Close()
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()

		write := func(msg any) bool {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.String("code", code), zap.Error(err))
				return false
			}
			return true
		}

		if !write(outboundMessage[domain.Event]{Type: "snapshot", Payload: initial}) {
			return
		}
		events := sub.Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
					return
				}
				if !write(outboundMessage[domain.Event]{Type: string(ev.Kind), Payload: ev}) {
					return
				}
			case msg := <-replies:
				if !write(msg) {
					return
				}
			case <-ticker.C:
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			case <-readerDone:
				return
			}
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

read:
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Debug("ws unexpected close", zap.String("code", code), zap.Error(err))
			}
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		for _, reply := range handle(ctx, inbound) {
			select {
			case replies <- reply:
			case <-writerDone:
				break read
			}
		}
	}

	close(readerDone)
	<-writerDone
}
