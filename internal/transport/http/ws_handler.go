package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"puzzle-scoring-service/internal/app"
	"puzzle-scoring-service/internal/domain"
)

type WSHandler struct {
	service  *app.Service
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.Service, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type submitPayload struct {
	ChallengeID string `json:"challengeId"`
	Answer      string `json:"answer"`
	ElapsedMS   *int64 `json:"elapsedMs,omitempty"`
}

type attemptResult struct {
	Attempt   domain.Attempt `json:"attempt"`
	Remaining int            `json:"remaining"`
	Solved    bool           `json:"solved"`
}

type rejectedPayload struct {
	ChallengeID string        `json:"challengeId"`
	Reason      domain.Reason `json:"reason"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets. Clients submit answers over the
// socket and receive ranking snapshots after every rebuild.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := domain.UserID(r.URL.Query().Get("userId"))
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	log := h.log.WithField("user_id", userID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws upgrade failed")
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Feed.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.WithError(err).Debug("ws write failed")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "ranking", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "submit":
			var payload submitPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.ChallengeID == "" {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid submit payload"}}
				continue
			}
			send <- h.submit(r, userID, payload)
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) submit(r *http.Request, user domain.UserID, payload submitPayload) outboundMessage[any] {
	ctx := r.Context()
	var elapsed *time.Duration
	if payload.ElapsedMS != nil {
		d := time.Duration(*payload.ElapsedMS) * time.Millisecond
		elapsed = &d
	}

	attempt, err := h.service.Submit(ctx, user, payload.ChallengeID, payload.Answer, elapsed)
	if err != nil {
		var rejection *domain.Rejection
		if errors.As(err, &rejection) {
			return outboundMessage[any]{Type: "rejected", Payload: rejectedPayload{
				ChallengeID: payload.ChallengeID,
				Reason:      rejection.Reason,
			}}
		}
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
	}

	remaining, err := h.service.RemainingAttempts(ctx, user, payload.ChallengeID)
	if err != nil {
		h.log.WithError(err).WithField("challenge_id", payload.ChallengeID).Warn("remaining attempts lookup failed")
	}
	return outboundMessage[any]{Type: "attemptResult", Payload: attemptResult{
		Attempt:   attempt,
		Remaining: remaining,
		Solved:    attempt.Correct,
	}}
}
