package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// WSHandler upgrades HTTP requests to websockets and wires them into the
// engine's use cases. Hosts and players connect to separate endpoints but
// share the same outbound event stream.
type WSHandler struct {
	service  *app.GameService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		log:     logger.With().Str("component", "ws").Logger(),
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

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createPayload struct {
	QuizID   string          `json:"quizId"`
	Settings domain.Settings `json:"settings"`
}

type kickPayload struct {
	PlayerID string `json:"playerId"`
}

type answerPayload struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
	ElapsedMs  int64  `json:"elapsedMs"`
}

// ServeHost handles the host connection: the first message must create the
// session; every later message is a host command against it.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request) {
	hostID := r.URL.Query().Get("hostId")
	if hostID == "" {
		http.Error(w, "missing hostId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	var inbound inboundMessage
	if err := conn.ReadJSON(&inbound); err != nil {
		return
	}
	if inbound.Type != "create" {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "first message must be create"}})
		return
	}
	var create createPayload
	if err := json.Unmarshal(inbound.Payload, &create); err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "invalid create payload"}})
		return
	}

	info, err := h.service.CreateSession(r.Context(), hostID, create.QuizID, create.Settings)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorOf(err)})
		return
	}

	updates, cancel, err := h.service.Subscribe(info.SessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorOf(err)})
		return
	}
	defer cancel()

	send, stopWriting := h.startWriter(conn, updates)
	defer stopWriting()

	send <- outboundMessage{Type: "created", Payload: info}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		ctx := r.Context()
		var cmdErr error
		switch inbound.Type {
		case "start":
			cmdErr = h.service.Start(ctx, info.SessionID, hostID)
		case "pause":
			cmdErr = h.service.Pause(ctx, info.SessionID, hostID)
		case "resume":
			cmdErr = h.service.Resume(ctx, info.SessionID, hostID)
		case "next":
			cmdErr = h.service.Next(ctx, info.SessionID, hostID)
		case "end":
			cmdErr = h.service.End(ctx, info.SessionID, hostID)
		case "kick":
			var kick kickPayload
			if err := json.Unmarshal(inbound.Payload, &kick); err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "invalid kick payload"}}
				continue
			}
			cmdErr = h.service.Kick(ctx, info.SessionID, hostID, kick.PlayerID)
		default:
			send <- outboundMessage{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "unsupported message type"}}
			continue
		}
		if cmdErr != nil {
			send <- outboundMessage{Type: "error", Payload: errorOf(cmdErr)}
		}
	}
}

// ServePlay handles a player connection: join by code, then submit answers.
// Closing the socket marks the player DISCONNECTED, not removed; reconnecting
// with the same playerId restores score and streak and replays the snapshot.
func (h *WSHandler) ServePlay(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	playerID := r.URL.Query().Get("playerId")
	displayName := r.URL.Query().Get("name")
	if code == "" || playerID == "" || displayName == "" {
		http.Error(w, "missing code, playerId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	snap, err := h.service.Join(r.Context(), code, playerID, displayName)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorOf(err)})
		return
	}
	sessionID := snap.SessionID
	defer h.service.Disconnect(sessionID, playerID)

	updates, cancel, err := h.service.Subscribe(sessionID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage{Type: "error", Payload: errorOf(err)})
		return
	}
	defer cancel()

	send, stopWriting := h.startWriter(conn, updates)
	defer stopWriting()

	send <- outboundMessage{Type: "joined", Payload: snap}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var answer answerPayload
			if err := json.Unmarshal(inbound.Payload, &answer); err != nil {
				send <- outboundMessage{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "invalid answer payload"}}
				continue
			}
			result, err := h.service.SubmitAnswer(r.Context(), sessionID, playerID, domain.AnswerSubmission{
				QuestionID: answer.QuestionID,
				OptionID:   answer.OptionID,
				ElapsedMs:  answer.ElapsedMs,
			})
			if err != nil {
				send <- outboundMessage{Type: "error", Payload: errorOf(err)}
				continue
			}
			send <- outboundMessage{Type: "answerResult", Payload: result}
		default:
			send <- outboundMessage{Type: "error", Payload: errorPayload{Code: "BAD_REQUEST", Message: "unsupported message type"}}
		}
	}
}

// startWriter owns all writes to the connection: one goroutine serializes the
// send channel, another forwards session events onto it. A slow or dead
// client only loses its own messages.
func (h *WSHandler) startWriter(conn *websocket.Conn, updates <-chan domain.Event) (chan outboundMessage, func()) {
	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage{Type: string(ev.Type), Payload: ev.Payload}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	stop := func() {
		close(closeSignals)
		<-updatesDone
		close(send)
		<-writerDone
	}
	return send, stop
}

// errorOf maps engine sentinels to stable client-facing codes; players render
// these as toasts for their own rejected actions.
func errorOf(err error) errorPayload {
	code := "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidState):
		code = "INVALID_STATE"
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrQuestionNotFound), errors.Is(err, domain.ErrOptionNotFound),
		errors.Is(err, domain.ErrPlayerNotFound):
		code = "NOT_FOUND"
	case errors.Is(err, domain.ErrUnauthorized):
		code = "UNAUTHORIZED"
	case errors.Is(err, domain.ErrRoundClosed):
		code = "ROUND_CLOSED"
	case errors.Is(err, domain.ErrGamePaused):
		code = "GAME_PAUSED"
	case errors.Is(err, domain.ErrDuplicateAnswer):
		code = "DUPLICATE_ANSWER"
	case errors.Is(err, domain.ErrSessionTerminated):
		code = "SESSION_TERMINATED"
	case errors.Is(err, domain.ErrRosterFull):
		code = "CAPACITY"
	case errors.Is(err, domain.ErrPlayerRemoved):
		code = "REMOVED"
	case errors.Is(err, domain.ErrLateJoinDisabled):
		code = "LATE_JOIN_DISABLED"
	}
	return errorPayload{Code: code, Message: err.Error()}
}
