package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/app"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/realtime"
)

// WSHandler upgrades HTTP requests to websockets and wires each connection
// into the session use cases plus its three event channels (session,
// personal, role).
type WSHandler struct {
	service  *app.SessionService
	broker   realtime.Broker
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.SessionService, broker realtime.Broker) *WSHandler {
	return &WSHandler{
		service: service,
		broker:  broker,
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

type answerPayload struct {
	QuestionID string `json:"questionId"`
	AnswerID   string `json:"answerId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type rankPayload struct {
	Rank  int `json:"rank"`
	Total int `json:"total"`
}

// ServeWS handles one participant connection for its whole lifetime.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	participantID := r.URL.Query().Get("participantId")
	displayName := r.URL.Query().Get("name")
	pin := r.URL.Query().Get("pin")
	role := domain.Role(r.URL.Query().Get("role"))
	if role == "" {
		role = domain.RoleStudent
	}
	if sessionID == "" || participantID == "" || displayName == "" {
		http.Error(w, "missing sessionId, participantId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The connection outlives the request in spirit; lifecycle calls made
	// from timers and teardown use a background context.
	ctx := context.Background()

	joined, err := h.service.Join(ctx, sessionID, participantID, displayName, role, pin)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	channels := []string{
		realtime.SessionChannel(sessionID),
		realtime.PersonalChannel(sessionID, participantID),
		realtime.RoleChannel(sessionID, role),
	}
	var cancels []func()
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
	}()

	send := make(chan outboundMessage[any], 32)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	var pumps sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// One countdown per connected client, armed from the server-issued
	// deadline. The time-up path is guarded, so racing a forced fire
	// against the natural one cannot double-submit.
	var (
		countdownMu sync.Mutex
		countdown   *app.Countdown
	)
	armCountdown := func(deadline time.Time) {
		countdownMu.Lock()
		defer countdownMu.Unlock()
		if role != domain.RoleStudent || countdown != nil || deadline.IsZero() {
			return
		}
		countdown = app.NewCountdown(deadline, func() {
			h.service.TimeUp(ctx, sessionID, participantID)
		})
		countdown.Start()
	}
	defer func() {
		countdownMu.Lock()
		defer countdownMu.Unlock()
		if countdown != nil {
			countdown.Stop()
		}
	}()

	forward := func(evt domain.Event) outboundMessage[any] {
		return outboundMessage[any]{Type: string(evt.Type), Payload: evt.Payload}
	}

	for _, channel := range channels {
		events, cancel, err := h.broker.Subscribe(ctx, channel)
		if err != nil {
			_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
			return
		}
		cancels = append(cancels, cancel)

		pumps.Add(1)
		go func() {
			defer pumps.Done()
			for {
				select {
				case evt, ok := <-events:
					if !ok {
						return
					}
					if evt.Type == domain.EventSessionStarted {
						var payload domain.SessionStartedPayload
						if err := evt.DecodePayload(&payload); err == nil && payload.Deadline > 0 {
							armCountdown(time.UnixMilli(payload.Deadline))
						}
					}
					select {
					case send <- forward(evt):
					case <-closeSignals:
						return
					}
				case <-closeSignals:
					return
				}
			}
		}()
	}

	defer h.service.Disconnect(ctx, sessionID, participantID)

	send <- outboundMessage[any]{Type: "joined", Payload: joined}
	if joined.Status.IsActive() {
		armCountdown(joined.Deadline)
	}

	left := false
	for !left {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errMessage("invalid answer payload")
				continue
			}
			result, err := h.service.SubmitAnswer(ctx, sessionID, participantID, domain.AnswerSubmission{
				QuestionID: payload.QuestionID,
				AnswerID:   payload.AnswerID,
			})
			if err != nil {
				send <- errMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "answerResult", Payload: result}

		case "start":
			state, err := h.service.Start(ctx, sessionID, participantID)
			if err != nil {
				send <- errMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "sessionState", Payload: state}

		case "finish":
			state, err := h.service.Finish(ctx, sessionID, participantID)
			if err != nil {
				send <- errMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "sessionState", Payload: state}

		case "leaderboard":
			lb, err := h.service.Leaderboard(ctx, sessionID)
			if err != nil {
				send <- errMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}

		case "rank":
			rank, total, err := h.service.RankOf(ctx, sessionID, participantID)
			if err != nil {
				send <- errMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "rank", Payload: rankPayload{Rank: rank, Total: total}}

		case "reconcile":
			state, err := h.service.State(ctx, sessionID)
			if err != nil {
				send <- errMessage(err.Error())
				continue
			}
			send <- outboundMessage[any]{Type: "sessionState", Payload: state}

		case "leave":
			h.service.Leave(ctx, sessionID, participantID)
			left = true

		default:
			send <- errMessage("unsupported message type")
		}
	}

	close(closeSignals)
	pumps.Wait()
	close(send)
	<-writerDone
}

func errMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
