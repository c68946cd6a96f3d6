package domain

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// EventType names the realtime events fanned out over session channels.
type EventType string

const (
	EventSessionStarted       EventType = "sessionStarted"
	EventSessionFinished      EventType = "sessionFinished"
	EventParticipantJoined    EventType = "participantJoined"
	EventParticipantsSnapshot EventType = "participantsSnapshot"
	EventParticipantCompleted EventType = "participantCompleted"
	EventRankUpdated          EventType = "rankUpdated"
)

// Event is the wire envelope published through the realtime broker.
// Delivery is at least once; the ID lets consumers de-duplicate.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEvent builds an event with a fresh id and a JSON-encoded payload.
func NewEvent(t EventType, sessionID string, payload any) (Event, error) {
	evt := Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: sessionID,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("encode %s payload: %w", t, err)
		}
		evt.Payload = raw
	}
	return evt, nil
}

// DecodePayload unmarshals the payload into dst.
func (e Event) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, dst)
}

// SessionStartedPayload announces the transition to the live phase.
type SessionStartedPayload struct {
	SessionID string `json:"sessionId"`
	// Deadline is the server-issued absolute end time (unix milliseconds);
	// clients derive their countdown from it instead of a local clock.
	Deadline int64 `json:"deadline"`
}

// ParticipantCompletedPayload announces a finished attempt.
type ParticipantCompletedPayload struct {
	ParticipantID string       `json:"participantId"`
	Score         int          `json:"score"`
	Rounds        []RoundTally `json:"rounds"`
}
