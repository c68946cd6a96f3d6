// Package realtime is the channel adapter for session events: a small
// publish/subscribe surface keyed by session, personal, and role channels.
// Delivery is at least once and ordering is only guaranteed per channel;
// clients reconcile through full snapshots when in doubt.
package realtime

import (
	"context"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// Broker publishes and subscribes session events. Subscribe returns a
// receive channel plus a cancel handle; cancel is idempotent and must be
// called on teardown to prevent stale-callback leaks.
type Broker interface {
	Publish(ctx context.Context, channel string, evt domain.Event) error
	Subscribe(ctx context.Context, channel string) (<-chan domain.Event, func(), error)
}

// SessionChannel addresses every subscriber of a session.
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// PersonalChannel addresses a single participant.
func PersonalChannel(sessionID, participantID string) string {
	return "session:" + sessionID + ":user:" + participantID
}

// RoleChannel addresses all subscribers holding a role (the teacher's
// monitoring room, for instance).
func RoleChannel(sessionID string, role domain.Role) string {
	return "session:" + sessionID + ":role:" + string(role)
}
