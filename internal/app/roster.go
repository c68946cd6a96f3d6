package app

import (
	"sort"
	"sync"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// Roster is the authoritative membership list for one session. Upserts are
// guarded by the participant's sequence number so concurrent inbound events
// cannot apply out of order relative to a single participant's own updates.
type Roster struct {
	mu           sync.RWMutex
	participants map[string]*domain.Participant
}

func NewRoster() *Roster {
	return &Roster{participants: make(map[string]*domain.Participant)}
}

// Upsert inserts or refreshes a participant. A stale update (sequence number
// at or below the stored one, unless equal-zero) is dropped; the return value
// reports whether the update applied.
func (r *Roster) Upsert(p domain.Participant) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.participants[p.ID]
	if ok && p.Seq != 0 && p.Seq <= existing.Seq {
		return false
	}
	copy := p
	r.participants[p.ID] = &copy
	return true
}

// Remove deletes a participant; removing an absent id is a no-op.
func (r *Roster) Remove(participantID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, participantID)
}

// Get returns a copy of the stored participant.
func (r *Roster) Get(participantID string) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[participantID]
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// Update applies fn to the stored participant under the lock and returns the
// result. Used for score/progress pushes where read-modify-write must not
// race with other inbound events.
func (r *Roster) Update(participantID string, fn func(*domain.Participant)) (domain.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[participantID]
	if !ok {
		return domain.Participant{}, false
	}
	fn(p)
	return *p, true
}

// List returns a stable name-sorted snapshot for display, ties broken by id.
func (r *Roster) List() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Participant, 0, len(r.participants))
	for _, p := range r.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName != out[j].DisplayName {
			return out[i].DisplayName < out[j].DisplayName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Reconcile replaces the whole membership list. Clients call this after a
// reconnect to correct drift from missed incremental events.
func (r *Roster) Reconcile(full []domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.participants = make(map[string]*domain.Participant, len(full))
	for _, p := range full {
		copy := p
		r.participants[p.ID] = &copy
	}
}

// Len reports the current membership count.
func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
