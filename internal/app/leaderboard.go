package app

import (
	"sort"
	"time"

	"github.com/NguyenHuynhPhuVinh/MiniBG-sub002/internal/domain"
)

// RankParticipants recomputes the leaderboard from a registry snapshot:
// score descending, ties broken by earlier submission time, then name.
// Teachers are excluded; they monitor, they do not compete.
func RankParticipants(sessionID string, participants []domain.Participant, now time.Time) domain.Leaderboard {
	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	byID := make(map[string]domain.Participant, len(participants))
	for _, p := range participants {
		if p.Role == domain.RoleTeacher {
			continue
		}
		byID[p.ID] = p
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi, pj := byID[entries[i].ParticipantID], byID[entries[j].ParticipantID]
		// Earlier submission ranks higher; participants with no graded
		// submission sort after those who have one.
		switch {
		case pi.LastSubmission.IsZero() && !pj.LastSubmission.IsZero():
			return false
		case !pi.LastSubmission.IsZero() && pj.LastSubmission.IsZero():
			return true
		case !pi.LastSubmission.Equal(pj.LastSubmission):
			return pi.LastSubmission.Before(pj.LastSubmission)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})

	total := len(entries)
	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Total = total
	}
	return domain.Leaderboard{SessionID: sessionID, Entries: entries, UpdatedAt: now}
}

// PositionOf returns the 1-based rank and participant count for one
// participant, or ErrRankUnavailable when they have no graded score yet.
func PositionOf(lb domain.Leaderboard, participants []domain.Participant, participantID string) (rank, total int, err error) {
	graded := false
	for _, p := range participants {
		if p.ID == participantID && !p.LastSubmission.IsZero() {
			graded = true
			break
		}
	}
	if !graded {
		return 0, 0, domain.ErrRankUnavailable
	}
	for _, entry := range lb.Entries {
		if entry.ParticipantID == participantID {
			return entry.Rank, entry.Total, nil
		}
	}
	return 0, 0, domain.ErrRankUnavailable
}
