package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"livequiz/internal/domain"
)

// ParticipantStore persists room membership and cumulative scores.
type ParticipantStore interface {
	// Upsert creates the participant or refreshes the nickname, keeping score and join time.
	Upsert(ctx context.Context, p domain.Participant) (domain.Participant, error)
	Get(ctx context.Context, courseID, employeeID string) (domain.Participant, error)
	// IncrementScore adds delta and returns the new total.
	IncrementScore(ctx context.Context, courseID, employeeID string, delta int) (int, error)
	ListParticipants(ctx context.Context, courseID string) ([]domain.Participant, error)
}

// LeaderboardAggregator ranks a room's participants. It never mutates scores.
type LeaderboardAggregator struct {
	participants ParticipantStore
	now          func() time.Time
}

func NewLeaderboardAggregator(participants ParticipantStore, now func() time.Time) *LeaderboardAggregator {
	if now == nil {
		now = time.Now
	}
	return &LeaderboardAggregator{participants: participants, now: now}
}

// Rank returns at most limit entries ordered by cumulative score. A non-positive limit
// returns everyone.
func (a *LeaderboardAggregator) Rank(ctx context.Context, roomID string, limit int) (domain.Leaderboard, error) {
	participants, err := a.participants.ListParticipants(ctx, roomID)
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("list participants: %w", err)
	}

	sortParticipants(participants)
	if limit > 0 && len(participants) > limit {
		participants = participants[:limit]
	}

	entries := make([]domain.LeaderboardEntry, 0, len(participants))
	for _, p := range participants {
		entries = append(entries, domain.LeaderboardEntry{
			ParticipantID: p.EmployeeID,
			Nickname:      p.Nickname,
			Score:         p.TotalScore,
		})
	}
	return domain.Leaderboard{
		RoomID:    roomID,
		Entries:   entries,
		Limit:     limit,
		UpdatedAt: a.now(),
	}, nil
}

// sortParticipants orders by score desc; ties go to whoever joined first, then employee id.
func sortParticipants(ps []domain.Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].TotalScore != ps[j].TotalScore {
			return ps[i].TotalScore > ps[j].TotalScore
		}
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].EmployeeID < ps[j].EmployeeID
	})
}
