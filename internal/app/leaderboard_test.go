package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/domain"
	"livequiz/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardRankOrdering(t *testing.T) {
	ctx := context.Background()
	store := memory.NewParticipantStore()
	base := time.Unix(1_700_000_000, 0)

	seed := []struct {
		id     string
		joined time.Duration
		score  int
	}{
		{"carol", 2 * time.Second, 1500},
		{"alice", 0, 1750},
		{"bob", time.Second, 1500},
		{"dave", 3 * time.Second, 0},
	}
	for _, s := range seed {
		_, err := store.Upsert(ctx, domain.Participant{CourseID: "c1", EmployeeID: s.id, Nickname: s.id, JoinedAt: base.Add(s.joined)})
		require.NoError(t, err)
		if s.score > 0 {
			_, err = store.IncrementScore(ctx, "c1", s.id, s.score)
			require.NoError(t, err)
		}
	}

	agg := app.NewLeaderboardAggregator(store, func() time.Time { return base })
	lb, err := agg.Rank(ctx, "c1", 0)
	require.NoError(t, err)

	ids := make([]string, 0, len(lb.Entries))
	for _, e := range lb.Entries {
		ids = append(ids, e.ParticipantID)
	}
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, ids)
	for i := 1; i < len(lb.Entries); i++ {
		assert.GreaterOrEqual(t, lb.Entries[i-1].Score, lb.Entries[i].Score)
	}

	top, err := agg.Rank(ctx, "c1", 2)
	require.NoError(t, err)
	assert.Len(t, top.Entries, 2)
	assert.Equal(t, 2, top.Limit)
	assert.Equal(t, "c1", top.RoomID)
}

func TestLeaderboardEmptyRoom(t *testing.T) {
	agg := app.NewLeaderboardAggregator(memory.NewParticipantStore(), nil)
	lb, err := agg.Rank(context.Background(), "nobody", 5)
	require.NoError(t, err)
	assert.Empty(t, lb.Entries)
}

func TestLeaderboardStoreFailure(t *testing.T) {
	agg := app.NewLeaderboardAggregator(failingParticipants{}, nil)
	_, err := agg.Rank(context.Background(), "c1", 5)
	assert.ErrorIs(t, err, errStoreDown)
}

var errStoreDown = errors.New("store down")

type failingParticipants struct {
	app.ParticipantStore
}

func (failingParticipants) ListParticipants(context.Context, string) ([]domain.Participant, error) {
	return nil, errStoreDown
}
