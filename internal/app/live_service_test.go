package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/domain"
	"livequiz/internal/infra/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	roomID string
	to     string // empty for room-wide broadcasts
	event  domain.Event
}

type recordingBroadcaster struct {
	mu     sync.Mutex
	events []sentEvent
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, roomID string, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{roomID: roomID, event: ev})
}

func (b *recordingBroadcaster) SendTo(_ context.Context, roomID, participantID string, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, sentEvent{roomID: roomID, to: participantID, event: ev})
}

func (b *recordingBroadcaster) count(eventType string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, ev := range b.events {
		if ev.event.Type == eventType {
			n++
		}
	}
	return n
}

func (b *recordingBroadcaster) take() []sentEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.events
	b.events = nil
	return out
}

type failingResults struct{}

func (failingResults) AppendResult(context.Context, domain.ResultRecord) error {
	return errStoreDown
}

type fixture struct {
	service      *app.LiveService
	clock        *fakeClock
	events       *recordingBroadcaster
	participants *memory.ParticipantStore
	results      *memory.ResultStore
}

func newFixture(t *testing.T, mutate func(*app.Options)) *fixture {
	t.Helper()
	clock := newFakeClock()
	f := &fixture{
		clock:        clock,
		events:       &recordingBroadcaster{},
		participants: memory.NewParticipantStore(),
		results:      memory.NewResultStore(),
	}
	opts := app.Options{Clock: clock.Now}
	if mutate != nil {
		mutate(&opts)
	}
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(question("q1"), question("q2")), time.Minute)
	f.service = app.NewLiveService(memory.NewRoomRegistryWithClock(clock.Now), questions, f.participants, f.results, f.events, opts)
	return f
}

func (f *fixture) join(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := f.service.Join(context.Background(), "course-1", id, "nick-"+id)
		require.NoError(t, err)
		f.clock.Advance(time.Millisecond)
	}
}

func correct(qid string) domain.AnswerSubmission {
	return domain.AnswerSubmission{QuestionID: qid, OptionIndex: 2}
}

func TestSubmitAnswerScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.join(t, "alice", "bob")

	_, err := f.service.StartQuestion(ctx, "course-1", "q1")
	require.NoError(t, err)
	started := f.events.take()
	require.Len(t, started, 1)
	assert.Equal(t, domain.EventQuestionBroadcast, started[0].event.Type)

	f.clock.Advance(5 * time.Second)
	out, err := f.service.SubmitAnswer(ctx, "course-1", "alice", correct("q1"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)
	assert.Equal(t, 1750, out.Score)

	sent := f.events.take()
	require.Len(t, sent, 2)
	assert.Equal(t, "alice", sent[0].to)
	assert.Equal(t, domain.EventAnswerResult, sent[0].event.Type)
	assert.Equal(t, domain.AnswerResult{QuestionID: "q1", IsCorrect: true, ScoreAwarded: 1750, TotalScore: 1750}, sent[0].event.Payload)
	assert.Empty(t, sent[1].to)
	assert.Equal(t, domain.EventLeaderboardUpdate, sent[1].event.Type)

	f.clock.Advance(5 * time.Second)
	out, err = f.service.SubmitAnswer(ctx, "course-1", "bob", correct("q1"))
	require.NoError(t, err)
	assert.Equal(t, 1500, out.Score)

	sent = f.events.take()
	require.Len(t, sent, 2)
	lb, ok := sent[1].event.Payload.(domain.Leaderboard)
	require.True(t, ok)
	require.Len(t, lb.Entries, 2)
	assert.Equal(t, "alice", lb.Entries[0].ParticipantID, "earlier correct submitter ranks higher")
	assert.Equal(t, 1750, lb.Entries[0].Score)
	assert.Equal(t, "bob", lb.Entries[1].ParticipantID)
	assert.Equal(t, app.DefaultRoundLimit, lb.Limit)

	records := f.results.Results("course-1")
	require.Len(t, records, 2)
	assert.Equal(t, domain.ResultKindPostTest, records[0].Kind)
	assert.Equal(t, int64(5000), records[0].TimeTakenMillis)
	assert.NotEmpty(t, records[0].ID)
}

func TestSubmitAnswerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.join(t, "alice")
	_, _ = f.service.StartQuestion(ctx, "course-1", "q1")
	f.events.take()

	first, _ := f.service.SubmitAnswer(ctx, "course-1", "alice", correct("q1"))
	second, _ := f.service.SubmitAnswer(ctx, "course-1", "alice", correct("q1"))

	assert.True(t, first.Accepted)
	assert.False(t, second.Accepted)
	assert.Equal(t, domain.RejectAlreadyAnswered, second.Rejection)
	assert.Len(t, f.events.take(), 2, "duplicate produces no events")
	assert.Len(t, f.results.Results("course-1"), 1)

	p, err := f.participants.Get(ctx, "course-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, first.Score, p.TotalScore)
}

func TestSubmitAnswerForPreviousQuestion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.join(t, "alice")

	_, _ = f.service.StartQuestion(ctx, "course-1", "q1")
	_, _ = f.service.StartQuestion(ctx, "course-1", "q2")
	f.events.take()

	out, err := f.service.SubmitAnswer(ctx, "course-1", "alice", correct("q1"))
	require.NoError(t, err)
	assert.Equal(t, domain.RejectQuestionMismatch, out.Rejection)
	assert.Empty(t, f.events.take())

	p, _ := f.participants.Get(ctx, "course-1", "alice")
	assert.Zero(t, p.TotalScore)
}

func TestEndQuestionIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.join(t, "alice")
	_, _ = f.service.StartQuestion(ctx, "course-1", "q1")
	f.events.take()

	changed, err := f.service.EndQuestion(ctx, "course-1")
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.service.EndQuestion(ctx, "course-1")
	require.NoError(t, err)
	assert.False(t, changed)

	sent := f.events.take()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EventQuestionLocked, sent[0].event.Type)

	out, _ := f.service.SubmitAnswer(ctx, "course-1", "alice", correct("q1"))
	assert.Equal(t, domain.RejectLocked, out.Rejection)
	assert.Empty(t, f.events.take())

	_, err = f.service.EndQuestion(ctx, "unknown-room")
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestScoresAccumulateAcrossRounds(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.join(t, "alice")

	var last int
	for _, qid := range []string{"q1", "q2", "q1"} {
		_, err := f.service.StartQuestion(ctx, "course-1", qid)
		require.NoError(t, err)
		f.clock.Advance(2 * time.Second)
		out, _ := f.service.SubmitAnswer(ctx, "course-1", "alice", correct(qid))
		require.True(t, out.Accepted)
		assert.Greater(t, out.TotalScore, last)
		last = out.TotalScore
		_, _ = f.service.EndQuestion(ctx, "course-1")
	}
	assert.Equal(t, 3*1900, last)
}

func TestStartUnknownQuestion(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.service.StartQuestion(context.Background(), "course-1", "nope")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
	assert.Empty(t, f.events.take())
}

func TestPersistenceFailureDoesNotUndoRound(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	events := &recordingBroadcaster{}
	participants := memory.NewParticipantStore()
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(question("q1")), time.Minute)
	service := app.NewLiveService(memory.NewRoomRegistryWithClock(clock.Now), questions, participants, failingResults{}, events, app.Options{Clock: clock.Now})

	_, _ = service.Join(ctx, "course-1", "alice", "Alice")
	_, _ = service.StartQuestion(ctx, "course-1", "q1")
	out, err := service.SubmitAnswer(ctx, "course-1", "alice", correct("q1"))
	require.NoError(t, err)
	assert.True(t, out.Accepted)

	p, _ := participants.Get(ctx, "course-1", "alice")
	assert.Equal(t, 2000, p.TotalScore)

	again, _ := service.SubmitAnswer(ctx, "course-1", "alice", correct("q1"))
	assert.Equal(t, domain.RejectAlreadyAnswered, again.Rejection)
}

func TestModeratorIsNotRanked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	f.service.AttachModerator("course-1")
	view, err := f.service.RoomView(ctx, "course-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundIdle, view.State)
	f.join(t, "alice")

	lb, err := f.service.Leaderboard(ctx, "course-1", 0)
	require.NoError(t, err)
	require.Len(t, lb.Entries, 1)
	assert.Equal(t, app.DefaultDisplayLimit, lb.Limit)
	assert.Equal(t, 1, f.service.ActiveRooms())
}

func TestAutoLockBroadcastsOnce(t *testing.T) {
	ctx := context.Background()
	events := &recordingBroadcaster{}
	q := question("q-fast")
	q.TimeLimitSeconds = 1
	questions := memory.NewQuestionRepository(memory.NewStaticQuestionLoader(q), time.Minute)
	service := app.NewLiveService(memory.NewRoomRegistry(), questions, memory.NewParticipantStore(), memory.NewResultStore(), events,
		app.Options{AutoLock: true, AutoLockGrace: 50 * time.Millisecond})

	_, err := service.StartQuestion(ctx, "course-1", "q-fast")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return events.count(domain.EventQuestionLocked) == 1
	}, 3*time.Second, 20*time.Millisecond)

	view, err := service.RoomView(ctx, "course-1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.RoundLocked, view.State)
	assert.Empty(t, view.Owner)

	changed, _ := service.EndQuestion(ctx, "course-1")
	assert.False(t, changed, "manual end after auto-lock is a no-op")
	assert.Equal(t, 1, events.count(domain.EventQuestionLocked))
}
