package app_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"livequiz/internal/app"
	"livequiz/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var defaultScorer = app.NewScorer(app.DefaultBaseScore, app.DefaultTimeBonusFactor)

func question(id string) domain.Question {
	return domain.Question{
		ID:               id,
		CourseID:         "course-1",
		Text:             "Pick " + id,
		Options:          []string{"a", "b", "c", "d"},
		CorrectIndex:     2,
		TimeLimitSeconds: 20,
	}
}

func TestRoomStateTransitions(t *testing.T) {
	clock := newFakeClock()
	room := app.NewRoomWithClock("course-1", clock.Now)
	assert.Equal(t, domain.RoundIdle, room.State())

	_, ok := room.EndQuestion()
	assert.False(t, ok, "ending an idle room is a no-op")

	ev, round := room.StartQuestion(question("q1"))
	assert.Equal(t, uint64(1), round)
	assert.Equal(t, "q1", ev.QuestionID)
	assert.Equal(t, clock.Now().UnixMilli(), ev.ServerStartTimestamp)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ev.Options)
	assert.Equal(t, domain.RoundActive, room.State())

	locked, ok := room.EndQuestion()
	require.True(t, ok)
	assert.Equal(t, "q1", locked.QuestionID)
	assert.Equal(t, domain.RoundLocked, room.State())

	_, ok = room.EndQuestion()
	assert.False(t, ok, "second end must not transition again")

	_, round = room.StartQuestion(question("q2"))
	assert.Equal(t, uint64(2), round)
	assert.Equal(t, domain.RoundActive, room.State())
	assert.Equal(t, "q2", room.ActiveQuestionID())
}

func TestRoomView(t *testing.T) {
	room := app.NewRoomWithClock("course-1", newFakeClock().Now)
	assert.Equal(t, domain.RoomView{RoomID: "course-1", State: domain.RoundIdle}, room.View("alice"))

	room.StartQuestion(question("q1"))
	room.SubmitAnswer("alice", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer)
	room.EndQuestion()

	view := room.View("alice")
	assert.Equal(t, domain.RoundLocked, view.State)
	assert.Equal(t, "q1", view.QuestionID)
	assert.Equal(t, uint64(1), view.Round)
	assert.True(t, view.Answered)
	assert.False(t, room.View("bob").Answered)
	assert.False(t, room.View("").Answered)
}

func TestRoomSubmitScoresOnce(t *testing.T) {
	clock := newFakeClock()
	room := app.NewRoomWithClock("course-1", clock.Now)
	room.StartQuestion(question("q1"))
	clock.Advance(5 * time.Second)

	first := room.SubmitAnswer("alice", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer)
	require.True(t, first.Accepted)
	assert.True(t, first.IsCorrect)
	assert.Equal(t, 1750, first.Score)
	assert.Equal(t, 5*time.Second, first.Elapsed)

	again := room.SubmitAnswer("alice", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer)
	assert.False(t, again.Accepted)
	assert.Equal(t, domain.RejectAlreadyAnswered, again.Rejection)
	assert.Zero(t, again.Score)
}

func TestRoomIgnoresClientClaimedStart(t *testing.T) {
	clock := newFakeClock()
	room := app.NewRoomWithClock("course-1", clock.Now)
	room.StartQuestion(question("q1"))
	clock.Advance(5 * time.Second)

	out := room.SubmitAnswer("alice", domain.AnswerSubmission{
		QuestionID:      "q1",
		OptionIndex:     2,
		ClientStartTime: clock.Now().Add(-time.Hour),
	}, defaultScorer)
	assert.Equal(t, 1750, out.Score)
}

func TestRoomIncorrectAnswerScoresZero(t *testing.T) {
	room := app.NewRoomWithClock("course-1", newFakeClock().Now)
	room.StartQuestion(question("q1"))

	out := room.SubmitAnswer("bob", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 0}, defaultScorer)
	require.True(t, out.Accepted)
	assert.False(t, out.IsCorrect)
	assert.Zero(t, out.Score)
	assert.True(t, room.View("bob").Answered)
}

func TestRoomRejections(t *testing.T) {
	tests := map[string]struct {
		arrange func(room *app.Room)
		submit  domain.AnswerSubmission
		want    domain.Rejection
	}{
		"no active question": {
			arrange: func(*app.Room) {},
			submit:  domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2},
			want:    domain.RejectNoActiveQuestion,
		},
		"locked round": {
			arrange: func(room *app.Room) {
				room.StartQuestion(question("q1"))
				room.EndQuestion()
			},
			submit: domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2},
			want:   domain.RejectLocked,
		},
		"answer for a replaced question": {
			arrange: func(room *app.Room) {
				room.StartQuestion(question("q1"))
				room.StartQuestion(question("q2"))
			},
			submit: domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2},
			want:   domain.RejectQuestionMismatch,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			room := app.NewRoomWithClock("course-1", newFakeClock().Now)
			tc.arrange(room)
			out := room.SubmitAnswer("alice", tc.submit, defaultScorer)
			assert.False(t, out.Accepted)
			assert.Equal(t, tc.want, out.Rejection)
			assert.Zero(t, out.Score)
			assert.False(t, room.View("alice").Answered)
		})
	}
}

func TestRoomRestartResetsAnswered(t *testing.T) {
	room := app.NewRoomWithClock("course-1", newFakeClock().Now)
	room.StartQuestion(question("q1"))
	require.True(t, room.SubmitAnswer("alice", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer).Accepted)

	room.StartQuestion(question("q1"))
	assert.False(t, room.View("alice").Answered)
	assert.True(t, room.SubmitAnswer("alice", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer).Accepted)
}

func TestRoomConcurrentDuplicateSubmissions(t *testing.T) {
	room := app.NewRoom("course-1")
	room.StartQuestion(question("q1"))

	const workers = 64
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out := room.SubmitAnswer("alice", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer)
			if out.Accepted {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, accepted)
}

func TestRoomConcurrentSubmitAndLock(t *testing.T) {
	room := app.NewRoom("course-1")
	room.StartQuestion(question("q1"))

	var wg sync.WaitGroup
	results := make(chan domain.AnswerOutcome, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- room.SubmitAnswer(fmt.Sprintf("p%d", i), domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer)
		}(i)
	}
	_, locked := room.EndQuestion()
	wg.Wait()
	close(results)

	require.True(t, locked)
	for out := range results {
		if !out.Accepted {
			assert.Equal(t, domain.RejectLocked, out.Rejection)
		}
	}
	after := room.SubmitAnswer("late", domain.AnswerSubmission{QuestionID: "q1", OptionIndex: 2}, defaultScorer)
	assert.Equal(t, domain.RejectLocked, after.Rejection)
}

func TestRoomScheduleLockFires(t *testing.T) {
	room := app.NewRoom("course-1")
	_, round := room.StartQuestion(question("q1"))

	fired := make(chan domain.QuestionLocked, 1)
	room.ScheduleLock(round, 10*time.Millisecond, func(ev domain.QuestionLocked) { fired <- ev })

	select {
	case ev := <-fired:
		assert.Equal(t, "q1", ev.QuestionID)
	case <-time.After(2 * time.Second):
		t.Fatal("auto-lock did not fire")
	}
	assert.Equal(t, domain.RoundLocked, room.State())
}

func TestRoomScheduleLockIgnoresStaleRound(t *testing.T) {
	room := app.NewRoom("course-1")
	_, round := room.StartQuestion(question("q1"))

	fired := make(chan domain.QuestionLocked, 1)
	room.ScheduleLock(round, 20*time.Millisecond, func(ev domain.QuestionLocked) { fired <- ev })
	room.StartQuestion(question("q2"))

	select {
	case ev := <-fired:
		t.Fatalf("stale timer locked the room: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, domain.RoundActive, room.State())
}

func TestRoomScheduleLockAfterManualEnd(t *testing.T) {
	room := app.NewRoom("course-1")
	_, round := room.StartQuestion(question("q1"))

	fired := make(chan domain.QuestionLocked, 1)
	room.ScheduleLock(round, 20*time.Millisecond, func(ev domain.QuestionLocked) { fired <- ev })
	_, ok := room.EndQuestion()
	require.True(t, ok)

	select {
	case <-fired:
		t.Fatal("timer emitted a second lock")
	case <-time.After(100 * time.Millisecond):
	}
}
