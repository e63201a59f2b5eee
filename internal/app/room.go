package app

import (
	"sync"
	"time"

	"livequiz/internal/domain"
)

// RoomRegistry hands out the single live Room for each course room.
type RoomRegistry interface {
	GetOrCreate(roomID string) *Room
	Get(roomID string) (*Room, bool)
	Len() int
}

// Room is the in-memory round state of one course room. All transitions happen under mu;
// callers do their I/O after the method returns.
type Room struct {
	id  string
	now func() time.Time

	mu        sync.Mutex
	question  *domain.Question
	startedAt time.Time
	round     uint64
	locked    bool
	answered  map[string]struct{}
	lockTimer *time.Timer

	// publishMu orders leaderboard refreshes so the last broadcast is never the stalest.
	publishMu sync.Mutex
}

// NewRoom is exported for infrastructure layers that own room lifetimes.
func NewRoom(id string) *Room {
	return NewRoomWithClock(id, time.Now)
}

// NewRoomWithClock is used by tests for deterministic elapsed times.
func NewRoomWithClock(id string, now func() time.Time) *Room {
	if now == nil {
		now = time.Now
	}
	return &Room{
		id:       id,
		now:      now,
		answered: make(map[string]struct{}),
	}
}

func (r *Room) ID() string {
	return r.id
}

// State reports where the room sits in its round lifecycle.
func (r *Room) State() domain.RoundState {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.question == nil:
		return domain.RoundIdle
	case r.locked:
		return domain.RoundLocked
	default:
		return domain.RoundActive
	}
}

// ActiveQuestionID returns the current question id, locked or not.
func (r *Room) ActiveQuestionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.question == nil {
		return ""
	}
	return r.question.ID
}

// StartQuestion replaces whatever round is running, from any state.
func (r *Room) StartQuestion(q domain.Question) (domain.QuestionBroadcast, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopTimerLocked()
	r.question = &q
	r.startedAt = r.now()
	r.round++
	r.locked = false
	r.answered = make(map[string]struct{})

	options := make([]string, len(q.Options))
	copy(options, q.Options)
	return domain.QuestionBroadcast{
		QuestionID:           q.ID,
		Text:                 q.Text,
		Options:              options,
		TimeLimitSeconds:     q.TimeLimit(),
		ImageURL:             q.ImageURL,
		ServerStartTimestamp: r.startedAt.UnixMilli(),
	}, r.round
}

// EndQuestion locks the current round. It reports false when there was nothing to lock.
func (r *Room) EndQuestion() (domain.QuestionLocked, bool) {
	return r.lockRound(0)
}

// lockRound locks the room if round is still current; zero matches any round.
func (r *Room) lockRound(round uint64) (domain.QuestionLocked, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.question == nil || r.locked {
		return domain.QuestionLocked{}, false
	}
	if round != 0 && round != r.round {
		return domain.QuestionLocked{}, false
	}
	r.locked = true
	r.stopTimerLocked()
	return domain.QuestionLocked{QuestionID: r.question.ID, LockedAt: r.now()}, true
}

// ScheduleLock arms a timer that locks the given round after d. A manual EndQuestion or a
// newer StartQuestion makes the timer a no-op.
func (r *Room) ScheduleLock(round uint64, d time.Duration, onLock func(domain.QuestionLocked)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if round != r.round || r.locked {
		return
	}
	r.stopTimerLocked()
	r.lockTimer = time.AfterFunc(d, func() {
		if ev, ok := r.lockRound(round); ok && onLock != nil {
			onLock(ev)
		}
	})
}

func (r *Room) stopTimerLocked() {
	if r.lockTimer != nil {
		r.lockTimer.Stop()
		r.lockTimer = nil
	}
}

// SubmitAnswer grades a submission against the active round. The participant is marked as
// answered in the same critical section that accepts the answer, so concurrent duplicates
// cannot both score. Elapsed time comes from the server's round start; the client's claimed
// start is ignored here.
func (r *Room) SubmitAnswer(participantID string, sub domain.AnswerSubmission, scorer Scorer) domain.AnswerOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome := domain.AnswerOutcome{QuestionID: sub.QuestionID}
	switch {
	case r.question == nil:
		outcome.Rejection = domain.RejectNoActiveQuestion
		return outcome
	case r.locked:
		outcome.Rejection = domain.RejectLocked
		return outcome
	case r.question.ID != sub.QuestionID:
		outcome.Rejection = domain.RejectQuestionMismatch
		return outcome
	}
	if _, done := r.answered[participantID]; done {
		outcome.Rejection = domain.RejectAlreadyAnswered
		return outcome
	}
	r.answered[participantID] = struct{}{}

	elapsed := r.now().Sub(r.startedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	correct := sub.OptionIndex == r.question.CorrectIndex

	outcome.Accepted = true
	outcome.IsCorrect = correct
	outcome.Elapsed = elapsed
	outcome.Score = scorer.Compute(correct, elapsed.Milliseconds(), r.question.TimeLimit())
	return outcome
}

// View snapshots the room. Answered refers to participantID and is false for "".
func (r *Room) View(participantID string) domain.RoomView {
	r.mu.Lock()
	defer r.mu.Unlock()

	view := domain.RoomView{RoomID: r.id, State: domain.RoundIdle, Round: r.round}
	if r.question == nil {
		return view
	}
	view.QuestionID = r.question.ID
	view.State = domain.RoundActive
	if r.locked {
		view.State = domain.RoundLocked
	}
	if participantID != "" {
		_, view.Answered = r.answered[participantID]
	}
	return view
}
