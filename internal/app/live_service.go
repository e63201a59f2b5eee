package app

import (
	"context"
	"fmt"
	"time"

	"livequiz/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QuestionRepository loads question content (from cache/backing store).
type QuestionRepository interface {
	LookupQuestion(ctx context.Context, questionID string) (domain.Question, error)
}

// ResultStore appends immutable scoring history.
type ResultStore interface {
	AppendResult(ctx context.Context, rec domain.ResultRecord) error
}

// Broadcaster delivers events to the connections joined to a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, roomID string, ev domain.Event)
	SendTo(ctx context.Context, roomID, participantID string, ev domain.Event)
}

// RoomOwnership decides which instance applies state changes for a room.
type RoomOwnership interface {
	// Claim returns the owning instance, claiming the room for this one when it is unowned.
	Claim(ctx context.Context, roomID string) (owner string, local bool, err error)
	Owner(ctx context.Context, roomID string) (string, error)
}

// CommandForwarder hands a room command to the instance that owns the room.
type CommandForwarder interface {
	Forward(ctx context.Context, owner string, cmd domain.RoomCommand) error
}

// Recorder receives counters about room activity. Implementations must be goroutine-safe.
type Recorder interface {
	RoundStarted(roomID string)
	RoundLocked(roomID string, auto bool)
	AnswerAccepted(roomID string, correct bool)
	AnswerRejected(reason domain.Rejection)
	PersistenceFailed(op string)
	CommandForwarded(kind domain.RoomCommandKind)
}

type nopRecorder struct{}

func (nopRecorder) RoundStarted(string)                     {}
func (nopRecorder) RoundLocked(string, bool)                {}
func (nopRecorder) AnswerAccepted(string, bool)             {}
func (nopRecorder) AnswerRejected(domain.Rejection)         {}
func (nopRecorder) PersistenceFailed(string)                {}
func (nopRecorder) CommandForwarded(domain.RoomCommandKind) {}

const (
	DefaultRoundLimit   = 5
	DefaultDisplayLimit = 20
)

// Options tunes LiveService. Zero values select the defaults; a Scorer with a non-positive
// BaseScore is replaced by the default scorer.
type Options struct {
	Scorer       Scorer
	RoundLimit   int
	DisplayLimit int
	// AutoLock locks a round once its time limit plus AutoLockGrace elapses.
	AutoLock      bool
	AutoLockGrace time.Duration
	// Ownership and Forwarder route state changes to the owning instance. When either is
	// nil every room is applied locally.
	Ownership RoomOwnership
	Forwarder CommandForwarder
	Clock     func() time.Time
	Logger    *zap.Logger
	Metrics   Recorder
}

func (o Options) withDefaults() Options {
	if o.Scorer.BaseScore <= 0 {
		o.Scorer = NewScorer(DefaultBaseScore, DefaultTimeBonusFactor)
	}
	if o.RoundLimit <= 0 {
		o.RoundLimit = DefaultRoundLimit
	}
	if o.DisplayLimit <= 0 {
		o.DisplayLimit = DefaultDisplayLimit
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = nopRecorder{}
	}
	return o
}

// LiveService contains the live quiz use cases driven by the session gateway.
type LiveService struct {
	rooms        RoomRegistry
	questions    QuestionRepository
	participants ParticipantStore
	results      ResultStore
	events       Broadcaster
	leaderboards *LeaderboardAggregator
	opts         Options
	log          *zap.Logger
}

func NewLiveService(
	rooms RoomRegistry,
	questions QuestionRepository,
	participants ParticipantStore,
	results ResultStore,
	events Broadcaster,
	opts Options,
) *LiveService {
	opts = opts.withDefaults()
	return &LiveService{
		rooms:        rooms,
		questions:    questions,
		participants: participants,
		results:      results,
		events:       events,
		leaderboards: NewLeaderboardAggregator(participants, opts.Clock),
		opts:         opts,
		log:          opts.Logger.Named("live"),
	}
}

// Join enrolls a participant in the room, creating the room on first use.
func (s *LiveService) Join(ctx context.Context, roomID, employeeID, nickname string) (domain.Participant, error) {
	s.rooms.GetOrCreate(roomID)
	p, err := s.participants.Upsert(ctx, domain.Participant{
		CourseID:   roomID,
		EmployeeID: employeeID,
		Nickname:   nickname,
		JoinedAt:   s.opts.Clock(),
	})
	if err != nil {
		s.opts.Metrics.PersistenceFailed("upsert_participant")
		return domain.Participant{}, fmt.Errorf("join room %s: %w", roomID, err)
	}
	return p, nil
}

// AttachModerator makes sure the room exists for a moderator connection. Moderators are not
// enrolled as participants and never appear on the leaderboard.
func (s *LiveService) AttachModerator(roomID string) {
	s.rooms.GetOrCreate(roomID)
}

// StartQuestion opens a new round and broadcasts the question to the room. When another
// instance owns the room the command is forwarded there and the zero broadcast is returned.
func (s *LiveService) StartQuestion(ctx context.Context, roomID, questionID string) (domain.QuestionBroadcast, error) {
	owner, local, err := s.route(ctx, roomID)
	if err != nil {
		return domain.QuestionBroadcast{}, err
	}
	if !local {
		return domain.QuestionBroadcast{}, s.forward(ctx, owner, domain.RoomCommand{
			Kind:       domain.CommandStartQuestion,
			RoomID:     roomID,
			QuestionID: questionID,
		})
	}
	return s.startQuestion(ctx, roomID, questionID)
}

func (s *LiveService) startQuestion(ctx context.Context, roomID, questionID string) (domain.QuestionBroadcast, error) {
	q, err := s.questions.LookupQuestion(ctx, questionID)
	if err != nil {
		return domain.QuestionBroadcast{}, fmt.Errorf("start question %s: %w", questionID, err)
	}

	room := s.rooms.GetOrCreate(roomID)
	if room.ActiveQuestionID() == q.ID {
		s.log.Warn("restarting question, answers for it are reset",
			zap.String("room", roomID), zap.String("question", q.ID))
	}
	ev, round := room.StartQuestion(q)
	s.opts.Metrics.RoundStarted(roomID)
	s.events.Broadcast(ctx, roomID, domain.Event{Type: domain.EventQuestionBroadcast, Payload: ev})

	if s.opts.AutoLock {
		deadline := time.Duration(q.TimeLimit())*time.Second + s.opts.AutoLockGrace
		room.ScheduleLock(round, deadline, func(locked domain.QuestionLocked) {
			s.log.Debug("round auto-locked", zap.String("room", roomID), zap.String("question", locked.QuestionID))
			s.opts.Metrics.RoundLocked(roomID, true)
			s.events.Broadcast(context.Background(), roomID, domain.Event{Type: domain.EventQuestionLocked, Payload: locked})
		})
	}
	return ev, nil
}

// EndQuestion locks the active round. It reports whether a transition happened; repeated
// calls are no-ops. A forwarded command reports false since the owner decides.
func (s *LiveService) EndQuestion(ctx context.Context, roomID string) (bool, error) {
	owner, local, err := s.route(ctx, roomID)
	if err != nil {
		return false, err
	}
	if !local {
		return false, s.forward(ctx, owner, domain.RoomCommand{Kind: domain.CommandEndQuestion, RoomID: roomID})
	}
	return s.endQuestion(ctx, roomID)
}

func (s *LiveService) endQuestion(ctx context.Context, roomID string) (bool, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return false, domain.ErrRoomNotFound
	}
	ev, changed := room.EndQuestion()
	if !changed {
		return false, nil
	}
	s.opts.Metrics.RoundLocked(roomID, false)
	s.events.Broadcast(ctx, roomID, domain.Event{Type: domain.EventQuestionLocked, Payload: ev})
	return true, nil
}

// SubmitAnswer grades an answer, records it, credits the participant, replies privately
// and refreshes the room leaderboard. Rejected submissions produce no events.
// Persistence failures are logged and counted; the in-memory round state is not rolled back.
// When another instance owns the room the submission is graded there and the returned
// outcome only carries Forwarded.
func (s *LiveService) SubmitAnswer(ctx context.Context, roomID, participantID string, sub domain.AnswerSubmission) (domain.AnswerOutcome, error) {
	owner, local, err := s.route(ctx, roomID)
	if err != nil {
		return domain.AnswerOutcome{QuestionID: sub.QuestionID}, err
	}
	if !local {
		answer := sub
		err := s.forward(ctx, owner, domain.RoomCommand{
			Kind:          domain.CommandSubmitAnswer,
			RoomID:        roomID,
			ParticipantID: participantID,
			Answer:        &answer,
		})
		return domain.AnswerOutcome{QuestionID: sub.QuestionID, Forwarded: err == nil}, err
	}
	return s.submitAnswer(ctx, roomID, participantID, sub), nil
}

func (s *LiveService) submitAnswer(ctx context.Context, roomID, participantID string, sub domain.AnswerSubmission) domain.AnswerOutcome {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		s.opts.Metrics.AnswerRejected(domain.RejectNoActiveQuestion)
		return domain.AnswerOutcome{QuestionID: sub.QuestionID, Rejection: domain.RejectNoActiveQuestion}
	}

	outcome := room.SubmitAnswer(participantID, sub, s.opts.Scorer)
	if !outcome.Accepted {
		s.opts.Metrics.AnswerRejected(outcome.Rejection)
		s.log.Debug("answer rejected",
			zap.String("room", roomID),
			zap.String("participant", participantID),
			zap.String("question", sub.QuestionID),
			zap.String("reason", string(outcome.Rejection)))
		return outcome
	}
	s.opts.Metrics.AnswerAccepted(roomID, outcome.IsCorrect)
	if !sub.ClientStartTime.IsZero() {
		s.log.Debug("answer accepted",
			zap.String("room", roomID),
			zap.String("participant", participantID),
			zap.Duration("elapsed", outcome.Elapsed),
			zap.Time("client_start", sub.ClientStartTime))
	}

	s.persist(ctx, roomID, participantID, &outcome)

	s.events.SendTo(ctx, roomID, participantID, domain.Event{
		Type: domain.EventAnswerResult,
		Payload: domain.AnswerResult{
			QuestionID:   outcome.QuestionID,
			IsCorrect:    outcome.IsCorrect,
			ScoreAwarded: outcome.Score,
			TotalScore:   outcome.TotalScore,
		},
	})

	s.publishLeaderboard(ctx, room)
	return outcome
}

// publishLeaderboard ranks and broadcasts under the room's publish lock. Every refresh
// ranks after its own credit, so the broadcast that goes out last includes all credits
// made before it.
func (s *LiveService) publishLeaderboard(ctx context.Context, room *Room) {
	room.publishMu.Lock()
	defer room.publishMu.Unlock()

	lb, err := s.leaderboards.Rank(ctx, room.ID(), s.opts.RoundLimit)
	if err != nil {
		s.opts.Metrics.PersistenceFailed("rank")
		s.log.Error("leaderboard refresh failed", zap.String("room", room.ID()), zap.Error(err))
		return
	}
	s.events.Broadcast(ctx, room.ID(), domain.Event{Type: domain.EventLeaderboardUpdate, Payload: lb})
}

// ApplyCommand runs a command forwarded by another instance against the local room.
func (s *LiveService) ApplyCommand(ctx context.Context, cmd domain.RoomCommand) error {
	switch cmd.Kind {
	case domain.CommandStartQuestion:
		_, err := s.startQuestion(ctx, cmd.RoomID, cmd.QuestionID)
		return err
	case domain.CommandEndQuestion:
		_, err := s.endQuestion(ctx, cmd.RoomID)
		return err
	case domain.CommandSubmitAnswer:
		if cmd.Answer == nil || cmd.ParticipantID == "" {
			return fmt.Errorf("submitAnswer command for room %s without answer", cmd.RoomID)
		}
		s.submitAnswer(ctx, cmd.RoomID, cmd.ParticipantID, *cmd.Answer)
		return nil
	default:
		return fmt.Errorf("unknown room command %q", cmd.Kind)
	}
}

// route reports which instance applies state changes for roomID.
func (s *LiveService) route(ctx context.Context, roomID string) (string, bool, error) {
	if s.opts.Ownership == nil || s.opts.Forwarder == nil {
		return "", true, nil
	}
	owner, local, err := s.opts.Ownership.Claim(ctx, roomID)
	if err != nil {
		s.opts.Metrics.PersistenceFailed("claim_room")
		return "", false, fmt.Errorf("claim room %s: %w", roomID, err)
	}
	return owner, local, nil
}

func (s *LiveService) forward(ctx context.Context, owner string, cmd domain.RoomCommand) error {
	if err := s.opts.Forwarder.Forward(ctx, owner, cmd); err != nil {
		s.opts.Metrics.PersistenceFailed("forward_command")
		return fmt.Errorf("forward %s for room %s to %s: %w", cmd.Kind, cmd.RoomID, owner, err)
	}
	s.opts.Metrics.CommandForwarded(cmd.Kind)
	s.log.Debug("command forwarded",
		zap.String("room", cmd.RoomID), zap.String("kind", string(cmd.Kind)), zap.String("owner", owner))
	return nil
}

func (s *LiveService) persist(ctx context.Context, roomID, participantID string, outcome *domain.AnswerOutcome) {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	rec := domain.ResultRecord{
		ID:              id.String(),
		CourseID:        roomID,
		EmployeeID:      participantID,
		QuestionID:      outcome.QuestionID,
		IsCorrect:       outcome.IsCorrect,
		ScoreEarned:     outcome.Score,
		TimeTakenMillis: outcome.Elapsed.Milliseconds(),
		Kind:            domain.ResultKindPostTest,
		CreatedAt:       s.opts.Clock(),
	}
	if err := s.results.AppendResult(ctx, rec); err != nil {
		s.opts.Metrics.PersistenceFailed("append_result")
		s.log.Error("append result failed",
			zap.String("room", roomID), zap.String("participant", participantID), zap.Error(err))
	}

	if outcome.Score > 0 {
		total, err := s.participants.IncrementScore(ctx, roomID, participantID, outcome.Score)
		if err != nil {
			s.opts.Metrics.PersistenceFailed("increment_score")
			s.log.Error("credit score failed",
				zap.String("room", roomID), zap.String("participant", participantID), zap.Error(err))
			return
		}
		outcome.TotalScore = total
		return
	}
	if p, err := s.participants.Get(ctx, roomID, participantID); err == nil {
		outcome.TotalScore = p.TotalScore
	}
}

// Leaderboard returns the ranked view used by the dedicated leaderboard request.
func (s *LiveService) Leaderboard(ctx context.Context, roomID string, limit int) (domain.Leaderboard, error) {
	if limit <= 0 || limit > s.opts.DisplayLimit {
		limit = s.opts.DisplayLimit
	}
	return s.leaderboards.Rank(ctx, roomID, limit)
}

// RoomView snapshots a room held by this instance, or returns ErrRoomNotFound. participantID
// may be empty. With multi-instance coordination the view names the owning instance, whose
// round state is authoritative.
func (s *LiveService) RoomView(ctx context.Context, roomID, participantID string) (domain.RoomView, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return domain.RoomView{}, domain.ErrRoomNotFound
	}
	view := room.View(participantID)
	if s.opts.Ownership != nil {
		owner, err := s.opts.Ownership.Owner(ctx, roomID)
		if err != nil {
			s.log.Warn("room owner lookup failed", zap.String("room", roomID), zap.Error(err))
		}
		view.Owner = owner
	}
	return view, nil
}

// ActiveRooms is the number of rooms held in this process.
func (s *LiveService) ActiveRooms() int {
	return s.rooms.Len()
}
