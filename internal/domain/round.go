package domain

import "time"

// RoundState is the lifecycle state of a room's live round.
type RoundState string

const (
	RoundIdle   RoundState = "idle"
	RoundActive RoundState = "active"
	RoundLocked RoundState = "locked"
)

// Rejection explains why a submission was not scored. Rejections are never surfaced to
// other room members; the submitter simply receives no answer result.
type Rejection string

const (
	RejectNone             Rejection = ""
	RejectNoActiveQuestion Rejection = "no_active_question"
	RejectLocked           Rejection = "locked"
	RejectAlreadyAnswered  Rejection = "already_answered"
	RejectQuestionMismatch Rejection = "question_mismatch"
)

// AnswerOutcome is the result of running a submission through a room.
type AnswerOutcome struct {
	Accepted   bool
	Rejection  Rejection
	QuestionID string
	IsCorrect  bool
	Score      int
	Elapsed    time.Duration
	// TotalScore is the participant's cumulative score after crediting, when known.
	TotalScore int
	// Forwarded is set when another instance owns the room and grades the submission there.
	Forwarded bool
}

// RoomView is a read-only snapshot of a room as held by one instance.
type RoomView struct {
	RoomID     string     `json:"roomId"`
	State      RoundState `json:"state"`
	QuestionID string     `json:"questionId,omitempty"`
	Round      uint64     `json:"round"`
	// Answered is set when the viewing participant already answered the current round.
	Answered bool `json:"answered,omitempty"`
	// Owner is the instance applying state changes, empty without multi-instance coordination.
	Owner string `json:"owner,omitempty"`
}

// RoomCommandKind names a state change handed to the instance that owns a room.
type RoomCommandKind string

const (
	CommandStartQuestion RoomCommandKind = "startQuestion"
	CommandEndQuestion   RoomCommandKind = "endQuestion"
	CommandSubmitAnswer  RoomCommandKind = "submitAnswer"
)

// RoomCommand is a state change forwarded between instances.
type RoomCommand struct {
	Kind          RoomCommandKind   `json:"kind"`
	RoomID        string            `json:"roomId"`
	QuestionID    string            `json:"questionId,omitempty"`
	ParticipantID string            `json:"participantId,omitempty"`
	Answer        *AnswerSubmission `json:"answer,omitempty"`
}
