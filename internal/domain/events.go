package domain

import "time"

// Outbound event types delivered to room members.
const (
	EventQuestionBroadcast = "questionBroadcast"
	EventQuestionLocked    = "questionLocked"
	EventLeaderboardUpdate = "leaderboardUpdate"
	EventAnswerResult      = "answerResult"
)

// Event is the envelope written to every connection.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// QuestionBroadcast announces a new round. Clients derive the countdown from
// ServerStartTimestamp rather than their own clock.
type QuestionBroadcast struct {
	QuestionID           string   `json:"questionId"`
	Text                 string   `json:"text"`
	Options              []string `json:"options"`
	TimeLimitSeconds     int      `json:"timeLimitSeconds"`
	ImageURL             string   `json:"imageUrl,omitempty"`
	ServerStartTimestamp int64    `json:"serverStartTimestamp"` // unix millis
}

// QuestionLocked signals that no further answers will be scored for the round.
type QuestionLocked struct {
	QuestionID string    `json:"questionId,omitempty"`
	LockedAt   time.Time `json:"lockedAt"`
}

// AnswerResult is sent privately to the submitting participant.
type AnswerResult struct {
	QuestionID   string `json:"questionId"`
	IsCorrect    bool   `json:"isCorrect"`
	ScoreAwarded int    `json:"scoreAwarded"`
	TotalScore   int    `json:"totalScore"`
}
