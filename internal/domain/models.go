package domain

import "time"

// DefaultTimeLimitSeconds applies to questions stored without an explicit limit.
const DefaultTimeLimitSeconds = 20

// Participant is an employee enrolled in a course room and their cumulative score.
type Participant struct {
	CourseID   string    `json:"courseId"`
	EmployeeID string    `json:"employeeId"`
	Nickname   string    `json:"nickname"`
	TotalScore int       `json:"totalScore"`
	JoinedAt   time.Time `json:"joinedAt"`
}

// Question models a multiple-choice question with exactly one correct option.
type Question struct {
	ID               string   `json:"id"`
	CourseID         string   `json:"courseId"`
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	CorrectIndex     int      `json:"correctIndex"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"` // defaults to 20 if zero
	ImageURL         string   `json:"imageUrl,omitempty"`
}

// TimeLimit returns the effective time limit in seconds.
func (q Question) TimeLimit() int {
	if q.TimeLimitSeconds <= 0 {
		return DefaultTimeLimitSeconds
	}
	return q.TimeLimitSeconds
}

// ResultKind distinguishes live rounds from other assessment flows sharing the results table.
type ResultKind string

const ResultKindPostTest ResultKind = "post-test"

// ResultRecord is the immutable history entry for one scored submission.
type ResultRecord struct {
	ID              string     `json:"id"`
	CourseID        string     `json:"courseId"`
	EmployeeID      string     `json:"employeeId"`
	QuestionID      string     `json:"questionId"`
	IsCorrect       bool       `json:"isCorrect"`
	ScoreEarned     int        `json:"scoreEarned"`
	TimeTakenMillis int64      `json:"timeTakenMillis"`
	Kind            ResultKind `json:"kind"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	ParticipantID string `json:"participantId"`
	Nickname      string `json:"nickname"`
	Score         int    `json:"cumulativeScore"`
}

// Leaderboard captures the ordered scoreboard for a room.
type Leaderboard struct {
	RoomID    string             `json:"roomId"`
	Entries   []LeaderboardEntry `json:"entries"`
	Limit     int                `json:"limit"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerSubmission is the scoring signal from a participant.
type AnswerSubmission struct {
	QuestionID  string `json:"questionId"`
	OptionIndex int    `json:"optionIndex"`
	// ClientStartTime is what the client believes the round started at. Informational only.
	ClientStartTime time.Time `json:"clientStartTime,omitempty"`
}
