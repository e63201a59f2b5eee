package app

const (
	// DefaultBaseScore is awarded for any correct answer.
	DefaultBaseScore = 1000
	// DefaultTimeBonusFactor is the bonus per full second remaining on the clock.
	DefaultTimeBonusFactor = 50
)

// Scorer turns a graded submission into points.
type Scorer struct {
	BaseScore       int
	TimeBonusFactor int
}

// NewScorer falls back to DefaultBaseScore for a non-positive base score and to
// DefaultTimeBonusFactor for a negative factor. A zero factor disables the time bonus.
func NewScorer(baseScore, timeBonusFactor int) Scorer {
	if baseScore <= 0 {
		baseScore = DefaultBaseScore
	}
	if timeBonusFactor < 0 {
		timeBonusFactor = DefaultTimeBonusFactor
	}
	return Scorer{BaseScore: baseScore, TimeBonusFactor: timeBonusFactor}
}

// Compute returns 0 for incorrect answers, otherwise the base score plus a bonus
// proportional to the milliseconds left before the time limit.
func (s Scorer) Compute(isCorrect bool, elapsedMillis int64, timeLimitSeconds int) int {
	if !isCorrect {
		return 0
	}
	if elapsedMillis < 0 {
		elapsedMillis = 0
	}
	remaining := int64(timeLimitSeconds)*1000 - elapsedMillis
	if remaining < 0 {
		remaining = 0
	}
	return s.BaseScore + int(remaining*int64(s.TimeBonusFactor)/1000)
}
