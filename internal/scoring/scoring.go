// Package scoring turns a finished session into points.
package scoring

import "time"

const (
	Base           = 1000
	StageStep      = 150
	AttemptStep    = 60
	MaxTimePenalty = 50
	MinWinScore    = 10

	// One point is lost for every timeStep of play, up to MaxTimePenalty.
	timeStep = 2 * time.Second
)

// Score returns the points for a win at stage after attemptsUsed guesses.
// MaxTimePenalty is smaller than both steps, so time alone can never drop an
// earlier win below a later one.
func Score(stage, attemptsUsed int, elapsed time.Duration) int {
	stage = max(stage, 0)
	attemptsUsed = max(attemptsUsed, 1)

	score := Base - StageStep*stage - AttemptStep*(attemptsUsed-1) - timePenalty(elapsed)
	return max(score, MinWinScore)
}

// Lost is the score of every losing session.
func Lost() int { return 0 }

func timePenalty(elapsed time.Duration) int {
	if elapsed <= 0 {
		return 0
	}
	return min(int(elapsed/timeStep), MaxTimePenalty)
}
