package moviequiz

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrNoEligibleMovie  = errors.New("no eligible movie")
	ErrGenerationFailed = errors.New("hint generation failed")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionTerminal  = errors.New("session is not active")
	ErrRateLimited      = errors.New("rate limited")
	ErrStaleWrite       = errors.New("stale session write")
	ErrTransient        = errors.New("temporarily unavailable, retry")
	ErrRedundantGuess   = errors.New("guess already recorded")
)

// RateLimitError tells the caller how long to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
