/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package trickortreat

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrPlayerNotFound  = fmt.Errorf("player %w", ErrNotFound)
	ErrInvalidState    = errors.New("invalid state")
	ErrAlreadyDoneQuiz = errors.New("player already selected a quiz this turn")
	ErrNoTurnState     = errors.New("session has no turn record")
	ErrNoPlayers       = errors.New("session has no players")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoSession       = errors.New("no session loaded")

	// ErrDuplicateAction is returned by storage when a turn history row would
	// break the per-turn uniqueness rules.
	ErrDuplicateAction = errors.New("duplicate turn action")
)

// ScoringError wraps a storage failure during a scoring mutation. Nothing
// was written; the whole operation may be retried.
type ScoringError struct {
	Op  string
	Err error
}

func (e *ScoringError) Error() string {
	return "scoring: " + e.Op + ": " + e.Err.Error()
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}

// domainError reports whether err is one of the domain errors that callers
// should see unwrapped from storage.
func domainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrAlreadyDoneQuiz) ||
		errors.Is(err, ErrNoTurnState) ||
		errors.Is(err, ErrNoPlayers) ||
		errors.Is(err, ErrInvalidInput)
}

func scoringErr(op string, err error) error {
	if err == nil || domainError(err) {
		return err
	}

	var se *ScoringError
	if errors.As(err, &se) {
		return err
	}

	return &ScoringError{Op: op, Err: err}
}

func invalidState(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidState}, args...)...)
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidInput}, args...)...)
}
