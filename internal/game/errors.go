package game

import (
	"errors"
	"fmt"
)

// Rejection reasons for Apply. Match them with errors.Is.
var (
	ErrNoHand            = errors.New("no hand in progress")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrCannotCheck       = errors.New("cannot check facing a bet")
	ErrRaiseTooSmall     = errors.New("raise below minimum")
	ErrRaiseTooLarge     = errors.New("raise above maximum")
	ErrInsufficientChips = errors.New("insufficient chips")
	ErrRaiseNotReopened  = errors.New("raising is closed for this seat")
	ErrUnknownAction     = errors.New("unknown action")
)

// Table errors.
var (
	ErrSeatTaken        = errors.New("seat is taken")
	ErrSeatOutOfRange   = errors.New("seat out of range")
	ErrTableFull        = errors.New("table is full")
	ErrHandInProgress   = errors.New("hand in progress")
	ErrNotEnoughPlayers = errors.New("not enough players")
	ErrNoRunout         = errors.New("no runout pending")
	ErrAlreadySeated    = errors.New("player already seated")
	ErrNotSeated        = errors.New("player not seated")
)

// ActionError is a declined action. The table state is unchanged.
type ActionError struct {
	Seat   int
	Action Action
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("seat %d %s: %v", e.Seat, e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

func reject(seat int, action Action, err error) error {
	return &ActionError{Seat: seat, Action: action, Err: err}
}

// InvariantError reports table state that must never occur. The hand that
// produced it is voided.
type InvariantError struct {
	Check  string
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Check, e.Detail)
}

func violation(check, format string, args ...any) *InvariantError {
	return &InvariantError{Check: check, Detail: fmt.Sprintf(format, args...)}
}
