package quest

import "errors"

var (
	// ErrNotFound means the quest definition or user record does not exist.
	ErrNotFound = errors.New("quest: not found")
	// ErrInvalidState means the operation is not allowed from the record's
	// current status (e.g. resetting a non-recurring quest).
	ErrInvalidState = errors.New("quest: invalid state")
	// ErrNotCompleted means claim was attempted on a still-active record.
	ErrNotCompleted = errors.New("quest: not completed")
	// ErrAlreadyClaimed means the record's rewards were already claimed
	// this cycle.
	ErrAlreadyClaimed = errors.New("quest: already claimed")
	// ErrGateFailed means activation conditions (level, prerequisite) are
	// not met.
	ErrGateFailed = errors.New("quest: gating conditions not met")
	// ErrGrantFailed means the claim committed but one or more downstream
	// grant calls failed. The claimed status is not rolled back.
	ErrGrantFailed = errors.New("quest: reward grant failed")
)
