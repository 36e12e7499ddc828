package domain

import "errors"

var (
	// ErrNotFound covers missing tasks, columns, boards and notifications,
	// including notifications that exist but belong to someone else.
	ErrNotFound = errors.New("not found")

	// ErrLockViolation is returned when a save or release is attempted by a
	// user who does not hold the task's edit lock.
	ErrLockViolation = errors.New("task is locked by another user")

	// ErrCrossBoardMove rejects moving a task into a column of a different
	// board.
	ErrCrossBoardMove = errors.New("target column belongs to a different board")

	// ErrForbidden is returned when the caller is not allowed to act on the
	// resource (non-owner invite, foreign notification stream).
	ErrForbidden = errors.New("forbidden")
)
