package repositories

import "errors"

var (
	// ErrCounterInvalidInput indicates the caller supplied an empty id or a negative step.
	ErrCounterInvalidInput = errors.New("counter: invalid input")
	// ErrCounterExhausted indicates the counter reached its configured max value.
	ErrCounterExhausted = errors.New("counter: exhausted")
)
