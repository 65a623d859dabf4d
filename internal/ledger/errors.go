package ledger

import "errors"

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid record")
	// ErrRunClosed is returned when a write would reopen a cancelled run.
	ErrRunClosed = errors.New("run already cancelled")
)
