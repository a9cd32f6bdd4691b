package music

import "errors"

var (
	// ErrOutOfRange is returned for a pattern, step, note or parameter
	// outside its valid bounds. The operation is rejected.
	ErrOutOfRange = errors.New("out of range")
	// ErrInvalidState is returned when an operation needs a pattern and the
	// store would be left empty.
	ErrInvalidState = errors.New("invalid state")
	// ErrTransportDesync marks a step boundary reached while the play-head
	// points past the pattern. It is logged and recovered, never returned by
	// the clock entry points.
	ErrTransportDesync = errors.New("transport desync")
)
