package core

import "errors"

var (
	// ErrConfig marks invalid settings, malformed input files and maps
	// that fail validation. It is only returned during scenario setup.
	ErrConfig = errors.New("configuration error")
	// ErrIO marks unreadable map, route or contact files.
	ErrIO = errors.New("io error")
	// ErrOutOfWorld is returned when an interface is located outside
	// [0, W] x [0, H].
	ErrOutOfWorld = errors.New("location out of world bounds")
	// ErrInvariantViolation marks internal consistency failures such as a
	// grid move whose source cell does not hold the interface.
	ErrInvariantViolation = errors.New("invariant violation")
)
