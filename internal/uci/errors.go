package uci

import "errors"

var (
	// ErrBusy is returned when a request is submitted while another one, or
	// the handshake, is in flight. Nothing is written to the engine.
	ErrBusy = errors.New("engine session busy")
	// ErrUnavailable is returned when the session could not be established
	// or has already failed. Callers should discard the session.
	ErrUnavailable = errors.New("engine session unavailable")
	// ErrTimeout is returned when the engine stays silent past the deadline.
	// The result carries whatever partial data was seen.
	ErrTimeout = errors.New("engine request timed out")
	// ErrTransport is returned when sending to or reading from the engine
	// fails mid-request.
	ErrTransport = errors.New("engine transport failure")
	// ErrInvalidLimit is returned for limits that set both or neither bound.
	ErrInvalidLimit = errors.New("invalid search limit")
)
