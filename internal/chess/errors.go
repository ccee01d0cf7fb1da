package chess

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedMove is returned for tokens that do not parse as a move.
	ErrMalformedMove = errors.New("malformed move")
	// ErrNoCandidate is returned when no piece of the moving side can reach
	// the destination.
	ErrNoCandidate = errors.New("no piece can make this move")
	// ErrCastling is returned when king or rook is not on its home square.
	ErrCastling = errors.New("castling pieces not on home squares")
	// ErrEmptyOrigin is returned when a long-algebraic move starts on an
	// empty square.
	ErrEmptyOrigin = errors.New("origin square is empty")
)

// MoveError records the token that failed to apply.
type MoveError struct {
	Token string
	Err   error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %q: %v", e.Token, e.Err)
}

func (e *MoveError) Unwrap() error { return e.Err }

func moveErr(token string, err error) error {
	return &MoveError{Token: token, Err: err}
}
