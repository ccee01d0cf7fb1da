package uci

import (
	"fmt"
	"strconv"
	"time"
)

// Limit bounds a search. Exactly one of Depth and MoveTime must be set.
type Limit struct {
	Depth    int
	MoveTime time.Duration
}

// DepthLimit returns a depth-bounded limit.
func DepthLimit(depth int) Limit { return Limit{Depth: depth} }

// MoveTimeLimit returns a time-bounded limit.
func MoveTimeLimit(d time.Duration) Limit { return Limit{MoveTime: d} }

// Validate checks that exactly one bound is set and positive.
func (l Limit) Validate() error {
	switch {
	case l.Depth > 0 && l.MoveTime > 0:
		return fmt.Errorf("%w: both depth and movetime set", ErrInvalidLimit)
	case l.Depth <= 0 && l.MoveTime <= 0:
		return fmt.Errorf("%w: neither depth nor movetime set", ErrInvalidLimit)
	}
	return nil
}

// Kind returns "depth" or "movetime".
func (l Limit) Kind() string {
	if l.MoveTime > 0 {
		return "movetime"
	}
	return "depth"
}

// GoCommand returns the go line for this limit.
func (l Limit) GoCommand() string {
	if l.MoveTime > 0 {
		return "go movetime " + strconv.FormatInt(l.MoveTime.Milliseconds(), 10)
	}
	return "go depth " + strconv.Itoa(l.Depth)
}

func (l Limit) String() string {
	if l.MoveTime > 0 {
		return "movetime " + l.MoveTime.String()
	}
	return "depth " + strconv.Itoa(l.Depth)
}

// Result is what a request resolves with. Score is nil when the engine never
// reported one; BestMove is empty when the request did not complete.
type Result struct {
	Score    *float64 `json:"score,omitempty"`
	BestMove string   `json:"bestMove,omitempty"`
	PV       []string `json:"pv,omitempty"`
	Depth    int      `json:"depth,omitempty"`
}

// Complete reports whether the engine produced a terminal reply.
func (r Result) Complete() bool {
	return r.BestMove != ""
}
