package analysis

import (
	"github.com/samber/lo"

	"github.com/dmmcquay/chess-analysis-mcp/internal/chess"
)

// DefaultMaxPVLength caps how many PV moves a Line exposes.
const DefaultMaxPVLength = 16

// Line steps through an engine principal variation from a fixed base
// position. The base is copied on construction and never mutated.
type Line struct {
	base  chess.Position
	moves []string
	index int
}

// NewLine builds a navigator over pv from base. Moves that are not long
// algebraic end the line, and at most max moves are kept.
func NewLine(base chess.Position, pv []string, max int) *Line {
	if max <= 0 {
		max = DefaultMaxPVLength
	}
	valid := len(pv)
	for i, mv := range pv {
		if !chess.IsLongMove(mv) {
			valid = i
			break
		}
	}
	return &Line{
		base:  base.Clone(),
		moves: lo.Slice(pv, 0, min(valid, max)),
	}
}

// Moves returns the moves of the line.
func (l *Line) Moves() []string { return l.moves }

// Len is the number of moves in the line.
func (l *Line) Len() int { return len(l.moves) }

// Index is the number of moves currently applied.
func (l *Line) Index() int { return l.index }

// Step moves the cursor by delta, clamped to [0, Len], and returns the new
// index.
func (l *Line) Step(delta int) int {
	l.index = max(0, min(len(l.moves), l.index+delta))
	return l.index
}

// Reset returns the cursor to the base position.
func (l *Line) Reset() { l.index = 0 }

// Position replays the first Index moves onto a fresh copy of the base.
// If a move cannot be applied the position before it is returned together
// with the error.
func (l *Line) Position() (chess.Position, error) {
	pos := l.base.Clone()
	for _, mv := range l.moves[:l.index] {
		if err := chess.ApplyLongMove(&pos, pos.Turn, mv); err != nil {
			return pos, err
		}
		pos.Turn = pos.Turn.Other()
	}
	return pos, nil
}
