package chess

import "regexp"

// LongMovePattern matches engine moves such as "e2e4" or "e7e8q".
var LongMovePattern = regexp.MustCompile(`^[a-h][1-8][a-h][1-8][qrbn]?$`)

// IsLongMove reports whether s is a well-formed long-algebraic move.
func IsLongMove(s string) bool {
	return LongMovePattern.MatchString(s)
}

// ApplyLongMove applies an engine move such as "e2e4" for side. King moves
// between the castling squares also move the rook, and a pawn moving
// diagonally onto an empty square captures en passant. The board is left
// untouched when an error is returned.
func ApplyLongMove(p *Position, side Color, move string) error {
	if !IsLongMove(move) {
		return moveErr(move, ErrMalformedMove)
	}
	from, _ := ParseSquare(move[0:2])
	to, _ := ParseSquare(move[2:4])

	piece := p.Board[from]
	if piece == NoPiece {
		return moveErr(move, ErrEmptyOrigin)
	}

	switch piece.Type() {
	case King:
		if rookFrom, rookTo, ok := castlingRook(from, to); ok {
			p.Move(rookFrom, rookTo, NoPiece)
		}
	case Pawn:
		if from.File() != to.File() && p.Board[to] == NoPiece {
			p.Board[NewSquare(to.File(), from.Rank())] = NoPiece
		}
	}

	promo := NoPiece
	if len(move) == 5 {
		t, _ := ParsePieceLetter(move[4])
		promo = NewPiece(side, t)
	}
	p.Move(from, to, promo)
	return nil
}

func castlingRook(from, to Square) (Square, Square, bool) {
	switch {
	case from.File() != 4 || (from.Rank() != 0 && from.Rank() != 7) || to.Rank() != from.Rank():
		return NoSquare, NoSquare, false
	case to.File() == 6:
		return NewSquare(7, from.Rank()), NewSquare(5, from.Rank()), true
	case to.File() == 2:
		return NewSquare(0, from.Rank()), NewSquare(3, from.Rank()), true
	}
	return NoSquare, NoSquare, false
}
