package chess

import "strings"

// EncodePlacement returns the piece-placement field of a FEN string.
func EncodePlacement(p *Position) string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			piece := p.Board[NewSquare(file, rank)]
			if piece == NoPiece {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteByte(byte('0' + empty))
				empty = 0
			}
			sb.WriteString(piece.String())
		}
		if empty > 0 {
			sb.WriteByte(byte('0' + empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// EncodeFEN returns a FEN string for p with side to move. Castling rights and
// the en passant square are not tracked, so those fields are always "-" and
// the move counters are fixed at "0 1".
func EncodeFEN(p *Position, side Color) string {
	turn := "w"
	if side == Black {
		turn = "b"
	}
	return EncodePlacement(p) + " " + turn + " - - 0 1"
}
