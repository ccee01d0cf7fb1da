package chess

import "fmt"

// Color is the side a piece belongs to.
type Color uint8

const (
	White Color = iota
	Black
)

// Other returns the opposing color.
func (c Color) Other() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// forward is the rank delta a pawn of this color moves by.
func (c Color) forward() int {
	if c == White {
		return 1
	}
	return -1
}

// PieceType identifies a kind of piece independent of color.
type PieceType uint8

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

var pieceLetters = [...]byte{' ', 'p', 'n', 'b', 'r', 'q', 'k'}

// ParsePieceLetter maps a SAN/FEN piece letter (either case) to its type.
func ParsePieceLetter(b byte) (PieceType, bool) {
	if b >= 'A' && b <= 'Z' {
		b += 'a' - 'A'
	}
	for t := Pawn; t <= King; t++ {
		if pieceLetters[t] == b {
			return t, true
		}
	}
	return NoPieceType, false
}

// Piece packs a color and a piece type. The zero value is an empty square.
type Piece uint8

// NoPiece marks an empty square.
const NoPiece Piece = 0

const blackBit = 8

// NewPiece builds a piece of the given color and type.
func NewPiece(c Color, t PieceType) Piece {
	if t == NoPieceType {
		return NoPiece
	}
	p := Piece(t)
	if c == Black {
		p |= blackBit
	}
	return p
}

// Type returns the piece type, or NoPieceType for an empty square.
func (p Piece) Type() PieceType { return PieceType(p &^ blackBit) }

// Color returns the piece color. It is meaningless for NoPiece.
func (p Piece) Color() Color {
	if p&blackBit != 0 {
		return Black
	}
	return White
}

// Is reports whether p is a piece of color c and type t.
func (p Piece) Is(c Color, t PieceType) bool {
	return p != NoPiece && p.Color() == c && p.Type() == t
}

// String returns the FEN letter: uppercase for white, lowercase for black.
func (p Piece) String() string {
	if p == NoPiece {
		return "."
	}
	b := pieceLetters[p.Type()]
	if p.Color() == White {
		b -= 'a' - 'A'
	}
	return string(b)
}

// Square indexes the board with a1=0, b1=1, ..., h8=63.
type Square int8

// NoSquare is returned by lookups that fail.
const NoSquare Square = -1

// NewSquare builds a square from zero-based file and rank.
func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

// ParseSquare parses algebraic coordinates such as "e4".
func ParseSquare(s string) (Square, error) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return NoSquare, fmt.Errorf("invalid square %q", s)
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), nil
}

// File returns the zero-based file (a=0).
func (s Square) File() int { return int(s) % 8 }

// Rank returns the zero-based rank (rank 1 = 0).
func (s Square) Rank() int { return int(s) / 8 }

// Valid reports whether s is on the board.
func (s Square) Valid() bool { return s >= 0 && s < 64 }

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}
