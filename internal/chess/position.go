package chess

// Position is a board plus the side to move. It is a value type; copying it
// copies the board.
type Position struct {
	Board [64]Piece
	Turn  Color
}

var backRank = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

// StartingPosition returns the standard initial setup with white to move.
func StartingPosition() Position {
	var p Position
	for f := 0; f < 8; f++ {
		p.Board[NewSquare(f, 0)] = NewPiece(White, backRank[f])
		p.Board[NewSquare(f, 1)] = NewPiece(White, Pawn)
		p.Board[NewSquare(f, 6)] = NewPiece(Black, Pawn)
		p.Board[NewSquare(f, 7)] = NewPiece(Black, backRank[f])
	}
	p.Turn = White
	return p
}

// Get returns the piece on sq, or NoPiece for empty or off-board squares.
func (p *Position) Get(sq Square) Piece {
	if !sq.Valid() {
		return NoPiece
	}
	return p.Board[sq]
}

// Set places piece on sq. Off-board squares are ignored.
func (p *Position) Set(sq Square, piece Piece) {
	if sq.Valid() {
		p.Board[sq] = piece
	}
}

// Move relocates whatever stands on from to to, without any rule checks.
// A non-empty promo replaces the moved piece.
func (p *Position) Move(from, to Square, promo Piece) {
	piece := p.Get(from)
	if promo != NoPiece {
		piece = promo
	}
	p.Set(from, NoPiece)
	p.Set(to, piece)
}

// Clone returns an independent copy.
func (p *Position) Clone() Position {
	return *p
}

// Find returns the first square holding piece in scan order, or NoSquare.
func (p *Position) Find(piece Piece) Square {
	for _, sq := range scanOrder {
		if p.Board[sq] == piece {
			return sq
		}
	}
	return NoSquare
}

func (p *Position) String() string {
	return EncodePlacement(p)
}

// scanOrder visits squares the way a board is displayed: rank 8 first,
// files a to h within each rank.
var scanOrder = func() [64]Square {
	var order [64]Square
	i := 0
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			order[i] = NewSquare(file, rank)
			i++
		}
	}
	return order
}()
