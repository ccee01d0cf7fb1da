package chess

import (
	"regexp"
	"strings"
)

// sanPattern captures piece, file hint, rank hint, capture marker,
// destination and promotion. Trailing text after a match is ignored.
var sanPattern = regexp.MustCompile(`^([NBRQK])?([a-h])?([1-8])?(x)?([a-h][1-8])(?:=?([QRBN]))?`)

var decorations = strings.NewReplacer("+", "", "#", "", "!", "", "?", "")

type sanMove struct {
	piece    PieceType
	fileHint int // -1 when absent
	rankHint int // -1 when absent
	dest     Square
	promo    PieceType
}

// ApplySAN applies a standard algebraic move for side to p. The board is left
// untouched when an error is returned.
func ApplySAN(p *Position, side Color, token string) error {
	san := strings.TrimSpace(decorations.Replace(token))
	if san == "" {
		return moveErr(token, ErrMalformedMove)
	}

	switch san {
	case "O-O", "0-0":
		return castle(p, side, true, token)
	case "O-O-O", "0-0-0":
		return castle(p, side, false, token)
	}

	mv, ok := parseSAN(san)
	if !ok {
		return moveErr(token, ErrMalformedMove)
	}

	from := findCandidate(p, side, mv)
	if from == NoSquare {
		return moveErr(token, ErrNoCandidate)
	}

	moving := p.Board[from]
	if mv.piece == Pawn && from.File() != mv.dest.File() && p.Board[mv.dest] == NoPiece {
		// En passant: the captured pawn sits beside the origin.
		p.Board[NewSquare(mv.dest.File(), from.Rank())] = NoPiece
	}
	if mv.promo != NoPieceType {
		moving = NewPiece(side, mv.promo)
	}
	p.Board[from] = NoPiece
	p.Board[mv.dest] = moving
	return nil
}

// ToLongMove resolves a SAN token against p without changing it and returns
// the equivalent long-algebraic move, e.g. "Nf3" -> "g1f3", "O-O" -> "e1g1".
func ToLongMove(p *Position, side Color, token string) (string, error) {
	scratch := p.Clone()
	if err := ApplySAN(&scratch, side, token); err != nil {
		return "", err
	}
	san := strings.TrimSpace(decorations.Replace(token))
	rank := "1"
	if side == Black {
		rank = "8"
	}
	switch san {
	case "O-O", "0-0":
		return "e" + rank + "g" + rank, nil
	case "O-O-O", "0-0-0":
		return "e" + rank + "c" + rank, nil
	}
	mv, _ := parseSAN(san)
	from := findCandidate(p, side, mv)
	long := from.String() + mv.dest.String()
	if mv.promo != NoPieceType {
		long += string(pieceLetters[mv.promo])
	}
	return long, nil
}

// Play applies token for the side to move and passes the turn on success.
func (p *Position) Play(token string) error {
	if err := ApplySAN(p, p.Turn, token); err != nil {
		return err
	}
	p.Turn = p.Turn.Other()
	return nil
}

func parseSAN(san string) (sanMove, bool) {
	m := sanPattern.FindStringSubmatch(san)
	if m == nil {
		return sanMove{}, false
	}
	mv := sanMove{piece: Pawn, fileHint: -1, rankHint: -1}
	if m[1] != "" {
		mv.piece, _ = ParsePieceLetter(m[1][0])
	}
	if m[2] != "" {
		mv.fileHint = int(m[2][0] - 'a')
	}
	if m[3] != "" {
		mv.rankHint = int(m[3][0] - '1')
	}
	mv.dest, _ = ParseSquare(m[5])
	if m[6] != "" {
		mv.promo, _ = ParsePieceLetter(m[6][0])
	}
	return mv, true
}

func castle(p *Position, side Color, kingside bool, token string) error {
	rank := 0
	if side == Black {
		rank = 7
	}
	kingFrom, kingTo := NewSquare(4, rank), NewSquare(6, rank)
	rookFrom, rookTo := NewSquare(7, rank), NewSquare(5, rank)
	if !kingside {
		kingTo = NewSquare(2, rank)
		rookFrom, rookTo = NewSquare(0, rank), NewSquare(3, rank)
	}
	if !p.Board[kingFrom].Is(side, King) || !p.Board[rookFrom].Is(side, Rook) {
		return moveErr(token, ErrCastling)
	}
	p.Move(kingFrom, kingTo, NoPiece)
	p.Move(rookFrom, rookTo, NoPiece)
	return nil
}

// findCandidate returns the first square in scan order holding a piece of
// side that matches the hints and can geometrically reach the destination.
func findCandidate(p *Position, side Color, mv sanMove) Square {
	if target := p.Board[mv.dest]; target != NoPiece && target.Color() == side {
		return NoSquare
	}
	for _, sq := range scanOrder {
		if !p.Board[sq].Is(side, mv.piece) {
			continue
		}
		if mv.fileHint >= 0 && sq.File() != mv.fileHint {
			continue
		}
		if mv.rankHint >= 0 && sq.Rank() != mv.rankHint {
			continue
		}
		if canReach(p, side, mv, sq) {
			return sq
		}
	}
	return NoSquare
}

func canReach(p *Position, side Color, mv sanMove, from Square) bool {
	to := mv.dest
	dr := to.Rank() - from.Rank()
	dc := to.File() - from.File()
	adr, adc := abs(dr), abs(dc)

	switch mv.piece {
	case Pawn:
		return pawnCanReach(p, side, mv, from, dr, dc)
	case Knight:
		d := adr*10 + adc
		return d == 12 || d == 21
	case King:
		return max(adr, adc) == 1
	case Bishop:
		return adr == adc && adr > 0 && pathClear(p, from, to)
	case Rook:
		return (adr == 0) != (adc == 0) && pathClear(p, from, to)
	case Queen:
		straight := (adr == 0) != (adc == 0)
		diagonal := adr == adc && adr > 0
		return (straight || diagonal) && pathClear(p, from, to)
	}
	return false
}

// pawnCanReach treats a file hint as a capture and its absence as a push.
func pawnCanReach(p *Position, side Color, mv sanMove, from Square, dr, dc int) bool {
	fwd := side.forward()
	to := mv.dest

	if mv.fileHint >= 0 {
		if dr != fwd || abs(dc) != 1 {
			return false
		}
		if p.Board[to] != NoPiece {
			return p.Board[to].Color() != side
		}
		return p.Board[NewSquare(to.File(), from.Rank())].Is(side.Other(), Pawn)
	}

	if dc != 0 || p.Board[to] != NoPiece {
		return false
	}
	if dr == fwd {
		return true
	}
	startRank := 1
	if side == Black {
		startRank = 6
	}
	return dr == 2*fwd && from.Rank() == startRank &&
		p.Board[NewSquare(from.File(), from.Rank()+fwd)] == NoPiece
}

// pathClear reports whether every square strictly between from and to is
// empty. from and to must share a line or diagonal.
func pathClear(p *Position, from, to Square) bool {
	sr := sign(to.Rank() - from.Rank())
	sc := sign(to.File() - from.File())
	r, c := from.Rank()+sr, from.File()+sc
	for r != to.Rank() || c != to.File() {
		if p.Board[NewSquare(c, r)] != NoPiece {
			return false
		}
		r += sr
		c += sc
	}
	return true
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func sign(x int) int {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
