package eval

import (
	"strings"

	"github.com/dmmcquay/chess-analysis-mcp/internal/chess"
)

var pieceValues = map[chess.PieceType]float64{
	chess.Pawn:   10,
	chess.Knight: 32,
	chess.Bishop: 33,
	chess.Rook:   50,
	chess.Queen:  90,
	chess.King:   2000,
}

// normalization turns the summed table units into pawns.
const normalization = 10.0

// Piece-square tables from white's point of view. Row 0 is rank 8.
var pst = map[chess.PieceType][8][8]float64{
	chess.Pawn: {
		{0, 0, 0, 0, 0, 0, 0, 0},
		{5, 5, 5, 5, 5, 5, 5, 5},
		{1, 1, 2, 3, 3, 2, 1, 1},
		{0.5, 0.5, 1, 2.5, 2.5, 1, 0.5, 0.5},
		{0, 0, 0, 2, 2, 0, 0, 0},
		{0.5, -0.5, -1, 0, 0, -1, -0.5, 0.5},
		{0.5, 1, 1, -2, -2, 1, 1, 0.5},
		{0, 0, 0, 0, 0, 0, 0, 0},
	},
	chess.Knight: {
		{-5, -4, -3, -3, -3, -3, -4, -5},
		{-4, -2, 0, 0, 0, 0, -2, -4},
		{-3, 0, 1, 1.5, 1.5, 1, 0, -3},
		{-3, 0.5, 1.5, 2, 2, 1.5, 0.5, -3},
		{-3, 0, 1.5, 2, 2, 1.5, 0, -3},
		{-3, 0.5, 1, 1.5, 1.5, 1, 0.5, -3},
		{-4, -2, 0, 0.5, 0.5, 0, -2, -4},
		{-5, -4, -3, -3, -3, -3, -4, -5},
	},
	chess.Bishop: {
		{-2, -1, -1, -1, -1, -1, -1, -2},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0.5, 1, 1, 0.5, 0, -1},
		{-1, 0.5, 0.5, 1, 1, 0.5, 0.5, -1},
		{-1, 0, 1, 1, 1, 1, 0, -1},
		{-1, 1, 1, 1, 1, 1, 1, -1},
		{-1, 0.5, 0, 0, 0, 0, 0.5, -1},
		{-2, -1, -1, -1, -1, -1, -1, -2},
	},
	chess.Rook: {
		{0, 0, 0, 0, 0, 0, 0, 0},
		{0.5, 1, 1, 1, 1, 1, 1, 0.5},
		{-0.5, 0, 0, 0, 0, 0, 0, -0.5},
		{-0.5, 0, 0, 0, 0, 0, 0, -0.5},
		{-0.5, 0, 0, 0, 0, 0, 0, -0.5},
		{-0.5, 0, 0, 0, 0, 0, 0, -0.5},
		{-0.5, 0, 0, 0, 0, 0, 0, -0.5},
		{0, 0, 0, 0.5, 0.5, 0, 0, 0},
	},
	chess.Queen: {
		{-2, -1, -1, -0.5, -0.5, -1, -1, -2},
		{-1, 0, 0, 0, 0, 0, 0, -1},
		{-1, 0, 0.5, 0.5, 0.5, 0.5, 0, -1},
		{-0.5, 0, 0.5, 0.5, 0.5, 0.5, 0, -0.5},
		{0, 0, 0.5, 0.5, 0.5, 0.5, 0, -0.5},
		{-1, 0.5, 0.5, 0.5, 0.5, 0.5, 0, -1},
		{-1, 0, 0.5, 0, 0, 0, 0, -1},
		{-2, -1, -1, -0.5, -0.5, -1, -1, -2},
	},
	chess.King: {
		{-3, -4, -4, -5, -5, -4, -4, -3},
		{-3, -4, -4, -5, -5, -4, -4, -3},
		{-3, -4, -4, -5, -5, -4, -4, -3},
		{-3, -4, -4, -5, -5, -4, -4, -3},
		{-2, -3, -3, -4, -4, -3, -3, -2},
		{-1, -2, -2, -2, -2, -2, -2, -1},
		{2, 2, 0, 0, 0, 0, 2, 2},
		{2, 3, 1, 0, 0, 1, 3, 2},
	},
}

// Material scores a position in pawns, white positive.
func Material(p *chess.Position) float64 {
	var score float64
	for sq := chess.Square(0); sq < 64; sq++ {
		piece := p.Board[sq]
		if piece == chess.NoPiece {
			continue
		}
		row := 7 - sq.Rank()
		if piece.Color() == chess.Black {
			row = 7 - row
		}
		v := pieceValues[piece.Type()] + pst[piece.Type()][row][sq.File()]
		if piece.Color() == chess.White {
			score += v
		} else {
			score -= v
		}
	}
	return score / normalization
}

// MaterialSeries replays tokens from the starting position and scores each
// applied ply. Empty tokens are skipped, a result marker ends the series and
// the first token that fails to apply stops it. The error, if any, is the
// failure that stopped the replay.
func MaterialSeries(tokens []string) ([]float64, error) {
	pos := chess.StartingPosition()
	series := make([]float64, 0, len(tokens))
	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if chess.IsResult(tok) {
			break
		}
		if err := pos.Play(tok); err != nil {
			return series, err
		}
		series = append(series, Material(&pos))
	}
	return series, nil
}
