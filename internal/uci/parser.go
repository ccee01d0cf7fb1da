package uci

import (
	"strconv"
	"strings"

	"github.com/dmmcquay/chess-analysis-mcp/internal/chess"
	"github.com/dmmcquay/chess-analysis-mcp/internal/eval"
)

// MateScore is the pawn-unit value used for any forced mate.
const MateScore = eval.MateScore

// ParseScore extracts the score from an info line in pawn units. A mate
// score maps to ±MateScore (mate 0 counts as positive); a centipawn score is
// divided by 100.
func ParseScore(line string) (float64, bool) {
	fields := strings.Fields(line)
	for i := 0; i+2 < len(fields); i++ {
		if fields[i] != "score" {
			continue
		}
		n, err := strconv.Atoi(fields[i+2])
		if err != nil {
			continue
		}
		switch fields[i+1] {
		case "mate":
			if n >= 0 {
				return MateScore, true
			}
			return -MateScore, true
		case "cp":
			return float64(n) / 100, true
		}
	}
	return 0, false
}

// ParsePV returns the long-algebraic moves following the " pv " marker,
// stopping at the first token that is not a move.
func ParsePV(line string) []string {
	idx := strings.Index(line, " pv ")
	if idx < 0 {
		return nil
	}
	var moves []string
	for _, tok := range strings.Fields(line[idx+4:]) {
		if !chess.IsLongMove(tok) {
			break
		}
		moves = append(moves, tok)
	}
	return moves
}

// ParseBestMove reports whether line is a terminal bestmove line and, if
// the move after it is well formed, returns it. "bestmove (none)" is
// terminal with an empty move.
func ParseBestMove(line string) (move string, terminal bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || fields[0] != "bestmove" {
		return "", false
	}
	if len(fields) > 1 && chess.IsLongMove(fields[1]) {
		return fields[1], true
	}
	return "", true
}

// Info holds the fields of an engine reply line that a session tracks.
type Info struct {
	Depth int
	Nodes int64
	Score *float64
	PV    []string
}

// ParseInfo runs the score and PV extractors over line and also picks up
// the search depth and node count.
func ParseInfo(line string) Info {
	var info Info
	fields := strings.Fields(line)
	for i := 0; i+1 < len(fields); i++ {
		switch fields[i] {
		case "depth":
			info.Depth, _ = strconv.Atoi(fields[i+1])
		case "nodes":
			info.Nodes, _ = strconv.ParseInt(fields[i+1], 10, 64)
		}
	}
	if s, ok := ParseScore(line); ok {
		info.Score = &s
	}
	info.PV = ParsePV(line)
	return info
}
