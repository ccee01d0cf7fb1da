package chess

import "strings"

// IsResult reports whether token is a game termination marker.
func IsResult(token string) bool {
	switch strings.TrimSpace(token) {
	case "1-0", "0-1", "1/2-1/2", "*":
		return true
	}
	return false
}

// ReplayTo replays up to n plies of tokens from the starting position.
// Empty tokens are skipped and a result marker ends the replay. It returns
// the position reached, the number of plies applied and the first error.
// A negative n replays everything.
func ReplayTo(tokens []string, n int) (Position, int, error) {
	pos := StartingPosition()
	applied := 0
	for _, tok := range tokens {
		if n >= 0 && applied >= n {
			break
		}
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if IsResult(tok) {
			break
		}
		if err := pos.Play(tok); err != nil {
			return pos, applied, err
		}
		applied++
	}
	return pos, applied, nil
}
