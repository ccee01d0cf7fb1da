// Package transcript turns PGN game text into the move tokens, header tags
// and embedded evaluations that analysis works from.
package transcript

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/dmmcquay/chess-analysis-mcp/internal/chess"
	"github.com/dmmcquay/chess-analysis-mcp/internal/eval"
)

// ErrNoMoves is returned for text that contains no move tokens.
var ErrNoMoves = errors.New("no moves found")

// MateScore is the pawn-unit value recorded for an embedded mate evaluation.
const MateScore = eval.MateScore

var (
	headerPattern = regexp.MustCompile(`\[(\w+)\s+"([^"]*)"\]`)
	evalPattern   = regexp.MustCompile(`(?i)%eval\s+([^\s\]}]+)`)
	matePattern   = regexp.MustCompile(`^#(-?)\d+$`)
	moveNumber    = regexp.MustCompile(`^\d+\.(\.\.)?`)
)

// Transcript is a parsed game.
type Transcript struct {
	Headers map[string]string `json:"headers"`
	Tokens  []string          `json:"tokens"`
	// Evals holds the [%eval] annotations in move order, in pawn units.
	Evals []float64 `json:"evals,omitempty"`
}

// Parse reads a single PGN game. Headers, comments, variations, move
// numbers, NAGs and result markers are dropped from the token list.
func Parse(pgn string) (*Transcript, error) {
	t := &Transcript{
		Headers: parseHeaders(pgn),
		Evals:   extractEvals(pgn),
	}

	p := &pgnParser{content: pgn}
	t.Tokens = lo.Filter(p.tokens(), func(tok string, _ int) bool {
		return tok != "" && !chess.IsResult(tok) && !strings.HasPrefix(tok, "$")
	})
	if len(t.Tokens) == 0 {
		return t, ErrNoMoves
	}
	return t, nil
}

// Header returns the named tag, or "" when absent. Date falls back to
// UTCDate.
func (t *Transcript) Header(name string) string {
	if v, ok := t.Headers[name]; ok {
		return v
	}
	if name == "Date" {
		return t.Headers["UTCDate"]
	}
	return ""
}

// HasEvals reports whether the game carries its own evaluation series.
func (t *Transcript) HasEvals() bool {
	return len(t.Evals) > 0
}

func parseHeaders(pgn string) map[string]string {
	headers := make(map[string]string)
	for _, m := range headerPattern.FindAllStringSubmatch(pgn, -1) {
		headers[m[1]] = m[2]
	}
	return headers
}

// extractEvals reads %eval annotations. Mate values such as "#-3" become
// ±MateScore; unparseable values are skipped.
func extractEvals(pgn string) []float64 {
	var series []float64
	for _, m := range evalPattern.FindAllStringSubmatch(pgn, -1) {
		v := strings.TrimSpace(m[1])
		if mm := matePattern.FindStringSubmatch(v); mm != nil {
			if mm[1] == "-" {
				series = append(series, -MateScore)
			} else {
				series = append(series, MateScore)
			}
			continue
		}
		if n, err := strconv.ParseFloat(strings.TrimRight(v, ",;"), 64); err == nil {
			series = append(series, n)
		}
	}
	return series
}

// pgnParser walks movetext, skipping anything that is not a move token.
type pgnParser struct {
	content string
	index   int
}

func (p *pgnParser) tokens() []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := moveNumber.ReplaceAllString(cur.String(), "")
		out = append(out, strings.TrimLeft(tok, "."))
		cur.Reset()
	}

	for p.index < len(p.content) {
		c := p.content[p.index]
		switch {
		case c == '[':
			flush()
			p.skipPast(']')
		case c == '{':
			flush()
			p.skipPast('}')
		case c == ';':
			flush()
			p.skipPast('\n')
		case c == '(':
			flush()
			p.skipVariation()
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush()
			p.index++
		default:
			cur.WriteByte(c)
			p.index++
		}
	}
	flush()
	return out
}

// skipPast advances beyond the next occurrence of c, or to the end.
func (p *pgnParser) skipPast(c byte) {
	if i := strings.IndexByte(p.content[p.index+1:], c); i >= 0 {
		p.index += i + 2
		return
	}
	p.index = len(p.content)
}

// skipVariation skips a parenthesised variation, including nested ones and
// any comments inside it.
func (p *pgnParser) skipVariation() {
	depth := 0
	for p.index < len(p.content) {
		switch p.content[p.index] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				p.index++
				return
			}
		case '{':
			p.skipPast('}')
			continue
		}
		p.index++
	}
}
