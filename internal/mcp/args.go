package mcp

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

var errMissingArguments = errors.New("missing arguments")

func argsOf(request mcp.CallToolRequest) (map[string]interface{}, error) {
	args := request.Params.Arguments
	if args == nil {
		return map[string]interface{}{}, nil
	}
	argsMap, ok := args.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid arguments format")
	}
	return argsMap, nil
}

func requireString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", errMissingArguments, key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s is empty", errMissingArguments, key)
	}
	return s, nil
}

// intArg reads a numeric argument. JSON numbers arrive as float64; strings
// are accepted too.
func intArg(args map[string]interface{}, key string) (int, bool, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return int(n), true, nil
	case int:
		return n, true, nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false, fmt.Errorf("%s must be a number", key)
		}
		return i, true, nil
	}
	return 0, false, fmt.Errorf("%s must be a number", key)
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if b, ok := args[key].(bool); ok {
		return b
	}
	return def
}

// limitArg builds a search limit from depth and movetime (milliseconds).
// movetime wins when both are given; neither yields def.
func limitArg(args map[string]interface{}, def uci.Limit) (uci.Limit, error) {
	depth, hasDepth, err := intArg(args, "depth")
	if err != nil {
		return uci.Limit{}, err
	}
	movetime, hasMovetime, err := intArg(args, "movetime")
	if err != nil {
		return uci.Limit{}, err
	}

	limit := def
	switch {
	case hasMovetime && movetime > 0:
		limit = uci.MoveTimeLimit(time.Duration(movetime) * time.Millisecond)
	case hasDepth && depth > 0:
		limit = uci.DepthLimit(depth)
	case hasMovetime || hasDepth:
		return uci.Limit{}, fmt.Errorf("%w: depth and movetime must be positive", uci.ErrInvalidLimit)
	}
	return limit, nil
}
