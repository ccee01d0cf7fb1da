package uci

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestStreamTransport(t *testing.T) {
	var sent strings.Builder
	tr := NewStreamTransport(strings.NewReader("id name X\n\n  uciok  \r\n"), nopWriteCloser{&sent})

	require.NoError(t, tr.Send("uci"))
	require.NoError(t, tr.Send("isready"))
	assert.Equal(t, "uci\nisready\n", sent.String())

	line, err := tr.Recv()
	require.NoError(t, err)
	assert.Equal(t, "id name X", line)

	// Blank lines are skipped and whitespace trimmed.
	line, err = tr.Recv()
	require.NoError(t, err)
	assert.Equal(t, "uciok", line)

	_, err = tr.Recv()
	assert.ErrorIs(t, err, io.EOF)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Send("quit"), io.ErrClosedPipe)
}

// echoEngine upgrades the connection and answers like a minimal engine,
// batching several lines into one message the way the bridge may.
func echoEngine(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var reply string
			switch strings.TrimSpace(string(data)) {
			case "uci":
				reply = "id name SocketFish\nuciok\n"
			case "isready":
				reply = "readyok"
			case "go depth 5":
				reply = "info depth 5 score cp 25 pv e2e4\nbestmove e2e4"
			default:
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebSocketSession(t *testing.T) {
	srv := echoEngine(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tr, err := DialWebSocket(ctx, url)
	require.NoError(t, err)

	s := NewSession(tr, SessionOptions{}, logging.NewNopLogger(), nil)
	defer s.Close()

	res, err := s.Analyze(ctx, DepthLimit(5), startFEN)
	require.NoError(t, err)
	assert.Equal(t, "SocketFish", s.EngineName())
	assert.Equal(t, "e2e4", res.BestMove)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 0.25, *res.Score, 1e-9)
}

func TestDialWebSocketFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := DialWebSocket(ctx, "ws://127.0.0.1:1/engine")
	assert.Error(t, err)
}

func TestStartProcessMissingBinary(t *testing.T) {
	_, err := StartProcess(context.Background(), "/nonexistent/engine-binary", nil, logging.NewNopLogger())
	assert.Error(t, err)
}

func TestGetInstallationInstructions(t *testing.T) {
	got := GetInstallationInstructions()
	assert.Contains(t, got, "Stockfish Installation Instructions")
	assert.Contains(t, got, "CHESS_ANALYZER_ENGINE_BINARYPATH")
}
