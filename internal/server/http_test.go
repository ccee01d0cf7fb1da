package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/health"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
	"github.com/dmmcquay/chess-analysis-mcp/internal/ratelimit"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

// scriptedEngine is an in-memory engine that answers the UCI handshake.
type scriptedEngine struct {
	out chan string

	mu       sync.Mutex
	received []string
	closed   bool
}

func newScriptedEngine() *scriptedEngine {
	return &scriptedEngine{out: make(chan string, 32)}
}

func (e *scriptedEngine) Send(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return io.ErrClosedPipe
	}
	e.received = append(e.received, line)
	switch line {
	case "uci":
		e.out <- "id name Scripted 1.0"
		e.out <- "uciok"
	case "isready":
		e.out <- "readyok"
	case "quit":
		e.closed = true
		close(e.out)
	}
	return nil
}

func (e *scriptedEngine) Recv() (string, error) {
	line, ok := <-e.out
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func (e *scriptedEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.closed {
		e.closed = true
		close(e.out)
	}
	return nil
}

func (e *scriptedEngine) commands() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.received...)
}

func newTestServer(t *testing.T, bridge *Bridge) (*HTTPServer, *httptest.Server) {
	t.Helper()
	logger := logging.NewNopLogger()
	checker := health.NewChecker(logger, "1.0.0", "abc123")
	checker.RegisterCheck("test", func(ctx context.Context) error { return nil })

	srv := NewHTTPServer(":0", logger, checker, metrics.NewPrometheusCollector(), bridge)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestNewHTTPServer(t *testing.T) {
	server := NewHTTPServer(":8080", logging.NewNopLogger(), health.NewChecker(logging.NewNopLogger(), "1.0.0", ""), nil, nil)
	if server == nil {
		t.Fatal("Expected non-nil server")
	}
	if server.server.Addr != ":8080" {
		t.Errorf("Expected addr :8080, got %s", server.server.Addr)
	}
}

func TestHTTPServerStartStop(t *testing.T) {
	logger := logging.NewNopLogger()
	server := NewHTTPServer("127.0.0.1:0", logger, health.NewChecker(logger, "1.0.0", ""), nil, nil)

	require.NoError(t, server.Start())
	assert.NotEqual(t, "127.0.0.1:0", server.Addr())

	resp, err := http.Get("http://" + server.Addr() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))
}

func TestHTTPServerStartFailsOnBusyPort(t *testing.T) {
	logger := logging.NewNopLogger()
	first := NewHTTPServer("127.0.0.1:0", logger, health.NewChecker(logger, "1.0.0", ""), nil, nil)
	require.NoError(t, first.Start())
	defer first.Stop(context.Background())

	second := NewHTTPServer(first.Addr(), logger, health.NewChecker(logger, "1.0.0", ""), nil, nil)
	assert.Error(t, second.Start())
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t, nil)

	for _, path := range []string{"/health", "/ready"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err, path)

		var body health.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body), path)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.Equal(t, health.StatusHealthy, body.Status, path)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `chess_mcp_http_requests_total{method="GET",path="/health",status="200"}`)
}

func TestEngineRouteRequiresBridge(t *testing.T) {
	_, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/engine")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBridgeRelaysSession(t *testing.T) {
	engine := newScriptedEngine()
	bridge := NewBridge(func(ctx context.Context) (uci.Transport, error) {
		return engine, nil
	}, nil, logging.NewNopLogger(), nil)
	_, ts := newTestServer(t, bridge)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	transport, err := uci.DialWebSocket(ctx, wsURL(ts, "/engine"))
	require.NoError(t, err)

	opts := uci.DefaultSessionOptions()
	opts.HandshakeTimeout = 2 * time.Second
	sess := uci.NewSession(transport, opts, logging.NewNopLogger(), nil)
	require.NoError(t, sess.Ping(ctx))
	assert.Equal(t, "Scripted 1.0", sess.EngineName())
	require.NoError(t, sess.Close())

	assert.Eventually(t, func() bool {
		cmds := engine.commands()
		return len(cmds) > 0 && cmds[len(cmds)-1] == "quit"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "uci", engine.commands()[0])
}

func TestBridgeSplitsMultiLineMessages(t *testing.T) {
	engine := newScriptedEngine()
	bridge := NewBridge(func(ctx context.Context) (uci.Transport, error) {
		return engine, nil
	}, nil, logging.NewNopLogger(), nil)
	_, ts := newTestServer(t, bridge)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("uci\n\nisready\n")))

	var got []string
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(got) < 3 {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		got = append(got, string(msg))
	}
	assert.Equal(t, []string{"id name Scripted 1.0", "uciok", "readyok"}, got)
	assert.Equal(t, []string{"uci", "isready"}, engine.commands())
}

func TestBridgeClosesWhenEngineExits(t *testing.T) {
	engine := newScriptedEngine()
	bridge := NewBridge(func(ctx context.Context) (uci.Transport, error) {
		return engine, nil
	}, nil, logging.NewNopLogger(), nil)
	_, ts := newTestServer(t, bridge)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/engine"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, engine.Close())

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestBridgeReportsSpawnFailure(t *testing.T) {
	bridge := NewBridge(func(ctx context.Context) (uci.Transport, error) {
		return nil, errors.New("engine binary not found")
	}, nil, logging.NewNopLogger(), nil)
	_, ts := newTestServer(t, bridge)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/engine"), nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "error: engine binary not found", string(msg))

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseInternalServerErr), "got %v", err)
}

func TestBridgeRateLimited(t *testing.T) {
	var spawned atomic.Int32
	limiter := ratelimit.NewLimiter(&config.RateLimitConfig{
		Enabled:        true,
		RequestsPerMin: 60,
		BurstSize:      10,
		PerScopeLimits: map[string]int{"bridge": 6},
	}, logging.NewNopLogger())
	bridge := NewBridge(func(ctx context.Context) (uci.Transport, error) {
		spawned.Add(1)
		return newScriptedEngine(), nil
	}, limiter, logging.NewNopLogger(), nil)
	_, ts := newTestServer(t, bridge)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/engine"), nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts, "/engine"), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Eventually(t, func() bool { return spawned.Load() == 1 }, time.Second, 10*time.Millisecond)
}

func TestRelayCommands(t *testing.T) {
	var sent []string
	send := func(line string) error {
		sent = append(sent, line)
		return nil
	}
	require.NoError(t, relayCommands(send, "  position fen 8/8/8/8/8/8/8/K6k w - - 0 1 \r\ngo depth 5\n"))
	assert.Equal(t, []string{"position fen 8/8/8/8/8/8/8/K6k w - - 0 1", "go depth 5"}, sent)

	failing := func(string) error { return io.ErrClosedPipe }
	assert.ErrorIs(t, relayCommands(failing, "uci"), io.ErrClosedPipe)
}
