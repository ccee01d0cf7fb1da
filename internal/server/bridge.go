package server

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmmcquay/chess-analysis-mcp/internal/analysis"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
	"github.com/dmmcquay/chess-analysis-mcp/internal/metrics"
	"github.com/dmmcquay/chess-analysis-mcp/internal/ratelimit"
)

const (
	bridgeReadLimit    = 64 << 10
	bridgeWriteTimeout = 10 * time.Second
)

// Bridge relays a websocket client to its own engine process. Every text
// message from the client is written to the engine as commands, one per
// line, and every engine line goes back as one text message.
type Bridge struct {
	spawn    analysis.Dialer
	limiter  *ratelimit.Limiter
	logger   logging.ContextLogger
	metrics  *metrics.PrometheusCollector
	upgrader websocket.Upgrader
}

// NewBridge creates a bridge that starts an engine per connection with
// spawn. Connections are charged to the "bridge" scope of limiter, keyed by
// remote host; limiter may be nil.
func NewBridge(spawn analysis.Dialer, limiter *ratelimit.Limiter, logger logging.ContextLogger, m *metrics.PrometheusCollector) *Bridge {
	return &Bridge{
		spawn:   spawn,
		limiter: limiter,
		logger:  logger,
		metrics: m,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := b.limiter.Allow(remoteHost(r), "bridge"); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ratelimit.ErrLimited) {
			status = http.StatusTooManyRequests
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		b.logger.WithContext(r.Context()).Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	logger := b.logger.WithContext(r.Context()).WithField("remote", r.RemoteAddr)
	logger.Info("Bridge client connected")
	b.metrics.AddBridgeConnections(1)
	defer b.metrics.AddBridgeConnections(-1)

	engine, err := b.spawn(r.Context())
	if err != nil {
		logger.Error("Failed to start engine", "error", err)
		_ = conn.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
		_ = conn.WriteMessage(websocket.TextMessage, []byte("error: "+err.Error()))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "engine unavailable"))
		return
	}

	pumped := make(chan struct{})
	go func() {
		defer close(pumped)
		b.pump(engine.Recv, conn, logger)
	}()

	conn.SetReadLimit(bridgeReadLimit)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Bridge read failed", "error", err)
			}
			break
		}
		if err := relayCommands(engine.Send, string(msg)); err != nil {
			logger.Warn("Engine write failed", "error", err)
			break
		}
	}

	if err := engine.Close(); err != nil {
		logger.Debug("Engine close", "error", err)
	}
	<-pumped
	logger.Info("Bridge client disconnected")
}

// pump forwards engine lines until the engine stream ends, then closes the
// websocket so the read loop unblocks.
func (b *Bridge) pump(recv func() (string, error), conn *websocket.Conn, logger logging.ContextLogger) {
	for {
		line, err := recv()
		if err != nil {
			logger.Debug("Engine stream ended", "error", err)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "engine exited"),
				time.Now().Add(time.Second))
			_ = conn.Close()
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(bridgeWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			logger.Debug("Bridge write failed", "error", err)
			return
		}
	}
}

func relayCommands(send func(string) error, msg string) error {
	for _, line := range strings.Split(msg, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := send(line); err != nil {
			return err
		}
	}
	return nil
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
