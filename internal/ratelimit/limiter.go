// Package ratelimit throttles tool calls and bridge connections per client.
package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmmcquay/chess-analysis-mcp/internal/config"
	"github.com/dmmcquay/chess-analysis-mcp/internal/logging"
)

// ErrLimited is wrapped by every rejection.
var ErrLimited = errors.New("rate limit exceeded")

// Clients idle for this long are forgotten.
const clientIdleTTL = 10 * time.Minute

type client struct {
	global   *TokenBucket
	scopes   map[string]*TokenBucket
	lastSeen time.Time
}

// Limiter keeps one bucket per client plus one per client and scope. A nil
// Limiter allows everything.
type Limiter struct {
	logger logging.ContextLogger
	cfg    config.RateLimitConfig
	now    func() time.Time

	mu        sync.Mutex
	clients   map[string]*client
	lastPrune time.Time
}

// NewLimiter returns nil when rate limiting is disabled.
func NewLimiter(cfg *config.RateLimitConfig, logger logging.ContextLogger) *Limiter {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	l := &Limiter{
		logger:  logger,
		cfg:     *cfg,
		now:     time.Now,
		clients: make(map[string]*client),
	}
	l.lastPrune = l.now()
	return l
}

// Allow charges one request by clientID against scope, which is a tool name
// or "bridge".
func (l *Limiter) Allow(clientID, scope string) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastPrune) > clientIdleTTL {
		l.prune(now)
	}

	c := l.clients[clientID]
	if c == nil {
		c = &client{
			global: newBucket(l.cfg.RequestsPerMin, l.cfg.BurstSize, now),
			scopes: make(map[string]*TokenBucket),
		}
		l.clients[clientID] = c
	}
	c.lastSeen = now

	if !c.global.Take(now) {
		l.logger.Warn("Client rate limit exceeded", "client", clientID, "scope", scope)
		return fmt.Errorf("%w for client %s, retry in %s", ErrLimited, clientID, c.global.RetryAfter(now).Round(time.Millisecond))
	}

	limit, ok := l.scopeLimit(scope)
	if !ok {
		return nil
	}
	b := c.scopes[scope]
	if b == nil {
		b = newBucket(limit, scaledBurst(l.cfg.BurstSize, limit, l.cfg.RequestsPerMin), now)
		c.scopes[scope] = b
	}
	if !b.Take(now) {
		c.global.Refund()
		l.logger.Warn("Scope rate limit exceeded", "client", clientID, "scope", scope)
		return fmt.Errorf("%w for %s, retry in %s", ErrLimited, scope, b.RetryAfter(now).Round(time.Millisecond))
	}
	return nil
}

// Clients is the number of clients currently tracked.
func (l *Limiter) Clients() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) scopeLimit(scope string) (int, bool) {
	limit, ok := l.cfg.PerScopeLimits[strings.ToLower(scope)]
	if !ok || limit <= 0 {
		return 0, false
	}
	return limit, true
}

func (l *Limiter) prune(now time.Time) {
	for id, c := range l.clients {
		if now.Sub(c.lastSeen) > clientIdleTTL {
			delete(l.clients, id)
		}
	}
	l.lastPrune = now
}

func newBucket(perMinute, burst int, now time.Time) *TokenBucket {
	return NewTokenBucket(max(burst, 1), float64(perMinute)/60.0, now)
}

// scaledBurst keeps a scope's burst in the same ratio to its rate as the
// client-wide burst.
func scaledBurst(burst, limit, perMinute int) int {
	if perMinute <= 0 {
		return 1
	}
	return max(burst*limit/perMinute, 1)
}
