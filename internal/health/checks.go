package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmmcquay/chess-analysis-mcp/internal/analysis"
	"github.com/dmmcquay/chess-analysis-mcp/internal/store"
	"github.com/dmmcquay/chess-analysis-mcp/internal/uci"
)

// Pinger is anything that can answer a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EngineCheck probes the analysis engine. A busy engine is healthy. An
// engine that does not answer only degrades the service, since analysis
// falls back to material scoring.
func EngineCheck(engine Pinger) Check {
	return func(ctx context.Context) error {
		err := engine.Ping(ctx)
		if err == nil || errors.Is(err, uci.ErrBusy) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrDegraded, err)
	}
}

// EngineDetails reports the analyzer status as component metadata.
func EngineDetails(a *analysis.Analyzer) func() map[string]interface{} {
	return func() map[string]interface{} {
		st := a.Status()
		return map[string]interface{}{
			"phase":  st.Phase,
			"engine": st.Engine,
			"limit":  st.Limit,
			"cached": st.Cached,
		}
	}
}

// StoreCheck probes the result store. Losing the store is fatal for
// readiness.
func StoreCheck(st Pinger) Check {
	return func(ctx context.Context) error {
		if err := st.Ping(ctx); err != nil {
			return fmt.Errorf("result store unreachable: %w", err)
		}
		return nil
	}
}

// StoreDetails reports how many results the store holds.
func StoreDetails(st *store.Store) func() map[string]interface{} {
	return func() map[string]interface{} {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := st.Count(ctx)
		if err != nil {
			return map[string]interface{}{"results": "unknown"}
		}
		return map[string]interface{}{"results": n}
	}
}
