package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"mediarelay/internal/httpkit"
)

const probeTimeout = 5 * time.Second

// probe checks one dependency and returns details to report alongside its status.
type probe func(ctx context.Context) (map[string]any, error)

// Health reports liveness. With ?deep=true it also probes each configured
// dependency and reports "degraded" when any probe fails. The status code
// stays 200 either way.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"service": "mediarelay",
		"version": h.version,
	}

	if r.URL.Query().Get("deep") == "true" {
		checks, failed := runProbes(r.Context(), h.probes())
		body["checks"] = checks
		if len(failed) > 0 {
			body["status"] = "degraded"
			h.log.FromContext(r.Context()).Warn("health degraded", "failed", failed)
		}
	}

	httpkit.WriteJSON(w, http.StatusOK, body)
}

func (h *Handler) probes() map[string]probe {
	p := map[string]probe{}
	if h.pool != nil {
		p["postgres"] = func(ctx context.Context) (map[string]any, error) {
			if err := h.pool.Ping(ctx); err != nil {
				return nil, err
			}
			st := h.pool.Stat()
			return map[string]any{"total_conns": st.TotalConns(), "idle_conns": st.IdleConns()}, nil
		}
	}
	if h.rdb != nil {
		p["redis"] = func(ctx context.Context) (map[string]any, error) {
			return nil, h.rdb.Ping(ctx).Err()
		}
	}
	if h.scratch != nil {
		// A file count that keeps growing between sweeps points at a leak.
		p["scratch"] = func(context.Context) (map[string]any, error) {
			names, err := h.scratch.List()
			if err != nil {
				return nil, err
			}
			return map[string]any{"dir": h.scratch.Root(), "files": len(names)}, nil
		}
	}
	if h.workers != nil {
		p["workers"] = func(ctx context.Context) (map[string]any, error) {
			s, err := h.workers.Stats(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]any{"workers": s.Workers, "active": s.Active, "queued": s.Queued}, nil
		}
	}
	return p
}

// runProbes runs every probe concurrently under probeTimeout and returns the
// per-probe results and the names of those that failed.
func runProbes(ctx context.Context, probes map[string]probe) (map[string]map[string]any, []string) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]map[string]any, len(probes))
		failed  []string
	)
	for name, fn := range probes {
		name, fn := name, fn
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			detail, err := fn(ctx)

			res := map[string]any{"status": "ok"}
			for k, v := range detail {
				res[k] = v
			}
			if err != nil {
				res["status"] = "error"
				res["error"] = err.Error()
			}
			res["latency_ms"] = time.Since(start).Milliseconds()

			mu.Lock()
			defer mu.Unlock()
			results[name] = res
			if err != nil {
				failed = append(failed, name)
			}
		}()
	}
	wg.Wait()
	return results, failed
}
