package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/circuitbreaker"
	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
	"github.com/angeloszaimis/rpc-resilience/internal/executor"
	"github.com/angeloszaimis/rpc-resilience/internal/failover"
	"github.com/angeloszaimis/rpc-resilience/internal/metrics"
)

func setupRouter(
	collector *metrics.Collector,
	manager *failover.Manager,
	registry *circuitbreaker.Registry,
	exec *executor.Executor,
	probePath string,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", collector.Handler())
	mux.HandleFunc("/breakers", breakersHandler(registry))
	mux.HandleFunc("/endpoints", endpointsHandler(manager))
	mux.HandleFunc("/probe", probeHandler(exec, probePath))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// probeHandler sends a manual probe to the active endpoint through the full
// resilience path: failover selection, circuit breaker, retry policy.
func probeHandler(exec *executor.Executor, path string) http.HandlerFunc {
	client := &http.Client{Timeout: 5 * time.Second}

	return func(w http.ResponseWriter, r *http.Request) {
		result, err := exec.Invoke(r.Context(), func(ctx context.Context, ep *endpoint.Endpoint) (any, error) {
			url := fmt.Sprintf("http://%s%s", ep.HostPort(), path)

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return nil, err
			}

			res, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer res.Body.Close()
			_, _ = io.Copy(io.Discard, res.Body)

			if res.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("probe returned status %d", res.StatusCode)
			}
			return ep.ID(), nil
		})

		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{"endpoint": result})
	}
}

func breakersHandler(registry *circuitbreaker.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := registry.Stats()

		out := make(map[string]map[string]any, len(stats))
		for name, s := range stats {
			out[name] = map[string]any{
				"state":     s.State.String(),
				"failures":  s.FailureCount,
				"total":     s.TotalRequests,
				"rejected":  s.RejectedRequests,
				"succeeded": s.SuccessfulRequests,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	}
}

func endpointsHandler(manager *failover.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		type endpointView struct {
			ID        string `json:"id"`
			Address   string `json:"address"`
			Status    string `json:"status"`
			Healthy   bool   `json:"healthy"`
			Failures  int    `json:"consecutive_failures"`
			IsCurrent bool   `json:"is_current"`
		}

		current := manager.Current()
		currentID := ""
		if current != nil {
			currentID = current.ID()
		}

		views := make([]endpointView, 0)
		for _, ep := range manager.Endpoints() {
			views = append(views, endpointView{
				ID:        ep.ID(),
				Address:   ep.HostPort(),
				Status:    ep.Status().String(),
				Healthy:   ep.IsHealthy(),
				Failures:  ep.ConsecutiveFailures(),
				IsCurrent: ep.ID() == currentID,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(views)
	}
}
