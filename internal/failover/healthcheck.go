package failover

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/angeloszaimis/rpc-resilience/internal/endpoint"
)

// CheckFunc probes one endpoint. Returning false or an error counts as a
// failed check.
type CheckFunc func(ctx context.Context, ep *endpoint.Endpoint) (bool, error)

// StubCheck reports every endpoint healthy. It is a placeholder so the
// manager works without a probe wired in; deployments should supply
// HTTPCheck or their own transport-level probe.
func StubCheck() CheckFunc {
	return func(ctx context.Context, ep *endpoint.Endpoint) (bool, error) {
		return true, nil
	}
}

// HTTPCheck probes endpoints with an HTTP GET against the given path,
// treating a 200 response as healthy. The probe's lifetime is bounded only
// by the per-check context, so the configured timeout applies as-is.
func HTTPCheck(path string) CheckFunc {
	return func(ctx context.Context, ep *endpoint.Endpoint) (bool, error) {
		url := fmt.Sprintf("http://%s%s", ep.HostPort(), path)

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false, err
		}

		res, err := http.DefaultClient.Do(req)
		if err != nil {
			return false, err
		}
		defer res.Body.Close()

		return res.StatusCode == http.StatusOK, nil
	}
}

// Start launches the periodic health check loop. The loop stops when ctx is
// cancelled or Close is called.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.opts.HealthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				m.logger.Info("health check loop stopped")
				return
			case <-m.done:
				m.logger.Info("health check loop stopped")
				return
			case <-ticker.C:
				m.PerformHealthCheck(ctx)
			}
		}
	}()
}

// Close stops the health check loop.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
}

// PerformHealthCheck probes every endpoint concurrently and joins before
// returning. Check outcomes update health records and may flip endpoint
// status in either direction; Maintenance endpoints are left alone.
func (m *Manager) PerformHealthCheck(ctx context.Context) {
	endpoints := m.Endpoints()

	var wg sync.WaitGroup
	for _, ep := range endpoints {
		wg.Add(1)
		go func(ep *endpoint.Endpoint) {
			defer wg.Done()
			m.checkEndpoint(ctx, ep)
		}(ep)
	}
	wg.Wait()
}

func (m *Manager) checkEndpoint(ctx context.Context, ep *endpoint.Endpoint) {
	checkCtx, cancel := context.WithTimeout(ctx, m.opts.HealthCheckTimeout)
	defer cancel()

	ok, err := m.check(checkCtx, ep)
	healthy := ok && err == nil
	ep.RecordHealthCheck(healthy, time.Now())

	if err != nil {
		m.logger.Debug("health check error",
			slog.String("endpoint", ep.ID()),
			slog.String("error", err.Error()))
	}

	switch {
	case !healthy:
		if ep.ConsecutiveFailures() >= m.opts.MaxConsecutiveFailures &&
			ep.Status() == endpoint.StatusAvailable {
			if ep.SetStatus(endpoint.StatusUnavailable) {
				m.publishStatus(ep, endpoint.StatusAvailable, endpoint.StatusUnavailable,
					"health check failures exceeded limit")
			}
		}

	case ep.Status() == endpoint.StatusUnavailable:
		// A passing probe restores a failed endpoint, but never pulls
		// one out of maintenance
		if ep.SetStatus(endpoint.StatusAvailable) {
			m.publishStatus(ep, endpoint.StatusUnavailable, endpoint.StatusAvailable,
				"health check passed")
		}
	}
}
