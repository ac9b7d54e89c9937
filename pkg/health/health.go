// Package health exposes the /livez and /readyz probes of the market API.
//
// Probes are evaluated in the background at a fixed interval, so a slow
// dependency never slows the probe endpoints; handlers only report the most
// recent verdict. A probe flips to unhealthy after failing several times in
// a row and recovers on the first success, which keeps one dropped database
// ping from pulling the service out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

const (
	failuresToTrip = 3
	successesToOK  = 1
)

// probe is one registered check plus its evaluation state. All state is
// guarded by mu; evaluate runs on a single goroutine per probe while the
// HTTP handlers read verdicts from arbitrary goroutines.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	mu       sync.Mutex
	healthy  bool
	lastErr  error
	failures int
	oks      int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	// Start healthy so the service is not reported broken before the first
	// evaluation has had a chance to run.
	return &probe{name: name, timeout: timeout, check: check, healthy: true}
}

// evaluate runs the check once and applies the trip/recover thresholds.
func (p *probe) evaluate(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	err := p.check(checkCtx)
	cancel()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErr = err
	if err != nil {
		p.oks = 0
		p.failures++
		if p.failures >= failuresToTrip {
			p.healthy = false
		}
		return
	}
	p.failures = 0
	p.oks++
	if p.oks >= successesToOK {
		p.healthy = true
	}
}

// verdict returns the current health flag and the error behind it.
func (p *probe) verdict() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.healthy, p.lastErr
}

// loop re-evaluates the probe until ctx is cancelled. The first evaluation
// happens immediately, not one interval in.
func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.evaluate(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.evaluate(ctx)
		}
	}
}

// Health aggregates the liveness and readiness probes of the service.
// Probes are registered during startup, before Start; the ready gate is
// flipped once wiring completes and again when graceful shutdown begins.
type Health struct {
	ready atomic.Bool

	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health with no probes, in the not-ready state.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a probe behind /livez: is the process itself
// functional (goroutine leaks, runtime pressure).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a probe behind /readyz: can the service serve
// traffic right now (database, cache).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches one background goroutine per registered probe, each
// re-evaluating at the given interval.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// Stop cancels the probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate: true once wiring is complete,
// false when graceful shutdown begins so the load balancer drains us.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service should receive traffic: the manual
// gate is open and every readiness probe is currently healthy.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, p := range h.snapshotReadiness() {
		if ok, _ := p.verdict(); !ok {
			return false
		}
	}
	return true
}

func (h *Health) snapshotLiveness() []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*probe, len(h.liveness))
	copy(out, h.liveness)
	return out
}

func (h *Health) snapshotReadiness() []*probe {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*probe, len(h.readiness))
	copy(out, h.readiness)
	return out
}

// statusResponse is the JSON body served by both probe endpoints.
type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while every liveness
// probe passes, 503 listing the failing probes otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeStatus(w, failing(h.snapshotLiveness()))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	fails := failing(h.snapshotReadiness())
	if !h.ready.Load() {
		fails["_readiness"] = "service is not ready"
	}
	writeStatus(w, fails)
}

// failing maps probe name to error text for every unhealthy probe.
func failing(probes []*probe) map[string]string {
	fails := make(map[string]string)
	for _, p := range probes {
		ok, err := p.verdict()
		if ok {
			continue
		}
		if err != nil {
			fails[p.name] = err.Error()
		} else {
			fails[p.name] = "check is unhealthy"
		}
	}
	return fails
}

func writeStatus(w http.ResponseWriter, fails map[string]string) {
	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(fails) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: fails}
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
