// Package health implements liveness and readiness probes. Probes run on
// background tickers and flip state on consecutive-result thresholds so a
// single blip never flaps the service in and out of rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc reports nil when the checked component is healthy.
type CheckFunc func(ctx context.Context) error

// probe is one registered check plus its runtime state. tick() runs on a
// single goroutine; healthy and lastErr are the only fields HTTP handlers
// touch, via atomics.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	// failAfter consecutive failures mark the probe down; okAfter
	// consecutive passes bring it back.
	failAfter int
	okAfter   int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	fails int
	oks   int
}

func (p *probe) tick(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err != nil {
		p.oks = 0
		p.fails++
		if p.fails >= p.failAfter {
			p.healthy.Store(false)
		}
		return
	}
	p.fails = 0
	p.oks++
	if p.oks >= p.okAfter {
		p.healthy.Store(true)
	}
}

func (p *probe) failure() (string, bool) {
	if p.healthy.Load() {
		return "", false
	}
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error(), true
	}
	return "check is unhealthy", true
}

// Health tracks the probes for one service. The zero value starts not ready;
// call SetReady(true) after initialization and SetReady(false) on shutdown.
type Health struct {
	up atomic.Bool

	mu     sync.RWMutex
	live   []*probe
	ready  []*probe
	cancel context.CancelFunc
}

// New creates an empty Health in the not-ready state.
func New() *Health {
	return &Health{}
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{
		name:      name,
		timeout:   timeout,
		check:     check,
		failAfter: 3,
		okAfter:   1,
	}
	p.healthy.Store(true)
	return p
}

// AddLiveness registers a liveness probe: is the process itself functional.
func (h *Health) AddLiveness(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.live = append(h.live, newProbe(name, timeout, check))
}

// AddReadiness registers a readiness probe: may this instance take traffic.
func (h *Health) AddReadiness(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = append(h.ready, newProbe(name, timeout, check))
}

// Start launches one goroutine per probe, each ticking at interval until the
// context is cancelled or Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.live)+len(h.ready))
	probes = append(probes, h.live...)
	probes = append(probes, h.ready...)
	h.mu.Unlock()

	for _, p := range probes {
		go func(p *probe) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			p.tick(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					p.tick(ctx)
				}
			}
		}(p)
	}
}

// Stop cancels the probe goroutines. Safe to call repeatedly.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate.
func (h *Health) SetReady(ready bool) {
	h.up.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe passes.
func (h *Health) IsReady() bool {
	if !h.up.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.ready
	h.mu.RUnlock()

	for _, p := range probes {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves the liveness probe route.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.live))
	copy(probes, h.live)
	h.mu.RUnlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves the readiness probe route.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	up := h.up.Load()

	h.mu.RLock()
	probes := make([]*probe, len(h.ready))
	copy(probes, h.ready)
	h.mu.RUnlock()

	bad := failures(probes)
	if !up {
		bad["_readiness"] = "service is not ready"
	}
	writeStatus(w, bad)
}

func failures(probes []*probe) map[string]string {
	bad := make(map[string]string)
	for _, p := range probes {
		if msg, down := p.failure(); down {
			bad[p.name] = msg
		}
	}
	return bad
}

func writeStatus(w http.ResponseWriter, bad map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(bad) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: bad}
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
