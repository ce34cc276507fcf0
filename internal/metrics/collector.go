// Package metrics collects and exposes real-time inference statistics
// for the control plane: per-chunk token-rate figures (TPS/TTFT/TPOT, via
// InstrumentStream) alongside the domain-specific counters a dynamically
// swapped, dual-destination server cares about — model load/unload
// transitions (internal/engine's Started/Stopped events) and the
// local-vs-remote split of dispatched requests (internal/router's
// resolved destination) — neither of which the single-process Ollama
// sidecar this package was grounded on ever had a reason to track.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot is a point-in-time view of server metrics — safe to marshal to JSON.
type Snapshot struct {
	TotalRequests   int64   `json:"total_requests"`
	ActiveRequests  int64   `json:"active_requests"`
	TokensGenerated int64   `json:"tokens_generated"`
	TokensPerSecond float64 `json:"tokens_per_second"` // rolling 10-second window
	AvgTTFT         float64 `json:"avg_ttft_ms"`       // avg time-to-first-token (ms)
	AvgTPOT         float64 `json:"avg_tpot_ms"`       // avg time-per-output-token (ms)
	UptimeSeconds   float64 `json:"uptime_seconds"`

	LoadedAlias    string `json:"loaded_alias"`          // alias of the most recent ChatCompletionDispatched event
	ModelLoads     int64  `json:"model_loads_total"`     // engine Started events (Load or DropAndLoad's respawn half)
	ModelUnloads   int64  `json:"model_unloads_total"`   // engine Stopped events (explicit stop or DropAndLoad's teardown half)
	LocalRequests  int64  `json:"local_requests_total"`  // router resolutions to a local alias
	RemoteRequests int64  `json:"remote_requests_total"` // router resolutions to a remote API alias
}

// Collector is a thread-safe metrics store.
type Collector struct {
	startTime time.Time

	totalRequests  atomic.Int64
	activeRequests atomic.Int64
	tokensTotal    atomic.Int64

	modelLoads     atomic.Int64
	modelUnloads   atomic.Int64
	localRequests  atomic.Int64
	remoteRequests atomic.Int64

	aliasMu     sync.RWMutex
	loadedAlias string

	mu          sync.Mutex
	tokenEvents []tokenEvent // ring buffer for rolling TPS
	ttftSamples []float64
	tpotSamples []float64
}

type tokenEvent struct {
	at    time.Time
	count int64
}

// NewCollector creates and starts a Collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
	}
}

// RecordRequest increments the total request counter.
func (c *Collector) RecordRequest() {
	c.totalRequests.Add(1)
}

// RequestStart marks a request as active and returns a done function
// that should be deferred by the handler.
func (c *Collector) RequestStart() func() {
	c.activeRequests.Add(1)
	return func() {
		c.activeRequests.Add(-1)
	}
}

// RecordModelLoad counts one engine Started event — a cold Load or the
// respawn half of a DropAndLoad (spec §4.1's three-way load strategy).
func (c *Collector) RecordModelLoad() {
	c.modelLoads.Add(1)
}

// RecordModelUnload counts one engine Stopped event — an explicit Stop
// or the teardown half of a DropAndLoad.
func (c *Collector) RecordModelUnload() {
	c.modelUnloads.Add(1)
}

// SetLoadedAlias records the alias of the most recent
// ChatCompletionDispatched event, for the metrics snapshot's
// loaded_alias field.
func (c *Collector) SetLoadedAlias(alias string) {
	c.aliasMu.Lock()
	c.loadedAlias = alias
	c.aliasMu.Unlock()
}

// RecordDispatch is a router.DispatchObserver: it tallies the
// local-vs-remote split of resolved requests (spec §4.3's three-way
// resolution, collapsed here to the two destinations that actually
// forward traffic).
func (c *Collector) RecordDispatch(destination string) {
	switch destination {
	case "local":
		c.localRequests.Add(1)
	case "remote":
		c.remoteRequests.Add(1)
	}
}

// RecordTokens records N tokens generated in the current window.
func (c *Collector) RecordTokens(n int64, ttftMs, tpotMs float64) {
	c.tokensTotal.Add(n)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokenEvents = append(c.tokenEvents, tokenEvent{at: time.Now(), count: n})
	if ttftMs > 0 {
		c.ttftSamples = append(c.ttftSamples, ttftMs)
	}
	if tpotMs > 0 {
		c.tpotSamples = append(c.tpotSamples, tpotMs)
	}

	// Keep last 10 seconds of token events.
	cutoff := time.Now().Add(-10 * time.Second)
	for len(c.tokenEvents) > 0 && c.tokenEvents[0].at.Before(cutoff) {
		c.tokenEvents = c.tokenEvents[1:]
	}
	// Cap samples at 1000 entries.
	if len(c.ttftSamples) > 1000 {
		c.ttftSamples = c.ttftSamples[len(c.ttftSamples)-1000:]
	}
	if len(c.tpotSamples) > 1000 {
		c.tpotSamples = c.tpotSamples[len(c.tpotSamples)-1000:]
	}
}

// Snapshot returns current metrics as an immutable value.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Prune events older than 10 seconds on every read too, so TPS
	// decays to zero once generation stops.
	cutoff := time.Now().Add(-10 * time.Second)
	for len(c.tokenEvents) > 0 && c.tokenEvents[0].at.Before(cutoff) {
		c.tokenEvents = c.tokenEvents[1:]
	}

	// Rolling tokens-per-second over the last 10 seconds.
	var windowTokens int64
	for _, ev := range c.tokenEvents {
		windowTokens += ev.count
	}
	tps := float64(0)
	if len(c.tokenEvents) > 1 {
		window := c.tokenEvents[len(c.tokenEvents)-1].at.Sub(c.tokenEvents[0].at).Seconds()
		if window > 0 {
			tps = float64(windowTokens) / window
		}
	}

	c.aliasMu.RLock()
	alias := c.loadedAlias
	c.aliasMu.RUnlock()

	return Snapshot{
		TotalRequests:   c.totalRequests.Load(),
		ActiveRequests:  c.activeRequests.Load(),
		TokensGenerated: c.tokensTotal.Load(),
		TokensPerSecond: tps,
		AvgTTFT:         average(c.ttftSamples),
		AvgTPOT:         average(c.tpotSamples),
		UptimeSeconds:   time.Since(c.startTime).Seconds(),

		LoadedAlias:    alias,
		ModelLoads:     c.modelLoads.Load(),
		ModelUnloads:   c.modelUnloads.Load(),
		LocalRequests:  c.localRequests.Load(),
		RemoteRequests: c.remoteRequests.Load(),
	}
}

func average(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
