// Package governor implements the adaptive delay that paces every upstream call.
//
// The governor widens its delay when the upstream throttles or fails and
// narrows it again after a run of clean responses. A single instance is
// shared by every worker so the delay reflects the aggregate call rate.
package governor

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/okian/harvest/pkg/metrics"
)

// Tuning constants.
const (
	throttleFactor    = 1.5
	serverErrorFactor = 1.2
	successFactor     = 0.9

	successStreakToShrink = 5
	failureStreakToGrow   = 3
)

// StatusClass buckets an upstream outcome.
type StatusClass int

const (
	// Other covers responses that carry no pacing signal (404, 400, ...).
	Other StatusClass = iota
	Success
	Throttled
	ServerError
)

func (c StatusClass) String() string {
	switch c {
	case Success:
		return "success"
	case Throttled:
		return "throttled"
	case ServerError:
		return "server_error"
	default:
		return "other"
	}
}

// Classify maps an HTTP status code to a StatusClass.
func Classify(status int) StatusClass {
	switch {
	case status == 429:
		return Throttled
	case status >= 500:
		return ServerError
	case status >= 200 && status < 300:
		return Success
	default:
		return Other
	}
}

// Stats is a snapshot of cumulative governor counters.
type Stats struct {
	TotalRequests  int64         `json:"total_requests"`
	Throttled      int64         `json:"throttled"`
	ServerErrors   int64         `json:"server_errors"`
	Waits          int64         `json:"waits"`
	TotalWait      time.Duration `json:"total_wait"`
	TotalLatency   time.Duration `json:"total_latency"`
	CurrentDelay   time.Duration `json:"current_delay"`
	ThrottlePct    float64       `json:"throttle_percentage"`
	AverageWait    time.Duration `json:"average_wait"`
	AverageLatency time.Duration `json:"average_latency"`
}

// Governor is an adaptive, mutex-guarded call pacer.
type Governor struct {
	mu sync.Mutex

	clock    quartz.Clock
	minDelay time.Duration
	maxDelay time.Duration
	delay    time.Duration

	// next is the earliest instant the next call may start. Wait pushes it
	// forward when reserving a slot; Record moves it to response time.
	next time.Time

	successStreak int
	failureStreak int

	totalRequests int64
	throttled     int64
	serverErrors  int64
	waits         int64
	totalWait     time.Duration
	totalLatency  time.Duration
}

// New builds a Governor. The initial delay is clamped into [min, max].
func New(opts ...Option) *Governor {
	g := &Governor{
		clock:    quartz.NewReal(),
		minDelay: 100 * time.Millisecond,
		maxDelay: 10 * time.Second,
		delay:    500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxDelay < g.minDelay {
		g.maxDelay = g.minDelay
	}
	g.delay = g.clamp(g.delay)
	metrics.UpdateGovernorDelay(g.delay)
	return g
}

// Wait blocks until the current delay has elapsed since the previous call and
// returns how long it slept. Concurrent callers are spaced one delay apart.
func (g *Governor) Wait(ctx context.Context) (time.Duration, error) {
	g.mu.Lock()
	now := g.clock.Now("governor", "now")
	ready := now
	if !g.next.IsZero() {
		if at := g.next.Add(g.delay); at.After(now) {
			ready = at
		}
	}
	g.next = ready
	shortfall := ready.Sub(now)
	g.mu.Unlock()

	if shortfall > 0 {
		t := g.clock.NewTimer(shortfall, "governor", "wait")
		select {
		case <-ctx.Done():
			t.Stop()
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	g.mu.Lock()
	g.waits++
	g.totalWait += shortfall
	g.mu.Unlock()
	metrics.RecordGovernorWait(shortfall)
	return shortfall, nil
}

// Record folds one outcome into the delay.
func (g *Governor) Record(class StatusClass, latency time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if now := g.clock.Now("governor", "now"); now.After(g.next) {
		g.next = now
	}
	g.totalRequests++
	g.totalLatency += latency

	switch class {
	case Throttled:
		g.throttled++
		g.successStreak = 0
		g.failureStreak++
		g.delay = g.clamp(scale(g.delay, throttleFactor))
	case Success:
		g.failureStreak = 0
		g.successStreak++
		if g.successStreak >= successStreakToShrink {
			g.delay = g.clamp(scale(g.delay, successFactor))
			g.successStreak = 0
		}
	case ServerError:
		g.serverErrors++
		g.successStreak = 0
		g.failureStreak++
		if g.failureStreak >= failureStreakToGrow {
			g.delay = g.clamp(scale(g.delay, serverErrorFactor))
		}
	}

	metrics.RecordGovernorOutcome(class.String())
	metrics.UpdateGovernorDelay(g.delay)
}

// Defer holds the next call back until at least d from now, capped at the
// max delay. Used for upstream Retry-After hints.
func (g *Governor) Defer(d time.Duration) {
	if d <= 0 {
		return
	}
	if d > g.maxDelay {
		d = g.maxDelay
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	at := g.clock.Now("governor", "now").Add(d - g.delay)
	if at.After(g.next) {
		g.next = at
	}
}

// Delay returns the current delay.
func (g *Governor) Delay() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.delay
}

// MaxDelay returns the configured ceiling.
func (g *Governor) MaxDelay() time.Duration {
	return g.maxDelay
}

// Stats returns cumulative counters.
func (g *Governor) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	s := Stats{
		TotalRequests: g.totalRequests,
		Throttled:     g.throttled,
		ServerErrors:  g.serverErrors,
		Waits:         g.waits,
		TotalWait:     g.totalWait,
		TotalLatency:  g.totalLatency,
		CurrentDelay:  g.delay,
	}
	s.derive()
	return s
}

// Since returns the counters accumulated after prev was taken. CurrentDelay
// stays the live value.
func (s Stats) Since(prev Stats) Stats {
	d := Stats{
		TotalRequests: s.TotalRequests - prev.TotalRequests,
		Throttled:     s.Throttled - prev.Throttled,
		ServerErrors:  s.ServerErrors - prev.ServerErrors,
		Waits:         s.Waits - prev.Waits,
		TotalWait:     s.TotalWait - prev.TotalWait,
		TotalLatency:  s.TotalLatency - prev.TotalLatency,
		CurrentDelay:  s.CurrentDelay,
	}
	d.derive()
	return d
}

func (s *Stats) derive() {
	s.ThrottlePct, s.AverageLatency, s.AverageWait = 0, 0, 0
	if s.TotalRequests > 0 {
		s.ThrottlePct = float64(s.Throttled) / float64(s.TotalRequests) * 100
		s.AverageLatency = s.TotalLatency / time.Duration(s.TotalRequests)
	}
	if s.Waits > 0 {
		s.AverageWait = s.TotalWait / time.Duration(s.Waits)
	}
}

func (g *Governor) clamp(d time.Duration) time.Duration {
	if d < g.minDelay {
		return g.minDelay
	}
	if d > g.maxDelay {
		return g.maxDelay
	}
	return d
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(float64(d) * f)
}
