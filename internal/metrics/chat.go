package metrics

import (
	"strconv"
	"time"

	"webchat/internal/domain"
)

// ChatMetrics groups the series recorded for each chat cycle.
type ChatMetrics struct {
	reg *Registry

	Rejected *Counter
	InFlight *Gauge
	Latency  *Histogram
	Polls    *Histogram
}

func NewChatMetrics(reg *Registry) *ChatMetrics {
	return &ChatMetrics{
		reg:      reg,
		Rejected: reg.Counter("webchat_busy_rejections_total", "Messages rejected while a cycle was running", ""),
		InFlight: reg.Gauge("webchat_in_flight", "Chat cycles currently running", ""),
		Latency: reg.Histogram("webchat_response_seconds", "Time from submit to a detected result in seconds", "",
			[]float64{1, 2, 5, 10, 20, 30, 45, 60}),
		Polls: reg.Histogram("webchat_detect_polls", "Polls taken per completion detection", "",
			[]float64{2, 4, 8, 16, 32, 64, 128}),
	}
}

// Outcome returns the per-kind result counter.
func (m *ChatMetrics) Outcome(kind domain.ResultKind) *Counter {
	return m.reg.Counter("webchat_results_total", "Chat results by outcome", Label("kind", string(kind)))
}

// Errors returns the counter for cycles that failed before detection.
func (m *ChatMetrics) Errors(stage string) *Counter {
	return m.reg.Counter("webchat_errors_total", "Chat cycles that failed outside detection", Label("stage", stage))
}

// Observe records a finished detection.
func (m *ChatMetrics) Observe(res domain.Result) {
	m.Outcome(res.Kind).Inc()
	m.Latency.Observe(res.Elapsed.Seconds())
	m.Polls.Observe(float64(res.Polls))
}

// RequestCounter counts relay HTTP requests by route and status.
func (r *Registry) RequestCounter(route string, status int) *Counter {
	return r.Counter("webchat_relay_requests_total", "Relay HTTP requests by route and status",
		Label("route", route)+","+Label("code", strconv.Itoa(status)))
}

// RequestLatency tracks relay request latency per route.
func (r *Registry) RequestLatency(route string) *Histogram {
	return r.Histogram("webchat_relay_request_seconds", "Relay HTTP request latency in seconds", Label("route", route),
		[]float64{0.01, 0.1, 1, 5, 15, 30, 60})
}

// Since is a helper for observing durations.
func Since(h *Histogram, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}
