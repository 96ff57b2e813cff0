package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertResetRequestSpike AlertType = "reset_request_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	defaultResetWindow           = 5 * time.Minute
	defaultResetThreshold        = 100
)

// slidingCounter counts events inside a trailing time window.
type slidingCounter struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the in-window count when it
// reaches the threshold. The counter resets after firing so one spike
// raises one alert.
func (c *slidingCounter) add(now time.Time) (int, bool) {
	c.times = append(c.times, now)
	c.times = trimWindow(c.times, now, c.window)
	n := len(c.times)
	if n >= c.threshold {
		c.times = c.times[:0]
		return n, true
	}
	return n, false
}

// metricsCollector watches audit events for volume anomalies. It only
// raises alerts; it never blocks requests.
type metricsCollector struct {
	mu            sync.Mutex
	loginFailures slidingCounter
	resets        slidingCounter
	alertFn       AlertFunc
	now           func() time.Time
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures: slidingCounter{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		resets:        slidingCounter{window: defaultResetWindow, threshold: defaultResetThreshold},
		alertFn:       alertFn,
		now:           time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	var (
		counter *slidingCounter
		alert   AlertType
		msg     string
	)
	switch event {
	case AuditLoginFailure:
		counter, alert, msg = &m.loginFailures, AlertLoginFailureSpike, "login failure rate exceeds threshold"
	case AuditPasswordResetRequested:
		counter, alert, msg = &m.resets, AlertResetRequestSpike, "password reset request rate exceeds threshold"
	default:
		return
	}

	m.mu.Lock()
	now := m.now()
	n, fire := counter.add(now)
	threshold := counter.threshold
	m.mu.Unlock()

	if fire {
		m.alertFn(AlertEvent{
			Type:      alert,
			Message:   msg,
			Count:     n,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
