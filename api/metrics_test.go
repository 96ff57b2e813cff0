package api

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectAlerts() (*metricsCollector, func() []AlertEvent) {
	var mu sync.Mutex
	var alerts []AlertEvent
	c := newMetricsCollector(func(e AlertEvent) {
		mu.Lock()
		alerts = append(alerts, e)
		mu.Unlock()
	})
	return c, func() []AlertEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]AlertEvent(nil), alerts...)
	}
}

func TestLoginFailureSpikeAlert(t *testing.T) {
	collector, alerts := collectAlerts()
	collector.loginFailures.threshold = 5

	for i := 0; i < 4; i++ {
		collector.recordEvent(AuditLoginFailure)
	}
	assert.Empty(t, alerts(), "no alert below threshold")

	collector.recordEvent(AuditLoginFailure)
	require.Len(t, alerts(), 1)
	assert.Equal(t, AlertLoginFailureSpike, alerts()[0].Type)
	assert.Equal(t, 5, alerts()[0].Count)

	collector.recordEvent(AuditLoginFailure)
	assert.Len(t, alerts(), 1, "counter resets after an alert")
}

func TestResetRequestSpikeAlert(t *testing.T) {
	collector, alerts := collectAlerts()
	collector.resets.threshold = 3

	collector.recordEvent(AuditPasswordResetRequested)
	collector.recordEvent(AuditPasswordResetRequested)
	assert.Empty(t, alerts())

	collector.recordEvent(AuditPasswordResetRequested)
	require.Len(t, alerts(), 1)
	assert.Equal(t, AlertResetRequestSpike, alerts()[0].Type)
}

func TestAlertWindowExpires(t *testing.T) {
	collector, alerts := collectAlerts()
	collector.loginFailures.threshold = 3
	now := time.Now()
	collector.now = func() time.Time { return now }

	collector.recordEvent(AuditLoginFailure)
	collector.recordEvent(AuditLoginFailure)
	now = now.Add(2 * defaultLoginFailureWindow)
	collector.recordEvent(AuditLoginFailure)
	assert.Empty(t, alerts(), "old failures fall out of the window")
}

func TestUnrelatedEventsIgnored(t *testing.T) {
	collector, alerts := collectAlerts()
	collector.loginFailures.threshold = 1
	collector.recordEvent(AuditLoginSuccess)
	collector.recordEvent(AuditLogout)
	assert.Empty(t, alerts())

	var nilCollector *metricsCollector
	nilCollector.recordEvent(AuditLoginFailure)
}

func TestTrimWindow(t *testing.T) {
	now := time.Now()
	times := []time.Time{now.Add(-3 * time.Minute), now.Add(-30 * time.Second), now}
	assert.Len(t, trimWindow(times, now, time.Minute), 2)
}
