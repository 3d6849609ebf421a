package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	// AlertValidationFailureSpike fires when many lookups of unknown,
	// inactive or expired identifiers arrive in a short window, which
	// usually means someone is enumerating identifiers.
	AlertValidationFailureSpike AlertType = "validation_failure_spike"
	AlertBulkDownload           AlertType = "bulk_download"
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

// slidingWindow counts events within a trailing window.
type slidingWindow struct {
	events    []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports whether the threshold was
// reached. Reaching it resets the window so one spike alerts once.
func (s *slidingWindow) add(now time.Time) (int, bool) {
	s.events = append(s.events, now)
	s.events = trimWindow(s.events, now, s.window)
	count := len(s.events)
	if count < s.threshold {
		return count, false
	}
	s.events = s.events[:0]
	return count, true
}

// metricsCollector tracks sliding window counters for anomaly detection.
type metricsCollector struct {
	mu sync.Mutex

	validationFailures slidingWindow
	downloads          slidingWindow

	alertFn AlertFunc
	now     func() time.Time
}

const (
	defaultValidationFailureWindow    = 1 * time.Minute
	defaultValidationFailureThreshold = 50
	defaultDownloadWindow             = 5 * time.Minute
	defaultDownloadThreshold          = 100
)

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		validationFailures: slidingWindow{
			window:    defaultValidationFailureWindow,
			threshold: defaultValidationFailureThreshold,
		},
		downloads: slidingWindow{
			window:    defaultDownloadWindow,
			threshold: defaultDownloadThreshold,
		},
		alertFn: alertFn,
		now:     time.Now,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	switch event {
	case AuditCertValidationFailed:
		m.record(&m.validationFailures, AlertValidationFailureSpike, "certificate validation failure rate exceeds threshold")
	case AuditCertDownloaded:
		m.record(&m.downloads, AlertBulkDownload, "certificate download rate exceeds threshold")
	}
}

func (m *metricsCollector) record(w *slidingWindow, typ AlertType, msg string) {
	m.mu.Lock()
	now := m.now()
	count, fired := w.add(now)
	threshold := w.threshold
	m.mu.Unlock()

	if fired {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     count,
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
