package monitor

import "testing"

// A single Monitor is exercised here since promauto registers collectors
// against the default registry; constructing a second one in the same
// binary would panic on duplicate registration.
func TestMonitorRecordingAndHealthCheck(t *testing.T) {
	m := NewMonitor()

	m.RecordDownloadAttempt(1)
	m.RecordDownloadAttempt(1)
	m.RecordDownloadSuccess()
	m.RecordDownloadFailure("transient")
	m.RecordExtractionAttempt()
	m.RecordExtractionSuccess()
	m.RecordExtractionFailure()
	m.SetActiveJobs(3)
	m.SetEventBusDrops(7)

	health := m.HealthCheck()
	if _, ok := health["goroutines"]; !ok {
		t.Fatal("expected goroutines key in health check")
	}
	if _, ok := health["memory_usage"]; !ok {
		t.Fatal("expected memory_usage key in health check")
	}

	if m.GetMetrics() == nil {
		t.Fatal("expected non-nil metrics")
	}
}
