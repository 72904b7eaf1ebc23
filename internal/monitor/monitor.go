// Package monitor implements the Metrics component (C15/§4.15):
// Prometheus counters/gauges for engine throughput, exposed at /metrics.
// Grounded on the teacher's internal/monitor/monitor.go promauto wiring
// and system-metrics collection loop, generalized from platform-request
// counters to download/extraction attempt counters.
package monitor

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Metrics holds every Prometheus collector this process exposes.
type Metrics struct {
	DownloadsAttempted *prometheus.CounterVec
	DownloadsSucceeded prometheus.Counter
	DownloadsFailed    *prometheus.CounterVec

	ExtractionsAttempted prometheus.Counter
	ExtractionsSucceeded prometheus.Counter
	ExtractionsFailed    prometheus.Counter

	ActiveJobs    prometheus.Gauge
	EventBusDrops prometheus.Gauge
	Goroutines    prometheus.Gauge
	MemoryUsage   prometheus.Gauge
}

// NewMetrics registers and returns every collector.
func NewMetrics() *Metrics {
	return &Metrics{
		DownloadsAttempted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "video_downloader_downloads_attempted_total",
				Help: "Total per-video download attempts across all playlists",
			},
			[]string{"playlist_id"},
		),
		DownloadsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "video_downloader_downloads_succeeded_total",
			Help: "Total per-video downloads that completed and verified on disk",
		}),
		DownloadsFailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "video_downloader_downloads_failed_total",
				Help: "Total per-video download failures by error classification",
			},
			[]string{"classification"},
		),

		ExtractionsAttempted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "video_downloader_extractions_attempted_total",
			Help: "Total audio extraction attempts",
		}),
		ExtractionsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "video_downloader_extractions_succeeded_total",
			Help: "Total audio extractions that completed successfully",
		}),
		ExtractionsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "video_downloader_extractions_failed_total",
			Help: "Total audio extraction failures",
		}),

		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "video_downloader_active_jobs",
			Help: "Number of jobs currently running",
		}),
		EventBusDrops: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "video_downloader_eventbus_drops_total",
			Help: "Cumulative events dropped due to subscriber backpressure",
		}),
		Goroutines: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "video_downloader_goroutines",
			Help: "Number of goroutines",
		}),
		MemoryUsage: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "video_downloader_memory_usage_bytes",
			Help: "Memory usage in bytes",
		}),
	}
}

// Monitor runs the periodic system-metrics collection loop and exposes
// recording helpers for the engines and Job Manager.
type Monitor struct {
	metrics  *Metrics
	logger   zerolog.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMonitor() *Monitor {
	return &Monitor{
		metrics:  NewMetrics(),
		logger:   zerolog.New(os.Stdout).With().Timestamp().Logger(),
		stopChan: make(chan struct{}),
	}
}

// Start launches the periodic goroutine/memory sampling loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.collectSystemMetrics()
	m.logger.Info().Msg("monitoring system started")
}

// Stop halts the sampling loop and waits for it to exit.
func (m *Monitor) Stop() {
	close(m.stopChan)
	m.wg.Wait()
	m.logger.Info().Msg("monitoring system stopped")
}

func (m *Monitor) collectSystemMetrics() {
	defer m.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))
			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.metrics.MemoryUsage.Set(float64(memStats.Alloc))
		case <-m.stopChan:
			return
		}
	}
}

// RecordDownloadAttempt increments the per-playlist attempt counter.
func (m *Monitor) RecordDownloadAttempt(playlistID int64) {
	m.metrics.DownloadsAttempted.WithLabelValues(itoa(playlistID)).Inc()
}

// RecordDownloadSuccess increments the success counter.
func (m *Monitor) RecordDownloadSuccess() {
	m.metrics.DownloadsSucceeded.Inc()
}

// RecordDownloadFailure increments the failure counter, labeled by the
// Error Classifier's verdict.
func (m *Monitor) RecordDownloadFailure(classification string) {
	m.metrics.DownloadsFailed.WithLabelValues(classification).Inc()
}

// RecordExtractionAttempt increments the extraction attempt counter.
func (m *Monitor) RecordExtractionAttempt() {
	m.metrics.ExtractionsAttempted.Inc()
}

// RecordExtractionSuccess increments the extraction success counter.
func (m *Monitor) RecordExtractionSuccess() {
	m.metrics.ExtractionsSucceeded.Inc()
}

// RecordExtractionFailure increments the extraction failure counter.
func (m *Monitor) RecordExtractionFailure() {
	m.metrics.ExtractionsFailed.Inc()
}

// SetActiveJobs sets the active-job gauge to the current running count.
func (m *Monitor) SetActiveJobs(n int) {
	m.metrics.ActiveJobs.Set(float64(n))
}

// SetEventBusDrops mirrors the event bus's cumulative drop count (§4.11)
// into the gauge; the bus owns the counter, this just republishes it.
func (m *Monitor) SetEventBusDrops(total int64) {
	m.metrics.EventBusDrops.Set(float64(total))
}

func (m *Monitor) GetMetrics() *Metrics {
	return m.metrics
}

func (m *Monitor) GetLogger() zerolog.Logger {
	return m.logger
}

func (m *Monitor) SetLogger(logger zerolog.Logger) {
	m.logger = logger
}

// HealthCheck reports basic process vitals for GET /health.
func (m *Monitor) HealthCheck() map[string]interface{} {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return map[string]interface{}{
		"goroutines":   runtime.NumGoroutine(),
		"memory_usage": memStats.Alloc,
		"memory_sys":   memStats.Sys,
		"gc_cycles":    memStats.NumGC,
	}
}

func itoa(id int64) string {
	if id == 0 {
		return "0"
	}
	neg := id < 0
	if neg {
		id = -id
	}
	var buf [20]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = byte('0' + id%10)
		id /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
