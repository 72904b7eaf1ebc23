// Package jobs implements the Job Manager (C9): job lifecycle, admission,
// cancellation and progress aggregation across the Download and Extraction
// Engines. Grounded on the teacher's activeJobs map[string]*ResumableJob +
// jobsMutex sync.RWMutex idiom in internal/resume/downloader.go, generalized
// to two concurrently-dispatchable engine phases per job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"video-downloader/internal/engine"
	"video-downloader/internal/logwriter"
	"video-downloader/internal/monitor"
	"video-downloader/internal/playliststore"
	"video-downloader/internal/storage"
	"video-downloader/pkg/models"
)

// extractionLeadIn is how long a "both" job waits before starting
// extraction, so at least one downloaded file is likely on disk (§4.9).
const extractionLeadIn = 5 * time.Second

var (
	// ErrConflict is returned by Create when admission is refused because
	// a conflicting job is already active for the playlist.
	ErrConflict = errors.New("job admission conflict")
	// ErrPlaylistNotFound is returned by Create for an unknown playlist_id.
	ErrPlaylistNotFound = errors.New("playlist not found")
	// ErrInvalidKind is returned by Create for a kind outside {download, extract, both}.
	ErrInvalidKind = errors.New("invalid job kind")
	// ErrJobNotFound is returned by Get/Cancel/Logs for an unknown job_id.
	ErrJobNotFound = errors.New("job not found")
)

// PlaylistLookup is the slice of the Playlist Store Create needs to
// validate admission requests.
type PlaylistLookup interface {
	Get(id int64) (*models.Playlist, error)
}

// Options configures every job a Manager runs.
type Options struct {
	BasePath       string
	BatchSizeLimit int
	ExtractWorkers int
	DownloadOpts   models.DownloadOptions
	ExtractMode    models.ExtractMode
}

// playlistState tracks the per-playlist admission flags (§5's
// serialization token), guarded by Manager.mu.
type playlistState struct {
	downloading   bool
	extractActive int
}

// Manager creates, runs, cancels and queries Jobs (C9). It owns all Job
// mutation; the engines only ever call back through the narrow reporter
// interfaces they were handed.
type Manager struct {
	mu sync.Mutex

	store      PlaylistLookup
	downloader *engine.Downloader
	extractor  *engine.Extractor
	bus        models.EventBus
	db         *storage.SQLite
	opts       Options
	logger     zerolog.Logger
	monitor    *monitor.Monitor

	jobs      map[string]*runningJob
	playlists map[int64]*playlistState
	nextID    int64
}

// NewManager wires a Job Manager. mon may be nil, in which case metrics
// recording is skipped (used by tests that don't want to touch the
// process-wide Prometheus registry).
func NewManager(store PlaylistLookup, downloader *engine.Downloader, extractor *engine.Extractor, bus models.EventBus, db *storage.SQLite, opts Options, logger zerolog.Logger, mon *monitor.Monitor) *Manager {
	return &Manager{
		store:      store,
		downloader: downloader,
		extractor:  extractor,
		bus:        bus,
		db:         db,
		opts:       opts,
		logger:     logger,
		monitor:    mon,
		jobs:       make(map[string]*runningJob),
		playlists:  make(map[int64]*playlistState),
	}
}

func (m *Manager) recordActiveJobs() {
	if m.monitor == nil {
		return
	}
	active := 0
	m.mu.Lock()
	for _, rj := range m.jobs {
		s := rj.snapshot()
		if s.Status == models.StatusPending || s.Status == models.StatusRunning {
			active++
		}
	}
	m.mu.Unlock()
	m.monitor.SetActiveJobs(active)
}

// runningJob is the in-memory, mutex-guarded Job state a Manager owns for
// the lifetime of the process (§9's "Job Manager... single process").
type runningJob struct {
	mu     sync.Mutex
	job    *models.Job
	cancel context.CancelFunc
	logw   *logwriter.Writer
}

func (rj *runningJob) snapshot() *models.Job {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	cp := *rj.job
	return &cp
}

func (rj *runningJob) start() {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	now := time.Now().UTC()
	rj.job.Status = models.StatusRunning
	rj.job.StartedAt = &now
}

func (rj *runningJob) applyDownloadProgress(total, completed, failed int, batch models.BatchInfo) {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	rj.job.Download.Status = models.StatusRunning
	rj.job.Download.Total = total
	rj.job.Download.Completed = completed
	rj.job.Download.Failed = failed
	rj.job.Download.BatchInfo = &batch
}

func (rj *runningJob) applyExtractProgress(total, completed, failed int) {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	rj.job.Extract.Status = models.StatusRunning
	rj.job.Extract.Total = total
	rj.job.Extract.Completed = completed
	rj.job.Extract.Failed = failed
}

func (rj *runningJob) finishPhase(download bool, status models.JobStatus) {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	if download {
		rj.job.Download.Status = status
	} else {
		rj.job.Extract.Status = status
	}
}

func (rj *runningJob) setTerminal(status models.JobStatus, err error) {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	now := time.Now().UTC()
	rj.job.Status = status
	rj.job.CompletedAt = &now
	if err != nil {
		rj.job.Error = err.Error()
	}
}

// jobReporter adapts one running Job to the engines' reporter contracts
// (engine.DownloadReporter, engine.ExtractReporter). A single type
// satisfies both since their method sets only overlap on Log.
type jobReporter struct {
	mgr        *Manager
	rj         *runningJob
	jobID      string
	playlistID int64

	// prevDL*/prevEx* track the last reported totals so progress deltas
	// become per-item attempt/success counts for the Metrics component.
	// prevDL* is only touched by the goroutine driving the download phase;
	// prevEx* is updated by concurrent extraction workers and is guarded
	// by exMu.
	prevDLCompleted, prevDLFailed int
	exMu                          sync.Mutex
	prevExCompleted, prevExFailed int
}

func (r *jobReporter) ReportDownloadProgress(total, completed, failed int, batch models.BatchInfo) {
	r.rj.applyDownloadProgress(total, completed, failed, batch)

	if r.mgr.monitor != nil {
		deltaCompleted := completed - r.prevDLCompleted
		deltaFailed := failed - r.prevDLFailed
		for i := 0; i < deltaCompleted; i++ {
			r.mgr.monitor.RecordDownloadAttempt(r.playlistID)
		}
		for i := 0; i < deltaCompleted-deltaFailed; i++ {
			r.mgr.monitor.RecordDownloadSuccess()
		}
		r.prevDLCompleted, r.prevDLFailed = completed, failed
	}

	r.publishProgress()
}

func (r *jobReporter) ReportExtractProgress(total, completed, failed int) {
	r.rj.applyExtractProgress(total, completed, failed)

	if r.mgr.monitor != nil {
		r.exMu.Lock()
		deltaCompleted := completed - r.prevExCompleted
		deltaFailed := failed - r.prevExFailed
		for i := 0; i < deltaCompleted; i++ {
			r.mgr.monitor.RecordExtractionAttempt()
		}
		for i := 0; i < deltaCompleted-deltaFailed; i++ {
			r.mgr.monitor.RecordExtractionSuccess()
		}
		for i := 0; i < deltaFailed; i++ {
			r.mgr.monitor.RecordExtractionFailure()
		}
		r.prevExCompleted, r.prevExFailed = completed, failed
		r.exMu.Unlock()
	}

	r.publishProgress()
}

func (r *jobReporter) Log(message string) {
	if err := r.rj.logw.Append(message); err != nil {
		r.mgr.logger.Warn().Err(err).Str("job_id", r.jobID).Msg("failed to write job log")
	}
	r.mgr.bus.Publish(models.Event{Type: models.EventLogAppended, JobID: r.jobID, PlaylistID: r.playlistID, Data: message})

	if r.mgr.monitor != nil {
		switch {
		case strings.Contains(message, "Permanent error for"):
			r.mgr.monitor.RecordDownloadFailure(string(models.Permanent))
		case strings.Contains(message, "Transient error for"):
			r.mgr.monitor.RecordDownloadFailure(string(models.Transient))
		}
	}
}

func (r *jobReporter) publishProgress() {
	r.mgr.bus.Publish(models.Event{Type: models.EventJobProgress, JobID: r.jobID, PlaylistID: r.playlistID, Data: r.rj.snapshot()})
}

// Create validates and admits a new job, then starts it running
// asynchronously (§4.9). forceRefresh is only meaningful for kinds that
// drive the Download Engine.
func (m *Manager) Create(ctx context.Context, playlistID int64, kind models.JobKind, forceRefresh bool) (*models.Job, error) {
	if kind != models.KindDownload && kind != models.KindExtract && kind != models.KindBoth {
		return nil, fmt.Errorf("%q: %w", kind, ErrInvalidKind)
	}

	playlist, err := m.store.Get(playlistID)
	if err != nil {
		return nil, fmt.Errorf("loading playlist %d: %w", playlistID, err)
	}
	if playlist == nil {
		return nil, fmt.Errorf("playlist %d: %w", playlistID, ErrPlaylistNotFound)
	}

	m.mu.Lock()
	ps := m.playlistStateLocked(playlistID)
	involvesDownload := kind == models.KindDownload || kind == models.KindBoth
	if involvesDownload && ps.downloading {
		m.mu.Unlock()
		return nil, fmt.Errorf("playlist %d already has an active download job: %w", playlistID, ErrConflict)
	}
	if kind == models.KindExtract && ps.downloading {
		m.mu.Unlock()
		return nil, fmt.Errorf("playlist %d is currently downloading: %w", playlistID, ErrConflict)
	}
	if involvesDownload {
		ps.downloading = true
	} else {
		ps.extractActive++
	}

	m.nextID++
	jobID := fmt.Sprintf("job-%d-%d", playlistID, m.nextID)
	job := &models.Job{
		ID:         jobID,
		PlaylistID: playlistID,
		Kind:       kind,
		Status:     models.StatusPending,
		CreatedAt:  time.Now().UTC(),
		LogPath:    playliststore.LogPath(m.opts.BasePath, jobID),
	}
	rj := &runningJob{job: job}
	m.jobs[jobID] = rj
	m.mu.Unlock()

	m.persistSummary(rj)

	logw, err := logwriter.Open(job.LogPath)
	if err != nil {
		m.releaseAdmission(playlistID, kind)
		return nil, fmt.Errorf("opening log for job %s: %w", jobID, err)
	}
	rj.logw = logw

	runCtx, cancel := context.WithCancel(context.Background())
	rj.cancel = cancel

	go m.run(runCtx, rj, playlistID, kind, forceRefresh)
	m.recordActiveJobs()

	return rj.snapshot(), nil
}

func (m *Manager) playlistStateLocked(playlistID int64) *playlistState {
	ps, ok := m.playlists[playlistID]
	if !ok {
		ps = &playlistState{}
		m.playlists[playlistID] = ps
	}
	return ps
}

func (m *Manager) releaseAdmission(playlistID int64, kind models.JobKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ps, ok := m.playlists[playlistID]
	if !ok {
		return
	}
	if kind == models.KindDownload || kind == models.KindBoth {
		ps.downloading = false
	} else {
		ps.extractActive--
	}
}

func (m *Manager) run(ctx context.Context, rj *runningJob, playlistID int64, kind models.JobKind, forceRefresh bool) {
	defer m.finalize(rj, playlistID, kind)

	rj.start()
	m.persistSummary(rj)

	reporter := &jobReporter{mgr: m, rj: rj, jobID: rj.job.ID, playlistID: playlistID}

	switch kind {
	case models.KindDownload:
		status, err := m.downloader.Run(ctx, playlistID, m.downloadOptions(forceRefresh), reporter)
		rj.finishPhase(true, status)
		rj.setTerminal(status, err)

	case models.KindExtract:
		status, err := m.extractor.Run(ctx, playlistID, m.extractOptions(), reporter)
		rj.finishPhase(false, status)
		rj.setTerminal(status, err)

	case models.KindBoth:
		var wg sync.WaitGroup
		wg.Add(2)
		var dlStatus, exStatus models.JobStatus
		var dlErr, exErr error

		go func() {
			defer wg.Done()
			dlStatus, dlErr = m.downloader.Run(ctx, playlistID, m.downloadOptions(forceRefresh), reporter)
			rj.finishPhase(true, dlStatus)
		}()
		go func() {
			defer wg.Done()
			select {
			case <-time.After(extractionLeadIn):
			case <-ctx.Done():
			}
			exStatus, exErr = m.extractor.Run(ctx, playlistID, m.extractOptions(), reporter)
			rj.finishPhase(false, exStatus)
		}()
		wg.Wait()

		rj.setTerminal(aggregateStatus(dlStatus, exStatus), errors.Join(dlErr, exErr))
	}
}

// aggregateStatus implements the both-mode tie-break rule: failed >
// cancelled > completed (§4.9, testable property 9).
func aggregateStatus(a, b models.JobStatus) models.JobStatus {
	if a == models.StatusFailed || b == models.StatusFailed {
		return models.StatusFailed
	}
	if a == models.StatusCancelled || b == models.StatusCancelled {
		return models.StatusCancelled
	}
	return models.StatusCompleted
}

func (m *Manager) downloadOptions(forceRefresh bool) engine.DownloadRunOptions {
	return engine.DownloadRunOptions{
		BasePath:       m.opts.BasePath,
		BatchSizeLimit: m.opts.BatchSizeLimit,
		ForceRefresh:   forceRefresh,
		DownloadOpts:   m.opts.DownloadOpts,
	}
}

func (m *Manager) extractOptions() engine.ExtractRunOptions {
	return engine.ExtractRunOptions{
		BasePath: m.opts.BasePath,
		Mode:     m.opts.ExtractMode,
		Workers:  m.opts.ExtractWorkers,
	}
}

func (m *Manager) finalize(rj *runningJob, playlistID int64, kind models.JobKind) {
	if err := rj.logw.Close(); err != nil {
		m.logger.Warn().Err(err).Str("job_id", rj.job.ID).Msg("failed to close job log")
	}
	m.persistSummary(rj)
	m.releaseAdmission(playlistID, kind)
	m.bus.Publish(models.Event{Type: models.EventJobTerminal, JobID: rj.job.ID, PlaylistID: playlistID, Data: rj.snapshot()})
	m.recordActiveJobs()
	if m.monitor != nil {
		m.monitor.SetEventBusDrops(m.bus.Drops())
	}
}

func (m *Manager) persistSummary(rj *runningJob) {
	job := rj.snapshot()
	summary := &models.JobSummary{
		ID:          job.ID,
		PlaylistID:  job.PlaylistID,
		Kind:        string(job.Kind),
		Status:      string(job.Status),
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		LastError:   job.Error,
	}
	if err := m.db.UpsertJobSummary(summary); err != nil {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to persist job summary")
	}
}

// Cancel sets the job's cancel signal; in-flight per-item work completes
// and no new work begins (§4.9).
func (m *Manager) Cancel(jobID string) error {
	m.mu.Lock()
	rj, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	if rj.cancel != nil {
		rj.cancel()
	}
	return nil
}

// Get returns one job's current snapshot.
func (m *Manager) Get(jobID string) (*models.Job, error) {
	m.mu.Lock()
	rj, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	return rj.snapshot(), nil
}

// List returns every job this process has created, most recent first.
func (m *Manager) List() []*models.Job {
	m.mu.Lock()
	snap := make([]*runningJob, 0, len(m.jobs))
	for _, rj := range m.jobs {
		snap = append(snap, rj)
	}
	m.mu.Unlock()

	out := make([]*models.Job, len(snap))
	for i, rj := range snap {
		out[i] = rj.snapshot()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Logs returns the last n lines of a job's log (or all, if n<=0).
func (m *Manager) Logs(jobID string, n int) ([]string, error) {
	m.mu.Lock()
	_, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	return logwriter.Tail(playliststore.LogPath(m.opts.BasePath, jobID), n)
}

// PruneSummaries deletes terminal job summaries older than olderThan,
// keeping the registry database bounded across long uptimes.
func (m *Manager) PruneSummaries(olderThan time.Duration) error {
	return m.db.PruneJobSummaries(olderThan)
}
