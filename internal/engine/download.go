// Package engine implements the Download Engine (C7) and Extraction Engine
// (C8): the per-playlist batched download loop and the parallel audio
// extraction worker pool. Grounded on the teacher's batch.BatchManager
// semaphore/worker-pool shape, generalized to the ordered single-playlist
// loop and idempotent-extraction pool the acquisition model requires.
package engine

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"video-downloader/internal/archive"
	"video-downloader/internal/classify"
	"video-downloader/internal/ledger"
	"video-downloader/internal/playliststore"
	"video-downloader/pkg/models"
)

// PlaylistAccessor is the slice of the Playlist Store the Download Engine
// needs. The engine never holds a *Playlist reference across calls; it
// always re-reads through playlist_id (identifier-plus-store-lookup, §9).
type PlaylistAccessor interface {
	Get(id int64) (*models.Playlist, error)
	RefreshStats(ctx context.Context, id int64, force bool) (*models.Playlist, error)
	ApplyExclusionFromEngine(id int64, videoID string, errMsg string) error
	SetLocalCount(id int64, count int, lastDownloadAt time.Time) error
	CurrentSnapshot(title string) (*models.PlaylistMetadata, bool)
}

// DownloadReporter receives progress/log callbacks from a running Download
// Engine. The Job Manager implements this, since it alone owns Job
// mutation; the engine never reaches into a Job struct directly.
type DownloadReporter interface {
	ReportDownloadProgress(total, completed, failed int, batch models.BatchInfo)
	Log(message string)
}

// DownloadRunOptions configures one Download Engine run.
type DownloadRunOptions struct {
	BasePath       string
	BatchSizeLimit int
	ForceRefresh   bool
	DownloadOpts   models.DownloadOptions
}

// Downloader drives one playlist's batched download loop (C7). Callers
// must hold the playlist's serialization token before calling Run.
type Downloader struct {
	store   PlaylistAccessor
	adapter models.DownloaderAdapter
}

func NewDownloader(store PlaylistAccessor, adapter models.DownloaderAdapter) *Downloader {
	return &Downloader{store: store, adapter: adapter}
}

// videoObserver adapts one video's processing to the ProgressObserver
// contract the Downloader Adapter dispatches terminal events through.
type videoObserver struct {
	reporter DownloadReporter
	videoID  string
	lastMsg  string
}

func (o *videoObserver) OnProgress(status, message string) {
	if status == "error" {
		o.lastMsg = message
	}
	o.reporter.Log(fmt.Sprintf("[%s] %s: %s", o.videoID, status, message))
}

// videoURLForID derives a per-video URL from the playlist's own URL host,
// since the metadata fetch only returns opaque IDs. Unspecified by source
// material; grounded on the LNA-DEV reference adapter's YouTube-watch-URL
// convention, generalized to whatever host the playlist URL itself uses.
func videoURLForID(playlistURL, id string) string {
	u, err := url.Parse(playlistURL)
	if err != nil || u.Host == "" {
		return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
	}
	return fmt.Sprintf("%s://%s/watch?v=%s", u.Scheme, u.Host, id)
}

// Run drives the batched download loop for one playlist (§4.7).
func (d *Downloader) Run(ctx context.Context, playlistID int64, opts DownloadRunOptions, reporter DownloadReporter) (models.JobStatus, error) {
	playlist, err := d.store.Get(playlistID)
	if err != nil {
		return models.StatusFailed, fmt.Errorf("loading playlist %d: %w", playlistID, err)
	}
	if playlist == nil {
		return models.StatusFailed, fmt.Errorf("playlist %d not found", playlistID)
	}

	if _, err := d.store.RefreshStats(ctx, playlistID, opts.ForceRefresh); err != nil {
		return models.StatusFailed, fmt.Errorf("refreshing playlist stats: %w", err)
	}
	meta, ok := d.store.CurrentSnapshot(playlist.Title)
	if !ok {
		return models.StatusFailed, fmt.Errorf("no metadata snapshot for playlist %d", playlistID)
	}

	idToTitle := make(map[string]string, len(meta.Entries))
	var remoteIDs []string
	for _, e := range meta.Entries {
		idToTitle[e.ID] = e.Title
		if e.Available {
			remoteIDs = append(remoteIDs, e.ID)
		}
	}

	videoDir := playliststore.Dir(opts.BasePath, playlist.Title)
	arch, err := archive.Load(playliststore.ArchivePath(opts.BasePath, playlist.Title), videoDir)
	if err != nil {
		return models.StatusFailed, fmt.Errorf("loading archive: %w", err)
	}
	ledg, err := ledger.Load(playliststore.LedgerPath(opts.BasePath, playlist.Title), opts.BatchSizeLimit)
	if err != nil {
		return models.StatusFailed, fmt.Errorf("loading ledger: %w", err)
	}
	if err := ledg.Refresh(remoteIDs, arch.Contains, ledg.IsPermanentlyExcluded); err != nil {
		return models.StatusFailed, fmt.Errorf("refreshing ledger: %w", err)
	}

	batch := ledg.AdvanceBatch()
	batchInfo := models.BatchInfo{BatchSizeLimit: opts.BatchSizeLimit, RemainingToday: ledg.RemainingToday()}
	reporter.ReportDownloadProgress(len(batch), 0, 0, batchInfo)

	status := models.StatusCompleted
	completed, failed := 0, 0

	for _, id := range batch {
		select {
		case <-ctx.Done():
			status = models.StatusCancelled
		default:
		}
		if status == models.StatusCancelled {
			break
		}

		title := idToTitle[id]
		should, shouldErr := arch.ShouldDownload(id, title)
		if shouldErr != nil {
			reporter.Log(fmt.Sprintf("checking archive for %s: %v", id, shouldErr))
		}
		if !should {
			reporter.Log(fmt.Sprintf("%s already downloaded", id))
			if err := ledg.RecordDownloaded(id); err != nil {
				reporter.Log(fmt.Sprintf("recording %s downloaded: %v", id, err))
			}
			completed++
			reporter.ReportDownloadProgress(len(batch), completed, failed, batchInfo)
			continue
		}

		obs := &videoObserver{reporter: reporter, videoID: id}
		videoURL := videoURLForID(playlist.URL, id)
		// Cancellation is only checked between videos; the in-flight
		// download runs to completion.
		if err := d.adapter.DownloadOne(context.WithoutCancel(ctx), videoURL, videoDir, opts.DownloadOpts, obs); err != nil {
			msg := obs.lastMsg
			if msg == "" {
				msg = err.Error()
			}
			cls := classify.Classify(msg)

			if excErr := d.store.ApplyExclusionFromEngine(playlistID, id, msg); excErr != nil {
				reporter.Log(fmt.Sprintf("recording exclusion for %s: %v", id, excErr))
			}
			if cls == models.Permanent {
				if mErr := ledg.MarkPermanentlyExcluded(id); mErr != nil {
					reporter.Log(fmt.Sprintf("marking %s permanently excluded: %v", id, mErr))
				}
				reporter.Log(fmt.Sprintf("Permanent error for %s: %s", id, msg))
			} else {
				reporter.Log(fmt.Sprintf("Transient error for %s - will retry", id))
			}

			failed++
			completed++
			reporter.ReportDownloadProgress(len(batch), completed, failed, batchInfo)
			continue
		}

		if _, onDisk := arch.FileOnDisk(id); !onDisk {
			reporter.Log(fmt.Sprintf("download reported success for %s but no file found on disk", id))
			failed++
			completed++
			reporter.ReportDownloadProgress(len(batch), completed, failed, batchInfo)
			continue
		}

		if err := arch.Append(id); err != nil {
			reporter.Log(fmt.Sprintf("appending %s to archive: %v", id, err))
		}
		if err := ledg.RecordDownloaded(id); err != nil {
			reporter.Log(fmt.Sprintf("recording %s downloaded: %v", id, err))
		}
		completed++
		reporter.ReportDownloadProgress(len(batch), completed, failed, batchInfo)
	}

	if err := d.store.SetLocalCount(playlistID, len(arch.Entries()), time.Now().UTC()); err != nil {
		reporter.Log(fmt.Sprintf("recording local count: %v", err))
	}

	return status, nil
}
