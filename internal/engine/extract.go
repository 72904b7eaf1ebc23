package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"video-downloader/internal/acquire"
	"video-downloader/internal/archive"
	"video-downloader/internal/playliststore"
	"video-downloader/pkg/models"
)

// ExtractReporter receives progress/log callbacks from a running
// Extraction Engine.
type ExtractReporter interface {
	ReportExtractProgress(total, completed, failed int)
	Log(message string)
}

// ExtractPlaylistAccessor is the slice of the Playlist Store the
// Extraction Engine needs.
type ExtractPlaylistAccessor interface {
	Get(id int64) (*models.Playlist, error)
	SetLastExtractAt(id int64, at time.Time) error
}

// ExtractRunOptions configures one Extraction Engine run.
type ExtractRunOptions struct {
	BasePath string
	Mode     models.ExtractMode
	Workers  int
}

// Extractor runs a bounded worker pool over one playlist's video files
// (C8). Callers must hold the playlist's serialization token.
type Extractor struct {
	store   ExtractPlaylistAccessor
	adapter models.ExtractorAdapter
}

func NewExtractor(store ExtractPlaylistAccessor, adapter models.ExtractorAdapter) *Extractor {
	return &Extractor{store: store, adapter: adapter}
}

// Run enumerates the playlist folder's video files and transcodes each to
// its audio-dir counterpart across a bounded worker pool (§4.8). Files
// already extracted (non-empty target) cost zero extractor invocations,
// per property 10.
func (e *Extractor) Run(ctx context.Context, playlistID int64, opts ExtractRunOptions, reporter ExtractReporter) (models.JobStatus, error) {
	playlist, err := e.store.Get(playlistID)
	if err != nil {
		return models.StatusFailed, fmt.Errorf("loading playlist %d: %w", playlistID, err)
	}
	if playlist == nil {
		return models.StatusFailed, fmt.Errorf("playlist %d not found", playlistID)
	}

	videoDir := playliststore.Dir(opts.BasePath, playlist.Title)
	audioDir := playliststore.AudioDir(opts.BasePath, playlist.Title)
	if err := os.MkdirAll(audioDir, 0755); err != nil {
		return models.StatusFailed, fmt.Errorf("creating audio directory: %w", err)
	}

	entries, err := os.ReadDir(videoDir)
	if err != nil {
		return models.StatusFailed, fmt.Errorf("listing playlist folder: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() || !archive.IsVideoFile(entry.Name()) {
			continue
		}
		files = append(files, entry.Name())
	}

	total := len(files)
	reporter.ReportExtractProgress(total, 0, 0)
	if total == 0 {
		return models.StatusCompleted, nil
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	audioExt := acquire.AudioExtension(opts.Mode)

	var completed, failed int64
	var cancelled int32
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

dispatch:
	for _, name := range files {
		if ctx.Err() != nil {
			atomic.StoreInt32(&cancelled, 1)
			break dispatch
		}
		select {
		case <-ctx.Done():
			atomic.StoreInt32(&cancelled, 1)
			break dispatch
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			defer func() { <-sem }()

			base := strings.TrimSuffix(name, filepath.Ext(name))
			source := filepath.Join(videoDir, name)
			target := filepath.Join(audioDir, base+"."+audioExt)

			if info, statErr := os.Stat(target); statErr == nil && info.Size() > 0 {
				atomic.AddInt64(&completed, 1)
				reporter.ReportExtractProgress(total, int(atomic.LoadInt64(&completed)), int(atomic.LoadInt64(&failed)))
				return
			}

			// In-flight files finish even if the run is cancelled meanwhile.
			if err := e.adapter.ExtractOne(context.WithoutCancel(ctx), source, target, opts.Mode); err != nil {
				atomic.AddInt64(&failed, 1)
				reporter.Log(fmt.Sprintf("extracting %s: %v", name, err))
			} else {
				atomic.AddInt64(&completed, 1)
			}
			reporter.ReportExtractProgress(total, int(atomic.LoadInt64(&completed)), int(atomic.LoadInt64(&failed)))
		}(name)
	}

	wg.Wait()

	if err := e.store.SetLastExtractAt(playlistID, time.Now().UTC()); err != nil {
		reporter.Log(fmt.Sprintf("recording last extract time: %v", err))
	}

	if atomic.LoadInt32(&cancelled) == 1 {
		return models.StatusCancelled, nil
	}
	return models.StatusCompleted, nil
}
