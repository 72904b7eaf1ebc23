package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"video-downloader/internal/ledger"
	"video-downloader/internal/playliststore"
	"video-downloader/pkg/models"
)

type fakeAccessor struct {
	playlist   *models.Playlist
	snapshot   *models.PlaylistMetadata
	exclusions []string
	localCount int
}

func (f *fakeAccessor) Get(id int64) (*models.Playlist, error) { return f.playlist, nil }
func (f *fakeAccessor) RefreshStats(ctx context.Context, id int64, force bool) (*models.Playlist, error) {
	return f.playlist, nil
}
func (f *fakeAccessor) ApplyExclusionFromEngine(id int64, videoID string, errMsg string) error {
	f.exclusions = append(f.exclusions, videoID)
	return nil
}
func (f *fakeAccessor) SetLocalCount(id int64, count int, at time.Time) error {
	f.localCount = count
	return nil
}
func (f *fakeAccessor) CurrentSnapshot(title string) (*models.PlaylistMetadata, bool) {
	return f.snapshot, f.snapshot != nil
}

// fakeAdapter simulates the external acquisition tool: on success it
// writes a `<title> [<id>].mp4` file into targetDir, mirroring what the
// real tool's filename template produces.
type fakeAdapter struct {
	failures map[string]string
}

func (a *fakeAdapter) FetchPlaylistMetadata(ctx context.Context, url string) (*models.PlaylistMetadata, error) {
	return nil, errors.New("not used in this test")
}

func (a *fakeAdapter) DownloadOne(ctx context.Context, videoURL, targetDir string, opts models.DownloadOptions, observer models.ProgressObserver) error {
	id := videoURL[len(videoURL)-11:]
	if msg, bad := a.failures[id]; bad {
		observer.OnProgress("error", msg)
		return errors.New(msg)
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return err
	}
	path := filepath.Join(targetDir, "Video "+"["+id+"].mp4")
	if err := os.WriteFile(path, []byte("data"), 0644); err != nil {
		return err
	}
	observer.OnProgress("finished", "download finished")
	return nil
}

type fakeReporter struct {
	logs     []string
	progress []models.BatchInfo
}

func (r *fakeReporter) ReportDownloadProgress(total, completed, failed int, batch models.BatchInfo) {
	r.progress = append(r.progress, batch)
}
func (r *fakeReporter) Log(message string) { r.logs = append(r.logs, message) }

func padID(id string) string {
	for len(id) < 11 {
		id = "0" + id
	}
	return id
}

func newSnapshot(ids ...string) *models.PlaylistMetadata {
	meta := &models.PlaylistMetadata{Title: "MyList"}
	for _, id := range ids {
		meta.Entries = append(meta.Entries, models.PlaylistEntry{ID: padID(id), Title: "Video", Available: true})
	}
	return meta
}

func TestDownloadEngineHappyPath(t *testing.T) {
	base := t.TempDir()
	playlist := &models.Playlist{ID: 1, URL: "https://example.com/playlist", Title: "MyList", ExcludedIDs: models.NewStringSet()}
	store := &fakeAccessor{playlist: playlist, snapshot: newSnapshot("A", "B", "C")}
	adapter := &fakeAdapter{failures: map[string]string{}}
	reporter := &fakeReporter{}

	eng := NewDownloader(store, adapter)
	status, err := eng.Run(context.Background(), 1, DownloadRunOptions{BasePath: base, BatchSizeLimit: 200}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if status != models.StatusCompleted {
		t.Fatalf("expected completed, got %s", status)
	}
	if store.localCount != 3 {
		t.Fatalf("expected local count 3, got %d", store.localCount)
	}

	ledgerPath := playliststore.LedgerPath(base, "MyList")
	if _, err := os.Stat(ledgerPath); err != nil {
		t.Fatalf("expected ledger file, got %v", err)
	}
}

func TestDownloadEngineTransientStaysPending(t *testing.T) {
	base := t.TempDir()
	playlist := &models.Playlist{ID: 1, URL: "https://example.com/playlist", Title: "MyList", ExcludedIDs: models.NewStringSet()}
	idB := padID("B")
	store := &fakeAccessor{playlist: playlist, snapshot: newSnapshot("A", "B")}
	adapter := &fakeAdapter{failures: map[string]string{idB: "[Errno 2] No such file or directory: .part-Frag32"}}
	reporter := &fakeReporter{}

	eng := NewDownloader(store, adapter)
	status, err := eng.Run(context.Background(), 1, DownloadRunOptions{BasePath: base, BatchSizeLimit: 200}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if status != models.StatusCompleted {
		t.Fatalf("expected completed status even with per-video failures, got %s", status)
	}

	found := false
	for _, id := range store.exclusions {
		if id == idB {
			found = true
		}
	}
	if !found {
		t.Fatal("expected transient failure to still be recorded for display via ApplyExclusionFromEngine")
	}

	ledg, err := ledger.Load(playliststore.LedgerPath(base, "MyList"), 200)
	if err != nil {
		t.Fatal(err)
	}
	if pending := ledg.Pending(); len(pending) != 1 || pending[0] != idB {
		t.Fatalf("expected transient id to stay pending, got %v", pending)
	}

	// Second run: B now succeeds, should complete from where ledger left off.
	adapter.failures = map[string]string{}
	status, err = eng.Run(context.Background(), 1, DownloadRunOptions{BasePath: base, BatchSizeLimit: 200}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if status != models.StatusCompleted {
		t.Fatalf("expected completed on retry, got %s", status)
	}
}

func TestDownloadEnginePermanentExcludesFromPending(t *testing.T) {
	base := t.TempDir()
	playlist := &models.Playlist{ID: 1, URL: "https://example.com/playlist", Title: "MyList", ExcludedIDs: models.NewStringSet()}
	idX := padID("X")
	store := &fakeAccessor{playlist: playlist, snapshot: newSnapshot("X")}
	adapter := &fakeAdapter{failures: map[string]string{idX: "Video unavailable"}}
	reporter := &fakeReporter{}

	eng := NewDownloader(store, adapter)
	status, err := eng.Run(context.Background(), 1, DownloadRunOptions{BasePath: base, BatchSizeLimit: 200}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if status != models.StatusCompleted {
		t.Fatalf("expected job to complete (not fail) on a permanent per-video error, got %s", status)
	}

	ledg, err := ledger.Load(playliststore.LedgerPath(base, "MyList"), 200)
	if err != nil {
		t.Fatal(err)
	}
	if pending := ledg.Pending(); len(pending) != 0 {
		t.Fatalf("expected permanent id removed from pending, got %v", pending)
	}
	if !ledg.IsPermanentlyExcluded(idX) {
		t.Fatal("expected permanent id recorded as permanently excluded")
	}
}

func TestDownloadEngineCancellationStopsLoop(t *testing.T) {
	base := t.TempDir()
	playlist := &models.Playlist{ID: 1, URL: "https://example.com/playlist", Title: "MyList", ExcludedIDs: models.NewStringSet()}
	store := &fakeAccessor{playlist: playlist, snapshot: newSnapshot("A", "B", "C")}
	adapter := &fakeAdapter{failures: map[string]string{}}
	reporter := &fakeReporter{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	eng := NewDownloader(store, adapter)
	status, err := eng.Run(ctx, 1, DownloadRunOptions{BasePath: base, BatchSizeLimit: 200}, reporter)
	if err != nil {
		t.Fatal(err)
	}
	if status != models.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", status)
	}
}
