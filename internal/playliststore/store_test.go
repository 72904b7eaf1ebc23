package playliststore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"video-downloader/internal/storage"
	"video-downloader/pkg/models"
)

type fakeBus struct {
	events []models.Event
}

func (b *fakeBus) Publish(evt models.Event) { b.events = append(b.events, evt) }
func (b *fakeBus) Subscribe(filter string) *models.Subscription {
	return &models.Subscription{C: make(chan models.Event, 1)}
}
func (b *fakeBus) Unsubscribe(*models.Subscription) {}
func (b *fakeBus) Drops() int64                     { return 0 }
func (b *fakeBus) RecordPing(string) bool           { return true }

type fakeAdapter struct {
	meta *models.PlaylistMetadata
}

func (f *fakeAdapter) FetchPlaylistMetadata(ctx context.Context, url string) (*models.PlaylistMetadata, error) {
	return f.meta, nil
}
func (f *fakeAdapter) DownloadOne(ctx context.Context, videoURL, targetDir string, opts models.DownloadOptions, observer models.ProgressObserver) error {
	return nil
}

func newTestStore(t *testing.T) (*Store, *fakeBus) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "registry.db")
	db, err := storage.NewSQLite(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	bus := &fakeBus{}
	adapter := &fakeAdapter{meta: &models.PlaylistMetadata{
		Title: "My Playlist",
		Entries: []models.PlaylistEntry{
			{ID: "a", Title: "A", Available: true},
			{ID: "b", Title: "B", Available: false},
		},
	}}
	store := New(db, bus, adapter, t.TempDir(), zerolog.Nop())
	return store, bus
}

func TestCreateEmitsPlaylistUpdated(t *testing.T) {
	store, bus := newTestStore(t)
	p, err := store.Create(context.Background(), "https://example.com/playlist")
	if err != nil {
		t.Fatal(err)
	}
	if p.Title != "My Playlist" {
		t.Fatalf("expected title from metadata, got %q", p.Title)
	}
	if p.RemoteAvailableCount != 1 || p.RemoteUnavailable != 1 {
		t.Fatalf("unexpected counts: %+v", p)
	}
	if len(bus.events) != 1 || bus.events[0].Type != models.EventPlaylistUpdated {
		t.Fatalf("expected one playlist_updated event, got %v", bus.events)
	}
}

func TestUpdatePartialFields(t *testing.T) {
	store, _ := newTestStore(t)
	p, err := store.Create(context.Background(), "https://example.com/playlist")
	if err != nil {
		t.Fatal(err)
	}

	newTitle := "Renamed"
	updated, err := store.Update(p.ID, models.PlaylistUpdate{Title: &newTitle, ExcludedIDs: []string{"z"}})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Renamed" {
		t.Fatalf("expected title updated, got %q", updated.Title)
	}
	if !updated.ExcludedIDs.Has("z") {
		t.Fatalf("expected excluded id present")
	}
}

func TestApplyExclusionAlwaysRecords(t *testing.T) {
	store, bus := newTestStore(t)
	p, err := store.Create(context.Background(), "https://example.com/playlist")
	if err != nil {
		t.Fatal(err)
	}
	before := len(bus.events)

	if err := store.ApplyExclusionFromEngine(p.ID, "xyz", "transient network error"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.ExcludedIDs.Has("xyz") {
		t.Fatal("expected exclusion recorded regardless of classification")
	}
	if len(bus.events) != before+1 {
		t.Fatal("expected another playlist_updated event")
	}
}

func TestDeleteRemovesOnlyRegistryEntry(t *testing.T) {
	store, _ := newTestStore(t)
	p, err := store.Create(context.Background(), "https://example.com/playlist")
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Delete(p.ID); err != nil {
		t.Fatal(err)
	}
	got, err := store.Get(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected playlist gone from registry")
	}
}
