// Package playliststore implements the Playlist Store (C4): durable
// playlist metadata and exclusions, emitting change events on every
// mutation. Grounded on the teacher's gorm-backed storage.SQLite plus its
// registry's event-emitting mutation pattern.
package playliststore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"video-downloader/internal/storage"
	"video-downloader/pkg/models"
)

// Store implements models.PlaylistStore.
type Store struct {
	db       *storage.SQLite
	bus      models.EventBus
	adapter  models.DownloaderAdapter
	basePath string
	logger   zerolog.Logger
}

func New(db *storage.SQLite, bus models.EventBus, adapter models.DownloaderAdapter, basePath string, logger zerolog.Logger) *Store {
	return &Store{db: db, bus: bus, adapter: adapter, basePath: basePath, logger: logger}
}

func (s *Store) List() ([]*models.Playlist, error) {
	return s.db.ListPlaylists()
}

func (s *Store) Get(id int64) (*models.Playlist, error) {
	return s.db.GetPlaylist(id)
}

// Create registers a new playlist, blocking to fetch its title via the
// Downloader Adapter's metadata fetch.
func (s *Store) Create(ctx context.Context, url string) (*models.Playlist, error) {
	meta, err := s.adapter.FetchPlaylistMetadata(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist metadata: %w", err)
	}

	p := &models.Playlist{
		URL:         url,
		Title:       meta.Title,
		ExcludedIDs: models.NewStringSet(),
	}
	for _, e := range meta.Entries {
		if e.Available {
			p.RemoteAvailableCount++
		} else {
			p.RemoteUnavailable++
		}
	}

	if err := s.db.CreatePlaylist(p); err != nil {
		return nil, err
	}
	if err := s.writeSnapshot(p.Title, meta); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write initial playlist snapshot")
	}

	s.publish(p.ID)
	return p, nil
}

func (s *Store) Update(id int64, updates models.PlaylistUpdate) (*models.Playlist, error) {
	p, err := s.db.GetPlaylist(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}

	if updates.Title != nil {
		p.Title = *updates.Title
	}
	if updates.ExcludedIDs != nil {
		p.ExcludedIDs = models.NewStringSet(updates.ExcludedIDs...)
	}

	if err := s.db.SavePlaylist(p); err != nil {
		return nil, err
	}
	s.publish(id)
	return p, nil
}

// Delete removes only the registry entry; files on disk are preserved.
func (s *Store) Delete(id int64) error {
	p, err := s.db.GetPlaylist(id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	if err := s.db.DeletePlaylist(id); err != nil {
		return err
	}
	s.publish(id)
	return nil
}

// RefreshStats returns the cached snapshot unless force is set or no
// same-day snapshot exists, in which case it re-fetches metadata and
// persists a new timestamped snapshot.
func (s *Store) RefreshStats(ctx context.Context, id int64, force bool) (*models.Playlist, error) {
	p, err := s.db.GetPlaylist(id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}

	if !force {
		if snap, ok := s.readCurrentSnapshot(p.Title); ok && isToday(snap.FetchedAt) {
			return p, nil
		}
	}

	meta, err := s.adapter.FetchPlaylistMetadata(ctx, p.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist metadata: %w", err)
	}

	p.RemoteAvailableCount = 0
	p.RemoteUnavailable = 0
	for _, e := range meta.Entries {
		if e.Available {
			p.RemoteAvailableCount++
		} else {
			p.RemoteUnavailable++
		}
	}
	if err := s.db.SavePlaylist(p); err != nil {
		return nil, err
	}
	if err := s.writeSnapshot(p.Title, meta); err != nil {
		s.logger.Warn().Err(err).Msg("failed to write refreshed playlist snapshot")
	}

	s.publish(id)
	return p, nil
}

// ApplyExclusionFromEngine always records the id for UI visibility,
// regardless of classification; the engine alone decides whether a
// Permanent classification makes it non-retryable.
func (s *Store) ApplyExclusionFromEngine(id int64, videoID string, errMsg string) error {
	p, err := s.db.GetPlaylist(id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	if p.ExcludedIDs == nil {
		p.ExcludedIDs = models.NewStringSet()
	}
	p.ExcludedIDs.Add(videoID)
	if err := s.db.SavePlaylist(p); err != nil {
		return err
	}
	s.logger.Debug().Int64("playlist_id", id).Str("video_id", videoID).Str("error", errMsg).Msg("recorded exclusion")
	s.publish(id)
	return nil
}

// SetLocalCount lets the Download Engine report the post-run on-disk count
// without reaching into storage directly (identifier-plus-store-lookup).
func (s *Store) SetLocalCount(id int64, count int, lastDownloadAt time.Time) error {
	p, err := s.db.GetPlaylist(id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	p.LocalCount = count
	p.LastDownloadAt = &lastDownloadAt
	if err := s.db.SavePlaylist(p); err != nil {
		return err
	}
	s.publish(id)
	return nil
}

// SetLastExtractAt lets the Extraction Engine report completion.
func (s *Store) SetLastExtractAt(id int64, at time.Time) error {
	p, err := s.db.GetPlaylist(id)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("playlist %d: %w", id, ErrNotFound)
	}
	p.LastExtractAt = &at
	if err := s.db.SavePlaylist(p); err != nil {
		return err
	}
	s.publish(id)
	return nil
}

// CurrentSnapshot exposes the most recent metadata fetch for a playlist so
// the Download Engine can derive its ordered remote-ID list without
// re-fetching metadata itself.
func (s *Store) CurrentSnapshot(title string) (*models.PlaylistMetadata, bool) {
	snap, ok := s.readCurrentSnapshot(title)
	if !ok {
		return nil, false
	}
	return &snap.Metadata, true
}

func (s *Store) publish(id int64) {
	s.bus.Publish(models.Event{
		Type:       models.EventPlaylistUpdated,
		PlaylistID: id,
		Data:       map[string]int64{"playlist_id": id},
	})
}

func (s *Store) writeSnapshot(title string, meta *models.PlaylistMetadata) error {
	dir := SnapshotDir(s.basePath, title)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	snap := models.PlaylistSnapshot{FetchedAt: time.Now().UTC(), Metadata: *meta}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}

	if err := os.WriteFile(CurrentSnapshotPath(s.basePath, title), data, 0644); err != nil {
		return fmt.Errorf("writing current snapshot: %w", err)
	}
	stamp := snap.FetchedAt.Format("20060102_150405")
	if err := os.WriteFile(HistoricalSnapshotPath(s.basePath, title, stamp), data, 0644); err != nil {
		return fmt.Errorf("writing historical snapshot: %w", err)
	}
	return nil
}

func (s *Store) readCurrentSnapshot(title string) (*models.PlaylistSnapshot, bool) {
	data, err := os.ReadFile(CurrentSnapshotPath(s.basePath, title))
	if err != nil {
		return nil, false
	}
	var snap models.PlaylistSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func isToday(t time.Time) bool {
	now := time.Now().UTC()
	y1, m1, d1 := t.UTC().Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// ErrNotFound is returned by Update/Delete/RefreshStats/ApplyExclusionFromEngine
// for an unknown playlist id, so the HTTP boundary can translate it with errors.Is.
var ErrNotFound = errors.New("not found")
