// Package storage is the Registry Database (C14): gorm/SQLite-backed
// persistence for Playlist and JobSummary rows.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"video-downloader/pkg/models"
)

// SQLite implements playlist and job-summary persistence.
type SQLite struct {
	db *gorm.DB
}

// NewSQLite opens (creating if absent) the SQLite-backed registry database.
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.AutoMigrate(&models.Playlist{}, &models.JobSummary{}); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// ListPlaylists returns every tracked playlist.
func (s *SQLite) ListPlaylists() ([]*models.Playlist, error) {
	var playlists []*models.Playlist
	if err := s.db.Order("id ASC").Find(&playlists).Error; err != nil {
		return nil, fmt.Errorf("listing playlists: %w", err)
	}
	return playlists, nil
}

// CreatePlaylist inserts a new playlist row.
func (s *SQLite) CreatePlaylist(p *models.Playlist) error {
	if err := s.db.Create(p).Error; err != nil {
		return fmt.Errorf("creating playlist: %w", err)
	}
	return nil
}

// GetPlaylist returns one playlist by id, nil if absent.
func (s *SQLite) GetPlaylist(id int64) (*models.Playlist, error) {
	var p models.Playlist
	if err := s.db.First(&p, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting playlist %d: %w", id, err)
	}
	return &p, nil
}

// SavePlaylist persists the full playlist row (update-by-primary-key).
func (s *SQLite) SavePlaylist(p *models.Playlist) error {
	if err := s.db.Save(p).Error; err != nil {
		return fmt.Errorf("saving playlist %d: %w", p.ID, err)
	}
	return nil
}

// DeletePlaylist removes only the registry row; callers are responsible
// for leaving on-disk files untouched.
func (s *SQLite) DeletePlaylist(id int64) error {
	if err := s.db.Delete(&models.Playlist{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("deleting playlist %d: %w", id, err)
	}
	return nil
}

// UpsertJobSummary writes (insert-or-replace) one job's read model.
func (s *SQLite) UpsertJobSummary(j *models.JobSummary) error {
	if err := s.db.Save(j).Error; err != nil {
		return fmt.Errorf("upserting job summary %s: %w", j.ID, err)
	}
	return nil
}

// ListJobSummaries returns job summaries, optionally filtered by playlist,
// most recent first.
func (s *SQLite) ListJobSummaries(playlistID *int64) ([]*models.JobSummary, error) {
	query := s.db.Model(&models.JobSummary{}).Order("created_at DESC")
	if playlistID != nil {
		query = query.Where("playlist_id = ?", *playlistID)
	}
	var out []*models.JobSummary
	if err := query.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("listing job summaries: %w", err)
	}
	return out, nil
}

// GetJobSummary returns one job summary by id, nil if absent.
func (s *SQLite) GetJobSummary(id string) (*models.JobSummary, error) {
	var j models.JobSummary
	if err := s.db.First(&j, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("getting job summary %s: %w", id, err)
	}
	return &j, nil
}

// PruneJobSummaries deletes terminal job summaries older than the cutoff,
// keeping the registry database from growing without bound across long
// uptimes.
func (s *SQLite) PruneJobSummaries(olderThan time.Duration) error {
	cutoff := time.Now().Add(-olderThan)
	return s.db.Where("created_at < ? AND status IN ?", cutoff,
		[]string{string(models.StatusCompleted), string(models.StatusFailed), string(models.StatusCancelled)}).
		Delete(&models.JobSummary{}).Error
}
