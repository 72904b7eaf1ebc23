package playliststore

import (
	"path/filepath"

	"video-downloader/internal/utils"
)

// Dir is the playlist folder, holding videos, archive, ledger, snapshots.
// title comes from external playlist metadata, so it is sanitized before
// use as a path segment.
func Dir(basePath, title string) string {
	return filepath.Join(basePath, utils.SanitizeFilename(title))
}

// ArchivePath is the per-playlist custom-archive text file.
func ArchivePath(basePath, title string) string {
	return filepath.Join(Dir(basePath, title), "archive.txt")
}

// LedgerPath is the per-playlist batch-ledger JSON file.
func LedgerPath(basePath, title string) string {
	return filepath.Join(Dir(basePath, title), "batch_progress.json")
}

// SnapshotDir is where current and historical metadata snapshots live.
func SnapshotDir(basePath, title string) string {
	return filepath.Join(Dir(basePath, title), "playlist_info_snapshot")
}

// CurrentSnapshotPath is the most-recent metadata snapshot.
func CurrentSnapshotPath(basePath, title string) string {
	return filepath.Join(SnapshotDir(basePath, title), "playlist_info.json")
}

// HistoricalSnapshotPath is a timestamped snapshot, named per the
// YYYYMMDD_HHMMSS suffix convention.
func HistoricalSnapshotPath(basePath, title, stamp string) string {
	return filepath.Join(SnapshotDir(basePath, title), "playlist_info_"+stamp+".json")
}

// AudioDir holds extracted audio, per the literal external-interface
// layout's doubled <playlist_title> segment.
func AudioDir(basePath, title string) string {
	return filepath.Join(Dir(basePath, title), utils.SanitizeFilename(title))
}

// LogPath is one job's append-only log file.
func LogPath(basePath, jobID string) string {
	return filepath.Join(basePath, "logs", "job_"+jobID+".log")
}
