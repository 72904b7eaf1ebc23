package models

import (
	"os"
	"time"
)

// JobKind is the kind of work a Job drives.
type JobKind string

const (
	KindDownload JobKind = "download"
	KindExtract  JobKind = "extract"
	KindBoth     JobKind = "both"
)

// JobStatus is the state of a Job or one of its phases.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
	// StatusNone marks a phase that never ran (e.g. extract_* fields on a
	// download-only job).
	StatusNone JobStatus = ""
)

// Classification is the Error Classifier's verdict on a raw error message.
type Classification string

const (
	Transient Classification = "transient"
	Permanent Classification = "permanent"
)

// ExtractMode selects the Extractor Adapter's transcode behavior.
type ExtractMode string

const (
	ExtractCopy     ExtractMode = "copy"
	ExtractMP3Best  ExtractMode = "mp3_best"
	ExtractMP3High  ExtractMode = "mp3_high"
	ExtractOpus     ExtractMode = "opus"
)

// BrowserName enumerates the browser cookie stores the Downloader Adapter
// can be pointed at in place of an explicit cookies file.
type BrowserName string

const (
	BrowserChrome  BrowserName = "chrome"
	BrowserFirefox BrowserName = "firefox"
	BrowserEdge    BrowserName = "edge"
	BrowserSafari  BrowserName = "safari"
)

// Playlist is the durable, store-owned record of one tracked playlist (C4).
type Playlist struct {
	ID                   int64      `json:"id" gorm:"primaryKey"`
	URL                  string     `json:"url"`
	Title                string     `json:"title"`
	LastDownloadAt       *time.Time `json:"last_download_at"`
	LastExtractAt        *time.Time `json:"last_extract_at"`
	LocalCount           int        `json:"local_count"`
	RemoteAvailableCount int        `json:"remote_available_count"`
	RemoteUnavailable    int        `json:"remote_unavailable_count"`
	ExcludedIDs          StringSet  `json:"excluded_ids" gorm:"serializer:json"`
	CreatedAt            time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt            time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// StringSet is a JSON-array-backed set of opaque video IDs.
type StringSet map[string]struct{}

func NewStringSet(ids ...string) StringSet {
	s := make(StringSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s StringSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

func (s StringSet) Add(id string) {
	s[id] = struct{}{}
}

func (s StringSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// PlaylistEntry is one item of playlist metadata as returned by the
// Downloader Adapter's metadata fetch.
type PlaylistEntry struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Available bool   `json:"available"`
}

// PlaylistMetadata is the Downloader Adapter's FetchPlaylistMetadata result.
type PlaylistMetadata struct {
	Title   string          `json:"title"`
	Entries []PlaylistEntry `json:"entries"`
}

// PlaylistSnapshot is the on-disk, timestamped record of the metadata fetch
// used by RefreshStats to decide whether a same-day refresh can be skipped.
type PlaylistSnapshot struct {
	FetchedAt time.Time        `json:"fetched_at"`
	Metadata  PlaylistMetadata `json:"metadata"`
}

// PhaseProgress is one of a Job's two independent progress tuples.
type PhaseProgress struct {
	Status    JobStatus `json:"status"`
	Total     int       `json:"total"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	BatchInfo *BatchInfo `json:"batch_info,omitempty"`
}

// BatchInfo reports the daily-cap accounting for a download phase.
type BatchInfo struct {
	BatchSizeLimit int `json:"batch_size_limit"`
	RemainingToday int `json:"remaining_today"`
}

// Job is the Job Manager's unit of work (C9).
type Job struct {
	ID          string     `json:"id"`
	PlaylistID  int64      `json:"playlist_id"`
	Kind        JobKind    `json:"kind"`
	Status      JobStatus  `json:"status"`
	Download    PhaseProgress `json:"download"`
	Extract     PhaseProgress `json:"extract"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	LogPath     string     `json:"log_path"`
}

// Progress is the legacy aggregate percentage derived from both phases.
func (j *Job) Progress() int {
	total := j.Download.Total + j.Extract.Total
	if total <= 0 {
		total = 1
	}
	completed := j.Download.Completed + j.Extract.Completed
	return 100 * completed / total
}

// JobSummary is the persisted read model of a Job (C14), queryable across
// process restarts even though the live Job (with its cancel signal) is
// in-memory only.
type JobSummary struct {
	ID          string     `json:"id" gorm:"primaryKey"`
	PlaylistID  int64      `json:"playlist_id" gorm:"index"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
	LastError   string     `json:"last_error"`
}

// LogEntry is one line of a job's persisted log.
type LogEntry struct {
	TimestampUTC time.Time `json:"timestamp_utc"`
	Message      string    `json:"message"`
}

// EventType enumerates the Event Bus's tagged-union payload kinds.
type EventType string

const (
	EventPlaylistUpdated EventType = "playlist_updated"
	EventJobProgress      EventType = "job_progress"
	EventLogAppended      EventType = "log"
	EventJobTerminal      EventType = "job_terminal"
	EventPong             EventType = "pong"
)

// Event is the Event Bus's wire payload.
type Event struct {
	Type       EventType   `json:"type"`
	PlaylistID int64       `json:"playlist_id,omitempty"`
	JobID      string      `json:"job_id,omitempty"`
	Data       interface{} `json:"data,omitempty"`
}

// Config is the process-wide configuration (§6).
type Config struct {
	Server struct {
		Host string `mapstructure:"host" yaml:"host"`
		Port int    `mapstructure:"port" yaml:"port"`
	} `mapstructure:"server" yaml:"server"`

	Acquisition struct {
		BaseDownloadPath     string      `mapstructure:"base_download_path" yaml:"base_download_path"`
		AudioExtractMode     ExtractMode `mapstructure:"audio_extract_mode" yaml:"audio_extract_mode"`
		MaxExtractionWorkers int         `mapstructure:"max_extraction_workers" yaml:"max_extraction_workers"`
		BatchSize            int         `mapstructure:"batch_size" yaml:"batch_size"`
		CookiesFile          string      `mapstructure:"cookies_file" yaml:"cookies_file"`
		UseBrowserCookies    bool        `mapstructure:"use_browser_cookies" yaml:"use_browser_cookies"`
		BrowserName          BrowserName `mapstructure:"browser_name" yaml:"browser_name"`
	} `mapstructure:"acquisition" yaml:"acquisition"`

	Tools struct {
		DownloaderBin string `mapstructure:"downloader_bin" yaml:"downloader_bin"`
		ExtractorBin  string `mapstructure:"extractor_bin" yaml:"extractor_bin"`
		MetadataTimeoutSeconds int `mapstructure:"metadata_timeout_seconds" yaml:"metadata_timeout_seconds"`
	} `mapstructure:"tools" yaml:"tools"`

	Database struct {
		Path string `mapstructure:"path" yaml:"path"`
	} `mapstructure:"database" yaml:"database"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
		Output string `mapstructure:"output" yaml:"output"`
	} `mapstructure:"log" yaml:"log"`
}

// NeedsSetup reports whether the config hasn't been given a usable
// base_download_path yet (§6).
func (c *Config) NeedsSetup() bool {
	if c.Acquisition.BaseDownloadPath == "" {
		return true
	}
	info, err := os.Stat(c.Acquisition.BaseDownloadPath)
	return err != nil || !info.IsDir()
}
