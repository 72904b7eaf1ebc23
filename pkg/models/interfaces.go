package models

import "context"

// ProgressObserver is the one-method interface the Downloader Adapter
// dispatches terminal per-video progress through. Engines implement it and
// own all mutation; dispatch is synchronous from the adapter (§9).
type ProgressObserver interface {
	OnProgress(status string, message string)
}

// DownloadOptions configures one DownloadOne invocation. The config layer
// does not validate these values when it loads or updates configuration;
// cookie.BuildArgs rejects an unsupported browser name, or a cookies file
// combined with browser cookies, when DownloadOne runs.
type DownloadOptions struct {
	CookiesFile       string
	UseBrowserCookies bool
	BrowserName       BrowserName
	FilenameTemplate  string
}

// DownloaderAdapter wraps the external acquisition tool (C5).
type DownloaderAdapter interface {
	FetchPlaylistMetadata(ctx context.Context, url string) (*PlaylistMetadata, error)
	DownloadOne(ctx context.Context, videoURL, targetDir string, opts DownloadOptions, observer ProgressObserver) error
}

// ExtractorAdapter wraps the external audio transcoder (C6).
type ExtractorAdapter interface {
	ExtractOne(ctx context.Context, sourceVideo, targetAudio string, mode ExtractMode) error
}

// PlaylistStore owns Playlist records and emits PlaylistUpdated on every
// mutation (C4).
type PlaylistStore interface {
	List() ([]*Playlist, error)
	Create(ctx context.Context, url string) (*Playlist, error)
	Get(id int64) (*Playlist, error)
	Update(id int64, updates PlaylistUpdate) (*Playlist, error)
	Delete(id int64) error
	RefreshStats(ctx context.Context, id int64, force bool) (*Playlist, error)
	ApplyExclusionFromEngine(id int64, videoID string, errMsg string) error
}

// PlaylistUpdate carries the partial-update fields Update accepts.
type PlaylistUpdate struct {
	Title       *string
	ExcludedIDs []string
}

// EventBus is the process-local publish/subscribe fan-out (C11).
type EventBus interface {
	Publish(evt Event)
	Subscribe(filter string) *Subscription
	Unsubscribe(sub *Subscription)
	Drops() int64
	RecordPing(subID string) bool
}

// Subscription is a live subscriber's outbound queue handle.
type Subscription struct {
	ID     string
	Filter string
	C      chan Event
}
