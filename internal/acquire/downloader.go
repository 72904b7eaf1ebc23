// Package acquire wraps the external acquisition/transcode binaries this
// module drives (C5/C6), grounded on the other_examples LNA-DEV-style
// exec.Command + stdout line-scraping + progress-regex adapter shape.
package acquire

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"video-downloader/internal/cookie"
	"video-downloader/pkg/models"
)

// Downloader wraps an external acquisition tool (e.g. a yt-dlp-compatible
// binary) behind the DownloaderAdapter contract.
type Downloader struct {
	bin             string
	metadataTimeout time.Duration
	limiter         *rate.Limiter
	logger          zerolog.Logger
}

// NewDownloader constructs a Downloader. metadataTimeout bounds the
// blocking FetchPlaylistMetadata call; the limiter re-homes the teacher's
// golang.org/x/time/rate dependency as the metadata-fetch backoff policy
// rather than an HTTP-boundary request limiter.
func NewDownloader(bin string, metadataTimeout time.Duration, logger zerolog.Logger) *Downloader {
	return &Downloader{
		bin:             bin,
		metadataTimeout: metadataTimeout,
		limiter:         rate.NewLimiter(rate.Every(2*time.Second), 1),
		logger:          logger,
	}
}

var progressRegex = regexp.MustCompile(`\[download\]\s+([\d.]+)%`)

type flatEntry struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Availability string `json:"availability"`
}

type flatPlaylist struct {
	Title   string      `json:"title"`
	Entries []flatEntry `json:"entries"`
}

// FetchPlaylistMetadata invokes the tool's flat-playlist dump-json mode
// and parses the resulting entry list. Blocking I/O; the engine treats it
// as such.
func (d *Downloader) FetchPlaylistMetadata(ctx context.Context, url string) (*models.PlaylistMetadata, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for metadata-fetch rate limiter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.metadataTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.bin, "--flat-playlist", "--dump-single-json", url)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("fetching playlist metadata: %w", classifyExecError(err))
	}

	var parsed flatPlaylist
	if err := json.Unmarshal(out, &parsed); err != nil {
		return nil, fmt.Errorf("parsing playlist metadata: %w", err)
	}

	meta := &models.PlaylistMetadata{Title: parsed.Title}
	for _, e := range parsed.Entries {
		meta.Entries = append(meta.Entries, models.PlaylistEntry{
			ID:        e.ID,
			Title:     e.Title,
			Available: e.Availability == "" || e.Availability == "public",
		})
	}
	return meta, nil
}

// DownloadOne downloads one video to targetDir/%(title)s [%(id)s].%(ext)s,
// dispatching terminal per-video events synchronously to observer.
func (d *Downloader) DownloadOne(ctx context.Context, videoURL, targetDir string, opts models.DownloadOptions, observer models.ProgressObserver) error {
	template := opts.FilenameTemplate
	if template == "" {
		template = "%(title)s [%(id)s].%(ext)s"
	}

	args := []string{
		"--no-playlist",
		"-o", targetDir + "/" + template,
	}
	cookieArgs, err := cookie.BuildArgs(cookie.Options{
		CookiesFile:       opts.CookiesFile,
		UseBrowserCookies: opts.UseBrowserCookies,
		BrowserName:       opts.BrowserName,
	})
	if err != nil {
		return fmt.Errorf("building cookie options: %w", err)
	}
	args = append(args, cookieArgs...)
	args = append(args, videoURL)

	cmd := exec.CommandContext(ctx, d.bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attaching stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attaching stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting downloader process: %w", err)
	}

	var errMu sync.Mutex
	lastErrLine := ""
	setLastErrLine := func(line string) {
		errMu.Lock()
		lastErrLine = line
		errMu.Unlock()
	}
	go scanLines(stderr, setLastErrLine)
	scanLines(stdout, func(line string) {
		if m := progressRegex.FindStringSubmatch(line); m != nil {
			d.logger.Debug().Str("percent", m[1]).Str("video_url", videoURL).Msg("download progress")
			return
		}
		if strings.Contains(strings.ToLower(line), "error") {
			observer.OnProgress("error", line)
			setLastErrLine(line)
		}
	})

	if err := cmd.Wait(); err != nil {
		errMu.Lock()
		msg := lastErrLine
		errMu.Unlock()
		if msg == "" {
			msg = err.Error()
		}
		observer.OnProgress("error", msg)
		return fmt.Errorf("downloading video: %w", errMessage(msg))
	}

	observer.OnProgress("finished", "download finished")
	return nil
}

// errMessage turns a free-form adapter message into an error so it can be
// %w-wrapped and later matched with errors.Is/As by callers that recognize
// it.
type errMessage string

func (e errMessage) Error() string { return string(e) }

func scanLines(r interface{ Read([]byte) (int, error) }, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fn(scanner.Text())
	}
}

// classifyExecError folds exec.ExitError's stderr tail into the error
// message so downstream classification has something to match against.
func classifyExecError(err error) error {
	if exitErr, ok := err.(*exec.ExitError); ok {
		return fmt.Errorf("%s", strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
