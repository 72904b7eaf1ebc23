package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"video-downloader/internal/acquire"
	"video-downloader/internal/config"
	"video-downloader/internal/engine"
	"video-downloader/internal/eventbus"
	"video-downloader/internal/jobs"
	"video-downloader/internal/monitor"
	"video-downloader/internal/playliststore"
	"video-downloader/internal/server"
	"video-downloader/internal/storage"
	"video-downloader/internal/utils"
	"video-downloader/pkg/models"
)

// jobPollInterval is how often the CLI polls Get while waiting for a job
// it started to reach a terminal status.
const jobPollInterval = 500 * time.Millisecond

var configPath string

var rootCmd = &cobra.Command{
	Use:   "video-downloader",
	Short: "Playlist downloader and audio-extraction control plane",
	Long: `video-downloader tracks playlists, downloads new videos in daily-capped
batches and extracts audio from them when a job is run, and exposes the same
state through this CLI and the HTTP API.`,
	Version: "2.0.0",
}

// deps bundles one subcommand invocation's wired-up dependency graph,
// mirroring cmd/server/main.go's construction order.
type deps struct {
	cfg       *models.Config
	configMgr *config.Manager
	db        *storage.SQLite
	bus       models.EventBus
	store     *playliststore.Store
	jobs      *jobs.Manager
	monitor   *monitor.Monitor
}

// buildDeps wires up everything a subcommand needs to talk to the registry
// and run jobs, mirroring the dependency graph cmd/server/main.go builds.
func buildDeps() (*deps, error) {
	configManager := config.NewManager()
	cfg, err := configManager.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}

	db, err := storage.NewSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("error initializing storage: %w", err)
	}

	logger := configManager.GetLogger()
	bus := eventbus.New()

	downloaderAdapter := acquire.NewDownloader(cfg.Tools.DownloaderBin, time.Duration(cfg.Tools.MetadataTimeoutSeconds)*time.Second, logger)
	extractorAdapter := acquire.NewExtractor(cfg.Tools.ExtractorBin, logger)

	store := playliststore.New(db, bus, downloaderAdapter, cfg.Acquisition.BaseDownloadPath, logger)

	downloadEngine := engine.NewDownloader(store, downloaderAdapter)
	extractEngine := engine.NewExtractor(store, extractorAdapter)

	mon := monitor.NewMonitor()

	jobMgr := jobs.NewManager(store, downloadEngine, extractEngine, bus, db, jobs.Options{
		BasePath:       cfg.Acquisition.BaseDownloadPath,
		BatchSizeLimit: cfg.Acquisition.BatchSize,
		ExtractWorkers: cfg.Acquisition.MaxExtractionWorkers,
		ExtractMode:    cfg.Acquisition.AudioExtractMode,
		DownloadOpts: models.DownloadOptions{
			CookiesFile:       cfg.Acquisition.CookiesFile,
			UseBrowserCookies: cfg.Acquisition.UseBrowserCookies,
			BrowserName:       cfg.Acquisition.BrowserName,
		},
	}, logger, mon)

	return &deps{
		cfg:       cfg,
		configMgr: configManager,
		db:        db,
		bus:       bus,
		store:     store,
		jobs:      jobMgr,
		monitor:   mon,
	}, nil
}

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Manage tracked playlists",
}

var playlistAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Register a new playlist and fetch its metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.db.Close()

		p, err := d.store.Create(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error adding playlist: %w", err)
		}

		fmt.Printf("added playlist #%d: %s\n", p.ID, p.Title)
		fmt.Printf("   remote available: %d | remote unavailable: %d\n", p.RemoteAvailableCount, p.RemoteUnavailable)
		return nil
	},
}

var playlistListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked playlists",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.db.Close()

		playlists, err := d.store.List()
		if err != nil {
			return fmt.Errorf("error listing playlists: %w", err)
		}

		if len(playlists) == 0 {
			fmt.Println("no playlists tracked")
			return nil
		}

		for _, p := range playlists {
			fmt.Printf("#%d  %s\n", p.ID, p.Title)
			fmt.Printf("    url: %s\n", p.URL)
			fmt.Printf("    local: %d  remote available: %d  remote unavailable: %d  excluded: %d\n",
				p.LocalCount, p.RemoteAvailableCount, p.RemoteUnavailable, len(p.ExcludedIDs))
			if p.LastDownloadAt != nil {
				fmt.Printf("    last download: %s\n", p.LastDownloadAt.Format("2006-01-02 15:04:05"))
			}
		}
		return nil
	},
}

var playlistRemoveCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Stop tracking a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlaylistID(args[0])
		if err != nil {
			return err
		}

		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.db.Close()

		if err := d.store.Delete(id); err != nil {
			return fmt.Errorf("error removing playlist: %w", err)
		}
		fmt.Printf("removed playlist #%d\n", id)
		return nil
	},
}

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Run and inspect download/extraction jobs",
}

var jobKindFlag string
var jobForceFlag bool

var jobRunCmd = &cobra.Command{
	Use:   "run [playlist-id]",
	Short: "Start a job for a playlist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parsePlaylistID(args[0])
		if err != nil {
			return err
		}

		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.db.Close()

		job, err := d.jobs.Create(context.Background(), id, models.JobKind(jobKindFlag), jobForceFlag)
		if err != nil {
			return fmt.Errorf("error starting job: %w", err)
		}
		fmt.Printf("started job %s (%s) for playlist #%d\n", job.ID, job.Kind, job.PlaylistID)

		// Create dispatches the engine asynchronously; block here until it
		// reaches a terminal status so the process doesn't exit (and close
		// the database) out from under the still-running job.
		job, err = waitForTerminal(d, job.ID)
		if err != nil {
			return err
		}

		elapsed := ""
		if job.StartedAt != nil && job.CompletedAt != nil {
			elapsed = fmt.Sprintf(" in %s", utils.FormatDuration(job.CompletedAt.Sub(*job.StartedAt)))
		}
		fmt.Printf("job %s %s%s\n", job.ID, job.Status, elapsed)
		if job.Error != "" {
			fmt.Printf("error: %s\n", job.Error)
		}
		if job.Status == models.StatusFailed {
			return fmt.Errorf("job %s failed", job.ID)
		}
		return nil
	},
}

// waitForTerminal polls jobs.Get until id reaches a terminal status.
func waitForTerminal(d *deps, id string) (*models.Job, error) {
	ticker := time.NewTicker(jobPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		job, err := d.jobs.Get(id)
		if err != nil {
			return nil, fmt.Errorf("error polling job status: %w", err)
		}
		switch job.Status {
		case models.StatusCompleted, models.StatusFailed, models.StatusCancelled:
			return job, nil
		}
	}
	return nil, fmt.Errorf("polling job %s: ticker stopped unexpectedly", id)
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Cancel a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.db.Close()

		if err := d.jobs.Cancel(args[0]); err != nil {
			return fmt.Errorf("error cancelling job: %w", err)
		}
		fmt.Printf("cancelled job %s\n", args[0])
		return nil
	},
}

var jobLogsCmd = &cobra.Command{
	Use:   "logs [job-id]",
	Short: "Tail a job's log lines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.db.Close()

		lines, err := d.jobs.Logs(args[0], 200)
		if err != nil {
			return fmt.Errorf("error reading job logs: %w", err)
		}
		for _, line := range lines {
			fmt.Println(line)
		}
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and update configuration",
}

var showConfigCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configManager := config.NewManager()
		cfg, err := configManager.Load(configPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		fmt.Printf("server:       %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("download path: %s\n", cfg.Acquisition.BaseDownloadPath)
		fmt.Printf("extract mode: %s\n", cfg.Acquisition.AudioExtractMode)
		fmt.Printf("extract workers: %d\n", cfg.Acquisition.MaxExtractionWorkers)
		fmt.Printf("batch size: %d\n", cfg.Acquisition.BatchSize)
		fmt.Printf("downloader bin: %s\n", cfg.Tools.DownloaderBin)
		fmt.Printf("extractor bin: %s\n", cfg.Tools.ExtractorBin)
		fmt.Printf("database: %s\n", cfg.Database.Path)
		fmt.Printf("log level: %s\n", cfg.Log.Level)
		fmt.Printf("needs setup: %v\n", cfg.NeedsSetup())
		return nil
	},
}

var setConfigCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Update a single configuration key (dotted path, e.g. acquisition.batch_size)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		configManager := config.NewManager()
		if _, err := configManager.Load(configPath); err != nil {
			return fmt.Errorf("error loading configuration: %w", err)
		}

		if _, err := configManager.UpdateConfig(map[string]interface{}{args[0]: args[1]}); err != nil {
			return fmt.Errorf("error updating configuration: %w", err)
		}
		if err := configManager.Save(configPath); err != nil {
			return fmt.Errorf("error saving configuration: %w", err)
		}
		fmt.Printf("set %s = %s\n", args[0], args[1])
		return nil
	},
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps()
		if err != nil {
			return err
		}
		defer d.db.Close()

		srv := server.NewServer(d.cfg, d.configMgr, d.store, d.jobs, d.bus, d.monitor, d.configMgr.GetLogger())
		if err := srv.Run(); err != nil {
			return fmt.Errorf("error running server: %w", err)
		}
		return nil
	},
}

func parsePlaylistID(raw string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid playlist id %q", raw)
	}
	return id, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file path")

	jobRunCmd.Flags().StringVar(&jobKindFlag, "kind", "both", "job kind: download, extract, or both")
	jobRunCmd.Flags().BoolVar(&jobForceFlag, "force", false, "force a metadata refresh before running")

	rootCmd.AddCommand(playlistCmd)
	playlistCmd.AddCommand(playlistAddCmd)
	playlistCmd.AddCommand(playlistListCmd)
	playlistCmd.AddCommand(playlistRemoveCmd)

	rootCmd.AddCommand(jobCmd)
	jobCmd.AddCommand(jobRunCmd)
	jobCmd.AddCommand(jobCancelCmd)
	jobCmd.AddCommand(jobLogsCmd)

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(showConfigCmd)
	configCmd.AddCommand(setConfigCmd)

	rootCmd.AddCommand(serverCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
