package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"video-downloader/internal/acquire"
	"video-downloader/internal/config"
	"video-downloader/internal/engine"
	"video-downloader/internal/eventbus"
	"video-downloader/internal/jobs"
	"video-downloader/internal/monitor"
	"video-downloader/internal/playliststore"
	"video-downloader/internal/server"
	"video-downloader/internal/storage"
	"video-downloader/pkg/models"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	configManager := config.NewManager()
	cfg, err := configManager.Load("")
	if err != nil {
		log.Fatal().Err(err).Msg("error loading configuration")
	}

	db, err := storage.NewSQLite(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("error initializing storage")
	}
	defer db.Close()

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

	srv := server.NewServer(cfg, configManager, store, jobMgr, bus, mon, logger)
	if err := srv.Run(); err != nil {
		log.Fatal().Err(err).Msg("error running server")
	}
}
