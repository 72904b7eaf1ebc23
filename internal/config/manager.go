// Package config implements the Config Manager (C13): Viper-backed load/
// save of the process-wide configuration (§6), grounded on the teacher's
// internal/config/manager.go defaults-then-file-then-env layering.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"video-downloader/pkg/models"
)

// Manager loads and persists the application's models.Config.
type Manager struct {
	config *models.Config
	viper  *viper.Viper
	logger zerolog.Logger
}

func NewManager() *Manager {
	return &Manager{
		config: &models.Config{},
		viper:  viper.New(),
		logger: zerolog.New(os.Stdout).With().Timestamp().Logger(),
	}
}

// Load reads configuration from file and environment, writing a default
// file first if none is found.
func (m *Manager) Load(configPath string) (*models.Config, error) {
	m.setDefaults()

	m.viper.SetConfigName("config")
	m.viper.SetConfigType("yaml")

	if configPath != "" {
		m.viper.AddConfigPath(configPath)
	} else {
		m.viper.AddConfigPath(".")
		m.viper.AddConfigPath("./config")
		m.viper.AddConfigPath("$HOME/.video-downloader")
		m.viper.AddConfigPath("/etc/video-downloader")
	}

	m.viper.AutomaticEnv()
	m.viper.SetEnvPrefix("VD")

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		writeDir := configPath
		if writeDir == "" {
			writeDir = "./config"
		}
		if err := m.createDefaultConfig(writeDir); err != nil {
			m.logger.Warn().Msgf("failed to create default config: %v", err)
		}
		m.viper.AddConfigPath(writeDir)
		if err := m.viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading newly created config file: %w", err)
		}
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := m.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("error ensuring directories: %w", err)
	}

	m.configureLogger()

	return m.config, nil
}

// Save writes the current configuration to configPath/config.yaml.
func (m *Manager) Save(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")
	if err := m.viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	return nil
}

func (m *Manager) GetConfig() *models.Config {
	return m.config
}

// UpdateConfig merges updates (dotted viper keys) and re-unmarshals, so
// `PUT /api/v1/config` takes effect immediately (§4.13).
func (m *Manager) UpdateConfig(updates map[string]interface{}) (*models.Config, error) {
	for key, value := range updates {
		m.viper.Set(key, value)
	}
	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("error unmarshaling updated config: %w", err)
	}
	return m.config, nil
}

func (m *Manager) setDefaults() {
	m.viper.SetDefault("server.host", "0.0.0.0")
	m.viper.SetDefault("server.port", 8080)

	m.viper.SetDefault("acquisition.base_download_path", "")
	m.viper.SetDefault("acquisition.audio_extract_mode", string(models.ExtractMP3Best))
	m.viper.SetDefault("acquisition.max_extraction_workers", 4)
	m.viper.SetDefault("acquisition.batch_size", 50)
	m.viper.SetDefault("acquisition.cookies_file", "")
	m.viper.SetDefault("acquisition.use_browser_cookies", false)
	m.viper.SetDefault("acquisition.browser_name", "")

	m.viper.SetDefault("tools.downloader_bin", "yt-dlp")
	m.viper.SetDefault("tools.extractor_bin", "ffmpeg")
	m.viper.SetDefault("tools.metadata_timeout_seconds", 120)

	m.viper.SetDefault("database.path", "./data/video-downloader.db")

	m.viper.SetDefault("log.level", "info")
	m.viper.SetDefault("log.format", "console")
	m.viper.SetDefault("log.output", "stdout")
}

func (m *Manager) createDefaultConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configFile := filepath.Join(configDir, "config.yaml")
	defaultConfig := `# Video/audio acquisition job control plane configuration

server:
  host: 0.0.0.0
  port: 8080

acquisition:
  base_download_path: ""
  audio_extract_mode: mp3_best
  max_extraction_workers: 4
  batch_size: 50
  cookies_file: ""
  use_browser_cookies: false
  browser_name: ""

tools:
  downloader_bin: yt-dlp
  extractor_bin: ffmpeg
  metadata_timeout_seconds: 120

database:
  path: ./data/video-downloader.db

log:
  level: info
  format: console
  output: stdout
`

	if err := os.WriteFile(configFile, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("error writing default config: %w", err)
	}

	m.logger.Info().Msgf("created default config file at: %s", configFile)
	return nil
}

func (m *Manager) ensureDirectories() error {
	dirs := []string{filepath.Dir(m.config.Database.Path), "./logs"}
	if m.config.Acquisition.BaseDownloadPath != "" {
		dirs = append(dirs, m.config.Acquisition.BaseDownloadPath)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}
	return nil
}

func (m *Manager) configureLogger() {
	level, err := zerolog.ParseLevel(m.config.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if m.config.Log.Format != "json" {
		m.logger = m.logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	if m.config.Log.Output != "stdout" {
		file, err := os.OpenFile(m.config.Log.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			m.logger = m.logger.Output(file)
		}
	}
}

func (m *Manager) GetLogger() zerolog.Logger {
	return m.logger
}
