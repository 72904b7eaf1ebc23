// Package server implements the HTTP/WebSocket boundary (C12): the gin
// router exposing playlists, jobs, config, the live event stream, health
// and metrics. Grounded on the teacher's gin.New()+middleware+graceful
// shutdown shape in internal/server/server.go, generalized from the
// teacher's auth/rate-limited video-download routes to this module's
// playlist/job control-plane routes. No engine or Job Manager error is
// ever translated to a status code outside this package (§6).
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"video-downloader/internal/apierror"
	"video-downloader/internal/config"
	"video-downloader/internal/jobs"
	"video-downloader/internal/monitor"
	"video-downloader/internal/playliststore"
	"video-downloader/pkg/models"
)

// Server wires the control-plane HTTP API over a PlaylistStore, a Job
// Manager and an EventBus.
type Server struct {
	cfg        *models.Config
	configMgr  *config.Manager
	playlists  models.PlaylistStore
	jobs       *jobs.Manager
	bus        models.EventBus
	monitor    *monitor.Monitor
	httpServer *http.Server
	logger     zerolog.Logger
}

// NewServer wires the Server from its already-constructed dependencies.
// Construction of the PlaylistStore, Job Manager and EventBus belongs to
// cmd/server/main.go, not here, so this package stays independently
// testable with fakes.
func NewServer(cfg *models.Config, configMgr *config.Manager, playlists models.PlaylistStore, jobMgr *jobs.Manager, bus models.EventBus, mon *monitor.Monitor, logger zerolog.Logger) *Server {
	if cfg.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		cfg:       cfg,
		configMgr: configMgr,
		playlists: playlists,
		jobs:      jobMgr,
		bus:       bus,
		monitor:   mon,
		logger:    logger,
	}
}

// newRouter builds the gin.Engine with every middleware and route wired,
// without binding a listener, so tests can drive it through httptest.
func (s *Server) newRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(s.corsMiddleware())

	s.setupRoutes(router)
	return router
}

// Start begins serving on cfg.Server.Host:Port without blocking.
func (s *Server) Start() error {
	router := s.newRouter()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler: router,
	}

	go func() {
		s.logger.Info().Str("address", s.httpServer.Addr).Msg("starting API server")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Fatal().Err(err).Msg("error starting server")
		}
	}()

	if s.monitor != nil {
		s.monitor.Start()
	}

	if sweeper, ok := s.bus.(interface{ Start() }); ok {
		sweeper.Start()
	}

	return nil
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	s.logger.Info().Msg("stopping API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.monitor != nil {
		s.monitor.Stop()
	}

	if sweeper, ok := s.bus.(interface{ Stop() }); ok {
		sweeper.Stop()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("error shutting down server")
		return err
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// Run starts the server and blocks until SIGINT/SIGTERM, then shuts down.
func (s *Server) Run() error {
	if err := s.Start(); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	return s.Stop()
}

func (s *Server) setupRoutes(router *gin.Engine) {
	router.GET("/health", s.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		playlists := v1.Group("/playlists")
		{
			playlists.GET("", s.listPlaylists)
			playlists.POST("", s.createPlaylist)
			playlists.GET("/:id", s.getPlaylist)
			playlists.PUT("/:id", s.updatePlaylist)
			playlists.DELETE("/:id", s.deletePlaylist)
			playlists.POST("/:id/refresh", s.refreshPlaylist)
		}

		jobsGroup := v1.Group("/jobs")
		{
			jobsGroup.POST("", s.createJob)
			jobsGroup.GET("", s.listJobs)
			jobsGroup.GET("/:id", s.getJob)
			jobsGroup.POST("/:id/cancel", s.cancelJob)
			jobsGroup.GET("/:id/logs", s.jobLogs)
		}

		v1.GET("/config", s.getConfig)
		v1.PUT("/config", s.updateConfig)

		v1.GET("/events", s.streamEvents)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	body := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	}
	if s.monitor != nil {
		for k, v := range s.monitor.HealthCheck() {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

// -- playlists ---------------------------------------------------------

func (s *Server) listPlaylists(c *gin.Context) {
	list, err := s.playlists.List()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"playlists": list})
}

func (s *Server) createPlaylist(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.BadRequestf("%v", err))
		return
	}

	p, err := s.playlists.Create(c.Request.Context(), req.URL)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (s *Server) getPlaylist(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	p, err := s.playlists.Get(id)
	if err != nil {
		respondError(c, err)
		return
	}
	if p == nil {
		respondError(c, apierror.NotFoundf("playlist %d not found", id))
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) updatePlaylist(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req struct {
		Title       *string  `json:"title"`
		ExcludedIDs []string `json:"excluded_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.BadRequestf("%v", err))
		return
	}

	p, err := s.playlists.Update(id, models.PlaylistUpdate{Title: req.Title, ExcludedIDs: req.ExcludedIDs})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) deletePlaylist(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := s.playlists.Delete(id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "playlist deleted"})
}

func (s *Server) refreshPlaylist(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		respondError(c, err)
		return
	}
	force := c.Query("force") == "true"

	p, err := s.playlists.RefreshStats(c.Request.Context(), id, force)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// -- jobs ----------------------------------------------------------------

func (s *Server) createJob(c *gin.Context) {
	var req struct {
		PlaylistID   int64  `json:"playlist_id" binding:"required"`
		Kind         string `json:"kind" binding:"required"`
		ForceRefresh bool   `json:"force_refresh"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, apierror.BadRequestf("%v", err))
		return
	}

	job, err := s.jobs.Create(c.Request.Context(), req.PlaylistID, models.JobKind(req.Kind), req.ForceRefresh)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

func (s *Server) listJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"jobs": s.jobs.List()})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.jobs.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *Server) cancelJob(c *gin.Context) {
	if err := s.jobs.Cancel(c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "job cancellation requested"})
}

func (s *Server) jobLogs(c *gin.Context) {
	n := 0
	if lines := c.Query("lines"); lines != "" {
		if parsed, err := strconv.Atoi(lines); err == nil {
			n = parsed
		}
	}
	logLines, err := s.jobs.Logs(c.Param("id"), n)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"lines": logLines})
}

// -- config ----------------------------------------------------------------

func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, s.configMgr.GetConfig())
}

func (s *Server) updateConfig(c *gin.Context) {
	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		respondError(c, apierror.BadRequestf("%v", err))
		return
	}

	cfg, err := s.configMgr.UpdateConfig(updates)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// -- events ----------------------------------------------------------------

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamEvents upgrades to a WebSocket and forwards every event matching
// the requested filter (§4.11/§6). A client message of any payload is
// treated as a keepalive ping and answered with {type:"pong"}.
func (s *Server) streamEvents(c *gin.Context) {
	filter := c.Query("filter")
	if filter == "" {
		filter = "all"
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(filter)
	defer s.bus.Unsubscribe(sub)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			s.bus.RecordPing(sub.ID)
			if err := conn.WriteJSON(models.Event{Type: models.EventPong}); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case evt, ok := <-sub.C:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// -- middleware / helpers ---------------------------------------------------

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func parseID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, apierror.BadRequestf("invalid id %q", c.Param("id"))
	}
	return id, nil
}

// respondError translates an error into the typed apierror.Error the
// boundary contract promises (§6/§7), writing the matching HTTP status.
func respondError(c *gin.Context, err error) {
	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Code.HTTPStatus(), apiErr)
		return
	}

	switch {
	case errors.Is(err, playliststore.ErrNotFound),
		errors.Is(err, jobs.ErrPlaylistNotFound),
		errors.Is(err, jobs.ErrJobNotFound):
		apiErr = apierror.NotFoundf("%v", err)
	case errors.Is(err, jobs.ErrConflict):
		apiErr = apierror.Conflictf("%v", err)
	case errors.Is(err, jobs.ErrInvalidKind):
		apiErr = apierror.BadRequestf("%v", err)
	default:
		apiErr = apierror.Internalf("%v", err)
	}
	c.JSON(apiErr.Code.HTTPStatus(), apiErr)
}
