package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"video-downloader/internal/config"
	"video-downloader/internal/playliststore"
	"video-downloader/pkg/models"
)

// fakeStore is a minimal models.PlaylistStore used to exercise the HTTP
// boundary without a real registry database.
type fakeStore struct {
	playlists map[int64]*models.Playlist
}

func newFakeStore() *fakeStore {
	return &fakeStore{playlists: map[int64]*models.Playlist{
		1: {ID: 1, URL: "https://example.com/p", Title: "Existing"},
	}}
}

func (s *fakeStore) List() ([]*models.Playlist, error) {
	out := make([]*models.Playlist, 0, len(s.playlists))
	for _, p := range s.playlists {
		out = append(out, p)
	}
	return out, nil
}

func (s *fakeStore) Create(ctx context.Context, url string) (*models.Playlist, error) {
	p := &models.Playlist{ID: 2, URL: url, Title: "New"}
	s.playlists[p.ID] = p
	return p, nil
}

func (s *fakeStore) Get(id int64) (*models.Playlist, error) {
	return s.playlists[id], nil
}

func (s *fakeStore) Update(id int64, updates models.PlaylistUpdate) (*models.Playlist, error) {
	p, ok := s.playlists[id]
	if !ok {
		return nil, playliststore.ErrNotFound
	}
	if updates.Title != nil {
		p.Title = *updates.Title
	}
	return p, nil
}

func (s *fakeStore) Delete(id int64) error {
	if _, ok := s.playlists[id]; !ok {
		return playliststore.ErrNotFound
	}
	delete(s.playlists, id)
	return nil
}

func (s *fakeStore) RefreshStats(ctx context.Context, id int64, force bool) (*models.Playlist, error) {
	p, ok := s.playlists[id]
	if !ok {
		return nil, playliststore.ErrNotFound
	}
	return p, nil
}

func (s *fakeStore) ApplyExclusionFromEngine(id int64, videoID string, errMsg string) error {
	return nil
}

type fakeBus struct{}

func (b *fakeBus) Publish(evt models.Event)                     {}
func (b *fakeBus) Subscribe(filter string) *models.Subscription { return &models.Subscription{C: make(chan models.Event)} }
func (b *fakeBus) Unsubscribe(sub *models.Subscription)         {}
func (b *fakeBus) Drops() int64                                 { return 0 }
func (b *fakeBus) RecordPing(subID string) bool                 { return true }

func newTestServer(t *testing.T) (*Server, *fakeStore) {
	t.Helper()
	cfg := &models.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0

	configMgr := config.NewManager()
	store := newFakeStore()
	srv := NewServer(cfg, configMgr, store, nil, &fakeBus{}, nil, zerolog.Nop())
	return srv, store
}

func doRequest(srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	router := srv.newRouter()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetPlaylistNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/v1/playlists/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetPlaylistFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/api/v1/playlists/1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestCreatePlaylistRequiresURL(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodPost, "/api/v1/playlists", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteUnknownPlaylistReturnsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodDelete, "/api/v1/playlists/42", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := doRequest(srv, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
