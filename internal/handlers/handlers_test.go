package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camtrap/internal/config"
	"camtrap/internal/gallery"
	"camtrap/internal/linkcache"
	"camtrap/internal/locations"
	"camtrap/internal/models"
	"camtrap/internal/repository"
	"camtrap/internal/security"
	"camtrap/internal/service"
	"camtrap/internal/storage"
	"camtrap/internal/storage/storagetest"
	"camtrap/internal/summary"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var (
	viewer = models.User{ID: "u-viewer", Email: "viewer@camtrap.test", Role: models.UserRoleViewer, Status: models.UserStatusActive}
	admin  = models.User{ID: "u-admin", Email: "admin@camtrap.test", Role: models.UserRoleAdmin, Status: models.UserStatusActive}
)

type stubAuth struct {
	mu       sync.Mutex
	statuses map[string]models.UserStatus
	logouts  int
}

func (s *stubAuth) Authenticate(_ context.Context, token string) (models.User, *security.AccessClaims, error) {
	var user models.User
	switch token {
	case "viewer-token":
		user = viewer
	case "admin-token":
		user = admin
	default:
		return models.User{}, nil, service.ErrInvalidCredentials
	}
	return user, &security.AccessClaims{UserID: user.ID, Role: string(user.Role)}, nil
}

func (s *stubAuth) Register(_ context.Context, input service.RegisterInput) (service.AuthResult, error) {
	if input.Email == "taken@camtrap.test" {
		return service.AuthResult{}, repository.ErrEmailTaken
	}
	return service.AuthResult{
		AccessToken: "new-token",
		User:        models.User{ID: "u-new", Email: input.Email, Role: models.UserRoleViewer, Status: models.UserStatusActive},
	}, nil
}

func (s *stubAuth) Login(_ context.Context, input service.LoginInput) (service.AuthResult, error) {
	if input.Email == viewer.Email && input.Password == "correct-horse" {
		return service.AuthResult{AccessToken: "viewer-token", User: viewer}, nil
	}
	return service.AuthResult{}, service.ErrInvalidCredentials
}

func (s *stubAuth) Logout(_ context.Context, _ *security.AccessClaims) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
	return nil
}

func (s *stubAuth) SetUserStatus(_ context.Context, id string, status models.UserStatus) error {
	if status != models.UserStatusActive && status != models.UserStatusDisabled {
		return service.ErrInvalidInput
	}
	if id == "missing" {
		return repository.ErrUserNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[id] = status
	return nil
}

type stubQueue struct {
	types []string
}

func (q *stubQueue) Enqueue(_ context.Context, taskType string) (string, error) {
	q.types = append(q.types, taskType)
	return "1-0", nil
}

type fixture struct {
	backend *storagetest.Backend
	auth    *stubAuth
	queue   *stubQueue
	links   *linkcache.Memory
	signer  *security.URLSigner
	cfg     *config.AppConfig
	router  *gin.Engine
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Environment: "test",
		Storage:     config.StorageConfig{Backend: config.StorageDropbox},
		Gallery: config.GalleryConfig{
			DefaultCount:     10,
			DefaultDays:      7,
			MaxCount:         50,
			ImageLoadTimeout: time.Second,
		},
		Activity: config.ActivityConfig{High: 10, Medium: 5},
		Map:      config.MapConfig{CenterLat: -33.9249, CenterLng: 18.4241, Zoom: 12},
		Locations: []config.LocationConfig{
			{ID: 1, Name: "Honey Badger Trail", Lat: -33.92, Lng: 18.42, Path: "/honey-badger"},
			{ID: 2, Name: "River Crossing Point", Lat: -33.93, Lng: 18.43, Path: "/location-2"},
			{ID: 3, Name: "Valley Perimeter", Lat: -33.94, Lng: 18.44, Path: "/location-3"},
		},
	}
}

func newFixture(t *testing.T, mutate func(*config.AppConfig, *Dependencies)) *fixture {
	t.Helper()

	cfg := testConfig()
	backend := storagetest.New()
	registry, err := locations.NewRegistry(cfg.Locations)
	require.NoError(t, err)

	links := linkcache.NewMemory(64, time.Hour)
	resolver := linkcache.NewResolver(links, time.Minute, zerolog.Nop())
	cached := linkcache.Wrap(backend, resolver)
	svc := gallery.NewService(cached, 4, zerolog.Nop())

	f := &fixture{
		backend: backend,
		auth:    &stubAuth{statuses: map[string]models.UserStatus{}},
		queue:   &stubQueue{},
		links:   links,
		signer:  security.NewURLSigner("url-secret", time.Hour),
		cfg:     cfg,
	}

	deps := Dependencies{
		Config:    cfg,
		Logger:    zerolog.Nop(),
		Auth:      f.auth,
		Locations: registry,
		Gallery:   svc,
		Summaries: summary.NewAggregator(svc, cfg.Summary, zerolog.Nop()),
		Links:     cached,
		LinkCache: links,
		Queue:     f.queue,
		Signer:    f.signer,
		HealthChecks: map[string]func(context.Context) error{
			"redis": func(context.Context) error { return nil },
		},
	}
	if mutate != nil {
		mutate(cfg, &deps)
	}

	router := gin.New()
	NewHandlerSet(deps).Register(router.Group("/api"))
	f.router = router
	return f
}

func (f *fixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, func(_ *config.AppConfig, deps *Dependencies) {
		deps.HealthChecks["postgres"] = func(context.Context) error { return errors.New("down") }
	})

	w := f.do(http.MethodGet, "/api/healthz", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"redis": "ok", "postgres": "error"}, body["checks"])
	assert.Equal(t, "dropbox", body["storage"])
}

func TestAuthRoutes(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"viewer@camtrap.test","password":"correct-horse"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "viewer-token", decode(t, w)["accessToken"])

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"viewer@camtrap.test","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/login", "", `{"email":"not-an-email"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/register", "", `{"email":"new@camtrap.test","password":"long-enough"}`)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = f.do(http.MethodPost, "/api/v1/auth/register", "", `{"email":"taken@camtrap.test","password":"long-enough"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodGet, "/api/v1/auth/me", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u-viewer", decode(t, w)["user"].(map[string]any)["id"])

	w = f.do(http.MethodPost, "/api/v1/auth/logout", "viewer-token", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, f.auth.logouts)

	w = f.do(http.MethodGet, "/api/v1/auth/me", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMonitoringRoutesRequireToken(t *testing.T) {
	f := newFixture(t, nil)

	for _, target := range []string{"/api/v1/locations", "/api/v1/map", "/api/v1/gallery/options", "/api/v1/locations/1/images"} {
		w := f.do(http.MethodGet, target, "", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, target)
	}
}

func TestLocations(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/locations", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["locations"], 3)

	w = f.do(http.MethodGet, "/api/v1/locations/2", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "River Crossing Point", decode(t, w)["location"].(map[string]any)["name"])

	for _, id := range []string{"9", "abc"} {
		w = f.do(http.MethodGet, "/api/v1/locations/"+id, "viewer-token", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error":"Location not found"}`, w.Body.String())
	}
}

func TestLocationImages(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	f.backend.AddFile("/honey-badger", "old.jpg", now.Add(-72*time.Hour))
	f.backend.AddFile("/honey-badger", "new.jpg", now.Add(-time.Hour))
	f.backend.AddFile("/honey-badger", "notes.txt", now)
	f.backend.AddFile("/honey-badger", "ancient.png", now.Add(-30*24*time.Hour))

	w := f.do(http.MethodGet, "/api/v1/locations/1/images?count=5&days=7", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)

	images := body["images"].([]any)
	require.Len(t, images, 2)
	first := images[0].(map[string]any)
	assert.Equal(t, "new.jpg", first["name"])
	assert.Equal(t, "https://links.test/tl/honey-badger/new.jpg", first["url"])
	assert.True(t, strings.HasPrefix(first["proxyUrl"].(string), mediaRawPath+"?"))
	assert.Equal(t, "old.jpg", images[1].(map[string]any)["name"])
	assert.Equal(t, "low", body["activity"])
	assert.Equal(t, map[string]any{"count": float64(5), "days": float64(7)}, body["query"])
	assert.Equal(t, 2, f.links.Len(), "links are cached")
}

func TestLocationImagesDefaultsAndValidation(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.AddFolder("/honey-badger")

	w := f.do(http.MethodGet, "/api/v1/locations/1/images", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Empty(t, body["images"])
	assert.Equal(t, map[string]any{"count": float64(10), "days": float64(7)}, body["query"])

	for _, q := range []string{"count=0", "count=51", "count=x", "days=0", "days=366"} {
		w = f.do(http.MethodGet, "/api/v1/locations/1/images?"+q, "viewer-token", "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestLocationImagesErrors(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/locations/7/images", "viewer-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Location not found"}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/v1/locations/2/images", "viewer-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Monitoring location folder not found: /location-2"}`, w.Body.String())

	f.backend.AddFolder("/location-3")
	f.backend.FailList("/location-3", &storage.BackendError{Op: "list_folder", Path: "/location-3", StatusCode: 429, Message: "too_many_requests"})
	w = f.do(http.MethodGet, "/api/v1/locations/3/images", "viewer-token", "")
	assert.Equal(t, http.StatusNotFound, w.Code, "a failed existence check reads as a missing folder")
}

func TestLocationImagesBackendError(t *testing.T) {
	f := newFixture(t, func(_ *config.AppConfig, deps *Dependencies) {
		deps.Gallery = failingGallery{err: &storage.BackendError{Op: "list_folder", Path: "/honey-badger", StatusCode: 500, Message: "internal"}}
	})

	w := f.do(http.MethodGet, "/api/v1/locations/1/images", "viewer-token", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "internal")
}

type failingGallery struct {
	err error
}

func (g failingGallery) ListRecentImages(context.Context, string, int, int) ([]models.ResolvedImage, error) {
	return nil, g.err
}

func (g failingGallery) FolderExists(context.Context, string) bool {
	return true
}

func TestLocationImagesSupersededRequest(t *testing.T) {
	f := newFixture(t, nil)
	f.backend.AddFile("/honey-badger", "a.jpg", time.Now().Add(-time.Hour))
	f.backend.SetLinkDelay(300 * time.Millisecond)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- f.do(http.MethodGet, "/api/v1/locations/1/images", "viewer-token", "")
	}()

	assert.Eventually(t, func() bool {
		return f.backend.LinkCalls("/honey-badger/a.jpg") > 0
	}, 2*time.Second, 5*time.Millisecond)

	second := f.do(http.MethodGet, "/api/v1/locations/1/images", "viewer-token", "")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Len(t, decode(t, second)["images"], 1)

	w := <-first
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["superseded"])
	assert.Empty(t, body["images"])
}

func TestMapAndSummaries(t *testing.T) {
	f := newFixture(t, nil)
	now := time.Now()
	for i := 0; i < 6; i++ {
		f.backend.AddFile("/honey-badger", "img"+string(rune('a'+i))+".jpg", now.Add(-time.Duration(i+1)*time.Hour))
	}
	f.backend.AddFile("/location-2", "one.jpg", now.Add(-time.Hour))

	w := f.do(http.MethodGet, "/api/v1/locations/summary", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	summaries := decode(t, w)["summaries"].(map[string]any)
	assert.Len(t, summaries, 3)
	assert.Equal(t, float64(6), summaries["1"].(map[string]any)["recentImages"])
	assert.Nil(t, summaries["3"].(map[string]any)["lastActivity"])

	w = f.do(http.MethodGet, "/api/v1/map", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, []any{-33.9249, 18.4241}, body["center"])
	assert.Equal(t, float64(12), body["zoom"])
	assert.Equal(t, map[string]any{"high": float64(0), "medium": float64(1), "low": float64(2)}, body["activity"])

	locs := body["locations"].([]any)
	require.Len(t, locs, 3)
	assert.Equal(t, "medium", locs[0].(map[string]any)["activity"])
	assert.Equal(t, "6 recent detections", locs[0].(map[string]any)["label"])
	assert.Equal(t, "1 recent detection", locs[1].(map[string]any)["label"])
}

func TestGalleryOptions(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/v1/gallery/options", "viewer-token", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Len(t, body["dateRanges"], 4)
	assert.Equal(t, "Last 24 hours", body["dateRanges"].([]any)[0].(map[string]any)["label"])
	assert.Equal(t, []any{float64(5), float64(10), float64(20), float64(50)}, body["imageCounts"])
	assert.Equal(t, map[string]any{"count": float64(10), "days": float64(7)}, body["defaults"])
}

var pngBytes = append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 32)...)

type staticLinks struct {
	url string
	err error
}

func (s staticLinks) GetTemporaryLink(context.Context, string) (models.TemporaryLink, error) {
	return models.TemporaryLink{URL: s.url, ExpiresAt: time.Now().Add(time.Hour)}, s.err
}

func TestMediaRaw(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/png":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngBytes)
		case "/text":
			_, _ = w.Write([]byte("hello, not an image"))
		case "/slow":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		case "/gone":
			w.WriteHeader(http.StatusGone)
		}
	}))
	defer upstream.Close()

	cases := []struct {
		name   string
		links  staticLinks
		status int
	}{
		{name: "image", links: staticLinks{url: upstream.URL + "/png"}, status: http.StatusOK},
		{name: "not an image", links: staticLinks{url: upstream.URL + "/text"}, status: http.StatusUnsupportedMediaType},
		{name: "timeout", links: staticLinks{url: upstream.URL + "/slow"}, status: http.StatusGatewayTimeout},
		{name: "upstream status", links: staticLinks{url: upstream.URL + "/gone"}, status: http.StatusBadGateway},
		{name: "missing file", links: staticLinks{err: &storage.NotFoundError{Path: "/honey-badger/a.jpg"}}, status: http.StatusNotFound},
		{name: "backend failure", links: staticLinks{err: &storage.BackendError{Op: "get_temporary_link", Message: "boom"}}, status: http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, func(cfg *config.AppConfig, deps *Dependencies) {
				cfg.Gallery.ImageLoadTimeout = 100 * time.Millisecond
				deps.Links = tc.links
				deps.HTTPClient = upstream.Client()
			})

			w := f.do(http.MethodGet, f.signer.URL(mediaRawPath, "/honey-badger/a.jpg"), "", "")
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
				assert.Equal(t, pngBytes, w.Body.Bytes())
			}
		})
	}
}

func TestMediaRawRejectsBadSignature(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, mediaRawPath+"?path=/honey-badger/a.jpg", "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	signed := f.signer.URL(mediaRawPath, "/honey-badger/a.jpg")
	tampered := strings.Replace(signed, "a.jpg", "b.jpg", 1)
	w = f.do(http.MethodGet, tampered, "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_signature")
}

func TestAdminRoutes(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.links.Set(context.Background(), "/a.jpg", models.TemporaryLink{URL: "u", ExpiresAt: time.Now().Add(time.Hour)}))

	w := f.do(http.MethodPost, "/api/v1/admin/links/purge", "viewer-token", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, 1, f.links.Len())

	w = f.do(http.MethodPost, "/api/v1/admin/links/purge", "admin-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"purged":true,"taskId":"1-0"}`, w.Body.String())
	assert.Equal(t, 0, f.links.Len())
	assert.Equal(t, []string{"purge-links"}, f.queue.types)

	w = f.do(http.MethodPost, "/api/v1/admin/summaries/warm", "admin-token", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"purge-links", "warm-summaries"}, f.queue.types)

	w = f.do(http.MethodPut, "/api/v1/admin/users/u-viewer/status", "admin-token", `{"status":"disabled"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.UserStatusDisabled, f.auth.statuses["u-viewer"])

	w = f.do(http.MethodPut, "/api/v1/admin/users/u-viewer/status", "admin-token", `{"status":"banished"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/api/v1/admin/users/missing/status", "admin-token", `{"status":"active"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminPurgeSharedCacheSkipsWorker(t *testing.T) {
	f := newFixture(t, func(cfg *config.AppConfig, _ *Dependencies) {
		cfg.LinkCache.Backend = config.LinkCacheRedis
	})

	w := f.do(http.MethodPost, "/api/v1/admin/links/purge", "admin-token", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"purged":true}`, w.Body.String())
	assert.Empty(t, f.queue.types)
}

func TestAdminWarmWithoutQueue(t *testing.T) {
	f := newFixture(t, func(_ *config.AppConfig, deps *Dependencies) {
		deps.Queue = nil
	})

	w := f.do(http.MethodPost, "/api/v1/admin/summaries/warm", "admin-token", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
