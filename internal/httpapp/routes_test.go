package httpapp

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ytgrab/ytgrab/internal/cleanup"
	"github.com/ytgrab/ytgrab/internal/config"
	"github.com/ytgrab/ytgrab/internal/domain"
	"github.com/ytgrab/ytgrab/internal/engine"
	"github.com/ytgrab/ytgrab/internal/pool"
	"github.com/ytgrab/ytgrab/internal/ratelimit"
	"github.com/ytgrab/ytgrab/internal/registry"
)

type stubEngine struct {
	probeErr error
}

func (s *stubEngine) Probe(ctx context.Context, url, cookies string) (*domain.VideoInfo, error) {
	if s.probeErr != nil {
		return nil, s.probeErr
	}
	return &domain.VideoInfo{ID: "abc", Title: "Stub Video"}, nil
}

func (s *stubEngine) Fetch(ctx context.Context, req engine.FetchRequest) (*engine.FetchResult, error) {
	<-ctx.Done()
	return nil, &engine.Error{Kind: domain.ErrorKindCancelled, Message: "cancelled"}
}

type testApp struct {
	router  chi.Router
	reg     *registry.Registry
	cfg     *config.Config
	limiter *ratelimit.Limiter
}

func newTestApp(t *testing.T, eng engine.Engine) *testApp {
	t.Helper()
	cfg := &config.Config{
		DownloadsDir:    t.TempDir(),
		MaxConcurrent:   2,
		CleanupInterval: time.Hour,
		Retention:       24 * time.Hour,
		CancelGrace:     time.Second,
	}
	reg := registry.New()
	limiter := ratelimit.New(100, time.Minute)
	// The pool is deliberately not started; dispatch timing belongs to the
	// pool tests, the handlers only need admission and cancellation.
	p := pool.New(reg, eng, nil, cfg, nil)
	cleaner := cleanup.New(reg, nil, limiter, cfg, nil)

	h := NewHandler(reg, p, eng, limiter, nil, cleaner, cfg, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	return &testApp{router: r, reg: reg, cfg: cfg, limiter: limiter}
}

func (a *testApp) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "10.0.0.1:54321"
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	var envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("Malformed envelope: %v (%s)", err, rec.Body.String())
	}
	if !envelope.Success {
		t.Fatalf("Expected success envelope, got %s", rec.Body.String())
	}
	if dst != nil {
		if err := json.Unmarshal(envelope.Data, dst); err != nil {
			t.Fatalf("Malformed data: %v", err)
		}
	}
}

func TestHealth(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	rec := app.do(t, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var health healthResponse
	decodeData(t, rec, &health)
	if health.Status != "ok" {
		t.Errorf("Status field = %q, want ok", health.Status)
	}
}

func TestVideoInfo(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	rec := app.do(t, http.MethodPost, "/api/video-info", videoInfoRequest{URL: "https://youtu.be/abc"})
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var info domain.VideoInfo
	decodeData(t, rec, &info)
	if info.Title != "Stub Video" {
		t.Errorf("Title = %q, want Stub Video", info.Title)
	}
}

func TestVideoInfoRejectsBadURL(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	for _, url := range []string{"", "not-a-url", "https://example.com/x"} {
		rec := app.do(t, http.MethodPost, "/api/video-info", videoInfoRequest{URL: url})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("URL %q: status = %d, want 400", url, rec.Code)
		}
	}
}

func TestStartDownload(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	rec := app.do(t, http.MethodPost, "/api/download", downloadRequest{URL: "https://youtu.be/abc"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("Status = %d, want 202 (%s)", rec.Code, rec.Body.String())
	}

	var accepted downloadAccepted
	decodeData(t, rec, &accepted)
	if accepted.JobID == "" {
		t.Fatal("Expected a job_id")
	}

	job, err := app.reg.Get(accepted.JobID)
	if err != nil {
		t.Fatalf("Job not in registry: %v", err)
	}
	if job.State != domain.JobStateQueued {
		t.Errorf("State = %s, want queued", job.State)
	}
	if job.Request.Quality != "best" || job.Request.FormatType != "mp4" {
		t.Errorf("Defaults not applied: %+v", job.Request)
	}
	if job.Owner != "10.0.0.1" {
		t.Errorf("Owner = %q, want client address", job.Owner)
	}
}

func TestStartDownloadRejectsBadFormat(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	rec := app.do(t, http.MethodPost, "/api/download", downloadRequest{
		URL:        "https://youtu.be/abc",
		FormatType: "avi",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status = %d, want 400", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := &config.Config{
		DownloadsDir:    t.TempDir(),
		MaxConcurrent:   2,
		CleanupInterval: time.Hour,
		Retention:       24 * time.Hour,
		CancelGrace:     time.Second,
	}
	reg := registry.New()
	limiter := ratelimit.New(2, time.Minute)
	p := pool.New(reg, &stubEngine{}, nil, cfg, nil)
	h := NewHandler(reg, p, &stubEngine{}, limiter, nil, cleanup.New(reg, nil, limiter, cfg, nil), cfg, nil)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	app := &testApp{router: r, reg: reg, cfg: cfg, limiter: limiter}

	body := downloadRequest{URL: "https://youtu.be/abc"}
	for i := 0; i < 2; i++ {
		if rec := app.do(t, http.MethodPost, "/api/download", body); rec.Code != http.StatusAccepted {
			t.Fatalf("Request %d: status = %d, want 202", i+1, rec.Code)
		}
	}
	if rec := app.do(t, http.MethodPost, "/api/download", body); rec.Code != http.StatusTooManyRequests {
		t.Errorf("Third request: status = %d, want 429", rec.Code)
	}
}

func TestJobStatus(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	job := app.reg.Create(domain.DownloadRequest{URL: "https://youtu.be/abc", FormatType: "mp4"}, "test")

	rec := app.do(t, http.MethodGet, "/api/download/"+job.ID+"/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var got domain.Job
	decodeData(t, rec, &got)
	if got.ID != job.ID || got.State != domain.JobStateQueued {
		t.Errorf("Got %s/%s, want %s/queued", got.ID, got.State, job.ID)
	}

	if rec := app.do(t, http.MethodGet, "/api/download/nope/status", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown job: status = %d, want 404", rec.Code)
	}
}

func TestCancelQueued(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	job := app.reg.Create(domain.DownloadRequest{URL: "https://youtu.be/abc", FormatType: "mp4"}, "test")

	rec := app.do(t, http.MethodPost, "/api/download/"+job.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var resp cancelResponse
	decodeData(t, rec, &resp)
	if resp.State != string(domain.JobStateCancelled) {
		t.Errorf("State = %q, want cancelled", resp.State)
	}

	// Cancel is idempotent.
	rec = app.do(t, http.MethodPost, "/api/download/"+job.ID+"/cancel", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("Second cancel: status = %d, want 200", rec.Code)
	}

	if rec := app.do(t, http.MethodPost, "/api/download/nope/cancel", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown job: status = %d, want 404", rec.Code)
	}
}

func TestDownloadFile(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	// Not found.
	if rec := app.do(t, http.MethodGet, "/api/download/nope/file", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Unknown job: status = %d, want 404", rec.Code)
	}

	// Not completed yet.
	job := app.reg.Create(domain.DownloadRequest{URL: "https://youtu.be/abc", FormatType: "mp4"}, "test")
	if rec := app.do(t, http.MethodGet, "/api/download/"+job.ID+"/file", nil); rec.Code != http.StatusConflict {
		t.Errorf("Queued job: status = %d, want 409", rec.Code)
	}

	// Completed with a real file.
	file := filepath.Join(app.cfg.DownloadsDir, "clip.mp4")
	if err := os.WriteFile(file, []byte("video-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := app.reg.Transition(job.ID, domain.JobStateRunning, nil); err != nil {
		t.Fatal(err)
	}
	if err := app.reg.Transition(job.ID, domain.JobStateCompleted, &domain.Result{FilePath: file, FileSize: 11}); err != nil {
		t.Fatal(err)
	}

	rec := app.do(t, http.MethodGet, "/api/download/"+job.ID+"/file", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}
	if got := rec.Body.String(); got != "video-bytes" {
		t.Errorf("Body = %q, want file contents", got)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Error("Expected attachment disposition")
	}

	// Completed but the artifact was cleaned up.
	if err := os.Remove(file); err != nil {
		t.Fatal(err)
	}
	if rec := app.do(t, http.MethodGet, "/api/download/"+job.ID+"/file", nil); rec.Code != http.StatusNotFound {
		t.Errorf("Removed artifact: status = %d, want 404", rec.Code)
	}
}

func TestListDownloads(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	app.reg.Create(domain.DownloadRequest{URL: "https://youtu.be/a", FormatType: "mp4"}, "test")
	app.reg.Create(domain.DownloadRequest{URL: "https://youtu.be/b", FormatType: "mp4"}, "test")

	rec := app.do(t, http.MethodGet, "/api/downloads", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var jobs []*domain.Job
	decodeData(t, rec, &jobs)
	if len(jobs) != 2 {
		t.Errorf("Got %d jobs, want 2", len(jobs))
	}
}

func TestListHistoryWithoutStore(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	rec := app.do(t, http.MethodGet, "/api/downloads/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	if rec := app.do(t, http.MethodGet, "/api/downloads/history?limit=0", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=0: status = %d, want 400", rec.Code)
	}
	if rec := app.do(t, http.MethodGet, "/api/downloads/history?limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("limit=abc: status = %d, want 400", rec.Code)
	}
}

func TestCleanupEndpoint(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	rec := app.do(t, http.MethodPost, "/api/cleanup", cleanupRequest{Hours: 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200 (%s)", rec.Code, rec.Body.String())
	}

	var resp cleanupResponse
	decodeData(t, rec, &resp)
	if resp.Removed != 0 {
		t.Errorf("Removed = %d, want 0 on empty registry", resp.Removed)
	}
}

func TestSystemInfo(t *testing.T) {
	app := newTestApp(t, &stubEngine{})

	rec := app.do(t, http.MethodGet, "/api/system/info", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Status = %d, want 200", rec.Code)
	}

	var info systemInfoResponse
	decodeData(t, rec, &info)
	if info.DownloadsDir != app.cfg.DownloadsDir {
		t.Errorf("DownloadsDir = %q, want %q", info.DownloadsDir, app.cfg.DownloadsDir)
	}
	if info.MaxConcurrent != 2 {
		t.Errorf("MaxConcurrent = %d, want 2", info.MaxConcurrent)
	}
}
