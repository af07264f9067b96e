package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/lofitape/api/internal/auth"
	"github.com/lofitape/api/internal/client"
	"github.com/lofitape/api/internal/config"
	"github.com/lofitape/api/internal/handler"
	"github.com/lofitape/api/internal/media"
	"github.com/lofitape/api/internal/middleware"
	"github.com/lofitape/api/internal/pipeline"
	"github.com/lofitape/api/internal/preset"
	"github.com/lofitape/api/internal/queue"
	"github.com/lofitape/api/internal/service"
	"github.com/lofitape/api/internal/source"
	"github.com/lofitape/api/internal/store"
	"github.com/lofitape/api/internal/worker"
	ws "github.com/lofitape/api/internal/websocket"
)

const testJWTSecret = "test-secret-for-e2e"

// stubRunner stands in for ffmpeg: it writes output files and reports
// healthy loudness so jobs run the full pipeline in-process.
type stubRunner struct{}

func (stubRunner) Transform(_ context.Context, _, output string, _ preset.Config) error {
	return os.WriteFile(output, []byte("wav"), 0o644)
}

func (stubRunner) MeasureMeanVolume(_ context.Context, _ string) (float64, error) {
	return -14, nil
}

func (stubRunner) Boost(_ context.Context, _, output string, _ float64) error {
	return os.WriteFile(output, []byte("boosted"), 0o644)
}

func (stubRunner) MixTextures(_ context.Context, _ string, _ []media.Texture, _ float64, output string) error {
	return os.WriteFile(output, []byte("mixed"), 0o644)
}

func (stubRunner) EncodeMP3(_ context.Context, _, output string) error {
	return os.WriteFile(output, []byte("mp3"), 0o644)
}

// stubFetcher stands in for yt-dlp.
type stubFetcher struct {
	duration time.Duration
	err      error
}

func (f stubFetcher) ProbeDuration(_ context.Context, _ string) (time.Duration, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.duration, nil
}

func (f stubFetcher) Download(_ context.Context, _, outPath string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outPath, []byte("downloaded"), 0o644)
}

// testApp is a fully wired in-process instance: memory store and queue,
// local artifact storage, stubbed external tools.
type testApp struct {
	app       *fiber.App
	uploadDir string
}

func setupApp(t *testing.T) *testApp {
	t.Helper()

	workerCfg := config.WorkerConfig{
		Concurrency: 2,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		JobTimeout:  5 * time.Second,
	}
	pipelineCfg := config.PipelineConfig{
		StageTimeout:     2 * time.Second,
		EncodeTimeout:    2 * time.Second,
		SilenceThreshold: -20,
		FinalGuard:       -30,
		TextureDir:       t.TempDir(),
		SampleRate:       44100,
		Channels:         2,
	}
	sourceCfg := config.SourceConfig{
		MaxDuration:     10 * time.Minute,
		DownloadTimeout: 2 * time.Second,
		MaxRetries:      1,
		RetryBase:       time.Millisecond,
	}

	jobStore := store.NewMemoryStore(0)
	t.Cleanup(jobStore.Close)

	scheduler := queue.NewMemoryScheduler(workerCfg)
	t.Cleanup(scheduler.Shutdown)

	storage, err := client.NewLocalClient(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}

	acquirer := source.NewWithFetchers(sourceCfg, stubFetcher{duration: 3 * time.Minute}, nil)
	pipe := pipeline.New(pipelineCfg, stubRunner{}, acquirer, storage, t.TempDir())

	hub := ws.NewHub()
	go hub.Run()

	convertWorker := worker.NewConvertWorker(jobStore, pipe, hub, workerCfg)
	go func() { _ = scheduler.Start(convertWorker.HandleAttempt) }()

	uploadDir := t.TempDir()
	jobService := service.NewJobService(jobStore, scheduler, uploadDir)
	validate := validator.New()
	jobHandler := handler.NewJobHandler(jobService, validate)
	downloadHandler := handler.NewDownloadHandler(jobService, storage)

	authMiddleware := middleware.NewAuthMiddleware(testJWTSecret)
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New(fiber.Config{BodyLimit: service.MaxUploadBytes})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())
	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.JobsLimit(10000), jobHandler.Create)
	jobs.Get("/:jobId", jobHandler.Status)
	api.Get("/download/:jobId/:format", downloadHandler.Download)

	return &testApp{app: app, uploadDir: uploadDir}
}

func generateToken(t *testing.T) string {
	t.Helper()
	token, err := auth.IssueToken("test-user-123", "test@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

func doRequest(app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t),
	})
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// pollUntilTerminal polls the status endpoint until the job settles.
func pollUntilTerminal(t *testing.T, ta *testApp, jobID string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := doAuthRequest(t, ta.app, http.MethodGet, "/api/jobs/"+jobID, "")
		if err != nil {
			t.Fatalf("status request failed: %v", err)
		}
		result := parseJSON(t, resp)
		if status, _ := result["status"].(string); status == "completed" || status == "failed" {
			return result
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}

// stageWav writes a minimal WAV file and returns a multipart body/content
// type pair for uploading it.
func multipartWav(t *testing.T, preset string) (string, string) {
	t.Helper()
	wav := append([]byte("RIFF\x24\x00\x00\x00WAVEfmt "), make([]byte, 32)...)

	var sb strings.Builder
	boundary := "e2eboundary"
	sb.WriteString("--" + boundary + "\r\n")
	if preset != "" {
		sb.WriteString(`Content-Disposition: form-data; name="preset"` + "\r\n\r\n")
		sb.WriteString(preset + "\r\n")
		sb.WriteString("--" + boundary + "\r\n")
	}
	sb.WriteString(`Content-Disposition: form-data; name="file"; filename="track.wav"` + "\r\n")
	sb.WriteString("Content-Type: audio/wav\r\n\r\n")
	sb.Write(wav)
	sb.WriteString("\r\n--" + boundary + "--\r\n")

	return sb.String(), fmt.Sprintf("multipart/form-data; boundary=%s", boundary)
}
