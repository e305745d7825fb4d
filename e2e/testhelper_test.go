package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/trailerforge/api/internal/auth"
	"github.com/trailerforge/api/internal/handler"
	"github.com/trailerforge/api/internal/middleware"
	"github.com/trailerforge/api/internal/service"
	"github.com/trailerforge/api/internal/store"
	ws "github.com/trailerforge/api/internal/websocket"
)

const (
	testJWTSecret    = "test-secret-for-e2e"
	testWorkerSecret = "test-worker-secret"
	testUserID       = "test-user-123"
)

// testApp holds all components needed for testing
type testApp struct {
	app *fiber.App
}

// setupApp creates a Fiber app identical to main.go but on the in-memory store
// with no Redis, no object storage and legacy HMAC auth only.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	jobStore := store.NewMemoryStore()
	validate := validator.New()

	hub := ws.NewHub()
	go hub.Run()

	// Services: nil storage triggers mock URL fallbacks
	jobService := service.NewJobService(jobStore, nil)
	claimService := service.NewClaimService(jobStore, 2, 10)
	pipelineService := service.NewPipelineService(jobStore)

	// Handlers
	jobHandler := handler.NewJobHandler(jobService, validate)
	pipelineHandler := handler.NewPipelineHandler(claimService, pipelineService, validate, hub)

	// Middleware: legacy HMAC auth, nil Redis rate limiter (passthrough)
	authMiddleware := middleware.NewLegacyAuthMiddleware(testJWTSecret)
	workerAuth := middleware.WorkerAuthMiddleware(testWorkerSecret)
	rateLimiter := middleware.NewRateLimiter(nil)

	app := fiber.New()

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", authMiddleware.Authenticate())

	jobs := api.Group("/jobs")
	jobs.Post("/", rateLimiter.JobCreateLimit(10000), jobHandler.Create)
	jobs.Post("/upload-url", rateLimiter.JobCreateLimit(10000), jobHandler.UploadURL)
	jobs.Get("/", rateLimiter.ReadLimit(10000), jobHandler.List)
	jobs.Get("/:jobId", rateLimiter.ReadLimit(10000), jobHandler.Get)
	jobs.Post("/:jobId/uploaded", jobHandler.MarkUploaded)
	jobs.Put("/:jobId/profile", jobHandler.SelectProfile)
	jobs.Post("/:jobId/regenerate", rateLimiter.JobCreateLimit(10000), jobHandler.Regenerate)

	workerAPI := app.Group("/worker", workerAuth)
	workerAPI.Get("/capacity", pipelineHandler.Capacity)
	workerAPI.Get("/jobs/claimable", pipelineHandler.Claimable)
	workerAPI.Get("/jobs/:jobId", pipelineHandler.Details)
	workerAPI.Post("/jobs/:jobId/claim", pipelineHandler.Claim)
	workerAPI.Post("/jobs/:jobId/release", pipelineHandler.Release)
	workerAPI.Post("/jobs/:jobId/status", pipelineHandler.UpdateStatus)
	workerAPI.Post("/jobs/:jobId/plans/:kind", pipelineHandler.UpsertPlan)
	workerAPI.Post("/jobs/:jobId/clips", pipelineHandler.CreateClip)
	workerAPI.Post("/jobs/:jobId/complete", pipelineHandler.Complete)
	workerAPI.Post("/jobs/:jobId/fail", pipelineHandler.Fail)

	return &testApp{app: app}
}

// generateToken creates a legacy HMAC JWT token for test requests.
func generateToken(t *testing.T) string {
	t.Helper()
	claims := auth.LegacyClaims{
		UserID: testUserID,
		Email:  "test@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer: "trailerforge-api",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
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

// doUserRequest performs a request authenticated as the test user.
func doUserRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	token := generateToken(t)
	return doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

// doWorkerRequest performs a request authenticated with the worker shared secret.
func doWorkerRequest(t *testing.T, app *fiber.App, method, path, body string) (*http.Response, error) {
	t.Helper()
	return doRequest(app, method, path, body, map[string]string{
		"X-Worker-Secret": testWorkerSecret,
		"X-Worker-Id":     "e2e-worker",
	})
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// createUploadedJob drives a job through create + uploaded via the API and
// returns its ID.
func createUploadedJob(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp, err := doUserRequest(t, app, http.MethodPost, "/api/jobs/", `{"sourceVideoKey":"sources/test-user-123/film.mp4"}`)
	if err != nil {
		t.Fatalf("create request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusCreated)
	job := parseJSON(t, resp)
	jobID, _ := job["id"].(string)
	if jobID == "" {
		t.Fatalf("no job id in response: %v", job)
	}

	resp, err = doUserRequest(t, app, http.MethodPost, "/api/jobs/"+jobID+"/uploaded", "")
	if err != nil {
		t.Fatalf("uploaded request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)

	return jobID
}
