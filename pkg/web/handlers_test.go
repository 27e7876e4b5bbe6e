package web_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/conveyor/pkg/history"
	"github.com/dukex/conveyor/pkg/models"
	"github.com/dukex/conveyor/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, history.Store) {
	t.Helper()

	store := history.NewFileStore(t.TempDir())
	handlers := web.NewRunHandlers(store)

	app := fiber.New()
	app.Get("/health", handlers.HealthCheck)

	r := app.Group("/runs")
	r.Get("/", handlers.GetRuns)
	r.Get("/:id", handlers.GetRun)

	return app, store
}

func seedRun(t *testing.T, store history.Store, id string, status models.JobStatus, createdAt time.Time) {
	t.Helper()

	err := store.SaveRun(context.Background(), &history.RunRecord{
		ID:        id,
		Status:    status,
		CreatedAt: createdAt,
		Duration:  2 * time.Second,
		Workflows: []*models.WorkflowResult{
			{
				WorkflowID: "commit",
				Status:     status,
				Jobs: map[string]*models.JobOutcome{
					"test": {JobID: "test", Status: status},
				},
			},
		},
	})
	require.NoError(t, err)
}

func TestRunHandlers_HealthCheck(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunHandlers_GetRuns(t *testing.T) {
	app, store := setupTestApp(t)

	base := time.Now().UTC().Truncate(time.Second)
	seedRun(t, store, "run-old", models.JobStatusFailed, base.Add(-time.Hour))
	seedRun(t, store, "run-new", models.JobStatusSucceeded, base)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Runs       []*history.RunRecord `json:"runs"`
		TotalCount int                  `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 2, payload.TotalCount)
	require.Len(t, payload.Runs, 2)
	assert.Equal(t, "run-new", payload.Runs[0].ID)
	assert.Equal(t, "run-old", payload.Runs[1].ID)
}

func TestRunHandlers_GetRunsEmpty(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var payload struct {
		Runs       []*history.RunRecord `json:"runs"`
		TotalCount int                  `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, 0, payload.TotalCount)
	assert.Empty(t, payload.Runs)
}

func TestRunHandlers_GetRun(t *testing.T) {
	app, store := setupTestApp(t)

	seedRun(t, store, "run-1", models.JobStatusSucceeded, time.Now().UTC().Truncate(time.Second))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/run-1", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var record history.RunRecord

	require.NoError(t, json.Unmarshal(body, &record))
	assert.Equal(t, "run-1", record.ID)
	assert.Equal(t, models.JobStatusSucceeded, record.Status)
	require.Len(t, record.Workflows, 1)
	assert.Equal(t, "commit", record.Workflows[0].WorkflowID)
}

func TestRunHandlers_GetRunNotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/runs/missing", nil))
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var problem struct {
		Type   string `json:"type"`
		Detail string `json:"detail"`
	}

	require.NoError(t, json.Unmarshal(body, &problem))
	assert.Equal(t, "not_found", problem.Type)
	assert.Equal(t, "Run not found", problem.Detail)
}
