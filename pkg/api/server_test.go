package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmuse/pixelmuse/pkg/config"
	"github.com/pixelmuse/pixelmuse/pkg/engine"
	"github.com/pixelmuse/pixelmuse/pkg/models"
	"github.com/pixelmuse/pixelmuse/pkg/nodes"
	"github.com/pixelmuse/pixelmuse/pkg/scheduler"
	"github.com/pixelmuse/pixelmuse/pkg/services"
	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

type stubProvider struct{}

func (stubProvider) GenerateImages(ctx context.Context, req nodes.ImageRequest) ([]string, error) {
	return []string{"https://cdn.example/img.png"}, nil
}

func (stubProvider) GenerateVideo(ctx context.Context, req nodes.VideoRequest) (string, error) {
	return "https://cdn.example/v.mp4", nil
}

func (stubProvider) GenerateText(ctx context.Context, prompt string) (string, error) {
	return "a generated prompt", nil
}

type stubAssets struct{}

func (stubAssets) CharacterReferenceURLs(ctx context.Context, userID, characterID string) ([]string, error) {
	return []string{"https://cdn.example/ref.png"}, nil
}

func (stubAssets) SaveToGallery(ctx context.Context, userID, imageURL, folder string, tags []string) (string, error) {
	return "asset-1", nil
}

type apiFixture struct {
	server *Server
	store  storage.Provider
	engine *engine.Engine
	userID string
	token  string
}

func newAPIFixture(t *testing.T, credits int) *apiFixture {
	t.Helper()

	store := storage.NewMemoryProvider()
	accounts := services.NewAccountService(store.Accounts(), "test-secret", 24)
	ledger := services.NewCreditService(store.Profiles())

	registry := nodes.NewRegistry(nodes.Deps{
		Provider: stubProvider{},
		Assets:   stubAssets{},
		Credits:  ledger,
	})

	eng := engine.New(registry, store.Executions(), ledger, nil)
	sched := scheduler.New(store.Schedules(), store.Workflows(), ledger, eng, 0)

	cfg := config.DefaultConfig()
	cfg.Cron.Secret = "cron-secret"

	server := NewServer(cfg, store, registry, eng, sched, accounts)

	userID, err := accounts.CreateAccount("tester", "hunter22")
	require.NoError(t, err)
	account, err := accounts.GetAccount(userID)
	require.NoError(t, err)
	require.NoError(t, store.Profiles().AddCredits(userID, credits))

	return &apiFixture{
		server: server,
		store:  store,
		engine: eng,
		userID: userID,
		token:  account.APIToken,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+f.token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	return payload
}

func pipelineGraph() models.Graph {
	return models.Graph{
		Nodes: []models.Node{
			{ID: "t1", Type: nodes.TypeManualTrigger},
			{ID: "g1", Type: nodes.TypeGenerateImage, Config: map[string]interface{}{"prompt": "a fox"}},
			{ID: "s1", Type: nodes.TypeSaveGallery},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "t1", SourceHandle: "trigger", Target: "g1", TargetHandle: "trigger"},
			{ID: "e2", Source: "g1", SourceHandle: "image_url", Target: "s1", TargetHandle: "image_url"},
		},
	}
}

func (f *apiFixture) createWorkflow(t *testing.T, g models.Graph) string {
	t.Helper()

	w := f.do(t, http.MethodPost, "/api/v1/workflows", map[string]interface{}{
		"name":  "daily fox post",
		"graph": g,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeBody(t, w)["id"].(string)
}

func TestAuthRequired(t *testing.T) {
	f := newAPIFixture(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/workflows", nil)
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWorkflowCRUD(t *testing.T) {
	f := newAPIFixture(t, 100)

	workflowID := f.createWorkflow(t, pipelineGraph())

	t.Run("get", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/workflows/"+workflowID, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "daily fox post", decodeBody(t, w)["name"])
	})

	t.Run("list", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/v1/workflows", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		workflows := decodeBody(t, w)["workflows"].([]interface{})
		assert.Len(t, workflows, 1)
	})

	t.Run("update rejects invalid graph", func(t *testing.T) {
		g := pipelineGraph()
		g.Nodes[1].Type = "teleport"
		w := f.do(t, http.MethodPut, "/api/v1/workflows/"+workflowID, map[string]interface{}{"graph": g}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := f.do(t, http.MethodDelete, "/api/v1/workflows/"+workflowID, nil, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = f.do(t, http.MethodGet, "/api/v1/workflows/"+workflowID, nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCreateWorkflowRejectsUnknownNodeType(t *testing.T) {
	f := newAPIFixture(t, 100)

	g := pipelineGraph()
	g.Nodes[0].Type = "teleport"
	w := f.do(t, http.MethodPost, "/api/v1/workflows", map[string]interface{}{"name": "bad", "graph": g}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExecuteWorkflow(t *testing.T) {
	t.Run("happy path runs to completion", func(t *testing.T) {
		f := newAPIFixture(t, 100)
		workflowID := f.createWorkflow(t, pipelineGraph())

		w := f.do(t, http.MethodPost, "/api/v1/workflows/"+workflowID+"/execute", nil, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		execution := decodeBody(t, w)["execution"].(map[string]interface{})
		assert.Equal(t, models.ExecutionPending, execution["status"])
		assert.Equal(t, float64(5), execution["credits_estimated"])
		executionID := execution["id"].(string)

		f.engine.Wait()

		w = f.do(t, http.MethodGet, "/api/v1/workflow-executions/"+executionID, nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		payload := decodeBody(t, w)
		final := payload["execution"].(map[string]interface{})
		assert.Equal(t, models.ExecutionCompleted, final["status"])
		assert.Len(t, payload["steps"].([]interface{}), 3)

		w = f.do(t, http.MethodGet, "/api/v1/workflows/"+workflowID+"/executions", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody(t, w)["executions"].([]interface{}), 1)
	})

	t.Run("insufficient credits returns 402 with amounts", func(t *testing.T) {
		f := newAPIFixture(t, 3)
		workflowID := f.createWorkflow(t, pipelineGraph())

		w := f.do(t, http.MethodPost, "/api/v1/workflows/"+workflowID+"/execute", nil, nil)
		require.Equal(t, http.StatusPaymentRequired, w.Code)

		payload := decodeBody(t, w)
		assert.Equal(t, float64(5), payload["required"])
		assert.Equal(t, float64(3), payload["available"])

		// refusal creates no execution row
		w = f.do(t, http.MethodGet, "/api/v1/workflows/"+workflowID+"/executions", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeBody(t, w)["executions"])
	})

	t.Run("empty graph returns 400", func(t *testing.T) {
		f := newAPIFixture(t, 100)

		w := f.do(t, http.MethodPost, "/api/v1/workflows", map[string]interface{}{"name": "draft"}, nil)
		require.Equal(t, http.StatusCreated, w.Code)
		workflowID := decodeBody(t, w)["id"].(string)

		w = f.do(t, http.MethodPost, "/api/v1/workflows/"+workflowID+"/execute", nil, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown workflow returns 404", func(t *testing.T) {
		f := newAPIFixture(t, 100)
		w := f.do(t, http.MethodPost, "/api/v1/workflows/no-such-id/execute", nil, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestScheduleEndpoints(t *testing.T) {
	f := newAPIFixture(t, 100)
	workflowID := f.createWorkflow(t, pipelineGraph())

	t.Run("invalid cron returns 400", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/workflow-schedules", map[string]interface{}{
			"workflow_id":     workflowID,
			"cron_expression": "bogus",
		}, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("create and update", func(t *testing.T) {
		w := f.do(t, http.MethodPost, "/api/v1/workflow-schedules", map[string]interface{}{
			"workflow_id":     workflowID,
			"cron_expression": "0 9 * * *",
			"timezone":        "UTC",
		}, nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		schedule := decodeBody(t, w)
		assert.NotEmpty(t, schedule["next_run_at"])
		scheduleID := schedule["id"].(string)

		w = f.do(t, http.MethodPut, "/api/v1/workflow-schedules/"+scheduleID, map[string]interface{}{
			"cron_expression": "30 6 * * *",
		}, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "30 6 * * *", decodeBody(t, w)["cron_expression"])

		w = f.do(t, http.MethodGet, fmt.Sprintf("/api/v1/workflows/%s/schedule", workflowID), nil, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = f.do(t, http.MethodGet, "/api/v1/workflow-schedules", nil, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeBody(t, w)["schedules"].([]interface{}), 1)
	})
}

func TestProcessSchedulesEndpoint(t *testing.T) {
	f := newAPIFixture(t, 100)

	t.Run("wrong secret rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/workflow-schedules/process", nil)
		req.Header.Set("X-Cron-Secret", "wrong")
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid secret returns summary", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/workflow-schedules/process", nil)
		req.Header.Set("X-Cron-Secret", "cron-secret")
		w := httptest.NewRecorder()
		f.server.Router().ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		payload := decodeBody(t, w)
		assert.Equal(t, float64(0), payload["processed"])
	})
}

func TestNodeCatalog(t *testing.T) {
	f := newAPIFixture(t, 100)

	w := f.do(t, http.MethodGet, "/api/v1/nodes", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	catalog := decodeBody(t, w)["nodes"].([]interface{})
	types := make(map[string]bool, len(catalog))
	for _, entry := range catalog {
		types[entry.(map[string]interface{})["type"].(string)] = true
	}
	assert.True(t, types[nodes.TypeGenerateImage])
	assert.True(t, types[nodes.TypeScheduleTrigger])
}

func TestWorkflowExportImport(t *testing.T) {
	f := newAPIFixture(t, 100)
	workflowID := f.createWorkflow(t, pipelineGraph())

	w := f.do(t, http.MethodGet, "/api/v1/workflows/"+workflowID+"/export", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
	exported := w.Body.String()
	assert.Contains(t, exported, "daily fox post")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/workflows/import", bytes.NewBufferString(exported))
	req.Header.Set("Authorization", "Bearer "+f.token)
	w2 := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w2, req)
	require.Equal(t, http.StatusCreated, w2.Code, w2.Body.String())

	imported := decodeBody(t, w2)
	assert.Equal(t, "daily fox post", imported["name"])
	assert.NotEqual(t, workflowID, imported["id"])
}
