package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
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

func dialStream(t *testing.T, ts *httptest.Server, path, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	header := http.Header{"Authorization": {"Bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

// The engine publishes from the execution goroutine while the handler
// replays history on its own; both paths must be able to write to one
// subscriber at the same time.
func TestStreamHubConcurrentWrites(t *testing.T) {
	const (
		writers        = 2
		eventsPerWrite = 25
	)

	hub := NewStreamHub()
	hold := make(chan struct{})

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := hub.upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		conn := &streamConn{ws: ws}
		hub.subscribe(conn, "exec-1")

		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < eventsPerWrite; j++ {
					hub.send(conn, "exec-1", engine.Event{Type: engine.EventStep, ExecutionID: "exec-1"})
				}
			}()
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < eventsPerWrite; j++ {
					hub.Publish(engine.Event{Type: engine.EventStatus, ExecutionID: "exec-1"})
				}
			}()
		}
		wg.Wait()
		<-hold
	}))
	defer ts.Close()
	defer close(hold)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()
	client.SetReadDeadline(time.Now().Add(5 * time.Second))

	want := 2 * writers * eventsPerWrite
	received := 0
	for received < want {
		var event engine.Event
		require.NoError(t, client.ReadJSON(&event))
		received++
	}
	assert.Equal(t, want, received)
	assert.Equal(t, 1, hub.Subscribers("exec-1"))
}

func TestStreamExecutionReplay(t *testing.T) {
	f := newAPIFixture(t, 100)
	workflowID := f.createWorkflow(t, pipelineGraph())

	w := f.do(t, http.MethodPost, "/api/v1/workflows/"+workflowID+"/execute", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	executionID := decodeBody(t, w)["execution"].(map[string]interface{})["id"].(string)
	f.engine.Wait()

	ts := httptest.NewServer(f.server.Router())
	defer ts.Close()

	conn := dialStream(t, ts, "/api/v1/workflow-executions/"+executionID+"/stream", f.token)
	defer conn.Close()

	// Three recorded steps, then the terminal status.
	for i := 0; i < 3; i++ {
		var event engine.Event
		require.NoError(t, conn.ReadJSON(&event))
		assert.Equal(t, engine.EventStep, event.Type)
		assert.Equal(t, executionID, event.ExecutionID)
		assert.Equal(t, models.StepCompleted, event.Status)
	}

	var status engine.Event
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, engine.EventStatus, status.Type)
	assert.Equal(t, models.ExecutionCompleted, status.Status)
}

func TestStreamExecutionUnknownIsNotFound(t *testing.T) {
	f := newAPIFixture(t, 100)

	w := f.do(t, http.MethodGet, "/api/v1/workflow-executions/no-such-id/stream", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type stepHistoryFailStore struct {
	storage.ExecutionStore
}

func (s stepHistoryFailStore) ListStepResults(executionID string) ([]models.StepResult, error) {
	return nil, errors.New("history unavailable")
}

type stepHistoryFailProvider struct {
	storage.Provider
}

func (p stepHistoryFailProvider) Executions() storage.ExecutionStore {
	return stepHistoryFailStore{p.Provider.Executions()}
}

// A replay that cannot load the step history tells the subscriber so,
// instead of looking like a run with no steps yet.
func TestStreamExecutionReplayReportsHistoryFailure(t *testing.T) {
	base := storage.NewMemoryProvider()
	store := stepHistoryFailProvider{base}
	accounts := services.NewAccountService(store.Accounts(), "test-secret", 24)
	ledger := services.NewCreditService(store.Profiles())
	registry := nodes.NewRegistry(nodes.Deps{Provider: stubProvider{}, Assets: stubAssets{}, Credits: ledger})
	eng := engine.New(registry, store.Executions(), ledger, nil)
	sched := scheduler.New(store.Schedules(), store.Workflows(), ledger, eng, 0)
	server := NewServer(config.DefaultConfig(), store, registry, eng, sched, accounts)

	userID, err := accounts.CreateAccount("tester", "hunter22")
	require.NoError(t, err)
	account, err := accounts.GetAccount(userID)
	require.NoError(t, err)

	require.NoError(t, base.Executions().SaveExecution(models.WorkflowExecution{
		ID:         "exec-1",
		WorkflowID: "wf-1",
		UserID:     userID,
		Status:     models.ExecutionRunning,
		CreatedAt:  time.Now().UTC(),
	}))

	ts := httptest.NewServer(server.Router())
	defer ts.Close()

	conn := dialStream(t, ts, "/api/v1/workflow-executions/exec-1/stream", account.APIToken)
	defer conn.Close()

	var failure engine.Event
	require.NoError(t, conn.ReadJSON(&failure))
	assert.Equal(t, engine.EventError, failure.Type)
	assert.Equal(t, "failed to load step history", failure.Error)

	var status engine.Event
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, engine.EventStatus, status.Type)
	assert.Equal(t, models.ExecutionRunning, status.Status)
}
