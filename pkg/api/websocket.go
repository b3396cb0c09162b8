package api

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/pixelmuse/pixelmuse/pkg/engine"
	"github.com/pixelmuse/pixelmuse/pkg/middleware"
	"github.com/pixelmuse/pixelmuse/pkg/models"
)

const streamWriteTimeout = 10 * time.Second

// streamConn serializes writes to one websocket connection. The engine
// publishes from the execution goroutine while the handler replays history
// and the ping loop runs on its own goroutine; gorilla/websocket allows at
// most one concurrent writer, so every data frame goes through the mutex.
type streamConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *streamConn) writeJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	return c.ws.WriteJSON(v)
}

// ping sends a control frame. WriteControl is safe to call concurrently
// with the data-frame writers, so the ping loop does not need the mutex.
func (c *streamConn) ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteTimeout))
}

// StreamHub fans engine events out to websocket subscribers. Each
// connection is scoped to a single execution; the engine publishes into the
// hub from the execution goroutine.
type StreamHub struct {
	upgrader websocket.Upgrader

	// connections maps execution IDs to sets of subscriber connections
	connections map[string]map[*streamConn]bool

	mu sync.RWMutex
}

// NewStreamHub creates an empty hub.
func NewStreamHub() *StreamHub {
	return &StreamHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The builder frontend runs on a different origin.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]map[*streamConn]bool),
	}
}

// Publish implements engine.Publisher. It never blocks the caller beyond the
// per-connection write deadline.
func (h *StreamHub) Publish(event engine.Event) {
	h.mu.RLock()
	subscribers, exists := h.connections[event.ExecutionID]
	if !exists {
		h.mu.RUnlock()
		return
	}
	conns := make([]*streamConn, 0, len(subscribers))
	for conn := range subscribers {
		conns = append(conns, conn)
	}
	h.mu.RUnlock()

	for _, conn := range conns {
		h.send(conn, event.ExecutionID, event)
	}
}

// Subscribers returns the subscriber count for one execution.
func (h *StreamHub) Subscribers(executionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[executionID])
}

func (h *StreamHub) subscribe(conn *streamConn, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.connections[executionID] == nil {
		h.connections[executionID] = make(map[*streamConn]bool)
	}
	h.connections[executionID][conn] = true
}

func (h *StreamHub) unsubscribe(conn *streamConn, executionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subscribers, exists := h.connections[executionID]; exists {
		delete(subscribers, conn)
		if len(subscribers) == 0 {
			delete(h.connections, executionID)
		}
	}
}

func (h *StreamHub) send(conn *streamConn, executionID string, event engine.Event) {
	if err := conn.writeJSON(event); err != nil {
		log.Printf("websocket: failed to send event: %v", err)
		h.unsubscribe(conn, executionID)
		conn.ws.Close()
	}
}

// handleStreamExecution upgrades the request and streams step and status
// events for one execution until the client disconnects.
func (s *Server) handleStreamExecution(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	executionID := mux.Vars(r)["id"]

	execution, err := s.store.Executions().GetExecution(executionID)
	if err != nil || execution.UserID != userID {
		writeError(w, http.StatusNotFound, "Execution not found")
		return
	}

	ws, err := s.stream.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket: upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	conn := &streamConn{ws: ws}
	s.stream.subscribe(conn, executionID)
	defer s.stream.unsubscribe(conn, executionID)

	// Replay what already happened so late subscribers see the full run.
	s.replayExecution(conn, execution)

	go pingLoop(conn)

	// Drain client frames until the connection closes.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket: read error: %v", err)
			}
			return
		}
	}
}

// replayExecution sends the recorded steps and current status to a fresh
// subscriber. A failed history read is reported to the subscriber so a
// partial replay is distinguishable from a run with no steps yet.
func (s *Server) replayExecution(conn *streamConn, execution models.WorkflowExecution) {
	steps, err := s.store.Executions().ListStepResults(execution.ID)
	if err != nil {
		log.Printf("websocket: failed to load steps for replay: %v", err)
		s.stream.send(conn, execution.ID, engine.Event{
			Type:        engine.EventError,
			ExecutionID: execution.ID,
			Timestamp:   time.Now().UTC(),
			Error:       "failed to load step history",
		})
	}
	for _, step := range steps {
		s.stream.send(conn, execution.ID, engine.Event{
			Type:        engine.EventStep,
			ExecutionID: execution.ID,
			Timestamp:   step.StartedAt,
			NodeID:      step.NodeID,
			NodeType:    step.NodeType,
			Status:      step.Status,
			Error:       step.Error,
			Output:      step.OutputData,
		})
	}
	s.stream.send(conn, execution.ID, engine.Event{
		Type:        engine.EventStatus,
		ExecutionID: execution.ID,
		Timestamp:   time.Now().UTC(),
		Status:      execution.Status,
		Error:       execution.ErrorMessage,
		NodeID:      execution.ErrorNodeID,
	})
}

func pingLoop(conn *streamConn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		if err := conn.ping(); err != nil {
			return
		}
	}
}
