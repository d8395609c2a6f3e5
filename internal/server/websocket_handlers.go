package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MeKo-Tech/cutout/internal/grabcut"
	"github.com/MeKo-Tech/cutout/internal/worker"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsSession serialises writes to one connection and remembers the tasks it
// started so they can be cancelled when the client goes away.
type wsSession struct {
	server *Server
	conn   WebSocketConnWriter

	writeMu sync.Mutex

	mu    sync.Mutex
	tasks map[string]struct{}
}

func newWSSession(s *Server, conn WebSocketConnWriter) *wsSession {
	return &wsSession{server: s, conn: conn, tasks: make(map[string]struct{})}
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return s.corsOrigin == "" || s.corsOrigin == "*" || origin == "" || origin == s.corsOrigin
		},
	}
}

// webSocketHandler handles WebSocket connections speaking the task protocol.
func (s *Server) webSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)
	session := newWSSession(s, conn)
	defer session.cancelAll()

	s.handleWebSocketConnection(conn, session)
	s.logger.Info("WebSocket connection closed", "remote_addr", r.RemoteAddr)
}

// handleWebSocketConnection reads messages until the connection fails.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn, session *wsSession) {
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Error("WebSocket error", "error", err)
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			session.handleMessage(data)
		}
	}
}

// handleMessage decodes one client message and hands it to the pool.
func (ws *wsSession) handleMessage(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		ws.send(ErrorMessage{
			Type:    MessageError,
			Error:   grabcut.KindInvalidRequest,
			Message: fmt.Sprintf("Failed to parse message: %v", err),
		})
		return
	}

	if msg.TaskID == "" && msg.Type != MessageCancel {
		msg.TaskID = worker.NewTaskID()
	}
	req, err := msg.ToRequest(ws.server.pool.EngineOptions().Lambda)
	if err != nil {
		ws.send(ErrorMessage{Type: MessageError, TaskID: msg.TaskID, Error: grabcut.KindOf(err), Message: err.Error()})
		return
	}

	if _, ok := req.(worker.CancelRequest); ok {
		_, _ = ws.server.pool.Handle(req, nil)
		return
	}

	// Tracked first: the terminal event may arrive before Handle returns.
	if !ws.track(msg.TaskID) {
		ws.rejectDuplicate(msg.TaskID)
		return
	}
	if _, err := ws.server.pool.Handle(req, ws.sink); err != nil {
		ws.untrack(msg.TaskID)
		ws.rejectDuplicate(msg.TaskID)
	}
}

// rejectDuplicate answers a request for an id that is still active. The reply
// carries no task_id so it is not mistaken for the active task's outcome.
func (ws *wsSession) rejectDuplicate(id string) {
	ws.send(ErrorMessage{
		Type:    MessageError,
		Error:   grabcut.KindInvalidRequest,
		Message: fmt.Sprintf("task %q is already active", id),
	})
}

// sink forwards pool events to the client.
func (ws *wsSession) sink(ev worker.Event) {
	if worker.IsTerminal(ev) {
		ws.untrack(ev.Task())
		if res, ok := ev.(worker.ResultEvent); ok {
			recordSegmentation(res.Segmentation)
		}
	}
	ws.send(EncodeEvent(ev))
}

// track records id as started by this session. It reports false when the
// session already tracks id.
func (ws *wsSession) track(id string) bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	if _, ok := ws.tasks[id]; ok {
		return false
	}
	if ws.tasks != nil {
		ws.tasks[id] = struct{}{}
	}
	return true
}

func (ws *wsSession) untrack(id string) {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	delete(ws.tasks, id)
}

// cancelAll cancels every task the session started that is still running.
func (ws *wsSession) cancelAll() {
	ws.mu.Lock()
	tasks := ws.tasks
	ws.tasks = nil
	ws.mu.Unlock()

	for id := range tasks {
		if ws.server.pool.Cancel(id) {
			ws.server.logger.Debug("Cancelled task of closed connection", "task_id", id)
		}
	}
}

// send writes one message. Writes from worker goroutines are serialised.
func (ws *wsSession) send(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		ws.server.logger.Error("Failed to marshal WebSocket message", "error", err)
		return
	}

	ws.writeMu.Lock()
	defer ws.writeMu.Unlock()
	if err := ws.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		ws.server.logger.Debug("Failed to send WebSocket message", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}
