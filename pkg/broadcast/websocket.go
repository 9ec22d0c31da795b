package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dukex/crmflow/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var ErrObserverClosed = errors.New("observer closed")

// WebSocketObserver streams events to one WebSocket client. When executionID
// is set only events of that execution are sent.
type WebSocketObserver struct {
	id          string
	executionID string
	conn        *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func NewWebSocketObserver(conn *websocket.Conn, executionID string) *WebSocketObserver {
	return &WebSocketObserver{
		id:          "ws:" + uuid.NewString(),
		executionID: executionID,
		conn:        conn,
	}
}

func (o *WebSocketObserver) ID() string { return o.id }

func (o *WebSocketObserver) Send(_ context.Context, event Event) error {
	if !o.matches(event) {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrObserverClosed
	}

	err := o.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err != nil {
		return err
	}

	return o.conn.WriteJSON(event)
}

func (o *WebSocketObserver) Closed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	return o.closed
}

func (o *WebSocketObserver) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return nil
	}

	o.closed = true

	return o.conn.Close()
}

func (o *WebSocketObserver) ping() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrObserverClosed
	}

	return o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (o *WebSocketObserver) matches(event Event) bool {
	if o.executionID == "" {
		return true
	}

	switch data := event.Data.(type) {
	case NodeUpdate:
		return data.ExecutionID == o.executionID
	case *models.WorkflowExecution:
		return data != nil && data.ID == o.executionID
	default:
		return false
	}
}

// Handler upgrades requests to WebSocket observers of the broadcaster. The
// optional execution_id query parameter narrows the stream to one execution.
type Handler struct {
	broadcaster *Broadcaster
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

func NewHandler(broadcaster *Broadcaster, logger *slog.Logger) *Handler {
	return &Handler{
		broadcaster: broadcaster,
		logger:      logger.With("module", "stream"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", "error", err)

		return
	}

	observer := NewWebSocketObserver(conn, r.URL.Query().Get("execution_id"))
	h.broadcaster.Subscribe(observer)

	h.logger.InfoContext(r.Context(), "Stream client connected", "observer_id", observer.ID())

	go h.keepAlive(observer)
	h.readUntilClosed(observer)

	h.broadcaster.Unsubscribe(observer.ID())
	_ = observer.Close()

	h.logger.InfoContext(r.Context(), "Stream client disconnected", "observer_id", observer.ID())
}

// readUntilClosed drains client frames; the stream is one way.
func (h *Handler) readUntilClosed(observer *WebSocketObserver) {
	conn := observer.conn
	conn.SetReadLimit(4096)

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) keepAlive(observer *WebSocketObserver) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for range ticker.C {
		if err := observer.ping(); err != nil {
			return
		}
	}
}
