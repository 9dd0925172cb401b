package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/oklog/ulid/v2"

	"syncboard/pkg/interfaces"
	"syncboard/pkg/types"
)

// Default heartbeat timing
const (
	DefaultPongWait     = 60 * time.Second
	DefaultPingInterval = 30 * time.Second
)

// WebSocket upgrader with production-ready settings
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// FUNCTIONAL DISCOVERY: Allow all origins for development
		// Production deployments should implement stricter origin checking
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// CommandSink accepts inbound client commands for processing
type CommandSink interface {
	Submit(message *types.Message) error
}

// Handler upgrades client connections, joins them to their session and feeds
// their commands to the sink
// ARCHITECTURAL DISCOVERY: Multi-stage validation (parameters -> session ->
// WebSocket -> registration -> join) keeps invalid clients from consuming resources
type Handler struct {
	registry       *Registry
	sessionManager interfaces.SessionManager
	sink           CommandSink
	pingInterval   time.Duration
	pongWait       time.Duration
}

// NewHandler creates a new WebSocket handler
func NewHandler(registry *Registry, sessionManager interfaces.SessionManager, sink CommandSink) *Handler {
	return &Handler{
		registry:       registry,
		sessionManager: sessionManager,
		sink:           sink,
		pingInterval:   DefaultPingInterval,
		pongWait:       DefaultPongWait,
	}
}

// SetHeartbeat changes how often the server pings and how long it waits for
// any frame before dropping the client. Non-positive values keep the current
// setting.
func (h *Handler) SetHeartbeat(pingInterval, pongWait time.Duration) {
	if pingInterval > 0 {
		h.pingInterval = pingInterval
	}
	if pongWait > 0 {
		h.pongWait = pongWait
	}
}

// HandleWebSocket handles WebSocket connection requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	sessionID := r.URL.Query().Get("session_id")

	if userID == "" || sessionID == "" {
		http.Error(w, "Missing required query parameters: user_id, session_id", http.StatusBadRequest)
		return
	}

	if !types.IsValidUserID(userID) {
		http.Error(w, "Invalid user_id format", http.StatusBadRequest)
		return
	}

	if err := h.sessionManager.ValidateSessionMembership(sessionID, userID); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrSessionNotFound):
			http.Error(w, "Session not found", http.StatusNotFound)
		case errors.Is(err, interfaces.ErrSessionEnded):
			http.Error(w, "Session has ended", http.StatusGone)
		case errors.Is(err, interfaces.ErrUnauthorized):
			http.Error(w, "Not authorized to join this session", http.StatusForbidden)
		default:
			http.Error(w, "Session validation failed", http.StatusBadRequest)
		}
		return
	}

	// FUNCTIONAL DISCOVERY: WebSocket upgrade after validation prevents resource waste
	// on invalid requests while providing proper HTTP error responses
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn)
	if err := wsConn.SetCredentials(userID, sessionID); err != nil {
		log.Printf("Failed to set credentials: %v", err)
		_ = wsConn.Close()
		return
	}

	// TECHNICAL DISCOVERY: Registration precedes the join so the join snapshot
	// already has a connection to land on
	replaced, err := h.registry.RegisterConnection(wsConn)
	if err != nil {
		log.Printf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}

	ctx := context.Background()
	if replaced != nil {
		h.sessionManager.LeaveParticipant(ctx, replaced.Participant())
	}

	participant := wsConn.Participant()
	if err := h.sessionManager.JoinParticipant(ctx, participant); err != nil {
		log.Printf("Participant join failed: session=%s participant=%s error=%v", sessionID, userID, err)
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "join failed")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		h.registry.UnregisterConnection(wsConn)
		_ = wsConn.Close()
		return
	}

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and heartbeat for one connection
// ARCHITECTURAL DISCOVERY: Single goroutine per connection handles both heartbeat
// and message reading to prevent goroutine proliferation and resource leaks
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		// FUNCTIONAL DISCOVERY: Only the registered connection leaves; a
		// connection replaced by a reconnect must not remove its successor
		if h.registry.UnregisterConnection(conn) {
			h.sessionManager.LeaveParticipant(context.Background(), conn.Participant())
		}
		_ = conn.Close()
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.pongWait)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			case <-conn.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: participant=%s error=%v", conn.GetUserID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		h.handleFrame(conn, data)
	}
}

// handleFrame decodes one inbound frame and hands it to the sink. Sender and
// session always come from the connection, never from the frame.
func (h *Handler) handleFrame(conn *Connection, data []byte) {
	var message types.Message
	if err := json.Unmarshal(data, &message); err != nil {
		h.reject(conn, "", ErrInvalidCommand)
		return
	}

	// FUNCTIONAL DISCOVERY: Client ids are kept so failures can be correlated;
	// commands without one get a sortable server id
	if message.ID == "" {
		message.ID = ulid.Make().String()
	}
	message.FromUser = conn.GetUserID()
	message.SessionID = conn.GetSessionID()
	message.Timestamp = time.Now().UTC()

	if err := h.sink.Submit(&message); err != nil {
		h.reject(conn, message.ID, err)
	}
}

func (h *Handler) reject(conn *Connection, messageID string, cause error) {
	failure := types.Envelope{
		Type:    types.EventCommandFailed,
		Payload: types.CommandFailed{MessageID: messageID, Error: cause.Error()},
	}
	if err := conn.WriteJSON(failure); err != nil {
		log.Printf("Failed to send command failure: participant=%s error=%v", conn.GetUserID(), err)
	}
}
