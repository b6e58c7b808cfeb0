package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/oakmere/conductor-core/internal/execution"
)

// WebSocket message types sent to feedback stream clients.
const (
	WSTypeFeedback = "feedback"
	WSTypeState    = "state"
)

// wsEnvelope wraps every message sent on a feedback stream.
type wsEnvelope struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled upstream.
		return true
	},
}

// handleActionFeedback upgrades the connection and streams feedback for
// a single execution. Late subscribers receive the most recent feedback
// snapshot first. The stream ends with a state message carrying the
// terminal record, then a close frame.
func (s *Server) handleActionFeedback(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	// Subscribe before upgrading so unknown IDs get a plain HTTP error.
	feedback, unsubscribe, err := s.manager.Subscribe(requestID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		unsubscribe()
		s.logger.Error("websocket upgrade failed", "request_id", requestID, "error", err)
		return
	}

	go s.streamFeedback(conn, requestID, feedback, unsubscribe)
}

// streamFeedback is the write pump for one feedback connection. A
// companion read loop consumes client frames to service pong handling
// and detect disconnects.
func (s *Server) streamFeedback(conn *websocket.Conn, requestID string, feedback <-chan execution.Feedback, unsubscribe func()) {
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second

	// Start may not have run when the router is exercised directly.
	var serverDone <-chan struct{}
	if s.baseCtx != nil {
		serverDone = s.baseCtx.Done()
	}

	ticker := time.NewTicker(pingInterval)
	readerDone := make(chan struct{})
	defer func() {
		ticker.Stop()
		unsubscribe()
		conn.Close()
	}()

	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read error", "request_id", requestID, "error", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case fb, ok := <-feedback:
			if !ok {
				// Terminal commit closed the channel; send the final
				// record before closing.
				s.writeWS(conn, pongWait, WSTypeState, s.terminalRecord(requestID))
				//nolint:errcheck // Best-effort close message
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(pongWait))
				return
			}
			if !s.writeWS(conn, pongWait, WSTypeFeedback, fb) {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-readerDone:
			return
		case <-serverDone:
			return
		}
	}
}

// writeWS marshals and sends one envelope. Returns false when the
// connection is no longer usable.
func (s *Server) writeWS(conn *websocket.Conn, pongWait time.Duration, msgType string, payload any) bool {
	data, err := json.Marshal(wsEnvelope{
		Type:      msgType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return false
	}
	//nolint:errcheck // Best-effort deadline; write error caught below
	conn.SetWriteDeadline(time.Now().Add(pongWait))
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}

// terminalRecord fetches the final record for the closing state
// message. Nil when lookup fails.
func (s *Server) terminalRecord(requestID string) any {
	rec, err := s.manager.Get(context.Background(), requestID)
	if err != nil {
		return nil
	}
	return rec
}
