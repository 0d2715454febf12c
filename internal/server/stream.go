package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"engagemeter/internal/observability"
	"engagemeter/internal/session"
	"engagemeter/internal/types"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// writeWait is how long to wait for a write to complete
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	defaultStreamReadLimit = 64 * 1024

	sendBuffer = 32
)

// Stream message types
const (
	StreamTypeMetrics = "metrics"
	StreamTypeError   = "error"
)

// StreamErrSessionGone is sent before the server closes a stream whose session was evicted or deleted
const StreamErrSessionGone = "session not found"

// StreamMessage is one server-to-client message on the session stream
type StreamMessage struct {
	Type    string                   `json:"type"`
	Metrics *types.EngagementMetrics `json:"metrics,omitempty"`
	Summary *types.SessionSummary    `json:"summary,omitempty"`
	Error   string                   `json:"error,omitempty"`
}

// originChecker builds the upgrader's origin check. Requests without an Origin
// header (non-browser clients) and same-origin requests always pass. A nil
// result keeps gorilla's same-origin default.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}

	origins := make(map[string]bool, len(allowed))
	anyOrigin := false
	for _, o := range allowed {
		o = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(o)), "/")
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || anyOrigin {
			return true
		}
		if origins[strings.ToLower(origin)] {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// streamClient is one WebSocket connection bound to a session
type streamClient struct {
	server  *Server
	om      *observability.ObservabilityManager
	conn    *websocket.Conn
	tracker *session.Tracker
	send    chan StreamMessage
}

// createStreamHandler upgrades to a WebSocket that turns frames into metrics
func (s *Server) createStreamHandler(om *observability.ObservabilityManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := om.Tracer(tracerName).Start(r.Context(), "api.session.stream")
		defer span.End()

		tracker, ok := s.lookupSession(w, r, span)
		if !ok {
			return
		}

		// Upgrade writes its own error response on failure
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			span.RecordError(err)
			s.Logger.Debug("WebSocket upgrade failed", "session_id", tracker.ID(), "error", err)
			return
		}

		metrics := om.GetMetrics()
		metrics.RecordStreamClient(ctx, 1)
		defer metrics.RecordStreamClient(context.WithoutCancel(ctx), -1)

		s.Logger.Info("Stream client connected",
			"session_id", tracker.ID(),
			"client_ip", getClientIP(r))

		client := &streamClient{
			server:  s,
			om:      om,
			conn:    conn,
			tracker: tracker,
			send:    make(chan StreamMessage, sendBuffer),
		}
		frames := client.run(ctx)

		span.SetAttributes(attribute.Int("stream.frames", frames))
		s.Logger.Info("Stream client disconnected",
			"session_id", tracker.ID(),
			"frames", frames)
	}
}

// run starts the write pump and reads until the connection closes.
// It returns the number of frames processed.
func (c *streamClient) run(ctx context.Context) int {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	frames := c.readPump(ctx)
	close(c.send)
	<-done
	return frames
}

// readPump is the only reader; each text message is one FrameInput
func (c *streamClient) readPump(ctx context.Context) int {
	c.conn.SetReadLimit(c.server.streamReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	frames := 0
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.Logger.Debug("Stream read failed", "session_id", c.tracker.ID(), "error", err)
			}
			return frames
		}

		// every message counts as session activity; an evicted or deleted session ends the stream
		if !c.server.Sessions.Touch(c.tracker.ID()) {
			c.enqueue(StreamMessage{Type: StreamTypeError, Error: StreamErrSessionGone})
			c.server.Logger.Info("Stream session no longer exists", "session_id", c.tracker.ID())
			return frames
		}

		var frame types.FrameInput
		if err := json.Unmarshal(data, &frame); err != nil {
			c.enqueue(StreamMessage{Type: StreamTypeError, Error: "invalid frame: " + err.Error()})
			continue
		}

		m := c.server.recordFrame(ctx, c.tracker, frame, "stream", c.om)
		summary := c.tracker.Summary(c.server.TopEmotions)
		c.enqueue(StreamMessage{Type: StreamTypeMetrics, Metrics: &m, Summary: &summary})
		frames++
	}
}

// enqueue hands msg to the writer, dropping it when the client is too slow
func (c *streamClient) enqueue(msg StreamMessage) {
	select {
	case c.send <- msg:
	default:
		c.server.Logger.Warn("Stream client too slow, dropping message",
			"session_id", c.tracker.ID(),
			"type", msg.Type)
	}
}

// writePump is the only writer on the connection
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
