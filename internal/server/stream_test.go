package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"engagemeter/internal/types"

	"github.com/gorilla/websocket"
)

func dialStream(t *testing.T, ts *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, nil)
}

func readStreamMessage(t *testing.T, conn *websocket.Conn) StreamMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("Failed to read stream message: %v", err)
	}
	return msg
}

func TestStreamRoundTrip(t *testing.T) {
	srv, h := newTestServer(t, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()

	tracker := srv.Sessions.Create()

	conn, _, err := dialStream(t, ts, "/sessions/"+tracker.ID()+"/stream")
	if err != nil {
		t.Fatalf("Failed to dial stream: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(happyFrame)); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	msg := readStreamMessage(t, conn)
	if msg.Type != StreamTypeMetrics {
		t.Fatalf("Expected metrics message, got %q (%s)", msg.Type, msg.Error)
	}
	if msg.Metrics == nil || !msg.Metrics.FaceDetected {
		t.Errorf("Expected face metrics, got %+v", msg.Metrics)
	}
	if msg.Summary == nil || msg.Summary.Samples != 1 {
		t.Errorf("Expected summary with 1 sample, got %+v", msg.Summary)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("Failed to write garbage: %v", err)
	}
	msg = readStreamMessage(t, conn)
	if msg.Type != StreamTypeError || msg.Error == "" {
		t.Errorf("Expected error message, got %+v", msg)
	}

	frame, _ := json.Marshal(map[string]any{"detected": false})
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	msg = readStreamMessage(t, conn)
	if msg.Metrics == nil || msg.Metrics.FaceDetected {
		t.Errorf("Expected no-face metrics, got %+v", msg.Metrics)
	}

	if got := tracker.Len(); got != 2 {
		t.Errorf("Expected 2 recorded frames, got %d", got)
	}
}

func TestStreamReadLimit(t *testing.T) {
	srv, h := newTestServer(t, func(c *ServerConfig) {
		c.StreamReadLimit = 32
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	tracker := srv.Sessions.Create()
	conn, _, err := dialStream(t, ts, "/sessions/"+tracker.ID()+"/stream")
	if err != nil {
		t.Fatalf("Failed to dial stream: %v", err)
	}
	defer conn.Close()

	big := `{"expressions":{"happy":0.5},"padding":"` + strings.Repeat("x", 64) + `"}`
	_ = conn.WriteMessage(websocket.TextMessage, []byte(big))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected the connection to close after an oversized message")
	}
	if tracker.Len() != 0 {
		t.Errorf("Expected no frames recorded, got %d", tracker.Len())
	}
}

func TestStreamUnknownSession(t *testing.T) {
	_, h := newTestServer(t, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()

	_, resp, err := dialStream(t, ts, "/sessions/missing/stream")
	if err == nil {
		t.Fatal("Expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 response, got %v", resp)
	}
}

func TestStreamAuthWithQueryKey(t *testing.T) {
	srv, h := newTestServer(t, func(c *ServerConfig) {
		c.APIKeys = []string{testAPIKey}
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	tracker := srv.Sessions.Create()
	path := "/sessions/" + tracker.ID() + "/stream"

	_, resp, err := dialStream(t, ts, path)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Expected 401 without key, got err=%v resp=%v", err, resp)
	}

	conn, _, err := dialStream(t, ts, path+"?api_key="+testAPIKey)
	if err != nil {
		t.Fatalf("Expected dial with query key to succeed: %v", err)
	}
	conn.Close()
}

func TestStreamKeepsSessionAlive(t *testing.T) {
	srv, h := newTestServer(t, func(c *ServerConfig) {
		c.SessionIdleTimeout = 1500 * time.Millisecond
	})
	ts := httptest.NewServer(h)
	defer ts.Close()

	tracker := srv.Sessions.Create()
	conn, _, err := dialStream(t, ts, "/sessions/"+tracker.ID()+"/stream")
	if err != nil {
		t.Fatalf("Failed to dial stream: %v", err)
	}
	defer conn.Close()

	// stream for twice the idle timeout; the cleanup pass runs every second
	const frames = 12
	for i := range frames {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(happyFrame)); err != nil {
			t.Fatalf("Failed to write frame %d: %v", i, err)
		}
		if msg := readStreamMessage(t, conn); msg.Type != StreamTypeMetrics {
			t.Fatalf("Frame %d: expected metrics, got %q (%s)", i, msg.Type, msg.Error)
		}
		time.Sleep(250 * time.Millisecond)
	}

	rec := doJSON(t, h, http.MethodGet, "/sessions/"+tracker.ID(), nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected streamed session to stay alive, got status %d", rec.Code)
	}
	if got := decode[types.SessionSummary](t, rec).Samples; got != frames {
		t.Errorf("Expected %d samples, got %d", frames, got)
	}
}

func TestStreamClosesWhenSessionGone(t *testing.T) {
	srv, h := newTestServer(t, nil)
	ts := httptest.NewServer(h)
	defer ts.Close()

	tracker := srv.Sessions.Create()
	conn, _, err := dialStream(t, ts, "/sessions/"+tracker.ID()+"/stream")
	if err != nil {
		t.Fatalf("Failed to dial stream: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(happyFrame)); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	if msg := readStreamMessage(t, conn); msg.Type != StreamTypeMetrics {
		t.Fatalf("Expected metrics, got %q (%s)", msg.Type, msg.Error)
	}

	srv.Sessions.Delete(tracker.ID())

	if err := conn.WriteMessage(websocket.TextMessage, []byte(happyFrame)); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	msg := readStreamMessage(t, conn)
	if msg.Type != StreamTypeError || msg.Error != StreamErrSessionGone {
		t.Fatalf("Expected session gone error, got %+v", msg)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected normal close, got %v", err)
	}
	if got := tracker.Len(); got != 1 {
		t.Errorf("Expected no frames recorded after deletion, got %d", got)
	}
}

func TestStreamAllowedOrigins(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		wantOK  bool
	}{
		{"no origin header", nil, "", true},
		{"cross origin rejected by default", nil, "https://ui.example.com", false},
		{"listed origin", []string{"https://ui.example.com"}, "https://ui.example.com", true},
		{"listed origin case and slash", []string{"HTTPS://UI.example.com/"}, "https://ui.example.com", true},
		{"unlisted origin", []string{"https://ui.example.com"}, "https://evil.example.com", false},
		{"wildcard", []string{"*"}, "https://anything.example.org", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, h := newTestServer(t, func(c *ServerConfig) {
				c.AllowedOrigins = tt.allowed
			})
			ts := httptest.NewServer(h)
			defer ts.Close()

			tracker := srv.Sessions.Create()
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/sessions/" + tracker.ID() + "/stream"
			conn, resp, err := websocket.DefaultDialer.Dial(url, header)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Expected dial to succeed: %v", err)
				}
				conn.Close()
				return
			}
			if err == nil {
				conn.Close()
				t.Fatal("Expected dial to be rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected 403, got %v", resp)
			}
		})
	}
}

func TestOriginCheckerSameOrigin(t *testing.T) {
	check := originChecker([]string{"https://ui.example.com"})
	r := httptest.NewRequest(http.MethodGet, "http://api.example.com/sessions/x/stream", nil)
	r.Header.Set("Origin", "http://api.example.com")
	if !check(r) {
		t.Error("Expected same origin to pass when an allow list is configured")
	}
	if originChecker(nil) != nil {
		t.Error("Expected nil checker without an allow list")
	}
}
