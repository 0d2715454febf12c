package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"engagemeter/internal/ai"
	"engagemeter/internal/config"
	appErrors "engagemeter/internal/errors"
	"engagemeter/internal/observability"
	"engagemeter/internal/types"
)

const testAPIKey = "test-key-1234567890"

type fakeFeedback struct {
	output types.FeedbackOutput
	usage  *ai.TokenUsage
	err    error
	info   *ai.ModelInfo
	calls  int
	last   types.FeedbackInput
}

func (f *fakeFeedback) Feedback(_ context.Context, in types.FeedbackInput) (types.FeedbackOutput, *ai.TokenUsage, error) {
	f.calls++
	f.last = in
	return f.output, f.usage, f.err
}

func (f *fakeFeedback) GetModelInfo(context.Context) *ai.ModelInfo {
	if f.info != nil {
		return f.info
	}
	return &ai.ModelInfo{Name: "fake-model", Available: true}
}

func testLogger() *appErrors.Logger {
	return appErrors.NewLoggerTo(io.Discard, slog.LevelError)
}

// newTestServer builds a server with observability disabled; mutate may adjust the config first
func newTestServer(t *testing.T, mutate func(*ServerConfig)) (*Server, http.Handler) {
	t.Helper()

	cfg := ServerConfig{
		Host:        "127.0.0.1",
		Port:        "0",
		Version:     "test",
		HistorySize: 5,
		TopEmotions: 3,
		TLSConfig:   config.TLSConfig{Mode: "disabled"},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(nil, cfg, testLogger())
	t.Cleanup(srv.Close)

	om, err := observability.NewObservabilityManager(config.ObservabilityConfig{}, "test")
	if err != nil {
		t.Fatalf("Failed to create observability manager: %v", err)
	}
	return srv, srv.Handler(om)
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			data, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("Failed to marshal body: %v", err)
			}
			reader = bytes.NewReader(data)
		}
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

const happyFrame = `{"expressions":{"neutral":0.1,"happy":0.9}}`

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		feedback   FeedbackService
		wantStatus int
		wantModel  string
	}{
		{"no AI configured", nil, http.StatusOK, "not_configured"},
		{"model available", &fakeFeedback{}, http.StatusOK, "ok"},
		{"model unavailable", &fakeFeedback{info: &ai.ModelInfo{Name: "m", Error: "boom"}}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, h := newTestServer(t, nil)
			srv.Feedback = tt.feedback

			rec := doJSON(t, h, http.MethodGet, "/health", nil, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}

			body := decode[map[string]any](t, rec)
			model, ok := body["feedback_model"].(map[string]any)
			if !ok {
				t.Fatalf("Expected feedback_model object, got %v", body["feedback_model"])
			}
			if model["status"] != tt.wantModel {
				t.Errorf("Expected model status %q, got %v", tt.wantModel, model["status"])
			}
		})
	}
}

func TestStatsHandler(t *testing.T) {
	_, h := newTestServer(t, func(c *ServerConfig) {
		c.RateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, BurstCapacity: 5, ByIP: true}
	})

	doJSON(t, h, http.MethodPost, "/sessions", nil, nil)

	rec := doJSON(t, h, http.MethodGet, "/stats", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	body := decode[map[string]any](t, rec)
	sessions, ok := body["sessions"].(map[string]any)
	if !ok {
		t.Fatalf("Expected sessions stats, got %v", body["sessions"])
	}
	if sessions["active_sessions"] != float64(1) {
		t.Errorf("Expected 1 active session, got %v", sessions["active_sessions"])
	}
	if _, ok := body["rate_limiting"].(map[string]any)["active_limiters"]; !ok {
		t.Error("Expected rate limiter stats")
	}
}

func TestAuthMiddleware(t *testing.T) {
	_, h := newTestServer(t, func(c *ServerConfig) {
		c.APIKeys = []string{testAPIKey}
	})

	tests := []struct {
		name       string
		path       string
		headers    map[string]string
		wantStatus int
	}{
		{"health is public", "/health", nil, http.StatusOK},
		{"missing key", "/estimate", nil, http.StatusUnauthorized},
		{"wrong key", "/estimate", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"header key", "/estimate", map[string]string{"X-API-Key": testAPIKey}, http.StatusOK},
		{"bearer token", "/estimate", map[string]string{"Authorization": "Bearer " + testAPIKey}, http.StatusOK},
		{"query key ignored without upgrade", "/estimate?api_key=" + testAPIKey, nil, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method, body := http.MethodPost, any(happyFrame)
			if tt.path == "/health" {
				method, body = http.MethodGet, nil
			}
			rec := doJSON(t, h, method, tt.path, body, tt.headers)
			if rec.Code != tt.wantStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestExtractAPIKey(t *testing.T) {
	upgrade := map[string]string{"Connection": "Upgrade", "Upgrade": "websocket"}

	tests := []struct {
		name    string
		target  string
		headers map[string]string
		want    string
	}{
		{"header", "/", map[string]string{"X-API-Key": "abc"}, "abc"},
		{"bearer", "/", map[string]string{"Authorization": "Bearer xyz"}, "xyz"},
		{"basic auth is not a key", "/", map[string]string{"Authorization": "Basic xyz"}, ""},
		{"query without upgrade", "/?api_key=q", nil, ""},
		{"query on upgrade", "/?api_key=q", upgrade, "q"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := extractAPIKey(r); got != tt.want {
				t.Errorf("extractAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("short"); got != "****" {
		t.Errorf("Expected short keys fully masked, got %q", got)
	}
	if got := maskAPIKey("abcdefghijkl"); got != "abcdefgh****" {
		t.Errorf("Expected prefix mask, got %q", got)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	_, h := newTestServer(t, func(c *ServerConfig) {
		c.RateLimit = &config.RateLimitConfig{Enabled: true, RequestsPerMin: 1, BurstCapacity: 2, ByIP: true}
	})

	for i := range 2 {
		if rec := doJSON(t, h, http.MethodPost, "/estimate", happyFrame, nil); rec.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodPost, "/estimate", happyFrame, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}

	// A different client has its own bucket
	rec = doJSON(t, h, http.MethodPost, "/estimate", happyFrame, map[string]string{"X-Forwarded-For": "10.0.0.9"})
	if rec.Code != http.StatusOK {
		t.Errorf("Expected other client to pass, got %d", rec.Code)
	}
}

func TestRequestSizeLimit(t *testing.T) {
	_, h := newTestServer(t, func(c *ServerConfig) {
		c.MaxRequestSize = 16
	})

	rec := doJSON(t, h, http.MethodPost, "/estimate", happyFrame, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if body := decode[ErrorResponse](t, rec); !strings.Contains(body.Message, "too large") {
		t.Errorf("Expected size error, got %q", body.Message)
	}
}

func TestEstimateHandler(t *testing.T) {
	_, h := newTestServer(t, nil)

	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantFace    bool
	}{
		{"face frame", happyFrame, "application/json", http.StatusOK, true},
		{"charset parameter", happyFrame, "application/json; charset=utf-8", http.StatusOK, true},
		{"detected false", `{"detected":false,"expressions":{"happy":1}}`, "application/json", http.StatusOK, false},
		{"missing expressions", `{}`, "application/json", http.StatusOK, false},
		{"wrong content type", happyFrame, "text/plain", http.StatusBadRequest, false},
		{"malformed json", `{"expressions":`, "application/json", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/estimate", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			metrics := decode[types.EngagementMetrics](t, rec)
			if metrics.FaceDetected != tt.wantFace {
				t.Errorf("Expected FaceDetected=%v, got %v", tt.wantFace, metrics.FaceDetected)
			}
			if !tt.wantFace && metrics.Attention != 50 {
				t.Errorf("Expected no-face attention 50, got %d", metrics.Attention)
			}
		})
	}
}

func TestSessionLifecycle(t *testing.T) {
	_, h := newTestServer(t, nil)

	rec := doJSON(t, h, http.MethodPost, "/sessions", nil, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rec.Code)
	}
	created := decode[CreateSessionResponse](t, rec)
	if created.ID == "" {
		t.Fatal("Expected a session id")
	}
	base := "/sessions/" + created.ID

	for i := range 3 {
		rec = doJSON(t, h, http.MethodPost, base+"/frames", happyFrame, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("Frame %d: expected 200, got %d", i, rec.Code)
		}
		frame := decode[FrameResponse](t, rec)
		if frame.Summary.Samples != i+1 {
			t.Errorf("Frame %d: expected %d samples, got %d", i, i+1, frame.Summary.Samples)
		}
	}
	doJSON(t, h, http.MethodPost, base+"/frames", `{"detected":false}`, nil)

	rec = doJSON(t, h, http.MethodGet, base, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	summary := decode[types.SessionSummary](t, rec)
	if summary.Samples != 4 || summary.FaceDetected != 3 {
		t.Errorf("Expected 4 samples with 3 faces, got %d/%d", summary.Samples, summary.FaceDetected)
	}
	if summary.SessionID != created.ID {
		t.Errorf("Expected session id %s, got %s", created.ID, summary.SessionID)
	}

	rec = doJSON(t, h, http.MethodGet, base+"/history", nil, nil)
	history := decode[HistoryResponse](t, rec)
	if len(history.Samples) != 4 {
		t.Errorf("Expected 4 history samples, got %d", len(history.Samples))
	}

	if rec = doJSON(t, h, http.MethodDelete, base, nil, nil); rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodGet, base, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
	if rec = doJSON(t, h, http.MethodDelete, base, nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", rec.Code)
	}
}

func TestUnknownSession(t *testing.T) {
	_, h := newTestServer(t, nil)

	paths := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/sessions/missing", nil},
		{http.MethodGet, "/sessions/missing/history", nil},
		{http.MethodPost, "/sessions/missing/frames", happyFrame},
	}
	for _, p := range paths {
		t.Run(p.method+" "+p.path, func(t *testing.T) {
			rec := doJSON(t, h, p.method, p.path, p.body, nil)
			if rec.Code != http.StatusNotFound {
				t.Errorf("Expected 404, got %d", rec.Code)
			}
		})
	}
}

func TestFeedbackHandler(t *testing.T) {
	validReq := FeedbackRequest{Question: "Tell me about yourself", Answer: "I build things."}

	tests := []struct {
		name       string
		feedback   *fakeFeedback
		frames     int
		body       any
		wantStatus int
	}{
		{
			name:       "success",
			feedback:   &fakeFeedback{output: types.FeedbackOutput{OverallScore: 72, Summary: "Good"}, usage: &ai.TokenUsage{TotalTokens: 10}},
			frames:     2,
			body:       validReq,
			wantStatus: http.StatusOK,
		},
		{
			name:       "validation error",
			feedback:   &fakeFeedback{err: appErrors.NewValidationError(appErrors.ErrCodeEmptySession, "session has no recorded frames", nil)},
			body:       validReq,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "breaker open",
			feedback:   &fakeFeedback{err: appErrors.NewAIError(appErrors.ErrCodeAIUnavailable, "circuit open", nil)},
			frames:     1,
			body:       validReq,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:       "upstream failure",
			feedback:   &fakeFeedback{err: appErrors.NewAIError(appErrors.ErrCodeAIServiceFailed, "boom", nil)},
			frames:     1,
			body:       validReq,
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "bad body",
			feedback:   &fakeFeedback{},
			body:       `{"question":`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, h := newTestServer(t, nil)
			srv.Feedback = tt.feedback

			id := decode[CreateSessionResponse](t, doJSON(t, h, http.MethodPost, "/sessions", nil, nil)).ID
			for range tt.frames {
				doJSON(t, h, http.MethodPost, "/sessions/"+id+"/frames", happyFrame, nil)
			}

			rec := doJSON(t, h, http.MethodPost, "/sessions/"+id+"/feedback", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			resp := decode[FeedbackResponse](t, rec)
			if resp.Feedback.OverallScore != 72 {
				t.Errorf("Expected score 72, got %d", resp.Feedback.OverallScore)
			}
			if tt.feedback.last.Summary.Samples != tt.frames {
				t.Errorf("Expected summary with %d samples, got %d", tt.frames, tt.feedback.last.Summary.Samples)
			}
			if tt.feedback.last.Question != validReq.Question {
				t.Errorf("Expected question to be forwarded, got %q", tt.feedback.last.Question)
			}
		})
	}
}

func TestFeedbackNotConfigured(t *testing.T) {
	_, h := newTestServer(t, nil)
	id := decode[CreateSessionResponse](t, doJSON(t, h, http.MethodPost, "/sessions", nil, nil)).ID

	rec := doJSON(t, h, http.MethodPost, "/sessions/"+id+"/feedback", FeedbackRequest{Question: "q", Answer: "a"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("plain"), http.StatusInternalServerError},
		{appErrors.NewValidationError(appErrors.ErrCodeInvalidRequest, "bad", nil), http.StatusBadRequest},
		{appErrors.NewNotFoundError(appErrors.ErrCodeSessionNotFound, "gone", nil), http.StatusNotFound},
		{appErrors.NewAIError(appErrors.ErrCodeAITimeout, "slow", nil), http.StatusGatewayTimeout},
		{appErrors.NewAIError(appErrors.ErrCodeAIResponseParse, "junk", nil), http.StatusBadGateway},
		{fmt.Errorf("wrapped: %w", appErrors.NewAIError(appErrors.ErrCodeAIUnavailable, "open", nil)), http.StatusServiceUnavailable},
		{appErrors.NewConfigError(appErrors.ErrCodeInvalidConfig, "cfg", nil), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusForError(tt.err); got != tt.want {
				t.Errorf("statusForError() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestServerConfigFrom(t *testing.T) {
	cfg := &config.Config{}
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = "9090"
	cfg.Server.APIKeys = []string{"a", "", "b"}
	cfg.Engagement.HistorySize = 12
	cfg.Engagement.StreamReadLimit = 2048
	cfg.Server.AllowedOrigins = []string{"https://ui.example.com"}

	sc := ServerConfigFrom(cfg, "1.2.3")
	if sc.Port != "9090" || sc.Version != "1.2.3" || sc.HistorySize != 12 {
		t.Errorf("Unexpected server config: %+v", sc)
	}

	srv := NewServer(cfg, sc, testLogger())
	defer srv.Close()
	if len(srv.APIKeys) != 2 {
		t.Errorf("Expected empty keys to be dropped, got %d keys", len(srv.APIKeys))
	}
	if srv.streamReadLimit != 2048 {
		t.Errorf("Expected stream read limit 2048, got %d", srv.streamReadLimit)
	}
	if srv.RateLimiter != nil {
		t.Error("Expected no rate limiter when disabled")
	}
	if srv.upgrader.CheckOrigin == nil || len(srv.AllowedOrigins) != 1 {
		t.Error("Expected configured origins to reach the upgrader")
	}
}
