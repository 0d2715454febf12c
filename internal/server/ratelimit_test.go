package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestLimiterManager(t *testing.T) {
	m := NewRateLimiter(60, 2, testLogger())
	defer m.Close()

	if !m.Allow("a") || !m.Allow("a") {
		t.Fatal("Expected burst of 2 to be allowed")
	}
	if m.Allow("a") {
		t.Error("Expected third request to be rejected")
	}
	if !m.Allow("b") {
		t.Error("Expected separate key to have its own bucket")
	}

	stats := m.GetStats()
	if stats["active_limiters"] != 2 {
		t.Errorf("Expected 2 limiters, got %v", stats["active_limiters"])
	}
	if stats["rejected_requests"] != int64(1) {
		t.Errorf("Expected 1 rejection, got %v", stats["rejected_requests"])
	}

	m.cleanup(0)
	if got := m.GetStats()["active_limiters"]; got != 0 {
		t.Errorf("Expected cleanup to drop idle limiters, got %v", got)
	}

	m.Close()
}

func TestGetRateLimitKey(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		byAPIKey bool
		byIP     bool
		wantKey  string
		wantType string
	}{
		{"by ip", nil, false, true, "ip:192.0.2.1", "ip"},
		{"api key preferred", map[string]string{"X-API-Key": "k"}, true, true, "api:k", "api_key"},
		{"api key missing falls back to ip", nil, true, true, "ip:192.0.2.1", "ip"},
		{"forwarded for", map[string]string{"X-Forwarded-For": "bogus, 10.1.1.1"}, false, true, "ip:10.1.1.1", "ip"},
		{"real ip", map[string]string{"X-Real-IP": "10.2.2.2"}, false, true, "ip:10.2.2.2", "ip"},
		{"nothing enabled", nil, false, false, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			key, typ := getRateLimitKey(r, tt.byAPIKey, tt.byIP)
			if key != tt.wantKey || typ != tt.wantType {
				t.Errorf("getRateLimitKey() = (%q, %q), want (%q, %q)", key, typ, tt.wantKey, tt.wantType)
			}
		})
	}
}
