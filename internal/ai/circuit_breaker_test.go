package ai

import (
	"errors"
	"testing"
	"time"

	"engagemeter/internal/config"
)

func breakerConfig() config.CircuitBreakerConfig {
	return config.CircuitBreakerConfig{
		Enabled:          true,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		MinRequests:      2,
		FailureThreshold: 0.5,
	}
}

func TestCircuitBreakerInitialState(t *testing.T) {
	cb := NewCircuitBreaker[int]("Feedback", breakerConfig(), nil)

	stats := cb.GetStats()
	name, ok := stats["name"].(string)
	if !ok {
		t.Fatal("Circuit breaker name not found")
	}
	if name != "AI-Feedback" {
		t.Errorf("Expected circuit breaker name 'AI-Feedback', got '%s'", name)
	}
	if state := stats["state"]; state != "closed" {
		t.Errorf("Expected initial state 'closed', got '%v'", state)
	}
	if !cb.IsHealthy() {
		t.Error("Expected new circuit breaker to be healthy")
	}
}

func TestCircuitBreakerTrips(t *testing.T) {
	cb := NewCircuitBreaker[int]("Feedback", breakerConfig(), nil)
	failure := errors.New("upstream down")

	for range 2 {
		if _, err := cb.Execute(func() (int, error) { return 0, failure }); !errors.Is(err, failure) {
			t.Fatalf("Expected upstream error, got %v", err)
		}
	}

	if cb.IsHealthy() {
		t.Fatal("Expected breaker to be open after repeated failures")
	}

	called := false
	_, err := cb.Execute(func() (int, error) {
		called = true
		return 1, nil
	})
	if called {
		t.Error("Open breaker must not call the function")
	}
	if !IsOpen(err) {
		t.Errorf("Expected open-state error, got %v", err)
	}
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cfg := breakerConfig()
	cfg.Enabled = false

	cb := NewCircuitBreaker[string]("Feedback", cfg, nil)
	if cb != nil {
		t.Fatal("Expected nil breaker when disabled")
	}

	got, err := cb.Execute(func() (string, error) { return "ok", nil })
	if err != nil || got != "ok" {
		t.Errorf("Expected pass-through result, got %q, %v", got, err)
	}
	if enabled := cb.GetStats()["enabled"]; enabled != false {
		t.Errorf("Expected enabled=false, got %v", enabled)
	}
	if !cb.IsHealthy() {
		t.Error("Disabled breaker should report healthy")
	}
}

func TestCircuitBreakerMinRequests(t *testing.T) {
	cfg := breakerConfig()
	cfg.MinRequests = 5
	cb := NewCircuitBreaker[int]("Feedback", cfg, nil)

	for range 4 {
		_, _ = cb.Execute(func() (int, error) { return 0, errors.New("fail") })
	}
	if !cb.IsHealthy() {
		t.Error("Breaker should stay closed below minRequests")
	}
}
