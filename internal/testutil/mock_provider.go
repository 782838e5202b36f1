// Package testutil provides testing utilities for the ai-nav-item service.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// ProviderResponse scripts one mock provider reply.
type ProviderResponse struct {
	StatusCode int
	// Content is the assistant message content for 200 responses.
	Content string
	// ErrorMessage fills the error body for non-200 responses.
	ErrorMessage string
	Delay        time.Duration
}

// MockProvider is a scriptable chat-completions server for tests. Without a
// script it answers every request with well-formed metadata JSON.
type MockProvider struct {
	server *httptest.Server

	mu     sync.Mutex
	script []ProviderResponse

	// Tracking
	RequestCount  int
	inFlight      int
	MaxInFlight   int
	LastUserMsg   string
	failuresLeft  int
	failureStatus int
}

// NewMockProvider starts a mock provider server.
func NewMockProvider() *MockProvider {
	m := &MockProvider{}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

// URL returns the mock server base URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Enqueue appends scripted responses consumed in FIFO order before the
// default behavior resumes.
func (m *MockProvider) Enqueue(resps ...ProviderResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, resps...)
}

// FailFirst makes the next n requests fail with the given status before
// succeeding normally.
func (m *MockProvider) FailFirst(n, status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failuresLeft = n
	m.failureStatus = status
}

// Reset clears the script and all tracking counters.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = nil
	m.RequestCount = 0
	m.MaxInFlight = 0
	m.LastUserMsg = ""
	m.failuresLeft = 0
}

// Requests returns the number of requests served so far.
func (m *MockProvider) Requests() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RequestCount
}

// HighWater returns the maximum number of concurrently in-flight requests
// observed, which is how tests verify the engine's window sizing.
func (m *MockProvider) HighWater() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.MaxInFlight
}

func (m *MockProvider) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	m.RequestCount++
	m.inFlight++
	if m.inFlight > m.MaxInFlight {
		m.MaxInFlight = m.inFlight
	}
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			m.LastUserMsg = msg.Content
		}
	}

	var resp ProviderResponse
	switch {
	case len(m.script) > 0:
		resp = m.script[0]
		m.script = m.script[1:]
	case m.failuresLeft > 0:
		m.failuresLeft--
		resp = ProviderResponse{StatusCode: m.failureStatus, ErrorMessage: http.StatusText(m.failureStatus)}
	default:
		resp = ProviderResponse{
			StatusCode: http.StatusOK,
			Content:    `{"description": "A generated description.", "tags": ["alpha", "beta"]}`,
		}
	}
	m.mu.Unlock()

	if resp.Delay > 0 {
		time.Sleep(resp.Delay)
	}

	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if resp.StatusCode != http.StatusOK {
		w.WriteHeader(resp.StatusCode)
		fmt.Fprintf(w, `{"error": {"message": %q}}`, resp.ErrorMessage)
		return
	}

	body := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": resp.Content}},
		},
	}
	_ = json.NewEncoder(w).Encode(body)
}
