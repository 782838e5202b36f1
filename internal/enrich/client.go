// Package enrich integrates the external text-generation provider: it builds
// prompts for nav items, parses generated metadata, and classifies provider
// failures so the batch engine can react to throttling.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for provider calls.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ainav_provider_requests_total",
		Help: "Total text-generation provider requests by result",
	}, []string{"result"}) // "ok", "throttled", "error"

	providerRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ainav_provider_request_duration_seconds",
		Help:    "Provider request duration in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30},
	})
)

// ProviderConfig holds the provider connection settings. The endpoint speaks
// the common chat-completions JSON shape; the concrete vendor behind it does
// not matter to the rest of the system.
type ProviderConfig struct {
	// BaseURL is the API root, e.g. "https://api.example.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token.
	APIKey string

	// Model names the text-generation model to use.
	Model string

	// Timeout bounds one provider call.
	Timeout time.Duration
}

// ProviderError is a failed provider response with enough context for
// classification.
type ProviderError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %s", e.StatusCode, e.Message)
}

// Metadata is the generated enrichment payload for one nav item.
type Metadata struct {
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Client talks to the text-generation provider.
type Client struct {
	httpClient *http.Client
	cfg        ProviderConfig
	logger     zerolog.Logger
}

// NewClient creates a provider client.
func NewClient(cfg ProviderConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("provider base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("provider model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     log.With().Str("component", "enrich-provider").Logger(),
	}, nil
}

// chatRequest / chatResponse mirror the chat-completions wire shape.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

const systemPrompt = `You write navigation-site metadata. Given a site title and URL, reply with a single JSON object: {"description": "<one concise sentence>", "tags": ["<3-5 short tags>"]}. Reply with JSON only.`

// GenerateMetadata asks the provider for a description and tags for one nav
// entry. A reply whose JSON cannot be fully parsed may yield a Metadata with
// a description but no tags; the caller decides how to treat that.
func (c *Client) GenerateMetadata(ctx context.Context, title, url string) (Metadata, error) {
	start := time.Now()
	defer func() {
		providerRequestDuration.Observe(time.Since(start).Seconds())
	}()

	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: fmt.Sprintf("Title: %s\nURL: %s", title, url)},
		},
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Metadata{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		providerRequestsTotal.WithLabelValues("error").Inc()
		return Metadata{}, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		providerRequestsTotal.WithLabelValues("error").Inc()
		return Metadata{}, fmt.Errorf("read provider response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		perr := &ProviderError{StatusCode: resp.StatusCode, Message: providerMessage(raw, resp.Status)}
		if resp.StatusCode == http.StatusTooManyRequests {
			providerRequestsTotal.WithLabelValues("throttled").Inc()
		} else {
			providerRequestsTotal.WithLabelValues("error").Inc()
		}
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("title", title).
			Msg("Provider request failed")
		return Metadata{}, perr
	}

	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		providerRequestsTotal.WithLabelValues("error").Inc()
		return Metadata{}, fmt.Errorf("decode provider response: %w", err)
	}
	if len(cr.Choices) == 0 {
		providerRequestsTotal.WithLabelValues("error").Inc()
		return Metadata{}, &ProviderError{StatusCode: resp.StatusCode, Message: "empty choices"}
	}

	meta := parseContent(cr.Choices[0].Message.Content)
	providerRequestsTotal.WithLabelValues("ok").Inc()
	return meta, nil
}

// providerMessage extracts the error message from a provider error body,
// falling back to the HTTP status line.
func providerMessage(raw []byte, fallback string) string {
	var cr chatResponse
	if err := json.Unmarshal(raw, &cr); err == nil && cr.Error != nil && cr.Error.Message != "" {
		return cr.Error.Message
	}
	if msg := strings.TrimSpace(string(raw)); msg != "" && len(msg) <= 512 {
		return msg
	}
	return fallback
}

// parseContent extracts metadata from the model reply. Models wrap JSON in
// code fences or prose often enough that we search for the first object
// instead of decoding the whole reply.
func parseContent(content string) Metadata {
	var meta Metadata

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &meta); err == nil {
			meta.Description = strings.TrimSpace(meta.Description)
			return meta
		}
	}

	// No parsable object: treat the whole reply as a bare description.
	return Metadata{Description: strings.TrimSpace(content)}
}
