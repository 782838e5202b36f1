// Package icon resolves favicons for navigation items and caches the
// resulting blobs in Redis.
package icon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var iconFetches = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "ainav_icon_fetches_total",
		Help: "Total number of upstream favicon fetches by source",
	},
	[]string{"source"}, // "direct", "fallback"
)

// maxIconSize caps how much icon data we read from a remote server.
const maxIconSize = 512 * 1024

// fallbackURL is the Google favicon service used when a site does not
// serve /favicon.ico itself.
const fallbackURL = "https://www.google.com/s2/favicons?domain=%s&sz=64"

// Fetcher resolves favicons for hosts. It tries the site's own
// /favicon.ico first and falls back to the Google favicon service.
type Fetcher struct {
	httpClient  *http.Client
	cache       *Cache
	directFmt   string
	fallbackFmt string
	logger      zerolog.Logger
}

// NewFetcher creates a favicon fetcher backed by the given cache.
func NewFetcher(cache *Cache, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		cache:       cache,
		directFmt:   "https://%s/favicon.ico",
		fallbackFmt: fallbackURL,
		logger:      logger.With().Str("component", "icon").Logger(),
	}
}

// Resolve returns the favicon bytes and content type for the host of
// rawURL, consulting the cache first.
func (f *Fetcher) Resolve(ctx context.Context, rawURL string) ([]byte, string, error) {
	host, err := hostOf(rawURL)
	if err != nil {
		return nil, "", err
	}

	if entry, err := f.cache.Get(ctx, host); err == nil {
		return entry.Data, entry.ContentType, nil
	}

	data, contentType, err := f.fetch(ctx, host)
	if err != nil {
		return nil, "", err
	}

	if err := f.cache.Set(ctx, host, &Entry{
		Data:        data,
		ContentType: contentType,
		CachedAt:    time.Now(),
	}); err != nil {
		// Cache failures degrade to fetch-per-request, not to errors.
		f.logger.Warn().Err(err).Str("host", host).Msg("Failed to cache icon")
	}

	return data, contentType, nil
}

func (f *Fetcher) fetch(ctx context.Context, host string) ([]byte, string, error) {
	direct := fmt.Sprintf(f.directFmt, host)
	if data, ct, err := f.fetchOne(ctx, direct); err == nil {
		iconFetches.WithLabelValues("direct").Inc()
		return data, ct, nil
	} else {
		f.logger.Debug().Err(err).Str("host", host).Msg("Direct favicon fetch failed, using fallback")
	}

	data, ct, err := f.fetchOne(ctx, fmt.Sprintf(f.fallbackFmt, url.QueryEscape(host)))
	if err != nil {
		return nil, "", fmt.Errorf("resolve icon for %s: %w", host, err)
	}
	iconFetches.WithLabelValues("fallback").Inc()
	return data, ct, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, iconURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch icon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("icon fetch returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconSize))
	if err != nil {
		return nil, "", fmt.Errorf("read icon body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("icon fetch returned empty body")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/x-icon"
	}
	return data, contentType, nil
}

// hostOf extracts the host from a navigation item URL.
func hostOf(rawURL string) (string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return u.Hostname(), nil
}
