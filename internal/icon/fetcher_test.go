package icon

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestFetcher(direct, fallback *httptest.Server) *Fetcher {
	f := NewFetcher(NewCache(nil, 0), zerolog.Nop())
	f.directFmt = direct.URL + "/%s/favicon.ico"
	f.fallbackFmt = fallback.URL + "/s2?domain=%s"
	return f
}

func iconServer(t *testing.T, status int, body, contentType string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		} else {
			// Suppress net/http's content sniffing so the response truly
			// carries no Content-Type header.
			w.Header()["Content-Type"] = nil
		}
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve_DirectHit(t *testing.T) {
	direct := iconServer(t, http.StatusOK, "direct-icon-bytes", "image/png")
	fallback := iconServer(t, http.StatusOK, "fallback-bytes", "image/png")

	f := newTestFetcher(direct, fallback)
	data, ct, err := f.Resolve(context.Background(), "https://example.com/some/page")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(data) != "direct-icon-bytes" {
		t.Errorf("data = %q, want direct icon", data)
	}
	if ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
}

func TestResolve_FallsBackWhenDirectFails(t *testing.T) {
	direct := iconServer(t, http.StatusNotFound, "", "")
	fallback := iconServer(t, http.StatusOK, "fallback-bytes", "image/png")

	f := newTestFetcher(direct, fallback)
	data, _, err := f.Resolve(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(data) != "fallback-bytes" {
		t.Errorf("data = %q, want fallback icon", data)
	}
}

func TestResolve_BothFail(t *testing.T) {
	direct := iconServer(t, http.StatusNotFound, "", "")
	fallback := iconServer(t, http.StatusInternalServerError, "", "")

	f := newTestFetcher(direct, fallback)
	if _, _, err := f.Resolve(context.Background(), "https://example.com"); err == nil {
		t.Fatal("Resolve = nil, want error when both sources fail")
	}
}

func TestResolve_EmptyBodyTriggersFallback(t *testing.T) {
	direct := iconServer(t, http.StatusOK, "", "image/png")
	fallback := iconServer(t, http.StatusOK, "fallback-bytes", "image/png")

	f := newTestFetcher(direct, fallback)
	data, _, err := f.Resolve(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if string(data) != "fallback-bytes" {
		t.Errorf("data = %q, want fallback icon", data)
	}
}

func TestResolve_DefaultContentType(t *testing.T) {
	direct := iconServer(t, http.StatusOK, "bytes", "")
	fallback := iconServer(t, http.StatusOK, "fallback", "")

	f := newTestFetcher(direct, fallback)
	_, ct, err := f.Resolve(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ct != "image/x-icon" {
		t.Errorf("content type = %q, want image/x-icon default", ct)
	}
}

func TestHostOf(t *testing.T) {
	tests := []struct {
		rawURL  string
		want    string
		wantErr bool
	}{
		{"https://example.com/path?q=1", "example.com", false},
		{"http://sub.example.com:8080", "sub.example.com", false},
		{"example.com", "example.com", false},
		{"https://", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := hostOf(tt.rawURL)
		if (err != nil) != tt.wantErr {
			t.Errorf("hostOf(%q) error = %v, wantErr %v", tt.rawURL, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("hostOf(%q) = %q, want %q", tt.rawURL, got, tt.want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	if got := cacheKey("Example.COM"); got != "ainav:icon:example.com" {
		t.Errorf("cacheKey = %q", got)
	}
}

func TestNilRedisCachePassThrough(t *testing.T) {
	c := NewCache(nil, 0)
	ctx := context.Background()

	if _, err := c.Get(ctx, "example.com"); err != ErrCacheMiss {
		t.Errorf("Get on nil backend = %v, want ErrCacheMiss", err)
	}
	if err := c.Set(ctx, "example.com", &Entry{Data: []byte("x")}); err != nil {
		t.Errorf("Set on nil backend = %v, want nil", err)
	}
}
