package nanopub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/nanoreport/internal/cache"
)

func testClientConfig(server string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.ServerURL = server
	cfg.TestServerURL = server + "/test"
	cfg.Timeout = 5 * time.Second
	cfg.UserAgent = "test-agent"
	cfg.RequestsPerSecond = 1000
	return cfg
}

func noSleep(t *testing.T) {
	t.Helper()
	orig := publishSleepFunc
	publishSleepFunc = func(time.Duration) {}
	t.Cleanup(func() { publishSleepFunc = orig })
}

func signedNanopub(t *testing.T, conf Conf) *Nanopub {
	t.Helper()
	conf.Profile = testProfile(t)
	np := New(testAssertion(t), conf, WithClock(fixedClock))
	if err := np.Sign(); err != nil {
		t.Fatal(err)
	}
	return np
}

func TestClient_PublishSuccess(t *testing.T) {
	var gotPath, gotType, gotUA string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotType = r.Header.Get("Content-Type")
		gotUA = r.Header.Get("User-Agent")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	np := signedNanopub(t, Conf{UseTestServer: true})

	if err := client.Publish(context.Background(), np); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if gotPath != "/test" {
		t.Errorf("expected test server path, got %q", gotPath)
	}
	if gotType != "application/trig" {
		t.Errorf("unexpected content type %q", gotType)
	}
	if gotUA != "test-agent" {
		t.Errorf("unexpected user agent %q", gotUA)
	}
	if !strings.Contains(string(gotBody), np.URI()) {
		t.Error("request body should contain the trusty URI")
	}
	if !strings.HasPrefix(string(gotBody), "<"+np.URI()+"/Head> {\n") {
		t.Errorf("request body should open with the head graph block:\n%s", gotBody)
	}
}

func TestClient_ServerRatesThrottleHost(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	cfg := testClientConfig(server.URL)
	cfg.ServerRates = map[string]float64{strings.TrimPrefix(server.URL, "http://"): 0.001}
	client := NewClient(cfg)

	if err := client.PublishRaw(context.Background(), server.URL, []byte("x")); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := client.PublishRaw(ctx, server.URL, []byte("x")); err == nil {
		t.Error("second publish should be throttled by the per-host rate")
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 request to reach the server, got %d", calls.Load())
	}
}

func TestClient_PublishRequiresSignature(t *testing.T) {
	client := NewClient(testClientConfig("http://127.0.0.1:1"))
	np := New(testAssertion(t), Conf{})
	if err := client.Publish(context.Background(), np); err == nil {
		t.Error("expected error publishing an unsigned nanopub")
	}
}

func TestClient_PublishRetriesTransient(t *testing.T) {
	noSleep(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	if err := client.PublishRaw(context.Background(), server.URL, []byte("x")); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestClient_PublishPermanentFailure(t *testing.T) {
	noSleep(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = fmt.Fprint(w, "invalid nanopub\n")
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	err := client.PublishRaw(context.Background(), server.URL, []byte("x"))

	var pe *PublishError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PublishError, got %v", err)
	}
	if pe.StatusCode != http.StatusBadRequest || pe.Body != "invalid nanopub" {
		t.Errorf("unexpected error fields: %+v", pe)
	}
	if attempts.Load() != 1 {
		t.Errorf("400 should not be retried, got %d attempts", attempts.Load())
	}
}

func TestClient_PublishAllRetriesExhausted(t *testing.T) {
	noSleep(t)

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	if err := client.PublishRaw(context.Background(), server.URL, []byte("x")); err == nil {
		t.Fatal("expected error after all retries exhausted")
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestIsRetryablePublishError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"503", &PublishError{StatusCode: 503}, true},
		{"500", &PublishError{StatusCode: 500}, true},
		{"429", &PublishError{StatusCode: 429}, true},
		{"404", &PublishError{StatusCode: 404}, false},
		{"401", &PublishError{StatusCode: 401}, false},
		{"canceled", fmt.Errorf("publish: %w", context.Canceled), false},
		{"plain", errors.New("create request: bad"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryablePublishError(tt.err); got != tt.retryable {
				t.Errorf("isRetryablePublishError(%v) = %v, want %v", tt.err, got, tt.retryable)
			}
		})
	}
}

func TestClient_FetchUsesCache(t *testing.T) {
	np := signedNanopub(t, Conf{})
	body := encodeNQuads(t, np.Quads())

	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Accept") != "application/n-quads" {
			t.Errorf("unexpected Accept header %q", r.Header.Get("Accept"))
		}
		_, _ = w.Write(body)
	}))
	defer server.Close()

	mem := cache.NewMemoryCache(time.Minute, time.Minute)
	client := NewClient(testClientConfig(server.URL), WithCache(mem, time.Minute))
	uri := server.URL + "/" + strings.TrimPrefix(np.URI(), TrustyBase)

	first, err := client.Fetch(context.Background(), uri)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if first.Cached || len(first.Quads) != len(np.Quads()) {
		t.Errorf("first fetch: cached=%v quads=%d", first.Cached, len(first.Quads))
	}

	second, err := client.Fetch(context.Background(), uri)
	if err != nil {
		t.Fatalf("Fetch (cached): %v", err)
	}
	if !second.Cached {
		t.Error("second fetch should come from cache")
	}
	if hits.Load() != 1 {
		t.Errorf("expected one request, got %d", hits.Load())
	}
}

func TestClient_FetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(testClientConfig(server.URL))
	_, err := client.Fetch(context.Background(), server.URL+"/RAmissing")

	var pe *PublishError
	if !errors.As(err, &pe) || pe.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 PublishError, got %v", err)
	}
}

func TestClientConfig_Server(t *testing.T) {
	cfg := DefaultClientConfig()

	tests := []struct {
		name string
		conf Conf
		want string
	}{
		{"production", Conf{}, ProductionServer},
		{"test", Conf{UseTestServer: true}, TestServer},
		{"override", Conf{UseTestServer: true, ServerURL: "https://np.example.org/"}, "https://np.example.org/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.Server(tt.conf); got != tt.want {
				t.Errorf("Server() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLoadClientConfig_Env(t *testing.T) {
	t.Setenv("NANOPUB_TEST_SERVER_URL", "https://np.example.org/")
	t.Setenv("NANOPUB_TIMEOUT", "10s")
	t.Setenv("NANOPUB_MAX_ATTEMPTS", "5")

	cfg, err := LoadClientConfig()
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	if cfg.TestServerURL != "https://np.example.org/" || cfg.Timeout != 10*time.Second || cfg.MaxAttempts != 5 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.ServerURL != ProductionServer {
		t.Errorf("expected default production server, got %s", cfg.ServerURL)
	}
}

func TestLoadClientConfig_ServerRatesEnv(t *testing.T) {
	t.Setenv("NANOPUB_SERVER_RATES", "np.test.knowledgepixels.com:0.5,np.knowledgepixels.com:4")

	cfg, err := LoadClientConfig()
	if err != nil {
		t.Fatalf("LoadClientConfig: %v", err)
	}
	want := map[string]float64{"np.test.knowledgepixels.com": 0.5, "np.knowledgepixels.com": 4}
	if diff := cmp.Diff(want, cfg.ServerRates); diff != "" {
		t.Errorf("ServerRates mismatch (-want +got):\n%s", diff)
	}

	t.Setenv("NANOPUB_SERVER_RATES", "np.knowledgepixels.com:0")
	if _, err := LoadClientConfig(); err == nil {
		t.Error("expected validation error for a zero server rate")
	}
}

func TestLoadClientConfig_Invalid(t *testing.T) {
	t.Setenv("NANOPUB_MAX_ATTEMPTS", "0")
	if _, err := LoadClientConfig(); err == nil {
		t.Error("expected validation error for zero attempts")
	}
}

func TestLoadClientConfigFrom_KeepsBase(t *testing.T) {
	t.Setenv("NANOPUB_RATE", "5")

	base := DefaultClientConfig()
	base.TestServerURL = "https://np.example.org/"
	base.MaxAttempts = 4

	cfg, err := LoadClientConfigFrom(base)
	if err != nil {
		t.Fatalf("LoadClientConfigFrom: %v", err)
	}
	if cfg.TestServerURL != "https://np.example.org/" || cfg.MaxAttempts != 4 {
		t.Errorf("base values lost: %+v", cfg)
	}
	if cfg.RequestsPerSecond != 5 {
		t.Errorf("env override not applied: %v", cfg.RequestsPerSecond)
	}
}

func TestTrustyURI(t *testing.T) {
	code := ArtifactCodePrefix + strings.Repeat("a", 43)

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{TrustyBase + code, TrustyBase + code, false},
		{TestServer + code, TrustyBase + code, false},
		{TestServer + code + "/", TrustyBase + code, false},
		{code, TrustyBase + code, false},
		{TestServer + "RAshort", "", true},
		{"https://example.org/np/abc", "", true},
	}
	for _, tt := range tests {
		got, err := TrustyURI(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("TrustyURI(%s) = %s, %v", tt.in, got, err)
		}
	}
}
