package nanopub

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/knakk/rdf"

	"github.com/ppiankov/nanoreport/internal/cache"
	"github.com/ppiankov/nanoreport/internal/util"
	"github.com/ppiankov/nanoreport/internal/worker"
)

// publishSleepFunc is replaced in tests to skip backoff delays
var publishSleepFunc = time.Sleep

// PublishError is returned when a server rejects a request
type PublishError struct {
	Server     string
	StatusCode int
	Status     string
	Body       string
}

func (e *PublishError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("unexpected status from %s: %s: %s", e.Server, e.Status, e.Body)
	}
	return fmt.Sprintf("unexpected status from %s: %s", e.Server, e.Status)
}

// Retryable reports whether repeating the request may succeed
func (e *PublishError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithCache enables caching of fetched nanopublications
func WithCache(c cache.Cache, ttl time.Duration) ClientOption {
	return func(cl *Client) {
		cl.cache = c
		cl.cacheTTL = ttl
	}
}

// Client talks to nanopublication servers
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *worker.Limiter
	cache      cache.Cache
	cacheTTL   time.Duration
}

// NewClient creates a Client
func NewClient(cfg ClientConfig, opts ...ClientOption) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultClientConfig().MaxBodyBytes
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("stopped after 5 redirects")
				}
				return nil
			},
		},
		limiter: worker.NewLimiter(cfg.RequestsPerSecond, 1),
	}
	for host, rps := range cfg.ServerRates {
		c.limiter.SetHostRate(host, rps, 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the client configuration
func (c *Client) Config() ClientConfig {
	return c.cfg
}

// Publish sends a signed nanopublication to the server selected by its Conf
func (c *Client) Publish(ctx context.Context, np *Nanopub) error {
	if !np.Signed() {
		return errors.New("nanopub must be signed before publishing")
	}
	body, err := np.TriG()
	if err != nil {
		return err
	}
	return c.PublishRaw(ctx, c.cfg.Server(np.Conf()), body)
}

// PublishRaw posts a serialized TriG nanopub, retrying transient failures
func (c *Client) PublishRaw(ctx context.Context, server string, body []byte) error {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		lastErr = c.post(ctx, server, body)
		if lastErr == nil {
			return nil
		}
		if !isRetryablePublishError(lastErr) || attempt == c.cfg.MaxAttempts {
			break
		}
		publishSleepFunc(backoff(attempt))
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return lastErr
}

func (c *Client) post(ctx context.Context, server string, body []byte) error {
	if err := c.limiter.Wait(ctx, server); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/trig")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &PublishError{
			Server:     server,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(bytes.TrimSpace(respBody)),
		}
	}
	return nil
}

// Fetched is a nanopublication retrieved from a server
type Fetched struct {
	URI    string
	NQuads []byte
	Quads  []rdf.Quad
	Cached bool
}

// Fetch retrieves a published nanopublication by URI
func (c *Client) Fetch(ctx context.Context, uri string) (*Fetched, error) {
	key := cache.CacheKey(uri)
	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			quads, err := DecodeNQuads(data)
			if err == nil {
				return &Fetched{URI: uri, NQuads: data, Quads: quads, Cached: true}, nil
			}
			_ = c.cache.Delete(key)
		}
	}

	if _, err := url.ParseRequestURI(uri); err != nil {
		return nil, fmt.Errorf("invalid nanopub URI: %w", err)
	}
	if err := c.limiter.Wait(ctx, uri); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/n-quads")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &PublishError{Server: uri, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	quads, err := DecodeNQuads(data)
	if err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(key, data, c.cacheTTL); err != nil {
			return nil, fmt.Errorf("cache nanopub: %w", err)
		}
	}

	return &Fetched{URI: uri, NQuads: data, Quads: quads}, nil
}

// DecodeNQuads parses N-Quads data
func DecodeNQuads(data []byte) ([]rdf.Quad, error) {
	dec := rdf.NewQuadDecoder(bytes.NewReader(data), rdf.NQuads)
	var quads []rdf.Quad
	for {
		q, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			return quads, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode n-quads: %w", err)
		}
		quads = append(quads, q)
	}
}

// isRetryablePublishError reports whether err is transient
func isRetryablePublishError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var pe *PublishError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}

	var ue *url.Error
	return errors.As(err, &ue)
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<(attempt-1)) * time.Second
}
