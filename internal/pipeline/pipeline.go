// Package pipeline wires configuration, transport, cache and the plugin
// registry together for the CLI.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ppiankov/nanoreport/internal/cache"
	"github.com/ppiankov/nanoreport/internal/model"
	"github.com/ppiankov/nanoreport/internal/nanopub"
	"github.com/ppiankov/nanoreport/internal/plugin"
	"github.com/ppiankov/nanoreport/internal/reporter"
	"github.com/ppiankov/nanoreport/internal/settings"
)

// Pipeline holds the collaborators shared by all commands
type Pipeline struct {
	config   *model.Config
	client   *nanopub.Client
	registry *plugin.Registry
	logger   *slog.Logger
	now      func() time.Time

	mu   sync.Mutex
	last *nanopub.Nanopub
}

// NewPipeline creates a pipeline from the host configuration.
// NANOPUB_* environment variables override the transport settings.
func NewPipeline(cfg *model.Config, logger *slog.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = model.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg, err := nanopub.LoadClientConfigFrom(ClientConfig(cfg))
	if err != nil {
		return nil, err
	}

	var opts []nanopub.ClientOption
	if cfg.Cache.Enabled {
		opts = append(opts, nanopub.WithCache(cache.New(cfg.Cache.Memory, cfg.Cache.Dir, cfg.Cache.TTL), cfg.Cache.TTL))
	}

	p := &Pipeline{
		config:   cfg,
		client:   nanopub.NewClient(clientCfg, opts...),
		registry: plugin.NewRegistry(),
		logger:   logger,
		now:      time.Now,
	}

	deps := reporter.Deps{
		Profiles: nanopub.FileProfileLoader{Path: cfg.Profile.Path},
		Build:    p.build,
	}
	if err := p.registry.Register(reporter.Definition(deps)); err != nil {
		return nil, err
	}
	return p, nil
}

// ClientConfig maps the host configuration onto the nanopub client settings
func ClientConfig(cfg *model.Config) nanopub.ClientConfig {
	return nanopub.ClientConfig{
		ServerURL:         cfg.Server.Production,
		TestServerURL:     cfg.Server.Test,
		Timeout:           cfg.HTTP.Timeout,
		UserAgent:         cfg.HTTP.UserAgent,
		MaxAttempts:       cfg.HTTP.MaxAttempts,
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		HTTPProxy:         cfg.HTTP.HTTPProxy,
		HTTPSProxy:        cfg.HTTP.HTTPSProxy,
		NoProxy:           cfg.HTTP.NoProxy,
		ServerRates:       cfg.HTTP.ServerRates,
	}
}

// Registry returns the plugins known to the host
func (p *Pipeline) Registry() *plugin.Registry {
	return p.registry
}

// Client returns the nanopub client
func (p *Pipeline) Client() *nanopub.Client {
	return p.client
}

// build creates publications sent through the client and remembers the
// latest one so Report can describe it
func (p *Pipeline) build(assertion *nanopub.Graph, conf nanopub.Conf) reporter.Publication {
	np := nanopub.New(assertion, conf, nanopub.WithPublisher(p.client))

	p.mu.Lock()
	p.last = np
	p.mu.Unlock()

	return np
}

// Report loads the named plugin with values and renders it.
// Errors from the plugin are returned unchanged.
func (p *Pipeline) Report(ctx context.Context, name string, values settings.Values) (*model.PublishResult, error) {
	rep, err := p.registry.Load(name, values, p.logger)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.last = nil
	p.mu.Unlock()

	if err := rep.Render(ctx); err != nil {
		return nil, err
	}

	result := &model.PublishResult{
		Plugin:      name,
		PublishedAt: p.now().UTC(),
	}

	p.mu.Lock()
	np := p.last
	p.mu.Unlock()
	if np == nil {
		return result, nil
	}

	conf := np.Conf()
	result.URI = np.URI()
	result.DryRun = conf.DryRun
	if !conf.DryRun {
		result.Server = p.client.Config().Server(conf)
	}
	result.Metadata = metadataStrings(np.Metadata())
	return result, nil
}

func metadataStrings(entries []nanopub.Metadata) map[string]string {
	out := make(map[string]string, len(entries))
	for _, m := range entries {
		if m.Value == nil {
			continue
		}
		s, err := settings.UnparseValue(m.Field, m.Value)
		if err != nil {
			s = fmt.Sprint(m.Value)
		}
		out[m.Name] = s
	}
	return out
}

// Fetch retrieves a published nanopub and, when verify is set, checks its
// trusty code and signature
func (p *Pipeline) Fetch(ctx context.Context, uri string, verify bool) (*model.FetchResult, []byte, error) {
	fetched, err := p.client.Fetch(ctx, uri)
	if err != nil {
		return nil, nil, err
	}

	result := &model.FetchResult{
		URI:    uri,
		Quads:  len(fetched.Quads),
		Cached: fetched.Cached,
	}
	if verify {
		trusty, err := nanopub.TrustyURI(uri)
		if err != nil {
			return nil, nil, err
		}
		if err := nanopub.Verify(fetched.Quads, trusty); err != nil {
			return nil, nil, fmt.Errorf("verify %s: %w", trusty, err)
		}
		result.URI = trusty
		result.Verified = true
	}

	p.logger.Debug("fetched nanopub", "uri", uri, "quads", result.Quads, "cached", result.Cached)
	return result, fetched.NQuads, nil
}

// WriteJSON writes v as indented JSON to path
func WriteJSON(v any, path string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
