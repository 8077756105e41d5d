// Package reporter implements the nanopub report plugin: it wraps a
// one-triple assertion into a nanopublication, attaches the report
// settings as publication metadata and publishes it.
package reporter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/nanoreport/internal/nanopub"
	"github.com/ppiankov/nanoreport/internal/plugin"
	"github.com/ppiankov/nanoreport/internal/settings"
)

// Publication is the request object a render builds and publishes
type Publication interface {
	AddMetadata(name string, value any, field settings.Field) error
	Publish(ctx context.Context) (string, error)
}

// Builder creates a Publication for an assertion graph
type Builder func(assertion *nanopub.Graph, conf nanopub.Conf) Publication

// NewBuilder returns a Builder producing nanopubs sent through p
func NewBuilder(p nanopub.Publisher) Builder {
	return func(assertion *nanopub.Graph, conf nanopub.Conf) Publication {
		return nanopub.New(assertion, conf, nanopub.WithPublisher(p))
	}
}

// Deps are the collaborators injected by the host
type Deps struct {
	Profiles nanopub.ProfileLoader // Used unless the profile setting names a file
	Build    Builder
}

// Reporter publishes one nanopublication per Render
type Reporter struct {
	values   settings.Values
	order    []string
	metadata map[string]settings.Field
	logger   *slog.Logger
	profiles nanopub.ProfileLoader
	build    Builder
}

// New creates a Reporter for the plugin's own schema
func New(values settings.Values, logger *slog.Logger, deps Deps) (*Reporter, error) {
	return NewWithSchema(Schema(), values, logger, deps)
}

// NewWithSchema creates a Reporter for an arbitrary settings schema.
// The metadata map is computed here once and only read by Render.
func NewWithSchema(schema *settings.Schema, values settings.Values, logger *slog.Logger, deps Deps) (*Reporter, error) {
	if deps.Build == nil {
		return nil, fmt.Errorf("reporter %s: no publication builder", Name)
	}
	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("reporter %s: %w", Name, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	profiles := deps.Profiles
	if path, ok := values.Get(SettingProfile).(string); ok && path != "" {
		profiles = nanopub.FileProfileLoader{Path: path}
	}
	if profiles == nil {
		profiles = nanopub.FileProfileLoader{}
	}

	return &Reporter{
		values:   values,
		order:    schema.Names(),
		metadata: schema.Metadata(),
		logger:   logger,
		profiles: profiles,
		build:    deps.Build,
	}, nil
}

// Render builds and publishes the nanopublication.
// Failures from the profile store, graph construction, metadata or the
// publish call are returned unchanged.
func (r *Reporter) Render(ctx context.Context) error {
	profile, err := r.profiles.Load()
	if err != nil {
		return err
	}

	conf := nanopub.Conf{
		UseTestServer:                 r.boolSetting(SettingUseTestServer, true),
		Profile:                       profile,
		AddProvGeneratedTime:          true,
		AttributePublicationToProfile: true,
		ServerURL:                     r.stringSetting(SettingServer, ""),
		DryRun:                        r.boolSetting(SettingDryRun, false),
	}

	assertion := nanopub.NewGraph()
	err = assertion.AddIRI(
		r.stringSetting(SettingSubject, DefaultSubject),
		nanopub.RDFType,
		r.stringSetting(SettingAssertionClass, DefaultAssertionClass),
	)
	if err != nil {
		return err
	}

	pub := r.build(assertion, conf)

	for _, name := range r.order {
		if err := pub.AddMetadata(name, r.values.Get(name), r.metadata[name]); err != nil {
			return err
		}
	}

	uri, err := pub.Publish(ctx)
	if err != nil {
		return err
	}

	r.logger.Info("Nanopub published successfully: "+uri,
		"uri", uri,
		"test_server", conf.UseTestServer,
		"dry_run", conf.DryRun,
	)
	return nil
}

func (r *Reporter) stringSetting(name, fallback string) string {
	if s, ok := r.values.Get(name).(string); ok && s != "" {
		return s
	}
	return fallback
}

func (r *Reporter) boolSetting(name string, fallback bool) bool {
	if b, ok := r.values.Get(name).(bool); ok {
		return b
	}
	return fallback
}

// Definition registers the reporter with the host
func Definition(deps Deps) plugin.Definition {
	return plugin.Definition{
		Name:        Name,
		Description: "Publish workflow run metadata as a signed nanopublication",
		Version:     "0.1.0",
		Settings:    Schema(),
		Config:      &Settings{},
		New: func(values settings.Values, logger *slog.Logger) (plugin.Reporter, error) {
			return New(values, logger, deps)
		},
	}
}
