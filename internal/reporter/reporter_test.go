package reporter

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ppiankov/nanoreport/internal/nanopub"
	"github.com/ppiankov/nanoreport/internal/settings"
)

type metadataCall struct {
	Name  string
	Value any
	Field settings.Field
}

type fakePublication struct {
	calls     []metadataCall
	published int
	uri       string
	err       error
}

func (p *fakePublication) AddMetadata(name string, value any, field settings.Field) error {
	p.calls = append(p.calls, metadataCall{Name: name, Value: value, Field: field})
	return nil
}

func (p *fakePublication) Publish(ctx context.Context) (string, error) {
	p.published++
	return p.uri, p.err
}

type fakeBuilder struct {
	graphs []*nanopub.Graph
	confs  []nanopub.Conf
	pub    *fakePublication
}

func (b *fakeBuilder) build(assertion *nanopub.Graph, conf nanopub.Conf) Publication {
	b.graphs = append(b.graphs, assertion)
	b.confs = append(b.confs, conf)
	return b.pub
}

func testProfiles() nanopub.ProfileLoader {
	return nanopub.StaticProfileLoader{Profile: &nanopub.Profile{OrcidID: "https://orcid.org/0000-0000-0000-0000"}}
}

func newTestLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

// cmp cannot compare func fields; the codec is checked separately
var ignoreCodec = cmpopts.IgnoreFields(settings.Field{}, "Parse", "Unparse")

func TestRender_PublishesOneTripleAndLogsURI(t *testing.T) {
	const uri = "https://w3id.org/np/RAexampleexampleexampleexampleexampleexample1"

	fb := &fakeBuilder{pub: &fakePublication{uri: uri}}
	logger, logs := newTestLogger()
	values := settings.Defaults(Schema())
	values[SettingWorkflow] = "rna-seq"

	r, err := New(values, logger, Deps{Profiles: testProfiles(), Build: fb.build})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := r.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if len(fb.graphs) != 1 {
		t.Fatalf("expected one assertion graph, got %d", len(fb.graphs))
	}
	if fb.graphs[0].Len() != 1 {
		t.Errorf("expected exactly one triple, got %d", fb.graphs[0].Len())
	}
	triple := fb.graphs[0].Triples()[0]
	if triple.Subj.String() != DefaultSubject || triple.Pred.String() != nanopub.RDFType || triple.Obj.String() != DefaultAssertionClass {
		t.Errorf("unexpected triple: %v %v %v", triple.Subj, triple.Pred, triple.Obj)
	}
	if fb.pub.published != 1 {
		t.Errorf("expected one publish call, got %d", fb.pub.published)
	}
	if !strings.Contains(logs.String(), "Nanopub published successfully: "+uri) {
		t.Errorf("log does not contain the URI verbatim:\n%s", logs.String())
	}
}

func TestRender_Conf(t *testing.T) {
	fb := &fakeBuilder{pub: &fakePublication{uri: "u"}}
	logger, _ := newTestLogger()
	values := settings.Values{
		SettingWorkflow:      "wf",
		SettingUseTestServer: false,
		SettingServer:        "https://np.example.org/",
		SettingDryRun:        true,
	}

	r, err := New(values, logger, Deps{Profiles: testProfiles(), Build: fb.build})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background()); err != nil {
		t.Fatal(err)
	}

	conf := fb.confs[0]
	if conf.UseTestServer || !conf.DryRun || conf.ServerURL != "https://np.example.org/" {
		t.Errorf("settings not reflected in conf: %+v", conf)
	}
	if !conf.AddProvGeneratedTime || !conf.AttributePublicationToProfile {
		t.Errorf("provenance flags not set: %+v", conf)
	}
	if conf.Profile == nil || conf.Profile.OrcidID != "https://orcid.org/0000-0000-0000-0000" {
		t.Errorf("profile not injected: %+v", conf.Profile)
	}
}

func TestRender_AttachesEverySettingVerbatim(t *testing.T) {
	fb := &fakeBuilder{pub: &fakePublication{uri: "u"}}
	logger, _ := newTestLogger()
	schema := Schema()

	tags := []string{"genomics", "qc"}
	values := settings.Defaults(schema)
	values[SettingWorkflow] = "rna-seq"
	values[SettingTags] = tags

	r, err := New(values, logger, Deps{Profiles: testProfiles(), Build: fb.build})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(fb.pub.calls) != schema.Len() {
		t.Fatalf("expected %d metadata calls, got %d", schema.Len(), len(fb.pub.calls))
	}

	var want []metadataCall
	for _, f := range schema.Fields() {
		want = append(want, metadataCall{Name: f.Name, Value: values[f.Name], Field: f})
	}
	if diff := cmp.Diff(want, fb.pub.calls, ignoreCodec); diff != "" {
		t.Errorf("metadata calls mismatch (-want +got):\n%s", diff)
	}

	for _, c := range fb.pub.calls {
		if c.Name == SettingTags && !c.Field.HasCodec() {
			t.Error("tags metadata should carry its parse/unparse pair")
		}
	}
}

func TestRender_ZeroFields(t *testing.T) {
	fb := &fakeBuilder{pub: &fakePublication{uri: "u"}}
	logger, _ := newTestLogger()

	r, err := NewWithSchema(settings.NewSchema(), settings.Values{}, logger, Deps{Profiles: testProfiles(), Build: fb.build})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(fb.pub.calls) != 0 {
		t.Errorf("expected no metadata calls, got %d", len(fb.pub.calls))
	}
	if len(fb.graphs) != 1 || fb.graphs[0].Len() != 1 {
		t.Error("expected a one-triple graph even without settings")
	}
	if fb.pub.published != 1 {
		t.Errorf("expected one publish, got %d", fb.pub.published)
	}
}

func TestNewWithSchema_InvalidSchema(t *testing.T) {
	fb := &fakeBuilder{pub: &fakePublication{uri: "u"}}
	logger, _ := newTestLogger()
	schema := settings.NewSchema(
		settings.Field{Name: "dup", Help: "first"},
		settings.Field{Name: "dup", Help: "second"},
	)

	_, err := NewWithSchema(schema, settings.Values{"dup": 1}, logger, Deps{Profiles: testProfiles(), Build: fb.build})
	if err == nil || !strings.Contains(err.Error(), "dup: declared twice") {
		t.Errorf("NewWithSchema() = %v, want duplicate field error", err)
	}
	if len(fb.graphs) != 0 {
		t.Error("no publication should be built for an invalid schema")
	}
}

func TestRender_NFields(t *testing.T) {
	for _, n := range []int{1, 3, 7} {
		fields := make([]settings.Field, n)
		values := settings.Values{}
		for i := range fields {
			name := string(rune('a' + i))
			fields[i] = settings.Field{Name: name, Help: "help " + name}
			values[name] = i
		}

		fb := &fakeBuilder{pub: &fakePublication{uri: "u"}}
		logger, _ := newTestLogger()
		r, err := NewWithSchema(settings.NewSchema(fields...), values, logger, Deps{Profiles: testProfiles(), Build: fb.build})
		if err != nil {
			t.Fatal(err)
		}
		if err := r.Render(context.Background()); err != nil {
			t.Fatal(err)
		}

		if len(fb.pub.calls) != n {
			t.Fatalf("n=%d: got %d metadata calls", n, len(fb.pub.calls))
		}
		for i, c := range fb.pub.calls {
			if c.Name != fields[i].Name || c.Value != i || c.Field.Help != fields[i].Help {
				t.Errorf("n=%d: call %d = %+v", n, i, c)
			}
		}
	}
}

type publishFailure struct{ code int }

func (e *publishFailure) Error() string { return "server rejected nanopub" }

func TestRender_PublishErrorPropagatesUnchanged(t *testing.T) {
	want := &publishFailure{code: 500}
	fb := &fakeBuilder{pub: &fakePublication{err: want}}
	logger, logs := newTestLogger()

	r, err := New(settings.Values{SettingWorkflow: "wf"}, logger, Deps{Profiles: testProfiles(), Build: fb.build})
	if err != nil {
		t.Fatal(err)
	}

	got := r.Render(context.Background())
	if got != error(want) {
		t.Fatalf("Render returned %v (%T), want the publish error itself", got, got)
	}
	if got.Error() != "server rejected nanopub" {
		t.Errorf("message changed: %q", got.Error())
	}
	if strings.Contains(logs.String(), "published successfully") {
		t.Error("success must not be logged on failure")
	}
}

func TestRender_ProfileErrorPropagates(t *testing.T) {
	fb := &fakeBuilder{pub: &fakePublication{uri: "u"}}
	logger, _ := newTestLogger()

	r, err := New(settings.Values{SettingWorkflow: "wf"}, logger, Deps{Profiles: nanopub.StaticProfileLoader{}, Build: fb.build})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background()); !errors.Is(err, nanopub.ErrNoProfile) {
		t.Errorf("expected ErrNoProfile, got %v", err)
	}
	if len(fb.graphs) != 0 {
		t.Error("nothing should be built without a profile")
	}
}

func TestRender_InvalidSubject(t *testing.T) {
	fb := &fakeBuilder{pub: &fakePublication{uri: "u"}}
	logger, _ := newTestLogger()

	r, err := New(settings.Values{SettingSubject: "not an iri with spaces"}, logger, Deps{Profiles: testProfiles(), Build: fb.build})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background()); err == nil {
		t.Error("expected invalid IRI error")
	}
	if fb.pub.published != 0 {
		t.Error("publish must not run after a graph error")
	}
}

func TestNew_RequiresBuilder(t *testing.T) {
	if _, err := New(settings.Values{}, nil, Deps{}); err == nil {
		t.Error("expected error without builder")
	}
}

func TestDefinition(t *testing.T) {
	def := Definition(Deps{Profiles: testProfiles(), Build: (&fakeBuilder{pub: &fakePublication{}}).build})

	if def.Name != Name || def.Settings.Len() != Schema().Len() {
		t.Errorf("unexpected definition: %+v", def)
	}
	if err := def.Settings.Validate(); err != nil {
		t.Errorf("schema invalid: %v", err)
	}

	rep, err := def.New(settings.Values{SettingWorkflow: "wf"}, slog.Default())
	if err != nil || rep == nil {
		t.Errorf("factory = %v, %v", rep, err)
	}
}

func TestTagsCodec(t *testing.T) {
	v, err := parseTags("a, b,,c")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, v); diff != "" {
		t.Errorf("parseTags mismatch (-want +got):\n%s", diff)
	}
	s, _ := unparseTags(v)
	if s != "a,b,c" {
		t.Errorf("unparseTags = %q", s)
	}
}

func TestRender_WithRealNanopub(t *testing.T) {
	profileDir := t.TempDir()
	if _, _, err := nanopub.GenerateKeys(profileDir, false); err != nil {
		t.Fatal(err)
	}
	profilePath := profileDir + "/profile.yml"
	err := nanopub.SaveProfile(profilePath, &nanopub.Profile{
		OrcidID:        "https://orcid.org/0000-0000-0000-0002",
		Name:           "Runner",
		PublicKeyPath:  "id_rsa.pub",
		PrivateKeyPath: "id_rsa",
	})
	if err != nil {
		t.Fatal(err)
	}

	logger, logs := newTestLogger()
	values := settings.Defaults(Schema())
	values[SettingWorkflow] = "wf"
	values[SettingProfile] = profilePath
	values[SettingDryRun] = true

	r, err := New(values, logger, Deps{Build: NewBuilder(nil)})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Render(context.Background()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(logs.String(), nanopub.TrustyBase+nanopub.ArtifactCodePrefix) {
		t.Errorf("expected trusty URI in log:\n%s", logs.String())
	}
}
