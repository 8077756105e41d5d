package reporter

import (
	"strings"

	"github.com/ppiankov/nanoreport/internal/nanopub"
	"github.com/ppiankov/nanoreport/internal/settings"
)

// Name is the plugin name, used in flags (--report-nanopub-*) and
// environment variables (SNAKEMAKE_REPORT_NANOPUB_*)
const Name = "nanopub"

// Setting names
const (
	SettingWorkflow       = "workflow"
	SettingSubject        = "subject"
	SettingAssertionClass = "assertion_class"
	SettingUseTestServer  = "use_test_server"
	SettingServer         = "server"
	SettingProfile        = "profile"
	SettingTags           = "tags"
	SettingDryRun         = "dry_run"
)

// Defaults for the assertion. The subject and class are placeholders
// until the workflow supplies real ones.
const (
	DefaultSubject        = "http://example.org/"
	DefaultAssertionClass = nanopub.FOAFAssertion
)

// Settings mirrors Schema as a struct, for JSON schema generation
type Settings struct {
	Workflow       string   `json:"workflow" jsonschema:"description=Name of the workflow the report describes"`
	Subject        string   `json:"subject,omitempty" jsonschema:"description=IRI of the assertion subject,default=http://example.org/"`
	AssertionClass string   `json:"assertion_class,omitempty" jsonschema:"description=IRI of the class asserted for the subject,default=http://xmlns.com/foaf/0.1/assertion"`
	UseTestServer  bool     `json:"use_test_server,omitempty" jsonschema:"description=Publish to the nanopub test server,default=true"`
	Server         string   `json:"server,omitempty" jsonschema:"description=Nanopub server URL overriding the test/production choice"`
	Profile        string   `json:"profile,omitempty" jsonschema:"description=Path to the nanopub profile.yml"`
	Tags           []string `json:"tags,omitempty" jsonschema:"description=Keywords attached to the publication"`
	DryRun         bool     `json:"dry_run,omitempty" jsonschema:"description=Sign the nanopub without sending it"`
}

// Schema declares the reporter's settings
func Schema() *settings.Schema {
	return settings.NewSchema(
		settings.Field{
			Name:     SettingWorkflow,
			Help:     "Name of the workflow the report describes",
			Required: true,
		},
		settings.Field{
			Name:    SettingSubject,
			Help:    "IRI of the assertion subject",
			Default: DefaultSubject,
		},
		settings.Field{
			Name:    SettingAssertionClass,
			Help:    "IRI of the class asserted for the subject",
			Default: DefaultAssertionClass,
		},
		settings.Field{
			Name:    SettingUseTestServer,
			Help:    "Publish to the nanopub test server",
			Default: true,
		},
		settings.Field{
			Name: SettingServer,
			Help: "Nanopub server URL, overriding the test/production choice",
		},
		settings.Field{
			Name:   SettingProfile,
			Help:   "Path to the nanopub profile.yml (default ~/.nanopub/profile.yml)",
			EnvVar: true,
		},
		settings.Field{
			Name:    SettingTags,
			Help:    "Keywords attached to the publication",
			Nargs:   "+",
			Parse:   parseTags,
			Unparse: unparseTags,
		},
		settings.Field{
			Name:    SettingDryRun,
			Help:    "Sign the nanopub without sending it",
			Default: false,
		},
	)
}

func parseTags(raw string) (any, error) {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags, nil
}

func unparseTags(v any) (string, error) {
	tags, _ := v.([]string)
	return strings.Join(tags, ","), nil
}
