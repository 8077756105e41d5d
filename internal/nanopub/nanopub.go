package nanopub

import (
	"bytes"
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/knakk/rdf"

	"github.com/ppiankov/nanoreport/internal/settings"
)

// Conf controls how a nanopublication is assembled and where it goes
type Conf struct {
	UseTestServer                 bool
	Profile                       *Profile
	AddProvGeneratedTime          bool // prov:generatedAtTime on the assertion
	AddPubinfoGeneratedTime       bool // prov:generatedAtTime on the nanopub itself
	AttributeAssertionToProfile   bool
	AttributePublicationToProfile bool
	ServerURL                     string // Overrides the test/production server selection
	DryRun                        bool   // Sign but do not send
}

// Metadata is one setting attached to a publication
type Metadata struct {
	Name  string
	Value any
	Field settings.Field
}

// Publisher sends a signed nanopublication to a server
type Publisher interface {
	Publish(ctx context.Context, np *Nanopub) error
}

// Option configures a Nanopub
type Option func(*Nanopub)

// WithPublisher sets the transport used by Publish
func WithPublisher(p Publisher) Option {
	return func(n *Nanopub) {
		n.publisher = p
	}
}

// WithClock overrides the time source used for timestamps
func WithClock(now func() time.Time) Option {
	return func(n *Nanopub) {
		n.now = now
	}
}

// WithTempID fixes the temporary identifier instead of a random UUID
func WithTempID(id string) Option {
	return func(n *Nanopub) {
		n.base = NSTemp + id
	}
}

// Nanopub is a nanopublication under construction.
// It is assembled once, signed once and published once.
type Nanopub struct {
	assertion *Graph
	conf      Conf
	metadata  []Metadata
	pubinfo   *Graph

	base      string
	uri       string
	quads     []rdf.Quad
	built     bool
	signed    bool
	publisher Publisher
	now       func() time.Time
}

// New wraps an assertion graph into a nanopublication request
func New(assertion *Graph, conf Conf, opts ...Option) *Nanopub {
	if assertion == nil {
		assertion = NewGraph()
	}
	n := &Nanopub{
		assertion: assertion,
		conf:      conf,
		pubinfo:   NewGraph(),
		base:      NSTemp + uuid.NewString(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Conf returns the configuration the nanopub was created with
func (n *Nanopub) Conf() Conf {
	return n.conf
}

// Metadata returns the attached settings in attachment order
func (n *Nanopub) Metadata() []Metadata {
	out := make([]Metadata, len(n.metadata))
	copy(out, n.metadata)
	return out
}

// URI returns the trusty URI once signed, the temporary URI before
func (n *Nanopub) URI() string {
	if n.uri != "" {
		return n.uri
	}
	return n.base
}

// Signed reports whether Sign has completed
func (n *Nanopub) Signed() bool {
	return n.signed
}

// AddMetadata attaches a setting to the publication info.
// The value is kept verbatim; nil values are recorded but produce no triple.
func (n *Nanopub) AddMetadata(name string, value any, field settings.Field) error {
	if n.built {
		return errors.New("nanopub already assembled")
	}
	n.metadata = append(n.metadata, Metadata{Name: name, Value: value, Field: field})

	if value == nil {
		return nil
	}

	pred := SettingIRI(name)
	objects, err := metadataLiterals(field, value)
	if err != nil {
		return err
	}
	for _, o := range objects {
		if err := n.pubinfo.AddLiteral(n.base, pred, o.value, o.datatype); err != nil {
			return fmt.Errorf("metadata %s: %w", name, err)
		}
	}
	if field.Help != "" {
		if err := n.pubinfo.AddLiteral(pred, RDFSComment, field.Help, XSDString); err != nil {
			return fmt.Errorf("metadata %s: %w", name, err)
		}
	}
	return nil
}

type literal struct {
	value    string
	datatype string
}

func metadataLiterals(field settings.Field, value any) ([]literal, error) {
	if field.Unparse != nil {
		s, err := settings.UnparseValue(field, value)
		if err != nil {
			return nil, err
		}
		return []literal{{s, XSDString}}, nil
	}

	switch v := value.(type) {
	case string:
		return []literal{{v, XSDString}}, nil
	case bool:
		return []literal{{strconv.FormatBool(v), XSDBoolean}}, nil
	case int:
		return []literal{{strconv.Itoa(v), XSDInteger}}, nil
	case int64:
		return []literal{{strconv.FormatInt(v, 10), XSDInteger}}, nil
	case float64:
		return []literal{{strconv.FormatFloat(v, 'g', -1, 64), XSDDouble}}, nil
	case []string:
		out := make([]literal, 0, len(v))
		for _, s := range v {
			out = append(out, literal{s, XSDString})
		}
		return out, nil
	default:
		return []literal{{fmt.Sprint(v), XSDString}}, nil
	}
}

func (n *Nanopub) graphIRI(name string) string {
	return n.base + "/" + name
}

// Build assembles head, assertion, provenance and publication info graphs
func (n *Nanopub) Build() error {
	if n.built {
		return nil
	}

	now := n.now().UTC().Format(time.RFC3339)
	head := n.graphIRI("Head")
	assertion := n.graphIRI("assertion")
	provenance := n.graphIRI("provenance")
	pubinfo := n.graphIRI("pubinfo")

	headGraph := NewGraph()
	for _, t := range [][3]string{
		{n.base, RDFType, NPNanopublication},
		{n.base, NPHasAssertion, assertion},
		{n.base, NPHasProvenance, provenance},
		{n.base, NPHasPublicationInfo, pubinfo},
	} {
		if err := headGraph.AddIRI(t[0], t[1], t[2]); err != nil {
			return fmt.Errorf("head: %w", err)
		}
	}

	orcid := ""
	if n.conf.Profile != nil {
		orcid = n.conf.Profile.OrcidID
	}

	provGraph := NewGraph()
	if n.conf.AddProvGeneratedTime {
		if err := provGraph.AddLiteral(assertion, ProvGeneratedAtTime, now, XSDDateTime); err != nil {
			return fmt.Errorf("provenance: %w", err)
		}
	}
	if n.conf.AttributeAssertionToProfile && orcid != "" {
		if err := provGraph.AddIRI(assertion, ProvWasAttributedTo, orcid); err != nil {
			return fmt.Errorf("provenance: %w", err)
		}
	}
	if provGraph.Len() == 0 {
		// An empty provenance graph is not a valid nanopublication
		if err := provGraph.AddLiteral(assertion, ProvGeneratedAtTime, now, XSDDateTime); err != nil {
			return fmt.Errorf("provenance: %w", err)
		}
	}

	if err := n.pubinfo.AddLiteral(n.base, DCTCreated, now, XSDDateTime); err != nil {
		return fmt.Errorf("pubinfo: %w", err)
	}
	if n.conf.AddPubinfoGeneratedTime {
		if err := n.pubinfo.AddLiteral(n.base, ProvGeneratedAtTime, now, XSDDateTime); err != nil {
			return fmt.Errorf("pubinfo: %w", err)
		}
	}
	if n.conf.AttributePublicationToProfile && orcid != "" {
		if err := n.pubinfo.AddIRI(n.base, ProvWasAttributedTo, orcid); err != nil {
			return fmt.Errorf("pubinfo: %w", err)
		}
		if err := n.pubinfo.AddIRI(n.base, DCTCreator, orcid); err != nil {
			return fmt.Errorf("pubinfo: %w", err)
		}
		if name := n.conf.Profile.Name; name != "" {
			if err := n.pubinfo.AddLiteral(orcid, FOAFName, name, XSDString); err != nil {
				return fmt.Errorf("pubinfo: %w", err)
			}
		}
	}

	var quads []rdf.Quad
	for _, g := range []struct {
		name  string
		graph *Graph
	}{
		{head, headGraph},
		{assertion, n.assertion},
		{provenance, provGraph},
		{pubinfo, n.pubinfo},
	} {
		ctx, err := rdf.NewIRI(g.name)
		if err != nil {
			return fmt.Errorf("graph name: %w", err)
		}
		for _, t := range g.graph.Triples() {
			quads = append(quads, rdf.Quad{Triple: t, Ctx: ctx})
		}
	}

	n.quads = quads
	n.built = true
	return nil
}

// Sign adds the signature block, signs the normalized quads with the
// profile's key and replaces the temporary URI with the trusty URI
func (n *Nanopub) Sign() error {
	if n.signed {
		return nil
	}
	if err := n.Build(); err != nil {
		return err
	}
	if n.conf.Profile == nil {
		return ErrNoProfile
	}
	key := n.conf.Profile.PrivateKey()
	if key == nil {
		return errors.New("profile has no private key loaded")
	}

	pub, err := PublicKeyString(&key.PublicKey)
	if err != nil {
		return err
	}

	pubinfoCtx, err := rdf.NewIRI(n.graphIRI("pubinfo"))
	if err != nil {
		return fmt.Errorf("graph name: %w", err)
	}
	sigGraph := NewGraph()
	sig := n.graphIRI("sig")
	if err := sigGraph.AddIRI(sig, NPXHasSignatureTarget, n.base); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if err := sigGraph.AddLiteral(sig, NPXHasPublicKey, pub, XSDString); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if err := sigGraph.AddLiteral(sig, NPXHasAlgorithm, "RSA", XSDString); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	if orcid := n.conf.Profile.OrcidID; orcid != "" {
		if err := sigGraph.AddIRI(sig, NPXSignedBy, orcid); err != nil {
			return fmt.Errorf("signature: %w", err)
		}
	}
	for _, t := range sigGraph.Triples() {
		n.quads = append(n.quads, rdf.Quad{Triple: t, Ctx: pubinfoCtx})
	}

	digest := sha256.Sum256([]byte(Normalize(n.quads, n.base)))
	signature, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	if err := sigGraph.AddLiteral(sig, NPXHasSignature, base64.StdEncoding.EncodeToString(signature), XSDString); err != nil {
		return fmt.Errorf("signature: %w", err)
	}
	last := sigGraph.Triples()[sigGraph.Len()-1]
	n.quads = append(n.quads, rdf.Quad{Triple: last, Ctx: pubinfoCtx})

	code := TrustyCode(n.quads, n.base)
	final := TrustyBase + code
	rewritten, err := rebase(n.quads, n.base, final)
	if err != nil {
		return err
	}

	n.quads = rewritten
	n.uri = final
	n.signed = true
	return nil
}

// Quads returns the assembled quads
func (n *Nanopub) Quads() []rdf.Quad {
	out := make([]rdf.Quad, len(n.quads))
	copy(out, n.quads)
	return out
}

// TriG serializes the assembled quads as TriG, the format servers accept
func (n *Nanopub) TriG() ([]byte, error) {
	return EncodeTriG(n.quads)
}

// Publish assembles, signs and sends the nanopublication and returns its URI
func (n *Nanopub) Publish(ctx context.Context) (string, error) {
	if err := n.Sign(); err != nil {
		return "", err
	}
	if n.conf.DryRun {
		return n.uri, nil
	}
	if n.publisher == nil {
		return "", errors.New("no publisher configured")
	}
	if err := n.publisher.Publish(ctx, n); err != nil {
		return "", err
	}
	return n.uri, nil
}

// Verify checks the signature and trusty code of a published nanopub.
// uri may use any prefix; the base is taken from the quads themselves.
func Verify(quads []rdf.Quad, uri string) error {
	code, ok := artifactCode(uri)
	if !ok {
		return fmt.Errorf("not a trusty nanopub URI: %s", uri)
	}
	if b := baseInQuads(quads, code); b != "" {
		uri = b
	}
	if got := TrustyCode(quads, uri); got != code {
		return fmt.Errorf("trusty code mismatch: computed %s", got)
	}

	var pubKey, signature string
	unsigned := make([]rdf.Quad, 0, len(quads))
	for _, q := range quads {
		switch q.Pred.String() {
		case NPXHasSignature:
			signature = q.Obj.String()
			continue
		case NPXHasPublicKey:
			pubKey = q.Obj.String()
		}
		unsigned = append(unsigned, q)
	}
	if pubKey == "" || signature == "" {
		return errors.New("nanopub is not signed")
	}

	key, err := ParsePublicKeyString(pubKey)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(Normalize(unsigned, uri)))
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("verify signature: %w", err)
	}
	return nil
}

// EncodeTriG serializes quads as TriG, one block per graph in the order
// graphs first appear. Terms use their N-Quads form, which TriG accepts.
func EncodeTriG(quads []rdf.Quad) ([]byte, error) {
	var graphs []string
	byGraph := make(map[string][]rdf.Quad)
	for _, q := range quads {
		if q.Ctx == nil {
			return nil, errors.New("encode trig: quad without graph")
		}
		g := q.Ctx.Serialize(rdf.NQuads)
		if _, ok := byGraph[g]; !ok {
			graphs = append(graphs, g)
		}
		byGraph[g] = append(byGraph[g], q)
	}

	var buf bytes.Buffer
	for _, g := range graphs {
		fmt.Fprintf(&buf, "%s {\n", g)
		for _, q := range byGraph[g] {
			fmt.Fprintf(&buf, "  %s %s %s .\n",
				q.Subj.Serialize(rdf.NQuads),
				q.Pred.Serialize(rdf.NQuads),
				q.Obj.Serialize(rdf.NQuads))
		}
		buf.WriteString("}\n\n")
	}
	return buf.Bytes(), nil
}

func artifactCode(uri string) (string, bool) {
	if len(uri) < artifactCodeLen {
		return "", false
	}
	code := uri[len(uri)-artifactCodeLen:]
	return code, strings.HasPrefix(code, ArtifactCodePrefix)
}

// baseInQuads finds the IRI prefix ending in code, such as
// http://purl.org/np/RA... for nanopubs made by other tools
func baseInQuads(quads []rdf.Quad, code string) string {
	for _, q := range quads {
		for _, t := range []rdf.Term{q.Ctx, q.Subj} {
			if t == nil || t.Type() != rdf.TermIRI {
				continue
			}
			if i := strings.Index(t.String(), code); i >= 0 {
				return t.String()[:i+len(code)]
			}
		}
	}
	return ""
}

func rebase(quads []rdf.Quad, from, to string) ([]rdf.Quad, error) {
	swap := func(t rdf.Term) (rdf.Term, error) {
		if t == nil || t.Type() != rdf.TermIRI || !strings.HasPrefix(t.String(), from) {
			return t, nil
		}
		return rdf.NewIRI(to + strings.TrimPrefix(t.String(), from))
	}

	out := make([]rdf.Quad, len(quads))
	for i, q := range quads {
		s, err := swap(q.Subj)
		if err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		p, err := swap(q.Pred)
		if err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		o, err := swap(q.Obj)
		if err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		c, err := swap(q.Ctx)
		if err != nil {
			return nil, fmt.Errorf("rebase: %w", err)
		}
		subj, _ := s.(rdf.Subject)
		pred, _ := p.(rdf.Predicate)
		obj, _ := o.(rdf.Object)
		graph, _ := c.(rdf.Context)
		out[i] = rdf.Quad{
			Triple: rdf.Triple{Subj: subj, Pred: pred, Obj: obj},
			Ctx:    graph,
		}
	}
	return out, nil
}
