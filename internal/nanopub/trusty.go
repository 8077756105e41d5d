package nanopub

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	"github.com/knakk/rdf"
)

// ArtifactCodePrefix identifies the RA trusty URI module (RDF graphs, SHA-256)
const ArtifactCodePrefix = "RA"

// hashMarker replaces the artifact code while hashing, so the hash does
// not depend on the code it produces
const hashMarker = " "

// artifactCodeLen is the length of an RA code: prefix plus 43 base64url chars
const artifactCodeLen = len(ArtifactCodePrefix) + 43

// TrustyCode computes the artifact code of quads published under base
func TrustyCode(quads []rdf.Quad, base string) string {
	sum := sha256.Sum256([]byte(Normalize(quads, base)))
	return ArtifactCodePrefix + base64.RawURLEncoding.EncodeToString(sum[:])
}

// preBase returns what base is rewritten to while hashing. For a trusty
// base the artifact code is replaced by the marker and the prefix kept.
// A temporary base hashes as the w3id prefix it will be published under.
func preBase(base string) string {
	if base == "" {
		return ""
	}
	if n := len(base); n > artifactCodeLen && strings.HasPrefix(base[n-artifactCodeLen:], ArtifactCodePrefix) {
		return base[:n-artifactCodeLen] + hashMarker
	}
	return TrustyBase + hashMarker
}

// hashTerm is a term in the form it is hashed and sorted in
type hashTerm struct {
	literal  bool
	value    string // IRI after rebasing, or literal lexical form
	lang     string
	datatype string
}

func (t hashTerm) line() string {
	switch {
	case !t.literal:
		return t.value + "\n"
	case t.lang != "":
		return "@" + t.lang + " " + escapeLiteral(t.value) + "\n"
	default:
		return "^" + t.datatype + " " + escapeLiteral(t.value) + "\n"
	}
}

// compareHashTerms orders resources before literals, resources by IRI and
// literals by lexical form, then language, then datatype
func compareHashTerms(a, b hashTerm) int {
	if a.literal != b.literal {
		if a.literal {
			return 1
		}
		return -1
	}
	if c := strings.Compare(a.value, b.value); c != 0 {
		return c
	}
	if c := strings.Compare(a.lang, b.lang); c != 0 {
		return c
	}
	return strings.Compare(a.datatype, b.datatype)
}

// Normalize renders quads into the canonical form used for hashing and
// signing: the trusty URI RA module serialization. Quads are sorted by
// graph, subject, predicate, object, duplicates are dropped, and every
// term is written on its own line.
func Normalize(quads []rdf.Quad, base string) string {
	pre := preBase(base)
	rows := make([][4]hashTerm, len(quads))
	for i, q := range quads {
		rows[i] = [4]hashTerm{
			toHashTerm(q.Ctx, base, pre),
			toHashTerm(q.Subj, base, pre),
			toHashTerm(q.Pred, base, pre),
			toHashTerm(q.Obj, base, pre),
		}
	}

	compareRows := func(a, b [4]hashTerm) int {
		for k := 0; k < 4; k++ {
			if c := compareHashTerms(a[k], b[k]); c != 0 {
				return c
			}
		}
		return 0
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareRows(rows[i], rows[j]) < 0
	})

	var b strings.Builder
	for i, r := range rows {
		if i > 0 && compareRows(rows[i-1], r) == 0 {
			continue
		}
		for _, t := range r {
			b.WriteString(t.line())
		}
	}
	return b.String()
}

func toHashTerm(t rdf.Term, base, pre string) hashTerm {
	if t == nil {
		return hashTerm{}
	}

	switch t.Type() {
	case rdf.TermIRI:
		s := t.String()
		if base != "" && strings.HasPrefix(s, base) {
			return hashTerm{value: pre + strings.TrimPrefix(s, base)}
		}
		return hashTerm{value: s}
	case rdf.TermLiteral:
		lit, ok := t.(rdf.Literal)
		if !ok {
			return hashTerm{literal: true, value: t.String(), datatype: XSDString}
		}
		if lang := lit.Lang(); lang != "" {
			return hashTerm{literal: true, value: lit.String(), lang: strings.ToLower(lang)}
		}
		dt := lit.DataType.String()
		if dt == "" {
			dt = XSDString
		}
		return hashTerm{literal: true, value: lit.String(), datatype: dt}
	default:
		return hashTerm{value: t.String()}
	}
}

func escapeLiteral(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "\n", `\n`)
}

// TrustyURI maps any URI ending in an artifact code, such as a server
// URL of a published nanopub, to its canonical w3id form
func TrustyURI(uri string) (string, error) {
	code := uri
	if i := strings.LastIndex(strings.TrimRight(uri, "/"), "/"); i >= 0 {
		code = strings.TrimRight(uri, "/")[i+1:]
	}
	if !strings.HasPrefix(code, ArtifactCodePrefix) || len(code) != artifactCodeLen {
		return "", fmt.Errorf("no artifact code in %s", uri)
	}
	return TrustyBase + code, nil
}
