package nanopub

import (
	"fmt"

	"github.com/knakk/rdf"
)

// Graph is an in-memory set of triples
type Graph struct {
	triples []rdf.Triple
}

// NewGraph creates an empty graph
func NewGraph() *Graph {
	return &Graph{}
}

// Add appends a triple unless an identical one is already present
func (g *Graph) Add(s rdf.Subject, p rdf.Predicate, o rdf.Object) {
	t := rdf.Triple{Subj: s, Pred: p, Obj: o}
	for _, existing := range g.triples {
		if sameTriple(existing, t) {
			return
		}
	}
	g.triples = append(g.triples, t)
}

// AddIRI adds a triple whose three terms are IRIs
func (g *Graph) AddIRI(s, p, o string) error {
	subj, err := rdf.NewIRI(s)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	pred, err := rdf.NewIRI(p)
	if err != nil {
		return fmt.Errorf("predicate: %w", err)
	}
	obj, err := rdf.NewIRI(o)
	if err != nil {
		return fmt.Errorf("object: %w", err)
	}
	g.Add(subj, pred, obj)
	return nil
}

// AddLiteral adds a triple with an IRI subject/predicate and a typed literal object
func (g *Graph) AddLiteral(s, p, value, datatype string) error {
	subj, err := rdf.NewIRI(s)
	if err != nil {
		return fmt.Errorf("subject: %w", err)
	}
	pred, err := rdf.NewIRI(p)
	if err != nil {
		return fmt.Errorf("predicate: %w", err)
	}
	dt, err := rdf.NewIRI(datatype)
	if err != nil {
		return fmt.Errorf("datatype: %w", err)
	}
	g.Add(subj, pred, rdf.NewTypedLiteral(value, dt))
	return nil
}

// Len returns the number of triples
func (g *Graph) Len() int {
	if g == nil {
		return 0
	}
	return len(g.triples)
}

// Triples returns a copy of the triples in insertion order
func (g *Graph) Triples() []rdf.Triple {
	if g == nil {
		return nil
	}
	out := make([]rdf.Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

func sameTriple(a, b rdf.Triple) bool {
	return rdf.TermsEqual(a.Subj, b.Subj) &&
		rdf.TermsEqual(a.Pred, b.Pred) &&
		rdf.TermsEqual(a.Obj, b.Obj)
}
