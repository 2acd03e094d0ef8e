// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package dcat serializes normalized datasets back out as DCAT RDF:
// N-Triples for triplestore loading and compacted JSON-LD for catalog
// exports.
package dcat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/knakk/rdf"
	"github.com/piprate/json-gold/ld"

	"github.com/mjanez/schemingdcat/internal/harvest"
)

const (
	dcatNS = "http://www.w3.org/ns/dcat#"
	dctNS  = "http://purl.org/dc/terms/"
)

// context is inlined so serialization never fetches a remote document.
var jsonldContext = map[string]any{
	"dcat":        dcatNS,
	"dct":         dctNS,
	"title":       "dct:title",
	"description": "dct:description",
	"identifier":  "dct:identifier",
	"modified":    "dct:modified",
	"issued":      "dct:issued",
	"license":     map[string]any{"@id": "dct:license", "@type": "@id"},
	"keyword":     "dcat:keyword",
	"theme":       map[string]any{"@id": "dcat:theme", "@type": "@id"},
	"distribution": map[string]any{
		"@id": "dcat:distribution", "@type": "@id",
	},
	"accessURL": map[string]any{"@id": "dcat:accessURL", "@type": "@id"},
	"format":    "dct:format",
	"mediaType": "dcat:mediaType",
}

// SubjectIRI derives the RDF subject for a dataset: the identifier
// itself when it is already an IRI, a urn otherwise.
func SubjectIRI(d *harvest.Dataset) string {
	if strings.HasPrefix(d.Identifier, "http://") || strings.HasPrefix(d.Identifier, "https://") {
		return d.Identifier
	}
	return "urn:schemingdcat:dataset:" + d.Identifier
}

// Triples renders the dataset as DCAT triples.
func Triples(d *harvest.Dataset) ([]rdf.Triple, error) {
	subj, err := rdf.NewIRI(SubjectIRI(d))
	if err != nil {
		return nil, fmt.Errorf("building dataset subject: %w", err)
	}

	b := &tripleBuilder{subj: subj}
	b.typeOf(subj, dcatNS+"Dataset")
	b.literal(subj, dctNS+"identifier", d.Identifier)
	b.literal(subj, dctNS+"title", d.Title)
	b.literal(subj, dctNS+"description", d.Notes)
	b.literal(subj, dctNS+"issued", d.Issued)
	b.literal(subj, dctNS+"modified", d.Modified)
	b.iriOrLiteral(subj, dctNS+"license", d.License)
	for _, tag := range d.Tags {
		b.literal(subj, dcatNS+"keyword", tag)
	}
	for _, theme := range d.Theme {
		b.iriOrLiteral(subj, dcatNS+"theme", theme)
	}

	for i, res := range d.Resources {
		dist, err := rdf.NewBlank(fmt.Sprintf("dist%d", i))
		if err != nil {
			return nil, err
		}
		b.object(subj, dcatNS+"distribution", dist)
		b.typeOf(dist, dcatNS+"Distribution")
		b.iriOrLiteral(dist, dcatNS+"accessURL", res.URL)
		b.literal(dist, dctNS+"title", res.Name)
		b.literal(dist, dctNS+"format", res.Format)
		b.literal(dist, dcatNS+"mediaType", res.Mimetype)
		for _, standard := range res.ConformsTo {
			b.iriOrLiteral(dist, dctNS+"conformsTo", standard)
		}
	}

	if b.err != nil {
		return nil, b.err
	}
	return b.triples, nil
}

// NTriples renders the dataset as N-Triples text.
func NTriples(d *harvest.Dataset) (string, error) {
	triples, err := Triples(d)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	enc := rdf.NewTripleEncoder(&buf, rdf.NTriples)
	if err := enc.EncodeAll(triples); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// JSONLD renders the dataset as compacted JSON-LD with an inline DCAT
// context. The document is run through expansion first, which rejects
// structurally invalid output before it reaches a consumer.
func JSONLD(d *harvest.Dataset) ([]byte, error) {
	doc := map[string]any{
		"@context":    jsonldContext,
		"@id":         SubjectIRI(d),
		"@type":       "dcat:Dataset",
		"identifier":  d.Identifier,
		"title":       d.Title,
		"description": d.Notes,
		"modified":    d.Modified,
		"issued":      d.Issued,
	}
	if d.License != "" {
		doc["license"] = d.License
	}
	if len(d.Tags) > 0 {
		doc["keyword"] = d.Tags
	}
	if len(d.Theme) > 0 {
		doc["theme"] = d.Theme
	}
	var distributions []any
	for _, res := range d.Resources {
		dist := map[string]any{
			"@type":     "dcat:Distribution",
			"accessURL": res.URL,
		}
		if res.Format != "" {
			dist["format"] = res.Format
		}
		if res.Mimetype != "" {
			dist["mediaType"] = res.Mimetype
		}
		distributions = append(distributions, dist)
	}
	if distributions != nil {
		doc["distribution"] = distributions
	}

	proc := ld.NewJsonLdProcessor()
	options := ld.NewJsonLdOptions("")
	if _, err := proc.Expand(doc, options); err != nil {
		return nil, fmt.Errorf("dataset %s does not expand to valid JSON-LD: %w", d.Identifier, err)
	}
	compacted, err := proc.Compact(doc, map[string]any{"@context": jsonldContext}, options)
	if err != nil {
		return nil, fmt.Errorf("compacting dataset %s: %w", d.Identifier, err)
	}
	return json.MarshalIndent(compacted, "", "  ")
}

// tripleBuilder accumulates triples, remembering the first error so the
// call sites stay flat.
type tripleBuilder struct {
	subj    rdf.Subject
	triples []rdf.Triple
	err     error
}

func (b *tripleBuilder) typeOf(subj rdf.Subject, class string) {
	pred, err := rdf.NewIRI("http://www.w3.org/1999/02/22-rdf-syntax-ns#type")
	if err != nil {
		b.fail(err)
		return
	}
	obj, err := rdf.NewIRI(class)
	if err != nil {
		b.fail(err)
		return
	}
	b.triples = append(b.triples, rdf.Triple{Subj: subj, Pred: pred, Obj: obj})
}

func (b *tripleBuilder) literal(subj rdf.Subject, predicate, value string) {
	if value == "" || b.err != nil {
		return
	}
	pred, err := rdf.NewIRI(predicate)
	if err != nil {
		b.fail(err)
		return
	}
	obj, err := rdf.NewLiteral(value)
	if err != nil {
		b.fail(err)
		return
	}
	b.triples = append(b.triples, rdf.Triple{Subj: subj, Pred: pred, Obj: obj})
}

// iriOrLiteral emits an IRI object when the value parses as one, a
// plain literal otherwise.
func (b *tripleBuilder) iriOrLiteral(subj rdf.Subject, predicate, value string) {
	if value == "" || b.err != nil {
		return
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		pred, err := rdf.NewIRI(predicate)
		if err != nil {
			b.fail(err)
			return
		}
		obj, err := rdf.NewIRI(value)
		if err == nil {
			b.triples = append(b.triples, rdf.Triple{Subj: subj, Pred: pred, Obj: obj})
			return
		}
	}
	b.literal(subj, predicate, value)
}

func (b *tripleBuilder) object(subj rdf.Subject, predicate string, obj rdf.Object) {
	if b.err != nil {
		return
	}
	pred, err := rdf.NewIRI(predicate)
	if err != nil {
		b.fail(err)
		return
	}
	b.triples = append(b.triples, rdf.Triple{Subj: subj, Pred: pred, Obj: obj})
}

func (b *tripleBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}
