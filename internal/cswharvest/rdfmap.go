// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package cswharvest

import (
	"fmt"

	"github.com/knakk/rdf"

	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/spatial"
)

const (
	rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

	dcatDataset      = "http://www.w3.org/ns/dcat#Dataset"
	dcatKeyword      = "http://www.w3.org/ns/dcat#keyword"
	dcatTheme        = "http://www.w3.org/ns/dcat#theme"
	dcatDistribution = "http://www.w3.org/ns/dcat#distribution"
	dcatAccessURL    = "http://www.w3.org/ns/dcat#accessURL"
	dcatDownloadURL  = "http://www.w3.org/ns/dcat#downloadURL"

	dctIdentifier  = "http://purl.org/dc/terms/identifier"
	dctTitle       = "http://purl.org/dc/terms/title"
	dctDescription = "http://purl.org/dc/terms/description"
	dctIssued      = "http://purl.org/dc/terms/issued"
	dctModified    = "http://purl.org/dc/terms/modified"
	dctLicense     = "http://purl.org/dc/terms/license"
	dctSpatial     = "http://purl.org/dc/terms/spatial"
	dctFormat      = "http://purl.org/dc/terms/format"
	dctConformsTo  = "http://purl.org/dc/terms/conformsTo"

	locnGeometry = "http://www.w3.org/ns/locn#geometry"
)

// graph indexes triples by subject then predicate for cheap lookups.
type graph map[string]map[string][]rdf.Term

func indexTriples(triples []rdf.Triple) graph {
	g := make(graph)
	for _, t := range triples {
		subj := t.Subj.String()
		if g[subj] == nil {
			g[subj] = make(map[string][]rdf.Term)
		}
		pred := t.Pred.String()
		g[subj][pred] = append(g[subj][pred], t.Obj)
	}
	return g
}

func (g graph) first(subj, pred string) string {
	if objs := g[subj][pred]; len(objs) > 0 {
		return objs[0].String()
	}
	return ""
}

func (g graph) all(subj, pred string) []string {
	objs := g[subj][pred]
	out := make([]string, 0, len(objs))
	for _, o := range objs {
		out = append(out, o.String())
	}
	return out
}

// datasetFromTriples maps the dcat:Dataset node of a transformed record
// onto the normalized model. The stylesheet emits exactly one dataset
// node per ISO19139 document.
func datasetFromTriples(triples []rdf.Triple) (*harvest.Dataset, error) {
	g := indexTriples(triples)

	var subject string
	for subj, preds := range g {
		for _, obj := range preds[rdfType] {
			if obj.String() == dcatDataset {
				subject = subj
			}
		}
	}
	if subject == "" {
		return nil, fmt.Errorf("transformed RDF contains no dcat:Dataset node")
	}

	d := &harvest.Dataset{
		Identifier: g.first(subject, dctIdentifier),
		Title:      g.first(subject, dctTitle),
		Notes:      g.first(subject, dctDescription),
		Issued:     g.first(subject, dctIssued),
		Modified:   g.first(subject, dctModified),
		License:    g.first(subject, dctLicense),
		Tags:       g.all(subject, dcatKeyword),
		Theme:      g.all(subject, dcatTheme),
	}

	if geom := g.spatialGeometry(subject); geom != "" {
		if geojson, err := spatial.ToGeoJSON(geom); err == nil {
			d.Spatial = geojson
		}
	}

	for _, dist := range g.all(subject, dcatDistribution) {
		res := harvest.Resource{
			URL:         g.first(dist, dcatAccessURL),
			Name:        g.first(dist, dctTitle),
			Description: g.first(dist, dctDescription),
			Format:      g.first(dist, dctFormat),
			Modified:    g.first(dist, dctModified),
			ConformsTo:  g.all(dist, dctConformsTo),
		}
		if download := g.first(dist, dcatDownloadURL); res.URL == "" {
			res.URL = download
		}
		if res.URL == "" {
			continue
		}
		d.Resources = append(d.Resources, res)
	}

	return d, nil
}

// spatialGeometry finds a geometry literal either directly on the
// dataset or behind a dct:spatial node.
func (g graph) spatialGeometry(subject string) string {
	if geom := g.first(subject, locnGeometry); geom != "" {
		return geom
	}
	for _, loc := range g.all(subject, dctSpatial) {
		if geom := g.first(loc, locnGeometry); geom != "" {
			return geom
		}
	}
	return ""
}
