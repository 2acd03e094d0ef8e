package dcat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mjanez/schemingdcat/internal/harvest"
)

func sampleDataset() *harvest.Dataset {
	return &harvest.Dataset{
		Identifier: "ds-1",
		Title:      "Rivers of Spain",
		Notes:      "Hydrographic network",
		Modified:   "2024-05-01",
		License:    "http://creativecommons.org/licenses/by/4.0/",
		Tags:       []string{"water", "rivers"},
		Theme:      []string{"http://inspire.ec.europa.eu/theme/hy"},
		Resources: []harvest.Resource{
			{URL: "http://x/a.csv", Name: "CSV download", Format: "CSV", Mimetype: "text/csv"},
		},
	}
}

func TestSubjectIRI(t *testing.T) {
	require.Equal(t, "urn:schemingdcat:dataset:ds-1", SubjectIRI(&harvest.Dataset{Identifier: "ds-1"}))
	require.Equal(t, "http://example.org/ds/1", SubjectIRI(&harvest.Dataset{Identifier: "http://example.org/ds/1"}))
}

func TestNTriplesOutput(t *testing.T) {
	nt, err := NTriples(sampleDataset())
	require.NoError(t, err)

	require.Contains(t, nt,
		"<urn:schemingdcat:dataset:ds-1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <http://www.w3.org/ns/dcat#Dataset> .")
	require.Contains(t, nt, `<http://purl.org/dc/terms/title> "Rivers of Spain"`)
	require.Contains(t, nt, `<http://www.w3.org/ns/dcat#keyword> "water"`)
	// the license is an IRI object, not a quoted literal
	require.Contains(t, nt, "<http://purl.org/dc/terms/license> <http://creativecommons.org/licenses/by/4.0/>")
	// the distribution hangs off a blank node
	require.Contains(t, nt, "<http://www.w3.org/ns/dcat#distribution> _:dist0")
	require.Contains(t, nt, `_:dist0 <http://purl.org/dc/terms/format> "CSV"`)
}

func TestTriplesSkipEmptyFields(t *testing.T) {
	triples, err := Triples(&harvest.Dataset{Identifier: "ds-2", Title: "Bare"})
	require.NoError(t, err)
	for _, tr := range triples {
		require.NotEmpty(t, tr.Obj.String())
	}
	// type, identifier, title only
	require.Len(t, triples, 3)
}

func TestJSONLDCompactsWithInlineContext(t *testing.T) {
	out, err := JSONLD(sampleDataset())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	require.Contains(t, doc, "@context")
	require.Equal(t, "Rivers of Spain", doc["title"])
	require.Equal(t, "urn:schemingdcat:dataset:ds-1", doc["@id"])
}
