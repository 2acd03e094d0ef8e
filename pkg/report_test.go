package pkg

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFailedDetectsAnyFailure(t *testing.T) {
	clean := HarvestReport{{SourceName: "a", DatasetsCreated: 3}}
	require.False(t, clean.Failed())

	importFailed := HarvestReport{{SourceName: "a"}, {SourceName: "b", ImportFailures: 1}}
	require.True(t, importFailed.Failed())

	gatherFailed := HarvestReport{{
		SourceName:     "a",
		GatherFailures: []RecordError{{GUID: "g1", Message: "boom"}},
	}}
	require.True(t, gatherFailed.Failed())
}

func TestToJsonLdShape(t *testing.T) {
	report := HarvestReport{{SourceName: "csw-a", RecordsGathered: 5, DatasetsCreated: 2}}

	serialized, err := report.ToJsonLd()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(serialized), &doc))
	require.Equal(t, "schema:DataFeed", doc["@type"])
	require.Contains(t, doc, "@context")

	graph := doc["@graph"].([]any)
	require.Len(t, graph, 1)
	item := graph[0].(map[string]any)
	require.Equal(t, "schema:DataFeedItem", item["@type"])
	require.Equal(t, "csw-a", item["schema:name"])
	require.EqualValues(t, 5, item["recordsGathered"])
}

func TestRecordErrorMessage(t *testing.T) {
	err := RecordError{GUID: "urn:x", Message: "no identifier"}
	require.EqualError(t, err, "failed to gather record urn:x: no identifier")
}
