package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "harvest.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `{
	"catalog": {"url": "http://localhost:5000", "apikey": "key"},
	"store": {"dsn": ""},
	"sources": [
		{
			"id": "geo-portal", "type": "csw",
			"csw": {"url": "http://csw.example.org", "stylesheet": "iso2dcat.xsl"}
		},
		{
			"id": "db-source", "type": "sql",
			"sql": {
				"credentials": {"user": "u", "password": "p", "host": "h", "port": 5432, "db": "d"},
				"field_mapping": {"identifier": {"field_name": "meta.dataset.id"}}
			}
		}
	]
}`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	require.Len(t, cfg.Sources, 2)
	require.Equal(t, "http://csw.example.org", cfg.Sources[0].CSW.URL)
	require.Equal(t, 5432, cfg.Sources[1].SQL.Credentials.Port)
}

func TestLoadRejectsDuplicateSourceIDs(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"sources": [
			{"id": "a", "type": "xls", "xls": {"path": "x.xlsx"}},
			{"id": "a", "type": "xls", "xls": {"path": "y.xlsx"}}
		]
	}`))
	require.ErrorContains(t, err, `duplicate source id "a"`)
}

func TestLoadRejectsTypeSectionMismatch(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"sources": [{"id": "a", "type": "csw", "xls": {"path": "x.xlsx"}}]
	}`))
	require.ErrorContains(t, err, "no matching section")
}

func TestLoadRejectsMultipleSections(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"sources": [{
			"id": "a", "type": "csw",
			"csw": {"url": "http://x", "stylesheet": "s.xsl"},
			"xls": {"path": "x.xlsx"}
		}]
	}`))
	require.ErrorContains(t, err, "exactly one source section")
}

func TestLoadRejectsInvalidFieldMapping(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"sources": [{
			"id": "a", "type": "sql",
			"sql": {"field_mapping": {"title": {"field_name": "not-a-ref"}}}
		}]
	}`))
	require.ErrorContains(t, err, "schema.table.column")
}

func TestLoadRejectsUnknownDuplicatePolicy(t *testing.T) {
	_, err := Load(writeConfig(t, `{
		"sources": [{
			"id": "a", "type": "xls", "xls": {"path": "x.xlsx"},
			"duplicate_policy": "panic"
		}]
	}`))
	require.ErrorContains(t, err, "unknown duplicate_policy")
}

func TestPolicyDefaultsToOverwrite(t *testing.T) {
	require.Equal(t, "overwrite", string(Source{}.Policy()))
	require.Equal(t, "fail", string(Source{DuplicatePolicy: "fail"}.Policy()))
}
