package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mjanez/schemingdcat/internal/harvest"
)

func actionServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for action, handler := range handlers {
		mux.HandleFunc("/api/3/action/"+action, handler)
	}
	return httptest.NewServer(mux)
}

func TestPackageCreateReturnsID(t *testing.T) {
	server := actionServer(t, map[string]http.HandlerFunc{
		"package_create": func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "secret-key", r.Header.Get("Authorization"))
			var d harvest.Dataset
			require.NoError(t, json.NewDecoder(r.Body).Decode(&d))
			require.Equal(t, "rivers", d.Name)
			fmt.Fprintf(w, `{"success": true, "result": {"id": "%s"}}`, d.Identifier)
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "secret-key")
	id, err := client.PackageCreate(context.Background(), &harvest.Dataset{
		Identifier: "guid-1", Name: "rivers",
	})
	require.NoError(t, err)
	require.Equal(t, "guid-1", id)
}

func TestPackageCreateCarriesExplicitID(t *testing.T) {
	server := actionServer(t, map[string]http.HandlerFunc{
		"package_create": func(w http.ResponseWriter, r *http.Request) {
			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			// without an explicit id in the payload the catalog would
			// generate its own
			require.Equal(t, "stable-id", payload["id"])
			fmt.Fprint(w, `{"success": true, "result": {"id": "stable-id"}}`)
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "key")
	id, err := client.PackageCreate(context.Background(), &harvest.Dataset{
		ID: "stable-id", Identifier: "stable-id", Name: "rivers",
	})
	require.NoError(t, err)
	require.Equal(t, "stable-id", id)
}

func TestValidationErrorExposesFieldErrors(t *testing.T) {
	server := actionServer(t, map[string]http.HandlerFunc{
		"package_create": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"success": false, "error": {
				"__type": "Validation Error",
				"title": ["Missing value"],
				"name": ["URL is already in use"]
			}}`)
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "")
	_, err := client.PackageCreate(context.Background(), &harvest.Dataset{})

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, []string{"Missing value"}, ve.FieldErrors()["title"])
	require.Equal(t, []string{"URL is already in use"}, ve.FieldErrors()["name"])
}

func TestNonValidationErrorIsPlain(t *testing.T) {
	server := actionServer(t, map[string]http.HandlerFunc{
		"package_delete": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
			fmt.Fprint(w, `{"success": false, "error": {
				"__type": "Authorization Error", "message": "Access denied"
			}}`)
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "")
	err := client.PackageDelete(context.Background(), "x")
	require.ErrorContains(t, err, "Access denied")

	var ve *ValidationError
	require.False(t, errors.As(err, &ve))
}

func TestPackageShowDecodesDataset(t *testing.T) {
	server := actionServer(t, map[string]http.HandlerFunc{
		"package_show": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": true, "result": {
				"identifier": "guid-9", "title": "Rivers",
				"resources": [{"url": "http://x/a.csv", "format": "CSV"}]
			}}`)
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "")
	d, err := client.PackageShow(context.Background(), "guid-9")
	require.NoError(t, err)
	require.Equal(t, "Rivers", d.Title)
	require.Len(t, d.Resources, 1)
}

func TestVocabularyAndTagLifecycle(t *testing.T) {
	var createdTags []string
	server := actionServer(t, map[string]http.HandlerFunc{
		"vocabulary_create": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": true, "result": {"id": "vocab-1", "name": "theme"}}`)
		},
		"tag_create": func(w http.ResponseWriter, r *http.Request) {
			var tag Tag
			require.NoError(t, json.NewDecoder(r.Body).Decode(&tag))
			createdTags = append(createdTags, tag.Name)
			fmt.Fprint(w, `{"success": true, "result": {}}`)
		},
		"vocabulary_delete": func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"success": true, "result": null}`)
		},
	})
	defer server.Close()

	client := NewClient(server.URL, "key")
	ctx := context.Background()

	vocab, err := client.VocabularyCreate(ctx, "theme")
	require.NoError(t, err)
	require.Equal(t, "vocab-1", vocab.ID)

	require.NoError(t, client.TagCreate(ctx, Tag{Name: "hydrography", VocabularyID: vocab.ID}))
	require.Equal(t, []string{"hydrography"}, createdTags)

	require.NoError(t, client.VocabularyDelete(ctx, vocab.ID))
}
