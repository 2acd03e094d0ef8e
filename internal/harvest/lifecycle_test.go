package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeCatalog records the package id carried in every action payload.
// Like a real catalog, create honors an explicit id and generates one
// when the payload has none.
type fakeCatalog struct {
	created []string
	updated []string
	deleted []string
	err     error
}

func (f *fakeCatalog) PackageCreate(_ context.Context, d *Dataset) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.created = append(f.created, d.ID)
	if d.ID == "" {
		return "generated-" + d.Identifier, nil
	}
	return d.ID, nil
}

func (f *fakeCatalog) PackageUpdate(_ context.Context, d *Dataset) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.updated = append(f.updated, d.ID)
	return d.ID, nil
}

func (f *fakeCatalog) PackageDelete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCatalog) PackageShow(context.Context, string) (*Dataset, error) {
	return nil, fmt.Errorf("not found")
}

var _ Catalog = &fakeCatalog{}

type fakeValidationError struct {
	fields map[string][]string
}

func (e *fakeValidationError) Error() string { return "Validation Error" }

func (e *fakeValidationError) FieldErrors() map[string][]string { return e.fields }

func mustContent(t *testing.T, d *Dataset) []byte {
	t.Helper()
	content, err := json.Marshal(d)
	require.NoError(t, err)
	return content
}

func newObject(t *testing.T, guid string, status Status, d *Dataset) *Object {
	t.Helper()
	return &Object{
		ID: "obj-" + guid, SourceID: "src", GUID: guid,
		Status: status, State: StateFetched, Content: mustContent(t, d),
	}
}

func TestImportNewCreatesPackageWithOwnIdentifier(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{}
	lc := NewLifecycle(store, catalog, nil, LifecycleConfig{})
	ctx := context.Background()

	obj := newObject(t, "guid-1", StatusNew, &Dataset{Identifier: "guid-1", Title: "New one"})
	require.NoError(t, store.Insert(ctx, obj))

	require.Equal(t, ImportOK, lc.Import(ctx, obj))
	require.Equal(t, []string{"guid-1"}, catalog.created)
	require.Equal(t, "guid-1", obj.PackageID)
	require.True(t, obj.Current)
	require.Equal(t, StateImported, obj.State)
}

func TestImportNewPreassignsPackageID(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{}
	lc := NewLifecycle(store, catalog, nil, LifecycleConfig{})
	ctx := context.Background()

	obj := newObject(t, "stable-id", StatusNew, &Dataset{Identifier: "stable-id", Title: "Stable"})
	require.NoError(t, store.Insert(ctx, obj))

	require.Equal(t, ImportOK, lc.Import(ctx, obj))
	// the create payload must carry the identifier as an explicit id;
	// without it the catalog generates its own and the stored package id
	// no longer matches references established during gather
	require.Equal(t, []string{"stable-id"}, catalog.created)
	require.Equal(t, "stable-id", obj.PackageID)
}

func TestImportMalformedContentFailsOnlyThatObject(t *testing.T) {
	store := NewMemoryStore()
	lc := NewLifecycle(store, &fakeCatalog{}, nil, LifecycleConfig{})
	ctx := context.Background()

	obj := &Object{ID: "bad", SourceID: "src", GUID: "bad", Status: StatusNew, Content: []byte("{not json")}
	require.NoError(t, store.Insert(ctx, obj))

	require.Equal(t, ImportFailed, lc.Import(ctx, obj))
	require.Equal(t, StateError, obj.State)
	require.NotEmpty(t, obj.Errors)
}

func TestImportChangeSkipsWhenNotNewer(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{}
	lc := NewLifecycle(store, catalog, nil, LifecycleConfig{})
	ctx := context.Background()

	prev := newObject(t, "g", StatusNew, &Dataset{Identifier: "g", Title: "Old", Modified: "2024-05-01"})
	prev.Current = true
	prev.PackageID = "pkg-g"
	prev.State = StateImported
	require.NoError(t, store.Insert(ctx, prev))

	obj := newObject(t, "g", StatusChange, &Dataset{Identifier: "g", Title: "Old", Modified: "2024-05-01"})
	obj.PackageID = "pkg-g"
	require.NoError(t, store.Insert(ctx, obj))

	require.Equal(t, ImportUnchanged, lc.Import(ctx, obj))
	require.Empty(t, catalog.updated)

	// the previous object is still the current one
	current, err := store.CurrentObject(ctx, "src", "g")
	require.NoError(t, err)
	require.Equal(t, prev.ID, current.ID)
}

func TestImportChangeUpdatesWhenNewer(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{}
	lc := NewLifecycle(store, catalog, nil, LifecycleConfig{})
	ctx := context.Background()

	prev := newObject(t, "g", StatusNew, &Dataset{Identifier: "g", Title: "Old", Modified: "2024-05-01"})
	prev.Current = true
	prev.PackageID = "pkg-g"
	require.NoError(t, store.Insert(ctx, prev))

	obj := newObject(t, "g", StatusChange, &Dataset{Identifier: "g", Title: "Newer", Modified: "2024-06-01"})
	obj.PackageID = "pkg-g"
	require.NoError(t, store.Insert(ctx, obj))

	require.Equal(t, ImportOK, lc.Import(ctx, obj))
	// the update payload addresses the package by its stored id, not by name
	require.Equal(t, []string{"pkg-g"}, catalog.updated)
	require.True(t, obj.Current)

	current, err := store.CurrentObject(ctx, "src", "g")
	require.NoError(t, err)
	require.Equal(t, obj.ID, current.ID)
}

func TestImportForceReimportsUnchangedRecord(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{}
	lc := NewLifecycle(store, catalog, nil, LifecycleConfig{ForceImport: true})
	ctx := context.Background()

	prev := newObject(t, "g", StatusNew, &Dataset{Identifier: "g", Modified: "2024-05-01"})
	prev.Current = true
	require.NoError(t, store.Insert(ctx, prev))

	obj := newObject(t, "g", StatusChange, &Dataset{Identifier: "g", Modified: "2024-05-01"})
	require.NoError(t, store.Insert(ctx, obj))

	require.Equal(t, ImportOK, lc.Import(ctx, obj))
	require.Equal(t, []string{"g"}, catalog.updated)
}

func TestImportDeleteIsOptIn(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{}
	ctx := context.Background()

	obj := newObject(t, "g", StatusDelete, &Dataset{Identifier: "g"})
	obj.PackageID = "pkg-g"
	obj.Current = true
	require.NoError(t, store.Insert(ctx, obj))

	// deletion disabled: unchanged, package untouched
	lc := NewLifecycle(store, catalog, nil, LifecycleConfig{})
	require.Equal(t, ImportUnchanged, lc.Import(ctx, obj))
	require.Empty(t, catalog.deleted)

	// deletion enabled
	lc = NewLifecycle(store, catalog, nil, LifecycleConfig{OverrideLocalDatasets: true})
	require.Equal(t, ImportOK, lc.Import(ctx, obj))
	require.Equal(t, []string{"pkg-g"}, catalog.deleted)
}

func TestImportRehomesGuidUnlessClaimed(t *testing.T) {
	store := NewMemoryStore()
	lc := NewLifecycle(store, &fakeCatalog{}, nil, LifecycleConfig{})
	ctx := context.Background()

	obj := newObject(t, "old-guid", StatusNew, &Dataset{Identifier: "resolved-guid", Title: "X"})
	require.NoError(t, store.Insert(ctx, obj))
	require.Equal(t, ImportOK, lc.Import(ctx, obj))
	require.Equal(t, "resolved-guid", obj.GUID)

	// a current object already claiming the target guid is a hard conflict
	conflicting := newObject(t, "other", StatusNew, &Dataset{Identifier: "resolved-guid", Title: "Y"})
	require.NoError(t, store.Insert(ctx, conflicting))
	require.Equal(t, ImportFailed, lc.Import(ctx, conflicting))
}

func TestImportValidationErrorIsFlattened(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{err: &fakeValidationError{fields: map[string][]string{
		"title": {"Missing value"},
		"url":   {"Invalid URL", "Too long"},
	}}}
	lc := NewLifecycle(store, catalog, nil, LifecycleConfig{})
	ctx := context.Background()

	obj := newObject(t, "g", StatusNew, &Dataset{Identifier: "g"})
	require.NoError(t, store.Insert(ctx, obj))

	require.Equal(t, ImportFailed, lc.Import(ctx, obj))
	require.Len(t, obj.Errors, 1)
	require.Contains(t, obj.Errors[0], "title: Missing value")
	require.Contains(t, obj.Errors[0], "url: Invalid URL; Too long")
}

func TestMergeResourcesIsAdditive(t *testing.T) {
	existing := []Resource{
		{URL: "http://x/a.csv", Format: "CSV", Modified: "2024-01-01"},
		{URL: "http://x/kept.csv", Format: "CSV"},
	}
	incoming := []Resource{
		{URL: "http://x/a.csv", Format: "CSV", Modified: "2024-03-01", Name: "fresher"},
		{URL: "http://x/new.json", Format: "JSON"},
	}

	merged := mergeResources(existing, incoming)
	require.Len(t, merged, 3)
	require.Equal(t, "fresher", merged[0].Name)
	require.Equal(t, "http://x/kept.csv", merged[1].URL)
	require.Equal(t, "http://x/new.json", merged[2].URL)
}

type titleStampHook struct{}

func (titleStampHook) BeforeCreate(_ context.Context, d *Dataset) error {
	d.Title = d.Title + " (stamped)"
	return nil
}

type rejectingHook struct{}

func (rejectingHook) BeforeModifyPackage(context.Context, *Dataset) error {
	return fmt.Errorf("record rejected by extension")
}

func TestHooksRunInOrderAndAbortOnError(t *testing.T) {
	store := NewMemoryStore()
	catalog := &fakeCatalog{}
	ctx := context.Background()

	lc := NewLifecycle(store, catalog, NewHookSet(titleStampHook{}), LifecycleConfig{})
	obj := newObject(t, "g", StatusNew, &Dataset{Identifier: "g", Title: "T"})
	require.NoError(t, store.Insert(ctx, obj))
	require.Equal(t, ImportOK, lc.Import(ctx, obj))

	lc = NewLifecycle(store, catalog, NewHookSet(rejectingHook{}), LifecycleConfig{})
	obj2 := newObject(t, "g2", StatusNew, &Dataset{Identifier: "g2"})
	require.NoError(t, store.Insert(ctx, obj2))
	require.Equal(t, ImportFailed, lc.Import(ctx, obj2))
	require.Contains(t, obj2.Errors[0], "record rejected by extension")
}
