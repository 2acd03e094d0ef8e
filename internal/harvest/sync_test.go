package harvest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func record(guid, title string) RecordResult {
	return RecordResult{GUID: guid, Dataset: &Dataset{Identifier: guid, Title: title}}
}

func TestDiffPartitionsUnionExactly(t *testing.T) {
	inStore := map[string]string{"a": "pkg-a", "b": "pkg-b", "c": "pkg-c"}
	inHarvest := map[string]struct{}{"b": {}, "c": {}, "d": {}}

	diff := DiffGUIDs(inStore, inHarvest)

	require.Equal(t, []string{"d"}, diff.New)
	require.Equal(t, []string{"b", "c"}, diff.Change)
	require.Equal(t, []string{"a"}, diff.Delete)

	// the three sets cover the union with no overlap
	seen := map[string]int{}
	for _, s := range [][]string{diff.New, diff.Change, diff.Delete} {
		for _, g := range s {
			seen[g]++
		}
	}
	require.Len(t, seen, 4)
	for g, n := range seen {
		require.Equal(t, 1, n, "guid %s appears in more than one partition", g)
	}
}

func TestGatherOnEmptyStoreEmitsOnlyNew(t *testing.T) {
	store := NewMemoryStore()
	engine := NewSyncEngine(store, DuplicateOverwrite)

	objects, report, err := engine.Gather(context.Background(), "src", []RecordResult{
		record("a", "First"), record("b", "Second"),
	})
	require.NoError(t, err)
	require.Len(t, objects, 2)
	require.Equal(t, 2, report.New)
	require.Zero(t, report.Changed)
	require.Zero(t, report.Deleted)
	for _, obj := range objects {
		require.Equal(t, StatusNew, obj.Status)
		require.False(t, obj.Current)
		require.Empty(t, obj.PackageID)
	}
}

func TestGatherIsIdempotentAfterImport(t *testing.T) {
	store := NewMemoryStore()
	engine := NewSyncEngine(store, DuplicateOverwrite)
	lifecycle := NewLifecycle(store, &fakeCatalog{}, nil, LifecycleConfig{})
	ctx := context.Background()

	records := []RecordResult{record("a", "First"), record("b", "Second")}

	objects, _, err := engine.Gather(ctx, "src", records)
	require.NoError(t, err)
	for _, obj := range objects {
		require.NoError(t, lifecycle.Fetch(ctx, obj))
		require.Equal(t, ImportOK, lifecycle.Import(ctx, obj))
	}

	// same inputs against the resulting state: everything is a change
	_, report, err := engine.Gather(ctx, "src", records)
	require.NoError(t, err)
	require.Zero(t, report.New)
	require.Zero(t, report.Deleted)
	require.Equal(t, 2, report.Changed)
}

func TestGatherDuplicateIdentifierLastWriteWins(t *testing.T) {
	store := NewMemoryStore()
	engine := NewSyncEngine(store, DuplicateOverwrite)

	objects, report, err := engine.Gather(context.Background(), "src", []RecordResult{
		record("dup", "First title"), record("dup", "Second title"),
	})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, 1, report.Gathered)

	d, err := objects[0].Record()
	require.NoError(t, err)
	require.Equal(t, "Second title", d.Title)
}

func TestGatherDuplicateIdentifierFailPolicy(t *testing.T) {
	engine := NewSyncEngine(NewMemoryStore(), DuplicateFail)

	_, _, err := engine.Gather(context.Background(), "src", []RecordResult{
		record("dup", "First"), record("dup", "Second"),
	})
	require.ErrorContains(t, err, "duplicate identifier")
}

func TestGatherDeleteFlipsPreviousCurrentObjects(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Insert(ctx, &Object{
		SourceID: "src", GUID: "gone", PackageID: "pkg-gone",
		Status: StatusNew, State: StateImported, Current: true,
		Content: []byte(`{"identifier":"gone"}`),
	}))

	engine := NewSyncEngine(store, DuplicateOverwrite)
	objects, report, err := engine.Gather(ctx, "src", nil)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, 1, report.Deleted)
	require.Equal(t, StatusDelete, objects[0].Status)
	require.Equal(t, "pkg-gone", objects[0].PackageID)

	// exactly one current object remains for the guid: the delete one
	versions, err := store.ObjectsForGUID(ctx, "src", "gone")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	current := 0
	for _, v := range versions {
		if v.Current {
			current++
			require.Equal(t, StatusDelete, v.Status)
		}
	}
	require.Equal(t, 1, current)
}

func TestGatherSkipsAreCountedNotFatal(t *testing.T) {
	engine := NewSyncEngine(NewMemoryStore(), DuplicateOverwrite)

	objects, report, err := engine.Gather(context.Background(), "src", []RecordResult{
		Skipped("bad", "no identifier could be derived"),
		record("ok", "Fine"),
	})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.Equal(t, 1, report.Skipped)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "bad", report.Errors[0].GUID)
}

func TestGatherAssignsIdentifierWhenSourceHasNone(t *testing.T) {
	engine := NewSyncEngine(NewMemoryStore(), DuplicateOverwrite)

	objects, _, err := engine.Gather(context.Background(), "src", []RecordResult{
		{Dataset: &Dataset{Title: "Anonymous"}},
	})
	require.NoError(t, err)
	require.Len(t, objects, 1)
	require.NotEmpty(t, objects[0].GUID)
}

func TestUniqueNameSuffixesCollisions(t *testing.T) {
	gc := newGatherContext()
	require.Equal(t, "rivers-of-spain", gc.uniqueName("Rivers of Spain", "id1"))
	require.Equal(t, "rivers-of-spain-1", gc.uniqueName("Rivers of Spain", "id2"))
	require.Equal(t, "rivers-of-spain-2", gc.uniqueName("Rivers of Spain", "id3"))
}

func TestSlugify(t *testing.T) {
	require.Equal(t, "hidrografia-red-2024", Slugify("Hidrografía: red (2024)"))
	require.Equal(t, "", Slugify("¿¿??"))
}
