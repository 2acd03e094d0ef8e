package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mjanez/schemingdcat/pkg"
)

func memoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func report(source string, gathered, created int) pkg.HarvestReport {
	return pkg.HarvestReport{{
		SourceName:      source,
		RecordsGathered: gathered,
		DatasetsCreated: created,
	}}
}

func TestUpdateAndSummary(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, report("csw-a", 10, 4)))
	require.NoError(t, s.Update(ctx, report("csw-a", 12, 2)))
	require.NoError(t, s.Update(ctx, report("sql-b", 3, 3)))

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	require.Equal(t, "csw-a", summary[0].SourceID)
	require.Equal(t, 2, summary[0].Runs)
	require.Equal(t, 22, summary[0].Gathered)
	require.Equal(t, 6, summary[0].Created)
	require.Equal(t, "sql-b", summary[1].SourceID)
}

func TestCleanDropsHistory(t *testing.T) {
	s := memoryStore(t)
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, report("csw-a", 1, 1)))
	require.NoError(t, s.Update(ctx, report("sql-b", 1, 1)))

	// a cutoff in the past removes nothing
	n, err := s.Clean(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, n)

	// the zero time removes everything
	n, err = s.Clean(ctx, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, n)

	summary, err := s.Summary(ctx)
	require.NoError(t, err)
	require.Empty(t, summary)
}
