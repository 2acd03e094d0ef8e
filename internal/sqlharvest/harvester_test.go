package sqlharvest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func mockHarvester(t *testing.T, cfg Config) (*Harvester, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(cfg, sqlx.NewDb(db, "postgres")), mock
}

func TestCollectMapsRowsToDatasets(t *testing.T) {
	cfg := Config{DatasetMapping: FieldMapping{
		"identifier": {FieldName: "meta.dataset.id"},
		"title":      {FieldName: "meta.dataset.name"},
		"license":    {FieldValue: "cc-by"},
	}}
	h, mock := mockHarvester(t, cfg)

	mock.ExpectExec(`SET search_path TO meta`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT meta.dataset.id AS identifier`).
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "title"}).
			AddRow("ds-1", "Rivers").
			AddRow("ds-2", "Lakes"))

	results, err := h.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "ds-1", results[0].GUID)
	require.Equal(t, "Rivers", results[0].Dataset.Title)
	// constants from the mapping are applied to every row
	require.Equal(t, "cc-by", results[0].Dataset.License)
	require.Equal(t, "cc-by", results[1].Dataset.License)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectSkipsRowsWithoutIdentifier(t *testing.T) {
	cfg := Config{DatasetMapping: FieldMapping{
		"identifier": {FieldName: "meta.dataset.id"},
	}}
	h, mock := mockHarvester(t, cfg)

	mock.ExpectExec(`SET search_path`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT`).
		WillReturnRows(sqlmock.NewRows([]string{"identifier"}).
			AddRow(nil).
			AddRow("ds-1"))

	results, err := h.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NotNil(t, results[0].Skip)
	require.Equal(t, "ds-1", results[1].GUID)
}

func TestCollectAttachesClassifiedDistributions(t *testing.T) {
	cfg := Config{
		DatasetMapping: FieldMapping{
			"identifier": {FieldName: "meta.dataset.id"},
			"title":      {FieldName: "meta.dataset.name"},
		},
		DistributionMapping: FieldMapping{
			"dataset_identifier": {FieldName: "meta.distribution.dataset_id"},
			"url":                {FieldName: "meta.distribution.url"},
			"format":             {FieldName: "meta.distribution.format"},
		},
	}
	h, mock := mockHarvester(t, cfg)

	mock.ExpectExec(`SET search_path TO meta`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT meta.dataset.id AS identifier`).
		WillReturnRows(sqlmock.NewRows([]string{"identifier", "title"}).
			AddRow("ds-1", "Rivers"))
	mock.ExpectExec(`SET search_path TO meta`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT meta.distribution.dataset_id AS dataset_identifier`).
		WillReturnRows(sqlmock.NewRows([]string{"dataset_identifier", "url", "format"}).
			AddRow("ds-1", "http://x/a.csv", "text-csv").
			AddRow("ghost", "http://x/g.csv", "csv"))

	results, err := h.Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	// the row is joined to its dataset and the declared format resolved
	// to the canonical code
	resources := results[0].Dataset.Resources
	require.Len(t, resources, 1)
	require.Equal(t, "http://x/a.csv", resources[0].URL)
	require.Equal(t, "CSV", resources[0].Format)
	require.Equal(t, "text/csv", resources[0].Mimetype)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectRejectsDistributionMappingWithoutJoinField(t *testing.T) {
	cfg := Config{
		DatasetMapping: FieldMapping{
			"identifier": {FieldName: "meta.dataset.id"},
		},
		DistributionMapping: FieldMapping{
			"url": {FieldName: "meta.distribution.url"},
		},
	}
	h, _ := mockHarvester(t, cfg)

	_, err := h.Collect(context.Background())
	require.ErrorContains(t, err, "dataset_identifier")
}

type queryRewriteHook struct{ rewritten bool }

func (q *queryRewriteHook) BeforeSQLRetrieve(_ context.Context, query *Query) error {
	query.SQL += " WHERE meta.dataset.active"
	q.rewritten = true
	return nil
}

type rowFilterHook struct{}

func (rowFilterHook) AfterSQLRetrieve(_ context.Context, rows []map[string]any) ([]map[string]any, error) {
	var out []map[string]any
	for _, row := range rows {
		if row["identifier"] != "drop-me" {
			out = append(out, row)
		}
	}
	return out, nil
}

func TestCollectRunsRetrieveHooks(t *testing.T) {
	rewrite := &queryRewriteHook{}
	cfg := Config{
		DatasetMapping: FieldMapping{"identifier": {FieldName: "meta.dataset.id"}},
		Hooks:          []any{rewrite, rowFilterHook{}},
	}
	h, mock := mockHarvester(t, cfg)

	mock.ExpectExec(`SET search_path`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`WHERE meta.dataset.active`).
		WillReturnRows(sqlmock.NewRows([]string{"identifier"}).
			AddRow("drop-me").
			AddRow("ds-1"))

	results, err := h.Collect(context.Background())
	require.NoError(t, err)
	require.True(t, rewrite.rewritten)
	require.Len(t, results, 1)
	require.Equal(t, "ds-1", results[0].GUID)
}

func TestConnectRetriesWithBudget(t *testing.T) {
	attempts := 0
	h := &Harvester{
		cfg: Config{DatasetMapping: FieldMapping{"identifier": {FieldName: "meta.dataset.id"}}},
		open: func() (*sqlx.DB, error) {
			attempts++
			return nil, fmt.Errorf("connection refused")
		},
		backoff: time.Millisecond,
	}

	_, err := h.Collect(context.Background())
	require.ErrorContains(t, err, "after 5 attempts")
	require.Equal(t, 5, attempts)
}

func TestDSN(t *testing.T) {
	c := Credentials{User: "u", Password: "p", Host: "db.local", Port: 5433, DB: "cat"}
	require.Equal(t,
		"host=db.local port=5433 user=u password=p dbname=cat sslmode=disable",
		c.DSN())
}
