package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/mjanez/schemingdcat/internal/harvest"
)

func mockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(sqlx.NewDb(db, "postgres")), mock
}

func TestCurrentGUIDs(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectQuery(`SELECT guid, package_id FROM harvest_object`).
		WithArgs("src").
		WillReturnRows(sqlmock.NewRows([]string{"guid", "package_id"}).
			AddRow("a", "pkg-a").
			AddRow("b", "pkg-b"))

	guids, err := s.CurrentGUIDs(context.Background(), "src")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "pkg-a", "b": "pkg-b"}, guids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertSerializesErrorsAsJSON(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec(`INSERT INTO harvest_object`).
		WithArgs("obj-1", "src", "g", []byte(`{"identifier":"g"}`), "new", "new",
			false, "", sqlmock.AnyArg(), []byte(`["boom"]`)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.Insert(context.Background(), &harvest.Object{
		ID: "obj-1", SourceID: "src", GUID: "g",
		Content: []byte(`{"identifier":"g"}`),
		Status:  harvest.StatusNew, State: harvest.StateNew,
		Errors: []string{"boom"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentObjectNoRowsIsNil(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectQuery(`SELECT id, source_id, guid`).
		WithArgs("src", "g").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	obj, err := s.CurrentObject(context.Background(), "src", "g")
	require.NoError(t, err)
	require.Nil(t, obj)
}

func TestCurrentObjectRoundTrip(t *testing.T) {
	s, mock := mockStore(t)
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id, source_id, guid`).
		WithArgs("src", "g").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "source_id", "guid", "content", "status", "state",
			"current", "package_id", "created", "errors",
		}).AddRow("obj-1", "src", "g", []byte(`{"identifier":"g"}`), "change",
			"imported", true, "pkg-g", created, []byte(`[]`)))

	obj, err := s.CurrentObject(context.Background(), "src", "g")
	require.NoError(t, err)
	require.Equal(t, "obj-1", obj.ID)
	require.Equal(t, harvest.StatusChange, obj.Status)
	require.True(t, obj.Current)
	require.Equal(t, created, obj.Created)
	require.Empty(t, obj.Errors)
}

func TestMarkNotCurrentReturnsRowCount(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec(`UPDATE harvest_object SET current = FALSE`).
		WithArgs("src", "g").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.MarkNotCurrent(context.Background(), "src", "g")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestUpdateMissingObjectFails(t *testing.T) {
	s, mock := mockStore(t)
	mock.ExpectExec(`UPDATE harvest_object SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := s.Update(context.Background(), &harvest.Object{ID: "ghost", Content: []byte(`{}`)})
	require.ErrorContains(t, err, "no stored object with id ghost")
}
