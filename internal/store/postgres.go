// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package store provides the Postgres-backed harvest object store.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/harvest"
)

const schema = `
CREATE TABLE IF NOT EXISTS harvest_object (
	id         TEXT PRIMARY KEY,
	source_id  TEXT NOT NULL,
	guid       TEXT NOT NULL,
	content    JSONB NOT NULL,
	status     TEXT NOT NULL,
	state      TEXT NOT NULL,
	current    BOOLEAN NOT NULL DEFAULT FALSE,
	package_id TEXT NOT NULL DEFAULT '',
	created    TIMESTAMPTZ NOT NULL DEFAULT now(),
	errors     JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS harvest_object_source_guid_idx
	ON harvest_object (source_id, guid);
CREATE INDEX IF NOT EXISTS harvest_object_current_idx
	ON harvest_object (source_id) WHERE current;
`

// objectRow is the database shape of a harvest object.
type objectRow struct {
	ID        string          `db:"id"`
	SourceID  string          `db:"source_id"`
	GUID      string          `db:"guid"`
	Content   []byte          `db:"content"`
	Status    string          `db:"status"`
	State     string          `db:"state"`
	Current   bool            `db:"current"`
	PackageID string          `db:"package_id"`
	Created   time.Time       `db:"created"`
	Errors    json.RawMessage `db:"errors"`
}

func (r objectRow) toObject() (*harvest.Object, error) {
	obj := &harvest.Object{
		ID:        r.ID,
		SourceID:  r.SourceID,
		GUID:      r.GUID,
		Content:   r.Content,
		Status:    harvest.Status(r.Status),
		State:     harvest.State(r.State),
		Current:   r.Current,
		PackageID: r.PackageID,
		Created:   r.Created,
	}
	if len(r.Errors) > 0 {
		if err := json.Unmarshal(r.Errors, &obj.Errors); err != nil {
			return nil, fmt.Errorf("decoding errors column of object %s: %w", r.ID, err)
		}
	}
	return obj, nil
}

func rowFromObject(obj *harvest.Object) (objectRow, error) {
	errorsJSON, err := json.Marshal(obj.Errors)
	if err != nil {
		return objectRow{}, err
	}
	if obj.Errors == nil {
		errorsJSON = []byte("[]")
	}
	return objectRow{
		ID:        obj.ID,
		SourceID:  obj.SourceID,
		GUID:      obj.GUID,
		Content:   obj.Content,
		Status:    string(obj.Status),
		State:     string(obj.State),
		Current:   obj.Current,
		PackageID: obj.PackageID,
		Created:   obj.Created,
		Errors:    errorsJSON,
	}, nil
}

// PostgresStore implements harvest.ObjectStore on a Postgres database.
type PostgresStore struct {
	db *sqlx.DB
}

var _ harvest.ObjectStore = &PostgresStore{}

// Open connects to the database and ensures the schema exists.
func Open(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to harvest object store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating harvest object schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing connection, without touching the
// schema. Used by tests.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) CurrentGUIDs(ctx context.Context, sourceID string) (map[string]string, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT guid, package_id FROM harvest_object WHERE source_id = $1 AND current`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("reading current guids: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var guid, packageID string
		if err := rows.Scan(&guid, &packageID); err != nil {
			return nil, err
		}
		out[guid] = packageID
	}
	return out, rows.Err()
}

func (s *PostgresStore) Insert(ctx context.Context, obj *harvest.Object) error {
	if obj.Created.IsZero() {
		obj.Created = time.Now()
	}
	row, err := rowFromObject(obj)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO harvest_object
			(id, source_id, guid, content, status, state, current, package_id, created, errors)
		VALUES
			(:id, :source_id, :guid, :content, :status, :state, :current, :package_id, :created, :errors)`,
		row)
	if err != nil {
		return fmt.Errorf("inserting harvest object %s: %w", obj.ID, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, obj *harvest.Object) error {
	row, err := rowFromObject(obj)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE harvest_object SET
			content = :content, status = :status, state = :state,
			current = :current, package_id = :package_id, errors = :errors
		WHERE id = :id`,
		row)
	if err != nil {
		return fmt.Errorf("updating harvest object %s: %w", obj.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("no stored object with id %s", obj.ID)
	}
	return nil
}

func (s *PostgresStore) CurrentObject(ctx context.Context, sourceID, guid string) (*harvest.Object, error) {
	var row objectRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, source_id, guid, content, status, state, current, package_id, created, errors
		FROM harvest_object
		WHERE source_id = $1 AND guid = $2 AND current
		ORDER BY created DESC LIMIT 1`,
		sourceID, guid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading current object for %s: %w", guid, err)
	}
	return row.toObject()
}

func (s *PostgresStore) MarkNotCurrent(ctx context.Context, sourceID, guid string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE harvest_object SET current = FALSE WHERE source_id = $1 AND guid = $2 AND current`,
		sourceID, guid)
	if err != nil {
		return 0, fmt.Errorf("flipping current objects for %s: %w", guid, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 1 {
		log.Warnf("guid %s had %d current objects, expected at most one", guid, n)
	}
	return int(n), nil
}

func (s *PostgresStore) ObjectsForGUID(ctx context.Context, sourceID, guid string) ([]*harvest.Object, error) {
	return s.queryObjects(ctx, `
		SELECT id, source_id, guid, content, status, state, current, package_id, created, errors
		FROM harvest_object
		WHERE source_id = $1 AND guid = $2
		ORDER BY created DESC`,
		sourceID, guid)
}

func (s *PostgresStore) PendingObjects(ctx context.Context, sourceID string) ([]*harvest.Object, error) {
	return s.queryObjects(ctx, `
		SELECT id, source_id, guid, content, status, state, current, package_id, created, errors
		FROM harvest_object
		WHERE source_id = $1 AND state IN ('new', 'fetched')
		ORDER BY created`,
		sourceID)
}

func (s *PostgresStore) queryObjects(ctx context.Context, query string, args ...any) ([]*harvest.Object, error) {
	var rows []objectRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("querying harvest objects: %w", err)
	}
	out := make([]*harvest.Object, 0, len(rows))
	for _, r := range rows {
		obj, err := r.toObject()
		if err != nil {
			return nil, err
		}
		out = append(out, obj)
	}
	return out, nil
}
