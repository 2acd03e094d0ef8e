// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package stats keeps a local history of harvest runs in a duckdb file,
// backing the update-stats and clean-stats maintenance commands.
package stats

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/pkg"
)

const schema = `
CREATE TABLE IF NOT EXISTS harvest_runs (
	source_id TEXT NOT NULL,
	run_at    TIMESTAMP NOT NULL,
	seconds   DOUBLE NOT NULL,
	gathered  INTEGER NOT NULL,
	created   INTEGER NOT NULL,
	updated   INTEGER NOT NULL,
	deleted   INTEGER NOT NULL,
	failed    INTEGER NOT NULL
)`

// Store is the statistics database. A file path of ":memory:" (or "")
// keeps everything in memory.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening stats database %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating stats schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Update appends one row per source report of a finished harvest.
func (s *Store) Update(ctx context.Context, report pkg.HarvestReport) error {
	now := time.Now()
	for _, src := range report {
		failed := src.ImportFailures + len(src.GatherFailures)
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO harvest_runs
				(source_id, run_at, seconds, gathered, created, updated, deleted, failed)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			src.SourceName, now, src.SecondsToComplete,
			src.RecordsGathered, src.DatasetsCreated, src.DatasetsUpdated,
			src.DatasetsDeleted, failed)
		if err != nil {
			return fmt.Errorf("recording stats for %s: %w", src.SourceName, err)
		}
	}
	log.Infof("recorded stats for %d source(s)", len(report))
	return nil
}

// RunSummary aggregates the stored history of one source.
type RunSummary struct {
	SourceID string
	Runs     int
	Gathered int
	Created  int
	Updated  int
	Deleted  int
	Failed   int
	LastRun  time.Time
}

// Summary aggregates every stored run, per source.
func (s *Store) Summary(ctx context.Context) ([]RunSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, count(*), sum(gathered), sum(created), sum(updated),
			sum(deleted), sum(failed), max(run_at)
		FROM harvest_runs
		GROUP BY source_id
		ORDER BY source_id`)
	if err != nil {
		return nil, fmt.Errorf("reading stats summary: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		if err := rows.Scan(&r.SourceID, &r.Runs, &r.Gathered, &r.Created,
			&r.Updated, &r.Deleted, &r.Failed, &r.LastRun); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Clean drops run history older than the cutoff; the zero time drops
// everything.
func (s *Store) Clean(ctx context.Context, olderThan time.Time) (int, error) {
	var (
		res sql.Result
		err error
	)
	if olderThan.IsZero() {
		res, err = s.db.ExecContext(ctx, `DELETE FROM harvest_runs`)
	} else {
		res, err = s.db.ExecContext(ctx, `DELETE FROM harvest_runs WHERE run_at < ?`, olderThan)
	}
	if err != nil {
		return 0, fmt.Errorf("cleaning stats: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}
