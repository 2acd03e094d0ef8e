// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package sqlharvest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/classify"
	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/telemetry"
)

const (
	connectAttempts = 5
	connectBackoff  = 10 * time.Second
)

// Credentials holds the structured connection settings of a source
// database.
type Credentials struct {
	User     string `json:"user"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DB       string `json:"db"`
}

// DSN renders the Postgres connection string.
func (c Credentials) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.Host, c.Port, c.User, c.Password, c.DB)
}

// BeforeSQLRetrieveHook can rewrite the generated query before it runs.
type BeforeSQLRetrieveHook interface {
	BeforeSQLRetrieve(ctx context.Context, q *Query) error
}

// AfterSQLRetrieveHook can rewrite the retrieved rows before mapping.
type AfterSQLRetrieveHook interface {
	AfterSQLRetrieve(ctx context.Context, rows []map[string]any) ([]map[string]any, error)
}

// datasetKeyField is the mandatory join column of a distribution
// mapping: its value names the dataset a distribution row belongs to.
const datasetKeyField = "dataset_identifier"

// Config wires one SQL source. Each mapping produces one generated
// query per logical content group.
type Config struct {
	Credentials Credentials
	// field mapping for dataset-level fields
	DatasetMapping FieldMapping
	// optional field mapping for distribution rows; must contain a
	// dataset_identifier column joining each row to its dataset
	DistributionMapping FieldMapping
	// optional hooks, each checked for the hook interfaces above
	Hooks []any
}

// Harvester is the SourceCollector for SQL databases.
type Harvester struct {
	cfg  Config
	open func() (*sqlx.DB, error)
	// overridable in tests
	backoff time.Duration
}

var _ harvest.SourceCollector = &Harvester{}

func New(cfg Config) *Harvester {
	return &Harvester{
		cfg: cfg,
		open: func() (*sqlx.DB, error) {
			return sqlx.Connect("postgres", cfg.Credentials.DSN())
		},
		backoff: connectBackoff,
	}
}

// NewWithDB wraps an existing connection, bypassing the retry loop.
// Used by tests.
func NewWithDB(cfg Config, db *sqlx.DB) *Harvester {
	return &Harvester{cfg: cfg, open: func() (*sqlx.DB, error) { return db, nil }}
}

// connect dials the database with a fixed retry budget. Only the
// connection check is retried; query failures later on are not.
func (h *Harvester) connect(ctx context.Context) (*sqlx.DB, error) {
	var lastErr error
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		db, err := h.open()
		if err == nil {
			return db, nil
		}
		lastErr = err
		log.Warnf("database connection attempt %d/%d failed: %s", attempt, connectAttempts, err)
		if attempt == connectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(h.backoff):
		}
	}
	return nil, fmt.Errorf("connecting to source database after %d attempts: %w", connectAttempts, lastErr)
}

// Collect builds and runs one mapping-driven query per content group:
// datasets first, then distributions when a distribution mapping is
// configured. A connection or query failure aborts the whole batch; bad
// rows are skipped individually.
func (h *Harvester) Collect(ctx context.Context) ([]harvest.RecordResult, error) {
	ctx, span := telemetry.SubSpanFromCtx(ctx)
	defer span.End()

	datasetQuery, err := BuildQuery(h.cfg.DatasetMapping)
	if err != nil {
		return nil, err
	}
	var distributionQuery *Query
	if len(h.cfg.DistributionMapping) > 0 {
		if _, ok := h.cfg.DistributionMapping[datasetKeyField]; !ok {
			return nil, fmt.Errorf("distribution mapping has no %s field joining rows to their dataset", datasetKeyField)
		}
		distributionQuery, err = BuildQuery(h.cfg.DistributionMapping)
		if err != nil {
			return nil, err
		}
	}

	db, err := h.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := h.retrieve(ctx, db, datasetQuery)
	if err != nil {
		return nil, err
	}

	byIdentifier := make(map[string]*harvest.Dataset, len(rows))
	results := make([]harvest.RecordResult, 0, len(rows))
	for i, row := range rows {
		d := h.mapRow(row)
		if d.Identifier == "" {
			results = append(results, harvest.Skipped(
				fmt.Sprintf("row-%d", i), "row has no identifier value"))
			continue
		}
		byIdentifier[d.Identifier] = d
		results = append(results, harvest.RecordResult{GUID: d.Identifier, Dataset: d})
	}

	if distributionQuery != nil {
		distRows, err := h.retrieve(ctx, db, distributionQuery)
		if err != nil {
			return nil, err
		}
		h.attachDistributions(distRows, byIdentifier)
	}
	log.Infof("sql harvest collected %d rows", len(rows))
	return results, nil
}

// retrieve runs one generated query, returning the raw rows after the
// retrieve hooks have run.
func (h *Harvester) retrieve(ctx context.Context, db *sqlx.DB, query *Query) ([]map[string]any, error) {
	for _, hook := range h.cfg.Hooks {
		if hb, ok := hook.(BeforeSQLRetrieveHook); ok {
			if err := hb.BeforeSQLRetrieve(ctx, query); err != nil {
				return nil, fmt.Errorf("before_sql_retrieve hook: %w", err)
			}
		}
	}

	if query.SearchPath != "" {
		if _, err := db.ExecContext(ctx, query.SearchPath); err != nil {
			return nil, fmt.Errorf("setting search path: %w", err)
		}
	}

	sqlRows, err := db.QueryxContext(ctx, query.SQL)
	if err != nil {
		return nil, fmt.Errorf("running source query: %w", err)
	}
	defer sqlRows.Close()

	var rows []map[string]any
	for sqlRows.Next() {
		row := map[string]any{}
		if err := sqlRows.MapScan(row); err != nil {
			return nil, fmt.Errorf("scanning source row: %w", err)
		}
		rows = append(rows, row)
	}
	if err := sqlRows.Err(); err != nil {
		return nil, fmt.Errorf("reading source rows: %w", err)
	}

	for _, hook := range h.cfg.Hooks {
		if ha, ok := hook.(AfterSQLRetrieveHook); ok {
			rows, err = ha.AfterSQLRetrieve(ctx, rows)
			if err != nil {
				return nil, fmt.Errorf("after_sql_retrieve hook: %w", err)
			}
		}
	}
	return rows, nil
}

// attachDistributions joins distribution rows onto their datasets via
// the dataset_identifier value and classifies each resource. Rows
// referencing unknown datasets are dropped with a warning, never fatal.
func (h *Harvester) attachDistributions(rows []map[string]any, datasets map[string]*harvest.Dataset) {
	for _, row := range rows {
		key := stringify(row[datasetKeyField])
		d, ok := datasets[key]
		if !ok {
			log.Warnf("distribution row references unknown dataset %q, dropping it", key)
			continue
		}
		res := h.mapResourceRow(row)
		if res.URL == "" {
			log.Warnf("distribution row for dataset %q has no url, dropping it", key)
			continue
		}
		classify.CleanResource(&res)
		d.Resources = append(d.Resources, res)
	}
}

// mapRow builds a dataset from one result row: column aliases match the
// mapping's local field names, constants come from field_value entries,
// everything unrecognized lands in extras.
func (h *Harvester) mapRow(row map[string]any) *harvest.Dataset {
	d := &harvest.Dataset{Extras: map[string]string{}}

	for field, value := range row {
		assignField(d, field, stringify(value))
	}
	for field, spec := range h.cfg.DatasetMapping {
		if spec.FieldValue == nil {
			continue
		}
		switch v := spec.FieldValue.(type) {
		case []any:
			values := make([]string, 0, len(v))
			for _, item := range v {
				values = append(values, stringify(item))
			}
			assignListField(d, field, values)
		default:
			assignField(d, field, stringify(v))
		}
	}
	return d
}

// mapResourceRow builds one distribution from a result row, applying
// constants from the distribution mapping the same way mapRow does.
func (h *Harvester) mapResourceRow(row map[string]any) harvest.Resource {
	var res harvest.Resource
	for field, value := range row {
		assignResourceField(&res, field, stringify(value))
	}
	for field, spec := range h.cfg.DistributionMapping {
		if spec.FieldValue == nil {
			continue
		}
		switch v := spec.FieldValue.(type) {
		case []any:
			values := make([]string, 0, len(v))
			for _, item := range v {
				values = append(values, stringify(item))
			}
			if field == "conforms_to" {
				res.ConformsTo = values
			}
		default:
			assignResourceField(&res, field, stringify(v))
		}
	}
	return res
}

func assignResourceField(res *harvest.Resource, field, value string) {
	if value == "" {
		return
	}
	switch field {
	case datasetKeyField:
		// join key, consumed by attachDistributions
	case "url", "resource_url":
		res.URL = value
	case "name":
		res.Name = value
	case "description":
		res.Description = value
	case "format":
		res.Format = value
	case "mimetype":
		res.Mimetype = value
	case "protocol":
		res.Protocol = value
	case "modified":
		res.Modified = value
	case "conforms_to":
		res.ConformsTo = splitList(value)
	}
}

func assignField(d *harvest.Dataset, field, value string) {
	if value == "" {
		return
	}
	switch field {
	case "identifier":
		d.Identifier = value
	case "title":
		d.Title = value
	case "notes", "description":
		d.Notes = value
	case "license", "license_id":
		d.License = value
	case "issued":
		d.Issued = value
	case "modified":
		d.Modified = value
	case "tags":
		d.Tags = splitList(value)
	case "groups":
		d.Groups = splitList(value)
	case "theme":
		d.Theme = splitList(value)
	default:
		d.Extras[field] = value
	}
}

func assignListField(d *harvest.Dataset, field string, values []string) {
	switch field {
	case "tags":
		d.Tags = values
	case "groups":
		d.Groups = values
	case "theme":
		d.Theme = values
	default:
		d.Extras[field] = strings.Join(values, ",")
	}
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(t)
	}
}
