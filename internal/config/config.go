// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package config loads the harvest configuration file: the catalog
// endpoint, the object store, the optional archive and the per-source
// definitions. Source definitions are documents rather than flags, so
// they live in JSON instead of the CLI surface.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/mjanez/schemingdcat/internal/archive"
	"github.com/mjanez/schemingdcat/internal/ckanharvest"
	"github.com/mjanez/schemingdcat/internal/csw"
	"github.com/mjanez/schemingdcat/internal/cswharvest"
	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/sqlharvest"
	"github.com/mjanez/schemingdcat/internal/xlsharvest"
	"github.com/mjanez/schemingdcat/internal/xslt"
)

// CatalogConfig locates the target CKAN instance.
type CatalogConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"apikey"`
}

// StoreConfig locates the harvest object store. An empty DSN selects
// the in-memory store, useful for dry runs.
type StoreConfig struct {
	DSN string `json:"dsn"`
}

// CSWSource configures one CSW/INSPIRE source.
type CSWSource struct {
	URL           string `json:"url"`
	CQL           string `json:"cql,omitempty"`
	CQLQuery      string `json:"cql_query,omitempty"`
	CQLSearchTerm string `json:"cql_search_term,omitempty"`
	CQLUseLike    bool   `json:"cql_use_like,omitempty"`
	MaxRecords    int    `json:"max_records,omitempty"`
	Limit         int    `json:"limit,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	Stylesheet    string `json:"stylesheet"`
	MappingsDir   string `json:"mappings_dir,omitempty"`
	Processor     string `json:"processor,omitempty"`
}

// SQLSource configures one SQL database source.
type SQLSource struct {
	Credentials  sqlharvest.Credentials `json:"credentials"`
	FieldMapping json.RawMessage        `json:"field_mapping"`
	// optional mapping producing one distribution per row
	DistributionMapping json.RawMessage `json:"distribution_mapping,omitempty"`
}

// CKANSource configures one remote CKAN portal source.
type CKANSource struct {
	URL          string `json:"url"`
	FilterQuery  string `json:"filter_query,omitempty"`
	PageSize     int    `json:"page_size,omitempty"`
	IgnoreRobots bool   `json:"ignore_robots,omitempty"`
}

// XLSSource configures one spreadsheet source.
type XLSSource struct {
	Path  string `json:"path"`
	Sheet string `json:"sheet,omitempty"`
}

// Source is one harvest source definition. Exactly one of the
// type-specific sections must be set, matching Type.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type string `json:"type"`

	CSW  *CSWSource  `json:"csw,omitempty"`
	SQL  *SQLSource  `json:"sql,omitempty"`
	CKAN *CKANSource `json:"ckan,omitempty"`
	XLS  *XLSSource  `json:"xls,omitempty"`

	// duplicate identifier policy: "overwrite" (default) or "fail"
	DuplicatePolicy       string `json:"duplicate_policy,omitempty"`
	ForceImport           bool   `json:"force_import,omitempty"`
	OverrideLocalDatasets bool   `json:"override_local_datasets,omitempty"`
}

// HarvestConfig is the root of the configuration file.
type HarvestConfig struct {
	Catalog   CatalogConfig   `json:"catalog"`
	Store     StoreConfig     `json:"store"`
	Archive   *archive.Config `json:"archive,omitempty"`
	StatsPath string          `json:"stats_path,omitempty"`
	Sources   []Source        `json:"sources"`
}

// Load reads and validates a configuration file.
func Load(path string) (*HarvestConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	var cfg HarvestConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the structural rules of the file.
func (c *HarvestConfig) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("config defines no sources")
	}
	seen := map[string]bool{}
	for i, src := range c.Sources {
		if src.ID == "" {
			return fmt.Errorf("source %d has no id", i)
		}
		if seen[src.ID] {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = true
		if err := src.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s Source) validate() error {
	sections := 0
	for _, set := range []bool{s.CSW != nil, s.SQL != nil, s.CKAN != nil, s.XLS != nil} {
		if set {
			sections++
		}
	}
	if sections != 1 {
		return fmt.Errorf("source %q must define exactly one source section, has %d", s.ID, sections)
	}
	expected := map[string]bool{
		"csw":  s.CSW != nil,
		"sql":  s.SQL != nil,
		"ckan": s.CKAN != nil,
		"xls":  s.XLS != nil,
	}
	if !expected[s.Type] {
		return fmt.Errorf("source %q has type %q but no matching section", s.ID, s.Type)
	}
	switch s.DuplicatePolicy {
	case "", string(harvest.DuplicateOverwrite), string(harvest.DuplicateFail):
	default:
		return fmt.Errorf("source %q has unknown duplicate_policy %q", s.ID, s.DuplicatePolicy)
	}
	if s.SQL != nil {
		if _, err := sqlharvest.ParseMapping(s.SQL.FieldMapping); err != nil {
			return fmt.Errorf("source %q: %w", s.ID, err)
		}
		if len(s.SQL.DistributionMapping) > 0 {
			if _, err := sqlharvest.ParseMapping(s.SQL.DistributionMapping); err != nil {
				return fmt.Errorf("source %q distribution mapping: %w", s.ID, err)
			}
		}
	}
	return nil
}

// Collector builds the source collector for this definition. Collector
// construction is where eager checks (stylesheet resolution, mapping
// validation) run.
func (s Source) Collector() (harvest.SourceCollector, error) {
	switch {
	case s.CSW != nil:
		collector, err := cswharvest.New(cswharvest.Config{
			SourceURL: s.CSW.URL,
			Query: csw.Query{
				CQL:           s.CSW.CQL,
				CQLQuery:      s.CSW.CQLQuery,
				CQLSearchTerm: s.CSW.CQLSearchTerm,
				CQLUseLike:    s.CSW.CQLUseLike,
				MaxRecords:    s.CSW.MaxRecords,
				Limit:         s.CSW.Limit,
			},
			XSLT: xslt.Config{
				Stylesheet:  s.CSW.Stylesheet,
				MappingsDir: s.CSW.MappingsDir,
				Processor:   s.CSW.Processor,
			},
			MaxWorkers: s.CSW.Workers,
		})
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.ID, err)
		}
		return collector, nil
	case s.SQL != nil:
		mapping, err := sqlharvest.ParseMapping(s.SQL.FieldMapping)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", s.ID, err)
		}
		var distributions sqlharvest.FieldMapping
		if len(s.SQL.DistributionMapping) > 0 {
			distributions, err = sqlharvest.ParseMapping(s.SQL.DistributionMapping)
			if err != nil {
				return nil, fmt.Errorf("source %q distribution mapping: %w", s.ID, err)
			}
		}
		return sqlharvest.New(sqlharvest.Config{
			Credentials:         s.SQL.Credentials,
			DatasetMapping:      mapping,
			DistributionMapping: distributions,
		}), nil
	case s.CKAN != nil:
		return ckanharvest.New(ckanharvest.Config{
			SourceURL:    s.CKAN.URL,
			FilterQuery:  s.CKAN.FilterQuery,
			PageSize:     s.CKAN.PageSize,
			IgnoreRobots: s.CKAN.IgnoreRobots,
		}), nil
	case s.XLS != nil:
		return xlsharvest.New(xlsharvest.Config{
			Path:  s.XLS.Path,
			Sheet: s.XLS.Sheet,
		}), nil
	}
	return nil, fmt.Errorf("source %q has no source section", s.ID)
}

// Policy returns the source's duplicate policy with the default applied.
func (s Source) Policy() harvest.DuplicatePolicy {
	if s.DuplicatePolicy == "" {
		return harvest.DuplicateOverwrite
	}
	return harvest.DuplicatePolicy(s.DuplicatePolicy)
}
