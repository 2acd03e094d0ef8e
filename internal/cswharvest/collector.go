// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package cswharvest is the source collector for CSW/INSPIRE catalogs:
// it enumerates record identifiers, fetches each ISO19139 document,
// transforms it to RDF through the stylesheet pipeline and maps the
// resulting triples onto the normalized dataset model.
package cswharvest

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mjanez/schemingdcat/internal/classify"
	"github.com/mjanez/schemingdcat/internal/csw"
	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/telemetry"
	"github.com/mjanez/schemingdcat/internal/xslt"
)

const defaultWorkers = 5

// recordSource is the slice of the CSW client the collector needs;
// tests inject a fake.
type recordSource interface {
	GetRecords(ctx context.Context, q csw.Query) []string
	GetRecordByID(ctx context.Context, id string) ([]byte, error)
}

// Config wires one CSW source.
type Config struct {
	// CSW endpoint URL
	SourceURL string
	Query     csw.Query
	XSLT      xslt.Config
	// parallel GetRecordById fetches; defaultWorkers when zero
	MaxWorkers int
}

// Collector implements harvest.SourceCollector for CSW endpoints.
type Collector struct {
	source   recordSource
	pipeline *xslt.Pipeline
	query    csw.Query
	workers  int
}

var _ harvest.SourceCollector = &Collector{}

// New builds the collector, resolving the stylesheet eagerly so a
// misconfigured source fails before any record is fetched.
func New(cfg Config) (*Collector, error) {
	pipeline, err := xslt.NewPipeline(cfg.XSLT)
	if err != nil {
		return nil, err
	}
	return newCollector(csw.NewClient(cfg.SourceURL), pipeline, cfg), nil
}

func newCollector(source recordSource, pipeline *xslt.Pipeline, cfg Config) *Collector {
	workers := cfg.MaxWorkers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Collector{source: source, pipeline: pipeline, query: cfg.Query, workers: workers}
}

// Collect fetches and transforms every record of the source. Per-record
// fetch and mapping failures become skips; a stylesheet failure aborts
// the whole batch since every record would fail identically.
func (c *Collector) Collect(ctx context.Context) ([]harvest.RecordResult, error) {
	ctx, span := telemetry.SubSpanFromCtx(ctx)
	defer span.End()

	ids := c.source.GetRecords(ctx, c.query)
	log.Infof("csw source returned %d record ids", len(ids))

	results := make([]harvest.RecordResult, len(ids))
	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(c.workers)

	for i, id := range ids {
		group.Go(func() error {
			result, err := c.collectOne(gctx, id)
			if err != nil {
				// terminal: stop the whole batch
				return err
			}
			results[i] = result
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Collector) collectOne(ctx context.Context, id string) (harvest.RecordResult, error) {
	raw, err := c.source.GetRecordByID(ctx, id)
	if err != nil {
		return harvest.Skipped(id, fmt.Sprintf("fetching record: %s", err)), nil
	}

	triples, err := c.pipeline.Transform(ctx, raw)
	if err != nil {
		var terminal *xslt.TerminalError
		if errors.As(err, &terminal) {
			return harvest.RecordResult{}, fmt.Errorf("record %s: %w", id, terminal)
		}
		return harvest.Skipped(id, fmt.Sprintf("transforming record: %s", err)), nil
	}

	d, err := datasetFromTriples(triples)
	if err != nil {
		return harvest.Skipped(id, fmt.Sprintf("mapping record: %s", err)), nil
	}
	if d.Identifier == "" {
		d.Identifier = id
	}

	for i := range d.Resources {
		res := &d.Resources[i]
		format, mimetype := classify.ClassifyOWS(res.Protocol, res.URL, res.Name, res.Description)
		res.Format, res.Mimetype = format, mimetype
		res.AccessServices = classify.ExtractAccessServices(res, d.Identifier)
	}

	return harvest.RecordResult{GUID: d.Identifier, Dataset: d, Raw: raw}, nil
}
