// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package harvest

import (
	"bytes"
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/telemetry"
	"github.com/mjanez/schemingdcat/pkg"
)

// RecordArchive stores the raw payload of every gathered record, keyed
// by source and guid.
type RecordArchive interface {
	Store(ctx context.Context, sourceID, guid string, payload []byte) error
}

// DiscardArchive is a RecordArchive that stores nothing.
type DiscardArchive struct{}

func (DiscardArchive) Store(context.Context, string, string, []byte) error { return nil }

var _ RecordArchive = DiscardArchive{}

// Runner composes a source collector with the shared sync engine and
// object lifecycle into one full harvest cycle. Harvester variants only
// differ in the collector they inject.
type Runner struct {
	SourceID  string
	Collector SourceCollector
	Engine    *SyncEngine
	Lifecycle *Lifecycle
	Archive   RecordArchive
}

// Run executes gather, fetch and import for one source and returns its
// report. Gather-stage errors leave the source untouched for this cycle;
// import failures are isolated per object.
func (r *Runner) Run(ctx context.Context) (pkg.SourceReport, error) {
	ctx, span := telemetry.SubSpanFromCtxWithName(ctx, "harvest_"+r.SourceID)
	defer span.End()

	start := time.Now()
	report := pkg.SourceReport{SourceName: r.SourceID}

	results, err := r.Collector.Collect(ctx)
	if err != nil {
		// the whole gather failed: the source stays unchanged this cycle
		return report, fmt.Errorf("gather stage for %s: %w", r.SourceID, err)
	}

	archive := r.Archive
	if archive == nil {
		archive = DiscardArchive{}
	}
	for _, res := range results {
		if res.Skip != nil || len(bytes.TrimSpace(res.Raw)) == 0 {
			continue
		}
		if err := archive.Store(ctx, r.SourceID, res.GUID, res.Raw); err != nil {
			log.Warnf("could not archive raw record %s: %v", res.GUID, err)
		}
	}

	objects, gatherReport, err := r.Engine.Gather(ctx, r.SourceID, results)
	if err != nil {
		return report, fmt.Errorf("sync stage for %s: %w", r.SourceID, err)
	}
	report.RecordsGathered = gatherReport.Gathered
	report.RecordsSkipped = gatherReport.Skipped
	for _, skip := range gatherReport.Errors {
		report.GatherFailures = append(report.GatherFailures, pkg.RecordError{GUID: skip.GUID, Message: skip.Message})
	}

	for _, obj := range objects {
		if err := r.Lifecycle.Fetch(ctx, obj); err != nil {
			log.Errorf("fetch stage for %s: %v", obj.GUID, err)
			report.ImportFailures++
			continue
		}
		switch r.Lifecycle.Import(ctx, obj) {
		case ImportOK:
			switch obj.Status {
			case StatusNew:
				report.DatasetsCreated++
			case StatusChange:
				report.DatasetsUpdated++
			case StatusDelete:
				report.DatasetsDeleted++
			}
		case ImportUnchanged:
			report.DatasetsUnchanged++
		case ImportFailed:
			report.ImportFailures++
		}
	}

	report.SecondsToComplete = time.Since(start).Seconds()
	log.Infof("harvest of %s finished in %.2fs: %d created, %d updated, %d deleted, %d unchanged, %d failed",
		r.SourceID, report.SecondsToComplete, report.DatasetsCreated, report.DatasetsUpdated,
		report.DatasetsDeleted, report.DatasetsUnchanged, report.ImportFailures)
	return report, nil
}
