// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/archive"
	"github.com/mjanez/schemingdcat/internal/catalog"
	"github.com/mjanez/schemingdcat/internal/config"
	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/stats"
	"github.com/mjanez/schemingdcat/internal/store"
	"github.com/mjanez/schemingdcat/pkg"
)

// buildStore selects the object store backend from the configuration.
// An empty DSN means a dry run against the in-memory store.
func buildStore(cfg *config.HarvestConfig) (harvest.ObjectStore, func(), error) {
	if cfg.Store.DSN == "" {
		log.Warn("no store DSN configured; harvest state will not survive this run")
		return harvest.NewMemoryStore(), func() {}, nil
	}
	pg, err := store.Open(cfg.Store.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

func buildArchive(ctx context.Context, cfg *config.HarvestConfig) (harvest.RecordArchive, error) {
	if cfg.Archive == nil {
		return harvest.DiscardArchive{}, nil
	}
	minioArchive, err := archive.NewMinioArchive(ctx, *cfg.Archive)
	if err != nil {
		return nil, err
	}
	return minioArchive, nil
}

func selectSources(cfg *config.HarvestConfig, only string) ([]config.Source, error) {
	if only == "" {
		return cfg.Sources, nil
	}
	for _, src := range cfg.Sources {
		if src.ID == only {
			return []config.Source{src}, nil
		}
	}
	return nil, fmt.Errorf("source %q is not defined in the config", only)
}

func runHarvest(ctx context.Context, cmd HarvestCmd) (pkg.HarvestReport, error) {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return nil, err
	}
	sources, err := selectSources(cfg, cmd.Source)
	if err != nil {
		return nil, err
	}

	objectStore, closeStore, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	defer closeStore()

	recordArchive, err := buildArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	ckan := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.APIKey)

	var report pkg.HarvestReport
	for _, src := range sources {
		collector, err := src.Collector()
		if err != nil {
			// a broken source definition should not stop the others
			log.Errorf("skipping source %s: %v", src.ID, err)
			report = append(report, pkg.SourceReport{
				SourceName:     src.ID,
				GatherFailures: []pkg.RecordError{{GUID: src.ID, Message: err.Error()}},
			})
			continue
		}
		runner := harvest.Runner{
			SourceID:  src.ID,
			Collector: collector,
			Engine:    harvest.NewSyncEngine(objectStore, src.Policy()),
			Lifecycle: harvest.NewLifecycle(objectStore, ckan, nil, harvest.LifecycleConfig{
				ForceImport:           src.ForceImport,
				OverrideLocalDatasets: src.OverrideLocalDatasets,
			}),
			Archive: recordArchive,
		}
		srcReport, err := runner.Run(ctx)
		if err != nil {
			log.Errorf("harvest of %s failed: %v", src.ID, err)
			srcReport.GatherFailures = append(srcReport.GatherFailures,
				pkg.RecordError{GUID: src.ID, Message: err.Error()})
		}
		report = append(report, srcReport)
	}

	if cfg.StatsPath != "" {
		statsStore, err := stats.Open(cfg.StatsPath)
		if err != nil {
			log.Errorf("could not open stats database: %v", err)
		} else {
			defer statsStore.Close()
			if err := statsStore.Update(ctx, report); err != nil {
				log.Errorf("could not record stats: %v", err)
			}
		}
	}
	return report, nil
}

// runImport retries the import stage for objects that were gathered but
// never imported, without contacting the remote sources again.
func runImport(ctx context.Context, cmd ImportCmd) error {
	cfg, err := config.Load(cmd.Config)
	if err != nil {
		return err
	}
	sources, err := selectSources(cfg, cmd.Source)
	if err != nil {
		return err
	}
	objectStore, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	ckan := catalog.NewClient(cfg.Catalog.URL, cfg.Catalog.APIKey)

	for _, src := range sources {
		pending, err := objectStore.PendingObjects(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("listing pending objects for %s: %w", src.ID, err)
		}
		if len(pending) == 0 {
			log.Infof("source %s has no pending objects", src.ID)
			continue
		}
		lifecycle := harvest.NewLifecycle(objectStore, ckan, nil, harvest.LifecycleConfig{
			ForceImport:           src.ForceImport,
			OverrideLocalDatasets: src.OverrideLocalDatasets,
		})
		imported, failed := 0, 0
		for _, obj := range pending {
			if err := lifecycle.Fetch(ctx, obj); err != nil {
				log.Errorf("fetch stage for %s: %v", obj.GUID, err)
				failed++
				continue
			}
			if lifecycle.Import(ctx, obj) == harvest.ImportFailed {
				failed++
			} else {
				imported++
			}
		}
		log.Infof("source %s: reimported %d object(s), %d failed", src.ID, imported, failed)
	}
	return nil
}
