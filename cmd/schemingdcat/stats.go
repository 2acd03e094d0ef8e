// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/stats"
	"github.com/mjanez/schemingdcat/pkg"
)

// updateStats ingests a harvest report file into the stats database and
// prints the aggregated per-source history.
func updateStats(ctx context.Context, cmd UpdateStatsCmd) error {
	raw, err := os.ReadFile(cmd.Report)
	if err != nil {
		return fmt.Errorf("reading report file: %w", err)
	}
	var report pkg.HarvestReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Errorf("decoding report file %s: %w", cmd.Report, err)
	}

	store, err := stats.Open(cmd.StatsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Update(ctx, report); err != nil {
		return err
	}
	summary, err := store.Summary(ctx)
	if err != nil {
		return err
	}
	for _, s := range summary {
		log.Infof("%s: %d run(s), %d gathered, %d created, %d updated, %d deleted, %d failed, last run %s",
			s.SourceID, s.Runs, s.Gathered, s.Created, s.Updated, s.Deleted, s.Failed,
			s.LastRun.Format(time.RFC3339))
	}
	return nil
}

func cleanStats(ctx context.Context, cmd CleanStatsCmd) error {
	store, err := stats.Open(cmd.StatsDB)
	if err != nil {
		return err
	}
	defer store.Close()

	var cutoff time.Time
	if cmd.OlderThanDays > 0 {
		cutoff = time.Now().AddDate(0, 0, -cmd.OlderThanDays)
	}
	n, err := store.Clean(ctx, cutoff)
	if err != nil {
		return err
	}
	log.Infof("removed %d harvest run(s) from the stats database", n)
	return nil
}
