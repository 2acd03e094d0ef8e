// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/config"
	"github.com/mjanez/schemingdcat/internal/dcat"
	"github.com/mjanez/schemingdcat/internal/harvest"
)

// runExport serializes the current object of every guid as DCAT and
// writes the concatenated output to a file, or stdout when no output
// path is given.
func runExport(ctx context.Context, cmd ExportCmd) error {
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

	var out strings.Builder
	exported := 0
	for _, src := range sources {
		guids, err := objectStore.CurrentGUIDs(ctx, src.ID)
		if err != nil {
			return fmt.Errorf("listing current objects for %s: %w", src.ID, err)
		}
		sorted := make([]string, 0, len(guids))
		for guid := range guids {
			sorted = append(sorted, guid)
		}
		sort.Strings(sorted)

		for _, guid := range sorted {
			obj, err := objectStore.CurrentObject(ctx, src.ID, guid)
			if err != nil || obj == nil {
				log.Warnf("could not load current object %s: %v", guid, err)
				continue
			}
			record, err := obj.Record()
			if err != nil {
				log.Warnf("could not decode stored record %s: %v", guid, err)
				continue
			}
			serialized, err := serializeDataset(record, cmd.Format)
			if err != nil {
				return fmt.Errorf("serializing dataset %s: %w", guid, err)
			}
			out.WriteString(serialized)
			exported++
		}
	}

	if cmd.Output == "" {
		fmt.Print(out.String())
	} else if err := os.WriteFile(cmd.Output, []byte(out.String()), 0o644); err != nil {
		return fmt.Errorf("writing export file: %w", err)
	}
	log.Infof("exported %d dataset(s) as %s", exported, cmd.Format)
	return nil
}

func serializeDataset(d *harvest.Dataset, format string) (string, error) {
	switch format {
	case "nt":
		return dcat.NTriples(d)
	case "jsonld":
		doc, err := dcat.JSONLD(d)
		if err != nil {
			return "", err
		}
		return string(doc) + "\n", nil
	default:
		return "", fmt.Errorf("unknown export format %q, want nt or jsonld", format)
	}
}
