// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package xlsharvest collects dataset records from spreadsheet exports.
// The first row of the first sheet names the local fields; every
// following row becomes one record.
package xlsharvest

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/mjanez/schemingdcat/internal/classify"
	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/telemetry"
)

// Config locates the workbook.
type Config struct {
	Path string
	// sheet name; the first sheet when empty
	Sheet string
}

// Collector implements harvest.SourceCollector for XLS/XLSX files.
type Collector struct {
	cfg Config
}

var _ harvest.SourceCollector = &Collector{}

func New(cfg Config) *Collector {
	return &Collector{cfg: cfg}
}

// Collect reads every data row of the sheet. Rows without an identifier
// become skips; an unreadable workbook aborts the batch.
func (c *Collector) Collect(ctx context.Context) ([]harvest.RecordResult, error) {
	_, span := telemetry.SubSpanFromCtx(ctx)
	defer span.End()

	book, err := excelize.OpenFile(c.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening workbook %s: %w", c.cfg.Path, err)
	}
	defer book.Close()

	sheet := c.cfg.Sheet
	if sheet == "" {
		sheet = book.GetSheetName(0)
	}
	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("sheet %q has no data rows", sheet)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var results []harvest.RecordResult
	for n, cells := range rows[1:] {
		d := datasetFromRow(header, cells)
		if d.Identifier == "" {
			results = append(results, harvest.Skipped(
				fmt.Sprintf("row-%d", n+2), "row has no identifier cell"))
			continue
		}
		results = append(results, harvest.RecordResult{GUID: d.Identifier, Dataset: d})
	}
	log.Infof("spreadsheet %s yielded %d rows", c.cfg.Path, len(results))
	return results, nil
}

func datasetFromRow(header, cells []string) *harvest.Dataset {
	d := &harvest.Dataset{Extras: map[string]string{}}
	var resource harvest.Resource

	for i, field := range header {
		if i >= len(cells) {
			break
		}
		value := strings.TrimSpace(cells[i])
		if value == "" {
			continue
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
			d.Tags = splitCell(value)
		case "groups":
			d.Groups = splitCell(value)
		case "theme":
			d.Theme = splitCell(value)
		case "resource_url":
			resource.URL = value
		case "resource_name":
			resource.Name = value
		case "resource_format":
			resource.Format = value
		default:
			d.Extras[field] = value
		}
	}
	if resource.URL != "" {
		// the cell value is whatever the spreadsheet author typed; only
		// the canonical format code may be stored
		classify.CleanResource(&resource)
		d.Resources = append(d.Resources, resource)
	}
	return d
}

func splitCell(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
