// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package pkg holds the public report types returned by a harvest run.
package pkg

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// RecordError is a per-record failure inside one source's gather cycle.
type RecordError struct {
	GUID    string `json:"@id"`
	Message string `json:"schema:description"`
}

func (e RecordError) Error() string {
	return fmt.Sprintf("failed to gather record %s: %s", e.GUID, e.Message)
}

// SourceReport summarizes one harvest cycle for one source.
type SourceReport struct {
	Type              string        `json:"@type"`
	SourceName        string        `json:"schema:name"`
	RecordsGathered   int           `json:"recordsGathered"`
	RecordsSkipped    int           `json:"recordsSkipped"`
	DatasetsCreated   int           `json:"datasetsCreated"`
	DatasetsUpdated   int           `json:"datasetsUpdated"`
	DatasetsDeleted   int           `json:"datasetsDeleted"`
	DatasetsUnchanged int           `json:"datasetsUnchanged"`
	ImportFailures    int           `json:"importFailures"`
	GatherFailures    []RecordError `json:"schema:FailedActionStatus"`
	SecondsToComplete float64       `json:"schema:duration"`
}

// HarvestReport aggregates the reports of every source in a run.
type HarvestReport []SourceReport

// Failed reports whether any source had gather or import failures.
func (r HarvestReport) Failed() bool {
	for _, s := range r {
		if len(s.GatherFailures) > 0 || s.ImportFailures > 0 {
			return true
		}
	}
	return false
}

func (r HarvestReport) jsonLdContext() map[string]any {
	intField := func(name string) map[string]string {
		return map[string]string{
			"@id":   "https://example.com/vocab#" + name,
			"@type": "http://www.w3.org/2001/XMLSchema#integer",
		}
	}
	return map[string]any{
		"schema":            "https://schema.org/",
		"recordsGathered":   intField("recordsGathered"),
		"recordsSkipped":    intField("recordsSkipped"),
		"datasetsCreated":   intField("datasetsCreated"),
		"datasetsUpdated":   intField("datasetsUpdated"),
		"datasetsDeleted":   intField("datasetsDeleted"),
		"datasetsUnchanged": intField("datasetsUnchanged"),
		"importFailures":    intField("importFailures"),
	}
}

// ToJsonLd serializes the report to JSON-LD for publication next to the
// harvested data.
func (r HarvestReport) ToJsonLd() (string, error) {
	for i := range r {
		r[i].Type = "schema:DataFeedItem"
	}
	output := map[string]any{
		"@type":    "schema:DataFeed",
		"@graph":   r,
		"@context": r.jsonLdContext(),
	}
	data, err := json.Marshal(output)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (r HarvestReport) ToJsonLdReader() (io.Reader, error) {
	data, err := r.ToJsonLd()
	if err != nil {
		return nil, err
	}
	return strings.NewReader(data), nil
}
