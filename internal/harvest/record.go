// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package harvest implements the incremental synchronization engine and
// the object lifecycle shared by every harvester variant.
package harvest

import (
	"context"
	"encoding/json"
	"time"
)

// AccessService describes a dcat:accessService node synthesized for a
// distribution backed by a network service.
type AccessService struct {
	// base endpoint with the query string stripped
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
	// base endpoint URLs
	EndpointURL []string `json:"endpoint_url"`
	// capabilities URL, or the raw URL when the service kind has none
	EndpointDescription string `json:"endpoint_description"`
	// URIs of the datasets served by this endpoint; empty when unknown
	ServesDataset []string `json:"serves_dataset"`
}

// Resource is one distribution of a dataset.
type Resource struct {
	URL         string `json:"url"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	// canonical format code from the vocab tables, never a raw remote string
	Format   string `json:"format,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`
	// raw protocol identifier as declared by the source
	Protocol       string          `json:"protocol,omitempty"`
	Modified       string          `json:"modified,omitempty"`
	ConformsTo     []string        `json:"conforms_to,omitempty"`
	AccessServices []AccessService `json:"access_services,omitempty"`
}

// Dataset is the normalized record produced by a source collector. It is
// serialized as the content of a HarvestObject and is not persisted in
// any other form.
type Dataset struct {
	// explicit catalog package id, set by the lifecycle just before a
	// create or update call; never filled in by collectors
	ID string `json:"id,omitempty"`
	// source-provided identifier; a generated UUID when the source has none
	Identifier string `json:"identifier"`
	// catalog name slug, assigned during gather
	Name      string            `json:"name"`
	Title     string            `json:"title"`
	Notes     string            `json:"notes,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
	Groups    []string          `json:"groups,omitempty"`
	License   string            `json:"license_id,omitempty"`
	Issued    string            `json:"issued,omitempty"`
	Modified  string            `json:"modified,omitempty"`
	Spatial   json.RawMessage   `json:"spatial,omitempty"`
	Theme     []string          `json:"theme,omitempty"`
	Resources []Resource        `json:"resources,omitempty"`
	Extras    map[string]string `json:"extras,omitempty"`
}

// ModifiedTime parses the record's modified timestamp. The zero time is
// returned when the field is absent or unparseable.
func (d *Dataset) ModifiedTime() time.Time {
	if d.Modified == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, d.Modified); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Status classifies a harvest object against the previously stored state.
type Status string

const (
	StatusNew    Status = "new"
	StatusChange Status = "change"
	StatusDelete Status = "delete"
)

// State tracks a harvest object through its two-phase lifecycle.
type State string

const (
	StateNew      State = "new"
	StateFetched  State = "fetched"
	StateImported State = "imported"
	StateError    State = "error"
)

// Object is one queued version of one harvested record. For a given
// (source, guid) pair at most one object is current at a time; all
// others are historical.
type Object struct {
	ID       string
	SourceID string
	// source-stable identifier used for diffing, distinct from the
	// dataset's own identifier field
	GUID string
	// serialized Dataset JSON
	Content   []byte
	Status    Status
	State     State
	Current   bool
	PackageID string
	Created   time.Time
	Errors    []string
}

// Record decodes the object's content back into a Dataset.
func (o *Object) Record() (*Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(o.Content, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// AddError logs an import failure against this object.
func (o *Object) AddError(msg string) {
	o.Errors = append(o.Errors, msg)
}

// SkipReason explains why a gathered record was dropped before diffing.
type SkipReason struct {
	GUID    string
	Message string
}

// RecordResult is the outcome of processing one remote record: either a
// dataset to harvest or a reason to skip it. Skips are values, not
// errors, so a bad record never aborts the batch.
type RecordResult struct {
	GUID    string
	Dataset *Dataset
	// raw source payload, archived alongside the harvest object
	Raw  []byte
	Skip *SkipReason
}

// Skipped builds a RecordResult that records a per-record failure.
func Skipped(guid, msg string) RecordResult {
	return RecordResult{GUID: guid, Skip: &SkipReason{GUID: guid, Message: msg}}
}

// SourceCollector gathers the full record set of one remote source.
// Collectors fetch everything during gather; the fetch stage of the
// lifecycle is a no-op for every variant.
type SourceCollector interface {
	Collect(ctx context.Context) ([]RecordResult, error)
}
