// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package sqlharvest harvests dataset records straight out of a SQL
// database, driven by a declarative field mapping that translates into
// generated SELECT statements.
package sqlharvest

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FieldSpec describes where one local field gets its value: a database
// column, a constant, or a per-language sub-map of the same shape.
type FieldSpec struct {
	// column reference of form schema.table.column
	FieldName string `json:"field_name,omitempty"`
	// positional reference, mutually exclusive with FieldName
	FieldPosition string `json:"field_position,omitempty"`
	// constant value: a string, or a list for list-accepting fields
	FieldValue any `json:"field_value,omitempty"`
	// column references of form schema.table.column joined against
	// FieldName with a LEFT JOIN
	FKeyReferences []string `json:"f_key_references,omitempty"`
	// per-language column specs, keyed by 2-letter code
	Languages map[string]FieldSpec `json:"languages,omitempty"`
}

// FieldMapping maps local field names to their specs.
type FieldMapping map[string]FieldSpec

// listFields are the local fields that accept list values.
var listFields = map[string]bool{
	"tags":        true,
	"groups":      true,
	"theme":       true,
	"conforms_to": true,
}

// ParseMapping decodes and validates a field mapping document.
func ParseMapping(raw []byte) (FieldMapping, error) {
	var m FieldMapping
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding field mapping: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Validate enforces the structural rules of a mapping.
func (m FieldMapping) Validate() error {
	for field, spec := range m {
		if err := spec.validate(field); err != nil {
			return err
		}
	}
	return nil
}

func (s FieldSpec) validate(field string) error {
	if s.FieldName != "" && s.FieldPosition != "" {
		return fmt.Errorf("field %q: field_name and field_position are mutually exclusive", field)
	}
	if s.FieldValue != nil {
		if _, isList := s.FieldValue.([]any); isList && !listFields[field] {
			return fmt.Errorf("field %q: field_value list given for a scalar field", field)
		}
	}
	if s.FieldName != "" {
		if _, err := parseColumnRef(s.FieldName); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
	}
	for _, ref := range s.FKeyReferences {
		if _, err := parseColumnRef(ref); err != nil {
			return fmt.Errorf("field %q: %w", field, err)
		}
	}
	for lang, sub := range s.Languages {
		if len(lang) != 2 {
			return fmt.Errorf("field %q: language key %q is not a 2-letter code", field, lang)
		}
		if err := sub.validate(field + "-" + lang); err != nil {
			return err
		}
	}
	return nil
}

// columnRef is a parsed schema.table.column reference.
type columnRef struct {
	Schema, Table, Column string
}

func (c columnRef) qualified() string {
	return c.Schema + "." + c.Table + "." + c.Column
}

func (c columnRef) tableRef() string {
	return c.Schema + "." + c.Table
}

func parseColumnRef(s string) (columnRef, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return columnRef{}, fmt.Errorf("column reference %q is not of form schema.table.column", s)
	}
	return columnRef{Schema: parts[0], Table: parts[1], Column: parts[2]}, nil
}
