// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package sqlharvest

import (
	"fmt"
	"sort"
	"strings"
)

// Query is one generated statement pair: the search_path prologue and
// the SELECT itself, executed in order on the same connection.
type Query struct {
	SearchPath string
	SQL        string
}

// BuildQuery turns a validated field mapping into a SELECT statement.
// The first schema.table seen (in sorted field order) becomes the FROM
// clause; every mapping must be rooted in exactly one base table.
// Constant field_value entries produce no SQL, they are applied after
// retrieval.
func BuildQuery(mapping FieldMapping) (*Query, error) {
	if err := mapping.Validate(); err != nil {
		return nil, err
	}

	fields := make([]string, 0, len(mapping))
	for field := range mapping {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var (
		selects   []string
		joins     []string
		baseTable string
		schemas   []string
		seenTable = map[string]bool{}
		seenJoin  = map[string]bool{}
	)

	addSchema := func(schema string) {
		for _, s := range schemas {
			if s == schema {
				return
			}
		}
		schemas = append(schemas, schema)
	}

	addColumn := func(field string, ref columnRef, quotedAlias bool) error {
		addSchema(ref.Schema)
		if baseTable == "" {
			baseTable = ref.tableRef()
			seenTable[baseTable] = true
		} else if !seenTable[ref.tableRef()] && len(joins) == 0 {
			return fmt.Errorf(
				"field %q references table %s but the mapping is rooted at %s; multi-table mappings need f_key_references",
				field, ref.tableRef(), baseTable)
		}
		alias := field
		if quotedAlias {
			alias = `"` + field + `"`
		}
		selects = append(selects, fmt.Sprintf("%s AS %s", ref.qualified(), alias))
		return nil
	}

	for _, field := range fields {
		spec := mapping[field]

		if spec.FieldName != "" {
			ref, err := parseColumnRef(spec.FieldName)
			if err != nil {
				return nil, err
			}

			for _, fkey := range spec.FKeyReferences {
				fref, err := parseColumnRef(fkey)
				if err != nil {
					return nil, err
				}
				addSchema(fref.Schema)
				seenTable[fref.tableRef()] = true
				join := fmt.Sprintf("LEFT JOIN %s ON %s = %s",
					fref.tableRef(), ref.qualified(), fref.qualified())
				if !seenJoin[join] {
					joins = append(joins, join)
					seenJoin[join] = true
				}
			}

			if err := addColumn(field, ref, false); err != nil {
				return nil, err
			}
		}

		if len(spec.Languages) > 0 {
			langs := make([]string, 0, len(spec.Languages))
			for lang := range spec.Languages {
				langs = append(langs, lang)
			}
			sort.Strings(langs)
			for _, lang := range langs {
				sub := spec.Languages[lang]
				if sub.FieldName == "" {
					continue
				}
				ref, err := parseColumnRef(sub.FieldName)
				if err != nil {
					return nil, err
				}
				// hyphenated aliases need quoting
				if err := addColumn(field+"-"+lang, ref, true); err != nil {
					return nil, err
				}
			}
		}
	}

	if baseTable == "" {
		return nil, fmt.Errorf("mapping contains no column references")
	}

	var sql strings.Builder
	sql.WriteString("SELECT ")
	sql.WriteString(strings.Join(selects, ", "))
	sql.WriteString(" FROM ")
	sql.WriteString(baseTable)
	for _, join := range joins {
		sql.WriteString(" ")
		sql.WriteString(join)
	}

	return &Query{
		SearchPath: "SET search_path TO " + strings.Join(schemas, ", "),
		SQL:        sql.String(),
	}, nil
}
