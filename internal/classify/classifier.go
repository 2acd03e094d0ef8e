// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package classify turns the arbitrary format, protocol and URL strings
// found on remote resources into canonical DCAT format codes, media
// types and synthesized access services. Classification must never abort
// the harvest of an otherwise valid record, so every entry point
// degrades to an empty result instead of returning an error.
package classify

import (
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/vocab"
)

// ianaPrefixes are stripped from declared formats that arrive as full
// IANA media type registry URLs.
var ianaPrefixes = []string{
	"https://www.iana.org/assignments/media-types/",
	"http://www.iana.org/assignments/media-types/",
}

// Classify resolves a resource's declared format to a canonical format
// code and media type. The empty pair means nothing matched and the
// caller should drop both fields rather than store a raw value.
func Classify(res *harvest.Resource) (format, mimetype string) {
	declared := strings.ToLower(strings.TrimSpace(res.Format))
	for _, prefix := range ianaPrefixes {
		declared = strings.TrimPrefix(declared, prefix)
	}
	if declared != "" {
		// exact token match first
		for _, token := range splitFormat(declared) {
			if f, ok := vocab.FormatByPattern(token); ok {
				return f, vocab.MimetypeFor(f)
			}
		}
		// then a substring scan over the whole string
		if f, ok := vocab.FormatBySubstring(declared); ok {
			return f, vocab.MimetypeFor(f)
		}
	}
	// legacy protocol table
	if f, ok := vocab.FormatByProtocol(res.Format); ok {
		return f, vocab.MimetypeFor(f)
	}
	if f, ok := vocab.FormatByProtocol(res.Protocol); ok {
		return f, vocab.MimetypeFor(f)
	}
	// last resort: an OGC service keyword buried anywhere in the string
	for _, kw := range []string{"wmts", "wms", "wfs", "wcs"} {
		if strings.Contains(declared, kw) {
			f := strings.ToUpper(kw)
			return f, vocab.MimetypeFor(f)
		}
	}
	return "", ""
}

// splitFormat breaks a cleaned format string on the separators used by
// remote catalogs.
func splitFormat(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '/' || r == '_'
	})
}

// CleanResource applies Classify to the resource in place. Unmatched
// formats are dropped entirely, never stored raw.
func CleanResource(res *harvest.Resource) {
	format, mimetype := Classify(res)
	if format == "" {
		if res.Format != "" {
			log.Debugf("no canonical format for %q, dropping format fields", res.Format)
		}
		res.Format, res.Mimetype = "", ""
		return
	}
	res.Format, res.Mimetype = format, mimetype
}

// ClassifyOWS resolves the format of an online resource coming from an
// OWS/CSW record, where the protocol string and URL are richer than any
// declared format. It falls back to "HTML" instead of dropping the
// format, since every such resource is at least a landing page.
func ClassifyOWS(protocol, url, name, description string) (format, mimetype string) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	url = strings.ToLower(strings.TrimSpace(url))
	text := strings.ToLower(name + " " + description)

	if f, ok := vocab.FormatByProtocol(protocol); ok {
		return f, vocab.MimetypeFor(f)
	}
	if svc, ok := vocab.ServiceTypeByProtocol(protocol); ok {
		return svc.Format, vocab.MimetypeFor(svc.Format)
	}
	if svc, ok := vocab.ServiceTypeByURL(url); ok {
		return svc.Format, vocab.MimetypeFor(svc.Format)
	}
	if f, ok := vocab.FormatBySubstring(url); ok {
		return f, vocab.MimetypeFor(f)
	}
	if f, ok := vocab.FormatBySubstring(text); ok {
		return f, vocab.MimetypeFor(f)
	}
	return vocab.FallbackFormat, vocab.MimetypeFor(vocab.FallbackFormat)
}

// detectServiceType finds the service kind backing a resource, trying
// the canonical format code, then protocol, URL and name indicators.
func detectServiceType(res *harvest.Resource) (vocab.ServiceType, bool) {
	if svc, ok := vocab.ServiceTypeByFormat(res.Format); ok {
		return svc, true
	}
	if svc, ok := vocab.ServiceTypeByProtocol(strings.ToLower(res.Protocol)); ok {
		return svc, true
	}
	if svc, ok := vocab.ServiceTypeByURL(strings.ToLower(res.URL)); ok {
		return svc, true
	}
	if svc, ok := vocab.ServiceTypeByName(strings.ToLower(res.Name + " " + res.Description)); ok {
		return svc, true
	}
	return vocab.ServiceType{}, false
}

// ExtractAccessServices synthesizes the dcat:accessService descriptors
// for a resource backed by a known service kind. As side effects it
// appends the service standard URI to the resource's conforms_to list
// and, for OGC services whose URL lacks a request parameter, rewrites
// the resource URL to a GetCapabilities request. The returned list is
// empty when the resource is not service-backed.
func ExtractAccessServices(res *harvest.Resource, datasetIdentifier string) []harvest.AccessService {
	if res.URL == "" {
		return nil
	}
	svc, ok := detectServiceType(res)
	if !ok {
		return nil
	}

	base := res.URL
	if i := strings.Index(base, "?"); i >= 0 {
		base = base[:i]
	}

	endpointDescription := res.URL
	if svc.OGC() {
		endpointDescription = base + "?" + svc.CapabilitiesParam
	}

	var servesDataset []string
	if datasetIdentifier != "" {
		servesDataset = []string{datasetIdentifier}
	} else {
		servesDataset = []string{}
	}

	title := strings.TrimSpace(res.Name)
	if title == "" {
		title = fmt.Sprintf("%s service", svc.Format)
	}

	service := harvest.AccessService{
		URI:                 base,
		Title:               title,
		EndpointURL:         []string{base},
		EndpointDescription: endpointDescription,
		ServesDataset:       servesDataset,
	}

	res.ConformsTo = appendUnique(res.ConformsTo, svc.StandardURI)

	// when detection came from the protocol, URL or name rather than the
	// declared format, backfill the canonical format code
	if res.Format != svc.Format {
		res.Format = svc.Format
		res.Mimetype = vocab.MimetypeFor(svc.Format)
	}

	// destructive normalization, applied once per resource
	if svc.OGC() && !strings.Contains(strings.ToLower(res.URL), "request=") {
		sep := "?"
		if strings.Contains(res.URL, "?") {
			sep = "&"
		}
		res.URL = res.URL + sep + svc.CapabilitiesParam
	}

	return []harvest.AccessService{service}
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}
