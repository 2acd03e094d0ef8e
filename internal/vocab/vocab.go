// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package vocab holds the static lookup tables used to normalize raw
// format, protocol and service strings coming from remote catalogs into
// canonical DCAT vocabulary terms.
package vocab

import "strings"

// FallbackFormat is used when no heuristic can classify a download URL.
const FallbackFormat = "HTML"

// formatPatterns maps a lowercase token, as found in a declared format
// string, to its canonical format code. Tokens are matched first exactly
// against the split format string and then as substrings of the whole.
var formatPatterns = map[string]string{
	"wms":        "WMS",
	"wfs":        "WFS",
	"wcs":        "WCS",
	"wmts":       "WMTS",
	"csw":        "CSW",
	"sos":        "SOS",
	"atom":       "ATOM",
	"opensearch": "OPENSEARCH",
	"esri rest":  "ESRI_REST",
	"esrirest":   "ESRI_REST",
	"arcgis":     "ESRI_REST",
	"rest":       "REST",
	"api":        "API",
	"csv":        "CSV",
	"tsv":        "TSV",
	"xls":        "XLS",
	"xlsx":       "XLSX",
	"ods":        "ODS",
	"json":       "JSON",
	"geojson":    "GEOJSON",
	"topojson":   "TOPOJSON",
	"jsonld":     "JSON_LD",
	"xml":        "XML",
	"rdf":        "RDF",
	"ttl":        "TURTLE",
	"turtle":     "TURTLE",
	"n3":         "N3",
	"kml":        "KML",
	"kmz":        "KMZ",
	"gml":        "GML",
	"shp":        "SHP",
	"shapefile":  "SHP",
	"geopackage": "GPKG",
	"gpkg":       "GPKG",
	"dxf":        "DXF",
	"dwg":        "DWG",
	"tiff":       "TIFF",
	"geotiff":    "GEOTIFF",
	"ecw":        "ECW",
	"jpeg":       "JPEG",
	"jpg":        "JPEG",
	"png":        "PNG",
	"pdf":        "PDF",
	"doc":        "DOC",
	"docx":       "DOCX",
	"odt":        "ODT",
	"txt":        "TXT",
	"zip":        "ZIP",
	"rar":        "RAR",
	"7z":         "7Z",
	"gz":         "GZIP",
	"html":       "HTML",
	"htm":        "HTML",
	"sparql":     "SPARQL",
	"soap":       "SOAP",
	"netcdf":     "NETCDF",
	"las":        "LAS",
	"laz":        "LAZ",
}

// mimetypeMapping derives the IANA media type from the canonical format
// code. Media types are never taken from the remote source directly.
var mimetypeMapping = map[string]string{
	"WMS":        "application/xml",
	"WFS":        "application/xml",
	"WCS":        "application/xml",
	"WMTS":       "application/xml",
	"CSW":        "application/xml",
	"SOS":        "application/xml",
	"ATOM":       "application/atom+xml",
	"OPENSEARCH": "application/opensearchdescription+xml",
	"ESRI_REST":  "application/json",
	"REST":       "application/json",
	"API":        "application/json",
	"CSV":        "text/csv",
	"TSV":        "text/tab-separated-values",
	"XLS":        "application/vnd.ms-excel",
	"XLSX":       "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"ODS":        "application/vnd.oasis.opendocument.spreadsheet",
	"JSON":       "application/json",
	"GEOJSON":    "application/geo+json",
	"TOPOJSON":   "application/json",
	"JSON_LD":    "application/ld+json",
	"XML":        "application/xml",
	"RDF":        "application/rdf+xml",
	"TURTLE":     "text/turtle",
	"N3":         "text/n3",
	"KML":        "application/vnd.google-earth.kml+xml",
	"KMZ":        "application/vnd.google-earth.kmz",
	"GML":        "application/gml+xml",
	"SHP":        "application/vnd.shp",
	"GPKG":       "application/geopackage+sqlite3",
	"DXF":        "image/vnd.dxf",
	"DWG":        "image/vnd.dwg",
	"TIFF":       "image/tiff",
	"GEOTIFF":    "image/tiff",
	"ECW":        "application/octet-stream",
	"JPEG":       "image/jpeg",
	"PNG":        "image/png",
	"PDF":        "application/pdf",
	"DOC":        "application/msword",
	"DOCX":       "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"ODT":        "application/vnd.oasis.opendocument.text",
	"TXT":        "text/plain",
	"ZIP":        "application/zip",
	"RAR":        "application/vnd.rar",
	"7Z":         "application/x-7z-compressed",
	"GZIP":       "application/gzip",
	"HTML":       "text/html",
	"SPARQL":     "application/sparql-results+json",
	"SOAP":       "application/soap+xml",
	"NETCDF":     "application/netcdf",
	"LAS":        "application/vnd.las",
	"LAZ":        "application/octet-stream",
}

// protocolMapping is the legacy table keyed by the protocol identifiers
// used in ISO19139 online resources (gmd:protocol values).
var protocolMapping = map[string]string{
	"ogc:wms":                           "WMS",
	"ogc:wfs":                           "WFS",
	"ogc:wcs":                           "WCS",
	"ogc:wmts":                          "WMTS",
	"ogc:csw":                           "CSW",
	"ogc:sos":                           "SOS",
	"esri:aims--http-get-map":           "ESRI_REST",
	"esri:rest":                         "ESRI_REST",
	"www:link-1.0-http--link":           "HTML",
	"www:link-1.0-http--related":        "HTML",
	"www:download-1.0-http--download":   "HTML",
	"www:download-1.0-ftp--download":    "HTML",
	"invoke:wps-1.0-http-get-or-post":   "API",
	"www:link-1.0-http--opensearch":     "OPENSEARCH",
	"www:link-1.0-http--atom":           "ATOM",
	"www:download-1.0-http--csv":        "CSV",
	"www:download-1.0-http--json":       "JSON",
	"www:download-1.0-http--geojson":    "GEOJSON",
	"www:download-1.0-http--shapefile":  "SHP",
	"www:download-1.0-http--zip":        "ZIP",
	"doi:url":                           "HTML",
	"oai-pmh":                           "XML",
}

// FormatByPattern returns the canonical format code for a lowercase token
// taken from a declared format string.
func FormatByPattern(token string) (string, bool) {
	f, ok := formatPatterns[token]
	return f, ok
}

// FormatBySubstring scans the pattern table for a key contained anywhere
// in the given lowercase string. Longer keys win over shorter ones so that
// e.g. "geojson" is preferred over "json"; equal lengths tie-break
// lexicographically to keep the result independent of map iteration order.
func FormatBySubstring(s string) (string, bool) {
	best := ""
	for key := range formatPatterns {
		if !strings.Contains(s, key) {
			continue
		}
		if len(key) > len(best) || (len(key) == len(best) && key < best) {
			best = key
		}
	}
	if best == "" {
		return "", false
	}
	return formatPatterns[best], true
}

// FormatByProtocol resolves a raw protocol identifier against the legacy
// protocol table.
func FormatByProtocol(protocol string) (string, bool) {
	f, ok := protocolMapping[strings.ToLower(strings.TrimSpace(protocol))]
	return f, ok
}

// MimetypeFor returns the media type for a canonical format code.
func MimetypeFor(format string) string {
	return mimetypeMapping[format]
}

// IsKnownFormat reports whether the given code is one of the canonical
// format codes in the tables above.
func IsKnownFormat(format string) bool {
	_, ok := mimetypeMapping[format]
	return ok
}

// ServiceType describes one of the network service kinds that can back a
// dcat:accessService node.
type ServiceType struct {
	// canonical format code, e.g. "WMS"
	Format string
	// query string appended to the base URL to obtain the capabilities
	// document; empty for service kinds that have no such document
	CapabilitiesParam string
	// URI of the service standard used for dct:conformsTo
	StandardURI string
	// lowercase substrings that indicate this service in a URL
	URLIndicators []string
	// lowercase substrings that indicate this service in a protocol string
	ProtocolIndicators []string
	// lowercase substrings that indicate this service in a name or description
	NameIndicators []string
}

// OGC reports whether the service follows the OGC GetCapabilities pattern.
func (s ServiceType) OGC() bool {
	return s.CapabilitiesParam != ""
}

// serviceTypes lists every service kind for which an access service is
// synthesized, in detection priority order.
var serviceTypes = []ServiceType{
	{
		Format:             "WMS",
		CapabilitiesParam:  "service=wms&request=GetCapabilities",
		StandardURI:        "http://www.opengis.net/def/serviceType/ogc/wms",
		URLIndicators:      []string{"/wms", "service=wms"},
		ProtocolIndicators: []string{"ogc:wms", "wms"},
		NameIndicators:     []string{"web map service", "wms"},
	},
	{
		Format:             "WFS",
		CapabilitiesParam:  "service=wfs&request=GetCapabilities",
		StandardURI:        "http://www.opengis.net/def/serviceType/ogc/wfs",
		URLIndicators:      []string{"/wfs", "service=wfs"},
		ProtocolIndicators: []string{"ogc:wfs", "wfs"},
		NameIndicators:     []string{"web feature service", "wfs"},
	},
	{
		Format:             "WCS",
		CapabilitiesParam:  "service=wcs&request=GetCapabilities",
		StandardURI:        "http://www.opengis.net/def/serviceType/ogc/wcs",
		URLIndicators:      []string{"/wcs", "service=wcs"},
		ProtocolIndicators: []string{"ogc:wcs", "wcs"},
		NameIndicators:     []string{"web coverage service", "wcs"},
	},
	{
		Format:             "CSW",
		CapabilitiesParam:  "service=csw&request=GetCapabilities",
		StandardURI:        "http://www.opengis.net/def/serviceType/ogc/csw",
		URLIndicators:      []string{"/csw", "service=csw"},
		ProtocolIndicators: []string{"ogc:csw", "csw"},
		NameIndicators:     []string{"catalogue service", "catalog service", "csw"},
	},
	{
		Format:             "WMTS",
		CapabilitiesParam:  "service=wmts&request=GetCapabilities",
		StandardURI:        "http://www.opengis.net/def/serviceType/ogc/wmts",
		URLIndicators:      []string{"/wmts", "service=wmts"},
		ProtocolIndicators: []string{"ogc:wmts", "wmts"},
		NameIndicators:     []string{"web map tile service", "wmts"},
	},
	{
		Format:             "SOS",
		CapabilitiesParam:  "service=sos&request=GetCapabilities",
		StandardURI:        "http://www.opengis.net/def/serviceType/ogc/sos",
		URLIndicators:      []string{"/sos", "service=sos"},
		ProtocolIndicators: []string{"ogc:sos", "sos"},
		NameIndicators:     []string{"sensor observation service", "sos"},
	},
	{
		Format:             "ESRI_REST",
		StandardURI:        "https://developers.arcgis.com/rest/",
		URLIndicators:      []string{"arcgis/rest", "/featureserver", "/mapserver"},
		ProtocolIndicators: []string{"esri:rest", "esri"},
		NameIndicators:     []string{"arcgis", "esri rest"},
	},
	{
		Format:             "OPENSEARCH",
		StandardURI:        "http://www.opensearch.org/Specifications/OpenSearch/1.1",
		URLIndicators:      []string{"opensearch"},
		ProtocolIndicators: []string{"opensearch"},
		NameIndicators:     []string{"opensearch"},
	},
	{
		Format:             "ATOM",
		StandardURI:        "https://datatracker.ietf.org/doc/html/rfc4287",
		URLIndicators:      []string{"/atom", "format=atom"},
		ProtocolIndicators: []string{"atom"},
		NameIndicators:     []string{"atom feed", "atom"},
	},
	{
		Format:             "API",
		StandardURI:        "https://www.openapis.org/",
		URLIndicators:      []string{"/api/"},
		ProtocolIndicators: []string{"invoke:wps", "api"},
		NameIndicators:     []string{"api"},
	},
	{
		Format:             "REST",
		StandardURI:        "https://www.ics.uci.edu/~fielding/pubs/dissertation/rest_arch_style.htm",
		URLIndicators:      []string{"/rest/"},
		ProtocolIndicators: []string{"rest"},
		NameIndicators:     []string{"rest"},
	},
}

// ServiceTypeByFormat returns the service descriptor whose canonical
// format code matches exactly.
func ServiceTypeByFormat(format string) (ServiceType, bool) {
	for _, s := range serviceTypes {
		if s.Format == format {
			return s, true
		}
	}
	return ServiceType{}, false
}

// ServiceTypeByProtocol matches a lowercase protocol string against the
// protocol indicators of every service kind.
func ServiceTypeByProtocol(protocol string) (ServiceType, bool) {
	return matchIndicators(protocol, func(s ServiceType) []string { return s.ProtocolIndicators })
}

// ServiceTypeByURL matches a lowercase URL against the URL indicators of
// every service kind.
func ServiceTypeByURL(url string) (ServiceType, bool) {
	return matchIndicators(url, func(s ServiceType) []string { return s.URLIndicators })
}

// ServiceTypeByName matches a lowercase name or description against the
// name indicators of every service kind.
func ServiceTypeByName(text string) (ServiceType, bool) {
	return matchIndicators(text, func(s ServiceType) []string { return s.NameIndicators })
}

func matchIndicators(s string, pick func(ServiceType) []string) (ServiceType, bool) {
	if s == "" {
		return ServiceType{}, false
	}
	for _, svc := range serviceTypes {
		for _, indicator := range pick(svc) {
			if strings.Contains(s, indicator) {
				return svc, true
			}
		}
	}
	return ServiceType{}, false
}
