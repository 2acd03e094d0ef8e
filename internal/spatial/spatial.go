// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package spatial normalizes the spatial extents found in remote
// metadata (WKT literals, comma-separated bounding boxes) into GeoJSON
// geometry for the dataset's spatial field.
package spatial

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterstace/simplefeatures/geom"
)

// ToGeoJSON converts a geometry literal to GeoJSON. It accepts WKT, a
// bounding box of form "minx,miny,maxx,maxy", or GeoJSON passed through
// after validation.
func ToGeoJSON(literal string) (json.RawMessage, error) {
	literal = strings.TrimSpace(literal)
	if literal == "" {
		return nil, fmt.Errorf("empty geometry literal")
	}

	if strings.HasPrefix(literal, "{") {
		g, err := geom.UnmarshalGeoJSON([]byte(literal))
		if err != nil {
			return nil, fmt.Errorf("invalid GeoJSON geometry: %w", err)
		}
		return marshal(g)
	}

	if bbox, ok := parseBBox(literal); ok {
		return BBoxToGeoJSON(bbox[0], bbox[1], bbox[2], bbox[3])
	}

	g, err := geom.UnmarshalWKT(literal)
	if err != nil {
		return nil, fmt.Errorf("geometry literal is neither WKT, bbox nor GeoJSON: %w", err)
	}
	return marshal(g)
}

// BBoxToGeoJSON builds the GeoJSON polygon of a bounding box, closing
// the ring counterclockwise from the lower-left corner.
func BBoxToGeoJSON(minX, minY, maxX, maxY float64) (json.RawMessage, error) {
	if minX > maxX || minY > maxY {
		return nil, fmt.Errorf("degenerate bounding box [%g,%g,%g,%g]", minX, minY, maxX, maxY)
	}
	wkt := fmt.Sprintf("POLYGON((%g %g, %g %g, %g %g, %g %g, %g %g))",
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY)
	g, err := geom.UnmarshalWKT(wkt)
	if err != nil {
		return nil, err
	}
	return marshal(g)
}

func marshal(g geom.Geometry) (json.RawMessage, error) {
	out, err := g.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(out), nil
}

func parseBBox(s string) ([4]float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, false
	}
	var bbox [4]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return [4]float64{}, false
		}
		bbox[i] = v
	}
	return bbox, true
}
