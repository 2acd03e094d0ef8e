// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package csw implements a minimal OGC CSW 2.0.2 client covering the two
// operations a metadata harvest needs: GetRecords to enumerate record
// identifiers and GetRecordById to fetch the full ISO19139 document.
package csw

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/telemetry"
)

const (
	// outputSchemaGMD asks the server for full ISO19139 records
	outputSchemaGMD = "http://www.isotc211.org/2005/gmd"

	defaultMaxRecords = 10
	requestTimeout    = 60 * time.Second
)

// Record is the summary view of a catalog entry as returned by
// GetRecords. The full document is fetched separately per identifier.
type Record struct {
	Identifier string `xml:"identifier"`
	Title      string `xml:"title"`
	Type       string `xml:"type"`
}

// Query holds the optional constraints for a GetRecords enumeration.
// Zero values mean unconstrained.
type Query struct {
	// raw CQL text, passed through verbatim
	CQL string
	// property/term pair, used when CQL is empty
	CQLQuery      string
	CQLSearchTerm string
	// wrap the term in wildcards and use PropertyIsLike instead of
	// PropertyIsEqualTo
	CQLUseLike bool

	MaxRecords    int
	StartPosition int
	// stop paginating once this many identifiers have been collected;
	// zero means no limit
	Limit int
}

// Client talks to one CSW endpoint. It is not safe for concurrent use:
// the record map and the diagnostic request/response buffers are
// overwritten by every call.
type Client struct {
	endpoint string
	http     *http.Client

	// Records accumulates every summary record seen across all pages of
	// the last GetRecords call, keyed by identifier.
	Records map[string]Record

	lastRequest  []byte
	lastResponse []byte
}

func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: requestTimeout},
		Records:  make(map[string]Record),
	}
}

// GetRecords enumerates record identifiers matching the query. The
// strategy runs in order, stopping at the first non-empty result:
//
//  1. an unconstrained probe request, to validate connectivity
//  2. the property/term constraint, if given
//  3. the raw CQL constraint, if given
//  4. if the constrained query matched nothing, one unconstrained retry
//
// Any transport or protocol failure returns an empty list rather than an
// error; the request and response bodies are logged for diagnostics.
func (c *Client) GetRecords(ctx context.Context, q Query) []string {
	ctx, span := telemetry.SubSpanFromCtx(ctx)
	defer span.End()

	if _, err := c.page(ctx, q, "", q.startPosition()); err != nil {
		c.logFailure("connectivity probe failed", err)
		return []string{}
	}

	constraints := q.constraintXMLs()
	for _, constraint := range constraints {
		ids, err := c.paginate(ctx, q, constraint)
		if err != nil {
			c.logFailure("GetRecords failed", err)
			return []string{}
		}
		if len(ids) > 0 {
			return ids
		}
		log.Warnf("constrained query matched no records on %s", c.endpoint)
	}

	ids, err := c.paginate(ctx, q, "")
	if err != nil {
		c.logFailure("GetRecords failed", err)
		return []string{}
	}
	return ids
}

// paginate walks every result page, accumulating identifiers and the
// summary record map. Pagination continues while the server's nextRecord
// points inside (0, matched]; a positive query limit stops early.
func (c *Client) paginate(ctx context.Context, q Query, constraint string) ([]string, error) {
	c.Records = make(map[string]Record)
	var ids []string

	start := q.startPosition()
	for {
		page, err := c.page(ctx, q, constraint, start)
		if err != nil {
			return nil, err
		}
		for _, rec := range page.records() {
			if rec.Identifier == "" {
				continue
			}
			if _, seen := c.Records[rec.Identifier]; !seen {
				ids = append(ids, rec.Identifier)
			}
			c.Records[rec.Identifier] = rec
		}
		if q.Limit > 0 && len(ids) >= q.Limit {
			ids = ids[:q.Limit]
			break
		}
		next := page.SearchResults.NextRecord
		if next <= 0 || next > page.SearchResults.Matched {
			break
		}
		start = next
	}
	log.Debugf("csw %s: collected %d record ids", c.endpoint, len(ids))
	return ids, nil
}

func (c *Client) page(ctx context.Context, q Query, constraint string, start int) (*getRecordsResponse, error) {
	body := buildGetRecords(q.maxRecords(), start, constraint)
	raw, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	var resp getRecordsResponse
	if err := xml.Unmarshal(raw, &resp); err != nil {
		if msg := exceptionText(raw); msg != "" {
			return nil, fmt.Errorf("csw exception: %s", msg)
		}
		return nil, fmt.Errorf("decoding GetRecords response: %w", err)
	}
	return &resp, nil
}

// GetRecordByID fetches the full ISO19139 document for one identifier.
func (c *Client) GetRecordByID(ctx context.Context, id string) ([]byte, error) {
	ctx, span := telemetry.SubSpanFromCtx(ctx)
	defer span.End()

	raw, err := c.post(ctx, buildGetRecordByID(id))
	if err != nil {
		return nil, fmt.Errorf("GetRecordById %s: %w", id, err)
	}
	if msg := exceptionText(raw); msg != "" {
		return nil, fmt.Errorf("GetRecordById %s: csw exception: %s", id, msg)
	}
	return raw, nil
}

func (c *Client) post(ctx context.Context, body string) ([]byte, error) {
	c.lastRequest = []byte(body)
	c.lastResponse = nil

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	c.lastResponse = raw
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("csw endpoint returned status %d", resp.StatusCode)
	}
	return raw, nil
}

func (c *Client) logFailure(msg string, err error) {
	log.WithFields(log.Fields{
		"endpoint": c.endpoint,
		"request":  string(c.lastRequest),
		"response": truncate(string(c.lastResponse), 2048),
	}).Errorf("%s: %s", msg, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func (q Query) maxRecords() int {
	if q.MaxRecords > 0 {
		return q.MaxRecords
	}
	return defaultMaxRecords
}

func (q Query) startPosition() int {
	if q.StartPosition > 0 {
		return q.StartPosition
	}
	return 1
}

// constraintXMLs renders every configured constraint in attempt order:
// the property/term pair first, then raw CQL. An empty list means
// unconstrained.
func (q Query) constraintXMLs() []string {
	var constraints []string
	if q.CQLQuery != "" && q.CQLSearchTerm != "" {
		property := normalizeProperty(q.CQLQuery)
		if q.CQLUseLike {
			constraints = append(constraints, fmt.Sprintf(propertyIsLikeTemplate,
				xmlEscape(property), xmlEscape("%"+q.CQLSearchTerm+"%")))
		} else {
			constraints = append(constraints, fmt.Sprintf(propertyIsEqualToTemplate,
				xmlEscape(property), xmlEscape(q.CQLSearchTerm)))
		}
	}
	if q.CQL != "" {
		constraints = append(constraints, fmt.Sprintf(cqlTemplate, xmlEscape(q.CQL)))
	}
	return constraints
}

// normalizeProperty prefixes a bare property name with the csw namespace
// and capitalizes it, so "title" becomes "csw:Title". Names that already
// carry a prefix pass through unchanged.
func normalizeProperty(name string) string {
	if strings.Contains(name, ":") {
		return name
	}
	return "csw:" + strings.ToUpper(name[:1]) + name[1:]
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	// the input never contains invalid runes that EscapeText rejects
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
