// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package ckanharvest collects datasets from another CKAN portal by
// paging through its package_search action. The portal's robots.txt is
// consulted once before the crawl starts.
package ckanharvest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"github.com/tidwall/gjson"

	"github.com/mjanez/schemingdcat/internal/classify"
	"github.com/mjanez/schemingdcat/internal/harvest"
	"github.com/mjanez/schemingdcat/internal/telemetry"
)

const (
	defaultPageSize = 100
	userAgent       = "schemingdcat-harvester"
	requestTimeout  = 60 * time.Second
)

// Config wires one remote CKAN source.
type Config struct {
	// base portal URL, e.g. https://datos.gob.es/catalogo
	SourceURL string
	// solr filter query passed through to package_search
	FilterQuery string
	PageSize    int
	// skip the robots.txt check; some portals serve a broken file
	IgnoreRobots bool
}

// Collector implements harvest.SourceCollector for remote CKAN portals.
type Collector struct {
	cfg  Config
	http *http.Client
}

var _ harvest.SourceCollector = &Collector{}

func New(cfg Config) *Collector {
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Collector{cfg: cfg, http: &http.Client{Timeout: requestTimeout}}
}

// Collect pages through package_search until the reported count is
// exhausted. Each result row is plucked into a dataset; rows without an
// id become skips.
func (c *Collector) Collect(ctx context.Context) ([]harvest.RecordResult, error) {
	ctx, span := telemetry.SubSpanFromCtx(ctx)
	defer span.End()

	if !c.cfg.IgnoreRobots {
		if err := c.checkRobots(ctx); err != nil {
			return nil, err
		}
	}

	var results []harvest.RecordResult
	for start := 0; ; start += c.cfg.PageSize {
		page, count, err := c.searchPage(ctx, start)
		if err != nil {
			return nil, err
		}
		results = append(results, page...)
		if start+c.cfg.PageSize >= count || len(page) == 0 {
			break
		}
	}
	log.Infof("remote ckan source %s returned %d records", c.cfg.SourceURL, len(results))
	return results, nil
}

// checkRobots fetches the portal's robots.txt and verifies the API path
// is crawlable. A missing robots.txt allows everything.
func (c *Collector) checkRobots(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.SourceURL+"/robots.txt", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching robots.txt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		log.Warnf("unparseable robots.txt on %s, proceeding: %s", c.cfg.SourceURL, err)
		return nil
	}
	if !robots.FindGroup(userAgent).Test("/api/3/action/package_search") {
		return fmt.Errorf("robots.txt on %s disallows harvesting the search API", c.cfg.SourceURL)
	}
	return nil
}

func (c *Collector) searchPage(ctx context.Context, start int) ([]harvest.RecordResult, int, error) {
	url := fmt.Sprintf("%s/api/3/action/package_search?rows=%d&start=%d",
		c.cfg.SourceURL, c.cfg.PageSize, start)
	if c.cfg.FilterQuery != "" {
		url += "&fq=" + c.cfg.FilterQuery
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("calling package_search: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, 0, fmt.Errorf("package_search returned status %d", resp.StatusCode)
	}
	if !gjson.GetBytes(body, "success").Bool() {
		return nil, 0, fmt.Errorf("package_search failed: %s", gjson.GetBytes(body, "error.message").String())
	}

	count := int(gjson.GetBytes(body, "result.count").Int())
	var page []harvest.RecordResult
	gjson.GetBytes(body, "result.results").ForEach(func(_, row gjson.Result) bool {
		page = append(page, pluckDataset(row))
		return true
	})
	return page, count, nil
}

// pluckDataset maps one package_search row onto the normalized model.
func pluckDataset(row gjson.Result) harvest.RecordResult {
	id := row.Get("id").String()
	if id == "" {
		return harvest.Skipped("", "search result has no id")
	}

	d := &harvest.Dataset{
		Identifier: id,
		Title:      row.Get("title").String(),
		Notes:      row.Get("notes").String(),
		License:    row.Get("license_id").String(),
		Modified:   row.Get("metadata_modified").String(),
		Issued:     row.Get("metadata_created").String(),
	}
	row.Get("tags.#.name").ForEach(func(_, tag gjson.Result) bool {
		d.Tags = append(d.Tags, tag.String())
		return true
	})
	row.Get("groups.#.name").ForEach(func(_, group gjson.Result) bool {
		d.Groups = append(d.Groups, group.String())
		return true
	})
	row.Get("resources").ForEach(func(_, res gjson.Result) bool {
		r := harvest.Resource{
			URL:         res.Get("url").String(),
			Name:        res.Get("name").String(),
			Description: res.Get("description").String(),
			Format:      res.Get("format").String(),
			Modified:    res.Get("last_modified").String(),
		}
		if r.URL == "" {
			return true
		}
		classify.CleanResource(&r)
		d.Resources = append(d.Resources, r)
		return true
	})

	return harvest.RecordResult{GUID: id, Dataset: d, Raw: []byte(row.Raw)}
}
