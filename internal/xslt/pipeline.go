// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package xslt runs ISO19139 metadata documents through an XSLT
// stylesheet producing RDF/XML, then round-trips the output through an
// RDF parser. The round trip is deliberate: it proves the stylesheet
// produced syntactically valid RDF and normalizes serialization quirks
// before profile parsing.
package xslt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/knakk/rdf"
	log "github.com/sirupsen/logrus"
)

// DefaultProcessor is the external XSLT processor binary invoked as
// "processor <stylesheet> <input>" with the result on stdout.
const DefaultProcessor = "xsltproc"

const stylesheetFetchTimeout = 30 * time.Second

// TerminalError marks a failure that invalidates the whole harvest run,
// not just one record. A broken stylesheet fails every record the same
// way, so the run is aborted instead of retried.
type TerminalError struct {
	Messages []string
}

func (e *TerminalError) Error() string {
	return "xslt transform failed: " + strings.Join(e.Messages, "; ")
}

// Config locates the stylesheet and the processor binary.
type Config struct {
	// stylesheet file name under MappingsDir, or an http(s) URL
	Stylesheet  string
	MappingsDir string
	// processor binary; DefaultProcessor when empty
	Processor string
}

// Pipeline transforms XML documents with one resolved stylesheet. Safe
// for concurrent use.
type Pipeline struct {
	stylesheet string
	processor  string
}

// NewPipeline resolves the stylesheet eagerly. A missing stylesheet is a
// configuration error reported before any record is gathered, since
// every record would fail identically.
func NewPipeline(cfg Config) (*Pipeline, error) {
	processor := cfg.Processor
	if processor == "" {
		processor = DefaultProcessor
	}

	path, err := resolveStylesheet(cfg)
	if err != nil {
		return nil, err
	}
	log.Debugf("xslt pipeline using stylesheet %s", path)
	return &Pipeline{stylesheet: path, processor: processor}, nil
}

func resolveStylesheet(cfg Config) (string, error) {
	if strings.HasPrefix(cfg.Stylesheet, "http://") || strings.HasPrefix(cfg.Stylesheet, "https://") {
		return fetchStylesheet(cfg.Stylesheet)
	}
	path := filepath.Join(cfg.MappingsDir, cfg.Stylesheet)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stylesheet %q not found in mappings directory %s: %w",
			cfg.Stylesheet, cfg.MappingsDir, err)
	}
	return path, nil
}

// fetchStylesheet downloads a remote stylesheet into a temp file once,
// at construction time.
func fetchStylesheet(url string) (string, error) {
	client := &http.Client{Timeout: stylesheetFetchTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return "", fmt.Errorf("fetching stylesheet %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching stylesheet %s: status %d", url, resp.StatusCode)
	}

	f, err := os.CreateTemp("", "stylesheet-*.xsl")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("writing stylesheet %s: %w", url, err)
	}
	return f.Name(), nil
}

// Transform applies the stylesheet to the document and parses the result
// as RDF/XML, returning the triples. Processor failures come back as a
// *TerminalError carrying every message the processor emitted.
func (p *Pipeline) Transform(ctx context.Context, xmlContent []byte) ([]rdf.Triple, error) {
	// the processor operates on file paths, not buffers
	input, err := os.CreateTemp("", "harvest-record-*.xml")
	if err != nil {
		return nil, err
	}
	defer os.Remove(input.Name())
	if _, err := input.Write(xmlContent); err != nil {
		input.Close()
		return nil, err
	}
	input.Close()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.processor, p.stylesheet, input.Name())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		messages := strings.Split(strings.TrimSpace(stderr.String()), "\n")
		if len(messages) == 1 && messages[0] == "" {
			messages = []string{err.Error()}
		}
		return nil, &TerminalError{Messages: messages}
	}

	triples, err := rdf.NewTripleDecoder(&stdout, rdf.RDFXML).DecodeAll()
	if err != nil {
		return nil, fmt.Errorf("transform produced invalid RDF/XML: %w", err)
	}
	return triples, nil
}

// NTriples serializes triples to canonical N-Triples text.
func NTriples(triples []rdf.Triple) (string, error) {
	var b bytes.Buffer
	enc := rdf.NewTripleEncoder(&b, rdf.NTriples)
	for _, t := range triples {
		if err := enc.Encode(t); err != nil {
			return "", err
		}
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return b.String(), nil
}
