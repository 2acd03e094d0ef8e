// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// euVocabularies are the EU Publications Office authority tables the
// DCAT-AP profile draws its codelists from.
var euVocabularies = map[string]string{
	"access-right":         "https://publications.europa.eu/resource/distribution/access-right/rdf/skos_core/access-right-skos.rdf",
	"file-type":            "https://publications.europa.eu/resource/distribution/file-type/rdf/skos_core/filetypes-skos.rdf",
	"frequency":            "https://publications.europa.eu/resource/distribution/frequency/rdf/skos_core/frequencies-skos.rdf",
	"language":             "https://publications.europa.eu/resource/distribution/language/rdf/skos_core/languages-skos.rdf",
	"licence":              "https://publications.europa.eu/resource/distribution/licence/rdf/skos_core/licences-skos.rdf",
	"data-theme":           "https://publications.europa.eu/resource/distribution/data-theme/rdf/skos_core/data-theme-skos.rdf",
	"dataset-type":         "https://publications.europa.eu/resource/distribution/dataset-type/rdf/skos_core/dataset-types-skos.rdf",
	"planned-availability": "https://publications.europa.eu/resource/distribution/planned-availability/rdf/skos_core/planned-availabilities-skos.rdf",
}

// downloadEuVocabs fetches each authority table as RDF/XML into the
// output directory. Failures are logged per vocabulary so one broken
// download does not lose the rest.
func downloadEuVocabs(ctx context.Context, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	client := &http.Client{Timeout: 2 * time.Minute}

	failures := 0
	for name, url := range euVocabularies {
		dest := filepath.Join(outputDir, name+".rdf")
		if err := downloadFile(ctx, client, url, dest); err != nil {
			log.Errorf("could not download vocabulary %s: %v", name, err)
			failures++
			continue
		}
		log.Infof("downloaded vocabulary %s to %s", name, dest)
	}
	if failures > 0 {
		return fmt.Errorf("%d of %d vocabularies failed to download", failures, len(euVocabularies))
	}
	return nil
}

func downloadFile(ctx context.Context, client *http.Client, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/rdf+xml")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from %s", resp.Status, url)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	return out.Close()
}
