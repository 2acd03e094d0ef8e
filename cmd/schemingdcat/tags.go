// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/catalog"
	"github.com/mjanez/schemingdcat/internal/vocab"
)

type catalogConnection struct {
	URL    string
	APIKey string
}

func (c catalogConnection) client() (*catalog.Client, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("the tag commands need --catalog-url")
	}
	if c.APIKey == "" {
		return nil, fmt.Errorf("the tag commands need --api-key")
	}
	return catalog.NewClient(c.URL, c.APIKey), nil
}

// controlledVocabulary pairs a CKAN vocabulary name with the tags it
// should contain.
type controlledVocabulary struct {
	name string
	tags []string
}

func inspireVocabulary() controlledVocabulary {
	return controlledVocabulary{name: vocab.INSPIREThemesVocab, tags: vocab.INSPIREThemes}
}

func dcatVocabulary() controlledVocabulary {
	return controlledVocabulary{name: vocab.DCATTypesVocab, tags: vocab.DCATTypes}
}

func isoTopicVocabulary() controlledVocabulary {
	return controlledVocabulary{name: vocab.ISOTopicsVocab, tags: vocab.ISOTopics}
}

// createTags installs a controlled vocabulary into the catalog. Existing
// tags are left alone so the command can be rerun after partial failures.
func createTags(ctx context.Context, conn catalogConnection, cv controlledVocabulary) error {
	client, err := conn.client()
	if err != nil {
		return err
	}

	existing, err := client.VocabularyShow(ctx, cv.name)
	if err != nil {
		log.Infof("creating vocabulary %s", cv.name)
		existing, err = client.VocabularyCreate(ctx, cv.name)
		if err != nil {
			return fmt.Errorf("creating vocabulary %s: %w", cv.name, err)
		}
	}

	present := map[string]bool{}
	for _, t := range existing.Tags {
		present[t.Name] = true
	}
	added := 0
	for _, name := range cv.tags {
		if present[name] {
			continue
		}
		if err := client.TagCreate(ctx, catalog.Tag{Name: name, VocabularyID: existing.ID}); err != nil {
			return fmt.Errorf("creating tag %s in %s: %w", name, cv.name, err)
		}
		added++
	}
	log.Infof("vocabulary %s ready: %d tag(s) added, %d already present", cv.name, added, len(present))
	return nil
}

// deleteTags removes a controlled vocabulary and its tags.
func deleteTags(ctx context.Context, conn catalogConnection, cv controlledVocabulary) error {
	client, err := conn.client()
	if err != nil {
		return err
	}

	existing, err := client.VocabularyShow(ctx, cv.name)
	if err != nil {
		log.Infof("vocabulary %s does not exist, nothing to delete", cv.name)
		return nil
	}
	for _, t := range existing.Tags {
		if err := client.TagDelete(ctx, t.Name, existing.ID); err != nil {
			return fmt.Errorf("deleting tag %s from %s: %w", t.Name, cv.name, err)
		}
	}
	if err := client.VocabularyDelete(ctx, existing.ID); err != nil {
		return fmt.Errorf("deleting vocabulary %s: %w", cv.name, err)
	}
	log.Infof("vocabulary %s removed with %d tag(s)", cv.name, len(existing.Tags))
	return nil
}
