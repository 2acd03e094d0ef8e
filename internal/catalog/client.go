// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package catalog is a client for the CKAN action API, covering the
// package, tag, vocabulary and group actions the harvester and the tag
// maintenance commands need.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/harvest"
)

const requestTimeout = 120 * time.Second

// Client talks to one CKAN instance. Safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: requestTimeout},
	}
}

var _ harvest.Catalog = &Client{}

// envelope is the standard action API response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result"`
	Error   json.RawMessage `json:"error"`
}

// ValidationError carries CKAN's per-field validation messages.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %d field(s)", len(e.Fields))
}

// FieldErrors returns the per-field messages for error flattening.
func (e *ValidationError) FieldErrors() map[string][]string { return e.Fields }

// call posts the payload to an action endpoint and decodes the result.
// A nil result discards the response body.
func (c *Client) call(ctx context.Context, action string, payload, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", action, err)
	}

	url := c.baseURL + "/api/3/action/" + action
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", action, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding %s response (status %d): %w", action, resp.StatusCode, err)
	}
	if !env.Success {
		return decodeActionError(action, env.Error)
	}
	if result != nil {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decoding %s result: %w", action, err)
		}
	}
	return nil
}

// decodeActionError turns the action API error object into either a
// *ValidationError or a plain error.
func decodeActionError(action string, raw json.RawMessage) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("%s failed: %s", action, string(raw))
	}

	var errType string
	if t, ok := fields["__type"]; ok {
		json.Unmarshal(t, &errType)
	}
	if errType == "Validation Error" {
		ve := &ValidationError{Fields: make(map[string][]string)}
		for field, raw := range fields {
			if field == "__type" {
				continue
			}
			var messages []string
			if err := json.Unmarshal(raw, &messages); err != nil {
				// some fields carry a single string instead of a list
				var single string
				if json.Unmarshal(raw, &single) == nil {
					messages = []string{single}
				}
			}
			ve.Fields[field] = messages
		}
		return ve
	}

	if msg, ok := fields["message"]; ok {
		var s string
		if json.Unmarshal(msg, &s) == nil {
			return fmt.Errorf("%s failed: %s", action, s)
		}
	}
	return fmt.Errorf("%s failed: %s", action, string(raw))
}

// package actions

func (c *Client) PackageCreate(ctx context.Context, d *harvest.Dataset) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "package_create", d, &result); err != nil {
		return "", err
	}
	log.Debugf("created package %s", result.ID)
	return result.ID, nil
}

func (c *Client) PackageUpdate(ctx context.Context, d *harvest.Dataset) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	if err := c.call(ctx, "package_update", d, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

func (c *Client) PackageDelete(ctx context.Context, id string) error {
	return c.call(ctx, "package_delete", map[string]string{"id": id}, nil)
}

func (c *Client) PackageShow(ctx context.Context, id string) (*harvest.Dataset, error) {
	var d harvest.Dataset
	if err := c.call(ctx, "package_show", map[string]string{"id": id}, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// tag and vocabulary actions, used by the tag maintenance commands

// Vocabulary is a named tag list.
type Vocabulary struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Tags []Tag  `json:"tags,omitempty"`
}

type Tag struct {
	Name         string `json:"name"`
	VocabularyID string `json:"vocabulary_id,omitempty"`
}

func (c *Client) VocabularyList(ctx context.Context) ([]Vocabulary, error) {
	var vocabs []Vocabulary
	if err := c.call(ctx, "vocabulary_list", map[string]string{}, &vocabs); err != nil {
		return nil, err
	}
	return vocabs, nil
}

func (c *Client) VocabularyShow(ctx context.Context, name string) (*Vocabulary, error) {
	var v Vocabulary
	if err := c.call(ctx, "vocabulary_show", map[string]string{"id": name}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) VocabularyCreate(ctx context.Context, name string) (*Vocabulary, error) {
	var v Vocabulary
	if err := c.call(ctx, "vocabulary_create", map[string]string{"name": name}, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (c *Client) VocabularyDelete(ctx context.Context, id string) error {
	return c.call(ctx, "vocabulary_delete", map[string]string{"id": id}, nil)
}

func (c *Client) TagCreate(ctx context.Context, tag Tag) error {
	return c.call(ctx, "tag_create", tag, nil)
}

func (c *Client) TagDelete(ctx context.Context, name, vocabularyID string) error {
	return c.call(ctx, "tag_delete", map[string]string{
		"id": name, "vocabulary_id": vocabularyID,
	}, nil)
}

// GroupShow resolves a group, used to validate configured default groups
// before a harvest starts.
func (c *Client) GroupShow(ctx context.Context, name string) (map[string]any, error) {
	var group map[string]any
	if err := c.call(ctx, "group_show", map[string]string{"id": name}, &group); err != nil {
		return nil, err
	}
	return group, nil
}
