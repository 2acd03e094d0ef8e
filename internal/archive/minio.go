// Copyright 2025 mjanez
// SPDX-License-Identifier: Apache-2.0

// Package archive stores the raw source payload of every gathered
// record in S3-compatible object storage, keyed by source and guid, so
// a harvest can be replayed or audited without re-fetching the source.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"

	"github.com/mjanez/schemingdcat/internal/harvest"
)

// Config locates the archive bucket.
type Config struct {
	Address   string `json:"address"`
	Port      int    `json:"port"`
	AccessKey string `json:"accesskey"`
	SecretKey string `json:"secretkey"`
	Bucket    string `json:"bucket"`
	SSL       bool   `json:"ssl"`
}

// MinioArchive implements harvest.RecordArchive on a minio bucket.
type MinioArchive struct {
	client *minio.Client
	bucket string
}

var _ harvest.RecordArchive = &MinioArchive{}

// NewMinioArchive connects to the object store and ensures the bucket
// exists.
func NewMinioArchive(ctx context.Context, cfg Config) (*MinioArchive, error) {
	endpoint := fmt.Sprintf("%s:%d", cfg.Address, cfg.Port)
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.SSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to record archive at %s: %w", endpoint, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking archive bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("creating archive bucket %s: %w", cfg.Bucket, err)
		}
		log.Infof("created record archive bucket %s", cfg.Bucket)
	}
	return &MinioArchive{client: client, bucket: cfg.Bucket}, nil
}

// Store writes one raw payload under harvested/<source>/<guid>.
func (a *MinioArchive) Store(ctx context.Context, sourceID, guid string, payload []byte) error {
	key := objectKey(sourceID, guid)
	_, err := a.client.PutObject(ctx, a.bucket, key,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return fmt.Errorf("archiving record %s: %w", key, err)
	}
	return nil
}

// Fetch reads one archived payload back.
func (a *MinioArchive) Fetch(ctx context.Context, sourceID, guid string) ([]byte, error) {
	key := objectKey(sourceID, guid)
	obj, err := a.client.GetObject(ctx, a.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("reading archived record %s: %w", key, err)
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		return nil, fmt.Errorf("reading archived record %s: %w", key, err)
	}
	return buf.Bytes(), nil
}

func objectKey(sourceID, guid string) string {
	return fmt.Sprintf("harvested/%s/%s", sourceID, guid)
}

// MemoryArchive keeps payloads in a map, for tests and dry runs.
type MemoryArchive struct {
	mu      sync.Mutex
	Objects map[string][]byte
}

var _ harvest.RecordArchive = &MemoryArchive{}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{Objects: make(map[string][]byte)}
}

func (a *MemoryArchive) Store(_ context.Context, sourceID, guid string, payload []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Objects[objectKey(sourceID, guid)] = append([]byte(nil), payload...)
	return nil
}
