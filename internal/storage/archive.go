// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package storage archives permanently deleted items to S3-compatible
// object storage. It wraps the AWS SDK v2 and is configured for path-style
// access (required by CEPH/Hetzner).
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"cmskit/internal/cms"
	"cmskit/internal/models"
)

// objectAPI is the subset of the S3 client the archiver uses.
type objectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Config addresses the archive bucket.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Archiver writes a JSON copy of each deleted item to a private bucket.
type Archiver struct {
	s3     objectAPI
	bucket string
	logger *slog.Logger
}

// New creates an archiver configured for CEPH/Hetzner with path-style
// addressing. Returns (nil, nil) if endpoint, credentials or bucket are
// empty, allowing the app to start without archiving.
func New(cfg Config, logger *slog.Logger) (*Archiver, error) {
	if cfg.Endpoint == "" || cfg.AccessKey == "" || cfg.SecretKey == "" || cfg.Bucket == "" {
		return nil, nil
	}
	client := s3.New(s3.Options{
		Region:       cfg.Region,
		BaseEndpoint: aws.String(strings.TrimRight(cfg.Endpoint, "/")),
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	})
	return newArchiver(client, cfg.Bucket, logger), nil
}

func newArchiver(api objectAPI, bucket string, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{s3: api, bucket: bucket, logger: logger}
}

// ArchiveKey returns the object key for a deleted item at a version.
func ArchiveKey(uid string, version int64) string {
	return fmt.Sprintf("deleted/%s/v%d.json", uid, version)
}

// Archive stores h as JSON under ArchiveKey. The password hash is never
// serialized.
func (a *Archiver) Archive(ctx context.Context, h *models.Head) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("archive encode %s: %w", h.UID, err)
	}
	key := ArchiveKey(h.UID, h.VersionNumber)
	_, err = a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 upload %s/%s: %w", a.bucket, key, err)
	}
	a.logger.Info("deleted item archived", "uid", h.UID, "key", key)
	return nil
}

// Fetch reads an archived item back. Returns nil if nothing was archived
// for uid at version.
func (a *Archiver) Fetch(ctx context.Context, uid string, version int64) (*models.Head, error) {
	key := ArchiveKey(uid, version)
	out, err := a.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	var missing *types.NoSuchKey
	if errors.As(err, &missing) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("s3 download %s/%s: %w", a.bucket, key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body %s/%s: %w", a.bucket, key, err)
	}
	var h models.Head
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("archive decode %s: %w", key, err)
	}
	return &h, nil
}

// Hook archives the removed row of every delete event.
func (a *Archiver) Hook() cms.Hook {
	return func(ctx context.Context, ev cms.Event) error {
		if ev.Type != cms.EventDelete || ev.Row == nil {
			return nil
		}
		return a.Archive(ctx, ev.Row)
	}
}
