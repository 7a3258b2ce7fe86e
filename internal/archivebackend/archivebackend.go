// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package archivebackend implements the archive-before-delete enrichment
// of retention (§4.7): before a batch of expired history rows is deleted,
// it is written out as one Avro object-container file per retention run,
// either to a local directory or to an S3-compatible bucket. Grounded on
// pkg/archive/s3Backend.go's config shape and parquet/target.go's
// FileTarget/S3Target split; the encoding itself follows
// memorystore/avroCheckpoint.go's use of goavro to put time series rows
// on disk, generalized from that package's checkpoint levels to
// store.HistoryRow.
package archivebackend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/linkedin/goavro/v2"
	"github.com/plantdata/rtds/internal/store"
)

// archiveFileName names one retention run's archive file. Kept as a
// function so tests can assert on the naming scheme without depending on
// wall-clock time directly in the exported API.
func archiveFileName(t time.Time) string {
	return fmt.Sprintf("history-%s.avro", t.UTC().Format("20060102T150405.000000000Z"))
}

// historyRowSchema is the Avro record schema for one archived
// HistoryRow. Each value slot is a nullable union, mirroring the
// sql.Null* column layout store.HistoryRow itself uses.
const historyRowSchema = `{
  "type": "record",
  "name": "HistoryRow",
  "fields": [
    {"name": "tag_id", "type": "string"},
    {"name": "tag_time", "type": "string"},
    {"name": "status", "type": "int"},
    {"name": "type", "type": "string"},
    {"name": "bool_value", "type": ["null", "boolean"], "default": null},
    {"name": "int_value", "type": ["null", "long"], "default": null},
    {"name": "float_value", "type": ["null", "double"], "default": null},
    {"name": "str_value", "type": ["null", "string"], "default": null}
  ]
}`

// marshal encodes rows as an Avro object container file: one OCF per
// retention run, readable by any Avro tool without this package.
func marshal(rows []store.HistoryRow) ([]byte, error) {
	var buf bytes.Buffer
	writer, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:      &buf,
		Schema: historyRowSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("archivebackend: build OCF writer: %w", err)
	}

	records := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		records = append(records, map[string]interface{}{
			"tag_id":     r.TagID,
			"tag_time":   r.TagTime.UTC().Format(time.RFC3339Nano),
			"status":     int32(r.Status),
			"type":       r.Type,
			"bool_value": nullableUnion(r.BoolValue.Valid, r.BoolValue.Bool),
			"int_value":  nullableUnion(r.IntValue.Valid, r.IntValue.Int64),
			"float_value": nullableUnion(r.FloatValue.Valid, r.FloatValue.Float64),
			"str_value":  nullableUnion(r.StrValue.Valid, r.StrValue.String),
		})
	}

	if err := writer.Append(records); err != nil {
		return nil, fmt.Errorf("archivebackend: encode %d rows: %w", len(rows), err)
	}
	return buf.Bytes(), nil
}

// nullableUnion formats a value for an Avro ["null", T] union: goavro
// expects either bare nil or a single-key map naming the branch type.
func nullableUnion[T any](valid bool, v T) interface{} {
	if !valid {
		return nil
	}

	switch any(v).(type) {
	case bool:
		return goavro.Union("boolean", v)
	case int64:
		return goavro.Union("long", v)
	case float64:
		return goavro.Union("double", v)
	case string:
		return goavro.Union("string", v)
	default:
		return nil
	}
}

// FileBackend archives to a local directory, one file per retention run.
type FileBackend struct {
	dir string
	now func() time.Time
}

// NewFileBackend creates dir if needed and returns a FileBackend rooted
// there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("archivebackend: create directory %q: %w", dir, err)
	}
	return &FileBackend{dir: dir, now: time.Now}, nil
}

// Archive satisfies store.ArchiveBackend.
func (b *FileBackend) Archive(_ context.Context, rows []store.HistoryRow) error {
	data, err := marshal(rows)
	if err != nil {
		return err
	}
	name := archiveFileName(b.now())
	if err := os.WriteFile(filepath.Join(b.dir, name), data, 0o640); err != nil {
		return fmt.Errorf("archivebackend: write %q: %w", name, err)
	}
	return nil
}

// S3Config configures an S3-compatible archive target, grounded on
// pkg/archive/s3Backend.go's S3ArchiveConfig and parquet/target.go's
// S3TargetConfig.
type S3Config struct {
	Endpoint     string
	Bucket       string
	Prefix       string
	AccessKey    string
	SecretKey    string
	Region       string
	UsePathStyle bool
}

// S3Backend archives history rows as objects in an S3-compatible bucket.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3Backend builds an S3Backend from cfg.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archivebackend: empty S3 bucket name")
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("archivebackend: load AWS config: %w", err)
	}

	opts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}

	return &S3Backend{
		client: s3.NewFromConfig(awsCfg, opts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		now:    time.Now,
	}, nil
}

// Archive satisfies store.ArchiveBackend.
func (b *S3Backend) Archive(ctx context.Context, rows []store.HistoryRow) error {
	data, err := marshal(rows)
	if err != nil {
		return err
	}
	key := archiveFileName(b.now())
	if b.prefix != "" {
		key = filepath.Join(b.prefix, key)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/avro"),
	})
	if err != nil {
		return fmt.Errorf("archivebackend: put object %q: %w", key, err)
	}
	return nil
}
