/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package catalog

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// DurationMetadataKey is the object metadata key holding the track length in milliseconds.
const DurationMetadataKey = "duration-ms"

// S3Config configures an S3-backed library.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Source lists audio objects in a bucket prefix. Object LastModified is
// the track modification time; duration comes from object metadata.
type S3Source struct {
	client S3API
	bucket string
	prefix string
	logger zerolog.Logger
}

// NewS3Source creates an S3 client from cfg.
func NewS3Source(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3SourceWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewS3SourceWithClient wraps an existing client.
func NewS3SourceWithClient(client S3API, bucket, prefix string, logger zerolog.Logger) *S3Source {
	return &S3Source{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "catalog_s3").Str("bucket", bucket).Logger(),
	}
}

// Snapshot implements Source.
func (s *S3Source) Snapshot(ctx context.Context) ([]Track, error) {
	var tracks []Track
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !isAudioKey(key) {
				continue
			}
			duration, err := s.duration(ctx, key)
			if err != nil {
				s.logger.Warn().Err(err).Str("key", key).Msg("skipping object without duration")
				continue
			}
			tracks = append(tracks, Track{
				ID:         "s3://" + s.bucket + "/" + key,
				Path:       "s3://" + s.bucket + "/" + key,
				Duration:   duration,
				ModifiedAt: aws.ToTime(obj.LastModified),
			})
		}
	}

	s.logger.Debug().Int("tracks", len(tracks)).Msg("listed s3 library")
	return tracks, nil
}

func (s *S3Source) duration(ctx context.Context, key string) (time.Duration, error) {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("head object: %w", err)
	}
	raw, ok := head.Metadata[DurationMetadataKey]
	if !ok {
		return 0, fmt.Errorf("missing %s metadata", DurationMetadataKey)
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("bad %s metadata %q", DurationMetadataKey, raw)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

var audioExtensions = map[string]bool{
	".mp3": true, ".flac": true, ".ogg": true, ".opus": true,
	".wav": true, ".m4a": true, ".aac": true,
}

func isAudioKey(key string) bool {
	return audioExtensions[strings.ToLower(path.Ext(key))]
}
