package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
)

type fakeS3 struct {
	objects  []types.Object
	metadata map[string]map[string]string
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return &s3.ListObjectsV2Output{Contents: f.objects, IsTruncated: aws.Bool(false)}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return &s3.HeadObjectOutput{Metadata: f.metadata[aws.ToString(params.Key)]}, nil
}

func TestS3SourceSnapshot(t *testing.T) {
	modified := time.Date(2026, 2, 2, 0, 0, 0, 0, time.UTC)
	client := &fakeS3{
		objects: []types.Object{
			{Key: aws.String("station/a.mp3"), LastModified: aws.Time(modified)},
			{Key: aws.String("station/cover.jpg"), LastModified: aws.Time(modified)},
			{Key: aws.String("station/nometa.ogg"), LastModified: aws.Time(modified)},
		},
		metadata: map[string]map[string]string{
			"station/a.mp3": {DurationMetadataKey: "180000"},
		},
	}

	src := NewS3SourceWithClient(client, "library", "station/", zerolog.Nop())
	tracks, err := src.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	if tracks[0].ID != "s3://library/station/a.mp3" {
		t.Errorf("ID = %q", tracks[0].ID)
	}
	if tracks[0].Duration != 3*time.Minute {
		t.Errorf("Duration = %s", tracks[0].Duration)
	}
}
