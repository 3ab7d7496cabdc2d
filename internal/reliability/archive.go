// Package reliability provides durability helpers: the optimization result
// archive on S3-compatible storage and cache database maintenance.
package reliability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aristath/quantwand/internal/modules/optimization"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

const archivePrefix = "runs"

// ArchiveConfig locates the bucket. Endpoint is empty for AWS and set for R2
// or other S3-compatible stores.
type ArchiveConfig struct {
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
}

// ArchivedRun is one stored optimization result.
type ArchivedRun struct {
	Key          string    `json:"key"`
	RunID        string    `json:"run_id"`
	SizeBytes    int64     `json:"size_bytes"`
	LastModified time.Time `json:"last_modified"`
}

// ResultArchive uploads optimization results as JSON objects keyed
// runs/YYYY/MM/DD/<runId>.json.
type ResultArchive struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewResultArchive builds an S3 client for cfg.
func NewResultArchive(ctx context.Context, cfg ArchiveConfig, log zerolog.Logger) (*ResultArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ResultArchive{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		log:      log.With().Str("service", "result_archive").Logger(),
	}, nil
}

// ObjectKey returns the storage key for a run.
func ObjectKey(runID string, generatedAt time.Time) string {
	return path.Join(archivePrefix, generatedAt.UTC().Format("2006/01/02"), runID+".json")
}

// Archive uploads one result.
func (a *ResultArchive) Archive(ctx context.Context, result *optimization.OptimizationResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	key := ObjectKey(result.RunID, result.GeneratedAt)
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	a.log.Info().
		Str("key", key).
		Int("size_bytes", len(body)).
		Msg("Archived optimization result")
	return nil
}

// List returns the runs archived on the given day.
func (a *ResultArchive) List(ctx context.Context, day time.Time) ([]ArchivedRun, error) {
	prefix := path.Join(archivePrefix, day.UTC().Format("2006/01/02")) + "/"

	var runs []ArchivedRun
	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			run := ArchivedRun{
				Key:       key,
				RunID:     strings.TrimSuffix(path.Base(key), ".json"),
				SizeBytes: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				run.LastModified = *obj.LastModified
			}
			runs = append(runs, run)
		}
	}
	return runs, nil
}
