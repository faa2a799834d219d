// Package backup pushes weekly recommendation snapshots to S3 so a lost
// data directory never loses a published recommendation.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/aristath/lookout/internal/domain"
)

// S3Uploader writes recommendation JSON to an S3 bucket.
type S3Uploader struct {
	client *s3.Client
	bucket string
	prefix string
	log    zerolog.Logger
}

// NewS3Uploader creates an uploader using the default AWS credential
// chain (env, shared config, instance role).
func NewS3Uploader(ctx context.Context, bucket, prefix, region string, log zerolog.Logger) (*S3Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	return &S3Uploader{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		log:    log.With().Str("component", "backup").Logger(),
	}, nil
}

// UploadRecommendation stores one week's recommendation as
// <prefix>/<week>.json, overwriting any earlier upload for the week.
func (u *S3Uploader) UploadRecommendation(ctx context.Context, rec *domain.Recommendation) error {
	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal recommendation: %w", err)
	}

	key := path.Join(u.prefix, string(rec.Week)+".json")
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload recommendation: %w", err)
	}

	u.log.Info().
		Str("bucket", u.bucket).
		Str("key", key).
		Int("bytes", len(body)).
		Msg("Recommendation backed up")
	return nil
}
