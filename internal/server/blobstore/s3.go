package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/buildvault/buildvault/internal/common"
)

// Test seams for AWS client construction.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// s3API is the subset of the S3 client used by the store.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options carry the settings for an S3-compatible backend (MinIO in dev).
type S3Options struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Store is the production Client implementation.
type S3Store struct {
	api    s3API
	bucket string
}

// NewS3Store builds an S3-backed content store with static credentials and a
// custom base endpoint, matching the MinIO deployment used in development.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(opts.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.RootUser,
			opts.RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{api: client, bucket: opts.Bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, data []byte) (*PutResult, error) {
	cid := ContentID(data)
	key, err := objectKey(cid)
	if err != nil {
		return nil, err
	}

	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, classifyS3Error(err)
	}

	return &PutResult{ContentID: cid, Size: int64(len(data))}, nil
}

func (s *S3Store) Get(ctx context.Context, contentID string) ([]byte, error) {
	key, err := objectKey(contentID)
	if err != nil {
		return nil, err
	}

	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3Error(err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading object body: %v", common.ErrStorageUnavailable, err)
	}
	return data, nil
}

// classifyS3Error maps backend failures onto the shared taxonomy so the
// coordinator can decide what is retryable.
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "QuotaExceeded", "EntityTooLarge", "MaxUploadSizeExceeded":
			return fmt.Errorf("%w: %v", common.ErrQuotaExceeded, err)
		case "NoSuchKey":
			return fmt.Errorf("%w: %v", common.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%w: %v", common.ErrStorageUnavailable, err)
}
