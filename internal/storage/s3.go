package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/theblitlabs/zemog-worker/internal/core/config"
	"github.com/theblitlabs/zemog-worker/internal/core/models"
	"github.com/theblitlabs/zemog-worker/pkg/logger"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type S3Store struct {
	client S3API
}

func NewS3Store(client S3API) *S3Store {
	return &S3Store{client: client}
}

// NewS3StoreFromConfig builds a store on top of a loaded AWS config, honouring
// the endpoint override and path-style addressing used against local S3 stand-ins.
func NewS3StoreFromConfig(awsCfg aws.Config, cfg config.AWSConfig) *S3Store {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3Store(client)
}

func (s *S3Store) Stat(ctx context.Context, loc models.BlobLocation) (*models.BlobInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return nil, wrapError("stat", loc.Bucket, loc.Key, err)
	}

	return &models.BlobInfo{
		LastModified: aws.ToTime(out.LastModified),
		Size:         aws.ToInt64(out.ContentLength),
	}, nil
}

func (s *S3Store) Download(ctx context.Context, loc models.BlobLocation, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Bucket),
		Key:    aws.String(loc.Key),
	})
	if err != nil {
		return wrapError("download", loc.Bucket, loc.Key, err)
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return wrapError("download", loc.Bucket, loc.Key, fmt.Errorf("read body: %w", err))
	}
	return nil
}

func (s *S3Store) UploadFile(ctx context.Context, loc models.BlobLocation, path string, expires time.Time) error {
	log := logger.WithComponent("storage")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	contentType := "application/octet-stream"
	if mt, err := mimetype.DetectFile(path); err == nil {
		contentType = mt.String()
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(loc.Bucket),
		Key:         aws.String(loc.Key),
		Body:        f,
		ContentType: aws.String(contentType),
		Expires:     aws.Time(expires),
	})
	if err != nil {
		return wrapError("upload", loc.Bucket, loc.Key, err)
	}

	log.Debug().
		Str("bucket", loc.Bucket).
		Str("key", loc.Key).
		Str("content_type", contentType).
		Msg("Uploaded object")
	return nil
}
