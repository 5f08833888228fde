// Package s3 provides a storage service backed by Amazon S3 or any
// S3-compatible object store (MinIO, Localstack, Cubbit DS3).
//
// Unlike the filesystem and memory services, S3 can mint presigned URLs, so
// clients may upload and download blobs without proxying the bytes through
// the server.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/castellan-io/castellan/pkg/domain"
	"github.com/castellan-io/castellan/pkg/storage"
)

// Config holds the S3 service configuration. The client is constructed by
// the config layer so endpoint and credential wiring stays in one place.
type Config struct {
	// Name is the configured service name.
	Name string

	// Client is the configured S3 client.
	Client *awss3.Client

	// Bucket must already exist; it is not created here.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys.
	KeyPrefix string
}

// Service stores blobs as S3 objects.
type Service struct {
	name      string
	client    *awss3.Client
	presign   *awss3.PresignClient
	bucket    string
	keyPrefix string
}

// NewService verifies bucket access and returns the service.
func NewService(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Client == nil {
		return nil, domain.InvalidArgument("s3 storage service %q: client is required", cfg.Name)
	}
	if cfg.Bucket == "" {
		return nil, domain.InvalidArgument("s3 storage service %q: bucket is required", cfg.Name)
	}

	_, err := cfg.Client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, domain.BackendUnavailable(err, "accessing bucket %q", cfg.Bucket)
	}

	return &Service{
		name:      cfg.Name,
		client:    cfg.Client,
		presign:   awss3.NewPresignClient(cfg.Client),
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
	}, nil
}

func (s *Service) Name() string { return s.name }
func (s *Service) Type() string { return "s3" }

func (s *Service) objectKey(id string) string {
	return s.keyPrefix + id
}

func (s *Service) Store(ctx context.Context, r io.Reader) (string, error) {
	// PutObject needs a seekable body for signing, so the blob is buffered.
	// Large uploads should use a presigned URL instead.
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return "", fmt.Errorf("buffering blob: %w", err)
	}

	id := uuid.NewString()
	_, err := s.client.PutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return "", domain.BackendUnavailable(err, "storing blob in bucket %q", s.bucket)
	}
	return id, nil
}

func (s *Service) Retrieve(ctx context.Context, id string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, domain.NotFound("blob", id)
		}
		return nil, domain.BackendUnavailable(err, "retrieving blob %q", id)
	}
	return out.Body, nil
}

func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	// S3 DeleteObject succeeds for missing keys, which is the idempotency
	// the delete pipeline relies on.
	_, err := s.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	})
	if err != nil {
		return false, domain.BackendUnavailable(err, "deleting blob %q", id)
	}
	return true, nil
}

func (s *Service) Copy(ctx context.Context, id string, dst storage.Service) (string, error) {
	if sibling, ok := dst.(*Service); ok && sibling.client == s.client {
		// Same client means same endpoint and credentials; let S3 copy
		// server side.
		newID := uuid.NewString()
		_, err := s.client.CopyObject(ctx, &awss3.CopyObjectInput{
			Bucket:     aws.String(sibling.bucket),
			Key:        aws.String(sibling.objectKey(newID)),
			CopySource: aws.String(s.bucket + "/" + s.objectKey(id)),
		})
		if err != nil {
			return "", domain.BackendUnavailable(err, "copying blob %q", id)
		}
		return newID, nil
	}
	return storage.CopyContents(ctx, s, id, dst)
}

func (s *Service) SupportsDirectDownload() bool { return true }
func (s *Service) SupportsDirectUpload() bool   { return true }

func (s *Service) DirectDownloadURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", domain.BackendUnavailable(err, "presigning download for blob %q", id)
	}
	return req.URL, nil
}

func (s *Service) DirectUploadURL(ctx context.Context, id string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignPutObject(ctx, &awss3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(id)),
	}, awss3.WithPresignExpires(ttl))
	if err != nil {
		return "", domain.BackendUnavailable(err, "presigning upload for blob %q", id)
	}
	return req.URL, nil
}
