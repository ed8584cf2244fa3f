package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/focusmon/screenwatch/internal/domain/vision"
)

// MinioSource reads captures out of object storage; the locator is the
// object key written by the ingestion service.
type MinioSource struct {
	client     *minio.Client
	bucketName string
	region     string
}

// NewMinio buat koneksi MinIO
func NewMinio(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*MinioSource, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	return &MinioSource{client: cli, bucketName: bucket, region: region}, nil
}

// Fetch implementasi vision.ImageSource
func (s *MinioSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucketName, locator, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vision.ErrResourceUnavailable, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		var mErr minio.ErrorResponse
		if errors.As(err, &mErr) && mErr.Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: object %s", vision.ErrResourceUnavailable, locator)
		}
		return nil, fmt.Errorf("reading object %s: %w", locator, err)
	}
	return data, nil
}
