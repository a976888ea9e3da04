package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioBackend implements Backend on a MinIO (or any S3-compatible) bucket.
// Object storage has no commit history, so the change message is kept as
// object metadata.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend creates a MinIO client, ensures the bucket exists with a public-read
// policy, and returns a ready-to-use backend.
func NewMinioBackend(ctx context.Context, endpoint, accessKey, secretKey, bucket string, useSSL bool, logger *zap.Logger) (*MinioBackend, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", bucket, err)
		}
		logger.Info("storage: created bucket", zap.String("bucket", bucket))
	}

	if err := client.SetBucketPolicy(ctx, bucket, publicReadPolicy(bucket)); err != nil {
		return nil, fmt.Errorf("set bucket policy: %w", err)
	}

	return &MinioBackend{client: client, bucket: bucket}, nil
}

// Put uploads content under key, replacing any existing object.
func (b *MinioBackend) Put(ctx context.Context, key string, content []byte, message string) error {
	_, err := b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(content), int64(len(content)), minio.PutObjectOptions{
		ContentType:  http.DetectContentType(content),
		UserMetadata: map[string]string{"message": message},
	})
	if err != nil {
		return classifyMinio(err, fmt.Errorf("put object %q: %w", key, err))
	}
	return nil
}

// classifyMinio marks access and bucket errors as permanent. ToErrorResponse
// does not unwrap, so it inspects the raw client error.
func classifyMinio(raw, wrapped error) error {
	switch minio.ToErrorResponse(raw).Code {
	case "AccessDenied", "NoSuchBucket", "InvalidAccessKeyId", "SignatureDoesNotMatch", "InvalidBucketName":
		return fmt.Errorf("%w: %w", ErrRejected, wrapped)
	}
	return wrapped
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}

var _ Backend = (*MinioBackend)(nil)
