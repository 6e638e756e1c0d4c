package app

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sirupsen/logrus"
)

type (
	ClientMinio interface {
		BucketExists(ctx context.Context, bucketName string) (bool, error)
		MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
		ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
		PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
		PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (info minio.UploadInfo, err error)
		RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	}

	// ObjectStore is the blob storage used for meal images.
	ObjectStore interface {
		UploadFile(ctx context.Context, key string, object io.Reader, size int64, contentType string) error
		PublicURL(key string) string
		PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error)
		DeleteFile(ctx context.Context, key string) error
		ListObjects(ctx context.Context, prefix string, extensions ...string) ([]ObjectEntry, error)
	}

	ObjectEntry struct {
		Key          string
		Size         int64
		LastModified time.Time
	}

	MinioS3Client struct {
		endpoint   string
		useSSL     bool
		bucketName string
		publicURL  string
		client     ClientMinio
		log        logrus.FieldLogger
	}
)

const defaultContentType = "application/octet-stream"

// NewMinioS3Client creates a new MinioS3Client instance.
func NewMinioS3Client(endpoint, accessKeyID, secretAccessKey, bucketName string, useSSL bool, publicURL string, log logrus.FieldLogger) (*MinioS3Client, error) {
	minioClient, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio s3 client for %s: %w", endpoint, err)
	}
	return NewMinioS3ClientWith(minioClient, endpoint, bucketName, useSSL, publicURL, log), nil
}

// NewMinioS3ClientWith wraps an already constructed client.
func NewMinioS3ClientWith(client ClientMinio, endpoint, bucketName string, useSSL bool, publicURL string, log logrus.FieldLogger) *MinioS3Client {
	return &MinioS3Client{
		endpoint:   endpoint,
		useSSL:     useSSL,
		bucketName: bucketName,
		publicURL:  strings.TrimRight(publicURL, "/"),
		client:     client,
		log:        log.WithField("bucket", bucketName),
	}
}

// EnsureBucket checks the bucket exists and creates it when create is set.
func (s3 *MinioS3Client) EnsureBucket(ctx context.Context, create bool) error {
	exists, err := s3.client.BucketExists(ctx, s3.bucketName)
	if err != nil {
		return fmt.Errorf("can not check bucket %s: %w", s3.bucketName, err)
	}
	if exists {
		return nil
	}
	if !create {
		return fmt.Errorf("bucket %s does not exist", s3.bucketName)
	}
	if err := s3.client.MakeBucket(ctx, s3.bucketName, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("can not create bucket %s: %w", s3.bucketName, err)
	}
	s3.log.Info("bucket created")
	return nil
}

// ListObjects lists keys under prefix. When extensions are given only keys
// with one of those extensions are returned.
func (s3 *MinioS3Client) ListObjects(ctx context.Context, prefix string, extensions ...string) ([]ObjectEntry, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	result := make([]ObjectEntry, 0)
	objectCh := s3.client.ListObjects(ctx, s3.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return result, fmt.Errorf("can not list objects: %w", object.Err)
		}
		if len(extensions) > 0 && !checkIn(object.Key, extensions) {
			continue
		}
		result = append(result, ObjectEntry{
			Key:          object.Key,
			Size:         object.Size,
			LastModified: object.LastModified,
		})
	}
	return result, nil
}

// UploadFile uploads a file to the configured bucket.
func (s3 *MinioS3Client) UploadFile(ctx context.Context, key string, object io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = defaultContentType
	}
	_, err := s3.client.PutObject(ctx,
		s3.bucketName,
		key,
		object,
		size,
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("can not upload %s: %w", key, err)
	}
	s3.log.WithField("key", key).Debug("object uploaded")
	return nil
}

// PublicURL is the permanent address of key. The bucket must allow anonymous reads.
func (s3 *MinioS3Client) PublicURL(key string) string {
	base := s3.publicURL
	if base == "" {
		scheme := "http"
		if s3.useSSL {
			scheme = "https"
		}
		base = fmt.Sprintf("%s://%s", scheme, s3.endpoint)
	}
	return fmt.Sprintf("%s/%s/%s", base, s3.bucketName, url.PathEscape(key))
}

func (s3 *MinioS3Client) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignedURL, err := s3.client.PresignedGetObject(ctx, s3.bucketName, key, expires, make(url.Values))
	if err != nil {
		return "", fmt.Errorf("can not presign %s: %w", key, err)
	}
	return presignedURL.String(), nil
}

func (s3 *MinioS3Client) DeleteFile(ctx context.Context, key string) error {
	if err := s3.client.RemoveObject(ctx, s3.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("can not remove %s: %w", key, err)
	}
	s3.log.WithField("key", key).Debug("object removed")
	return nil
}

func checkIn(key string, extensions []string) bool {
	parsed := strings.Split(key, ".")
	if len(parsed) > 1 {
		for _, ext := range extensions {
			if strings.EqualFold(ext, parsed[len(parsed)-1]) {
				return true
			}
		}
	}
	return false
}
