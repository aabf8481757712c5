package audiostore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/nadzzz/helpline/internal/config"
)

// S3 stores objects in an S3-compatible bucket (AWS, MinIO, R2).
type S3 struct {
	client    *minio.Client
	bucket    string
	publicURL string // empty: objects are proxied through /responses/
	baseURL   string
}

// NewS3 connects to the bucket and checks that it exists.
func NewS3(ctx context.Context, cfg config.S3Config, baseURL string) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %q does not exist", cfg.Bucket)
	}

	return &S3{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		baseURL:   baseURL,
	}, nil
}

// Name returns the backend identifier.
func (s *S3) Name() string { return "s3" }

// Put uploads data under a fresh uuid key.
func (s *S3) Put(ctx context.Context, data []byte, ext, contentType string) (*Object, error) {
	name := uuid.NewString() + ext
	if !ValidName(name) {
		return nil, fmt.Errorf("unsupported audio extension %q", ext)
	}
	_, err := s.client.PutObject(ctx, s.bucket, name, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"uploaded-at": time.Now().UTC().Format(time.RFC3339)},
	})
	if err != nil {
		return nil, fmt.Errorf("upload failed: %w", err)
	}
	return &Object{Name: name, ContentType: contentType, URL: s.objectURL(name)}, nil
}

// Open streams an object from the bucket.
func (s *S3) Open(ctx context.Context, name string) (io.ReadCloser, *Object, error) {
	if !ValidName(name) {
		return nil, nil, ErrNotFound
	}
	obj, err := s.client.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get object: %w", err)
	}
	info, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("stat object: %w", err)
	}
	ct := info.ContentType
	if ct == "" {
		ct = ContentTypeFor(path.Ext(name))
	}
	return obj, &Object{Name: name, ContentType: ct, URL: s.objectURL(name)}, nil
}

// Sweep deletes generated objects older than maxAge.
func (s *S3) Sweep(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{}) {
		if obj.Err != nil {
			return removed, fmt.Errorf("listing objects: %w", obj.Err)
		}
		if !ValidName(obj.Key) || obj.LastModified.After(cutoff) {
			continue
		}
		if err := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, fmt.Errorf("removing %s: %w", obj.Key, err)
		}
		removed++
	}
	return removed, nil
}

// Ping checks that the bucket is still reachable.
func (s *S3) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("checking bucket: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}

func (s *S3) objectURL(name string) string {
	if s.publicURL == "" {
		return relativeURL(s.baseURL, name)
	}
	return s.publicURL + "/" + url.PathEscape(name)
}
