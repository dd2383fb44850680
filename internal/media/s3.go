package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// S3Config holds the connection settings for an S3-compatible object
// store such as MinIO.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

// S3Store implements Store against any S3-compatible server. Path-style
// addressing keeps it working with MinIO's single-host endpoints.
type S3Store struct {
	client    *s3.S3
	uploader  *s3manager.Uploader
	bucket    string
	urlExpiry time.Duration
}

// NewS3 creates a new S3-backed media store.
func NewS3(cfg S3Config) (*S3Store, error) {
	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, ""),
		S3ForcePathStyle: aws.Bool(true),
		DisableSSL:       aws.Bool(!cfg.UseSSL),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 session: %w", err)
	}

	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	return &S3Store{
		client:    s3.New(sess),
		uploader:  s3manager.NewUploader(sess),
		bucket:    cfg.Bucket,
		urlExpiry: expiry,
	}, nil
}

// Ensure creates the bucket if it does not exist yet.
func (s *S3Store) Ensure(ctx context.Context) error {
	_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}

	if _, err := s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	}); err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) {
			switch aerr.Code() {
			case s3.ErrCodeBucketAlreadyExists, s3.ErrCodeBucketAlreadyOwnedByYou:
				return nil
			}
		}
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	slog.Info("Media bucket created", "bucket", s.bucket)
	return nil
}

// Upload stores data under key and returns the stored object with a
// presigned retrieval URL.
func (s *S3Store) Upload(ctx context.Context, data []byte, mimetype, key string) (*Object, error) {
	if key == "" {
		key = fmt.Sprintf("%s.%s", uuid.NewString(), ExtensionFor(mimetype))
	}

	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mimetype),
	})
	if err != nil {
		return nil, fmt.Errorf("upload object %q: %w", key, err)
	}

	url, err := s.URL(ctx, key, s.urlExpiry)
	if err != nil {
		return nil, err
	}

	return &Object{
		Key:      key,
		URL:      url,
		Size:     int64(len(data)),
		Mimetype: mimetype,
	}, nil
}

// URL returns a presigned GET URL for key, valid for ttl.
func (s *S3Store) URL(_ context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = s.urlExpiry
	}
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("presign object %q: %w", key, err)
	}
	return url, nil
}

// Delete removes the object under key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

// List returns the objects whose keys start with prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]Object, error) {
	var objects []Object
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	err := s.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, _ bool) bool {
			for _, obj := range page.Contents {
				objects = append(objects, Object{
					Key:          aws.StringValue(obj.Key),
					Size:         aws.Int64Value(obj.Size),
					LastModified: aws.TimeValue(obj.LastModified),
				})
			}
			return true
		})
	if err != nil {
		return nil, fmt.Errorf("list objects with prefix %q: %w", prefix, err)
	}
	return objects, nil
}
