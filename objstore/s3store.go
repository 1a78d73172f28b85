package objstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/bbc/tams-core/cmn/nlog"
)

// ErrNotExist is returned by Head/Get when the key is absent.
var ErrNotExist = errors.New("objstore: object does not exist")

// S3Store is the aws-sdk-go-v2-backed Store implementation. One instance
// per StorageBackend row; multiple instances coexist when more than one
// backend is configured.
type S3Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	uploader *manager.Uploader
	bucket   string
}

// S3Options configures NewS3Store. EndpointURL is optional: leave empty to
// use AWS's regional endpoints, set it to point at a MinIO or other
// S3-compatible service.
type S3Options struct {
	Bucket      string
	EndpointURL string
	AccessKey   string
	SecretKey   string
	UseSSL      bool
	Region      string
}

func NewS3Store(ctx context.Context, opt S3Options) (*S3Store, error) {
	if opt.Region == "" {
		opt.Region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opt.Region),
	}
	if opt.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opt.AccessKey, opt.SecretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("objstore: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opt.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opt.EndpointURL)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		uploader: manager.NewUploader(client),
		bucket:   opt.Bucket,
	}, nil
}

func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("objstore: head bucket %s: %w", s.bucket, err)
	}
	nlog.Infof("objstore: creating bucket %s", s.bucket)
	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("objstore: create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *S3Store) PresignPut(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	out, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("objstore: presign put %s: %w", objectID, err)
	}
	return out.URL, nil
}

func (s *S3Store) PresignGet(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	out, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("objstore: presign get %s: %w", objectID, err)
	}
	return out.URL, nil
}

func (s *S3Store) Put(ctx context.Context, objectID string, src io.Reader, size int64) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectID),
		Body:          src,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return fmt.Errorf("objstore: put %s: %w", objectID, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, objectID string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("objstore: get %s: %w", objectID, err)
	}
	return out.Body, nil
}

func (s *S3Store) Head(ctx context.Context, objectID string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, ErrNotExist
		}
		return 0, fmt.Errorf("objstore: head %s: %w", objectID, err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return *out.ContentLength, nil
}

func (s *S3Store) Exists(ctx context.Context, objectID string) (bool, error) {
	_, err := s.Head(ctx, objectID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (s *S3Store) Delete(ctx context.Context, objectID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectID),
	})
	if err != nil {
		return fmt.Errorf("objstore: delete %s: %w", objectID, err)
	}
	return nil
}

func (s *S3Store) Copy(ctx context.Context, srcObjectID, dstObjectID string) error {
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dstObjectID),
		CopySource: aws.String(s.bucket + "/" + srcObjectID),
	})
	if err != nil {
		return fmt.Errorf("objstore: copy %s -> %s: %w", srcObjectID, dstObjectID, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
