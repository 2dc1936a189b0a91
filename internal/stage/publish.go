package stage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/flarebyte/apk-forge/internal/config"
)

const apkContentType = "application/vnd.android.package-archive"

// Uploader stores a local file under key.
type Uploader interface {
	Upload(ctx context.Context, key, path string) error
}

// PublishStage uploads the final archive to S3-compatible storage.
type PublishStage struct {
	status
	env Env
	key string
}

func NewPublishStage(env Env) *PublishStage {
	return &PublishStage{status: status{name: NamePublish}, env: env}
}

// Key returns the object key of the last upload.
func (s *PublishStage) Key() string { return s.key }

func (s *PublishStage) Prepare(ctx context.Context) error {
	s.reset()
	p := s.env.Config.Project
	s.key = objectKey(s.env.Config.Publish.Prefix, fmt.Sprintf("%s-%s-%d.apk", p.Name, p.VersionName, p.VersionCode))
	if !fileExists(s.env.Config.ArchivePath()) {
		return ioError(s.name, fmt.Errorf("missing input %s", s.env.Config.ArchivePath()))
	}
	return nil
}

func (s *PublishStage) Run(ctx context.Context) error {
	up := s.env.Uploader
	if up == nil {
		store, err := NewS3Uploader(s.env.Config.Publish)
		if err != nil {
			return ioError(s.name, err)
		}
		up = store
	}
	s.env.progress(s.name, "Uploading "+s.key)
	if err := up.Upload(ctx, s.key, s.env.Config.ArchivePath()); err != nil {
		msg := "upload " + s.key + ": " + err.Error()
		s.env.log().Error(s.name, msg)
		s.fail(msg)
		return nil
	}
	s.env.log().Debug(s.name, "uploaded "+s.key)
	return nil
}

// S3Uploader writes objects with minio-go.
type S3Uploader struct {
	client   *minio.Client
	bucket   string
	region   string
	initOnce sync.Once
	initErr  error
}

// NewS3Uploader validates cfg and builds a client. No request is made yet.
func NewS3Uploader(cfg config.Publish) (*S3Uploader, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Uploader{client: client, bucket: bucket, region: region}, nil
}

func (u *S3Uploader) ensureBucket(ctx context.Context) error {
	u.initOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.initErr = err
			return
		}
		if !exists {
			u.initErr = u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{Region: u.region})
		}
	})
	return u.initErr
}

func (u *S3Uploader) Upload(ctx context.Context, key, path string) error {
	if err := u.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := u.client.FPutObject(ctx, u.bucket, key, path, minio.PutObjectOptions{ContentType: apkContentType})
	return err
}

// objectKey joins prefix and name with single slashes.
func objectKey(prefix, name string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func init() {
	Register(NamePublish, func(env Env) Stage { return NewPublishStage(env) })
}
