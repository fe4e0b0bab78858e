package auth

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig points avatar storage at an S3 compatible bucket
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

// MinioAvatarStorage stores avatars as objects in a bucket
type MinioAvatarStorage struct {
	client *minio.Client
	cfg    MinioConfig
}

var _ AvatarStorage = (*MinioAvatarStorage)(nil)

func NewMinioAvatarStorage(cfg MinioConfig) (*MinioAvatarStorage, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, goerrors.New("avatar storage needs an endpoint and a bucket", goerrors.CategoryBadInput)
	}

	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse avatar storage endpoint")
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to init avatar storage client")
	}

	if cfg.PublicURL == "" {
		scheme := "http"
		if useSSL {
			scheme = "https"
		}
		cfg.PublicURL = fmt.Sprintf("%s://%s/%s", scheme, endpoint, cfg.Bucket)
	}

	return &MinioAvatarStorage{
		client: client,
		cfg:    cfg,
	}, nil
}

// EnsureBucket creates the avatar bucket when missing.
func (s *MinioAvatarStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to check avatar bucket")
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to create avatar bucket")
	}
	return nil
}

func (s *MinioAvatarStorage) Save(ctx context.Context, name string, content io.Reader, size int64) (string, error) {
	if size <= 0 {
		size = -1
	}

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, name, content, size, minio.PutObjectOptions{
		ContentType: AvatarContentType(name),
	})
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryOperation, "failed to upload avatar")
	}

	return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + name, nil
}
