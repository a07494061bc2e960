package backup

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MirrorConfig points at an S3-compatible bucket that receives a copy
// of every snapshot.
type MirrorConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

func (c MirrorConfig) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("mirror endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return fmt.Errorf("mirror endpoint must not include scheme: %q", c.Endpoint)
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("mirror access key is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("mirror secret key is required")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("mirror bucket is required")
	}
	return nil
}

// Mirror uploads snapshot files to object storage.
type Mirror struct {
	client *minio.Client
	bucket string
	prefix string
}

func NewMirror(cfg MirrorConfig) (*Mirror, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("mirror client: %w", err)
	}
	return &Mirror{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

// EnsureBucket creates the target bucket when it does not exist yet.
func (m *Mirror) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check mirror bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create mirror bucket: %w", err)
	}
	return nil
}

// Upload copies one snapshot file into the bucket and returns its
// object key.
func (m *Mirror) Upload(ctx context.Context, entry Backup, filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open snapshot: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", fmt.Errorf("stat snapshot: %w", err)
	}

	key := m.objectKey(entry)
	_, err = m.client.PutObject(ctx, m.bucket, key, file, info.Size(), minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}

func (m *Mirror) objectKey(entry Backup) string {
	name := fmt.Sprintf("%s-%s.tmsl.zst", entry.TakenAt.Format("20060102T150405Z"), entry.ID)
	return path.Join(m.prefix, entry.WorkspaceID, entry.ModelID, name)
}
