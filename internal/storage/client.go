package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config 对象存储配置
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
}

// Client 对象存储客户端（S3 兼容）
type Client struct {
	mc     *minio.Client
	logger *zap.Logger
}

// NewClient 创建对象存储客户端
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &Client{mc: mc, logger: logger}, nil
}

// EnsureBuckets 检查并创建存储桶
func (c *Client) EnsureBuckets(ctx context.Context, buckets ...string) error {
	for _, bucket := range buckets {
		exists, err := c.mc.BucketExists(ctx, bucket)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", bucket, err)
		}
		if !exists {
			if err := c.mc.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
				return fmt.Errorf("create bucket %s: %w", bucket, err)
			}
			c.logger.Info("Created bucket", zap.String("bucket", bucket))
		}
	}
	return nil
}

// List 列出前缀下的全部对象路径
func (c *Client) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	objectCh := c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	})

	var paths []string
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("list objects %s/%s: %w", bucket, prefix, object.Err)
		}
		paths = append(paths, object.Key)
	}

	return paths, nil
}

// Upload 上传对象
func (c *Client) Upload(ctx context.Context, bucket, path string, reader io.Reader, size int64, contentType string) error {
	_, err := c.mc.PutObject(ctx, bucket, path, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", bucket, path, err)
	}
	return nil
}

// Remove 删除多个对象
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	for _, path := range paths {
		if err := c.mc.RemoveObject(ctx, bucket, path, minio.RemoveObjectOptions{}); err != nil {
			return fmt.Errorf("remove %s/%s: %w", bucket, path, err)
		}
	}
	return nil
}

// Move 移动（重命名）单个对象
// S3 接口没有原生 move，用 copy + remove 实现
func (c *Client) Move(ctx context.Context, bucket, from, to string) error {
	src := minio.CopySrcOptions{Bucket: bucket, Object: from}
	dst := minio.CopyDestOptions{Bucket: bucket, Object: to}

	if _, err := c.mc.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("copy %s/%s: %w", bucket, from, err)
	}
	if err := c.mc.RemoveObject(ctx, bucket, from, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove after copy %s/%s: %w", bucket, from, err)
	}
	return nil
}

// SignedURL 生成带有效期的下载链接
func (c *Client) SignedURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, bucket, path, ttl, nil)
	if err != nil {
		return "", fmt.Errorf("sign url %s/%s: %w", bucket, path, err)
	}
	return u.String(), nil
}
