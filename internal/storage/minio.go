package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioOptions 描述连接 S3 兼容服务所需的参数。
type MinioOptions struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UseSSL       bool
	PathStyle    bool
	PartSize     uint64
	CreateBucket bool
}

// MinioClient 使用 minio-go 实现 ObjectClient。
type MinioClient struct {
	client   *minio.Client
	bucket   string
	partSize uint64
}

// NewMinioClient 构建客户端并确认 bucket 可用，失败属于启动期配置错误。
func NewMinioClient(ctx context.Context, opts MinioOptions) (*MinioClient, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	lookup := minio.BucketLookupAuto
	if opts.PathStyle {
		lookup = minio.BucketLookupPath
	}

	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure:       opts.UseSSL,
		Region:       opts.Region,
		BucketLookup: lookup,
		Transport:    newObjectTransport(),
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}

	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		if !opts.CreateBucket {
			return nil, fmt.Errorf("bucket %s does not exist", opts.Bucket)
		}
		if err := client.MakeBucket(ctx, opts.Bucket, minio.MakeBucketOptions{Region: opts.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", opts.Bucket, err)
		}
	}

	return &MinioClient{
		client:   client,
		bucket:   opts.Bucket,
		partSize: opts.PartSize,
	}, nil
}

// GetObject 通过 Stat 触发首个 GET 请求以便尽早识别 NoSuchKey；
// 正文随后从同一个响应流中读取。
func (m *MinioClient) GetObject(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, translateMinioError(err)
	}
	if _, err := obj.Stat(); err != nil {
		obj.Close()
		return nil, translateMinioError(err)
	}
	return obj, nil
}

func (m *MinioClient) StatObject(ctx context.Context, key string) (bool, error) {
	_, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}
	if isMinioNotFound(err) {
		return false, nil
	}
	return false, err
}

// PutObject 以 -1 长度上传，minio-go 会按 partSize 切分为 multipart 上传，
// 只有最后一块完成后对象才可见；中途失败会中止该 multipart 上传。
func (m *MinioClient) PutObject(ctx context.Context, key string, body io.Reader) error {
	_, err := m.client.PutObject(ctx, m.bucket, key, body, -1, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		PartSize:    m.partSize,
	})
	return err
}

func translateMinioError(err error) error {
	if isMinioNotFound(err) {
		return ErrNotFound
	}
	return err
}

func isMinioNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
}
