package download

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"Bt1QPlayer/api"
)

// Fetcher 按媒体定位符拉取媒体字节并写入 w，
// 边拉取边通过 progress 上报已写入字节数与总长度（未知时为 -1）。
type Fetcher interface {
	Fetch(ctx context.Context, mediaURL string, w io.Writer, progress func(written, total int64)) (int64, error)
}

// progressWriter 包装目标 writer，按写入字节数触发进度回调
type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	progress func(written, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.progress != nil && n > 0 {
		p.progress(p.written, p.total)
	}
	return n, err
}

// HTTPFetcher 通过HTTP流式下载媒体，请求附带 bearer 令牌
type HTTPFetcher struct {
	client *http.Client
	creds  api.CredentialProvider
}

// NewHTTPFetcher 创建HTTP下载器。下载整体超时由调用方的 ctx 控制，
// 这里不设置客户端级超时，避免大文件被误杀。
func NewHTTPFetcher(creds api.CredentialProvider) *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{},
		creds:  creds,
	}
}

// Fetch 下载 mediaURL 指向的资源
func (f *HTTPFetcher) Fetch(ctx context.Context, mediaURL string, w io.Writer, progress func(written, total int64)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create download request: %w", err)
	}
	if f.creds != nil {
		token, err := f.creds.Token(ctx)
		if err != nil {
			return 0, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d downloading %s", resp.StatusCode, mediaURL)
	}

	pw := &progressWriter{w: w, total: resp.ContentLength, progress: progress}
	written, err := io.Copy(pw, resp.Body)
	if err != nil {
		return written, fmt.Errorf("download interrupted: %w", err)
	}
	return written, nil
}

// MinioFetcher 直接从 1QFM 的对象存储拉取媒体，
// 媒体定位符为桶内对象键。适用于与服务端同网段的部署。
type MinioFetcher struct {
	client *minio.Client
	bucket string
}

// MinioOptions MinIO连接配置
type MinioOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// NewMinioFetcher 初始化 MinIO 客户端并校验存储桶
func NewMinioFetcher(opts MinioOptions) (*MinioFetcher, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	exists, err := client.BucketExists(ctx, opts.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", opts.Bucket, err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", opts.Bucket)
	}

	return &MinioFetcher{client: client, bucket: opts.Bucket}, nil
}

// Fetch 拉取对象，objectKey 即媒体定位符
func (f *MinioFetcher) Fetch(ctx context.Context, objectKey string, w io.Writer, progress func(written, total int64)) (int64, error) {
	stat, err := f.client.StatObject(ctx, f.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to stat object %s: %w", objectKey, err)
	}

	obj, err := f.client.GetObject(ctx, f.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return 0, fmt.Errorf("failed to get object %s: %w", objectKey, err)
	}
	defer obj.Close()

	pw := &progressWriter{w: w, total: stat.Size, progress: progress}
	written, err := io.Copy(pw, obj)
	if err != nil {
		return written, fmt.Errorf("object download interrupted: %w", err)
	}
	return written, nil
}
