package download

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
)

// QuotaProvider 查询平台的存储用量与配额
type QuotaProvider interface {
	Estimate(ctx context.Context) (usage, quota int64, err error)
}

// DirQuotaProvider 以媒体缓存目录的实际占用为用量，
// 配额取自配置。没有系统级配额API时的默认实现。
type DirQuotaProvider struct {
	Dir        string
	QuotaBytes int64
}

// Estimate 遍历缓存目录统计占用字节数
func (p *DirQuotaProvider) Estimate(ctx context.Context) (int64, int64, error) {
	var usage int64
	err := filepath.WalkDir(p.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		usage += info.Size()
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to measure cache usage: %w", err)
	}
	return usage, p.QuotaBytes, nil
}
