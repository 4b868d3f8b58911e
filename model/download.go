package model

import "time"

// DownloadStatus 下载状态
type DownloadStatus string

const (
	DownloadQueued      DownloadStatus = "queued"
	DownloadDownloading DownloadStatus = "downloading"
	DownloadCompleted   DownloadStatus = "completed"
	DownloadFailed      DownloadStatus = "failed"
)

// DownloadRecord 表示一条离线歌曲记录。媒体字节落在本地缓存目录，
// 记录只保存元数据；只有文件写入成功后记录才会入库。
type DownloadRecord struct {
	SongID        string         `json:"songId"`
	Title         string         `json:"title"`
	Artist        string         `json:"artist"`
	FilePath      string         `json:"filePath"`      // 媒体文件在缓存目录中的路径
	ContentLength int64          `json:"contentLength"` // 字节数
	Status        DownloadStatus `json:"status"`
	Progress      int            `json:"progress"` // 0-100
	Error         string         `json:"error,omitempty"`
	DownloadedAt  time.Time      `json:"downloadedAt"`
}

// ProgressUpdate 下载进度回调载荷，progress 单调不减，
// 以 completed 或 failed 之一终结。
type ProgressUpdate struct {
	SongID   string         `json:"songId"`
	Status   DownloadStatus `json:"status"`
	Progress int            `json:"progress"`
	Error    string         `json:"error,omitempty"`
}

// StorageStats 离线存储统计信息
type StorageStats struct {
	UsageBytes   int64   `json:"usageBytes"`
	QuotaBytes   int64   `json:"quotaBytes"`
	PercentUsed  float64 `json:"percentUsed"`
	OfflineCount int     `json:"offlineCount"`
	OfflineBytes int64   `json:"offlineBytes"`
}

// NearCapacity reports whether usage has crossed the caller-facing
// warning threshold (80%). It is advisory, not an enforced limit.
func (s StorageStats) NearCapacity() bool {
	return s.PercentUsed >= 80
}
