package download

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"Bt1QPlayer/logger"
	"Bt1QPlayer/model"
	"Bt1QPlayer/store"
)

// ErrQuotaExceeded 存储配额超限，与一般网络失败区分，
// 以便界面提示用户清理空间。
var ErrQuotaExceeded = errors.New("download: storage quota exceeded")

// mediaExt 缓存目录中媒体文件的统一后缀
const mediaExt = ".media"

// partExt 下载中的临时文件后缀，失败时直接删除，不会留下半成品记录
const partExt = ".part"

const (
	defaultConcurrency = 3
	defaultTimeout     = 2 * time.Minute
)

// Request 一次下载请求。Priority 预留给后续的排队策略，当前不参与调度。
type Request struct {
	SongID   string
	Title    string
	Artist   string
	MediaURL string
	Priority int
}

// ProgressFunc 下载进度回调。同一下载的回调进度单调不减，
// 且恰好以一次 completed 或 failed 终结。
type ProgressFunc func(model.ProgressUpdate)

// Options 下载管理器配置
type Options struct {
	Store       store.Store
	Fetcher     Fetcher
	Quota       QuotaProvider
	MediaDir    string
	Concurrency int           // 同时进行的下载数上限，默认3
	Timeout     time.Duration // 单个下载超时，默认2分钟
}

// Manager 离线下载管理器。媒体字节落在本地缓存目录，
// 元数据记录写入 downloads 集合；记录只在文件完整落盘后入库。
type Manager struct {
	st       store.Store
	fetcher  Fetcher
	quota    QuotaProvider
	mediaDir string
	timeout  time.Duration
	sem      chan struct{}

	watcher   *fsnotify.Watcher
	wg        sync.WaitGroup
	closeOnce sync.Once
	closed    chan struct{}
}

// NewManager 创建下载管理器并启动缓存目录监听。
// 监听用于在媒体文件被外部删除时同步清掉对应记录。
func NewManager(opts Options) (*Manager, error) {
	if opts.Store == nil || opts.Fetcher == nil {
		return nil, fmt.Errorf("download manager requires a store and a fetcher")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if err := os.MkdirAll(opts.MediaDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media cache dir: %w", err)
	}

	m := &Manager{
		st:       opts.Store,
		fetcher:  opts.Fetcher,
		quota:    opts.Quota,
		mediaDir: opts.MediaDir,
		timeout:  opts.Timeout,
		sem:      make(chan struct{}, opts.Concurrency),
		closed:   make(chan struct{}),
	}
	if m.quota == nil {
		m.quota = &DirQuotaProvider{Dir: opts.MediaDir}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create media dir watcher: %w", err)
	}
	if err := watcher.Add(opts.MediaDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch media cache dir: %w", err)
	}
	m.watcher = watcher
	go m.watchMediaDir()

	return m, nil
}

// watchMediaDir 处理缓存目录的文件系统事件，
// 媒体文件被外部删除时移除对应的离线记录。
func (m *Manager) watchMediaDir() {
	for {
		select {
		case <-m.closed:
			return
		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			base := filepath.Base(ev.Name)
			if !strings.HasSuffix(base, mediaExt) {
				continue
			}
			songID := strings.TrimSuffix(base, mediaExt)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := m.st.Delete(ctx, store.CollectionDownloads, songID); err != nil {
				logger.Warn("清理孤儿离线记录失败",
					logger.String("songId", songID),
					logger.ErrorField(err))
			} else {
				logger.Info("媒体文件被外部删除，已移除离线记录",
					logger.String("songId", songID))
			}
			cancel()
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("缓存目录监听错误", logger.ErrorField(err))
		}
	}
}

// MediaPath 返回歌曲媒体文件在缓存目录中的路径
func (m *Manager) MediaPath(songID string) string {
	return filepath.Join(m.mediaDir, songID+mediaExt)
}

// ReadMedia 读取已缓存歌曲的媒体字节
func (m *Manager) ReadMedia(songID string) ([]byte, error) {
	data, err := os.ReadFile(m.MediaPath(songID))
	if err != nil {
		return nil, fmt.Errorf("failed to read cached media for %s: %w", songID, err)
	}
	return data, nil
}

// IsSongOffline 检查歌曲是否已有完整的离线记录
func (m *Manager) IsSongOffline(ctx context.Context, songID string) bool {
	var rec model.DownloadRecord
	if err := m.st.Get(ctx, store.CollectionDownloads, songID, &rec); err != nil {
		return false
	}
	return rec.Status == model.DownloadCompleted
}

// QueueDownload 异步下载一首歌曲的媒体资源。
// 同时在途的下载数受并发上限约束；进度通过 onProgress 上报。
// 任何拉取或落盘失败都以一次 failed 回调终结，且不会留下记录。
func (m *Manager) QueueDownload(ctx context.Context, req Request, onProgress ProgressFunc) error {
	if req.SongID == "" || req.MediaURL == "" {
		return fmt.Errorf("song id and media url are required")
	}
	select {
	case <-m.closed:
		return fmt.Errorf("download manager is closed")
	default:
	}

	// 受理即上报 queued，排队等待并发名额期间界面可见状态
	m.emit(onProgress, req.SongID, model.DownloadQueued, 0, "")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		select {
		case m.sem <- struct{}{}:
			defer func() { <-m.sem }()
		case <-m.closed:
			m.emit(onProgress, req.SongID, model.DownloadFailed, 0, "download manager closed")
			return
		case <-ctx.Done():
			m.emit(onProgress, req.SongID, model.DownloadFailed, 0, ctx.Err().Error())
			return
		}
		m.download(ctx, req, onProgress)
	}()
	return nil
}

func (m *Manager) download(parent context.Context, req Request, onProgress ProgressFunc) {
	ctx, cancel := context.WithTimeout(parent, m.timeout)
	defer cancel()

	m.emit(onProgress, req.SongID, model.DownloadDownloading, 0, "")

	partPath := filepath.Join(m.mediaDir, req.SongID+partExt)
	f, err := os.Create(partPath)
	if err != nil {
		m.emit(onProgress, req.SongID, model.DownloadFailed, 0, fmt.Sprintf("failed to create cache file: %v", err))
		return
	}

	// 进度换算为百分比，保证单调不减
	lastPct := 0
	written, err := m.fetcher.Fetch(ctx, req.MediaURL, f, func(written, total int64) {
		if total <= 0 {
			return
		}
		pct := int(written * 100 / total)
		if pct > 100 {
			pct = 100
		}
		if pct > lastPct {
			lastPct = pct
			m.emit(onProgress, req.SongID, model.DownloadDownloading, pct, "")
		}
	})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(partPath)
		m.emit(onProgress, req.SongID, model.DownloadFailed, lastPct, err.Error())
		logger.Warn("下载失败",
			logger.String("songId", req.SongID),
			logger.ErrorField(err))
		return
	}

	// 提交前检查配额，超限的下载不落库
	if err := m.checkQuota(ctx); err != nil {
		os.Remove(partPath)
		m.emit(onProgress, req.SongID, model.DownloadFailed, lastPct, err.Error())
		return
	}

	finalPath := m.MediaPath(req.SongID)
	if err := os.Rename(partPath, finalPath); err != nil {
		os.Remove(partPath)
		m.emit(onProgress, req.SongID, model.DownloadFailed, lastPct, fmt.Sprintf("failed to commit media file: %v", err))
		return
	}

	rec := model.DownloadRecord{
		SongID:        req.SongID,
		Title:         req.Title,
		Artist:        req.Artist,
		FilePath:      finalPath,
		ContentLength: written,
		Status:        model.DownloadCompleted,
		Progress:      100,
		DownloadedAt:  time.Now(),
	}
	if err := m.st.Put(ctx, store.CollectionDownloads, req.SongID, rec); err != nil {
		os.Remove(finalPath)
		m.emit(onProgress, req.SongID, model.DownloadFailed, lastPct, fmt.Sprintf("failed to persist download record: %v", err))
		return
	}

	m.emit(onProgress, req.SongID, model.DownloadCompleted, 100, "")
	logger.Info("歌曲离线完成",
		logger.String("songId", req.SongID),
		logger.Int64("bytes", written))
}

// checkQuota 校验缓存占用是否超出配额，配额为0表示不限制
func (m *Manager) checkQuota(ctx context.Context) error {
	usage, quota, err := m.quota.Estimate(ctx)
	if err != nil {
		logger.Warn("配额查询失败，跳过检查", logger.ErrorField(err))
		return nil
	}
	if quota > 0 && usage > quota {
		return fmt.Errorf("%w: usage %d of %d bytes", ErrQuotaExceeded, usage, quota)
	}
	return nil
}

func (m *Manager) emit(onProgress ProgressFunc, songID string, status model.DownloadStatus, pct int, errMsg string) {
	if onProgress == nil {
		return
	}
	onProgress(model.ProgressUpdate{
		SongID:   songID,
		Status:   status,
		Progress: pct,
		Error:    errMsg,
	})
}

// RemoveSong 删除离线记录与媒体文件，目标不存在时静默成功
func (m *Manager) RemoveSong(ctx context.Context, songID string) error {
	if err := m.st.Delete(ctx, store.CollectionDownloads, songID); err != nil {
		return fmt.Errorf("failed to delete download record %s: %w", songID, err)
	}
	if err := os.Remove(m.MediaPath(songID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove cached media %s: %w", songID, err)
	}
	return nil
}

// GetOfflineSongs 列出全部已完成的离线记录，按下载时间倒序
func (m *Manager) GetOfflineSongs(ctx context.Context) ([]model.DownloadRecord, error) {
	raws, err := m.st.List(ctx, store.CollectionDownloads)
	if err != nil {
		return nil, fmt.Errorf("failed to list download records: %w", err)
	}

	records := make([]model.DownloadRecord, 0, len(raws))
	for key, raw := range raws {
		var rec model.DownloadRecord
		if err := store.DecodePayload(raw, &rec); err != nil {
			logger.Warn("离线记录损坏，已跳过", logger.String("songId", key), logger.ErrorField(err))
			continue
		}
		if rec.Status == model.DownloadCompleted {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].DownloadedAt.After(records[j].DownloadedAt)
	})
	return records, nil
}

// GetStorageStats 返回配额、用量与离线记录统计。
// 用量超过80%只是给调用方的提醒阈值，不在此处强制。
func (m *Manager) GetStorageStats(ctx context.Context) (model.StorageStats, error) {
	usage, quota, err := m.quota.Estimate(ctx)
	if err != nil {
		return model.StorageStats{}, fmt.Errorf("failed to query storage quota: %w", err)
	}

	records, err := m.GetOfflineSongs(ctx)
	if err != nil {
		return model.StorageStats{}, err
	}
	var offlineBytes int64
	for _, rec := range records {
		offlineBytes += rec.ContentLength
	}

	stats := model.StorageStats{
		UsageBytes:   usage,
		QuotaBytes:   quota,
		OfflineCount: len(records),
		OfflineBytes: offlineBytes,
	}
	if quota > 0 {
		stats.PercentUsed = float64(usage) / float64(quota) * 100
	}
	return stats, nil
}

// ClearAllOfflineData 无条件清空全部离线记录与媒体文件
func (m *Manager) ClearAllOfflineData(ctx context.Context) error {
	if err := m.st.Clear(ctx, store.CollectionDownloads); err != nil {
		return fmt.Errorf("failed to clear download records: %w", err)
	}

	entries, err := os.ReadDir(m.mediaDir)
	if err != nil {
		return fmt.Errorf("failed to read media cache dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, mediaExt) || strings.HasSuffix(name, partExt) {
			if err := os.Remove(filepath.Join(m.mediaDir, name)); err != nil {
				logger.Warn("删除缓存文件失败", logger.String("file", name), logger.ErrorField(err))
			}
		}
	}
	logger.Info("离线数据已全部清空")
	return nil
}

// Close 停止目录监听并等待在途下载退出
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.watcher.Close()
	})
	m.wg.Wait()
	return nil
}
