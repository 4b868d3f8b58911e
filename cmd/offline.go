package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"Bt1QPlayer/api"
	"Bt1QPlayer/config"
	"Bt1QPlayer/core/download"

	"github.com/spf13/cobra"
)

var (
	offlineStats bool
	offlineClear bool
)

var offlineCmd = &cobra.Command{
	Use:   "offline",
	Short: "离线缓存管理",
	Long:  `查看和管理离线下载的歌曲，支持列出已下载歌曲、查看存储用量统计、清空全部离线数据。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		initLogger(cfg)

		st, err := openStore(cfg)
		if err != nil {
			log.Fatalf("无法连接到存储后端: %v", err)
		}
		defer st.Close()

		// 配置了MinIO端点时直连对象存储拉取，否则走HTTP
		var fetcher download.Fetcher = download.NewHTTPFetcher(api.NewStaticTokenProvider(cfg.APIToken))
		if cfg.MinioEndpoint != "" {
			fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)
			mf, err := download.NewMinioFetcher(download.MinioOptions{
				Endpoint:  cfg.MinioEndpoint,
				AccessKey: cfg.MinioAccessKey,
				SecretKey: cfg.MinioSecretKey,
				Bucket:    cfg.MinioBucket,
				UseSSL:    cfg.MinioUseSSL,
			})
			if err != nil {
				log.Fatalf("无法连接到MinIO: %v", err)
			}
			fetcher = mf
		}

		mgr, err := download.NewManager(download.Options{
			Store:       st,
			Fetcher:     fetcher,
			Quota:       &download.DirQuotaProvider{Dir: cfg.MediaCacheDir, QuotaBytes: cfg.StorageQuotaBytes},
			MediaDir:    cfg.MediaCacheDir,
			Concurrency: cfg.DownloadConcurrency,
			Timeout:     time.Duration(cfg.DownloadTimeoutSec) * time.Second,
		})
		if err != nil {
			log.Fatalf("初始化下载管理器失败: %v", err)
		}
		defer mgr.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if offlineClear {
			// 清空全部离线数据
			fmt.Println("清空全部离线数据...")
			if err := mgr.ClearAllOfflineData(ctx); err != nil {
				log.Fatalf("清空离线数据失败: %v", err)
			}
			fmt.Println("离线数据已清空。")
			return
		}

		if offlineStats {
			// 显示存储用量统计
			stats, err := mgr.GetStorageStats(ctx)
			if err != nil {
				log.Fatalf("获取存储统计失败: %v", err)
			}
			fmt.Printf("离线歌曲数: %d\n", stats.OfflineCount)
			fmt.Printf("离线占用: %d 字节\n", stats.OfflineBytes)
			fmt.Printf("总用量: %d / %d 字节 (%.1f%%)\n", stats.UsageBytes, stats.QuotaBytes, stats.PercentUsed)
			if stats.NearCapacity() {
				fmt.Println("警告: 存储用量已超过80%")
			}
			return
		}

		// 列出已下载歌曲
		songs, err := mgr.GetOfflineSongs(ctx)
		if err != nil {
			log.Fatalf("读取离线歌曲列表失败: %v", err)
		}
		if len(songs) == 0 {
			fmt.Println("当前没有离线歌曲。")
			return
		}
		fmt.Printf("共 %d 首离线歌曲:\n", len(songs))
		for _, s := range songs {
			fmt.Printf("  %s - %s (%s, %d 字节, %s)\n",
				s.Artist, s.Title, s.SongID, s.ContentLength,
				s.DownloadedAt.Format("2006-01-02 15:04"))
		}
	},
}

func init() {
	rootCmd.AddCommand(offlineCmd)

	offlineCmd.Flags().BoolVarP(&offlineStats, "stats", "s", false, "显示存储用量统计")
	offlineCmd.Flags().BoolVarP(&offlineClear, "clear", "c", false, "清空全部离线数据")

	offlineCmd.Example = `  # 列出已下载歌曲
  1qplayer offline

  # 显示存储用量统计
  1qplayer offline -s

  # 清空全部离线数据
  1qplayer offline -c`
}
