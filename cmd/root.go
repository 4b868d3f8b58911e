package cmd

import (
	"fmt"
	"os"

	"Bt1QPlayer/config"
	"Bt1QPlayer/logger"
	"Bt1QPlayer/store"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "1qplayer",
	Short: "1QPlayer is the 1QFM offline-capable playback engine.",
	Long:  `1QPlayer 是1QFM的本地播放引擎，管理播放队列、离线下载与同步队列。`,
	// 命令结束时刷掉缓冲中的日志
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initLogger 按配置初始化全局日志
func initLogger(cfg *config.Config) {
	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(cfg.LogLevel),
		OutputPath: cfg.LogPath,
		MaxSize:    100,
	})
}

// openStore 按配置选择持久化后端
func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		return store.NewRedisStore(store.RedisOptions{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
	case "sqlite":
		return store.NewSQLiteStore(cfg.SQLitePath)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.StoreBackend)
	}
}
