package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"Bt1QPlayer/api"
	"Bt1QPlayer/config"
	"Bt1QPlayer/core/syncq"

	"github.com/spf13/cobra"
)

var syncRun bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "同步队列管理",
	Long:  `查看待同步的本地变更，或立即触发一轮同步回放。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		initLogger(cfg)

		st, err := openStore(cfg)
		if err != nil {
			log.Fatalf("无法连接到存储后端: %v", err)
		}
		defer st.Close()

		client := api.NewClient(cfg.APIBaseURL, api.NewStaticTokenProvider(cfg.APIToken))
		// 命令行场景下由调用者判断网络可用，直接按在线处理
		mgr := syncq.NewManager(st, client, syncq.NewManualConnectivity(true), cfg.SyncMaxRetries)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		status, err := mgr.GetSyncQueueStatus(ctx)
		if err != nil {
			log.Fatalf("读取同步队列失败: %v", err)
		}
		fmt.Printf("待同步动作: %d\n", status.Pending)
		for _, item := range status.Items {
			fmt.Printf("  %s (%s, 已失败 %d 次)\n", item.Type, item.ID, item.RetryCount)
		}

		if !syncRun {
			return
		}
		if status.Pending == 0 {
			fmt.Println("队列为空，无需回放。")
			return
		}

		fmt.Println("开始同步回放...")
		result := mgr.SyncPendingActions(ctx)
		fmt.Printf("回放完成: 成功 %d, 失败 %d\n", result.Synced, result.Failed)
		for _, e := range result.Errors {
			fmt.Printf("  失败: %s\n", e)
		}
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVarP(&syncRun, "run", "r", false, "立即触发一轮同步回放")
}
