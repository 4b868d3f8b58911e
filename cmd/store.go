package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"Bt1QPlayer/config"
	"Bt1QPlayer/store"

	"github.com/spf13/cobra"
)

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "持久化存储连接测试",
	Long:  `测试当前配置的存储后端（redis/sqlite/memory）是否可用，并进行基本读写操作。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始测试存储连接...")

		// 加载配置
		cfg := config.Load()
		initLogger(cfg)
		fmt.Printf("存储后端: %s\n", cfg.StoreBackend)
		if cfg.StoreBackend == "redis" {
			fmt.Printf("Redis配置: %s:%s, DB: %d\n", cfg.RedisHost, cfg.RedisPort, cfg.RedisDB)
		}
		if cfg.StoreBackend == "sqlite" {
			fmt.Printf("SQLite路径: %s\n", cfg.SQLitePath)
		}

		st, err := openStore(cfg)
		if err != nil {
			log.Fatalf("无法连接到存储后端: %v", err)
		}
		fmt.Println("存储连接成功！")

		// 测试基本读写操作
		fmt.Println("开始测试基本读写操作...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		sample := map[string]string{"checkedAt": time.Now().Format(time.RFC3339)}
		if err := st.Put(ctx, store.CollectionSettings, "connection_test", sample); err != nil {
			log.Fatalf("写入测试失败: %v", err)
		}
		var got map[string]string
		if err := st.Get(ctx, store.CollectionSettings, "connection_test", &got); err != nil {
			log.Fatalf("读取测试失败: %v", err)
		}
		if got["checkedAt"] != sample["checkedAt"] {
			log.Fatalf("读写内容不一致: %v != %v", got, sample)
		}
		if err := st.Delete(ctx, store.CollectionSettings, "connection_test"); err != nil {
			log.Fatalf("删除测试失败: %v", err)
		}
		fmt.Println("基本读写操作测试成功！")

		// 关闭连接
		if err := st.Close(); err != nil {
			log.Printf("关闭存储连接时发生错误: %v", err)
		}
		fmt.Println("存储测试完成，连接已关闭。")
	},
}

func init() {
	rootCmd.AddCommand(storeCmd)
}
