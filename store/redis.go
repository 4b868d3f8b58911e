package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// keyPrefix 避免与同一实例上其他应用的键冲突
const keyPrefix = "bt1qplayer:"

// RedisStore 以每个集合一个 hash 的方式存放记录，
// hash field 为记录键，值为版本信封 JSON。
type RedisStore struct {
	client *redis.Client
}

// RedisOptions Redis连接配置
type RedisOptions struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// NewRedisStore 建立Redis连接并返回存储实例
func NewRedisStore(opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", opts.Host, opts.Port),
		Password: opts.Password,
		DB:       opts.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func collectionKey(collection string) string {
	return keyPrefix + collection
}

// Put 将记录写入集合对应的 hash
func (s *RedisStore) Put(ctx context.Context, collection, key string, value any) error {
	raw, err := encodeRecord(value)
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, collectionKey(collection), key, raw).Err(); err != nil {
		return fmt.Errorf("failed to put record %s/%s: %w", collection, key, err)
	}
	return nil
}

// Get 从集合读取记录
func (s *RedisStore) Get(ctx context.Context, collection, key string, out any) error {
	raw, err := s.client.HGet(ctx, collectionKey(collection), key).Result()
	if err != nil {
		if err == redis.Nil {
			return ErrNotFound
		}
		return fmt.Errorf("failed to get record %s/%s: %w", collection, key, err)
	}
	return decodeRecord([]byte(raw), out)
}

// Delete 删除记录，键不存在时视为成功
func (s *RedisStore) Delete(ctx context.Context, collection, key string) error {
	if err := s.client.HDel(ctx, collectionKey(collection), key).Err(); err != nil {
		return fmt.Errorf("failed to delete record %s/%s: %w", collection, key, err)
	}
	return nil
}

// List 返回集合中全部记录的载荷
func (s *RedisStore) List(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	entries, err := s.client.HGetAll(ctx, collectionKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list collection %s: %w", collection, err)
	}

	records := make(map[string]json.RawMessage, len(entries))
	for key, raw := range entries {
		data, err := openEnvelope([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("failed to decode record %s/%s: %w", collection, key, err)
		}
		records[key] = data
	}
	return records, nil
}

// Clear 删除整个集合
func (s *RedisStore) Clear(ctx context.Context, collection string) error {
	if err := s.client.Del(ctx, collectionKey(collection)).Err(); err != nil {
		return fmt.Errorf("failed to clear collection %s: %w", collection, err)
	}
	return nil
}

// Close 关闭Redis连接
func (s *RedisStore) Close() error {
	return s.client.Close()
}
