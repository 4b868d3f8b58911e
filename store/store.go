package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// 持久化集合名。各组件各自持有独立集合，互不写入对方的集合。
const (
	CollectionSettings  = "settings"
	CollectionPlayer    = "player"
	CollectionDownloads = "downloads"
	CollectionSyncQueue = "syncqueue"
)

// SchemaVersion 是记录信封的当前版本号，升版本时在 decodeRecord 中迁移。
const SchemaVersion = 1

// ErrNotFound 表示集合中不存在指定键的记录
var ErrNotFound = errors.New("store: record not found")

// Store 定义按集合组织的本地持久化键值存储。
// 所有实现都要保证单条记录写入的原子性。
type Store interface {
	// Put 将 value 序列化后写入集合，已存在则覆盖
	Put(ctx context.Context, collection, key string, value any) error
	// Get 读取记录并反序列化到 out，不存在时返回 ErrNotFound
	Get(ctx context.Context, collection, key string, out any) error
	// Delete 删除记录，键不存在时不报错
	Delete(ctx context.Context, collection, key string) error
	// List 返回集合中全部记录的原始载荷，键为记录键
	List(ctx context.Context, collection string) (map[string]json.RawMessage, error)
	// Clear 清空整个集合
	Clear(ctx context.Context, collection string) error
	Close() error
}

// envelope 是带版本号的记录信封，为后续结构迁移预留空间
type envelope struct {
	V    int             `json:"v"`
	Data json.RawMessage `json:"data"`
}

// encodeRecord 将值包入版本信封并序列化
func encodeRecord(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	raw, err := json.Marshal(envelope{V: SchemaVersion, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record envelope: %w", err)
	}
	return raw, nil
}

// openEnvelope 拆开版本信封并返回内部载荷。
// 高于当前版本的记录视为来自更新的程序，拒绝读取。
// Get 和 List 都经由这里，保证两条读取路径的版本检查一致。
func openEnvelope(raw []byte) (json.RawMessage, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record envelope: %w", err)
	}
	if env.V > SchemaVersion {
		return nil, fmt.Errorf("record schema version %d is newer than supported version %d", env.V, SchemaVersion)
	}
	return env.Data, nil
}

// decodeRecord 拆开版本信封并反序列化到 out
func decodeRecord(raw []byte, out any) error {
	data, err := openEnvelope(raw)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// DecodePayload 反序列化 List 返回的单条载荷
func DecodePayload(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to unmarshal record payload: %w", err)
	}
	return nil
}
