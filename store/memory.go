package store

import (
	"context"
	"encoding/json"
	"sync"
)

// MemoryStore 纯内存实现，用于测试和不需要持久化的场景。
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string][]byte)}
}

// Put 写入记录
func (s *MemoryStore) Put(ctx context.Context, collection, key string, value any) error {
	raw, err := encodeRecord(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string][]byte)
		s.collections[collection] = col
	}
	col[key] = raw
	return nil
}

// Get 读取记录
func (s *MemoryStore) Get(ctx context.Context, collection, key string, out any) error {
	s.mu.RLock()
	raw, ok := s.collections[collection][key]
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return decodeRecord(raw, out)
}

// Delete 删除记录
func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], key)
	return nil
}

// List 列出集合全部记录
func (s *MemoryStore) List(ctx context.Context, collection string) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make(map[string]json.RawMessage, len(s.collections[collection]))
	for key, raw := range s.collections[collection] {
		data, err := openEnvelope(raw)
		if err != nil {
			return nil, err
		}
		records[key] = data
	}
	return records, nil
}

// Clear 清空集合
func (s *MemoryStore) Clear(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// Close 无资源可释放
func (s *MemoryStore) Close() error {
	return nil
}
