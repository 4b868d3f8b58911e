package syncq

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"Bt1QPlayer/logger"
	"Bt1QPlayer/model"
	"Bt1QPlayer/store"
)

// defaultMaxRetries 重试上限，连续失败达到上限的动作会被永久丢弃
const defaultMaxRetries = 3

// RemoteAPI 同步回放时调用的服务端接口，与动作类型一一对应
type RemoteAPI interface {
	Favorite(ctx context.Context, songID string) error
	Unfavorite(ctx context.Context, songID string) error
	CreatePlaylist(ctx context.Context, playlist map[string]any) error
	UpdatePlaylist(ctx context.Context, id string, playlist map[string]any) error
	DeletePlaylist(ctx context.Context, id string) error
}

// Observer 同步回放完成通知回调
type Observer func(model.SyncResult)

// Manager 同步队列管理器。离线期间的本地变更进持久化队列，
// 恢复在线后按入队顺序回放到服务端。同一时刻最多一轮回放在执行。
type Manager struct {
	st         store.Store
	api        RemoteAPI
	conn       Connectivity
	maxRetries int

	seq atomic.Int64 // 入队序号，保证同进程内严格有序

	syncMu    sync.Mutex // isSyncing 的强互斥
	isSyncing bool

	obsMu     sync.Mutex
	nextObsID int
	observers map[int]Observer

	unsubscribe func()
}

// NewManager 创建同步队列管理器
func NewManager(st store.Store, api RemoteAPI, conn Connectivity, maxRetries int) *Manager {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	m := &Manager{
		st:         st,
		api:        api,
		conn:       conn,
		maxRetries: maxRetries,
		observers:  make(map[int]Observer),
	}
	// 序号以当前时间打底，进程重启后新动作仍排在旧动作之后
	m.seq.Store(time.Now().UnixNano())
	return m
}

// Start 订阅连通性变更，恢复在线时自动触发一轮回放
func (m *Manager) Start() {
	m.unsubscribe = m.conn.Subscribe(func(online bool) {
		if !online {
			return
		}
		logger.Info("网络恢复，自动触发同步回放")
		go m.SyncPendingActions(context.Background())
	})
}

// Close 取消连通性订阅
func (m *Manager) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// QueueAction 记录一条本地变更。在线时立即触发一轮回放；
// 离线时动作留在持久化队列，等网络恢复事件再回放。
func (m *Manager) QueueAction(ctx context.Context, typ model.SyncActionType, payload map[string]any) error {
	action := model.SyncAction{
		ID:         uuid.New().String(),
		Type:       typ,
		Payload:    payload,
		Seq:        m.seq.Add(1),
		EnqueuedAt: time.Now().UnixMilli(),
	}
	if err := m.st.Put(ctx, store.CollectionSyncQueue, action.ID, action); err != nil {
		return fmt.Errorf("failed to enqueue sync action: %w", err)
	}
	logger.Debug("本地变更已入队",
		logger.String("actionId", action.ID),
		logger.String("type", string(typ)))

	if m.conn.Online() {
		m.SyncPendingActions(ctx)
	} else {
		logger.Debug("当前离线，动作留待网络恢复后回放", logger.String("actionId", action.ID))
	}
	return nil
}

// SyncPendingActions 回放一轮待同步动作。
// 离线或已有回放在进行中时立即返回空结果（跳过，不算队列项失败）。
// 队列快照在回放开始时取出，回放期间新入队的动作留到下一轮，
// 避免单轮回放无限拉长。
func (m *Manager) SyncPendingActions(ctx context.Context) model.SyncResult {
	if !m.conn.Online() {
		return model.SyncResult{Success: false}
	}
	m.syncMu.Lock()
	if m.isSyncing {
		m.syncMu.Unlock()
		return model.SyncResult{Success: false}
	}
	m.isSyncing = true
	m.syncMu.Unlock()
	defer func() {
		m.syncMu.Lock()
		m.isSyncing = false
		m.syncMu.Unlock()
	}()

	actions, err := m.pendingActions(ctx)
	if err != nil {
		logger.Error("读取同步队列失败", logger.ErrorField(err))
		return model.SyncResult{Success: false, Errors: []string{err.Error()}}
	}

	result := model.SyncResult{Success: true}
	for _, action := range actions {
		if err := m.dispatch(ctx, action); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s(%s): %v", action.Type, action.ID, err))
			m.handleFailure(ctx, action, err)
			result.Success = false
			continue
		}
		if err := m.st.Delete(ctx, store.CollectionSyncQueue, action.ID); err != nil {
			logger.Warn("移除已同步动作失败", logger.String("actionId", action.ID), logger.ErrorField(err))
		}
		result.Synced++
	}

	m.notify(result)
	return result
}

// handleFailure 失败计数加一，达到重试上限后永久丢弃。
// 丢弃意味着该条本地变更丢失，只记日志，不作为阻塞性错误上抛。
func (m *Manager) handleFailure(ctx context.Context, action model.SyncAction, cause error) {
	action.RetryCount++
	if action.RetryCount >= m.maxRetries {
		if err := m.st.Delete(ctx, store.CollectionSyncQueue, action.ID); err != nil {
			logger.Warn("丢弃超限动作失败", logger.String("actionId", action.ID), logger.ErrorField(err))
			return
		}
		logger.Warn("动作连续失败达到上限，已永久丢弃",
			logger.String("actionId", action.ID),
			logger.String("type", string(action.Type)),
			logger.Int("retryCount", action.RetryCount),
			logger.ErrorField(cause))
		return
	}
	if err := m.st.Put(ctx, store.CollectionSyncQueue, action.ID, action); err != nil {
		logger.Warn("更新动作重试计数失败", logger.String("actionId", action.ID), logger.ErrorField(err))
	}
}

// dispatch 按动作类型调用对应的服务端接口
func (m *Manager) dispatch(ctx context.Context, action model.SyncAction) error {
	switch action.Type {
	case model.SyncFavorite:
		return m.api.Favorite(ctx, payloadString(action.Payload, "songId"))
	case model.SyncUnfavorite:
		return m.api.Unfavorite(ctx, payloadString(action.Payload, "songId"))
	case model.SyncPlaylistCreate:
		return m.api.CreatePlaylist(ctx, action.Payload)
	case model.SyncPlaylistUpdate:
		return m.api.UpdatePlaylist(ctx, payloadString(action.Payload, "id"), action.Payload)
	case model.SyncPlaylistDelete:
		return m.api.DeletePlaylist(ctx, payloadString(action.Payload, "id"))
	default:
		return fmt.Errorf("unknown sync action type %q", action.Type)
	}
}

func payloadString(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

// pendingActions 读取队列快照并按入队顺序排序
func (m *Manager) pendingActions(ctx context.Context) ([]model.SyncAction, error) {
	raws, err := m.st.List(ctx, store.CollectionSyncQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync queue: %w", err)
	}

	actions := make([]model.SyncAction, 0, len(raws))
	for key, raw := range raws {
		var action model.SyncAction
		if err := store.DecodePayload(raw, &action); err != nil {
			logger.Warn("同步队列记录损坏，已跳过", logger.String("actionId", key), logger.ErrorField(err))
			continue
		}
		actions = append(actions, action)
	}
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Seq < actions[j].Seq
	})
	return actions, nil
}

// GetSyncQueueStatus 返回待同步数量与每条动作的摘要
func (m *Manager) GetSyncQueueStatus(ctx context.Context) (model.SyncQueueStatus, error) {
	actions, err := m.pendingActions(ctx)
	if err != nil {
		return model.SyncQueueStatus{}, err
	}

	status := model.SyncQueueStatus{
		Pending: len(actions),
		Items:   make([]model.SyncItemSummary, 0, len(actions)),
	}
	for _, action := range actions {
		status.Items = append(status.Items, model.SyncItemSummary{
			ID:         action.ID,
			Type:       action.Type,
			RetryCount: action.RetryCount,
		})
	}
	return status, nil
}

// OnSync 注册回放完成通知，返回取消注册函数
func (m *Manager) OnSync(obs Observer) func() {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = obs
	return func() {
		m.obsMu.Lock()
		defer m.obsMu.Unlock()
		delete(m.observers, id)
	}
}

func (m *Manager) notify(result model.SyncResult) {
	m.obsMu.Lock()
	obs := make([]Observer, 0, len(m.observers))
	for _, o := range m.observers {
		obs = append(obs, o)
	}
	m.obsMu.Unlock()

	for _, o := range obs {
		o(result)
	}
}
