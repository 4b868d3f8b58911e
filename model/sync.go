package model

// SyncActionType 离线变更动作类型
type SyncActionType string

const (
	SyncFavorite       SyncActionType = "favorite"
	SyncUnfavorite     SyncActionType = "unfavorite"
	SyncPlaylistCreate SyncActionType = "playlist-create"
	SyncPlaylistUpdate SyncActionType = "playlist-update"
	SyncPlaylistDelete SyncActionType = "playlist-delete"
)

// SyncAction 是同步队列中的一条待回放变更。
// Seq 记录入队次序，回放严格按 Seq 升序进行。
type SyncAction struct {
	ID         string         `json:"id"`
	Type       SyncActionType `json:"type"`
	Payload    map[string]any `json:"payload"`
	RetryCount int            `json:"retryCount"`
	Seq        int64          `json:"seq"`
	EnqueuedAt int64          `json:"enqueuedAt"`
}

// SyncResult 一次同步回放的聚合结果。被跳过的回放
// （离线或已有回放在进行中）返回 Success=false 且计数全零。
type SyncResult struct {
	Success bool     `json:"success"`
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// SyncItemSummary 单条待同步项的摘要，供界面展示。
type SyncItemSummary struct {
	ID         string         `json:"id"`
	Type       SyncActionType `json:"type"`
	RetryCount int            `json:"retryCount"`
}

// SyncQueueStatus 同步队列状态
type SyncQueueStatus struct {
	Pending int               `json:"pending"`
	Items   []SyncItemSummary `json:"items"`
}
