package model

// Track represents a single song entry in the play queue.
// Tracks are immutable once fetched from the catalog; the queue owns its copies.
type Track struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration,omitempty"` // 时长（秒）
	MediaURL string  `json:"mediaUrl"`           // 媒体定位符，流地址或对象键
}
