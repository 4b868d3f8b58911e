package model

// RepeatMode 循环模式
type RepeatMode string

const (
	RepeatOff RepeatMode = "off" // 顺序播放，播完即止
	RepeatAll RepeatMode = "all" // 列表循环
	RepeatOne RepeatMode = "one" // 单曲循环
)

// Valid reports whether m is one of the known repeat modes.
func (m RepeatMode) Valid() bool {
	switch m {
	case RepeatOff, RepeatAll, RepeatOne:
		return true
	}
	return false
}

// PlayerSnapshot 是播放会话的持久化快照，每次状态变更后写入存储，
// 进程重启时从快照恢复队列与播放设置。
type PlayerSnapshot struct {
	Queue            []Track    `json:"queue"`
	OriginalQueue    []Track    `json:"originalQueue,omitempty"` // 开启随机播放前的原始顺序
	CurrentIndex     int        `json:"currentIndex"`            // -1 表示未加载任何曲目
	ShuffleMode      bool       `json:"shuffleMode"`
	RepeatMode       RepeatMode `json:"repeatMode"`
	Volume           float64    `json:"volume"`
	Muted            bool       `json:"muted"`
	PlaybackSpeed    float64    `json:"playbackSpeed"`
	CrossfadeSeconds float64    `json:"crossfadeSeconds"`
	Position         float64    `json:"position"` // 当前播放位置（秒）
	UpdatedAt        int64      `json:"updatedAt"`
}

// PlayerState 是实时播放状态，仅存在于内存，不参与持久化。
type PlayerState struct {
	IsPlaying bool    `json:"isPlaying"`
	IsLoading bool    `json:"isLoading"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	LastError string  `json:"lastError,omitempty"`
}
