package player

// Decoder 定义底层媒体解码器的能力。Load 为阻塞调用，
// 返回即表示解码器可以开始播放（can-play）；加载失败与播放失败
// 通过各自的返回错误区分。
type Decoder interface {
	// Load 设置媒体源并等待至可播放状态
	Load(src string) error
	// Play 开始或恢复播放
	Play() error
	// Pause 暂停播放，保留播放位置
	Pause()
	// Stop 停止播放并释放媒体源
	Stop()
	// Seek 跳转到指定位置（秒），越界行为由解码器自身决定
	Seek(seconds float64)
	SetVolume(v float64)
	// SetRate 设置播放倍速
	SetRate(rate float64)
	Position() float64
	Duration() float64
	// Source 返回当前媒体源，未加载时为空串
	Source() string
	// OnEnded 注册自然播放结束回调，由解码器在自己的 goroutine 中触发
	OnEnded(fn func())
}

// DecoderFactory 创建解码器实例，测试中注入伪实现
type DecoderFactory func() Decoder

// slotRole 标记槽位当前的角色
type slotRole string

const (
	roleActive slotRole = "active" // 主解码器，承载当前曲目
	roleFading slotRole = "fading" // 交叉淡出中的旧曲目
)

// deckSlot 一个解码器槽位。fade 最多持有一个未完成的渐变任务，
// 新渐变启动前必须取消旧任务。
type deckSlot struct {
	role slotRole
	dec  Decoder
	fade *fadeTask
}

// cancelFade 取消槽位上未完成的渐变并等待任务退出，
// 返回后该任务不会再写入音量
func (s *deckSlot) cancelFade() {
	if s.fade != nil {
		s.fade.Cancel()
		s.fade.Wait()
		s.fade = nil
	}
}

// deck 双槽解码结构。active 永远指向承载当前曲目的槽位，
// 角色互换采用显式交换而不是换引用，保证"谁是主解码器"可观测。
type deck struct {
	active *deckSlot
	fading *deckSlot
}

func newDeck(factory DecoderFactory) *deck {
	return &deck{
		active: &deckSlot{role: roleActive, dec: factory()},
		fading: &deckSlot{role: roleFading, dec: factory()},
	}
}

// swap 交换两个槽位的角色，交叉淡入淡出开始时调用：
// 原 fading 槽位成为新曲目的主解码器，原 active 槽位负责淡出旧曲目。
func (d *deck) swap() {
	d.active, d.fading = d.fading, d.active
	d.active.role = roleActive
	d.fading.role = roleFading
}
