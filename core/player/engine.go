package player

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"Bt1QPlayer/logger"
	"Bt1QPlayer/model"
	"Bt1QPlayer/store"
)

// snapshotKey 播放快照在 player 集合中的键
const snapshotKey = "snapshot"

const (
	minPlaybackSpeed = 0.25
	maxPlaybackSpeed = 2.0
)

// StreamResolver 解析歌曲的已鉴权流地址
type StreamResolver interface {
	ResolveStreamURL(ctx context.Context, songID string) (string, error)
}

// OfflineSource 提供本地缓存媒体，流解析失败时作为兜底来源。
// 由下载管理器实现。
type OfflineSource interface {
	IsSongOffline(ctx context.Context, songID string) bool
	MediaPath(songID string) string
}

// Engine 播放引擎，持有播放队列、随机/循环状态和双槽解码结构。
// 所有操作串行化在同一把锁上，每次状态变更后同步写入播放快照。
type Engine struct {
	mu       sync.Mutex
	st       store.Store
	resolver StreamResolver
	offline  OfflineSource
	deck     *deck
	rng      *rand.Rand

	queue            []model.Track
	originalQueue    []model.Track
	currentIndex     int
	shuffleMode      bool
	repeatMode       model.RepeatMode
	volume           float64
	muted            bool
	volumeBeforeMute float64
	speed            float64
	crossfadeSeconds float64
	isPlaying        bool
	isLoading        bool
	lastError        string
}

// NewEngine 创建播放引擎。解码器由 factory 构造，两个槽位各一个。
func NewEngine(st store.Store, factory DecoderFactory, resolver StreamResolver) *Engine {
	e := &Engine{
		st:           st,
		resolver:     resolver,
		deck:         newDeck(factory),
		currentIndex: -1,
		volume:       1,
		speed:        1,
		repeatMode:   model.RepeatOff,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	// 结束事件只有来自当前主槽位时才推进队列
	for _, s := range []*deckSlot{e.deck.active, e.deck.fading} {
		s := s
		s.dec.OnEnded(func() { e.onDecoderEnded(s) })
	}
	return e
}

// SetOfflineSource 设置本地缓存兜底来源
func (e *Engine) SetOfflineSource(src OfflineSource) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.offline = src
}

// Restore 从持久化快照恢复队列与播放设置，恢复后不自动播放。
// 快照不存在时保持初始状态。
func (e *Engine) Restore(ctx context.Context) error {
	var snap model.PlayerSnapshot
	if err := e.st.Get(ctx, store.CollectionPlayer, snapshotKey, &snap); err != nil {
		if err == store.ErrNotFound {
			return nil
		}
		return fmt.Errorf("failed to restore player snapshot: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = snap.Queue
	e.originalQueue = snap.OriginalQueue
	e.currentIndex = snap.CurrentIndex
	if e.currentIndex >= len(e.queue) {
		e.currentIndex = len(e.queue) - 1
	}
	if len(e.queue) == 0 {
		e.currentIndex = -1
	}
	e.shuffleMode = snap.ShuffleMode
	if snap.RepeatMode.Valid() {
		e.repeatMode = snap.RepeatMode
	}
	e.volume = clamp(snap.Volume, 0, 1)
	e.muted = snap.Muted
	e.speed = clamp(snap.PlaybackSpeed, minPlaybackSpeed, maxPlaybackSpeed)
	if snap.PlaybackSpeed == 0 {
		e.speed = 1
	}
	if snap.CrossfadeSeconds > 0 {
		e.crossfadeSeconds = snap.CrossfadeSeconds
	}
	logger.Info("播放快照已恢复",
		logger.Int("queueLength", len(e.queue)),
		logger.Int("currentIndex", e.currentIndex))
	return nil
}

// SetQueue 整体替换播放队列并加载 startIndex 指定的曲目。
// 随机模式下先洗牌，再把 startIndex 对应的曲目重定位为当前曲目，
// 保证显式点播的歌曲一定成为当前曲目。
// startIndex 越界时仅替换队列，不加载任何曲目。
func (e *Engine) SetQueue(tracks []model.Track, startIndex int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	queue := append([]model.Track(nil), tracks...)
	if e.shuffleMode {
		e.originalQueue = append([]model.Track(nil), tracks...)
		e.shuffleTracks(queue)
		e.currentIndex = -1
		if startIndex >= 0 && startIndex < len(tracks) {
			want := tracks[startIndex].ID
			for i, t := range queue {
				if t.ID == want {
					e.currentIndex = i
					break
				}
			}
		}
	} else {
		e.originalQueue = nil
		e.currentIndex = -1
		if startIndex >= 0 && startIndex < len(queue) {
			e.currentIndex = startIndex
		}
	}
	e.queue = queue

	if e.currentIndex >= 0 {
		e.loadTrackLocked(e.queue[e.currentIndex])
	} else {
		e.stopPlaybackLocked()
	}
	e.persistLocked()
}

// Play 恢复播放；会话尚未加载媒体源时改为加载当前曲目
func (e *Engine) Play() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.deck.active.dec.Source() == "" {
		if e.currentIndex >= 0 && e.currentIndex < len(e.queue) {
			e.loadTrackLocked(e.queue[e.currentIndex])
			e.persistLocked()
		}
		return
	}
	if err := e.deck.active.dec.Play(); err != nil {
		e.isPlaying = false
		e.lastError = fmt.Sprintf("decoder failed to play: %v", err)
	} else {
		e.isPlaying = true
		e.lastError = ""
	}
	e.persistLocked()
}

// Pause 暂停播放
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deck.active.dec.Pause()
	e.isPlaying = false
	e.persistLocked()
}

// Seek 跳转到指定位置（秒），越界处理交给解码器
func (e *Engine) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deck.active.dec.Seek(seconds)
	e.persistLocked()
}

// SetVolume 设置音量并钳制到 [0,1]；静音状态下设置非零音量会自动解除静音
func (e *Engine) SetVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clamp(v, 0, 1)
	if e.muted && e.volume > 0 {
		e.muted = false
	}
	// 用户设置优先于进行中的淡入，取消主槽位上的渐变任务
	e.deck.active.cancelFade()
	e.deck.active.dec.SetVolume(e.effectiveVolume())
	e.persistLocked()
}

// ToggleMute 静音时记录当前音量，解除静音时恢复之前的非零音量
func (e *Engine) ToggleMute() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.muted {
		e.volumeBeforeMute = e.volume
		e.muted = true
	} else {
		e.muted = false
		if e.volumeBeforeMute > 0 {
			e.volume = e.volumeBeforeMute
		}
	}
	e.deck.active.cancelFade()
	e.deck.active.dec.SetVolume(e.effectiveVolume())
	e.persistLocked()
}

// Next 线性前进一首，到达队尾时不回绕
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentIndex < 0 || e.currentIndex+1 >= len(e.queue) {
		return
	}
	e.currentIndex++
	e.loadTrackLocked(e.queue[e.currentIndex])
	e.persistLocked()
}

// Previous 线性后退一首，到达队首时不回绕
func (e *Engine) Previous() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentIndex <= 0 || len(e.queue) == 0 {
		return
	}
	e.currentIndex--
	e.loadTrackLocked(e.queue[e.currentIndex])
	e.persistLocked()
}

// ToggleShuffle 开启时保留当前曲目位置、只洗牌其后的尾部；
// 关闭时恢复原始顺序并把下标重定位到当前曲目在原队列中的位置。
func (e *Engine) ToggleShuffle() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.shuffleMode {
		e.shuffleMode = true
		e.originalQueue = append([]model.Track(nil), e.queue...)
		if e.currentIndex+1 < len(e.queue) {
			e.shuffleTracks(e.queue[e.currentIndex+1:])
		}
	} else {
		e.shuffleMode = false
		var currentID string
		if e.currentIndex >= 0 && e.currentIndex < len(e.queue) {
			currentID = e.queue[e.currentIndex].ID
		}
		if e.originalQueue != nil {
			e.queue = e.originalQueue
			e.originalQueue = nil
		}
		if currentID != "" {
			found := false
			for i, t := range e.queue {
				if t.ID == currentID {
					e.currentIndex = i
					found = true
					break
				}
			}
			// 曲目在随机期间被移除时退回原数字下标
			if !found && e.currentIndex >= len(e.queue) {
				e.currentIndex = len(e.queue) - 1
			}
		}
		if len(e.queue) == 0 {
			e.currentIndex = -1
		}
	}
	e.persistLocked()
}

// SetRepeatMode 设置循环模式
func (e *Engine) SetRepeatMode(mode model.RepeatMode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !mode.Valid() {
		return
	}
	e.repeatMode = mode
	e.persistLocked()
}

// SetPlaybackSpeed 设置倍速并钳制到 [0.25,2.0]，
// 同时作用于两个解码器，保证进行中的交叉淡入淡出速度一致。
func (e *Engine) SetPlaybackSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = clamp(speed, minPlaybackSpeed, maxPlaybackSpeed)
	e.deck.active.dec.SetRate(e.speed)
	e.deck.fading.dec.SetRate(e.speed)
	e.persistLocked()
}

// SetCrossfadeDuration 设置交叉淡入淡出时长（秒），下一次加载曲目时生效
func (e *Engine) SetCrossfadeDuration(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	e.crossfadeSeconds = seconds
	e.persistLocked()
}

// AddToQueue 追加曲目到队尾
func (e *Engine) AddToQueue(track model.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, track)
	e.persistLocked()
}

// RemoveFromQueue 移除指定下标的曲目并平移 currentIndex；
// 移除的是当前曲目时加载顶替其位置的曲目（若有）。
func (e *Engine) RemoveFromQueue(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.removeFromQueueLocked(index)
	e.persistLocked()
}

// JumpTo 跳转到队列中指定下标的曲目并加载
func (e *Engine) JumpTo(index int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if index < 0 || index >= len(e.queue) {
		return
	}
	e.currentIndex = index
	e.loadTrackLocked(e.queue[e.currentIndex])
	e.persistLocked()
}

// Reorder 把 from 位置的曲目移动到 to 位置，currentIndex 跟随移动规则平移
func (e *Engine) Reorder(from, to int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if from < 0 || from >= len(e.queue) || to < 0 || to >= len(e.queue) || from == to {
		return
	}

	q := append([]model.Track(nil), e.queue...)
	moved := q[from]
	q = append(q[:from], q[from+1:]...)
	rest := append([]model.Track(nil), q[to:]...)
	q = append(q[:to], moved)
	q = append(q, rest...)
	e.queue = q

	switch {
	case from == e.currentIndex:
		e.currentIndex = to
	case from < e.currentIndex && to >= e.currentIndex:
		e.currentIndex--
	case from > e.currentIndex && to <= e.currentIndex:
		e.currentIndex++
	}
	e.persistLocked()
}

// Snapshot 返回当前播放会话的持久化视图
func (e *Engine) Snapshot() model.PlayerSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// State 返回实时播放状态
func (e *Engine) State() model.PlayerState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return model.PlayerState{
		IsPlaying: e.isPlaying,
		IsLoading: e.isLoading,
		Position:  e.deck.active.dec.Position(),
		Duration:  e.deck.active.dec.Duration(),
		LastError: e.lastError,
	}
}

// CurrentTrack 返回当前曲目，未加载时第二个返回值为 false
func (e *Engine) CurrentTrack() (model.Track, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentIndex < 0 || e.currentIndex >= len(e.queue) {
		return model.Track{}, false
	}
	return e.queue[e.currentIndex], true
}

// QueueTracks 返回队列的拷贝
func (e *Engine) QueueTracks() []model.Track {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]model.Track(nil), e.queue...)
}

// Close 停止播放并取消未完成的渐变
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopPlaybackLocked()
	e.deck.fading.dec.Stop()
}

// ---- internal ----

// onDecoderEnded 解码器自然播放结束回调，淡出槽位的结束事件不推进队列
func (e *Engine) onDecoderEnded(s *deckSlot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s != e.deck.active {
		return
	}
	e.handleTrackEndedLocked()
	e.persistLocked()
}

// handleTrackEndedLocked 自然结束处理：
// 单曲循环回到开头重播；列表循环推进并在队尾回绕，队列不消耗；
// 顺序播放移除已完成曲目并推进，队列播完即停。
func (e *Engine) handleTrackEndedLocked() {
	if e.currentIndex < 0 || e.currentIndex >= len(e.queue) {
		return
	}
	switch e.repeatMode {
	case model.RepeatOne:
		dec := e.deck.active.dec
		dec.Seek(0)
		if err := dec.Play(); err != nil {
			e.isPlaying = false
			e.lastError = fmt.Sprintf("decoder failed to replay: %v", err)
		} else {
			e.isPlaying = true
		}
	case model.RepeatAll:
		e.currentIndex = (e.currentIndex + 1) % len(e.queue)
		e.loadTrackLocked(e.queue[e.currentIndex])
	default:
		e.removeFromQueueLocked(e.currentIndex)
	}
}

func (e *Engine) removeFromQueueLocked(index int) {
	if index < 0 || index >= len(e.queue) {
		return
	}
	q := append([]model.Track(nil), e.queue[:index]...)
	e.queue = append(q, e.queue[index+1:]...)

	switch {
	case len(e.queue) == 0:
		e.currentIndex = -1
		e.stopPlaybackLocked()
	case index < e.currentIndex:
		e.currentIndex--
	case index == e.currentIndex:
		if e.currentIndex >= len(e.queue) {
			e.currentIndex = len(e.queue) - 1
			e.stopPlaybackLocked()
		} else {
			e.loadTrackLocked(e.queue[e.currentIndex])
		}
	}
}

// resolveSource 解析曲目的媒体源，远端解析失败时回退本地缓存
func (e *Engine) resolveSource(track model.Track) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	src, err := e.resolver.ResolveStreamURL(ctx, track.ID)
	if err == nil {
		return src, nil
	}
	if e.offline != nil && e.offline.IsSongOffline(ctx, track.ID) {
		logger.Info("流地址解析失败，回退本地缓存播放",
			logger.String("songId", track.ID),
			logger.ErrorField(err))
		return e.offline.MediaPath(track.ID), nil
	}
	return "", err
}

// loadTrackLocked 加载曲目。满足交叉淡入淡出条件时走双槽换角路径，
// 否则停掉主解码器直接换源。
func (e *Engine) loadTrackLocked(track model.Track) {
	e.isLoading = true
	e.lastError = ""

	src, err := e.resolveSource(track)
	if err != nil {
		e.isLoading = false
		e.isPlaying = false
		e.lastError = fmt.Sprintf("failed to resolve media for %s: %v", track.ID, err)
		logger.Error("媒体源解析失败",
			logger.String("songId", track.ID),
			logger.ErrorField(err))
		return
	}

	target := e.effectiveVolume()
	if e.crossfadeSeconds > 0 && e.isPlaying && e.deck.active.dec.Source() != "" {
		e.crossfadeToLocked(track, src, target)
		return
	}

	slot := e.deck.active
	slot.cancelFade()
	slot.dec.Stop()
	if err := slot.dec.Load(src); err != nil {
		e.isLoading = false
		e.isPlaying = false
		e.lastError = fmt.Sprintf("decoder failed to load %s: %v", track.ID, err)
		return
	}
	slot.dec.SetRate(e.speed)
	slot.dec.SetVolume(target)
	if err := slot.dec.Play(); err != nil {
		e.isLoading = false
		e.isPlaying = false
		e.lastError = fmt.Sprintf("decoder failed to play %s: %v", track.ID, err)
		return
	}
	e.isLoading = false
	e.isPlaying = true
}

// crossfadeToLocked 双槽换角：fading 槽位接管新曲目成为主解码器，
// 旧主解码器淡出至静音后停止并回绕。两个渐变各自独立计时，
// 启动前先取消两个槽位上遗留的渐变任务，避免音量被并发写坏。
func (e *Engine) crossfadeToLocked(track model.Track, src string, target float64) {
	duration := time.Duration(e.crossfadeSeconds * float64(time.Second))

	e.deck.active.cancelFade()
	e.deck.fading.cancelFade()
	e.deck.swap()

	in := e.deck.active
	out := e.deck.fading

	in.dec.Stop()
	if err := in.dec.Load(src); err != nil {
		// 新曲目加载失败，换回原角色，旧曲目继续播放
		e.deck.swap()
		e.isLoading = false
		e.lastError = fmt.Sprintf("decoder failed to load %s: %v", track.ID, err)
		return
	}
	in.dec.SetRate(e.speed)
	in.dec.SetVolume(0)
	if err := in.dec.Play(); err != nil {
		e.deck.swap()
		e.isLoading = false
		e.lastError = fmt.Sprintf("decoder failed to play %s: %v", track.ID, err)
		return
	}
	e.isLoading = false
	e.isPlaying = true

	outDec := out.dec
	out.fade = startFade(outDec, target, 0, duration, func() {
		outDec.Stop()
		outDec.Seek(0)
	})
	in.fade = startFade(in.dec, 0, target, duration, nil)
}

func (e *Engine) stopPlaybackLocked() {
	e.deck.active.cancelFade()
	e.deck.fading.cancelFade()
	e.deck.active.dec.Stop()
	e.isPlaying = false
}

func (e *Engine) effectiveVolume() float64 {
	if e.muted {
		return 0
	}
	return e.volume
}

// shuffleTracks Fisher-Yates 洗牌，原地打乱
func (e *Engine) shuffleTracks(tracks []model.Track) {
	for i := len(tracks) - 1; i > 0; i-- {
		j := e.rng.Intn(i + 1)
		tracks[i], tracks[j] = tracks[j], tracks[i]
	}
}

func (e *Engine) snapshotLocked() model.PlayerSnapshot {
	return model.PlayerSnapshot{
		Queue:            append([]model.Track(nil), e.queue...),
		OriginalQueue:    append([]model.Track(nil), e.originalQueue...),
		CurrentIndex:     e.currentIndex,
		ShuffleMode:      e.shuffleMode,
		RepeatMode:       e.repeatMode,
		Volume:           e.volume,
		Muted:            e.muted,
		PlaybackSpeed:    e.speed,
		CrossfadeSeconds: e.crossfadeSeconds,
		Position:         e.deck.active.dec.Position(),
		UpdatedAt:        time.Now().UnixMilli(),
	}
}

// persistLocked 写穿式持久化，失败只记日志不中断播放操作
func (e *Engine) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := e.st.Put(ctx, store.CollectionPlayer, snapshotKey, e.snapshotLocked()); err != nil {
		logger.Warn("播放快照写入失败", logger.ErrorField(err))
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
