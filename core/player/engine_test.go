package player

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"Bt1QPlayer/model"
	"Bt1QPlayer/store"
)

func makeTracks(ids ...string) []model.Track {
	ts := make([]model.Track, len(ids))
	for i, id := range ids {
		ts[i] = model.Track{ID: id, Title: "Track " + id, Artist: "tester"}
	}
	return ts
}

func newTestEngine(t *testing.T, ids ...string) (*Engine, *fakeDecoder, *fakeDecoder, *store.MemoryStore) {
	t.Helper()
	decs := []*fakeDecoder{newFakeDecoder(), newFakeDecoder()}
	next := 0
	factory := func() Decoder {
		d := decs[next]
		next++
		return d
	}
	st := store.NewMemoryStore()
	e := NewEngine(st, factory, newFakeResolver(ids...))
	return e, decs[0], decs[1], st
}

func currentID(t *testing.T, e *Engine) string {
	t.Helper()
	tr, ok := e.CurrentTrack()
	if !ok {
		t.Fatal("no current track")
	}
	return tr.ID
}

func TestSetQueueAndLinearNext(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A", "B", "C")

	e.SetQueue(makeTracks("A", "B", "C"), 1)
	if got := currentID(t, e); got != "B" {
		t.Fatalf("current = %s, want B", got)
	}
	if src, playing, _, _ := dec.snapshot(); src != "http://stream/B" || !playing {
		t.Errorf("decoder source=%q playing=%v, want B playing", src, playing)
	}

	e.Next()
	if got := currentID(t, e); got != "C" {
		t.Fatalf("after next current = %s, want C", got)
	}

	// 队尾不回绕
	e.Next()
	if got := currentID(t, e); got != "C" {
		t.Errorf("next at tail moved to %s, want no-op", got)
	}

	e.Previous()
	e.Previous()
	if got := currentID(t, e); got != "A" {
		t.Fatalf("after two previous current = %s, want A", got)
	}
	e.Previous()
	if got := currentID(t, e); got != "A" {
		t.Errorf("previous at head moved to %s, want no-op", got)
	}
}

func TestSetQueueOutOfBoundsStartIndex(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A", "B")

	e.SetQueue(makeTracks("A", "B"), 5)
	if _, ok := e.CurrentTrack(); ok {
		t.Error("no track should be loaded for out-of-bounds start index")
	}
	if len(e.QueueTracks()) != 2 {
		t.Error("queue should still be replaced")
	}
	if src, _, _, _ := dec.snapshot(); src != "" {
		t.Errorf("decoder loaded %q, want nothing", src)
	}
}

func TestShuffleRoundTrip(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "A", "B", "C", "D", "E", "F")
	original := makeTracks("A", "B", "C", "D", "E", "F")

	e.SetQueue(original, 2)
	before := currentID(t, e)

	e.ToggleShuffle()
	if got := currentID(t, e); got != before {
		t.Fatalf("shuffle-on changed current track to %s", got)
	}
	// 当前曲目之前的部分不参与洗牌
	q := e.QueueTracks()
	for i := 0; i <= 2; i++ {
		if q[i].ID != original[i].ID {
			t.Errorf("position %d changed to %s during tail shuffle", i, q[i].ID)
		}
	}

	e.ToggleShuffle()
	q = e.QueueTracks()
	if len(q) != len(original) {
		t.Fatalf("queue length %d after round trip, want %d", len(q), len(original))
	}
	for i := range original {
		if q[i].ID != original[i].ID {
			t.Errorf("position %d = %s, want %s", i, q[i].ID, original[i].ID)
		}
	}
	if got := currentID(t, e); got != before {
		t.Errorf("current track %s after round trip, want %s", got, before)
	}
}

func TestSetQueueWhileShuffledRelocatesStartTrack(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "A", "B", "C", "D", "E")

	e.ToggleShuffle()
	tracks := makeTracks("A", "B", "C", "D", "E")
	e.SetQueue(tracks, 3)

	// 请求的曲目必须成为当前曲目，无论洗牌后落在哪个位置
	if got := currentID(t, e); got != "D" {
		t.Errorf("current = %s, want D", got)
	}
	snap := e.Snapshot()
	if snap.CurrentIndex < 0 || snap.CurrentIndex >= len(snap.Queue) {
		t.Errorf("currentIndex %d out of bounds", snap.CurrentIndex)
	}
	if len(snap.OriginalQueue) != len(tracks) {
		t.Errorf("originalQueue length %d, want %d", len(snap.OriginalQueue), len(tracks))
	}
}

func TestQueueEditsKeepIndexInvariant(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "A", "B", "C", "D")
	e.SetQueue(makeTracks("A", "B", "C", "D"), 2)

	// 移除当前曲目之前的项，下标下移
	e.RemoveFromQueue(0)
	if got := currentID(t, e); got != "C" {
		t.Fatalf("current %s after removing earlier item, want C", got)
	}
	if snap := e.Snapshot(); snap.CurrentIndex != 1 {
		t.Errorf("currentIndex = %d, want 1", snap.CurrentIndex)
	}

	// 移除当前曲目之后的项，下标不变
	e.RemoveFromQueue(2)
	if got := currentID(t, e); got != "C" {
		t.Errorf("current %s after removing later item, want C", got)
	}

	// 追加与跳转
	e.AddToQueue(model.Track{ID: "E", Title: "Track E"})
	e.JumpTo(2)
	if got := currentID(t, e); got != "E" {
		t.Errorf("current %s after jump, want E", got)
	}

	// 移除当前曲目，顶替位置的曲目被加载；此处 E 是队尾，回退到前一项
	e.RemoveFromQueue(2)
	snap := e.Snapshot()
	if snap.CurrentIndex != 1 {
		t.Errorf("currentIndex = %d after removing tail current, want 1", snap.CurrentIndex)
	}

	// 清空队列
	e.RemoveFromQueue(1)
	e.RemoveFromQueue(0)
	if snap := e.Snapshot(); snap.CurrentIndex != -1 {
		t.Errorf("currentIndex = %d on empty queue, want -1", snap.CurrentIndex)
	}
}

func TestRemoveCurrentLoadsReplacement(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "A", "B", "C")
	e.SetQueue(makeTracks("A", "B", "C"), 1)

	e.RemoveFromQueue(1)
	if got := currentID(t, e); got != "C" {
		t.Errorf("current = %s after removing current, want C", got)
	}
	if snap := e.Snapshot(); snap.CurrentIndex != 1 {
		t.Errorf("currentIndex = %d, want 1", snap.CurrentIndex)
	}
}

func TestReorderFollowsMovedTrack(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "A", "B", "C", "D")
	e.SetQueue(makeTracks("A", "B", "C", "D"), 1)

	// 移动当前曲目本身
	e.Reorder(1, 3)
	if got := currentID(t, e); got != "B" {
		t.Fatalf("current = %s after moving current track, want B", got)
	}
	if snap := e.Snapshot(); snap.CurrentIndex != 3 {
		t.Errorf("currentIndex = %d, want 3", snap.CurrentIndex)
	}

	// 把队首元素移过当前位置，下标左移一位
	e.Reorder(0, 3)
	if got := currentID(t, e); got != "B" {
		t.Errorf("current = %s after cross move, want B", got)
	}
	if snap := e.Snapshot(); snap.CurrentIndex != 2 {
		t.Errorf("currentIndex = %d, want 2", snap.CurrentIndex)
	}
}

func TestRepeatOneIdempotent(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A", "B", "C")
	e.SetQueue(makeTracks("A", "B", "C"), 1)
	e.SetRepeatMode(model.RepeatOne)

	for i := 0; i < 5; i++ {
		dec.FireEnded()
	}

	if got := currentID(t, e); got != "B" {
		t.Errorf("current = %s after repeated track-ended, want B", got)
	}
	if got := len(e.QueueTracks()); got != 3 {
		t.Errorf("queue length = %d, want 3", got)
	}
	if pos := dec.Position(); pos != 0 {
		t.Errorf("position = %f, want 0 (rewound)", pos)
	}
	if st := e.State(); !st.IsPlaying {
		t.Error("should still be playing")
	}
}

func TestRepeatOffDrainsQueueAndStops(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A", "B")
	e.SetQueue(makeTracks("A", "B"), 0)

	dec.FireEnded()
	if got := currentID(t, e); got != "B" {
		t.Fatalf("current = %s after first end, want B", got)
	}
	if got := len(e.QueueTracks()); got != 1 {
		t.Fatalf("queue length = %d, want 1", got)
	}

	dec.FireEnded()
	if got := len(e.QueueTracks()); got != 0 {
		t.Errorf("queue length = %d, want 0", got)
	}
	if snap := e.Snapshot(); snap.CurrentIndex != -1 {
		t.Errorf("currentIndex = %d, want -1", snap.CurrentIndex)
	}
	if st := e.State(); st.IsPlaying {
		t.Error("playback should stop after the queue drains")
	}
}

func TestRepeatAllWrapsWithoutDraining(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A", "B")
	e.SetQueue(makeTracks("A", "B"), 1)
	e.SetRepeatMode(model.RepeatAll)

	dec.FireEnded()
	if got := currentID(t, e); got != "A" {
		t.Errorf("current = %s after wrap, want A", got)
	}
	if got := len(e.QueueTracks()); got != 2 {
		t.Errorf("queue length = %d, want 2 (list repeat keeps the queue)", got)
	}
}

func TestVolumeClampAndAutoUnmute(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A")
	e.SetQueue(makeTracks("A"), 0)

	e.SetVolume(1.7)
	if snap := e.Snapshot(); snap.Volume != 1 {
		t.Errorf("volume = %f, want clamped to 1", snap.Volume)
	}
	e.SetVolume(-0.5)
	if snap := e.Snapshot(); snap.Volume != 0 {
		t.Errorf("volume = %f, want clamped to 0", snap.Volume)
	}

	e.SetVolume(0.8)
	e.ToggleMute()
	if _, _, vol, _ := dec.snapshot(); vol != 0 {
		t.Errorf("decoder volume = %f while muted, want 0", vol)
	}

	// 静音状态下设置非零音量自动解除静音
	e.SetVolume(0.5)
	snap := e.Snapshot()
	if snap.Muted {
		t.Error("setting non-zero volume should unmute")
	}
	if _, _, vol, _ := dec.snapshot(); vol != 0.5 {
		t.Errorf("decoder volume = %f, want 0.5", vol)
	}
}

func TestToggleMuteRestoresVolume(t *testing.T) {
	e, _, _, _ := newTestEngine(t, "A")
	e.SetQueue(makeTracks("A"), 0)

	e.SetVolume(0.6)
	e.ToggleMute()
	if snap := e.Snapshot(); !snap.Muted {
		t.Fatal("expected muted")
	}
	e.ToggleMute()
	snap := e.Snapshot()
	if snap.Muted {
		t.Fatal("expected unmuted")
	}
	if snap.Volume != 0.6 {
		t.Errorf("volume = %f after unmute, want 0.6", snap.Volume)
	}
}

func TestPlaybackSpeedClampAppliesToBothDecoders(t *testing.T) {
	e, decA, decB, _ := newTestEngine(t, "A")
	e.SetQueue(makeTracks("A"), 0)

	e.SetPlaybackSpeed(5)
	if _, _, _, rate := decA.snapshot(); rate != maxPlaybackSpeed {
		t.Errorf("active rate = %f, want %f", rate, maxPlaybackSpeed)
	}
	if _, _, _, rate := decB.snapshot(); rate != maxPlaybackSpeed {
		t.Errorf("fader rate = %f, want %f", rate, maxPlaybackSpeed)
	}

	e.SetPlaybackSpeed(0.01)
	if snap := e.Snapshot(); snap.PlaybackSpeed != minPlaybackSpeed {
		t.Errorf("speed = %f, want %f", snap.PlaybackSpeed, minPlaybackSpeed)
	}
}

func TestPlayOnUnloadedSessionLoadsCurrent(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A", "B")
	e.SetQueue(makeTracks("A", "B"), 1)
	e.Pause()
	dec.Stop() // 模拟媒体源丢失

	e.Play()
	if src, playing, _, _ := dec.snapshot(); src != "http://stream/B" || !playing {
		t.Errorf("play on unset source should reload current track, got src=%q playing=%v", src, playing)
	}
}

func TestLoadAndPlayErrorsAreDistinct(t *testing.T) {
	e, dec, _, _ := newTestEngine(t, "A")
	dec.loadErr = fmt.Errorf("codec not supported")

	e.SetQueue(makeTracks("A"), 0)
	st := e.State()
	if st.IsPlaying {
		t.Error("should not be playing after load failure")
	}
	if !strings.Contains(st.LastError, "load") {
		t.Errorf("lastError %q should mention load failure", st.LastError)
	}

	dec.loadErr = nil
	dec.playErr = fmt.Errorf("device busy")
	e.Play()
	if st := e.State(); !strings.Contains(st.LastError, "play") {
		t.Errorf("lastError %q should mention play failure", st.LastError)
	}
}

func TestResolveFailureFallsBackToOfflineCache(t *testing.T) {
	e, dec, _, _ := newTestEngine(t) // resolver knows no songs
	e.SetOfflineSource(&fakeOffline{cached: map[string]bool{"A": true}})

	e.SetQueue(makeTracks("A"), 0)
	if src, playing, _, _ := dec.snapshot(); src != "/cache/A.mp3" || !playing {
		t.Errorf("got src=%q playing=%v, want offline cache path playing", src, playing)
	}
	if st := e.State(); st.LastError != "" {
		t.Errorf("unexpected lastError %q", st.LastError)
	}
}

func TestResolveFailureWithoutCacheSetsError(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	e.SetQueue(makeTracks("Z"), 0)
	st := e.State()
	if st.IsPlaying {
		t.Error("should not be playing")
	}
	if st.LastError == "" {
		t.Error("expected lastError to be set")
	}
}

func TestSnapshotPersistsAndRestores(t *testing.T) {
	e, _, _, st := newTestEngine(t, "A", "B", "C")
	e.SetQueue(makeTracks("A", "B", "C"), 1)
	e.SetVolume(0.4)
	e.SetRepeatMode(model.RepeatAll)
	e.SetCrossfadeDuration(2.5)
	e.SetPlaybackSpeed(1.5)

	decs := []*fakeDecoder{newFakeDecoder(), newFakeDecoder()}
	next := 0
	e2 := NewEngine(st, func() Decoder {
		d := decs[next]
		next++
		return d
	}, newFakeResolver("A", "B", "C"))
	if err := e2.Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	snap := e2.Snapshot()
	if len(snap.Queue) != 3 || snap.CurrentIndex != 1 {
		t.Errorf("restored queue=%d index=%d, want 3/1", len(snap.Queue), snap.CurrentIndex)
	}
	if snap.Volume != 0.4 || snap.RepeatMode != model.RepeatAll ||
		snap.CrossfadeSeconds != 2.5 || snap.PlaybackSpeed != 1.5 {
		t.Errorf("restored settings mismatch: %+v", snap)
	}
}
