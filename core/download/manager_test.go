package download

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"Bt1QPlayer/model"
	"Bt1QPlayer/store"
)

func newTestManager(t *testing.T, quotaBytes int64) (*Manager, *store.MemoryStore, *httptest.Server) {
	t.Helper()

	payload := bytes.Repeat([]byte("x"), 4096)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/broken") {
			http.Error(w, "gone", http.StatusNotFound)
			return
		}
		w.Write(payload)
	}))
	t.Cleanup(srv.Close)

	st := store.NewMemoryStore()
	dir := t.TempDir()
	m, err := NewManager(Options{
		Store:    st,
		Fetcher:  NewHTTPFetcher(nil),
		Quota:    &DirQuotaProvider{Dir: dir, QuotaBytes: quotaBytes},
		MediaDir: dir,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m, st, srv
}

// collectProgress runs a download and returns every progress update until the
// terminal one.
func collectProgress(t *testing.T, m *Manager, req Request) []model.ProgressUpdate {
	t.Helper()
	updates := make(chan model.ProgressUpdate, 128)
	err := m.QueueDownload(context.Background(), req, func(u model.ProgressUpdate) {
		updates <- u
	})
	if err != nil {
		t.Fatalf("QueueDownload: %v", err)
	}

	var got []model.ProgressUpdate
	deadline := time.After(5 * time.Second)
	for {
		select {
		case u := <-updates:
			got = append(got, u)
			if u.Status == model.DownloadCompleted || u.Status == model.DownloadFailed {
				return got
			}
		case <-deadline:
			t.Fatalf("download did not terminate, got %d updates", len(got))
		}
	}
}

func TestDownloadHappyPath(t *testing.T) {
	m, _, srv := newTestManager(t, 0)
	ctx := context.Background()

	updates := collectProgress(t, m, Request{
		SongID: "s1", Title: "One", Artist: "tester", MediaURL: srv.URL + "/s1",
	})

	if first := updates[0]; first.Status != model.DownloadQueued || first.Progress != 0 {
		t.Fatalf("first update %+v, want queued/0", first)
	}
	last := updates[len(updates)-1]
	if last.Status != model.DownloadCompleted || last.Progress != 100 {
		t.Fatalf("terminal update %+v, want completed/100", last)
	}
	// 进度单调不减
	prev := -1
	for _, u := range updates {
		if u.Progress < prev {
			t.Errorf("progress regressed: %d -> %d", prev, u.Progress)
		}
		prev = u.Progress
	}

	if !m.IsSongOffline(ctx, "s1") {
		t.Error("song should be offline after completed download")
	}
	data, err := m.ReadMedia("s1")
	if err != nil {
		t.Fatalf("ReadMedia: %v", err)
	}
	if len(data) != 4096 {
		t.Errorf("cached %d bytes, want 4096", len(data))
	}

	songs, err := m.GetOfflineSongs(ctx)
	if err != nil {
		t.Fatalf("GetOfflineSongs: %v", err)
	}
	if len(songs) != 1 || songs[0].SongID != "s1" || songs[0].ContentLength != 4096 {
		t.Errorf("unexpected offline songs %+v", songs)
	}
}

func TestDownloadFailureLeavesNoRecord(t *testing.T) {
	m, _, srv := newTestManager(t, 0)
	ctx := context.Background()

	updates := collectProgress(t, m, Request{
		SongID: "bad", Title: "Bad", MediaURL: srv.URL + "/broken",
	})
	last := updates[len(updates)-1]
	if last.Status != model.DownloadFailed || last.Error == "" {
		t.Fatalf("terminal update %+v, want failed with error", last)
	}

	if m.IsSongOffline(ctx, "bad") {
		t.Error("failed download must not leave an offline record")
	}
	if _, err := os.Stat(m.MediaPath("bad")); !os.IsNotExist(err) {
		t.Error("failed download must not leave a media file")
	}
}

func TestQuotaExceededIsDistinguished(t *testing.T) {
	m, _, srv := newTestManager(t, 1024) // 配额小于响应体
	updates := collectProgress(t, m, Request{
		SongID: "big", Title: "Big", MediaURL: srv.URL + "/big",
	})

	last := updates[len(updates)-1]
	if last.Status != model.DownloadFailed {
		t.Fatalf("terminal update %+v, want failed", last)
	}
	if !strings.Contains(last.Error, ErrQuotaExceeded.Error()) {
		t.Errorf("error %q should identify quota exhaustion", last.Error)
	}
	if m.IsSongOffline(context.Background(), "big") {
		t.Error("over-quota download must not be committed")
	}
}

func TestRemoveSongIdempotent(t *testing.T) {
	m, _, srv := newTestManager(t, 0)
	ctx := context.Background()

	collectProgress(t, m, Request{SongID: "s1", MediaURL: srv.URL + "/s1"})
	if err := m.RemoveSong(ctx, "s1"); err != nil {
		t.Fatalf("RemoveSong: %v", err)
	}
	if m.IsSongOffline(ctx, "s1") {
		t.Error("song still offline after removal")
	}
	// 再删一次不报错
	if err := m.RemoveSong(ctx, "s1"); err != nil {
		t.Errorf("second RemoveSong should be a no-op, got %v", err)
	}
}

func TestClearAllOfflineData(t *testing.T) {
	m, _, srv := newTestManager(t, 0)
	ctx := context.Background()

	collectProgress(t, m, Request{SongID: "a", MediaURL: srv.URL + "/a"})
	collectProgress(t, m, Request{SongID: "b", MediaURL: srv.URL + "/b"})

	if err := m.ClearAllOfflineData(ctx); err != nil {
		t.Fatalf("ClearAllOfflineData: %v", err)
	}
	songs, err := m.GetOfflineSongs(ctx)
	if err != nil {
		t.Fatalf("GetOfflineSongs: %v", err)
	}
	if len(songs) != 0 {
		t.Errorf("got %d offline songs after clear, want 0", len(songs))
	}
	if _, err := os.Stat(m.MediaPath("a")); !os.IsNotExist(err) {
		t.Error("media files should be removed by clear")
	}
}

func TestStorageStats(t *testing.T) {
	m, _, srv := newTestManager(t, 10*4096)
	ctx := context.Background()

	collectProgress(t, m, Request{SongID: "a", MediaURL: srv.URL + "/a"})

	stats, err := m.GetStorageStats(ctx)
	if err != nil {
		t.Fatalf("GetStorageStats: %v", err)
	}
	if stats.OfflineCount != 1 || stats.OfflineBytes != 4096 {
		t.Errorf("stats %+v, want one 4096-byte record", stats)
	}
	if stats.UsageBytes != 4096 {
		t.Errorf("usage = %d, want 4096", stats.UsageBytes)
	}
	if stats.PercentUsed != 10 {
		t.Errorf("percentUsed = %f, want 10", stats.PercentUsed)
	}
	if stats.NearCapacity() {
		t.Error("10%% usage should not be near capacity")
	}
}

func TestQueueDownloadValidation(t *testing.T) {
	m, _, _ := newTestManager(t, 0)
	if err := m.QueueDownload(context.Background(), Request{}, nil); err == nil {
		t.Error("expected validation error for empty request")
	}
}

func TestQuotaProviderFailureDoesNotBlockDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	m, err := NewManager(Options{
		Store:    store.NewMemoryStore(),
		Fetcher:  NewHTTPFetcher(nil),
		Quota:    failingQuota{},
		MediaDir: dir,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	updates := collectProgress(t, m, Request{SongID: "s", MediaURL: srv.URL})
	if last := updates[len(updates)-1]; last.Status != model.DownloadCompleted {
		t.Errorf("terminal update %+v, want completed", last)
	}
}

type failingQuota struct{}

func (failingQuota) Estimate(ctx context.Context) (int64, int64, error) {
	return 0, 0, errors.New("quota api unavailable")
}
