package player

import (
	"context"
	"fmt"
	"sync"
)

// fakeDecoder is an in-memory Decoder for tests. It records every volume
// write so fade behavior can be asserted.
type fakeDecoder struct {
	mu        sync.Mutex
	source    string
	playing   bool
	position  float64
	duration  float64
	volume    float64
	rate      float64
	loadErr   error
	playErr   error
	volumeLog []float64
	loads     int
	plays     int
	stops     int
	onEnded   func()
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{volume: 1, rate: 1, duration: 180}
}

func (d *fakeDecoder) Load(src string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.loadErr != nil {
		return d.loadErr
	}
	d.source = src
	d.position = 0
	d.loads++
	return nil
}

func (d *fakeDecoder) Play() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playErr != nil {
		return d.playErr
	}
	if d.source == "" {
		return fmt.Errorf("no source loaded")
	}
	d.playing = true
	d.plays++
	return nil
}

func (d *fakeDecoder) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
}

func (d *fakeDecoder) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = false
	d.source = ""
	d.stops++
}

func (d *fakeDecoder) Seek(seconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = seconds
}

func (d *fakeDecoder) SetVolume(v float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = v
	d.volumeLog = append(d.volumeLog, v)
}

func (d *fakeDecoder) SetRate(rate float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rate = rate
}

func (d *fakeDecoder) Position() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.position
}

func (d *fakeDecoder) Duration() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.duration
}

func (d *fakeDecoder) Source() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.source
}

func (d *fakeDecoder) OnEnded(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onEnded = fn
}

// FireEnded simulates a natural end-of-track event.
func (d *fakeDecoder) FireEnded() {
	d.mu.Lock()
	fn := d.onEnded
	d.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (d *fakeDecoder) snapshot() (source string, playing bool, volume, rate float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.source, d.playing, d.volume, d.rate
}

func (d *fakeDecoder) volumes() []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]float64(nil), d.volumeLog...)
}

// fakeResolver maps song IDs to media URLs.
type fakeResolver struct {
	mu   sync.Mutex
	urls map[string]string
	err  error
}

func newFakeResolver(ids ...string) *fakeResolver {
	r := &fakeResolver{urls: make(map[string]string)}
	for _, id := range ids {
		r.urls[id] = "http://stream/" + id
	}
	return r
}

func (r *fakeResolver) ResolveStreamURL(ctx context.Context, songID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	u, ok := r.urls[songID]
	if !ok {
		return "", fmt.Errorf("unknown song %s", songID)
	}
	return u, nil
}

// fakeOffline is an OfflineSource backed by a set of cached IDs.
type fakeOffline struct {
	cached map[string]bool
}

func (f *fakeOffline) IsSongOffline(ctx context.Context, songID string) bool {
	return f.cached[songID]
}

func (f *fakeOffline) MediaPath(songID string) string {
	return "/cache/" + songID + ".mp3"
}
