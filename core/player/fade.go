package player

import (
	"sync"
	"time"
)

// fadeSteps 线性渐变的固定步数
const fadeSteps = 20

// fadeTask 在独立 goroutine 中按固定步数线性调整解码器音量。
// 任务可取消；取消后不再触发任何音量写入和完成回调。
type fadeTask struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// startFade 启动渐变任务，duration 内以 fadeSteps 步把音量从 from 调到 to，
// 正常走完所有步数后调用 onDone。
func startFade(dec Decoder, from, to float64, duration time.Duration, onDone func()) *fadeTask {
	t := &fadeTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run(dec, from, to, duration, onDone)
	return t
}

func (t *fadeTask) run(dec Decoder, from, to float64, duration time.Duration, onDone func()) {
	defer close(t.done)

	interval := duration / fadeSteps
	if interval <= 0 {
		interval = time.Millisecond
	}
	step := (to - from) / fadeSteps

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 1; i <= fadeSteps; i++ {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if i == fadeSteps {
				// 最后一步落在精确目标值，避免浮点误差累积
				dec.SetVolume(to)
			} else {
				dec.SetVolume(from + step*float64(i))
			}
		}
	}

	if onDone != nil {
		onDone()
	}
}

// Cancel 取消渐变，可重复调用
func (t *fadeTask) Cancel() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
}

// Wait 阻塞到任务退出
func (t *fadeTask) Wait() {
	<-t.done
}
