package ctimer

import (
	"sync"
	"time"
)

const (
	StatusIdle = iota
	StatusRepeatWaiting
	StatusCancelled
)

type ICTimer interface {
	Repeat()
	Cancel()
}

// CTimer runs job every interval after Repeat until Cancel. A cancelled timer may be repeated
// again.
type CTimer struct {
	job      func()
	interval time.Duration
	lock     *sync.Mutex
	status   uint8
	stop     chan struct{}
}

func New(interval time.Duration, job func()) ICTimer {
	return &CTimer{
		job:      job,
		interval: interval,
		lock:     new(sync.Mutex),
		status:   StatusIdle,
	}
}

func (t *CTimer) Repeat() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.status == StatusRepeatWaiting {
		return
	}
	t.status = StatusRepeatWaiting
	t.stop = make(chan struct{})
	go t.waitAndRun(t.stop)
}

func (t *CTimer) waitAndRun(stop chan struct{}) {
	timer := time.NewTimer(t.interval)
	defer timer.Stop()
	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			select {
			case <-stop:
				return
			default:
			}
			t.job()
			timer.Reset(t.interval)
		}
	}
}

// Cancel stops future runs. A job already running is not interrupted.
func (t *CTimer) Cancel() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.status != StatusRepeatWaiting {
		return
	}
	t.status = StatusCancelled
	close(t.stop)
}
