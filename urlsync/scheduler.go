package urlsync

import (
	"sync"
	"time"
)

// DeferredScheduler runs each task on its own timer goroutine after a delay.
type DeferredScheduler struct {
	delay time.Duration
}

// NewDeferredScheduler creates a scheduler that runs tasks after delay.
func NewDeferredScheduler(delay time.Duration) *DeferredScheduler {
	return &DeferredScheduler{delay: delay}
}

// Schedule runs task after the configured delay.
func (d *DeferredScheduler) Schedule(task func()) {
	time.AfterFunc(d.delay, task)
}

// Manual queues tasks until RunPending is called. It makes the end of a
// cycle explicit, which keeps tests deterministic.
type Manual struct {
	mu    sync.Mutex
	tasks []func()
}

// NewManual creates a manual scheduler.
func NewManual() *Manual {
	return &Manual{}
}

// Schedule queues task.
func (m *Manual) Schedule(task func()) {
	m.mu.Lock()
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
}

// Len returns the number of queued tasks.
func (m *Manual) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// RunPending runs queued tasks, including tasks queued while running, and
// returns how many ran.
func (m *Manual) RunPending() int {
	ran := 0
	for {
		m.mu.Lock()
		tasks := m.tasks
		m.tasks = nil
		m.mu.Unlock()

		if len(tasks) == 0 {
			return ran
		}
		for _, task := range tasks {
			task()
			ran++
		}
	}
}
