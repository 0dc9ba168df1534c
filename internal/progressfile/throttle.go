package progressfile

import (
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between routine writes for one course.
const DefaultInterval = 60 * time.Second

// Throttle rate-limits actions per key.
type Throttle struct {
	interval time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewThrottle constructs a throttle. A non-positive interval uses DefaultInterval.
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{interval: interval, now: time.Now, last: make(map[string]time.Time)}
}

// Attempt runs action unless one ran for key within the interval. It reports
// whether action ran. A failed action does not consume the window.
func (t *Throttle) Attempt(key string, action func() error) (bool, error) {
	t.mu.Lock()
	now := t.now()
	if last, ok := t.last[key]; ok && now.Sub(last) < t.interval {
		t.mu.Unlock()
		return false, nil
	}
	t.last[key] = now
	t.mu.Unlock()

	if err := action(); err != nil {
		t.forget(key, now)
		return true, err
	}
	return true, nil
}

// Force runs action immediately and restarts the window for key.
func (t *Throttle) Force(key string, action func() error) error {
	t.mu.Lock()
	now := t.now()
	t.last[key] = now
	t.mu.Unlock()

	if err := action(); err != nil {
		t.forget(key, now)
		return err
	}
	return nil
}

// Reset clears the window for key.
func (t *Throttle) Reset(key string) {
	t.mu.Lock()
	delete(t.last, key)
	t.mu.Unlock()
}

func (t *Throttle) forget(key string, at time.Time) {
	t.mu.Lock()
	if t.last[key].Equal(at) {
		delete(t.last, key)
	}
	t.mu.Unlock()
}
