package ringbuf

import "time"

// Mutex is an exclusive lock whose acquisition is bounded in time.
// The zero value is not usable; create one with NewMutex.
type Mutex struct {
	sem chan struct{}
}

func NewMutex() *Mutex {
	return &Mutex{sem: make(chan struct{}, 1)}
}

// TryLock acquires the lock, waiting at most wait. It reports whether the
// lock is now held; on false the caller must not touch guarded state.
func (m *Mutex) TryLock(wait time.Duration) bool {
	select {
	case m.sem <- struct{}{}:
		return true
	default:
	}

	if wait <= 0 {
		return false
	}

	t := time.NewTimer(wait)
	defer t.Stop()

	select {
	case m.sem <- struct{}{}:
		return true
	case <-t.C:
		return false
	}
}

// Unlock releases a lock obtained through TryLock.
func (m *Mutex) Unlock() {
	select {
	case <-m.sem:
	default:
		panic("ringbuf: unlock of unlocked mutex")
	}
}
