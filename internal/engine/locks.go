package engine

import "sync"

// runLocks guarantees at most one in-flight sync run per configuration, so a
// manual trigger cannot race a scheduled one on the same mapping set.
type runLocks struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newRunLocks() *runLocks {
	return &runLocks{held: make(map[string]struct{})}
}

// acquire takes the lock for configID without blocking. It returns false if
// a run is already in flight.
func (l *runLocks) acquire(configID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[configID]; ok {
		return false
	}
	l.held[configID] = struct{}{}
	return true
}

func (l *runLocks) release(configID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, configID)
}
