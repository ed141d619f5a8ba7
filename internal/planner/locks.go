package planner

import "sync"

// ownerLocks hands out one mutex per owner so a user's sessions are never
// mutated by two requests at once. Different owners do not contend.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (l *ownerLocks) lock(owner string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*sync.Mutex)
	}
	m, ok := l.locks[owner]
	if !ok {
		m = &sync.Mutex{}
		l.locks[owner] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
