package chat

import "sync"

// deliveryLocks serializes delivery work per receiver. Entries are removed
// once no goroutine holds or waits on them.
type deliveryLocks struct {
	mu    sync.Mutex
	locks map[string]*deliveryLock
}

type deliveryLock struct {
	mu   sync.Mutex
	refs int
}

func newDeliveryLocks() *deliveryLocks {
	return &deliveryLocks{locks: make(map[string]*deliveryLock)}
}

// lock blocks until username's delivery lock is held and returns its release.
func (d *deliveryLocks) lock(username string) func() {
	d.mu.Lock()
	l, ok := d.locks[username]
	if !ok {
		l = &deliveryLock{}
		d.locks[username] = l
	}
	l.refs++
	d.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		d.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(d.locks, username)
		}
		d.mu.Unlock()
	}
}

func (d *deliveryLocks) len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.locks)
}
