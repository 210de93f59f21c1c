package engine

import "sync"

// ListenerBuffer is the channel capacity of a Bus listener.
const ListenerBuffer = 64

// Bus fans out engine changes to N listeners.
type Bus struct {
	mu        sync.RWMutex
	listeners map[*Listener]struct{}
}

// Listener receives changes published on a Bus.
type Listener struct {
	C    chan Change
	done chan struct{}
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

func NewBus() *Bus {
	return &Bus{
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Bus) Subscribe() *Listener {
	l := &Listener{
		C:    make(chan Change, ListenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop. Unsubscribing
// twice is a no-op.
func (b *Bus) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	b.mu.Unlock()
	if ok {
		close(l.done)
	}
}

// ListenerCount returns the number of active listeners.
func (b *Bus) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Publish delivers c to every listener without blocking. Listeners whose
// buffer is full miss the change.
func (b *Bus) Publish(c Change) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for l := range b.listeners {
		select {
		case l.C <- c:
		default:
			// listener too slow, drop to keep the publisher moving
		}
	}
}
