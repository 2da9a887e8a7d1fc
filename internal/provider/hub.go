package provider

import (
	"net/url"
	"sync"

	"go.uber.org/zap"
)

// Observer receives the URI of every change it registered for.
type Observer func(uri *url.URL)

// Hub fans change notifications out to registered observers. Each
// registration owns a dispatch goroutine fed by an unbounded FIFO, so a
// slow observer never blocks the write that triggered it and never misses
// a change.
type Hub struct {
	logger *zap.Logger

	mu   sync.RWMutex
	regs map[*Registration]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger,
		regs:   make(map[*Registration]struct{}),
	}
}

// Registration is a live observer subscription. Close unregisters it and
// waits for its dispatcher to exit.
type Registration struct {
	hub         *Hub
	base        *url.URL
	descendants bool
	origin      string
	observer    Observer

	mu      sync.Mutex
	pending []*url.URL
	closed  bool

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// Register subscribes observer to uri (and everything below it when
// descendants is set). Changes written with the same non-empty origin are
// not delivered.
func (h *Hub) Register(uri *url.URL, descendants bool, origin string, observer Observer) *Registration {
	r := &Registration{
		hub:         h,
		base:        uri,
		descendants: descendants,
		origin:      origin,
		observer:    observer,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}

	h.mu.Lock()
	h.regs[r] = struct{}{}
	h.mu.Unlock()

	go r.dispatch()
	return r
}

func (r *Registration) enqueue(uri *url.URL) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.pending = append(r.pending, uri)
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// next pops the oldest pending change. ok is false when the queue is empty
// or the registration is closed.
func (r *Registration) next() (*url.URL, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.pending) == 0 {
		return nil, false
	}
	uri := r.pending[0]
	r.pending[0] = nil
	r.pending = r.pending[1:]
	return uri, true
}

func (r *Registration) dispatch() {
	defer close(r.done)
	for range r.wake {
		for {
			uri, ok := r.next()
			if !ok {
				break
			}
			r.deliver(uri)
		}
	}
}

func (r *Registration) deliver(uri *url.URL) {
	defer func() {
		if p := recover(); p != nil {
			r.hub.logger.Error("observer panicked", zap.Stringer("uri", uri), zap.Any("panic", p))
		}
	}()
	r.observer(uri)
}

// Close drops any undelivered changes. It must not be called from the
// observer.
func (r *Registration) Close() error {
	r.once.Do(func() {
		r.hub.mu.Lock()
		delete(r.hub.regs, r)
		r.hub.mu.Unlock()

		r.mu.Lock()
		r.closed = true
		r.pending = nil
		close(r.wake)
		r.mu.Unlock()
		<-r.done
	})
	return nil
}

// NotifyChange queues uri for every matching observer whose origin
// differs from origin.
func (h *Hub) NotifyChange(uri *url.URL, origin string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for r := range h.regs {
		if origin != "" && r.origin == origin {
			continue
		}
		if !Matches(r.base, r.descendants, uri) {
			continue
		}
		r.enqueue(uri)
	}
}
