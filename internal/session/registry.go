package session

import "sync"

// Callback receives the body of a MESSAGE frame. A nil body means the frame
// carried none.
type Callback func(body []byte)

// Subscription ties a destination to the callback that consumes its
// messages, plus the id the broker knows the subscription by.
type Subscription struct {
	Destination string
	ID          string
	Ack         string
	Callback    Callback
}

// Registry maps destinations to their single subscription. It is written
// from the caller's context on subscribe and read from the inbound-dispatch
// context on every MESSAGE, so all access goes through the lock.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]*Subscription
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]*Subscription)}
}

// Register records a subscription, overwriting any existing one for the same
// destination. Last writer wins.
func (r *Registry) Register(sub *Subscription) {
	r.mu.Lock()
	r.subs[sub.Destination] = sub
	r.mu.Unlock()
}

func (r *Registry) Resolve(destination string) (*Subscription, bool) {
	r.mu.RLock()
	sub, ok := r.subs[destination]
	r.mu.RUnlock()
	return sub, ok
}

// Unregister removes and returns the subscription for a destination, if any.
func (r *Registry) Unregister(destination string) (*Subscription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[destination]
	if ok {
		delete(r.subs, destination)
	}
	return sub, ok
}
