// Package signal provides reactive values whose observers are held by
// releasable subscriptions.
package signal

import "sync"

// Subscription is a handle on a registered observer. Release removes the
// observer and is safe to call more than once.
type Subscription interface {
	Release()
}

type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(s.release)
}

// NewSubscription wraps fn as a Subscription that runs fn at most once.
func NewSubscription(fn func()) Subscription {
	return &subscription{release: fn}
}

// Observers is an ordered set of callbacks receiving values of type T.
type Observers[T any] struct {
	mu     sync.Mutex
	nextID int
	fns    map[int]func(T)
	order  []int
}

// Add registers fn and returns its subscription.
func (o *Observers[T]) Add(fn func(T)) Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[int]func(T))
	}
	id := o.nextID
	o.nextID++
	o.fns[id] = fn
	o.order = append(o.order, id)
	return NewSubscription(func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.fns, id)
		for i, oid := range o.order {
			if oid == id {
				o.order = append(o.order[:i], o.order[i+1:]...)
				break
			}
		}
	})
}

// Len reports the number of registered observers.
func (o *Observers[T]) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.fns)
}

// Notify calls every observer in registration order. Observers added or
// released during Notify take effect on the next call.
func (o *Observers[T]) Notify(v T) {
	o.mu.Lock()
	fns := make([]func(T), 0, len(o.order))
	for _, id := range o.order {
		fns = append(fns, o.fns[id])
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Value holds a current value and notifies observers on every Set.
type Value[T any] struct {
	mu        sync.Mutex
	v         T
	observers Observers[T]
}

// NewValue returns a Value initialized to v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{v: v}
}

func (s *Value[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *Value[T]) Set(v T) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
	s.observers.Notify(v)
}

// Subscribe registers fn for future values. It is not called with the
// current value.
func (s *Value[T]) Subscribe(fn func(T)) Subscription {
	return s.observers.Add(fn)
}

// Group collects subscriptions so they can be released together.
type Group struct {
	mu   sync.Mutex
	subs []Subscription
}

func (g *Group) Add(subs ...Subscription) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.subs = append(g.subs, subs...)
}

// Release releases every collected subscription in reverse order.
func (g *Group) Release() {
	g.mu.Lock()
	subs := g.subs
	g.subs = nil
	g.mu.Unlock()
	for i := len(subs) - 1; i >= 0; i-- {
		subs[i].Release()
	}
}
