// Package loop runs callbacks cooperatively on a single goroutine.
//
// Two kinds of work are serialized: posted callbacks, delivered in the
// order they were posted, and frame callbacks, which fire once on the next
// display tick after they were requested, in the manner of a browser's
// requestAnimationFrame. Components that own state mutate it only from
// these callbacks, so they need no locking of their own.
package loop

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultFrameRate is the nominal display refresh rate.
const DefaultFrameRate = 60

type FrameID uint64

type FrameFunc func(now time.Time)

// Scheduler requests and cancels one-shot frame callbacks.
type Scheduler interface {
	RequestFrame(fn FrameFunc) FrameID
	// CancelFrame drops a pending callback. Unknown or already fired IDs
	// are ignored.
	CancelFrame(id FrameID)
}

// Poster delivers callbacks onto the loop goroutine.
type Poster interface {
	Post(fn func())
}

type frameSet struct {
	mu     sync.Mutex
	next   FrameID
	frames map[FrameID]FrameFunc
}

func (s *frameSet) request(fn FrameFunc) FrameID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == nil {
		s.frames = make(map[FrameID]FrameFunc)
	}
	s.next++
	s.frames[s.next] = fn
	return s.next
}

func (s *frameSet) cancel(id FrameID) {
	s.mu.Lock()
	delete(s.frames, id)
	s.mu.Unlock()
}

func (s *frameSet) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// take removes and returns every pending callback in request order.
// Callbacks requested while these run land in the next batch.
func (s *frameSet) take() []FrameFunc {
	s.mu.Lock()
	ids := make([]FrameID, 0, len(s.frames))
	for id := range s.frames {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]FrameFunc, len(ids))
	for i, id := range ids {
		fns[i] = s.frames[id]
		delete(s.frames, id)
	}
	s.mu.Unlock()
	return fns
}

// Loop is the single "UI thread" of the client.
type Loop struct {
	interval time.Duration
	frames   frameSet

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}
}

var (
	_ Scheduler = (*Loop)(nil)
	_ Poster    = (*Loop)(nil)
)

// New returns a loop ticking frameRate times per second. A non-positive
// rate uses DefaultFrameRate.
func New(frameRate int) *Loop {
	if frameRate <= 0 {
		frameRate = DefaultFrameRate
	}
	return &Loop{
		interval: time.Second / time.Duration(frameRate),
		wake:     make(chan struct{}, 1),
	}
}

// Post queues fn. It never blocks and is safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) RequestFrame(fn FrameFunc) FrameID {
	return l.frames.request(fn)
}

func (l *Loop) CancelFrame(id FrameID) {
	l.frames.cancel(id)
}

// Pending reports how many frame callbacks are waiting for a tick.
func (l *Loop) Pending() int {
	return l.frames.pending()
}

// Run processes posted and frame callbacks until ctx is done. Posted
// callbacks are always drained before a frame runs.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.drain()
		case now := <-ticker.C:
			l.drain()
			for _, fn := range l.frames.take() {
				fn(now)
			}
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		queue := l.queue
		l.queue = nil
		l.mu.Unlock()
		if len(queue) == 0 {
			return
		}
		for _, fn := range queue {
			fn()
		}
	}
}

// Manual is a Scheduler and Poster driven explicitly by Step. Posted
// callbacks run immediately on the caller's goroutine.
type Manual struct {
	frames frameSet
}

var (
	_ Scheduler = (*Manual)(nil)
	_ Poster    = (*Manual)(nil)
)

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Post(fn func()) { fn() }

func (m *Manual) RequestFrame(fn FrameFunc) FrameID {
	return m.frames.request(fn)
}

func (m *Manual) CancelFrame(id FrameID) {
	m.frames.cancel(id)
}

func (m *Manual) Pending() int {
	return m.frames.pending()
}

// Step fires every callback pending at the time of the call and returns
// how many ran.
func (m *Manual) Step(now time.Time) int {
	fns := m.frames.take()
	for _, fn := range fns {
		fn(now)
	}
	return len(fns)
}

// StepN calls Step n times, advancing now by one display interval each time.
func (m *Manual) StepN(n int, now time.Time) time.Time {
	for i := 0; i < n; i++ {
		m.Step(now)
		now = now.Add(time.Second / DefaultFrameRate)
	}
	return now
}
