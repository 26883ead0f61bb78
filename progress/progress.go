// Package progress reports how far a sync has come. Reporting is best
// effort: a slow or missing listener never holds up the sync.
package progress

import (
	"container/list"
	"sync"
)

type Sink interface {
	Notify(id, percent int)
}

// Func adapts a function to a Sink.
type Func func(id, percent int)

func (f Func) Notify(id, percent int) { f(id, percent) }

type nop struct{}

func (nop) Notify(id, percent int) {}

var Nop Sink = nop{}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop
	}
	return s
}

// Scale returns a reporter that maps 0..100 onto from..to of s for id.
func Scale(s Sink, id, from, to int) func(percent int) {
	s = OrNop(s)
	return func(percent int) {
		if percent < 0 {
			percent = 0
		} else if percent > 100 {
			percent = 100
		}
		s.Notify(id, from+(to-from)*percent/100)
	}
}

type update struct {
	id, percent int
}

// Tracker is an asynchronous Sink remembering the latest percent per id.
// Notify never blocks; updates are dropped while the queue is full. Only
// the maxIDs most recently updated ids are remembered.
type Tracker struct {
	queue   chan update
	closing chan struct{}
	done    chan struct{}
	once    sync.Once

	mu     sync.Mutex
	maxIDs int
	latest map[int]*list.Element
	// Front is the most recently updated id.
	recent *list.List
}

func NewTracker(queueLen, maxIDs int) *Tracker {
	if maxIDs < 1 {
		maxIDs = 1
	}
	t := &Tracker{
		queue:   make(chan update, queueLen),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
		maxIDs:  maxIDs,
		latest:  make(map[int]*list.Element),
		recent:  list.New(),
	}
	go t.run()
	return t
}

func (t *Tracker) Notify(id, percent int) {
	select {
	case <-t.closing:
	case t.queue <- update{id: id, percent: percent}:
	default:
	}
}

func (t *Tracker) run() {
	defer close(t.done)
	for {
		select {
		case u := <-t.queue:
			t.set(u)
		case <-t.closing:
			return
		}
	}
}

func (t *Tracker) set(u update) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.latest[u.id]; ok {
		e.Value = u
		t.recent.MoveToFront(e)
		return
	}
	t.latest[u.id] = t.recent.PushFront(u)
	for t.recent.Len() > t.maxIDs {
		oldest := t.recent.Remove(t.recent.Back()).(update)
		delete(t.latest, oldest.id)
	}
}

// Percent returns the last percent seen for id.
func (t *Tracker) Percent(id int) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.latest[id]
	if !ok {
		return 0, false
	}
	return e.Value.(update).percent, true
}

// Close stops the tracker. Later notifications are discarded.
func (t *Tracker) Close() {
	t.once.Do(func() { close(t.closing) })
	<-t.done
}
