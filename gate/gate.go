// Package gate provides building blocks to limit concurrency.
package gate

import (
	"context"
	"errors"
	"sync"
)

var (
	ErrTooBusy = errors.New("too many pending requests")
)

// Gate limits the number of inflight holders and the number of holders
// waiting for a slot.
type Gate struct {
	maxInflight int
	maxWait     int

	mu       sync.Mutex
	inflight int
	queue    []*Reservation
}

// New creates a Gate.
func New(maxInflight, maxWait int) *Gate {
	return &Gate{
		maxInflight: maxInflight,
		maxWait:     maxWait,
	}
}

// Reserve attempts to obtain a reservation. If the wait queue is too long, it
// returns false.
func (g *Gate) Reserve() (*Reservation, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.inflight+len(g.queue) >= g.maxInflight+g.maxWait {
		return nil, false
	}

	r := &Reservation{
		g:       g,
		granted: make(chan struct{}),
	}
	if g.inflight < g.maxInflight {
		g.inflight++
		r.grant()
	} else {
		g.queue = append(g.queue, r)
	}
	return r, true
}

// Do runs fn once a slot is free, or fails with ErrTooBusy or the context
// error.
func (g *Gate) Do(ctx context.Context, fn func() error) error {
	r, ok := g.Reserve()
	if !ok {
		return ErrTooBusy
	}
	defer r.Release()

	if err := r.Wait(ctx); err != nil {
		return err
	}
	return fn()
}

func (g *Gate) release(r *Reservation) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if r.released {
		return
	}
	r.released = true

	// Never granted: just leave the queue.
	if !r.isGranted() {
		for i, q := range g.queue {
			if q == r {
				g.queue = append(g.queue[:i], g.queue[i+1:]...)
				break
			}
		}
		return
	}

	g.inflight--
	if len(g.queue) > 0 {
		next := g.queue[0]
		g.queue = g.queue[1:]
		g.inflight++
		next.grant()
	}
}

// Reservation represents a reservation.
type Reservation struct {
	g       *Gate
	granted chan struct{}
	// Guarded by g.mu.
	released bool
}

// Wait blocks until the reservation is granted or ctx is done.
func (r *Reservation) Wait(ctx context.Context) error {
	select {
	case <-r.granted:
		return nil
	default:
	}
	select {
	case <-r.granted:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns the reservation. It must be called when the reservation is
// no longer needed, whether or not Wait succeeded. Extra calls do nothing.
func (r *Reservation) Release() {
	r.g.release(r)
}

func (r *Reservation) grant() {
	close(r.granted)
}

func (r *Reservation) isGranted() bool {
	select {
	case <-r.granted:
		return true
	default:
		return false
	}
}
