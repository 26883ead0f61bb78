package cache

import "sync"

// singleflight hands the result of one generation to every waiter of a key.
type singleflight[V any] struct {
	mu      sync.Mutex
	pending map[string][]chan V
}

func newSingleFlight[V any]() *singleflight[V] {
	return &singleflight[V]{
		pending: make(map[string][]chan V),
	}
}

// Request queues ch for key. The first caller for a key must generate.
func (s *singleflight[V]) Request(key string, ch chan V) (first bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[key]; !ok {
		first = true
		s.pending[key] = make([]chan V, 0, 1)
	}
	s.pending[key] = append(s.pending[key], ch)
	return
}

// Fulfill sends value to every waiter still queued. Channels must be
// buffered so leaving waiters never block it.
func (s *singleflight[V]) Fulfill(key string, value V) {
	for _, c := range s.removePendings(key) {
		c <- value
	}
}

// Leave drops ch from the waiters of key.
func (s *singleflight[V]) Leave(key string, ch chan V) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chs := s.pending[key]
	for i, c := range chs {
		if c == ch {
			s.pending[key] = append(chs[:i], chs[i+1:]...)
			return
		}
	}
}

func (s *singleflight[V]) removePendings(key string) []chan V {
	s.mu.Lock()
	defer s.mu.Unlock()

	pendings := s.pending[key]
	delete(s.pending, key)
	return pendings
}
