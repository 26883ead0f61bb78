// Package cache keeps generated values for a while, in memcached or in
// process, and folds concurrent generation of the same key into one call.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/ptt/forumsync/gate"
)

const (
	// Request and connect timeout
	DefaultTimeout = time.Second * 30
)

var (
	ErrMiss = errors.New("cache miss")
)

type Key interface {
	String() string
}

type Cache interface {
	// Fetch returns ErrMiss for absent keys.
	Fetch(ctx context.Context, key string) ([]byte, error)
	Store(ctx context.Context, key string, data []byte, expire time.Duration) error
}

// Memcache is a Cache on a memcached server. Requests beyond the connection
// pool wait in a bounded queue.
type Memcache struct {
	server string
	mc     *memcache.Client
	gate   *gate.Gate
}

func NewMemcache(server string, maxOpen int) *Memcache {
	mc := memcache.New(server)
	mc.Timeout = DefaultTimeout
	mc.MaxIdleConns = maxOpen

	return &Memcache{
		server: server,
		mc:     mc,
		gate:   gate.New(maxOpen, maxOpen),
	}
}

func (m *Memcache) Fetch(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := m.gate.Do(ctx, func() error {
		it, err := m.mc.Get(key)
		if err == memcache.ErrCacheMiss {
			return ErrMiss
		} else if err != nil {
			return err
		}
		data = it.Value
		return nil
	})
	return data, err
}

func (m *Memcache) Store(ctx context.Context, key string, data []byte, expire time.Duration) error {
	return m.gate.Do(ctx, func() error {
		return m.mc.Set(&memcache.Item{
			Key:        key,
			Value:      data,
			Flags:      uint32(0),
			Expiration: int32(expire.Seconds()),
		})
	})
}
