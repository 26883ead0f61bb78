package cache

import (
	"context"
	"errors"
	"log"
	"time"
)

type Serializer[V any] func(value V) ([]byte, error)

type Deserializer[V any] func(data []byte) (V, error)

// Generator produces the value of key and how long it may be cached. A
// zero duration means the value is not cached.
type Generator[K Key, V any] func(ctx context.Context, key K) (V, time.Duration, error)

type res[V any] struct {
	value V
	err   error
}

type TypedManager[K Key, V any] struct {
	c            Cache
	sf           *singleflight[*res[V]]
	generator    Generator[K, V]
	serializer   Serializer[V]
	deserializer Deserializer[V]
}

func NewTyped[K Key, V any](c Cache, gen Generator[K, V], ser Serializer[V], des Deserializer[V]) *TypedManager[K, V] {
	return &TypedManager[K, V]{
		c:            c,
		sf:           newSingleFlight[*res[V]](),
		generator:    gen,
		serializer:   ser,
		deserializer: des,
	}
}

// Get serves key from the cache, or generates it. Concurrent callers of the
// same key share one generation; a caller whose ctx ends stops waiting but
// the generation carries on for the others.
func (tm *TypedManager[K, V]) Get(ctx context.Context, key K) (V, error) {
	keyString := key.String()

	// Check if can be served from cache
	if data, err := tm.c.Fetch(ctx, keyString); err != nil {
		if !errors.Is(err, ErrMiss) {
			log.Printf("cache fetch: key: %q, err: %v", keyString, err)
		}
	} else {
		v, err := tm.deserializer(data)
		if err == nil {
			return v, nil
		}
		log.Printf("cache deserialize: key: %q, err: %v", keyString, err)
	}

	ch := make(chan *res[V], 1)

	// No luck. Check if anyone is generating
	if first := tm.sf.Request(keyString, ch); first {
		// We are the one responsible for generating the result
		go tm.doGenerate(context.WithoutCancel(ctx), key, keyString)
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		tm.sf.Leave(keyString, ch)
		var zero V
		return zero, ctx.Err()
	}
}

func (tm *TypedManager[K, V]) doGenerate(ctx context.Context, key K, keyString string) {
	value, expire, err := tm.generator(ctx, key)
	if err == nil && expire > 0 {
		// There is no errors during generating, store result in cache
		if data, err := tm.serializer(value); err != nil {
			log.Printf("cache serialize: key: %q, err: %v", keyString, err)
		} else if err = tm.c.Store(ctx, keyString, data, expire); err != nil {
			log.Printf("cache store: key: %q, err: %v", keyString, err)
		}
	}

	tm.sf.Fulfill(keyString, &res[V]{
		value: value,
		err:   err,
	})
}
