// Package loader implements request-scoped batching and caching for entity
// lookups. A Loader coalesces Load calls issued within a short scheduling
// window into one batch fetch, deduplicates keys, and memoizes results for
// its own lifetime.
//
// A Loader instance is scoped to exactly one operation: the context builder
// constructs a fresh one per request or subscription event and discards it
// afterwards. Sharing an instance across operations would leak memoized
// values between unrelated callers, so nothing in this package is global.
package loader

import (
	"context"
	"sync"
	"time"

	"github.com/c360/socialgate/errors"
)

const (
	// DefaultWait is the coalescing window: all Load calls issued before it
	// elapses join the same batch.
	DefaultWait = 2 * time.Millisecond

	// DefaultMaxBatch flushes a batch early once this many distinct keys
	// are pending.
	DefaultMaxBatch = 100
)

// Result is a per-key fetch outcome. A key with no backing entity carries a
// not-found error here; it never aborts sibling keys.
type Result[V any] struct {
	Value V
	Err   error
}

// BatchFunc fetches all values for the given key sequence in one underlying
// store query. It must return exactly one result per input key, in input
// order, and resolve missing keys to a not-found result at that position.
// Input keys may repeat.
type BatchFunc[K comparable, V any] func(ctx context.Context, keys []K) []Result[V]

// Config tunes batching behavior.
type Config struct {
	Wait     time.Duration // coalescing window (default DefaultWait)
	MaxBatch int           // early-flush threshold (default DefaultMaxBatch, <0 disables)
}

// Loader batches and caches lookups for one operation.
type Loader[K comparable, V any] struct {
	fetch    BatchFunc[K, V]
	wait     time.Duration
	maxBatch int

	mu    sync.Mutex
	cache map[K]*thunk[V]
	batch *batch[K, V]
}

// thunk is a pending-or-resolved value. All callers requesting the same key
// share one thunk, which is what makes repeated loads observe the same
// resolved value object.
type thunk[V any] struct {
	done  chan struct{}
	value V
	err   error
}

func (t *thunk[V]) wait() (V, error) {
	<-t.done
	return t.value, t.err
}

type batch[K comparable, V any] struct {
	keys   []K
	thunks []*thunk[V]
	full   chan struct{}
	once   sync.Once
}

// New creates a Loader around the given batch function.
func New[K comparable, V any](fetch BatchFunc[K, V], cfg Config) *Loader[K, V] {
	wait := cfg.Wait
	if wait <= 0 {
		wait = DefaultWait
	}
	maxBatch := cfg.MaxBatch
	if maxBatch == 0 {
		maxBatch = DefaultMaxBatch
	}

	return &Loader[K, V]{
		fetch:    fetch,
		wait:     wait,
		maxBatch: maxBatch,
		cache:    make(map[K]*thunk[V]),
	}
}

// Load fetches a value by key, blocking the caller until the coalesced batch
// containing the key has flushed. Concurrent loads for other keys proceed
// independently.
func (l *Loader[K, V]) Load(ctx context.Context, key K) (V, error) {
	return l.LoadThunk(ctx, key)()
}

// LoadThunk registers the key and returns a function that blocks until the
// value is available. The key is fetched from the store at most once for the
// lifetime of this Loader, no matter how many thunks are taken for it.
func (l *Loader[K, V]) LoadThunk(ctx context.Context, key K) func() (V, error) {
	l.mu.Lock()
	if t, ok := l.cache[key]; ok {
		l.mu.Unlock()
		return t.wait
	}

	t := &thunk[V]{done: make(chan struct{})}
	l.cache[key] = t

	if l.batch == nil {
		b := &batch[K, V]{full: make(chan struct{})}
		l.batch = b
		go l.run(ctx, b)
	}
	b := l.batch
	b.keys = append(b.keys, key)
	b.thunks = append(b.thunks, t)
	if l.maxBatch > 0 && len(b.keys) >= l.maxBatch {
		l.batch = nil
		b.once.Do(func() { close(b.full) })
	}
	l.mu.Unlock()

	return t.wait
}

// LoadMany fetches many keys at once. The returned slices match the input
// order exactly, including duplicate keys; each position carries that key's
// own outcome.
func (l *Loader[K, V]) LoadMany(ctx context.Context, keys []K) ([]V, []error) {
	thunks := make([]func() (V, error), len(keys))
	for i, key := range keys {
		thunks[i] = l.LoadThunk(ctx, key)
	}

	values := make([]V, len(keys))
	errs := make([]error, len(keys))
	for i, fn := range thunks {
		values[i], errs[i] = fn()
	}
	return values, errs
}

// Prime seeds the cache with an already-resolved value. Existing entries win:
// priming never clobbers a pending or resolved fetch.
func (l *Loader[K, V]) Prime(key K, value V) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.cache[key]; ok {
		return false
	}
	t := &thunk[V]{done: make(chan struct{}), value: value}
	close(t.done)
	l.cache[key] = t
	return true
}

// run waits out the coalescing window (or an early-flush signal), then
// flushes the batch through the batch function exactly once.
func (l *Loader[K, V]) run(ctx context.Context, b *batch[K, V]) {
	timer := time.NewTimer(l.wait)
	select {
	case <-timer.C:
	case <-b.full:
		timer.Stop()
	}

	l.mu.Lock()
	if l.batch == b {
		l.batch = nil
	}
	keys := b.keys
	thunks := b.thunks
	l.mu.Unlock()

	results := l.fetch(ctx, keys)

	for i, t := range thunks {
		if i < len(results) {
			t.value = results[i].Value
			t.err = results[i].Err
		} else {
			t.err = errors.New("loader: batch function returned too few results")
		}
		close(t.done)
	}
}
