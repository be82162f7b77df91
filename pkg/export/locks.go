package export

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// IdentityLocker serializes writers that touch the same node identities.
// Lock takes every key in the given order and returns a func that releases them.
type IdentityLocker interface {
	Lock(ctx context.Context, keys []string) (unlock func(), err error)
}

// KeyedMutex is an in-process IdentityLocker.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyLock)}
}

func (k *KeyedMutex) ref(key string) *keyLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{ch: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *KeyedMutex) unref(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// Lock acquires keys in order. Callers pass sorted keys so that two writers
// never wait on each other in opposite orders.
func (k *KeyedMutex) Lock(ctx context.Context, keys []string) (func(), error) {
	held := make([]string, 0, len(keys))
	locks := make([]*keyLock, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-locks[i].ch
			k.unref(held[i], locks[i])
		}
	}
	for _, key := range keys {
		l := k.ref(key)
		select {
		case l.ch <- struct{}{}:
			held = append(held, key)
			locks = append(locks, l)
		case <-ctx.Done():
			k.unref(key, l)
			release()
			return nil, ctx.Err()
		}
	}
	return release, nil
}

const (
	DefaultLeaseTTL   = 30 * time.Second
	defaultLockPrefix = "lexigraph:lock:"
	lockRetryInterval = 10 * time.Millisecond
)

// ErrLeaseLost is returned when a lease expired or was taken before release.
var ErrLeaseLost = errors.New("identity lease lost")

const releaseScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

const renewScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`

// RedisLocker holds identity leases in Redis so several export processes can
// share one graph. Each Lock call owns its keys under a fresh holder id; the
// leases are renewed every TTL/3 until released, and release only deletes
// leases still owned by that holder.
type RedisLocker struct {
	client *redis.Client
	TTL    time.Duration
	Prefix string
	// OnLeaseError is called when a lease cannot be renewed or released cleanly.
	OnLeaseError func(key string, err error)
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{
		client: client,
		TTL:    DefaultLeaseTTL,
		Prefix: defaultLockPrefix,
	}
}

func (r *RedisLocker) key(k string) string { return r.Prefix + k }

func (r *RedisLocker) ttl() time.Duration {
	if r.TTL <= 0 {
		return DefaultLeaseTTL
	}
	return r.TTL
}

func (r *RedisLocker) report(key string, err error) {
	if r.OnLeaseError != nil {
		r.OnLeaseError(key, err)
	}
}

// Lock acquires a lease per key in order, polling until each is free or ctx is done.
func (r *RedisLocker) Lock(ctx context.Context, keys []string) (func(), error) {
	holder := uuid.NewString()
	// Release and renewal must not depend on the caller's context being alive.
	bg := context.WithoutCancel(ctx)

	var held []string
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			if err := r.release(bg, held[i], holder); err != nil {
				r.report(held[i], err)
			}
		}
	}
	for _, k := range keys {
		if err := r.acquire(ctx, r.key(k), holder); err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, r.key(k))
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go r.renew(bg, held, holder, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			releaseAll()
		})
	}, nil
}

func (r *RedisLocker) acquire(ctx context.Context, key, holder string) error {
	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()
	for {
		ok, err := r.client.SetNX(ctx, key, holder, r.ttl()).Result()
		if err != nil {
			return fmt.Errorf("acquire lease %s: %w", key, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// renew extends the leases until stop is closed. A lease found under another
// holder is reported once and no longer renewed.
func (r *RedisLocker) renew(ctx context.Context, keys []string, holder string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := r.ttl() / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	live := append([]string(nil), keys...)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
		kept := live[:0]
		for _, key := range live {
			n, err := r.client.Eval(ctx, renewScript, []string{key}, holder, r.ttl().Milliseconds()).Int64()
			switch {
			case err != nil:
				r.report(key, fmt.Errorf("renew lease %s: %w", key, err))
				kept = append(kept, key)
			case n != 1:
				r.report(key, fmt.Errorf("renew lease %s: %w", key, ErrLeaseLost))
			default:
				kept = append(kept, key)
			}
		}
		live = kept
	}
}

func (r *RedisLocker) release(ctx context.Context, key, holder string) error {
	res, err := r.client.Eval(ctx, releaseScript, []string{key}, holder).Result()
	if err != nil {
		return fmt.Errorf("release lease %s: %w", key, err)
	}
	if n, ok := res.(int64); !ok || n != 1 {
		return fmt.Errorf("release lease %s: %w", key, ErrLeaseLost)
	}
	return nil
}
