package processor

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/productsync/pkg/redis"
)

// KeyLocker serializes work on records that could collide. Unlock must be
// called exactly once after a successful Lock.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

type keyLock struct {
	ch   chan struct{}
	refs int
}

// LocalKeyLocker is an in-process keyed mutex. Idle keys are dropped.
type LocalKeyLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

func NewLocalKeyLocker() *LocalKeyLocker {
	return &LocalKeyLocker{locks: map[string]*keyLock{}}
}

func (l *LocalKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{ch: make(chan struct{}, 1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	select {
	case kl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-kl.ch
				l.release(key, kl)
			})
		}, nil
	case <-ctx.Done():
		l.release(key, kl)
		return nil, ctx.Err()
	}
}

func (l *LocalKeyLocker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// RedisKeyLocker shares lock keys across processes with SET NX locks.
type RedisKeyLocker struct {
	locker *redis.Locker
	ttl    time.Duration
	wait   time.Duration
	logger ectologger.Logger
}

func NewRedisKeyLocker(locker *redis.Locker, ttl, wait time.Duration, logger ectologger.Logger) *RedisKeyLocker {
	return &RedisKeyLocker{
		locker: locker,
		ttl:    ttl,
		wait:   wait,
		logger: logger,
	}
}

func (l *RedisKeyLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock, err := l.locker.TryAcquire(ctx, key, l.ttl, l.wait)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			l.logger.WithContext(ctx).WithError(err).Warnf("Failed to release lock %s", key)
		}
	}, nil
}
