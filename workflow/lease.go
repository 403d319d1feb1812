package workflow

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrLeaseHeld means another sweep currently owns the lease.
var ErrLeaseHeld = errors.New("lease held elsewhere")

// Lease grants single-flight execution across processes.
type Lease interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// RedisLease holds a redislock key for the duration of one sweep. The key is refreshed every
// TTL/2 while held, so a sweep may outlast the TTL; a holder that dies stops refreshing and
// loses the key after at most one TTL.
type RedisLease struct {
	Locker *redislock.Client
	Key    string
	TTL    time.Duration
}

func NewRedisLease(locker *redislock.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{Locker: locker, Key: key, TTL: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (func(), error) {
	lock, err := l.Locker.Obtain(ctx, l.Key, l.TTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLeaseHeld
	}
	if err != nil {
		return nil, err
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release with a fresh context; the sweep's ctx may already be cancelled.
			_ = lock.Release(context.Background())
		})
	}, nil
}

// keepAlive extends the lock until stop is closed or a refresh fails. A failed refresh means
// the key expired and another sweep may run; the reminder dispatch rows and guarded advance
// keep that overlap from double-sending.
func (l *RedisLease) keepAlive(lock *redislock.Lock, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.TTL / 2
	if interval <= 0 {
		<-stop
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := lock.Refresh(context.Background(), l.TTL, nil); err != nil {
				return
			}
		}
	}
}

// LocalLease serializes sweeps inside one process.
type LocalLease struct {
	mu sync.Mutex
}

func (l *LocalLease) Acquire(ctx context.Context) (func(), error) {
	if !l.mu.TryLock() {
		return nil, ErrLeaseHeld
	}
	return l.mu.Unlock, nil
}
