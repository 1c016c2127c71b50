// Package lock provides keyed mutual exclusion, in process or across
// processes through Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when a lock could not be taken before the
// context ended or the retries ran out.
var ErrNotAcquired = errors.New("lock not acquired")

// =============================================================================

type entry struct {
	mu   sync.Mutex
	refs int
}

// Local serializes callers of the same key inside one process. Entries are
// dropped when nobody holds or waits on them.
type Local struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func NewLocal() *Local {
	return &Local{locks: make(map[string]*entry)}
}

// Lock blocks until key is free or ctx is done.
func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	acquired := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
		return func() { l.release(key, e) }, nil

	case <-ctx.Done():
		// The goroutine above still gets the mutex eventually. Hand it back
		// as soon as it does.
		go func() {
			<-acquired
			l.release(key, e)
		}()
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}
}

func (l *Local) release(key string, e *entry) {
	e.mu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// =============================================================================

// RedisConfig holds the redsync mutex settings.
type RedisConfig struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

// Redis serializes callers of the same key across every process sharing the
// Redis instance.
type Redis struct {
	log *slog.Logger
	rs  *redsync.Redsync
	cfg RedisConfig
}

func NewRedis(log *slog.Logger, client redis.UniversalClient, cfg RedisConfig) *Redis {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 8 * time.Second
	}
	if cfg.Tries <= 0 {
		cfg.Tries = 32
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 50 * time.Millisecond
	}

	return &Redis{
		log: log,
		rs:  redsync.New(goredis.NewPool(client)),
		cfg: cfg,
	}
}

// Lock takes the distributed mutex for key.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	m := r.rs.NewMutex(key,
		redsync.WithExpiry(r.cfg.Expiry),
		redsync.WithTries(r.cfg.Tries),
		redsync.WithRetryDelay(r.cfg.RetryDelay),
	)

	if err := m.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, err)
	}

	unlock := func() {
		// The caller's context may already be cancelled; the unlock must
		// still reach redis.
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.Expiry)
		defer cancel()

		if ok, err := m.UnlockContext(ctx); err != nil || !ok {
			r.log.Error("redis unlock", "key", key, "ok", ok, "ERROR", err)
		}
	}

	return unlock, nil
}
