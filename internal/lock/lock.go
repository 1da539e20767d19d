// Package lock serialises calendar writers per clinic date.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bioskin/internal/domain"
)

// DateLocker guards the check-then-create sequence for one date.
type DateLocker interface {
	// Lock acquires the guard for date. It returns domain.ErrDateLocked when
	// another writer holds it. The returned func releases the guard.
	Lock(ctx context.Context, date time.Time) (func(), error)
}

// Noop never blocks. With it, concurrent writers race exactly as they would
// against the bare calendar store.
type Noop struct{}

func (Noop) Lock(context.Context, time.Time) (func(), error) {
	return func() {}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds one expiring key per date.
type RedisLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
	logger *zerolog.Logger
}

// NewRedisLocker creates a locker. ttl bounds how long a crashed writer can
// hold a date.
func NewRedisLocker(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, prefix: "bioskin:calendar-lock:", logger: logger}
}

func (l *RedisLocker) key(date time.Time) string {
	return l.prefix + date.Format("2006-01-02")
}

// Lock acquires the date key with SET NX.
func (l *RedisLocker) Lock(ctx context.Context, date time.Time) (func(), error) {
	key := l.key(date)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, domain.ErrDateLocked
	}

	return func() {
		ctxRelease, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctxRelease, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn().Err(err).Str("key", key).Msg("release calendar lock")
		}
	}, nil
}
