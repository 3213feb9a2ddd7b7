package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-sii/internal/application/billing"
)

var _ billing.Lease = (*RedisLease)(nil)

// RedisLease exclusión entre instancias (poll de un track id, refresco de token).
type RedisLease struct {
	locker *redislock.Client
	logger zerolog.Logger
}

// NewRedisLease construye el lease sobre un cliente existente.
func NewRedisLease(client *redis.Client, logger zerolog.Logger) *RedisLease {
	return &RedisLease{
		locker: redislock.New(client),
		logger: logger.With().Str("component", "lease").Logger(),
	}
}

// Acquire intenta tomar la clave sin esperar. ok=false si otra instancia la tiene.
func (l *RedisLease) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	lock, err := l.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("obtener lock %s: %w", key, err)
	}
	release := func() {
		// El lock puede haber expirado si el trabajo superó el TTL.
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			l.logger.Warn().Err(err).Str("key", key).Msg("no se pudo liberar el lock")
		}
	}
	return release, true, nil
}
