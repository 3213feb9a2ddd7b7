package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/dte-sii/internal/infrastructure/sii"
)

var _ sii.TokenCache = (*RedisTokenCache)(nil)

// RedisTokenCache comparte los tokens del SII entre instancias.
type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisTokenCache construye la caché sobre un cliente existente.
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

// Get devuelve ok=false si la clave no existe o ya expiró.
func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	tok, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("leer token: %w", err)
	}
	return tok, true, nil
}

// Set guarda el token con expiración.
func (c *RedisTokenCache) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, token, ttl).Err(); err != nil {
		return fmt.Errorf("guardar token: %w", err)
	}
	return nil
}

// Delete invalida el token.
func (c *RedisTokenCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("borrar token: %w", err)
	}
	return nil
}
