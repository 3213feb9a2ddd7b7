// Token de sesión del SII: semilla → semilla firmada → token, con caché por tenant.

package sii

import (
	"context"
	"crypto/tls"
	"sync"
	"time"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/rs/zerolog"
)

const (
	// DefaultTokenTTL vigencia que se asume para el token si no se configura otra.
	DefaultTokenTTL = 60 * time.Minute
	// tokenRefreshMargin el token se renueva este tiempo antes de vencer.
	tokenRefreshMargin = 5 * time.Minute

	tokenLockTTL     = 30 * time.Second
	tokenWaitStep    = 200 * time.Millisecond
	tokenWaitRetries = 10
)

// SeedSigner firma la semilla con el certificado del tenant.
type SeedSigner interface {
	SignSeed(seed string, cert tls.Certificate) ([]byte, error)
}

// TokenCache almacena tokens vigentes. Implementaciones: memoria y Redis.
type TokenCache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type seedTokenClient interface {
	GetSeed(ctx context.Context) (string, error)
	GetToken(ctx context.Context, signedSeed []byte) (string, error)
}

// TokenManager entrega el token del tenant, pidiendo uno nuevo solo cuando el cacheado está por vencer.
type TokenManager struct {
	client seedTokenClient
	signer SeedSigner
	cache  TokenCache
	lock   billing.Lease // nil → sin coordinación entre instancias
	ttl    time.Duration
	logger zerolog.Logger

	mu      sync.Mutex
	tenants map[string]*sync.Mutex
}

// NewTokenManager crea el manager. lock puede ser nil.
func NewTokenManager(client seedTokenClient, signer SeedSigner, cache TokenCache, lock billing.Lease, ttl time.Duration, logger zerolog.Logger) *TokenManager {
	if ttl <= tokenRefreshMargin {
		ttl = DefaultTokenTTL
	}
	return &TokenManager{
		client:  client,
		signer:  signer,
		cache:   cache,
		lock:    lock,
		ttl:     ttl,
		logger:  logger.With().Str("component", "sii_token").Logger(),
		tenants: make(map[string]*sync.Mutex),
	}
}

func tokenKey(tenantID string) string {
	return "dte:token:" + tenantID
}

// Token devuelve un token vigente para el tenant.
func (m *TokenManager) Token(ctx context.Context, tenantID string, cert tls.Certificate) (string, error) {
	key := tokenKey(tenantID)
	if tok, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		return tok, nil
	} else if err != nil {
		m.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("caché de token no disponible")
	}

	tm := m.tenantMutex(tenantID)
	tm.Lock()
	defer tm.Unlock()
	if tok, ok, err := m.cache.Get(ctx, key); err == nil && ok {
		return tok, nil
	}

	if m.lock != nil {
		release, ok, err := m.lock.Acquire(ctx, "dte:token-lock:"+tenantID, tokenLockTTL)
		if err != nil {
			m.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("lock de token no disponible")
		} else if ok {
			defer release()
		} else if tok, found := m.waitForPeer(ctx, key); found {
			return tok, nil
		}
	}
	return m.refresh(ctx, tenantID, key, cert)
}

// Invalidate descarta el token del tenant (p. ej. STATUS 5 en el upload).
func (m *TokenManager) Invalidate(ctx context.Context, tenantID string) {
	if err := m.cache.Delete(ctx, tokenKey(tenantID)); err != nil {
		m.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("no se pudo invalidar token")
	}
}

func (m *TokenManager) refresh(ctx context.Context, tenantID, key string, cert tls.Certificate) (string, error) {
	seed, err := m.client.GetSeed(ctx)
	if err != nil {
		return "", err
	}
	signed, err := m.signer.SignSeed(seed, cert)
	if err != nil {
		return "", err
	}
	tok, err := m.client.GetToken(ctx, signed)
	if err != nil {
		return "", err
	}
	if err := m.cache.Set(ctx, key, tok, m.ttl-tokenRefreshMargin); err != nil {
		m.logger.Warn().Err(err).Str("tenant_id", tenantID).Msg("no se pudo cachear token")
	}
	m.logger.Info().Str("tenant_id", tenantID).Msg("token SII renovado")
	return tok, nil
}

// waitForPeer espera a que otra instancia publique el token.
func (m *TokenManager) waitForPeer(ctx context.Context, key string) (string, bool) {
	for i := 0; i < tokenWaitRetries; i++ {
		select {
		case <-ctx.Done():
			return "", false
		case <-time.After(tokenWaitStep):
		}
		if tok, ok, err := m.cache.Get(ctx, key); err == nil && ok {
			return tok, true
		}
	}
	return "", false
}

func (m *TokenManager) tenantMutex(tenantID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.tenants[tenantID]
	if !ok {
		mu = &sync.Mutex{}
		m.tenants[tenantID] = mu
	}
	return mu
}

// ── caché en memoria ──

type memToken struct {
	value   string
	expires time.Time
}

// MemoryTokenCache caché local del proceso.
type MemoryTokenCache struct {
	mu    sync.Mutex
	items map[string]memToken
	now   func() time.Time
}

// NewMemoryTokenCache crea la caché.
func NewMemoryTokenCache() *MemoryTokenCache {
	return &MemoryTokenCache{items: make(map[string]memToken), now: time.Now}
}

func (c *MemoryTokenCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.items[key]
	if !ok || !c.now().Before(it.expires) {
		delete(c.items, key)
		return "", false, nil
	}
	return it.value, true, nil
}

func (c *MemoryTokenCache) Set(_ context.Context, key, token string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = memToken{value: token, expires: c.now().Add(ttl)}
	return nil
}

func (c *MemoryTokenCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

var _ TokenCache = (*MemoryTokenCache)(nil)
