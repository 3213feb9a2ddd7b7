// Package bootstrap arma el grafo de dependencias compartido por la API y dtectl.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/application/folio"
	"github.com/jhoicas/dte-sii/internal/infrastructure/cache"
	"github.com/jhoicas/dte-sii/internal/infrastructure/postgres"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii"
	"github.com/jhoicas/dte-sii/internal/infrastructure/sii/signer"
	"github.com/jhoicas/dte-sii/internal/infrastructure/storage"
	"github.com/jhoicas/dte-sii/pkg/config"
)

// Container componentes ya conectados. Close libera pool y Redis.
type Container struct {
	Pool      *pgxpool.Pool
	Redis     *redis.Client // nil si REDIS_ADDR no está definido
	Allocator *folio.Allocator
	Pipeline  *billing.Pipeline
	Poller    *billing.Poller
	Signer    *signer.DigitalSignatureService
	Profiles  *postgres.TenantProfileRepo
}

// New conecta PostgreSQL (y Redis si está configurado) y arma el pipeline.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Container, error) {
	pool, err := postgres.NewPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("conexión a PostgreSQL: %w", err)
	}
	c := &Container{Pool: pool}

	// Sin SII_TRUST_ROOTS no se valida la cadena del certificado, solo su vigencia.
	c.Signer = signer.NewDigitalSignatureService()
	if cfg.SII.TrustRoots == "" {
		logger.Warn().Str("sii_env", cfg.SII.Env).Msg("SII_TRUST_ROOTS no definido: no se valida la cadena del certificado")
	} else {
		roots, err := signer.LoadTrustRoots(cfg.SII.TrustRoots)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Signer = signer.NewDigitalSignatureService(signer.WithRoots(roots))
	}

	// Token y lease: Redis si hay. Sin Redis el pipeline reserva documentos en memoria.
	var tokenCache sii.TokenCache = sii.NewMemoryTokenCache()
	var lease billing.Lease
	if cfg.Redis.Enabled() {
		rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("conexión a Redis: %w", err)
		}
		c.Redis = rdb
		tokenCache = cache.NewRedisTokenCache(rdb)
		lease = cache.NewRedisLease(rdb, logger)
	}

	var archive sii.RawArchive = postgres.NewRawResponseArchive(pool)
	if cfg.Archive.Backend == config.ArchiveS3 {
		s3a, err := storage.NewS3Archive(ctx, cfg.Archive)
		if err != nil {
			c.Close()
			return nil, err
		}
		archive = s3a
	}

	baseURL, err := sii.BaseURL(cfg.SII.Env)
	if err != nil {
		c.Close()
		return nil, err
	}
	httpClient := &http.Client{}
	if cfg.SII.Env == sii.EnvDev {
		// En dev los webservices los atiende el simulador en proceso.
		httpClient.Transport = sii.NewSimulator(c.Signer).Transport()
		logger.Warn().Msg("SII_ENV=dev: usando el simulador del SII")
	}
	soap := sii.NewSOAPClient(baseURL, httpClient)

	profiles := postgres.NewTenantProfileRepository(pool)
	attempts := postgres.NewTransmissionAttemptRepository(pool)
	documents := postgres.NewTaxDocumentRepository(pool)
	txRunner := postgres.NewTxRunner(pool)
	c.Profiles = profiles

	tokens := sii.NewTokenManager(soap, c.Signer, tokenCache, lease, cfg.SII.TokenTTL, logger)
	client := sii.NewClient(sii.ClientConfig{
		RequestTimeout: cfg.SII.RequestTimeout,
		MaxAttempts:    cfg.SII.MaxAttempts,
		BackoffInitial: cfg.SII.BackoffInitial,
		BackoffMax:     cfg.SII.BackoffMax,
		RatePerSec:     cfg.SII.RatePerSec,
	}, soap, tokens, attempts, archive, logger)

	c.Allocator = folio.NewAllocator(txRunner, postgres.NewFolioRangeRepository(pool), profiles, logger)
	c.Pipeline = billing.NewPipeline(billing.PipelineDeps{
		TxRunner:    txRunner,
		Allocator:   c.Allocator,
		Documents:   documents,
		Envelopes:   postgres.NewSignedEnvelopeRepository(pool),
		Attempts:    attempts,
		Profiles:    profiles,
		Stamper:     sii.NewTEDStamper(),
		Serializer:  sii.NewXMLSerializer(),
		Signer:      c.Signer,
		Packager:    sii.NewEnvioPackager(c.Signer),
		Certs:       signer.NewTenantCertificateProvider(profiles, logger),
		Transmitter: client,
		Processor:   billing.NewResponseProcessor(documents, sii.NewResponseParser(), logger),
		Lease:       lease,
	}, billing.PipelineConfig{Workers: cfg.App.Workers}, logger)
	c.Poller = billing.NewPoller(c.Pipeline, documents, lease, cfg.SII.PollInterval, cfg.SII.PollBatch, logger)
	return c, nil
}

// Close espera los trabajos asíncronos y cierra las conexiones.
func (c *Container) Close() {
	if c.Pipeline != nil {
		c.Pipeline.Wait()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	c.Pool.Close()
}
