package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	_ "github.com/jhoicas/dte-sii/docs"
	"github.com/jhoicas/dte-sii/internal/bootstrap"
	"github.com/jhoicas/dte-sii/internal/infrastructure/postgres"
	httpRouter "github.com/jhoicas/dte-sii/internal/interfaces/http"
	"github.com/jhoicas/dte-sii/pkg/config"
	"github.com/jhoicas/dte-sii/pkg/logger"
)

//	@title			DTE SII API
//	@version		1.0
//	@description	Emisión de documentos tributarios electrónicos ante el SII de Chile.
//	@BasePath		/

//	@securityDefinitions.apikey	Bearer
//	@in							header
//	@name						Authorization
//	@description				Token JWT con tenant_id. Formato: "Bearer {token}"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:        cfg.App.Env,
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	defer log.Close()
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("sii_env", cfg.SII.Env).
		Msg("iniciando aplicación")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := bootstrap.New(ctx, cfg, log.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("inicializar dependencias")
	}

	m, err := postgres.NewMigrator(c.Pool, log.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("migraciones")
	}
	if err := m.Up(); err != nil {
		log.Fatal().Err(err).Msg("aplicar migraciones")
	}
	_ = m.Close()

	// Consulta periódica de envíos pendientes de respuesta.
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		c.Poller.Run(ctx)
	}()

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  time.Second * 10,
		WriteTimeout: cfg.SII.RequestTimeout * time.Duration(cfg.SII.MaxAttempts+1),
		IdleTimeout:  time.Second * 60,
	})
	app.Use(recover.New())

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "DTE SII API",
	}))

	httpRouter.Router(app, httpRouter.RouterDeps{
		Documents: c.Pipeline,
		Folios:    c.Allocator,
		DB:        c.Pool,
		JWTSecret: cfg.JWT.Secret,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	<-pollerDone
	c.Close()

	log.Info().Msg("aplicación detenida")
}
