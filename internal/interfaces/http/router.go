package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jhoicas/dte-sii/internal/application/dto"
)

// Pinger verifica una dependencia para /health (pool de PostgreSQL).
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Documents documentService
	Folios    folioService
	DB        Pinger
	JWTSecret string
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", healthHandler(deps.DB))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Rutas protegidas (requieren Bearer Token con tenant_id)
	api := app.Group("/api", AuthMiddleware(deps.JWTSecret))

	documents := api.Group("/documents")
	documentHandler := NewDocumentHandler(deps.Documents)
	documents.Post("/", documentHandler.Create)
	documents.Get("/:id", documentHandler.GetByID)
	documents.Get("/:id/status", documentHandler.Status)
	documents.Get("/:id/xml", documentHandler.XML)
	documents.Get("/:id/attempts", documentHandler.Attempts)
	documents.Post("/:id/resume", documentHandler.Resume)
	documents.Post("/:id/void", documentHandler.Void)
	documents.Delete("/:id", documentHandler.Delete)

	// Importar CAF exige rol operador.
	ranges := api.Group("/folio-ranges")
	folioHandler := NewFolioHandler(deps.Folios)
	ranges.Get("/", folioHandler.List)
	ranges.Post("/", RequireRole(RoleOperator), folioHandler.Import)
}

func healthHandler(db Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if db == nil {
			return c.JSON(fiber.Map{"status": "ok"})
		}
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Code: "DB_UNAVAILABLE", Message: "base de datos no disponible"})
		}
		return c.JSON(fiber.Map{"status": "ok"})
	}
}
