package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/dte-sii/internal/application/dto"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// writeError traduce la taxonomía de errores a HTTP. Si el documento ya existe (falló un paso
// posterior al borrador) se devuelve junto al error en su último estado alcanzado.
func writeError(c *fiber.Ctx, err error, doc *entity.TaxDocument) error {
	var invalid *domain.InvalidDocumentError
	if errors.As(err, &invalid) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ValidationErrorResponse{
			Code: "INVALID_DOCUMENT", Message: "el registro no cumple las reglas del DTE", Violations: invalid.Violations,
		})
	}

	status, code := fiber.StatusInternalServerError, "INTERNAL"
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		status, code = fiber.StatusBadRequest, "VALIDATION"
	case errors.Is(err, domain.ErrNotFound):
		status, code = fiber.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrForbidden):
		status, code = fiber.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrDuplicate):
		status, code = fiber.StatusConflict, "DUPLICATE"
	case errors.Is(err, domain.ErrInvalidTransition):
		status, code = fiber.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, domain.ErrConflict):
		status, code = fiber.StatusConflict, "CONFLICT"
	case errors.Is(err, domain.ErrFolioRangeExhausted):
		status, code = fiber.StatusConflict, "FOLIO_RANGE_EXHAUSTED"
	case errors.Is(err, domain.ErrCertificateInvalid):
		status, code = fiber.StatusUnprocessableEntity, "CERTIFICATE_INVALID"
	case errors.Is(err, domain.ErrSchemaViolation):
		status, code = fiber.StatusUnprocessableEntity, "SCHEMA_VIOLATION"
	case errors.Is(err, domain.ErrTransmissionFailed):
		status, code = fiber.StatusBadGateway, "TRANSMISSION_FAILED"
		if domain.IsTransient(err) {
			status = fiber.StatusServiceUnavailable
		}
	}

	body := dto.DocumentErrorResponse{Code: code, Message: err.Error()}
	if doc != nil {
		body.Document = dto.NewDocumentResponse(doc)
	}
	return c.Status(status).JSON(body)
}
