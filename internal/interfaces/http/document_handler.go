package http

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/dte-sii/internal/application/billing"
	"github.com/jhoicas/dte-sii/internal/application/dto"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// documentService lo implementa *billing.Pipeline.
type documentService interface {
	Issue(ctx context.Context, tenantID string, in billing.SourceRecord) (*entity.TaxDocument, error)
	IssueAsync(ctx context.Context, tenantID string, in billing.SourceRecord) (*entity.TaxDocument, error)
	Get(ctx context.Context, tenantID, documentID string) (*entity.TaxDocument, error)
	RefreshStatus(ctx context.Context, tenantID, documentID string) (entity.DocumentStatus, error)
	SignedXML(ctx context.Context, tenantID, documentID string) ([]byte, error)
	Attempts(ctx context.Context, tenantID, documentID string) ([]*entity.TransmissionAttempt, error)
	Resume(ctx context.Context, tenantID, documentID string) (*entity.TaxDocument, error)
	Void(ctx context.Context, tenantID, documentID, reason string) (*entity.TaxDocument, error)
	Discard(ctx context.Context, tenantID, documentID string) error
}

var _ documentService = (*billing.Pipeline)(nil)

// DocumentHandler maneja las peticiones HTTP de emisión de DTE (protegido).
type DocumentHandler struct {
	svc documentService
}

// NewDocumentHandler construye el handler.
func NewDocumentHandler(svc documentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

// Create godoc
// @Summary      Emitir DTE
// @Description  Construye, numera, timbra, firma y envía el documento al SII.
//               Con async=true responde 202 tras guardar el borrador y el resto corre en segundo plano.
//               Idempotente por external_ref.
// @Tags         documents
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        body   body   billing.SourceRecord  true   "Registro de negocio"
// @Param        async  query  bool                  false  "Emitir en segundo plano"
// @Success      201  {object}  dto.DocumentResponse
// @Success      202  {object}  dto.DocumentResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      401  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.DocumentErrorResponse
// @Failure      422  {object}  dto.ValidationErrorResponse
// @Failure      502  {object}  dto.DocumentErrorResponse
// @Router       /api/documents [post]
func (h *DocumentHandler) Create(c *fiber.Ctx) error {
	tenantID := GetTenantID(c)
	if tenantID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "token inválido"})
	}
	var in billing.SourceRecord
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if c.QueryBool("async") {
		doc, err := h.svc.IssueAsync(c.UserContext(), tenantID, in)
		if err != nil {
			return writeError(c, err, doc)
		}
		return c.Status(fiber.StatusAccepted).JSON(dto.NewDocumentResponse(doc))
	}
	doc, err := h.svc.Issue(c.UserContext(), tenantID, in)
	if err != nil {
		return writeError(c, err, doc)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewDocumentResponse(doc))
}

// GetByID godoc
// @Summary      Obtener DTE
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      404  {object}  dto.DocumentErrorResponse
// @Router       /api/documents/{id} [get]
func (h *DocumentHandler) GetByID(c *fiber.Ctx) error {
	doc, err := h.svc.Get(c.UserContext(), GetTenantID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Status godoc
// @Summary      Estado del DTE
// @Description  Con refresh=true consulta antes el estado del envío en el SII.
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id       path   string  true   "ID del documento"
// @Param        refresh  query  bool    false  "Consultar al SII"
// @Success      200  {object}  dto.DocumentStatusResponse
// @Failure      404  {object}  dto.DocumentErrorResponse
// @Failure      409  {object}  dto.DocumentErrorResponse
// @Failure      503  {object}  dto.DocumentErrorResponse
// @Router       /api/documents/{id}/status [get]
func (h *DocumentHandler) Status(c *fiber.Ctx) error {
	tenantID, id := GetTenantID(c), c.Params("id")
	if c.QueryBool("refresh") {
		if _, err := h.svc.RefreshStatus(c.UserContext(), tenantID, id); err != nil {
			return writeError(c, err, nil)
		}
	}
	doc, err := h.svc.Get(c.UserContext(), tenantID, id)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(dto.DocumentStatusResponse{
		ID:              doc.ID,
		Status:          string(doc.Status),
		TrackID:         doc.TrackID,
		RejectionReason: doc.RejectionReason,
		LastError:       doc.LastError,
	})
}

// XML godoc
// @Summary      DTE firmado
// @Tags         documents
// @Security     Bearer
// @Produce      xml
// @Param        id   path      string  true  "ID del documento"
// @Success      200  {string}  string
// @Failure      404  {object}  dto.DocumentErrorResponse
// @Router       /api/documents/{id}/xml [get]
func (h *DocumentHandler) XML(c *fiber.Ctx) error {
	data, err := h.svc.SignedXML(c.UserContext(), GetTenantID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err, nil)
	}
	c.Set(fiber.HeaderContentType, "application/xml; charset=utf-8")
	return c.Send(data)
}

// Attempts godoc
// @Summary      Intentos de envío y consulta
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID del documento"
// @Success      200  {array}   dto.AttemptResponse
// @Failure      404  {object}  dto.DocumentErrorResponse
// @Router       /api/documents/{id}/attempts [get]
func (h *DocumentHandler) Attempts(c *fiber.Ctx) error {
	list, err := h.svc.Attempts(c.UserContext(), GetTenantID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(dto.NewAttemptResponses(list))
}

// Resume godoc
// @Summary      Retomar DTE
// @Description  Continúa desde el último estado alcanzado. 409 si otro proceso ya lo está procesando.
// @Tags         documents
// @Security     Bearer
// @Produce      json
// @Param        id   path      string  true  "ID del documento"
// @Success      200  {object}  dto.DocumentResponse
// @Failure      404  {object}  dto.DocumentErrorResponse
// @Failure      409  {object}  dto.DocumentErrorResponse
// @Failure      502  {object}  dto.DocumentErrorResponse
// @Router       /api/documents/{id}/resume [post]
func (h *DocumentHandler) Resume(c *fiber.Ctx) error {
	doc, err := h.svc.Resume(c.UserContext(), GetTenantID(c), c.Params("id"))
	if err != nil {
		return writeError(c, err, doc)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Void godoc
// @Summary      Anular folio
// @Description  Anula el folio de un documento que no se enviará. El folio no se reutiliza.
// @Tags         documents
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path      string                   true  "ID del documento"
// @Param        body  body      dto.VoidDocumentRequest  true  "Motivo"
// @Success      200   {object}  dto.DocumentResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.DocumentErrorResponse
// @Router       /api/documents/{id}/void [post]
func (h *DocumentHandler) Void(c *fiber.Ctx) error {
	var in dto.VoidDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	doc, err := h.svc.Void(c.UserContext(), GetTenantID(c), c.Params("id"), in.Reason)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.JSON(dto.NewDocumentResponse(doc))
}

// Delete godoc
// @Summary      Descartar borrador
// @Tags         documents
// @Security     Bearer
// @Param        id   path  string  true  "ID del documento"
// @Success      204
// @Failure      409  {object}  dto.DocumentErrorResponse
// @Router       /api/documents/{id} [delete]
func (h *DocumentHandler) Delete(c *fiber.Ctx) error {
	if err := h.svc.Discard(c.UserContext(), GetTenantID(c), c.Params("id")); err != nil {
		return writeError(c, err, nil)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
