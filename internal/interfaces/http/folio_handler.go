package http

import (
	"context"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/dte-sii/internal/application/dto"
	"github.com/jhoicas/dte-sii/internal/application/folio"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// maxCAFBytes un CAF real pesa unos pocos KB.
const maxCAFBytes = 64 << 10

type folioService interface {
	ImportCAF(ctx context.Context, tenantID string, raw []byte) (*entity.FolioRange, error)
	ListRanges(ctx context.Context, tenantID string) ([]*entity.FolioRange, error)
}

var _ folioService = (*folio.Allocator)(nil)

// FolioHandler administra los rangos CAF del tenant.
type FolioHandler struct {
	svc folioService
}

// NewFolioHandler construye el handler.
func NewFolioHandler(svc folioService) *FolioHandler {
	return &FolioHandler{svc: svc}
}

// Import godoc
// @Summary      Importar CAF
// @Description  Registra un rango de folios autorizado. Acepta multipart (campo "caf"),
//               XML crudo o JSON {"caf_xml": "..."}. Requiere rol operador.
// @Tags         folio-ranges
// @Security     Bearer
// @Accept       json,xml,mpfd
// @Produce      json
// @Param        caf  formData  file  false  "Archivo CAF"
// @Success      201  {object}  dto.FolioRangeResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      403  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.DocumentErrorResponse
// @Failure      413  {object}  dto.ErrorResponse
// @Router       /api/folio-ranges [post]
func (h *FolioHandler) Import(c *fiber.Ctx) error {
	raw, err := cafFromRequest(c)
	if err != nil || len(raw) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "archivo CAF requerido"})
	}
	if len(raw) > maxCAFBytes {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(dto.ErrorResponse{Code: "TOO_LARGE", Message: "archivo CAF demasiado grande"})
	}
	r, err := h.svc.ImportCAF(c.UserContext(), GetTenantID(c), raw)
	if err != nil {
		return writeError(c, err, nil)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.NewFolioRangeResponse(r))
}

// List godoc
// @Summary      Listar rangos CAF
// @Tags         folio-ranges
// @Security     Bearer
// @Produce      json
// @Success      200  {array}  dto.FolioRangeResponse
// @Router       /api/folio-ranges [get]
func (h *FolioHandler) List(c *fiber.Ctx) error {
	list, err := h.svc.ListRanges(c.UserContext(), GetTenantID(c))
	if err != nil {
		return writeError(c, err, nil)
	}
	out := make([]dto.FolioRangeResponse, 0, len(list))
	for _, r := range list {
		out = append(out, dto.NewFolioRangeResponse(r))
	}
	return c.JSON(out)
}

func cafFromRequest(c *fiber.Ctx) ([]byte, error) {
	ct := strings.ToLower(c.Get(fiber.HeaderContentType))
	switch {
	case strings.HasPrefix(ct, fiber.MIMEMultipartForm):
		fh, err := c.FormFile("caf")
		if err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxCAFBytes+1))
	case strings.HasPrefix(ct, fiber.MIMEApplicationJSON):
		var in dto.ImportCAFRequest
		if err := c.BodyParser(&in); err != nil {
			return nil, err
		}
		return []byte(in.CAFXML), nil
	default:
		return c.Body(), nil
	}
}
