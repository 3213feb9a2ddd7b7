package billing

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/internal/domain/entity"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

// Límites del formato DTE del SII.
const (
	MaxLines      = 60
	MaxReferences = 40
)

// currencyDecimals unidades menores por moneda soportada.
var currencyDecimals = map[string]int32{
	"CLP": 0,
}

// CurrencyPlaces decimales de la moneda; 0 si no está soportada.
func CurrencyPlaces(code string) int32 {
	return currencyDecimals[code]
}

// Counterparty receptor del documento.
type Counterparty struct {
	RUT      string `json:"rut" validate:"omitempty,rut"`
	Name     string `json:"name" validate:"max=100"`
	Activity string `json:"activity" validate:"max=40"`
	Address  string `json:"address" validate:"max=70"`
	Comuna   string `json:"comuna" validate:"max=20"`
}

// SourceLine línea del registro de negocio, ya valorizada.
type SourceLine struct {
	Description string          `json:"description" validate:"required,max=80"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Exempt      bool            `json:"exempt"`
}

// SourceReference referencia a un documento anterior.
type SourceReference struct {
	DocumentType int       `json:"document_type" validate:"required"`
	Folio        string    `json:"folio" validate:"required,max=18"`
	Date         time.Time `json:"date"`
	Code         int       `json:"code" validate:"omitempty,oneof=1 2 3"`
	Reason       string    `json:"reason" validate:"max=90"`
}

// SourceRecord registro de negocio a partir del cual se construye el DTE.
type SourceRecord struct {
	DocumentType int               `json:"document_type" validate:"required"`
	ExternalRef  string            `json:"external_ref" validate:"max=64"`
	IssueDate    time.Time         `json:"issue_date"`
	Currency     string            `json:"currency"`
	Counterparty Counterparty      `json:"counterparty"`
	Lines        []SourceLine      `json:"lines" validate:"required,min=1,max=60,dive"`
	References   []SourceReference `json:"references" validate:"max=40,dive"`
}

// Builder arma el TaxDocument en borrador y calcula sus totales.
type Builder struct {
	validate *validator.Validate
	now      func() time.Time
}

// NewBuilder construye el builder con el validador y la regla "rut".
func NewBuilder() *Builder {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("rut", func(fl validator.FieldLevel) bool {
		return sii.ValidateRUT(fl.Field().String()) == nil
	})
	return &Builder{validate: v, now: time.Now}
}

// Build valida el registro y devuelve el documento en estado draft.
// Si hay errores, devuelve *domain.InvalidDocumentError con todas las violaciones.
func (b *Builder) Build(tenantID string, in SourceRecord) (*entity.TaxDocument, error) {
	violations := b.structViolations(in)

	docType := entity.DocumentType(in.DocumentType)
	behavior, ok := docType.Behavior()
	if !ok && in.DocumentType != 0 {
		violations = append(violations, domain.Violation{Field: "document_type", Rule: "supported", Message: fmt.Sprintf("tipo de DTE %d no soportado", in.DocumentType)})
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "CLP"
	}
	places, supported := currencyDecimals[currency]
	if !supported {
		violations = append(violations, domain.Violation{Field: "currency", Rule: "supported", Message: fmt.Sprintf("moneda %s no soportada", currency)})
	}

	receiver := in.Counterparty
	if behavior.Kind == entity.KindReceipt {
		if strings.TrimSpace(receiver.RUT) == "" {
			receiver.RUT = sii.RUTGenericReceptor
		}
	} else if ok {
		if strings.TrimSpace(receiver.RUT) == "" {
			violations = append(violations, domain.Violation{Field: "counterparty.rut", Rule: "required", Message: "RUT del receptor requerido"})
		}
		if strings.TrimSpace(receiver.Name) == "" {
			violations = append(violations, domain.Violation{Field: "counterparty.name", Rule: "required", Message: "razón social del receptor requerida"})
		}
	}

	for i, l := range in.Lines {
		field := fmt.Sprintf("lines[%d]", i)
		if !l.Quantity.IsPositive() {
			violations = append(violations, domain.Violation{Field: field + ".quantity", Rule: "gt0", Message: "cantidad debe ser mayor a cero"})
		}
		if l.UnitPrice.IsNegative() {
			violations = append(violations, domain.Violation{Field: field + ".unit_price", Rule: "gte0", Message: "precio unitario no puede ser negativo"})
		}
		if ok && !l.Exempt && !behavior.AllowsTaxedLines {
			violations = append(violations, domain.Violation{Field: field + ".exempt", Rule: "exempt_only", Message: "documento exento no admite líneas afectas"})
		}
	}

	// FchRef es obligatorio en toda Referencia.
	for i, r := range in.References {
		if r.Date.IsZero() {
			violations = append(violations, domain.Violation{Field: fmt.Sprintf("references[%d].date", i), Rule: "required", Message: "fecha del documento referenciado requerida"})
		}
	}

	if ok && behavior.RequiresReference {
		if len(in.References) == 0 {
			violations = append(violations, domain.Violation{Field: "references", Rule: "required", Message: "las notas de crédito/débito requieren referencia"})
		}
		for i, r := range in.References {
			if r.Code == 0 {
				violations = append(violations, domain.Violation{Field: fmt.Sprintf("references[%d].code", i), Rule: "required", Message: "código de referencia requerido en notas"})
			}
		}
	}

	if len(violations) > 0 {
		return nil, &domain.InvalidDocumentError{Violations: violations}
	}

	now := b.now()
	issueDate := in.IssueDate
	if issueDate.IsZero() {
		issueDate = now
	}
	doc := &entity.TaxDocument{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		Type:        docType,
		ExternalRef: strings.TrimSpace(in.ExternalRef),
		IssueDate:   time.Date(issueDate.Year(), issueDate.Month(), issueDate.Day(), 0, 0, 0, 0, time.UTC),
		Currency:    currency,
		Receiver: entity.Counterparty{
			RUT:      mustNormalizeRUT(receiver.RUT),
			Name:     strings.TrimSpace(receiver.Name),
			Activity: strings.TrimSpace(receiver.Activity),
			Address:  strings.TrimSpace(receiver.Address),
			Comuna:   strings.TrimSpace(receiver.Comuna),
		},
		Status:    entity.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, l := range in.Lines {
		doc.Lines = append(doc.Lines, entity.LineItem{
			LineNo:      i + 1,
			Description: strings.TrimSpace(l.Description),
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			Exempt:      l.Exempt,
			LineTotal:   l.Quantity.Mul(l.UnitPrice),
		})
	}
	for i, r := range in.References {
		doc.References = append(doc.References, entity.DocumentReference{
			LineNo:       i + 1,
			DocumentType: r.DocumentType,
			Folio:        strings.TrimSpace(r.Folio),
			Date:         r.Date,
			Code:         r.Code,
			Reason:       strings.TrimSpace(r.Reason),
		})
	}
	ComputeTotals(doc, behavior, places)
	return doc, nil
}

// ComputeTotals calcula neto, exento, IVA y total.
// Las líneas no se redondean; cada componente se redondea una sola vez (half-up) a la unidad
// menor de la moneda y el total es la suma de los componentes ya redondeados.
func ComputeTotals(doc *entity.TaxDocument, behavior entity.DocumentBehavior, places int32) {
	rate := decimal.NewFromInt(sii.TasaIVA)
	var taxed, exempt decimal.Decimal
	for _, l := range doc.Lines {
		if l.Exempt {
			exempt = exempt.Add(l.LineTotal)
		} else {
			taxed = taxed.Add(l.LineTotal)
		}
	}
	round := func(d decimal.Decimal) decimal.Decimal { return d.Round(places) }

	doc.ExemptAmount = round(exempt)
	if taxed.IsZero() {
		doc.TaxRate = decimal.Zero
		doc.NetAmount = decimal.Zero
		doc.TaxAmount = decimal.Zero
	} else {
		doc.TaxRate = rate
		if behavior.PricesIncludeTax {
			gross := round(taxed)
			doc.NetAmount = round(taxed.Div(decimal.NewFromInt(1).Add(rate.Shift(-2))))
			doc.TaxAmount = gross.Sub(doc.NetAmount)
		} else {
			doc.NetAmount = round(taxed)
			doc.TaxAmount = round(taxed.Mul(rate.Shift(-2)))
		}
	}
	doc.TotalAmount = doc.NetAmount.Add(doc.TaxAmount).Add(doc.ExemptAmount)
}

func (b *Builder) structViolations(in SourceRecord) []domain.Violation {
	err := b.validate.Struct(in)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return []domain.Violation{{Rule: "struct", Message: err.Error()}}
	}
	out := make([]domain.Violation, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.IndexByte(field, '.'); i >= 0 {
			field = field[i+1:]
		}
		out = append(out, domain.Violation{Field: field, Rule: fe.Tag(), Message: violationMessage(fe)})
	}
	return out
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "campo requerido"
	case "max":
		return "excede el máximo de " + fe.Param()
	case "min":
		return "requiere al menos " + fe.Param()
	case "rut":
		return "RUT con dígito verificador inválido"
	case "oneof":
		return "valor no permitido, opciones: " + fe.Param()
	}
	return "no cumple la regla " + fe.Tag()
}

func mustNormalizeRUT(rut string) string {
	n, err := sii.NormalizeRUT(rut)
	if err != nil {
		return rut
	}
	return n
}
