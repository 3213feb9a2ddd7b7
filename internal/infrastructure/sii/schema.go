package sii

import (
	"fmt"
	"regexp"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/jhoicas/dte-sii/internal/domain"
	"github.com/jhoicas/dte-sii/pkg/sii"
)

type lexical int

const (
	lexText lexical = iota
	lexInt
	lexDecimal
	lexDate
	lexDateTime
	lexRUT
)

// node regla de un elemento: cardinalidad, tipo léxico y largo máximo.
// Un nodo con children es compuesto y sus hijos deben venir en ese orden.
type node struct {
	name     string
	min, max int
	lex      lexical
	maxLen   int
	attrs    []string
	opaque   bool
	children []node
}

func req(name string, lex lexical, maxLen int) node {
	return node{name: name, min: 1, max: 1, lex: lex, maxLen: maxLen}
}

func opt(name string, lex lexical, maxLen int) node {
	return node{name: name, min: 0, max: 1, lex: lex, maxLen: maxLen}
}

// dteSchema subconjunto de DTE_v10.xsd que emite el serializador.
var dteSchema = node{
	name: "DTE", min: 1, max: 1, attrs: []string{"version"},
	children: []node{{
		name: "Documento", min: 1, max: 1, attrs: []string{"ID"},
		children: []node{
			{name: "Encabezado", min: 1, max: 1, children: []node{
				{name: "IdDoc", min: 1, max: 1, children: []node{
					req("TipoDTE", lexInt, 3),
					req("Folio", lexInt, 10),
					req("FchEmis", lexDate, 10),
					opt("IndServicio", lexInt, 1),
				}},
				{name: "Emisor", min: 1, max: 1, children: []node{
					req("RUTEmisor", lexRUT, 10),
					req("RznSoc", lexText, 100),
					req("GiroEmis", lexText, 80),
					opt("Acteco", lexInt, 6),
					opt("DirOrigen", lexText, 70),
					opt("CmnaOrigen", lexText, 20),
					opt("CiudadOrigen", lexText, 20),
				}},
				{name: "Receptor", min: 1, max: 1, children: []node{
					req("RUTRecep", lexRUT, 10),
					opt("RznSocRecep", lexText, 100),
					opt("GiroRecep", lexText, 40),
					opt("DirRecep", lexText, 70),
					opt("CmnaRecep", lexText, 20),
				}},
				{name: "Totales", min: 1, max: 1, children: []node{
					opt("MntNeto", lexInt, 18),
					opt("MntExe", lexInt, 18),
					opt("TasaIVA", lexDecimal, 5),
					opt("IVA", lexInt, 18),
					req("MntTotal", lexInt, 18),
				}},
			}},
			{name: "Detalle", min: 1, max: 60, children: []node{
				req("NroLinDet", lexInt, 4),
				opt("IndExe", lexInt, 1),
				req("NmbItem", lexText, 80),
				req("QtyItem", lexDecimal, 19),
				req("PrcItem", lexDecimal, 19),
				req("MontoItem", lexInt, 18),
			}},
			{name: "Referencia", min: 0, max: 40, children: []node{
				req("NroLinRef", lexInt, 2),
				req("TpoDocRef", lexText, 3),
				req("FolioRef", lexText, 18),
				req("FchRef", lexDate, 10),
				opt("CodRef", lexInt, 1),
				opt("RazonRef", lexText, 90),
			}},
			{name: "TED", min: 1, max: 1, attrs: []string{"version"}, opaque: true},
			req("TmstFirma", lexDateTime, 19),
		},
	}},
}

var (
	reInt     = regexp.MustCompile(`^-?[0-9]+$`)
	reDecimal = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)
)

// ValidateSchema valida el XML del DTE contra la tabla de reglas.
// Devuelve *domain.SchemaViolationError con la ruta del primer elemento que falla.
func ValidateSchema(data []byte) error {
	doc := etree.NewDocument()
	doc.ReadSettings.CharsetReader = sii.CharsetReader
	if err := doc.ReadFromBytes(data); err != nil {
		return &domain.SchemaViolationError{Path: "/", Message: "XML mal formado: " + err.Error()}
	}
	root := doc.Root()
	if root == nil || root.Tag != dteSchema.name {
		return &domain.SchemaViolationError{Path: "/", Message: "se esperaba elemento raíz DTE"}
	}
	if ns := root.SelectAttrValue("xmlns", ""); ns != sii.NamespaceDTE {
		return &domain.SchemaViolationError{Path: "DTE", Message: fmt.Sprintf("namespace %q inválido", ns)}
	}
	return validateNode(root, dteSchema, dteSchema.name)
}

func validateNode(el *etree.Element, rule node, path string) error {
	for _, a := range rule.attrs {
		if el.SelectAttr(a) == nil {
			return &domain.SchemaViolationError{Path: path + "/@" + a, Message: "atributo requerido"}
		}
	}
	if rule.opaque {
		return nil
	}
	kids := el.ChildElements()
	if len(rule.children) == 0 {
		if len(kids) > 0 {
			return &domain.SchemaViolationError{Path: path + "/" + kids[0].Tag, Message: "elemento no permitido"}
		}
		return validateText(el.Text(), rule, path)
	}

	i := 0
	for _, child := range rule.children {
		count := 0
		for i < len(kids) && kids[i].Tag == child.name && count < child.max {
			if err := validateNode(kids[i], child, path+"/"+child.name); err != nil {
				return err
			}
			count++
			i++
		}
		if count < child.min {
			return &domain.SchemaViolationError{Path: path + "/" + child.name, Message: "elemento requerido ausente"}
		}
	}
	if i < len(kids) {
		return &domain.SchemaViolationError{Path: path + "/" + kids[i].Tag, Message: "elemento no permitido o fuera de orden"}
	}
	return nil
}

func validateText(text string, rule node, path string) error {
	if text == "" {
		return &domain.SchemaViolationError{Path: path, Message: "valor vacío"}
	}
	if rule.maxLen > 0 && utf8.RuneCountInString(text) > rule.maxLen {
		return &domain.SchemaViolationError{Path: path, Message: fmt.Sprintf("largo máximo %d", rule.maxLen)}
	}
	var ok bool
	switch rule.lex {
	case lexInt:
		ok = reInt.MatchString(text)
	case lexDecimal:
		ok = reDecimal.MatchString(text)
	case lexDate:
		_, err := time.Parse(sii.DateLayout, text)
		ok = err == nil
	case lexDateTime:
		_, err := time.Parse(sii.TimestampLayout, text)
		ok = err == nil
	case lexRUT:
		ok = sii.ValidateRUT(text) == nil
	default:
		ok = true
	}
	if !ok {
		return &domain.SchemaViolationError{Path: path, Message: fmt.Sprintf("valor %q no cumple el tipo", text)}
	}
	return nil
}
