package sii

import (
	"fmt"
	"strconv"
	"strings"
)

// RUTSII es el RUT del Servicio de Impuestos Internos, receptor de todo EnvioDTE.
const RUTSII = "60803000-K"

// RUTGenericReceptor RUT genérico para boletas a consumidor final.
const RUTGenericReceptor = "66666666-6"

// NormalizeRUT deja el RUT en la forma canónica del SII: cuerpo sin puntos, guion y DV en mayúscula.
// Acepta "12.345.678-5", "12345678-5" o "123456785".
func NormalizeRUT(rut string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(rut) {
		if (r >= '0' && r <= '9') || r == 'K' {
			b.WriteRune(r)
		}
	}
	clean := b.String()
	if len(clean) < 2 {
		return "", fmt.Errorf("sii: RUT %q demasiado corto", rut)
	}
	body, dv := clean[:len(clean)-1], clean[len(clean)-1]
	if strings.ContainsRune(body, 'K') {
		return "", fmt.Errorf("sii: RUT %q tiene caracteres inválidos en el cuerpo", rut)
	}
	return strings.TrimLeft(body, "0") + "-" + string(dv), nil
}

// ValidateRUT valida el dígito verificador del RUT (módulo 11, pesos 2..7 desde la derecha).
func ValidateRUT(rut string) error {
	norm, err := NormalizeRUT(rut)
	if err != nil {
		return err
	}
	parts := strings.SplitN(norm, "-", 2)
	if len(parts[0]) == 0 || len(parts[0]) > 8 {
		return fmt.Errorf("sii: cuerpo del RUT %q fuera de rango", rut)
	}
	expected, err := ComputeRUTVerificationDigit(parts[0])
	if err != nil {
		return err
	}
	if parts[1][0] != expected {
		return fmt.Errorf("sii: dígito verificador del RUT inválido: esperado %c, recibido %s", expected, parts[1])
	}
	return nil
}

// ComputeRUTVerificationDigit calcula el DV para el cuerpo numérico del RUT.
func ComputeRUTVerificationDigit(body string) (byte, error) {
	if _, err := strconv.Atoi(body); err != nil {
		return 0, fmt.Errorf("sii: cuerpo de RUT no numérico %q", body)
	}
	sum, weight := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	switch r := 11 - sum%11; r {
	case 11:
		return '0', nil
	case 10:
		return 'K', nil
	default:
		return byte('0' + r), nil
	}
}

// SplitRUT separa cuerpo y DV, útil para los formularios de upload del SII (rutSender/dvSender).
func SplitRUT(rut string) (body, dv string, err error) {
	norm, err := NormalizeRUT(rut)
	if err != nil {
		return "", "", err
	}
	parts := strings.SplitN(norm, "-", 2)
	return parts[0], parts[1], nil
}
