// Package validate is the single source of truth for the input rules shared
// by the reservation-creation flow and the visitor pre-registration flow.
// The original clients each carried their own copy of these rules with
// drifting strictness; here there is exactly one.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"visitor-parking-backend/internal/apperr"
)

// Rules carries the deployment-configurable bounds. Zero values are replaced
// by the observed defaults.
type Rules struct {
	PlateMinLen    int
	PlateMaxLen    int
	DocumentMinLen int
	DocumentMaxLen int
}

// DefaultRules returns the bounds observed in the reference deployment.
func DefaultRules() Rules {
	return Rules{PlateMinLen: 5, PlateMaxLen: 8, DocumentMinLen: 5, DocumentMaxLen: 15}
}

func (r Rules) withDefaults() Rules {
	d := DefaultRules()
	if r.PlateMinLen <= 0 {
		r.PlateMinLen = d.PlateMinLen
	}
	if r.PlateMaxLen <= 0 {
		r.PlateMaxLen = d.PlateMaxLen
	}
	if r.DocumentMinLen <= 0 {
		r.DocumentMinLen = d.DocumentMinLen
	}
	if r.DocumentMaxLen <= 0 {
		r.DocumentMaxLen = d.DocumentMaxLen
	}
	return r
}

var (
	plateRe    = regexp.MustCompile(`^[A-Z0-9]+$`)
	documentRe = regexp.MustCompile(`[^A-Z0-9.\-]`)
	rutShapeRe = regexp.MustCompile(`^\d+[0-9K]$`)
)

// NormalizePlate uppercases and trims a raw license plate.
func NormalizePlate(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Plate validates a license plate and returns its normalized form. Reasons
// are stable strings surfaced verbatim to the client.
func (r Rules) Plate(raw string) (string, string) {
	r = r.withDefaults()
	plate := NormalizePlate(raw)
	switch {
	case plate == "":
		return "", "plate is required"
	case len(plate) < r.PlateMinLen || len(plate) > r.PlateMaxLen:
		return "", fmt.Sprintf("plate length must be between %d and %d characters", r.PlateMinLen, r.PlateMaxLen)
	case !plateRe.MatchString(plate):
		return "", "plate must contain only letters and digits"
	}
	return plate, ""
}

// SanitizeDocument uppercases the raw identifier, drops everything outside
// [A-Z0-9.-], then strips the dots and dashes to a compact canonical form.
func SanitizeDocument(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	s = documentRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// Document validates a visitor identity document and returns the compact
// form. A compact value shaped like a national check-digit identifier
// (digits plus a trailing digit or K, 8-9 characters) is verified with the
// modulus-11 algorithm; any other shape is accepted as an opaque id.
func (r Rules) Document(raw string) (string, string) {
	r = r.withDefaults()
	compact := SanitizeDocument(raw)
	switch {
	case compact == "":
		return "", "document is required"
	case len(compact) < r.DocumentMinLen || len(compact) > r.DocumentMaxLen:
		return "", "document length is out of range"
	}
	if isCheckDigitShaped(compact) && !VerifyCheckDigit(compact) {
		return "", "document check digit does not match"
	}
	return compact, ""
}

// Department validates the resident unit identifier.
func Department(raw string) (string, string) {
	dept := strings.TrimSpace(raw)
	if dept == "" {
		return "", "department is required"
	}
	return dept, ""
}

func isCheckDigitShaped(compact string) bool {
	return len(compact) >= 8 && len(compact) <= 9 && rutShapeRe.MatchString(compact)
}

// ComputeCheckDigit returns the modulus-11 check character for the digit
// body: weights cycle 2..7 from the rightmost digit, the remainder
// 11-(sum mod 11) maps 11 to '0' and 10 to 'K'.
func ComputeCheckDigit(body string) byte {
	sum := 0
	weight := 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 7 {
			weight = 2
		}
	}
	switch rem := 11 - (sum % 11); rem {
	case 11:
		return '0'
	case 10:
		return 'K'
	default:
		return byte('0' + rem)
	}
}

// VerifyCheckDigit checks a compact identifier whose last character is the
// check digit for the preceding digits.
func VerifyCheckDigit(compact string) bool {
	if len(compact) < 2 {
		return false
	}
	body := compact[:len(compact)-1]
	for i := 0; i < len(body); i++ {
		if body[i] < '0' || body[i] > '9' {
			return false
		}
	}
	return ComputeCheckDigit(body) == compact[len(compact)-1]
}

// CreateInput is a validated, normalized reservation-creation request.
type CreateInput struct {
	Plate      string
	Document   string
	Department string
}

// CreateRequest validates all three identity fields and reports every
// violation at once, so the client can correct the whole form in one pass.
func (r Rules) CreateRequest(plate, document, department string) (CreateInput, error) {
	ve := &apperr.ValidationError{}

	p, reason := r.Plate(plate)
	if reason != "" {
		ve.Add("placa_patente_visitante", reason)
	}
	d, reason := r.Document(document)
	if reason != "" {
		ve.Add("rut_visitante", reason)
	}
	dept, reason := Department(department)
	if reason != "" {
		ve.Add("numero_departamento", reason)
	}

	if !ve.Empty() {
		return CreateInput{}, ve
	}
	return CreateInput{Plate: p, Document: d, Department: dept}, nil
}
