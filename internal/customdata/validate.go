package customdata

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pitabwire/digiurban/model"
)

var tableNamePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// fieldCheck validates a present, non-empty value against one field. It
// returns the failure message or "".
type fieldCheck func(f model.CustomField, v any) string

var fieldChecks = map[string]fieldCheck{
	model.FieldText:    checkText,
	model.FieldNumber:  checkNumber,
	model.FieldDate:    checkDate,
	model.FieldBoolean: checkBoolean,
	model.FieldSelect:  checkSelect,
}

func checkText(f model.CustomField, v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("Campo %q deve ser texto", f.DisplayLabel())
	}
	if f.MaxLength > 0 && utf8.RuneCountInString(s) > f.MaxLength {
		return fmt.Sprintf("Campo %q deve ter no máximo %d caracteres", f.DisplayLabel(), f.MaxLength)
	}
	return ""
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		x, err := n.Float64()
		return x, err == nil
	case string:
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return x, err == nil
	default:
		return 0, false
	}
}

func checkNumber(f model.CustomField, v any) string {
	n, ok := numberOf(v)
	if !ok || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Sprintf("Campo %q deve ser numérico", f.DisplayLabel())
	}
	if f.Min != nil && n < *f.Min {
		return fmt.Sprintf("Campo %q deve ser no mínimo %v", f.DisplayLabel(), *f.Min)
	}
	if f.Max != nil && n > *f.Max {
		return fmt.Sprintf("Campo %q deve ser no máximo %v", f.DisplayLabel(), *f.Max)
	}
	return ""
}

func checkDate(f model.CustomField, v any) string {
	s, ok := v.(string)
	if ok {
		if _, err := time.Parse(time.DateOnly, s); err == nil {
			return ""
		}
		if _, err := time.Parse(time.RFC3339, s); err == nil {
			return ""
		}
	}
	return fmt.Sprintf("Campo %q deve ser uma data válida", f.DisplayLabel())
}

func checkBoolean(f model.CustomField, v any) string {
	switch b := v.(type) {
	case bool:
		return ""
	case string:
		if b == "true" || b == "false" {
			return ""
		}
	}
	return fmt.Sprintf("Campo %q deve ser verdadeiro ou falso", f.DisplayLabel())
}

func checkSelect(f model.CustomField, v any) string {
	s, ok := v.(string)
	if !ok || !slices.Contains(f.Options, s) {
		return fmt.Sprintf("Campo %q deve ser uma das opções: %s", f.DisplayLabel(), strings.Join(f.Options, ", "))
	}
	return ""
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

// ValidateRecord checks data against the schema fields. Keys the schema
// does not declare are ignored.
func ValidateRecord(fields []model.CustomField, data map[string]any) []model.FieldError {
	var details []model.FieldError
	for _, f := range fields {
		v, present := data[f.Name]
		if !present || isEmpty(v) {
			if f.Required {
				details = append(details, model.FieldError{
					Field:   f.Name,
					Code:    "REQUIRED",
					Message: fmt.Sprintf("Campo %q é obrigatório", f.DisplayLabel()),
				})
			}
			continue
		}
		check, ok := fieldChecks[f.Type]
		if !ok {
			continue
		}
		if msg := check(f, v); msg != "" {
			details = append(details, model.FieldError{Field: f.Name, Code: "INVALID_" + strings.ToUpper(f.Type), Message: msg})
		}
	}
	return details
}

// ValidateSchema checks a table schema.
func ValidateSchema(schema model.CustomSchema) []model.FieldError {
	if len(schema.Fields) == 0 {
		return []model.FieldError{{
			Field:   "schema.fields",
			Code:    "REQUIRED",
			Message: `Schema deve conter array "fields" com pelo menos 1 campo`,
		}}
	}

	var details []model.FieldError
	seen := make(map[string]bool, len(schema.Fields))
	for i, f := range schema.Fields {
		path := fmt.Sprintf("schema.fields[%d]", i)
		switch {
		case strings.TrimSpace(f.Name) == "":
			details = append(details, model.FieldError{Field: path + ".name", Code: "REQUIRED", Message: "Nome do campo é obrigatório"})
		case seen[f.Name]:
			details = append(details, model.FieldError{Field: path + ".name", Code: "DUPLICATE", Message: fmt.Sprintf("Campo %q duplicado", f.Name)})
		}
		seen[f.Name] = true

		if _, ok := fieldChecks[f.Type]; !ok {
			details = append(details, model.FieldError{
				Field:   path + ".type",
				Code:    "INVALID",
				Message: fmt.Sprintf("Tipo %q inválido. Tipos aceitos: %s", f.Type, strings.Join(model.FieldTypes, ", ")),
			})
		}
		if f.Type == model.FieldSelect && len(f.Options) == 0 {
			details = append(details, model.FieldError{Field: path + ".options", Code: "REQUIRED", Message: fmt.Sprintf("Campo %q do tipo select precisa de opções", f.DisplayLabel())})
		}
		if f.Min != nil && f.Max != nil && *f.Min > *f.Max {
			details = append(details, model.FieldError{Field: path + ".min", Code: "INVALID", Message: "Mínimo não pode ser maior que o máximo"})
		}
	}
	return details
}
