package model

import (
	"errors"
	"fmt"
)

// Standard error codes.
const (
	ErrBadRequest        = "BAD_REQUEST"
	ErrUnauthorized      = "UNAUTHORIZED"
	ErrForbidden         = "FORBIDDEN"
	ErrNotFound          = "NOT_FOUND"
	ErrConflict          = "CONFLICT"
	ErrValidationError   = "VALIDATION_ERROR"
	ErrInvalidTransition = "INVALID_TRANSITION"
	ErrInternalError     = "INTERNAL_ERROR"
)

// Domain error codes.
const (
	ErrInsufficientStock    = "INSUFFICIENT_STOCK"
	ErrInvalidStockStatus   = "INVALID_STOCK_STATUS"
	ErrPrescriptionRequired = "PRESCRIPTION_REQUIRED"
	ErrRequirementsNotMet   = "REQUIREMENTS_NOT_MET"
)

// ErrorEnvelope is the standard error response envelope returned by the API.
// It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`
	TraceID string       `json:"trace_id,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewUnauthorizedError returns an UNAUTHORIZED error.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewForbiddenError returns a FORBIDDEN error.
func NewForbiddenError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrForbidden, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewValidationError returns a VALIDATION_ERROR with field-level details.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: "Um ou mais campos são inválidos",
		Details: details,
	}
}

// NewValidationMessage returns a VALIDATION_ERROR carrying a single message
// and no field details.
func NewValidationMessage(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrValidationError, Message: msg}
}

// NewFieldValidationError returns a VALIDATION_ERROR for one field whose
// message is also used as the envelope message.
func NewFieldValidationError(field, code, msg string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrValidationError,
		Message: msg,
		Details: []FieldError{{Field: field, Code: code, Message: msg}},
	}
}

// NewInvalidTransitionError returns an INVALID_TRANSITION error.
func NewInvalidTransitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidTransition, Message: msg}
}

// NewRequirementsNotMetError lists the unmet prerequisites of an operation.
func NewRequirementsNotMetError(msg string, details []FieldError) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrRequirementsNotMet, Message: msg, Details: details}
}

// NewInsufficientStockError returns an INSUFFICIENT_STOCK error.
func NewInsufficientStockError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInsufficientStock, Message: msg}
}

// NewInvalidStockStatusError returns an INVALID_STOCK_STATUS error.
func NewInvalidStockStatusError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInvalidStockStatus, Message: msg}
}

// NewPrescriptionRequiredError returns a PRESCRIPTION_REQUIRED error.
func NewPrescriptionRequiredError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrPrescriptionRequired,
		Message: "Medicamento controlado requer prescrição médica",
	}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrInternalError,
		Message: "Ocorreu um erro inesperado",
	}
}

// IsCode reports whether err is an ErrorEnvelope carrying code.
func IsCode(err error, code string) bool {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code == code
	}
	return false
}
