// Package transport contains the HTTP router, middleware chain and request
// handlers of the portal API.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:           http.StatusBadRequest,
	model.ErrUnauthorized:         http.StatusUnauthorized,
	model.ErrForbidden:            http.StatusForbidden,
	model.ErrNotFound:             http.StatusNotFound,
	model.ErrConflict:             http.StatusConflict,
	model.ErrValidationError:      http.StatusBadRequest,
	model.ErrInvalidTransition:    http.StatusBadRequest,
	model.ErrRequirementsNotMet:   http.StatusBadRequest,
	model.ErrInsufficientStock:    http.StatusBadRequest,
	model.ErrInvalidStockStatus:   http.StatusBadRequest,
	model.ErrPrescriptionRequired: http.StatusBadRequest,
	model.ErrInternalError:        http.StatusInternalServerError,
}

// WriteJSON writes body as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

type errorResponse struct {
	Error *model.ErrorEnvelope `json:"error"`
}

// WriteError writes err as an ErrorEnvelope. Errors that are not envelopes
// become a generic INTERNAL_ERROR so internals never leak to clients.
func WriteError(w http.ResponseWriter, err error) {
	var ee *model.ErrorEnvelope
	if !errors.As(err, &ee) {
		ee = model.NewInternalError()
	}
	status := statusForCode[ee.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}
	WriteJSON(w, status, errorResponse{Error: ee})
}

// Page is the envelope of paginated listings.
type Page[T any] struct {
	Data       []T `json:"data"`
	TotalCount int `json:"total_count"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
}

// WritePage writes one page of items.
func WritePage[T any](w http.ResponseWriter, items []T, total int, p Pagination) {
	if items == nil {
		items = []T{}
	}
	WriteJSON(w, http.StatusOK, Page[T]{Data: items, TotalCount: total, Page: p.Page, PageSize: p.PageSize})
}

// Pagination is the parsed page/page_size query of a listing.
type Pagination struct {
	Page     int
	PageSize int
}

// Offset is the number of items before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func parsePagination(r *http.Request) Pagination {
	p := Pagination{Page: queryInt(r, "page", 1), PageSize: queryInt(r, "page_size", defaultPageSize)}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	}
	if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
	return p
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// queryDate parses a YYYY-MM-DD or RFC 3339 query parameter. A missing
// parameter yields nil.
func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, model.NewFieldValidationError(key, "INVALID", "Data inválida: "+v)
	}
	return &t, nil
}

const maxBodyBytes = 1 << 20

// decodeJSON reads a JSON body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return model.NewBadRequestError("Corpo da requisição inválido")
	}
	return nil
}

// respond writes v with status unless err is set.
func respond(w http.ResponseWriter, status int, v any, err error) {
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, status, v)
}

// requestDate parses a required date query parameter.
func requestDate(r *http.Request, key string) (time.Time, error) {
	t, err := queryDate(r, key)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, model.NewFieldValidationError(key, "REQUIRED", "Parâmetro obrigatório: "+key)
	}
	return *t, nil
}
