package transport

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pitabwire/digiurban/model"
)

func TestWriteError_status(t *testing.T) {
	tests := []struct {
		err  error
		want int
		code string
	}{
		{model.NewNotFoundError("x"), http.StatusNotFound, model.ErrNotFound},
		{model.NewConflictError("x"), http.StatusConflict, model.ErrConflict},
		{model.NewInvalidTransitionError("x"), http.StatusBadRequest, model.ErrInvalidTransition},
		{model.NewInsufficientStockError("x"), http.StatusBadRequest, model.ErrInsufficientStock},
		{model.NewPrescriptionRequiredError(), http.StatusBadRequest, model.ErrPrescriptionRequired},
		{model.NewForbiddenError("x"), http.StatusForbidden, model.ErrForbidden},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, model.ErrInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
			resp := decode[errorResponse](t, rec)
			if resp.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestWriteError_hidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("pq: password authentication failed"))
	if msg := decode[errorResponse](t, rec).Error.Message; msg == "pq: password authentication failed" {
		t.Errorf("internal error leaked: %q", msg)
	}
}

func TestParsePagination(t *testing.T) {
	tests := []struct {
		query  string
		page   int
		size   int
		offset int
	}{
		{"", 1, 20, 0},
		{"?page=3&page_size=10", 3, 10, 20},
		{"?page=0&page_size=-1", 1, 20, 0},
		{"?page_size=500", 1, 100, 0},
		{"?page=abc", 1, 20, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := parsePagination(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
			if p.Page != tt.page || p.PageSize != tt.size || p.Offset() != tt.offset {
				t.Errorf("pagination = %+v offset %d", p, p.Offset())
			}
		})
	}
}

func TestWritePage_emptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	WritePage[string](rec, nil, 0, Pagination{Page: 1, PageSize: 20})
	if got := rec.Body.String(); got != `{"data":[],"total_count":0,"page":1,"page_size":20}`+"\n" {
		t.Errorf("body = %s", got)
	}
}

func TestQueryDate(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?a=2026-03-02&b=2026-03-02T10:00:00Z&c=ontem", nil)

	a, err := queryDate(r, "a")
	if err != nil || a == nil || a.Day() != 2 {
		t.Errorf("a = %v, %v", a, err)
	}
	b, err := queryDate(r, "b")
	if err != nil || b == nil || b.Hour() != 10 {
		t.Errorf("b = %v, %v", b, err)
	}
	if _, err := queryDate(r, "c"); !model.IsCode(err, model.ErrValidationError) {
		t.Errorf("c error = %v, want VALIDATION_ERROR", err)
	}
	if d, err := queryDate(r, "d"); d != nil || err != nil {
		t.Errorf("missing = %v, %v", d, err)
	}
	if _, err := requestDate(r, "d"); !model.IsCode(err, model.ErrValidationError) {
		t.Errorf("required missing error = %v", err)
	}
}
