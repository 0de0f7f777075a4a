package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/customdata"
	"github.com/pitabwire/digiurban/model"
)

func handleTableCreate(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in customdata.TableInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		t, err := svc.CreateTable(r.Context(), rctx, in)
		respond(w, http.StatusCreated, t, err)
	})
}

func handleTableList(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		q := r.URL.Query()
		page := parsePagination(r)
		items, total, err := svc.ListTables(r.Context(), rctx, model.CustomTableFilter{
			ModuleType: q.Get("module_type"),
			Search:     q.Get("search"),
			Offset:     page.Offset(),
			Limit:      page.PageSize,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WritePage(w, items, total, page)
	})
}

func handleTableGet(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		t, err := svc.GetTable(r.Context(), rctx, chi.URLParam(r, "tableId"))
		respond(w, http.StatusOK, t, err)
	})
}

func handleTableUpdate(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in customdata.TableUpdate
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		t, err := svc.UpdateTable(r.Context(), rctx, chi.URLParam(r, "tableId"), in)
		respond(w, http.StatusOK, t, err)
	})
}

func handleTableDelete(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		if err := svc.DeleteTable(r.Context(), rctx, chi.URLParam(r, "tableId")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleCustomStats(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		st, err := svc.Stats(r.Context(), rctx)
		respond(w, http.StatusOK, st, err)
	})
}

func handleRecordCreate(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in customdata.RecordInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		rec, err := svc.CreateRecord(r.Context(), rctx, chi.URLParam(r, "tableId"), in)
		respond(w, http.StatusCreated, rec, err)
	})
}

func handleRecordList(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		q := r.URL.Query()
		page := parsePagination(r)
		items, total, err := svc.ListRecords(r.Context(), rctx, chi.URLParam(r, "tableId"), model.CustomRecordFilter{
			ProtocolID: q.Get("protocol_id"),
			ServiceID:  q.Get("service_id"),
			Offset:     page.Offset(),
			Limit:      page.PageSize,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WritePage(w, items, total, page)
	})
}

func handleRecordGet(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		rec, err := svc.GetRecord(r.Context(), rctx, chi.URLParam(r, "recordId"))
		respond(w, http.StatusOK, rec, err)
	})
}

func handleRecordUpdate(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			Data map[string]any `json:"data"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		rec, err := svc.UpdateRecord(r.Context(), rctx, chi.URLParam(r, "recordId"), body.Data)
		respond(w, http.StatusOK, rec, err)
	})
}

func handleRecordDelete(svc *customdata.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		if err := svc.DeleteRecord(r.Context(), rctx, chi.URLParam(r, "recordId")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
