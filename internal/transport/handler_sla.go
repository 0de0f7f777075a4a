package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/sla"
	"github.com/pitabwire/digiurban/model"
)

func handleSLACreate(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			WorkingDays int        `json:"working_days"`
			StartDate   *time.Time `json:"start_date"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		s, err := svc.Create(r.Context(), rctx, chi.URLParam(r, "id"), body.WorkingDays, body.StartDate)
		respond(w, http.StatusCreated, s, err)
	})
}

func handleSLAGet(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		s, err := svc.Get(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, s, err)
	})
}

func handleSLADelete(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		if err := svc.Delete(r.Context(), rctx, chi.URLParam(r, "id")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleSLAPause(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body reasonBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		s, err := svc.Pause(r.Context(), rctx, chi.URLParam(r, "id"), body.Reason)
		respond(w, http.StatusOK, s, err)
	})
}

func handleSLAResume(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		s, err := svc.Resume(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, s, err)
	})
}

func handleSLAComplete(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		s, err := svc.Complete(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, s, err)
	})
}

func handleSLAOverdue(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.Overdue(r.Context(), rctx)
		respond(w, http.StatusOK, list, err)
	})
}

func handleSLANearDue(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.NearDue(r.Context(), rctx, queryInt(r, "days", 0))
		respond(w, http.StatusOK, list, err)
	})
}

func handleSLAStats(svc *sla.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		st, err := svc.Stats(r.Context(), rctx)
		respond(w, http.StatusOK, st, err)
	})
}
