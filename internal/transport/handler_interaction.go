package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/interaction"
	"github.com/pitabwire/digiurban/internal/pending"
	"github.com/pitabwire/digiurban/model"
)

func handleInteractionList(svc *interaction.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.List(r.Context(), rctx, chi.URLParam(r, "id"), r.URL.Query().Get("type"))
		if list == nil {
			list = []model.Interaction{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handleInteractionPost(svc *interaction.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in model.NewInteraction
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		in.ProtocolID = chi.URLParam(r, "id")
		it, err := svc.Post(r.Context(), rctx, in)
		respond(w, http.StatusCreated, it, err)
	})
}

func handleInteractionReadAll(svc *interaction.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		n, err := svc.MarkAllRead(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, map[string]int{"marked": n}, err)
	})
}

func handleInteractionUnread(svc *interaction.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		n, err := svc.UnreadCount(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, map[string]int{"unread": n}, err)
	})
}

func handleInteractionRead(svc *interaction.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		it, err := svc.MarkRead(r.Context(), rctx, chi.URLParam(r, "interactionId"))
		respond(w, http.StatusOK, it, err)
	})
}

func handlePendingList(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.List(r.Context(), rctx, chi.URLParam(r, "id"), r.URL.Query().Get("status"))
		if list == nil {
			list = []model.Pending{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handlePendingCreate(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in pending.CreateInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		p, err := svc.Create(r.Context(), rctx, chi.URLParam(r, "id"), in)
		respond(w, http.StatusCreated, p, err)
	})
}

func handlePendingBlocking(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.Blocking(r.Context(), rctx.TenantID, chi.URLParam(r, "id"))
		if list == nil {
			list = []model.Pending{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handlePendingCounts(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		counts, err := svc.CountByStatus(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, counts, err)
	})
}

func handlePendingStart(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		p, err := svc.Start(r.Context(), rctx, chi.URLParam(r, "pendingId"))
		respond(w, http.StatusOK, p, err)
	})
}

func handlePendingResolve(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			Resolution string `json:"resolution"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		p, err := svc.Resolve(r.Context(), rctx, chi.URLParam(r, "pendingId"), body.Resolution)
		respond(w, http.StatusOK, p, err)
	})
}

func handlePendingCancel(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body reasonBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		p, err := svc.Cancel(r.Context(), rctx, chi.URLParam(r, "pendingId"), body.Reason)
		respond(w, http.StatusOK, p, err)
	})
}

// handlePendingCheckExpired runs the expiry sweep for the caller's tenant.
func handlePendingCheckExpired(svc *pending.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		n, err := svc.CheckExpired(r.Context(), rctx.TenantID, time.Now().UTC())
		respond(w, http.StatusOK, map[string]int{"expired": n}, err)
	})
}
