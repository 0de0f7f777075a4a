package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/document"
	"github.com/pitabwire/digiurban/model"
)

func handleDocumentList(svc *document.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		docs, err := svc.List(r.Context(), rctx, chi.URLParam(r, "id"))
		if docs == nil {
			docs = []model.ProtocolDocument{}
		}
		respond(w, http.StatusOK, docs, err)
	})
}

func handleDocumentRequire(svc *document.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in document.RequireInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		doc, err := svc.Require(r.Context(), rctx, chi.URLParam(r, "id"), in)
		respond(w, http.StatusCreated, doc, err)
	})
}

// handleDocumentUpload records the metadata of a file already stored by
// the client. The binary never passes through this service.
func handleDocumentUpload(svc *document.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			DocumentType string `json:"document_type"`
			model.DocumentFile
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		doc, err := svc.Upload(r.Context(), rctx, chi.URLParam(r, "id"), body.DocumentType, body.DocumentFile)
		respond(w, http.StatusOK, doc, err)
	})
}

func handleDocumentCheckRequired(svc *document.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		check, err := svc.CheckRequired(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, check, err)
	})
}

func handleDocumentGet(svc *document.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		doc, err := svc.Get(r.Context(), rctx, chi.URLParam(r, "docId"))
		respond(w, http.StatusOK, doc, err)
	})
}

func handleDocumentDelete(svc *document.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		if err := svc.Delete(r.Context(), rctx, chi.URLParam(r, "docId")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

type documentTransition func(r *http.Request, rctx *model.RequestContext, id string) (model.ProtocolDocument, error)

// handleDocumentTransition serves review, approve and expire, which take no
// body.
func handleDocumentTransition(fn documentTransition) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		doc, err := fn(r, rctx, chi.URLParam(r, "docId"))
		respond(w, http.StatusOK, doc, err)
	})
}

func handleDocumentReview(svc *document.Service) http.HandlerFunc {
	return handleDocumentTransition(func(r *http.Request, rctx *model.RequestContext, id string) (model.ProtocolDocument, error) {
		return svc.Review(r.Context(), rctx, id)
	})
}

func handleDocumentApprove(svc *document.Service) http.HandlerFunc {
	return handleDocumentTransition(func(r *http.Request, rctx *model.RequestContext, id string) (model.ProtocolDocument, error) {
		return svc.Approve(r.Context(), rctx, id)
	})
}

func handleDocumentExpire(svc *document.Service) http.HandlerFunc {
	return handleDocumentTransition(func(r *http.Request, rctx *model.RequestContext, id string) (model.ProtocolDocument, error) {
		return svc.Expire(r.Context(), rctx, id)
	})
}

func handleDocumentReject(svc *document.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body reasonBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		doc, err := svc.Reject(r.Context(), rctx, chi.URLParam(r, "docId"), body.Reason)
		respond(w, http.StatusOK, doc, err)
	})
}
