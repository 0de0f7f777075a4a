package transport

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/tfd"
	"github.com/pitabwire/digiurban/model"
)

func handleTFDCreate(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in tfd.CreateInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		if rctx.IsCitizen() && in.CitizenID == "" {
			in.CitizenID = rctx.SubjectID
		}
		sol, err := svc.Create(r.Context(), rctx, in)
		respond(w, http.StatusCreated, sol, err)
	})
}

func handleTFDList(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		q := r.URL.Query()
		page := parsePagination(r)
		f := model.TFDFilter{
			Status:    q.Get("status"),
			CitizenID: q.Get("citizen_id"),
			Offset:    page.Offset(),
			Limit:     page.PageSize,
		}
		if rctx.IsCitizen() {
			f.CitizenID = rctx.SubjectID
		}
		items, total, err := svc.List(r.Context(), rctx, f)
		if err != nil {
			WriteError(w, err)
			return
		}
		WritePage(w, items, total, page)
	})
}

func handleTFDGet(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		sol, err := svc.Get(r.Context(), rctx, chi.URLParam(r, "id"))
		if err == nil && rctx.IsCitizen() && sol.CitizenID != rctx.SubjectID {
			err = model.NewNotFoundError("Solicitação não encontrada")
		}
		respond(w, http.StatusOK, sol, err)
	})
}

type tfdGate func(ctx context.Context, rctx *model.RequestContext, id string, d model.ApprovalDecision) (model.Solicitacao, error)

// handleTFDDecision serves the three approval gates of a solicitation.
func handleTFDDecision(gate tfdGate) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var d model.ApprovalDecision
		if err := decodeJSON(w, r, &d); err != nil {
			WriteError(w, err)
			return
		}
		d.IdempotencyKey = idempotencyKey(r)
		sol, err := gate(r.Context(), rctx, chi.URLParam(r, "id"), d)
		respond(w, http.StatusOK, sol, err)
	})
}

type observacoesBody struct {
	ViagemID    string `json:"viagem_id,omitempty"`
	Observacoes string `json:"observacoes"`
}

func handleTFDReenviar(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body observacoesBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		sol, err := svc.ReenviarDocumentacao(r.Context(), rctx, chi.URLParam(r, "id"), body.Observacoes)
		respond(w, http.StatusOK, sol, err)
	})
}

func handleTFDAgendar(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in tfd.AgendarViagemInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		sol, err := svc.AgendarViagem(r.Context(), rctx, chi.URLParam(r, "id"), in)
		respond(w, http.StatusOK, sol, err)
	})
}

// tripOf picks the trip a trip endpoint acts on: the one named in the body
// or, when none is named, the solicitation's latest trip.
func tripOf(ctx context.Context, svc *tfd.Service, rctx *model.RequestContext, id, viagemID string) (string, error) {
	sol, err := svc.Get(ctx, rctx, id)
	if err != nil {
		return "", err
	}
	if viagemID == "" && len(sol.Viagens) > 0 {
		return sol.Viagens[len(sol.Viagens)-1].ID, nil
	}
	for _, v := range sol.Viagens {
		if v.ID == viagemID {
			return v.ID, nil
		}
	}
	return "", model.NewNotFoundError("Viagem não encontrada para esta solicitação")
}

func handleTFDIniciar(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body observacoesBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		viagemID, err := tripOf(r.Context(), svc, rctx, chi.URLParam(r, "id"), body.ViagemID)
		if err != nil {
			WriteError(w, err)
			return
		}
		sol, err := svc.IniciarViagem(r.Context(), rctx, viagemID)
		respond(w, http.StatusOK, sol, err)
	})
}

func handleTFDRetorno(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body observacoesBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		viagemID, err := tripOf(r.Context(), svc, rctx, chi.URLParam(r, "id"), body.ViagemID)
		if err != nil {
			WriteError(w, err)
			return
		}
		sol, err := svc.RegistrarRetorno(r.Context(), rctx, viagemID, body.Observacoes)
		respond(w, http.StatusOK, sol, err)
	})
}

func handleTFDDespesas(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			ViagemID      string  `json:"viagem_id,omitempty"`
			ValorDespesas float64 `json:"valor_despesas"`
			MeioPagamento string  `json:"meio_pagamento"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		viagemID, err := tripOf(r.Context(), svc, rctx, chi.URLParam(r, "id"), body.ViagemID)
		if err != nil {
			WriteError(w, err)
			return
		}
		v, err := svc.RegistrarDespesas(r.Context(), rctx, viagemID, body.ValorDespesas, body.MeioPagamento)
		respond(w, http.StatusOK, v, err)
	})
}

func handleTFDCancelar(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			Motivo string `json:"motivo"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		sol, err := svc.Cancelar(r.Context(), rctx, chi.URLParam(r, "id"), body.Motivo)
		respond(w, http.StatusOK, sol, err)
	})
}

func handleTFDRelatorio(svc *tfd.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		from, err := requestDate(r, "data_inicio")
		if err != nil {
			WriteError(w, err)
			return
		}
		to, err := requestDate(r, "data_fim")
		if err != nil {
			WriteError(w, err)
			return
		}
		rel, err := svc.Relatorio(r.Context(), rctx, from, to)
		respond(w, http.StatusOK, rel, err)
	})
}
