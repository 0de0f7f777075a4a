package transport

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/stock"
	"github.com/pitabwire/digiurban/model"
)

func handleMedicamentoCreate(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in stock.MedicamentoInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		m, err := svc.CreateMedicamento(r.Context(), rctx, in)
		respond(w, http.StatusCreated, m, err)
	})
}

func handleMedicamentoList(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.ListMedicamentos(r.Context(), rctx, r.URL.Query().Get("search"))
		if list == nil {
			list = []model.Medicamento{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handleEstoqueCreate(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in stock.EstoqueInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		e, err := svc.CreateEstoque(r.Context(), rctx, in)
		respond(w, http.StatusCreated, e, err)
	})
}

// handleEstoqueList lists the dispensable lots of a medication in the order
// they should be consumed.
func handleEstoqueList(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		q := r.URL.Query()
		list, err := svc.ListFIFO(r.Context(), rctx, q.Get("medicamento_id"), q.Get("unidade_id"))
		if list == nil {
			list = []model.Estoque{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handleEstoqueGet(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		e, err := svc.GetEstoque(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, e, err)
	})
}

func handleEstoqueBaixo(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.EstoqueBaixo(r.Context(), rctx, r.URL.Query().Get("unidade_id"))
		if list == nil {
			list = []model.Estoque{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handleEstoqueVencimento(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := svc.ProximosVencimento(r.Context(), rctx, r.URL.Query().Get("unidade_id"), queryInt(r, "dias", 0))
		if list == nil {
			list = []model.Estoque{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handleEstoqueMarcarVencidos(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		n, err := svc.MarcarVencidos(r.Context(), rctx.TenantID, time.Now().UTC())
		respond(w, http.StatusOK, map[string]int{"vencidos": n}, err)
	})
}

type quantidadeBody struct {
	Quantidade int `json:"quantidade"`
}

func handleEstoqueAdicionar(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body quantidadeBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		e, err := svc.Adicionar(r.Context(), rctx, chi.URLParam(r, "id"), body.Quantidade)
		respond(w, http.StatusOK, e, err)
	})
}

func handleEstoqueRemover(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body quantidadeBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		e, err := svc.Remover(r.Context(), rctx, chi.URLParam(r, "id"), body.Quantidade)
		respond(w, http.StatusOK, e, err)
	})
}

type motivoBody struct {
	Motivo string `json:"motivo"`
}

func handleEstoqueBloquear(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body motivoBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		e, err := svc.Bloquear(r.Context(), rctx, chi.URLParam(r, "id"), body.Motivo)
		respond(w, http.StatusOK, e, err)
	})
}

func handleEstoqueDesbloquear(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		e, err := svc.Desbloquear(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, e, err)
	})
}

func handleDispensar(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in stock.DispensarInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		in.IdempotencyKey = idempotencyKey(r)
		d, err := svc.Dispensar(r.Context(), rctx, in)
		respond(w, http.StatusCreated, d, err)
	})
}

func handleDispensacaoConfirmar(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		d, err := svc.Confirmar(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, d, err)
	})
}

func handleDispensacaoCancelar(svc *stock.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body motivoBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		d, err := svc.Cancelar(r.Context(), rctx, chi.URLParam(r, "id"), body.Motivo)
		respond(w, http.StatusOK, d, err)
	})
}

func handleRelatorioConsumo(svc *stock.Service) http.HandlerFunc {
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
		rel, err := svc.RelatorioConsumo(r.Context(), rctx, from, to, r.URL.Query().Get("medicamento_id"))
		respond(w, http.StatusOK, rel, err)
	})
}
