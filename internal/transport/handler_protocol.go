package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/approval"
	"github.com/pitabwire/digiurban/internal/protocol"
	"github.com/pitabwire/digiurban/internal/search"
	"github.com/pitabwire/digiurban/model"
)

// GateProtocolApproval is the gate behind the protocol approve and reject
// endpoints.
const GateProtocolApproval = "protocolo.aprovacao"

func handleProtocolCreate(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in protocol.CreateInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		p, err := svc.Create(r.Context(), rctx, in)
		respond(w, http.StatusCreated, p, err)
	})
}

func handleProtocolList(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		from, err := queryDate(r, "date_from")
		if err != nil {
			WriteError(w, err)
			return
		}
		to, err := queryDate(r, "date_to")
		if err != nil {
			WriteError(w, err)
			return
		}
		q := r.URL.Query()
		page := parsePagination(r)
		items, total, err := svc.List(r.Context(), rctx, model.ProtocolFilters{
			Status:         q.Get("status"),
			DepartmentID:   q.Get("department_id"),
			ModuleType:     q.Get("module_type"),
			CitizenID:      q.Get("citizen_id"),
			AssignedUserID: q.Get("assigned_user_id"),
			CreatedFrom:    from,
			CreatedTo:      to,
			Offset:         page.Offset(),
			Limit:          page.PageSize,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WritePage(w, items, total, page)
	})
}

func handleProtocolSearch(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		q := r.URL.Query()
		page := parsePagination(r)
		items, total, err := svc.Search(r.Context(), rctx, search.Query{
			Text:         q.Get("q"),
			Status:       q.Get("status"),
			DepartmentID: q.Get("department_id"),
			ModuleType:   q.Get("module_type"),
			Offset:       page.Offset(),
			Limit:        page.PageSize,
		})
		if err != nil {
			WriteError(w, err)
			return
		}
		WritePage(w, items, total, page)
	})
}

func handleProtocolGet(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		p, err := svc.Get(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, p, err)
	})
}

func handleProtocolByNumber(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		p, err := svc.GetByNumber(r.Context(), rctx, chi.URLParam(r, "number"))
		respond(w, http.StatusOK, p, err)
	})
}

func handleProtocolStatus(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			Status  string `json:"status"`
			Comment string `json:"comment"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		p, err := svc.UpdateStatus(r.Context(), rctx, chi.URLParam(r, "id"), body.Status, body.Comment)
		respond(w, http.StatusOK, p, err)
	})
}

func handleProtocolAssign(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			UserID string `json:"user_id"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		p, err := svc.Assign(r.Context(), rctx, chi.URLParam(r, "id"), body.UserID)
		respond(w, http.StatusOK, p, err)
	})
}

func handleProtocolEvaluate(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var in protocol.EvaluationInput
		if err := decodeJSON(w, r, &in); err != nil {
			WriteError(w, err)
			return
		}
		ev, err := svc.Evaluate(r.Context(), rctx, chi.URLParam(r, "id"), in)
		respond(w, http.StatusCreated, ev, err)
	})
}

func handleProtocolHistory(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		h, err := svc.History(r.Context(), rctx, chi.URLParam(r, "id"))
		if h == nil {
			h = []model.ProtocolHistory{}
		}
		respond(w, http.StatusOK, h, err)
	})
}

func handleDepartmentStats(svc *protocol.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		from, err := queryDate(r, "date_from")
		if err != nil {
			WriteError(w, err)
			return
		}
		to, err := queryDate(r, "date_to")
		if err != nil {
			WriteError(w, err)
			return
		}
		st, err := svc.DepartmentStats(r.Context(), rctx, chi.URLParam(r, "departmentId"), from, to)
		respond(w, http.StatusOK, st, err)
	})
}

// handleProtocolDecision routes approve and reject through the protocol
// approval gate.
func handleProtocolDecision(approvals *approval.Service, approved bool) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			Justification string `json:"justification"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		out, err := approvals.Decide(r.Context(), rctx, GateProtocolApproval, chi.URLParam(r, "id"), model.ApprovalDecision{
			Approved:       approved,
			Justification:  body.Justification,
			IdempotencyKey: idempotencyKey(r),
		})
		respond(w, http.StatusOK, out, err)
	})
}

// handleApprovalDecide applies a decision at any registered gate.
func handleApprovalDecide(approvals *approval.Service) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var d model.ApprovalDecision
		if err := decodeJSON(w, r, &d); err != nil {
			WriteError(w, err)
			return
		}
		d.IdempotencyKey = idempotencyKey(r)
		out, err := approvals.Decide(r.Context(), rctx, chi.URLParam(r, "gateId"), chi.URLParam(r, "subjectId"), d)
		respond(w, http.StatusOK, out, err)
	})
}

func handleApprovalGates(approvals *approval.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, approvals.Gates())
	}
}

func idempotencyKey(r *http.Request) string {
	return r.Header.Get("X-Idempotency-Key")
}
