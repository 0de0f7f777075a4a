package transport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/digiurban/internal/workflow"
	"github.com/pitabwire/digiurban/model"
)

func handleTemplateList(t *workflow.Templates) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		list, err := t.List(r.Context(), rctx.TenantID)
		if list == nil {
			list = []model.WorkflowTemplate{}
		}
		respond(w, http.StatusOK, list, err)
	})
}

func handleTemplateGet(t *workflow.Templates) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		tpl, err := t.Get(r.Context(), rctx.TenantID, chi.URLParam(r, "moduleType"))
		respond(w, http.StatusOK, tpl, err)
	})
}

func handleTemplateCreate(t *workflow.Templates) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var tpl model.WorkflowTemplate
		if err := decodeJSON(w, r, &tpl); err != nil {
			WriteError(w, err)
			return
		}
		saved, err := t.Save(r.Context(), rctx.TenantID, tpl, 0)
		respond(w, http.StatusCreated, saved, err)
	})
}

// handleTemplateUpdate replaces a template. The body's version is the
// version the caller last read.
func handleTemplateUpdate(t *workflow.Templates) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var tpl model.WorkflowTemplate
		if err := decodeJSON(w, r, &tpl); err != nil {
			WriteError(w, err)
			return
		}
		tpl.ModuleType = chi.URLParam(r, "moduleType")
		saved, err := t.Save(r.Context(), rctx.TenantID, tpl, tpl.Version)
		respond(w, http.StatusOK, saved, err)
	})
}

func handleTemplateDelete(t *workflow.Templates) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		if err := t.Delete(r.Context(), rctx.TenantID, chi.URLParam(r, "moduleType")); err != nil {
			WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func handleTemplateAddStage(t *workflow.Templates) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var st model.StageTemplate
		if err := decodeJSON(w, r, &st); err != nil {
			WriteError(w, err)
			return
		}
		tpl, err := t.AddStage(r.Context(), rctx.TenantID, chi.URLParam(r, "moduleType"), st)
		respond(w, http.StatusCreated, tpl, err)
	})
}

func handleTemplateDeleteStage(t *workflow.Templates) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		order, err := stageOrder(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		tpl, err := t.DeleteStage(r.Context(), rctx.TenantID, chi.URLParam(r, "moduleType"), order)
		respond(w, http.StatusOK, tpl, err)
	})
}

func handleTemplateMoveStage(t *workflow.Templates, direction string) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		order, err := stageOrder(r)
		if err != nil {
			WriteError(w, err)
			return
		}
		tpl, err := t.MoveStage(r.Context(), rctx.TenantID, chi.URLParam(r, "moduleType"), order, direction)
		respond(w, http.StatusOK, tpl, err)
	})
}

func stageOrder(r *http.Request) (int, error) {
	order, err := strconv.Atoi(chi.URLParam(r, "order"))
	if err != nil || order < 1 {
		return 0, model.NewFieldValidationError("order", "INVALID", "Ordem da etapa inválida")
	}
	return order, nil
}

// handleStages returns the protocol's workflow with its stage list.
func handleStages(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		wf, err := e.Get(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, wf, err)
	})
}

func handleStageEvents(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		evs, err := e.Events(r.Context(), rctx, chi.URLParam(r, "id"))
		if evs == nil {
			evs = []model.WorkflowEvent{}
		}
		respond(w, http.StatusOK, evs, err)
	})
}

func handleStageCurrent(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		pos, err := e.Current(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, pos, err)
	})
}

func handleStageAction(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			Action string `json:"action"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		wf, err := e.RecordAction(r.Context(), rctx, chi.URLParam(r, "id"), body.Action)
		respond(w, http.StatusOK, wf, err)
	})
}

func handleStageAdvance(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body struct {
			Result string `json:"result"`
			Notes  string `json:"notes"`
		}
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		wf, err := e.Advance(r.Context(), rctx, chi.URLParam(r, "id"), body.Result, body.Notes)
		respond(w, http.StatusOK, wf, err)
	})
}

// reasonBody is the body of the skip, fail, cancel and similar endpoints.
type reasonBody struct {
	Reason string `json:"reason"`
}

func handleStageSkip(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body reasonBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		wf, err := e.Skip(r.Context(), rctx, chi.URLParam(r, "id"), body.Reason)
		respond(w, http.StatusOK, wf, err)
	})
}

func handleStageFail(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		var body reasonBody
		if err := decodeJSON(w, r, &body); err != nil {
			WriteError(w, err)
			return
		}
		wf, err := e.Fail(r.Context(), rctx, chi.URLParam(r, "id"), body.Reason)
		respond(w, http.StatusOK, wf, err)
	})
}

func handleStageRetry(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		wf, err := e.Retry(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, wf, err)
	})
}

func handleStageCompletion(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		c, err := e.CheckCompletion(r.Context(), rctx, chi.URLParam(r, "id"))
		respond(w, http.StatusOK, c, err)
	})
}

func handleStageCounts(e *workflow.Engine) http.HandlerFunc {
	return withCaller(func(w http.ResponseWriter, r *http.Request, rctx *model.RequestContext) {
		counts, err := e.CountByStatus(r.Context(), rctx)
		respond(w, http.StatusOK, counts, err)
	})
}
