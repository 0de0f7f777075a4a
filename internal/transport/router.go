package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/approval"
	"github.com/pitabwire/digiurban/internal/config"
	"github.com/pitabwire/digiurban/internal/customdata"
	"github.com/pitabwire/digiurban/internal/document"
	"github.com/pitabwire/digiurban/internal/interaction"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/internal/pending"
	"github.com/pitabwire/digiurban/internal/protocol"
	"github.com/pitabwire/digiurban/internal/sla"
	"github.com/pitabwire/digiurban/internal/stock"
	"github.com/pitabwire/digiurban/internal/tfd"
	"github.com/pitabwire/digiurban/internal/workflow"
	"github.com/pitabwire/digiurban/model"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
// A nil service leaves its routes unregistered.
type Dependencies struct {
	Config             *config.Config
	Logger             *zap.Logger
	Metrics            *observability.Metrics
	Authenticate       func(http.Handler) http.Handler
	CapabilityResolver model.CapabilityResolver

	Protocols    *protocol.Service
	Workflows    *workflow.Engine
	Templates    *workflow.Templates
	SLAs         *sla.Service
	Documents    *document.Service
	Interactions *interaction.Service
	Pendings     *pending.Service
	Approvals    *approval.Service
	TFD          *tfd.Service
	Stock        *stock.Service
	CustomData   *customdata.Service

	HealthHandler  http.Handler
	ReadyHandler   http.Handler
	MetricsHandler http.Handler
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness and metrics endpoints bypass
// authentication.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(Recovery(logger))
	r.Use(CORS(deps.Config.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	r.Use(deps.Metrics.MetricsMiddleware)

	health := deps.HealthHandler
	if health == nil {
		health = observability.HandleHealth()
	}
	r.Method(http.MethodGet, "/health", health)
	if deps.ReadyHandler != nil {
		r.Method(http.MethodGet, "/ready", deps.ReadyHandler)
	}
	if deps.MetricsHandler != nil {
		path := deps.Config.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, deps.MetricsHandler)
	}

	auth := deps.Authenticate
	if auth == nil {
		auth = func(next http.Handler) http.Handler { return next }
	}

	r.Group(func(r chi.Router) {
		r.Use(auth)
		r.Use(BuildRequestContext)
		r.Use(ResolveCapabilities(deps.CapabilityResolver, logger))
		r.Use(HandlerTimeout(deps.Config.Server.HandlerTimeout))
		r.Use(RequestLogging(logger))

		if deps.Templates != nil {
			mountTemplates(r, deps.Templates)
		}
		r.Route("/api/protocols", func(r chi.Router) {
			mountProtocols(r, deps)
		})
		if deps.Workflows != nil {
			r.With(RequireCapability(model.CapProtocolRead)).Get("/api/stages/counts", handleStageCounts(deps.Workflows))
		}
		if deps.SLAs != nil {
			r.Route("/api/sla", func(r chi.Router) {
				r.Use(RequireCapability(model.CapProtocolRead, model.CapSLAManage))
				r.Get("/overdue", handleSLAOverdue(deps.SLAs))
				r.Get("/near-due", handleSLANearDue(deps.SLAs))
				r.Get("/stats", handleSLAStats(deps.SLAs))
			})
		}
		if deps.Documents != nil {
			mountDocuments(r, deps.Documents)
		}
		if deps.Interactions != nil {
			r.With(RequireCapability(model.CapInteractionPost)).
				Post("/api/interactions/{interactionId}/read", handleInteractionRead(deps.Interactions))
		}
		if deps.Pendings != nil {
			mountPendings(r, deps.Pendings)
		}
		if deps.Approvals != nil {
			r.Get("/api/approvals", handleApprovalGates(deps.Approvals))
			r.Post("/api/approvals/{gateId}/{subjectId}", handleApprovalDecide(deps.Approvals))
		}
		if deps.TFD != nil {
			mountTFD(r, deps.TFD)
		}
		if deps.Stock != nil {
			mountStock(r, deps.Stock)
		}
		if deps.CustomData != nil {
			mountCustomData(r, deps.CustomData)
		}
	})

	return r
}

func mountTemplates(r chi.Router, t *workflow.Templates) {
	r.Route("/api/workflows", func(r chi.Router) {
		r.Use(RequireCapability(model.CapWorkflowManage))
		r.Get("/", handleTemplateList(t))
		r.Post("/", handleTemplateCreate(t))
		r.Get("/{moduleType}", handleTemplateGet(t))
		r.Put("/{moduleType}", handleTemplateUpdate(t))
		r.Delete("/{moduleType}", handleTemplateDelete(t))
		r.Post("/{moduleType}/stages", handleTemplateAddStage(t))
		r.Delete("/{moduleType}/stages/{order}", handleTemplateDeleteStage(t))
		r.Post("/{moduleType}/stages/{order}/move-up", handleTemplateMoveStage(t, workflow.MoveUp))
		r.Post("/{moduleType}/stages/{order}/move-down", handleTemplateMoveStage(t, workflow.MoveDown))
	})
}

func mountProtocols(r chi.Router, deps Dependencies) {
	read := RequireCapability(model.CapProtocolRead)

	if p := deps.Protocols; p != nil {
		r.With(RequireCapability(model.CapProtocolCreate)).Post("/", handleProtocolCreate(p))
		r.With(read).Get("/", handleProtocolList(p))
		r.With(read).Get("/search", handleProtocolSearch(p))
		r.With(read).Get("/by-number/{number}", handleProtocolByNumber(p))
		r.With(RequireCapability(model.CapProtocolStats)).
			Get("/stats/department/{departmentId}", handleDepartmentStats(p))
		r.With(read).Get("/{id}", handleProtocolGet(p))
		r.With(read).Get("/{id}/history", handleProtocolHistory(p))
		r.With(RequireCapability(model.CapProtocolUpdateStatus)).Patch("/{id}/status", handleProtocolStatus(p))
		r.With(RequireCapability(model.CapProtocolAssign)).Post("/{id}/assign", handleProtocolAssign(p))
		r.With(RequireCapability(model.CapProtocolEvaluate)).Post("/{id}/evaluate", handleProtocolEvaluate(p))
	}
	if a := deps.Approvals; a != nil {
		r.Post("/{id}/approve", handleProtocolDecision(a, true))
		r.Post("/{id}/reject", handleProtocolDecision(a, false))
	}

	if e := deps.Workflows; e != nil {
		r.Route("/{id}/stages", func(r chi.Router) {
			r.Use(read)
			r.Get("/", handleStages(e))
			r.Get("/events", handleStageEvents(e))
			r.Get("/current", handleStageCurrent(e))
			r.Post("/current/actions", handleStageAction(e))
			r.Post("/advance", handleStageAdvance(e))
			r.Post("/skip", handleStageSkip(e))
			r.Post("/fail", handleStageFail(e))
			r.Post("/retry", handleStageRetry(e))
			r.Get("/completion", handleStageCompletion(e))
		})
	}

	if s := deps.SLAs; s != nil {
		r.Route("/{id}/sla", func(r chi.Router) {
			manage := RequireCapability(model.CapSLAManage)
			r.With(read).Get("/", handleSLAGet(s))
			r.With(manage).Post("/", handleSLACreate(s))
			r.With(manage).Delete("/", handleSLADelete(s))
			r.With(manage).Post("/pause", handleSLAPause(s))
			r.With(manage).Post("/resume", handleSLAResume(s))
			r.With(manage).Post("/complete", handleSLAComplete(s))
		})
	}

	if d := deps.Documents; d != nil {
		r.Route("/{id}/documents", func(r chi.Router) {
			r.With(read).Get("/", handleDocumentList(d))
			r.With(RequireCapability(model.CapDocumentReview)).Post("/", handleDocumentRequire(d))
			r.With(RequireCapability(model.CapDocumentUpload)).Post("/upload", handleDocumentUpload(d))
			r.With(read).Get("/check-required", handleDocumentCheckRequired(d))
		})
	}

	if i := deps.Interactions; i != nil {
		r.Route("/{id}/interactions", func(r chi.Router) {
			r.With(read).Get("/", handleInteractionList(i))
			r.With(RequireCapability(model.CapInteractionPost)).Post("/", handleInteractionPost(i))
			r.With(read).Post("/read-all", handleInteractionReadAll(i))
			r.With(read).Get("/unread-count", handleInteractionUnread(i))
		})
	}

	if p := deps.Pendings; p != nil {
		r.Route("/{id}/pendings", func(r chi.Router) {
			r.With(read).Get("/", handlePendingList(p))
			r.With(RequireCapability(model.CapPendingManage)).Post("/", handlePendingCreate(p))
			r.With(read).Get("/blocking", handlePendingBlocking(p))
			r.With(read).Get("/counts", handlePendingCounts(p))
		})
	}
}

func mountDocuments(r chi.Router, d *document.Service) {
	r.Route("/api/documents/{docId}", func(r chi.Router) {
		review := RequireCapability(model.CapDocumentReview)
		r.With(RequireCapability(model.CapProtocolRead)).Get("/", handleDocumentGet(d))
		r.With(review).Delete("/", handleDocumentDelete(d))
		r.With(review).Post("/review", handleDocumentReview(d))
		r.With(review).Post("/approve", handleDocumentApprove(d))
		r.With(review).Post("/reject", handleDocumentReject(d))
		r.With(review).Post("/expire", handleDocumentExpire(d))
	})
}

func mountPendings(r chi.Router, p *pending.Service) {
	r.Route("/api/pendings", func(r chi.Router) {
		r.Use(RequireCapability(model.CapPendingManage))
		r.Post("/check-expired", handlePendingCheckExpired(p))
		r.Post("/{pendingId}/start", handlePendingStart(p))
		r.Post("/{pendingId}/resolve", handlePendingResolve(p))
		r.Post("/{pendingId}/cancel", handlePendingCancel(p))
	})
}

// mountTFD registers the referral routes. The gate endpoints are guarded by
// the approval service, which checks each gate's own capability.
func mountTFD(r chi.Router, t *tfd.Service) {
	r.Route("/api/tfd", func(r chi.Router) {
		manage := RequireCapability(model.CapTFDManage)
		view := RequireCapability(model.CapTFDManage, model.CapTFDRequest)

		r.With(manage).Get("/relatorio", handleTFDRelatorio(t))
		r.Route("/solicitacoes", func(r chi.Router) {
			r.With(view).Post("/", handleTFDCreate(t))
			r.With(view).Get("/", handleTFDList(t))
			r.With(view).Get("/{id}", handleTFDGet(t))
			r.Put("/{id}/analisar-documentacao", handleTFDDecision(t.AnalisarDocumentacao))
			r.Put("/{id}/regulacao-medica", handleTFDDecision(t.RegulacaoMedica))
			r.Put("/{id}/aprovar-gestao", handleTFDDecision(t.AprovarGestao))
			r.With(view).Put("/{id}/reenviar-documentacao", handleTFDReenviar(t))
			r.With(manage).Put("/{id}/agendar-viagem", handleTFDAgendar(t))
			r.With(manage).Put("/{id}/iniciar-viagem", handleTFDIniciar(t))
			r.With(manage).Put("/{id}/registrar-retorno", handleTFDRetorno(t))
			r.With(manage).Put("/{id}/registrar-despesas", handleTFDDespesas(t))
			r.With(manage).Put("/{id}/cancelar", handleTFDCancelar(t))
		})
	})
}

func mountStock(r chi.Router, s *stock.Service) {
	manage := RequireCapability(model.CapStockManage)
	view := RequireCapability(model.CapStockManage, model.CapStockDispense)
	dispense := RequireCapability(model.CapStockDispense)

	r.Route("/api/medicamentos", func(r chi.Router) {
		r.With(manage).Post("/", handleMedicamentoCreate(s))
		r.With(view).Get("/", handleMedicamentoList(s))
	})
	r.Route("/api/estoque", func(r chi.Router) {
		r.With(manage).Post("/", handleEstoqueCreate(s))
		r.With(view).Get("/", handleEstoqueList(s))
		r.With(view).Get("/baixo", handleEstoqueBaixo(s))
		r.With(view).Get("/vencimento", handleEstoqueVencimento(s))
		r.With(manage).Post("/marcar-vencidos", handleEstoqueMarcarVencidos(s))
		r.With(view).Get("/{id}", handleEstoqueGet(s))
		r.With(manage).Post("/{id}/adicionar", handleEstoqueAdicionar(s))
		r.With(manage).Post("/{id}/remover", handleEstoqueRemover(s))
		r.With(manage).Post("/{id}/bloquear", handleEstoqueBloquear(s))
		r.With(manage).Post("/{id}/desbloquear", handleEstoqueDesbloquear(s))
	})
	r.Route("/api/dispensacoes", func(r chi.Router) {
		r.With(dispense).Post("/", handleDispensar(s))
		r.With(view).Get("/relatorio", handleRelatorioConsumo(s))
		r.With(dispense).Post("/{id}/confirmar", handleDispensacaoConfirmar(s))
		r.With(dispense).Post("/{id}/cancelar", handleDispensacaoCancelar(s))
	})
}

func mountCustomData(r chi.Router, c *customdata.Service) {
	manage := RequireCapability(model.CapCustomTableManage)
	readRecords := RequireCapability(model.CapCustomRecordRead, model.CapCustomRecordWrite)
	writeRecords := RequireCapability(model.CapCustomRecordWrite)

	r.Route("/api/custom-modules", func(r chi.Router) {
		r.With(manage).Post("/tables", handleTableCreate(c))
		r.With(readRecords).Get("/tables", handleTableList(c))
		r.With(manage).Get("/stats", handleCustomStats(c))
		r.With(readRecords).Get("/tables/{tableId}", handleTableGet(c))
		r.With(manage).Put("/tables/{tableId}", handleTableUpdate(c))
		r.With(manage).Delete("/tables/{tableId}", handleTableDelete(c))
		r.With(writeRecords).Post("/tables/{tableId}/records", handleRecordCreate(c))
		r.With(readRecords).Get("/tables/{tableId}/records", handleRecordList(c))
		r.With(readRecords).Get("/records/{recordId}", handleRecordGet(c))
		r.With(writeRecords).Put("/records/{recordId}", handleRecordUpdate(c))
		r.With(writeRecords).Delete("/records/{recordId}", handleRecordDelete(c))
	})
}
