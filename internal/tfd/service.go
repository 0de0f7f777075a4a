package tfd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

// Approval gates deciding TFD solicitations.
const (
	GateAnaliseDocumental = "tfd.analise_documental"
	GateRegulacaoMedica   = "tfd.regulacao_medica"
	GateAprovacaoGestao   = "tfd.aprovacao_gestao"
)

const defaultPrioridade = 3

// Decider applies a gate decision. It is satisfied by *approval.Service.
type Decider interface {
	Decide(ctx context.Context, rctx *model.RequestContext, gateID, subjectID string, d model.ApprovalDecision) (model.ApprovalOutcome, error)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Store     Store
	Approvals Decider
	Bus       *events.Bus
	Logger    *zap.Logger
}

// Service manages TFD solicitations and trips.
type Service struct {
	store     Store
	approvals Decider
	bus       *events.Bus
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a TFD service. Approvals may be set later with
// SetDecider when the approval service depends on this one.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     deps.Store,
		approvals: deps.Approvals,
		bus:       deps.Bus,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetDecider sets the approval gate decider.
func (s *Service) SetDecider(d Decider) {
	s.approvals = d
}

// CreateInput describes a new solicitation.
type CreateInput struct {
	ProtocolID          string `json:"protocol_id,omitempty"`
	CitizenID           string `json:"citizen_id"`
	Especialidade       string `json:"especialidade"`
	Procedimento        string `json:"procedimento"`
	JustificativaMedica string `json:"justificativa_medica"`
	MedicoSolicitante   string `json:"medico_solicitante"`
	Prioridade          int    `json:"prioridade,omitempty"`
	Observacoes         string `json:"observacoes,omitempty"`
}

func (in CreateInput) validate() error {
	var details []model.FieldError
	required := func(field, value, msg string) {
		if strings.TrimSpace(value) == "" {
			details = append(details, model.FieldError{Field: field, Code: "REQUIRED", Message: msg})
		}
	}
	required("citizen_id", in.CitizenID, "Cidadão é obrigatório")
	required("especialidade", in.Especialidade, "Especialidade é obrigatória")
	required("procedimento", in.Procedimento, "Procedimento é obrigatório")
	required("justificativa_medica", in.JustificativaMedica, "Justificativa médica é obrigatória")
	required("medico_solicitante", in.MedicoSolicitante, "Médico solicitante é obrigatório")
	if in.Prioridade < 0 || in.Prioridade > 5 {
		details = append(details, model.FieldError{Field: "prioridade", Code: "INVALID", Message: "Prioridade deve estar entre 1 e 5"})
	}
	if len(details) > 0 {
		return model.NewValidationError(details)
	}
	return nil
}

// Create registers a solicitation awaiting document analysis. Citizens can
// only request for themselves.
func (s *Service) Create(ctx context.Context, rctx *model.RequestContext, in CreateInput) (model.Solicitacao, error) {
	if rctx.IsCitizen() {
		in.CitizenID = rctx.SubjectID
	}
	if err := in.validate(); err != nil {
		return model.Solicitacao{}, err
	}
	if in.Prioridade == 0 {
		in.Prioridade = defaultPrioridade
	}

	now := s.now()
	sol := model.Solicitacao{
		ID:                  uuid.New().String(),
		TenantID:            rctx.TenantID,
		ProtocolID:          in.ProtocolID,
		CitizenID:           in.CitizenID,
		Especialidade:       in.Especialidade,
		Procedimento:        in.Procedimento,
		JustificativaMedica: in.JustificativaMedica,
		MedicoSolicitante:   in.MedicoSolicitante,
		Prioridade:          in.Prioridade,
		Status:              model.TFDMachine.Initial,
		Observacoes:         in.Observacoes,
		CreatedAt:           now,
		UpdatedAt:           now,
		Version:             1,
	}
	if err := s.store.Create(ctx, sol); err != nil {
		return model.Solicitacao{}, err
	}
	s.bus.Emit(ctx, events.TFDStatusChanged, sol.TenantID, sol.ID, rctx.SubjectID, map[string]any{
		"to":          sol.Status,
		"protocol_id": sol.ProtocolID,
	})
	observability.RequestLogger(ctx, s.logger).Info("tfd solicitation created",
		zap.String("solicitacao_id", sol.ID),
		zap.String("especialidade", sol.Especialidade),
	)
	return sol, nil
}

// Get returns a solicitation with its trips. Citizens only see their own.
func (s *Service) Get(ctx context.Context, rctx *model.RequestContext, id string) (model.Solicitacao, error) {
	sol, err := s.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.Solicitacao{}, err
	}
	if rctx.IsCitizen() && sol.CitizenID != rctx.SubjectID {
		return model.Solicitacao{}, errNotFound()
	}
	return sol, nil
}

// List returns one page of solicitations.
func (s *Service) List(ctx context.Context, rctx *model.RequestContext, f model.TFDFilter) ([]model.Solicitacao, int, error) {
	if rctx.IsCitizen() {
		f.CitizenID = rctx.SubjectID
	}
	return s.store.List(ctx, rctx.TenantID, f)
}

// AnalisarDocumentacao decides the document analysis gate.
func (s *Service) AnalisarDocumentacao(ctx context.Context, rctx *model.RequestContext, id string, d model.ApprovalDecision) (model.Solicitacao, error) {
	return s.decide(ctx, rctx, GateAnaliseDocumental, id, d)
}

// RegulacaoMedica decides the medical regulation gate.
func (s *Service) RegulacaoMedica(ctx context.Context, rctx *model.RequestContext, id string, d model.ApprovalDecision) (model.Solicitacao, error) {
	return s.decide(ctx, rctx, GateRegulacaoMedica, id, d)
}

// AprovarGestao decides the management approval gate. Approval requires an
// estimated cost.
func (s *Service) AprovarGestao(ctx context.Context, rctx *model.RequestContext, id string, d model.ApprovalDecision) (model.Solicitacao, error) {
	return s.decide(ctx, rctx, GateAprovacaoGestao, id, d)
}

func (s *Service) decide(ctx context.Context, rctx *model.RequestContext, gateID, id string, d model.ApprovalDecision) (model.Solicitacao, error) {
	if s.approvals == nil {
		return model.Solicitacao{}, fmt.Errorf("tfd: no approval decider configured")
	}
	if _, err := s.approvals.Decide(ctx, rctx, gateID, id, d); err != nil {
		return model.Solicitacao{}, err
	}
	return s.store.Get(ctx, rctx.TenantID, id)
}

// ReenviarDocumentacao returns a solicitation with pending documents to
// analysis.
func (s *Service) ReenviarDocumentacao(ctx context.Context, rctx *model.RequestContext, id, observacoes string) (model.Solicitacao, error) {
	sol, err := s.Get(ctx, rctx, id)
	if err != nil {
		return model.Solicitacao{}, err
	}
	if sol.Status != model.TFDDocumentacaoPendente {
		return model.Solicitacao{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Solicitação não está com documentação pendente. Status: %s", sol.Status))
	}
	if err := s.transition(ctx, rctx, &sol, model.TFDAguardandoAnaliseDocumental, "Reenvio", observacoes); err != nil {
		return model.Solicitacao{}, err
	}
	return s.store.Get(ctx, rctx.TenantID, id)
}

// AgendarViagemInput describes a trip to schedule.
type AgendarViagemInput struct {
	Destino             string     `json:"destino"`
	UnidadeDestino      string     `json:"unidade_destino"`
	DataAgendamento     time.Time  `json:"data_agendamento"`
	DataRetornoPrevisto *time.Time `json:"data_retorno_previsto,omitempty"`
	VeiculoID           string     `json:"veiculo_id,omitempty"`
	MotoristaID         string     `json:"motorista_id,omitempty"`
	Acompanhante        string     `json:"acompanhante,omitempty"`
	Observacoes         string     `json:"observacoes,omitempty"`
}

// AgendarViagem schedules a trip for an AGENDADO solicitation.
func (s *Service) AgendarViagem(ctx context.Context, rctx *model.RequestContext, id string, in AgendarViagemInput) (model.Solicitacao, error) {
	sol, err := s.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.Solicitacao{}, err
	}
	if sol.Status != model.TFDAgendado {
		return model.Solicitacao{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Solicitação não está em status AGENDADO. Status: %s", sol.Status))
	}

	var details []model.FieldError
	if strings.TrimSpace(in.Destino) == "" {
		details = append(details, model.FieldError{Field: "destino", Code: "REQUIRED", Message: "Destino é obrigatório"})
	}
	if strings.TrimSpace(in.UnidadeDestino) == "" {
		details = append(details, model.FieldError{Field: "unidade_destino", Code: "REQUIRED", Message: "Unidade de destino é obrigatória"})
	}
	if in.DataAgendamento.IsZero() {
		details = append(details, model.FieldError{Field: "data_agendamento", Code: "REQUIRED", Message: "Data de agendamento é obrigatória"})
	}
	if len(details) > 0 {
		return model.Solicitacao{}, model.NewValidationError(details)
	}

	now := s.now()
	v := model.Viagem{
		ID:                  uuid.New().String(),
		TenantID:            sol.TenantID,
		SolicitacaoID:       sol.ID,
		Destino:             in.Destino,
		UnidadeDestino:      in.UnidadeDestino,
		DataAgendamento:     in.DataAgendamento.UTC(),
		DataRetornoPrevisto: in.DataRetornoPrevisto,
		VeiculoID:           in.VeiculoID,
		MotoristaID:         in.MotoristaID,
		Acompanhante:        in.Acompanhante,
		Observacoes:         in.Observacoes,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.store.CreateViagem(ctx, v); err != nil {
		return model.Solicitacao{}, err
	}
	observability.RequestLogger(ctx, s.logger).Info("tfd trip scheduled",
		zap.String("solicitacao_id", sol.ID),
		zap.String("viagem_id", v.ID),
		zap.Time("data_agendamento", v.DataAgendamento),
	)
	return s.store.Get(ctx, rctx.TenantID, id)
}

// IniciarViagem records the departure of a trip. The solicitation moves
// first so a lost version race leaves the trip untouched.
func (s *Service) IniciarViagem(ctx context.Context, rctx *model.RequestContext, viagemID string) (model.Solicitacao, error) {
	v, sol, err := s.loadViagem(ctx, rctx, viagemID)
	if err != nil {
		return model.Solicitacao{}, err
	}
	if sol.Status != model.TFDAgendado {
		return model.Solicitacao{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Solicitação não está em status AGENDADO. Status: %s", sol.Status))
	}
	if v.DataPartida != nil {
		return model.Solicitacao{}, model.NewInvalidTransitionError("Viagem já iniciada")
	}

	if err := s.transition(ctx, rctx, &sol, model.TFDEmViagem, "", ""); err != nil {
		return model.Solicitacao{}, err
	}
	now := s.now()
	v.DataPartida = &now
	v.UpdatedAt = now
	if err := s.store.UpdateViagem(ctx, v); err != nil {
		return model.Solicitacao{}, fmt.Errorf("record departure: %w", err)
	}
	return s.store.Get(ctx, rctx.TenantID, sol.ID)
}

// RegistrarRetorno records the return of a trip and concludes the
// solicitation.
func (s *Service) RegistrarRetorno(ctx context.Context, rctx *model.RequestContext, viagemID, observacoes string) (model.Solicitacao, error) {
	v, sol, err := s.loadViagem(ctx, rctx, viagemID)
	if err != nil {
		return model.Solicitacao{}, err
	}
	if sol.Status != model.TFDEmViagem {
		return model.Solicitacao{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Viagem não está em andamento. Status: %s", sol.Status))
	}
	if v.DataPartida == nil {
		return model.Solicitacao{}, model.NewInvalidTransitionError("Viagem sem registro de partida não pode ter retorno")
	}
	if v.DataRetornoReal != nil {
		return model.Solicitacao{}, model.NewInvalidTransitionError("Retorno da viagem já registrado")
	}

	if err := s.transition(ctx, rctx, &sol, model.TFDRealizado, "", ""); err != nil {
		return model.Solicitacao{}, err
	}
	now := s.now()
	v.DataRetornoReal = &now
	v.Observacoes = appendNote(v.Observacoes, "Retorno", observacoes)
	v.UpdatedAt = now
	if err := s.store.UpdateViagem(ctx, v); err != nil {
		return model.Solicitacao{}, fmt.Errorf("record return: %w", err)
	}
	return s.store.Get(ctx, rctx.TenantID, sol.ID)
}

// RegistrarDespesas records the expenses of a trip.
func (s *Service) RegistrarDespesas(ctx context.Context, rctx *model.RequestContext, viagemID string, valor float64, meioPagamento string) (model.Viagem, error) {
	if valor <= 0 {
		return model.Viagem{}, model.NewFieldValidationError("valor_despesas", "INVALID",
			"Valor das despesas deve ser maior que zero")
	}
	v, err := s.store.GetViagem(ctx, rctx.TenantID, viagemID)
	if err != nil {
		return model.Viagem{}, err
	}
	v.ValorDespesas = valor
	v.MeioPagamento = meioPagamento
	v.UpdatedAt = s.now()
	if err := s.store.UpdateViagem(ctx, v); err != nil {
		return model.Viagem{}, err
	}
	return v, nil
}

// Cancelar cancels a solicitation that has not finished.
func (s *Service) Cancelar(ctx context.Context, rctx *model.RequestContext, id, motivo string) (model.Solicitacao, error) {
	if strings.TrimSpace(motivo) == "" {
		return model.Solicitacao{}, model.NewFieldValidationError("motivo", "REQUIRED", "Motivo do cancelamento é obrigatório")
	}
	sol, err := s.Get(ctx, rctx, id)
	if err != nil {
		return model.Solicitacao{}, err
	}
	if model.TFDMachine.IsTerminal(sol.Status) {
		return model.Solicitacao{}, model.NewInvalidTransitionError(
			fmt.Sprintf("Não é possível cancelar. Status atual: %s", sol.Status))
	}
	if err := s.transition(ctx, rctx, &sol, model.TFDCancelado, "Cancelamento", motivo); err != nil {
		return model.Solicitacao{}, err
	}
	return s.store.Get(ctx, rctx.TenantID, id)
}

// Relatorio summarises solicitations created in [from, to].
func (s *Service) Relatorio(ctx context.Context, rctx *model.RequestContext, from, to time.Time) (model.TFDRelatorio, error) {
	if to.Before(from) {
		return model.TFDRelatorio{}, model.NewValidationMessage("Data final deve ser posterior à data inicial")
	}
	list, err := s.store.CreatedBetween(ctx, rctx.TenantID, from, to)
	if err != nil {
		return model.TFDRelatorio{}, err
	}
	r := model.TFDRelatorio{Inicio: from, Fim: to, Total: len(list)}
	for _, sol := range list {
		switch sol.Status {
		case model.TFDRealizado:
			r.Realizados++
		case model.TFDCancelado:
			r.Cancelados++
		default:
			r.EmAndamento++
		}
		for _, v := range sol.Viagens {
			r.DespesaTotal += v.ValorDespesas
		}
	}
	if r.Realizados > 0 {
		r.DespesaMedia = r.DespesaTotal / float64(r.Realizados)
	}
	return r, nil
}

func (s *Service) loadViagem(ctx context.Context, rctx *model.RequestContext, viagemID string) (model.Viagem, model.Solicitacao, error) {
	v, err := s.store.GetViagem(ctx, rctx.TenantID, viagemID)
	if err != nil {
		return model.Viagem{}, model.Solicitacao{}, err
	}
	sol, err := s.store.Get(ctx, rctx.TenantID, v.SolicitacaoID)
	if err != nil {
		return model.Viagem{}, model.Solicitacao{}, err
	}
	return v, sol, nil
}

// transition moves sol to status to, appending "[label] note" to its
// observations when note is set.
func (s *Service) transition(ctx context.Context, rctx *model.RequestContext, sol *model.Solicitacao, to, label, note string) error {
	from := sol.Status
	if !model.TFDMachine.CanTransition(from, to) {
		return model.NewInvalidTransitionError(
			fmt.Sprintf("Transição de %s para %s não permitida", from, to))
	}

	now := s.now()
	sol.Status = to
	sol.Observacoes = appendNote(sol.Observacoes, label, note)
	sol.UpdatedAt = now
	if to == model.TFDCancelado {
		sol.CanceladoEm = &now
	}
	if err := s.store.Update(ctx, *sol); err != nil {
		return err
	}
	sol.Version++

	s.bus.Emit(ctx, events.TFDStatusChanged, sol.TenantID, sol.ID, rctx.SubjectID, map[string]any{
		"from":        from,
		"to":          to,
		"protocol_id": sol.ProtocolID,
	})
	observability.RequestLogger(ctx, s.logger).Info("tfd status changed",
		zap.String("solicitacao_id", sol.ID),
		zap.String("from", from),
		zap.String("to", to),
	)
	return nil
}

func appendNote(existing, label, note string) string {
	note = strings.TrimSpace(note)
	if note == "" {
		return existing
	}
	if label != "" {
		note = "[" + label + "] " + note
	}
	if existing == "" {
		return note
	}
	return existing + "\n\n" + note
}
