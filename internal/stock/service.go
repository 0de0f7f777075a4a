package stock

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/internal/events"
	"github.com/pitabwire/digiurban/internal/idempotency"
	"github.com/pitabwire/digiurban/internal/observability"
	"github.com/pitabwire/digiurban/model"
)

// DefaultNearExpiryDays is the look-ahead of ProximosVencimento.
const DefaultNearExpiryDays = 30

// maxAdjustAttempts bounds the retries of a lot adjustment that lost an
// optimistic update.
const maxAdjustAttempts = 3

// Movement kinds recorded in metrics.
const (
	movementEntrada    = "entrada"
	movementSaida      = "saida"
	movementEstorno    = "estorno"
	movementBloqueio   = "bloqueio"
	movementVencimento = "vencimento"
)

// Deps holds the collaborators of a Service. Only Store is required.
type Deps struct {
	Store          Store
	Idempotency    idempotency.Store
	IdempotencyTTL time.Duration
	NearExpiryDays int
	Bus            *events.Bus
	Metrics        *observability.Metrics
	Logger         *zap.Logger
}

// Service manages medications, lots and dispensations.
type Service struct {
	store          Store
	idem           idempotency.Store
	idemTTL        time.Duration
	nearExpiryDays int
	bus            *events.Bus
	metrics        *observability.Metrics
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates a stock service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	days := deps.NearExpiryDays
	if days <= 0 {
		days = DefaultNearExpiryDays
	}
	return &Service{
		store:          deps.Store,
		idem:           deps.Idempotency,
		idemTTL:        deps.IdempotencyTTL,
		nearExpiryDays: days,
		bus:            deps.Bus,
		metrics:        deps.Metrics,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// statusFor recomputes a lot status from its quantity. VENCIDO and
// BLOQUEADO are kept.
func statusFor(e model.Estoque) string {
	switch e.Status {
	case model.EstoqueVencido, model.EstoqueBloqueado:
		return e.Status
	}
	switch {
	case e.QuantidadeAtual <= 0:
		return model.EstoqueEsgotado
	case e.QuantidadeAtual <= e.QuantidadeMinima:
		return model.EstoqueBaixo
	default:
		return model.EstoqueDisponivel
	}
}

// MedicamentoInput describes a medication to catalogue.
type MedicamentoInput struct {
	Nome           string `json:"nome"`
	PrincipioAtivo string `json:"principio_ativo"`
	Apresentacao   string `json:"apresentacao,omitempty"`
	Concentracao   string `json:"concentracao,omitempty"`
	Fabricante     string `json:"fabricante,omitempty"`
	Controlado     bool   `json:"controlado"`
}

// CreateMedicamento catalogues a medication.
func (s *Service) CreateMedicamento(ctx context.Context, rctx *model.RequestContext, in MedicamentoInput) (model.Medicamento, error) {
	var details []model.FieldError
	if strings.TrimSpace(in.Nome) == "" {
		details = append(details, model.FieldError{Field: "nome", Code: "REQUIRED", Message: "Nome é obrigatório"})
	}
	if strings.TrimSpace(in.PrincipioAtivo) == "" {
		details = append(details, model.FieldError{Field: "principio_ativo", Code: "REQUIRED", Message: "Princípio ativo é obrigatório"})
	}
	if len(details) > 0 {
		return model.Medicamento{}, model.NewValidationError(details)
	}

	now := s.now()
	m := model.Medicamento{
		ID:             uuid.New().String(),
		TenantID:       rctx.TenantID,
		Nome:           strings.TrimSpace(in.Nome),
		PrincipioAtivo: strings.TrimSpace(in.PrincipioAtivo),
		Apresentacao:   in.Apresentacao,
		Concentracao:   in.Concentracao,
		Fabricante:     in.Fabricante,
		Controlado:     in.Controlado,
		Ativo:          true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.CreateMedicamento(ctx, m); err != nil {
		return model.Medicamento{}, err
	}
	return m, nil
}

// ListMedicamentos lists medications whose name or active ingredient
// contains search.
func (s *Service) ListMedicamentos(ctx context.Context, rctx *model.RequestContext, search string) ([]model.Medicamento, error) {
	return s.store.ListMedicamentos(ctx, rctx.TenantID, strings.TrimSpace(search))
}

// EstoqueInput describes a lot entering a unit.
type EstoqueInput struct {
	MedicamentoID    string    `json:"medicamento_id"`
	UnidadeID        string    `json:"unidade_id"`
	Lote             string    `json:"lote"`
	DataValidade     time.Time `json:"data_validade"`
	Quantidade       int       `json:"quantidade"`
	QuantidadeMinima int       `json:"quantidade_minima"`
	QuantidadeMaxima int       `json:"quantidade_maxima,omitempty"`
}

// CreateEstoque registers a lot. A lot past its expiry date enters as
// VENCIDO.
func (s *Service) CreateEstoque(ctx context.Context, rctx *model.RequestContext, in EstoqueInput) (model.Estoque, error) {
	var details []model.FieldError
	required := func(field, value, msg string) {
		if strings.TrimSpace(value) == "" {
			details = append(details, model.FieldError{Field: field, Code: "REQUIRED", Message: msg})
		}
	}
	required("medicamento_id", in.MedicamentoID, "Medicamento é obrigatório")
	required("unidade_id", in.UnidadeID, "Unidade é obrigatória")
	required("lote", in.Lote, "Lote é obrigatório")
	if in.DataValidade.IsZero() {
		details = append(details, model.FieldError{Field: "data_validade", Code: "REQUIRED", Message: "Data de validade é obrigatória"})
	}
	if in.Quantidade < 0 || in.QuantidadeMinima < 0 {
		details = append(details, model.FieldError{Field: "quantidade", Code: "INVALID", Message: "Quantidades não podem ser negativas"})
	}
	if len(details) > 0 {
		return model.Estoque{}, model.NewValidationError(details)
	}
	if _, err := s.store.GetMedicamento(ctx, rctx.TenantID, in.MedicamentoID); err != nil {
		return model.Estoque{}, err
	}

	now := s.now()
	e := model.Estoque{
		ID:               uuid.New().String(),
		TenantID:         rctx.TenantID,
		MedicamentoID:    in.MedicamentoID,
		UnidadeID:        in.UnidadeID,
		Lote:             strings.TrimSpace(in.Lote),
		DataValidade:     in.DataValidade.UTC(),
		QuantidadeAtual:  in.Quantidade,
		QuantidadeMinima: in.QuantidadeMinima,
		QuantidadeMaxima: in.QuantidadeMaxima,
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	if e.DataValidade.Before(now) {
		e.Status = model.EstoqueVencido
	}
	e.Status = statusFor(e)
	if err := s.store.CreateEstoque(ctx, e); err != nil {
		return model.Estoque{}, err
	}
	s.metrics.RecordStockMovement(movementEntrada)
	return e, nil
}

// GetEstoque returns one lot.
func (s *Service) GetEstoque(ctx context.Context, rctx *model.RequestContext, id string) (model.Estoque, error) {
	return s.store.GetEstoque(ctx, rctx.TenantID, id)
}

// ListFIFO lists lots earliest expiry first.
func (s *Service) ListFIFO(ctx context.Context, rctx *model.RequestContext, medicamentoID, unidadeID string) ([]model.Estoque, error) {
	return s.store.ListEstoque(ctx, rctx.TenantID, EstoqueFilter{MedicamentoID: medicamentoID, UnidadeID: unidadeID})
}

// Adicionar credits qty units to a lot.
func (s *Service) Adicionar(ctx context.Context, rctx *model.RequestContext, id string, qty int) (model.Estoque, error) {
	if qty <= 0 {
		return model.Estoque{}, errQuantidade()
	}
	e, err := s.adjust(ctx, rctx.TenantID, id, func(e *model.Estoque) error {
		e.QuantidadeAtual += qty
		return nil
	})
	if err != nil {
		return model.Estoque{}, err
	}
	s.metrics.RecordStockMovement(movementEntrada)
	return e, nil
}

// Remover debits qty units from a lot. The lot is left unchanged when it
// holds fewer units.
func (s *Service) Remover(ctx context.Context, rctx *model.RequestContext, id string, qty int) (model.Estoque, error) {
	if qty <= 0 {
		return model.Estoque{}, errQuantidade()
	}
	e, err := s.adjust(ctx, rctx.TenantID, id, func(e *model.Estoque) error {
		if qty > e.QuantidadeAtual {
			return model.NewInsufficientStockError("Quantidade insuficiente em estoque")
		}
		e.QuantidadeAtual -= qty
		return nil
	})
	if err != nil {
		return model.Estoque{}, err
	}
	s.metrics.RecordStockMovement(movementSaida)
	return e, nil
}

// Bloquear withdraws a lot from dispensation.
func (s *Service) Bloquear(ctx context.Context, rctx *model.RequestContext, id, motivo string) (model.Estoque, error) {
	if strings.TrimSpace(motivo) == "" {
		return model.Estoque{}, model.NewFieldValidationError("motivo", "REQUIRED", "Motivo do bloqueio é obrigatório")
	}
	e, err := s.adjust(ctx, rctx.TenantID, id, func(e *model.Estoque) error {
		if e.Status == model.EstoqueVencido {
			return model.NewInvalidStockStatusError("Estoque vencido não pode ser bloqueado")
		}
		e.Status = model.EstoqueBloqueado
		e.MotivoBloqueio = motivo
		return nil
	})
	if err != nil {
		return model.Estoque{}, err
	}
	s.metrics.RecordStockMovement(movementBloqueio)
	return e, nil
}

// Desbloquear returns a blocked lot to circulation.
func (s *Service) Desbloquear(ctx context.Context, rctx *model.RequestContext, id string) (model.Estoque, error) {
	now := s.now()
	return s.adjust(ctx, rctx.TenantID, id, func(e *model.Estoque) error {
		if e.Status != model.EstoqueBloqueado {
			return model.NewInvalidStockStatusError(
				fmt.Sprintf("Estoque não está bloqueado. Status: %s", e.Status))
		}
		e.MotivoBloqueio = ""
		e.Status = model.EstoqueDisponivel
		if e.DataValidade.Before(now) {
			e.Status = model.EstoqueVencido
		}
		return nil
	})
}

// MarcarVencidos marks every lot of tenantID past its expiry at now as
// VENCIDO. An empty tenantID scans every tenant. It returns the number of
// lots marked.
func (s *Service) MarcarVencidos(ctx context.Context, tenantID string, now time.Time) (int, error) {
	lots, err := s.store.ListEstoque(ctx, tenantID, EstoqueFilter{
		Statuses:    []string{model.EstoqueDisponivel, model.EstoqueBaixo, model.EstoqueEsgotado},
		ValidadeAte: &now,
	})
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, lot := range lots {
		if !lot.DataValidade.Before(now) {
			continue
		}
		lot.Status = model.EstoqueVencido
		lot.UpdatedAt = now
		if err := s.store.UpdateEstoque(ctx, lot); err != nil {
			s.logger.Warn("mark lot expired failed",
				zap.String("tenant_id", lot.TenantID),
				zap.String("estoque_id", lot.ID),
				zap.Error(err),
			)
			continue
		}
		marked++
		s.metrics.RecordStockMovement(movementVencimento)
		s.bus.Emit(ctx, events.StockExpired, lot.TenantID, lot.ID, "system", map[string]any{
			"medicamento_id": lot.MedicamentoID,
			"unidade_id":     lot.UnidadeID,
			"lote":           lot.Lote,
			"quantidade":     lot.QuantidadeAtual,
		})
	}
	if marked > 0 {
		s.logger.Info("expired lots marked", zap.String("tenant_id", tenantID), zap.Int("marked", marked))
	}
	return marked, nil
}

// EstoqueBaixo lists lots at or below their minimum quantity.
func (s *Service) EstoqueBaixo(ctx context.Context, rctx *model.RequestContext, unidadeID string) ([]model.Estoque, error) {
	return s.store.ListEstoque(ctx, rctx.TenantID, EstoqueFilter{
		UnidadeID: unidadeID,
		Statuses:  []string{model.EstoqueBaixo, model.EstoqueEsgotado},
	})
}

// ProximosVencimento lists lots still holding units that expire within
// days. days <= 0 uses the configured look-ahead.
func (s *Service) ProximosVencimento(ctx context.Context, rctx *model.RequestContext, unidadeID string, days int) ([]model.Estoque, error) {
	if days <= 0 {
		days = s.nearExpiryDays
	}
	now := s.now()
	limit := now.AddDate(0, 0, days)
	lots, err := s.store.ListEstoque(ctx, rctx.TenantID, EstoqueFilter{
		UnidadeID:   unidadeID,
		Statuses:    []string{model.EstoqueDisponivel, model.EstoqueBaixo},
		ValidadeAte: &limit,
	})
	if err != nil {
		return nil, err
	}
	out := []model.Estoque{}
	for _, lot := range lots {
		if !lot.DataValidade.Before(now) && lot.QuantidadeAtual > 0 {
			out = append(out, lot)
		}
	}
	return out, nil
}

// DispensarInput describes a dispensation request.
type DispensarInput struct {
	EstoqueID      string `json:"estoque_id"`
	MedicamentoID  string `json:"medicamento_id"`
	CitizenID      string `json:"citizen_id"`
	AtendimentoID  string `json:"atendimento_id,omitempty"`
	PrescricaoID   string `json:"prescricao_id,omitempty"`
	Quantidade     int    `json:"quantidade"`
	Observacoes    string `json:"observacoes,omitempty"`
	IdempotencyKey string `json:"-"`
}

// Dispensar opens a dispensation awaiting confirmation. Stock is debited on
// Confirmar.
func (s *Service) Dispensar(ctx context.Context, rctx *model.RequestContext, in DispensarInput) (model.Dispensacao, error) {
	var details []model.FieldError
	required := func(field, value, msg string) {
		if strings.TrimSpace(value) == "" {
			details = append(details, model.FieldError{Field: field, Code: "REQUIRED", Message: msg})
		}
	}
	required("estoque_id", in.EstoqueID, "Estoque é obrigatório")
	required("medicamento_id", in.MedicamentoID, "Medicamento é obrigatório")
	required("citizen_id", in.CitizenID, "Cidadão é obrigatório")
	if in.Quantidade <= 0 {
		details = append(details, model.FieldError{Field: "quantidade", Code: "INVALID", Message: "Quantidade deve ser maior que zero"})
	}
	if len(details) > 0 {
		return model.Dispensacao{}, model.NewValidationError(details)
	}

	key := ""
	if in.IdempotencyKey != "" {
		key = idempotency.Key(rctx.TenantID, "dispensacao", in.IdempotencyKey)
	}
	return idempotency.Do(ctx, s.idem, key, in, s.idemTTL, func() (model.Dispensacao, error) {
		return s.dispensar(ctx, rctx, in)
	})
}

func (s *Service) dispensar(ctx context.Context, rctx *model.RequestContext, in DispensarInput) (d model.Dispensacao, err error) {
	ctx, span := observability.StartSpan(ctx, "stock.dispense",
		observability.AttrEstoqueID.String(in.EstoqueID),
		attribute.Int("stock.quantidade", in.Quantidade),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	med, err := s.store.GetMedicamento(ctx, rctx.TenantID, in.MedicamentoID)
	if err != nil {
		return model.Dispensacao{}, err
	}
	if med.Controlado && strings.TrimSpace(in.PrescricaoID) == "" {
		return model.Dispensacao{}, model.NewPrescriptionRequiredError()
	}

	lot, err := s.store.GetEstoque(ctx, rctx.TenantID, in.EstoqueID)
	if err != nil {
		return model.Dispensacao{}, err
	}
	if lot.MedicamentoID != med.ID {
		return model.Dispensacao{}, model.NewFieldValidationError("estoque_id", "MISMATCH",
			"Estoque não corresponde ao medicamento solicitado")
	}
	if !lot.Dispensavel() {
		return model.Dispensacao{}, model.NewInvalidStockStatusError(
			fmt.Sprintf("Estoque não disponível para dispensação. Status: %s", lot.Status))
	}
	if in.Quantidade > lot.QuantidadeAtual {
		return model.Dispensacao{}, insufficient(lot.QuantidadeAtual)
	}

	now := s.now()
	d = model.Dispensacao{
		ID:             uuid.New().String(),
		TenantID:       rctx.TenantID,
		EstoqueID:      lot.ID,
		MedicamentoID:  med.ID,
		CitizenID:      in.CitizenID,
		AtendimentoID:  in.AtendimentoID,
		PrescricaoID:   in.PrescricaoID,
		FarmaceuticoID: rctx.SubjectID,
		Quantidade:     in.Quantidade,
		Status:         model.DispensacaoAguardando,
		Observacoes:    in.Observacoes,
		CreatedAt:      now,
		UpdatedAt:      now,
		Version:        1,
	}
	if err := s.store.CreateDispensacao(ctx, d); err != nil {
		return model.Dispensacao{}, err
	}
	s.metrics.RecordDispensation(d.Status)
	return d, nil
}

// Confirmar hands the medication over and debits the lot. The status claim
// and the debit commit together; a concurrent confirmation loses with
// CONFLICT.
func (s *Service) Confirmar(ctx context.Context, rctx *model.RequestContext, id string) (model.Dispensacao, error) {
	var (
		d      model.Dispensacao
		lot    model.Estoque
		before string
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		d, err = tx.GetDispensacao(ctx, rctx.TenantID, id)
		if err != nil {
			return err
		}
		if d.Status != model.DispensacaoAguardando {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("Dispensação não pode ser confirmada. Status: %s", d.Status))
		}

		now := s.now()
		d.Status = model.DispensacaoDispensado
		d.DispensadoEm = &now
		d.UpdatedAt = now
		if err := tx.UpdateDispensacao(ctx, d); err != nil {
			return err
		}
		d.Version++

		lot, before, err = s.adjustLot(ctx, tx, rctx.TenantID, d.EstoqueID, func(e *model.Estoque) error {
			if !e.Dispensavel() {
				return model.NewInvalidStockStatusError(
					fmt.Sprintf("Estoque não disponível para dispensação. Status: %s", e.Status))
			}
			if d.Quantidade > e.QuantidadeAtual {
				return insufficient(e.QuantidadeAtual)
			}
			e.QuantidadeAtual -= d.Quantidade
			return nil
		})
		return err
	})
	if err != nil {
		return model.Dispensacao{}, err
	}

	s.notifyLow(ctx, lot, before)
	s.metrics.RecordStockMovement(movementSaida)
	s.metrics.RecordDispensation(d.Status)
	s.bus.Emit(ctx, events.DispensationConfirmed, d.TenantID, d.ID, rctx.SubjectID, map[string]any{
		"medicamento_id": d.MedicamentoID,
		"estoque_id":     d.EstoqueID,
		"citizen_id":     d.CitizenID,
		"quantidade":     d.Quantidade,
	})
	return d, nil
}

// Cancelar cancels a dispensation. A confirmed one credits its units back to
// the lot in the same transaction as the status change, so the credit
// happens at most once.
func (s *Service) Cancelar(ctx context.Context, rctx *model.RequestContext, id, motivo string) (model.Dispensacao, error) {
	if strings.TrimSpace(motivo) == "" {
		return model.Dispensacao{}, model.NewFieldValidationError("motivo", "REQUIRED", "Motivo do cancelamento é obrigatório")
	}

	var (
		d        model.Dispensacao
		lot      model.Estoque
		before   string
		credited bool
	)
	err := s.store.Transaction(ctx, func(tx Store) error {
		var err error
		d, err = tx.GetDispensacao(ctx, rctx.TenantID, id)
		if err != nil {
			return err
		}
		if !model.DispensacaoMachine.CanTransition(d.Status, model.DispensacaoCancelado) {
			return model.NewInvalidTransitionError(
				fmt.Sprintf("Dispensação não pode ser cancelada. Status: %s", d.Status))
		}
		credited = d.Status == model.DispensacaoDispensado

		now := s.now()
		d.Status = model.DispensacaoCancelado
		d.CanceladoEm = &now
		d.MotivoCancelamento = motivo
		if d.Observacoes == "" {
			d.Observacoes = "Cancelamento: " + motivo
		} else {
			d.Observacoes += "\nCancelamento: " + motivo
		}
		d.UpdatedAt = now
		if err := tx.UpdateDispensacao(ctx, d); err != nil {
			return err
		}
		d.Version++

		if !credited {
			return nil
		}
		lot, before, err = s.adjustLot(ctx, tx, rctx.TenantID, d.EstoqueID, func(e *model.Estoque) error {
			e.QuantidadeAtual += d.Quantidade
			return nil
		})
		return err
	})
	if err != nil {
		return model.Dispensacao{}, err
	}

	if credited {
		s.notifyLow(ctx, lot, before)
		s.metrics.RecordStockMovement(movementEstorno)
	}
	s.metrics.RecordDispensation(d.Status)
	return d, nil
}

// RelatorioConsumo aggregates the dispensations confirmed in [from, to],
// heaviest consumption first. medicamentoID optionally narrows it.
func (s *Service) RelatorioConsumo(ctx context.Context, rctx *model.RequestContext, from, to time.Time, medicamentoID string) (model.RelatorioConsumo, error) {
	if to.Before(from) {
		return model.RelatorioConsumo{}, model.NewValidationMessage("Data final deve ser posterior à data inicial")
	}
	list, err := s.store.ListDispensacoes(ctx, rctx.TenantID, DispensacaoFilter{
		Status:        model.DispensacaoDispensado,
		MedicamentoID: medicamentoID,
		DispensadoDe:  &from,
		DispensadoAte: &to,
	})
	if err != nil {
		return model.RelatorioConsumo{}, err
	}

	byMed := make(map[string]*model.ConsumoMedicamento)
	for _, d := range list {
		c, ok := byMed[d.MedicamentoID]
		if !ok {
			c = &model.ConsumoMedicamento{MedicamentoID: d.MedicamentoID}
			byMed[d.MedicamentoID] = c
		}
		c.QuantidadeTotal += d.Quantidade
		c.NumeroDispensacoes++
	}
	r := model.RelatorioConsumo{
		Inicio:                from,
		Fim:                   to,
		TotalDispensacoes:     len(list),
		ConsumoPorMedicamento: make([]model.ConsumoMedicamento, 0, len(byMed)),
	}
	for _, c := range byMed {
		r.ConsumoPorMedicamento = append(r.ConsumoPorMedicamento, *c)
	}
	sort.Slice(r.ConsumoPorMedicamento, func(i, j int) bool {
		a, b := r.ConsumoPorMedicamento[i], r.ConsumoPorMedicamento[j]
		if a.QuantidadeTotal != b.QuantidadeTotal {
			return a.QuantidadeTotal > b.QuantidadeTotal
		}
		return a.MedicamentoID < b.MedicamentoID
	})
	return r, nil
}

// adjust applies fn to the current lot, recomputes its status and stores it,
// retrying when another writer got there first. Entering a low status
// publishes stock.low.
func (s *Service) adjust(ctx context.Context, tenantID, id string, fn func(*model.Estoque) error) (model.Estoque, error) {
	e, before, err := s.adjustLot(ctx, s.store, tenantID, id, fn)
	if err != nil {
		return model.Estoque{}, err
	}
	s.notifyLow(ctx, e, before)
	return e, nil
}

// adjustLot is adjust against st without the notification. It returns the
// stored lot and its status before the change.
func (s *Service) adjustLot(ctx context.Context, st Store, tenantID, id string, fn func(*model.Estoque) error) (model.Estoque, string, error) {
	var lastErr error
	for range maxAdjustAttempts {
		e, err := st.GetEstoque(ctx, tenantID, id)
		if err != nil {
			return model.Estoque{}, "", err
		}
		before := e.Status
		if err := fn(&e); err != nil {
			return model.Estoque{}, "", err
		}
		e.Status = statusFor(e)
		e.UpdatedAt = s.now()

		err = st.UpdateEstoque(ctx, e)
		if model.IsCode(err, model.ErrConflict) {
			lastErr = err
			continue
		}
		if err != nil {
			return model.Estoque{}, "", err
		}
		e.Version++
		return e, before, nil
	}
	return model.Estoque{}, "", lastErr
}

func (s *Service) notifyLow(ctx context.Context, e model.Estoque, before string) {
	if e.Status == before || (e.Status != model.EstoqueBaixo && e.Status != model.EstoqueEsgotado) {
		return
	}
	s.bus.Emit(ctx, events.StockLow, e.TenantID, e.ID, "system", map[string]any{
		"medicamento_id":    e.MedicamentoID,
		"unidade_id":        e.UnidadeID,
		"lote":              e.Lote,
		"quantidade_atual":  e.QuantidadeAtual,
		"quantidade_minima": e.QuantidadeMinima,
		"status":            e.Status,
	})
}

func errQuantidade() error {
	return model.NewFieldValidationError("quantidade", "INVALID", "Quantidade deve ser maior que zero")
}

func insufficient(available int) error {
	return model.NewInsufficientStockError(
		fmt.Sprintf("Quantidade insuficiente em estoque. Disponível: %d", available))
}
