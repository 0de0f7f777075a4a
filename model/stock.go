package model

import "time"

// Stock lot statuses. VENCIDO and BLOQUEADO are sticky: quantity changes do
// not clear them.
const (
	EstoqueDisponivel = "DISPONIVEL"
	EstoqueBaixo      = "ESTOQUE_BAIXO"
	EstoqueEsgotado   = "ESGOTADO"
	EstoqueVencido    = "VENCIDO"
	EstoqueBloqueado  = "BLOQUEADO"
)

// Dispensation statuses.
const (
	DispensacaoAguardando = "AGUARDANDO"
	DispensacaoDispensado = "DISPENSADO"
	DispensacaoCancelado  = "CANCELADO"
)

// DispensacaoMachine is the lifecycle of a dispensation.
var DispensacaoMachine = NewStatusMachine("dispensacao", DispensacaoAguardando,
	[]string{DispensacaoCancelado},
	map[string][]string{
		DispensacaoAguardando: {DispensacaoDispensado, DispensacaoCancelado},
		DispensacaoDispensado: {DispensacaoCancelado},
	})

// Medicamento is a catalogued medication.
type Medicamento struct {
	ID             string    `gorm:"primaryKey;type:uuid"  json:"id"`
	TenantID       string    `gorm:"uniqueIndex:idx_medicamento_nome;not null" json:"tenant_id"`
	Nome           string    `gorm:"uniqueIndex:idx_medicamento_nome;not null" json:"nome"`
	PrincipioAtivo string    `gorm:"uniqueIndex:idx_medicamento_nome;not null" json:"principio_ativo"`
	Apresentacao   string    `json:"apresentacao,omitempty"`
	Concentracao   string    `json:"concentracao,omitempty"`
	Fabricante     string    `json:"fabricante,omitempty"`
	Controlado     bool      `gorm:"not null;default:false" json:"controlado"`
	Ativo          bool      `gorm:"not null;default:true" json:"ativo"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Estoque is one lot of a medication held by a health unit.
type Estoque struct {
	ID               string    `gorm:"primaryKey;type:uuid" json:"id"`
	TenantID         string    `gorm:"uniqueIndex:idx_estoque_lote;not null" json:"tenant_id"`
	MedicamentoID    string    `gorm:"uniqueIndex:idx_estoque_lote;not null" json:"medicamento_id"`
	UnidadeID        string    `gorm:"uniqueIndex:idx_estoque_lote;index;not null" json:"unidade_id"`
	Lote             string    `gorm:"uniqueIndex:idx_estoque_lote;not null" json:"lote"`
	DataValidade     time.Time `gorm:"index;not null"       json:"data_validade"`
	QuantidadeAtual  int       `gorm:"not null"             json:"quantidade_atual"`
	QuantidadeMinima int       `gorm:"not null"             json:"quantidade_minima"`
	QuantidadeMaxima int       `json:"quantidade_maxima,omitempty"`
	Status           string    `gorm:"index;not null"       json:"status"`
	MotivoBloqueio   string    `json:"motivo_bloqueio,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
	Version          int       `gorm:"not null;default:1"   json:"version"`
}

// Dispensavel reports whether the lot may be dispensed from.
func (e *Estoque) Dispensavel() bool {
	return e.Status == EstoqueDisponivel || e.Status == EstoqueBaixo
}

// Dispensacao is the handing of a medication to a citizen.
type Dispensacao struct {
	ID                 string     `gorm:"primaryKey;type:uuid" json:"id"`
	TenantID           string     `gorm:"index;not null"       json:"tenant_id"`
	EstoqueID          string     `gorm:"index;not null"       json:"estoque_id"`
	MedicamentoID      string     `gorm:"index;not null"       json:"medicamento_id"`
	CitizenID          string     `gorm:"index;not null"       json:"citizen_id"`
	AtendimentoID      string     `json:"atendimento_id,omitempty"`
	PrescricaoID       string     `json:"prescricao_id,omitempty"`
	FarmaceuticoID     string     `json:"farmaceutico_id,omitempty"`
	Quantidade         int        `gorm:"not null"             json:"quantidade"`
	Status             string     `gorm:"index;not null"       json:"status"`
	Observacoes        string     `gorm:"type:text"            json:"observacoes,omitempty"`
	DispensadoEm       *time.Time `gorm:"index"                json:"dispensado_em,omitempty"`
	CanceladoEm        *time.Time `json:"cancelado_em,omitempty"`
	MotivoCancelamento string     `json:"motivo_cancelamento,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	Version            int        `gorm:"not null;default:1"   json:"version"`
}

// ConsumoMedicamento is one line of the consumption report.
type ConsumoMedicamento struct {
	MedicamentoID      string `json:"medicamento_id"`
	QuantidadeTotal    int    `json:"quantidade_total"`
	NumeroDispensacoes int    `json:"numero_dispensacoes"`
}

// RelatorioConsumo aggregates confirmed dispensations in a period.
type RelatorioConsumo struct {
	Inicio                time.Time            `json:"inicio"`
	Fim                   time.Time            `json:"fim"`
	TotalDispensacoes     int                  `json:"total_dispensacoes"`
	ConsumoPorMedicamento []ConsumoMedicamento `json:"consumo_por_medicamento"`
}
