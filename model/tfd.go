package model

import "time"

// TFD (tratamento fora do domicílio) solicitation statuses.
const (
	TFDAguardandoAnaliseDocumental = "AGUARDANDO_ANALISE_DOCUMENTAL"
	TFDDocumentacaoPendente        = "DOCUMENTACAO_PENDENTE"
	TFDAguardandoRegulacaoMedica   = "AGUARDANDO_REGULACAO_MEDICA"
	TFDAprovadoRegulacao           = "APROVADO_REGULACAO"
	TFDAguardandoAprovacaoGestao   = "AGUARDANDO_APROVACAO_GESTAO"
	TFDAgendado                    = "AGENDADO"
	TFDEmViagem                    = "EM_VIAGEM"
	TFDRealizado                   = "REALIZADO"
	TFDCancelado                   = "CANCELADO"
)

// TFDMachine is the lifecycle of a TFD solicitation. Every non-terminal
// state may be cancelled.
var TFDMachine = NewStatusMachine("tfd", TFDAguardandoAnaliseDocumental,
	[]string{TFDRealizado, TFDCancelado},
	map[string][]string{
		TFDAguardandoAnaliseDocumental: {TFDAguardandoRegulacaoMedica, TFDDocumentacaoPendente, TFDCancelado},
		TFDDocumentacaoPendente:        {TFDAguardandoAnaliseDocumental, TFDCancelado},
		TFDAguardandoRegulacaoMedica:   {TFDAprovadoRegulacao, TFDCancelado},
		TFDAprovadoRegulacao:           {TFDAguardandoAprovacaoGestao, TFDAgendado, TFDCancelado},
		TFDAguardandoAprovacaoGestao:   {TFDAgendado, TFDCancelado},
		TFDAgendado:                    {TFDEmViagem, TFDCancelado},
		TFDEmViagem:                    {TFDRealizado, TFDCancelado},
	})

// Solicitacao is a TFD referral request.
type Solicitacao struct {
	ID                  string     `gorm:"primaryKey;type:uuid" json:"id"`
	TenantID            string     `gorm:"index;not null"       json:"tenant_id"`
	ProtocolID          string     `gorm:"index"                json:"protocol_id,omitempty"`
	CitizenID           string     `gorm:"index;not null"       json:"citizen_id"`
	Especialidade       string     `gorm:"not null"             json:"especialidade"`
	Procedimento        string     `gorm:"not null"             json:"procedimento"`
	JustificativaMedica string     `gorm:"type:text;not null"   json:"justificativa_medica"`
	MedicoSolicitante   string     `gorm:"not null"             json:"medico_solicitante"`
	Prioridade          int        `json:"prioridade"`
	Status              string     `gorm:"index;not null"       json:"status"`
	ValorEstimado       *float64   `json:"valor_estimado,omitempty"`
	Observacoes         string     `gorm:"type:text"            json:"observacoes,omitempty"`
	Viagens             []Viagem   `gorm:"foreignKey:SolicitacaoID" json:"viagens,omitempty"`
	CanceladoEm         *time.Time `json:"cancelado_em,omitempty"`
	CreatedAt           time.Time  `gorm:"index"                json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
	Version             int        `gorm:"not null;default:1"   json:"version"`
}

// Viagem is a scheduled trip of a TFD solicitation.
type Viagem struct {
	ID                  string     `gorm:"primaryKey;type:uuid" json:"id"`
	TenantID            string     `gorm:"index;not null"       json:"tenant_id"`
	SolicitacaoID       string     `gorm:"index;not null"       json:"solicitacao_id"`
	Destino             string     `gorm:"not null"             json:"destino"`
	UnidadeDestino      string     `gorm:"not null"             json:"unidade_destino"`
	DataAgendamento     time.Time  `gorm:"not null"             json:"data_agendamento"`
	DataRetornoPrevisto *time.Time `json:"data_retorno_previsto,omitempty"`
	DataPartida         *time.Time `json:"data_partida,omitempty"`
	DataRetornoReal     *time.Time `json:"data_retorno_real,omitempty"`
	VeiculoID           string     `json:"veiculo_id,omitempty"`
	MotoristaID         string     `json:"motorista_id,omitempty"`
	Acompanhante        string     `json:"acompanhante,omitempty"`
	ValorDespesas       float64    `json:"valor_despesas"`
	MeioPagamento       string     `json:"meio_pagamento,omitempty"`
	Observacoes         string     `gorm:"type:text"            json:"observacoes,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TFDFilter narrows a solicitation listing.
type TFDFilter struct {
	Status    string
	CitizenID string
	Offset    int
	Limit     int
}

// TFDRelatorio summarises solicitations created in a period.
type TFDRelatorio struct {
	Inicio       time.Time `json:"inicio"`
	Fim          time.Time `json:"fim"`
	Total        int       `json:"total"`
	Realizados   int       `json:"realizados"`
	Cancelados   int       `json:"cancelados"`
	EmAndamento  int       `json:"em_andamento"`
	DespesaTotal float64   `json:"despesa_total"`
	DespesaMedia float64   `json:"despesa_media"`
}
