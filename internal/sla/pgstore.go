package sla

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/digiurban/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL SLA store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const slaColumns = `id, tenant_id, protocol_id, working_days, start_date, due_date, status,
	paused_at, pause_reason, total_paused_days, completed_at, created_at, updated_at, version`

func (p *PgStore) Create(ctx context.Context, s model.ProtocolSLA) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO protocol_slas (`+slaColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		s.ID, s.TenantID, s.ProtocolID, s.WorkingDays, s.StartDate, s.DueDate, s.Status,
		s.PausedAt, s.PauseReason, s.TotalPausedDays, s.CompletedAt, s.CreatedAt, s.UpdatedAt, s.Version,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return model.NewConflictError("SLA já existe para este protocolo")
	}
	if err != nil {
		return fmt.Errorf("insert sla: %w", err)
	}
	return nil
}

func (p *PgStore) GetByProtocol(ctx context.Context, tenantID, protocolID string) (model.ProtocolSLA, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+slaColumns+`
		FROM protocol_slas
		WHERE tenant_id = $1 AND protocol_id = $2`,
		tenantID, protocolID,
	)
	s, err := scanSLA(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProtocolSLA{}, errNotFound()
	}
	if err != nil {
		return model.ProtocolSLA{}, fmt.Errorf("query sla: %w", err)
	}
	return s, nil
}

func (p *PgStore) Update(ctx context.Context, s model.ProtocolSLA) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE protocol_slas SET
			due_date = $1,
			status = $2,
			paused_at = $3,
			pause_reason = $4,
			total_paused_days = $5,
			completed_at = $6,
			version = $7,
			updated_at = $8
		WHERE tenant_id = $9 AND protocol_id = $10 AND version = $11`,
		s.DueDate, s.Status, s.PausedAt, s.PauseReason, s.TotalPausedDays, s.CompletedAt,
		s.Version+1, time.Now().UTC(),
		s.TenantID, s.ProtocolID, s.Version,
	)
	if err != nil {
		return fmt.Errorf("update sla: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("SLA %q version conflict (expected %d)", s.ID, s.Version),
		)
	}
	return nil
}

func (p *PgStore) List(ctx context.Context, tenantID string, statuses []string) ([]model.ProtocolSLA, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT `+slaColumns+`
		FROM protocol_slas
		WHERE ($1 = '' OR tenant_id = $1)
		  AND (cardinality($2::text[]) = 0 OR status = ANY($2))
		ORDER BY due_date ASC`,
		tenantID, statuses,
	)
	if err != nil {
		return nil, fmt.Errorf("query slas: %w", err)
	}
	defer rows.Close()

	var out []model.ProtocolSLA
	for rows.Next() {
		s, err := scanSLA(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sla: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (p *PgStore) Delete(ctx context.Context, tenantID, protocolID string) error {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM protocol_slas WHERE tenant_id = $1 AND protocol_id = $2`,
		tenantID, protocolID,
	)
	if err != nil {
		return fmt.Errorf("delete sla: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotFound()
	}
	return nil
}

func scanSLA(row pgx.Row) (model.ProtocolSLA, error) {
	var s model.ProtocolSLA
	err := row.Scan(
		&s.ID, &s.TenantID, &s.ProtocolID, &s.WorkingDays, &s.StartDate, &s.DueDate, &s.Status,
		&s.PausedAt, &s.PauseReason, &s.TotalPausedDays, &s.CompletedAt, &s.CreatedAt, &s.UpdatedAt, &s.Version,
	)
	return s, err
}
