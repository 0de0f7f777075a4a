package protocol

import (
	"context"
	"errors"
	"fmt"
	"strings"
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

// NewPgStore creates a new PostgreSQL protocol store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

const protocolColumns = `id, tenant_id, number, title, description, status, priority, citizen_id,
	service_id, department_id, module_type, assigned_user_id, form_data, due_date,
	concluded_at, created_at, updated_at, version`

func (p *PgStore) Create(ctx context.Context, pr model.Protocol) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO protocols (`+protocolColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		pr.ID, pr.TenantID, pr.Number, pr.Title, pr.Description, pr.Status, pr.Priority, pr.CitizenID,
		pr.ServiceID, pr.DepartmentID, pr.ModuleType, pr.AssignedUserID, pr.FormData, pr.DueDate,
		pr.ConcludedAt, pr.CreatedAt, pr.UpdatedAt, pr.Version,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(fmt.Sprintf("Número de protocolo %s já utilizado", pr.Number))
	}
	if err != nil {
		return fmt.Errorf("insert protocol: %w", err)
	}
	return nil
}

func (p *PgStore) Get(ctx context.Context, tenantID, id string) (model.Protocol, error) {
	return p.getOne(ctx, "id", tenantID, id)
}

func (p *PgStore) GetByNumber(ctx context.Context, tenantID, number string) (model.Protocol, error) {
	return p.getOne(ctx, "number", tenantID, number)
}

func (p *PgStore) getOne(ctx context.Context, column, tenantID, value string) (model.Protocol, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+protocolColumns+`
		FROM protocols
		WHERE tenant_id = $1 AND `+column+` = $2`,
		tenantID, value,
	)
	pr, err := scanProtocol(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Protocol{}, errNotFound()
	}
	if err != nil {
		return model.Protocol{}, fmt.Errorf("query protocol: %w", err)
	}
	return pr, nil
}

func (p *PgStore) List(ctx context.Context, tenantID string, f model.ProtocolFilters) ([]model.Protocol, int, error) {
	where, args := filterClause(tenantID, f)

	var total int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM protocols WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count protocols: %w", err)
	}

	query := `SELECT ` + protocolColumns + ` FROM protocols WHERE ` + where +
		` ORDER BY created_at DESC, number DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query protocols: %w", err)
	}
	defer rows.Close()

	var out []model.Protocol
	for rows.Next() {
		pr, err := scanProtocol(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan protocol: %w", err)
		}
		out = append(out, pr)
	}
	return out, total, rows.Err()
}

// filterClause renders f as a WHERE clause with positional arguments.
func filterClause(tenantID string, f model.ProtocolFilters) (string, []any) {
	conds := []string{"tenant_id = $1"}
	args := []any{tenantID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.DepartmentID != "" {
		add("department_id = $%d", f.DepartmentID)
	}
	if f.ModuleType != "" {
		add("module_type = $%d", f.ModuleType)
	}
	if f.CitizenID != "" {
		add("citizen_id = $%d", f.CitizenID)
	}
	if f.AssignedUserID != "" {
		add("assigned_user_id = $%d", f.AssignedUserID)
	}
	if f.CreatedFrom != nil {
		add("created_at >= $%d", *f.CreatedFrom)
	}
	if f.CreatedTo != nil {
		add("created_at <= $%d", *f.CreatedTo)
	}
	return strings.Join(conds, " AND "), args
}

func (p *PgStore) Update(ctx context.Context, pr model.Protocol) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE protocols SET
			title = $1,
			description = $2,
			status = $3,
			priority = $4,
			assigned_user_id = $5,
			form_data = $6,
			due_date = $7,
			concluded_at = $8,
			version = $9,
			updated_at = $10
		WHERE id = $11 AND tenant_id = $12 AND version = $13`,
		pr.Title, pr.Description, pr.Status, pr.Priority, pr.AssignedUserID, pr.FormData,
		pr.DueDate, pr.ConcludedAt, pr.Version+1, time.Now().UTC(),
		pr.ID, pr.TenantID, pr.Version,
	)
	if err != nil {
		return fmt.Errorf("update protocol: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("Protocolo %s foi alterado por outra operação (versão %d)", pr.Number, pr.Version),
		)
	}
	return nil
}

func (p *PgStore) NextSequence(ctx context.Context, tenantID string, year int) (int, error) {
	var next int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO protocol_sequences (tenant_id, year, value)
		VALUES ($1, $2, 1)
		ON CONFLICT (tenant_id, year) DO UPDATE SET value = protocol_sequences.value + 1
		RETURNING value`,
		tenantID, year,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("next protocol sequence: %w", err)
	}
	return next, nil
}

func (p *PgStore) AppendHistory(ctx context.Context, tenantID string, h model.ProtocolHistory) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO protocol_history (id, tenant_id, protocol_id, action, old_status, new_status, comment, user_id, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		h.ID, tenantID, h.ProtocolID, h.Action, h.OldStatus, h.NewStatus, h.Comment, h.UserID, h.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert protocol history: %w", err)
	}
	return nil
}

func (p *PgStore) History(ctx context.Context, tenantID, protocolID string) ([]model.ProtocolHistory, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, protocol_id, action, old_status, new_status, comment, user_id, timestamp
		FROM protocol_history
		WHERE tenant_id = $1 AND protocol_id = $2
		ORDER BY timestamp DESC`,
		tenantID, protocolID,
	)
	if err != nil {
		return nil, fmt.Errorf("query protocol history: %w", err)
	}
	defer rows.Close()

	var out []model.ProtocolHistory
	for rows.Next() {
		var h model.ProtocolHistory
		if err := rows.Scan(&h.ID, &h.ProtocolID, &h.Action, &h.OldStatus, &h.NewStatus, &h.Comment, &h.UserID, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("scan protocol history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (p *PgStore) CreateEvaluation(ctx context.Context, tenantID string, e model.ProtocolEvaluation) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO protocol_evaluations (id, tenant_id, protocol_id, rating, comment, would_recommend, evaluated_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, tenantID, e.ProtocolID, e.Rating, e.Comment, e.WouldRecommend, e.EvaluatedBy, e.CreatedAt,
	)
	if isUniqueViolation(err) {
		return errAlreadyRated()
	}
	if err != nil {
		return fmt.Errorf("insert protocol evaluation: %w", err)
	}
	return nil
}

func (p *PgStore) DepartmentStats(ctx context.Context, tenantID, departmentID string, from, to *time.Time) (model.DepartmentStats, error) {
	where, args := filterClause(tenantID, model.ProtocolFilters{DepartmentID: departmentID, CreatedFrom: from, CreatedTo: to})
	rows, err := p.pool.Query(ctx, `
		SELECT status, COALESCE(NULLIF(module_type, ''), '`+model.GenericModuleType+`'), count(*)
		FROM protocols
		WHERE `+where+`
		GROUP BY 1, 2`,
		args...,
	)
	if err != nil {
		return model.DepartmentStats{}, fmt.Errorf("query department stats: %w", err)
	}
	defer rows.Close()

	st := model.DepartmentStats{DepartmentID: departmentID, ByStatus: map[string]int{}, ByModule: map[string]int{}}
	for rows.Next() {
		var status, module string
		var n int
		if err := rows.Scan(&status, &module, &n); err != nil {
			return model.DepartmentStats{}, fmt.Errorf("scan department stats: %w", err)
		}
		st.Total += n
		st.ByStatus[status] += n
		st.ByModule[module] += n
	}
	return st, rows.Err()
}

// HealthCheck pings the database.
func (p *PgStore) HealthCheck(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func scanProtocol(row pgx.Row) (model.Protocol, error) {
	var pr model.Protocol
	err := row.Scan(
		&pr.ID, &pr.TenantID, &pr.Number, &pr.Title, &pr.Description, &pr.Status, &pr.Priority, &pr.CitizenID,
		&pr.ServiceID, &pr.DepartmentID, &pr.ModuleType, &pr.AssignedUserID, &pr.FormData, &pr.DueDate,
		&pr.ConcludedAt, &pr.CreatedAt, &pr.UpdatedAt, &pr.Version,
	)
	return pr, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
