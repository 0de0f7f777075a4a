package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/digiurban/model"
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// PgInstanceStore is a PostgreSQL-backed InstanceStore using pgx/v5.
type PgInstanceStore struct {
	pool *pgxpool.Pool
}

// NewPgInstanceStore creates a new PostgreSQL instance store.
func NewPgInstanceStore(pool *pgxpool.Pool) *PgInstanceStore {
	return &PgInstanceStore{pool: pool}
}

const instanceColumns = `id, tenant_id, protocol_id, module_type, stages, current_index,
	status, started_at, version, created_at, updated_at`

// Create inserts a new instance.
func (s *PgInstanceStore) Create(ctx context.Context, wf model.ProtocolWorkflow) error {
	stagesJSON, err := json.Marshal(wf.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO protocol_workflows (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		wf.ID, wf.TenantID, wf.ProtocolID, wf.ModuleType, stagesJSON, wf.CurrentIndex,
		wf.Status, wf.StartedAt, wf.Version, wf.CreatedAt, wf.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return model.NewConflictError(
			fmt.Sprintf("Protocolo %s já possui fluxo de etapas", wf.ProtocolID),
		)
	}
	if err != nil {
		return fmt.Errorf("insert protocol workflow: %w", err)
	}
	return nil
}

// GetByProtocol retrieves the instance of a protocol, scoped to tenant.
func (s *PgInstanceStore) GetByProtocol(ctx context.Context, tenantID, protocolID string) (model.ProtocolWorkflow, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM protocol_workflows
		WHERE tenant_id = $1 AND protocol_id = $2`,
		tenantID, protocolID,
	)
	wf, err := scanInstance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProtocolWorkflow{}, model.NewNotFoundError("Fluxo de etapas não encontrado para o protocolo")
	}
	if err != nil {
		return model.ProtocolWorkflow{}, fmt.Errorf("query protocol workflow: %w", err)
	}
	return wf, nil
}

// Update persists an updated instance with optimistic locking.
func (s *PgInstanceStore) Update(ctx context.Context, wf model.ProtocolWorkflow) error {
	stagesJSON, err := json.Marshal(wf.Stages)
	if err != nil {
		return fmt.Errorf("marshal stages: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE protocol_workflows SET
			stages = $1,
			current_index = $2,
			status = $3,
			version = $4,
			updated_at = $5
		WHERE id = $6 AND tenant_id = $7 AND version = $8`,
		stagesJSON, wf.CurrentIndex, wf.Status, wf.Version+1, time.Now().UTC(),
		wf.ID, wf.TenantID, wf.Version,
	)
	if err != nil {
		return fmt.Errorf("update protocol workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d)", wf.ID, wf.Version),
		)
	}
	return nil
}

// AppendEvent adds an event to the audit trail.
func (s *PgInstanceStore) AppendEvent(ctx context.Context, event model.WorkflowEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO protocol_workflow_events (
			id, workflow_id, stage, event, actor_id, data, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.WorkflowID, event.Stage, event.Event,
		event.ActorID, dataJSON, event.Comment, event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert workflow event: %w", err)
	}
	return nil
}

// GetEvents retrieves all events for an instance.
func (s *PgInstanceStore) GetEvents(ctx context.Context, tenantID, workflowID string) ([]model.WorkflowEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT e.id, e.workflow_id, e.stage, e.event, e.actor_id, e.data, e.comment, e.created_at
		FROM protocol_workflow_events e
		JOIN protocol_workflows w ON w.id = e.workflow_id
		WHERE e.workflow_id = $1 AND w.tenant_id = $2
		ORDER BY e.created_at ASC`,
		workflowID, tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow events: %w", err)
	}
	defer rows.Close()

	var events []model.WorkflowEvent
	for rows.Next() {
		var evt model.WorkflowEvent
		var dataJSON []byte
		if err := rows.Scan(
			&evt.ID, &evt.WorkflowID, &evt.Stage, &evt.Event,
			&evt.ActorID, &dataJSON, &evt.Comment, &evt.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan workflow event: %w", err)
		}
		if dataJSON != nil {
			_ = json.Unmarshal(dataJSON, &evt.Data)
		}
		events = append(events, evt)
	}
	return events, rows.Err()
}

// CountByStatus counts a tenant's instances per status.
func (s *PgInstanceStore) CountByStatus(ctx context.Context, tenantID string) (model.StageCounts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT status, count(*) FROM protocol_workflows
		WHERE tenant_id = $1
		GROUP BY status`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("count protocol workflows: %w", err)
	}
	defer rows.Close()

	counts := model.StageCounts{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Delete removes an instance and its events.
func (s *PgInstanceStore) Delete(ctx context.Context, tenantID, protocolID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id string
	err = tx.QueryRow(ctx, `
		DELETE FROM protocol_workflows
		WHERE tenant_id = $1 AND protocol_id = $2
		RETURNING id`,
		tenantID, protocolID,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.NewNotFoundError("Fluxo de etapas não encontrado para o protocolo")
	}
	if err != nil {
		return fmt.Errorf("delete protocol workflow: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM protocol_workflow_events WHERE workflow_id = $1`, id); err != nil {
		return fmt.Errorf("delete workflow events: %w", err)
	}
	return tx.Commit(ctx)
}

// HealthCheck pings the pool.
func (s *PgInstanceStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanInstance(row pgx.Row) (model.ProtocolWorkflow, error) {
	var wf model.ProtocolWorkflow
	var stagesJSON []byte
	if err := row.Scan(
		&wf.ID, &wf.TenantID, &wf.ProtocolID, &wf.ModuleType, &stagesJSON, &wf.CurrentIndex,
		&wf.Status, &wf.StartedAt, &wf.Version, &wf.CreatedAt, &wf.UpdatedAt,
	); err != nil {
		return model.ProtocolWorkflow{}, err
	}
	if err := json.Unmarshal(stagesJSON, &wf.Stages); err != nil {
		return model.ProtocolWorkflow{}, fmt.Errorf("unmarshal stages: %w", err)
	}
	return wf, nil
}

// PgTemplateStore is a PostgreSQL-backed TemplateStore.
type PgTemplateStore struct {
	pool *pgxpool.Pool
}

// NewPgTemplateStore creates a new PostgreSQL template store.
func NewPgTemplateStore(pool *pgxpool.Pool) *PgTemplateStore {
	return &PgTemplateStore{pool: pool}
}

const templateColumns = `module_type, name, description, default_sla, stages, version, updated_at`

// Get retrieves a tenant template.
func (s *PgTemplateStore) Get(ctx context.Context, tenantID, moduleType string) (model.WorkflowTemplate, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+templateColumns+`
		FROM workflow_templates
		WHERE tenant_id = $1 AND module_type = $2`,
		tenantID, moduleType,
	)
	tpl, err := scanTemplate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowTemplate{}, model.NewNotFoundError(
			fmt.Sprintf("Workflow não encontrado para %s", moduleType),
		)
	}
	if err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("query workflow template: %w", err)
	}
	return tpl, nil
}

// List returns the tenant's templates sorted by module type.
func (s *PgTemplateStore) List(ctx context.Context, tenantID string) ([]model.WorkflowTemplate, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+templateColumns+`
		FROM workflow_templates
		WHERE tenant_id = $1
		ORDER BY module_type`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("query workflow templates: %w", err)
	}
	defer rows.Close()

	var out []model.WorkflowTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workflow template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

// Save creates or replaces a template. An expectedVersion of zero skips the
// version check.
func (s *PgTemplateStore) Save(ctx context.Context, tenantID string, tpl model.WorkflowTemplate, expectedVersion int) (model.WorkflowTemplate, error) {
	stagesJSON, err := json.Marshal(tpl.Stages)
	if err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("marshal stages: %w", err)
	}

	now := time.Now().UTC()
	var version int
	err = s.pool.QueryRow(ctx, `
		INSERT INTO workflow_templates (tenant_id, `+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
		ON CONFLICT (tenant_id, module_type) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			default_sla = EXCLUDED.default_sla,
			stages = EXCLUDED.stages,
			version = workflow_templates.version + 1,
			updated_at = EXCLUDED.updated_at
		WHERE $8 = 0 OR workflow_templates.version = $8
		RETURNING version`,
		tenantID, tpl.ModuleType, tpl.Name, tpl.Description, tpl.DefaultSLA, stagesJSON, now,
		expectedVersion,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkflowTemplate{}, model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict (expected %d)", tpl.ModuleType, expectedVersion),
		)
	}
	if err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("save workflow template: %w", err)
	}

	tpl = tpl.Clone()
	tpl.Version = version
	tpl.UpdatedAt = now
	return tpl, nil
}

// Delete removes a tenant template.
func (s *PgTemplateStore) Delete(ctx context.Context, tenantID, moduleType string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM workflow_templates WHERE tenant_id = $1 AND module_type = $2`,
		tenantID, moduleType,
	)
	if err != nil {
		return fmt.Errorf("delete workflow template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("Workflow não encontrado para %s", moduleType))
	}
	return nil
}

func scanTemplate(row pgx.Row) (model.WorkflowTemplate, error) {
	var tpl model.WorkflowTemplate
	var stagesJSON []byte
	if err := row.Scan(
		&tpl.ModuleType, &tpl.Name, &tpl.Description, &tpl.DefaultSLA, &stagesJSON,
		&tpl.Version, &tpl.UpdatedAt,
	); err != nil {
		return model.WorkflowTemplate{}, err
	}
	if err := json.Unmarshal(stagesJSON, &tpl.Stages); err != nil {
		return model.WorkflowTemplate{}, fmt.Errorf("unmarshal stages: %w", err)
	}
	return tpl, nil
}
