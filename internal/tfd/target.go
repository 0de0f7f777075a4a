package tfd

import (
	"context"
	"fmt"

	"github.com/pitabwire/digiurban/model"
)

// GateTarget exposes solicitations to the approval gates on the tfd
// machine.
type GateTarget struct {
	svc *Service
}

// GateTarget returns the approval target backed by this service.
func (s *Service) GateTarget() *GateTarget {
	return &GateTarget{svc: s}
}

// Load returns the solicitation's current status.
func (t *GateTarget) Load(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.ApprovalSubject, error) {
	sol, err := t.svc.Get(ctx, rctx, subjectID)
	if err != nil {
		return model.ApprovalSubject{}, err
	}
	return model.ApprovalSubject{ID: sol.ID, ProtocolID: sol.ProtocolID, Status: sol.Status, Version: sol.Version}, nil
}

// ApplyDecision moves the solicitation to the gate's target status and
// notes the justification under the gate label. An approved estimate is
// stored as the solicitation's estimated cost.
func (t *GateTarget) ApplyDecision(
	ctx context.Context,
	rctx *model.RequestContext,
	gate model.GateDefinition,
	subject model.ApprovalSubject,
	to string,
	d model.ApprovalDecision,
) error {
	sol, err := t.svc.store.Get(ctx, rctx.TenantID, subject.ID)
	if err != nil {
		return err
	}
	if sol.Version != subject.Version {
		return model.NewConflictError(
			fmt.Sprintf("Solicitação %s foi alterada durante a decisão", sol.ID))
	}
	if d.Approved && d.EstimatedValue != nil {
		v := *d.EstimatedValue
		sol.ValorEstimado = &v
	}
	label := gate.Label
	if label == "" {
		label = gate.Name
	}
	return t.svc.transition(ctx, rctx, &sol, to, label, d.Justification)
}
