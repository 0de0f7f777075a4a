package protocol

import (
	"context"
	"fmt"

	"github.com/pitabwire/digiurban/model"
)

// GateTarget exposes protocols to approval gates on the protocol machine.
type GateTarget struct {
	svc *Service
}

// GateTarget returns the approval target backed by this service.
func (s *Service) GateTarget() *GateTarget {
	return &GateTarget{svc: s}
}

// Load returns the protocol's current status.
func (t *GateTarget) Load(ctx context.Context, rctx *model.RequestContext, subjectID string) (model.ApprovalSubject, error) {
	p, err := t.svc.Get(ctx, rctx, subjectID)
	if err != nil {
		return model.ApprovalSubject{}, err
	}
	return model.ApprovalSubject{ID: p.ID, ProtocolID: p.ID, Status: p.Status, Version: p.Version}, nil
}

// ApplyDecision moves the protocol to the gate's target status. The
// protocol must still be at the version the decision was taken on.
func (t *GateTarget) ApplyDecision(
	ctx context.Context,
	rctx *model.RequestContext,
	gate model.GateDefinition,
	subject model.ApprovalSubject,
	to string,
	d model.ApprovalDecision,
) error {
	p, err := t.svc.store.Get(ctx, rctx.TenantID, subject.ID)
	if err != nil {
		return err
	}
	if p.Version != subject.Version {
		return model.NewConflictError(
			fmt.Sprintf("Protocolo %s foi alterado durante a decisão", p.Number))
	}

	action := model.HistoryRejected
	if d.Approved {
		action = model.HistoryApproved
	}
	label := gate.Label
	if label == "" {
		label = gate.Name
	}
	comment := fmt.Sprintf("[%s] %s", label, d.Justification)
	return t.svc.changeStatus(ctx, rctx, &p, to, action, comment)
}
