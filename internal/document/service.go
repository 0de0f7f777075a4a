package document

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/model"
)

// InteractionPoster appends entries to a protocol's interaction log.
type InteractionPoster interface {
	Post(ctx context.Context, rctx *model.RequestContext, in model.NewInteraction) (model.Interaction, error)
}

// Service manages document requirements and uploads.
type Service struct {
	store        Store
	interactions InteractionPoster
	logger       *zap.Logger
	now          func() time.Time
}

// NewService creates a document service. interactions may be nil.
func NewService(store Store, interactions InteractionPoster, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:        store,
		interactions: interactions,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RequireInput describes a new document requirement.
type RequireInput struct {
	DocumentType string `json:"document_type"`
	Description  string `json:"description"`
	IsRequired   *bool  `json:"is_required"`
}

// Require asks the citizen for a document. IsRequired defaults to true.
func (s *Service) Require(ctx context.Context, rctx *model.RequestContext, protocolID string, in RequireInput) (model.ProtocolDocument, error) {
	docType := strings.TrimSpace(in.DocumentType)
	if docType == "" {
		return model.ProtocolDocument{}, model.NewFieldValidationError("document_type", "REQUIRED", "Tipo de documento é obrigatório")
	}
	docs, err := s.store.ListByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolDocument{}, err
	}
	if latest := latestOfType(docs, docType); latest != nil && isLive(latest.Status) {
		return model.ProtocolDocument{}, model.NewConflictError(
			fmt.Sprintf("Documento %s já solicitado para este protocolo", docType),
		)
	}

	required := true
	if in.IsRequired != nil {
		required = *in.IsRequired
	}
	now := s.now()
	doc := model.ProtocolDocument{
		ID:           uuid.New().String(),
		TenantID:     rctx.TenantID,
		ProtocolID:   protocolID,
		DocumentType: docType,
		Description:  in.Description,
		IsRequired:   required,
		Status:       model.DocumentPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, doc); err != nil {
		return model.ProtocolDocument{}, err
	}

	msg := fmt.Sprintf("Documento solicitado: %s", docType)
	if in.Description != "" {
		msg += " - " + in.Description
	}
	s.post(ctx, rctx, protocolID, model.InteractionDocumentRequest, msg, doc)
	return doc, nil
}

// Upload attaches file metadata to the live document of docType. A new
// instance is created when the latest one was rejected or expired, or when
// none was requested.
func (s *Service) Upload(
	ctx context.Context,
	rctx *model.RequestContext,
	protocolID, docType string,
	file model.DocumentFile,
) (model.ProtocolDocument, error) {
	docType = strings.TrimSpace(docType)
	if docType == "" {
		return model.ProtocolDocument{}, model.NewFieldValidationError("document_type", "REQUIRED", "Tipo de documento é obrigatório")
	}
	if file.FileName == "" || file.FileURL == "" || file.FileSize <= 0 || file.MimeType == "" {
		return model.ProtocolDocument{}, model.NewValidationMessage("Dados do arquivo incompletos")
	}

	docs, err := s.store.ListByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.ProtocolDocument{}, err
	}

	now := s.now()
	latest := latestOfType(docs, docType)
	create := false
	var doc model.ProtocolDocument
	switch {
	case latest == nil:
		create = true
		doc = model.ProtocolDocument{DocumentType: docType}
	case latest.Status == model.DocumentApproved:
		return model.ProtocolDocument{}, model.NewConflictError("Documento já está aprovado")
	case latest.Status == model.DocumentUnderReview:
		return model.ProtocolDocument{}, model.NewConflictError("Documento em análise não pode ser substituído")
	case latest.Status == model.DocumentRejected || latest.Status == model.DocumentExpired:
		create = true
		doc = model.ProtocolDocument{
			DocumentType: docType,
			Description:  latest.Description,
			IsRequired:   latest.IsRequired,
		}
	default:
		doc = *latest
	}

	if create {
		doc.ID = uuid.New().String()
		doc.TenantID = rctx.TenantID
		doc.ProtocolID = protocolID
		doc.CreatedAt = now
	}
	doc.Status = model.DocumentUploaded
	doc.FileName = file.FileName
	doc.FileURL = file.FileURL
	doc.FileSize = file.FileSize
	doc.MimeType = file.MimeType
	doc.ValidUntil = file.ValidUntil
	doc.UploadedAt = &now
	doc.UpdatedAt = now

	if create {
		err = s.store.Create(ctx, doc)
	} else {
		err = s.store.Update(ctx, doc)
	}
	if err != nil {
		return model.ProtocolDocument{}, err
	}

	s.post(ctx, rctx, protocolID, model.InteractionDocumentUpload,
		fmt.Sprintf("Documento enviado: %s (%s)", docType, file.FileName), doc)
	return doc, nil
}

// Review starts the analysis of an uploaded document.
func (s *Service) Review(ctx context.Context, rctx *model.RequestContext, id string) (model.ProtocolDocument, error) {
	return s.transition(ctx, rctx, id, model.DocumentUnderReview, func(doc *model.ProtocolDocument) error {
		if doc.Status != model.DocumentUploaded {
			return invalidStatus(doc)
		}
		return nil
	})
}

// Approve accepts an uploaded or reviewed document.
func (s *Service) Approve(ctx context.Context, rctx *model.RequestContext, id string) (model.ProtocolDocument, error) {
	doc, err := s.transition(ctx, rctx, id, model.DocumentApproved, func(doc *model.ProtocolDocument) error {
		switch doc.Status {
		case model.DocumentApproved:
			return model.NewConflictError("Documento já está aprovado")
		case model.DocumentUploaded, model.DocumentUnderReview:
			return nil
		}
		return invalidStatus(doc)
	})
	if err != nil {
		return model.ProtocolDocument{}, err
	}
	s.post(ctx, rctx, doc.ProtocolID, model.InteractionNotification,
		fmt.Sprintf("Documento aprovado: %s", doc.DocumentType), doc)
	return doc, nil
}

// Reject refuses an uploaded or reviewed document. A reason is required.
func (s *Service) Reject(ctx context.Context, rctx *model.RequestContext, id, reason string) (model.ProtocolDocument, error) {
	if strings.TrimSpace(reason) == "" {
		return model.ProtocolDocument{}, model.NewFieldValidationError("reason", "REQUIRED", "Motivo da rejeição é obrigatório")
	}
	doc, err := s.transition(ctx, rctx, id, model.DocumentRejected, func(doc *model.ProtocolDocument) error {
		if doc.Status != model.DocumentUploaded && doc.Status != model.DocumentUnderReview {
			return invalidStatus(doc)
		}
		doc.RejectionReason = reason
		return nil
	})
	if err != nil {
		return model.ProtocolDocument{}, err
	}
	s.post(ctx, rctx, doc.ProtocolID, model.InteractionNotification,
		fmt.Sprintf("Documento rejeitado: %s. Motivo: %s", doc.DocumentType, reason), doc)
	return doc, nil
}

// Expire closes a document that is not yet approved, rejected or expired.
func (s *Service) Expire(ctx context.Context, rctx *model.RequestContext, id string) (model.ProtocolDocument, error) {
	return s.transition(ctx, rctx, id, model.DocumentExpired, func(doc *model.ProtocolDocument) error {
		if model.DocumentMachine.IsTerminal(doc.Status) {
			return invalidStatus(doc)
		}
		return nil
	})
}

func (s *Service) transition(
	ctx context.Context,
	rctx *model.RequestContext,
	id, to string,
	check func(doc *model.ProtocolDocument) error,
) (model.ProtocolDocument, error) {
	doc, err := s.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.ProtocolDocument{}, err
	}
	if err := check(&doc); err != nil {
		return model.ProtocolDocument{}, err
	}

	now := s.now()
	doc.Status = to
	doc.UpdatedAt = now
	if to != model.DocumentExpired {
		doc.ReviewedAt = &now
		doc.ReviewedBy = rctx.SubjectID
	}
	if err := s.store.Update(ctx, doc); err != nil {
		return model.ProtocolDocument{}, err
	}
	s.logger.Debug("document status changed",
		zap.String("document_id", doc.ID),
		zap.String("protocol_id", doc.ProtocolID),
		zap.String("status", to),
	)
	return doc, nil
}

// Get returns one document.
func (s *Service) Get(ctx context.Context, rctx *model.RequestContext, id string) (model.ProtocolDocument, error) {
	return s.store.Get(ctx, rctx.TenantID, id)
}

// List returns every document of a protocol.
func (s *Service) List(ctx context.Context, rctx *model.RequestContext, protocolID string) ([]model.ProtocolDocument, error) {
	return s.store.ListByProtocol(ctx, rctx.TenantID, protocolID)
}

// Delete removes a document.
func (s *Service) Delete(ctx context.Context, rctx *model.RequestContext, id string) error {
	return s.store.Delete(ctx, rctx.TenantID, id)
}

// CheckRequired reports, per required document type, whether an approved
// instance exists. It never changes the protocol status.
func (s *Service) CheckRequired(ctx context.Context, rctx *model.RequestContext, protocolID string) (model.RequiredDocumentsCheck, error) {
	docs, err := s.store.ListByProtocol(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return model.RequiredDocumentsCheck{}, err
	}

	check := model.RequiredDocumentsCheck{
		Missing:  []string{},
		Pending:  []string{},
		Rejected: []string{},
		Approved: []string{},
	}
	for _, docType := range requiredTypes(docs) {
		if hasApproved(docs, docType, s.now()) {
			check.Approved = append(check.Approved, docType)
			continue
		}
		switch latestOfType(docs, docType).Status {
		case model.DocumentRejected:
			check.Rejected = append(check.Rejected, docType)
		case model.DocumentUploaded, model.DocumentUnderReview:
			check.Pending = append(check.Pending, docType)
		default:
			check.Missing = append(check.Missing, docType)
		}
	}
	check.Complete = len(check.Missing) == 0 && len(check.Pending) == 0 && len(check.Rejected) == 0
	return check, nil
}

// ApprovedTypes lists the document types of a protocol with a valid
// approved instance.
func (s *Service) ApprovedTypes(ctx context.Context, tenantID, protocolID string) ([]string, error) {
	docs, err := s.store.ListByProtocol(ctx, tenantID, protocolID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	seen := map[string]bool{}
	var out []string
	for _, doc := range docs {
		if !seen[doc.DocumentType] && hasApproved(docs, doc.DocumentType, now) {
			seen[doc.DocumentType] = true
			out = append(out, doc.DocumentType)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Service) post(ctx context.Context, rctx *model.RequestContext, protocolID, kind, msg string, doc model.ProtocolDocument) {
	if s.interactions == nil {
		return
	}
	_, err := s.interactions.Post(ctx, rctx, model.NewInteraction{
		ProtocolID: protocolID,
		Type:       kind,
		Message:    msg,
		Visibility: model.VisibilityPublic,
		Metadata:   map[string]any{"document_id": doc.ID, "document_type": doc.DocumentType, "status": doc.Status},
	})
	if err != nil {
		s.logger.Warn("record document interaction failed",
			zap.String("protocol_id", protocolID),
			zap.String("document_id", doc.ID),
			zap.Error(err),
		)
	}
}

func invalidStatus(doc *model.ProtocolDocument) error {
	return model.NewInvalidTransitionError(
		fmt.Sprintf("Operação não permitida para documento com status %s", doc.Status),
	)
}

// isLive reports whether a document instance still counts for its type.
func isLive(status string) bool {
	return status != model.DocumentRejected && status != model.DocumentExpired
}

// latestOfType returns the most recent instance of docType. docs are
// ordered by creation time.
func latestOfType(docs []model.ProtocolDocument, docType string) *model.ProtocolDocument {
	for i := len(docs) - 1; i >= 0; i-- {
		if docs[i].DocumentType == docType {
			return &docs[i]
		}
	}
	return nil
}

func hasApproved(docs []model.ProtocolDocument, docType string, now time.Time) bool {
	for _, doc := range docs {
		if doc.DocumentType != docType || doc.Status != model.DocumentApproved {
			continue
		}
		if doc.ValidUntil == nil || doc.ValidUntil.After(now) {
			return true
		}
	}
	return false
}

func requiredTypes(docs []model.ProtocolDocument) []string {
	seen := map[string]bool{}
	var out []string
	for _, doc := range docs {
		if doc.IsRequired && !seen[doc.DocumentType] {
			seen[doc.DocumentType] = true
			out = append(out, doc.DocumentType)
		}
	}
	return out
}
