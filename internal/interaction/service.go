package interaction

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/digiurban/model"
)

// ProtocolReader loads protocols for ownership checks.
type ProtocolReader interface {
	Get(ctx context.Context, tenantID, id string) (model.Protocol, error)
}

// Service appends to and reads protocol interaction logs.
type Service struct {
	store     Store
	protocols ProtocolReader
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates an interaction service. protocols may be nil, in which
// case citizen ownership is not checked.
func NewService(store Store, protocols ProtocolReader, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		protocols: protocols,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Post appends an entry authored by the caller. Citizens may only post
// PUBLIC entries on their own protocols.
func (s *Service) Post(ctx context.Context, rctx *model.RequestContext, in model.NewInteraction) (model.Interaction, error) {
	if err := s.checkAccess(ctx, rctx, in.ProtocolID); err != nil {
		return model.Interaction{}, err
	}
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPublic
	}
	if rctx.IsCitizen() && in.Visibility != model.VisibilityPublic {
		return model.Interaction{}, model.NewForbiddenError("Cidadãos só podem registrar interações públicas")
	}
	return s.create(ctx, rctx.TenantID, in, rctx.Author(), rctx.SubjectID, rctx.DisplayName())
}

// RecordSystem appends an entry authored by the system.
func (s *Service) RecordSystem(ctx context.Context, tenantID string, in model.NewInteraction) (model.Interaction, error) {
	if in.Visibility == "" {
		in.Visibility = model.VisibilityPublic
	}
	if in.Type == "" {
		in.Type = model.InteractionSystem
	}
	return s.create(ctx, tenantID, in, model.AuthorSystem, "system", "Sistema")
}

func (s *Service) create(
	ctx context.Context,
	tenantID string,
	in model.NewInteraction,
	author model.AuthorType,
	authorID, authorName string,
) (model.Interaction, error) {
	if strings.TrimSpace(in.ProtocolID) == "" {
		return model.Interaction{}, model.NewFieldValidationError("protocol_id", "REQUIRED", "Protocolo é obrigatório")
	}
	if strings.TrimSpace(in.Message) == "" {
		return model.Interaction{}, model.NewFieldValidationError("message", "REQUIRED", "Mensagem é obrigatória")
	}
	if in.Type == "" {
		in.Type = model.InteractionComment
	}
	if !slices.Contains(model.InteractionTypes, in.Type) {
		return model.Interaction{}, model.NewFieldValidationError("type", "INVALID",
			fmt.Sprintf("Tipo de interação inválido: %s", in.Type))
	}
	switch in.Visibility {
	case model.VisibilityPublic, model.VisibilityInternal, model.VisibilityPrivate:
	default:
		return model.Interaction{}, model.NewFieldValidationError("visibility", "INVALID",
			fmt.Sprintf("Visibilidade inválida: %s", in.Visibility))
	}

	var meta []byte
	if len(in.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(in.Metadata); err != nil {
			return model.Interaction{}, model.NewFieldValidationError("metadata", "INVALID", "Metadados inválidos")
		}
	}

	entry := model.Interaction{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		ProtocolID: in.ProtocolID,
		Type:       in.Type,
		Message:    in.Message,
		AuthorType: author,
		AuthorID:   authorID,
		AuthorName: authorName,
		Visibility: in.Visibility,
		Audience:   audienceFor(author, in.Visibility),
		Metadata:   meta,
		CreatedAt:  s.now(),
	}
	if err := s.store.Create(ctx, entry); err != nil {
		return model.Interaction{}, err
	}
	return entry, nil
}

// audienceFor picks the party for which a new entry is unread: citizen
// posts notify staff, public staff and system posts notify the citizen and
// everything else stays with staff.
func audienceFor(author model.AuthorType, visibility string) model.AuthorType {
	if author == model.AuthorCitizen || visibility != model.VisibilityPublic {
		return model.AuthorServer
	}
	return model.AuthorCitizen
}

// List returns the protocol log as visible to the caller. Citizens only see
// PUBLIC entries.
func (s *Service) List(ctx context.Context, rctx *model.RequestContext, protocolID, entryType string) ([]model.Interaction, error) {
	if err := s.checkAccess(ctx, rctx, protocolID); err != nil {
		return nil, err
	}
	return s.store.ListByProtocol(ctx, rctx.TenantID, protocolID, Filter{
		Visibilities: visibleTo(rctx),
		Type:         entryType,
	})
}

// MarkRead flags an entry as read by the caller's party. Entries addressed
// to the other party are returned unchanged.
func (s *Service) MarkRead(ctx context.Context, rctx *model.RequestContext, id string) (model.Interaction, error) {
	in, err := s.store.Get(ctx, rctx.TenantID, id)
	if err != nil {
		return model.Interaction{}, err
	}
	if rctx.IsCitizen() && in.Visibility != model.VisibilityPublic {
		return model.Interaction{}, model.NewNotFoundError("Interação não encontrada")
	}
	if err := s.checkAccess(ctx, rctx, in.ProtocolID); err != nil {
		return model.Interaction{}, err
	}
	if in.IsRead || in.Audience != readerParty(rctx) {
		return in, nil
	}
	return s.store.MarkRead(ctx, rctx.TenantID, id, rctx.SubjectID, s.now())
}

// MarkAllRead flags every entry addressed to the caller's party.
func (s *Service) MarkAllRead(ctx context.Context, rctx *model.RequestContext, protocolID string) (int, error) {
	if err := s.checkAccess(ctx, rctx, protocolID); err != nil {
		return 0, err
	}
	n, err := s.store.MarkAllRead(ctx, rctx.TenantID, protocolID, s.readerFilter(rctx), rctx.SubjectID, s.now())
	if err != nil {
		return 0, err
	}
	s.logger.Debug("interactions marked read",
		zap.String("protocol_id", protocolID),
		zap.Int("count", n),
	)
	return n, nil
}

// UnreadCount counts entries addressed to the caller's party still unread.
func (s *Service) UnreadCount(ctx context.Context, rctx *model.RequestContext, protocolID string) (int, error) {
	if err := s.checkAccess(ctx, rctx, protocolID); err != nil {
		return 0, err
	}
	return s.store.CountUnread(ctx, rctx.TenantID, protocolID, s.readerFilter(rctx))
}

func (s *Service) readerFilter(rctx *model.RequestContext) Filter {
	return Filter{Visibilities: visibleTo(rctx), Audience: readerParty(rctx)}
}

func (s *Service) checkAccess(ctx context.Context, rctx *model.RequestContext, protocolID string) error {
	if s.protocols == nil || !rctx.IsCitizen() {
		return nil
	}
	p, err := s.protocols.Get(ctx, rctx.TenantID, protocolID)
	if err != nil {
		return err
	}
	if p.CitizenID != rctx.SubjectID {
		return model.NewNotFoundError("Protocolo não encontrado")
	}
	return nil
}

func visibleTo(rctx *model.RequestContext) []string {
	if rctx.IsCitizen() {
		return []string{model.VisibilityPublic}
	}
	return nil
}

func readerParty(rctx *model.RequestContext) model.AuthorType {
	if rctx.IsCitizen() {
		return model.AuthorCitizen
	}
	return model.AuthorServer
}
