package interaction

import (
	"context"
	"testing"

	"github.com/pitabwire/digiurban/model"
)

type stubProtocols map[string]model.Protocol

func (s stubProtocols) Get(_ context.Context, _, id string) (model.Protocol, error) {
	p, ok := s[id]
	if !ok {
		return model.Protocol{}, model.NewNotFoundError("Protocolo não encontrado")
	}
	return p, nil
}

func citizen() *model.RequestContext {
	return &model.RequestContext{SubjectID: "cidadao-1", TenantID: "prefeitura-1", Name: "Maria", Roles: []string{model.RoleCitizen}}
}

func staff() *model.RequestContext {
	return &model.RequestContext{SubjectID: "servidor-1", TenantID: "prefeitura-1", Name: "João", Roles: []string{"ATENDENTE"}}
}

func newTestService() (*Service, *MemoryStore) {
	store := NewMemoryStore()
	protocols := stubProtocols{
		"p-1": {ID: "p-1", TenantID: "prefeitura-1", CitizenID: "cidadao-1"},
		"p-2": {ID: "p-2", TenantID: "prefeitura-1", CitizenID: "cidadao-2"},
	}
	return NewService(store, protocols, nil), store
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	if !model.IsCode(err, code) {
		t.Fatalf("error = %v, want code %s", err, code)
	}
}

func TestService_Post_audience(t *testing.T) {
	tests := []struct {
		name       string
		rctx       *model.RequestContext
		visibility string
		wantAuthor model.AuthorType
		wantAud    model.AuthorType
	}{
		{"citizen public", citizen(), "", model.AuthorCitizen, model.AuthorServer},
		{"staff public", staff(), model.VisibilityPublic, model.AuthorServer, model.AuthorCitizen},
		{"staff internal", staff(), model.VisibilityInternal, model.AuthorServer, model.AuthorServer},
		{"staff private", staff(), model.VisibilityPrivate, model.AuthorServer, model.AuthorServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService()
			got, err := svc.Post(context.Background(), tt.rctx, model.NewInteraction{
				ProtocolID: "p-1", Message: "Olá", Visibility: tt.visibility,
			})
			if err != nil {
				t.Fatalf("Post error: %v", err)
			}
			if got.AuthorType != tt.wantAuthor || got.Audience != tt.wantAud {
				t.Errorf("author=%s audience=%s, want %s/%s", got.AuthorType, got.Audience, tt.wantAuthor, tt.wantAud)
			}
			if got.Type != model.InteractionComment || got.IsRead {
				t.Errorf("entry = %+v", got)
			}
		})
	}
}

func TestService_RecordSystem(t *testing.T) {
	svc, _ := newTestService()
	got, err := svc.RecordSystem(context.Background(), "prefeitura-1", model.NewInteraction{
		ProtocolID: "p-1", Message: "Etapa atual: Análise", Metadata: map[string]any{"stage": "Análise"},
	})
	if err != nil {
		t.Fatalf("RecordSystem error: %v", err)
	}
	if got.AuthorType != model.AuthorSystem || got.Type != model.InteractionSystem {
		t.Errorf("entry = %+v", got)
	}
	if got.Audience != model.AuthorCitizen {
		t.Errorf("Audience = %s, want CITIZEN", got.Audience)
	}
	if len(got.Metadata) == 0 {
		t.Error("metadata not stored")
	}
}

func TestService_Post_rejections(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "  "})
	assertCode(t, err, model.ErrValidationError)

	_, err = svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "x", Type: "GOSSIP"})
	assertCode(t, err, model.ErrValidationError)

	_, err = svc.Post(ctx, citizen(), model.NewInteraction{ProtocolID: "p-1", Message: "x", Visibility: model.VisibilityInternal})
	assertCode(t, err, model.ErrForbidden)

	_, err = svc.Post(ctx, citizen(), model.NewInteraction{ProtocolID: "p-2", Message: "x"})
	assertCode(t, err, model.ErrNotFound)
}

func TestService_List_citizenSeesPublicOnly(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	_, _ = svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "público"})
	_, _ = svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "interno", Visibility: model.VisibilityInternal})
	_, _ = svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "privado", Visibility: model.VisibilityPrivate})

	got, err := svc.List(ctx, citizen(), "p-1", "")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(got) != 1 || got[0].Message != "público" {
		t.Errorf("citizen list = %+v", got)
	}

	all, _ := svc.List(ctx, staff(), "p-1", "")
	if len(all) != 3 {
		t.Errorf("staff list = %d entries, want 3", len(all))
	}
}

func TestService_ReadTracking(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	toCitizen, _ := svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "a"})
	_, _ = svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "b"})
	toStaff, _ := svc.Post(ctx, citizen(), model.NewInteraction{ProtocolID: "p-1", Message: "c"})

	if n, _ := svc.UnreadCount(ctx, citizen(), "p-1"); n != 2 {
		t.Errorf("citizen unread = %d, want 2", n)
	}
	if n, _ := svc.UnreadCount(ctx, staff(), "p-1"); n != 1 {
		t.Errorf("staff unread = %d, want 1", n)
	}

	// A staff member reading an entry addressed to the citizen changes nothing.
	same, err := svc.MarkRead(ctx, staff(), toCitizen.ID)
	if err != nil {
		t.Fatalf("MarkRead error: %v", err)
	}
	if same.IsRead {
		t.Error("entry addressed to the citizen marked read by staff")
	}

	read, err := svc.MarkRead(ctx, citizen(), toCitizen.ID)
	if err != nil {
		t.Fatalf("MarkRead error: %v", err)
	}
	if !read.IsRead || read.ReadAt == nil || read.ReadBy != "cidadao-1" {
		t.Errorf("read entry = %+v", read)
	}
	firstReadAt := *read.ReadAt

	again, _ := svc.MarkRead(ctx, citizen(), toCitizen.ID)
	if !again.ReadAt.Equal(firstReadAt) {
		t.Error("second MarkRead changed ReadAt")
	}

	n, err := svc.MarkAllRead(ctx, staff(), "p-1")
	if err != nil {
		t.Fatalf("MarkAllRead error: %v", err)
	}
	if n != 1 {
		t.Errorf("MarkAllRead = %d, want 1", n)
	}
	if c, _ := svc.UnreadCount(ctx, staff(), "p-1"); c != 0 {
		t.Errorf("staff unread after read-all = %d", c)
	}
	if c, _ := svc.UnreadCount(ctx, citizen(), "p-1"); c != 1 {
		t.Errorf("citizen unread = %d, want 1", c)
	}

	entry, _ := svc.store.Get(ctx, "prefeitura-1", toStaff.ID)
	if entry.Message != "c" || entry.AuthorType != model.AuthorCitizen {
		t.Errorf("content changed by read tracking: %+v", entry)
	}
}

func TestService_MarkRead_citizenCannotSeeInternal(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	internal, _ := svc.Post(ctx, staff(), model.NewInteraction{ProtocolID: "p-1", Message: "x", Visibility: model.VisibilityInternal})

	_, err := svc.MarkRead(ctx, citizen(), internal.ID)
	assertCode(t, err, model.ErrNotFound)
}
