// Package interaction keeps the append-only message and event log of each
// protocol, with per-party read tracking.
package interaction

import (
	"context"
	"time"

	"github.com/pitabwire/digiurban/model"
)

// Filter narrows ListByProtocol, CountUnread and MarkAllRead. Empty fields
// match everything.
type Filter struct {
	Visibilities []string
	Type         string
	Audience     model.AuthorType
	UnreadOnly   bool
}

// Store persists interactions. Entries are never updated except for their
// read flags.
type Store interface {
	Create(ctx context.Context, in model.Interaction) error
	Get(ctx context.Context, tenantID, id string) (model.Interaction, error)

	// ListByProtocol returns matching entries ordered by creation time.
	ListByProtocol(ctx context.Context, tenantID, protocolID string, f Filter) ([]model.Interaction, error)

	// MarkRead flags one unread entry as read. Already read entries keep
	// their original ReadAt.
	MarkRead(ctx context.Context, tenantID, id, readerID string, at time.Time) (model.Interaction, error)

	// MarkAllRead flags every matching unread entry and returns how many
	// changed.
	MarkAllRead(ctx context.Context, tenantID, protocolID string, f Filter, readerID string, at time.Time) (int, error)

	CountUnread(ctx context.Context, tenantID, protocolID string, f Filter) (int, error)
}
