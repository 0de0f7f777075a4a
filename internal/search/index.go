// Package search indexes protocols for full-text lookup by number, title
// and description.
package search

import (
	"context"
	"time"
)

// Document is the indexed projection of a protocol.
type Document struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId"`
	Number       string `json:"number"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	CitizenID    string `json:"citizenId"`
	DepartmentID string `json:"departmentId"`
	ModuleType   string `json:"moduleType,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}

// Query is a tenant-scoped text search with optional exact filters.
type Query struct {
	TenantID     string
	Text         string
	Status       string
	DepartmentID string
	ModuleType   string
	CitizenID    string
	Offset       int
	Limit        int
}

// Hits is one page of matching protocol ids, best match first.
type Hits struct {
	IDs   []string
	Total int
	Took  time.Duration
}

// Index stores and queries protocol documents.
type Index interface {
	Upsert(ctx context.Context, doc Document) error
	Delete(ctx context.Context, tenantID, id string) error
	Search(ctx context.Context, q Query) (Hits, error)
}

const (
	defaultLimit = 20
	maxLimit     = 100
)

func normalizeLimit(n int) int {
	if n <= 0 {
		return defaultLimit
	}
	if n > maxLimit {
		return maxLimit
	}
	return n
}
