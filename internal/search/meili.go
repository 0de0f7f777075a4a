package search

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

// IndexUID is the Meilisearch index holding protocol documents.
const IndexUID = "digiurban_protocols"

// MeiliIndex is an Index backed by Meilisearch.
type MeiliIndex struct {
	client meili.ServiceManager
	logger *zap.Logger
}

// NewMeiliIndex connects to Meilisearch and configures the protocol index.
// Configuration failures are logged; the index may already exist.
func NewMeiliIndex(url, apiKey string, logger *zap.Logger) *MeiliIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MeiliIndex{
		client: meili.New(url, meili.WithAPIKey(apiKey)),
		logger: logger,
	}
	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
		return m
	}
	m.configure()
	return m
}

func (m *MeiliIndex) configure() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: IndexUID, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create search index", zap.String("index", IndexUID), zap.Error(err))
	}
	index := m.client.Index(IndexUID)

	filterable := []interface{}{"tenantId", "status", "departmentId", "moduleType", "citizenId"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.logger.Warn("update filterable attributes", zap.Error(err))
	}
	searchable := []string{"number", "title", "description"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.Error(err))
	}
	sortable := []string{"createdAt"}
	if _, err := index.UpdateSortableAttributes(&sortable); err != nil {
		m.logger.Warn("update sortable attributes", zap.Error(err))
	}
}

func (m *MeiliIndex) Upsert(_ context.Context, doc Document) error {
	if _, err := m.client.Index(IndexUID).AddDocuments([]Document{doc}, nil); err != nil {
		return fmt.Errorf("meilisearch index %s: %w", doc.ID, err)
	}
	return nil
}

func (m *MeiliIndex) Delete(_ context.Context, _ string, id string) error {
	if _, err := m.client.Index(IndexUID).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("meilisearch delete %s: %w", id, err)
	}
	return nil
}

func (m *MeiliIndex) Search(_ context.Context, q Query) (Hits, error) {
	start := time.Now()
	resp, err := m.client.Index(IndexUID).Search(q.Text, &meili.SearchRequest{
		Limit:                int64(normalizeLimit(q.Limit)),
		Offset:               int64(max(q.Offset, 0)),
		Filter:               buildFilter(q),
		AttributesToRetrieve: []string{"id"},
		Sort:                 []string{"createdAt:desc"},
	})
	if err != nil {
		return Hits{}, fmt.Errorf("meilisearch search: %w", err)
	}

	ids := make([]string, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		var id string
		if raw, ok := hit["id"]; ok && json.Unmarshal(raw, &id) == nil {
			ids = append(ids, id)
		}
	}
	return Hits{IDs: ids, Total: int(resp.EstimatedTotalHits), Took: time.Since(start)}, nil
}

// HealthCheck reports whether Meilisearch answers.
func (m *MeiliIndex) HealthCheck(context.Context) error {
	_, err := m.client.Health()
	return err
}

// buildFilter renders the tenant scope and exact filters as Meilisearch
// filter expressions, ANDed together.
func buildFilter(q Query) []string {
	filters := []string{fmt.Sprintf("tenantId = %q", q.TenantID)}
	for _, f := range []struct{ attr, value string }{
		{"status", q.Status},
		{"departmentId", q.DepartmentID},
		{"moduleType", q.ModuleType},
		{"citizenId", q.CitizenID},
	} {
		if f.value != "" {
			filters = append(filters, fmt.Sprintf("%s = %q", f.attr, f.value))
		}
	}
	return filters
}
