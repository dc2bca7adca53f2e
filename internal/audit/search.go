package audit

import (
	"context"
	"fmt"

	"incident-console/internal/client"
	"incident-console/internal/models"
)

// Search serves the admin operator-logs page from the Elasticsearch
// index maintained by ElasticSink.
type Search struct {
	es    *client.ESClient
	index string
}

func NewSearch(es *client.ESClient, index string) *Search {
	return &Search{es: es, index: index}
}

type searchResult struct {
	Hits struct {
		Hits []struct {
			Source models.AuditRecord `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ByOperator returns the most recent activity for one operator, newest
// first. An empty operatorID returns activity across all operators.
func (s *Search) ByOperator(ctx context.Context, operatorID string, limit int) ([]models.AuditRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := map[string]interface{}{
		"size": limit,
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}
	if operatorID != "" {
		query["query"] = map[string]interface{}{
			"term": map[string]interface{}{
				"operator_id": operatorID,
			},
		}
	}

	res, err := s.es.Search(ctx, s.index, query)
	if err != nil {
		return nil, fmt.Errorf("audit search failed: %w", err)
	}

	var parsed searchResult
	if err := s.es.ParseResponse(res, &parsed); err != nil {
		return nil, fmt.Errorf("audit search failed: %w", err)
	}

	records := make([]models.AuditRecord, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		records = append(records, hit.Source)
	}
	return records, nil
}
