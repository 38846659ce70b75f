package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/labstack/echo/v4"

	"github.com/sqlbots/license-admin/internal/models"
)

// Search queries the audit index with a fuzzy multi_match over the fields an
// operator would grep for.
func Search(ctx context.Context, es *elasticsearch.Client, index, query string, from, size int) (int64, []models.AuditLog, error) {
	body := map[string]interface{}{
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"action^2", "ip_address", "details", "user_agent"},
				"fuzziness": "AUTO",
			},
		},
		"sort": []map[string]interface{}{
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"from": from,
		"size": size,
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, echo.NewHTTPError(http.StatusBadRequest, "search error: %w", err)
	}

	res, err := es.Search(
		es.Search.WithContext(ctx),
		es.Search.WithIndex(index),
		es.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, echo.NewHTTPError(http.StatusBadRequest, "search error: %w", err)
	}

	defer res.Body.Close()
	if res.IsError() {
		return 0, nil, echo.NewHTTPError(http.StatusBadRequest, "search error: "+res.Status())
	}

	var r struct {
		Hits struct {
			Total struct{ Value int64 } `json:"total"`
			Hits  []struct {
				Source models.AuditLog `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	entries := make([]models.AuditLog, len(r.Hits.Hits))
	for i, hit := range r.Hits.Hits {
		entries[i] = hit.Source
	}
	return r.Hits.Total.Value, entries, nil
}
