package elasticsearch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/goccy/go-json"

	"github.com/DeafMist/festival-radar/backend/internal/logger"
	"github.com/DeafMist/festival-radar/backend/internal/models"
)

// Client wraps go-elasticsearch with helpers tailored to this project.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// Document is the indexed form of an event. RunID ties it to the build that
// produced it so documents from superseded builds can be pruned.
type Document struct {
	models.Event
	RunID     string    `json:"run_id"`
	DayRank   int       `json:"day_rank"`
	IndexedAt time.Time `json:"indexed_at"`
}

// SearchParams narrow the search endpoint query.
type SearchParams struct {
	Query string
	Types []string
	Days  []string
	From  int
	Size  int
	Sort  string
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64          `json:"total"`
	Items []models.Event `json:"items"`
}

var indexMapping = map[string]any{
	"mappings": map[string]any{
		"properties": map[string]any{
			"id":          map[string]any{"type": "keyword"},
			"run_id":      map[string]any{"type": "keyword"},
			"type":        map[string]any{"type": "keyword"},
			"day":         map[string]any{"type": "keyword"},
			"day_rank":    map[string]any{"type": "integer"},
			"time":        map[string]any{"type": "keyword"},
			"tags":        map[string]any{"type": "keyword"},
			"slug":        map[string]any{"type": "keyword"},
			"title":       map[string]any{"type": "text"},
			"description": map[string]any{"type": "text"},
			"speaker":     map[string]any{"type": "text"},
			"location":    map[string]any{"type": "text"},
			"indexed_at":  map[string]any{"type": "date"},
		},
	},
}

// New instantiates the Elasticsearch client.
func New(addr, index string, log *slog.Logger) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	return &Client{es: es, index: index, log: logger.OrDiscard(log)}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the index with keyword mappings when it is missing.
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	payload, err := json.Marshal(indexMapping)
	if err != nil {
		return fmt.Errorf("marshal mapping: %w", err)
	}
	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another replica may have won the race.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}
	c.log.Info("created index", slog.String("index", c.index))
	return nil
}

// IndexEvents writes every event of a build with one bulk request.
func (c *Client) IndexEvents(ctx context.Context, runID string, at time.Time, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		meta := map[string]any{"index": map[string]any{"_index": c.index, "_id": ev.ID}}
		if err := enc.Encode(meta); err != nil {
			return fmt.Errorf("marshal bulk meta: %w", err)
		}
		doc := Document{Event: ev, RunID: runID, DayRank: ev.Day.Rank(), IndexedAt: at.UTC()}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("marshal doc: %w", err)
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "wait_for",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("bulk index failed: %s", strings.TrimSpace(string(body)))
	}

	var parsed struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decode bulk response: %w", err)
	}
	if parsed.Errors {
		failed := make([]string, 0)
		for _, item := range parsed.Items {
			for _, op := range item {
				if op.Status >= http.StatusBadRequest {
					failed = append(failed, op.ID)
				}
			}
		}
		return fmt.Errorf("bulk index rejected %d documents: %s", len(failed), strings.Join(failed, ","))
	}

	c.log.Info("indexed events", slog.String("run_id", runID), slog.Int("count", len(events)))
	return nil
}

// SearchEvents executes a bool query with optional filters.
func (c *Client) SearchEvents(ctx context.Context, params SearchParams) (*SearchResult, error) {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	payload, err := json.Marshal(searchBody(params))
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Event, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source.Event)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

func searchBody(params SearchParams) map[string]any {
	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 2)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":     params.Query,
				"fields":    []string{"title^3", "speaker^2", "description", "location"},
				"fuzziness": "AUTO",
			},
		})
	}
	if len(params.Types) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"type": params.Types},
		})
	}
	if len(params.Days) > 0 {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"day": params.Days},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	body := map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query": map[string]any{
			"bool": boolQuery,
		},
	}

	if params.Sort == "" {
		body["sort"] = []map[string]any{
			{"day_rank": map[string]any{"order": "asc"}},
			{"time": map[string]any{"order": "asc"}},
		}
		return body
	}

	parts := strings.Split(params.Sort, ":")
	order := "asc"
	field := parts[0]
	if len(parts) > 1 && parts[1] != "" {
		order = parts[1]
	}
	body["sort"] = []map[string]any{
		{field: map[string]any{"order": order}},
	}
	return body
}

// DeleteSupersededRuns removes documents written by any build other than
// runID.
func (c *Client) DeleteSupersededRuns(ctx context.Context, runID string) (int64, error) {
	return c.deleteByQuery(ctx, map[string]any{
		"bool": map[string]any{
			"must_not": []map[string]any{
				{"term": map[string]any{"run_id": runID}},
			},
		},
	}, 1000)
}

// DeleteOlderThan removes documents indexed before now-maxAge using batched
// delete-by-query. It loops until a batch returns fewer deleted documents
// than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	return c.deleteByQuery(ctx, map[string]any{
		"range": map[string]any{
			"indexed_at": map[string]any{
				"lte": cutoff,
			},
		},
	}, batchSize)
}

func (c *Client) deleteByQuery(ctx context.Context, query map[string]any, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	payload, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	totalDeleted := int64(0)
	for {
		res, err := c.es.DeleteByQuery(
			[]string{c.index},
			bytes.NewReader(payload),
			c.es.DeleteByQuery.WithContext(ctx),
			c.es.DeleteByQuery.WithWaitForCompletion(true),
			c.es.DeleteByQuery.WithConflicts("proceed"),
			c.es.DeleteByQuery.WithScrollSize(batchSize),
		)
		if err != nil {
			return totalDeleted, fmt.Errorf("delete by query: %w", err)
		}

		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			return totalDeleted, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
		}

		var parsed struct {
			Deleted int64 `json:"deleted"`
		}
		if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
			res.Body.Close()
			return totalDeleted, fmt.Errorf("decode delete response: %w", err)
		}
		res.Body.Close()

		totalDeleted += parsed.Deleted

		if parsed.Deleted < int64(batchSize) {
			break
		}
	}

	return totalDeleted, nil
}

// Health pings Elasticsearch to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}
