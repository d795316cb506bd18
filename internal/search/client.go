package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/telemetry"
)

// Index names
const (
	IndexCommunities = "orkut-communities"
	IndexProfiles    = "orkut-profiles"
)

// ErrNotConfigured is returned by NewClient when no URL is set
var ErrNotConfigured = errors.New("elasticsearch is not configured")

// Client wraps the Elasticsearch client with the service's indices
type Client struct {
	es *elasticsearch.Client
}

// NewClient creates a client for cfg.ElasticsearchURL and verifies the
// connection
func NewClient(ctx context.Context, cfg config.SearchConfig) (*Client, error) {
	if cfg.ElasticsearchURL == "" {
		return nil, ErrNotConfigured
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{strings.TrimRight(cfg.ElasticsearchURL, "/")},
		Transport: telemetry.NewInstrumentedTransport(nil),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := es.Info(es.Info.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: [%s]", res.Status())
	}

	return &Client{es: es}, nil
}

// InitializeIndices creates the search indices when they are missing
func (c *Client) InitializeIndices(ctx context.Context) error {
	if err := c.createIndex(ctx, IndexCommunities, communitiesMapping()); err != nil {
		return fmt.Errorf("failed to create communities index: %w", err)
	}
	if err := c.createIndex(ctx, IndexProfiles, profilesMapping()); err != nil {
		return fmt.Errorf("failed to create profiles index: %w", err)
	}
	return nil
}

func communitiesMapping() map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"_meta": map[string]interface{}{"version": IndexVersion},
			"properties": map[string]interface{}{
				"id": map[string]interface{}{"type": "keyword"},
				"name": map[string]interface{}{
					"type":     "text",
					"analyzer": "standard",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword"},
					},
				},
				"description":   map[string]interface{}{"type": "text", "analyzer": "standard"},
				"category":      map[string]interface{}{"type": "keyword"},
				"tags":          map[string]interface{}{"type": "keyword"},
				"visibility":    map[string]interface{}{"type": "keyword"},
				"members_count": map[string]interface{}{"type": "integer"},
				"is_active":     map[string]interface{}{"type": "boolean"},
				"created_at":    map[string]interface{}{"type": "date"},
			},
		},
	}
}

func profilesMapping() map[string]interface{} {
	return map[string]interface{}{
		"mappings": map[string]interface{}{
			"_meta": map[string]interface{}{"version": IndexVersion},
			"properties": map[string]interface{}{
				"id": map[string]interface{}{"type": "keyword"},
				"username": map[string]interface{}{
					"type":     "text",
					"analyzer": "standard",
					"fields": map[string]interface{}{
						"keyword": map[string]interface{}{"type": "keyword"},
					},
				},
				"display_name": map[string]interface{}{"type": "text", "analyzer": "standard"},
				"bio":          map[string]interface{}{"type": "text", "analyzer": "standard"},
				"location":     map[string]interface{}{"type": "keyword"},
				"created_at":   map[string]interface{}{"type": "date"},
			},
		},
	}
}

// createIndex creates an index with the given mapping unless it exists
func (c *Client) createIndex(ctx context.Context, indexName string, mapping map[string]interface{}) error {
	res, err := c.es.Indices.Exists([]string{indexName}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}
	res.Body.Close()

	if res.StatusCode == 200 {
		return nil
	}

	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(indexName,
		c.es.Indices.Create.WithBody(bytes.NewReader(mappingJSON)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("creating index", res)
	}
	return nil
}

// DropIndices deletes both indices. Missing indices are ignored.
func (c *Client) DropIndices(ctx context.Context) error {
	for _, name := range []string{IndexCommunities, IndexProfiles} {
		if err := c.deleteIndex(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// deleteIndex drops an index; a missing index is not an error
func (c *Client) deleteIndex(ctx context.Context, indexName string) error {
	res, err := c.es.Indices.Delete([]string{indexName}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return responseError("deleting index", res)
	}
	return nil
}

// IndexCommunity writes or replaces the community's document
func (c *Client) IndexCommunity(ctx context.Context, community *models.Community) error {
	return c.index(ctx, IndexCommunities, community.ID, CommunityToDoc(community))
}

// DeleteCommunity removes the community's document
func (c *Client) DeleteCommunity(ctx context.Context, communityID string) error {
	return c.delete(ctx, IndexCommunities, communityID)
}

// IndexProfile writes or replaces the profile's document
func (c *Client) IndexProfile(ctx context.Context, profile *models.Profile) error {
	return c.index(ctx, IndexProfiles, profile.ID, ProfileToDoc(profile))
}

// DeleteProfile removes the profile's document
func (c *Client) DeleteProfile(ctx context.Context, profileID string) error {
	return c.delete(ctx, IndexProfiles, profileID)
}

func (c *Client) index(ctx context.Context, indexName, id string, doc interface{}) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := c.es.Index(indexName, bytes.NewReader(body),
		c.es.Index.WithDocumentID(id),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index %s: %w", indexName, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError("indexing "+indexName, res)
	}
	return nil
}

func (c *Client) delete(ctx context.Context, indexName, id string) error {
	res, err := c.es.Delete(indexName, id, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete from %s: %w", indexName, err)
	}
	defer res.Body.Close()

	// 404 is OK - document doesn't exist
	if res.IsError() && res.StatusCode != 404 {
		return responseError("deleting from "+indexName, res)
	}
	return nil
}

// CommunityQuery filters a community search
type CommunityQuery struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
}

// Hits is the ranked ids of a search and the total match count
type Hits struct {
	IDs   []string `json:"ids"`
	Total int64    `json:"total"`
}

// SearchCommunities ranks active communities by text relevance, then
// members, then age
func (c *Client) SearchCommunities(ctx context.Context, q CommunityQuery) (*Hits, error) {
	filters := []map[string]interface{}{
		{"term": map[string]interface{}{"is_active": true}},
	}
	if q.Category != "" && q.Category != models.CategoryAll {
		filters = append(filters, map[string]interface{}{
			"term": map[string]interface{}{"category": q.Category},
		})
	}

	boolQuery := map[string]interface{}{"filter": filters}
	if q.Text != "" {
		boolQuery["must"] = []map[string]interface{}{
			{
				"multi_match": map[string]interface{}{
					"query":     q.Text,
					"fields":    []string{"name^2", "description", "tags"},
					"fuzziness": "AUTO",
				},
			},
		}
	}

	query := map[string]interface{}{
		"query":   map[string]interface{}{"bool": boolQuery},
		"_source": false,
		"sort": []map[string]interface{}{
			{"_score": map[string]interface{}{"order": "desc"}},
			{"members_count": map[string]interface{}{"order": "desc"}},
			{"created_at": map[string]interface{}{"order": "desc"}},
		},
		"from":             q.Offset,
		"size":             q.Limit,
		"track_total_hits": true,
	}
	return c.execute(ctx, IndexCommunities, query)
}

// SearchProfiles matches profiles by username, display name or bio
func (c *Client) SearchProfiles(ctx context.Context, text string, limit, offset int) (*Hits, error) {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"should": []map[string]interface{}{
					{
						"match": map[string]interface{}{
							"username": map[string]interface{}{
								"query":         text,
								"boost":         2.0,
								"fuzziness":     "AUTO",
								"prefix_length": 1,
							},
						},
					},
					{
						"match": map[string]interface{}{
							"display_name": map[string]interface{}{
								"query":     text,
								"boost":     1.5,
								"fuzziness": "AUTO",
							},
						},
					},
					{
						"match": map[string]interface{}{
							"bio": map[string]interface{}{
								"query": text,
								"boost": 0.5,
							},
						},
					},
				},
				"minimum_should_match": 1,
			},
		},
		"_source":          false,
		"from":             offset,
		"size":             limit,
		"track_total_hits": true,
	}
	return c.execute(ctx, IndexProfiles, query)
}

func (c *Client) execute(ctx context.Context, indexName string, query map[string]interface{}) (*Hits, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indexName),
		c.es.Search.WithBody(bytes.NewReader(queryJSON)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError("searching "+indexName, res)
	}

	var searchResp struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	hits := &Hits{IDs: make([]string, 0, len(searchResp.Hits.Hits)), Total: searchResp.Hits.Total.Value}
	for _, h := range searchResp.Hits.Hits {
		hits.IDs = append(hits.IDs, h.ID)
	}
	return hits, nil
}

func responseError(action string, res *esapi.Response) error {
	var errResp map[string]interface{}
	body, _ := io.ReadAll(res.Body)
	if err := json.Unmarshal(body, &errResp); err != nil {
		return fmt.Errorf("error %s: [%s]", action, res.Status())
	}
	return fmt.Errorf("error %s: [%s] %v", action, res.Status(), errResp["error"])
}
