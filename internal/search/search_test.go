package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

// fakeES implements the handful of endpoints the client calls
type fakeES struct {
	mu         sync.Mutex
	indices    map[string]int
	docs       map[string]map[string]map[string]interface{}
	failSearch bool
	searches   int
}

func newFakeES() *fakeES {
	return &fakeES{
		indices: map[string]int{},
		docs:    map[string]map[string]map[string]interface{}{},
	}
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/":
		_, _ = w.Write([]byte(`{"name":"fake","cluster_name":"test","version":{"number":"9.0.0","build_flavor":"default"},"tagline":"You Know, for Search"}`))

	case len(parts) == 1:
		f.serveIndex(w, r, parts[0])

	case len(parts) == 2 && parts[1] == "_mapping":
		version, ok := f.indices[parts[0]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			parts[0]: map[string]interface{}{
				"mappings": map[string]interface{}{"_meta": map[string]interface{}{"version": version}},
			},
		})

	case len(parts) == 2 && parts[1] == "_search":
		f.serveSearch(w, r, parts[0])

	case len(parts) == 3 && parts[1] == "_doc":
		f.serveDoc(w, r, parts[0], parts[2])

	default:
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unexpected path"}`))
	}
}

func (f *fakeES) serveIndex(w http.ResponseWriter, r *http.Request, name string) {
	_, exists := f.indices[name]
	switch r.Method {
	case http.MethodHead:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
		}
	case http.MethodPut:
		var body struct {
			Mappings struct {
				Meta struct {
					Version int `json:"version"`
				} `json:"_meta"`
			} `json:"mappings"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.indices[name] = body.Mappings.Meta.Version
		f.docs[name] = map[string]map[string]interface{}{}
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	case http.MethodDelete:
		if !exists {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":{"type":"index_not_found_exception"},"status":404}`))
			return
		}
		delete(f.indices, name)
		delete(f.docs, name)
		_, _ = w.Write([]byte(`{"acknowledged":true}`))
	}
}

func (f *fakeES) serveDoc(w http.ResponseWriter, r *http.Request, index, id string) {
	docs, ok := f.docs[index]
	if !ok {
		docs = map[string]map[string]interface{}{}
		f.docs[index] = docs
	}
	switch r.Method {
	case http.MethodPut, http.MethodPost:
		var doc map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&doc)
		docs[id] = doc
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"result":"created"}`))
	case http.MethodDelete:
		if _, ok := docs[id]; !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"result":"not_found"}`))
			return
		}
		delete(docs, id)
		_, _ = w.Write([]byte(`{"result":"deleted"}`))
	}
}

// serveSearch applies term filters and a substring text match, ranking by
// members_count
func (f *fakeES) serveSearch(w http.ResponseWriter, r *http.Request, index string) {
	f.searches++
	if f.failSearch {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"type":"search_phase_execution_exception"},"status":500}`))
		return
	}

	var req struct {
		From  int `json:"from"`
		Size  int `json:"size"`
		Query struct {
			Bool struct {
				Must []struct {
					MultiMatch struct {
						Query string `json:"query"`
					} `json:"multi_match"`
				} `json:"must"`
				Filter []struct {
					Term map[string]interface{} `json:"term"`
				} `json:"filter"`
			} `json:"bool"`
		} `json:"query"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	var matched []map[string]interface{}
	for _, doc := range f.docs[index] {
		ok := true
		for _, filter := range req.Query.Bool.Filter {
			for field, want := range filter.Term {
				if fmt.Sprint(doc[field]) != fmt.Sprint(want) {
					ok = false
				}
			}
		}
		for _, must := range req.Query.Bool.Must {
			text := strings.ToLower(must.MultiMatch.Query)
			haystack := strings.ToLower(fmt.Sprint(doc["name"], " ", doc["description"]))
			if !strings.Contains(haystack, text) {
				ok = false
			}
		}
		if ok {
			matched = append(matched, doc)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i]["members_count"].(float64) > matched[j]["members_count"].(float64)
	})

	total := len(matched)
	end := req.From + req.Size
	if end > total {
		end = total
	}
	hits := []map[string]interface{}{}
	if req.From < total {
		for _, doc := range matched[req.From:end] {
			hits = append(hits, map[string]interface{}{"_id": doc["id"], "_score": 1.0})
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"hits": map[string]interface{}{
			"total": map[string]interface{}{"value": total, "relation": "eq"},
			"hits":  hits,
		},
	})
}

func (f *fakeES) count(index string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.docs[index])
}

func newTestDB(t *testing.T) *gorm.DB {
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedCommunities(t *testing.T, db *gorm.DB) []models.Community {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	communities := []models.Community{
		{Name: "Eu odeio acordar cedo", Description: "Para quem sofre toda manhã", Category: "Humor", MembersCount: 900, IsActive: true, CreatedAt: base},
		{Name: "Rock Nacional", Description: "Legião, Titãs e Paralamas", Category: "Música", MembersCount: 500, IsActive: true, CreatedAt: base.Add(time.Hour)},
		{Name: "Amo Rock", Description: "Guitarras e distorção", Category: "Música", MembersCount: 500, IsActive: true, CreatedAt: base.Add(2 * time.Hour)},
		{Name: "Rock Antigo", Description: "Comunidade encerrada", Category: "Música", MembersCount: 1000, IsActive: true, CreatedAt: base},
	}
	for i := range communities {
		require.NoError(t, db.Create(&communities[i]).Error)
	}
	// a false default would be skipped on insert
	require.NoError(t, db.Model(&communities[3]).Update("is_active", false).Error)
	communities[3].IsActive = false
	return communities
}

func names(communities []models.Community) []string {
	out := make([]string, len(communities))
	for i, c := range communities {
		out[i] = c.Name
	}
	return out
}

func TestCommunitiesFromDatabase(t *testing.T) {
	db := newTestDB(t)
	seedCommunities(t, db)
	svc := NewService(nil, db, nil)
	ctx := context.Background()

	result, err := svc.Communities(ctx, CommunityQuery{Text: "ROCK", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, result.Source)
	assert.Equal(t, int64(2), result.Total)
	// equal members: newest first
	assert.Equal(t, []string{"Amo Rock", "Rock Nacional"}, names(result.Communities))

	result, err = svc.Communities(ctx, CommunityQuery{Category: models.CategoryAll, Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"Eu odeio acordar cedo", "Amo Rock", "Rock Nacional"}, names(result.Communities))

	result, err = svc.Communities(ctx, CommunityQuery{Category: "Humor", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"Eu odeio acordar cedo"}, names(result.Communities))

	result, err = svc.Communities(ctx, CommunityQuery{Text: "titãs", Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, []string{"Rock Nacional"}, names(result.Communities), "description matches too")

	result, err = svc.Communities(ctx, CommunityQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Total)
	assert.Equal(t, []string{"Amo Rock"}, names(result.Communities))
}

func TestProfilesFromDatabase(t *testing.T) {
	db := newTestDB(t)
	for _, p := range []models.Profile{
		{Email: "ana@example.com", Username: "ana", DisplayName: "Ana Souza"},
		{Email: "bia@example.com", Username: "bia", DisplayName: "Beatriz"},
	} {
		p := p
		require.NoError(t, db.Create(&p).Error)
	}

	result, err := NewService(nil, db, nil).Profiles(context.Background(), "SOUZA", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, result.Source)
	require.Len(t, result.Profiles, 1)
	assert.Equal(t, "ana", result.Profiles[0].Username)
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient(context.Background(), config.SearchConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func newTestClient(t *testing.T, fake *fakeES) *Client {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	client, err := NewClient(context.Background(), config.SearchConfig{ElasticsearchURL: server.URL})
	require.NoError(t, err)
	return client
}

func TestEnsureIndicesCreatesOnce(t *testing.T) {
	fake := newFakeES()
	client := newTestClient(t, fake)
	ctx := context.Background()

	created, err := client.EnsureIndices(ctx)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, IndexVersion, fake.indices[IndexCommunities])
	assert.Contains(t, fake.indices, IndexProfiles)

	created, err = client.EnsureIndices(ctx)
	require.NoError(t, err)
	assert.False(t, created)

	fake.indices[IndexCommunities] = IndexVersion - 1
	created, err = client.EnsureIndices(ctx)
	require.NoError(t, err)
	assert.True(t, created, "an older mapping is rebuilt")
}

func TestCommunitiesFromElasticsearch(t *testing.T) {
	fake := newFakeES()
	client := newTestClient(t, fake)
	db := newTestDB(t)
	communities := seedCommunities(t, db)
	ctx := context.Background()

	_, err := client.EnsureIndices(ctx)
	require.NoError(t, err)

	written, err := Reindex(ctx, client, db)
	require.NoError(t, err)
	assert.Equal(t, 3, written)
	assert.Equal(t, 3, fake.count(IndexCommunities))

	svc := NewService(client, db, nil)
	result, err := svc.Communities(ctx, CommunityQuery{Text: "rock", Category: "Música", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, SourceElasticsearch, result.Source)
	assert.Equal(t, int64(2), result.Total)
	assert.ElementsMatch(t, []string{"Rock Nacional", "Amo Rock"}, names(result.Communities))

	// deactivation removes the document
	require.NoError(t, db.Model(&communities[1]).Update("is_active", false).Error)
	communities[1].IsActive = false
	svc.IndexCommunity(ctx, &communities[1])
	assert.Equal(t, 2, fake.count(IndexCommunities))

	result, err = svc.Communities(ctx, CommunityQuery{Text: "rock", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"Amo Rock"}, names(result.Communities))
}

func TestSearchFallsBackToDatabase(t *testing.T) {
	fake := newFakeES()
	fake.failSearch = true
	client := newTestClient(t, fake)
	db := newTestDB(t)
	seedCommunities(t, db)

	result, err := NewService(client, db, nil).Communities(context.Background(), CommunityQuery{Text: "rock", Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, SourceDatabase, result.Source)
	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, 1, fake.searches)
}

func TestResultCacheWithoutRedis(t *testing.T) {
	c := NewResultCache(nil, time.Minute)
	assert.Nil(t, c)
	assert.Nil(t, c.Get(context.Background(), "communities", CommunityQuery{}))
	c.Put(context.Background(), "communities", CommunityQuery{}, &Hits{})
	c.Invalidate(context.Background())
}

func TestReindexerNeedsClient(t *testing.T) {
	r := NewReindexer(NewService(nil, newTestDB(t), nil), nil, time.Minute)
	r.Start()
	r.Stop()
	assert.False(t, r.isRunning)
}
