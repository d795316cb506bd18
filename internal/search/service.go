// Package search answers community and profile searches. Elasticsearch is
// used when configured; otherwise, and whenever it fails, queries fall back
// to case-insensitive SQL matching.
package search

import (
	"context"
	"strings"

	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/metrics"
	"github.com/orkutrevival/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Source values reported with results
const (
	SourceElasticsearch = "elasticsearch"
	SourceDatabase      = "database"
)

// CommunityResult is one page of communities
type CommunityResult struct {
	Communities []models.Community
	Total       int64
	Source      string
}

// ProfileResult is one page of profiles
type ProfileResult struct {
	Profiles []models.Profile
	Total    int64
	Source   string
}

// Service routes searches to Elasticsearch or the database
type Service struct {
	client *Client
	db     *gorm.DB
	cache  *ResultCache
}

// NewService creates a search service. client and cache may be nil.
func NewService(client *Client, db *gorm.DB, cache *ResultCache) *Service {
	return &Service{client: client, db: db, cache: cache}
}

// Enabled reports whether an index backs the service
func (s *Service) Enabled() bool {
	return s != nil && s.client != nil
}

// Client returns the Elasticsearch client, nil when not configured
func (s *Service) Client() *Client {
	return s.client
}

// Communities returns one page of active communities matching q
func (s *Service) Communities(ctx context.Context, q CommunityQuery) (*CommunityResult, error) {
	if s.client != nil {
		hits := s.cache.Get(ctx, "communities", q)
		if hits == nil {
			var err error
			hits, err = s.client.SearchCommunities(ctx, q)
			if err != nil {
				metrics.Get().SearchRequestsTotal.WithLabelValues(SourceElasticsearch, "error").Inc()
				logger.WarnWithFields("Community search failed, using database", err,
					zap.String("query", q.Text))
			} else {
				s.cache.Put(ctx, "communities", q, hits)
			}
		}
		if hits != nil {
			communities, err := s.loadCommunities(ctx, hits.IDs)
			if err != nil {
				return nil, err
			}
			metrics.Get().SearchRequestsTotal.WithLabelValues(SourceElasticsearch, "ok").Inc()
			return &CommunityResult{Communities: communities, Total: hits.Total, Source: SourceElasticsearch}, nil
		}
	}

	result, err := s.communitiesFromDB(ctx, q)
	if err != nil {
		metrics.Get().SearchRequestsTotal.WithLabelValues(SourceDatabase, "error").Inc()
		return nil, err
	}
	metrics.Get().SearchRequestsTotal.WithLabelValues(SourceDatabase, "ok").Inc()
	return result, nil
}

func (s *Service) communitiesFromDB(ctx context.Context, q CommunityQuery) (*CommunityResult, error) {
	query := s.db.WithContext(ctx).Model(&models.Community{}).Where("is_active = ?", true)
	if q.Category != "" && q.Category != models.CategoryAll {
		query = query.Where("category = ?", q.Category)
	}
	if text := strings.TrimSpace(q.Text); text != "" {
		pattern := "%" + strings.ToLower(text) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	query = query.Session(&gorm.Session{})
	result := &CommunityResult{Source: SourceDatabase}
	if err := query.Count(&result.Total).Error; err != nil {
		return nil, err
	}
	err := query.
		Order("members_count DESC, created_at DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&result.Communities).Error
	if err != nil {
		return nil, err
	}
	return result, nil
}

// loadCommunities fetches ids keeping the ranking order. Ids no longer
// active in the database are skipped.
func (s *Service) loadCommunities(ctx context.Context, ids []string) ([]models.Community, error) {
	if len(ids) == 0 {
		return []models.Community{}, nil
	}
	var rows []models.Community
	if err := s.db.WithContext(ctx).Where("id IN ? AND is_active = ?", ids, true).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Community, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	ordered := make([]models.Community, 0, len(rows))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			ordered = append(ordered, c)
		}
	}
	return ordered, nil
}

// Profiles returns one page of profiles matching text
func (s *Service) Profiles(ctx context.Context, text string, limit, offset int) (*ProfileResult, error) {
	if s.client != nil {
		params := map[string]interface{}{"text": text, "limit": limit, "offset": offset}
		hits := s.cache.Get(ctx, "profiles", params)
		if hits == nil {
			var err error
			hits, err = s.client.SearchProfiles(ctx, text, limit, offset)
			if err != nil {
				metrics.Get().SearchRequestsTotal.WithLabelValues(SourceElasticsearch, "error").Inc()
				logger.WarnWithFields("Profile search failed, using database", err)
			} else {
				s.cache.Put(ctx, "profiles", params, hits)
			}
		}
		if hits != nil {
			profiles, err := s.loadProfiles(ctx, hits.IDs)
			if err != nil {
				return nil, err
			}
			metrics.Get().SearchRequestsTotal.WithLabelValues(SourceElasticsearch, "ok").Inc()
			return &ProfileResult{Profiles: profiles, Total: hits.Total, Source: SourceElasticsearch}, nil
		}
	}

	query := s.db.WithContext(ctx).Model(&models.Profile{})
	if text = strings.TrimSpace(text); text != "" {
		pattern := "%" + strings.ToLower(text) + "%"
		query = query.Where("LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?", pattern, pattern)
	}
	query = query.Session(&gorm.Session{})
	result := &ProfileResult{Source: SourceDatabase}
	if err := query.Count(&result.Total).Error; err != nil {
		return nil, err
	}
	if err := query.Order("display_name ASC").Limit(limit).Offset(offset).Find(&result.Profiles).Error; err != nil {
		return nil, err
	}
	metrics.Get().SearchRequestsTotal.WithLabelValues(SourceDatabase, "ok").Inc()
	return result, nil
}

func (s *Service) loadProfiles(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return []models.Profile{}, nil
	}
	var rows []models.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]models.Profile, len(rows))
	for _, r := range rows {
		byID[r.ID] = r
	}
	ordered := make([]models.Profile, 0, len(rows))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

// IndexCommunity updates the index after a write. Failures are logged; the
// reindexer repairs drift.
func (s *Service) IndexCommunity(ctx context.Context, community *models.Community) {
	if !s.Enabled() {
		return
	}
	var err error
	if community.IsActive {
		err = s.client.IndexCommunity(ctx, community)
	} else {
		err = s.client.DeleteCommunity(ctx, community.ID)
	}
	if err != nil {
		logger.WarnWithFields("Failed to index community", err, logger.WithCommunityID(community.ID))
	}
	s.cache.Invalidate(ctx)
}

// RemoveCommunity drops a community from the index
func (s *Service) RemoveCommunity(ctx context.Context, communityID string) {
	if !s.Enabled() {
		return
	}
	if err := s.client.DeleteCommunity(ctx, communityID); err != nil {
		logger.WarnWithFields("Failed to remove community from index", err, logger.WithCommunityID(communityID))
	}
	s.cache.Invalidate(ctx)
}

// IndexProfile updates the profile index after a write
func (s *Service) IndexProfile(ctx context.Context, profile *models.Profile) {
	if !s.Enabled() {
		return
	}
	if err := s.client.IndexProfile(ctx, profile); err != nil {
		logger.WarnWithFields("Failed to index profile", err, logger.WithUserID(profile.ID))
	}
	s.cache.Invalidate(ctx)
}
