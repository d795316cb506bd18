package search

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/orkutrevival/backend/internal/logger"
	"go.uber.org/zap"
)

// IndexVersion tracks the current mapping version. Increment it whenever
// a mapping changes.
// v1: communities and profiles
const IndexVersion = 1

// CheckIndexVersion reports whether the communities index is missing or
// was created with an older mapping
func (c *Client) CheckIndexVersion(ctx context.Context) (bool, error) {
	res, err := c.es.Indices.GetMapping(
		c.es.Indices.GetMapping.WithIndex(IndexCommunities),
		c.es.Indices.GetMapping.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("failed to get index mapping: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		if res.StatusCode == 404 {
			return true, nil
		}
		return false, fmt.Errorf("error getting index mapping: %s", res.Status())
	}

	var mappingResp map[string]struct {
		Mappings struct {
			Meta struct {
				Version int `json:"version"`
			} `json:"_meta"`
		} `json:"mappings"`
	}
	if err := json.NewDecoder(res.Body).Decode(&mappingResp); err != nil {
		// unreadable mapping, rebuild it
		return true, nil
	}

	return mappingResp[IndexCommunities].Mappings.Meta.Version < IndexVersion, nil
}

// EnsureIndices creates missing indices and recreates outdated ones. It
// returns true when the indices are new and need a full reindex.
func (c *Client) EnsureIndices(ctx context.Context) (bool, error) {
	outdated, err := c.CheckIndexVersion(ctx)
	if err != nil {
		return false, err
	}

	if outdated {
		logger.Log.Info("Search indices missing or outdated, recreating",
			zap.Int("version", IndexVersion))
		if err := c.DropIndices(ctx); err != nil {
			return false, err
		}
	}

	if err := c.InitializeIndices(ctx); err != nil {
		return false, err
	}
	return outdated, nil
}
