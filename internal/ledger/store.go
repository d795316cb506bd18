package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/orkutrevival/backend/internal/models"
	"gorm.io/gorm"
)

// Store is the local, transactional copy of the activity ledger
type Store struct {
	db        *gorm.DB
	retention int
}

// NewStore creates a store keeping at most retention entries
func NewStore(db *gorm.DB, retention int) *Store {
	if retention <= 0 {
		retention = 100
	}
	return &Store{db: db, retention: retention}
}

// Stats summarises the local ledger
type Stats struct {
	TotalActivities int64            `json:"totalActivities"`
	UniqueUsers     int64            `json:"uniqueUsers"`
	ActionCounts    map[string]int64 `json:"actionCounts"`
}

// Append stores entry unless one with the same idempotency key exists, in
// which case the existing row is returned and created is false. The table
// is trimmed to the newest retention entries in the same transaction.
func (s *Store) Append(ctx context.Context, entry *models.ActivityEntry) (stored *models.ActivityEntry, created bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if entry.IdempotencyKey != "" {
			var existing models.ActivityEntry
			err := tx.Where("idempotency_key = ?", entry.IdempotencyKey).First(&existing).Error
			if err == nil {
				stored = &existing
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}

		if err := tx.Create(entry).Error; err != nil {
			return err
		}
		stored, created = entry, true
		return s.trim(tx)
	})
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// trim deletes everything older than the newest retention rows
func (s *Store) trim(tx *gorm.DB) error {
	var stale []string
	err := tx.Model(&models.ActivityEntry{}).
		Order("created_at DESC, id DESC").
		Offset(s.retention).
		Limit(1000).
		Pluck("id", &stale).Error
	if err != nil || len(stale) == 0 {
		return err
	}
	return tx.Where("id IN ?", stale).Delete(&models.ActivityEntry{}).Error
}

// MarkSynced records that ids are held by the remote commit sha
func (s *Store) MarkSynced(ctx context.Context, ids []string, sha string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.ActivityEntry{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{"synced": true, "commit_sha": sha}).Error
}

// Unsynced returns entries not yet mirrored remotely, oldest first
func (s *Store) Unsynced(ctx context.Context, limit int) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := s.db.WithContext(ctx).
		Where("synced = ?", false).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ForUser returns userID's entries, newest first
func (s *Store) ForUser(ctx context.Context, userID string, limit int) ([]models.ActivityEntry, error) {
	var entries []models.ActivityEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Stats counts entries, distinct users and entries per action
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	db := s.db.WithContext(ctx)
	stats := &Stats{ActionCounts: map[string]int64{}}

	if err := db.Model(&models.ActivityEntry{}).Count(&stats.TotalActivities).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.ActivityEntry{}).Distinct("user_id").Count(&stats.UniqueUsers).Error; err != nil {
		return nil, err
	}

	var rows []struct {
		Action string
		Count  int64
	}
	err := db.Model(&models.ActivityEntry{}).
		Select("action, COUNT(*) AS count").
		Group("action").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.ActionCounts[r.Action] = r.Count
	}
	return stats, nil
}

// Prune deletes entries created before cutoff
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.ActivityEntry{})
	return res.RowsAffected, res.Error
}
