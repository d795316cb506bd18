package search

import (
	"context"
	"sync"
	"time"

	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const reindexBatch = 200

// Reindex writes every active community and every profile to the index and
// drops deactivated communities. It returns the number of documents written.
func Reindex(ctx context.Context, client *Client, db *gorm.DB) (int, error) {
	written := 0

	var communities []models.Community
	err := db.WithContext(ctx).Model(&models.Community{}).
		FindInBatches(&communities, reindexBatch, func(tx *gorm.DB, batch int) error {
			for i := range communities {
				c := &communities[i]
				var err error
				if c.IsActive {
					err = client.IndexCommunity(ctx, c)
					written++
				} else {
					err = client.DeleteCommunity(ctx, c.ID)
				}
				if err != nil {
					return err
				}
			}
			return nil
		}).Error
	if err != nil {
		return written, err
	}

	var profiles []models.Profile
	err = db.WithContext(ctx).Model(&models.Profile{}).
		FindInBatches(&profiles, reindexBatch, func(tx *gorm.DB, batch int) error {
			for i := range profiles {
				if err := client.IndexProfile(ctx, &profiles[i]); err != nil {
					return err
				}
				written++
			}
			return nil
		}).Error
	return written, err
}

// Reindexer periodically rewrites the indices from the database so writes
// that failed to reach Elasticsearch are repaired
type Reindexer struct {
	service   *Service
	db        *gorm.DB
	interval  time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex
}

// NewReindexer creates a reindexer for service's client
func NewReindexer(service *Service, db *gorm.DB, interval time.Duration) *Reindexer {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &Reindexer{
		service:  service,
		db:       db,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic loop. It does nothing without an index.
func (r *Reindexer) Start() {
	if !r.service.Enabled() {
		return
	}
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = true
	r.mu.Unlock()

	logger.Log.Info("Starting search reindexer", zap.Duration("interval", r.interval))

	r.wg.Add(1)
	go r.loop()
}

// Stop waits for the loop to exit
func (r *Reindexer) Stop() {
	r.mu.Lock()
	if !r.isRunning {
		r.mu.Unlock()
		return
	}
	r.isRunning = false
	r.mu.Unlock()

	close(r.stopChan)
	r.wg.Wait()
	logger.Log.Info("Search reindexer stopped")
}

func (r *Reindexer) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.run()
		}
	}
}

func (r *Reindexer) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	n, err := Reindex(ctx, r.service.client, r.db)
	if err != nil {
		logger.WarnWithFields("Search reindex failed", err, zap.Int("written", n))
		return
	}
	r.service.cache.Invalidate(ctx)
	logger.Log.Info("Search reindex completed",
		zap.Int("documents", n),
		zap.Duration("duration", time.Since(start)))
}
