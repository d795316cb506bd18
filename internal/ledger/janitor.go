package ledger

import (
	"context"
	"time"

	"github.com/orkutrevival/backend/internal/logger"
	"go.uber.org/zap"
)

// Janitor prunes old local ledger entries on an interval
type Janitor struct {
	service  *Service
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	done     chan struct{}
}

// NewJanitor creates a janitor running every interval
func NewJanitor(service *Service, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		service:  service,
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins pruning in the background
func (j *Janitor) Start() {
	logger.Log.Info("Starting ledger janitor", zap.Duration("interval", j.interval))
	go j.run()
}

// Stop stops the janitor
func (j *Janitor) Stop() {
	logger.Log.Info("Stopping ledger janitor")
	j.cancel()
	<-j.done
}

func (j *Janitor) run() {
	defer close(j.done)

	j.prune()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.prune()
		case <-j.ctx.Done():
			return
		}
	}
}

func (j *Janitor) prune() {
	start := time.Now()
	n, err := j.service.Prune(j.ctx)
	if err != nil {
		if j.ctx.Err() == nil {
			logger.ErrorWithFields("Ledger prune failed", err)
		}
		return
	}
	if n > 0 {
		logger.Log.Info("Pruned old ledger entries",
			zap.Int64("deleted", n),
			logger.WithDuration(time.Since(start)))
	}
}
