package calls

import (
	"context"
	"time"

	"github.com/orkutrevival/backend/internal/logger"
	"go.uber.org/zap"
)

// Sweeper periodically turns unanswered ringing calls into missed calls
type Sweeper struct {
	service  *Service
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	done     chan struct{}
}

// NewSweeper creates a sweeper checking every interval
func NewSweeper(service *Service, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Sweeper{
		service:  service,
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins sweeping in the background
func (s *Sweeper) Start() {
	logger.Log.Info("Starting call sweeper",
		zap.Duration("interval", s.interval),
		zap.Duration("ring_timeout", s.service.RingTimeout()))
	go s.run()
}

// Stop stops the sweeper and waits for an in-flight pass to finish
func (s *Sweeper) Stop() {
	logger.Log.Info("Stopping call sweeper")
	s.cancel()
	<-s.done
}

func (s *Sweeper) run() {
	defer close(s.done)

	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Sweeper) sweep() {
	expired, err := s.service.ExpireRinging(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			logger.ErrorWithFields("Call sweep failed", err)
		}
		return
	}
	if expired > 0 {
		logger.Log.Info("Expired unanswered calls", zap.Int("count", expired))
	}
}
