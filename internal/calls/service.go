// Package calls owns the state of audio and video calls. Media flows
// browser to browser; the server records who called whom, moves each call
// through ringing, connected and its terminal state, and tells both parties
// about every change.
package calls

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/metrics"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrInvalidCallType   = errors.New("call_type must be audio or video")
	ErrSelfCall          = errors.New("cannot call yourself")
	ErrCallerNotFound    = errors.New("caller profile not found")
	ErrReceiverNotFound  = errors.New("receiver profile not found")
	ErrBusy              = errors.New("a participant is already in a call")
	ErrCallNotFound      = errors.New("call not found")
	ErrNotParticipant    = errors.New("not a participant of this call")
	ErrInvalidTransition = errors.New("call cannot change to that state")
	ErrRingTimedOut      = errors.New("call rang past the timeout")
)

// Notifier delivers realtime events to a profile
type Notifier interface {
	Notify(userID, eventType string, payload interface{})
}

// Service manages the call lifecycle
type Service struct {
	db           *gorm.DB
	notifier     Notifier
	ringTimeout  time.Duration
	historyLimit int
	now          func() time.Time
}

// NewService creates a call service. notifier may be nil.
func NewService(db *gorm.DB, notifier Notifier, cfg config.CallsConfig) *Service {
	if cfg.RingTimeout <= 0 {
		cfg.RingTimeout = 30 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Service{
		db:           db,
		notifier:     notifier,
		ringTimeout:  cfg.RingTimeout,
		historyLimit: cfg.HistoryLimit,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// RingTimeout is how long a call may ring before it is missed
func (s *Service) RingTimeout() time.Duration {
	return s.ringTimeout
}

// GenerateCallID builds call_{type}_{lowId}_{highId}_{unixms}
func GenerateCallID(callType models.CallType, a, b string, at time.Time) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return fmt.Sprintf("call_%s_%s_%s_%d", callType, ids[0], ids[1], at.UnixMilli())
}

// FormatDuration renders seconds as mm:ss
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

// Start places a ringing call from callerID to receiverID
func (s *Service) Start(ctx context.Context, callerID, receiverID string, callType models.CallType) (*models.Call, error) {
	if !callType.Valid() {
		return nil, ErrInvalidCallType
	}
	if callerID == receiverID {
		return nil, ErrSelfCall
	}

	now := s.now()
	var call models.Call

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		locked, err := lockProfiles(tx, callerID, receiverID)
		if err != nil {
			return err
		}
		caller, ok := locked[callerID]
		if !ok {
			return ErrCallerNotFound
		}
		if _, ok := locked[receiverID]; !ok {
			return ErrReceiverNotFound
		}

		busy, err := s.countLive(tx, now, "", callerID, receiverID)
		if err != nil {
			return err
		}
		if busy > 0 {
			return ErrBusy
		}

		name := caller.Name()
		if name == "" {
			name = "Usuário"
		}
		call = models.Call{
			ID:         GenerateCallID(callType, callerID, receiverID, now),
			CallerID:   callerID,
			ReceiverID: receiverID,
			CallType:   callType,
			Status:     models.CallRinging,
			CallerInfo: models.CallerInfo{
				ID:       caller.ID,
				Name:     name,
				Photo:    caller.PhotoURL,
				Username: caller.Username,
			},
			StartedAt: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.Create(&call).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.Get().CallsStartedTotal.WithLabelValues(string(callType)).Inc()
	logger.Log.Info("Call started",
		logger.WithCallID(call.ID),
		logger.WithUserID(callerID),
		zap.String("receiver_id", receiverID),
		zap.String("call_type", string(callType)))

	s.notify(call.ReceiverID, websocket.MessageTypeCallIncoming, &call)
	s.notify(call.CallerID, websocket.MessageTypeCallStarted, &call)
	return &call, nil
}

// lockProfiles loads the given profiles FOR UPDATE in id order so two
// transactions touching the same pair serialize instead of deadlocking.
// Missing profiles are absent from the result.
func lockProfiles(tx *gorm.DB, ids ...string) (map[string]models.Profile, error) {
	var rows []models.Profile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.Profile, len(rows))
	for _, p := range rows {
		byID[p.ID] = p
	}
	return byID, nil
}

// countLive counts connected calls and still ringing calls touching either
// profile, other than exclude. Ringing calls past the timeout do not make
// anyone busy even if the sweeper has not reached them yet.
func (s *Service) countLive(tx *gorm.DB, now time.Time, exclude string, a, b string) (int64, error) {
	var n int64
	query := tx.Model(&models.Call{}).
		Where("(caller_id IN ? OR receiver_id IN ?)", []string{a, b}, []string{a, b}).
		Where("(status = ? OR (status = ? AND started_at > ?))",
			models.CallConnected, models.CallRinging, s.ringCutoff(now))
	if exclude != "" {
		query = query.Where("id <> ?", exclude)
	}
	err := query.Count(&n).Error
	return n, err
}

func (s *Service) ringCutoff(now time.Time) time.Time {
	return now.Add(-s.ringTimeout)
}

// transition describes one legal state change
type transition struct {
	from         []models.CallStatus
	to           models.CallStatus
	receiverOnly bool
	event        string
}

var (
	acceptTransition = transition{
		from:         []models.CallStatus{models.CallRinging},
		to:           models.CallConnected,
		receiverOnly: true,
		event:        websocket.MessageTypeCallAccepted,
	}
	rejectTransition = transition{
		from:         []models.CallStatus{models.CallRinging},
		to:           models.CallDeclined,
		receiverOnly: true,
		event:        websocket.MessageTypeCallDeclined,
	}
	endTransition = transition{
		from:  []models.CallStatus{models.CallRinging, models.CallConnected},
		to:    models.CallEnded,
		event: websocket.MessageTypeCallEnded,
	}
	missedTransition = transition{
		from:  []models.CallStatus{models.CallRinging},
		to:    models.CallMissed,
		event: websocket.MessageTypeCallMissed,
	}
)

func (t transition) allowedFrom(status models.CallStatus) bool {
	for _, s := range t.from {
		if s == status {
			return true
		}
	}
	return false
}

// Accept connects a ringing call. Only the receiver may accept.
func (s *Service) Accept(ctx context.Context, callID, actorID string) (*models.Call, error) {
	return s.apply(ctx, callID, actorID, acceptTransition, 0)
}

// Reject declines a ringing call. Only the receiver may reject.
func (s *Service) Reject(ctx context.Context, callID, actorID string) (*models.Call, error) {
	return s.apply(ctx, callID, actorID, rejectTransition, 0)
}

// End hangs up a ringing or connected call. durationSeconds is the
// client-measured talk time and is ignored for calls that never connected.
func (s *Service) End(ctx context.Context, callID, actorID string, durationSeconds int) (*models.Call, error) {
	return s.apply(ctx, callID, actorID, endTransition, durationSeconds)
}

// MarkMissed moves a ringing call to missed
func (s *Service) MarkMissed(ctx context.Context, callID, actorID string) (*models.Call, error) {
	return s.apply(ctx, callID, actorID, missedTransition, 0)
}

// apply runs t against callID. An empty actorID is the system (the ring
// timeout) and skips the participant check. The update is conditional on
// the current status so concurrent transitions cannot both succeed.
func (s *Service) apply(ctx context.Context, callID, actorID string, t transition, durationSeconds int) (*models.Call, error) {
	now := s.now()
	var call models.Call

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", callID).First(&call).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCallNotFound
			}
			return err
		}

		if actorID != "" {
			if !call.Involves(actorID) {
				return ErrNotParticipant
			}
			if t.receiverOnly && call.ReceiverID != actorID {
				return ErrNotParticipant
			}
		}
		if !t.allowedFrom(call.Status) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, call.Status, t.to)
		}

		if t.to == models.CallConnected {
			if err := s.checkAnswerable(tx, &call, now); err != nil {
				return err
			}
		}

		updates := map[string]interface{}{"status": t.to, "updated_at": now}
		switch t.to {
		case models.CallConnected:
			updates["answered_at"] = now
		default:
			updates["ended_at"] = now
			updates["duration_seconds"] = talkTime(&call, now, durationSeconds)
		}

		res := tx.Model(&models.Call{}).
			Where("id = ? AND status IN ?", callID, t.from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: call changed concurrently", ErrInvalidTransition)
		}

		if t.to == models.CallMissed {
			if err := createMissedNotification(tx, &call); err != nil {
				return err
			}
		}
		return tx.Where("id = ?", callID).First(&call).Error
	})
	if err != nil {
		return nil, err
	}

	s.record(&call)
	s.notify(call.CallerID, t.event, &call)
	s.notify(call.ReceiverID, t.event, &call)
	return &call, nil
}

// checkAnswerable refuses to connect a ring that already timed out or a call
// whose participants picked up another call meanwhile
func (s *Service) checkAnswerable(tx *gorm.DB, call *models.Call, now time.Time) error {
	if !call.StartedAt.After(s.ringCutoff(now)) {
		return fmt.Errorf("%w: %w", ErrInvalidTransition, ErrRingTimedOut)
	}
	if _, err := lockProfiles(tx, call.CallerID, call.ReceiverID); err != nil {
		return err
	}
	busy, err := s.countLive(tx, now, call.ID, call.CallerID, call.ReceiverID)
	if err != nil {
		return err
	}
	if busy > 0 {
		return ErrBusy
	}
	return nil
}

func talkTime(call *models.Call, now time.Time, reported int) int {
	if call.AnsweredAt == nil {
		return 0
	}
	if reported > 0 {
		return reported
	}
	return int(now.Sub(*call.AnsweredAt).Seconds())
}

func createMissedNotification(tx *gorm.DB, call *models.Call) error {
	kind := "áudio"
	if call.CallType == models.CallVideo {
		kind = "vídeo"
	}
	return tx.Create(&models.Notification{
		ProfileID:     call.ReceiverID,
		FromProfileID: call.CallerID,
		Type:          models.NotificationCallMissed,
		Title:         "Chamada perdida",
		Message:       fmt.Sprintf("Chamada de %s perdida de %s", kind, call.CallerInfo.Name),
		ActionURL:     "/profile/" + call.CallerID,
		RelatedID:     call.ID,
	}).Error
}

func (s *Service) record(call *models.Call) {
	m := metrics.Get()
	if call.Status.Terminal() {
		m.CallsFinishedTotal.WithLabelValues(string(call.CallType), string(call.Status)).Inc()
		if call.DurationSeconds > 0 {
			m.CallDuration.WithLabelValues(string(call.CallType)).Observe(float64(call.DurationSeconds))
		}
	}
	logger.Log.Info("Call state changed",
		logger.WithCallID(call.ID),
		zap.String("status", string(call.Status)),
		zap.Int("duration_seconds", call.DurationSeconds))
}

func (s *Service) notify(userID, event string, call *models.Call) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(userID, event, call)
}

// Get loads a call visible to userID
func (s *Service) Get(ctx context.Context, callID, userID string) (*models.Call, error) {
	var call models.Call
	if err := s.db.WithContext(ctx).Where("id = ?", callID).First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, err
	}
	if !call.Involves(userID) {
		return nil, ErrNotParticipant
	}
	return &call, nil
}

// PeerFor returns the other participant of a live call
func (s *Service) PeerFor(ctx context.Context, callID, userID string) (string, error) {
	call, err := s.Get(ctx, callID, userID)
	if err != nil {
		return "", err
	}
	if call.Status.Terminal() {
		return "", fmt.Errorf("%w: call is %s", ErrInvalidTransition, call.Status)
	}
	return call.PeerOf(userID), nil
}

// HistoryEntry is a call as shown in a profile's call log
type HistoryEntry struct {
	models.Call
	Direction         string `json:"direction"`
	PeerID            string `json:"peer_id"`
	DurationFormatted string `json:"duration_formatted"`
}

// History lists the newest calls where userID took part
func (s *Service) History(ctx context.Context, userID string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}

	var rows []models.Call
	err := s.db.WithContext(ctx).
		Where("caller_id = ? OR receiver_id = ?", userID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(rows))
	for _, c := range rows {
		direction := "incoming"
		if c.CallerID == userID {
			direction = "outgoing"
		}
		entries = append(entries, HistoryEntry{
			Call:              c,
			Direction:         direction,
			PeerID:            c.PeerOf(userID),
			DurationFormatted: FormatDuration(c.DurationSeconds),
		})
	}
	return entries, nil
}

// Active returns userID's ringing or connected call
func (s *Service) Active(ctx context.Context, userID string) (*models.Call, error) {
	var call models.Call
	err := s.db.WithContext(ctx).
		Where("(caller_id = ? OR receiver_id = ?)", userID, userID).
		Where("(status = ? OR (status = ? AND started_at > ?))",
			models.CallConnected, models.CallRinging, s.ringCutoff(s.now())).
		Order("created_at DESC").
		First(&call).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCallNotFound
		}
		return nil, err
	}
	return &call, nil
}

// ExpireRinging marks every call that has rung longer than the timeout as
// missed and returns how many were changed
func (s *Service) ExpireRinging(ctx context.Context) (int, error) {
	cutoff := s.ringCutoff(s.now())

	var stale []models.Call
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at <= ?", models.CallRinging, cutoff).
		Find(&stale).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, call := range stale {
		if _, err := s.MarkMissed(ctx, call.ID, ""); err != nil {
			if errors.Is(err, ErrInvalidTransition) {
				continue
			}
			logger.ErrorWithFields("Failed to expire ringing call", err, logger.WithCallID(call.ID))
			continue
		}
		expired++
	}
	return expired, nil
}
