package calls

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/orkutrevival/backend/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	_ = logger.Initialize("error", "")
	os.Exit(m.Run())
}

type event struct {
	userID string
	kind   string
	callID string
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []event
}

func (r *recordingNotifier) Notify(userID, eventType string, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := event{userID: userID, kind: eventType}
	if call, ok := payload.(*models.Call); ok {
		e.callID = call.ID
	}
	r.events = append(r.events, e)
}

func (r *recordingNotifier) kinds(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.userID == userID {
			out = append(out, e.kind)
		}
	}
	return out
}

type CallServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	service  *Service
	notifier *recordingNotifier
	clock    time.Time
	ana      *models.Profile
	bruno    *models.Profile
	carla    *models.Profile
}

func (s *CallServiceTestSuite) SetupTest() {
	db, err := database.OpenMemory(s.T().Name())
	s.Require().NoError(err)
	s.db = db

	s.notifier = &recordingNotifier{}
	s.service = NewService(db, s.notifier, config.CallsConfig{RingTimeout: 30 * time.Second, HistoryLimit: 50})
	s.clock = time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return s.clock }

	s.ana = s.profile("ana", "Ana Paula")
	s.bruno = s.profile("bruno", "")
	s.carla = s.profile("carla", "Carla")
}

func (s *CallServiceTestSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *CallServiceTestSuite) profile(username, display string) *models.Profile {
	p := &models.Profile{
		Email:       username + "@orkut.com",
		Username:    username,
		DisplayName: display,
		PhotoURL:    "https://img.example/" + username + ".png",
	}
	s.Require().NoError(s.db.Create(p).Error)
	return p
}

func (s *CallServiceTestSuite) advance(d time.Duration) {
	s.clock = s.clock.Add(d)
}

func (s *CallServiceTestSuite) TestStartCreatesRingingCall() {
	t := s.T()
	call, err := s.service.Start(context.Background(), s.ana.ID, s.bruno.ID, models.CallVideo)
	require.NoError(t, err)

	assert.Equal(t, models.CallRinging, call.Status)
	assert.Equal(t, "Ana Paula", call.CallerInfo.Name)
	assert.Equal(t, "ana", call.CallerInfo.Username)
	assert.True(t, strings.HasPrefix(call.ID, "call_video_"))
	assert.Equal(t, GenerateCallID(models.CallVideo, s.bruno.ID, s.ana.ID, s.clock), call.ID)

	assert.Equal(t, []string{websocket.MessageTypeCallIncoming}, s.notifier.kinds(s.bruno.ID))
	assert.Equal(t, []string{websocket.MessageTypeCallStarted}, s.notifier.kinds(s.ana.ID))

	var stored models.Call
	require.NoError(t, s.db.First(&stored, "id = ?", call.ID).Error)
	assert.Equal(t, s.ana.ID, stored.CallerInfo.ID)
}

func (s *CallServiceTestSuite) TestStartValidation() {
	t := s.T()
	ctx := context.Background()

	_, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, "hologram")
	assert.ErrorIs(t, err, ErrInvalidCallType)

	_, err = s.service.Start(ctx, s.ana.ID, s.ana.ID, models.CallAudio)
	assert.ErrorIs(t, err, ErrSelfCall)

	_, err = s.service.Start(ctx, s.ana.ID, "missing", models.CallAudio)
	assert.ErrorIs(t, err, ErrReceiverNotFound)
}

func (s *CallServiceTestSuite) TestBusyParticipantsCannotBeCalled() {
	t := s.T()
	ctx := context.Background()

	_, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)

	s.advance(time.Second)
	_, err = s.service.Start(ctx, s.carla.ID, s.bruno.ID, models.CallAudio)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.service.Start(ctx, s.ana.ID, s.carla.ID, models.CallAudio)
	assert.ErrorIs(t, err, ErrBusy)

	// a ring that timed out no longer blocks new calls
	s.advance(31 * time.Second)
	_, err = s.service.Start(ctx, s.carla.ID, s.bruno.ID, models.CallAudio)
	assert.NoError(t, err)
}

func (s *CallServiceTestSuite) TestConcurrentStartsAdmitOneCall() {
	t := s.T()
	ctx := context.Background()

	callers := []*models.Profile{s.ana, s.carla}
	errs := make([]error, len(callers))
	var wg sync.WaitGroup
	for i, caller := range callers {
		wg.Add(1)
		go func(i int, callerID string) {
			defer wg.Done()
			_, errs[i] = s.service.Start(ctx, callerID, s.bruno.ID, models.CallAudio)
		}(i, caller.ID)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrBusy)
	}
	assert.Equal(t, 1, succeeded)

	var ringing int64
	require.NoError(t, s.db.Model(&models.Call{}).
		Where("receiver_id = ? AND status = ?", s.bruno.ID, models.CallRinging).
		Count(&ringing).Error)
	assert.Equal(t, int64(1), ringing)
}

func (s *CallServiceTestSuite) TestAcceptAfterRingTimeoutIsRefused() {
	t := s.T()
	ctx := context.Background()

	stale, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)

	s.advance(31 * time.Second)
	fresh, err := s.service.Start(ctx, s.carla.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)
	_, err = s.service.Accept(ctx, fresh.ID, s.bruno.ID)
	require.NoError(t, err)

	_, err = s.service.Accept(ctx, stale.ID, s.bruno.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, err, ErrRingTimedOut)

	var connected int64
	require.NoError(t, s.db.Model(&models.Call{}).
		Where("(caller_id = ? OR receiver_id = ?) AND status = ?", s.bruno.ID, s.bruno.ID, models.CallConnected).
		Count(&connected).Error)
	assert.Equal(t, int64(1), connected)

	var stored models.Call
	require.NoError(t, s.db.First(&stored, "id = ?", stale.ID).Error)
	assert.Equal(t, models.CallRinging, stored.Status, "left for the sweeper to mark missed")
}

func (s *CallServiceTestSuite) TestAcceptThenEndComputesDuration() {
	t := s.T()
	ctx := context.Background()

	call, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)

	_, err = s.service.Accept(ctx, call.ID, s.ana.ID)
	assert.ErrorIs(t, err, ErrNotParticipant, "only the receiver accepts")

	s.advance(2 * time.Second)
	accepted, err := s.service.Accept(ctx, call.ID, s.bruno.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallConnected, accepted.Status)
	require.NotNil(t, accepted.AnsweredAt)

	s.advance(95 * time.Second)
	ended, err := s.service.End(ctx, call.ID, s.ana.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, ended.Status)
	assert.Equal(t, 95, ended.DurationSeconds)
	require.NotNil(t, ended.EndedAt)

	assert.Contains(t, s.notifier.kinds(s.ana.ID), websocket.MessageTypeCallEnded)
	assert.Contains(t, s.notifier.kinds(s.bruno.ID), websocket.MessageTypeCallAccepted)

	_, err = s.service.Accept(ctx, call.ID, s.bruno.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition, "terminal calls never change")
	_, err = s.service.End(ctx, call.ID, s.bruno.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func (s *CallServiceTestSuite) TestEndUsesReportedDurationOnlyWhenConnected() {
	t := s.T()
	ctx := context.Background()

	call, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)

	// caller hangs up while ringing
	ended, err := s.service.End(ctx, call.ID, s.ana.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, models.CallEnded, ended.Status)
	assert.Equal(t, 0, ended.DurationSeconds)

	s.advance(time.Minute)
	call, err = s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallVideo)
	require.NoError(t, err)
	_, err = s.service.Accept(ctx, call.ID, s.bruno.ID)
	require.NoError(t, err)
	ended, err = s.service.End(ctx, call.ID, s.bruno.ID, 42)
	require.NoError(t, err)
	assert.Equal(t, 42, ended.DurationSeconds)
}

func (s *CallServiceTestSuite) TestRejectAndPermissions() {
	t := s.T()
	ctx := context.Background()

	call, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)

	_, err = s.service.Reject(ctx, call.ID, s.carla.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = s.service.Reject(ctx, "call_audio_x_y_1", s.bruno.ID)
	assert.ErrorIs(t, err, ErrCallNotFound)

	declined, err := s.service.Reject(ctx, call.ID, s.bruno.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CallDeclined, declined.Status)
	assert.NotNil(t, declined.EndedAt)
	assert.Contains(t, s.notifier.kinds(s.ana.ID), websocket.MessageTypeCallDeclined)
}

func (s *CallServiceTestSuite) TestExpireRingingMarksMissedAndNotifies() {
	t := s.T()
	ctx := context.Background()

	call, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallVideo)
	require.NoError(t, err)

	s.advance(10 * time.Second)
	n, err := s.service.ExpireRinging(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s.advance(25 * time.Second)
	n, err = s.service.ExpireRinging(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var stored models.Call
	require.NoError(t, s.db.First(&stored, "id = ?", call.ID).Error)
	assert.Equal(t, models.CallMissed, stored.Status)

	var notes []models.Notification
	require.NoError(t, s.db.Where("profile_id = ?", s.bruno.ID).Find(&notes).Error)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationCallMissed, notes[0].Type)
	assert.Equal(t, call.ID, notes[0].RelatedID)

	assert.Contains(t, s.notifier.kinds(s.ana.ID), websocket.MessageTypeCallMissed)
	assert.Contains(t, s.notifier.kinds(s.bruno.ID), websocket.MessageTypeCallMissed)

	_, err = s.service.Accept(ctx, call.ID, s.bruno.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func (s *CallServiceTestSuite) TestHistoryAndActive() {
	t := s.T()
	ctx := context.Background()

	first, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)
	_, err = s.service.Accept(ctx, first.ID, s.bruno.ID)
	require.NoError(t, err)
	s.advance(65 * time.Second)
	_, err = s.service.End(ctx, first.ID, s.ana.ID, 0)
	require.NoError(t, err)

	s.advance(time.Minute)
	second, err := s.service.Start(ctx, s.carla.ID, s.ana.ID, models.CallVideo)
	require.NoError(t, err)

	active, err := s.service.Active(ctx, s.ana.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)

	_, err = s.service.Active(ctx, s.bruno.ID)
	assert.ErrorIs(t, err, ErrCallNotFound)

	history, err := s.service.History(ctx, s.ana.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID)
	assert.Equal(t, "incoming", history[0].Direction)
	assert.Equal(t, s.carla.ID, history[0].PeerID)
	assert.Equal(t, "outgoing", history[1].Direction)
	assert.Equal(t, "01:05", history[1].DurationFormatted)

	history, err = s.service.History(ctx, s.ana.ID, 1)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func (s *CallServiceTestSuite) TestPeerFor() {
	t := s.T()
	ctx := context.Background()

	call, err := s.service.Start(ctx, s.ana.ID, s.bruno.ID, models.CallAudio)
	require.NoError(t, err)

	peer, err := s.service.PeerFor(ctx, call.ID, s.ana.ID)
	require.NoError(t, err)
	assert.Equal(t, s.bruno.ID, peer)

	_, err = s.service.PeerFor(ctx, call.ID, s.carla.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = s.service.End(ctx, call.ID, s.bruno.ID, 0)
	require.NoError(t, err)
	_, err = s.service.PeerFor(ctx, call.ID, s.ana.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCallServiceSuite(t *testing.T) {
	suite.Run(t, new(CallServiceTestSuite))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00", FormatDuration(0))
	assert.Equal(t, "00:59", FormatDuration(59))
	assert.Equal(t, "01:05", FormatDuration(65))
	assert.Equal(t, "61:01", FormatDuration(3661))
	assert.Equal(t, "00:00", FormatDuration(-4))
}

func TestGenerateCallIDIsOrderIndependent(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	a := GenerateCallID(models.CallAudio, "zeta", "alpha", at)
	b := GenerateCallID(models.CallAudio, "alpha", "zeta", at)
	assert.Equal(t, a, b)
	assert.Equal(t, "call_audio_alpha_zeta_1700000000123", a)
}

func TestSweeperStartStop(t *testing.T) {
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)

	svc := NewService(db, nil, config.CallsConfig{RingTimeout: time.Millisecond})
	caller := &models.Profile{Email: "a@x.com", Username: "a", DisplayName: "A"}
	receiver := &models.Profile{Email: "b@x.com", Username: "b", DisplayName: "B"}
	require.NoError(t, db.Create(caller).Error)
	require.NoError(t, db.Create(receiver).Error)

	call, err := svc.Start(context.Background(), caller.ID, receiver.ID, models.CallAudio)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	sweeper := NewSweeper(svc, 10*time.Millisecond)
	sweeper.Start()
	require.Eventually(t, func() bool {
		var c models.Call
		return db.First(&c, "id = ?", call.ID).Error == nil && c.Status == models.CallMissed
	}, 2*time.Second, 10*time.Millisecond)
	sweeper.Stop()
}
