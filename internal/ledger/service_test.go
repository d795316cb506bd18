package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/database"
	"github.com/orkutrevival/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
)

// racingRemote lets another writer commit right before our write lands
type racingRemote struct {
	Remote
	fake  *fakeGitHub
	races int
}

func (r *racingRemote) PutFile(ctx context.Context, path string, content []byte, sha, message string) (*CommitResult, error) {
	if r.races > 0 {
		r.races--
		r.fake.mu.Lock()
		var file RemoteFile
		if r.fake.content != nil {
			_ = json.Unmarshal(r.fake.content, &file)
		}
		file.Activities = append(file.Activities, RemoteActivity{UserID: "other-writer", Action: "raced"})
		r.fake.content, _ = json.Marshal(file)
		r.fake.version++
		r.fake.sha = fmt.Sprintf("blob%d", r.fake.version)
		r.fake.mu.Unlock()
	}
	return r.Remote.PutFile(ctx, path, content, sha, message)
}

type LedgerServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	fake    *fakeGitHub
	client  *ContentsClient
	breaker *Breaker
	service *Service
}

func (s *LedgerServiceTestSuite) SetupTest() {
	db, err := database.OpenMemory(s.T().Name())
	s.Require().NoError(err)
	s.db = db

	s.fake = &fakeGitHub{}
	s.client = newGitHubClient(s.T(), s.fake)
	s.breaker = NewBreaker(nil, 5)
	s.service = s.newService(s.client)
}

func (s *LedgerServiceTestSuite) TearDownTest() {
	if sqlDB, err := s.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func (s *LedgerServiceTestSuite) newService(remote Remote) *Service {
	return NewService(NewStore(s.db, 100), s.breaker, remote, config.LedgerConfig{
		RemoteRetention: 50,
		ConflictRetries: 3,
		LocalMaxAge:     7 * 24 * time.Hour,
	}, "data/user-activity.json", "test")
}

func (s *LedgerServiceTestSuite) countLocal() int64 {
	var n int64
	s.Require().NoError(s.db.Model(&models.ActivityEntry{}).Count(&n).Error)
	return n
}

func (s *LedgerServiceTestSuite) TestRecordMirrorsToGitHub() {
	t := s.T()
	ctx := context.Background()

	result, err := s.service.Record(ctx, RecordRequest{
		UserID: "u1",
		Action: "profile_view",
		Data:   map[string]interface{}{"profile": "u2"},
	})
	require.NoError(t, err)
	assert.Equal(t, ModeGitHub, result.Mode)
	require.NotNil(t, result.Commit)
	assert.Equal(t, "blob1", result.Commit.SHA)
	assert.Equal(t, "Automatic update: profile_view for user u1", result.Commit.Message)
	assert.True(t, result.Entry.Synced)

	file := s.fake.file(t)
	require.Len(t, file.Activities, 1)
	assert.Equal(t, "u1", file.Activities[0].UserID)
	assert.Equal(t, "u2", file.Activities[0].Data["profile"])
	assert.NotEmpty(t, file.LastUpdate)

	_, err = s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "logout"})
	require.NoError(t, err)
	assert.Len(t, s.fake.file(t).Activities, 2)
	assert.Equal(t, 0, s.breaker.Status(ctx).Attempts)
}

func (s *LedgerServiceTestSuite) TestRecordValidation() {
	_, err := s.service.Record(context.Background(), RecordRequest{UserID: "u1"})
	s.ErrorIs(err, ErrInvalidEntry)
	_, err = s.service.Record(context.Background(), RecordRequest{Action: "x"})
	s.ErrorIs(err, ErrInvalidEntry)
}

func (s *LedgerServiceTestSuite) TestRemoteKeepsNewestFifty() {
	t := s.T()
	ctx := context.Background()

	for i := 0; i < 55; i++ {
		_, err := s.service.Record(ctx, RecordRequest{UserID: fmt.Sprintf("u%d", i), Action: "login"})
		require.NoError(t, err)
	}

	file := s.fake.file(t)
	require.Len(t, file.Activities, 50)
	assert.Equal(t, "u5", file.Activities[0].UserID)
	assert.Equal(t, "u54", file.Activities[49].UserID)
}

func (s *LedgerServiceTestSuite) TestConflictingWriterIsNotLost() {
	t := s.T()
	ctx := context.Background()

	_, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "login"})
	require.NoError(t, err)

	racing := s.newService(&racingRemote{Remote: s.client, fake: s.fake, races: 2})
	_, err = racing.Record(ctx, RecordRequest{UserID: "u2", Action: "login"})
	require.NoError(t, err)

	var users []string
	for _, a := range s.fake.file(t).Activities {
		users = append(users, a.UserID)
	}
	assert.Equal(t, []string{"u1", "other-writer", "other-writer", "u2"}, users)
}

func (s *LedgerServiceTestSuite) TestConflictRetriesAreBounded() {
	ctx := context.Background()
	racing := s.newService(&racingRemote{Remote: s.client, fake: s.fake, races: 10})

	_, err := racing.Record(ctx, RecordRequest{UserID: "u1", Action: "login"})
	var remoteErr *RemoteError
	s.Require().ErrorAs(err, &remoteErr)
	s.ErrorIs(err, ErrConflict)
	s.Equal(1, remoteErr.Attempts)
	s.True(remoteErr.WillRetry())
}

func (s *LedgerServiceTestSuite) TestBreakerStopsAfterFiveFailures() {
	t := s.T()
	ctx := context.Background()
	s.fake.forced = http.StatusForbidden

	for i := 1; i <= 5; i++ {
		_, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: fmt.Sprintf("a%d", i)})
		var remoteErr *RemoteError
		require.ErrorAs(t, err, &remoteErr)
		assert.ErrorIs(t, err, ErrForbidden)
		assert.Equal(t, i, remoteErr.Attempts)
		assert.Equal(t, i < 5, remoteErr.WillRetry())
	}
	assert.Equal(t, int64(5), s.countLocal(), "failed mirrors keep the local entry")

	_, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "a6"})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 5, exhausted.Attempts)
	assert.Equal(t, int64(5), s.countLocal(), "nothing is stored while the breaker is open")

	status := s.service.Status(ctx)
	assert.False(t, status.CanTryAgain)
	assert.Equal(t, "Attempt limit exceeded", status.Remaining())

	s.service.Reset(ctx)
	s.fake.forced = 0

	_, err = s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "a7"})
	require.NoError(t, err)
	assert.Equal(t, 0, s.service.Status(ctx).Attempts)
	assert.Equal(t, "5 attempts remaining", s.service.Status(ctx).Remaining())
}

func (s *LedgerServiceTestSuite) TestBreakerTrippingAfterStoreKeepsEntry() {
	t := s.T()
	ctx := context.Background()

	// another instance exhausts the shared counter while this entry is written
	require.NoError(t, s.db.Callback().Create().After("gorm:create").Register("ledger_test:trip", func(tx *gorm.DB) {
		for {
			if _, err := s.breaker.Acquire(ctx); err != nil {
				return
			}
		}
	}))

	_, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "login"})
	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.True(t, exhausted.LocalDataSaved)
	assert.Equal(t, int64(1), s.countLocal())
	assert.Equal(t, 0, s.fake.puts)
}

func (s *LedgerServiceTestSuite) TestRejectedWriteIsNotRetried() {
	ctx := context.Background()
	s.fake.forced = http.StatusUnprocessableEntity
	s.fake.forcedMsg = "Invalid request. branch is not valid"

	_, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "login"})
	var remoteErr *RemoteError
	s.Require().ErrorAs(err, &remoteErr)
	s.ErrorIs(err, ErrRejected)
	s.Equal(1, remoteErr.Attempts)
}

func (s *LedgerServiceTestSuite) TestIdempotencyKey() {
	t := s.T()
	ctx := context.Background()

	first, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "login", IdempotencyKey: "k1"})
	require.NoError(t, err)
	second, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: "login", IdempotencyKey: "k1"})
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Entry.ID, second.Entry.ID)
	assert.Equal(t, int64(1), s.countLocal())
	assert.Len(t, s.fake.file(t).Activities, 1, "a synced duplicate is not mirrored twice")
}

func (s *LedgerServiceTestSuite) TestSyncPushesUnsyncedEntries() {
	t := s.T()
	ctx := context.Background()

	s.fake.forced = http.StatusUnauthorized
	for i := 0; i < 3; i++ {
		_, err := s.service.Record(ctx, RecordRequest{UserID: "u1", Action: fmt.Sprintf("a%d", i)})
		require.Error(t, err)
	}
	s.fake.forced = 0

	n, err := s.service.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, s.fake.file(t).Activities, 3)
	assert.Equal(t, 0, s.breaker.Status(ctx).Attempts)

	pending, err := s.service.Store().Unsynced(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	n, err = s.service.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func (s *LedgerServiceTestSuite) TestLocalModeWithoutRemote() {
	t := s.T()
	ctx := context.Background()
	local := s.newService(nil)

	result, err := local.Record(ctx, RecordRequest{UserID: "u1", Action: "login"})
	require.NoError(t, err)
	assert.Equal(t, ModeLocal, result.Mode)
	assert.Nil(t, result.Commit)
	assert.False(t, local.Status(ctx).GitHubConfigured)

	_, err = local.Sync(ctx)
	assert.ErrorIs(t, err, ErrRemoteUnavailable)
}

func (s *LedgerServiceTestSuite) TestLocalRetentionAndStats() {
	t := s.T()
	ctx := context.Background()
	local := s.newService(nil)

	for i := 0; i < 105; i++ {
		action := "login"
		if i%3 == 0 {
			action = "scrap"
		}
		_, err := local.Record(ctx, RecordRequest{UserID: fmt.Sprintf("u%d", i%4), Action: action})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(100), s.countLocal())

	stats, breaker, err := local.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stats.TotalActivities)
	assert.Equal(t, int64(4), stats.UniqueUsers)
	assert.Equal(t, int64(100), stats.ActionCounts["login"]+stats.ActionCounts["scrap"])
	assert.Equal(t, 5, breaker.MaxAttempts)

	entries, err := local.ForUser(ctx, "u1", 0)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	for i := 1; i < len(entries); i++ {
		assert.False(t, entries[i].CreatedAt.After(entries[i-1].CreatedAt), "newest first")
	}
}

func (s *LedgerServiceTestSuite) TestPruneDropsOldEntries() {
	t := s.T()
	ctx := context.Background()
	local := s.newService(nil)

	old := &models.ActivityEntry{UserID: "u1", Action: "login", CreatedAt: time.Now().UTC().Add(-8 * 24 * time.Hour)}
	require.NoError(t, s.db.Create(old).Error)
	_, err := local.Record(ctx, RecordRequest{UserID: "u1", Action: "login"})
	require.NoError(t, err)

	n, err := local.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, int64(1), s.countLocal())

	janitor := NewJanitor(local, time.Hour)
	janitor.Start()
	janitor.Stop()
}

func TestLedgerServiceSuite(t *testing.T) {
	suite.Run(t, new(LedgerServiceTestSuite))
}

func TestBreakerMemoryFallback(t *testing.T) {
	ctx := context.Background()
	b := NewBreaker(nil, 2)

	n, err := b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	open, attempts := b.Open(ctx)
	assert.True(t, open)
	assert.Equal(t, 2, attempts)

	_, err = b.Acquire(ctx)
	assert.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.Equal(t, 2, b.Status(ctx).Attempts, "a refused attempt is not counted")

	resetAt := b.Reset(ctx)
	status := b.Status(ctx)
	assert.Equal(t, 0, status.Attempts)
	assert.True(t, status.CanTryAgain)
	assert.Equal(t, resetAt, status.LastResetTime)
	assert.False(t, status.RedisBacked)
}
