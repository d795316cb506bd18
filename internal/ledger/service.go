// Package ledger records user activity in a local table and mirrors it to a
// JSON file in a GitHub repository. Remote writes are guarded by a breaker
// that stops trying after a fixed number of consecutive failures.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/orkutrevival/backend/internal/config"
	"github.com/orkutrevival/backend/internal/logger"
	"github.com/orkutrevival/backend/internal/metrics"
	"github.com/orkutrevival/backend/internal/models"
	"go.uber.org/zap"
)

var (
	ErrInvalidEntry      = errors.New("userId and action are required")
	ErrRemoteUnavailable = errors.New("remote ledger is not configured")
)

// Remote is the file store the ledger is mirrored to
type Remote interface {
	GetFile(ctx context.Context, path string) (*FileContent, error)
	PutFile(ctx context.Context, path string, content []byte, sha, message string) (*CommitResult, error)
}

// RemoteError is a failed mirror write. The entry is already stored locally.
type RemoteError struct {
	Attempts    int
	MaxAttempts int
	Err         error
}

func (e *RemoteError) Error() string {
	return e.Err.Error()
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// WillRetry reports whether another attempt is allowed
func (e *RemoteError) WillRetry() bool {
	return e.Attempts < e.MaxAttempts
}

// RemoteFile is the JSON document kept in the repository
type RemoteFile struct {
	Activities []RemoteActivity `json:"activities"`
	LastUpdate string           `json:"lastUpdate"`
}

// RemoteActivity is one entry of RemoteFile
type RemoteActivity struct {
	UserID    string                 `json:"userId"`
	Action    string                 `json:"action"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp string                 `json:"timestamp"`
}

// RecordRequest is one activity to log
type RecordRequest struct {
	UserID         string                 `json:"userId"`
	Action         string                 `json:"action"`
	Data           map[string]interface{} `json:"data"`
	IdempotencyKey string                 `json:"idempotencyKey"`
}

// Mode values for RecordResult
const (
	ModeGitHub = "github"
	ModeLocal  = "local"
)

// RecordResult is the outcome of a successful Record
type RecordResult struct {
	Entry     *models.ActivityEntry
	Duplicate bool
	Mode      string
	Commit    *CommitResult
	Attempts  int
}

// Status is the breaker state plus deployment facts
type Status struct {
	BreakerStatus
	GitHubConfigured bool
	Environment      string
}

// Service coordinates the local store, the breaker and the remote file
type Service struct {
	store   *Store
	breaker *Breaker
	remote  Remote
	cfg     config.LedgerConfig
	path    string
	env     string
	now     func() time.Time

	// serialises read-modify-write cycles within this process; the blob sha
	// guards against writers in other processes
	commitMu sync.Mutex
}

// NewService wires the ledger. remote may be nil, in which case entries
// are kept locally only.
func NewService(store *Store, breaker *Breaker, remote Remote, cfg config.LedgerConfig, path, environment string) *Service {
	if cfg.RemoteRetention <= 0 {
		cfg.RemoteRetention = 50
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 3
	}
	if cfg.LocalMaxAge <= 0 {
		cfg.LocalMaxAge = 7 * 24 * time.Hour
	}
	if path == "" {
		path = "data/user-activity.json"
	}
	return &Service{
		store:   store,
		breaker: breaker,
		remote:  remote,
		cfg:     cfg,
		path:    path,
		env:     environment,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// RemoteConfigured reports whether entries are mirrored
func (s *Service) RemoteConfigured() bool {
	return s.remote != nil
}

// Store returns the local store
func (s *Service) Store() *Store {
	return s.store
}

// CommitMessage is the message used for a single entry commit
func CommitMessage(action, userID string) string {
	return fmt.Sprintf("Automatic update: %s for user %s", action, userID)
}

// Record stores the activity locally and mirrors it. With the breaker open
// nothing is stored and an ExhaustedError is returned. A failed mirror write
// returns a RemoteError; the local entry is kept and picked up by Sync.
func (s *Service) Record(ctx context.Context, req RecordRequest) (*RecordResult, error) {
	if req.UserID == "" || req.Action == "" {
		return nil, ErrInvalidEntry
	}

	if s.remote != nil {
		if open, attempts := s.breaker.Open(ctx); open {
			return nil, &ExhaustedError{Attempts: attempts, MaxAttempts: s.breaker.Max()}
		}
	}

	entry, created, err := s.store.Append(ctx, &models.ActivityEntry{
		UserID:         req.UserID,
		Action:         req.Action,
		Data:           models.JSONMap(req.Data),
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store activity: %w", err)
	}

	result := &RecordResult{Entry: entry, Duplicate: !created, Mode: ModeLocal}
	if s.remote == nil || entry.Synced {
		if entry.Synced {
			result.Mode = ModeGitHub
		}
		return result, nil
	}

	attempts, err := s.breaker.Acquire(ctx)
	if err != nil {
		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) {
			exhausted.LocalDataSaved = true
		}
		return nil, err
	}

	commit, err := s.commit(ctx, []models.ActivityEntry{*entry}, CommitMessage(entry.Action, entry.UserID))
	if err != nil {
		metrics.Get().LedgerCommitsTotal.WithLabelValues("failure").Inc()
		logger.ErrorWithFields("Remote ledger write failed", err,
			logger.WithUserID(entry.UserID),
			zap.String("action", entry.Action),
			zap.Int("attempts", attempts))
		return nil, &RemoteError{Attempts: attempts, MaxAttempts: s.breaker.Max(), Err: err}
	}

	s.breaker.Reset(ctx)
	metrics.Get().LedgerCommitsTotal.WithLabelValues("success").Inc()
	if err := s.store.MarkSynced(ctx, []string{entry.ID}, commit.SHA); err != nil {
		logger.WarnWithFields("Failed to mark activity synced", err, zap.String("entry_id", entry.ID))
	} else {
		entry.Synced = true
		entry.CommitSHA = commit.SHA
	}

	result.Mode = ModeGitHub
	result.Commit = commit
	return result, nil
}

// commit appends entries to the remote file. A conflicting concurrent write
// makes it re-read the file and try again, so no writer's entries are lost.
func (s *Service) commit(ctx context.Context, entries []models.ActivityEntry, message string) (*CommitResult, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	var lastErr error
	for attempt := 0; attempt <= s.cfg.ConflictRetries; attempt++ {
		file, sha, err := s.readRemote(ctx)
		if err != nil {
			return nil, err
		}

		timestamp := s.now().Format(time.RFC3339Nano)
		for _, e := range entries {
			file.Activities = append(file.Activities, RemoteActivity{
				UserID:    e.UserID,
				Action:    e.Action,
				Data:      e.Data,
				Timestamp: e.CreatedAt.UTC().Format(time.RFC3339Nano),
			})
		}
		file.LastUpdate = timestamp
		if n := len(file.Activities); n > s.cfg.RemoteRetention {
			file.Activities = file.Activities[n-s.cfg.RemoteRetention:]
		}

		content, err := json.MarshalIndent(file, "", "  ")
		if err != nil {
			return nil, err
		}

		result, err := s.remote.PutFile(ctx, s.path, content, sha, message)
		if err == nil {
			result.Timestamp = timestamp
			logger.Log.Info("Remote ledger updated",
				zap.String("commit_url", result.CommitURL),
				zap.Int("entries", len(entries)))
			return result, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, err
		}

		metrics.Get().LedgerConflictsTotal.Inc()
		logger.Log.Warn("Remote ledger changed underneath, retrying", zap.Int("attempt", attempt+1))
		lastErr = err
	}
	return nil, fmt.Errorf("gave up after %d conflicting writes: %w", s.cfg.ConflictRetries+1, lastErr)
}

func (s *Service) readRemote(ctx context.Context) (*RemoteFile, string, error) {
	current, err := s.remote.GetFile(ctx, s.path)
	if errors.Is(err, ErrFileNotFound) {
		logger.Log.Info("Remote ledger file missing, creating it", zap.String("path", s.path))
		return &RemoteFile{Activities: []RemoteActivity{}}, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	file := &RemoteFile{}
	if len(current.Content) > 0 {
		if err := json.Unmarshal(current.Content, file); err != nil {
			return nil, "", fmt.Errorf("remote ledger file is not valid JSON: %w", err)
		}
	}
	if file.Activities == nil {
		file.Activities = []RemoteActivity{}
	}
	return file, current.SHA, nil
}

// Sync pushes unsynced local entries in one commit and returns how many
// were mirrored
func (s *Service) Sync(ctx context.Context) (int, error) {
	if s.remote == nil {
		return 0, ErrRemoteUnavailable
	}

	pending, err := s.store.Unsynced(ctx, s.cfg.RemoteRetention)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	commit, err := s.commit(ctx, pending, fmt.Sprintf("Automatic update: sync %d activities", len(pending)))
	if err != nil {
		metrics.Get().LedgerCommitsTotal.WithLabelValues("failure").Inc()
		return 0, err
	}
	metrics.Get().LedgerCommitsTotal.WithLabelValues("success").Inc()
	s.breaker.Reset(ctx)

	ids := make([]string, len(pending))
	for i, e := range pending {
		ids[i] = e.ID
	}
	if err := s.store.MarkSynced(ctx, ids, commit.SHA); err != nil {
		return 0, err
	}
	return len(pending), nil
}

// Status returns the breaker state
func (s *Service) Status(ctx context.Context) Status {
	return Status{
		BreakerStatus:    s.breaker.Status(ctx),
		GitHubConfigured: s.remote != nil,
		Environment:      s.env,
	}
}

// Reset clears the breaker
func (s *Service) Reset(ctx context.Context) time.Time {
	at := s.breaker.Reset(ctx)
	logger.Log.Info("Ledger attempt counter reset")
	return at
}

// Stats combines local ledger counts with the breaker state
func (s *Service) Stats(ctx context.Context) (*Stats, BreakerStatus, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, BreakerStatus{}, err
	}
	return stats, s.breaker.Status(ctx), nil
}

// ForUser lists one user's local entries, newest first
func (s *Service) ForUser(ctx context.Context, userID string, limit int) ([]models.ActivityEntry, error) {
	if limit <= 0 || limit > s.store.retention {
		limit = s.store.retention
	}
	return s.store.ForUser(ctx, userID, limit)
}

// Prune removes local entries older than the configured maximum age
func (s *Service) Prune(ctx context.Context) (int64, error) {
	n, err := s.store.Prune(ctx, s.now().Add(-s.cfg.LocalMaxAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.Get().LedgerEntriesPruned.Add(float64(n))
	}
	return n, nil
}
