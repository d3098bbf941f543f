package service

import (
	"context"
	"sync"
	"time"

	"decryptrecovery/internal/models"
	"decryptrecovery/internal/placeholder"

	"github.com/stretchr/testify/mock"
)

type mockPlaceholderManager struct {
	mock.Mock
}

func (m *mockPlaceholderManager) Create(ctx context.Context, env placeholder.FailedEnvelope, groupID string) (*models.Placeholder, error) {
	args := m.Called(ctx, env, groupID)
	p, _ := args.Get(0).(*models.Placeholder)
	return p, args.Error(1)
}

func (m *mockPlaceholderManager) TryReplace(ctx context.Context, c placeholder.Candidate) (placeholder.ReplaceResult, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(placeholder.ReplaceResult), args.Error(1)
}

func (m *mockPlaceholderManager) SweepExpired(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

type mockMessageStore struct {
	mock.Mock
}

func (m *mockMessageStore) InsertMessage(ctx context.Context, msg *models.Message) error {
	return m.Called(ctx, msg).Error(0)
}

type mockThreadStore struct {
	mock.Mock
}

func (m *mockThreadStore) EnsureThread(ctx context.Context, peer, groupID string) (*models.Thread, error) {
	args := m.Called(ctx, peer, groupID)
	t, _ := args.Get(0).(*models.Thread)
	return t, args.Error(1)
}

func (m *mockThreadStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*models.Thread)
	return t, args.Error(1)
}

type mockRetentionStore struct {
	mock.Mock
}

func (m *mockRetentionStore) CountPendingPlaceholders(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockRetentionStore) CleanupExpiredPlaceholders(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

// staticThreads resolves every sender to one fixed thread.
type staticThreads struct {
	id  string
	err error
}

func (s staticThreads) ResolveThread(context.Context, string, string) (string, error) {
	return s.id, s.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.TimelineEvent
}

func (n *recordingNotifier) Notify(e models.TimelineEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) all() []models.TimelineEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.TimelineEvent(nil), n.events...)
}

type testEnvelope struct {
	source string
	ts     int64
	reason string
}

func (e testEnvelope) SourceAddress() string  { return e.source }
func (e testEnvelope) SenderTimestamp() int64 { return e.ts }
func (e testEnvelope) FailureReason() string  { return e.reason }
