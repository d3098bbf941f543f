package placeholder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/database"
	"decryptrecovery/internal/errors"
	"decryptrecovery/internal/metrics"
	"decryptrecovery/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testWindow   = 300 * time.Second
	testSender   = "+15551234567"
	testUUID     = "A1B2C3D4-0000-4000-8000-00000000CAFE"
	testGroup    = "group-7f3a"
	testThreadID = "5d2f8e1a-3c4b-4d6e-9f10-112233445566"
	testTS       = int64(1714816800000)
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testEnvelope struct {
	source string
	ts     int64
	reason string
}

func (e testEnvelope) SourceAddress() string  { return e.source }
func (e testEnvelope) SenderTimestamp() int64 { return e.ts }
func (e testEnvelope) FailureReason() string  { return e.reason }

type mockStore struct {
	mock.Mock
}

func (m *mockStore) InsertPlaceholder(ctx context.Context, p *models.Placeholder) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStore) GetPlaceholder(ctx context.Context, id string) (*models.Placeholder, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Placeholder)
	return p, args.Error(1)
}

func (m *mockStore) FindPlaceholdersByKey(ctx context.Context, key models.MatchKey) ([]*models.Placeholder, error) {
	args := m.Called(ctx, key)
	ps, _ := args.Get(0).([]*models.Placeholder)
	return ps, args.Error(1)
}

func (m *mockStore) CompareAndReplace(ctx context.Context, id string, version int64, body string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, version, body, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CompareAndExpire(ctx context.Context, id string, version int64, at time.Time) (bool, error) {
	args := m.Called(ctx, id, version, at)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) ListExpirablePlaceholders(ctx context.Context, now time.Time, limit int) ([]*models.Placeholder, error) {
	args := m.Called(ctx, now, limit)
	ps, _ := args.Get(0).([]*models.Placeholder)
	return ps, args.Error(1)
}

type staticThreads struct {
	id  string
	err error
}

func (s staticThreads) ResolveThread(context.Context, string, string) (string, error) {
	return s.id, s.err
}

// dbThreads resolves threads the same way the service layer does.
type dbThreads struct {
	db *database.Database
}

func (r dbThreads) ResolveThread(ctx context.Context, sender, groupID string) (string, error) {
	thread, err := r.db.EnsureThread(ctx, sender, groupID)
	if err != nil {
		return "", err
	}
	return thread.ID, nil
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

func (n *recordingNotifier) types() []models.TimelineEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]models.TimelineEventType, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

type harness struct {
	db       *database.Database
	manager  *Manager
	clock    *clock.Fake
	notifier *recordingNotifier
	metrics  *metrics.Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.New(models.DatabaseConfig{Path: filepath.Join(t.TempDir(), "placeholders.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	h := &harness{
		db:       db,
		clock:    clock.NewFake(t0),
		notifier: &recordingNotifier{},
		metrics:  metrics.NewRegistry(),
	}
	h.manager = h.newManager(t)
	return h
}

func (h *harness) newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(h.db, dbThreads{db: h.db}, testWindow, quietLogger(),
		WithClock(h.clock), WithNotifier(h.notifier), WithMetrics(h.metrics))
	require.NoError(t, err)
	return m
}

func candidate(body string) Candidate {
	return Candidate{Body: body, Sender: testSender, OriginalTimestamp: testTS}
}

func TestNewManager_Validation(t *testing.T) {
	store := &mockStore{}
	threads := staticThreads{id: testThreadID}

	_, err := NewManager(nil, threads, testWindow, nil)
	assert.Error(t, err)

	_, err = NewManager(store, nil, testWindow, nil)
	assert.Error(t, err)

	_, err = NewManager(store, threads, 0, nil)
	assert.Error(t, err)

	m, err := NewManager(store, threads, testWindow, nil)
	require.NoError(t, err)
	assert.Equal(t, testWindow, m.Window())
}

func TestManager_ReplaceWithinWindow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.manager.Create(ctx, testEnvelope{source: testSender, ts: testTS, reason: "no_session"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityPending, created.Eligibility())
	assert.Equal(t, t0.Add(testWindow), created.ExpiresAt())

	h.clock.Advance(299 * time.Second)

	result, err := h.manager.TryReplace(ctx, candidate("hello again"))
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, created.ID(), result.Placeholder.ID())
	assert.Equal(t, models.EligibilityReplaced, result.Placeholder.Eligibility())
	assert.Empty(t, result.DuplicateIDs)

	stored, err := h.manager.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityReplaced, stored.Eligibility())
	body, ok := stored.ReplacementBody()
	require.True(t, ok)
	assert.Equal(t, "hello again", body)
	assert.Equal(t, stored.Version(), result.Placeholder.Version())

	replaceable, err := h.manager.IsReplaceableNow(ctx, created.ID())
	require.NoError(t, err)
	assert.False(t, replaceable)

	assert.Equal(t, float64(1), h.metrics.CounterValue(MetricReplaced, nil))
	assert.Equal(t, []models.TimelineEventType{models.EventPlaceholderCreated, models.EventPlaceholderReplaced}, h.notifier.types())
}

func TestManager_LateArrivalThenSweep(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.manager.Create(ctx, testEnvelope{source: testSender, ts: testTS}, "")
	require.NoError(t, err)

	h.clock.Advance(301 * time.Second)

	result, err := h.manager.TryReplace(ctx, candidate("too late"))
	require.NoError(t, err)
	assert.False(t, result.Matched())
	assert.Equal(t, ReasonNotReplaceable, result.Reason)

	// Still pending until swept, but already not replaceable.
	stored, err := h.manager.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityPending, stored.Eligibility())
	assert.Equal(t, models.DisplayUndecryptable, stored.DisplayStatus(h.clock.Now()))

	n, err := h.manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	stored, err = h.manager.Get(ctx, created.ID())
	require.NoError(t, err)
	assert.Equal(t, models.EligibilityExpired, stored.Eligibility())

	n, err = h.manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "second sweep must be a no-op")
	assert.Equal(t, float64(1), h.metrics.CounterValue(MetricExpired, nil))
}

func TestManager_DeadlineIsExclusive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	created, err := h.manager.Create(ctx, testEnvelope{source: testSender, ts: testTS}, "")
	require.NoError(t, err)

	h.clock.Set(created.ExpiresAt().Add(-time.Nanosecond))
	replaceable, err := h.manager.IsReplaceableNow(ctx, created.ID())
	require.NoError(t, err)
	assert.True(t, replaceable)

	n, err := h.manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Set(created.ExpiresAt())
	replaceable, err = h.manager.IsReplaceableNow(ctx, created.ID())
	require.NoError(t, err)
	assert.False(t, replaceable)

	result, err := h.manager.TryReplace(ctx, candidate("at the deadline"))
	require.NoError(t, err)
	assert.False(t, result.Matched())

	n, err = h.manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManager_ConcurrentReplaceSingleWinner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.manager.Create(ctx, testEnvelope{source: testSender, ts: testTS}, "")
	require.NoError(t, err)
	h.clock.Advance(10 * time.Second)

	// Two managers share the store but not their locks, so only the
	// compare-and-set can keep the second replacement out.
	managers := []*Manager{h.manager, h.newManager(t)}

	const workers = 10
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		matched int
		reasons = map[string]int{}
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := managers[i%len(managers)].TryReplace(ctx, candidate(fmt.Sprintf("copy %d", i)))
			assert.NoError(t, err)
			mu.Lock()
			defer mu.Unlock()
			if result.Matched() {
				matched++
			} else {
				reasons[result.Reason]++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, matched)
	assert.Equal(t, workers-1, reasons[ReasonNotReplaceable]+reasons[ReasonStaleTransition])
	assert.Zero(t, h.manager.lockCount())
}

func TestManager_CreateRejectsMalformedEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		env     FailedEnvelope
		groupID string
	}{
		{"nil envelope", nil, ""},
		{"missing sender", testEnvelope{ts: testTS}, ""},
		{"blank sender", testEnvelope{source: "   ", ts: testTS}, ""},
		{"unresolvable sender", testEnvelope{source: "someone", ts: testTS}, ""},
		{"nil uuid sender", testEnvelope{source: "00000000-0000-0000-0000-000000000000", ts: testTS}, ""},
		{"zero timestamp", testEnvelope{source: testSender}, ""},
		{"bad group", testEnvelope{source: testSender, ts: testTS}, "has space"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()

			p, err := h.manager.Create(ctx, tt.env, tt.groupID)
			require.Error(t, err)
			assert.Nil(t, p)
			assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedEnvelope))

			count, err := h.db.CountPendingPlaceholders(ctx)
			require.NoError(t, err)
			assert.Zero(t, count)
			assert.Empty(t, h.notifier.types())
			assert.Equal(t, float64(1), h.metrics.CounterValue(MetricMalformed, nil))
		})
	}
}

func TestManager_NoResurrection(t *testing.T) {
	t.Run("replaced", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		_, err := h.manager.Create(ctx, testEnvelope{source: testSender, ts: testTS}, "")
		require.NoError(t, err)

		first, err := h.manager.TryReplace(ctx, candidate("first"))
		require.NoError(t, err)
		require.True(t, first.Matched())

		second, err := h.manager.TryReplace(ctx, candidate("second"))
		require.NoError(t, err)
		assert.False(t, second.Matched())
		assert.Equal(t, ReasonNotReplaceable, second.Reason)

		stored, err := h.manager.Get(ctx, first.Placeholder.ID())
		require.NoError(t, err)
		body, _ := stored.ReplacementBody()
		assert.Equal(t, "first", body)
	})

	t.Run("expired", func(t *testing.T) {
		h := newHarness(t)
		ctx := context.Background()

		created, err := h.manager.Create(ctx, testEnvelope{source: testSender, ts: testTS}, "")
		require.NoError(t, err)
		h.clock.Advance(testWindow)
		_, err = h.manager.SweepExpired(ctx)
		require.NoError(t, err)

		// Even a clock moved backwards cannot revive an expired record.
		h.clock.Set(t0.Add(time.Second))
		result, err := h.manager.TryReplace(ctx, candidate("revive"))
		require.NoError(t, err)
		assert.False(t, result.Matched())

		stored, err := h.manager.Get(ctx, created.ID())
		require.NoError(t, err)
		assert.Equal(t, models.EligibilityExpired, stored.Eligibility())
	})
}

func TestManager_MatchKeyScoping(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.manager.Create(ctx, testEnvelope{source: testUUID, ts: testTS}, testGroup)
	require.NoError(t, err)

	tests := []struct {
		name string
		c    Candidate
	}{
		{"same sender outside the group", Candidate{Body: "x", Sender: testUUID, OriginalTimestamp: testTS}},
		{"other group", Candidate{Body: "x", Sender: testUUID, GroupID: "group-other", OriginalTimestamp: testTS}},
		{"other timestamp", Candidate{Body: "x", Sender: testUUID, GroupID: testGroup, OriginalTimestamp: testTS + 1}},
		{"other sender", Candidate{Body: "x", Sender: testSender, GroupID: testGroup, OriginalTimestamp: testTS}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.manager.TryReplace(ctx, tt.c)
			require.NoError(t, err)
			assert.False(t, result.Matched())
			assert.Equal(t, ReasonNoPlaceholder, result.Reason)
		})
	}

	// Sender addresses are normalized, so case does not matter.
	result, err := h.manager.TryReplace(ctx, Candidate{
		Body: "group hello", Sender: "a1b2c3d4-0000-4000-8000-00000000cafe", GroupID: testGroup, OriginalTimestamp: testTS,
	})
	require.NoError(t, err)
	assert.True(t, result.Matched())
}

func TestManager_TryReplaceInvalidCandidate(t *testing.T) {
	store := &mockStore{}
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger(), WithMetrics(metrics.NewRegistry()))
	require.NoError(t, err)
	ctx := context.Background()

	result, err := m.TryReplace(ctx, Candidate{Body: "x", Sender: "", OriginalTimestamp: testTS})
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidSender, result.Reason)

	result, err = m.TryReplace(ctx, Candidate{Body: "x", Sender: testSender})
	require.NoError(t, err)
	assert.Equal(t, ReasonInvalidKey, result.Reason)

	result, err = m.TryReplace(ctx, Candidate{Body: string([]byte{0xff, 0xfe}), Sender: testSender, OriginalTimestamp: testTS})
	assert.Error(t, err)
	assert.Equal(t, ReasonInvalidBody, result.Reason)

	store.AssertNotCalled(t, "FindPlaceholdersByKey", mock.Anything, mock.Anything)
}

func TestManager_DuplicateMatchEarliestWins(t *testing.T) {
	store := &mockStore{}
	reg := metrics.NewRegistry()
	fake := clock.NewFake(t0.Add(20 * time.Second))
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger(), WithClock(fake), WithMetrics(reg))
	require.NoError(t, err)

	key := models.MatchKey{Sender: testSender, OriginalTimestamp: testTS}
	earliest := newFakePlaceholder(t, testThreadID, key, t0, testWindow, models.EligibilityPending)
	later := newFakePlaceholder(t, testThreadID, key, t0.Add(5*time.Second), testWindow, models.EligibilityPending)
	done := newFakePlaceholder(t, testThreadID, key, t0.Add(time.Second), testWindow, models.EligibilityReplaced)

	store.On("FindPlaceholdersByKey", mock.Anything, key).Return([]*models.Placeholder{earliest, done, later}, nil)
	store.On("CompareAndReplace", mock.Anything, earliest.ID(), int64(0), "dup", fake.Now()).Return(true, nil)

	result, err := m.TryReplace(context.Background(), candidate("dup"))
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, earliest.ID(), result.Placeholder.ID())
	assert.Equal(t, []string{later.ID()}, result.DuplicateIDs)
	assert.Equal(t, float64(1), reg.CounterValue(MetricDuplicateMatch, nil))
	store.AssertExpectations(t)
}

func TestManager_StaleTransitionIsNoMatch(t *testing.T) {
	store := &mockStore{}
	reg := metrics.NewRegistry()
	fake := clock.NewFake(t0.Add(10 * time.Second))
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger(), WithClock(fake), WithMetrics(reg))
	require.NoError(t, err)

	key := models.MatchKey{Sender: testSender, OriginalTimestamp: testTS}
	p := newFakePlaceholder(t, testThreadID, key, t0, testWindow, models.EligibilityPending)

	store.On("FindPlaceholdersByKey", mock.Anything, key).Return([]*models.Placeholder{p}, nil)
	store.On("CompareAndReplace", mock.Anything, p.ID(), int64(0), "late", fake.Now()).Return(false, nil).Once()

	result, err := m.TryReplace(context.Background(), candidate("late"))
	require.NoError(t, err)
	assert.False(t, result.Matched())
	assert.Equal(t, ReasonStaleTransition, result.Reason)
	assert.Equal(t, float64(1), reg.CounterValue(MetricStaleTransition, map[string]string{"attempted": "replaced"}))
	assert.Equal(t, float64(1), reg.CounterValue(MetricNoMatch, map[string]string{"reason": ReasonStaleTransition}))

	// Never retried automatically.
	store.AssertNumberOfCalls(t, "CompareAndReplace", 1)
}

func TestManager_StoreFailuresAreNoMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("thread resolution", func(t *testing.T) {
		m, err := NewManager(&mockStore{}, staticThreads{err: fmt.Errorf("disk gone")}, testWindow, quietLogger(), WithMetrics(metrics.NewRegistry()))
		require.NoError(t, err)

		result, err := m.TryReplace(ctx, candidate("x"))
		assert.Error(t, err)
		assert.Equal(t, ReasonStoreUnavailable, result.Reason)

		_, err = m.Create(ctx, testEnvelope{source: testSender, ts: testTS}, "")
		assert.Error(t, err)
		assert.False(t, errors.HasCode(err, errors.ErrCodeMalformedEnvelope))
	})

	t.Run("lookup", func(t *testing.T) {
		store := &mockStore{}
		store.On("FindPlaceholdersByKey", mock.Anything, mock.Anything).Return(nil, fmt.Errorf("database is locked"))
		m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger(), WithMetrics(metrics.NewRegistry()))
		require.NoError(t, err)

		result, err := m.TryReplace(ctx, candidate("x"))
		assert.Error(t, err)
		assert.False(t, result.Matched())
		assert.Equal(t, ReasonStoreUnavailable, result.Reason)
	})
}

func TestManager_SweepBatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	m, err := NewManager(h.db, dbThreads{db: h.db}, testWindow, quietLogger(),
		WithClock(h.clock), WithMetrics(h.metrics), WithSweepBatchSize(2))
	require.NoError(t, err)

	for i := int64(0); i < 5; i++ {
		_, err := m.Create(ctx, testEnvelope{source: testSender, ts: testTS + i}, "")
		require.NoError(t, err)
	}
	h.clock.Advance(testWindow)

	n, err := m.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	count, err := h.db.CountPendingPlaceholders(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestManager_SweepStopsWithoutProgress(t *testing.T) {
	store := &mockStore{}
	fake := clock.NewFake(t0.Add(testWindow))
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger(),
		WithClock(fake), WithMetrics(metrics.NewRegistry()), WithSweepBatchSize(1))
	require.NoError(t, err)

	key := models.MatchKey{Sender: testSender, OriginalTimestamp: testTS}
	p := newFakePlaceholder(t, testThreadID, key, t0, testWindow, models.EligibilityPending)

	// A concurrent writer keeps winning; the sweep must not spin.
	store.On("ListExpirablePlaceholders", mock.Anything, fake.Now(), 1).Return([]*models.Placeholder{p}, nil)
	store.On("CompareAndExpire", mock.Anything, p.ID(), int64(0), fake.Now()).Return(false, nil)

	n, err := m.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	store.AssertNumberOfCalls(t, "ListExpirablePlaceholders", 1)
}

func TestManager_SweepHonoursCancellation(t *testing.T) {
	store := &mockStore{}
	fake := clock.NewFake(t0.Add(testWindow))
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger(),
		WithClock(fake), WithMetrics(metrics.NewRegistry()))
	require.NoError(t, err)

	key := models.MatchKey{Sender: testSender, OriginalTimestamp: testTS}
	p := newFakePlaceholder(t, testThreadID, key, t0, testWindow, models.EligibilityPending)
	store.On("ListExpirablePlaceholders", mock.Anything, mock.Anything, mock.Anything).Return([]*models.Placeholder{p}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = m.SweepExpired(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	store.AssertNotCalled(t, "CompareAndExpire", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestManager_GetMissing(t *testing.T) {
	store := &mockStore{}
	store.On("GetPlaceholder", mock.Anything, "missing").Return(nil, nil)
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger())
	require.NoError(t, err)

	_, err = m.IsReplaceableNow(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestManager_FailureReasonIsTruncated(t *testing.T) {
	h := newHarness(t)
	long := make([]byte, 1000)
	for i := range long {
		long[i] = 'r'
	}

	p, err := h.manager.Create(context.Background(), testEnvelope{source: testSender, ts: testTS, reason: string(long)}, "")
	require.NoError(t, err)
	assert.Len(t, p.FailureReason(), 256)
}

func TestManager_ReplaceReturnsCommittedState(t *testing.T) {
	store := &mockStore{}
	fake := clock.NewFake(t0.Add(10 * time.Second))
	notifier := &recordingNotifier{}
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, quietLogger(),
		WithClock(fake), WithNotifier(notifier), WithMetrics(metrics.NewRegistry()))
	require.NoError(t, err)

	key := models.MatchKey{Sender: testSender, OriginalTimestamp: testTS}
	p := newFakePlaceholder(t, testThreadID, key, t0, testWindow, models.EligibilityPending)
	store.On("FindPlaceholdersByKey", mock.Anything, key).Return([]*models.Placeholder{p}, nil)
	store.On("CompareAndReplace", mock.Anything, p.ID(), int64(0), "late", fake.Now()).Return(true, nil)

	result, err := m.TryReplace(context.Background(), candidate("late"))
	require.NoError(t, err)
	require.True(t, result.Matched())
	assert.Equal(t, models.EligibilityReplaced, result.Placeholder.Eligibility())
	assert.Equal(t, int64(1), result.Placeholder.Version())
	body, ok := result.Placeholder.ReplacementBody()
	require.True(t, ok)
	assert.Equal(t, "late", body)
	assert.Equal(t, models.EligibilityPending, p.Eligibility(), "the candidate record is not mutated")

	store.AssertNotCalled(t, "GetPlaceholder", mock.Anything, mock.Anything)
	assert.Equal(t, []models.TimelineEventType{models.EventPlaceholderReplaced}, notifier.types())
}

func TestManager_SweepNotifiesEachExpiry(t *testing.T) {
	store := &mockStore{}
	fake := clock.NewFake(t0.Add(testWindow))
	notifier := &recordingNotifier{}
	logger, hook := test.NewNullLogger()
	m, err := NewManager(store, staticThreads{id: testThreadID}, testWindow, logger,
		WithClock(fake), WithNotifier(notifier), WithMetrics(metrics.NewRegistry()))
	require.NoError(t, err)

	key := models.MatchKey{Sender: testSender, OriginalTimestamp: testTS}
	p := newFakePlaceholder(t, testThreadID, key, t0, testWindow, models.EligibilityPending)
	store.On("ListExpirablePlaceholders", mock.Anything, fake.Now(), mock.Anything).Return([]*models.Placeholder{p}, nil).Once()
	store.On("ListExpirablePlaceholders", mock.Anything, fake.Now(), mock.Anything).Return(nil, nil)
	store.On("CompareAndExpire", mock.Anything, p.ID(), int64(0), fake.Now()).Return(true, nil)

	n, err := m.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, models.EventPlaceholderExpired, notifier.events[0].Type)
	assert.Equal(t, p.ID(), notifier.events[0].EntryID)
	for _, entry := range hook.AllEntries() {
		assert.NotEqual(t, logrus.ErrorLevel, entry.Level, entry.Message)
	}
}
