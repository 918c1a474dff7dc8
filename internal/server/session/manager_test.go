package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/doccollab/internal/errs"
	"github.com/iudanet/doccollab/internal/models"
	"github.com/iudanet/doccollab/internal/server/audit"
	"github.com/iudanet/doccollab/internal/server/lock"
	"github.com/iudanet/doccollab/internal/server/notify"
	"github.com/iudanet/doccollab/internal/server/storage"
	"github.com/iudanet/doccollab/internal/server/storage/sqlite"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type testClock struct {
	t  time.Time
	mu sync.Mutex
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	manager *Manager
	locks   *lock.Manager
	store   *sqlite.Storage
	sink    *audit.MemorySink
	pub     *notify.MemoryPublisher
	clock   *testClock
}

func setupTestEnv(t *testing.T, sessions storage.SessionStorage) *testEnv {
	ctx := context.Background()
	store, err := sqlite.New(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	if sessions == nil {
		sessions = store
	}

	logger := setupTestLogger()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	sink := audit.NewMemorySink()
	pub := &notify.MemoryPublisher{}
	recorder := audit.NewRecorder(sink, logger)
	notifier := notify.NewNotifier(pub, "test", logger)

	locks := lock.NewManager(store, recorder, notifier, logger, lock.WithClock(clock.Now))
	m := NewManager(sessions, store, locks, recorder, notifier, logger, WithClock(clock.Now))

	require.NoError(t, store.CreateDocument(ctx, &models.Document{ID: "D1", OwnerID: "A", Title: "Doc", CreatedAt: clock.Now()}))
	require.NoError(t, store.GrantEdit(ctx, "D1", "B"))

	return &testEnv{manager: m, locks: locks, store: store, sink: sink, pub: pub, clock: clock}
}

func TestManager_Start(t *testing.T) {
	ctx := context.Background()

	t.Run("optimistic", func(t *testing.T) {
		env := setupTestEnv(t, nil)

		started, err := env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "A", Discipline: models.DisciplineOptimistic})
		require.NoError(t, err)
		assert.Nil(t, started.Lock)

		s := started.Session
		assert.True(t, s.Active)
		assert.Equal(t, models.SessionActive, s.Status)
		assert.Equal(t, "A", s.ActorName, "display name defaults to actor id")
		assert.NotEmpty(t, s.ClientID)
		assert.Equal(t, env.clock.Now(), s.LastActivityAt)

		stored, err := env.manager.Get(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ClientID, stored.ClientID)

		records := env.sink.Records()
		require.Len(t, records, 1)
		assert.Equal(t, models.EventSessionStarted, records[0].Kind)
		assert.Equal(t, "optimistic", records[0].Details["discipline"])
	})

	t.Run("client ids are unique", func(t *testing.T) {
		env := setupTestEnv(t, nil)

		a, err := env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "A", Discipline: models.DisciplineShared})
		require.NoError(t, err)
		b, err := env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "B", Discipline: models.DisciplineShared})
		require.NoError(t, err)
		assert.NotEqual(t, a.Session.ClientID, b.Session.ClientID)
		require.NotNil(t, a.Lock)
		assert.Equal(t, a.Session.ID, a.Lock.SessionID)
	})

	t.Run("exclusive denies region and creates no session", func(t *testing.T) {
		env := setupTestEnv(t, nil)

		_, err := env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "A", Discipline: models.DisciplineExclusive})
		require.NoError(t, err)

		_, err = env.manager.Start(ctx, StartRequest{
			DocumentID: "D1",
			ActorID:    "B",
			Discipline: models.DisciplineRegion,
			Region:     &models.Region{Lines: &models.Range{Start: 1, End: 4}},
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrConflict)

		sessions, err := env.store.ListSessions(ctx, storage.SessionFilter{DocumentID: "D1", ActorID: "B"})
		require.NoError(t, err)
		assert.Empty(t, sessions)
	})

	t.Run("rejections", func(t *testing.T) {
		env := setupTestEnv(t, nil)

		tests := []struct {
			name string
			req  StartRequest
			kind error
		}{
			{"unknown document", StartRequest{DocumentID: "nope", ActorID: "A", Discipline: models.DisciplineShared}, errs.ErrNotFound},
			{"no capability", StartRequest{DocumentID: "D1", ActorID: "C", Discipline: models.DisciplineShared}, errs.ErrForbidden},
			{"bad document id", StartRequest{DocumentID: "D.1", ActorID: "A", Discipline: models.DisciplineShared}, errs.ErrInvalid},
			{"bad discipline", StartRequest{DocumentID: "D1", ActorID: "A", Discipline: "sometimes"}, errs.ErrInvalid},
			{"region missing", StartRequest{DocumentID: "D1", ActorID: "A", Discipline: models.DisciplineRegion}, errs.ErrInvalid},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.manager.Start(ctx, tt.req)
				assert.ErrorIs(t, err, tt.kind)
			})
		}
	})
}

// failingSessions отказывает в создании сессии
type failingSessions struct {
	storage.SessionStorage
}

func (failingSessions) CreateSession(context.Context, *models.EditSession) error {
	return errors.New("disk I/O error")
}

func TestManager_Start_RollsBackLock(t *testing.T) {
	ctx := context.Background()

	env := setupTestEnv(t, nil)
	env.manager.store = failingSessions{SessionStorage: env.store}

	_, err := env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "A", Discipline: models.DisciplineExclusive})
	require.Error(t, err)

	active, err := env.locks.Active(ctx, "D1")
	require.NoError(t, err)
	assert.Empty(t, active, "lock must not outlive a failed session start")

	// документ снова свободен
	env.manager.store = env.store
	_, err = env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "B", Discipline: models.DisciplineExclusive})
	assert.NoError(t, err)
}

func TestManager_End(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, nil)

	started, err := env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "A", Discipline: models.DisciplineExclusive})
	require.NoError(t, err)

	assert.ErrorIs(t, env.manager.End(ctx, "missing", "A"), errs.ErrNotFound)
	assert.ErrorIs(t, env.manager.End(ctx, started.Session.ID, "B"), errs.ErrForbidden)

	env.clock.Advance(90 * time.Second)
	require.NoError(t, env.manager.End(ctx, started.Session.ID, "A"))

	s, err := env.manager.Get(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.False(t, s.Active)
	assert.Equal(t, models.SessionEnded, s.Status)
	assert.Equal(t, EndReasonEnded, s.EndReason)

	l, err := env.store.GetLock(ctx, started.Lock.ID)
	require.NoError(t, err)
	assert.False(t, l.Active)
	assert.Equal(t, models.ReleaseReasonSessionEnded, l.ReleaseReason)

	var ended *audit.Record
	for _, rec := range env.sink.Records() {
		if rec.Kind == models.EventSessionEnded {
			ended = &rec
		}
	}
	require.NotNil(t, ended)
	assert.Equal(t, "90", ended.Details["duration_s"])
	assert.Equal(t, "1", ended.Details["locks_released"])

	// повторное завершение ничего не меняет
	require.NoError(t, env.manager.End(ctx, started.Session.ID, "A"))
	s, err = env.manager.Get(ctx, started.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionEnded, s.Status)

	active, err := env.manager.Active(ctx, "D1")
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestManager_SweepExpired(t *testing.T) {
	ctx := context.Background()
	env := setupTestEnv(t, nil)

	idle, err := env.manager.Start(ctx, StartRequest{
		DocumentID: "D1",
		ActorID:    "A",
		Discipline: models.DisciplineRegion,
		Region:     &models.Region{Section: "intro"},
	})
	require.NoError(t, err)

	env.clock.Advance(30 * time.Minute)
	busy, err := env.manager.Start(ctx, StartRequest{DocumentID: "D1", ActorID: "B", Discipline: models.DisciplineOptimistic})
	require.NoError(t, err)

	env.clock.Advance(31 * time.Minute)

	n, err := env.manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	s, err := env.manager.Get(ctx, idle.Session.ID)
	require.NoError(t, err)
	assert.False(t, s.Active)
	assert.Equal(t, models.SessionExpired, s.Status)
	assert.Equal(t, models.ReleaseReasonTimeout, s.EndReason)

	l, err := env.store.GetLock(ctx, idle.Lock.ID)
	require.NoError(t, err)
	assert.False(t, l.Active)
	assert.Equal(t, models.ReleaseReasonTimeout, l.ReleaseReason)

	s, err = env.manager.Get(ctx, busy.Session.ID)
	require.NoError(t, err)
	assert.True(t, s.Active)

	// повторный проход ничего не находит
	n, err = env.manager.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.Contains(t, env.pub.Kinds(), models.EventSessionExpired)

	// истекшая сессия не возобновляется
	assert.NoError(t, env.manager.End(ctx, idle.Session.ID, "A"))
	s, err = env.manager.Get(ctx, idle.Session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionExpired, s.Status)
}
