package oplog

import (
	"context"
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
	log   *Log
	store *sqlite.Storage
	sink  *audit.MemorySink
	clock *testClock
}

func setupTestLog(t *testing.T, opts ...Option) *testEnv {
	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	logger := setupTestLogger()
	clock := &testClock{t: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	sink := audit.NewMemorySink()

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	l := New(store, audit.NewRecorder(sink, logger), logger, opts...)

	return &testEnv{log: l, store: store, sink: sink, clock: clock}
}

func (env *testEnv) createSession(t *testing.T, id, doc, actor string) {
	now := env.clock.Now()
	err := env.store.CreateSession(context.Background(), &models.EditSession{
		ID:             id,
		DocumentID:     doc,
		ActorID:        actor,
		Discipline:     models.DisciplineOptimistic,
		Status:         models.SessionActive,
		Active:         true,
		StartedAt:      now,
		LastActivityAt: now,
	})
	require.NoError(t, err)
}

func insertAt(line, char int) AppendRequest {
	return AppendRequest{
		Kind:     models.OperationInsert,
		Position: models.Position{Line: line, Character: char},
		Content:  "x",
	}
}

func TestLog_Append(t *testing.T) {
	ctx := context.Background()
	env := setupTestLog(t)
	env.createSession(t, "s-a", "D1", "A")

	env.clock.Advance(time.Minute)
	first, err := env.log.Append(ctx, "s-a", insertAt(1, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.SequenceNumber)
	assert.Equal(t, "D1", first.DocumentID)
	assert.Equal(t, "A", first.ActorID)

	second, err := env.log.Append(ctx, "s-a", insertAt(1, 2))
	require.NoError(t, err)
	assert.Equal(t, int64(2), second.SequenceNumber)

	s, err := env.store.GetSession(ctx, "s-a")
	require.NoError(t, err)
	assert.True(t, s.LastActivityAt.Equal(env.clock.Now()), "append touches the session")

	records := env.sink.Records()
	require.Len(t, records, 2)
	assert.Equal(t, audit.Digest("x"), records[0].Details["content_hash"])
	assert.NotContains(t, records[0].Details, "content")

	ops, err := env.log.ForSession(ctx, "s-a")
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, first.ID, ops[0].ID)

	got, err := env.log.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.SequenceNumber, got.SequenceNumber)

	_, err = env.log.Get(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestLog_Append_Rejections(t *testing.T) {
	ctx := context.Background()
	env := setupTestLog(t)
	env.createSession(t, "s-a", "D1", "A")

	_, err := env.log.Append(ctx, "missing", insertAt(1, 1))
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = env.log.Append(ctx, "s-a", AppendRequest{Kind: models.OperationInsert, Position: models.Position{Line: -1}, Content: "x"})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = env.log.Append(ctx, "s-a", AppendRequest{Kind: "paste"})
	assert.ErrorIs(t, err, errs.ErrInvalid)

	_, err = env.store.DeactivateSession(ctx, "s-a", models.SessionEnded, "ended", env.clock.Now())
	require.NoError(t, err)

	_, err = env.log.Append(ctx, "s-a", insertAt(1, 1))
	assert.ErrorIs(t, err, errs.ErrInactive)

	ops, err := env.log.ForSession(ctx, "s-a")
	require.NoError(t, err)
	assert.Empty(t, ops)
}

func TestLog_Append_ConcurrentSequenceIsGapless(t *testing.T) {
	ctx := context.Background()
	env := setupTestLog(t)
	env.createSession(t, "s-a", "D1", "A")
	env.createSession(t, "s-b", "D1", "B")

	const perSession = 25
	var wg sync.WaitGroup
	for _, sessionID := range []string{"s-a", "s-b"} {
		for i := 0; i < perSession; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := env.log.Append(ctx, sessionID, insertAt(i, 0))
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	for _, sessionID := range []string{"s-a", "s-b"} {
		ops, err := env.log.ForSession(ctx, sessionID)
		require.NoError(t, err)
		require.Len(t, ops, perSession)
		for i, op := range ops {
			assert.Equal(t, int64(i+1), op.SequenceNumber)
		}
	}
}

func TestLog_Recent(t *testing.T) {
	ctx := context.Background()
	env := setupTestLog(t, WithPageSize(2))
	env.createSession(t, "s-a", "D1", "A")
	env.createSession(t, "s-b", "D1", "B")
	env.createSession(t, "s-c", "D2", "C")

	start := env.clock.Now()
	var bOps []*models.EditOperation
	for i := 0; i < 5; i++ {
		op, err := env.log.Append(ctx, "s-b", insertAt(i, 0))
		require.NoError(t, err)
		bOps = append(bOps, op)
		env.clock.Advance(time.Second)
	}
	_, err := env.log.Append(ctx, "s-a", insertAt(1, 1))
	require.NoError(t, err)
	_, err = env.log.Append(ctx, "s-c", insertAt(1, 1))
	require.NoError(t, err)

	t.Run("newest first across pages, other actors only", func(t *testing.T) {
		ops, err := Collect(env.log.Recent(ctx, "D1", "A", 0))
		require.NoError(t, err)
		require.Len(t, ops, 5)
		for i, op := range ops {
			assert.Equal(t, bOps[4-i].ID, op.ID)
			assert.Equal(t, "B", op.ActorID)
		}
	})

	t.Run("restartable", func(t *testing.T) {
		seq := env.log.Recent(ctx, "D1", "A", 0)
		first, err := Collect(seq)
		require.NoError(t, err)
		second, err := Collect(seq)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("early stop", func(t *testing.T) {
		n := 0
		for _, err := range env.log.Recent(ctx, "D1", "A", 0) {
			require.NoError(t, err)
			n++
			if n == 3 {
				break
			}
		}
		assert.Equal(t, 3, n)
	})

	t.Run("window boundary is inclusive", func(t *testing.T) {
		// bOps[0] отправлена ровно в start
		env.clock.t = start.Add(DefaultWindow)
		ops, err := Collect(env.log.Recent(ctx, "D1", "A", 0))
		require.NoError(t, err)
		assert.Len(t, ops, 5)

		env.clock.t = start.Add(DefaultWindow + time.Nanosecond)
		ops, err = Collect(env.log.Recent(ctx, "D1", "A", 0))
		require.NoError(t, err)
		assert.Len(t, ops, 4)

		// окно настраивается
		ops, err = Collect(env.log.Recent(ctx, "D1", "A", time.Hour))
		require.NoError(t, err)
		assert.Len(t, ops, 5)
	})

	t.Run("configured default window", func(t *testing.T) {
		narrow := New(env.store, nil, setupTestLogger(), WithClock(func() time.Time { return start.Add(10 * time.Second) }), WithWindow(7*time.Second))
		assert.Equal(t, 7*time.Second, narrow.Window())

		ops, err := Collect(narrow.Recent(ctx, "D1", "", 0))
		require.NoError(t, err)
		// в окне [start+3s, start+10s]: две операции B и одна A
		assert.Len(t, ops, 3)
	})
}
