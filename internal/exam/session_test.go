package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	loadErr error
	saveErr error
}

func (f *failingStorage) Load(ctx context.Context, key string) (Snapshot, bool, error) {
	return Snapshot{}, false, f.loadErr
}

func (f *failingStorage) Save(ctx context.Context, key string, snap Snapshot) error {
	return f.saveErr
}

func (f *failingStorage) Delete(ctx context.Context, key string) error {
	return nil
}

func newHydratedStore(t *testing.T) *AnswerStore {
	t.Helper()
	store := NewAnswerStore(NewMemoryStorage(), "exam:session:1:1")
	require.NoError(t, store.Rehydrate(context.Background()))
	return store
}

func TestAnswerStore_RequiresHydration(t *testing.T) {
	store := NewAnswerStore(NewMemoryStorage(), "exam:session:1:1")
	ctx := context.Background()

	_, err := store.InitializeExam(ctx, time.Hour)
	require.ErrorIs(t, err, ErrNotHydrated)
	require.ErrorIs(t, store.SetAnswer(ctx, 1, []int64{1}), ErrNotHydrated)

	state, _ := store.Deadline()
	require.Equal(t, DeadlineUnknown, state, "unhydrated store must not report a definite deadline")

	_, remState := store.Remaining(time.Now())
	require.Equal(t, DeadlineUnknown, remState)
}

func TestAnswerStore_InitializeExamIsIdempotent(t *testing.T) {
	store := newHydratedStore(t)
	ctx := context.Background()

	first, err := store.InitializeExam(ctx, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.SetAnswer(ctx, 1, []int64{2}))

	// A reload calls InitializeExam again; it must return the same
	// deadline and keep the answers.
	second, err := store.InitializeExam(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.True(t, first.Equal(second), "second initialize must not move the deadline")
	require.Equal(t, []int64{2}, store.Selections(1))
}

func TestAnswerStore_RehydrateRestoresSnapshot(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	original := NewAnswerStore(storage, "exam:session:9:4")
	require.NoError(t, original.Rehydrate(ctx))
	endsAt, err := original.InitializeExam(ctx, time.Hour)
	require.NoError(t, err)
	require.NoError(t, original.SetAnswer(ctx, 10, []int64{1, 2}))
	require.NoError(t, original.SetFlag(ctx, 10, true))

	// Simulate a reload: a fresh store against the same storage key.
	reloaded := NewAnswerStore(storage, "exam:session:9:4")
	require.NoError(t, reloaded.Rehydrate(ctx))

	state, deadline := reloaded.Deadline()
	require.Equal(t, DeadlineSet, state)
	require.Equal(t, endsAt.UnixMilli(), deadline.UnixMilli())
	require.Equal(t, []int64{1, 2}, reloaded.Selections(10))
	require.True(t, reloaded.Flags()[10])
}

func TestAnswerStore_RehydrateFailureDegradesToEmpty(t *testing.T) {
	store := NewAnswerStore(&failingStorage{loadErr: errors.New("redis down")}, "exam:session:1:1")

	err := store.Rehydrate(context.Background())
	require.Error(t, err)

	// Degraded but usable: the store is hydrated-empty so the student
	// can restart instead of being locked out.
	state, _ := store.Deadline()
	require.Equal(t, DeadlineNone, state)
}

func TestAnswerStore_RemainingClampsAndFloors(t *testing.T) {
	store := newHydratedStore(t)
	ctx := context.Background()

	endsAt, err := store.InitializeExam(ctx, time.Hour)
	require.NoError(t, err)

	remaining, state := store.Remaining(endsAt.Add(-90500 * time.Millisecond))
	require.Equal(t, DeadlineSet, state)
	require.Equal(t, int64(90), remaining, "partial seconds floor down")

	remaining, _ = store.Remaining(endsAt.Add(time.Minute))
	require.Equal(t, int64(0), remaining, "past-deadline remaining clamps to zero")
}

func TestAnswerStore_EmptySelectionUnanswersQuestion(t *testing.T) {
	store := newHydratedStore(t)
	ctx := context.Background()
	_, err := store.InitializeExam(ctx, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.SetAnswer(ctx, 5, []int64{1}))
	require.NoError(t, store.SetAnswer(ctx, 5, nil))

	require.Empty(t, store.Selections(5))
	_, present := store.Answers()[5]
	require.False(t, present, "cleared question must vanish from the answers map")
}

func TestAnswerStore_ClearExamDeletesSnapshot(t *testing.T) {
	storage := NewMemoryStorage()
	ctx := context.Background()

	store := NewAnswerStore(storage, "exam:session:2:2")
	require.NoError(t, store.Rehydrate(ctx))
	_, err := store.InitializeExam(ctx, time.Hour)
	require.NoError(t, err)
	require.NoError(t, store.SetAnswer(ctx, 1, []int64{1}))

	require.NoError(t, store.ClearExam(ctx))

	state, _ := store.Deadline()
	require.Equal(t, DeadlineNone, state)

	_, found, err := storage.Load(ctx, "exam:session:2:2")
	require.NoError(t, err)
	require.False(t, found, "snapshot must be deleted, not just emptied")
}
