package exam

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCoordinatorForTest(t *testing.T, submit func(ctx context.Context, auto bool) error) (*Coordinator, *AnswerStore) {
	t.Helper()
	store := newHydratedStore(t)
	c := NewCoordinator(store, submit)
	c.tick = 5 * time.Millisecond
	return c, store
}

func TestCoordinator_ManualSubmitSuccess(t *testing.T) {
	var autoSeen atomic.Bool
	c, _ := newCoordinatorForTest(t, func(ctx context.Context, auto bool) error {
		autoSeen.Store(auto)
		return nil
	})

	require.NoError(t, c.ManualSubmit(context.Background()))
	require.Equal(t, SubmitDone, c.State())
	require.False(t, autoSeen.Load(), "manual submission must not be marked automatic")

	require.ErrorIs(t, c.ManualSubmit(context.Background()), ErrAlreadySubmitted)
}

func TestCoordinator_ManualFailureIsRetriable(t *testing.T) {
	calls := 0
	c, _ := newCoordinatorForTest(t, func(ctx context.Context, auto bool) error {
		calls++
		if calls == 1 {
			return errors.New("db down")
		}
		return nil
	})

	require.Error(t, c.ManualSubmit(context.Background()))
	require.Equal(t, SubmitIdle, c.State(), "failed manual submit returns to idle")

	require.NoError(t, c.ManualSubmit(context.Background()))
	require.Equal(t, SubmitDone, c.State())
	require.Equal(t, 2, calls)
}

func TestCoordinator_GuardBlocksConcurrentSubmit(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	c, _ := newCoordinatorForTest(t, func(ctx context.Context, auto bool) error {
		close(started)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = c.ManualSubmit(context.Background())
	}()

	<-started
	require.ErrorIs(t, c.ManualSubmit(context.Background()), ErrSubmitInFlight)
	close(release)
	wg.Wait()
	require.Equal(t, SubmitDone, c.State())
}

func TestCoordinator_AutoSubmitFiresOnceAtZero(t *testing.T) {
	var calls atomic.Int32
	var sawAuto atomic.Bool
	c, store := newCoordinatorForTest(t, func(ctx context.Context, auto bool) error {
		calls.Add(1)
		sawAuto.Store(auto)
		return nil
	})

	// Zero duration: the deadline is already due on the first check.
	_, err := store.InitializeExam(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, SubmitDone, c.State())
	require.Equal(t, int32(1), calls.Load(), "timer-zero submission fires exactly once")
	require.True(t, sawAuto.Load(), "timer-driven submission must be marked automatic")
}

func TestCoordinator_AutoFailureIsTerminal(t *testing.T) {
	var calls atomic.Int32
	c, store := newCoordinatorForTest(t, func(ctx context.Context, auto bool) error {
		calls.Add(1)
		return errors.New("db down")
	})

	_, err := store.InitializeExam(context.Background(), 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, SubmitFailed, c.State())
	require.Equal(t, int32(1), calls.Load(), "the timer must not retry a failed auto-submit")
	require.ErrorIs(t, c.ManualSubmit(context.Background()), ErrSubmitTerminal)
}

func TestCoordinator_NoDeadlineNeverFires(t *testing.T) {
	var calls atomic.Int32
	c, _ := newCoordinatorForTest(t, func(ctx context.Context, auto bool) error {
		calls.Add(1)
		return nil
	})

	// Hydrated but never initialized: DeadlineNone, the watcher idles.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, SubmitIdle, c.State())
	require.Equal(t, int32(0), calls.Load())
}

func TestCoordinator_UnknownDeadlineNeverFires(t *testing.T) {
	var calls atomic.Int32
	store := NewAnswerStore(NewMemoryStorage(), "exam:session:1:1")
	c := NewCoordinator(store, func(ctx context.Context, auto bool) error {
		calls.Add(1)
		return nil
	})
	c.tick = 5 * time.Millisecond

	// Not rehydrated: remaining reads as zero but the state is Unknown,
	// which must not be mistaken for an expired deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	c.Run(ctx)

	require.Equal(t, int32(0), calls.Load())
}
