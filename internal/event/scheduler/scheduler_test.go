package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopstream/internal/event/models"
	"shopstream/internal/event/store"
	"shopstream/pkg/testutil"
)

func TestDelay(t *testing.T) {
	base, ceiling := 5*time.Second, 300*time.Second

	assert.Equal(t, 5*time.Second, Delay(0, base, ceiling))
	assert.Equal(t, 10*time.Second, Delay(1, base, ceiling))
	assert.Equal(t, 20*time.Second, Delay(2, base, ceiling))
	assert.Equal(t, 40*time.Second, Delay(3, base, ceiling))
	assert.Equal(t, 80*time.Second, Delay(4, base, ceiling))
	assert.Equal(t, 160*time.Second, Delay(5, base, ceiling))
	assert.Equal(t, 300*time.Second, Delay(6, base, ceiling))
	assert.Equal(t, 300*time.Second, Delay(100, base, ceiling), "no overflow past the cap")
	assert.Equal(t, time.Duration(0), Delay(3, 0, ceiling))
}

func TestDelay_NonDecreasing(t *testing.T) {
	base, ceiling := 5*time.Second, 300*time.Second
	prev := time.Duration(0)
	for n := 0; n <= 10; n++ {
		d := Delay(n, base, ceiling)
		assert.GreaterOrEqual(t, d, prev, "retry %d", n)
		prev = d
	}
}

func failedEvent(t *testing.T, st store.Store, now time.Time) *models.Event {
	t.Helper()
	ctx := context.Background()

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))
	_, err := st.ClaimPending(ctx, 1, now)
	require.NoError(t, err)
	updated, err := st.MarkFailed(ctx, ev.ID, "timeout", 5, now)
	require.NoError(t, err)
	return updated
}

func TestRunOnce_ReleasesDueEvents(t *testing.T) {
	st := store.NewInMemory()
	now := testutil.FixedTime
	ev := failedEvent(t, st, now)

	// retry_count is 1, backoff 10s from the failure.
	sched := New(st, testutil.Metrics(), testutil.Logger(), 5, 5*time.Second, 300*time.Second,
		WithClock(func() time.Time { return now.Add(15 * time.Second) }))

	released, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, released)

	found, err := st.GetByID(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, found.Status)
	assert.Empty(t, found.ErrorMessage)
	assert.Equal(t, 1, found.RetryCount)
}

type recordedTransition struct {
	from models.EventStatus
	to   models.EventStatus
}

type stubRecorder struct {
	transitions []recordedTransition
}

func (r *stubRecorder) Record(_ context.Context, ev *models.Event, from models.EventStatus) error {
	r.transitions = append(r.transitions, recordedTransition{from: from, to: ev.Status})
	return nil
}

func TestRunOnce_RecordsReleaseTransition(t *testing.T) {
	st := store.NewInMemory()
	now := testutil.FixedTime
	failedEvent(t, st, now)

	rec := &stubRecorder{}
	sched := New(st, testutil.Metrics(), testutil.Logger(), 5, 5*time.Second, 300*time.Second,
		WithClock(func() time.Time { return now.Add(15 * time.Second) }),
		WithRecorder(rec))

	released, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, released)

	require.Len(t, rec.transitions, 1)
	assert.Equal(t, models.StatusFailed, rec.transitions[0].from)
	assert.Equal(t, models.StatusPending, rec.transitions[0].to)
}

func TestRunOnce_RespectsBackoff(t *testing.T) {
	st := store.NewInMemory()
	now := testutil.FixedTime
	ev := failedEvent(t, st, now)

	sched := New(st, testutil.Metrics(), testutil.Logger(), 5, 5*time.Second, 300*time.Second,
		WithClock(func() time.Time { return now.Add(5 * time.Second) }))

	released, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)

	found, err := st.GetByID(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, found.Status)
}

func TestRunOnce_SkipsAlreadyReleased(t *testing.T) {
	st := store.NewInMemory()
	now := testutil.FixedTime
	ev := failedEvent(t, st, now)

	// Simulate a competing instance winning the reset between list and CAS.
	ok, err := st.ResetForRetry(context.Background(), ev.ID, now)
	require.NoError(t, err)
	require.True(t, ok)

	sched := New(st, testutil.Metrics(), testutil.Logger(), 5, 5*time.Second, 300*time.Second,
		WithClock(func() time.Time { return now.Add(time.Hour) }))

	released, err := sched.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, released)
}

func TestStartStop(t *testing.T) {
	st := store.NewInMemory()
	sched := New(st, testutil.Metrics(), testutil.Logger(), 5, 5*time.Second, 300*time.Second,
		WithInterval(10*time.Millisecond))

	sched.Start()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sched.Stop(ctx))
}
