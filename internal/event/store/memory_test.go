package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopstream/internal/event/models"
	"shopstream/internal/sentinel"
	"shopstream/pkg/domain"
	"shopstream/pkg/testutil"
)

func TestInsert_AssignsID(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))
	assert.Equal(t, domain.EventID(1), ev.ID)

	found, err := st.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.IdempotencyKey, found.IdempotencyKey)
	assert.Equal(t, models.StatusPending, found.Status)
}

func TestInsert_DuplicateKeyReturnsSentinel(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	first := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, first))

	second := testutil.NewEventBuilder().Build()
	err := st.Insert(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrDuplicate)

	found, err := st.GetByIdempotencyKey(ctx, first.IdempotencyKey)
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID, "original record survives the duplicate attempt")
}

func TestInsert_ConcurrentSameKey(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	result := testutil.RunConcurrent(10, func(int) error {
		return st.Insert(ctx, testutil.NewEventBuilder().Build())
	})

	assert.Equal(t, int32(1), result.Successes)
	assert.Equal(t, int32(9), result.Duplicates)
	assert.Zero(t, result.Errors)
}

func TestGetByID_NotFound(t *testing.T) {
	st := NewInMemory()
	_, err := st.GetByID(context.Background(), 999)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestClaimPending_OldestFirstAndLimited(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	base := testutil.FixedTime

	for i := 0; i < 3; i++ {
		ev := testutil.NewEventBuilder().
			WithEntityID(domain.ExternalID(string(rune('a' + i)))).
			WithReceivedAt(base.Add(time.Duration(2-i) * time.Minute)).
			Build()
		require.NoError(t, st.Insert(ctx, ev))
	}

	claimed, err := st.ClaimPending(ctx, 2, base.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.True(t, claimed[0].ReceivedAt.Before(claimed[1].ReceivedAt))
	for _, ev := range claimed {
		assert.Equal(t, models.StatusProcessing, ev.Status)
	}

	rest, err := st.ClaimPending(ctx, 10, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestClaimPending_NoDoubleClaim(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))

	var claimedTotal atomic.Int32
	result := testutil.RunConcurrent(8, func(int) error {
		claimed, err := st.ClaimPending(ctx, 10, time.Now())
		if err != nil {
			return err
		}
		claimedTotal.Add(int32(len(claimed)))
		return nil
	})

	assert.Equal(t, int32(8), result.Successes)
	assert.Equal(t, int32(1), claimedTotal.Load(), "only one claim may win")
}

func TestMarkCompleted(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))

	err := st.MarkCompleted(ctx, ev.ID, now)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState, "pending cannot complete")

	_, err = st.ClaimPending(ctx, 1, now)
	require.NoError(t, err)
	require.NoError(t, st.MarkCompleted(ctx, ev.ID, now.Add(time.Second)))

	found, err := st.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, found.Status)
	require.NotNil(t, found.ProcessedAt)

	assert.ErrorIs(t, st.MarkCompleted(ctx, ev.ID, now), sentinel.ErrInvalidState)
	assert.ErrorIs(t, st.MarkCompleted(ctx, 999, now), sentinel.ErrNotFound)
}

func TestMarkFailed_PromotionAtMaxRetries(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))

	// Fail through the whole retry budget.
	for attempt := 1; attempt <= 5; attempt++ {
		_, err := st.ClaimPending(ctx, 1, now)
		require.NoError(t, err)

		updated, err := st.MarkFailed(ctx, ev.ID, "timeout", 5, now)
		require.NoError(t, err)
		assert.Equal(t, attempt, updated.RetryCount)

		if attempt < 5 {
			assert.Equal(t, models.StatusFailed, updated.Status)
			ok, err := st.ResetForRetry(ctx, ev.ID, now)
			require.NoError(t, err)
			require.True(t, ok)
		} else {
			assert.Equal(t, models.StatusDeadLetter, updated.Status)
			require.NotNil(t, updated.ProcessedAt)
		}
	}
}

func TestResetForRetry_OnlyFailed(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))

	ok, err := st.ResetForRetry(ctx, ev.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "pending is not resettable; another instance may have won")

	_, err = st.ResetForRetry(ctx, 999, now)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestListFailedDue_BackoffWindows(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))
	_, err := st.ClaimPending(ctx, 1, now)
	require.NoError(t, err)
	_, err = st.MarkFailed(ctx, ev.ID, "timeout", 5, now)
	require.NoError(t, err)

	base, ceiling := 5*time.Second, 300*time.Second

	// retry_count is 1, so the delay is 10s from the failure.
	due, err := st.ListFailedDue(ctx, now.Add(9*time.Second), 5, base, ceiling, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = st.ListFailedDue(ctx, now.Add(10*time.Second), 5, base, ceiling, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, ev.ID, due[0].ID)
}

func TestListFailedDue_ExcludesExhausted(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	ev := testutil.NewEventBuilder().Build()
	require.NoError(t, st.Insert(ctx, ev))
	_, err := st.ClaimPending(ctx, 1, now)
	require.NoError(t, err)
	_, err = st.MarkFailed(ctx, ev.ID, "timeout", 2, now)
	require.NoError(t, err)

	// maxRetries 1 treats retry_count 1 as exhausted even though the row
	// still says failed.
	due, err := st.ListFailedDue(ctx, now.Add(time.Hour), 1, time.Second, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestRevertStuck(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	stuck := testutil.NewEventBuilder().WithEntityID("stuck").Build()
	fresh := testutil.NewEventBuilder().WithEntityID("fresh").WithReceivedAt(now.Add(time.Minute)).Build()
	require.NoError(t, st.Insert(ctx, stuck))
	require.NoError(t, st.Insert(ctx, fresh))

	claimed, err := st.ClaimPending(ctx, 1, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Equal(t, stuck.IdempotencyKey, claimed[0].IdempotencyKey)

	_, err = st.ClaimPending(ctx, 1, now.Add(10*time.Minute))
	require.NoError(t, err)

	// Only the claim older than the cutoff is reverted.
	reverted, err := st.RevertStuck(ctx, now.Add(5*time.Minute), 5, now.Add(11*time.Minute))
	require.NoError(t, err)
	require.Len(t, reverted, 1)
	assert.Equal(t, models.StatusFailed, reverted[0].Status)
	assert.Equal(t, 1, reverted[0].RetryCount, "stuck recovery charges the retry budget")
	assert.Equal(t, "processing timeout exceeded", reverted[0].ErrorMessage)
}

func TestCountByStatusAndOldestPendingAge(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	_, ok, err := st.OldestPendingAge(ctx, now)
	require.NoError(t, err)
	assert.False(t, ok)

	for i := 0; i < 3; i++ {
		ev := testutil.NewEventBuilder().
			WithEntityID(domain.ExternalID(string(rune('a' + i)))).
			WithReceivedAt(now.Add(time.Duration(i) * time.Minute)).
			Build()
		require.NoError(t, st.Insert(ctx, ev))
	}
	claimed, err := st.ClaimPending(ctx, 1, now)
	require.NoError(t, err)
	require.NoError(t, st.MarkCompleted(ctx, claimed[0].ID, now))

	counts, err := st.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[models.StatusPending])
	assert.Equal(t, int64(1), counts[models.StatusCompleted])

	age, ok, err := st.OldestPendingAge(ctx, now.Add(10*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 9*time.Minute, age)
}

func TestListByTenant(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	for i := 0; i < 3; i++ {
		ev := testutil.NewEventBuilder().
			WithEntityID(domain.ExternalID(string(rune('a' + i)))).
			WithReceivedAt(now.Add(time.Duration(i) * time.Minute)).
			Build()
		require.NoError(t, st.Insert(ctx, ev))
	}
	other := testutil.NewEventBuilder().WithTenantID(2).Build()
	require.NoError(t, st.Insert(ctx, other))

	events, err := st.ListByTenant(ctx, 1, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.True(t, events[0].ReceivedAt.After(events[1].ReceivedAt), "newest first")

	page, err := st.ListByTenant(ctx, 1, "", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	pending, err := st.ListByTenant(ctx, 1, models.StatusPending, 10, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 3)

	completed, err := st.ListByTenant(ctx, 1, models.StatusCompleted, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, completed)
}

func TestTenantsWithOrderingFailures(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	ordering := testutil.NewEventBuilder().WithTenantID(3).WithEntityID("o1").Build()
	plain := testutil.NewEventBuilder().WithTenantID(4).WithEntityID("o2").Build()
	require.NoError(t, st.Insert(ctx, ordering))
	require.NoError(t, st.Insert(ctx, plain))

	_, err := st.ClaimPending(ctx, 10, now)
	require.NoError(t, err)
	_, err = st.MarkFailed(ctx, ordering.ID, OrderingErrorPrefix+": event arrived behind the projection", 5, now)
	require.NoError(t, err)
	_, err = st.MarkFailed(ctx, plain.ID, "timeout", 5, now)
	require.NoError(t, err)

	tenants, err := st.TenantsWithOrderingFailures(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []domain.TenantID{3}, tenants)

	// Failures older than the window are not reported.
	tenants, err = st.TenantsWithOrderingFailures(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Empty(t, tenants)
}

func TestLastReceivedAt(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()
	now := testutil.FixedTime

	last, err := st.LastReceivedAt(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, last)

	early := testutil.NewEventBuilder().WithEntityID("a").WithReceivedAt(now).Build()
	late := testutil.NewEventBuilder().WithEntityID("b").WithReceivedAt(now.Add(time.Hour)).Build()
	require.NoError(t, st.Insert(ctx, early))
	require.NoError(t, st.Insert(ctx, late))

	last, err = st.LastReceivedAt(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, now.Add(time.Hour), *last)
}

func TestBackoffDelay(t *testing.T) {
	base, ceiling := 5*time.Second, 300*time.Second

	assert.Equal(t, 5*time.Second, backoffDelay(0, base, ceiling))
	assert.Equal(t, 10*time.Second, backoffDelay(1, base, ceiling))
	assert.Equal(t, 160*time.Second, backoffDelay(5, base, ceiling))
	assert.Equal(t, 300*time.Second, backoffDelay(6, base, ceiling))
	assert.Equal(t, 300*time.Second, backoffDelay(63, base, ceiling), "no overflow at high retry counts")
}
