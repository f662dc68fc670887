package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "shopstream/pkg/domain-errors"
)

func newPending(t *testing.T) *Event {
	t.Helper()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return New(1, EventOrderCreated, EntityOrder, "12345", "1:order:12345:orders/create:deadbeefdeadbeef",
		json.RawMessage(`{"id": 12345}`), "corr-1", now)
}

func TestNew_StartsPending(t *testing.T) {
	ev := newPending(t)

	assert.Equal(t, StatusPending, ev.Status)
	assert.Zero(t, ev.RetryCount)
	assert.Nil(t, ev.ProcessedAt)
	assert.Equal(t, ev.ReceivedAt, ev.UpdatedAt)
}

func TestHappyPath_PendingProcessingCompleted(t *testing.T) {
	ev := newPending(t)
	now := ev.ReceivedAt

	require.NoError(t, ev.MarkProcessing(now.Add(time.Second)))
	assert.Equal(t, StatusProcessing, ev.Status)

	require.NoError(t, ev.MarkCompleted(now.Add(2*time.Second)))
	assert.Equal(t, StatusCompleted, ev.Status)
	require.NotNil(t, ev.ProcessedAt)
	assert.True(t, ev.IsTerminal())

	d, ok := ev.ProcessingDuration()
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestMarkFailed_IncrementsRetryCount(t *testing.T) {
	ev := newPending(t)
	now := ev.ReceivedAt

	require.NoError(t, ev.MarkProcessing(now))
	require.NoError(t, ev.MarkFailed("timeout", 5, now.Add(time.Second)))

	assert.Equal(t, StatusFailed, ev.Status)
	assert.Equal(t, 1, ev.RetryCount)
	assert.Equal(t, "timeout", ev.ErrorMessage)
	assert.Nil(t, ev.ProcessedAt)
	assert.True(t, ev.IsRetriable())
}

func TestMarkFailed_PromotesToDeadLetterAtMaxRetries(t *testing.T) {
	ev := newPending(t)
	now := ev.ReceivedAt
	ev.RetryCount = 4

	require.NoError(t, ev.MarkProcessing(now))
	require.NoError(t, ev.MarkFailed("timeout", 5, now.Add(time.Second)))

	assert.Equal(t, 5, ev.RetryCount)
	assert.Equal(t, StatusDeadLetter, ev.Status)
	assert.Equal(t, "timeout", ev.ErrorMessage)
	require.NotNil(t, ev.ProcessedAt)
	assert.True(t, ev.IsTerminal())
	assert.False(t, ev.IsRetriable())
}

func TestMarkDeadLetter_SkipsRetryBudget(t *testing.T) {
	ev := newPending(t)
	now := ev.ReceivedAt

	require.NoError(t, ev.MarkProcessing(now))
	require.NoError(t, ev.MarkDeadLetter("malformed payload", now.Add(time.Second)))

	assert.Equal(t, StatusDeadLetter, ev.Status)
	assert.Zero(t, ev.RetryCount)
	require.NotNil(t, ev.ProcessedAt)
}

func TestResetForRetry(t *testing.T) {
	ev := newPending(t)
	now := ev.ReceivedAt

	require.NoError(t, ev.MarkProcessing(now))
	require.NoError(t, ev.MarkFailed("timeout", 5, now))
	require.NoError(t, ev.ResetForRetry(now.Add(5*time.Second)))

	assert.Equal(t, StatusPending, ev.Status)
	assert.Empty(t, ev.ErrorMessage)
	assert.Equal(t, 1, ev.RetryCount, "retry count survives the reset")
}

func TestIllegalTransitions(t *testing.T) {
	now := time.Now()

	ev := newPending(t)
	err := ev.MarkCompleted(now)
	require.Error(t, err, "pending cannot complete without processing")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariant))

	require.NoError(t, ev.MarkProcessing(now))
	require.NoError(t, ev.MarkCompleted(now))

	assert.Error(t, ev.MarkProcessing(now), "completed is terminal")
	assert.Error(t, ev.MarkFailed("x", 5, now))
	assert.Error(t, ev.ResetForRetry(now))

	dead := newPending(t)
	require.NoError(t, dead.MarkProcessing(now))
	require.NoError(t, dead.MarkDeadLetter("x", now))
	assert.Error(t, dead.ResetForRetry(now), "dead_letter never resurrects automatically")
	assert.Error(t, dead.MarkProcessing(now))
}

func TestProcessingDuration_Unprocessed(t *testing.T) {
	ev := newPending(t)
	_, ok := ev.ProcessingDuration()
	assert.False(t, ok)
}

func TestEventType_Valid(t *testing.T) {
	assert.True(t, EventOrderCreated.Valid())
	assert.True(t, EventSyncRequested.Valid())
	assert.False(t, EventType("orders/unknown").Valid())

	assert.True(t, EventSyncRequested.IsControl())
	assert.True(t, EventReconciliationStarted.IsControl())
	assert.False(t, EventOrderCreated.IsControl())
}

func TestEntityType_Valid(t *testing.T) {
	assert.True(t, EntityOrder.Valid())
	assert.True(t, EntityTenant.Valid())
	assert.False(t, EntityType("warehouse").Valid())
}
