package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopstream/internal/analytics/models"
	"shopstream/internal/sentinel"
	"shopstream/pkg/testutil"
)

func order(seq int64) *models.Order {
	return &models.Order{
		TenantID:     1,
		ExternalID:   "12345",
		TotalCents:   10050,
		Currency:     "USD",
		LastSequence: seq,
		CreatedAt:    testutil.FixedTime,
		UpdatedAt:    testutil.FixedTime,
	}
}

func TestUpsertOrder_InsertAndUpdate(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	first := order(1)
	require.NoError(t, st.UpsertOrder(ctx, first))
	assert.NotZero(t, first.ID)

	second := order(2)
	second.FinancialStatus = "paid"
	require.NoError(t, st.UpsertOrder(ctx, second))
	assert.Equal(t, first.ID, second.ID, "upsert keeps the row identity")

	found, err := st.GetOrder(ctx, 1, "12345")
	require.NoError(t, err)
	assert.Equal(t, "paid", found.FinancialStatus)
	assert.Equal(t, int64(2), found.LastSequence)
}

func TestUpsertOrder_RejectsStaleSequence(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	require.NoError(t, st.UpsertOrder(ctx, order(5)))

	err := st.UpsertOrder(ctx, order(3))
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	found, err := st.GetOrder(ctx, 1, "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(5), found.LastSequence, "stale write leaves the row untouched")
}

func TestUpsertOrder_EqualSequenceIsIdempotent(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	require.NoError(t, st.UpsertOrder(ctx, order(5)))
	require.NoError(t, st.UpsertOrder(ctx, order(5)), "redelivery at the same sequence succeeds")
}

func TestUpsertCustomer_PreservesAggregates(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	require.NoError(t, st.AddCustomerOrder(ctx, 1, "900", 10050))
	require.NoError(t, st.AddCustomerOrder(ctx, 1, "900", 4950))

	customer := &models.Customer{
		TenantID:     1,
		ExternalID:   "900",
		Email:        "jo@example.com",
		LastSequence: 1,
	}
	require.NoError(t, st.UpsertCustomer(ctx, customer))

	found, err := st.GetCustomer(ctx, 1, "900")
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", found.Email)
	assert.Equal(t, int64(2), found.OrdersCount, "profile upsert does not clobber aggregates")
	assert.Equal(t, int64(15000), found.TotalSpentCents)
}

func TestAddCustomerOrder_CreatesRowWhenAbsent(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	require.NoError(t, st.AddCustomerOrder(ctx, 1, "900", 10050))

	found, err := st.GetCustomer(ctx, 1, "900")
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.OrdersCount)
	assert.Equal(t, int64(10050), found.TotalSpentCents)
}

func TestDeleteCustomer_LatestWins(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	require.NoError(t, st.UpsertCustomer(ctx, &models.Customer{TenantID: 1, ExternalID: "900"}))
	require.NoError(t, st.DeleteCustomer(ctx, 1, "900"))

	_, err := st.GetCustomer(ctx, 1, "900")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// Deleting an absent row is fine; redeliveries collapse.
	require.NoError(t, st.DeleteCustomer(ctx, 1, "900"))
}

func TestTenantIsolation(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	a := order(1)
	require.NoError(t, st.UpsertOrder(ctx, a))

	b := order(1)
	b.TenantID = 2
	b.TotalCents = 999
	require.NoError(t, st.UpsertOrder(ctx, b))

	found, err := st.GetOrder(ctx, 1, "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(10050), found.TotalCents)

	_, err = st.GetOrder(ctx, 3, "12345")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestUpsertProduct(t *testing.T) {
	st := NewInMemory()
	ctx := context.Background()

	p := &models.Product{TenantID: 1, ExternalID: "777", Title: "Widget", LastSequence: 1}
	require.NoError(t, st.UpsertProduct(ctx, p))

	stale := &models.Product{TenantID: 1, ExternalID: "777", Title: "Old Widget", LastSequence: 0}
	assert.ErrorIs(t, st.UpsertProduct(ctx, stale), sentinel.ErrConflict)

	require.NoError(t, st.DeleteProduct(ctx, 1, "777"))
	_, err := st.GetProduct(ctx, 1, "777")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
