package applier

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopstream/internal/analytics/store"
	"shopstream/internal/event/models"
	"shopstream/pkg/domain"
	dErrors "shopstream/pkg/domain-errors"
	"shopstream/pkg/testutil"
)

func TestMoneyCents(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"0", 0},
		{"100.50", 10050},
		{"100.5", 10050},
		{"100", 10000},
		{"0.01", 1},
		{"-9.99", -999},
	}
	for _, tc := range cases {
		got, err := moneyCents(tc.in)
		require.NoError(t, err, "value %q", tc.in)
		assert.Equal(t, tc.want, got, "value %q", tc.in)
	}

	_, err := moneyCents("100.505")
	require.Error(t, err, "sub-cent precision is refused")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = moneyCents("not-money")
	require.Error(t, err)
}

func TestSequenceOf(t *testing.T) {
	ev := testutil.NewEventBuilder().Build()

	fields, err := decodePayload(&models.Event{Payload: []byte(`{"sequence": 42}`)})
	require.NoError(t, err)
	assert.Equal(t, int64(42), sequenceOf(ev, fields))

	fields, err = decodePayload(&models.Event{Payload: []byte(`{"updated_at": "2025-06-01T12:00:00Z"}`)})
	require.NoError(t, err)
	assert.Equal(t, testutil.FixedTime.UnixNano(), sequenceOf(ev, fields))

	fields, err = decodePayload(&models.Event{Payload: []byte(`{"id": 1}`)})
	require.NoError(t, err)
	assert.Equal(t, ev.ReceivedAt.UnixNano(), sequenceOf(ev, fields), "receipt time is the fallback")
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := decodePayload(&models.Event{Payload: nil})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = decodePayload(&models.Event{Payload: []byte(`[1,2,3]`)})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestOrderApplier_ProjectsOrder(t *testing.T) {
	st := store.NewInMemory()
	a := NewOrderApplier(st, testutil.Logger())
	ctx := context.Background()

	ev := testutil.NewEventBuilder().
		WithPayload(`{"id": 12345, "total_price": "100.50", "currency": "USD", "financial_status": "paid", "sequence": 1}`).
		Build()
	require.NoError(t, a.Apply(ctx, ev))

	found, err := st.GetOrder(ctx, 1, "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(10050), found.TotalCents)
	assert.Equal(t, "USD", found.Currency)
	assert.Equal(t, "paid", found.FinancialStatus)
	assert.False(t, found.Cancelled)
}

func TestOrderApplier_CreationFoldsCustomerAggregates(t *testing.T) {
	st := store.NewInMemory()
	a := NewOrderApplier(st, testutil.Logger())
	ctx := context.Background()

	ev := testutil.NewEventBuilder().
		WithPayload(`{"id": 12345, "total_price": "100.50", "customer": {"id": 900}, "sequence": 1}`).
		Build()
	require.NoError(t, a.Apply(ctx, ev))

	customer, err := st.GetCustomer(ctx, 1, "900")
	require.NoError(t, err)
	assert.Equal(t, int64(1), customer.OrdersCount)
	assert.Equal(t, int64(10050), customer.TotalSpentCents)

	// Updates must not double-count the order.
	update := testutil.NewEventBuilder().
		WithType(models.EventOrderUpdated, models.EntityOrder).
		WithPayload(`{"id": 12345, "total_price": "100.50", "customer": {"id": 900}, "sequence": 2}`).
		Build()
	require.NoError(t, a.Apply(ctx, update))

	customer, err = st.GetCustomer(ctx, 1, "900")
	require.NoError(t, err)
	assert.Equal(t, int64(1), customer.OrdersCount)
}

func TestOrderApplier_FlatCustomerID(t *testing.T) {
	st := store.NewInMemory()
	a := NewOrderApplier(st, testutil.Logger())
	ctx := context.Background()

	ev := testutil.NewEventBuilder().
		WithPayload(`{"id": 12345, "total_price": "50.00", "customer_id": "901", "sequence": 1}`).
		Build()
	require.NoError(t, a.Apply(ctx, ev))

	found, err := st.GetOrder(ctx, 1, "12345")
	require.NoError(t, err)
	assert.Equal(t, domain.ExternalID("901"), found.CustomerID)
}

func TestOrderApplier_CancellationMarksOrder(t *testing.T) {
	st := store.NewInMemory()
	a := NewOrderApplier(st, testutil.Logger())
	ctx := context.Background()

	created := testutil.NewEventBuilder().
		WithPayload(`{"id": 12345, "total_price": "100.50", "sequence": 1}`).
		Build()
	require.NoError(t, a.Apply(ctx, created))

	cancelled := testutil.NewEventBuilder().
		WithType(models.EventOrderCancelled, models.EntityOrder).
		WithPayload(`{"id": 12345, "total_price": "100.50", "sequence": 2}`).
		Build()
	require.NoError(t, a.Apply(ctx, cancelled))

	found, err := st.GetOrder(ctx, 1, "12345")
	require.NoError(t, err)
	assert.True(t, found.Cancelled)
}

func TestOrderApplier_StaleEventIsOrderingViolation(t *testing.T) {
	st := store.NewInMemory()
	a := NewOrderApplier(st, testutil.Logger())
	ctx := context.Background()

	fresh := testutil.NewEventBuilder().
		WithPayload(`{"id": 12345, "total_price": "100.50", "sequence": 5}`).
		Build()
	require.NoError(t, a.Apply(ctx, fresh))

	stale := testutil.NewEventBuilder().
		WithType(models.EventOrderUpdated, models.EntityOrder).
		WithPayload(`{"id": 12345, "total_price": "1.00", "sequence": 3}`).
		Build()
	err := a.Apply(ctx, stale)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeOrderingViolation))

	found, err := st.GetOrder(ctx, 1, "12345")
	require.NoError(t, err)
	assert.Equal(t, int64(10050), found.TotalCents)
}

func TestOrderApplier_MalformedMoney(t *testing.T) {
	a := NewOrderApplier(store.NewInMemory(), testutil.Logger())

	ev := testutil.NewEventBuilder().
		WithPayload(`{"id": 12345, "total_price": "100.505"}`).
		Build()
	err := a.Apply(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCustomerApplier_UpsertAndDelete(t *testing.T) {
	st := store.NewInMemory()
	a := NewCustomerApplier(st, testutil.Logger())
	ctx := context.Background()

	ev := testutil.NewEventBuilder().
		WithType(models.EventCustomerCreated, models.EntityCustomer).
		WithEntityID("900").
		WithPayload(`{"id": 900, "email": "jo@example.com", "first_name": "Jo", "sequence": 1}`).
		Build()
	require.NoError(t, a.Apply(ctx, ev))

	found, err := st.GetCustomer(ctx, 1, "900")
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", found.Email)
	assert.Equal(t, "Jo", found.FirstName)

	del := testutil.NewEventBuilder().
		WithType(models.EventCustomerDeleted, models.EntityCustomer).
		WithEntityID("900").
		WithPayload(`{"id": 900}`).
		Build()
	require.NoError(t, a.Apply(ctx, del))
	require.NoError(t, a.Apply(ctx, del), "delete redelivery is a no-op")

	_, err = st.GetCustomer(ctx, 1, "900")
	require.Error(t, err)
}

func TestProductApplier_UpsertAndDelete(t *testing.T) {
	st := store.NewInMemory()
	a := NewProductApplier(st, testutil.Logger())
	ctx := context.Background()

	ev := testutil.NewEventBuilder().
		WithType(models.EventProductCreated, models.EntityProduct).
		WithEntityID("777").
		WithPayload(`{"id": 777, "title": "Widget", "vendor": "Acme", "sequence": 1}`).
		Build()
	require.NoError(t, a.Apply(ctx, ev))

	found, err := st.GetProduct(ctx, 1, "777")
	require.NoError(t, err)
	assert.Equal(t, "Widget", found.Title)
	assert.Equal(t, "Acme", found.Vendor)

	del := testutil.NewEventBuilder().
		WithType(models.EventProductDeleted, models.EntityProduct).
		WithEntityID("777").
		WithPayload(`{"id": 777}`).
		Build()
	require.NoError(t, a.Apply(ctx, del))

	_, err = st.GetProduct(ctx, 1, "777")
	require.Error(t, err)
}

type stubSyncMarker struct {
	calls []domain.TenantID
}

func (s *stubSyncMarker) UpdateLastSynced(_ context.Context, tenantID domain.TenantID, _ time.Time) error {
	s.calls = append(s.calls, tenantID)
	return nil
}

func TestTenantApplier_StampsLastSynced(t *testing.T) {
	marker := &stubSyncMarker{}
	a := NewTenantApplier(marker, testutil.Logger())

	ev := testutil.NewEventBuilder().
		WithTenantID(3).
		WithType(models.EventReconciliationStarted, models.EntityTenant).
		WithEntityID("3").
		WithPayload(`{"reason": "inactivity"}`).
		Build()
	require.NoError(t, a.Apply(context.Background(), ev))

	assert.Equal(t, []domain.TenantID{3}, marker.calls)
}
