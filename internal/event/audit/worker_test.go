package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopstream/internal/platform/kafka/producer"
	"shopstream/pkg/testutil"
)

// fakePublisher captures produced messages and can fail on demand.
type fakePublisher struct {
	mu       sync.Mutex
	messages []*producer.Message
	failures int
}

func (p *fakePublisher) Produce(_ context.Context, msg *producer.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("broker unavailable")
	}
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakePublisher) published() []*producer.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*producer.Message(nil), p.messages...)
}

func appendEntries(t *testing.T, st Store, n int) []*Entry {
	t.Helper()
	out := make([]*Entry, 0, n)
	for i := 0; i < n; i++ {
		entry, err := NewEntry(sampleTransition())
		require.NoError(t, err)
		entry.CreatedAt = testutil.FixedTime.Add(time.Duration(i) * time.Second)
		require.NoError(t, st.Append(context.Background(), entry))
		out = append(out, entry)
	}
	return out
}

func TestWorker_PublishesAndMarks(t *testing.T) {
	st := NewInMemory()
	pub := &fakePublisher{}
	entries := appendEntries(t, st, 2)

	w := NewWorker(st, pub, testutil.Logger(), WithTopic("test.transitions"))
	w.poll(context.Background())

	msgs := pub.published()
	require.Len(t, msgs, 2)
	assert.Equal(t, "test.transitions", msgs[0].Topic)
	assert.Equal(t, entries[0].ID.String(), string(msgs[0].Key))
	assert.Equal(t, "7", msgs[0].Headers["event_id"])
	assert.Equal(t, "1", msgs[0].Headers["tenant_id"])

	pending, err := st.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
}

func TestWorker_RetriesFailedPublishes(t *testing.T) {
	st := NewInMemory()
	pub := &fakePublisher{failures: 1}
	appendEntries(t, st, 1)

	w := NewWorker(st, pub, testutil.Logger())

	w.poll(context.Background())
	pending, err := st.CountPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending, "failed publish stays in the outbox")

	w.poll(context.Background())
	pending, err = st.CountPending(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pending)
	assert.Len(t, pub.published(), 1)
}

func TestWorker_RespectsBatchSize(t *testing.T) {
	st := NewInMemory()
	pub := &fakePublisher{}
	appendEntries(t, st, 3)

	w := NewWorker(st, pub, testutil.Logger(), WithBatchSize(2))
	w.poll(context.Background())

	assert.Len(t, pub.published(), 2)
}

func TestWorker_DrainsOnStop(t *testing.T) {
	st := NewInMemory()
	pub := &fakePublisher{}
	appendEntries(t, st, 3)

	w := NewWorker(st, pub, testutil.Logger(), WithPollInterval(time.Hour))
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.Len(t, pub.published(), 3, "pending entries are drained at shutdown")
}

func TestWorker_StopWithBrokenPublisherDoesNotHang(t *testing.T) {
	st := NewInMemory()
	pub := &fakePublisher{failures: 1 << 30}
	appendEntries(t, st, 1)

	w := NewWorker(st, pub, testutil.Logger(), WithPollInterval(time.Hour))
	w.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx), "drain gives up when pending stops shrinking")
}
