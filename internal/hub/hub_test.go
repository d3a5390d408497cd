package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Scobiform/fedi-follow-force-graph/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingConn stores every message it receives, or fails with err.
type recordingConn struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (c *recordingConn) Send(_ context.Context, message []byte) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, string(message))
	return nil
}

func (c *recordingConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

// blockingConn blocks in Send until released or the context ends.
type blockingConn struct {
	started chan string
	release chan struct{}
	once    sync.Once
}

func newBlockingConn() *blockingConn {
	return &blockingConn{started: make(chan string, 64), release: make(chan struct{})}
}

func (c *blockingConn) Send(ctx context.Context, message []byte) error {
	c.started <- string(message)
	select {
	case <-c.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *blockingConn) unblock() {
	c.once.Do(func() { close(c.release) })
}

type countingRecorder struct {
	mu          sync.Mutex
	connections int
	delivered   int
	failed      int
	broadcasts  int
}

func (r *countingRecorder) ConnectionsChanged(count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections = count
}

func (r *countingRecorder) DeliveryCompleted(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.delivered++
}

func (r *countingRecorder) BroadcastCompleted(int, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts++
}

func newTestHub(t *testing.T, cfg Config) (*Hub, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	h := NewHub(cfg, clock, nil)
	t.Cleanup(h.Stop)
	return h, clock
}

func errorsByConn(deliveries []domain.Delivery) map[domain.Connection]error {
	result := make(map[domain.Connection]error, len(deliveries))
	for _, d := range deliveries {
		result[d.Conn] = d.Err
	}
	return result
}

func waitStarted(t *testing.T, c *blockingConn) string {
	t.Helper()
	select {
	case msg := <-c.started:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("send was never attempted")
		return ""
	}
}

func TestBroadcast_FanOutIsolation(t *testing.T) {
	h, _ := newTestHub(t, Config{})

	sendErr := errors.New("broken pipe")
	c1 := &recordingConn{}
	c2 := &recordingConn{err: sendErr}
	c3 := &recordingConn{}
	h.Add(c1)
	h.Add(c2)
	h.Add(c3)

	deliveries := h.Broadcast(context.Background(), []byte("m"))

	require.Len(t, deliveries, 3)
	results := errorsByConn(deliveries)
	assert.NoError(t, results[c1])
	assert.NoError(t, results[c3])
	require.Error(t, results[c2])
	assert.ErrorIs(t, results[c2], domain.ErrDeliveryFailed)
	assert.ErrorIs(t, results[c2], sendErr)

	assert.Equal(t, []string{"m"}, c1.received())
	assert.Equal(t, []string{"m"}, c3.received())
	assert.Equal(t, 3, h.Count(), "failed deliveries must not mutate the set")
}

func TestBroadcast_NoConnections(t *testing.T) {
	h, _ := newTestHub(t, Config{})

	deliveries := h.Broadcast(context.Background(), []byte("m"))

	assert.Empty(t, deliveries)
}

func TestAddRemove_Idempotent(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	c := &recordingConn{}

	h.Add(c)
	h.Add(c)
	assert.Equal(t, 1, h.Count())

	deliveries := h.Broadcast(context.Background(), []byte("once"))
	assert.Len(t, deliveries, 1)
	assert.Equal(t, []string{"once"}, c.received())

	h.Remove(c)
	h.Remove(c)
	h.Remove(&recordingConn{})
	assert.Equal(t, 0, h.Count())
}

func TestBroadcast_RemovedConnectionIsNeverTargeted(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	a := &recordingConn{}
	b := &recordingConn{}
	h.Add(a)
	h.Add(b)

	h.Remove(a)
	deliveries := h.Broadcast(context.Background(), []byte("after"))

	require.Len(t, deliveries, 1)
	assert.Same(t, b, deliveries[0].Conn)
	assert.Empty(t, a.received())
}

func TestBroadcast_SnapshotUnderConcurrentRemove(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	slow := newBlockingConn()
	fast := &recordingConn{}
	h.Add(slow)
	h.Add(fast)

	first := make(chan []domain.Delivery, 1)
	go func() { first <- h.Broadcast(context.Background(), []byte("m1")) }()
	assert.Equal(t, "m1", waitStarted(t, slow))

	// m2 queues behind m1 in the slow mailbox.
	second := make(chan []domain.Delivery, 1)
	go func() { second <- h.Broadcast(context.Background(), []byte("m2")) }()
	require.Eventually(t, func() bool { return len(fast.received()) == 2 }, 2*time.Second, 5*time.Millisecond)

	h.Remove(slow)

	secondResults := errorsByConn(<-second)
	require.Len(t, secondResults, 2)
	assert.NoError(t, secondResults[fast])
	assert.ErrorIs(t, secondResults[slow], domain.ErrDeliveryFailed)
	assert.ErrorIs(t, secondResults[slow], ErrConnectionRemoved)

	slow.unblock()
	firstResults := errorsByConn(<-first)
	require.Len(t, firstResults, 2)
	assert.NoError(t, firstResults[fast])
	assert.NoError(t, firstResults[slow], "in-flight delivery completes")

	third := h.Broadcast(context.Background(), []byte("m3"))
	require.Len(t, third, 1)
	assert.Same(t, fast, third[0].Conn)
	assert.Equal(t, []string{"m1", "m2", "m3"}, fast.received())
}

func TestBroadcast_PerConnectionOrder(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	c := &recordingConn{}
	h.Add(c)

	var want []string
	for i := range 50 {
		msg := fmt.Sprintf("m%d", i)
		want = append(want, msg)
		h.Broadcast(context.Background(), []byte(msg))
	}

	assert.Equal(t, want, c.received())
}

func TestBroadcastFrom_SkipsSender(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	sender := &recordingConn{}
	other := &recordingConn{}
	h.Add(sender)
	h.Add(other)

	deliveries := h.BroadcastFrom(context.Background(), sender, []byte("hi"))

	require.Len(t, deliveries, 1)
	assert.Same(t, other, deliveries[0].Conn)
	assert.Empty(t, sender.received())
	assert.Equal(t, []string{"hi"}, other.received())
}

func TestBroadcast_StalledConnectionTimesOut(t *testing.T) {
	h, clock := newTestHub(t, Config{DeliveryTimeout: 3 * time.Second})
	stalled := newBlockingConn()
	healthy := &recordingConn{}
	h.Add(stalled)
	h.Add(healthy)

	result := make(chan []domain.Delivery, 1)
	go func() { result <- h.Broadcast(context.Background(), []byte("m")) }()

	waitStarted(t, stalled)
	require.Eventually(t, func() bool { return len(healthy.received()) == 1 }, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(3 * time.Second)

	results := errorsByConn(<-result)
	assert.NoError(t, results[healthy])
	assert.ErrorIs(t, results[stalled], domain.ErrDeliveryFailed)
	assert.ErrorIs(t, results[stalled], ErrDeliveryTimeout)
	assert.Equal(t, 2, h.Count())
}

func TestBroadcast_FullMailboxFailsFast(t *testing.T) {
	h, _ := newTestHub(t, Config{MailboxSize: 1})
	stalled := newBlockingConn()
	h.Add(stalled)
	t.Cleanup(stalled.unblock)

	go h.Broadcast(context.Background(), []byte("in-flight"))
	waitStarted(t, stalled)

	// With the first send stuck, one of the next two messages takes the only
	// slot and the other is rejected without waiting.
	results := make(chan []domain.Delivery, 2)
	go func() { results <- h.Broadcast(context.Background(), []byte("a")) }()
	go func() { results <- h.Broadcast(context.Background(), []byte("b")) }()

	var rejected []domain.Delivery
	select {
	case rejected = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("full mailbox did not fail fast")
	}
	require.Len(t, rejected, 1)
	assert.ErrorIs(t, rejected[0].Err, domain.ErrDeliveryFailed)
	assert.ErrorIs(t, rejected[0].Err, ErrMailboxFull)

	stalled.unblock()
	accepted := <-results
	require.Len(t, accepted, 1)
	assert.NoError(t, accepted[0].Err)
}

func TestBroadcast_ContextCancelled(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	stalled := newBlockingConn()
	h.Add(stalled)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan []domain.Delivery, 1)
	go func() { result <- h.Broadcast(ctx, []byte("m")) }()

	waitStarted(t, stalled)
	cancel()

	deliveries := <-result
	require.Len(t, deliveries, 1)
	assert.ErrorIs(t, deliveries[0].Err, domain.ErrDeliveryFailed)
	assert.ErrorIs(t, deliveries[0].Err, context.Canceled)
}

func TestHub_RecordsTelemetry(t *testing.T) {
	rec := &countingRecorder{}
	h := NewHub(Config{}, clockwork.NewFakeClock(), rec)
	defer h.Stop()

	ok := &recordingConn{}
	bad := &recordingConn{err: errors.New("closed")}
	h.Add(ok)
	h.Add(bad)
	h.Broadcast(context.Background(), []byte("m"))
	h.Remove(bad)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.connections)
	assert.Equal(t, 1, rec.delivered)
	assert.Equal(t, 1, rec.failed)
	assert.Equal(t, 1, rec.broadcasts)
}

func TestHub_StopReleasesEverything(t *testing.T) {
	h := NewHub(Config{}, clockwork.NewFakeClock(), nil)
	c := &recordingConn{}
	h.Add(c)

	h.Stop()
	h.Stop()

	assert.Equal(t, 0, h.Count())
	assert.Nil(t, h.Broadcast(context.Background(), []byte("late")))
	h.Add(c)
	h.Remove(c)
	assert.Empty(t, c.received())
}

func TestHub_ConcurrentAddRemoveBroadcast(t *testing.T) {
	h, _ := newTestHub(t, Config{})
	stable := &recordingConn{}
	h.Add(stable)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := &recordingConn{}
			h.Add(c)
			h.Broadcast(context.Background(), []byte("x"))
			h.Remove(c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, h.Count())
	assert.Len(t, stable.received(), 20)
}
