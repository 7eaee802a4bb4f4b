package hub

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/realm-live/internal/config"
	"github.com/weiawesome/realm-live/internal/domain"
	"github.com/weiawesome/realm-live/internal/testutil"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) IdentityOnline(id domain.UserIdentity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "online:"+id.String())
}

func (o *recordingObserver) IdentityOffline(id domain.UserIdentity) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, "offline:"+id.String())
}

func (o *recordingObserver) list() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

func testClient(id string, buffer int) *Client {
	return NewClient(id, testutil.NewFakeConn(), config.WebSocketConfig{SendBufferSize: buffer})
}

func startHub(t *testing.T, observer Observer) *Hub {
	t.Helper()
	h := NewHub(observer, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := startHub(t, nil)
	c := testClient("c1", 4)

	require.NoError(t, h.Register("alice", c))
	assert.Equal(t, []*Client{c}, h.ChannelsFor("alice"))

	h.Unregister(c)
	assert.Empty(t, h.ChannelsFor("alice"))
	assert.Equal(t, Stats{}, h.Stats(), "identity with no channels is removed")
}

func TestHub_RegisterIsIdempotent(t *testing.T) {
	h := startHub(t, nil)
	c := testClient("c1", 4)

	require.NoError(t, h.Register("alice", c))
	require.NoError(t, h.Register("alice", c))

	assert.Len(t, h.ChannelsFor("alice"), 1)
	assert.Equal(t, Stats{Identities: 1, Channels: 1}, h.Stats())
}

func TestHub_MultipleChannelsPerIdentity(t *testing.T) {
	h := startHub(t, nil)
	c1, c2 := testClient("c1", 4), testClient("c2", 4)

	require.NoError(t, h.Register("alice", c1))
	require.NoError(t, h.Register("alice", c2))
	assert.ElementsMatch(t, []*Client{c1, c2}, h.ChannelsFor("alice"))

	h.Unregister(c1)
	assert.Equal(t, []*Client{c2}, h.ChannelsFor("alice"))
	assert.Equal(t, Stats{Identities: 1, Channels: 1}, h.Stats())

	h.Unregister(c2)
	assert.Equal(t, Stats{}, h.Stats())
}

func TestHub_ChannelUnderOneIdentity(t *testing.T) {
	h := startHub(t, nil)
	c := testClient("c1", 4)

	require.NoError(t, h.Register("alice", c))
	require.NoError(t, h.Register("bob", c))

	assert.Empty(t, h.ChannelsFor("alice"))
	assert.Equal(t, []*Client{c}, h.ChannelsFor("bob"))
	assert.Equal(t, Stats{Identities: 1, Channels: 1}, h.Stats())
}

func TestHub_UnregisterUnknownIsNoop(t *testing.T) {
	h := startHub(t, nil)
	c := testClient("c1", 4)

	assert.NotPanics(t, func() {
		h.Unregister(c)
		h.Unregister(c)
	})
	assert.Equal(t, Stats{}, h.Stats())
	assert.ErrorIs(t, c.Enqueue([]byte("x")), ErrClientClosed, "send buffer is closed on unregister")
}

func TestHub_ChannelsForUnknownIdentity(t *testing.T) {
	h := startHub(t, nil)
	assert.Empty(t, h.ChannelsFor("nobody"))
}

func TestHub_SnapshotSkipsClosedClients(t *testing.T) {
	h := startHub(t, nil)
	c1, c2 := testClient("c1", 4), testClient("c2", 4)
	require.NoError(t, h.Register("alice", c1))
	require.NoError(t, h.Register("alice", c2))

	c1.Close()

	assert.Equal(t, []*Client{c2}, h.ChannelsFor("alice"))
	assert.Equal(t, Stats{Identities: 1, Channels: 2}, h.Stats(), "bookkeeping catches up on unregister")
}

func TestHub_RegisterClosedClient(t *testing.T) {
	h := startHub(t, nil)
	c := testClient("c1", 4)
	c.Close()

	assert.ErrorIs(t, h.Register("alice", c), ErrClientClosed)
	assert.Equal(t, Stats{}, h.Stats())
}

func TestHub_SnapshotAndOnline(t *testing.T) {
	h := startHub(t, nil)
	a, b := testClient("a", 4), testClient("b", 4)
	require.NoError(t, h.Register("alice", a))
	require.NoError(t, h.Register("bob", b))

	snap := h.Snapshot(domain.Identities("alice", "bob", "carol", "alice"))
	assert.Len(t, snap, 2)
	assert.Equal(t, []*Client{a}, snap["alice"])
	assert.Equal(t, []*Client{b}, snap["bob"])

	assert.Equal(t, domain.Identities("bob", "alice"), h.Online(domain.Identities("carol", "bob", "alice", "bob")))
}

func TestHub_Observer(t *testing.T) {
	obs := &recordingObserver{}
	h := startHub(t, obs)
	c1, c2 := testClient("c1", 4), testClient("c2", 4)

	require.NoError(t, h.Register("alice", c1))
	require.NoError(t, h.Register("alice", c2))
	h.Unregister(c1)
	h.Unregister(c2)

	assert.Equal(t, []string{"online:alice", "offline:alice"}, obs.list())
}

func TestHub_Evict(t *testing.T) {
	h := startHub(t, nil)
	conn := testutil.NewFakeConn()
	c := NewClient("c1", conn, config.WebSocketConfig{SendBufferSize: 1})
	require.NoError(t, h.Register("alice", c))

	h.Evict(c)
	assert.True(t, conn.IsClosed())
	assert.False(t, c.IsOpen())
	assert.Empty(t, h.ChannelsFor("alice"))
}

func TestHub_StoppedHub(t *testing.T) {
	h := NewHub(nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = h.Run(ctx)
		close(done)
	}()

	conn := testutil.NewFakeConn()
	c := NewClient("c1", conn, config.WebSocketConfig{})
	require.NoError(t, h.Register("alice", c))

	cancel()
	<-done

	assert.True(t, conn.IsClosed(), "shutdown closes registered clients")
	assert.ErrorIs(t, h.Register("alice", testClient("c2", 1)), ErrHubStopped)
	assert.Empty(t, h.ChannelsFor("alice"))
	assert.Equal(t, Stats{}, h.Stats())
	assert.NotPanics(t, func() { h.Unregister(c) })
}

func TestClient_Enqueue(t *testing.T) {
	c := testClient("c1", 1)

	require.NoError(t, c.Enqueue([]byte("a")))
	assert.ErrorIs(t, c.Enqueue([]byte("b")), ErrSendBufferFull)
	assert.Equal(t, []byte("a"), <-c.Outbound())

	require.NoError(t, c.SendMessage(domain.Pong{}))
	assert.JSONEq(t, `{"type":"pong"}`, string(<-c.Outbound()))

	c.Close()
	assert.ErrorIs(t, c.Enqueue([]byte("c")), ErrClientClosed)
}

func TestClient_ReadPumpClosesOnTransportEnd(t *testing.T) {
	h := startHub(t, nil)
	conn := testutil.NewFakeConn()
	c := NewClient("c1", conn, config.WebSocketConfig{PongWait: time.Second})
	require.NoError(t, h.Register("alice", c))

	finished := make(chan struct{})
	go c.ReadPump(func(*Client, []byte) {}, func(c *Client) {
		h.Unregister(c)
		close(finished)
	})

	conn.Close()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump did not exit")
	}

	assert.False(t, c.IsOpen())
	assert.Empty(t, h.ChannelsFor("alice"))
	_, ok := <-c.Outbound()
	assert.False(t, ok, "send buffer closed")
}
