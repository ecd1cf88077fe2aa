package online

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robalobadob/tickantoe/internal/kv"
	"github.com/robalobadob/tickantoe/internal/phase"
	"github.com/robalobadob/tickantoe/internal/session"
	"github.com/robalobadob/tickantoe/internal/wire"
)

var errClosed = errors.New("fake: closed")

type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), out: make(chan []byte, 64), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case d := <-c.in:
		return d, nil
	case <-c.closed:
		return nil, errClosed
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	select {
	case <-c.closed:
		return errClosed
	default:
	}
	c.out <- data
	return nil
}

func (c *fakeConn) Ping() error { return nil }

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
}

func (d *fakeDialer) Dial(context.Context) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) last() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func setup(t *testing.T) (*Machine, *session.Store, *fakeDialer) {
	t.Helper()
	ctx := context.Background()
	store := session.New(kv.NewMemoryStore(), 0)
	_, err := store.Load(ctx)
	require.ErrorIs(t, err, session.ErrNoSnapshot)
	_, err = store.Update(ctx, nil, func(s *session.Snapshot) {
		*s = localSnapshot(phase.Disconnected)
		s.Online.IsOn = false
	})
	require.NoError(t, err)

	d := &fakeDialer{}
	m := New(store, d, Options{PingPeriod: -1})
	t.Cleanup(func() { _ = m.Disable(context.Background()) })
	return m, store, d
}

func next(t *testing.T, c *fakeConn) wire.Message {
	t.Helper()
	select {
	case data := <-c.out:
		msg, err := wire.Decode(data)
		require.NoError(t, err)
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written")
		return wire.Message{}
	}
}

func send(t *testing.T, c *fakeConn, m wire.Message) {
	t.Helper()
	data, err := wire.Encode(m)
	require.NoError(t, err)
	c.in <- data
}

func TestEnableOpensAndAnnounces(t *testing.T) {
	m, store, d := setup(t)
	ctx := context.Background()

	require.NoError(t, m.Enable(ctx))
	assert.Equal(t, phase.Available, m.Phase())
	assert.True(t, store.Snapshot().Online.IsOn)
	msg := next(t, d.last())
	assert.Equal(t, wire.Hosting, msg.WSState)
	assert.Equal(t, []string{"me"}, msg.GroupIDs)

	require.NoError(t, m.Enable(ctx))
	assert.Equal(t, 1, d.count())
}

func TestEnableDialFailure(t *testing.T) {
	m, _, d := setup(t)
	d.err = errors.New("refused")
	assert.Error(t, m.Enable(context.Background()))
	assert.Equal(t, phase.Disconnected, m.Phase())
	assert.False(t, m.Connected())
}

func TestIllegalActions(t *testing.T) {
	m, _, _ := setup(t)
	ctx := context.Background()
	assert.ErrorIs(t, m.Seek(ctx), ErrIllegalTransition)
	assert.ErrorIs(t, m.Leave(ctx), ErrIllegalTransition)
	assert.ErrorIs(t, m.Cancel(ctx), ErrIllegalTransition)

	require.NoError(t, m.Enable(ctx))
	assert.ErrorIs(t, m.Leave(ctx), ErrIllegalTransition)
	assert.ErrorIs(t, m.Cancel(ctx), ErrIllegalTransition)
}

func TestSeekMatchLeave(t *testing.T) {
	m, store, d := setup(t)
	ctx := context.Background()
	require.NoError(t, m.Enable(ctx))
	conn := d.last()
	next(t, conn)

	require.NoError(t, m.Seek(ctx))
	assert.Equal(t, wire.Finding, next(t, conn).WSState)

	send(t, conn, peerMessage(wire.Found, "me", "peer"))
	require.Eventually(t, func() bool { return m.Phase() == phase.Matched }, 2*time.Second, 5*time.Millisecond)
	snap := store.Snapshot()
	assert.Equal(t, 2, snap.Tries)
	assert.Empty(t, snap.Failures)
	assert.Equal(t, []string{"me", "peer"}, snap.Identity.Group)

	// The reconciled state is forwarded once.
	echo := next(t, conn)
	assert.Equal(t, wire.Found, echo.WSState)
	assert.Equal(t, []string{"me", "peer"}, echo.GroupIDs)

	// Receiving it back changes nothing and is not forwarded again.
	send(t, conn, echo)
	send(t, conn, peerMessage(wire.Found, "peer", "other"))
	time.Sleep(50 * time.Millisecond)
	select {
	case <-conn.out:
		t.Fatal("unchanged state was re-sent")
	default:
	}

	require.NoError(t, m.Leave(ctx))
	assert.Equal(t, wire.Leaving, next(t, conn).WSState)

	send(t, conn, peerMessage(wire.Hosting, "me"))
	require.Eventually(t, func() bool { return m.Phase() == phase.Available }, 2*time.Second, 5*time.Millisecond)
}

func TestForeignTrafficIgnored(t *testing.T) {
	m, store, d := setup(t)
	ctx := context.Background()
	require.NoError(t, m.Enable(ctx))
	conn := d.last()
	next(t, conn)
	require.NoError(t, m.Seek(ctx))
	next(t, conn)

	before := store.Snapshot()
	send(t, conn, peerMessage(wire.Found, "a", "b"))
	conn.in <- []byte(`{"garbage":true}`)
	send(t, conn, peerMessage(wire.Found, "me", "peer"))
	require.Eventually(t, func() bool { return m.Phase() == phase.Matched }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, phase.Seeking, before.Phase)
}

func TestConnectionLossAndRetry(t *testing.T) {
	m, store, d := setup(t)
	ctx := context.Background()
	require.NoError(t, m.Enable(ctx))
	first := d.last()
	next(t, first)
	require.NoError(t, m.Seek(ctx))
	next(t, first)
	send(t, first, peerMessage(wire.Found, "me", "peer"))
	require.Eventually(t, func() bool { return m.Phase() == phase.Matched }, 2*time.Second, 5*time.Millisecond)

	_ = first.Close()
	select {
	case err := <-m.Lost():
		assert.ErrorIs(t, err, errClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("loss not reported")
	}
	assert.Equal(t, phase.Disconnected, m.Phase())
	assert.Equal(t, []string{"me"}, store.Snapshot().Identity.Group)
	assert.False(t, store.Snapshot().Online.IsOn)
	assert.False(t, m.Connected())
	assert.Equal(t, 1, d.count(), "no automatic reconnect")

	require.NoError(t, m.Retry(ctx))
	assert.Equal(t, 2, d.count())
	msg := next(t, d.last())
	assert.Equal(t, wire.Hosting, msg.WSState)
	assert.Equal(t, phase.Available, m.Phase())
}

func TestDisableIsIdempotent(t *testing.T) {
	m, store, d := setup(t)
	ctx := context.Background()
	assert.NoError(t, m.Disable(ctx))

	require.NoError(t, m.Enable(ctx))
	conn := d.last()
	assert.NoError(t, m.Disable(ctx))
	assert.True(t, conn.isClosed())
	assert.Equal(t, phase.Disconnected, m.Phase())
	assert.False(t, store.Snapshot().Online.IsOn)
	assert.NoError(t, m.Disable(ctx))

	select {
	case <-m.Lost():
		t.Fatal("deliberate close reported as loss")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, m.Enable(ctx))
	assert.Equal(t, 2, d.count(), "enable reopens a closed connection")
}

func TestSeekChecksPhaseAtWriteTime(t *testing.T) {
	m, store, d := setup(t)
	ctx := context.Background()
	require.NoError(t, m.Enable(ctx))
	conn := d.last()
	next(t, conn)

	// An inbound match lands after the caller last looked at the phase.
	send(t, conn, peerMessage(wire.Found, "me", "peer"))
	require.Eventually(t, func() bool { return m.Phase() == phase.Matched }, 2*time.Second, 5*time.Millisecond)
	next(t, conn)

	assert.ErrorIs(t, m.step(ctx, phase.Seek, ErrIllegalTransition), ErrIllegalTransition)
	assert.ErrorIs(t, m.Seek(ctx), ErrIllegalTransition)
	assert.Equal(t, phase.Matched, m.Phase())
	assert.Equal(t, []string{"me", "peer"}, store.Snapshot().Identity.Group)

	// Enable while matched is a no-op rather than an error.
	require.NoError(t, m.Enable(ctx))
	assert.Equal(t, phase.Matched, m.Phase())
	select {
	case <-conn.out:
		t.Fatal("a rejected action was sent")
	case <-time.After(50 * time.Millisecond):
	}
}
