// internal/online/machine.go
//
// Session state machine: owns the relayed connection and drives the pairing phase.
// Responsibilities:
//   - User actions (Enable, Seek, Leave, Cancel, Disable, Retry) validated against
//     the phase table, applied through the session store.
//   - Publishing every stored snapshot while connected, through a single writer
//     goroutine per connection so frames leave in mutation order.
//   - Reading inbound frames on a single reader goroutine and reconciling them.
//   - Reporting connection loss on a non-blocking channel. Nothing reconnects on
//     its own; Retry and Enable are the only ways back.
package online

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/tickantoe/internal/phase"
	"github.com/robalobadob/tickantoe/internal/session"
	"github.com/robalobadob/tickantoe/internal/wire"
)

// errUnchanged aborts a guarded update that has nothing to do.
var errUnchanged = errors.New("online: unchanged")

var (
	// ErrNotConnected is returned by actions that need an open connection.
	ErrNotConnected = errors.New("online: not connected")

	// ErrIllegalTransition is returned when an action is not allowed in the current phase.
	ErrIllegalTransition = errors.New("online: illegal transition")
)

var (
	discardedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickantoe_client_discarded_messages_total",
		Help: "Inbound relay messages ignored by this client, by reason",
	}, []string{"reason"})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tickantoe_client_dropped_frames_total",
		Help: "Outbound frames replaced by a newer snapshot before they were written",
	})
)

// Conn is one open relay connection. ReadMessage is called from a single
// goroutine; WriteMessage and Ping from another.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Dialer opens relay connections.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// Options tunes a Machine.
type Options struct {
	QueueSize  int           // outbound frames buffered per connection (default 16)
	PingPeriod time.Duration // keepalive interval (default 30s, <0 disables)
}

// Machine is the session state machine.
type Machine struct {
	store  *session.Store
	dialer Dialer
	opts   Options
	lost   chan error

	mu   sync.Mutex
	link *link
}

type link struct {
	conn Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (l *link) close() {
	l.once.Do(func() {
		close(l.done)
		_ = l.conn.Close()
	})
}

// New wires a machine to its store and installs it as the store's publisher.
func New(store *session.Store, dialer Dialer, opts Options) *Machine {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 16
	}
	if opts.PingPeriod == 0 {
		opts.PingPeriod = 30 * time.Second
	}
	m := &Machine{
		store:  store,
		dialer: dialer,
		opts:   opts,
		lost:   make(chan error, 1),
	}
	store.SetPublisher(m)
	return m
}

// Lost delivers connection-loss notifications. Only the latest is kept when
// nobody is listening.
func (m *Machine) Lost() <-chan error { return m.lost }

// Phase returns the current phase.
func (m *Machine) Phase() phase.Phase { return m.store.Snapshot().Phase }

// Connected reports whether a connection is open.
func (m *Machine) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.link != nil
}

// Enable turns presence on: it opens the connection if needed and announces
// this session as available. Enabling while already enabled only reopens a
// closed connection.
func (m *Machine) Enable(ctx context.Context) error {
	if err := m.ensureLink(ctx); err != nil {
		return err
	}
	err := m.step(ctx, phase.Enable, errUnchanged)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	return err
}

// Retry reopens the connection after a loss and announces this session as available.
func (m *Machine) Retry(ctx context.Context) error {
	if err := m.ensureLink(ctx); err != nil {
		return err
	}
	return m.become(ctx, phase.Available, true)
}

// Seek asks the relay for a match.
func (m *Machine) Seek(ctx context.Context) error { return m.local(ctx, phase.Seek) }

// Leave tells the peer this session is leaving the match.
func (m *Machine) Leave(ctx context.Context) error { return m.local(ctx, phase.Leave) }

// Cancel returns to available from seeking, matched or departing.
func (m *Machine) Cancel(ctx context.Context) error { return m.local(ctx, phase.Cancel) }

// Disable turns presence off and closes the connection. It never fails because
// the connection is already gone.
func (m *Machine) Disable(ctx context.Context) error {
	var err error
	if m.store.Snapshot().Phase.Connected() {
		_, err = m.store.Update(ctx, nil, func(s *session.Snapshot) {
			s.Phase = phase.Disconnected
			s.Online.IsOn = false
			s.Identity = s.Identity.Solo()
		})
	}
	m.mu.Lock()
	l := m.link
	m.link = nil
	m.mu.Unlock()
	if l != nil {
		l.close()
	}
	return err
}

func (m *Machine) local(ctx context.Context, ev phase.Event) error {
	if _, ok := phase.Next(m.store.Snapshot().Phase, ev); !ok {
		return ErrIllegalTransition
	}
	if !m.Connected() {
		return ErrNotConnected
	}
	return m.step(ctx, ev, ErrIllegalTransition)
}

// step applies ev to the phase held by the store at write time, so an inbound
// message reconciled since the caller looked cannot be overwritten. illegal is
// returned when ev no longer applies.
func (m *Machine) step(ctx context.Context, ev phase.Event, illegal error) error {
	_, err := m.store.UpdateIf(ctx, nil, func(s *session.Snapshot) error {
		to, ok := phase.Next(s.Phase, ev)
		if !ok {
			return illegal
		}
		applyPhase(s, to, to == phase.Available)
		return nil
	})
	return err
}

func (m *Machine) become(ctx context.Context, to phase.Phase, solo bool) error {
	_, err := m.store.Update(ctx, nil, func(s *session.Snapshot) {
		applyPhase(s, to, solo)
	})
	return err
}

func applyPhase(s *session.Snapshot, to phase.Phase, solo bool) {
	s.Phase = to
	s.Online.IsOn = true
	if solo {
		s.Identity = s.Identity.Solo()
	}
}

func (m *Machine) ensureLink(ctx context.Context) error {
	m.mu.Lock()
	if m.link != nil {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("relay dial failed")
		return err
	}

	m.mu.Lock()
	if m.link != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	l := &link{conn: conn, send: make(chan []byte, m.opts.QueueSize), done: make(chan struct{})}
	m.link = l
	m.mu.Unlock()

	go m.writer(l)
	go m.reader(l)
	log.Info().Msg("relay connected")
	return nil
}

// Publish implements session.Publisher. It runs under the store lock, so frames
// are queued in mutation order. When the queue is full the oldest frame gives
// way: every frame carries the whole state, so the newest one is what matters.
func (m *Machine) Publish(snap session.Snapshot, action *session.Action) {
	if !snap.Phase.Connected() {
		return
	}
	m.mu.Lock()
	l := m.link
	m.mu.Unlock()
	if l == nil {
		return
	}

	data, err := wire.Encode(Outbound(snap, action))
	if err != nil {
		log.Error().Err(err).Msg("encode outbound message")
		return
	}
	select {
	case l.send <- data:
		return
	default:
	}
	select {
	case <-l.send:
		droppedTotal.Inc()
	default:
	}
	select {
	case l.send <- data:
	default:
		droppedTotal.Inc()
	}
}

func (m *Machine) writer(l *link) {
	var tick <-chan time.Time
	if m.opts.PingPeriod > 0 {
		ticker := time.NewTicker(m.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-l.done:
			return
		case data := <-l.send:
			if err := l.conn.WriteMessage(data); err != nil {
				m.connectionLost(l, err)
				return
			}
		case <-tick:
			if err := l.conn.Ping(); err != nil {
				m.connectionLost(l, err)
				return
			}
		}
	}
}

func (m *Machine) reader(l *link) {
	for {
		data, err := l.conn.ReadMessage()
		if err != nil {
			m.connectionLost(l, err)
			return
		}
		m.handle(data)
	}
}

func (m *Machine) handle(data []byte) {
	msg, err := wire.Decode(data)
	if err != nil {
		discardedTotal.WithLabelValues(reasonMalformed).Inc()
		log.Debug().Err(err).Msg("discarding malformed message")
		return
	}
	var reason string
	_, err = m.store.Reconcile(context.Background(), func(s session.Snapshot) (session.Snapshot, bool) {
		var next session.Snapshot
		next, reason = reconcile(s, msg)
		return next, reason == ""
	})
	if reason != "" {
		discardedTotal.WithLabelValues(reason).Inc()
		log.Debug().Str("reason", reason).Str("ws_state", msg.WSState).Msg("discarding message")
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("persist reconciled snapshot")
	}
}

// connectionLost tears down l unless it was already replaced or closed on purpose.
// The session drops to disconnected so a finished match is never shown as live.
func (m *Machine) connectionLost(l *link, cause error) {
	m.mu.Lock()
	if m.link != l {
		m.mu.Unlock()
		return
	}
	m.link = nil
	m.mu.Unlock()
	l.close()

	log.Warn().Err(cause).Msg("relay connection lost")
	_, err := m.store.Update(context.Background(), nil, func(s *session.Snapshot) {
		s.Phase = phase.Disconnected
		s.Online.IsOn = false
		s.Identity = s.Identity.Solo()
	})
	if err != nil {
		log.Warn().Err(err).Msg("persist after connection loss")
	}

	select {
	case m.lost <- cause:
	default:
		select {
		case <-m.lost:
		default:
		}
		select {
		case m.lost <- cause:
		default:
		}
	}
}
