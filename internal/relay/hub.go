// internal/relay/hub.go
//
// Websocket relay hub.
// Responsibilities:
//   - Upgrading /ws requests and running one reader and one writer goroutine per client.
//   - Feeding inbound messages and disconnects, in order, to a single worker that owns
//     the Matcher.
//   - Broadcasting every resulting message to every client. Clients filter by group;
//     the relay never validates grids.
package relay

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/robalobadob/tickantoe/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

var (
	connectedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tickantoe_relay_connected_clients",
		Help: "Open relay websocket connections",
	})

	inboundTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickantoe_relay_messages_total",
		Help: "Relay messages accepted, by ws_state",
	}, []string{"ws_state"})

	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tickantoe_relay_rejected_messages_total",
		Help: "Relay messages dropped before matching, by reason",
	}, []string{"reason"})

	matchTables = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tickantoe_relay_match_entries",
		Help: "Entries in the matchmaking tables",
	}, []string{"table"})
)

// Options tunes a Hub.
type Options struct {
	QueueSize   int      // pending inbound items (default 20)
	Rate        float64  // inbound messages per second per client (default 20, <0 disables)
	Burst       int      // limiter burst (default 2×Rate)
	CheckOrigin func(r *http.Request) bool
}

type item struct {
	msg    *wire.Message
	forget string
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	users   map[string]struct{} // user ids seen on this connection; guarded by Hub.mu
}

// Hub is the relay.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	queue    chan item
	matcher  *Matcher
	done     chan struct{}
	stop     sync.Once

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub. Call Run before serving.
func NewHub(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 20
	}
	if opts.Rate == 0 {
		opts.Rate = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = int(2 * opts.Rate)
		if opts.Burst < 1 {
			opts.Burst = 1
		}
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Hub{
		opts:     opts,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096, CheckOrigin: check},
		queue:    make(chan item, opts.QueueSize),
		matcher:  NewMatcher(),
		done:     make(chan struct{}),
		clients:  make(map[*client]struct{}),
	}
}

// Run processes queued items until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.stop.Do(func() { close(h.done) })
			h.closeAll()
			return nil
		case it := <-h.queue:
			var out []wire.Message
			if it.msg != nil {
				out = h.matcher.Apply(*it.msg)
			} else {
				log.Debug().Str("user_id", it.forget).Msg("relay forget")
				out = h.matcher.Forget(it.forget)
			}
			hosts, seekers, battles := h.matcher.Counts()
			matchTables.WithLabelValues("hosts").Set(float64(hosts))
			matchTables.WithLabelValues("seekers").Set(float64(seekers))
			matchTables.WithLabelValues("battles").Set(float64(battles))
			for _, m := range out {
				h.broadcast(m)
			}
		}
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("relay upgrade failed")
		return
	}
	var limiter *rate.Limiter
	if h.opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opts.Rate), h.opts.Burst)
	}
	c := &client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		limiter: limiter,
		users:   make(map[string]struct{}),
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	connectedClients.Inc()
	log.Info().Int("clients", n).Msg("relay connect")

	go h.writer(c)
	h.reader(c)
}

func (h *Hub) reader(c *client) {
	defer h.disconnect(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug().Err(err).Msg("relay read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if c.limiter != nil && !c.limiter.Allow() {
			rejectedTotal.WithLabelValues("rate").Inc()
			continue
		}
		msg, err := wire.Decode(data)
		if err != nil {
			rejectedTotal.WithLabelValues("malformed").Inc()
			log.Debug().Err(err).Msg("relay dropping message")
			continue
		}
		h.mu.Lock()
		c.users[msg.UserID] = struct{}{}
		h.mu.Unlock()
		inboundTotal.WithLabelValues(msg.WSState).Inc()

		select {
		case h.queue <- item{msg: &msg}:
		case <-h.done:
			return
		}
	}
}

func (h *Hub) writer(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, nil, time.Now().Add(writeWait))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

// disconnect unregisters c and forgets its users unless another connection
// still speaks for them.
func (h *Hub) disconnect(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	var gone []string
	for u := range c.users {
		shared := false
		for other := range h.clients {
			if _, ok := other.users[u]; ok {
				shared = true
				break
			}
		}
		if !shared {
			gone = append(gone, u)
		}
	}
	h.mu.Unlock()
	connectedClients.Dec()

	for _, u := range gone {
		select {
		case h.queue <- item{forget: u}:
		case <-h.done:
			return
		}
	}
	log.Info().Int("users", len(gone)).Msg("relay disconnect")
}

func (h *Hub) broadcast(m wire.Message) {
	data, err := wire.Encode(m)
	if err != nil {
		log.Error().Err(err).Msg("relay encode")
		return
	}
	log.Debug().Strs("group_ids", m.GroupIDs).Str("ws_state", m.WSState).Msg("relay broadcast")

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			rejectedTotal.WithLabelValues("slow_client").Inc()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		connectedClients.Dec()
	}
}
