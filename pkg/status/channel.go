// Package status keeps a self-healing connection to the backend status
// endpoint and exposes the latest status text to observers.
//
// A Channel owns at most one live connection. When the connection drops the
// channel reconnects on a fixed delay until its ReconnectPolicy is exhausted,
// then shows GiveUpNotice and waits for an explicit Connect. Disconnect stops
// all of this immediately.
package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"forgeclient/internal/metrics"
)

// DefaultNoticeTTL is how long ConnectedNotice stays visible
const DefaultNoticeTTL = 3 * time.Second

// ConnState is the lifecycle state of the live connection
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Snapshot is the observable state of a Channel
type Snapshot struct {
	Connected bool
	Text      string
	Attempts  int
	State     ConnState
	Manual    bool
}

// Option configures a Channel
type Option func(*Channel)

// WithDialer sets the transport dialer
func WithDialer(d Dialer) Option {
	return func(c *Channel) {
		c.dialer = d
	}
}

// WithClock sets the clock used for reconnect and notice timers
func WithClock(clk clock.Clock) Option {
	return func(c *Channel) {
		c.clk = clk
	}
}

// WithPolicy sets the reconnect policy
func WithPolicy(p ReconnectPolicy) Option {
	return func(c *Channel) {
		c.policy = p
	}
}

// WithNoticeTTL sets how long ConnectedNotice stays visible
func WithNoticeTTL(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.noticeTTL = d
		}
	}
}

// WithIgnoredMessages lists keepalive payloads that never replace the text
func WithIgnoredMessages(msgs ...string) Option {
	return func(c *Channel) {
		for _, m := range msgs {
			c.ignored[m] = struct{}{}
		}
	}
}

// WithLogger sets the base logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Channel) {
		c.logger = l
	}
}

type connection struct {
	gen       uint64
	state     ConnState
	transport Conn
	cancel    context.CancelFunc
}

// Channel is a status connection with a bounded reconnect policy
type Channel struct {
	url       string
	dialer    Dialer
	clk       clock.Clock
	policy    ReconnectPolicy
	noticeTTL time.Duration
	ignored   map[string]struct{}
	logger    zerolog.Logger

	mu         sync.Mutex
	baseCtx    context.Context
	baseCancel context.CancelFunc
	gen        uint64
	conn       *connection
	state      ConnState
	connected  bool
	text       string
	attempts   int
	manual     bool
	retry      *clock.Timer
	retrySeq   uint64
	clear      *clock.Timer
	clearSeq   uint64
	listeners  map[int]func(Snapshot)
	nextID     int

	// notifyMu is taken before mu and held while listeners run
	notifyMu sync.Mutex
}

// New creates an idle Channel for url
func New(url string, opts ...Option) *Channel {
	c := &Channel{
		url:       url,
		clk:       clock.New(),
		policy:    DefaultReconnectPolicy(),
		noticeTTL: DefaultNoticeTTL,
		ignored:   make(map[string]struct{}),
		logger:    log.Logger,
		listeners: make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dialer == nil {
		c.dialer = NewWebSocketDialer(0)
	}
	c.baseCtx, c.baseCancel = context.WithCancel(context.Background())
	c.logger = c.logger.With().Str("component", "status").Str("url", url).Logger()
	return c
}

// Open binds the channel to ctx and connects. Cancelling ctx aborts any
// dial in flight.
func (c *Channel) Open(ctx context.Context) {
	c.mu.Lock()
	c.baseCancel()
	c.baseCtx, c.baseCancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.Connect()
}

// Close disconnects and releases the channel context
func (c *Channel) Close() error {
	c.Disconnect()

	c.mu.Lock()
	c.baseCancel()
	c.mu.Unlock()
	return nil
}

// Connect dials the status endpoint and resets the reconnect budget. It is
// a no-op while a connection is connecting or open.
func (c *Channel) Connect() {
	c.update(func() bool {
		if c.conn != nil && (c.conn.state == StateConnecting || c.conn.state == StateOpen) {
			c.logger.Debug().Str("state", c.conn.state.String()).Msg("Status channel already connecting or open")
			return false
		}
		c.manual = false
		c.attempts = 0
		c.stopRetryLocked()
		c.dialLocked()
		return true
	})
}

// Disconnect closes the live connection and suppresses automatic reconnects
// until the next Connect
func (c *Channel) Disconnect() {
	var transport Conn
	c.update(func() bool {
		c.manual = true
		c.attempts = c.policy.MaxAttempts
		c.stopRetryLocked()
		c.stopClearLocked()
		if c.conn != nil {
			c.conn.state = StateClosing
			c.conn.cancel()
			transport = c.conn.transport
			c.conn = nil
		}
		c.state = StateClosed
		c.connected = false
		c.text = ""
		return true
	})

	if transport != nil {
		if err := transport.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Error closing status transport")
		}
	}
	c.logger.Info().Msg("Status channel disconnected")
}

// Subscribe registers fn for every state change and returns a function
// that removes it. fn must not call Connect or Disconnect synchronously.
func (c *Channel) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Snapshot returns the current observable state
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// IsConnected reports whether the connection is open
func (c *Channel) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Text returns the latest status text
func (c *Channel) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Attempts returns the reconnects made since the last successful open
func (c *Channel) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *Channel) snapshotLocked() Snapshot {
	return Snapshot{
		Connected: c.connected,
		Text:      c.text,
		Attempts:  c.attempts,
		State:     c.state,
		Manual:    c.manual,
	}
}

// update applies fn under the state lock and, when fn reports a change,
// notifies listeners with the resulting snapshot. Listener calls are
// serialized so they observe changes in order.
func (c *Channel) update(fn func() bool) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if !fn() {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (c *Channel) dialLocked() {
	c.gen++
	ctx, cancel := context.WithCancel(c.baseCtx)
	c.conn = &connection{gen: c.gen, state: StateConnecting, cancel: cancel}
	c.state = StateConnecting

	c.logger.Debug().Uint64("generation", c.gen).Msg("Dialing status endpoint")
	go c.run(ctx, c.gen)
}

func (c *Channel) run(ctx context.Context, gen uint64) {
	transport, err := c.dialer.Dial(ctx, c.url)
	if err != nil {
		c.handleError(gen, err)
		c.handleClose(gen)
		return
	}
	defer transport.Close()

	if !c.handleOpen(gen, transport) {
		return
	}

	for {
		msg, err := transport.ReadMessage()
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				c.handleError(gen, err)
			}
			c.handleClose(gen)
			return
		}
		c.handleMessage(gen, msg)
	}
}

func (c *Channel) liveLocked(gen uint64) bool {
	return c.conn != nil && c.conn.gen == gen
}

func (c *Channel) handleOpen(gen uint64, transport Conn) bool {
	live := false
	c.update(func() bool {
		if !c.liveLocked(gen) {
			return false
		}
		live = true
		c.conn.state = StateOpen
		c.conn.transport = transport
		c.state = StateOpen
		c.attempts = 0
		c.connected = true
		c.text = ConnectedNotice
		c.scheduleClearLocked()
		return true
	})
	if live {
		c.logger.Info().Msg("Status channel connected")
	}
	return live
}

func (c *Channel) handleMessage(gen uint64, msg string) {
	c.update(func() bool {
		if !c.liveLocked(gen) {
			return false
		}
		metrics.StatusMessagesTotal.Inc()
		if _, skip := c.ignored[msg]; skip {
			return false
		}
		c.text = msg
		return true
	})
}

// handleError only changes the text; the close that follows drives the
// state transition
func (c *Channel) handleError(gen uint64, err error) {
	c.update(func() bool {
		if !c.liveLocked(gen) {
			return false
		}
		c.logger.Warn().Err(err).Msg("Status connection error")
		c.text = ErrorNotice
		return true
	})
}

func (c *Channel) handleClose(gen uint64) {
	c.update(func() bool {
		if !c.liveLocked(gen) {
			return false
		}
		c.conn.state = StateClosed
		c.conn.cancel()
		c.conn = nil
		c.state = StateClosed
		c.connected = false
		c.stopClearLocked()

		if c.manual || c.baseCtx.Err() != nil {
			return true
		}

		if c.policy.Allows(c.attempts) {
			c.attempts++
			c.text = ReconnectingNotice(c.attempts, c.policy)
			c.scheduleRetryLocked()
			metrics.StatusReconnectsTotal.Inc()
			c.logger.Warn().
				Int("attempt", c.attempts).
				Int("max_attempts", c.policy.MaxAttempts).
				Dur("retry_in", c.policy.Delay).
				Msg("Status connection closed, reconnecting")
			return true
		}

		c.text = GiveUpNotice
		metrics.StatusGiveUpsTotal.Inc()
		c.logger.Error().
			Int("attempts", c.attempts).
			Msg("Status connection reconnect attempts exhausted")
		return true
	})
}

func (c *Channel) scheduleRetryLocked() {
	c.stopRetryLocked()
	seq := c.retrySeq
	c.retry = c.clk.AfterFunc(c.policy.Delay, func() {
		c.update(func() bool {
			if seq != c.retrySeq || c.manual || c.conn != nil || c.baseCtx.Err() != nil {
				return false
			}
			c.retry = nil
			c.dialLocked()
			return true
		})
	})
}

func (c *Channel) stopRetryLocked() {
	c.retrySeq++
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
}

// scheduleClearLocked clears ConnectedNotice after the TTL unless another
// text replaced it first
func (c *Channel) scheduleClearLocked() {
	c.stopClearLocked()
	seq := c.clearSeq
	c.clear = c.clk.AfterFunc(c.noticeTTL, func() {
		c.update(func() bool {
			if seq != c.clearSeq || c.text != ConnectedNotice {
				return false
			}
			c.clear = nil
			c.text = ""
			return true
		})
	})
}

func (c *Channel) stopClearLocked() {
	c.clearSeq++
	if c.clear != nil {
		c.clear.Stop()
		c.clear = nil
	}
}
