// Package client owns the single persistent WebSocket connection that
// delivers notification frames for one authenticated session.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/opsdash/notify-stream/internal/backoff"
	wserrors "github.com/opsdash/notify-stream/internal/errors"
	"github.com/opsdash/notify-stream/internal/protocol"
)

const (
	pingAfter        = 10 * time.Second
	disconnectAfter  = 120 * time.Second
	heartbeatCheckAt = 20 * time.Second

	// Notification frames are small; 1MB bounds a misbehaving server
	// with generous headroom.
	wsReadLimit = 1 << 20

	inboundChanSize = 64
)

// State names a phase of the connection lifecycle.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
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

// wsConn abstracts the WebSocket connection so Client can be tested
// without a real server. *websocket.Conn satisfies this interface.
type wsConn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	SetReadLimit(n int64)
}

//go:generate mockgen -source=client.go -destination=mock_conn_test.go -package=client

// Handler consumes decoded business frames, strictly in arrival order,
// on the event loop goroutine. Liveness frames never reach it.
type Handler interface {
	HandleFrame(f protocol.Frame)
}

// Observer is notified after every state transition, on the state
// machine's goroutine. Observers must return quickly and must not touch
// presentation state from here; that is the reconciler's job.
type Observer func(s State)

// inboundMsg wraps a message read from the WebSocket by the reader goroutine.
type inboundMsg struct {
	typ  websocket.MessageType
	data []byte
	err  error
}

// Client is the connection state machine. It holds at most one live
// connection per session, reconnects with capped exponential backoff on
// transient failure, and distinguishes intentional teardown (context
// cancellation, terminal) from abnormal closes (reconnect-eligible).
//
// Architecture: a reader goroutine feeds inboundCh with raw WebSocket
// messages. A single event loop goroutine (Run) processes inbound
// frames and heartbeat ticks. All writes to the connection happen from
// the event loop, so frame handling never races against itself.
type Client struct {
	logger   *slog.Logger
	endpoint string
	token    string
	policy   backoff.Policy
	handler  Handler

	// observers is fixed at construction; no subscription after Run starts.
	observers []Observer

	// dial is swapped in tests to avoid a real server.
	dial func(ctx context.Context) (wsConn, error)

	conn wsConn

	// inboundCh receives messages from the reader goroutine.
	inboundCh chan inboundMsg

	// connCancel cancels the per-connection context. Used to stop the
	// reader goroutine when the connection drops before reconnecting.
	connCancel context.CancelFunc

	// mu guards state and retryCount.
	mu         sync.RWMutex
	state      State
	retryCount int

	lastMessage time.Time
	lastMsgMu   sync.Mutex
}

// Config holds the parameters needed to run a connection.
type Config struct {
	// Endpoint is the full WebSocket URL, e.g. wss://host/ws/notification/.
	Endpoint string

	// Token is the opaque session token, sent as a bearer header on dial.
	Token string

	// Policy is the reconnect schedule. Zero value means backoff.Default().
	Policy backoff.Policy

	// Handler receives decoded business frames. May be nil in tests.
	Handler Handler

	// Observers are notified of every state transition.
	Observers []Observer
}

// New creates a Client in the Idle state. Run starts the lifecycle.
func New(cfg Config, logger *slog.Logger) *Client {
	c := &Client{
		logger:    logger,
		endpoint:  cfg.Endpoint,
		token:     cfg.Token,
		policy:    cfg.Policy,
		handler:   cfg.Handler,
		observers: cfg.Observers,
		state:     StateIdle,
	}
	if c.policy == (backoff.Policy{}) {
		c.policy = backoff.Default()
	}
	c.dial = c.dialWebSocket

	return c
}

func (c *Client) dialWebSocket(ctx context.Context) (wsConn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.Dial(ctx, c.endpoint, &websocket.DialOptions{ //nolint:bodyclose // websocket.Dial closes the response body internally
		HTTPHeader: header,
	})
	if err != nil {
		return nil, err
	}

	return conn, nil
}

// Run drives the connection lifecycle: connect, process frames,
// reconnect after backoff on abnormal close. It returns only when ctx
// is cancelled (intentional teardown), after which no further reconnect
// attempt occurs. Backend outages beyond the cap do not fail Run; it
// keeps retrying at the capped interval until the session ends.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)

		err := c.connect(ctx)
		if err == nil {
			c.mu.Lock()
			c.retryCount = 0
			c.mu.Unlock()
			c.setState(StateOpen)

			c.requestResync(ctx)

			connCtx, connCancel := context.WithCancel(ctx)
			c.connCancel = connCancel
			c.startReader(connCtx)

			err = c.eventLoop(ctx, connCtx)
			connCancel()
		}

		if ctx.Err() != nil {
			return c.teardown(ctx.Err())
		}

		// Abnormal close. The delay is a function of the retry count
		// before this failure, so the first reconnect of an outage
		// waits Delay(0). The count resets only on a successful open.
		c.setState(StateClosed)

		c.mu.Lock()
		retry := c.retryCount
		c.retryCount++
		c.mu.Unlock()

		delay := c.policy.Delay(retry)
		c.logger.Warn("connection lost, reconnecting",
			slog.String("error", err.Error()),
			slog.Int("retry", retry),
			slog.Duration("backoff", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return c.teardown(ctx.Err())
		case <-timer.C:
		}
	}
}

// connect dials a fresh WebSocket. Session auth is established before
// the page opens the connection, so there is no init exchange: a
// successful dial is an open connection.
func (c *Client) connect(ctx context.Context) error {
	// Cancel any reader goroutine left over from a prior connection.
	if c.connCancel != nil {
		c.connCancel()
	}

	c.logger.Debug("connecting", slog.String("url", c.endpoint))

	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("%w: dialing websocket: %v", wserrors.ErrTransport, err)
	}

	c.conn = conn
	conn.SetReadLimit(wsReadLimit)
	c.touchLastMessage()

	return nil
}

// requestResync asks the backend for a fresh unread_count snapshot.
// Best-effort: the backend pushes a snapshot on open anyway, and the
// first unread_count frame after open is the resync signal whether or
// not this request arrived. A write failure surfaces on the next read,
// so it is only logged here. Sends attempted while no connection is
// live are dropped, not queued; the next open resyncs.
func (c *Client) requestResync(ctx context.Context) {
	if c.State() != StateOpen {
		c.logger.Debug("dropping resync request, connection not open")
		return
	}

	if err := c.conn.Write(ctx, websocket.MessageText, protocol.Control(protocol.KindResync)); err != nil {
		c.logger.Debug("resync request failed", slog.String("error", err.Error()))
	}
}

// startReader launches a goroutine that reads from the WebSocket and
// feeds inboundCh. Exits when connCtx is cancelled or a read error
// occurs. The error is delivered as the final message on inboundCh.
// The goroutine captures ch by value so that if startReader is called
// again for a new connection, the old goroutine cannot send stale
// messages into the new channel.
func (c *Client) startReader(connCtx context.Context) {
	ch := make(chan inboundMsg, inboundChanSize)
	c.inboundCh = ch
	go func() {
		for {
			typ, data, err := c.conn.Read(connCtx)
			select {
			case ch <- inboundMsg{typ: typ, data: data, err: err}:
			case <-connCtx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

// eventLoop processes inbound frames and heartbeat ticks for one
// connection epoch. Frames are handled strictly in arrival order.
// Returns on read error, heartbeat timeout, or context cancellation.
func (c *Client) eventLoop(ctx context.Context, connCtx context.Context) error {
	ticker := time.NewTicker(heartbeatCheckAt)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.inboundCh:
			if msg.err != nil {
				return fmt.Errorf("%w: reading frame: %v", wserrors.ErrTransport, msg.err)
			}
			c.touchLastMessage()

			if msg.typ == websocket.MessageBinary {
				c.logger.Debug("unexpected binary frame", slog.Int("bytes", len(msg.data)))
				continue
			}

			c.handleFrame(ctx, msg.data)

		case <-ticker.C:
			c.lastMsgMu.Lock()
			elapsed := time.Since(c.lastMessage)
			c.lastMsgMu.Unlock()

			if elapsed > disconnectAfter {
				c.logger.Warn("connection timed out, closing")
				c.conn.Close(websocket.StatusGoingAway, "timeout")
				return fmt.Errorf("%w: heartbeat timeout", wserrors.ErrTransport)
			}

			if elapsed > pingAfter {
				if err := c.conn.Write(ctx, websocket.MessageText, protocol.Control(protocol.KindPing)); err != nil {
					return fmt.Errorf("%w: sending ping: %v", wserrors.ErrTransport, err)
				}
			}

		case <-ctx.Done():
			return ctx.Err()

		case <-connCtx.Done():
			return connCtx.Err()
		}
	}
}

// handleFrame decodes and routes one inbound text frame. Decode failures
// are diagnostics, never connection errors: the frame is a no-op and the
// connection stays open.
func (c *Client) handleFrame(ctx context.Context, data []byte) {
	f, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("dropping frame",
			slog.String("kind", gjson.GetBytes(data, "kind").Str),
			slog.String("error", err.Error()),
		)
		return
	}

	switch f.Kind {
	case protocol.KindPing:
		// Liveness only; answer here and keep it away from the handler.
		if err := c.conn.Write(ctx, websocket.MessageText, protocol.Control(protocol.KindPong)); err != nil {
			c.logger.Debug("pong failed", slog.String("error", err.Error()))
		}

	case protocol.KindPong:

	default:
		if c.handler != nil {
			c.handler.HandleFrame(f)
		}
	}
}

// teardown performs the intentional-close sequence. Terminal: after it
// runs, Run has returned and no reconnect attempt is ever made.
func (c *Client) teardown(cause error) error {
	c.setState(StateClosing)

	if c.connCancel != nil {
		c.connCancel()
	}
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "bye")
	}

	c.setState(StateClosed)

	return cause
}

// Close shuts the connection down outside of Run. Cancelling Run's
// context is the normal teardown path; Close covers callers that hold
// only the client.
func (c *Client) Close() error {
	if c.connCancel != nil {
		c.connCancel()
	}
	if c.conn != nil {
		return c.conn.Close(websocket.StatusNormalClosure, "bye")
	}
	return nil
}

// setState records a transition and notifies observers in order.
func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = s
	c.mu.Unlock()

	c.logger.Debug("connection state",
		slog.String("from", old.String()),
		slog.String("to", s.String()),
	)

	for _, obs := range c.observers {
		obs(s)
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.state
}

// RetryCount returns the number of failed attempts in the current
// outage. Zero while the connection is open.
func (c *Client) RetryCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.retryCount
}

// Connected reports whether the connection is open.
func (c *Client) Connected() bool {
	return c.State() == StateOpen
}

func (c *Client) touchLastMessage() {
	c.lastMsgMu.Lock()
	c.lastMessage = time.Now()
	c.lastMsgMu.Unlock()
}
