package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrRequestTimedOut: no reply arrived within the request timeout.
	ErrRequestTimedOut = errors.New("request timed out")
	// ErrConnectionLost: the connection dropped while a frame was being written.
	// The client reconnects on its own.
	ErrConnectionLost = errors.New("connection lost")
	// ErrClosed: Run has returned and the client accepts no more requests.
	ErrClosed = errors.New("transport closed")
)

// DefaultRequestTimeout bounds a request from send to reply.
const DefaultRequestTimeout = 10 * time.Second

const writeWait = 10 * time.Second

// State of the connection.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosedRetrying
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedRetrying:
		return "closed-retrying"
	}
	return "unknown"
}

// Options of a Client. Zero values fall back to defaults.
type Options struct {
	// URL of the socket endpoint, ws:// or wss://.
	URL string
	// Token returns the bearer token sent on the upgrade request and in every frame.
	Token func() string
	// RequestTimeout defaults to DefaultRequestTimeout.
	RequestTimeout time.Duration
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	Dialer         *websocket.Dialer
	Logger         *zap.SugaredLogger
}

// Client owns one live connection at a time. A dropped connection is replaced, never reused.
type Client struct {
	opts    Options
	router  *Router
	log     *zap.SugaredLogger
	backoff Backoff

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	ready   chan struct{} // closed while a connection is open or after shutdown
	running bool
	closed  bool
	pending map[string]chan *Frame

	writeMu sync.Mutex
}

// NewClient creates a client. Call Run to connect.
func NewClient(opts Options, router *Router) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	if router == nil {
		router = NewRouter(opts.Logger)
	}
	return &Client{
		opts:    opts,
		router:  router,
		log:     opts.Logger,
		backoff: Backoff{Min: opts.ReconnectMin, Max: opts.ReconnectMax},
		ready:   make(chan struct{}),
		pending: make(map[string]chan *Frame),
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run connects and keeps reconnecting until ctx is cancelled. Connection
// failures are logged, never returned.
func (c *Client) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.running || c.closed {
		c.mu.Unlock()
		return errors.New("transport: Run called twice")
	}
	c.running = true
	c.mu.Unlock()
	defer c.shutdown()

	for {
		c.setState(StateConnecting)
		conn, err := c.dial(ctx)
		if err == nil {
			c.backoff.Reset()
			err = c.serve(ctx, conn)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setState(StateClosedRetrying)
		wait := c.backoff.Next()
		c.log.Warnw("socket connection lost, reconnecting",
			"error", fmt.Errorf("%w: %v", ErrConnectionLost, err),
			"retry_in", wait)
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if tok := c.token(); tok != "" {
		header.Set("Authorization", SchemeBearer+" "+tok)
	}
	conn, resp, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// serve runs the read loop of one connection until it fails.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) error {
	c.mu.Lock()
	c.conn = conn
	c.state = StateOpen
	close(c.ready)
	c.mu.Unlock()
	c.log.Infow("socket connected", "url", c.opts.URL)

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var err error
	for {
		var f Frame
		if err = conn.ReadJSON(&f); err != nil {
			break
		}
		c.dispatch(&f)
	}

	c.mu.Lock()
	c.conn = nil
	c.ready = make(chan struct{})
	c.mu.Unlock()
	_ = conn.Close()
	return err
}

// dispatch resolves a pending request or routes a push, in arrival order.
func (c *Client) dispatch(f *Frame) {
	if f.ID == "" {
		c.router.Dispatch(f)
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[f.ID]
	delete(c.pending, f.ID)
	c.mu.Unlock()
	if !ok {
		// ответ пришёл после таймаута или id неизвестен
		c.log.Warnw("dropping reply without pending request", "type", f.Type, "id", f.ID)
		return
	}
	ch <- f
}

// Request sends a request of type t and decodes the reply data into out (may be nil).
// The timeout covers waiting for an open connection, the write and the reply.
// A reply carrying an error is returned as *RemoteError.
func (c *Client) Request(ctx context.Context, t MessageType, data, out any) error {
	if !t.IsRequest() {
		return &UnknownTypeError{Type: t}
	}
	id := uuid.NewString()
	f, err := NewFrame(t, id, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeoutCause(ctx, c.opts.RequestTimeout, ErrRequestTimedOut)
	defer cancel()

	ch := make(chan *Frame, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, f); err != nil {
		return err
	}

	select {
	case reply := <-ch:
		if reply.Error != nil {
			return reply.Error
		}
		return reply.Decode(out)
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// Send writes a request without waiting for any reply.
func (c *Client) Send(ctx context.Context, t MessageType, data any) error {
	if !t.IsRequest() {
		return &UnknownTypeError{Type: t}
	}
	f, err := NewFrame(t, "", data)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeoutCause(ctx, c.opts.RequestTimeout, ErrRequestTimedOut)
	defer cancel()
	return c.write(ctx, f)
}

// Ping round-trips an empty request.
func (c *Client) Ping(ctx context.Context) error {
	return c.Request(ctx, TypePing, nil, nil)
}

// write waits for an open connection and writes f with credentials attached.
func (c *Client) write(ctx context.Context, f *Frame) error {
	conn, err := c.awaitConn(ctx)
	if err != nil {
		return err
	}
	if tok := c.token(); tok != "" {
		f.Credentials = &Credentials{Scheme: SchemeBearer, Credentials: tok}
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(f); err != nil {
		_ = conn.Close()
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return nil
}

func (c *Client) awaitConn(ctx context.Context) (*websocket.Conn, error) {
	for {
		c.mu.Lock()
		conn, ready, closed := c.conn, c.ready, c.closed
		c.mu.Unlock()
		if closed {
			return nil, ErrClosed
		}
		if conn != nil {
			return conn, nil
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return nil, context.Cause(ctx)
		}
	}
}

func (c *Client) token() string {
	if c.opts.Token == nil {
		return ""
	}
	return c.opts.Token()
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.state = StateClosedRetrying
	select {
	case <-c.ready:
	default:
		close(c.ready)
	}
}
