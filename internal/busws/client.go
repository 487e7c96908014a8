package busws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/logs"

	"main/internal/model/enum"
)

var (
	ErrNotConnected  = errors.New("bus not connected")
	ErrClientClosed  = errors.New("bus client closed")
	ErrAlreadyRun    = errors.New("bus client already running")
	ErrEmptyEndpoint = errors.New("bus endpoint is empty")
)

// Handler receives one bus message.
type Handler func(channel string, payload []byte)

// StateHandler receives connection state transitions.
type StateHandler func(state enum.ConnectionState)

// Config describes the bus connection.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	Backoff          Backoff
}

// envelope is the wire shape of every bus message.
type envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// controlFrame is the wire shape of subscribe/unsubscribe requests.
type controlFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

// Client maintains one websocket connection to the push bus, redialing with
// backoff until closed. Subscribe and Unsubscribe are idempotent per
// connection; the subscribed set is cleared on every disconnect so the owner
// replays its subscriptions after a reconnect.
type Client struct {
	cfg       Config
	onMessage Handler
	onState   StateHandler

	writeMu sync.Mutex
	connMu  sync.Mutex
	conn    *websocket.Conn

	active  *channelSet
	started atomic.Bool
	closed  atomic.Bool
}

// New creates a bus client. Both handlers are required.
func New(cfg Config, onMessage Handler, onState StateHandler) *Client {
	return &Client{
		cfg:       cfg,
		onMessage: onMessage,
		onState:   onState,
		active:    newChannelSet(),
	}
}

// Run dials and serves the connection until ctx is canceled or Close is
// called. It reconnects with backoff after every failure.
func (c *Client) Run(ctx context.Context) error {
	if c.cfg.URL == "" {
		return ErrEmptyEndpoint
	}
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}

	attempt := 0
	for {
		if ctx.Err() != nil || c.closed.Load() {
			c.notify(enum.ConnectionStateDisconnected)
			return ctx.Err()
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt++
			wait := c.cfg.Backoff.Next(attempt)
			logs.Errorf("dial bus %s failed, retry in %s, err: %s", c.cfg.URL, wait, err.Error())
			c.notify(enum.ConnectionStateReconnecting)
			if !sleep(ctx, wait) {
				c.notify(enum.ConnectionStateDisconnected)
				return ctx.Err()
			}
			continue
		}

		attempt = 0
		c.setConn(conn)
		c.notify(enum.ConnectionStateConnected)

		err = c.readLoop(conn)
		c.setConn(nil)
		c.active.Clear()
		conn.Close()

		if ctx.Err() != nil || c.closed.Load() {
			c.notify(enum.ConnectionStateDisconnected)
			return ctx.Err()
		}
		logs.Errorf("bus connection lost, err: %s", err.Error())
		c.notify(enum.ConnectionStateReconnecting)
	}
}

// Subscribe sends a subscribe frame for the channel. Subscribing a channel
// that is already subscribed on this connection is a no-op.
func (c *Client) Subscribe(_ context.Context, channel string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.active.Add(channel) {
		return nil
	}
	if err := c.write(controlFrame{Action: "subscribe", Channel: channel}); err != nil {
		c.active.Remove(channel)
		return err
	}
	return nil
}

// Unsubscribe sends an unsubscribe frame for the channel.
func (c *Client) Unsubscribe(_ context.Context, channel string) error {
	if c.closed.Load() {
		return ErrClientClosed
	}
	if !c.active.Remove(channel) {
		return nil
	}
	if err := c.write(controlFrame{Action: "unsubscribe", Channel: channel}); err != nil {
		return err
	}
	return nil
}

// Close stops the client. The active connection is torn down and Run
// returns.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// SubscribedCount reports the channels subscribed on the live connection.
func (c *Client) SubscribedCount() int {
	return c.active.Count()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			logs.Errorf("drop malformed bus frame, err: %s", err.Error())
			continue
		}
		if env.Channel == "" {
			logs.Errorf("drop bus frame without channel")
			continue
		}
		c.onMessage(env.Channel, env.Data)
	}
}

func (c *Client) write(v any) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	// gorilla connections support one concurrent writer
	c.writeMu.Lock()
	err := conn.WriteJSON(v)
	c.writeMu.Unlock()
	return err
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
}

func (c *Client) notify(state enum.ConnectionState) {
	if c.onState == nil {
		return
	}
	c.onState(state)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
