package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"pumpfun-dashboard-go/internal/event"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned when a subscription is sent without a connection.
	ErrNotConnected = errors.New("feed: not connected")

	// ErrAlreadyRunning is returned when Run is called twice.
	ErrAlreadyRunning = errors.New("feed: already running")
)

// Handler receives every raw message read from the feed.
type Handler func(data []byte)

// Options configure the client.
type Options struct {
	URL               string
	ReconnectInterval time.Duration
	SubscribeStagger  time.Duration
	PingInterval      time.Duration
	PongWait          time.Duration
}

func (o *Options) setDefaults() {
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = 5 * time.Second
	}
	if o.SubscribeStagger <= 0 {
		o.SubscribeStagger = 100 * time.Millisecond
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 30 * time.Second
	}
	if o.PongWait <= o.PingInterval {
		o.PongWait = o.PingInterval * 2
	}
}

type subscribeRequest struct {
	Method string   `json:"method"`
	Keys   []string `json:"keys"`
}

// Client keeps one websocket connection to the trade feed alive and
// re-subscribes every tracked wallet, and the active token, after each
// (re)connect.
type Client struct {
	opts     Options
	handler  Handler
	accounts func() []string

	mu          sync.RWMutex
	conn        *websocket.Conn
	activeToken string

	writeMu sync.Mutex
	running atomic.Bool

	connects atomic.Int64

	logger *zap.Logger
}

// New creates a client. accounts returns the wallet addresses to subscribe
// on connect, in subscription order.
func New(opts Options, handler Handler, accounts func() []string, logger *zap.Logger) *Client {
	opts.setDefaults()
	return &Client{
		opts:     opts,
		handler:  handler,
		accounts: accounts,
		logger:   logger,
	}
}

// IsConnected reports whether a connection is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Connects returns how many connections were established so far.
func (c *Client) Connects() int64 { return c.connects.Load() }

// Run connects and keeps the connection alive until ctx is done. After a
// failed dial or a dropped connection it retries on a single timer every
// ReconnectInterval until a connection succeeds.
func (c *Client) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer c.running.Store(false)

	for {
		if err := c.connect(ctx); err != nil {
			c.logger.Warn("Feed connection failed, retrying", zap.Error(err), zap.Duration("interval", c.opts.ReconnectInterval))
			if !c.waitReconnect(ctx) {
				return nil
			}
			continue
		}

		c.logger.Info("Feed connected", zap.String("url", c.opts.URL))
		err := c.serve(ctx)
		c.disconnect()
		if ctx.Err() != nil {
			c.logger.Info("Feed stopped")
			return nil
		}
		c.logger.Warn("Feed disconnected, reconnecting", zap.Error(err))
		if !c.waitReconnect(ctx) {
			return nil
		}
	}
}

// waitReconnect blocks until the reconnect timer fires. It returns false when
// ctx ends first.
func (c *Client) waitReconnect(ctx context.Context) bool {
	t := time.NewTimer(c.opts.ReconnectInterval)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.opts.URL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connects.Add(1)
	return nil
}

func (c *Client) disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// serve subscribes, then reads until the connection breaks or ctx ends.
func (c *Client) serve(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	connDone := make(chan struct{})
	defer close(connDone)

	go func() {
		select {
		case <-ctx.Done():
			c.writeMu.Lock()
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			conn.Close()
		case <-connDone:
		}
	}()
	go c.pingLoop(conn, connDone)
	go c.resubscribe(ctx, conn, connDone)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}
		if c.handler != nil {
			c.handler(message)
		}
	}
}

// resubscribe sends one account subscription per wallet, staggered, then
// the active token's channel.
func (c *Client) resubscribe(ctx context.Context, conn *websocket.Conn, connDone <-chan struct{}) {
	var accounts []string
	if c.accounts != nil {
		accounts = c.accounts()
	}
	for i, addr := range accounts {
		if i > 0 && !c.pause(ctx, connDone) {
			return
		}
		if err := c.write(conn, event.MethodSubscribeAccountTrade, addr); err != nil {
			c.logger.Warn("Account subscription failed", zap.String("wallet", addr), zap.Error(err))
			return
		}
	}

	c.mu.RLock()
	token := c.activeToken
	c.mu.RUnlock()
	if token != "" {
		if len(accounts) > 0 && !c.pause(ctx, connDone) {
			return
		}
		if err := c.write(conn, event.MethodSubscribeTokenTrade, token); err != nil {
			c.logger.Warn("Token subscription failed", zap.String("mint", token), zap.Error(err))
			return
		}
	}
	c.logger.Info("Feed subscriptions sent", zap.Int("wallets", len(accounts)), zap.Bool("token", token != ""))
}

func (c *Client) pause(ctx context.Context, connDone <-chan struct{}) bool {
	t := time.NewTimer(c.opts.SubscribeStagger)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-connDone:
		return false
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-connDone:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.logger.Debug("Feed ping failed", zap.Error(err))
				return
			}
		}
	}
}

// SubscribeAccount subscribes one wallet's trades.
func (c *Client) SubscribeAccount(address string) error {
	return c.send(event.MethodSubscribeAccountTrade, address)
}

// UnsubscribeAccount drops one wallet's trades.
func (c *Client) UnsubscribeAccount(address string) error {
	return c.send(event.MethodUnsubscribeAccountTrade, address)
}

// SubscribeToken subscribes the token channel. The mint is remembered and
// re-subscribed on reconnect even when no connection is up right now.
func (c *Client) SubscribeToken(mint string) error {
	c.mu.Lock()
	c.activeToken = mint
	c.mu.Unlock()
	return c.send(event.MethodSubscribeTokenTrade, mint)
}

// UnsubscribeToken drops the token channel.
func (c *Client) UnsubscribeToken(mint string) error {
	c.mu.Lock()
	if c.activeToken == mint {
		c.activeToken = ""
	}
	c.mu.Unlock()
	return c.send(event.MethodUnsubscribeTokenTrade, mint)
}

func (c *Client) send(method, key string) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}
	return c.write(conn, method, key)
}

func (c *Client) write(conn *websocket.Conn, method, key string) error {
	c.writeMu.Lock()
	err := conn.WriteJSON(subscribeRequest{Method: method, Keys: []string{key}})
	c.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("write %s: %w", method, err)
	}
	c.logger.Debug("Feed request sent", zap.String("method", method), zap.String("key", key))
	return nil
}
