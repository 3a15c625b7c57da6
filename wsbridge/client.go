package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"mobilepilot/config"
	"mobilepilot/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	requestTimeout = 30 * time.Second
)

// ErrQueueFull is returned when an envelope is dropped because the send
// queue is full.
var ErrQueueFull = errors.New("send queue full")

// Client manages the WebSocket connection to an event sink.
type Client struct {
	cfg      *config.Events
	instance InstanceInfo
	stores   *store.Bundle
	version  string
	logger   hclog.Logger

	ws   *websocket.Conn
	send chan []byte

	dropped atomic.Int64

	mu         sync.Mutex
	pending    map[string]chan *Envelope // requestID → response channel
	instanceID string                    // assigned by the sink on register

	// Incoming request handlers
	handlers map[MessageType]RequestHandler

	// Lifecycle
	done chan struct{}
	ctx  context.Context
	stop context.CancelFunc
}

// RequestHandler processes an incoming request and returns a response envelope.
type RequestHandler func(env *Envelope) (*Envelope, error)

type Option func(*Client)

func WithLogger(logger hclog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithStores lets the sink query run history.
func WithStores(stores *store.Bundle) Option {
	return func(c *Client) {
		c.stores = stores
	}
}

func WithVersion(version string) Option {
	return func(c *Client) {
		c.version = version
	}
}

// NewClient creates a new wsbridge client. Nothing is dialed until Connect.
func NewClient(cfg *config.Events, instance InstanceInfo, opts ...Option) *Client {
	queue := cfg.QueueSize
	if queue <= 0 {
		queue = 256
	}
	ctx, stop := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		instance: instance,
		logger:   hclog.NewNullLogger(),
		send:     make(chan []byte, queue),
		pending:  make(map[string]chan *Envelope),
		handlers: make(map[MessageType]RequestHandler),
		done:     make(chan struct{}),
		ctx:      ctx,
		stop:     stop,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.registerHandlers()
	return c
}

// Connect dials the sink, registers, and starts read/write pumps.
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("connecting to event sink", "url", c.cfg.URL)

	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial event sink: %w", err)
	}
	c.ws = ws

	// Start pumps first; register() needs them to send/receive messages
	go c.readPump()
	go c.writePump()

	if err := c.register(); err != nil {
		c.Close()
		return fmt.Errorf("register: %w", err)
	}

	c.logger.Info("registered with event sink", "instance_id", c.InstanceID())
	return nil
}

// Run blocks until the connection is closed or the client is closed.
func (c *Client) Run() error {
	select {
	case <-c.done:
		return fmt.Errorf("connection closed")
	case <-c.ctx.Done():
		return nil
	}
}

// Close shuts down the client.
func (c *Client) Close() {
	c.stop()
	if c.ws != nil {
		c.ws.Close()
	}
}

// InstanceID returns the ID assigned by the sink.
func (c *Client) InstanceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.instanceID
}

// Dropped counts envelopes discarded because the queue was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

func (c *Client) register() error {
	req, err := NewRequest(TypeRegister, &RegisterPayload{
		Version:  c.version,
		Instance: c.instance,
	})
	if err != nil {
		return err
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}

	var ack RegisterAckPayload
	if err := DecodePayload(resp, &ack); err != nil {
		return fmt.Errorf("decode register ack: %w", err)
	}

	if !ack.Accepted {
		return fmt.Errorf("registration rejected: %s", ack.Reason)
	}

	c.mu.Lock()
	c.instanceID = ack.InstanceID
	c.mu.Unlock()
	return nil
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.ws.Close()
	}()

	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.logger.Warn("invalid message from event sink", "error", err)
			continue
		}

		c.dispatch(&env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.ctx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) dispatch(env *Envelope) {
	// Check if this is a response to a pending request
	if env.RequestID != "" {
		c.mu.Lock()
		ch, ok := c.pending[env.RequestID]
		c.mu.Unlock()
		if ok {
			ch <- env
			return
		}
	}

	switch env.Type {
	case TypeHeartbeat:
		ack, _ := NewResponse(env.RequestID, TypeHeartbeatAck, &HeartbeatAckPayload{})
		c.sendEnvelope(ack)
	default:
		handler, ok := c.handlers[env.Type]
		if !ok {
			c.logger.Debug("unhandled message type", "type", env.Type)
			return
		}
		resp, err := handler(env)
		if err != nil {
			errResp, _ := NewError(env.RequestID, "handler_error", err.Error())
			c.sendEnvelope(errResp)
			return
		}
		if resp != nil {
			c.sendEnvelope(resp)
		}
	}
}

// sendEnvelope queues env without blocking; a full queue drops it.
func (c *Client) sendEnvelope(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			c.logger.Warn("event sink queue full; dropping", "type", env.Type, "dropped", n)
		}
		return ErrQueueFull
	}
}

// SendEvent queues a one-way event (no response expected).
func (c *Client) SendEvent(env *Envelope) error {
	return c.sendEnvelope(env)
}

func (c *Client) sendRequest(env *Envelope) (*Envelope, error) {
	ch := make(chan *Envelope, 1)

	c.mu.Lock()
	c.pending[env.RequestID] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, env.RequestID)
		c.mu.Unlock()
	}()

	if err := c.sendEnvelope(env); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Type == TypeError {
			var e ErrorPayload
			_ = DecodePayload(resp, &e)
			return nil, fmt.Errorf("%s: %s", e.Code, e.Message)
		}
		return resp, nil
	case <-c.done:
		return nil, fmt.Errorf("connection closed")
	case <-time.After(requestTimeout):
		return nil, fmt.Errorf("request timed out")
	}
}
