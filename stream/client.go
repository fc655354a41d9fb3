package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradesync/logger"
	"tradesync/models"
)

// Validator reports whether a decoded frame has the shape the owning
// component expects. Frames failing the validator are logged and dropped;
// nothing past this boundary sees unvalidated data.
type Validator func(map[string]interface{}) bool

// Handlers are the callbacks a client owner registers. OnOpen fires after
// every successful (re)connect, OnMessage for every validated frame, in
// delivery order.
type Handlers struct {
	OnOpen    func()
	OnMessage func(map[string]interface{})
}

// Config describes one logical streaming subscription.
type Config struct {
	Name           string
	URL            string
	Enabled        bool
	ReconnectDelay time.Duration
	Validator      Validator
}

// Client maintains exactly one logical subscription to a streaming endpoint,
// self-healing across drops. While enabled, every dropped connection (close,
// transport error, failed attempt) schedules exactly one reconnect attempt
// after the configured delay, with no upper bound on attempt count. At most
// one live socket exists at any time.
type Client struct {
	cfg      Config
	handlers Handlers
	log      *logger.Log

	mu        sync.Mutex
	running   bool
	gen       int
	state     models.ConnectionState
	conn      *websocket.Conn
	reconnect *time.Timer
	last      map[string]interface{}
}

func NewClient(cfg Config, handlers Handlers) *Client {
	return &Client{
		cfg:      cfg,
		handlers: handlers,
		log:      logger.GetLogger(),
		state:    models.StateIdle,
	}
}

// Start activates the client and begins the first connection attempt. It is a
// no-op when the client was constructed disabled or is already running.
func (c *Client) Start() {
	if !c.cfg.Enabled {
		c.log.WithComponent(c.cfg.Name).Info("stream client disabled, not starting")
		return
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	c.mu.Unlock()

	c.log.WithComponent(c.cfg.Name).WithFields(logger.Fields{
		"url":             c.cfg.URL,
		"reconnect_delay": c.cfg.ReconnectDelay.String(),
	}).Info("stream client starting")

	c.connect()
}

// Close tears the client down: cancels any pending reconnect timer, closes the
// live socket if present and moves to the terminal closed state. The
// generation counter is bumped so that no in-flight dial, read or timer
// callback mutates state or fires handlers afterwards.
func (c *Client) Close() {
	c.mu.Lock()
	c.running = false
	c.gen++
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = models.StateClosed
	c.mu.Unlock()

	c.log.WithComponent(c.cfg.Name).Info("stream client closed")
}

// Connected reports whether the socket is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == models.StateOpen
}

// State returns the current connection state.
func (c *Client) State() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastMessage returns the most recent validated message, if any.
func (c *Client) LastMessage() (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.last != nil
}

// connect begins a dial attempt unless a socket is already open or connecting.
// A pending reconnect timer is cancelled so at most one attempt is ever in
// flight.
func (c *Client) connect() {
	c.mu.Lock()
	if !c.running || c.state == models.StateConnecting || c.state == models.StateOpen {
		c.mu.Unlock()
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.state = models.StateConnecting
	gen := c.gen
	c.mu.Unlock()

	go c.dial(gen)
}

func (c *Client) dial(gen int) {
	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.URL, nil)

	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		return
	}

	if err != nil {
		c.state = models.StateClosed
		c.scheduleReconnectLocked(gen)
		c.mu.Unlock()
		c.log.WithComponent(c.cfg.Name).WithError(err).Warn("failed to connect stream, retry scheduled")
		return
	}

	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
	c.conn = conn
	c.state = models.StateOpen
	onOpen := c.handlers.OnOpen
	c.mu.Unlock()

	c.log.WithComponent(c.cfg.Name).WithFields(logger.Fields{"url": c.cfg.URL}).Info("stream connected")

	if onOpen != nil {
		onOpen()
	}

	go c.readLoop(conn, gen)
}

func (c *Client) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			c.handleDrop(conn, gen, err)
			return
		}
		c.handleFrame(payload, gen)
	}
}

// handleFrame decodes and validates one inbound frame. Decode and validation
// failures are logged and the frame dropped; only validated data updates the
// last-message state and reaches the message callback.
func (c *Client) handleFrame(payload []byte, gen int) {
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		logger.IncrementDroppedFrame()
		c.log.WithComponent(c.cfg.Name).WithError(err).Warn("dropping malformed frame")
		return
	}

	if c.cfg.Validator != nil && !c.cfg.Validator(decoded) {
		logger.IncrementDroppedFrame()
		c.log.WithComponent(c.cfg.Name).Warn("dropping frame with unexpected shape")
		return
	}

	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	c.last = decoded
	onMessage := c.handlers.OnMessage
	c.mu.Unlock()

	logger.IncrementStreamRead(c.cfg.Name, len(payload))

	if onMessage != nil {
		onMessage(decoded)
	}
}

func (c *Client) handleDrop(conn *websocket.Conn, gen int, err error) {
	conn.Close()

	c.mu.Lock()
	if gen != c.gen || !c.running {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = models.StateClosed
	c.scheduleReconnectLocked(gen)
	c.mu.Unlock()

	c.log.WithComponent(c.cfg.Name).WithError(err).Warn("stream dropped, reconnect scheduled")
}

// scheduleReconnectLocked arms the single reconnect timer. Callers hold c.mu.
func (c *Client) scheduleReconnectLocked(gen int) {
	if !c.running {
		return
	}
	if c.reconnect != nil {
		c.reconnect.Stop()
	}
	logger.IncrementReconnect()
	c.reconnect = time.AfterFunc(c.cfg.ReconnectDelay, func() {
		c.mu.Lock()
		if gen != c.gen || !c.running {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		c.mu.Unlock()
		c.connect()
	})
}
