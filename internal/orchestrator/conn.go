// Package orchestrator manages the WebSocket connection to the
// ApplyFlow orchestrator and translates its frames into typed events.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jmelchner/applyflow/internal/metrics"
)

// Sentinel errors for connection operations.
var (
	// ErrEmptyMessage indicates a send with no content.
	ErrEmptyMessage = errors.New("message content is empty")

	// ErrNotConnected indicates the socket is not open. The send is
	// aborted (never queued); a reconnect attempt is kicked off as a
	// side effect.
	ErrNotConnected = errors.New("not connected")

	// ErrClosed indicates the connection was closed by the caller.
	ErrClosed = errors.New("connection closed")
)

// State describes the connection lifecycle.
type State int

const (
	// StateIdle means no socket exists and none is being established.
	StateIdle State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means frames can be sent.
	StateOpen
	// StateClosed means Close was called or the server closed normally;
	// the connection will not come back.
	StateClosed
)

// Config configures a Conn.
type Config struct {
	// URL is the orchestrator WebSocket endpoint, without the token.
	URL string
	// Token is appended as a query parameter on the handshake.
	Token string
	// ReconnectDelay is the fixed wait before the single reconnect
	// attempt that follows an abnormal close.
	ReconnectDelay time.Duration
	// HandshakeTimeout bounds the dial. Zero means 10s.
	HandshakeTimeout time.Duration

	Logger    *slog.Logger
	Collector *metrics.Collector
}

// Conn is a managed WebSocket connection to the orchestrator.
// At most one underlying socket exists at a time. On abnormal close it
// retries the connection exactly once per close event, after a fixed
// delay; a failed retry surfaces as EventDisconnected.
type Conn struct {
	cfg       Config
	dialer    *websocket.Dialer
	logger    *slog.Logger
	collector *metrics.Collector

	events chan Event

	writeMu sync.Mutex // serializes writes to the socket

	mu         sync.Mutex
	ws         *websocket.Conn
	state      State
	pageID     string
	userClosed bool
}

// New creates a Conn. Dial must be called before sending.
func New(cfg Config) *Conn {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Collector == nil {
		cfg.Collector = metrics.NewCollector()
	}
	return &Conn{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		logger:    cfg.Logger,
		collector: cfg.Collector,
		events:    make(chan Event, 256),
	}
}

// Events returns the channel on which connection events are delivered.
// The channel is never closed; consumers should stop reading after
// EventDisconnected or after calling Close.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// State returns the current connection state.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Dial opens the WebSocket if it is not already connecting or open.
func (c *Conn) Dial(ctx context.Context) error {
	return c.dial(ctx, false)
}

func (c *Conn) dial(ctx context.Context, reconnect bool) error {
	c.mu.Lock()
	if c.userClosed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnecting || c.state == StateOpen {
		c.mu.Unlock()
		return nil
	}
	c.state = StateConnecting
	c.mu.Unlock()

	u := c.cfg.URL + "?token=" + url.QueryEscape(c.cfg.Token)

	start := time.Now()
	ws, resp, err := c.dialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.collector.RecordFailure(metrics.OpWSConnect)
		c.mu.Lock()
		c.state = StateIdle
		c.mu.Unlock()
		return fmt.Errorf("dial orchestrator: %w", err)
	}
	c.collector.RecordTiming(metrics.OpWSConnect, time.Since(start))

	c.mu.Lock()
	if c.userClosed {
		c.mu.Unlock()
		ws.Close()
		return ErrClosed
	}
	c.ws = ws
	c.state = StateOpen
	pageID := c.pageID
	c.mu.Unlock()

	// Restore the server-side conversation context before anything else.
	if pageID != "" {
		if err := c.writeJSON(ws, frame{Type: frameSwitchPage, PageID: pageID}); err != nil {
			c.logger.Warn("failed to send switch_page after connect", "error", err, "page_id", pageID)
		}
	}

	go c.readLoop(ws)

	c.emit(EventConnected{Reconnected: reconnect})
	return nil
}

// SendMessage transmits a user message for the current page. Empty
// content is rejected. If the socket is not open the send is aborted
// and a reconnect is started in the background.
func (c *Conn) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	ws := c.ws
	open := c.state == StateOpen
	pageID := c.pageID
	c.mu.Unlock()

	if !open {
		go func() {
			if err := c.dial(context.Background(), true); err != nil && !errors.Is(err, ErrClosed) {
				c.logger.Warn("reconnect before send failed", "error", err)
			}
		}()
		return ErrNotConnected
	}

	start := time.Now()
	if err := c.writeJSON(ws, frame{Type: frameMessage, Content: content, PageID: pageID}); err != nil {
		c.collector.RecordFailure(metrics.OpWSSend)
		return fmt.Errorf("send message: %w", err)
	}
	c.collector.RecordTiming(metrics.OpWSSend, time.Since(start))
	return nil
}

// SwitchPage changes the active conversation. The new page id is
// remembered for reconnects; if the socket is open the server is
// notified immediately. Message history is fetched over REST by the
// caller, not here.
func (c *Conn) SwitchPage(pageID string) error {
	c.mu.Lock()
	c.pageID = pageID
	ws := c.ws
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open {
		return nil
	}
	if err := c.writeJSON(ws, frame{Type: frameSwitchPage, PageID: pageID}); err != nil {
		return fmt.Errorf("switch page: %w", err)
	}
	return nil
}

// PageID returns the active page id ("" for a new conversation).
func (c *Conn) PageID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pageID
}

// StopGeneration asks the orchestrator to stop the in-flight reply.
// Best effort: there is no acknowledgement.
func (c *Conn) StopGeneration() error {
	c.mu.Lock()
	ws := c.ws
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open {
		return ErrNotConnected
	}
	if err := c.writeJSON(ws, frame{Type: frameStopGeneration}); err != nil {
		return fmt.Errorf("stop generation: %w", err)
	}
	return nil
}

// Close shuts the connection down for good. No reconnect follows.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.userClosed {
		c.mu.Unlock()
		return nil
	}
	c.userClosed = true
	ws := c.ws
	c.ws = nil
	c.state = StateClosed
	c.mu.Unlock()

	if ws == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.writeMu.Lock()
	_ = ws.WriteControl(websocket.CloseMessage, msg, deadline)
	c.writeMu.Unlock()
	return ws.Close()
}

func (c *Conn) writeJSON(ws *websocket.Conn, f frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return ws.WriteJSON(f)
}

// readLoop reads frames until the socket dies, then hands the error to
// handleClose. One readLoop exists per underlying socket.
func (c *Conn) readLoop(ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.handleClose(ws, err)
			return
		}
		c.dispatch(data)
	}
}

// handleClose decides what a dead socket means: user-initiated close
// and normal server close are terminal, anything else gets exactly one
// delayed reconnect attempt.
func (c *Conn) handleClose(ws *websocket.Conn, err error) {
	ws.Close()

	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	if c.userClosed {
		c.state = StateClosed
		c.mu.Unlock()
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.state = StateClosed
		c.mu.Unlock()
		c.emit(EventDisconnected{})
		return
	}
	c.state = StateIdle
	c.mu.Unlock()

	c.logger.Warn("connection lost, scheduling reconnect",
		"error", err, "delay", c.cfg.ReconnectDelay)

	time.AfterFunc(c.cfg.ReconnectDelay, func() {
		start := time.Now()
		if derr := c.dial(context.Background(), true); derr != nil {
			if !errors.Is(derr, ErrClosed) {
				c.collector.RecordFailure(metrics.OpWSReconnect)
				c.emit(EventDisconnected{Err: derr})
			}
			return
		}
		c.collector.RecordTiming(metrics.OpWSReconnect, time.Since(start))
	})
}

// dispatch parses one inbound frame and emits the matching event.
// Payloads that are not JSON are treated as plain-text replies.
func (c *Conn) dispatch(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.emit(EventAssistantMessage{Content: string(data)})
		return
	}

	switch {
	case f.Type == frameMessage:
		c.emit(EventAssistantMessage{Content: f.Content})

	case strings.HasPrefix(f.Type, frameReasoningPrefix):
		c.emit(EventReasoning{Stage: f.Type, Content: f.Content})

	case f.Type == frameError:
		msg := f.Message
		if msg == "" {
			msg = f.Content
		}
		c.emit(EventError{Message: msg})

	case f.Type == framePageCreated:
		c.mu.Lock()
		if c.pageID == "" {
			c.pageID = f.PageID
		}
		c.mu.Unlock()
		c.emit(EventPageCreated{PageID: f.PageID, Title: f.Title})

	case f.Type == frameSubscriptionUpdated:
		c.emit(EventSubscriptionUpdated{Plan: f.Plan})

	default:
		c.logger.Debug("dropping frame with unknown type", "type", f.Type)
	}
}

func (c *Conn) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping event")
	}
}
