package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

var (
	// ErrNotConnected is returned when the bridge WebSocket is down.
	ErrNotConnected = errors.New("bridge not connected")
	// ErrNameNotFound is returned when the bridge cannot find a chat by name.
	ErrNameNotFound = errors.New("chat name not found")
	// ErrResolveTimeout is returned when the bridge does not answer a
	// resolve request in time.
	ErrResolveTimeout = errors.New("resolve request timed out")
)

const (
	handshakeTimeout = 10 * time.Second
	maxBackoff       = 30 * time.Second
)

// frame is the JSON envelope exchanged with the bridge in both directions.
type frame struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`        // inbound: message id
	Chat     string `json:"chat,omitempty"`      // inbound: chat id; resolve_result: found id
	ChatName string `json:"chat_name,omitempty"` // inbound: chat display name
	From     string `json:"from,omitempty"`
	Content  string `json:"content,omitempty"`
	IsGroup  bool   `json:"is_group,omitempty"`
	To       string `json:"to,omitempty"`     // send: destination chat id
	ReqID    string `json:"req_id,omitempty"` // resolve correlation id
	Name     string `json:"name,omitempty"`   // resolve: display name to look up
	Found    bool   `json:"found,omitempty"`  // resolve_result
}

// Client is the WebSocket bridge client. It reconnects with exponential
// backoff and dispatches each inbound message event on its own goroutine.
type Client struct {
	url            string
	handler        Handler
	limiter        *rate.Limiter
	resolveTimeout time.Duration

	mu   sync.Mutex
	conn *websocket.Conn

	pmu     sync.Mutex
	pending map[string]chan frame // resolve req_id → reply

	ctx    context.Context
	cancel context.CancelFunc
}

// Options tune the client. Zero values get defaults.
type Options struct {
	// SendRatePerMinute caps outbound sends; the platform bans accounts
	// that flood. Zero means 30/min.
	SendRatePerMinute int
	// ResolveTimeout bounds one live name lookup. Zero means 20s.
	ResolveTimeout time.Duration
}

// NewClient creates a bridge client for the given WebSocket URL.
func NewClient(url string, handler Handler, opts Options) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("bridge url is required")
	}
	perMinute := opts.SendRatePerMinute
	if perMinute <= 0 {
		perMinute = 30
	}
	resolveTimeout := opts.ResolveTimeout
	if resolveTimeout <= 0 {
		resolveTimeout = 20 * time.Second
	}
	return &Client{
		url:            url,
		handler:        handler,
		limiter:        rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), perMinute),
		resolveTimeout: resolveTimeout,
		pending:        make(map[string]chan frame),
	}, nil
}

// Start connects to the bridge and begins the listen loop. Non-blocking
// after the first dial attempt; a failed dial is retried in the loop.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("starting bridge client", "url", c.url)
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		slog.Warn("initial bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()
	return nil
}

// Stop closes the connection and stops the listen loop.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// SendText delivers text to a chat by stable id, honoring the send rate
// limit. Returns ErrNotConnected while the bridge is down.
func (c *Client) SendText(ctx context.Context, chatID, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send rate limit: %w", err)
	}
	return c.write(frame{Type: "send", To: chatID, Content: text})
}

// ResolveName asks the bridge to find a chat id by display name and waits
// for the correlated reply.
func (c *Client) ResolveName(ctx context.Context, name string) (string, error) {
	reqID := uuid.NewString()
	reply := make(chan frame, 1)

	c.pmu.Lock()
	c.pending[reqID] = reply
	c.pmu.Unlock()
	defer func() {
		c.pmu.Lock()
		delete(c.pending, reqID)
		c.pmu.Unlock()
	}()

	if err := c.write(frame{Type: "resolve", ReqID: reqID, Name: name}); err != nil {
		return "", err
	}

	timer := time.NewTimer(c.resolveTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
		return "", ErrResolveTimeout
	case f := <-reply:
		if !f.Found || f.Chat == "" {
			return "", ErrNameNotFound
		}
		return f.Chat, nil
	}
}

func (c *Client) write(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal bridge frame: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write bridge frame: %w", err)
	}
	return nil
}

func (c *Client) connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("bridge connected", "url", c.url)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *Client) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting bridge reconnect", "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}

			if err := c.connect(); err != nil {
				slog.Warn("bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = time.Second
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("bridge read error, will reconnect", "error", err)
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("invalid bridge frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

func (c *Client) dispatch(f frame) {
	switch f.Type {
	case "message":
		if f.ID == "" || f.Chat == "" {
			slog.Debug("dropping bridge message without id or chat")
			return
		}
		ev := Event{
			MessageID: f.ID,
			ChatID:    f.Chat,
			ChatName:  f.ChatName,
			SenderID:  f.From,
			Body:      f.Content,
			IsGroup:   f.IsGroup,
		}
		if c.handler != nil {
			// Each event runs independently; slow sends for one chat must
			// not block delivery of the next event.
			go c.handler(c.ctx, ev)
		}
	case "resolve_result":
		c.pmu.Lock()
		reply, ok := c.pending[f.ReqID]
		c.pmu.Unlock()
		if ok {
			select {
			case reply <- f:
			default:
			}
		}
	default:
		slog.Debug("ignoring bridge frame", "type", f.Type)
	}
}
