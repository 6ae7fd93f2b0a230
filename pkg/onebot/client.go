package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Moitr/stardew-qq-wikibot/pkg/config"
)

// Handler receives one decoded frame together with the action surface of
// the connection it arrived on. It must return quickly: all slow work is
// the handler's job to defer to its own goroutines.
type Handler func(ctx context.Context, api *API, raw Event)

// Client owns the persistent OneBot connection and reconnects with a
// fixed backoff for as long as the context lives.
type Client struct {
	addr          string
	token         string
	reconnectWait time.Duration
	log           *slog.Logger
}

// NewClient builds a client from config.
func NewClient(cfg config.OneBotConfig, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		addr:          strings.TrimSpace(cfg.Addr),
		token:         strings.TrimSpace(cfg.AccessToken),
		reconnectWait: time.Duration(cfg.ReconnectSeconds) * time.Second,
		log:           log.With("component", "onebot.client"),
	}
}

// Run connects and reads frames until the context is canceled,
// reconnecting after the configured delay on any connection failure.
// Giving up is not an option for a long-running bot, so the backoff is
// constant and the loop is unbounded.
func (c *Client) Run(ctx context.Context, handle Handler) error {
	if handle == nil {
		return errors.New("handler is required")
	}

	for {
		err := c.runConn(ctx, handle)
		if ctx.Err() != nil {
			return nil
		}
		c.log.Warn("Connection lost, reconnecting", "error", err, "wait", c.reconnectWait)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectWait):
		}
	}
}

func (c *Client) runConn(ctx context.Context, handle Handler) error {
	wsURL := c.dialURL()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when the context ends so the blocked read returns.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.log.Info("Connected", "addr", c.addr)
	api := NewAPI(&lockedConn{conn: conn})

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var raw Event
		if err := json.Unmarshal(payload, &raw); err != nil {
			c.log.Debug("Dropping undecodable frame", "error", err)
			continue
		}

		handle(ctx, api, raw)
	}
}

func (c *Client) dialURL() string {
	wsURL := "ws://" + c.addr
	if c.token != "" {
		wsURL += "?access_token=" + url.QueryEscape(c.token)
	}

	return wsURL
}

// lockedConn serializes writes; gorilla allows one concurrent writer and
// handler goroutines send actions concurrently.
type lockedConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (l *lockedConn) WriteJSON(v any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn.WriteJSON(v)
}
