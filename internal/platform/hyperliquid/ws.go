package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/hyperwatch/internal/domain"
)

const (
	// wsWriteWait is the time allowed to write a message to the peer.
	wsWriteWait = 10 * time.Second

	// wsPongWait is the time allowed to read the next pong message.
	wsPongWait = 60 * time.Second

	// wsPingPeriod sends pings at this interval. Must be less than pongWait.
	wsPingPeriod = (wsPongWait * 9) / 10

	// wsReconnectDelay is the base delay before attempting to reconnect.
	wsReconnectDelay = 2 * time.Second

	// wsMaxReconnectDelay caps the exponential backoff.
	wsMaxReconnectDelay = 60 * time.Second
)

// DefaultWSURL is the production WebSocket endpoint.
const DefaultWSURL = "wss://api.hyperliquid.xyz/ws"

// FillHandler is called when new fills arrive on the WebSocket feed.
type FillHandler func(wallet string, fills []domain.Fill)

// WSClient is a WebSocket client for the real-time user fill feed. It
// maintains subscriptions across reconnects.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Tracked wallet subscriptions for reconnection.
	wallets []string

	fillHandlers []FillHandler
	handlerMu    sync.RWMutex

	// done is closed when the client shuts down.
	done chan struct{}
}

// NewWSClient creates a new WebSocket client. An empty wsURL selects the
// production endpoint.
func NewWSClient(wsURL string) *WSClient {
	if wsURL == "" {
		wsURL = DefaultWSURL
	}
	return &WSClient{
		wsURL: wsURL,
		done:  make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and restores any tracked
// wallet subscriptions.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("hyperliquid/ws: client is closed")
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("hyperliquid/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	for _, wallet := range w.wallets {
		if err := w.sendSubscribe(wallet); err != nil {
			return fmt.Errorf("hyperliquid/ws: restore subscription %s: %w", wallet, err)
		}
	}
	return nil
}

// SubscribeFills subscribes to the fill feed for the given wallet.
func (w *WSClient) SubscribeFills(ctx context.Context, wallet string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("hyperliquid/ws: not connected")
	}

	if err := w.sendSubscribe(wallet); err != nil {
		return fmt.Errorf("hyperliquid/ws: subscribe %s: %w", wallet, err)
	}

	for _, tracked := range w.wallets {
		if tracked == wallet {
			return nil
		}
	}
	w.wallets = append(w.wallets, wallet)
	return nil
}

// OnFills registers a handler invoked for every fill batch.
func (w *WSClient) OnFills(handler FillHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.fillHandlers = append(w.fillHandlers, handler)
}

// Close shuts down the WebSocket connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// sendSubscribe sends a userFills subscription. Caller must hold w.mu.
func (w *WSClient) sendSubscribe(wallet string) error {
	msg := map[string]any{
		"method": "subscribe",
		"subscription": map[string]string{
			"type": "userFills",
			"user": wallet,
		},
	}

	w.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal subscribe: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads messages and dispatches fill batches to handlers. On
// disconnect it attempts reconnection with backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic pings to keep the connection alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// wsEnvelope is the outer frame of every feed message.
type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

// wsUserFills is the payload of a userFills frame. The first frame after a
// subscribe carries IsSnapshot and replays recent fills; dedup happens
// downstream on the trade id.
type wsUserFills struct {
	IsSnapshot bool      `json:"isSnapshot"`
	User       string    `json:"user"`
	Fills      []rawFill `json:"fills"`
}

// handleMessage parses a raw WebSocket message and routes it.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return
	}

	switch envelope.Channel {
	case "userFills":
		var payload wsUserFills
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return
		}
		if len(payload.Fills) == 0 {
			return
		}

		fills := make([]domain.Fill, 0, len(payload.Fills))
		for _, r := range payload.Fills {
			fills = append(fills, toFill(r))
		}

		w.handlerMu.RLock()
		handlers := w.fillHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(payload.User, fills)
		}
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (w *WSClient) reconnect() {
	delay := wsReconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > wsMaxReconnectDelay {
			delay = wsMaxReconnectDelay
		}
	}
}
