package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// AlertSubscriber delivers live alert payloads for a channel pattern.
type AlertSubscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// AlertStreamHandler upgrades clients to WebSocket and relays live alerts
// from the signal bus.
type AlertStreamHandler struct {
	bus      AlertSubscriber
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewAlertStreamHandler creates an AlertStreamHandler. Origin checking is
// delegated to the CORS middleware in front of the mux.
func NewAlertStreamHandler(bus AlertSubscriber, logger *slog.Logger) *AlertStreamHandler {
	return &AlertStreamHandler{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logHandler(logger, "alerts_ws"),
	}
}

// Stream relays alerts for one wallet (or all wallets when no wallet
// parameter is given) until the client disconnects.
// GET /ws/alerts?wallet=0x...
func (h *AlertStreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	channel := "alerts:*"
	if acct := r.URL.Query().Get("wallet"); acct != "" {
		channel = "alerts:" + acct
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	payloads, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.ErrorContext(ctx, "alert subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(time.Second))
		return
	}

	// Drain client frames so pings and close frames are processed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-payloads:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		}
	}
}
