package realtime

import (
	"net/http"
	"time"

	"github.com/bissquit/resilio/internal/pkg/ctxlog"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	defaultPingInterval   = 30 * time.Second
	defaultWriteTimeout   = 10 * time.Second
	maxClientMessageBytes = 4096
)

// HandlerConfig contains websocket settings.
type HandlerConfig struct {
	BufferSize     int
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
}

// Handler upgrades HTTP connections to websocket subscriptions on the hub.
type Handler struct {
	hub      *Hub
	config   HandlerConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a websocket handler.
func NewHandler(hub *Hub, config HandlerConfig) *Handler {
	if config.PingInterval == 0 {
		config.PingInterval = defaultPingInterval
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = defaultWriteTimeout
	}

	origins := make(map[string]bool, len(config.AllowedOrigins))
	for _, o := range config.AllowedOrigins {
		origins[o] = true
	}

	return &Handler{
		hub:    hub,
		config: config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

// RegisterRoutes registers the websocket endpoint. It must be mounted behind
// authentication and outside request timeouts.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.Serve)
}

// Serve handles GET /ws.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	logger := ctxlog.FromContext(r.Context())

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sub := h.hub.Subscribe(h.config.BufferSize)
	logger.Debug("realtime client connected")

	go h.readPump(conn, sub)
	h.writePump(conn, sub)

	logger.Debug("realtime client disconnected")
}

func (h *Handler) writePump(conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		sub.Close()
		_ = conn.Close()
	}()

	for {
		select {
		case frame, ok := <-sub.Messages():
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client messages and ends the subscription when the peer goes away.
func (h *Handler) readPump(conn *websocket.Conn, sub *Subscription) {
	defer sub.Close()

	pongWait := 2 * h.config.PingInterval
	conn.SetReadLimit(maxClientMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
