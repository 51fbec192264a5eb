package realtime

import (
	"context"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/autopeer-io/telehub/internal/pkg/middleware"
	"github.com/autopeer-io/telehub/pkg/log"
	"github.com/autopeer-io/telehub/pkg/options"
)

// WebsocketHandler upgrades HTTP requests to realtime sessions. The session
// principal is taken from the request claims when authentication ran.
type WebsocketHandler struct {
	hub      *Hub
	opts     *options.RealtimeOptions
	upgrader websocket.Upgrader
	ctx      context.Context
}

// NewWebsocketHandler serves sessions until ctx is done.
func NewWebsocketHandler(ctx context.Context, hub *Hub, opts *options.RealtimeOptions) *WebsocketHandler {
	h := &WebsocketHandler{hub: hub, opts: opts, ctx: ctx}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebsocketHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if slices.Contains(h.opts.AllowedOrigins, "*") || slices.Contains(h.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

func (h *WebsocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var principal string
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		principal = claims.UserID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		middleware.Logger(r.Context()).Debug("Websocket upgrade failed", "error", err.Error())
		return
	}

	s := h.hub.NewSession(principal)
	logger := s.logger.WithValues("remote", r.RemoteAddr)
	logger.Info("Realtime session opened")

	ctx, cancel := context.WithCancel(h.ctx)
	defer cancel()

	go s.Run(ctx)
	go h.writeLoop(ctx, conn, s)

	h.readLoop(ctx, conn, s, logger)
	s.Close()
	logger.Info("Realtime session closed")
}

func (h *WebsocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, s *Session, logger log.Logger) {
	conn.SetReadLimit(h.opts.MaxMessageSize)
	deadline := func() error { return conn.SetReadDeadline(time.Now().Add(2 * h.opts.PingInterval)) }
	_ = deadline()
	conn.SetPongHandler(func(string) error { return deadline() })

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("Realtime session read failed", "error", err.Error())
			}
			return
		}
		_ = deadline()
		if err := s.Enqueue(ctx, env); err != nil {
			return
		}
	}
}

func (h *WebsocketHandler) writeLoop(ctx context.Context, conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case frame := <-s.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"),
				time.Now().Add(h.opts.WriteTimeout))
			return
		case <-ctx.Done():
			return
		}
	}
}
