package realtime

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dealstream/api/internal/security"
)

// wsConn wraps a websocket connection with a write mutex so concurrent
// fanouts never interleave frames.
type wsConn struct {
	conn         *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
}

type wsEvent struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}

func (c *wsConn) WriteEvent(event string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(wsEvent{Event: event, Payload: payload})
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// WSHandler upgrades HTTP requests to websocket connections and binds them to
// the caller's room. The user identity is derived server-side from the access
// token presented at handshake time; a client-asserted user ID is never
// trusted.
type WSHandler struct {
	registry     RoomRegistry
	issuer       *security.TokenIssuer
	upgrader     websocket.Upgrader
	writeTimeout time.Duration
}

// NewWSHandler creates a websocket handler backed by the given registry.
func NewWSHandler(registry RoomRegistry, issuer *security.TokenIssuer, writeTimeout time.Duration) *WSHandler {
	return &WSHandler{
		registry: registry,
		issuer:   issuer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		writeTimeout: writeTimeout,
	}
}

// handshakeToken extracts the access token from the Authorization header, the
// "token" query parameter, or the access-token cookie, in that order. Browser
// websocket clients cannot set headers, hence the fallbacks.
func handshakeToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
		return auth[7:]
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("accessToken"); err == nil {
		return cookie.Value
	}
	return ""
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := handshakeToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	claims, err := h.issuer.VerifyAccess(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	wc := &wsConn{conn: conn, writeTimeout: h.writeTimeout}

	h.registry.Join(connID, claims.UserID, wc)
	log.Debug().
		Str("conn_id", connID).
		Str("user_id", claims.UserID.String()).
		Msg("websocket connected")

	// Dropping the connection is the only cancellation signal. The read loop
	// exists to detect it; inbound payloads carry no business semantics since
	// room membership is fixed at handshake.
	go func() {
		defer func() {
			h.registry.Leave(connID)
			wc.Close()
			log.Debug().Str("conn_id", connID).Msg("websocket disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
