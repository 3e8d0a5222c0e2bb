// Package ws carries the two WebSocket surfaces: the sensor intake that
// feeds the pipeline and the consumer feed that receives emitted events.
package ws

import (
	"errors"
	"log"
	nethttp "net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"sensorbridge/server"
	"sensorbridge/server/internal/proto"
)

type HandlerConfig struct {
	Logger *log.Logger
	// ReadLimit bounds one inbound frame in bytes.
	ReadLimit int64
	// IdleTimeout closes a sensor connection with no traffic at all.
	IdleTimeout time.Duration
	// RateLimit and RateBurst bound inbound messages per connection.
	// Zero disables limiting.
	RateLimit rate.Limit
	RateBurst int
	// Strict closes the connection on the first rejected message instead
	// of logging and reading on.
	Strict bool
}

// Handler accepts sensor connections and pumps their messages through the
// session.
type Handler struct {
	session  *server.Session
	cfg      HandlerConfig
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(session *server.Session, cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.ReadLimit == 0 {
		cfg.ReadLimit = 16 * 1024
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	return &Handler{
		session: session,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *nethttp.Request) bool {
				return true
			},
		},
	}
}

type heartbeatAck struct {
	Ver        int    `json:"ver"`
	Type       string `json:"type"`
	ServerTime int64  `json:"serverTime"`
	ClientSent int64  `json:"clientSent,omitempty"`
	RTTMillis  int64  `json:"rtt"`
}

func (h *Handler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("sensor upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.cfg.ReadLimit)

	var limiter *rate.Limiter
	if h.cfg.RateLimit > 0 {
		burst := h.cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(h.cfg.RateLimit, burst)
	}

	for {
		conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if limiter != nil && !limiter.Allow() {
			h.logger.Printf("sensor message dropped: rate limit")
			continue
		}

		input, err := proto.Decode(payload)
		if err != nil {
			h.logger.Printf("discarding malformed sensor message: %v", err)
			var derr *proto.DecodeError
			if errors.As(err, &derr) {
				h.session.DecodeFailed(derr)
			}
			if h.cfg.Strict {
				h.closePolicy(conn, "malformed message")
				return
			}
			continue
		}

		if hb, ok := input.(proto.HeartbeatInput); ok {
			if !h.ackHeartbeat(conn, hb) {
				return
			}
			continue
		}

		if err := h.session.Process(input); err != nil {
			if h.cfg.Strict {
				h.closePolicy(conn, err.Error())
				return
			}
		}
	}
}

func (h *Handler) ackHeartbeat(conn *websocket.Conn, hb proto.HeartbeatInput) bool {
	now := time.Now()
	rtt := h.session.Heartbeat(now, hb.SentAt)
	ack := heartbeatAck{
		Ver:        proto.Version,
		Type:       proto.TypeHeartbeatAck,
		ServerTime: now.UnixMilli(),
		ClientSent: hb.SentAt,
		RTTMillis:  rtt.Milliseconds(),
	}
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(ack); err != nil {
		h.logger.Printf("failed to ack heartbeat: %v", err)
		return false
	}
	return true
}

func (h *Handler) closePolicy(conn *websocket.Conn, reason string) {
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	conn.WriteMessage(websocket.CloseMessage, message)
}
