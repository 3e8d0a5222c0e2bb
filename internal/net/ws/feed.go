package ws

import (
	"log"
	nethttp "net/http"

	"github.com/gorilla/websocket"

	"sensorbridge/server"
)

// FeedHandler attaches consumer connections to the session's event feed.
// Consumers only receive; any inbound frame is discarded.
type FeedHandler struct {
	session  *server.Session
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewFeedHandler(session *server.Session, logger *log.Logger) *FeedHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &FeedHandler{
		session: session,
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

func (h *FeedHandler) Handle(w nethttp.ResponseWriter, r *nethttp.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("feed upgrade failed: %v", err)
		return
	}

	id := h.session.Subscribe(conn)

	// Drain inbound frames so pings and close handshakes are processed;
	// the read error is the disconnect signal.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.session.Unsubscribe(id)
	conn.Close()
}
