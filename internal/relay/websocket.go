package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The producer and viewer endpoints are consumed by the worker fleet
	// and the dashboard's own origin; cross-origin restriction is handled
	// by the coordinator's CORS middleware, not here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type wsLine struct {
	conn *websocket.Conn
}

// armKeepalive configures a read deadline refreshed by pong frames, and a
// background ticker sending pings, so a half-open connection (cable pulled,
// NAT timeout) is detected within pongWait instead of hanging forever.
func armKeepalive(conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ticker := time.NewTicker(pingPeriod)
	go func() {
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}()
}

func (w wsLine) ReadLine(ctx context.Context) (string, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (w wsLine) WriteLine(ctx context.Context, line string) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

// ProducerHandler upgrades a worker's connection and pumps its log lines
// into the relay under the :hostname path parameter.
func (r *Relay) ProducerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		hostname := chi.URLParam(req, "hostname")

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.logger.WarnContext(req.Context(), "relay: producer upgrade failed", "error", err, "hostname", hostname)
			return
		}
		defer conn.Close()
		armKeepalive(conn)

		r.RunProducer(req.Context(), hostname, wsLine{conn: conn})
	}
}

// ViewerHandler upgrades a viewer's connection and streams hostname's
// buffered backlog followed by live lines. The socket gets a normal close
// when the producer disconnects or the consumer is dropped for a slow
// backlog (both surface as errProducerDisconnected), and 1008 (policy
// violation) when writing to the viewer fails or its request context ends.
func (r *Relay) ViewerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		hostname := chi.URLParam(req, "hostname")

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			r.logger.WarnContext(req.Context(), "relay: viewer upgrade failed", "error", err, "hostname", hostname)
			return
		}
		defer conn.Close()
		armKeepalive(conn)

		// Viewers never send application data; drain control frames
		// (pong, close) so the connection is detected as dead promptly.
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		err = r.RunConsumer(req.Context(), hostname, wsLine{conn: conn})
		switch err {
		case nil, errProducerDisconnected:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		case errNoProducer:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "no active stream"), time.Now().Add(writeWait))
		default:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "dropped"), time.Now().Add(writeWait))
		}
	}
}
