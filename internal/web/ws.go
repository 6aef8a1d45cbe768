package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/sweeney/heating-control/internal/status"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMsgSize       = 1 << 12
	defaultInterval  = 5 * time.Second
	minInterval      = 500 * time.Millisecond
	maxInterval      = time.Minute
	maxIntervalMilli = 60_000
)

type wsEnvelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// The page is served from the same origin; other clients on the LAN are
// read-only consumers.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS streams the status snapshot every interval (?interval=2s or
// ?interval_ms=2000) until the client goes away.
func (s *Server) handleWS(c *gin.Context) {
	interval := parseInterval(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxMsgSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	go s.readUntilClosed(conn, done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	if err := s.sendStatus(conn); err != nil {
		s.log.Debugw("websocket write failed", "error", err)
		return
	}
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debugw("websocket ping failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := s.sendStatus(conn); err != nil {
				s.log.Debugw("websocket write failed", "error", err)
				return
			}
		}
	}
}

func parseInterval(c *gin.Context) time.Duration {
	if q := c.Query("interval"); q != "" {
		if d, err := time.ParseDuration(q); err == nil && d >= minInterval && d <= maxInterval {
			return d
		}
	}
	if q := c.Query("interval_ms"); q != "" {
		if v, err := strconv.Atoi(q); err == nil && v >= int(minInterval.Milliseconds()) && v <= maxIntervalMilli {
			return time.Duration(v) * time.Millisecond
		}
	}
	return defaultInterval
}

// readUntilClosed drains client frames so control frames are processed, and
// closes done when the connection ends.
func (s *Server) readUntilClosed(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) sendStatus(conn *websocket.Conn) error {
	snap := status.NewStatusJSON(s.tracker.Snapshot())
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(wsEnvelope{Type: "status", Data: snap.Status})
}
