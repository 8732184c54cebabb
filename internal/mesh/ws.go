package mesh

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Snapshotter produces the current ClusterStatus on demand. engine.Engine
// satisfies this without mesh importing it back.
type Snapshotter interface {
	Snapshot() ClusterStatus
}

// Hub pushes a fresh ClusterStatus to every connected dashboard on a fixed
// interval. It is the push-side companion to the pull-side snapshot: a
// consumer that wants a stream instead of polling connects here (§6.3
// "consumers may poll" — this is the alternative to polling, not a
// replacement of it).
type Hub struct {
	source   Snapshotter
	interval time.Duration
	logger   *log.Logger
}

// NewHub creates a Hub broadcasting at interval (default 5s).
func NewHub(source Snapshotter, interval time.Duration, logger *log.Logger) *Hub {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Hub{source: source, interval: interval, logger: logger}
}

// HandleWebSocket upgrades the request and streams ClusterStatus snapshots
// until the client disconnects or the request's context is cancelled.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.send(conn); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.send(conn); err != nil {
				return
			}
		}
	}
}

func (h *Hub) send(conn *websocket.Conn) error {
	if err := conn.WriteJSON(h.source.Snapshot()); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			h.logf("websocket write error: %v", err)
		}
		return err
	}
	return nil
}

func (h *Hub) logf(format string, args ...any) {
	if h.logger != nil {
		h.logger.Printf(format, args...)
	}
}
