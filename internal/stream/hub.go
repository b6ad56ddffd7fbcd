// Package stream pushes pipeline events to websocket subscribers.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

const (
	EventRefresh = "refresh"

	defaultBuffer = 8
	writeTimeout  = 5 * time.Second
)

// Event tells the dashboard that fresh rows are available.
type Event struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	Timeframes []string  `json:"timeframes"`
	Rows       int       `json:"rows"`
	At         time.Time `json:"at"`
}

type subscriber struct {
	ch chan []byte
}

type Hub struct {
	logger *zap.Logger

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{logger: logger, subs: map[*subscriber]struct{}{}}
}

// Broadcast never blocks; a subscriber whose buffer is full misses the event.
func (h *Hub) Broadcast(ev Event) {
	if h == nil {
		return
	}
	if ev.Type == "" {
		ev.Type = EventRefresh
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("stream encode failed", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		select {
		case sub.ch <- payload:
		default:
			h.logger.Debug("stream subscriber lagging, event dropped", zap.String("run_id", ev.RunID))
		}
	}
}

func (h *Hub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		h.logger.Debug("stream accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	sub := &subscriber{ch: make(chan []byte, defaultBuffer)}
	h.add(sub)
	defer h.remove(sub)

	// Clients never send; CloseRead handles control frames and cancels on disconnect.
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case msg := <-sub.ch:
			if err := write(ctx, conn, msg); err != nil {
				h.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, msg)
}

func (h *Hub) add(sub *subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}
