// Package notify fans progress events out to learners' websocket
// connections.
package notify

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/p-n-ai/pai-lingo/internal/learning"
)

// HubConfig tunes the hub.
type HubConfig struct {
	Buffer         int           // per-connection event queue; default 16
	WriteTimeout   time.Duration // default 5s
	OriginPatterns []string      // extra allowed Origin hosts
}

// Hub delivers each ProgressEvent to every open connection of its learner.
// A connection whose queue is full misses the event; the hub never blocks
// a publisher.
type Hub struct {
	mu     sync.RWMutex
	subs   map[int64]map[*subscriber]struct{}
	buffer int
	write  time.Duration
	accept *websocket.AcceptOptions
}

type subscriber struct {
	ch chan learning.ProgressEvent
}

var _ learning.Publisher = (*Hub)(nil)

// NewHub creates a hub with no connections.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 16
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	return &Hub{
		subs:   make(map[int64]map[*subscriber]struct{}),
		buffer: cfg.Buffer,
		write:  cfg.WriteTimeout,
		accept: &websocket.AcceptOptions{OriginPatterns: cfg.OriginPatterns},
	}
}

// Publish queues ev for the learner's connections.
func (h *Hub) Publish(_ context.Context, ev learning.ProgressEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for s := range h.subs[ev.LearnerID] {
		select {
		case s.ch <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		slog.Warn("progress event dropped for slow connections",
			"learner_id", ev.LearnerID,
			"event_id", ev.ID,
			"dropped", dropped,
		)
	}
	return nil
}

// Subscribe registers a queue for learnerID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(learnerID int64) (<-chan learning.ProgressEvent, func()) {
	s := &subscriber{ch: make(chan learning.ProgressEvent, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[learnerID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[learnerID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[learnerID], s)
			if len(h.subs[learnerID]) == 0 {
				delete(h.subs, learnerID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
}

// Connections returns the number of open subscriptions for learnerID.
func (h *Hub) Connections(learnerID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[learnerID])
}

// Serve upgrades the request and streams the learner's events as JSON
// messages until either side closes. Client messages are ignored.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, learnerID int64) {
	// Server-wide timeouts would cut a long-lived stream.
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	c, err := websocket.Accept(w, r, h.accept)
	if err != nil {
		slog.Warn("websocket accept failed", "learner_id", learnerID, "error", err)
		return
	}
	defer c.CloseNow()

	events, cancel := h.Subscribe(learnerID)
	defer cancel()

	ctx := c.CloseRead(r.Context())
	slog.Debug("event stream opened", "learner_id", learnerID)

	for {
		select {
		case <-ctx.Done():
			c.Close(websocket.StatusNormalClosure, "")
			return
		case ev := <-events:
			wctx, cancelWrite := context.WithTimeout(ctx, h.write)
			err := wsjson.Write(wctx, c, ev)
			cancelWrite()
			if err != nil {
				slog.Debug("event stream closed", "learner_id", learnerID, "error", err)
				return
			}
		}
	}
}
