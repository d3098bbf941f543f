// Package events fans committed timeline changes out to websocket
// subscribers.
package events

import (
	"context"
	"net/http"
	"sync"
	"time"

	"decryptrecovery/internal/constants"
	"decryptrecovery/internal/metrics"
	"decryptrecovery/internal/models"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

// Hub broadcasts timeline events. Notify never blocks: a subscriber whose
// buffer is full is disconnected instead of slowing the publisher down.
type Hub struct {
	logger       *logrus.Logger
	bufferSize   int
	writeTimeout time.Duration

	mu          sync.Mutex
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	events    chan models.TimelineEvent
	threadID  string
	closeSlow func()
}

// NewHub creates an empty hub.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		logger:       logger,
		bufferSize:   constants.DefaultEventBufferSize,
		writeTimeout: time.Duration(constants.DefaultEventWriteTimeoutMs) * time.Millisecond,
		subscribers:  make(map[*subscriber]struct{}),
	}
}

// Notify publishes e to every subscriber interested in its thread.
func (h *Hub) Notify(e models.TimelineEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	metrics.IncrementCounter("timeline_events_total", map[string]string{"type": string(e.Type)}, "Timeline events published")
	for s := range h.subscribers {
		if s.threadID != "" && s.threadID != e.ThreadID {
			continue
		}
		select {
		case s.events <- e:
		default:
			go s.closeSlow()
		}
	}
}

// Subscribers returns the number of connected subscribers.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// ServeHTTP upgrades the request to a websocket and streams events as JSON
// until the client goes away. The optional thread query parameter limits
// the stream to one thread.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept event subscriber")
		return
	}
	defer func() { _ = conn.CloseNow() }()

	err = h.subscribe(r.Context(), conn, r.URL.Query().Get("thread"))
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return
	}
	if err != nil && r.Context().Err() == nil {
		h.logger.WithError(err).Debug("Event subscriber disconnected")
	}
}

func (h *Hub) subscribe(ctx context.Context, conn *websocket.Conn, threadID string) error {
	// Subscribers only listen; CloseRead handles control frames.
	ctx = conn.CloseRead(ctx)

	s := &subscriber{
		events:   make(chan models.TimelineEvent, h.bufferSize),
		threadID: threadID,
		closeSlow: func() {
			_ = conn.Close(websocket.StatusPolicyViolation, "subscriber too slow")
		},
	}
	h.add(s)
	defer h.remove(s)

	for {
		select {
		case e := <-s.events:
			if err := h.write(ctx, conn, e); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (h *Hub) write(ctx context.Context, conn *websocket.Conn, e models.TimelineEvent) error {
	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	h.mu.Unlock()
}
